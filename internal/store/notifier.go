package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/meistericham/pcrtrack/internal/domain"
)

func projectAlertMessage(p *domain.Project, ratio float64) string {
	return fmt.Sprintf("Project %q has used %.0f%% of its budget", p.Name, ratio)
}

func codeAlertMessage(c *domain.BudgetCode, ratio float64) string {
	return fmt.Sprintf("Budget code %s has used %.0f%% of its allocation", c.Code, ratio)
}

// The notifier turns completed mutations into per-recipient notification
// records. Every fan-out site goes through the single notify helper so the
// exclusion-of-actor semantics stay consistent.

// notify creates one notification per user matching pred. Callers hold s.mu.
// Failures are logged and swallowed: a notification must never fail the
// mutation that triggered it.
func (s *Store) notify(ctx context.Context, pred func(*domain.User) bool, typ domain.NotificationType, title, message string, data map[string]any) {
	for i := range s.users {
		u := &s.users[i]
		if !pred(u) {
			continue
		}
		n := domain.Notification{
			UserID:  u.ID,
			Type:    typ,
			Title:   title,
			Message: message,
			Data:    data,
		}
		saved, err := s.backend.Notifications().Create(ctx, &n)
		if err != nil {
			s.logger.Warn("notification create failed",
				slog.String("type", string(typ)),
				slog.String("user_id", u.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		s.metrics.NotificationsTotal.WithLabelValues(string(typ)).Inc()
		s.prependNotification(*saved)
		s.broadcast(*saved)
	}
}

// maxNotifications caps the retained feed across all users; oldest evicted
// first.
const maxNotifications = 100

// prependNotification keeps the in-memory feed newest first, capped. Callers
// hold s.mu.
func (s *Store) prependNotification(n domain.Notification) {
	s.notifications = append([]domain.Notification{n}, s.notifications...)
	if len(s.notifications) > maxNotifications {
		s.notifications = s.notifications[:maxNotifications]
	}
}

// --- Fan-out predicates ---

func everyoneExcept(actorID string) func(*domain.User) bool {
	return func(u *domain.User) bool { return u.ID != actorID }
}

func onlyUsers(ids []string) func(*domain.User) bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return func(u *domain.User) bool { return set[u.ID] }
}

func adminsExcept(actorID string) func(*domain.User) bool {
	return func(u *domain.User) bool {
		return u.ID != actorID && u.Role.Ordinal() >= domain.RoleAdmin.Ordinal()
	}
}

func everyone(*domain.User) bool { return true }

// --- Threshold alerts ---

// checkProjectBudget fires a budget alert when the project's usage ratio is
// at or above the configured threshold. There is no already-alerted
// suppression: every qualifying update re-fires. Callers hold s.mu.
func (s *Store) checkProjectBudget(ctx context.Context, p *domain.Project) {
	threshold := s.settings.BudgetAlertThreshold
	if threshold <= 0 || p.Budget <= 0 {
		return
	}
	ratio := p.UsageRatio()
	if ratio < threshold {
		return
	}
	s.notify(ctx, everyone, domain.NotifyBudgetAlert,
		"Budget alert",
		projectAlertMessage(p, ratio),
		map[string]any{
			"projectId": p.ID,
			"spent":     p.Spent,
			"budget":    p.Budget,
			"ratio":     ratio,
		},
	)
}

// checkCodeBudget is the budget-code counterpart of checkProjectBudget.
// Callers hold s.mu.
func (s *Store) checkCodeBudget(ctx context.Context, c *domain.BudgetCode) {
	threshold := s.settings.BudgetAlertThreshold
	if threshold <= 0 || c.Budget <= 0 {
		return
	}
	ratio := c.UsageRatio()
	if ratio < threshold {
		return
	}
	s.notify(ctx, everyone, domain.NotifyBudgetCodeAlert,
		"Budget code alert",
		codeAlertMessage(c, ratio),
		map[string]any{
			"budgetCodeId": c.ID,
			"spent":        c.Spent,
			"budget":       c.Budget,
			"ratio":        ratio,
		},
	)
}

// --- Notification operations ---

// NotificationsFor returns the feed visible to one user, newest first.
func (s *Store) NotificationsFor(userID string) []domain.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Notification
	for _, n := range s.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

// UnreadCount returns the number of unread notifications for one user.
func (s *Store) UnreadCount(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, n := range s.notifications {
		if n.UserID == userID && !n.Read {
			count++
		}
	}
	return count
}

// MarkNotificationRead flags a single record as read.
func (s *Store) MarkNotificationRead(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.Notifications().MarkRead(ctx, id); err != nil {
		return err
	}
	for i := range s.notifications {
		if s.notifications[i].ID == id {
			s.notifications[i].Read = true
		}
	}
	return nil
}

// MarkAllNotificationsRead flags every record addressed to userID as read.
func (s *Store) MarkAllNotificationsRead(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.Notifications().MarkAllRead(ctx, userID); err != nil {
		return err
	}
	for i := range s.notifications {
		if s.notifications[i].UserID == userID {
			s.notifications[i].Read = true
		}
	}
	return nil
}

// DeleteNotification removes a single record. No side effects on other
// entities.
func (s *Store) DeleteNotification(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.Notifications().Delete(ctx, id); err != nil {
		return err
	}
	kept := s.notifications[:0]
	for _, n := range s.notifications {
		if n.ID != id {
			kept = append(kept, n)
		}
	}
	s.notifications = kept
	return nil
}

// --- Live feed ---

// Watch subscribes to notifications created after the call. The returned
// cancel func must be called to release the subscription.
func (s *Store) Watch() (<-chan domain.Notification, func()) {
	s.watchersMu.Lock()
	defer s.watchersMu.Unlock()
	id := s.nextWatch
	s.nextWatch++
	ch := make(chan domain.Notification, 16)
	s.watchers[id] = ch

	cancel := func() {
		s.watchersMu.Lock()
		defer s.watchersMu.Unlock()
		if _, ok := s.watchers[id]; ok {
			delete(s.watchers, id)
			close(ch)
		}
	}
	return ch, cancel
}

// broadcast delivers to live watchers without blocking; slow consumers drop.
func (s *Store) broadcast(n domain.Notification) {
	s.watchersMu.Lock()
	defer s.watchersMu.Unlock()
	for _, ch := range s.watchers {
		select {
		case ch <- n:
		default:
		}
	}
}
