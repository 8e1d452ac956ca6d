package local

import (
	"context"
	"fmt"
	"time"

	"github.com/meistericham/pcrtrack/internal/domain"
	"github.com/meistericham/pcrtrack/internal/storage"
)

// The sub-stores below all follow the same shape: mutate the in-memory
// mirror under the store lock, schedule a debounced write-through, and
// return a copy of the saved record as the authoritative row.

// --- Users ---

type userStore struct{ s *Store }

func (st userStore) List(_ context.Context) ([]domain.User, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	out := make([]domain.User, len(st.s.users))
	copy(out, st.s.users)
	return out, nil
}

func (st userStore) Get(_ context.Context, id string) (*domain.User, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	for i := range st.s.users {
		if st.s.users[i].ID == id {
			u := st.s.users[i]
			return &u, nil
		}
	}
	return nil, fmt.Errorf("user %s not found", id)
}

func (st userStore) Create(_ context.Context, u *domain.User) (*domain.User, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	saved := *u
	fill(&saved.ID, &saved.CreatedAt)
	st.s.users = append(st.s.users, saved)
	st.s.persist(storage.KeyUsers, st.s.users)
	return &saved, nil
}

func (st userStore) Update(_ context.Context, u *domain.User) (*domain.User, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	for i := range st.s.users {
		if st.s.users[i].ID == u.ID {
			st.s.users[i] = *u
			st.s.persist(storage.KeyUsers, st.s.users)
			saved := *u
			return &saved, nil
		}
	}
	return nil, fmt.Errorf("user %s not found", u.ID)
}

func (st userStore) Delete(_ context.Context, id string) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	st.s.users = deleteByID(st.s.users, id, func(u domain.User) string { return u.ID })
	st.s.persist(storage.KeyUsers, st.s.users)
	return nil
}

// --- Divisions ---

type divisionStore struct{ s *Store }

func (st divisionStore) List(_ context.Context) ([]domain.Division, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	out := make([]domain.Division, len(st.s.divisions))
	copy(out, st.s.divisions)
	return out, nil
}

func (st divisionStore) Create(_ context.Context, d *domain.Division) (*domain.Division, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	saved := *d
	fill(&saved.ID, &saved.CreatedAt)
	st.s.divisions = append(st.s.divisions, saved)
	st.s.persist(storage.KeyDivisions, st.s.divisions)
	return &saved, nil
}

func (st divisionStore) Update(_ context.Context, d *domain.Division) (*domain.Division, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	for i := range st.s.divisions {
		if st.s.divisions[i].ID == d.ID {
			st.s.divisions[i] = *d
			st.s.persist(storage.KeyDivisions, st.s.divisions)
			saved := *d
			return &saved, nil
		}
	}
	return nil, fmt.Errorf("division %s not found", d.ID)
}

func (st divisionStore) Delete(_ context.Context, id string) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	st.s.divisions = deleteByID(st.s.divisions, id, func(d domain.Division) string { return d.ID })
	st.s.persist(storage.KeyDivisions, st.s.divisions)
	return nil
}

// --- Units ---

type unitStore struct{ s *Store }

func (st unitStore) List(_ context.Context) ([]domain.Unit, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	out := make([]domain.Unit, len(st.s.units))
	copy(out, st.s.units)
	return out, nil
}

func (st unitStore) Create(_ context.Context, u *domain.Unit) (*domain.Unit, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	saved := *u
	fill(&saved.ID, &saved.CreatedAt)
	st.s.units = append(st.s.units, saved)
	st.s.persist(storage.KeyUnits, st.s.units)
	return &saved, nil
}

func (st unitStore) Update(_ context.Context, u *domain.Unit) (*domain.Unit, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	for i := range st.s.units {
		if st.s.units[i].ID == u.ID {
			st.s.units[i] = *u
			st.s.persist(storage.KeyUnits, st.s.units)
			saved := *u
			return &saved, nil
		}
	}
	return nil, fmt.Errorf("unit %s not found", u.ID)
}

func (st unitStore) Delete(_ context.Context, id string) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	st.s.units = deleteByID(st.s.units, id, func(u domain.Unit) string { return u.ID })
	st.s.persist(storage.KeyUnits, st.s.units)
	return nil
}

// --- Projects ---

type projectStore struct{ s *Store }

func (st projectStore) List(_ context.Context) ([]domain.Project, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	out := make([]domain.Project, len(st.s.projects))
	copy(out, st.s.projects)
	return out, nil
}

func (st projectStore) Create(_ context.Context, p *domain.Project) (*domain.Project, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	saved := *p
	fill(&saved.ID, &saved.CreatedAt)
	if saved.UpdatedAt.IsZero() {
		saved.UpdatedAt = saved.CreatedAt
	}
	st.s.projects = append(st.s.projects, saved)
	st.s.persist(storage.KeyProjects, st.s.projects)
	return &saved, nil
}

func (st projectStore) Update(_ context.Context, p *domain.Project) (*domain.Project, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	for i := range st.s.projects {
		if st.s.projects[i].ID == p.ID {
			saved := *p
			saved.UpdatedAt = time.Now().UTC()
			st.s.projects[i] = saved
			st.s.persist(storage.KeyProjects, st.s.projects)
			return &saved, nil
		}
	}
	return nil, fmt.Errorf("project %s not found", p.ID)
}

func (st projectStore) Delete(_ context.Context, id string) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	st.s.projects = deleteByID(st.s.projects, id, func(p domain.Project) string { return p.ID })
	st.s.persist(storage.KeyProjects, st.s.projects)
	return nil
}

// --- Budget entries ---

type entryStore struct{ s *Store }

func (st entryStore) List(_ context.Context) ([]domain.BudgetEntry, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	out := make([]domain.BudgetEntry, len(st.s.budgetEntries))
	copy(out, st.s.budgetEntries)
	return out, nil
}

func (st entryStore) Create(_ context.Context, e *domain.BudgetEntry) (*domain.BudgetEntry, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	saved := *e
	fill(&saved.ID, &saved.CreatedAt)
	st.s.budgetEntries = append(st.s.budgetEntries, saved)
	st.s.persist(storage.KeyBudgetEntries, st.s.budgetEntries)
	return &saved, nil
}

func (st entryStore) Update(_ context.Context, e *domain.BudgetEntry) (*domain.BudgetEntry, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	for i := range st.s.budgetEntries {
		if st.s.budgetEntries[i].ID == e.ID {
			st.s.budgetEntries[i] = *e
			st.s.persist(storage.KeyBudgetEntries, st.s.budgetEntries)
			saved := *e
			return &saved, nil
		}
	}
	return nil, fmt.Errorf("budget entry %s not found", e.ID)
}

func (st entryStore) Delete(_ context.Context, id string) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	st.s.budgetEntries = deleteByID(st.s.budgetEntries, id, func(e domain.BudgetEntry) string { return e.ID })
	st.s.persist(storage.KeyBudgetEntries, st.s.budgetEntries)
	return nil
}

// --- Budget codes ---

type codeStore struct{ s *Store }

func (st codeStore) List(_ context.Context) ([]domain.BudgetCode, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	out := make([]domain.BudgetCode, len(st.s.budgetCodes))
	copy(out, st.s.budgetCodes)
	return out, nil
}

func (st codeStore) Create(_ context.Context, c *domain.BudgetCode) (*domain.BudgetCode, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	saved := *c
	fill(&saved.ID, &saved.CreatedAt)
	if saved.UpdatedAt.IsZero() {
		saved.UpdatedAt = saved.CreatedAt
	}
	st.s.budgetCodes = append(st.s.budgetCodes, saved)
	st.s.persist(storage.KeyBudgetCodes, st.s.budgetCodes)
	return &saved, nil
}

func (st codeStore) Update(_ context.Context, c *domain.BudgetCode) (*domain.BudgetCode, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	for i := range st.s.budgetCodes {
		if st.s.budgetCodes[i].ID == c.ID {
			saved := *c
			saved.UpdatedAt = time.Now().UTC()
			st.s.budgetCodes[i] = saved
			st.s.persist(storage.KeyBudgetCodes, st.s.budgetCodes)
			return &saved, nil
		}
	}
	return nil, fmt.Errorf("budget code %s not found", c.ID)
}

func (st codeStore) Delete(_ context.Context, id string) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	st.s.budgetCodes = deleteByID(st.s.budgetCodes, id, func(c domain.BudgetCode) string { return c.ID })
	st.s.persist(storage.KeyBudgetCodes, st.s.budgetCodes)
	return nil
}

// --- Notifications ---

type notificationStore struct{ s *Store }

func (st notificationStore) List(_ context.Context) ([]domain.Notification, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	out := make([]domain.Notification, len(st.s.notifications))
	copy(out, st.s.notifications)
	return out, nil
}

func (st notificationStore) Create(_ context.Context, n *domain.Notification) (*domain.Notification, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	saved := *n
	fill(&saved.ID, &saved.CreatedAt)
	// Newest first; evict beyond the retention cap.
	st.s.notifications = append([]domain.Notification{saved}, st.s.notifications...)
	if len(st.s.notifications) > maxNotifications {
		st.s.notifications = st.s.notifications[:maxNotifications]
	}
	st.s.persist(storage.KeyNotifications, st.s.notifications)
	return &saved, nil
}

func (st notificationStore) MarkRead(_ context.Context, id string) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	for i := range st.s.notifications {
		if st.s.notifications[i].ID == id {
			st.s.notifications[i].Read = true
		}
	}
	st.s.persist(storage.KeyNotifications, st.s.notifications)
	return nil
}

func (st notificationStore) MarkAllRead(_ context.Context, userID string) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	for i := range st.s.notifications {
		if st.s.notifications[i].UserID == userID {
			st.s.notifications[i].Read = true
		}
	}
	st.s.persist(storage.KeyNotifications, st.s.notifications)
	return nil
}

func (st notificationStore) Delete(_ context.Context, id string) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	st.s.notifications = deleteByID(st.s.notifications, id, func(n domain.Notification) string { return n.ID })
	st.s.persist(storage.KeyNotifications, st.s.notifications)
	return nil
}

func (st notificationStore) DeleteByUser(_ context.Context, userID string) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	kept := st.s.notifications[:0]
	for _, n := range st.s.notifications {
		if n.UserID != userID {
			kept = append(kept, n)
		}
	}
	st.s.notifications = kept
	st.s.persist(storage.KeyNotifications, st.s.notifications)
	return nil
}

// --- Settings ---

type settingsStore struct{ s *Store }

func (st settingsStore) Get(_ context.Context) (*domain.AppSettings, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	settings := st.s.settings
	return &settings, nil
}

func (st settingsStore) Save(_ context.Context, settings *domain.AppSettings) (*domain.AppSettings, error) {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()
	st.s.settings = *settings
	st.s.persist(storage.KeySettings, st.s.settings)
	saved := st.s.settings
	return &saved, nil
}

// deleteByID filters a collection in place, dropping the record whose id
// matches.
func deleteByID[T any](list []T, id string, idOf func(T) string) []T {
	kept := list[:0]
	for _, item := range list {
		if idOf(item) != id {
			kept = append(kept, item)
		}
	}
	return kept
}
