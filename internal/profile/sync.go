// Package profile reconciles identity-provider sessions with durable user
// profiles.
package profile

import (
	"context"
	"log/slog"
	"sync"

	"github.com/meistericham/pcrtrack/internal/domain"
	"github.com/meistericham/pcrtrack/internal/session"
	"github.com/meistericham/pcrtrack/internal/storage"
)

// Synchronizer ensures a durable profile exists for a session and is at least
// as privileged as the session's claims indicate. Sync is best-effort: it
// logs failures and never blocks session establishment. Ensure is the
// synchronous variant for callers that need the profile row on return.
type Synchronizer struct {
	users  storage.UserStore
	logger *slog.Logger

	mu       sync.Mutex
	inFlight map[string]chan struct{}
}

// NewSynchronizer creates a Synchronizer.
func NewSynchronizer(users storage.UserStore, logger *slog.Logger) *Synchronizer {
	return &Synchronizer{
		users:    users,
		logger:   logger,
		inFlight: make(map[string]chan struct{}),
	}
}

// acquire claims the in-flight slot for an identity. When the slot is taken
// the holder's done channel is returned with acquired false.
func (s *Synchronizer) acquire(id string) (done chan struct{}, acquired bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if held, busy := s.inFlight[id]; busy {
		return held, false
	}
	done = make(chan struct{})
	s.inFlight[id] = done
	return done, true
}

func (s *Synchronizer) release(id string, done chan struct{}) {
	s.mu.Lock()
	delete(s.inFlight, id)
	s.mu.Unlock()
	close(done)
}

// Sync reconciles the profile for the session's identity. Overlapping calls
// for the same identity id collapse into one: a sync arriving while another
// is in flight for that id is a no-op.
func (s *Synchronizer) Sync(ctx context.Context, sess *session.Session) {
	if sess == nil || sess.UserID == "" {
		return
	}

	done, acquired := s.acquire(sess.UserID)
	if !acquired {
		return
	}
	defer s.release(sess.UserID, done)

	if err := s.reconcile(ctx, sess); err != nil {
		s.logger.Warn("profile sync failed",
			slog.String("user_id", sess.UserID),
			slog.String("email", sess.Email),
			slog.String("error", err.Error()),
		)
	}
}

// Ensure reconciles synchronously and reports the result. Unlike Sync it
// never collapses into a concurrent run: a call arriving while a sync is in
// flight for the identity waits that sync out and then performs its own
// reconcile, so the profile row exists when Ensure returns nil.
func (s *Synchronizer) Ensure(ctx context.Context, sess *session.Session) error {
	if sess == nil || sess.UserID == "" {
		return nil
	}

	for {
		done, acquired := s.acquire(sess.UserID)
		if acquired {
			err := s.reconcile(ctx, sess)
			s.release(sess.UserID, done)
			return err
		}
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Synchronizer) reconcile(ctx context.Context, sess *session.Session) error {
	existing, err := s.users.Get(ctx, sess.UserID)
	if err != nil {
		// Absent profile: create from claims.
		return s.create(ctx, sess)
	}

	updated := *existing
	changed := false

	// Promote, never demote. The claim's role only applies when it ranks
	// strictly above the stored one.
	claimRole := sess.Claims.Role
	if claimRole.Valid() && claimRole.Ordinal() > existing.Role.Ordinal() {
		updated.Role = claimRole
		changed = true
	}

	// Name and initials are only filled in when empty, so a user's manual
	// edit is never reverted.
	if existing.Name == "" {
		updated.Name = s.displayName(sess)
		changed = true
	}
	if existing.Initials == "" {
		updated.Initials = domain.InitialsFromName(updated.Name)
		changed = true
	}

	if !changed {
		return nil
	}
	_, err = s.users.Update(ctx, &updated)
	return err
}

func (s *Synchronizer) create(ctx context.Context, sess *session.Session) error {
	role := sess.Claims.Role
	if !role.Valid() {
		role = domain.RoleUser
	}
	name := s.displayName(sess)

	user := domain.User{
		ID:       sess.UserID,
		Name:     name,
		Email:    sess.Email,
		Role:     role,
		Initials: domain.InitialsFromName(name),
	}
	_, err := s.users.Create(ctx, &user)
	if err == nil {
		s.logger.Info("profile created",
			slog.String("user_id", user.ID),
			slog.String("role", string(user.Role)),
		)
	}
	return err
}

func (s *Synchronizer) displayName(sess *session.Session) string {
	if sess.Claims.Name != "" {
		return sess.Claims.Name
	}
	return domain.NameFromEmail(sess.Email)
}
