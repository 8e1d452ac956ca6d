// Package store is the single source of truth for all entity collections.
// Every mutation runs the same pipeline: validate, permission gate, persist,
// reflect the authoritative saved row into memory, maintain derived fields,
// cascade, notify.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/meistericham/pcrtrack/internal/domain"
	"github.com/meistericham/pcrtrack/internal/observability"
	"github.com/meistericham/pcrtrack/internal/storage"
)

// ErrInvalidInput is returned when a mutation payload is missing required
// fields. No state changes and no network call happens on a validation
// failure.
var ErrInvalidInput = errors.New("invalid input")

// ErrNotFound is returned when a mutation references a record that is not in
// the store.
var ErrNotFound = errors.New("not found")

// Actor identifies who is performing a mutation, for the permission gate and
// for notification actor-exclusion.
type Actor struct {
	ID   string
	Role domain.Role
}

// Store owns the in-memory collections. They are mutated only through its
// exposed operations; the backing storage.Store is the durable side of every
// mutation.
type Store struct {
	backend storage.Store
	logger  *slog.Logger
	metrics *observability.MetricsCollector

	mu            sync.RWMutex
	users         []domain.User
	divisions     []domain.Division
	units         []domain.Unit
	projects      []domain.Project
	entries       []domain.BudgetEntry
	codes         []domain.BudgetCode
	notifications []domain.Notification
	settings      domain.AppSettings

	watchersMu sync.Mutex
	watchers   map[int]chan domain.Notification
	nextWatch  int
}

// New creates a Store bound to a backend. Call Hydrate before serving reads.
func New(backend storage.Store, logger *slog.Logger, metrics *observability.MetricsCollector) *Store {
	return &Store{
		backend:  backend,
		logger:   logger,
		metrics:  metrics,
		settings: domain.DefaultSettings(),
		watchers: make(map[int]chan domain.Notification),
	}
}

// Backend exposes the underlying storage for callers that need driver
// information or direct settings access (backup snapshots, readiness).
func (s *Store) Backend() storage.Store {
	return s.backend
}

// Hydrate refreshes every collection from the backend. A failed refresh of
// one collection logs, keeps that collection's prior in-memory contents, and
// moves on. Hydrate only returns an error when the context is cancelled.
func (s *Store) Hydrate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	hydrate(s, ctx, "users", s.backend.Users().List, func(v []domain.User) { s.users = v })
	hydrate(s, ctx, "divisions", s.backend.Divisions().List, func(v []domain.Division) { s.divisions = v })
	hydrate(s, ctx, "units", s.backend.Units().List, func(v []domain.Unit) { s.units = v })
	hydrate(s, ctx, "projects", s.backend.Projects().List, func(v []domain.Project) { s.projects = v })
	hydrate(s, ctx, "budget_entries", s.backend.BudgetEntries().List, func(v []domain.BudgetEntry) { s.entries = v })
	hydrate(s, ctx, "budget_codes", s.backend.BudgetCodes().List, func(v []domain.BudgetCode) { s.codes = v })
	hydrate(s, ctx, "notifications", s.backend.Notifications().List, func(v []domain.Notification) { s.notifications = v })

	settings, err := s.backend.Settings().Get(ctx)
	if err != nil {
		s.hydrationFailed("settings", err)
	} else {
		s.mu.Lock()
		s.settings = *settings
		s.mu.Unlock()
	}
	return nil
}

// hydrate loads one collection, replacing the in-memory copy only on
// success.
func hydrate[T any](s *Store, ctx context.Context, name string, load func(context.Context) ([]T, error), set func([]T)) {
	v, err := load(ctx)
	if err != nil {
		s.hydrationFailed(name, err)
		return
	}
	s.mu.Lock()
	set(v)
	s.mu.Unlock()
}

func (s *Store) hydrationFailed(collection string, err error) {
	s.metrics.HydrationFailures.WithLabelValues(collection).Inc()
	s.logger.Warn("hydration failed, keeping prior state",
		slog.String("collection", collection),
		slog.String("error", err.Error()),
	)
}

// --- Read snapshots ---

func (s *Store) Users() []domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.User, len(s.users))
	copy(out, s.users)
	return out
}

func (s *Store) Divisions() []domain.Division {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Division, len(s.divisions))
	copy(out, s.divisions)
	return out
}

func (s *Store) Units() []domain.Unit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Unit, len(s.units))
	copy(out, s.units)
	return out
}

func (s *Store) Projects() []domain.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Project, len(s.projects))
	copy(out, s.projects)
	return out
}

func (s *Store) BudgetEntries() []domain.BudgetEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.BudgetEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

func (s *Store) BudgetCodes() []domain.BudgetCode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.BudgetCode, len(s.codes))
	copy(out, s.codes)
	return out
}

func (s *Store) Settings() domain.AppSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// UserByID returns the profile with the given id, or nil.
func (s *Store) UserByID(id string) *domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.users {
		if s.users[i].ID == id {
			u := s.users[i]
			return &u
		}
	}
	return nil
}

// ProjectByID returns the project with the given id, or nil.
func (s *Store) ProjectByID(id string) *domain.Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.projectIndex(id); i >= 0 {
		p := s.projects[i]
		return &p
	}
	return nil
}

// --- Index helpers (callers hold s.mu) ---

func (s *Store) projectIndex(id string) int {
	for i := range s.projects {
		if s.projects[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) codeIndex(id string) int {
	for i := range s.codes {
		if s.codes[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) entryIndex(id string) int {
	for i := range s.entries {
		if s.entries[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) userIndex(id string) int {
	for i := range s.users {
		if s.users[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) recordMutation(entity, op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.metrics.MutationsTotal.WithLabelValues(entity, op, status).Inc()
}

func missing(field string) error {
	return fmt.Errorf("%w: %s is required", ErrInvalidInput, field)
}
