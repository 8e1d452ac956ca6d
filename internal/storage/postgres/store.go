package postgres

import (
	"context"
	"sync"

	"github.com/meistericham/pcrtrack/internal/storage"
)

// Store implements storage.Store backed by PostgreSQL.
// It wraps the existing DB and lazily creates sub-store repositories.
type Store struct {
	pgDB *DB

	mu            sync.Mutex
	users         storage.UserStore
	divisions     storage.DivisionStore
	units         storage.UnitStore
	projects      storage.ProjectStore
	budgetEntries storage.BudgetEntryStore
	budgetCodes   storage.BudgetCodeStore
	notifications storage.NotificationStore
	settings      storage.SettingsStore
}

// NewStore wraps an existing DB as a unified Store.
func NewStore(pgDB *DB) *Store {
	return &Store{pgDB: pgDB}
}

func (s *Store) Migrate(_ context.Context) error {
	// PostgreSQL migration is done in Open() via autoMigrate.
	return nil
}

func (s *Store) Close() error {
	return s.pgDB.Close()
}

func (s *Store) Driver() string {
	return storage.DriverPostgres
}

// GormDB returns the underlying GORM DB for direct access when needed.
func (s *Store) GormDB() *DB {
	return s.pgDB
}

// Ping checks connectivity for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return s.pgDB.Ping(ctx)
}

// --- Sub-store accessors ---

func (s *Store) Users() storage.UserStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = NewUserRepository(s.pgDB.GormDB())
	}
	return s.users
}

func (s *Store) Divisions() storage.DivisionStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.divisions == nil {
		s.divisions = NewDivisionRepository(s.pgDB.GormDB())
	}
	return s.divisions
}

func (s *Store) Units() storage.UnitStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.units == nil {
		s.units = NewUnitRepository(s.pgDB.GormDB())
	}
	return s.units
}

func (s *Store) Projects() storage.ProjectStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.projects == nil {
		s.projects = NewProjectRepository(s.pgDB.GormDB())
	}
	return s.projects
}

func (s *Store) BudgetEntries() storage.BudgetEntryStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.budgetEntries == nil {
		s.budgetEntries = NewBudgetEntryRepository(s.pgDB.GormDB())
	}
	return s.budgetEntries
}

func (s *Store) BudgetCodes() storage.BudgetCodeStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.budgetCodes == nil {
		s.budgetCodes = NewBudgetCodeRepository(s.pgDB.GormDB())
	}
	return s.budgetCodes
}

func (s *Store) Notifications() storage.NotificationStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notifications == nil {
		s.notifications = NewNotificationRepository(s.pgDB.GormDB())
	}
	return s.notifications
}

func (s *Store) Settings() storage.SettingsStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settings == nil {
		s.settings = NewSettingsRepository(s.pgDB.GormDB())
	}
	return s.settings
}

var _ storage.Store = (*Store)(nil)
