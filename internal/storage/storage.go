// Package storage defines the unified Store interface that abstracts all
// persistence operations. Two backends are provided: a local SQLite-backed
// store (zero-config, JSON collection snapshots, debounced writes) and a
// PostgreSQL store (hosted/remote mode, row per record).
//
// The domain state store is written against this interface only; the mode is
// selected once at startup, never branched on per call site.
package storage

import (
	"context"

	"github.com/meistericham/pcrtrack/internal/domain"
)

// UserStore persists durable user profiles.
type UserStore interface {
	List(ctx context.Context) ([]domain.User, error)
	Get(ctx context.Context, id string) (*domain.User, error)
	// Create persists a new profile and returns the authoritative saved row
	// (ids and timestamps are backend-assigned when absent).
	Create(ctx context.Context, u *domain.User) (*domain.User, error)
	// Update persists the full merged record and returns the saved row.
	Update(ctx context.Context, u *domain.User) (*domain.User, error)
	Delete(ctx context.Context, id string) error
}

// DivisionStore persists divisions.
type DivisionStore interface {
	List(ctx context.Context) ([]domain.Division, error)
	Create(ctx context.Context, d *domain.Division) (*domain.Division, error)
	Update(ctx context.Context, d *domain.Division) (*domain.Division, error)
	Delete(ctx context.Context, id string) error
}

// UnitStore persists units.
type UnitStore interface {
	List(ctx context.Context) ([]domain.Unit, error)
	Create(ctx context.Context, u *domain.Unit) (*domain.Unit, error)
	Update(ctx context.Context, u *domain.Unit) (*domain.Unit, error)
	Delete(ctx context.Context, id string) error
}

// ProjectStore persists projects.
type ProjectStore interface {
	List(ctx context.Context) ([]domain.Project, error)
	Create(ctx context.Context, p *domain.Project) (*domain.Project, error)
	Update(ctx context.Context, p *domain.Project) (*domain.Project, error)
	Delete(ctx context.Context, id string) error
}

// BudgetEntryStore persists budget entries.
type BudgetEntryStore interface {
	List(ctx context.Context) ([]domain.BudgetEntry, error)
	Create(ctx context.Context, e *domain.BudgetEntry) (*domain.BudgetEntry, error)
	Update(ctx context.Context, e *domain.BudgetEntry) (*domain.BudgetEntry, error)
	Delete(ctx context.Context, id string) error
}

// BudgetCodeStore persists budget codes.
type BudgetCodeStore interface {
	List(ctx context.Context) ([]domain.BudgetCode, error)
	Create(ctx context.Context, c *domain.BudgetCode) (*domain.BudgetCode, error)
	Update(ctx context.Context, c *domain.BudgetCode) (*domain.BudgetCode, error)
	Delete(ctx context.Context, id string) error
}

// NotificationStore persists notifications. Records are immutable except for
// the read flag; deletion is single-record or bulk by recipient.
type NotificationStore interface {
	List(ctx context.Context) ([]domain.Notification, error)
	Create(ctx context.Context, n *domain.Notification) (*domain.Notification, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context, userID string) error
	Delete(ctx context.Context, id string) error
	DeleteByUser(ctx context.Context, userID string) error
}

// SettingsStore persists the singleton settings record.
type SettingsStore interface {
	// Get returns the stored settings merged over the defaults, so newly
	// introduced fields always carry their default value.
	Get(ctx context.Context) (*domain.AppSettings, error)
	Save(ctx context.Context, s *domain.AppSettings) (*domain.AppSettings, error)
}

// Store is the unified persistence interface. Both the local and the
// PostgreSQL backends implement it; sub-stores share the same underlying
// connection.
type Store interface {
	Users() UserStore
	Divisions() DivisionStore
	Units() UnitStore
	Projects() ProjectStore
	BudgetEntries() BudgetEntryStore
	BudgetCodes() BudgetCodeStore
	Notifications() NotificationStore
	Settings() SettingsStore

	// Lifecycle.
	Migrate(ctx context.Context) error
	Close() error

	// Driver returns the storage driver name ("local" or "postgres").
	Driver() string
}

// Config holds storage configuration for driver selection.
type Config struct {
	Driver   string         `json:"driver" yaml:"driver"` // "local" (default) or "postgres"
	Local    LocalConfig    `json:"local" yaml:"local"`
	Postgres PostgresConfig `json:"postgres" yaml:"postgres"`
}

// LocalConfig holds local-backend settings.
type LocalConfig struct {
	Path string `json:"path,omitempty" yaml:"path,omitempty"` // Database file path. Default: derived from data dir.
	// Debounce for collection write-through, in milliseconds. Default: 300.
	DebounceMS int `json:"debounce_ms,omitempty" yaml:"debounce_ms,omitempty"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN              string `json:"dsn" yaml:"dsn"`
	MaxOpenConns     int    `json:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns     int    `json:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetimeS int    `json:"conn_max_lifetime_s" yaml:"conn_max_lifetime_s"`
}

// DefaultDriver is the default storage driver.
const DefaultDriver = "local"

// DriverLocal is the local driver name.
const DriverLocal = "local"

// DriverPostgres is the PostgreSQL driver name.
const DriverPostgres = "postgres"

// Collection keys used by the local backend, one JSON record per key.
const (
	KeyUsers         = "app_users"
	KeyDivisions     = "app_divisions"
	KeyUnits         = "app_units"
	KeyProjects      = "app_projects"
	KeyBudgetEntries = "app_budget_entries"
	KeyBudgetCodes   = "app_budget_codes"
	KeyNotifications = "app_notifications"
	KeySettings      = "app_settings"
)
