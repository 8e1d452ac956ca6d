// Package local implements the unified Store interface for local-only mode.
// Collections are held in memory and written through to a SQLite file
// (modernc/glebarez, pure Go) as one JSON-serialized record per collection
// key. Writes are debounced so rapid successive mutations coalesce into a
// single persisted write per key.
//
// Ids and timestamps are synthesized here: this backend is the authority in
// local mode, mirroring what the remote backend's server does in hosted mode.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/meistericham/pcrtrack/internal/domain"
	"github.com/meistericham/pcrtrack/internal/storage"
)

// maxNotifications is the retention cap across all recipients; the oldest
// records are evicted first on overflow.
const maxNotifications = 100

// recordModel maps to the "app_state" table: one row per collection key.
type recordModel struct {
	Key       string `gorm:"primaryKey;column:key"`
	Data      string `gorm:"type:text;not null"`
	UpdatedAt time.Time
}

func (recordModel) TableName() string { return "app_state" }

// Config holds local-backend configuration.
type Config struct {
	Path     string        // Database file path.
	Debounce time.Duration // Write-through debounce. Default: 300ms.
}

// Store implements storage.Store backed by in-memory collections with a
// debounced SQLite write-through.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
	saver  *saver

	mu            sync.Mutex
	users         []domain.User
	divisions     []domain.Division
	units         []domain.Unit
	projects      []domain.Project
	budgetEntries []domain.BudgetEntry
	budgetCodes   []domain.BudgetCode
	notifications []domain.Notification
	settings      domain.AppSettings
}

// Open creates a local Store. Migrate must be called before use.
func Open(cfg Config, slogger *slog.Logger) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("local storage path is required")
	}
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)", cfg.Path)

	gormLogger := logger.New(
		slogAdapter{slogger},
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  gormLogger,
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("opening local database: %w", err)
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}

	s := &Store{
		db:       db,
		logger:   slogger,
		settings: domain.DefaultSettings(),
	}
	s.saver = newSaver(debounce, s.writeRecord)

	slogger.Info("local store opened",
		slog.String("path", cfg.Path),
		slog.Duration("debounce", debounce),
	)
	return s, nil
}

// Migrate creates the app_state table and loads all persisted collections
// into memory. Missing keys start empty; settings start from defaults.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&recordModel{}); err != nil {
		return fmt.Errorf("migrating app_state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	loadKey(s, ctx, storage.KeyUsers, &s.users)
	loadKey(s, ctx, storage.KeyDivisions, &s.divisions)
	loadKey(s, ctx, storage.KeyUnits, &s.units)
	loadKey(s, ctx, storage.KeyProjects, &s.projects)
	loadKey(s, ctx, storage.KeyBudgetEntries, &s.budgetEntries)
	loadKey(s, ctx, storage.KeyBudgetCodes, &s.budgetCodes)
	loadKey(s, ctx, storage.KeyNotifications, &s.notifications)

	// Settings merge over defaults so new fields pick up default values.
	s.settings = domain.DefaultSettings()
	loadKey(s, ctx, storage.KeySettings, &s.settings)
	return nil
}

// loadKey fills dst from the stored JSON record, leaving dst untouched when
// the key is absent or unreadable.
func loadKey[T any](s *Store, ctx context.Context, key string, dst *T) {
	var rec recordModel
	err := s.db.WithContext(ctx).First(&rec, "key = ?", key).Error
	if err != nil {
		if err != gorm.ErrRecordNotFound {
			s.logger.Warn("loading collection failed",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
		return
	}
	if err := json.Unmarshal([]byte(rec.Data), dst); err != nil {
		s.logger.Warn("decoding collection failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

// Close flushes pending writes and closes the database.
func (s *Store) Close() error {
	s.saver.flush()
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Driver returns "local".
func (s *Store) Driver() string { return storage.DriverLocal }

// persist marshals the collection under key and schedules a debounced write.
// Caller must hold s.mu.
func (s *Store) persist(key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("encoding collection failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return
	}
	s.saver.schedule(key, data)
}

// writeRecord is the saver's sink: a single upsert of the collection record.
func (s *Store) writeRecord(key string, data []byte) {
	rec := recordModel{Key: key, Data: string(data), UpdatedAt: time.Now().UTC()}
	if err := s.db.Save(&rec).Error; err != nil {
		s.logger.Error("persisting collection failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

// fill assigns a synthesized id and creation time where absent.
func fill(id *string, createdAt *time.Time) {
	if *id == "" {
		*id = domain.NewID()
	}
	if createdAt.IsZero() {
		*createdAt = time.Now().UTC()
	}
}

// --- Sub-store accessors ---

func (s *Store) Users() storage.UserStore                 { return userStore{s} }
func (s *Store) Divisions() storage.DivisionStore         { return divisionStore{s} }
func (s *Store) Units() storage.UnitStore                 { return unitStore{s} }
func (s *Store) Projects() storage.ProjectStore           { return projectStore{s} }
func (s *Store) BudgetEntries() storage.BudgetEntryStore  { return entryStore{s} }
func (s *Store) BudgetCodes() storage.BudgetCodeStore     { return codeStore{s} }
func (s *Store) Notifications() storage.NotificationStore { return notificationStore{s} }
func (s *Store) Settings() storage.SettingsStore          { return settingsStore{s} }

// compile-time interface check
var _ storage.Store = (*Store)(nil)

// slogAdapter wraps *slog.Logger for GORM's logger.Writer interface.
type slogAdapter struct {
	logger *slog.Logger
}

func (a slogAdapter) Printf(format string, args ...any) {
	a.logger.Info(fmt.Sprintf(format, args...))
}
