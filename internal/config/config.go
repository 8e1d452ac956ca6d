// Package config handles loading and validating pcrtrack configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/meistericham/pcrtrack/internal/storage"
)

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()
}

// Config is the root configuration for pcrtrack.
type Config struct {
	// DataDir is the persistent data directory. Default: ~/.pcrtrack/data.
	// Override: PCRTRACK_DATA_DIR env var.
	DataDir string `json:"data_dir,omitempty" yaml:"data_dir,omitempty"`

	Listen    string           `json:"listen,omitempty" yaml:"listen,omitempty"`         // HTTP listen address. Default: ":8080".
	Storage   *storage.Config  `json:"storage,omitempty" yaml:"storage,omitempty"`       // nil = local default (derived from DataDir).
	Identity  IdentityConfig   `json:"identity" yaml:"identity"`
	Backup    *BackupConfig    `json:"backup,omitempty" yaml:"backup,omitempty"`         // nil = schedule from settings.autoBackup only.
	RateLimit *RateLimitConfig `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"` // nil = defaults.
}

// IdentityConfig configures the hosted identity provider and the
// administrative channel.
type IdentityConfig struct {
	BaseURL    string `json:"base_url" yaml:"base_url"`
	AnonKey    string `json:"anon_key" yaml:"anon_key"`
	ServiceKey string `json:"service_key" yaml:"service_key"`
	JWTSecret  string `json:"jwt_secret" yaml:"jwt_secret"`
	// BootstrapEmail is granted super_admin by the ensure-profile endpoint.
	BootstrapEmail string `json:"bootstrap_email,omitempty" yaml:"bootstrap_email,omitempty"`
	// AdminSharedSecret additionally authorizes the admin password reset.
	AdminSharedSecret string `json:"admin_shared_secret,omitempty" yaml:"admin_shared_secret,omitempty"`
}

// BackupConfig configures automatic state snapshots.
type BackupConfig struct {
	Dir      string `json:"dir,omitempty" yaml:"dir,omitempty"`           // Default: <DataDir>/backups.
	Schedule string `json:"schedule,omitempty" yaml:"schedule,omitempty"` // Cron spec. Default: "0 3 * * *".
	Keep     int    `json:"keep,omitempty" yaml:"keep,omitempty"`         // Snapshots retained. Default: 14.
}

// RateLimitConfig throttles the HTTP gateway. Negative values disable the
// corresponding limiter.
type RateLimitConfig struct {
	PerUserPerMinute int `json:"per_user_per_minute,omitempty" yaml:"per_user_per_minute,omitempty"` // Default: 300.
	SignInPerMinute  int `json:"sign_in_per_minute,omitempty" yaml:"sign_in_per_minute,omitempty"`   // Per account. Default: 10.
}

// APIRatePerMinute returns the per-user request budget for authenticated
// routes, 0 when disabled.
func (c *Config) APIRatePerMinute() int {
	if c.RateLimit == nil || c.RateLimit.PerUserPerMinute == 0 {
		return 300
	}
	if c.RateLimit.PerUserPerMinute < 0 {
		return 0
	}
	return c.RateLimit.PerUserPerMinute
}

// SignInRatePerMinute returns the per-account sign-in attempt budget, 0 when
// disabled.
func (c *Config) SignInRatePerMinute() int {
	if c.RateLimit == nil || c.RateLimit.SignInPerMinute == 0 {
		return 10
	}
	if c.RateLimit.SignInPerMinute < 0 {
		return 0
	}
	return c.RateLimit.SignInPerMinute
}

// ListenAddr returns the HTTP listen address, defaulting to ":8080".
func (c *Config) ListenAddr() string {
	if c.Listen != "" {
		return c.Listen
	}
	return ":8080"
}

// StorageConfig returns the storage configuration with the local database
// path defaulted from DataDir.
func (c *Config) StorageConfig() storage.Config {
	var cfg storage.Config
	if c.Storage != nil {
		cfg = *c.Storage
	}
	if cfg.Driver == "" {
		cfg.Driver = storage.DefaultDriver
	}
	if cfg.Local.Path == "" {
		cfg.Local.Path = filepath.Join(c.DataDir, "pcrtrack.db")
	}
	return cfg
}

// BackupDir returns the snapshot directory, defaulting under DataDir.
func (c *Config) BackupDir() string {
	if c.Backup != nil && c.Backup.Dir != "" {
		return c.Backup.Dir
	}
	return filepath.Join(c.DataDir, "backups")
}

// BackupSchedule returns the cron spec for snapshots.
func (c *Config) BackupSchedule() string {
	if c.Backup != nil && c.Backup.Schedule != "" {
		return c.Backup.Schedule
	}
	return "0 3 * * *"
}

// BackupKeep returns how many snapshots to retain.
func (c *Config) BackupKeep() int {
	if c.Backup != nil && c.Backup.Keep > 0 {
		return c.Backup.Keep
	}
	return 14
}

// DefaultConfigPath returns the default config file path
// (~/.pcrtrack/config.json).
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "configs/pcrtrack.json" // fallback for environments without a home dir
	}
	return filepath.Join(home, ".pcrtrack", "config.json")
}

// Load reads a JSON or YAML config file and returns a validated Config.
// The format is detected by file extension: .yml/.yaml for YAML, everything
// else for JSON. Identity keys can be set in the config file or overridden by
// environment variables. Environment variables take precedence.
func Load(path string) (*Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("resolving config path %s: %w", path, err)
	}

	var cfg Config
	data, err := os.ReadFile(resolved)
	switch {
	case os.IsNotExist(err):
		// Missing config file: run on defaults plus environment.
	case err != nil:
		return nil, fmt.Errorf("reading config %s: %w", resolved, err)
	default:
		switch ext := strings.ToLower(filepath.Ext(resolved)); ext {
		case ".yml", ".yaml":
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parsing YAML config %s: %w", resolved, err)
			}
		default:
			if err := json.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parsing JSON config %s: %w", resolved, err)
			}
		}
	}

	applyEnvOverrides(&cfg)

	// Resolve DataDir default.
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			cfg.DataDir = filepath.Join(home, ".pcrtrack", "data")
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// applyEnvOverrides lets environment variables take precedence over file
// values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PCRTRACK_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("PCRTRACK_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("PCRTRACK_DB_DSN"); v != "" {
		if cfg.Storage == nil {
			cfg.Storage = &storage.Config{}
		}
		cfg.Storage.Driver = storage.DriverPostgres
		cfg.Storage.Postgres.DSN = v
	}
	if v := os.Getenv("PCRTRACK_AUTH_URL"); v != "" {
		cfg.Identity.BaseURL = v
	}
	if v := os.Getenv("PCRTRACK_ANON_KEY"); v != "" {
		cfg.Identity.AnonKey = v
	}
	if v := os.Getenv("PCRTRACK_SERVICE_KEY"); v != "" {
		cfg.Identity.ServiceKey = v
	}
	if v := os.Getenv("PCRTRACK_JWT_SECRET"); v != "" {
		cfg.Identity.JWTSecret = v
	}
	if v := os.Getenv("PCRTRACK_BOOTSTRAP_EMAIL"); v != "" {
		cfg.Identity.BootstrapEmail = v
	}
	if v := os.Getenv("PCRTRACK_ADMIN_SECRET"); v != "" {
		cfg.Identity.AdminSharedSecret = v
	}
}

func (c *Config) validate() error {
	if c.Storage != nil {
		switch c.Storage.Driver {
		case "", storage.DriverLocal, storage.DriverPostgres:
		default:
			return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
		}
		if c.Storage.Driver == storage.DriverPostgres && c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage driver %q requires a DSN", storage.DriverPostgres)
		}
	}
	if c.Identity.BaseURL != "" && c.Identity.JWTSecret == "" {
		return fmt.Errorf("identity.base_url is set but identity.jwt_secret is empty")
	}
	return nil
}

// resolvePath expands ~ to the user home directory.
func resolvePath(path string) (string, error) {
	if path == "" {
		return DefaultConfigPath(), nil
	}
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}
