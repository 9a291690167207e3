package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	appLog "github.com/albacostas/planificadorFecha/internal/log"
)

const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// Environment variables applied after the YAML file.
const (
	EnvEnvironment = "PLANNER_ENV"
	EnvDSN         = "PLANNER_DB_DSN"
	EnvStorage     = "PLANNER_STORAGE"
	EnvListen      = "PLANNER_LISTEN"
)

// SubscriptionConfig is a remote ICS feed merged into the store.
type SubscriptionConfig struct {
	ID  string `yaml:"id" json:"id"`
	URL string `yaml:"url" json:"url"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Backend is "file" (default) or "postgres".
	Backend string `yaml:"backend" json:"backend"`
	// Path is the JSON document used by the file backend.
	Path string `yaml:"path" json:"path"`
	// DSN is the Postgres connection string.
	DSN string `yaml:"dsn" json:"-"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone used for "today" and display (e.g. "Europe/Madrid").
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart is "monday" (default) or "sunday".
	WeekStart string `yaml:"week_start" json:"week_start"`

	// HorizonDays bounds open-ended recurrences, counted from today.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	// StaleAfter forces re-expansion of the occurrence cache. Go duration syntax.
	StaleAfter string `yaml:"stale_after" json:"stale_after"`

	// Refresh is the cron spec for the nightly re-expansion.
	Refresh string `yaml:"refresh" json:"refresh"`

	// SaveRetry is the cron spec for retrying a failed save.
	SaveRetry string `yaml:"save_retry" json:"save_retry"`

	// SyncCron is the cron spec for pulling subscriptions. Empty disables it.
	SyncCron string `yaml:"sync" json:"sync"`

	// SeedDefaults loads the bundled sample data when nothing is stored yet.
	SeedDefaults *bool `yaml:"seed_defaults" json:"seed_defaults"`

	Storage StorageConfig `yaml:"storage" json:"storage"`

	LogLevel    string `yaml:"log_level" json:"log_level"`
	Environment string `yaml:"environment" json:"environment"`

	Subscriptions []SubscriptionConfig `yaml:"subscriptions" json:"subscriptions"`

	// BasicAuth, if set, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"-"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Normalize()
	return cfg
}

// Normalize fills in missing/zero values so partially-filled files still
// behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Timezone == "" {
		c.Timezone = "Europe/Madrid"
	}
	switch strings.ToLower(c.WeekStart) {
	case "monday", "sunday":
		c.WeekStart = strings.ToLower(c.WeekStart)
	default:
		c.WeekStart = "monday"
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = 730
	}
	if d, err := time.ParseDuration(c.StaleAfter); err != nil || d <= 0 {
		c.StaleAfter = "1h"
	}
	if c.Refresh == "" {
		c.Refresh = "0 0 * * *"
	}
	if c.SaveRetry == "" {
		c.SaveRetry = "@every 1m"
	}
	if c.SeedDefaults == nil {
		seed := true
		c.SeedDefaults = &seed
	}
	switch strings.ToLower(c.Storage.Backend) {
	case BackendPostgres:
		c.Storage.Backend = BackendPostgres
	default:
		c.Storage.Backend = BackendFile
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "data/planner.json"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Subscriptions == nil {
		c.Subscriptions = []SubscriptionConfig{}
	}
	for i := range c.Subscriptions {
		if c.Subscriptions[i].ID == "" {
			c.Subscriptions[i].ID = fmt.Sprintf("sub-%d", i+1)
		}
	}
}

// Validate reports settings Normalize cannot repair.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	if c.Storage.Backend == BackendPostgres && c.Storage.DSN == "" {
		return errors.New("config: storage.dsn (or " + EnvDSN + ") is required for the postgres backend")
	}
	for _, s := range c.Subscriptions {
		if s.URL == "" {
			return fmt.Errorf("config: subscription %s has no url", s.ID)
		}
	}
	return nil
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", c.Timezone)
		return time.Local
	}
	return loc
}

// StaleAfterDuration parses StaleAfter. Normalize guarantees it is valid.
func (c *Config) StaleAfterDuration() time.Duration {
	d, err := time.ParseDuration(c.StaleAfter)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

func (c *Config) Seed() bool {
	return c.SeedDefaults == nil || *c.SeedDefaults
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - Otherwise the YAML is read and normalized.
//   - In both cases environment overrides (optionally from a .env file in
//     the working directory) are applied last and are never written back.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	cfg, err := loadFile(path)
	if err != nil {
		return cfg, err
	}
	applyEnv(cfg)
	cfg.Normalize()
	return cfg, nil
}

func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			appLog.Info("config created with defaults", "path", path)
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	cfg.Normalize()
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if err := godotenv.Load(".env"); err == nil {
		appLog.Info("loaded environment overrides from .env")
	}
	if v := os.Getenv(EnvEnvironment); v != "" {
		cfg.Environment = v
	}
	if v := os.Getenv(EnvDSN); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv(EnvStorage); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv(EnvListen); v != "" {
		cfg.Listen = v
	}
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".planner-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
