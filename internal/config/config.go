package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override the file, typically set from a
// .env file next to the binary.
const (
	EnvSheetID          = "CLASSFINDER_SHEET_ID"
	EnvListen           = "CLASSFINDER_LISTEN"
	EnvInvalidateSecret = "CLASSFINDER_INVALIDATE_SECRET"
	EnvRedisAddr        = "CLASSFINDER_REDIS_ADDR"
	EnvRedisPassword    = "CLASSFINDER_REDIS_PASSWORD"
	EnvLogLevel         = "CLASSFINDER_LOG_LEVEL"
)

// TabsConfig maps each weekday to its sheet tab identifier (a numeric gid
// or a tab name).
type TabsConfig struct {
	Monday    string `yaml:"monday" json:"monday" validate:"required"`
	Tuesday   string `yaml:"tuesday" json:"tuesday" validate:"required"`
	Wednesday string `yaml:"wednesday" json:"wednesday" validate:"required"`
	Thursday  string `yaml:"thursday" json:"thursday" validate:"required"`
	Friday    string `yaml:"friday" json:"friday" validate:"required"`
}

// List returns the tab identifiers in Monday..Friday order.
func (t TabsConfig) List() []string {
	return []string{t.Monday, t.Tuesday, t.Wednesday, t.Thursday, t.Friday}
}

// SheetConfig describes the upstream spreadsheet.
type SheetConfig struct {
	// ID is the spreadsheet document ID from its URL.
	ID      string `yaml:"id" json:"id" validate:"required"`
	BaseURL string `yaml:"base_url" json:"base_url" validate:"required,url"`
	// Format is the GViz export to read: "json" or "html".
	Format  string        `yaml:"format" json:"format" validate:"oneof=json html"`
	Timeout time.Duration `yaml:"timeout" json:"timeout" validate:"gt=0"`

	// RatePerSecond and Burst limit requests to the upstream.
	RatePerSecond float64 `yaml:"rate_per_second" json:"rate_per_second" validate:"gte=0"`
	Burst         int     `yaml:"burst" json:"burst" validate:"gte=0"`

	Tabs TabsConfig `yaml:"tabs" json:"tabs"`
}

// ParserConfig tunes the sheet parser.
type ParserConfig struct {
	// LabLookahead bounds how many blank cells after a lab cell are
	// treated as part of the same session.
	LabLookahead int `yaml:"lab_lookahead" json:"lab_lookahead" validate:"min=1,max=20"`
}

// CacheConfig selects and tunes the response cache.
type CacheConfig struct {
	TTL     time.Duration `yaml:"ttl" json:"ttl" validate:"gt=0"`
	Backend string        `yaml:"backend" json:"backend" validate:"oneof=memory redis"`

	RedisAddr     string `yaml:"redis_addr,omitempty" json:"redis_addr,omitempty" validate:"required_if=Backend redis"`
	RedisPassword string `yaml:"redis_password,omitempty" json:"-"`
	RedisDB       int    `yaml:"redis_db,omitempty" json:"redis_db,omitempty"`
	Prefix        string `yaml:"prefix" json:"prefix"`
}

// RoomConfig is optional metadata for a room shown in free-room answers.
type RoomConfig struct {
	Name     string `yaml:"name" json:"name" validate:"required"`
	Capacity int    `yaml:"capacity" json:"capacity" validate:"gte=0"`
	Floor    string `yaml:"floor,omitempty" json:"floor,omitempty"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the Web UI and API.
	Listen string `yaml:"listen" json:"listen" validate:"required"`

	// Timezone is the IANA timezone of the institution; it decides what
	// "today" means and anchors calendar exports.
	Timezone string `yaml:"timezone" json:"timezone" validate:"required"`

	LogLevel string `yaml:"log_level" json:"log_level" validate:"oneof=debug info warn error"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// used to warm the cache. Empty disables the refresh job.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	Sheet  SheetConfig  `yaml:"sheet" json:"sheet"`
	Parser ParserConfig `yaml:"parser" json:"parser"`
	Cache  CacheConfig  `yaml:"cache" json:"cache"`

	// FreeRoomsLimit caps the rooms listed per free time range.
	FreeRoomsLimit int `yaml:"free_rooms_limit" json:"free_rooms_limit" validate:"min=1"`

	// InvalidateSecret guards the cache invalidation hook. Empty disables
	// the hook.
	InvalidateSecret string `yaml:"invalidate_secret,omitempty" json:"-"`

	// ExportWeeks is how many weekly occurrences a calendar export spans.
	ExportWeeks int `yaml:"export_weeks" json:"export_weeks" validate:"min=1,max=52"`

	Rooms []RoomConfig `yaml:"rooms" json:"rooms" validate:"dive"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      "127.0.0.1:8080",
		Timezone:    "Asia/Karachi",
		LogLevel:    "info",
		RefreshCron: "*/15 * * * *",
		Sheet: SheetConfig{
			BaseURL:       "https://docs.google.com/spreadsheets/d",
			Format:        "json",
			Timeout:       15 * time.Second,
			RatePerSecond: 2,
			Burst:         5,
			Tabs: TabsConfig{
				Monday:    "Monday",
				Tuesday:   "Tuesday",
				Wednesday: "Wednesday",
				Thursday:  "Thursday",
				Friday:    "Friday",
			},
		},
		Parser: ParserConfig{LabLookahead: 5},
		Cache: CacheConfig{
			TTL:     time.Minute,
			Backend: "memory",
			Prefix:  "classfinder:",
		},
		FreeRoomsLimit: 5,
		ExportWeeks:    16,
		Rooms:          []RoomConfig{},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.Sheet.BaseURL == "" {
		c.Sheet.BaseURL = d.Sheet.BaseURL
	}
	if c.Sheet.Format == "" {
		c.Sheet.Format = d.Sheet.Format
	}
	if c.Sheet.Timeout <= 0 {
		c.Sheet.Timeout = d.Sheet.Timeout
	}
	if c.Sheet.Tabs.Monday == "" && c.Sheet.Tabs.Tuesday == "" && c.Sheet.Tabs.Wednesday == "" &&
		c.Sheet.Tabs.Thursday == "" && c.Sheet.Tabs.Friday == "" {
		c.Sheet.Tabs = d.Sheet.Tabs
	}
	if c.Parser.LabLookahead <= 0 {
		c.Parser.LabLookahead = d.Parser.LabLookahead
	}
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = d.Cache.TTL
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = d.Cache.Backend
	}
	if c.Cache.Prefix == "" {
		c.Cache.Prefix = d.Cache.Prefix
	}
	if c.FreeRoomsLimit <= 0 {
		c.FreeRoomsLimit = d.FreeRoomsLimit
	}
	if c.ExportWeeks <= 0 {
		c.ExportWeeks = d.ExportWeeks
	}
	if c.Rooms == nil {
		c.Rooms = []RoomConfig{}
	}
}

// ApplyEnv loads envFile (if it exists) into the process environment and
// applies CLASSFINDER_* overrides. A missing envFile is not an error.
func (c *Config) ApplyEnv(envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	if v := os.Getenv(EnvSheetID); v != "" {
		c.Sheet.ID = v
	}
	if v := os.Getenv(EnvListen); v != "" {
		c.Listen = v
	}
	if v := os.Getenv(EnvInvalidateSecret); v != "" {
		c.InvalidateSecret = v
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		c.Cache.RedisAddr = v
		c.Cache.Backend = "redis"
	}
	if v := os.Getenv(EnvRedisPassword); v != "" {
		c.Cache.RedisPassword = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	return nil
}

// Validate checks field constraints and that the timezone exists.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid config: timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// Location returns the configured timezone, or time.Local when it cannot
// be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// RoomIndex returns room metadata keyed by room name.
func (c *Config) RoomIndex() map[string]RoomConfig {
	out := make(map[string]RoomConfig, len(c.Rooms))
	for _, r := range c.Rooms {
		out[r.Name] = r
	}
	return out
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
//
// Load does not validate; the caller applies env overrides first and then
// calls Validate.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600, since the file may hold the
//     invalidation secret and the Redis password.
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

	tmp, err := os.CreateTemp(dir, ".classfinder-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
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

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}

// String renders a loggable summary without secrets.
func (c *Config) String() string {
	return "listen=" + c.Listen +
		" timezone=" + c.Timezone +
		" sheet=" + c.Sheet.ID +
		" format=" + c.Sheet.Format +
		" cache=" + c.Cache.Backend +
		" ttl=" + c.Cache.TTL.String() +
		" refresh=" + c.RefreshCron +
		" rooms=" + strconv.Itoa(len(c.Rooms)) +
		" lab_lookahead=" + strconv.Itoa(c.Parser.LabLookahead)
}
