package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Storage backend configuration
	Storage StorageConfig `mapstructure:"storage"`

	// Tracker configuration
	Tracker TrackerConfig `mapstructure:"tracker"`

	// Ledger crediting and persistence retry policy
	Ledger LedgerConfig `mapstructure:"ledger"`

	// Focus probe selection
	Probe ProbeConfig `mapstructure:"probe"`

	// Category classifier configuration
	Categories CategoriesConfig `mapstructure:"categories"`

	// Daemon configuration
	Daemon DaemonConfig `mapstructure:"daemon"`

	// Report configuration
	Report ReportConfig `mapstructure:"report"`

	// Web server configuration
	Web WebConfig `mapstructure:"web"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`
}

// Storage backend types
const (
	StorageSQLite = "sqlite"
	StorageJSON   = "json"
	StorageRedis  = "redis"
)

// StorageConfig holds persistence backend configuration
type StorageConfig struct {
	Type  string      `mapstructure:"type"` // sqlite, json or redis
	Path  string      `mapstructure:"path"` // database or flat file path; empty means ~/.config/screentime/<default>
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// TrackerConfig holds polling behavior configuration
type TrackerConfig struct {
	PollInterval    time.Duration `mapstructure:"poll_interval"`     // How often to probe the focused window
	MinPollInterval time.Duration `mapstructure:"min_poll_interval"` // Minimum allowed poll interval
	MaxPollInterval time.Duration `mapstructure:"max_poll_interval"` // Maximum allowed poll interval
	ProbeTimeout    time.Duration `mapstructure:"probe_timeout"`     // Probe calls exceeding this report no focused window
	IdleThreshold   time.Duration `mapstructure:"idle_threshold"`    // Time before considering user idle
	TrackIdle       bool          `mapstructure:"track_idle"`        // Attribute idle/locked time to IdleLabel
	IdleLabel       string        `mapstructure:"idle_label"`
}

// LedgerConfig holds crediting policy
type LedgerConfig struct {
	UpsertRetries   int           `mapstructure:"upsert_retries"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
	SplitAtMidnight bool          `mapstructure:"split_at_midnight"`
	TimeZone        string        `mapstructure:"timezone"`
}

// Probe backends
const (
	ProbeAuto    = "auto"
	ProbeX11     = "x11"
	ProbeWayland = "wayland"
	ProbeStatic  = "static"
)

// ProbeConfig selects the focus probe implementation once at startup
type ProbeConfig struct {
	Backend    string `mapstructure:"backend"`     // auto, x11, wayland or static
	IdentifyBy string `mapstructure:"identify_by"` // app or title
	StaticName string `mapstructure:"static_name"` // name reported by the static backend
}

// CategoriesConfig holds classifier settings
type CategoriesConfig struct {
	SeedFile string            `mapstructure:"seed_file"` // optional YAML file applied at startup
	Colors   map[string]string `mapstructure:"colors"`
}

// DaemonConfig holds daemon process configuration
type DaemonConfig struct {
	PIDFile string `mapstructure:"pid_file"` // Path to PID file for daemon management
}

// ReportConfig holds report generation configuration
type ReportConfig struct {
	WeekStart       string  `mapstructure:"week_start"`       // monday or sunday
	DetailThreshold float64 `mapstructure:"detail_threshold"` // minimum share of a day for the detail view
}

// WebConfig holds web server configuration
type WebConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"` // Host to bind web server to
	Port    int    `mapstructure:"port"` // Port for web server
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or text
	File   string `mapstructure:"file"`   // empty means stderr
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Type: StorageSQLite,
			Path: "", // Empty means use default ~/.config/screentime/screentime.db
			Redis: RedisConfig{
				Host:         "localhost",
				Port:         6379,
				KeyPrefix:    "screentime",
				PoolSize:     4,
				DialTimeout:  5 * time.Second,
				ReadTimeout:  3 * time.Second,
				WriteTimeout: 3 * time.Second,
			},
		},
		Tracker: TrackerConfig{
			PollInterval:    500 * time.Millisecond,
			MinPollInterval: 100 * time.Millisecond,
			MaxPollInterval: 5 * time.Second,
			ProbeTimeout:    250 * time.Millisecond,
			IdleThreshold:   300 * time.Second,
			TrackIdle:       false,
			IdleLabel:       "Idle",
		},
		Ledger: LedgerConfig{
			UpsertRetries:   3,
			RetryBackoff:    25 * time.Millisecond,
			SplitAtMidnight: false,
			TimeZone:        "Local",
		},
		Probe: ProbeConfig{
			Backend:    ProbeAuto,
			IdentifyBy: "app",
		},
		Categories: CategoriesConfig{
			Colors: map[string]string{
				"uncategorized": "#606060",
				"utility":       "#3e2c4e",
				"entertainment": "#929292",
				"social":        "#9B86BD",
			},
		},
		Daemon: DaemonConfig{
			PIDFile: "/tmp/screentime.pid",
		},
		Report: ReportConfig{
			WeekStart:       "monday",
			DetailThreshold: 0.01042,
		},
		Web: WebConfig{
			Enabled: false,
			Host:    "localhost",
			Port:    8765,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Storage.Type {
	case StorageSQLite, StorageJSON:
	case StorageRedis:
		if c.Storage.Redis.Host == "" {
			return fmt.Errorf("redis host cannot be empty")
		}
		if c.Storage.Redis.Port < 1 || c.Storage.Redis.Port > 65535 {
			return fmt.Errorf("invalid redis port: %d", c.Storage.Redis.Port)
		}
	default:
		return fmt.Errorf("unknown storage type %q (valid: sqlite, json, redis)", c.Storage.Type)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	// Validate tracker intervals
	if c.Tracker.PollInterval < c.Tracker.MinPollInterval {
		return fmt.Errorf("poll interval (%v) cannot be less than minimum (%v)",
			c.Tracker.PollInterval, c.Tracker.MinPollInterval)
	}

	if c.Tracker.PollInterval > c.Tracker.MaxPollInterval {
		return fmt.Errorf("poll interval (%v) cannot be greater than maximum (%v)",
			c.Tracker.PollInterval, c.Tracker.MaxPollInterval)
	}

	if c.Tracker.ProbeTimeout <= 0 {
		return fmt.Errorf("probe timeout must be positive")
	}

	if c.Tracker.IdleThreshold < 0 {
		return fmt.Errorf("idle threshold cannot be negative")
	}

	if c.Tracker.TrackIdle && c.Tracker.IdleLabel == "" {
		return fmt.Errorf("idle label cannot be empty when idle tracking is enabled")
	}

	if c.Ledger.UpsertRetries < 0 {
		return fmt.Errorf("upsert retries cannot be negative")
	}

	if _, err := c.Location(); err != nil {
		return err
	}

	switch c.Probe.Backend {
	case ProbeAuto, ProbeX11, ProbeWayland:
	case ProbeStatic:
		if c.Probe.StaticName == "" {
			return fmt.Errorf("static probe requires probe.static_name")
		}
	default:
		return fmt.Errorf("unknown probe backend %q", c.Probe.Backend)
	}

	if c.Probe.IdentifyBy != "app" && c.Probe.IdentifyBy != "title" {
		return fmt.Errorf("probe.identify_by must be app or title, got %q", c.Probe.IdentifyBy)
	}

	if c.Report.WeekStart != "monday" && c.Report.WeekStart != "sunday" {
		return fmt.Errorf("report.week_start must be monday or sunday, got %q", c.Report.WeekStart)
	}

	if c.Report.DetailThreshold < 0 || c.Report.DetailThreshold >= 1 {
		return fmt.Errorf("report.detail_threshold must be in [0, 1)")
	}

	// Validate web config
	if c.Web.Port < 1 || c.Web.Port > 65535 {
		return fmt.Errorf("web port must be between 1 and 65535, got %d", c.Web.Port)
	}

	if c.Web.Host == "" {
		return fmt.Errorf("web host cannot be empty")
	}

	// Validate daemon config
	if c.Daemon.PIDFile == "" {
		return fmt.Errorf("PID file path cannot be empty")
	}

	return nil
}

// Location resolves Ledger.TimeZone.
func (c *Config) Location() (*time.Location, error) {
	if c.Ledger.TimeZone == "" || c.Ledger.TimeZone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Ledger.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Ledger.TimeZone, err)
	}
	return loc, nil
}

// SetPollInterval sets the poll interval with validation
func (c *Config) SetPollInterval(interval time.Duration) error {
	if interval < c.Tracker.MinPollInterval {
		return fmt.Errorf("poll interval cannot be less than %v", c.Tracker.MinPollInterval)
	}
	if interval > c.Tracker.MaxPollInterval {
		return fmt.Errorf("poll interval cannot be greater than %v", c.Tracker.MaxPollInterval)
	}
	c.Tracker.PollInterval = interval
	return nil
}

// SetWebPort sets the web server port with validation
func (c *Config) SetWebPort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	c.Web.Port = port
	return nil
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf(`Configuration:
  Storage:
    Type: %s
    Path: %s
  Tracker:
    Poll Interval: %v
    Probe Timeout: %v
    Track Idle: %v
  Ledger:
    Upsert Retries: %d
    Split At Midnight: %v
    Time Zone: %s
  Probe:
    Backend: %s
    Identify By: %s
  Daemon:
    PID File: %s
  Web:
    Enabled: %v
    Host: %s
    Port: %d`,
		c.Storage.Type,
		c.Storage.Path,
		c.Tracker.PollInterval,
		c.Tracker.ProbeTimeout,
		c.Tracker.TrackIdle,
		c.Ledger.UpsertRetries,
		c.Ledger.SplitAtMidnight,
		c.Ledger.TimeZone,
		c.Probe.Backend,
		c.Probe.IdentifyBy,
		c.Daemon.PIDFile,
		c.Web.Enabled,
		c.Web.Host,
		c.Web.Port,
	)
}
