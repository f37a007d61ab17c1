package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	defaultDataDir    = ".config/screentime"
	defaultConfigName = "config.yaml"
	defaultDBName     = "screentime.db"
	defaultJSONName   = "app_usage_data.json"
)

// DefaultConfigPath returns ~/.config/screentime/config.yaml
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return defaultConfigName
	}
	return filepath.Join(home, defaultDataDir, defaultConfigName)
}

// Load loads configuration from file and environment variables.
// A missing config file is not an error; defaults and SCREENTIME_* variables apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v, Default())

	if configPath == "" {
		configPath = DefaultConfigPath()
	}

	// Configure viper
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SCREENTIME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file
	if _, err := os.Stat(configPath); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	// Unmarshal config
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers every field of d so env overrides resolve for keys
// absent from the config file.
func setDefaults(v *viper.Viper, d *Config) {
	// Storage defaults
	v.SetDefault("storage.type", d.Storage.Type)
	v.SetDefault("storage.path", d.Storage.Path)
	v.SetDefault("storage.redis.host", d.Storage.Redis.Host)
	v.SetDefault("storage.redis.port", d.Storage.Redis.Port)
	v.SetDefault("storage.redis.password", d.Storage.Redis.Password)
	v.SetDefault("storage.redis.db", d.Storage.Redis.DB)
	v.SetDefault("storage.redis.key_prefix", d.Storage.Redis.KeyPrefix)
	v.SetDefault("storage.redis.pool_size", d.Storage.Redis.PoolSize)
	v.SetDefault("storage.redis.dial_timeout", d.Storage.Redis.DialTimeout)
	v.SetDefault("storage.redis.read_timeout", d.Storage.Redis.ReadTimeout)
	v.SetDefault("storage.redis.write_timeout", d.Storage.Redis.WriteTimeout)

	// Tracker defaults
	v.SetDefault("tracker.poll_interval", d.Tracker.PollInterval)
	v.SetDefault("tracker.min_poll_interval", d.Tracker.MinPollInterval)
	v.SetDefault("tracker.max_poll_interval", d.Tracker.MaxPollInterval)
	v.SetDefault("tracker.probe_timeout", d.Tracker.ProbeTimeout)
	v.SetDefault("tracker.idle_threshold", d.Tracker.IdleThreshold)
	v.SetDefault("tracker.track_idle", d.Tracker.TrackIdle)
	v.SetDefault("tracker.idle_label", d.Tracker.IdleLabel)

	// Ledger defaults
	v.SetDefault("ledger.upsert_retries", d.Ledger.UpsertRetries)
	v.SetDefault("ledger.retry_backoff", d.Ledger.RetryBackoff)
	v.SetDefault("ledger.split_at_midnight", d.Ledger.SplitAtMidnight)
	v.SetDefault("ledger.timezone", d.Ledger.TimeZone)

	// Probe defaults
	v.SetDefault("probe.backend", d.Probe.Backend)
	v.SetDefault("probe.identify_by", d.Probe.IdentifyBy)
	v.SetDefault("probe.static_name", d.Probe.StaticName)

	// Category defaults
	v.SetDefault("categories.seed_file", d.Categories.SeedFile)
	v.SetDefault("categories.colors", d.Categories.Colors)

	v.SetDefault("daemon.pid_file", d.Daemon.PIDFile)

	v.SetDefault("report.week_start", d.Report.WeekStart)
	v.SetDefault("report.detail_threshold", d.Report.DetailThreshold)

	v.SetDefault("web.enabled", d.Web.Enabled)
	v.SetDefault("web.host", d.Web.Host)
	v.SetDefault("web.port", d.Web.Port)

	// Logging defaults
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file", d.Logging.File)
}

// StoragePath returns the configured storage path, or the per-backend
// default under ~/.config/screentime when unset.
func (c *Config) StoragePath() (string, error) {
	if c.Storage.Path != "" {
		return c.Storage.Path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	name := defaultDBName
	if c.Storage.Type == StorageJSON {
		name = defaultJSONName
	}
	return filepath.Join(homeDir, defaultDataDir, name), nil
}
