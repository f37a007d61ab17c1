package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := Default()
	if cfg.Tracker.PollInterval != want.Tracker.PollInterval {
		t.Errorf("PollInterval = %v, want %v", cfg.Tracker.PollInterval, want.Tracker.PollInterval)
	}
	if cfg.Ledger.UpsertRetries != want.Ledger.UpsertRetries {
		t.Errorf("UpsertRetries = %d, want %d", cfg.Ledger.UpsertRetries, want.Ledger.UpsertRetries)
	}
	if cfg.Report.DetailThreshold != want.Report.DetailThreshold {
		t.Errorf("DetailThreshold = %v, want %v", cfg.Report.DetailThreshold, want.Report.DetailThreshold)
	}
	if cfg.Categories.Colors["social"] != "#9B86BD" {
		t.Errorf("social color = %q", cfg.Categories.Colors["social"])
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
storage:
  type: json
  path: /tmp/usage.json
tracker:
  poll_interval: 100ms
ledger:
  split_at_midnight: true
probe:
  backend: static
  static_name: editor
web:
  port: 9000
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Storage.Type != StorageJSON {
		t.Errorf("Storage.Type = %q, want json", cfg.Storage.Type)
	}
	if cfg.Tracker.PollInterval != 100*time.Millisecond {
		t.Errorf("PollInterval = %v, want 100ms", cfg.Tracker.PollInterval)
	}
	if !cfg.Ledger.SplitAtMidnight {
		t.Error("SplitAtMidnight = false, want true")
	}
	if cfg.Probe.StaticName != "editor" {
		t.Errorf("StaticName = %q, want editor", cfg.Probe.StaticName)
	}
	if cfg.Web.Port != 9000 {
		t.Errorf("Web.Port = %d, want 9000", cfg.Web.Port)
	}
	// untouched keys keep defaults
	if cfg.Tracker.ProbeTimeout != 250*time.Millisecond {
		t.Errorf("ProbeTimeout = %v, want 250ms", cfg.Tracker.ProbeTimeout)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SCREENTIME_WEB_PORT", "9100")
	t.Setenv("SCREENTIME_STORAGE_TYPE", "redis")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Web.Port != 9100 {
		t.Errorf("Web.Port = %d, want 9100", cfg.Web.Port)
	}
	if cfg.Storage.Type != StorageRedis {
		t.Errorf("Storage.Type = %q, want redis", cfg.Storage.Type)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("storage:\n  type: bolt\n"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "unknown storage type") {
		t.Fatalf("Load() error = %v, want unknown storage type", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"poll too fast", func(c *Config) { c.Tracker.PollInterval = time.Millisecond }, true},
		{"poll too slow", func(c *Config) { c.Tracker.PollInterval = time.Minute }, true},
		{"zero probe timeout", func(c *Config) { c.Tracker.ProbeTimeout = 0 }, true},
		{"negative retries", func(c *Config) { c.Ledger.UpsertRetries = -1 }, true},
		{"bad timezone", func(c *Config) { c.Ledger.TimeZone = "Mars/Olympus" }, true},
		{"utc timezone", func(c *Config) { c.Ledger.TimeZone = "UTC" }, false},
		{"bad backend", func(c *Config) { c.Probe.Backend = "quartz" }, true},
		{"bad identify", func(c *Config) { c.Probe.IdentifyBy = "pid" }, true},
		{"bad week start", func(c *Config) { c.Report.WeekStart = "friday" }, true},
		{"threshold one", func(c *Config) { c.Report.DetailThreshold = 1 }, true},
		{"port zero", func(c *Config) { c.Web.Port = 0 }, true},
		{"empty pid", func(c *Config) { c.Daemon.PIDFile = "" }, true},
		{"idle without label", func(c *Config) { c.Tracker.TrackIdle = true; c.Tracker.IdleLabel = "" }, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, true},
		{"redis no host", func(c *Config) { c.Storage.Type = StorageRedis; c.Storage.Redis.Host = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStoragePath(t *testing.T) {
	cfg := Default()
	cfg.Storage.Path = "/data/x.db"
	if got, _ := cfg.StoragePath(); got != "/data/x.db" {
		t.Errorf("StoragePath() = %q", got)
	}

	t.Setenv("HOME", "/home/tester")
	cfg.Storage.Path = ""
	got, err := cfg.StoragePath()
	if err != nil {
		t.Fatal(err)
	}
	if got != "/home/tester/.config/screentime/screentime.db" {
		t.Errorf("StoragePath() = %q", got)
	}

	cfg.Storage.Type = StorageJSON
	got, _ = cfg.StoragePath()
	if filepath.Base(got) != "app_usage_data.json" {
		t.Errorf("StoragePath() = %q", got)
	}
}
