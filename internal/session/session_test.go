package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"

	"screentime/internal/config"
	"screentime/internal/database"
	"screentime/internal/models"
)

func testConfig(t *testing.T, storageType string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Type = storageType
	cfg.Ledger.TimeZone = "UTC"
	cfg.Ledger.RetryBackoff = 0
	switch storageType {
	case config.StorageSQLite:
		cfg.Storage.Path = filepath.Join(t.TempDir(), "usage.db")
	case config.StorageJSON:
		cfg.Storage.Path = filepath.Join(t.TempDir(), "usage.json")
	case config.StorageRedis:
		mr := miniredis.RunT(t)
		cfg.Storage.Redis.Host = mr.Addr()
		cfg.Storage.Redis.Port = 0
	}
	return cfg
}

func TestSessionRoundTrip(t *testing.T) {
	for _, typ := range []string{config.StorageSQLite, config.StorageJSON, config.StorageRedis} {
		t.Run(typ, func(t *testing.T) {
			ctx := context.Background()
			cfg := testConfig(t, typ)
			base := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

			s, err := Open(ctx, cfg, zerolog.Nop())
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			s.now = func() time.Time { return base.Add(90 * time.Second) }

			s.Ledger.Observe(ctx, "Editor", base)
			s.Ledger.Observe(ctx, "Browser", base.Add(60*time.Second))
			if err := s.Close(ctx); err != nil {
				t.Fatalf("Close() error = %v", err)
			}

			// redis keeps state in miniredis, files on disk
			s, err = Open(ctx, cfg, zerolog.Nop())
			if err != nil {
				t.Fatalf("reopen error = %v", err)
			}
			defer s.Store.Close()

			got := s.Ledger.Query("2024-03-10", "2024-03-10")
			want := models.DayUsage{"Editor": 60, "Browser": 30}
			for app, secs := range want {
				if got["2024-03-10"][app] != secs {
					t.Errorf("%s = %v, want %v", app, got["2024-03-10"][app], secs)
				}
			}
		})
	}
}

func TestOpenAppliesSeedOnce(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, config.StorageJSON)
	seed := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(seed, []byte("categories:\n  Social: [discord]\n  Utility: [code]\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg.Categories.SeedFile = seed

	s, err := Open(ctx, cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if got := s.Classifier.Classify("discord"); got != "Social" {
		t.Errorf("Classify(discord) = %s, want Social", got)
	}
	if err := s.Classifier.Assign(ctx, "discord", "Entertainment"); err != nil {
		t.Fatal(err)
	}
	s.Store.Close()

	s, err = Open(ctx, cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer s.Store.Close()
	if got := s.Classifier.Classify("discord"); got != "Entertainment" {
		t.Errorf("Classify(discord) after reopen = %s, want Entertainment", got)
	}
}

func TestOpenUnknownStorage(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Type = "bolt"
	if _, err := Open(context.Background(), cfg, zerolog.Nop()); err == nil {
		t.Error("Open() expected error for unknown storage type")
	}
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, config.StorageSQLite)
	s, err := Open(ctx, cfg, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Store.Close()

	base := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	s.Ledger.Observe(ctx, "Editor", base)
	s.Ledger.Observe(ctx, "Browser", base.Add(time.Minute))

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if days := s.Ledger.Days(); len(days) != 0 {
		t.Errorf("Days() = %v after Clear", days)
	}
	table, err := s.Store.Usage().LoadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(table) != 0 {
		t.Errorf("stored usage = %v after Clear", table)
	}
}

func TestRecordError(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, config.StorageSQLite)
	s, err := Open(ctx, cfg, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Store.Close()

	s.RecordError(ctx, "probe", os.ErrDeadlineExceeded)

	repo := s.Store.(*database.Repository)
	logs, err := repo.RecentErrors(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 || logs[0].Component != "probe" {
		t.Errorf("RecentErrors() = %+v", logs)
	}
}
