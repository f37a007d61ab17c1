package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"screentime/internal/storage"
)

func TestOpenCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "usage.json")
	if _, err := Open(path); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("file not created: %v", err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Errorf("created file is not valid JSON: %v", err)
	}
}

func TestUpsertRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "usage.json")

	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	usage := s.Usage()
	for _, d := range []struct {
		day, app string
		delta    float64
	}{
		{"2024-03-10", "Editor", 120},
		{"2024-03-10", "Editor", 30},
		{"2024-03-10", "Browser", 5},
		{"2024-03-11", "Editor", 1},
	} {
		if err := usage.Upsert(ctx, d.day, d.app, d.delta); err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}
	}
	if err := s.Categories().Set(ctx, "Editor", "Utility"); err != nil {
		t.Fatal(err)
	}

	// a fresh handle sees the durable state
	reopened, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	table, _ := reopened.Usage().LoadAll(ctx)
	if table["2024-03-10"]["Editor"] != 150 || table["2024-03-10"]["Browser"] != 5 || table["2024-03-11"]["Editor"] != 1 {
		t.Errorf("LoadAll() = %v", table)
	}
	cats, _ := reopened.Categories().LoadAll(ctx)
	if cats["Editor"] != "Utility" {
		t.Errorf("categories = %v", cats)
	}
}

func TestLegacyLayout(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "app_usage_data.json")
	legacy := `{"2024-03-10": {"Editor": 100, "Browser": "oops"}, "bad-day": {"x": 1}, "2024-03-11": 7}`
	if err := os.WriteFile(path, []byte(legacy), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	table, _ := s.Usage().LoadAll(ctx)
	if len(table) != 1 || len(table["2024-03-10"]) != 1 || table["2024-03-10"]["Editor"] != 100 {
		t.Errorf("LoadAll() = %v, want only Editor on 2024-03-10", table)
	}

	// the next write migrates the file to the current layout
	if err := s.Usage().Upsert(ctx, "2024-03-10", "Editor", 1); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	if doc.Usage["2024-03-10"]["Editor"] != 101 {
		t.Errorf("migrated usage = %v", doc.Usage)
	}
}

func TestCorruptFileFailsOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path); err == nil {
		t.Error("Open() expected error for corrupt file")
	}
}

func TestUpsertRejectsInvalid(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "usage.json"))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Usage().Upsert(context.Background(), "2024-03-10", "", 1); err == nil {
		t.Error("Upsert() expected error for empty app")
	}
}

func TestCategoryDeleteAndClear(t *testing.T) {
	ctx := context.Background()
	s, err := Open(filepath.Join(t.TempDir(), "usage.json"))
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Categories().Delete(ctx, "ghost"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Delete() error = %v, want ErrNotFound", err)
	}
	_ = s.Categories().Set(ctx, "Editor", "Utility")
	if err := s.Categories().Delete(ctx, "Editor"); err != nil {
		t.Errorf("Delete() error = %v", err)
	}

	_ = s.Usage().Upsert(ctx, "2024-03-10", "Editor", 1)
	if err := s.Usage().Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if table, _ := s.Usage().LoadAll(ctx); len(table) != 0 {
		t.Errorf("LoadAll() after Clear = %v", table)
	}
}

func TestHandlesShareFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "usage.json")

	tracker, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := tracker.Usage().Upsert(ctx, "2024-03-10", "Editor", 100); err != nil {
		t.Fatal(err)
	}

	cli, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := cli.Categories().Set(ctx, "Editor", "Utility"); err != nil {
		t.Fatal(err)
	}

	// writes from either handle keep the other's changes
	if err := tracker.Usage().Upsert(ctx, "2024-03-10", "Browser", 20); err != nil {
		t.Fatal(err)
	}
	if err := cli.Usage().Upsert(ctx, "2024-03-10", "Editor", 5); err != nil {
		t.Fatal(err)
	}

	cats, err := tracker.Categories().LoadAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if cats["Editor"] != "Utility" {
		t.Errorf("tracker sees categories %v, want Editor=Utility", cats)
	}

	fresh, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	table, _ := fresh.Usage().LoadAll(ctx)
	if table["2024-03-10"]["Editor"] != 105 || table["2024-03-10"]["Browser"] != 20 {
		t.Errorf("LoadAll() = %v, want Editor=105 Browser=20", table)
	}
	if cats, _ := fresh.Categories().LoadAll(ctx); cats["Editor"] != "Utility" {
		t.Errorf("categories on disk = %v, want Editor=Utility", cats)
	}
}

func TestUpsertWaitsForLock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.json")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}

	other := flock.New(path + ".lock")
	if err := other.Lock(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := s.Usage().Upsert(ctx, "2024-03-10", "Editor", 1); err == nil {
		t.Fatal("Upsert() succeeded while another holder had the lock")
	}

	if err := other.Unlock(); err != nil {
		t.Fatal(err)
	}
	if err := s.Usage().Upsert(context.Background(), "2024-03-10", "Editor", 1); err != nil {
		t.Errorf("Upsert() after unlock error = %v", err)
	}
}
