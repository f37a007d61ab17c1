package ledger

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog"

	"screentime/internal/metrics"
	"screentime/internal/models"
)

// memStore is an in-memory storage.UsageStore that can be told to fail.
type memStore struct {
	rows     models.UsageTable
	failNext int // number of upcoming Upsert calls to fail
	calls    int
}

func newMemStore() *memStore {
	return &memStore{rows: make(models.UsageTable)}
}

func (m *memStore) LoadAll(ctx context.Context) (models.UsageTable, error) {
	return m.rows.Clone(), nil
}

func (m *memStore) Upsert(ctx context.Context, day, app string, delta float64) error {
	m.calls++
	if m.failNext > 0 {
		m.failNext--
		return errors.New("database is locked")
	}
	m.rows.Add(day, app, delta)
	return nil
}

func (m *memStore) Clear(ctx context.Context) error {
	m.rows = make(models.UsageTable)
	return nil
}

// staticClassifier classifies from a fixed map.
type staticClassifier map[string]string

func (s staticClassifier) Classify(app string) string {
	if c, ok := s[app]; ok {
		return c
	}
	return "Uncategorized"
}

var base = time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)

func at(seconds float64) time.Time {
	return base.Add(time.Duration(seconds * float64(time.Second)))
}

func newTestLedger(store *memStore, cls Classifier, opts Options) *Ledger {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	l := New(store, cls, opts, zerolog.Nop())
	l.sleep = func(context.Context, time.Duration) error { return nil }
	return l
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestScenario(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	l := newTestLedger(store, nil, Options{})

	l.Observe(ctx, "Editor", at(0))
	l.Observe(ctx, "Editor", at(50))
	l.Observe(ctx, "Browser", at(120))
	if err := l.Flush(ctx, at(150)); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	day := models.DayKey(base, time.UTC)
	got := l.Query(day, day)[day]
	if !approx(got["Editor"], 120) || !approx(got["Browser"], 30) || len(got) != 2 {
		t.Errorf("ledger = %v, want Editor:120 Browser:30", got)
	}
	if !approx(store.rows[day]["Editor"], 120) || !approx(store.rows[day]["Browser"], 30) {
		t.Errorf("store = %v, want Editor:120 Browser:30", store.rows[day])
	}
}

func TestConservation(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(newMemStore(), nil, Options{})

	apps := []string{"a", "b", "a", "c", "c", "b", "a", "a", "d"}
	for i, app := range apps {
		l.Observe(ctx, app, at(float64(i*37)))
	}
	last := float64((len(apps) - 1) * 37)

	// the final pending session is not yet credited
	pending, ok := l.Pending()
	if !ok || pending.App != "d" {
		t.Fatalf("Pending() = %v, %v", pending, ok)
	}
	total := l.Query("0000-01-01", "9999-12-31").Total()
	if !approx(total, last) {
		t.Errorf("credited %v, want %v", total, last)
	}
}

func TestRepeatedObservationIsNoop(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	l := newTestLedger(store, nil, Options{})

	for i := 0; i < 10; i++ {
		l.Observe(ctx, "Editor", at(float64(i)))
	}
	if total := l.Query("0000-01-01", "9999-12-31").Total(); total != 0 {
		t.Errorf("credited %v, want 0", total)
	}
	if store.calls != 0 {
		t.Errorf("Upsert calls = %d, want 0", store.calls)
	}
}

func TestFlushRebasesSession(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(newMemStore(), nil, Options{})
	day := models.DayKey(base, time.UTC)

	l.Observe(ctx, "Editor", at(0))
	if err := l.Flush(ctx, at(40)); err != nil {
		t.Fatal(err)
	}
	if got := l.Query(day, day)[day]["Editor"]; !approx(got, 40) {
		t.Fatalf("after flush Editor = %v, want 40", got)
	}

	// the next credit starts from the flush instant, not the original start
	l.Observe(ctx, "Browser", at(100))
	if got := l.Query(day, day)[day]["Editor"]; !approx(got, 100) {
		t.Errorf("Editor = %v, want 100", got)
	}

	pending, _ := l.Pending()
	if pending.App != "Browser" || !pending.Start.Equal(at(100)) {
		t.Errorf("Pending() = %+v", pending)
	}
}

func TestFlushWithoutObservation(t *testing.T) {
	l := newTestLedger(newMemStore(), nil, Options{})
	if err := l.Flush(context.Background(), at(10)); err != nil {
		t.Errorf("Flush() error = %v", err)
	}
}

func TestEmptyAppIsSentinel(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(newMemStore(), nil, Options{})
	day := models.DayKey(base, time.UTC)

	l.Observe(ctx, "", at(0))
	l.Observe(ctx, "Editor", at(5))
	if got := l.Query(day, day)[day][models.NoFocusedWindow]; !approx(got, 5) {
		t.Errorf("%s = %v, want 5", models.NoFocusedWindow, got)
	}
}

func TestBackwardsClockCreditsNothing(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(newMemStore(), nil, Options{})

	l.Observe(ctx, "Editor", at(100))
	l.Observe(ctx, "Browser", at(50))
	if total := l.Query("0000-01-01", "9999-12-31").Total(); total != 0 {
		t.Errorf("credited %v, want 0", total)
	}
	pending, _ := l.Pending()
	if pending.App != "Browser" {
		t.Errorf("Pending().App = %q, want Browser", pending.App)
	}
}

func TestQueryRange(t *testing.T) {
	l := newTestLedger(newMemStore(), nil, Options{})
	l.table.Add("2024-03-09", "a", 1)
	l.table.Add("2024-03-10", "a", 2)
	l.table.Add("2024-03-11", "a", 3)

	tests := []struct {
		name       string
		start, end string
		wantDays   int
	}{
		{"single day", "2024-03-10", "2024-03-10", 1},
		{"inclusive", "2024-03-09", "2024-03-11", 3},
		{"no data", "2024-04-01", "2024-04-30", 0},
		{"reversed", "2024-03-11", "2024-03-09", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := l.Query(tt.start, tt.end); len(got) != tt.wantDays {
				t.Errorf("Query() = %v, want %d days", got, tt.wantDays)
			}
		})
	}

	// results are copies
	q := l.Query("2024-03-10", "2024-03-10")
	q["2024-03-10"]["a"] = 999
	if l.Query("2024-03-10", "2024-03-10")["2024-03-10"]["a"] != 2 {
		t.Error("Query() result aliases ledger state")
	}
}

func TestCategoryRollupConsistency(t *testing.T) {
	cls := staticClassifier{"discord": "Social", "code": "Utility"}
	l := newTestLedger(newMemStore(), cls, Options{})
	l.table.Add("2024-03-10", "discord", 60)
	l.table.Add("2024-03-10", "code", 300)
	l.table.Add("2024-03-10", "steam", 45)
	l.table.Add("2024-03-11", "discord", 10)

	usage := l.Query("2024-03-10", "2024-03-11")
	rollup := l.CategoryRollup("2024-03-10", "2024-03-11")
	for day := range usage {
		if !approx(usage[day].Total(), rollup[day].Total()) {
			t.Errorf("%s: apps %v != categories %v", day, usage[day].Total(), rollup[day].Total())
		}
	}
	if got := rollup["2024-03-10"]["Uncategorized"]; got != 45 {
		t.Errorf("Uncategorized = %v, want 45", got)
	}
}

func TestRetroactiveClassification(t *testing.T) {
	cls := staticClassifier{}
	l := newTestLedger(newMemStore(), cls, Options{})
	l.table.Add("2024-03-09", "discord", 20)
	l.table.Add("2024-03-10", "discord", 30)

	before := l.Query("2024-03-09", "2024-03-10")
	if got := l.CategoryRollup("2024-03-09", "2024-03-10")["2024-03-09"]["Uncategorized"]; got != 20 {
		t.Fatalf("Uncategorized = %v, want 20", got)
	}

	cls["discord"] = "Social"
	rollup := l.CategoryRollup("2024-03-09", "2024-03-10")
	if rollup["2024-03-09"]["Social"] != 20 || rollup["2024-03-10"]["Social"] != 30 {
		t.Errorf("rollup = %v, want Social on both days", rollup)
	}
	if _, ok := rollup["2024-03-10"]["Uncategorized"]; ok {
		t.Errorf("rollup still has Uncategorized: %v", rollup)
	}

	after := l.Query("2024-03-09", "2024-03-10")
	if after.Total() != before.Total() {
		t.Errorf("Query changed after classification: %v -> %v", before, after)
	}
}

func TestUpsertRetrySucceeds(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.failNext = 2
	l := newTestLedger(store, nil, Options{UpsertRetries: 3})
	day := models.DayKey(base, time.UTC)

	l.Observe(ctx, "Editor", at(0))
	l.Observe(ctx, "Browser", at(10))

	if l.Held() != 0 {
		t.Errorf("Held() = %d, want 0", l.Held())
	}
	if store.calls != 3 {
		t.Errorf("Upsert calls = %d, want 3", store.calls)
	}
	if !approx(store.rows[day]["Editor"], 10) {
		t.Errorf("stored Editor = %v, want 10", store.rows[day]["Editor"])
	}
}

func TestHeldCreditRetriedNextTick(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.failNext = 2
	l := newTestLedger(store, nil, Options{UpsertRetries: 1})
	day := models.DayKey(base, time.UTC)

	l.Observe(ctx, "Editor", at(0))
	l.Observe(ctx, "Browser", at(10))

	if l.Held() != 1 {
		t.Fatalf("Held() = %d, want 1", l.Held())
	}
	// in-memory state already reflects the credit
	if got := l.Query(day, day)[day]["Editor"]; !approx(got, 10) {
		t.Errorf("ledger Editor = %v, want 10", got)
	}
	if _, ok := store.rows[day]["Editor"]; ok {
		t.Fatal("credit persisted despite failures")
	}

	// next tick with no transition drains the held credit
	l.Observe(ctx, "Browser", at(11))
	if l.Held() != 0 {
		t.Errorf("Held() = %d, want 0", l.Held())
	}
	if !approx(store.rows[day]["Editor"], 10) {
		t.Errorf("stored Editor = %v, want 10", store.rows[day]["Editor"])
	}
}

func TestFlushReportsHeldCredits(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	l := newTestLedger(store, nil, Options{UpsertRetries: 0})

	l.Observe(ctx, "Editor", at(0))
	store.failNext = 2
	if err := l.Flush(ctx, at(5)); err == nil {
		t.Error("Flush() expected error while credits are held")
	}
}

func TestMidnightAttribution(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, 3, 10, 23, 50, 0, 0, time.UTC)
	end := time.Date(2024, 3, 11, 0, 10, 0, 0, time.UTC)

	t.Run("credit day", func(t *testing.T) {
		l := newTestLedger(newMemStore(), nil, Options{})
		l.Observe(ctx, "Editor", start)
		l.Observe(ctx, "Browser", end)

		usage := l.Query("2024-03-10", "2024-03-11")
		if _, ok := usage["2024-03-10"]; ok {
			t.Errorf("session credited to start day: %v", usage)
		}
		if got := usage["2024-03-11"]["Editor"]; !approx(got, 1200) {
			t.Errorf("2024-03-11 Editor = %v, want 1200", got)
		}
	})

	t.Run("split", func(t *testing.T) {
		store := newMemStore()
		l := newTestLedger(store, nil, Options{SplitAtMidnight: true})
		l.Observe(ctx, "Editor", start)
		l.Observe(ctx, "Browser", end)

		usage := l.Query("2024-03-10", "2024-03-11")
		if got := usage["2024-03-10"]["Editor"]; !approx(got, 600) {
			t.Errorf("2024-03-10 Editor = %v, want 600", got)
		}
		if got := usage["2024-03-11"]["Editor"]; !approx(got, 600) {
			t.Errorf("2024-03-11 Editor = %v, want 600", got)
		}
		if !approx(store.rows.Total(), 1200) {
			t.Errorf("stored total = %v, want 1200", store.rows.Total())
		}
	})

	t.Run("split multiple days", func(t *testing.T) {
		l := newTestLedger(newMemStore(), nil, Options{SplitAtMidnight: true})
		l.Observe(ctx, "Editor", start)
		l.Observe(ctx, "Browser", start.Add(48*time.Hour))

		usage := l.Query("2024-03-10", "2024-03-12")
		if len(usage) != 3 {
			t.Fatalf("days = %v, want 3", usage)
		}
		if got := usage["2024-03-11"]["Editor"]; !approx(got, 86400) {
			t.Errorf("2024-03-11 Editor = %v, want 86400", got)
		}
		if !approx(usage.Total(), 48*3600) {
			t.Errorf("total = %v, want %v", usage.Total(), 48*3600)
		}
	})
}

func TestLoadSkipsMalformedRows(t *testing.T) {
	store := newMemStore()
	store.rows.Add("2024-03-10", "Editor", 100)
	store.rows.Add("2024-03-10", "Broken", -5)
	store.rows.Add("not-a-day", "Editor", 5)

	l, err := Load(context.Background(), store, nil, Options{Location: time.UTC}, zerolog.Nop())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	got := l.Query("0000-01-01", "9999-12-31")
	if len(got) != 1 || got["2024-03-10"]["Editor"] != 100 || len(got["2024-03-10"]) != 1 {
		t.Errorf("Load() table = %v", got)
	}
	if days := l.Days(); len(days) != 1 || days[0] != "2024-03-10" {
		t.Errorf("Days() = %v", days)
	}
}

func TestPersistedRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	l := newTestLedger(store, nil, Options{})

	apps := []string{"a", "b", "a", "b", "c"}
	for i, app := range apps {
		l.Observe(ctx, app, at(float64(i*10)))
	}
	if err := l.Flush(ctx, at(100)); err != nil {
		t.Fatal(err)
	}

	reloaded, err := Load(ctx, store, nil, Options{Location: time.UTC}, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	want := l.Query("0000-01-01", "9999-12-31")
	got := reloaded.Query("0000-01-01", "9999-12-31")
	for day, apps := range want {
		for app, s := range apps {
			if !approx(got[day][app], s) {
				t.Errorf("%s/%s = %v, want %v", day, app, got[day][app], s)
			}
		}
	}
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(newMemStore(), nil, Options{})
	l.Observe(ctx, "a", at(0))
	l.Observe(ctx, "b", at(1))
	l.Reset()
	if len(l.Query("0000-01-01", "9999-12-31")) != 0 {
		t.Error("Reset() left usage behind")
	}
	if _, ok := l.Pending(); ok {
		t.Error("Reset() left a pending session")
	}
}

func creditedSeconds(t *testing.T, category string) float64 {
	t.Helper()
	var m dto.Metric
	if err := metrics.CreditedSeconds.WithLabelValues(category).Write(&m); err != nil {
		t.Fatal(err)
	}
	return m.GetCounter().GetValue()
}

func TestCreditedSecondsByCategory(t *testing.T) {
	ctx := context.Background()
	cls := staticClassifier{"Editor": "Focus Work", "Editor - notes.txt": "Focus Work"}
	l := newTestLedger(newMemStore(), cls, Options{})

	before := creditedSeconds(t, "Focus Work")
	l.Observe(ctx, "Editor", at(0))
	l.Observe(ctx, "Editor - notes.txt", at(10))
	l.Observe(ctx, "Browser", at(25))

	// distinct names in one category share a series
	if got := creditedSeconds(t, "Focus Work") - before; !approx(got, 25) {
		t.Errorf("credited Focus Work = %v, want 25", got)
	}
}
