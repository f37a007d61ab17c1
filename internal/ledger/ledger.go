// Package ledger turns focus observations into per-day, per-application
// usage totals.
//
// The ledger keeps at most one pending session. Only a transition to a
// different application (or an explicit Flush) credits time; the credit goes
// to the day of the crediting instant unless SplitAtMidnight is set. Every
// credit is applied to the in-memory table immediately and written through
// to the usage store; writes that keep failing are held and retried on the
// next call.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"screentime/internal/metrics"
	"screentime/internal/models"
	"screentime/internal/storage"
)

// Classifier resolves an application's display category.
type Classifier interface {
	Classify(app string) string
}

// Options controls crediting and persistence retries.
type Options struct {
	Location        *time.Location // day boundaries; nil means time.Local
	SplitAtMidnight bool
	UpsertRetries   int
	RetryBackoff    time.Duration
}

// PendingSession is the interval since the last transition.
type PendingSession struct {
	App   string    `json:"app"`
	Start time.Time `json:"start"`
}

type entryKey struct {
	day string
	app string
}

// Ledger is safe for concurrent readers; Observe and Flush are expected to
// be driven from a single polling loop.
type Ledger struct {
	mu         sync.RWMutex
	usage      storage.UsageStore
	classifier Classifier
	opts       Options
	pending    *PendingSession
	table      models.UsageTable
	held       map[entryKey]float64
	logger     zerolog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an empty ledger. usage may be nil for a memory-only ledger.
func New(usage storage.UsageStore, classifier Classifier, opts Options, logger zerolog.Logger) *Ledger {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.UpsertRetries < 0 {
		opts.UpsertRetries = 0
	}
	return &Ledger{
		usage:      usage,
		classifier: classifier,
		opts:       opts,
		table:      make(models.UsageTable),
		held:       make(map[entryKey]float64),
		logger:     logger.With().Str("component", "ledger").Logger(),
		sleep:      sleepContext,
	}
}

// Load creates a ledger whose table is the full contents of usage.
func Load(ctx context.Context, usage storage.UsageStore, classifier Classifier, opts Options, logger zerolog.Logger) (*Ledger, error) {
	l := New(usage, classifier, opts, logger)
	if usage == nil {
		return l, nil
	}

	table, err := usage.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load usage: %w", err)
	}
	for day, apps := range table {
		for app, seconds := range apps {
			if !storage.ValidRow(day, app, seconds) {
				l.logger.Warn().Str("day", day).Str("app", app).Msg("Skipping malformed usage row")
				continue
			}
			l.table.Add(day, app, seconds)
		}
	}

	l.logger.Info().Int("days", len(l.table)).Msg("Loaded usage")
	return l, nil
}

// Observe records that app had focus at now. An empty app is recorded as
// models.NoFocusedWindow. Credits held by earlier calls are retried first;
// observing the pending application again credits nothing.
func (l *Ledger) Observe(ctx context.Context, app string, now time.Time) {
	if app == "" {
		app = models.NoFocusedWindow
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.retryHeldLocked(ctx)

	switch {
	case l.pending == nil:
		l.pending = &PendingSession{App: app, Start: now}
		l.logger.Debug().Str("app", app).Msg("First observation")
	case l.pending.App != app:
		prev := l.pending.App
		l.creditLocked(ctx, prev, l.pending.Start, now)
		l.pending = &PendingSession{App: app, Start: now}
		metrics.TransitionsTotal.Inc()
		l.logger.Debug().Str("from", prev).Str("to", app).Msg("Focus transition")
	}
}

// Flush credits the pending session up to now and restarts it at now. It
// returns an error if any credit is still held in memory afterwards.
func (l *Ledger) Flush(ctx context.Context, now time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pending != nil {
		l.creditLocked(ctx, l.pending.App, l.pending.Start, now)
		l.pending.Start = now
	}
	l.retryHeldLocked(ctx)

	if n := len(l.held); n > 0 {
		return fmt.Errorf("%d usage credits could not be persisted", n)
	}
	return nil
}

// Query returns a copy of the usage between start and end day keys,
// inclusive. Days without usage are absent.
func (l *Ledger) Query(start, end string) models.UsageTable {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(models.UsageTable)
	if start > end {
		return out
	}
	for day, apps := range l.table {
		if day < start || day > end {
			continue
		}
		cp := make(models.DayUsage, len(apps))
		for app, seconds := range apps {
			cp[app] = seconds
		}
		out[day] = cp
	}
	return out
}

// CategoryRollup is Query re-keyed by each application's current category.
func (l *Ledger) CategoryRollup(start, end string) models.UsageTable {
	usage := l.Query(start, end)
	out := make(models.UsageTable, len(usage))
	for day, apps := range usage {
		rolled := make(models.DayUsage)
		for app, seconds := range apps {
			rolled[l.categoryOf(app)] += seconds
		}
		out[day] = rolled
	}
	return out
}

func (l *Ledger) categoryOf(app string) string {
	if l.classifier == nil {
		return "Uncategorized"
	}
	return l.classifier.Classify(app)
}

// Days returns every day key that has usage, sorted ascending.
func (l *Ledger) Days() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	days := make([]string, 0, len(l.table))
	for day := range l.table {
		days = append(days, day)
	}
	sort.Strings(days)
	return days
}

// Pending returns the current session, if any.
func (l *Ledger) Pending() (PendingSession, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.pending == nil {
		return PendingSession{}, false
	}
	return *l.pending, true
}

// Held returns the number of credits waiting to be persisted.
func (l *Ledger) Held() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.held)
}

// Reset drops the in-memory table, pending session and held credits.
// Callers clearing storage use it to keep the ledger consistent.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.table = make(models.UsageTable)
	l.held = make(map[entryKey]float64)
	l.pending = nil
	metrics.HeldDeltas.Set(0)
}

// creditLocked credits the interval [start, now] to app.
func (l *Ledger) creditLocked(ctx context.Context, app string, start, now time.Time) {
	if !now.After(start) {
		return
	}

	category := l.categoryOf(app)
	for _, part := range l.split(start, now) {
		l.table.Add(part.day, app, part.seconds)
		metrics.CreditedSeconds.WithLabelValues(category).Add(part.seconds)
		l.logger.Debug().Str("day", part.day).Str("app", app).Float64("seconds", part.seconds).Msg("Credited")

		if err := l.persist(ctx, part.day, app, part.seconds); err != nil {
			l.held[entryKey{part.day, app}] += part.seconds
			metrics.HeldDeltas.Set(float64(len(l.held)))
			l.logger.Error().Err(err).Str("day", part.day).Str("app", app).
				Float64("seconds", part.seconds).Msg("Holding credit after failed upserts")
		}
	}
}

type dayPart struct {
	day     string
	seconds float64
}

// split divides [start, now] into per-day parts. Without SplitAtMidnight the
// whole interval belongs to the day of now.
func (l *Ledger) split(start, now time.Time) []dayPart {
	loc := l.opts.Location
	if !l.opts.SplitAtMidnight {
		return []dayPart{{day: models.DayKey(now, loc), seconds: now.Sub(start).Seconds()}}
	}

	var parts []dayPart
	cur := start.In(loc)
	end := now.In(loc)
	for {
		next := models.StartOfDay(cur).AddDate(0, 0, 1)
		if !next.Before(end) {
			break
		}
		parts = append(parts, dayPart{day: models.DayKey(cur, nil), seconds: next.Sub(cur).Seconds()})
		cur = next
	}
	if s := end.Sub(cur).Seconds(); s > 0 {
		parts = append(parts, dayPart{day: models.DayKey(end, nil), seconds: s})
	}
	return parts
}

// persist upserts with bounded retries and linear backoff.
func (l *Ledger) persist(ctx context.Context, day, app string, seconds float64) error {
	if l.usage == nil {
		return nil
	}

	var err error
	for attempt := 0; attempt <= l.opts.UpsertRetries; attempt++ {
		if attempt > 0 {
			if serr := l.sleep(ctx, time.Duration(attempt)*l.opts.RetryBackoff); serr != nil {
				return serr
			}
		}
		if err = l.usage.Upsert(ctx, day, app, seconds); err == nil {
			return nil
		}
		metrics.UpsertFailures.Inc()
		l.logger.Warn().Err(err).Int("attempt", attempt+1).Str("day", day).Str("app", app).Msg("Upsert failed")
	}
	return err
}

// retryHeldLocked makes one attempt per held credit.
func (l *Ledger) retryHeldLocked(ctx context.Context) {
	if len(l.held) == 0 || l.usage == nil {
		return
	}
	for key, seconds := range l.held {
		if err := l.usage.Upsert(ctx, key.day, key.app, seconds); err != nil {
			metrics.UpsertFailures.Inc()
			continue
		}
		delete(l.held, key)
		l.logger.Info().Str("day", key.day).Str("app", key.app).Float64("seconds", seconds).Msg("Persisted held credit")
	}
	metrics.HeldDeltas.Set(float64(len(l.held)))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
