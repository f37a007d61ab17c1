package storage

import (
	"context"
	"errors"
	"math"
	"time"

	"screentime/internal/models"
)

// ErrNotFound is returned when a record is missing from storage.
var ErrNotFound = errors.New("storage: record not found")

// Store is the root storage interface. Implementations are selected by
// configuration: sqlite (gorm), json (flat file) or redis.
type Store interface {
	Usage() UsageStore
	Categories() CategoryStore
	Close() error
}

// UsageStore is the durable copy of the usage ledger.
type UsageStore interface {
	// LoadAll returns every stored (day, app) total. Malformed rows are skipped.
	LoadAll(ctx context.Context) (models.UsageTable, error)

	// Upsert adds deltaSeconds to the stored value for (day, app), creating
	// the row if absent. A nil return means the credit is durable.
	Upsert(ctx context.Context, day, app string, deltaSeconds float64) error

	// Clear removes all usage rows.
	Clear(ctx context.Context) error
}

// CategoryStore persists application to category assignments.
type CategoryStore interface {
	LoadAll(ctx context.Context) (map[string]string, error)
	Set(ctx context.Context, app, category string) error
	Delete(ctx context.Context, app string) error
}

// ErrorRecorder is implemented by stores that can keep an error journal.
type ErrorRecorder interface {
	RecordError(ctx context.Context, component string, at time.Time, msg string) error
}

// ValidRow reports whether a persisted row is usable. Rows failing this
// check are skipped on load and treated as zero.
func ValidRow(day, app string, seconds float64) bool {
	if app == "" || !models.ValidDay(day) {
		return false
	}
	return seconds >= 0 && !math.IsNaN(seconds) && !math.IsInf(seconds, 0)
}
