// Package classifier maps application names to display categories.
//
// Assignments are sparse; any application without one classifies as
// DefaultCategory. Rollups consult the classifier at query time, so
// changing an assignment recolors every day that application appears in.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"screentime/internal/storage"
)

// DefaultCategory is reported for applications without an assignment.
const DefaultCategory = "Uncategorized"

// DefaultColors is the built-in palette for the stock categories.
var DefaultColors = map[string]string{
	"Uncategorized": "#606060",
	"Utility":       "#3e2c4e",
	"Entertainment": "#929292",
	"Social":        "#9B86BD",
}

// fallbackColor is used for categories without a palette entry.
const fallbackColor = "#808080"

// Classifier is safe for concurrent use.
type Classifier struct {
	mu          sync.RWMutex
	assignments map[string]string
	colors      map[string]string
	store       storage.CategoryStore
	logger      zerolog.Logger
}

// New creates an empty classifier. store may be nil, in which case
// assignments live only in memory.
func New(store storage.CategoryStore, logger zerolog.Logger) *Classifier {
	colors := make(map[string]string, len(DefaultColors))
	for k, v := range DefaultColors {
		colors[strings.ToLower(k)] = v
	}
	return &Classifier{
		assignments: make(map[string]string),
		colors:      colors,
		store:       store,
		logger:      logger.With().Str("component", "classifier").Logger(),
	}
}

// Load creates a classifier populated from store.
func Load(ctx context.Context, store storage.CategoryStore, logger zerolog.Logger) (*Classifier, error) {
	c := New(store, logger)
	if store == nil {
		return c, nil
	}

	assignments, err := store.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load category assignments: %w", err)
	}
	for app, category := range assignments {
		if app == "" || category == "" {
			continue
		}
		c.assignments[app] = category
	}

	c.logger.Debug().Int("assignments", len(c.assignments)).Msg("Loaded category assignments")
	return c, nil
}

// Classify returns app's category, or DefaultCategory.
func (c *Classifier) Classify(app string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if category, ok := c.assignments[app]; ok {
		return category
	}
	return DefaultCategory
}

// Assign maps app to category and persists the mapping. app is used exactly
// as recorded. An empty category or DefaultCategory removes the assignment.
func (c *Classifier) Assign(ctx context.Context, app, category string) error {
	category = strings.TrimSpace(category)
	if strings.TrimSpace(app) == "" {
		return fmt.Errorf("application name cannot be empty")
	}

	remove := category == "" || category == DefaultCategory
	if c.store != nil {
		var err error
		if remove {
			err = c.store.Delete(ctx, app)
			if errors.Is(err, storage.ErrNotFound) {
				err = nil
			}
		} else {
			err = c.store.Set(ctx, app, category)
		}
		if err != nil {
			return fmt.Errorf("failed to persist category for %s: %w", app, err)
		}
	}

	c.mu.Lock()
	if remove {
		delete(c.assignments, app)
	} else {
		c.assignments[app] = category
	}
	c.mu.Unlock()

	c.logger.Info().Str("app", app).Str("category", c.Classify(app)).Msg("Category assigned")
	return nil
}

// Assignments returns a copy of every explicit assignment.
func (c *Classifier) Assignments() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.assignments))
	for k, v := range c.assignments {
		out[k] = v
	}
	return out
}

// Categories lists the known category names, sorted, always including
// DefaultCategory.
func (c *Classifier) Categories() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := map[string]bool{DefaultCategory: true}
	for name := range DefaultColors {
		seen[name] = true
	}
	for _, category := range c.assignments {
		seen[category] = true
	}

	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// SetColors merges a palette over the defaults. Keys match case-insensitively.
func (c *Classifier) SetColors(colors map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range colors {
		if v == "" {
			continue
		}
		c.colors[strings.ToLower(k)] = v
	}
}

// Color returns the display color for category.
func (c *Classifier) Color(category string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if color, ok := c.colors[strings.ToLower(category)]; ok {
		return color
	}
	return fallbackColor
}
