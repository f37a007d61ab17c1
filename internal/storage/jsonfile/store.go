// Package jsonfile stores usage and category assignments in one JSON file.
//
// The file layout is
//
//	{"usage": {"2024-03-10": {"Editor": 120.5}}, "categories": {"Editor": "Utility"}}
//
// Files holding only day objects at the top level ({"2024-03-10": {...}})
// are read as usage and rewritten in the current layout on the next write.
// Every mutation takes an exclusive lock on a sidecar "<path>.lock" file,
// re-reads the file, applies the change and rewrites it through a synced temp
// file and rename. Several processes can share one file this way.
package jsonfile

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"

	"screentime/internal/models"
	"screentime/internal/storage"
)

const lockRetryDelay = 10 * time.Millisecond

type document struct {
	Usage      map[string]map[string]float64 `json:"usage"`
	Categories map[string]string             `json:"categories"`
}

// Store is a file-backed storage.Store.
type Store struct {
	mu   sync.Mutex
	path string
	lock *flock.Flock
}

var _ storage.Store = (*Store)(nil)

// Open creates path if it does not exist and checks that it parses.
func Open(path string) (*Store, error) {
	if err := storage.EnsureParentDir(path); err != nil {
		return nil, errors.Wrap(err, "failed to create data directory")
	}

	s := &Store{path: path, lock: flock.New(path + ".lock")}
	err := s.update(context.Background(), func(*document) (bool, error) {
		_, statErr := os.Stat(path)
		return os.IsNotExist(statErr), nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func emptyDocument() document {
	return document{
		Usage:      make(map[string]map[string]float64),
		Categories: make(map[string]string),
	}
}

// decode accepts both layouts. Entries that do not decode as day -> app ->
// seconds are skipped.
func decode(data []byte) (document, error) {
	doc := emptyDocument()
	if len(data) == 0 {
		return doc, nil
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return doc, err
	}

	usage := top
	if raw, ok := top["usage"]; ok {
		usage = nil
		if err := json.Unmarshal(raw, &usage); err != nil {
			usage = nil
		}
		if raw, ok := top["categories"]; ok {
			var cats map[string]string
			if err := json.Unmarshal(raw, &cats); err == nil {
				for app, category := range cats {
					if app != "" && category != "" {
						doc.Categories[app] = category
					}
				}
			}
		}
	} else if _, ok := top["categories"]; ok {
		usage = nil
	}

	for day, raw := range usage {
		var apps map[string]json.RawMessage
		if err := json.Unmarshal(raw, &apps); err != nil {
			continue
		}
		for app, rawSeconds := range apps {
			var seconds float64
			if err := json.Unmarshal(rawSeconds, &seconds); err != nil {
				continue
			}
			if !storage.ValidRow(day, app, seconds) {
				continue
			}
			if doc.Usage[day] == nil {
				doc.Usage[day] = make(map[string]float64)
			}
			doc.Usage[day][app] += seconds
		}
	}
	return doc, nil
}

// view returns the file's current contents under a shared lock.
func (s *Store) view(ctx context.Context) (document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := acquired(s.lock.TryRLockContext(ctx, lockRetryDelay)); err != nil {
		return document{}, err
	}
	defer s.lock.Unlock()
	return s.readLocked()
}

// update applies fn to the file's current contents under an exclusive lock
// and writes the result when fn reports a change.
func (s *Store) update(ctx context.Context, fn func(doc *document) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := acquired(s.lock.TryLockContext(ctx, lockRetryDelay)); err != nil {
		return err
	}
	defer s.lock.Unlock()

	doc, err := s.readLocked()
	if err != nil {
		return err
	}
	changed, err := fn(&doc)
	if err != nil || !changed {
		return err
	}
	return s.writeLocked(doc)
}

func acquired(ok bool, err error) error {
	if err != nil {
		return errors.Wrap(err, "failed to lock data file")
	}
	if !ok {
		return errors.New("failed to lock data file")
	}
	return nil
}

// readLocked decodes the file; a missing file is an empty document.
func (s *Store) readLocked() (document, error) {
	data, err := os.ReadFile(s.path)
	switch {
	case os.IsNotExist(err):
		return emptyDocument(), nil
	case err != nil:
		return document{}, errors.Wrapf(err, "failed to read %s", s.path)
	}

	doc, err := decode(data)
	if err != nil {
		return document{}, errors.Wrapf(err, "failed to parse %s", s.path)
	}
	return doc, nil
}

// writeLocked replaces the file with doc; the caller holds the file lock.
func (s *Store) writeLocked(doc document) error {
	data, err := json.MarshalIndent(&doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode data")
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".*")
	if err != nil {
		return errors.Wrap(err, "failed to create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to write temp file")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close temp file")
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return errors.Wrapf(err, "failed to replace %s", s.path)
	}

	// sync the directory so the rename itself is durable
	if dir, err := os.Open(filepath.Dir(s.path)); err == nil {
		dir.Sync()
		dir.Close()
	}
	return nil
}

func (s *Store) Usage() storage.UsageStore         { return usageStore{s} }
func (s *Store) Categories() storage.CategoryStore { return categoryStore{s} }
func (s *Store) Close() error                      { return nil }

type usageStore struct{ s *Store }

func (u usageStore) LoadAll(ctx context.Context) (models.UsageTable, error) {
	doc, err := u.s.view(ctx)
	if err != nil {
		return nil, err
	}

	table := make(models.UsageTable, len(doc.Usage))
	for day, apps := range doc.Usage {
		for app, seconds := range apps {
			table.Add(day, app, seconds)
		}
	}
	return table, nil
}

func (u usageStore) Upsert(ctx context.Context, day, app string, delta float64) error {
	if !storage.ValidRow(day, app, delta) {
		return errors.Errorf("invalid usage credit %s/%q %v", day, app, delta)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return u.s.update(ctx, func(doc *document) (bool, error) {
		if doc.Usage[day] == nil {
			doc.Usage[day] = make(map[string]float64)
		}
		doc.Usage[day][app] += delta
		return true, nil
	})
}

func (u usageStore) Clear(ctx context.Context) error {
	return u.s.update(ctx, func(doc *document) (bool, error) {
		doc.Usage = make(map[string]map[string]float64)
		return true, nil
	})
}

type categoryStore struct{ s *Store }

func (c categoryStore) LoadAll(ctx context.Context) (map[string]string, error) {
	doc, err := c.s.view(ctx)
	if err != nil {
		return nil, err
	}
	return doc.Categories, nil
}

func (c categoryStore) Set(ctx context.Context, app, category string) error {
	return c.s.update(ctx, func(doc *document) (bool, error) {
		doc.Categories[app] = category
		return true, nil
	})
}

func (c categoryStore) Delete(ctx context.Context, app string) error {
	return c.s.update(ctx, func(doc *document) (bool, error) {
		if _, ok := doc.Categories[app]; !ok {
			return false, storage.ErrNotFound
		}
		delete(doc.Categories, app)
		return true, nil
	})
}
