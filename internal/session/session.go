// Package session opens the storage backend, classifier and ledger that make
// up one tracker run, and tears them down with a final flush.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"screentime/internal/classifier"
	"screentime/internal/config"
	"screentime/internal/database"
	"screentime/internal/ledger"
	"screentime/internal/storage"
	"screentime/internal/storage/jsonfile"
	"screentime/internal/storage/redis"
)

// Session owns the ledger and everything it depends on.
type Session struct {
	Config     *config.Config
	Store      storage.Store
	Classifier *classifier.Classifier
	Ledger     *ledger.Ledger

	logger zerolog.Logger
	now    func() time.Time
}

// OpenStore opens the storage backend named by cfg.Storage.Type.
func OpenStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Type {
	case config.StorageRedis:
		return redis.Open(cfg.Storage.Redis)
	case config.StorageJSON, config.StorageSQLite:
		path, err := cfg.StoragePath()
		if err != nil {
			return nil, err
		}
		if cfg.Storage.Type == config.StorageJSON {
			return jsonfile.Open(path)
		}
		return database.Open(path)
	}
	return nil, fmt.Errorf("unknown storage type: %s", cfg.Storage.Type)
}

// Open loads persisted usage and category assignments. Any storage failure
// here is fatal to the caller.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Session, error) {
	store, err := OpenStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Storage.Type, err)
	}

	s, err := openWithStore(ctx, cfg, store, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	return s, nil
}

func openWithStore(ctx context.Context, cfg *config.Config, store storage.Store, logger zerolog.Logger) (*Session, error) {
	cls, err := classifier.Load(ctx, store.Categories(), logger)
	if err != nil {
		return nil, err
	}
	cls.SetColors(cfg.Categories.Colors)

	if cfg.Categories.SeedFile != "" {
		if err := applySeed(ctx, cls, cfg.Categories.SeedFile, logger); err != nil {
			return nil, err
		}
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	led, err := ledger.Load(ctx, store.Usage(), cls, ledger.Options{
		Location:        loc,
		SplitAtMidnight: cfg.Ledger.SplitAtMidnight,
		UpsertRetries:   cfg.Ledger.UpsertRetries,
		RetryBackoff:    cfg.Ledger.RetryBackoff,
	}, logger)
	if err != nil {
		return nil, err
	}

	return &Session{
		Config:     cfg,
		Store:      store,
		Classifier: cls,
		Ledger:     led,
		logger:     logger.With().Str("component", "session").Logger(),
		now:        time.Now,
	}, nil
}

// applySeed assigns seed entries for applications that have no assignment,
// so edits made after the first run survive restarts.
func applySeed(ctx context.Context, cls *classifier.Classifier, path string, logger zerolog.Logger) error {
	seed, err := classifier.LoadSeedFile(path)
	if err != nil {
		return err
	}

	existing := cls.Assignments()
	fresh := make(map[string]string)
	for app, category := range seed {
		if _, ok := existing[app]; !ok {
			fresh[app] = category
		}
	}

	n, err := cls.Apply(ctx, fresh)
	if err != nil {
		return fmt.Errorf("failed to apply seed file: %w", err)
	}
	if n > 0 {
		logger.Info().Int("assigned", n).Str("file", path).Msg("Applied category seed file")
	}
	return nil
}

// RecordError journals err when the backend keeps an error log.
func (s *Session) RecordError(ctx context.Context, component string, err error) {
	rec, ok := s.Store.(storage.ErrorRecorder)
	if !ok || err == nil {
		return
	}
	if rerr := rec.RecordError(ctx, component, s.now(), err.Error()); rerr != nil {
		s.logger.Warn().Err(rerr).AnErr("original", err).Msg("Failed to record error")
	}
}

// Clear removes all usage from storage and the ledger.
func (s *Session) Clear(ctx context.Context) error {
	if err := s.Store.Usage().Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear usage: %w", err)
	}
	s.Ledger.Reset()
	return nil
}

// Close flushes the pending session and closes the store. The store is
// closed even when the flush leaves credits unpersisted.
func (s *Session) Close(ctx context.Context) error {
	flushErr := s.Ledger.Flush(ctx, s.now())
	if flushErr != nil {
		s.logger.Error().Err(flushErr).Msg("Final flush incomplete")
	}
	return errors.Join(flushErr, s.Store.Close())
}
