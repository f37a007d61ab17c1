// Package redis implements storage.Store on a Redis server.
//
// Usage lives in one hash per day, {prefix}:usage:{day}, mapping application
// name to seconds, plus a set {prefix}:usage:days indexing the days.
// Category assignments live in the hash {prefix}:categories.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"screentime/internal/config"
	"screentime/internal/models"
	"screentime/internal/storage"
)

// Store implements the storage.Store interface using Redis
type Store struct {
	client        *redis.Client
	usageStore    *usageStore
	categoryStore *categoryStore
}

var _ storage.Store = (*Store)(nil)

// Open creates a new Redis-backed storage instance
func Open(cfg config.RedisConfig) (*Store, error) {
	// Determine address
	addr := cfg.Host
	if cfg.Port > 0 {
		addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	}

	// Create Redis client
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Ping to verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "screentime"
	}

	return &Store{
		client: client,
		usageStore: &usageStore{
			client:    client,
			keyPrefix: prefix + ":usage:",
			indexKey:  prefix + ":usage:days",
			increment: redis.NewScript(incrementUsageScript),
			clear:     redis.NewScript(clearUsageScript),
		},
		categoryStore: &categoryStore{
			client: client,
			key:    prefix + ":categories",
		},
	}, nil
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

// Usage returns the UsageStore implementation
func (s *Store) Usage() storage.UsageStore {
	return s.usageStore
}

// Categories returns the CategoryStore implementation
func (s *Store) Categories() storage.CategoryStore {
	return s.categoryStore
}

type usageStore struct {
	client    *redis.Client
	keyPrefix string
	indexKey  string
	increment *redis.Script
	clear     *redis.Script
}

func (s *usageStore) LoadAll(ctx context.Context) (models.UsageTable, error) {
	days, err := s.client.SMembers(ctx, s.indexKey).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to list usage days")
	}

	table := make(models.UsageTable, len(days))
	for _, day := range days {
		data, err := s.client.HGetAll(ctx, s.keyPrefix+day).Result()
		if err != nil {
			return nil, errors.Wrapf(err, "failed to load usage for %s", day)
		}
		for app, raw := range data {
			seconds, err := strconv.ParseFloat(raw, 64)
			if err != nil || !storage.ValidRow(day, app, seconds) {
				continue
			}
			table.Add(day, app, seconds)
		}
	}
	return table, nil
}

// Upsert increments (day, app) through incrementUsageScript. Durability
// follows the server's persistence settings (AOF with fsync always for the
// strongest guarantee).
func (s *usageStore) Upsert(ctx context.Context, day, app string, delta float64) error {
	if !storage.ValidRow(day, app, delta) {
		return errors.Errorf("invalid usage credit %s/%q %v", day, app, delta)
	}

	keys := []string{s.keyPrefix + day, s.indexKey}
	args := []interface{}{day, app, strconv.FormatFloat(delta, 'f', -1, 64)}
	if err := s.increment.Run(ctx, s.client, keys, args...).Err(); err != nil {
		return errors.Wrapf(err, "failed to increment usage for %s/%s", day, app)
	}
	return nil
}

func (s *usageStore) Clear(ctx context.Context) error {
	if err := s.clear.Run(ctx, s.client, []string{s.indexKey}, s.keyPrefix).Err(); err != nil {
		return errors.Wrap(err, "failed to clear usage")
	}
	return nil
}

type categoryStore struct {
	client *redis.Client
	key    string
}

func (s *categoryStore) LoadAll(ctx context.Context) (map[string]string, error) {
	data, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load categories")
	}
	out := make(map[string]string, len(data))
	for app, category := range data {
		if app == "" || category == "" {
			continue
		}
		out[app] = category
	}
	return out, nil
}

func (s *categoryStore) Set(ctx context.Context, app, category string) error {
	if err := s.client.HSet(ctx, s.key, app, category).Err(); err != nil {
		return errors.Wrapf(err, "failed to assign category for %s", app)
	}
	return nil
}

func (s *categoryStore) Delete(ctx context.Context, app string) error {
	n, err := s.client.HDel(ctx, s.key, app).Result()
	if err != nil {
		return errors.Wrapf(err, "failed to delete category for %s", app)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
