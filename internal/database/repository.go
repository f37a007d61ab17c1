package database

import (
	"context"
	"time"

	"screentime/internal/models"
	"screentime/internal/storage"

	"github.com/pkg/errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository is the sqlite implementation of storage.Store.
type Repository struct {
	db         *DB
	usage      *usageRepository
	categories *categoryRepository
}

// NewRepository creates a new repository instance
func NewRepository(db *DB) *Repository {
	return &Repository{
		db:         db,
		usage:      &usageRepository{db: db},
		categories: &categoryRepository{db: db},
	}
}

// Open connects to dbPath and creates the schema.
func Open(dbPath string) (*Repository, error) {
	db, err := Connect(dbPath)
	if err != nil {
		return nil, err
	}
	if err := db.Initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return NewRepository(db), nil
}

var (
	_ storage.Store         = (*Repository)(nil)
	_ storage.ErrorRecorder = (*Repository)(nil)
)

func (r *Repository) Usage() storage.UsageStore         { return r.usage }
func (r *Repository) Categories() storage.CategoryStore { return r.categories }
func (r *Repository) Close() error                      { return r.db.Close() }

// RecordError inserts a new error log into the database
func (r *Repository) RecordError(ctx context.Context, component string, at time.Time, msg string) error {
	errorLog := &models.ErrorLog{Timestamp: at, Component: component, ErrorMsg: msg}
	result := r.db.WithContext(ctx).Create(errorLog)
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to insert error log")
	}
	return nil
}

// RecentErrors returns up to limit error logs, newest first.
func (r *Repository) RecentErrors(ctx context.Context, limit int) ([]models.ErrorLog, error) {
	var logs []models.ErrorLog
	result := r.db.WithContext(ctx).Order("timestamp DESC").Limit(limit).Find(&logs)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to query error logs")
	}
	return logs, nil
}

type usageRepository struct {
	db *DB
}

// LoadAll retrieves every usage row; invalid rows are skipped.
func (r *usageRepository) LoadAll(ctx context.Context) (models.UsageTable, error) {
	var entries []models.UsageEntry
	result := r.db.WithContext(ctx).Find(&entries)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to query usage entries")
	}

	table := make(models.UsageTable)
	for _, e := range entries {
		if !storage.ValidRow(e.Day, e.AppName, e.Seconds) {
			continue
		}
		table.Add(e.Day, e.AppName, e.Seconds)
	}
	return table, nil
}

// Upsert adds delta to (day, app) in a single statement.
func (r *usageRepository) Upsert(ctx context.Context, day, app string, delta float64) error {
	if !storage.ValidRow(day, app, delta) {
		return errors.Errorf("invalid usage credit %s/%q %v", day, app, delta)
	}

	entry := &models.UsageEntry{Day: day, AppName: app, Seconds: delta}
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "day"}, {Name: "app_name"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"seconds":    gorm.Expr("usage_entries.seconds + excluded.seconds"),
			"updated_at": gorm.Expr("excluded.updated_at"),
		}),
	}).Create(entry)
	if result.Error != nil {
		return errors.Wrapf(result.Error, "failed to upsert usage for %s/%s", day, app)
	}
	return nil
}

// Clear removes all usage entries from the database
func (r *usageRepository) Clear(ctx context.Context) error {
	result := r.db.WithContext(ctx).Exec("DELETE FROM usage_entries")
	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to clear usage entries")
	}
	return nil
}

type categoryRepository struct {
	db *DB
}

func (r *categoryRepository) LoadAll(ctx context.Context) (map[string]string, error) {
	var rows []models.CategoryAssignment
	result := r.db.WithContext(ctx).Find(&rows)
	if result.Error != nil {
		return nil, errors.Wrap(result.Error, "failed to query category assignments")
	}

	out := make(map[string]string, len(rows))
	for _, row := range rows {
		if row.AppName == "" || row.Category == "" {
			continue
		}
		out[row.AppName] = row.Category
	}
	return out, nil
}

func (r *categoryRepository) Set(ctx context.Context, app, category string) error {
	row := &models.CategoryAssignment{AppName: app, Category: category}
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "app_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"category", "updated_at"}),
	}).Create(row)
	if result.Error != nil {
		return errors.Wrapf(result.Error, "failed to assign category for %s", app)
	}
	return nil
}

func (r *categoryRepository) Delete(ctx context.Context, app string) error {
	result := r.db.WithContext(ctx).Where("app_name = ?", app).Delete(&models.CategoryAssignment{})
	if result.Error != nil {
		return errors.Wrapf(result.Error, "failed to delete category for %s", app)
	}
	if result.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}
