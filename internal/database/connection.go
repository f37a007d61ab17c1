package database

import (
	"fmt"

	"screentime/internal/models"
	"screentime/internal/storage"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// sqlite pragmas: WAL for concurrent readers, FULL sync so a returned
// upsert survives a crash, and a busy timeout for lock contention.
const dsnParams = "?_journal_mode=WAL&_synchronous=FULL&_busy_timeout=5000&_foreign_keys=on"

type DB struct {
	*gorm.DB
}

func Connect(dbPath string) (*DB, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if dbPath != ":memory:" {
		if err := storage.EnsureParentDir(dbPath); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath+dsnParams), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection serializes writers and keeps :memory: databases
	// shared across calls.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return &DB{db}, nil
}

// Initialize creates the schema if absent. Failure here is fatal at startup.
func (db *DB) Initialize() error {
	err := db.AutoMigrate(&models.UsageEntry{}, &models.CategoryAssignment{}, &models.ErrorLog{})
	if err != nil {
		return fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return nil
}

func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.Close()
}
