package datastore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/fieldscan/fieldscan/internal/errors"
	"github.com/fieldscan/fieldscan/internal/logger"
)

const slowQueryThreshold = 200 * time.Millisecond

// SQLiteStore implements Interface on a local SQLite file
type SQLiteStore struct {
	DataStore
	Path string
	log  logger.Logger
}

// NewSQLiteStore returns an unopened store for path. A nil logger uses the
// global datastore module logger.
func NewSQLiteStore(path string, log logger.Logger) *SQLiteStore {
	if log == nil {
		log = logger.Global().Module("datastore")
	}
	return &SQLiteStore{Path: path, log: log}
}

// Open opens the database file, creating its directory, and migrates the
// schema
func (store *SQLiteStore) Open() error {
	if store.Path == "" {
		return validationError("sqlite path is required", "store.path", "")
	}

	if dir := filepath.Dir(store.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return errors.New(err).
				Component("datastore").
				Category(errors.CategoryFileIO).
				Context("operation", "create_db_dir").
				Context("path", dir).
				Build()
		}
	}

	// WAL keeps readers unblocked while a drain deletes rows
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", store.Path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.NewGormLoggerAdapter(store.log, slowQueryThreshold),
	})
	if err != nil {
		return dbError(err, "open", "path", store.Path)
	}

	// single writer; sqlite serializes writes anyway
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}

	store.DB = db
	if err := performAutoMigration(db, "SQLite"); err != nil {
		return err
	}

	store.log.Info("sqlite store opened", logger.String("path", store.Path))
	return nil
}

// Close releases the database handle
func (store *SQLiteStore) Close() error {
	if store.DB == nil {
		return nil
	}
	sqlDB, err := store.DB.DB()
	if err != nil {
		return dbError(err, "close", "path", store.Path)
	}
	if err := sqlDB.Close(); err != nil {
		return dbError(err, "close", "path", store.Path)
	}
	store.DB = nil
	return nil
}
