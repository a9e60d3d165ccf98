// Package database owns the gorm connection and schema migration for the
// pipeline's persisted state: jobs, media files, and rules. Grounded on the
// teacher's internal/database connection setup and its AutoMigrate-per-module
// convention (transcodingmodule.Module.Migrate).
package database

import (
	"fmt"

	"github.com/tidecast/mediapipe/internal/logger"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open opens (creating if necessary) the sqlite-backed store at path and
// migrates every model this module owns. The DSN carries a busy_timeout so
// concurrent dequeue transactions serialize on SQLite's write lock instead
// of failing with SQLITE_BUSY (spec.md §4.G "must be atomic against
// concurrent dequeues").
func Open(path string) (*gorm.DB, error) {
	dsn := path + "?_busy_timeout=5000&_journal_mode=WAL"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap sql.DB: %w", err)
	}
	// SQLite has no real concurrent-writer story; a single connection
	// turns every transaction (including dequeue_next) into the queue's
	// sole serialization point, matching spec.md §5's "serialised write
	// path (transaction or equivalent)".
	sqlDB.SetMaxOpenConns(1)

	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	logger.Named("database").Info("database ready", "path", path)
	return db, nil
}

// Migrate runs AutoMigrate for every model owned by this module.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Job{},
		&MediaFile{},
		&Rule{},
	)
}
