// Package store persists the machine directory, latest sensor values and
// the hourly production ledger in SQLite through gorm.
package store

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sweeney/molding-monitor/internal/keylock"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// OpenDB opens (or creates) the SQLite database at path and migrates the schema.
func OpenDB(path string) (*gorm.DB, error) {
	return openDB(path, os.Stderr)
}

// newLogger reports slow queries and real errors. Lookups of unmapped pins
// miss on every snapshot and are not errors.
func newLogger(out io.Writer) logger.Interface {
	return logger.New(log.New(out, "store: ", log.LstdFlags), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}

func openDB(path string, logOut io.Writer) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: newLogger(logOut),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&Machine{}, &Sensor{}, &PinMapping{}, &Mold{}, &SensorValue{},
		&ProductionRecord{}, &HourBucket{}, &StoppageEntry{},
	); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Store wraps the database handle. Ledger writes for one (machine, day)
// are serialized so concurrent read-modify-write never loses an update.
type Store struct {
	db   *gorm.DB
	days *keylock.Map
}

// New wraps an opened database.
func New(db *gorm.DB) *Store {
	return &Store{db: db, days: keylock.New()}
}

// Open is OpenDB followed by New.
func Open(path string) (*Store, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	return New(db), nil
}

// DB exposes the underlying handle.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
