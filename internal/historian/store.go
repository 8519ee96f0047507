package historian

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Store is a gorm-backed SQLite archive of cleared SOE records.
type Store struct {
	db *gorm.DB
}

// Open connects to (creating if absent) the SQLite database at path and
// migrates its schema. Matches the teacher's control-plane store in
// everything but the migration mechanism: golang-migrate's sqlite driver is
// built on the cgo mattn/go-sqlite3 driver, which conflicts with the
// pure-Go glebarez/sqlite driver this demo requires, so schema setup uses
// gorm.AutoMigrate the same way the teacher's own SQLite backend
// (pkg/controlplane/store/gorm.go) does for its SQLite path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create historian directory: %w", err)
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open historian database: %w", err)
	}

	if err := db.AutoMigrate(&StoredEvent{}); err != nil {
		return nil, fmt.Errorf("failed to migrate historian schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Append inserts rows in a single batch.
func (s *Store) Append(rows []StoredEvent) error {
	if len(rows) == 0 {
		return nil
	}
	return s.db.Create(&rows).Error
}

// Recent returns the most recently cleared events, newest first, for the
// `status` CLI command and tests.
func (s *Store) Recent(limit int) ([]StoredEvent, error) {
	var rows []StoredEvent
	err := s.db.Order("id desc").Limit(limit).Find(&rows).Error
	return rows, err
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
