package local

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"runclub/internal/club"
	"runclub/internal/local/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteKV is a KVStore backed by a single SQLite table.
type SQLiteKV struct {
	db      *sql.DB
	path    string
	maxSize int64
	clock   club.Clock
}

var _ KVStore = (*SQLiteKV)(nil)

// NewSQLiteKV opens (creating if needed) the database at path and brings its
// schema up to date. path may be ":memory:". maxSize <= 0 means unlimited.
func NewSQLiteKV(path string, maxSize int64, clock club.Clock) (*SQLiteKV, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate %s: %w", path, err)
	}
	return &SQLiteKV{db: db, path: path, maxSize: maxSize, clock: clock}, nil
}

// OpenConnection opens a SQLite database with the pragmas the store relies on.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// An in-memory database exists per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	return db, nil
}

// CheckMigrations reports whether the schema is current.
func (s *SQLiteKV) CheckMigrations() error {
	return migrations.CheckMigrations(s.db)
}

func (s *SQLiteKV) Get(key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRow("SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLiteKV) Set(key string, value []byte) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if s.maxSize > 0 {
		var others int64
		err := tx.QueryRow(
			"SELECT COALESCE(SUM(length(key) + length(value)), 0) FROM kv WHERE key != ?", key,
		).Scan(&others)
		if err != nil {
			return fmt.Errorf("failed to measure store: %w", err)
		}
		if others+int64(len(key)+len(value)) > s.maxSize {
			return fmt.Errorf("writing %s (%d bytes, limit %d): %w", key, len(value), s.maxSize, club.ErrStorageQuotaExceeded)
		}
	}

	_, err = tx.Exec(
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, s.clock.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return tx.Commit()
}

func (s *SQLiteKV) Delete(key string) error {
	if _, err := s.db.Exec("DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteKV) Keys() ([]string, error) {
	rows, err := s.db.Query("SELECT key FROM kv ORDER BY key")
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *SQLiteKV) Size() (int64, error) {
	var n int64
	err := s.db.QueryRow("SELECT COALESCE(SUM(length(key) + length(value)), 0) FROM kv").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to measure store: %w", err)
	}
	return n, nil
}

func (s *SQLiteKV) Close() error {
	return s.db.Close()
}
