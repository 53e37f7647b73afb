package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"umbrella/internal/domain"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// DB is the SQLite rental store.
type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger
}

var _ domain.RentalStore = (*DB)(nil)

// querier is the subset shared by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	inMemory := path == ":memory:" || strings.HasPrefix(path, "file::memory:")
	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if inMemory {
		// every new connection to :memory: would be a fresh empty database
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := &DB{DB: sqlDB, path: path, logger: logger}
	if err := db.createTables(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("Database initialized")
	return db, nil
}

// dsn makes every transaction take the write lock up front so that
// concurrent read-check-write sequences serialize instead of deadlocking.
func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_txlock=immediate&_busy_timeout=5000&_foreign_keys=on"
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			phone TEXT NOT NULL DEFAULT '',
			balance INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS rental_spots (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			umbrella_count INTEGER NOT NULL DEFAULT 0,
			latitude REAL NOT NULL DEFAULT 0,
			longitude REAL NOT NULL DEFAULT 0,
			sort_order INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS rentals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL REFERENCES users(id),
			spot_id TEXT NOT NULL REFERENCES rental_spots(id),
			start_time DATETIME NOT NULL,
			end_time DATETIME,
			allowed_duration_hours INTEGER NOT NULL CHECK (allowed_duration_hours > 0),
			active BOOLEAN NOT NULL DEFAULT 1,
			extra_charge INTEGER NOT NULL DEFAULT 0 CHECK (extra_charge >= 0),
			price INTEGER NOT NULL DEFAULT 0,
			payment_method TEXT NOT NULL,
			reminded_at DATETIME,
			CHECK ((active = 1 AND end_time IS NULL) OR (active = 0 AND end_time IS NOT NULL))
		)`,
		`CREATE TABLE IF NOT EXISTS wa_notifications (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			rental_id INTEGER,
			phone TEXT NOT NULL,
			message TEXT NOT NULL,
			type TEXT NOT NULL,
			link TEXT,
			status TEXT NOT NULL,
			error TEXT,
			sent_at DATETIME NOT NULL
		)`,

		`CREATE UNIQUE INDEX IF NOT EXISTS idx_rentals_one_active ON rentals(user_id) WHERE active = 1`,
		`CREATE INDEX IF NOT EXISTS idx_rentals_user_start ON rentals(user_id, start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_rentals_start ON rentals(start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_wa_notifications_rental ON wa_notifications(rental_id)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// WithTx runs fn inside one transaction. The transaction commits only when
// fn returns nil.
func (db *DB) WithTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return domain.StoreError("begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(&rentalTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return domain.StoreError("commit transaction", err)
	}
	return nil
}

func (db *DB) Ping(ctx context.Context) error {
	if err := db.PingContext(ctx); err != nil {
		return domain.StoreError("ping", err)
	}
	return nil
}

func (db *DB) Path() string {
	return db.path
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func isCheckViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintCheck
	}
	return false
}

// rentalTx exposes the store operations that must run inside one unit of work.
type rentalTx struct {
	tx *sql.Tx
}

var _ domain.Tx = (*rentalTx)(nil)
