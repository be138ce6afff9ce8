package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/deemkeen/plaza/domain"
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

// DB is the database struct.
type DB struct {
	db *sqlx.DB
}

const maxBusyRetries = 5

// Open opens (or creates) the SQLite database at path and applies the
// connection PRAGMAs. Call Migrate before first use.
func Open(path string) (*DB, error) {
	sqlDB, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if path == ":memory:" {
		// every connection would see its own empty database otherwise
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(time.Hour)

		var journalMode string
		if err := sqlDB.QueryRow("PRAGMA journal_mode=WAL").Scan(&journalMode); err != nil {
			slog.Warn("Failed to enable WAL mode", "error", err)
		} else {
			slog.Info("Database journal mode", "mode", journalMode)
		}
	}

	sqlDB.Exec("PRAGMA synchronous = NORMAL")
	sqlDB.Exec("PRAGMA temp_store = MEMORY")
	sqlDB.Exec("PRAGMA busy_timeout = 5000")
	sqlDB.Exec("PRAGMA foreign_keys = ON")

	return &DB{db: sqlDB}, nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

// wrapTransaction runs the given function within a transaction. A busy
// database restarts the whole transaction; any other error rolls it back.
func (db *DB) wrapTransaction(f func(tx *sqlx.Tx) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	for attempt := 0; ; attempt++ {
		tx, err := db.db.BeginTxx(ctx, nil)
		if err != nil {
			slog.Error("error starting transaction", "error", err)
			return err
		}
		err = f(tx)
		if err == nil {
			if err = tx.Commit(); err == nil {
				return nil
			}
			slog.Error("error committing transaction", "error", err)
		} else {
			tx.Rollback()
		}
		if isBusy(err) && attempt < maxBusyRetries {
			continue
		}
		if isDuplicate(err) {
			return fmt.Errorf("%w: %v", domain.ErrConflict, err)
		}
		return err
	}
}

func isBusy(err error) bool {
	var serr *sqlite.Error
	return errors.As(err, &serr) && serr.Code()&0xff == sqlitelib.SQLITE_BUSY
}

// isDuplicate reports a unique or primary key violation. Other constraint
// failures are malformed rows, not conflicts.
func isDuplicate(err error) bool {
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return false
	}
	code := serr.Code()
	return code == sqlitelib.SQLITE_CONSTRAINT_UNIQUE || code == sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY
}

// exists runs a COUNT(*) style query inside tx.
func exists(tx *sqlx.Tx, query string, args ...any) (bool, error) {
	var n int
	if err := tx.Get(&n, query, args...); err != nil {
		return false, err
	}
	return n > 0, nil
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return err
}
