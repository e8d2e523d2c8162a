// Package catalog implements the persistent, transactional metadata
// store: archives, connections, backup profiles, base backups,
// tablespaces, streams, supervisor processes, and retention policies,
// all bound and fetched through the affected-attributes protocol.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/gofrs/flock"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/jfoltran/pgbackupctl/internal/apperrors"
)

// Catalog owns the single-file SQLite store backing one archive
// installation, plus the process-level file lock layered over it for
// single-writer discipline across independent one-shot invocations
// ("Concurrency").
type Catalog struct {
	db       *sql.DB
	path     string
	lock     *flock.Flock
	readOnly bool
	logger   zerolog.Logger
}

// Options configures Open.
type Options struct {
	ReadOnly bool
	Logger   zerolog.Logger
}

// Open opens (creating if necessary) the SQLite catalog at path, applies
// pragmas, runs the schema check, and returns a ready Catalog.
func Open(path string, opts Options) (*Catalog, error) {
	dsn := fmt.Sprintf(
		"file:%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=60000&_txlock=immediate",
		path,
	)
	if opts.ReadOnly {
		dsn += "&mode=ro"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, apperrors.Catalog("open", err)
	}
	db.SetMaxOpenConns(1) // single-writer: sqlite3 driver connections don't share a txn otherwise.

	c := &Catalog{
		db:       db,
		path:     path,
		readOnly: opts.ReadOnly,
		logger:   opts.Logger.With().Str("component", "catalog").Logger(),
	}

	if !opts.ReadOnly {
		c.lock = flock.New(path + ".lock")
	}

	if err := c.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return c, nil
}

func (c *Catalog) ensureSchema() error {
	if !c.readOnly {
		if _, err := c.db.Exec(schemaDDL); err != nil {
			return apperrors.Catalog("ensure schema", err)
		}

		var count int
		if err := c.db.QueryRow("SELECT COUNT(*) FROM version").Scan(&count); err != nil {
			return apperrors.Catalog("check version row", err)
		}
		if count == 0 {
			if _, err := c.db.Exec("INSERT INTO version (number) VALUES (?)", catalogMagic); err != nil {
				return apperrors.Catalog("seed version row", err)
			}
		}
	}

	var stored int
	if err := c.db.QueryRow("SELECT number FROM version LIMIT 1").Scan(&stored); err != nil {
		return apperrors.Catalog("read schema version", err)
	}
	if stored < catalogMagic {
		return apperrors.Catalog("schema version check",
			fmt.Errorf("catalog schema version %d is older than required %d", stored, catalogMagic))
	}

	for _, table := range requiredTables {
		var name string
		err := c.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		if err != nil {
			return apperrors.Catalog("schema check", fmt.Errorf("missing required table %q", table))
		}
	}

	return nil
}

// Close releases the database handle and any held file lock.
func (c *Catalog) Close() error {
	if c.lock != nil {
		c.lock.Unlock() //nolint:errcheck
	}
	return c.db.Close()
}

// WithTx runs fn inside an exclusive catalog transaction (
// "Transactions"): on any error, the transaction is rolled back and the
// original error propagates to the caller; multi-statement mutations
// (e.g., retention policy + N rules) must go through this helper so they
// are all-or-nothing.
func (c *Catalog) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if c.lock != nil {
		locked, err := c.lock.TryLockContext(ctx, 50*time.Millisecond)
		if err != nil {
			return apperrors.Catalog("acquire file lock", err)
		}
		if !locked {
			return apperrors.Catalog("acquire file lock", fmt.Errorf("catalog %s is locked by another writer", c.path))
		}
		defer c.lock.Unlock() //nolint:errcheck
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Catalog("begin transaction", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			c.logger.Error().Err(rbErr).Msg("rollback failed after transaction error")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Catalog("commit transaction", err)
	}
	return nil
}

// DB exposes the underlying handle for read-only queries that do not need
// the single-writer transaction wrapper (e.g., list operations).
func (c *Catalog) DB() *sql.DB { return c.db }

// Magic returns the compiled-in schema magic number, the value an
// archive's PG_BACKUP_CTL_INFO signature file records on VERIFY ARCHIVE.
func (c *Catalog) Magic() int { return catalogMagic }

// bindComputedGuard returns a Catalog error when the caller attempts to
// bind a computed column, which is always a programmer error. It does not
// panic in any build.
func bindComputedGuard(col ColumnID) error {
	if IsComputed(col) {
		return apperrors.Catalog("bind", fmt.Errorf("column %d is computed and cannot be bound", col))
	}
	return nil
}
