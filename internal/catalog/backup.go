package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jfoltran/pgbackupctl/internal/apperrors"
)

// RegisterBasebackup inserts a new BaseBackup row in status "in progress"
// plus any tablespaces already attached to d, as one transaction.
func (c *Catalog) RegisterBasebackup(ctx context.Context, d *BaseBackupDescr) (int64, error) {
	d.Status = StatusInProgress
	if d.WalSegmentSize == 0 {
		return 0, apperrors.Catalog("register basebackup", errors.New("wal_segment_size must be set"))
	}

	var id int64
	err := c.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO backup
			 (archive_id, xlogpos_start, xlogpos_end, timeline, label, fsentry,
			  started, stopped, pinned, status, systemid, wal_segment_size, used_profile)
			 VALUES (?, ?, NULL, ?, ?, ?, ?, NULL, 0, ?, ?, ?, ?)`,
			d.ArchiveID, d.XlogposStart, d.Timeline, d.Label, d.FSEntry,
			d.Started, string(StatusInProgress), d.SystemID, d.WalSegmentSize, d.UsedProfile)
		if err != nil {
			return apperrors.Catalog("register basebackup", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return apperrors.Catalog("register basebackup", err)
		}
		for i := range d.Tablespaces {
			if err := registerTablespaceForBackupTx(ctx, tx, id, &d.Tablespaces[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	d.ID = id
	return id, nil
}

// FinalizeBasebackup transitions a backup to "ready", setting stopped and
// xlogpos_end (invariant: ready ⇒ xlogpos_end != ∅ ∧ stopped != ∅).
func (c *Catalog) FinalizeBasebackup(ctx context.Context, id int64, stopped time.Time, xlogposEnd string) error {
	if xlogposEnd == "" {
		return apperrors.Catalog("finalize basebackup", errors.New("xlogpos_end is required to finalize"))
	}
	return c.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE backup SET status = ?, stopped = ?, xlogpos_end = ? WHERE id = ? AND status = ?",
			string(StatusReady), stopped, xlogposEnd, id, string(StatusInProgress))
		if err != nil {
			return apperrors.Catalog("finalize basebackup", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return apperrors.Catalog("finalize basebackup", err)
		}
		if n == 0 {
			return apperrors.Catalog("finalize basebackup", fmt.Errorf("backup %d is not in progress", id))
		}
		return nil
	})
}

// AbortBasebackup transitions a backup to "aborted". An aborted backup's
// xlogpos_end is never trusted afterward.
func (c *Catalog) AbortBasebackup(ctx context.Context, id int64) error {
	return c.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "UPDATE backup SET status = ? WHERE id = ?", string(StatusAborted), id)
		if err != nil {
			return apperrors.Catalog("abort basebackup", err)
		}
		return nil
	})
}

// DeleteBaseBackup removes the catalog row (and its tablespaces, via
// cascade). It does not touch the filesystem — callers unlink fsentry
// themselves (retention's two-phase apply).
func (c *Catalog) DeleteBaseBackup(ctx context.Context, id int64) error {
	return c.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM backup WHERE id = ?", id)
		if err != nil {
			return apperrors.Catalog("delete basebackup", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return apperrors.Catalog("delete basebackup", err)
		}
		if n == 0 {
			return apperrors.Catalog("delete basebackup", fmt.Errorf("backup %d not found", id))
		}
		return nil
	})
}

func scanBaseBackup(scan func(dest ...any) error) (*BaseBackupDescr, error) {
	d := &BaseBackupDescr{}
	var stopped sql.NullTime
	var xlogposEnd, usedProfile sql.NullString
	if err := scan(&d.ID, &d.ArchiveID, &d.XlogposStart, &xlogposEnd, &d.Timeline, &d.Label,
		&d.FSEntry, &d.Started, &stopped, &d.Pinned, (*string)(&d.Status), &d.SystemID,
		&d.WalSegmentSize, &usedProfile); err != nil {
		return nil, err
	}
	d.XlogposEnd = xlogposEnd.String
	d.UsedProfile = usedProfile.String
	if stopped.Valid {
		d.Stopped = stopped.Time
		d.Duration = d.Stopped.Sub(d.Started)
	}
	return d, nil
}

const baseBackupColumns = `id, archive_id, xlogpos_start, xlogpos_end, timeline, label,
	fsentry, started, stopped, pinned, status, systemid, wal_segment_size, used_profile`

// GetBackupList returns every BaseBackup for archiveID, newest-started
// first, with tablespaces populated — the form the retention engine
// consumes.
func (c *Catalog) GetBackupList(ctx context.Context, archiveID int64) ([]*BaseBackupDescr, error) {
	rows, err := c.db.QueryContext(ctx,
		"SELECT "+baseBackupColumns+" FROM backup WHERE archive_id = ? ORDER BY started DESC", archiveID)
	if err != nil {
		return nil, apperrors.Catalog("get backup list", err)
	}
	defer rows.Close()

	var out []*BaseBackupDescr
	for rows.Next() {
		d, err := scanBaseBackup(rows.Scan)
		if err != nil {
			return nil, apperrors.Catalog("get backup list", err)
		}
		ts, err := getTablespacesForBackup(ctx, c.db, d.ID)
		if err != nil {
			return nil, err
		}
		d.Tablespaces = ts
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetBackupListFiltered returns BaseBackup rows for archiveID annotated
// with the computed exceeds_retention_rule column, evaluated against mode
// ("newer_than"/"older_than") and interval.
func (c *Catalog) GetBackupListFiltered(ctx context.Context, archiveID int64, mode string, interval IntervalExpr) ([]*BaseBackupDescr, error) {
	all, err := c.GetBackupList(ctx, archiveID)
	if err != nil {
		return nil, err
	}
	for _, d := range all {
		exceeds, err := c.ExceedsRetention(ctx, d, mode, interval)
		if err != nil {
			return nil, err
		}
		d.ExceedsRetentionRule = exceeds
	}
	return all, nil
}

// BackupSelector picks one BaseBackup out of an archive's list.
type BackupSelector struct {
	ID     int64 // used when > 0
	Label  string
	Newest bool
	Oldest bool
}

// GetBaseBackup resolves a selector ({id|name|newest|oldest}) against
// archiveID, optionally restricting to valid (ready) backups.
func (c *Catalog) GetBaseBackup(ctx context.Context, sel BackupSelector, archiveID int64, validOnly bool) (*BaseBackupDescr, error) {
	query := "SELECT " + baseBackupColumns + " FROM backup WHERE archive_id = ?"
	args := []any{archiveID}

	switch {
	case sel.ID > 0:
		query += " AND id = ?"
		args = append(args, sel.ID)
	case sel.Label != "":
		query += " AND label = ?"
		args = append(args, sel.Label)
	}
	if validOnly {
		query += " AND status = ?"
		args = append(args, string(StatusReady))
	}
	switch {
	case sel.Newest:
		query += " ORDER BY started DESC LIMIT 1"
	case sel.Oldest:
		query += " ORDER BY started ASC LIMIT 1"
	default:
		query += " LIMIT 1"
	}

	row := c.db.QueryRowContext(ctx, query, args...)
	d, err := scanBaseBackup(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Catalog("get basebackup", errors.New("no matching basebackup"))
		}
		return nil, apperrors.Catalog("get basebackup", err)
	}
	ts, err := getTablespacesForBackup(ctx, c.db, d.ID)
	if err != nil {
		return nil, err
	}
	d.Tablespaces = ts
	return d, nil
}

// ExceedsRetention evaluates whether backup.Stopped crosses the
// now-relative threshold defined by interval, in the direction named by
// mode ("newer_than" or "older_than").
//
// In-progress backups are always reported as not exceeding: they are
// always kept.
func (c *Catalog) ExceedsRetention(ctx context.Context, backup *BaseBackupDescr, mode string, interval IntervalExpr) (bool, error) {
	if backup.Status == StatusInProgress {
		return false, nil
	}

	mods := interval.Negate().SQLiteModifiers()
	placeholders := strings.Repeat(", ?", len(mods))
	query := "SELECT datetime('now'" + placeholders + ")"
	args := make([]any, len(mods))
	for i, m := range mods {
		args[i] = m
	}

	var thresholdStr string
	if err := c.db.QueryRowContext(ctx, query, args...).Scan(&thresholdStr); err != nil {
		return false, apperrors.Catalog("exceeds retention", err)
	}
	threshold, err := time.Parse("2006-01-02 15:04:05", thresholdStr)
	if err != nil {
		return false, apperrors.Catalog("exceeds retention", err)
	}

	switch mode {
	case "newer_than":
		return backup.Stopped.After(threshold), nil
	case "older_than":
		return backup.Stopped.Before(threshold), nil
	default:
		return false, apperrors.Catalog("exceeds retention", fmt.Errorf("unknown mode %q", mode))
	}
}

// PerformPinAction flips the pinned flag for every id in ids within a
// single batch update (performPinAction).
func (c *Catalog) PerformPinAction(ctx context.Context, ids []int64, pinned bool) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	args = append(args, pinned)
	for _, id := range ids {
		args = append(args, id)
	}
	query := fmt.Sprintf("UPDATE backup SET pinned = ? WHERE id IN (%s)", placeholders)
	return c.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return apperrors.Catalog("perform pin action", err)
		}
		return nil
	})
}
