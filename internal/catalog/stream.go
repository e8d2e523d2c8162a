package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jfoltran/pgbackupctl/internal/apperrors"
)

const streamColumns = `id, archive_id, stype, slot_name, systemid, timeline, xlogpos, dbname, status, create_date`

func scanStream(scan func(dest ...any) error) (*StreamDescr, error) {
	d := &StreamDescr{}
	var stype string
	var dbname sql.NullString
	if err := scan(&d.ID, &d.ArchiveID, &stype, &d.SlotName, &d.SystemID, &d.Timeline,
		&d.Xlogpos, &dbname, &d.Status, &d.CreateDate); err != nil {
		return nil, err
	}
	d.Type = StreamType(stype)
	d.DBName = dbname.String
	return d, nil
}

// RegisterStream inserts a new Stream row. Only one active WAL stream
// per archive is tracked at any time — callers are expected to have
// checked there is no other active stream before calling this.
func (c *Catalog) RegisterStream(ctx context.Context, d *StreamDescr) (int64, error) {
	var id int64
	err := c.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO stream (archive_id, stype, slot_name, systemid, timeline, xlogpos, dbname, status, create_date)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.ArchiveID, string(d.Type), d.SlotName, d.SystemID, d.Timeline, d.Xlogpos,
			nullIfEmpty(d.DBName), d.Status, d.CreateDate)
		if err != nil {
			return apperrors.Catalog("register stream", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, err
	}
	d.ID = id
	return id, nil
}

// UpdateStream applies affectedCols from values onto the Stream row id,
// implementing the affected-attributes protocol for streams.
func (c *Catalog) UpdateStream(ctx context.Context, id int64, affectedCols []ColumnID, values map[ColumnID]any) error {
	if len(affectedCols) == 0 {
		return nil
	}
	colNames := map[ColumnID]string{
		ColStreamTimeline: "timeline",
		ColStreamXlogpos:  "xlogpos",
		ColStreamStatus:   "status",
		ColStreamSystemID: "systemid",
	}

	query := "UPDATE stream SET "
	args := make([]any, 0, len(affectedCols)+1)
	for i, col := range affectedCols {
		name, ok := colNames[col]
		if !ok {
			return apperrors.Catalog("update stream", fmt.Errorf("column %d is not bindable on stream", col))
		}
		if i > 0 {
			query += ", "
		}
		query += name + " = ?"
		args = append(args, values[col])
	}
	query += " WHERE id = ?"
	args = append(args, id)

	return c.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return apperrors.Catalog("update stream", err)
		}
		return nil
	})
}

// SetStreamStatus is a convenience wrapper over UpdateStream for the
// single-column case.
func (c *Catalog) SetStreamStatus(ctx context.Context, id int64, status string) error {
	return c.UpdateStream(ctx, id, []ColumnID{ColStreamStatus}, map[ColumnID]any{ColStreamStatus: status})
}

// DropStream removes the Stream row.
func (c *Catalog) DropStream(ctx context.Context, id int64) error {
	return c.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "DELETE FROM stream WHERE id = ?", id)
		if err != nil {
			return apperrors.Catalog("drop stream", err)
		}
		return nil
	})
}

// GetActiveStream returns the current Stream row for archiveID, if any.
func (c *Catalog) GetActiveStream(ctx context.Context, archiveID int64) (*StreamDescr, error) {
	row := c.db.QueryRowContext(ctx,
		"SELECT "+streamColumns+" FROM stream WHERE archive_id = ? ORDER BY create_date DESC LIMIT 1", archiveID)
	d, err := scanStream(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Catalog("get stream", errors.New("no active stream"))
		}
		return nil, apperrors.Catalog("get stream", err)
	}
	return d, nil
}

const procColumns = `pid, archive_id, type, started, state, shm_key, shm_id`

func scanProc(scan func(dest ...any) error) (*CatalogProcDescr, error) {
	d := &CatalogProcDescr{}
	var typ, state string
	var archiveID sql.NullInt64
	var shmKey sql.NullString
	var shmID sql.NullInt64
	if err := scan(&d.PID, &archiveID, &typ, &d.Started, &state, &shmKey, &shmID); err != nil {
		return nil, err
	}
	d.ArchiveID = archiveID.Int64
	d.Type = ProcType(typ)
	d.State = ProcState(state)
	d.ShmKey = shmKey.String
	d.ShmID = shmID.Int64
	return d, nil
}

// RegisterProc inserts a CatalogProc row — used by the supervisor to
// detect existing launchers and reap stale entries.
func (c *Catalog) RegisterProc(ctx context.Context, d *CatalogProcDescr) error {
	return c.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO procs (pid, archive_id, type, started, state, shm_key, shm_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			d.PID, nullIfZero64(d.ArchiveID), string(d.Type), d.Started, string(d.State),
			nullIfEmpty(d.ShmKey), d.ShmID)
		if err != nil {
			return apperrors.Catalog("register proc", err)
		}
		return nil
	})
}

// UnregisterProc removes the CatalogProc row for (pid, type).
func (c *Catalog) UnregisterProc(ctx context.Context, pid int, procType ProcType) error {
	return c.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "DELETE FROM procs WHERE pid = ? AND type = ?", pid, string(procType))
		if err != nil {
			return apperrors.Catalog("unregister proc", err)
		}
		return nil
	})
}

// UpdateProc sets the state column for (pid, type).
func (c *Catalog) UpdateProc(ctx context.Context, pid int, procType ProcType, state ProcState) error {
	return c.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"UPDATE procs SET state = ? WHERE pid = ? AND type = ?", string(state), pid, string(procType))
		if err != nil {
			return apperrors.Catalog("update proc", err)
		}
		return nil
	})
}

// GetProc fetches the running process row for (archiveID, type), if any —
// used by the launcher to detect an already-running supervisor.
func (c *Catalog) GetProc(ctx context.Context, archiveID int64, procType ProcType) (*CatalogProcDescr, error) {
	row := c.db.QueryRowContext(ctx,
		"SELECT "+procColumns+" FROM procs WHERE archive_id = ? AND type = ? AND state = ?",
		archiveID, string(procType), string(ProcRunning))
	d, err := scanProc(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.Catalog("get proc", err)
	}
	return d, nil
}

func nullIfZero64(i int64) any {
	if i == 0 {
		return nil
	}
	return i
}
