package catalog

import (
	"context"
	"database/sql"

	"github.com/jfoltran/pgbackupctl/internal/apperrors"
)

// RegisterTablespaceForBackup inserts a BackupTablespace row within an
// already-open transaction (used by RegisterBasebackup's caller to attach
// N tablespaces to one backup row as part of a single logical mutation).
func registerTablespaceForBackupTx(ctx context.Context, tx *sql.Tx, backupID int64, d *BackupTablespaceDescr) error {
	res, err := tx.ExecContext(ctx,
		"INSERT INTO backup_tablespaces (backup_id, spcoid, spclocation, spcsize) VALUES (?, ?, ?, ?)",
		backupID, d.SpcOID, d.SpcLocation, d.SpcSize)
	if err != nil {
		return apperrors.Catalog("register tablespace", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return apperrors.Catalog("register tablespace", err)
	}
	d.ID = id
	d.BackupID = backupID
	return nil
}

// RegisterTablespaceForBackup attaches a single tablespace to an existing
// backup row, in its own transaction.
func (c *Catalog) RegisterTablespaceForBackup(ctx context.Context, backupID int64, d *BackupTablespaceDescr) error {
	return c.WithTx(ctx, func(tx *sql.Tx) error {
		return registerTablespaceForBackupTx(ctx, tx, backupID, d)
	})
}

func getTablespacesForBackup(ctx context.Context, db *sql.DB, backupID int64) ([]BackupTablespaceDescr, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT id, backup_id, spcoid, spclocation, spcsize FROM backup_tablespaces WHERE backup_id = ? ORDER BY id",
		backupID)
	if err != nil {
		return nil, apperrors.Catalog("get tablespaces", err)
	}
	defer rows.Close()

	var out []BackupTablespaceDescr
	for rows.Next() {
		var d BackupTablespaceDescr
		if err := rows.Scan(&d.ID, &d.BackupID, &d.SpcOID, &d.SpcLocation, &d.SpcSize); err != nil {
			return nil, apperrors.Catalog("get tablespaces", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
