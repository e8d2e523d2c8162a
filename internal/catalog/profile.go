package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jfoltran/pgbackupctl/internal/apperrors"
)

// CreateBackupProfile inserts a new BackupProfile row; name is unique.
func (c *Catalog) CreateBackupProfile(ctx context.Context, d *BackupProfileDescr) (int64, error) {
	var id int64
	err := c.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO backup_profiles
			 (name, compress_type, max_rate, label, fast_checkpoint, include_wal,
			  wait_for_wal, noverify_checksums, manifest, manifest_checksums)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.Name, string(d.CompressType), d.MaxRate, d.Label, d.FastCheckpoint,
			d.IncludeWAL, d.WaitForWAL, d.NoverifyChecksums, d.Manifest, d.ManifestChecksums)
		if err != nil {
			return apperrors.Catalog("create backup profile", err)
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

// DropBackupProfile deletes the named profile. Profiles carry no lifecycle
// coupling to backups , so dropping never cascades.
func (c *Catalog) DropBackupProfile(ctx context.Context, name string) error {
	return c.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM backup_profiles WHERE name = ?", name)
		if err != nil {
			return apperrors.Catalog("drop backup profile", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return apperrors.Catalog("drop backup profile", err)
		}
		if n == 0 {
			return apperrors.Catalog("drop backup profile", fmt.Errorf("profile %q not found", name))
		}
		return nil
	})
}

// GetBackupProfile fetches a profile by name.
func (c *Catalog) GetBackupProfile(ctx context.Context, name string) (*BackupProfileDescr, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT id, name, compress_type, max_rate, label, fast_checkpoint, include_wal,
		        wait_for_wal, noverify_checksums, manifest, manifest_checksums
		 FROM backup_profiles WHERE name = ?`, name)
	d := &BackupProfileDescr{}
	var compressType string
	if err := row.Scan(&d.ID, &d.Name, &compressType, &d.MaxRate, &d.Label, &d.FastCheckpoint,
		&d.IncludeWAL, &d.WaitForWAL, &d.NoverifyChecksums, &d.Manifest, &d.ManifestChecksums); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Catalog("get backup profile", fmt.Errorf("profile %q not found", name))
		}
		return nil, apperrors.Catalog("get backup profile", err)
	}
	d.CompressType = CompressType(compressType)
	return d, nil
}

// ListBackupProfiles returns every BackupProfile row.
func (c *Catalog) ListBackupProfiles(ctx context.Context) ([]*BackupProfileDescr, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, name, compress_type, max_rate, label, fast_checkpoint, include_wal,
		        wait_for_wal, noverify_checksums, manifest, manifest_checksums
		 FROM backup_profiles ORDER BY name`)
	if err != nil {
		return nil, apperrors.Catalog("list backup profiles", err)
	}
	defer rows.Close()

	var out []*BackupProfileDescr
	for rows.Next() {
		d := &BackupProfileDescr{}
		var compressType string
		if err := rows.Scan(&d.ID, &d.Name, &compressType, &d.MaxRate, &d.Label, &d.FastCheckpoint,
			&d.IncludeWAL, &d.WaitForWAL, &d.NoverifyChecksums, &d.Manifest, &d.ManifestChecksums); err != nil {
			return nil, apperrors.Catalog("list backup profiles", err)
		}
		d.CompressType = CompressType(compressType)
		out = append(out, d)
	}
	return out, rows.Err()
}
