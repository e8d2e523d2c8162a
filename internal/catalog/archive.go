package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jfoltran/pgbackupctl/internal/apperrors"
)

// archiveBind maps ColumnID to a function that extracts the corresponding
// value from an ArchiveDescr and the SQL column name it binds to. This is
// the per-entity half of the affected-attributes dispatch table.
var archiveBind = map[ColumnID]struct {
	column string
	value  func(*ArchiveDescr) any
}{
	ColArchiveName:        {"name", func(d *ArchiveDescr) any { return d.Name }},
	ColArchiveDirectory:   {"directory", func(d *ArchiveDescr) any { return d.Directory }},
	ColArchiveCompression: {"compression", func(d *ArchiveDescr) any { return d.Compression }},
}

// CreateArchive inserts a new Archive row. name must be unique.
func (c *Catalog) CreateArchive(ctx context.Context, d *ArchiveDescr) (int64, error) {
	var id int64
	err := c.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO archive (name, directory, compression) VALUES (?, ?, ?)",
			d.Name, d.Directory, d.Compression)
		if err != nil {
			return apperrors.Catalog("create archive", err)
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

// UpdateArchive applies d's affected columns to the row identified by
// d.ID, generating parameterized SQL from the affected-attributes vector.
func (c *Catalog) UpdateArchive(ctx context.Context, d *ArchiveDescr) error {
	cols := d.Affected()
	if len(cols) == 0 {
		return nil
	}

	setClauses := make([]string, 0, len(cols))
	args := make([]any, 0, len(cols)+1)
	for _, col := range cols {
		if err := bindComputedGuard(col); err != nil {
			return err
		}
		spec, ok := archiveBind[col]
		if !ok {
			return apperrors.Catalog("update archive", fmt.Errorf("column %d is not bindable on archive", col))
		}
		setClauses = append(setClauses, spec.column+" = ?")
		args = append(args, spec.value(d))
	}
	args = append(args, d.ID)

	query := "UPDATE archive SET "
	for i, clause := range setClauses {
		if i > 0 {
			query += ", "
		}
		query += clause
	}
	query += " WHERE id = ?"

	return c.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return apperrors.Catalog("update archive", err)
		}
		return nil
	})
}

// DropArchive deletes the Archive row and everything that cascades from
// it. Callers are responsible for verifying no worker is attached first
// (lifecycle).
func (c *Catalog) DropArchive(ctx context.Context, name string) error {
	return c.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM archive WHERE name = ?", name)
		if err != nil {
			return apperrors.Catalog("drop archive", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return apperrors.Catalog("drop archive", err)
		}
		if n == 0 {
			return apperrors.Catalog("drop archive", fmt.Errorf("archive %q not found", name))
		}
		return nil
	})
}

// GetArchive fetches an Archive by name.
func (c *Catalog) GetArchive(ctx context.Context, name string) (*ArchiveDescr, error) {
	row := c.db.QueryRowContext(ctx,
		"SELECT id, name, directory, compression FROM archive WHERE name = ?", name)
	d := &ArchiveDescr{}
	if err := row.Scan(&d.ID, &d.Name, &d.Directory, &d.Compression); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Catalog("get archive", fmt.Errorf("archive %q not found", name))
		}
		return nil, apperrors.Catalog("get archive", err)
	}
	return d, nil
}

// ListArchives returns every Archive row.
func (c *Catalog) ListArchives(ctx context.Context) ([]*ArchiveDescr, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT id, name, directory, compression FROM archive ORDER BY name")
	if err != nil {
		return nil, apperrors.Catalog("list archives", err)
	}
	defer rows.Close()

	var out []*ArchiveDescr
	for rows.Next() {
		d := &ArchiveDescr{}
		if err := rows.Scan(&d.ID, &d.Name, &d.Directory, &d.Compression); err != nil {
			return nil, apperrors.Catalog("list archives", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
