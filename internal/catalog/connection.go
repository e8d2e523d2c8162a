package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jfoltran/pgbackupctl/internal/apperrors"
)

// CreateCatalogConnection inserts a new Connection row. Referential rule:
// one connection per (archive, type).
func (c *Catalog) CreateCatalogConnection(ctx context.Context, d *ConnectionDescr) error {
	return c.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO connections (archive_id, type, dsn, host, port, user, dbname)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			d.ArchiveID, string(d.Type), nullIfEmpty(d.DSN), nullIfEmpty(d.Host),
			nullIfZero(d.Port), nullIfEmpty(d.User), nullIfEmpty(d.DBName))
		if err != nil {
			return apperrors.Catalog("create connection", err)
		}
		return nil
	})
}

// UpdateCatalogConnection replaces the connection row for (archive, type)
// with the affected columns in d.
func (c *Catalog) UpdateCatalogConnection(ctx context.Context, archiveName string, d *ConnectionDescr) error {
	archive, err := c.GetArchive(ctx, archiveName)
	if err != nil {
		return err
	}
	d.ArchiveID = archive.ID

	cols := d.Affected()
	if len(cols) == 0 {
		return nil
	}

	bind := map[ColumnID]struct {
		column string
		value  any
	}{
		ColConnDSN:    {"dsn", nullIfEmpty(d.DSN)},
		ColConnHost:   {"host", nullIfEmpty(d.Host)},
		ColConnPort:   {"port", nullIfZero(d.Port)},
		ColConnUser:   {"user", nullIfEmpty(d.User)},
		ColConnDBName: {"dbname", nullIfEmpty(d.DBName)},
	}

	query := "UPDATE connections SET "
	args := make([]any, 0, len(cols)+2)
	for i, col := range cols {
		spec, ok := bind[col]
		if !ok {
			return apperrors.Catalog("update connection", fmt.Errorf("column %d is not bindable on connection", col))
		}
		if i > 0 {
			query += ", "
		}
		query += spec.column + " = ?"
		args = append(args, spec.value)
	}
	query += " WHERE archive_id = ? AND type = ?"
	args = append(args, d.ArchiveID, string(d.Type))

	return c.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return apperrors.Catalog("update connection", err)
		}
		return nil
	})
}

// DropCatalogConnection removes the (archive, type) connection row.
func (c *Catalog) DropCatalogConnection(ctx context.Context, archiveName string, connType ConnType) error {
	archive, err := c.GetArchive(ctx, archiveName)
	if err != nil {
		return err
	}
	return c.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"DELETE FROM connections WHERE archive_id = ? AND type = ?", archive.ID, string(connType))
		if err != nil {
			return apperrors.Catalog("drop connection", err)
		}
		return nil
	})
}

// GetCatalogConnection fetches connection rows for archiveID, optionally
// filtered to one type.
func (c *Catalog) GetCatalogConnection(ctx context.Context, archiveID int64, connType *ConnType) ([]*ConnectionDescr, error) {
	query := "SELECT archive_id, type, dsn, host, port, user, dbname FROM connections WHERE archive_id = ?"
	args := []any{archiveID}
	if connType != nil {
		query += " AND type = ?"
		args = append(args, string(*connType))
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Catalog("get connection", err)
	}
	defer rows.Close()

	var out []*ConnectionDescr
	for rows.Next() {
		d := &ConnectionDescr{}
		var typ string
		var dsn, host, user, dbname sql.NullString
		var port sql.NullInt64
		if err := rows.Scan(&d.ArchiveID, &typ, &dsn, &host, &port, &user, &dbname); err != nil {
			return nil, apperrors.Catalog("get connection", err)
		}
		d.Type = ConnType(typ)
		d.DSN = dsn.String
		d.Host = host.String
		d.Port = int(port.Int64)
		d.User = user.String
		d.DBName = dbname.String
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Catalog("get connection", err)
	}
	if len(out) == 0 {
		return nil, apperrors.Catalog("get connection", errors.New("no matching connection"))
	}
	return out, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullIfZero(i int) any {
	if i == 0 {
		return nil
	}
	return i
}
