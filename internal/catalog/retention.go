package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jfoltran/pgbackupctl/internal/apperrors"
)

// CreateRetentionPolicy inserts one policy row plus N rule rows as a
// single transaction ("retention policy creation inserts
// one policy plus N rules").
func (c *Catalog) CreateRetentionPolicy(ctx context.Context, d *RetentionPolicyDescr) (int64, error) {
	if d.Created.IsZero() {
		d.Created = time.Now().UTC()
	}

	var id int64
	err := c.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO retention (name, created) VALUES (?, ?)", d.Name, d.Created)
		if err != nil {
			return apperrors.Catalog("create retention policy", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return apperrors.Catalog("create retention policy", err)
		}

		for i := range d.Rules {
			rres, err := tx.ExecContext(ctx,
				"INSERT INTO retention_rules (policy_id, type, value) VALUES (?, ?, ?)",
				id, string(d.Rules[i].Type), d.Rules[i].Value)
			if err != nil {
				return apperrors.Catalog("create retention policy", err)
			}
			ruleID, err := rres.LastInsertId()
			if err != nil {
				return apperrors.Catalog("create retention policy", err)
			}
			d.Rules[i].ID = ruleID
			d.Rules[i].PolicyID = id
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	d.ID = id
	return id, nil
}

// DropRetentionPolicy deletes the named policy and its rules (cascade).
func (c *Catalog) DropRetentionPolicy(ctx context.Context, name string) error {
	return c.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM retention WHERE name = ?", name)
		if err != nil {
			return apperrors.Catalog("drop retention policy", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return apperrors.Catalog("drop retention policy", err)
		}
		if n == 0 {
			return apperrors.Catalog("drop retention policy", fmt.Errorf("policy %q not found", name))
		}
		return nil
	})
}

// GetRetentionPolicy fetches a policy by name with its rules.
func (c *Catalog) GetRetentionPolicy(ctx context.Context, name string) (*RetentionPolicyDescr, error) {
	row := c.db.QueryRowContext(ctx, "SELECT id, name, created FROM retention WHERE name = ?", name)
	d := &RetentionPolicyDescr{}
	if err := row.Scan(&d.ID, &d.Name, &d.Created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Catalog("get retention policy", fmt.Errorf("policy %q not found", name))
		}
		return nil, apperrors.Catalog("get retention policy", err)
	}

	rules, err := c.getRetentionRules(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	d.Rules = rules
	return d, nil
}

// GetRetentionPolicies returns every policy with its rules.
func (c *Catalog) GetRetentionPolicies(ctx context.Context) ([]*RetentionPolicyDescr, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT id, name, created FROM retention ORDER BY name")
	if err != nil {
		return nil, apperrors.Catalog("get retention policies", err)
	}
	defer rows.Close()

	var out []*RetentionPolicyDescr
	for rows.Next() {
		d := &RetentionPolicyDescr{}
		if err := rows.Scan(&d.ID, &d.Name, &d.Created); err != nil {
			return nil, apperrors.Catalog("get retention policies", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Catalog("get retention policies", err)
	}

	for _, d := range out {
		rules, err := c.getRetentionRules(ctx, d.ID)
		if err != nil {
			return nil, err
		}
		d.Rules = rules
	}
	return out, nil
}

func (c *Catalog) getRetentionRules(ctx context.Context, policyID int64) ([]RetentionRuleDescr, error) {
	rows, err := c.db.QueryContext(ctx,
		"SELECT id, policy_id, type, value FROM retention_rules WHERE policy_id = ? ORDER BY id", policyID)
	if err != nil {
		return nil, apperrors.Catalog("get retention rules", err)
	}
	defer rows.Close()

	var out []RetentionRuleDescr
	for rows.Next() {
		var r RetentionRuleDescr
		var typ string
		if err := rows.Scan(&r.ID, &r.PolicyID, &typ, &r.Value); err != nil {
			return nil, apperrors.Catalog("get retention rules", err)
		}
		r.Type = RuleType(typ)
		out = append(out, r)
	}
	return out, rows.Err()
}
