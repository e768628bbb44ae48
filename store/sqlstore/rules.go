package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/warp/finance-engine/ledger"
)

// =============================================================================
// RECURRING RULES
// =============================================================================

const ruleColumns = `id, owner_id, description, category_id, amount, account_id,
	cadence, anchor_day, next_due, last_generated, active, created_at`

// SaveRule inserts the rule or replaces it when the id exists for the same
// owner. A rule id owned by someone else is reported as not found.
func (q *queries) SaveRule(ctx context.Context, r ledger.RecurringRule) error {
	query := `
		INSERT INTO recurring_rules
		(id, owner_id, description, category_id, amount, account_id,
		 cadence, anchor_day, next_due, last_generated, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			description = excluded.description,
			category_id = excluded.category_id,
			amount = excluded.amount,
			account_id = excluded.account_id,
			cadence = excluded.cadence,
			anchor_day = excluded.anchor_day,
			next_due = excluded.next_due,
			last_generated = excluded.last_generated,
			active = excluded.active
		WHERE recurring_rules.owner_id = excluded.owner_id
	`
	var last sql.NullString
	if r.LastGenerated != nil {
		last = nullString(ledger.FormatDay(*r.LastGenerated))
	}
	amount, err := ledger.ToMinor(r.Amount)
	if err != nil {
		return err
	}
	res, err := q.exec(ctx, query,
		string(r.ID),
		string(r.OwnerID),
		r.Description,
		string(r.CategoryID),
		amount,
		nullString(string(r.AccountID)),
		string(r.Cadence),
		r.AnchorDay,
		ledger.FormatDay(r.NextDue),
		last,
		r.Active,
		formatTime(r.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save rule: %w", err)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrRuleNotFound
	}
	return nil
}

func (q *queries) GetRule(ctx context.Context, owner ledger.OwnerID, id ledger.RuleID) (ledger.RecurringRule, error) {
	return q.getRule(ctx, owner, id, "")
}

func (q *queries) GetRuleForUpdate(ctx context.Context, owner ledger.OwnerID, id ledger.RuleID) (ledger.RecurringRule, error) {
	return q.getRule(ctx, owner, id, q.forUpdate())
}

func (q *queries) getRule(ctx context.Context, owner ledger.OwnerID, id ledger.RuleID, suffix string) (ledger.RecurringRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM recurring_rules WHERE id = ? AND owner_id = ?` + suffix

	r, err := scanRule(q.queryRow(ctx, query, string(id), string(owner)))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.RecurringRule{}, ledger.ErrRuleNotFound
	}
	if err != nil {
		return ledger.RecurringRule{}, fmt.Errorf("failed to get rule: %w", err)
	}
	return r, nil
}

func (q *queries) DeleteRule(ctx context.Context, owner ledger.OwnerID, id ledger.RuleID) error {
	res, err := q.exec(ctx, `DELETE FROM recurring_rules WHERE id = ? AND owner_id = ?`, string(id), string(owner))
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrRuleNotFound
	}
	return nil
}

func (q *queries) ListRules(ctx context.Context, owner ledger.OwnerID) ([]ledger.RecurringRule, error) {
	query := `SELECT ` + ruleColumns + ` FROM recurring_rules WHERE owner_id = ? ORDER BY next_due ASC, id ASC`
	return q.listRules(ctx, query, string(owner))
}

func (q *queries) ListDueRules(ctx context.Context, owner ledger.OwnerID, asOf time.Time) ([]ledger.RecurringRule, error) {
	query := `
		SELECT ` + ruleColumns + `
		FROM recurring_rules
		WHERE owner_id = ? AND active = ? AND next_due <= ?
		ORDER BY next_due ASC, id ASC
	`
	return q.listRules(ctx, query, string(owner), true, ledger.FormatDay(asOf))
}

func (q *queries) OwnersWithDueRules(ctx context.Context, asOf time.Time) ([]ledger.OwnerID, error) {
	query := `
		SELECT DISTINCT owner_id
		FROM recurring_rules
		WHERE active = ? AND next_due <= ?
		ORDER BY owner_id
	`
	rows, err := q.query(ctx, query, true, ledger.FormatDay(asOf))
	if err != nil {
		return nil, fmt.Errorf("failed to query due owners: %w", err)
	}
	defer rows.Close()

	var owners []ledger.OwnerID
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, fmt.Errorf("failed to scan owner: %w", err)
		}
		owners = append(owners, ledger.OwnerID(owner))
	}
	return owners, rows.Err()
}

func (q *queries) listRules(ctx context.Context, query string, args ...any) ([]ledger.RecurringRule, error) {
	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var rules []ledger.RecurringRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func scanRule(row rowScanner) (ledger.RecurringRule, error) {
	var (
		r                  ledger.RecurringRule
		id, owner          string
		category, cadence  string
		amount             int64
		account, last      sql.NullString
		nextDue, createdAt string
	)
	err := row.Scan(&id, &owner, &r.Description, &category, &amount, &account,
		&cadence, &r.AnchorDay, &nextDue, &last, &r.Active, &createdAt)
	if err != nil {
		return r, err
	}
	r.ID = ledger.RuleID(id)
	r.OwnerID = ledger.OwnerID(owner)
	r.CategoryID = ledger.CategoryID(category)
	r.Amount = ledger.FromMinor(amount)
	r.AccountID = ledger.AccountID(account.String)
	r.Cadence = ledger.Cadence(cadence)
	if r.NextDue, err = parseDay(nextDue); err != nil {
		return r, err
	}
	if last.Valid {
		t, err := parseDay(last.String)
		if err != nil {
			return r, err
		}
		r.LastGenerated = &t
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return r, err
	}
	return r, nil
}
