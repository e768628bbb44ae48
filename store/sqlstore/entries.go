package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/finance-engine/ledger"
)

// =============================================================================
// ENTRIES
// =============================================================================

const entryColumns = `id, owner_id, kind, entry_date, category_id, description, amount,
	account_id, rule_id, source_key, created_at, updated_at`

func (q *queries) InsertEntry(ctx context.Context, e ledger.Entry) error {
	query := `
		INSERT INTO entries
		(id, owner_id, kind, entry_date, category_id, description, amount,
		 account_id, rule_id, source_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	amount, err := ledger.ToMinor(e.Amount)
	if err != nil {
		return err
	}
	_, err = q.exec(ctx, query,
		string(e.ID),
		string(e.OwnerID),
		string(e.Kind),
		ledger.FormatDay(e.Date),
		string(e.CategoryID),
		e.Description,
		amount,
		nullString(string(e.AccountID)),
		nullString(string(e.RuleID)),
		nullString(e.SourceKey),
		formatTime(e.CreatedAt),
		formatTime(e.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) && e.SourceKey != "" {
			return ledger.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to insert entry: %w", err)
	}
	return nil
}

// UpdateEntry rewrites the mutable columns. Kind, rule and source key are
// fixed at creation.
func (q *queries) UpdateEntry(ctx context.Context, e ledger.Entry) error {
	query := `
		UPDATE entries
		SET entry_date = ?, category_id = ?, description = ?, amount = ?,
		    account_id = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?
	`
	amount, err := ledger.ToMinor(e.Amount)
	if err != nil {
		return err
	}
	res, err := q.exec(ctx, query,
		ledger.FormatDay(e.Date),
		string(e.CategoryID),
		e.Description,
		amount,
		nullString(string(e.AccountID)),
		formatTime(e.UpdatedAt),
		string(e.ID),
		string(e.OwnerID),
	)
	if err != nil {
		return fmt.Errorf("failed to update entry: %w", err)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrEntryNotFound
	}
	return nil
}

func (q *queries) GetEntry(ctx context.Context, owner ledger.OwnerID, id ledger.EntryID) (ledger.Entry, error) {
	return q.getEntry(ctx, owner, id, "")
}

func (q *queries) GetEntryForUpdate(ctx context.Context, owner ledger.OwnerID, id ledger.EntryID) (ledger.Entry, error) {
	return q.getEntry(ctx, owner, id, q.forUpdate())
}

func (q *queries) getEntry(ctx context.Context, owner ledger.OwnerID, id ledger.EntryID, suffix string) (ledger.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM entries WHERE id = ? AND owner_id = ?` + suffix

	e, err := scanEntry(q.queryRow(ctx, query, string(id), string(owner)))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Entry{}, ledger.ErrEntryNotFound
	}
	if err != nil {
		return ledger.Entry{}, fmt.Errorf("failed to get entry: %w", err)
	}
	return e, nil
}

func (q *queries) DeleteEntry(ctx context.Context, owner ledger.OwnerID, id ledger.EntryID) error {
	res, err := q.exec(ctx, `DELETE FROM entries WHERE id = ? AND owner_id = ?`, string(id), string(owner))
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrEntryNotFound
	}
	return nil
}

func (q *queries) ListEntries(ctx context.Context, owner ledger.OwnerID, f ledger.EntryFilter) ([]ledger.Entry, error) {
	var (
		where = []string{"owner_id = ?"}
		args  = []any{string(owner)}
	)
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.AccountID != "" {
		where = append(where, "account_id = ?")
		args = append(args, string(f.AccountID))
	}
	if f.CategoryID != "" {
		where = append(where, "category_id = ?")
		args = append(args, string(f.CategoryID))
	}
	if !f.From.IsZero() {
		where = append(where, "entry_date >= ?")
		args = append(args, ledger.FormatDay(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "entry_date <= ?")
		args = append(args, ledger.FormatDay(f.To))
	}

	query := `SELECT ` + entryColumns + ` FROM entries WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY entry_date DESC, created_at DESC, id ASC`

	limit := f.Limit
	if limit <= 0 && f.Offset > 0 {
		limit = math.MaxInt32
	}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
		if f.Offset > 0 {
			query += ` OFFSET ?`
			args = append(args, f.Offset)
		}
	}

	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// EntryExists checks if an idempotency key exists.
func (q *queries) EntryExists(ctx context.Context, sourceKey string) (bool, error) {
	var count int
	err := q.queryRow(ctx, `SELECT COUNT(*) FROM entries WHERE source_key = ?`, sourceKey).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check source key: %w", err)
	}
	return count > 0, nil
}

func (q *queries) SumExpenses(ctx context.Context, owner ledger.OwnerID, category ledger.CategoryID, from, to time.Time) (decimal.Decimal, error) {
	query := `
		SELECT CAST(COALESCE(SUM(amount), 0) AS BIGINT)
		FROM entries
		WHERE owner_id = ? AND kind = ? AND category_id = ?
		  AND entry_date >= ? AND entry_date <= ?
	`
	var total int64
	err := q.queryRow(ctx, query,
		string(owner), string(ledger.KindExpense), string(category),
		ledger.FormatDay(from), ledger.FormatDay(to),
	).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum expenses: %w", err)
	}
	return ledger.FromMinor(total), nil
}

func scanEntry(row rowScanner) (ledger.Entry, error) {
	var (
		e                     ledger.Entry
		id, owner, kind       string
		date, category        string
		amount                int64
		account, rule, source sql.NullString
		createdAt, updatedAt  string
	)
	err := row.Scan(&id, &owner, &kind, &date, &category, &e.Description, &amount,
		&account, &rule, &source, &createdAt, &updatedAt)
	if err != nil {
		return e, err
	}
	e.ID = ledger.EntryID(id)
	e.OwnerID = ledger.OwnerID(owner)
	e.Kind = ledger.Kind(kind)
	e.CategoryID = ledger.CategoryID(category)
	e.Amount = ledger.FromMinor(amount)
	e.AccountID = ledger.AccountID(account.String)
	e.RuleID = ledger.RuleID(rule.String)
	e.SourceKey = source.String
	if e.Date, err = parseDay(date); err != nil {
		return e, err
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return e, err
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return e, err
	}
	return e, nil
}

// =============================================================================
// TRANSFERS
// =============================================================================

func (q *queries) InsertTransfer(ctx context.Context, t ledger.Transfer) error {
	query := `
		INSERT INTO transfers
		(id, owner_id, source_id, destination_id, amount, transfer_date, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	amount, err := ledger.ToMinor(t.Amount)
	if err != nil {
		return err
	}
	_, err = q.exec(ctx, query,
		string(t.ID),
		string(t.OwnerID),
		string(t.SourceID),
		string(t.DestinationID),
		amount,
		ledger.FormatDay(t.Date),
		t.Description,
		formatTime(t.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transfer: %w", err)
	}
	return nil
}

func (q *queries) ListTransfers(ctx context.Context, owner ledger.OwnerID, account ledger.AccountID) ([]ledger.Transfer, error) {
	query := `
		SELECT id, owner_id, source_id, destination_id, amount, transfer_date, description, created_at
		FROM transfers
		WHERE owner_id = ?`
	args := []any{string(owner)}
	if account != "" {
		query += ` AND (source_id = ? OR destination_id = ?)`
		args = append(args, string(account), string(account))
	}
	query += ` ORDER BY transfer_date DESC, created_at DESC`

	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transfers: %w", err)
	}
	defer rows.Close()

	var transfers []ledger.Transfer
	for rows.Next() {
		var (
			t                 ledger.Transfer
			id, own, src, dst string
			amount            int64
			date, createdAt   string
		)
		if err := rows.Scan(&id, &own, &src, &dst, &amount, &date, &t.Description, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan transfer: %w", err)
		}
		t.ID = ledger.TransferID(id)
		t.OwnerID = ledger.OwnerID(own)
		t.SourceID = ledger.AccountID(src)
		t.DestinationID = ledger.AccountID(dst)
		t.Amount = ledger.FromMinor(amount)
		if t.Date, err = parseDay(date); err != nil {
			return nil, err
		}
		if t.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		transfers = append(transfers, t)
	}
	return transfers, rows.Err()
}
