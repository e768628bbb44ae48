package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/finance-engine/ledger"
)

// =============================================================================
// ACCOUNTS
// =============================================================================

const accountColumns = `id, owner_id, name, account_type, balance_current, balance_initial,
	currency, color, icon, active, created_at`

func (q *queries) CreateAccount(ctx context.Context, a ledger.Account) error {
	query := `
		INSERT INTO accounts
		(id, owner_id, name, account_type, balance_current, balance_initial,
		 currency, color, icon, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	current, err := ledger.ToMinor(a.BalanceCurrent)
	if err != nil {
		return err
	}
	initial, err := ledger.ToMinor(a.BalanceInitial)
	if err != nil {
		return err
	}
	_, err = q.exec(ctx, query,
		string(a.ID),
		string(a.OwnerID),
		a.Name,
		string(a.Type),
		current,
		initial,
		a.Currency,
		a.Color,
		a.Icon,
		a.Active,
		formatTime(a.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// UpdateAccount writes metadata and the active flag. Balance columns are
// never touched here.
func (q *queries) UpdateAccount(ctx context.Context, a ledger.Account) error {
	query := `
		UPDATE accounts
		SET name = ?, account_type = ?, currency = ?, color = ?, icon = ?, active = ?
		WHERE id = ? AND owner_id = ?
	`
	res, err := q.exec(ctx, query,
		a.Name, string(a.Type), a.Currency, a.Color, a.Icon, a.Active,
		string(a.ID), string(a.OwnerID),
	)
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrAccountNotFound
	}
	return nil
}

func (q *queries) GetAccount(ctx context.Context, owner ledger.OwnerID, id ledger.AccountID) (ledger.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = ? AND owner_id = ?`

	a, err := scanAccount(q.queryRow(ctx, query, string(id), string(owner)))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}
	if err != nil {
		return ledger.Account{}, fmt.Errorf("failed to get account: %w", err)
	}
	return a, nil
}

func (q *queries) ListAccounts(ctx context.Context, owner ledger.OwnerID, includeInactive bool) ([]ledger.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE owner_id = ?`
	args := []any{string(owner)}
	if !includeInactive {
		query += ` AND active = ?`
		args = append(args, true)
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []ledger.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (q *queries) AdjustBalance(ctx context.Context, owner ledger.OwnerID, id ledger.AccountID, delta decimal.Decimal) (decimal.Decimal, error) {
	query := `
		UPDATE accounts SET balance_current = balance_current + ?
		WHERE id = ? AND owner_id = ?
		RETURNING balance_current
	`
	minorDelta, err := ledger.ToMinor(delta)
	if err != nil {
		return decimal.Zero, err
	}
	var minor int64
	err = q.queryRow(ctx, query, minorDelta, string(id), string(owner)).Scan(&minor)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, ledger.ErrAccountNotFound
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to adjust balance: %w", err)
	}
	return ledger.FromMinor(minor), nil
}

func (q *queries) SumPostings(ctx context.Context, owner ledger.OwnerID, id ledger.AccountID) (ledger.PostingTotals, error) {
	if _, err := q.GetAccount(ctx, owner, id); err != nil {
		return ledger.PostingTotals{}, err
	}

	var incomes, expenses, in, out int64
	entriesQuery := `
		SELECT
			CAST(COALESCE(SUM(CASE WHEN kind = ? THEN amount ELSE 0 END), 0) AS BIGINT),
			CAST(COALESCE(SUM(CASE WHEN kind = ? THEN amount ELSE 0 END), 0) AS BIGINT)
		FROM entries
		WHERE owner_id = ? AND account_id = ?
	`
	err := q.queryRow(ctx, entriesQuery,
		string(ledger.KindIncome), string(ledger.KindExpense), string(owner), string(id),
	).Scan(&incomes, &expenses)
	if err != nil {
		return ledger.PostingTotals{}, fmt.Errorf("failed to sum entries: %w", err)
	}

	transfersQuery := `
		SELECT
			CAST(COALESCE(SUM(CASE WHEN destination_id = ? THEN amount ELSE 0 END), 0) AS BIGINT),
			CAST(COALESCE(SUM(CASE WHEN source_id = ? THEN amount ELSE 0 END), 0) AS BIGINT)
		FROM transfers
		WHERE owner_id = ? AND (source_id = ? OR destination_id = ?)
	`
	err = q.queryRow(ctx, transfersQuery,
		string(id), string(id), string(owner), string(id), string(id),
	).Scan(&in, &out)
	if err != nil {
		return ledger.PostingTotals{}, fmt.Errorf("failed to sum transfers: %w", err)
	}

	return ledger.PostingTotals{
		Incomes:      ledger.FromMinor(incomes),
		Expenses:     ledger.FromMinor(expenses),
		TransfersIn:  ledger.FromMinor(in),
		TransfersOut: ledger.FromMinor(out),
	}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (ledger.Account, error) {
	var (
		a         ledger.Account
		id, owner string
		acctType  string
		current   int64
		initial   int64
		createdAt string
	)
	err := row.Scan(&id, &owner, &a.Name, &acctType, &current, &initial,
		&a.Currency, &a.Color, &a.Icon, &a.Active, &createdAt)
	if err != nil {
		return a, err
	}
	a.ID = ledger.AccountID(id)
	a.OwnerID = ledger.OwnerID(owner)
	a.Type = ledger.AccountType(acctType)
	a.BalanceCurrent = ledger.FromMinor(current)
	a.BalanceInitial = ledger.FromMinor(initial)
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return a, err
	}
	return a, nil
}

// =============================================================================
// CATEGORIES
// =============================================================================

func (q *queries) SaveCategory(ctx context.Context, c ledger.Category) error {
	query := `
		INSERT INTO categories (id, owner_id, name, kind)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, kind = excluded.kind
		WHERE categories.owner_id = excluded.owner_id
	`
	res, err := q.exec(ctx, query, string(c.ID), string(c.OwnerID), c.Name, string(c.Kind))
	if err != nil {
		return fmt.Errorf("failed to save category: %w", err)
	}
	n, err := affected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrCategoryNotFound
	}
	return nil
}

func (q *queries) GetCategory(ctx context.Context, owner ledger.OwnerID, id ledger.CategoryID) (ledger.Category, error) {
	query := `SELECT id, owner_id, name, kind FROM categories WHERE id = ? AND owner_id = ?`

	c, err := scanCategory(q.queryRow(ctx, query, string(id), string(owner)))
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Category{}, ledger.ErrCategoryNotFound
	}
	if err != nil {
		return ledger.Category{}, fmt.Errorf("failed to get category: %w", err)
	}
	return c, nil
}

func (q *queries) ListCategories(ctx context.Context, owner ledger.OwnerID) ([]ledger.Category, error) {
	query := `SELECT id, owner_id, name, kind FROM categories WHERE owner_id = ? ORDER BY name ASC, id ASC`

	rows, err := q.query(ctx, query, string(owner))
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()

	var categories []ledger.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func scanCategory(row rowScanner) (ledger.Category, error) {
	var id, owner, name, kind string
	if err := row.Scan(&id, &owner, &name, &kind); err != nil {
		return ledger.Category{}, err
	}
	return ledger.Category{
		ID:      ledger.CategoryID(id),
		OwnerID: ledger.OwnerID(owner),
		Name:    name,
		Kind:    ledger.Kind(kind),
	}, nil
}
