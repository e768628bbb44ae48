package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/warp/finance-engine/budget"
	"github.com/warp/finance-engine/ledger"
)

// =============================================================================
// BUDGETS
// =============================================================================

// SaveBudget upserts on (owner, category, year, month); the original id is
// kept when a budget for the period already exists.
func (q *queries) SaveBudget(ctx context.Context, b budget.Budget) error {
	query := `
		INSERT INTO budgets (id, owner_id, category_id, limit_amount, period_year, period_month)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (owner_id, category_id, period_year, period_month)
		DO UPDATE SET limit_amount = excluded.limit_amount
	`
	limit, err := ledger.ToMinor(b.Limit)
	if err != nil {
		return err
	}
	_, err = q.exec(ctx, query,
		b.ID,
		string(b.OwnerID),
		string(b.CategoryID),
		limit,
		b.Year,
		int(b.Month),
	)
	if err != nil {
		return fmt.Errorf("failed to save budget: %w", err)
	}
	return nil
}

func (q *queries) FindBudget(ctx context.Context, owner ledger.OwnerID, category ledger.CategoryID, year int, month time.Month) (budget.Budget, error) {
	query := `
		SELECT id, owner_id, category_id, limit_amount, period_year, period_month
		FROM budgets
		WHERE owner_id = ? AND category_id = ? AND period_year = ? AND period_month = ?
	`
	b, err := scanBudget(q.queryRow(ctx, query, string(owner), string(category), year, int(month)))
	if errors.Is(err, sql.ErrNoRows) {
		return budget.Budget{}, budget.ErrBudgetNotFound
	}
	if err != nil {
		return budget.Budget{}, fmt.Errorf("failed to get budget: %w", err)
	}
	return b, nil
}

func (q *queries) ListBudgets(ctx context.Context, owner ledger.OwnerID, year int, month time.Month) ([]budget.Budget, error) {
	query := `
		SELECT id, owner_id, category_id, limit_amount, period_year, period_month
		FROM budgets
		WHERE owner_id = ?`
	args := []any{string(owner)}
	if year != 0 {
		query += ` AND period_year = ?`
		args = append(args, year)
		if month != 0 {
			query += ` AND period_month = ?`
			args = append(args, int(month))
		}
	}
	query += ` ORDER BY period_year ASC, period_month ASC, category_id ASC`

	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query budgets: %w", err)
	}
	defer rows.Close()

	var budgets []budget.Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan budget: %w", err)
		}
		budgets = append(budgets, b)
	}
	return budgets, rows.Err()
}

func scanBudget(row rowScanner) (budget.Budget, error) {
	var (
		b               budget.Budget
		owner, category string
		limit           int64
		month           int
	)
	if err := row.Scan(&b.ID, &owner, &category, &limit, &b.Year, &month); err != nil {
		return b, err
	}
	b.OwnerID = ledger.OwnerID(owner)
	b.CategoryID = ledger.CategoryID(category)
	b.Limit = ledger.FromMinor(limit)
	b.Month = time.Month(month)
	return b, nil
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

func (q *queries) SaveNotification(ctx context.Context, n budget.Notification) error {
	query := `
		INSERT INTO notifications (id, owner_id, notification_type, title, message, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.exec(ctx, query,
		n.ID,
		string(n.OwnerID),
		string(n.Type),
		n.Title,
		n.Message,
		n.Read,
		formatTime(n.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save notification: %w", err)
	}
	return nil
}

func (q *queries) ListNotifications(ctx context.Context, owner ledger.OwnerID, unreadOnly bool) ([]budget.Notification, error) {
	query := `
		SELECT id, owner_id, notification_type, title, message, is_read, created_at
		FROM notifications
		WHERE owner_id = ?`
	args := []any{string(owner)}
	if unreadOnly {
		query += ` AND is_read = ?`
		args = append(args, false)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := q.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []budget.Notification
	for rows.Next() {
		var (
			n                  budget.Notification
			owner, kind, stamp string
		)
		if err := rows.Scan(&n.ID, &owner, &kind, &n.Title, &n.Message, &n.Read, &stamp); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.OwnerID = ledger.OwnerID(owner)
		n.Type = budget.NotificationType(kind)
		if n.CreatedAt, err = parseTime(stamp); err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}
