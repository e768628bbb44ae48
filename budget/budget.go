/*
Package budget watches category spending against monthly limits.

PURPOSE:
  Budgets are a collaborator of the ledger engine, not part of it. The
  Watcher is registered as a ledger.Hook; after every committed expense
  change it recomputes the month's spending for that category and emits a
  notification when a threshold is crossed upward.

THRESHOLDS:
  warning   spent >= WarningPercent of limit (default 80)
  exceeded  spent >= 100% of limit

  Only upward crossings notify: spending that stays above a threshold, or
  falls back below it, produces nothing.

SEE ALSO:
  - ledger/events.go: Hook, PostingEvent
  - notifier.go: where notifications go
*/
package budget

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/finance-engine/ledger"
)

var (
	ErrBudgetNotFound = errors.New("budget not found")
	ErrInvalidBudget  = errors.New("invalid budget")
)

// =============================================================================
// TYPES
// =============================================================================

type Budget struct {
	ID         string
	OwnerID    ledger.OwnerID
	CategoryID ledger.CategoryID
	Limit      decimal.Decimal
	Year       int
	Month      time.Month
}

// Period returns the first and last day of the budget month.
func (b Budget) Period() (time.Time, time.Time) {
	return ledger.StartOfMonth(b.Year, b.Month), ledger.EndOfMonth(b.Year, b.Month)
}

type NotificationType string

const (
	NotificationWarning  NotificationType = "budget_warning"
	NotificationExceeded NotificationType = "budget_exceeded"
)

type Notification struct {
	ID        string
	OwnerID   ledger.OwnerID
	Type      NotificationType
	Title     string
	Message   string
	Read      bool
	CreatedAt time.Time
}

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	// SaveBudget inserts or replaces the budget for (owner, category, year, month).
	SaveBudget(ctx context.Context, b Budget) error
	FindBudget(ctx context.Context, owner ledger.OwnerID, category ledger.CategoryID, year int, month time.Month) (Budget, error)
	// ListBudgets returns the owner's budgets; year 0 means every period.
	ListBudgets(ctx context.Context, owner ledger.OwnerID, year int, month time.Month) ([]Budget, error)

	SumExpenses(ctx context.Context, owner ledger.OwnerID, category ledger.CategoryID, from, to time.Time) (decimal.Decimal, error)

	SaveNotification(ctx context.Context, n Notification) error
	ListNotifications(ctx context.Context, owner ledger.OwnerID, unreadOnly bool) ([]Notification, error)
}
