package budget

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/finance-engine/ledger"
	"github.com/warp/finance-engine/logging"
)

// =============================================================================
// NOTIFIERS
// =============================================================================

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// StoreNotifier persists notifications for the owner to read later.
type StoreNotifier struct {
	Store Store
}

func (s StoreNotifier) Notify(ctx context.Context, n Notification) error {
	return s.Store.SaveNotification(ctx, n)
}

// LogNotifier writes notifications to the log.
type LogNotifier struct {
	Logger logging.Logger
}

func (l LogNotifier) Notify(ctx context.Context, n Notification) error {
	l.Logger.Info(ctx, "budget notification",
		"owner", string(n.OwnerID),
		"type", string(n.Type),
		"message", n.Message,
	)
	return nil
}

// Multi fans a notification out to several notifiers.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, notifier := range m {
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// =============================================================================
// SERVICE - Budget CRUD for the API
// =============================================================================

type NewBudget struct {
	CategoryID ledger.CategoryID
	Limit      decimal.Decimal
	Year       int
	Month      time.Month
}

type Service struct {
	Store      Store
	Categories interface {
		GetCategory(ctx context.Context, owner ledger.OwnerID, id ledger.CategoryID) (ledger.Category, error)
	}
}

// Set creates or replaces the budget for the category and month.
func (s *Service) Set(ctx context.Context, owner ledger.OwnerID, in NewBudget) (Budget, error) {
	if err := ledger.ValidateAmount(in.Limit); err != nil {
		return Budget{}, err
	}
	if in.Year < 1970 || in.Month < time.January || in.Month > time.December {
		return Budget{}, &ledger.ValidationError{Code: ledger.CodeInvalidDate, Field: "month", Message: "year and month are required", Err: ErrInvalidBudget}
	}
	if strings.TrimSpace(string(in.CategoryID)) == "" {
		return Budget{}, &ledger.ValidationError{Code: ledger.CodeInvalidCategory, Field: "category_id", Message: "category is required", Err: ErrInvalidBudget}
	}
	if s.Categories != nil {
		if _, err := s.Categories.GetCategory(ctx, owner, in.CategoryID); err != nil {
			if errors.Is(err, ledger.ErrCategoryNotFound) {
				return Budget{}, &ledger.ValidationError{Code: ledger.CodeInvalidCategory, Field: "category_id", Message: "unknown category", Err: err}
			}
			return Budget{}, err
		}
	}

	b := Budget{
		ID:         uuid.NewString(),
		OwnerID:    owner,
		CategoryID: in.CategoryID,
		Limit:      in.Limit,
		Year:       in.Year,
		Month:      in.Month,
	}
	if err := s.Store.SaveBudget(ctx, b); err != nil {
		return Budget{}, fmt.Errorf("save budget: %w", err)
	}
	return s.Store.FindBudget(ctx, owner, b.CategoryID, b.Year, b.Month)
}

func (s *Service) List(ctx context.Context, owner ledger.OwnerID, year int, month time.Month) ([]Budget, error) {
	return s.Store.ListBudgets(ctx, owner, year, month)
}

func (s *Service) Notifications(ctx context.Context, owner ledger.OwnerID, unreadOnly bool) ([]Notification, error) {
	return s.Store.ListNotifications(ctx, owner, unreadOnly)
}
