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

// DefaultWarningPercent is the share of the limit that triggers a warning.
const DefaultWarningPercent = 80

var hundred = decimal.NewFromInt(100)

// =============================================================================
// WATCHER - ledger.Hook raising threshold notifications
// =============================================================================

type Watcher struct {
	Store          Store
	Notifier       Notifier
	WarningPercent int
	Logger         logging.Logger

	Now   func() time.Time
	NewID func() string
}

func NewWatcher(store Store, notifier Notifier, warningPercent int, log logging.Logger) *Watcher {
	if warningPercent <= 0 || warningPercent >= 100 {
		warningPercent = DefaultWarningPercent
	}
	if log == nil {
		log = logging.Nop()
	}
	return &Watcher{
		Store:          store,
		Notifier:       notifier,
		WarningPercent: warningPercent,
		Logger:         log,
		Now:            time.Now,
		NewID:          uuid.NewString,
	}
}

var _ ledger.Hook = (*Watcher)(nil)

// OnPosting checks every budget month touched by an expense change.
func (w *Watcher) OnPosting(ctx context.Context, event ledger.PostingEvent) error {
	var errs []error
	for _, c := range changes(event) {
		if err := w.check(ctx, c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// change is the effect of an event on one (category, month) bucket.
// delta is how much that bucket's spending grew.
type change struct {
	owner    ledger.OwnerID
	category ledger.CategoryID
	year     int
	month    time.Month
	delta    decimal.Decimal
}

func bucketOf(e *ledger.Entry) change {
	return change{
		owner:    e.OwnerID,
		category: e.CategoryID,
		year:     e.Date.Year(),
		month:    e.Date.Month(),
	}
}

func changes(event ledger.PostingEvent) []change {
	var out []change
	add := func(e *ledger.Entry, delta decimal.Decimal) {
		if e == nil || e.Kind != ledger.KindExpense {
			return
		}
		b := bucketOf(e)
		for i := range out {
			if out[i].owner == b.owner && out[i].category == b.category && out[i].year == b.year && out[i].month == b.month {
				out[i].delta = out[i].delta.Add(delta)
				return
			}
		}
		b.delta = delta
		out = append(out, b)
	}

	if event.Previous != nil {
		add(event.Previous, event.Previous.Amount.Neg())
	}
	if event.Entry != nil {
		add(event.Entry, event.Entry.Amount)
	}

	// Only buckets whose spending grew can cross a threshold upward.
	grown := out[:0]
	for _, c := range out {
		if c.delta.IsPositive() {
			grown = append(grown, c)
		}
	}
	return grown
}

func (w *Watcher) check(ctx context.Context, c change) error {
	b, err := w.Store.FindBudget(ctx, c.owner, c.category, c.year, c.month)
	if errors.Is(err, ErrBudgetNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("find budget: %w", err)
	}
	if !b.Limit.IsPositive() {
		return nil
	}

	from, to := b.Period()
	after, err := w.Store.SumExpenses(ctx, c.owner, c.category, from, to)
	if err != nil {
		return fmt.Errorf("sum expenses: %w", err)
	}
	before := after.Sub(c.delta)

	warnAt := b.Limit.Mul(decimal.NewFromInt(int64(w.WarningPercent))).Div(hundred)
	switch {
	case crossed(before, after, b.Limit):
		return w.emit(ctx, b, NotificationExceeded, after)
	case crossed(before, after, warnAt):
		return w.emit(ctx, b, NotificationWarning, after)
	}
	return nil
}

// crossed reports an upward crossing of threshold.
func crossed(before, after, threshold decimal.Decimal) bool {
	return before.LessThan(threshold) && after.GreaterThanOrEqual(threshold)
}

func (w *Watcher) emit(ctx context.Context, b Budget, t NotificationType, spent decimal.Decimal) error {
	pct := spent.Mul(hundred).Div(b.Limit).Round(0)
	period := fmt.Sprintf("%d-%02d", b.Year, int(b.Month))

	var title string
	if t == NotificationExceeded {
		title = "Budget exceeded"
	} else {
		title = "Budget warning"
	}
	msg := fmt.Sprintf("Spent %s of %s (%s%%) in category %s for %s",
		spent.StringFixed(ledger.Scale), b.Limit.StringFixed(ledger.Scale), pct.String(), b.CategoryID, period)

	now := time.Now().UTC()
	if w.Now != nil {
		now = w.Now().UTC()
	}
	id := uuid.NewString()
	if w.NewID != nil {
		id = w.NewID()
	}

	n := Notification{
		ID:        id,
		OwnerID:   b.OwnerID,
		Type:      t,
		Title:     title,
		Message:   strings.TrimSpace(msg),
		CreatedAt: now,
	}
	if w.Notifier == nil {
		return nil
	}
	return w.Notifier.Notify(ctx, n)
}
