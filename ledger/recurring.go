/*
recurring.go - Recurring rules and the posting generator

PURPOSE:
  A RecurringRule is a template expense (amount, category, optional account)
  with a cadence and a NextDue date. The Generator turns due rules into
  entries through the PostingService and advances NextDue.

CADENCE STEPS (NextDue):
  weekly    +7 days
  biweekly  +15 days
  monthly   next month, day = min(anchor, days in month)
  yearly    next year, same month, day = min(anchor, days in month)

  Monthly and yearly steps always re-derive the day from the anchor, so
  Jan 31 -> Feb 28 -> Mar 31 instead of drifting to the 28th.

IDEMPOTENCY:
  Each generated entry carries SourceKey "recurring:<rule>:<due date>".
  The rule row is locked while it is processed and re-checked for being
  due, so two concurrent runs cannot both post the same due date. If the
  key already exists the rule is advanced without posting again.

CATCH-UP:
  With CatchUp=false (the default) a run posts at most one entry per rule
  and advances NextDue by exactly one step, however many periods have
  elapsed. With CatchUp=true it posts one entry per elapsed period until
  NextDue is after asOf.

FAILURE ISOLATION:
  Each rule is processed in its own transaction. A failing rule is rolled
  back (NextDue unchanged) and reported in RunResult; the others proceed.
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/finance-engine/logging"
)

// =============================================================================
// CADENCE
// =============================================================================

type Cadence string

const (
	CadenceWeekly   Cadence = "weekly"
	CadenceBiweekly Cadence = "biweekly"
	CadenceMonthly  Cadence = "monthly"
	CadenceYearly   Cadence = "yearly"
)

func (c Cadence) Valid() bool {
	switch c {
	case CadenceWeekly, CadenceBiweekly, CadenceMonthly, CadenceYearly:
		return true
	}
	return false
}

// RecurringMarker is appended to the description of generated entries.
const RecurringMarker = " (recurring)"

// =============================================================================
// RULE
// =============================================================================

type RecurringRule struct {
	ID            RuleID
	OwnerID       OwnerID
	Description   string
	CategoryID    CategoryID
	Amount        decimal.Decimal
	AccountID     AccountID // optional
	Cadence       Cadence
	AnchorDay     int // 1-31
	NextDue       time.Time
	LastGenerated *time.Time
	Active        bool
	CreatedAt     time.Time
}

// RecurringSourceKey is the idempotency key of the entry generated for a
// rule on a given due date.
func RecurringSourceKey(id RuleID, due time.Time) string {
	return fmt.Sprintf("recurring:%s:%s", id, FormatDay(due))
}

func validateSchedule(c Cadence, anchor int) error {
	if !c.Valid() {
		return invalid(CodeInvalidCadence, "cadence", "cadence must be weekly, biweekly, monthly or yearly", ErrInvalidCadence)
	}
	if anchor < 1 || anchor > 31 {
		return invalid(CodeInvalidAnchorDay, "anchor_day", "anchor day must be between 1 and 31", ErrInvalidAnchorDay)
	}
	return nil
}

// =============================================================================
// DUE-DATE ARITHMETIC (pure)
// =============================================================================

// NextDue returns the due date one cadence step after from.
func NextDue(c Cadence, anchor int, from time.Time) time.Time {
	from = Day(from)
	switch c {
	case CadenceWeekly:
		return from.AddDate(0, 0, 7)
	case CadenceBiweekly:
		return from.AddDate(0, 0, 15)
	case CadenceMonthly:
		return clampedDay(from.Year(), from.Month()+1, anchor)
	case CadenceYearly:
		return clampedDay(from.Year()+1, from.Month(), anchor)
	}
	return from
}

// FirstDue returns the initial NextDue of a rule created on today.
//
// Weekly rules read the anchor as an ISO weekday (1=Mon .. 7=Sun, larger
// values wrap) and fall on the next such day, today included. The other
// cadences start from this month's anchor day and step forward until the
// date is not before today.
func FirstDue(c Cadence, anchor int, today time.Time) time.Time {
	today = Day(today)
	if c == CadenceWeekly {
		target := (anchor-1)%7 + 1
		iso := int(today.Weekday())
		if iso == 0 {
			iso = 7
		}
		return today.AddDate(0, 0, (target-iso+7)%7)
	}

	due := clampedDay(today.Year(), today.Month(), anchor)
	for due.Before(today) {
		due = NextDue(c, anchor, due)
	}
	return due
}

// =============================================================================
// GENERATOR
// =============================================================================

// RuleError reports a rule that failed during a run.
type RuleError struct {
	RuleID RuleID
	Err    error
}

func (e RuleError) Error() string { return fmt.Sprintf("rule %s: %v", e.RuleID, e.Err) }
func (e RuleError) Unwrap() error { return e.Err }

type RunResult struct {
	Generated int
	Failed    int
	Skipped   int
	Entries   []Entry
	Errors    []RuleError
}

type Generator struct {
	Store    TxStore
	Postings *PostingService
	CatchUp  bool
	Logger   logging.Logger

	Now   func() time.Time
	NewID func() string
}

func NewGenerator(store TxStore, postings *PostingService, log logging.Logger) *Generator {
	if log == nil {
		log = logging.Nop()
	}
	return &Generator{
		Store:    store,
		Postings: postings,
		Logger:   log,
		Now:      time.Now,
		NewID:    uuid.NewString,
	}
}

func (g *Generator) now() time.Time {
	if g.Now == nil {
		return time.Now().UTC()
	}
	return g.Now().UTC()
}

func (g *Generator) log() logging.Logger {
	if g.Logger == nil {
		return logging.Nop()
	}
	return g.Logger
}

// RunDue generates entries for every active rule of owner due on or
// before asOf.
func (g *Generator) RunDue(ctx context.Context, owner OwnerID, asOf time.Time) (RunResult, error) {
	var result RunResult
	day := Day(asOf)

	rules, err := g.Store.ListDueRules(ctx, owner, day)
	if err != nil {
		return result, fmt.Errorf("list due rules: %w", err)
	}

	for _, r := range rules {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		entries, err := g.runRule(ctx, owner, r.ID, day)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, RuleError{RuleID: r.ID, Err: err})
			g.log().Error(ctx, "recurring rule failed", "owner", string(owner), "rule", string(r.ID), "error", err)
			continue
		}
		if len(entries) == 0 {
			result.Skipped++
			continue
		}
		result.Generated += len(entries)
		result.Entries = append(result.Entries, entries...)
	}

	for i := range result.Entries {
		g.Postings.Notify(ctx, PostingEvent{Type: EventCreated, Entry: &result.Entries[i]})
	}

	if result.Generated > 0 || result.Failed > 0 {
		g.log().Info(ctx, "recurring run finished",
			"owner", string(owner),
			"generated", result.Generated,
			"failed", result.Failed,
			"skipped", result.Skipped,
		)
	}
	return result, nil
}

// runRule processes one rule in its own transaction.
func (g *Generator) runRule(ctx context.Context, owner OwnerID, id RuleID, day time.Time) ([]Entry, error) {
	var posted []Entry
	err := g.Store.WithTx(ctx, func(s Store) error {
		posted = nil

		rule, err := s.GetRuleForUpdate(ctx, owner, id)
		if err != nil {
			return err
		}
		// Another runner may have advanced it since it was listed.
		if !rule.Active || rule.NextDue.After(day) {
			return nil
		}

		for {
			e, err := g.Postings.CreateIn(ctx, s, owner, NewEntry{
				Kind:        KindExpense,
				Date:        rule.NextDue,
				CategoryID:  rule.CategoryID,
				Description: rule.Description + RecurringMarker,
				Amount:      rule.Amount,
				AccountID:   rule.AccountID,
				RuleID:      rule.ID,
				SourceKey:   RecurringSourceKey(rule.ID, rule.NextDue),
			})
			switch {
			case errors.Is(err, ErrDuplicateIdempotencyKey):
				// Already posted for this due date; only advance.
			case err != nil:
				return err
			default:
				posted = append(posted, e)
			}

			rule.NextDue = NextDue(rule.Cadence, rule.AnchorDay, rule.NextDue)
			if !g.CatchUp || rule.NextDue.After(day) {
				break
			}
		}

		if len(posted) > 0 {
			now := g.now()
			rule.LastGenerated = &now
		}
		return s.SaveRule(ctx, rule)
	})
	if err != nil {
		return nil, err
	}
	return posted, nil
}

// Generate posts one entry for the rule right now, dated today, and
// advances NextDue one step from its previous value.
func (g *Generator) Generate(ctx context.Context, owner OwnerID, id RuleID) (Entry, error) {
	var created Entry
	err := g.Store.WithTx(ctx, func(s Store) error {
		rule, err := s.GetRuleForUpdate(ctx, owner, id)
		if err != nil {
			return err
		}
		if !rule.Active {
			return invalid(CodeRuleInactive, "id", "recurring rule is inactive", ErrRuleInactive)
		}

		now := g.now()
		e, err := g.Postings.CreateIn(ctx, s, owner, NewEntry{
			Kind:        KindExpense,
			Date:        now,
			CategoryID:  rule.CategoryID,
			Description: rule.Description + RecurringMarker,
			Amount:      rule.Amount,
			AccountID:   rule.AccountID,
			RuleID:      rule.ID,
		})
		if err != nil {
			return err
		}

		rule.NextDue = NextDue(rule.Cadence, rule.AnchorDay, rule.NextDue)
		rule.LastGenerated = &now
		if err := s.SaveRule(ctx, rule); err != nil {
			return err
		}
		created = e
		return nil
	})
	if err != nil {
		return Entry{}, err
	}

	g.Postings.Notify(ctx, PostingEvent{Type: EventCreated, Entry: &created})
	return created, nil
}

// OwnersWithDueRules lists owners that have at least one rule due on asOf.
func (g *Generator) OwnersWithDueRules(ctx context.Context, asOf time.Time) ([]OwnerID, error) {
	return g.Store.OwnersWithDueRules(ctx, Day(asOf))
}

// =============================================================================
// RULE MANAGEMENT
// =============================================================================

type NewRule struct {
	Description string
	CategoryID  CategoryID
	Amount      decimal.Decimal
	AccountID   AccountID
	Cadence     Cadence
	AnchorDay   int
	StartDate   time.Time // zero means FirstDue(today)
}

// RuleUpdate replaces the mutable fields of a rule. NextDue is recomputed
// from today when the cadence or anchor changes, unless NextDue is given.
type RuleUpdate struct {
	Description string
	CategoryID  CategoryID
	Amount      decimal.Decimal
	AccountID   AccountID
	Cadence     Cadence
	AnchorDay   int
	Active      bool
	NextDue     time.Time
}

func (g *Generator) validateRule(ctx context.Context, owner OwnerID, amount decimal.Decimal, category CategoryID, account AccountID, c Cadence, anchor int) error {
	if err := validatePosting(KindExpense, amount, category); err != nil {
		return err
	}
	if err := validateSchedule(c, anchor); err != nil {
		return err
	}
	if err := checkCategory(ctx, g.Store, owner, category); err != nil {
		return err
	}
	if account != "" {
		if _, err := activeAccount(ctx, g.Store, owner, account, "account_id"); err != nil {
			return err
		}
	}
	return nil
}

func (g *Generator) CreateRule(ctx context.Context, owner OwnerID, in NewRule) (RecurringRule, error) {
	if err := g.validateRule(ctx, owner, in.Amount, in.CategoryID, in.AccountID, in.Cadence, in.AnchorDay); err != nil {
		return RecurringRule{}, err
	}

	now := g.now()
	next := FirstDue(in.Cadence, in.AnchorDay, now)
	if !in.StartDate.IsZero() {
		next = Day(in.StartDate)
	}
	id := uuid.NewString()
	if g.NewID != nil {
		id = g.NewID()
	}

	r := RecurringRule{
		ID:          RuleID(id),
		OwnerID:     owner,
		Description: strings.TrimSpace(in.Description),
		CategoryID:  in.CategoryID,
		Amount:      in.Amount,
		AccountID:   in.AccountID,
		Cadence:     in.Cadence,
		AnchorDay:   in.AnchorDay,
		NextDue:     next,
		Active:      true,
		CreatedAt:   now,
	}
	if err := g.Store.SaveRule(ctx, r); err != nil {
		return RecurringRule{}, err
	}
	return r, nil
}

func (g *Generator) UpdateRule(ctx context.Context, owner OwnerID, id RuleID, in RuleUpdate) (RecurringRule, error) {
	account := in.AccountID
	if !in.Active {
		// A paused rule may keep pointing at a deactivated account.
		account = ""
	}
	if err := g.validateRule(ctx, owner, in.Amount, in.CategoryID, account, in.Cadence, in.AnchorDay); err != nil {
		return RecurringRule{}, err
	}
	if account == "" && in.AccountID != "" {
		if _, err := g.Store.GetAccount(ctx, owner, in.AccountID); err != nil {
			return RecurringRule{}, err
		}
	}

	var updated RecurringRule
	err := g.Store.WithTx(ctx, func(s Store) error {
		r, err := s.GetRuleForUpdate(ctx, owner, id)
		if err != nil {
			return err
		}
		if r.Cadence != in.Cadence || r.AnchorDay != in.AnchorDay {
			r.NextDue = FirstDue(in.Cadence, in.AnchorDay, g.now())
		}
		if !in.NextDue.IsZero() {
			r.NextDue = Day(in.NextDue)
		}
		r.Description = strings.TrimSpace(in.Description)
		r.CategoryID = in.CategoryID
		r.Amount = in.Amount
		r.AccountID = in.AccountID
		r.Cadence = in.Cadence
		r.AnchorDay = in.AnchorDay
		r.Active = in.Active
		if err := s.SaveRule(ctx, r); err != nil {
			return err
		}
		updated = r
		return nil
	})
	if err != nil {
		return RecurringRule{}, err
	}
	return updated, nil
}

func (g *Generator) DeleteRule(ctx context.Context, owner OwnerID, id RuleID) error {
	return g.Store.DeleteRule(ctx, owner, id)
}

func (g *Generator) GetRule(ctx context.Context, owner OwnerID, id RuleID) (RecurringRule, error) {
	return g.Store.GetRule(ctx, owner, id)
}

func (g *Generator) ListRules(ctx context.Context, owner OwnerID) ([]RecurringRule, error) {
	return g.Store.ListRules(ctx, owner)
}
