/*
posting.go - Expense and income CRUD with apply/reverse arithmetic

PURPOSE:
  PostingService owns every change to an Entry and the balance effects
  that come with it. Each operation runs in one store transaction: the
  entry change and all balance deltas either commit together or not at all.

EFFECT RULES:
  effect(e) = sign(e.Kind) * e.Amount     (expense -1, income +1)

  Create:  apply +effect(new) to new.Account
  Update:  same account      -> apply effect(new) - effect(old)
           account changed   -> apply -effect(old) to old.Account
                                apply +effect(new) to new.Account
  Delete:  apply -effect(old) to old.Account

  "Unassigned" (no account) contributes nothing on either side.

ACCOUNT STATE:
  New effects require an active account. Reversals against an account
  deactivated in the meantime still apply; refusing them would break the
  balance identity for that account.

HOOKS:
  After commit, each Hook receives a PostingEvent. Hooks run synchronously
  but cannot fail the operation.
*/
package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/finance-engine/logging"
)

// =============================================================================
// INPUTS
// =============================================================================

// NewEntry is the input to PostingService.Create.
type NewEntry struct {
	Kind        Kind
	Date        time.Time // zero means today
	CategoryID  CategoryID
	Description string
	Amount      decimal.Decimal
	AccountID   AccountID // optional

	RuleID    RuleID
	SourceKey string
}

// EntryUpdate replaces the mutable fields of an entry. Kind is immutable.
type EntryUpdate struct {
	Date        time.Time
	CategoryID  CategoryID
	Description string
	Amount      decimal.Decimal
	AccountID   AccountID
}

func validatePosting(kind Kind, amount decimal.Decimal, category CategoryID) error {
	if !kind.Valid() {
		return invalid(CodeInvalidKind, "kind", "kind must be expense or income", ErrInvalidKind)
	}
	if err := ValidateAmount(amount); err != nil {
		return err
	}
	if strings.TrimSpace(string(category)) == "" {
		return invalid(CodeInvalidCategory, "category_id", "category is required", ErrInvalidCategory)
	}
	return nil
}

// =============================================================================
// POSTING SERVICE
// =============================================================================

type PostingService struct {
	Store   TxStore
	Mutator BalanceMutator
	Hooks   []Hook
	Logger  logging.Logger

	Now   func() time.Time
	NewID func() string
}

func NewPostingService(store TxStore, log logging.Logger, hooks ...Hook) *PostingService {
	if log == nil {
		log = logging.Nop()
	}
	return &PostingService{
		Store:  store,
		Hooks:  hooks,
		Logger: log,
		Now:    time.Now,
		NewID:  uuid.NewString,
	}
}

// AddHook registers a hook for future postings.
func (p *PostingService) AddHook(h Hook) { p.Hooks = append(p.Hooks, h) }

func (p *PostingService) now() time.Time {
	if p.Now == nil {
		return time.Now().UTC()
	}
	return p.Now().UTC()
}

func (p *PostingService) newID() string {
	if p.NewID == nil {
		return uuid.NewString()
	}
	return p.NewID()
}

// Notify delivers an event to the registered hooks. Callers that use
// CreateIn inside their own transaction call it after commit.
func (p *PostingService) Notify(ctx context.Context, event PostingEvent) {
	log := p.Logger
	if log == nil {
		log = logging.Nop()
	}
	notify(ctx, log, p.Hooks, event)
}

// =============================================================================
// CREATE
// =============================================================================

func (p *PostingService) Create(ctx context.Context, owner OwnerID, in NewEntry) (Entry, error) {
	if err := validatePosting(in.Kind, in.Amount, in.CategoryID); err != nil {
		return Entry{}, err
	}

	var created Entry
	err := p.Store.WithTx(ctx, func(s Store) error {
		e, err := p.CreateIn(ctx, s, owner, in)
		if err != nil {
			return err
		}
		created = e
		return nil
	})
	if err != nil {
		return Entry{}, err
	}

	p.Notify(ctx, PostingEvent{Type: EventCreated, Entry: &created})
	return created, nil
}

// CreateIn persists a new entry and applies its effect using s, which must
// be a transactional view. It does not notify hooks.
func (p *PostingService) CreateIn(ctx context.Context, s Store, owner OwnerID, in NewEntry) (Entry, error) {
	if err := validatePosting(in.Kind, in.Amount, in.CategoryID); err != nil {
		return Entry{}, err
	}
	if err := checkCategory(ctx, s, owner, in.CategoryID); err != nil {
		return Entry{}, err
	}
	if in.AccountID != "" {
		if _, err := activeAccount(ctx, s, owner, in.AccountID, "account_id"); err != nil {
			return Entry{}, err
		}
	}
	if in.SourceKey != "" {
		exists, err := s.EntryExists(ctx, in.SourceKey)
		if err != nil {
			return Entry{}, err
		}
		if exists {
			return Entry{}, ErrDuplicateIdempotencyKey
		}
	}

	now := p.now()
	date := in.Date
	if date.IsZero() {
		date = now
	}
	e := Entry{
		ID:          EntryID(p.newID()),
		OwnerID:     owner,
		Kind:        in.Kind,
		Date:        Day(date),
		CategoryID:  in.CategoryID,
		Description: strings.TrimSpace(in.Description),
		Amount:      in.Amount,
		AccountID:   in.AccountID,
		RuleID:      in.RuleID,
		SourceKey:   in.SourceKey,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.InsertEntry(ctx, e); err != nil {
		return Entry{}, err
	}
	if e.HasAccount() {
		if _, err := p.Mutator.Apply(ctx, s, owner, e.AccountID, e.Effect()); err != nil {
			return Entry{}, err
		}
	}
	return e, nil
}

// =============================================================================
// UPDATE
// =============================================================================

func (p *PostingService) Update(ctx context.Context, owner OwnerID, id EntryID, in EntryUpdate) (Entry, error) {
	var before, after Entry
	err := p.Store.WithTx(ctx, func(s Store) error {
		old, err := s.GetEntryForUpdate(ctx, owner, id)
		if err != nil {
			return err
		}
		if err := validatePosting(old.Kind, in.Amount, in.CategoryID); err != nil {
			return err
		}
		if in.CategoryID != old.CategoryID {
			if err := checkCategory(ctx, s, owner, in.CategoryID); err != nil {
				return err
			}
		}

		next := old
		if !in.Date.IsZero() {
			next.Date = Day(in.Date)
		}
		next.CategoryID = in.CategoryID
		next.Description = strings.TrimSpace(in.Description)
		next.Amount = in.Amount
		next.AccountID = in.AccountID
		next.UpdatedAt = p.now()

		// A changed effect on the (new) account is a new effect.
		if next.HasAccount() && (next.AccountID != old.AccountID || !next.Effect().Equal(old.Effect())) {
			if _, err := activeAccount(ctx, s, owner, next.AccountID, "account_id"); err != nil {
				return err
			}
		}

		if err := p.Mutator.applyLegs(ctx, s, owner, updateLegs(old, next)...); err != nil {
			return err
		}
		if err := s.UpdateEntry(ctx, next); err != nil {
			return err
		}
		before, after = old, next
		return nil
	})
	if err != nil {
		return Entry{}, err
	}

	p.Notify(ctx, PostingEvent{Type: EventUpdated, Entry: &after, Previous: &before})
	return after, nil
}

// updateLegs computes the balance changes that turn old into next.
func updateLegs(old, next Entry) []leg {
	if old.AccountID == next.AccountID {
		if !next.HasAccount() {
			return nil
		}
		delta := next.Effect().Sub(old.Effect())
		if delta.IsZero() {
			return nil
		}
		return []leg{{account: next.AccountID, delta: delta}}
	}

	var legs []leg
	if old.HasAccount() {
		legs = append(legs, leg{account: old.AccountID, delta: old.Effect().Neg()})
	}
	if next.HasAccount() {
		legs = append(legs, leg{account: next.AccountID, delta: next.Effect()})
	}
	return legs
}

// =============================================================================
// DELETE
// =============================================================================

func (p *PostingService) Delete(ctx context.Context, owner OwnerID, id EntryID) error {
	var removed Entry
	err := p.Store.WithTx(ctx, func(s Store) error {
		old, err := s.GetEntryForUpdate(ctx, owner, id)
		if err != nil {
			return err
		}
		if old.HasAccount() {
			if _, err := p.Mutator.Apply(ctx, s, owner, old.AccountID, old.Effect().Neg()); err != nil {
				return err
			}
		}
		if err := s.DeleteEntry(ctx, owner, id); err != nil {
			return err
		}
		removed = old
		return nil
	})
	if err != nil {
		return err
	}

	p.Notify(ctx, PostingEvent{Type: EventDeleted, Previous: &removed})
	return nil
}

// =============================================================================
// READS
// =============================================================================

func (p *PostingService) Get(ctx context.Context, owner OwnerID, id EntryID) (Entry, error) {
	return p.Store.GetEntry(ctx, owner, id)
}

func (p *PostingService) List(ctx context.Context, owner OwnerID, filter EntryFilter) ([]Entry, error) {
	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, invalid(CodeInvalidKind, "kind", "kind must be expense or income", ErrInvalidKind)
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.From.After(filter.To) {
		return nil, invalid(CodeInvalidDate, "from", "from must not be after to", ErrInvalidDateFilter)
	}
	if filter.Limit < 0 {
		filter.Limit = 0
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return p.Store.ListEntries(ctx, owner, filter)
}

// =============================================================================
// SHARED CHECKS
// =============================================================================

func checkCategory(ctx context.Context, s Store, owner OwnerID, id CategoryID) error {
	if _, err := s.GetCategory(ctx, owner, id); err != nil {
		if errors.Is(err, ErrCategoryNotFound) {
			return invalid(CodeInvalidCategory, "category_id", "unknown category", ErrCategoryNotFound)
		}
		return err
	}
	return nil
}

// activeAccount loads an owned account that can receive new effects.
func activeAccount(ctx context.Context, s Store, owner OwnerID, id AccountID, field string) (Account, error) {
	a, err := s.GetAccount(ctx, owner, id)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return Account{}, invalid(CodeInvalidAccount, field, "unknown account", ErrAccountNotFound)
		}
		return Account{}, err
	}
	if !a.Active {
		return Account{}, invalid(CodeAccountInactive, field, "account is inactive", ErrAccountInactive)
	}
	return a, nil
}
