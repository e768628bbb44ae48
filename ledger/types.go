/*
Package ledger provides the account balance consistency engine.

PURPOSE:
  Every write path that moves money (expense/income postings, transfers
  between accounts, recurring postings) funnels through this package so that
  each account's cached balance stays equal to the sum of everything ever
  posted to it.

KEY CONCEPTS IN THIS FILE (types.go):
  - Amount helpers: fixed-point money (decimal.Decimal, two decimal places)
  - Kind: Expense or Income, with a sign function
  - Entry: a single posting (tagged variant, not two types)
  - Account: holds BalanceCurrent, the materialized view we maintain
  - Transfer: paired debit/credit between two accounts of one owner
  - Category: owner-scoped classification referenced by entries and rules

INVARIANT:
  BalanceCurrent == BalanceInitial
                  + sum(incomes) - sum(expenses)
                  + sum(transfers in) - sum(transfers out)

  over the entries and transfers that currently exist for the account.

USAGE:
  effect := entry.Effect()           // -12.50 for an expense of 12.50
  delta  := newEntry.Effect().Sub(oldEntry.Effect())

SEE ALSO:
  - balance.go: BalanceMutator (the only way a balance changes)
  - posting.go: create/update/delete with reversal arithmetic
  - transfer.go: dual-account atomic transfer
  - recurring.go: recurring rules and the generator
*/
package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AMOUNTS - Fixed-point money
// =============================================================================

// Scale is the number of decimal places every stored amount carries.
const Scale = 2

var (
	// MaxAmount bounds a single posting, transfer, rule, budget limit or
	// initial balance. In minor units it is 1e17, well inside int64.
	MaxAmount = decimal.New(1, 15)

	// MaxBalance bounds an account's current balance. A balance at the
	// bound plus one MaxAmount leg still fits in int64 minor units.
	MaxBalance = decimal.New(1, 16)
)

// ParseAmount parses a decimal string such as "12.50".
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &ValidationError{Code: CodeInvalidAmount, Field: "amount", Message: "not a decimal number", Err: ErrInvalidAmount}
	}
	return d, nil
}

// MustAmount parses s and panics on error. Intended for tests and constants.
func MustAmount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// ValidateAmount checks that a posting amount is strictly positive, at most
// MaxAmount and has no more than Scale decimal places.
func ValidateAmount(d decimal.Decimal) error {
	if !d.IsPositive() {
		return &ValidationError{Code: CodeInvalidAmount, Field: "amount", Message: "amount must be greater than zero", Err: ErrInvalidAmount}
	}
	if d.GreaterThan(MaxAmount) {
		return &ValidationError{Code: CodeAmountOutOfRange, Field: "amount", Message: "amount exceeds " + MaxAmount.StringFixed(Scale), Err: ErrAmountOutOfRange}
	}
	if !d.Equal(d.Round(Scale)) {
		return &ValidationError{Code: CodeInvalidAmount, Field: "amount", Message: "amount has more than two decimal places", Err: ErrInvalidAmount}
	}
	return nil
}

// ToMinor converts an amount to integer minor units (cents). Amounts whose
// minor value does not fit in an int64 are rejected, never wrapped.
func ToMinor(d decimal.Decimal) (int64, error) {
	minor := d.Shift(Scale).Round(0).BigInt()
	if !minor.IsInt64() {
		return 0, fmt.Errorf("%w: %s", ErrAmountOutOfRange, d.StringFixed(Scale))
	}
	return minor.Int64(), nil
}

// FromMinor converts integer minor units back to an amount.
func FromMinor(v int64) decimal.Decimal {
	return decimal.New(v, -Scale)
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type OwnerID string
type AccountID string
type EntryID string
type TransferID string
type RuleID string
type CategoryID string

// =============================================================================
// KIND - Expense or Income
// =============================================================================

type Kind string

const (
	KindExpense Kind = "expense"
	KindIncome  Kind = "income"
)

func (k Kind) Valid() bool { return k == KindExpense || k == KindIncome }

// Sign returns -1 for expenses and +1 for incomes.
func (k Kind) Sign() decimal.Decimal {
	if k == KindExpense {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// =============================================================================
// ENTRY - A posting against (optionally) one account
// =============================================================================

type Entry struct {
	ID          EntryID
	OwnerID     OwnerID
	Kind        Kind
	Date        time.Time
	CategoryID  CategoryID
	Description string
	Amount      decimal.Decimal
	AccountID   AccountID // empty when the entry is not linked to an account

	// RuleID is set when the entry was materialized by a recurring rule.
	RuleID RuleID
	// SourceKey is an optional idempotency key, unique per store.
	SourceKey string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (e Entry) HasAccount() bool { return e.AccountID != "" }

// Effect is the signed amount this entry contributes to its account.
func (e Entry) Effect() decimal.Decimal {
	return e.Kind.Sign().Mul(e.Amount)
}

// =============================================================================
// ACCOUNT
// =============================================================================

type AccountType string

const (
	AccountCash       AccountType = "cash"
	AccountBank       AccountType = "bank"
	AccountCreditCard AccountType = "credit_card"
	AccountSavings    AccountType = "savings"
	AccountInvestment AccountType = "investment"
)

func (t AccountType) Valid() bool {
	switch t {
	case AccountCash, AccountBank, AccountCreditCard, AccountSavings, AccountInvestment:
		return true
	}
	return false
}

type Account struct {
	ID             AccountID
	OwnerID        OwnerID
	Name           string
	Type           AccountType
	BalanceCurrent decimal.Decimal
	BalanceInitial decimal.Decimal
	Currency       string
	Color          string
	Icon           string
	Active         bool
	CreatedAt      time.Time
}

// =============================================================================
// TRANSFER
// =============================================================================

type Transfer struct {
	ID            TransferID
	OwnerID       OwnerID
	SourceID      AccountID
	DestinationID AccountID
	Amount        decimal.Decimal
	Date          time.Time
	Description   string
	CreatedAt     time.Time
}

// =============================================================================
// CATEGORY
// =============================================================================

type Category struct {
	ID      CategoryID
	OwnerID OwnerID
	Name    string
	Kind    Kind
}

// =============================================================================
// FILTERS
// =============================================================================

// EntryFilter narrows ListEntries. Zero values mean "no constraint".
type EntryFilter struct {
	Kind       Kind
	AccountID  AccountID
	CategoryID CategoryID
	From       time.Time
	To         time.Time
	Limit      int
	Offset     int
}

// PostingTotals are the per-account aggregates used to check the invariant.
type PostingTotals struct {
	Incomes      decimal.Decimal
	Expenses     decimal.Decimal
	TransfersIn  decimal.Decimal
	TransfersOut decimal.Decimal
}
