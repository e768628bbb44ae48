/*
store.go - Persistence contract for the ledger engine

PURPOSE:
  Defines the interface between the engine and its durable store. The engine
  never keeps state of its own; every read and write goes through Store, and
  every multi-record change goes through TxStore.WithTx.

KEY INTERFACES:
  Store:   Accounts, categories, entries, transfers, recurring rules
  TxStore: Store + WithTx (all-or-nothing unit of work)

BALANCE WRITES:
  AdjustBalance is the only method that changes BalanceCurrent. It must be
  evaluated atomically by the store (balance = balance + delta), never as a
  client-side read-modify-write. SaveAccount/UpdateAccount never touch the
  balance columns after creation.

OWNERSHIP:
  Every lookup takes the owner id. A record owned by someone else is
  reported exactly like a missing record.

LOCKING:
  GetEntryForUpdate and GetRuleForUpdate lock the row for the rest of the
  transaction where the backend supports it (SELECT ... FOR UPDATE). Stores
  that serialize whole transactions may implement them as plain reads.

IMPLEMENTATIONS:
  - ledger/store/memory.go: In-memory for tests and dev
  - store/sqlstore:         SQLite and PostgreSQL
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STORE - Interface for persistence
// =============================================================================

type Store interface {
	// Accounts
	CreateAccount(ctx context.Context, a Account) error
	UpdateAccount(ctx context.Context, a Account) error
	GetAccount(ctx context.Context, owner OwnerID, id AccountID) (Account, error)
	ListAccounts(ctx context.Context, owner OwnerID, includeInactive bool) ([]Account, error)

	// AdjustBalance atomically adds delta to BalanceCurrent and returns the
	// new value. Returns ErrAccountNotFound when no owner-matching row exists.
	AdjustBalance(ctx context.Context, owner OwnerID, id AccountID, delta decimal.Decimal) (decimal.Decimal, error)

	// SumPostings aggregates everything currently posted to an account.
	SumPostings(ctx context.Context, owner OwnerID, id AccountID) (PostingTotals, error)

	// Categories
	SaveCategory(ctx context.Context, c Category) error
	GetCategory(ctx context.Context, owner OwnerID, id CategoryID) (Category, error)
	ListCategories(ctx context.Context, owner OwnerID) ([]Category, error)

	// Entries
	InsertEntry(ctx context.Context, e Entry) error
	UpdateEntry(ctx context.Context, e Entry) error
	GetEntry(ctx context.Context, owner OwnerID, id EntryID) (Entry, error)
	GetEntryForUpdate(ctx context.Context, owner OwnerID, id EntryID) (Entry, error)
	DeleteEntry(ctx context.Context, owner OwnerID, id EntryID) error
	ListEntries(ctx context.Context, owner OwnerID, filter EntryFilter) ([]Entry, error)

	// EntryExists checks whether an entry with the given SourceKey exists.
	EntryExists(ctx context.Context, sourceKey string) (bool, error)

	// SumExpenses totals expenses for a category in [from, to].
	SumExpenses(ctx context.Context, owner OwnerID, category CategoryID, from, to time.Time) (decimal.Decimal, error)

	// Transfers (create-only)
	InsertTransfer(ctx context.Context, t Transfer) error
	ListTransfers(ctx context.Context, owner OwnerID, account AccountID) ([]Transfer, error)

	// Recurring rules
	SaveRule(ctx context.Context, r RecurringRule) error
	GetRule(ctx context.Context, owner OwnerID, id RuleID) (RecurringRule, error)
	GetRuleForUpdate(ctx context.Context, owner OwnerID, id RuleID) (RecurringRule, error)
	DeleteRule(ctx context.Context, owner OwnerID, id RuleID) error
	ListRules(ctx context.Context, owner OwnerID) ([]RecurringRule, error)

	// ListDueRules returns active rules with NextDue <= asOf, oldest first.
	ListDueRules(ctx context.Context, owner OwnerID, asOf time.Time) ([]RecurringRule, error)

	// OwnersWithDueRules lists owners having at least one due active rule.
	OwnersWithDueRules(ctx context.Context, asOf time.Time) ([]OwnerID, error)
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, every write made through the given Store is
	// rolled back. If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error
}
