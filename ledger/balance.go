/*
balance.go - The balance mutator and the invariant check

PURPOSE:
  BalanceMutator is the single operation every write path uses to change an
  account balance: "apply a signed delta". Sign and magnitude are the
  caller's business; the mutator interprets nothing.

CONCURRENCY:
  The mutator never reads the balance, adds in memory, and writes back.
  It delegates to Store.AdjustBalance, which the store evaluates atomically
  (balance = balance + delta on the server, or under the store lock for the
  memory store). Concurrent deltas therefore compose as if applied in some
  serial order, and each delta becomes visible when its transaction commits.

RECONCILER:
  Recomputes the derived balance from what is currently posted and compares
  it to the cached value:

    derived = initial + incomes - expenses + transfers_in - transfers_out

SEE ALSO:
  - store.go: AdjustBalance, SumPostings
  - posting.go, transfer.go: callers
*/
package ledger

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// BALANCE MUTATOR
// =============================================================================

type BalanceMutator struct{}

// Apply adds delta to the account's current balance within the store s
// (normally the transactional view handed out by WithTx) and returns the
// new balance. A zero delta still verifies that the account exists.
func (BalanceMutator) Apply(ctx context.Context, s Store, owner OwnerID, account AccountID, delta decimal.Decimal) (decimal.Decimal, error) {
	if account == "" {
		return decimal.Zero, ErrAccountNotFound
	}
	if delta.IsZero() {
		a, err := s.GetAccount(ctx, owner, account)
		if err != nil {
			return decimal.Zero, err
		}
		return a.BalanceCurrent, nil
	}
	balance, err := s.AdjustBalance(ctx, owner, account, delta)
	if err != nil {
		return decimal.Zero, fmt.Errorf("apply %s to account %s: %w", delta.StringFixed(Scale), account, err)
	}
	// The caller's transaction rolls the adjustment back.
	if balance.Abs().GreaterThan(MaxBalance) {
		return decimal.Zero, invalid(CodeAmountOutOfRange, "amount", "account balance would exceed "+MaxBalance.StringFixed(Scale), ErrAmountOutOfRange)
	}
	return balance, nil
}

// leg is one balance change within a multi-account unit of work.
type leg struct {
	account AccountID
	delta   decimal.Decimal
}

// applyLegs applies every leg in ascending account-id order so two units of
// work touching the same pair of accounts always lock them in the same order.
func (m BalanceMutator) applyLegs(ctx context.Context, s Store, owner OwnerID, legs ...leg) error {
	sort.SliceStable(legs, func(i, j int) bool { return legs[i].account < legs[j].account })
	for _, l := range legs {
		if _, err := m.Apply(ctx, s, owner, l.account, l.delta); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// RECONCILER - Verifies the accounting identity for one account
// =============================================================================

type Reconciler struct {
	Store Store
}

// Report compares the cached balance with the derived one.
type Report struct {
	AccountID  AccountID
	Initial    decimal.Decimal
	Totals     PostingTotals
	Cached     decimal.Decimal
	Derived    decimal.Decimal
	Drift      decimal.Decimal // Cached - Derived
	Consistent bool
}

func (r *Reconciler) Check(ctx context.Context, owner OwnerID, id AccountID) (Report, error) {
	account, err := r.Store.GetAccount(ctx, owner, id)
	if err != nil {
		return Report{}, err
	}
	totals, err := r.Store.SumPostings(ctx, owner, id)
	if err != nil {
		return Report{}, err
	}

	derived := account.BalanceInitial.
		Add(totals.Incomes).
		Sub(totals.Expenses).
		Add(totals.TransfersIn).
		Sub(totals.TransfersOut)
	drift := account.BalanceCurrent.Sub(derived)

	return Report{
		AccountID:  id,
		Initial:    account.BalanceInitial,
		Totals:     totals,
		Cached:     account.BalanceCurrent,
		Derived:    derived,
		Drift:      drift,
		Consistent: drift.IsZero(),
	}, nil
}
