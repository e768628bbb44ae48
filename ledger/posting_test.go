/*
posting_test.go - Expense/income create, update, delete

Tests for:
- Create/delete restore the balance exactly
- Same-account edits apply only the difference
- Cross-account edits reverse on the old account and apply on the new one
- Unassigned entries never touch a balance
- Inactive accounts refuse new effects but accept reversals
- Validation rejects before any mutation
*/
package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/finance-engine/ledger"
)

func TestPosting_CreateThenDeleteRestoresBalance(t *testing.T) {
	// GIVEN: An account at 100.00
	e := newEnv(t)
	acct := e.openAccount(t, "Cash", "100")

	// WHEN: An expense of 12.50 is posted
	entry := e.expense(t, acct.ID, "12.50")

	// THEN: The balance drops by 12.50
	assert.Equal(t, "87.50", e.balance(t, acct.ID))
	assert.Equal(t, ledger.NewDay(2025, time.March, 15), entry.Date)

	// WHEN: The expense is deleted
	require.NoError(t, e.postings.Delete(context.Background(), alice, entry.ID))

	// THEN: The balance is back where it started
	assert.Equal(t, "100.00", e.balance(t, acct.ID))
	e.requireConsistent(t, acct.ID)

	_, err := e.postings.Get(context.Background(), alice, entry.ID)
	assert.ErrorIs(t, err, ledger.ErrEntryNotFound)
}

func TestPosting_IncomeIncreasesBalance(t *testing.T) {
	e := newEnv(t)
	acct := e.openAccount(t, "Checking", "0")

	e.income(t, acct.ID, "2500.00")
	e.expense(t, acct.ID, "0.01")

	assert.Equal(t, "2499.99", e.balance(t, acct.ID))
	e.requireConsistent(t, acct.ID)
}

func TestPosting_RejectsAmountAboveMax(t *testing.T) {
	// GIVEN: An account at 100.00
	e := newEnv(t)
	acct := e.openAccount(t, "Checking", "100")

	// WHEN: An income far beyond MaxAmount is posted
	_, err := e.postings.Create(context.Background(), alice, ledger.NewEntry{
		Kind:       ledger.KindIncome,
		CategoryID: e.food,
		Amount:     ledger.MustAmount("100000000000000000.00"),
		AccountID:  acct.ID,
	})

	// THEN: It is rejected and nothing moves
	assert.Equal(t, ledger.CodeAmountOutOfRange, validationCode(t, err))
	assert.Equal(t, "100.00", e.balance(t, acct.ID))
	entries, err := e.postings.List(context.Background(), alice, ledger.EntryFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPosting_BalanceCapRollsBack(t *testing.T) {
	// GIVEN: An account whose balance reaches MaxBalance after nine max incomes
	e := newEnv(t)
	acct := e.openAccount(t, "Treasury", ledger.MaxAmount.String())
	for i := 0; i < 9; i++ {
		e.income(t, acct.ID, ledger.MaxAmount.String())
	}
	require.Equal(t, ledger.MaxBalance.StringFixed(ledger.Scale), e.balance(t, acct.ID))

	// WHEN: One more income would push it past the cap
	_, err := e.postings.Create(context.Background(), alice, ledger.NewEntry{
		Kind:       ledger.KindIncome,
		CategoryID: e.food,
		Amount:     ledger.MustAmount("0.01"),
		AccountID:  acct.ID,
	})

	// THEN: The posting is rejected and the transaction leaves no trace
	assert.ErrorIs(t, err, ledger.ErrAmountOutOfRange)
	assert.Equal(t, ledger.MaxBalance.StringFixed(ledger.Scale), e.balance(t, acct.ID))
	entries, err := e.postings.List(context.Background(), alice, ledger.EntryFilter{})
	require.NoError(t, err)
	assert.Len(t, entries, 9)
	e.requireConsistent(t, acct.ID)
}

func TestPosting_UpdateSameAccountAppliesDifference(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	acct := e.openAccount(t, "Cash", "500")
	entry := e.expense(t, acct.ID, "100")

	tests := []struct {
		name   string
		amount string
		want   string
	}{
		{"increase", "150", "350.00"},
		{"decrease", "40", "460.00"},
		{"unchanged", "40", "460.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.postings.Update(ctx, alice, entry.ID, ledger.EntryUpdate{
				CategoryID: e.food,
				Amount:     ledger.MustAmount(tt.amount),
				AccountID:  acct.ID,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, e.balance(t, acct.ID))
		})
	}
	e.requireConsistent(t, acct.ID)
}

func TestPosting_UpdateMovesEntryBetweenAccounts(t *testing.T) {
	// GIVEN: An expense of 100 on A
	ctx := context.Background()
	e := newEnv(t)
	a := e.openAccount(t, "A", "1000")
	b := e.openAccount(t, "B", "1000")
	entry := e.expense(t, a.ID, "100")

	// WHEN: It is edited to 60 on B
	updated, err := e.postings.Update(ctx, alice, entry.ID, ledger.EntryUpdate{
		CategoryID:  e.food,
		Description: "moved",
		Amount:      ledger.MustAmount("60"),
		AccountID:   b.ID,
	})
	require.NoError(t, err)

	// THEN: A gets the 100 back and B pays 60
	assert.Equal(t, "1000.00", e.balance(t, a.ID))
	assert.Equal(t, "940.00", e.balance(t, b.ID))
	assert.Equal(t, b.ID, updated.AccountID)
	assert.Equal(t, ledger.KindExpense, updated.Kind)
	assert.Equal(t, entry.CreatedAt, updated.CreatedAt)
	e.requireConsistent(t, a.ID, b.ID)
}

func TestPosting_UnassignedEntries(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	acct := e.openAccount(t, "Cash", "50")

	// GIVEN: An expense with no account
	entry := e.expense(t, "", "20")
	assert.Equal(t, "50.00", e.balance(t, acct.ID))

	// WHEN: It gets assigned to the account
	_, err := e.postings.Update(ctx, alice, entry.ID, ledger.EntryUpdate{
		CategoryID: e.food, Amount: ledger.MustAmount("20"), AccountID: acct.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "30.00", e.balance(t, acct.ID))

	// WHEN: It is unassigned again
	_, err = e.postings.Update(ctx, alice, entry.ID, ledger.EntryUpdate{
		CategoryID: e.food, Amount: ledger.MustAmount("20"),
	})
	require.NoError(t, err)

	// THEN: The account is made whole
	assert.Equal(t, "50.00", e.balance(t, acct.ID))
	e.requireConsistent(t, acct.ID)
}

func TestPosting_InactiveAccount(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	acct := e.openAccount(t, "Old card", "100")
	entry := e.expense(t, acct.ID, "30")

	// GIVEN: The account is deactivated
	require.NoError(t, e.accounts.Deactivate(ctx, alice, acct.ID))

	// WHEN: A new expense targets it
	_, err := e.postings.Create(ctx, alice, ledger.NewEntry{
		Kind: ledger.KindExpense, CategoryID: e.food, Amount: ledger.MustAmount("1"), AccountID: acct.ID,
	})

	// THEN: It is refused
	assert.Equal(t, ledger.CodeAccountInactive, validationCode(t, err))
	assert.ErrorIs(t, err, ledger.ErrAccountInactive)

	// AND: Editing only the description is allowed
	_, err = e.postings.Update(ctx, alice, entry.ID, ledger.EntryUpdate{
		CategoryID: e.food, Description: "renamed", Amount: ledger.MustAmount("30"), AccountID: acct.ID,
	})
	require.NoError(t, err)

	// AND: Changing its amount is a new effect and is refused
	_, err = e.postings.Update(ctx, alice, entry.ID, ledger.EntryUpdate{
		CategoryID: e.food, Amount: ledger.MustAmount("31"), AccountID: acct.ID,
	})
	assert.Equal(t, ledger.CodeAccountInactive, validationCode(t, err))

	// AND: Deleting the old expense still reverses it
	require.NoError(t, e.postings.Delete(ctx, alice, entry.ID))
	assert.Equal(t, "100.00", e.balance(t, acct.ID))
	e.requireConsistent(t, acct.ID)
}

func TestPosting_Validation(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	acct := e.openAccount(t, "Cash", "100")

	tests := []struct {
		name string
		in   ledger.NewEntry
		code string
	}{
		{
			name: "zero amount",
			in:   ledger.NewEntry{Kind: ledger.KindExpense, CategoryID: e.food, Amount: ledger.MustAmount("0"), AccountID: acct.ID},
			code: ledger.CodeInvalidAmount,
		},
		{
			name: "negative amount",
			in:   ledger.NewEntry{Kind: ledger.KindExpense, CategoryID: e.food, Amount: ledger.MustAmount("-5"), AccountID: acct.ID},
			code: ledger.CodeInvalidAmount,
		},
		{
			name: "three decimals",
			in:   ledger.NewEntry{Kind: ledger.KindExpense, CategoryID: e.food, Amount: ledger.MustAmount("1.005"), AccountID: acct.ID},
			code: ledger.CodeInvalidAmount,
		},
		{
			name: "unknown kind",
			in:   ledger.NewEntry{Kind: "refund", CategoryID: e.food, Amount: ledger.MustAmount("5"), AccountID: acct.ID},
			code: ledger.CodeInvalidKind,
		},
		{
			name: "missing category",
			in:   ledger.NewEntry{Kind: ledger.KindExpense, Amount: ledger.MustAmount("5"), AccountID: acct.ID},
			code: ledger.CodeInvalidCategory,
		},
		{
			name: "unknown category",
			in:   ledger.NewEntry{Kind: ledger.KindExpense, CategoryID: "nope", Amount: ledger.MustAmount("5"), AccountID: acct.ID},
			code: ledger.CodeInvalidCategory,
		},
		{
			name: "unknown account",
			in:   ledger.NewEntry{Kind: ledger.KindExpense, CategoryID: e.food, Amount: ledger.MustAmount("5"), AccountID: "nope"},
			code: ledger.CodeInvalidAccount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.postings.Create(ctx, alice, tt.in)
			assert.Equal(t, tt.code, validationCode(t, err))
			assert.True(t, ledger.IsClientError(err))
		})
	}

	// THEN: Nothing was posted
	assert.Equal(t, "100.00", e.balance(t, acct.ID))
	entries, err := e.postings.List(ctx, alice, ledger.EntryFilter{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPosting_ForeignOwnerSeesNothing(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	acct := e.openAccount(t, "Cash", "100")
	entry := e.expense(t, acct.ID, "10")

	_, err := e.postings.Get(ctx, "mallory", entry.ID)
	assert.ErrorIs(t, err, ledger.ErrEntryNotFound)

	err = e.postings.Delete(ctx, "mallory", entry.ID)
	assert.ErrorIs(t, err, ledger.ErrEntryNotFound)
	assert.True(t, ledger.IsNotFound(err))

	_, err = e.postings.Update(ctx, "mallory", entry.ID, ledger.EntryUpdate{
		CategoryID: e.food, Amount: ledger.MustAmount("1"),
	})
	assert.ErrorIs(t, err, ledger.ErrEntryNotFound)

	assert.Equal(t, "90.00", e.balance(t, acct.ID))
}

func TestPosting_DuplicateSourceKey(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	acct := e.openAccount(t, "Cash", "100")

	in := ledger.NewEntry{
		Kind: ledger.KindExpense, CategoryID: e.food, Amount: ledger.MustAmount("10"), AccountID: acct.ID,
		SourceKey: "import:line-42",
	}
	_, err := e.postings.Create(ctx, alice, in)
	require.NoError(t, err)

	_, err = e.postings.Create(ctx, alice, in)
	assert.ErrorIs(t, err, ledger.ErrDuplicateIdempotencyKey)
	assert.True(t, ledger.IsConflict(err))
	assert.Equal(t, "90.00", e.balance(t, acct.ID))
}

func TestPosting_ListFilters(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	acct := e.openAccount(t, "Cash", "0")
	e.expense(t, acct.ID, "5")
	e.income(t, acct.ID, "7")
	e.expense(t, "", "9")

	expenses, err := e.postings.List(ctx, alice, ledger.EntryFilter{Kind: ledger.KindExpense})
	require.NoError(t, err)
	assert.Len(t, expenses, 2)

	onAccount, err := e.postings.List(ctx, alice, ledger.EntryFilter{AccountID: acct.ID})
	require.NoError(t, err)
	assert.Len(t, onAccount, 2)

	limited, err := e.postings.List(ctx, alice, ledger.EntryFilter{Limit: 1, Offset: -3})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	_, err = e.postings.List(ctx, alice, ledger.EntryFilter{Kind: "bogus"})
	assert.Equal(t, ledger.CodeInvalidKind, validationCode(t, err))

	_, err = e.postings.List(ctx, alice, ledger.EntryFilter{
		From: ledger.NewDay(2025, time.April, 1),
		To:   ledger.NewDay(2025, time.March, 1),
	})
	assert.Equal(t, ledger.CodeInvalidDate, validationCode(t, err))
}
