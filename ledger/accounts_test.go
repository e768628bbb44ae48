package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/finance-engine/ledger"
)

// =============================================================================
// AMOUNTS
// =============================================================================

func TestAmounts(t *testing.T) {
	d, err := ledger.ParseAmount("12.50")
	require.NoError(t, err)
	minor, err := ledger.ToMinor(d)
	require.NoError(t, err)
	assert.Equal(t, int64(1250), minor)
	assert.True(t, ledger.FromMinor(1250).Equal(d))
	assert.True(t, ledger.FromMinor(-7).Equal(ledger.MustAmount("-0.07")))

	_, err = ledger.ParseAmount("twelve")
	assert.Equal(t, ledger.CodeInvalidAmount, validationCode(t, err))

	assert.NoError(t, ledger.ValidateAmount(ledger.MustAmount("0.01")))
	assert.Error(t, ledger.ValidateAmount(ledger.MustAmount("0.001")))
}

func TestAmounts_Bounds(t *testing.T) {
	// GIVEN: The largest accepted amount and one cent more
	largest := ledger.MaxAmount
	tooLarge := ledger.MaxAmount.Add(ledger.MustAmount("0.01"))

	// THEN: Validation draws the line exactly at MaxAmount
	assert.NoError(t, ledger.ValidateAmount(largest))
	err := ledger.ValidateAmount(tooLarge)
	assert.Equal(t, ledger.CodeAmountOutOfRange, validationCode(t, err))
	assert.ErrorIs(t, err, ledger.ErrAmountOutOfRange)
	assert.True(t, ledger.IsClientError(err))

	// AND: Minor-unit conversion fails instead of wrapping
	minor, err := ledger.ToMinor(largest)
	require.NoError(t, err)
	assert.Equal(t, int64(100_000_000_000_000_000), minor)

	_, err = ledger.ToMinor(ledger.MustAmount("100000000000000000.00"))
	assert.ErrorIs(t, err, ledger.ErrAmountOutOfRange)
	_, err = ledger.ToMinor(ledger.MustAmount("-100000000000000000.00"))
	assert.ErrorIs(t, err, ledger.ErrAmountOutOfRange)
}

func TestAccounts_CreateRejectsHugeInitialBalance(t *testing.T) {
	e := newEnv(t)

	for _, initial := range []string{"1000000000000000.01", "-1000000000000000.01"} {
		_, err := e.accounts.Create(context.Background(), alice, ledger.NewAccount{
			Name:           "Vault",
			BalanceInitial: ledger.MustAmount(initial),
		})
		assert.Equal(t, ledger.CodeAmountOutOfRange, validationCode(t, err), initial)
	}

	accounts, err := e.accounts.List(context.Background(), alice, true)
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestEntryEffect(t *testing.T) {
	expense := ledger.Entry{Kind: ledger.KindExpense, Amount: ledger.MustAmount("12.50")}
	income := ledger.Entry{Kind: ledger.KindIncome, Amount: ledger.MustAmount("3")}

	assert.Equal(t, "-12.50", expense.Effect().StringFixed(2))
	assert.Equal(t, "3.00", income.Effect().StringFixed(2))
	assert.False(t, expense.HasAccount())
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func TestAccountService_CreateDefaults(t *testing.T) {
	e := newEnv(t)

	a, err := e.accounts.Create(context.Background(), alice, ledger.NewAccount{
		Name:           "  Wallet ",
		BalanceInitial: ledger.MustAmount("20.5"),
	})
	require.NoError(t, err)

	assert.Equal(t, "Wallet", a.Name)
	assert.Equal(t, ledger.AccountBank, a.Type)
	assert.Equal(t, "MXN", a.Currency)
	assert.True(t, a.Active)
	assert.True(t, a.BalanceCurrent.Equal(a.BalanceInitial))
}

func TestAccountService_Validation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.accounts.Create(ctx, alice, ledger.NewAccount{Name: ""})
	assert.Equal(t, ledger.CodeInvalidAccount, validationCode(t, err))

	_, err = e.accounts.Create(ctx, alice, ledger.NewAccount{Name: "x", Type: "piggy_bank"})
	assert.Equal(t, ledger.CodeInvalidAccount, validationCode(t, err))

	_, err = e.accounts.Create(ctx, alice, ledger.NewAccount{Name: "x", BalanceInitial: ledger.MustAmount("1.234")})
	assert.Equal(t, ledger.CodeInvalidAmount, validationCode(t, err))
}

func TestAccountService_UpdateKeepsBalance(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	acct := e.openAccount(t, "Cash", "100")
	e.expense(t, acct.ID, "25")

	updated, err := e.accounts.Update(ctx, alice, acct.ID, ledger.AccountUpdate{
		Name: "Pocket", Type: ledger.AccountCash, Color: "#00ff00", Icon: "wallet",
	})
	require.NoError(t, err)
	assert.Equal(t, "Pocket", updated.Name)
	assert.Equal(t, "75.00", e.balance(t, acct.ID))
	e.requireConsistent(t, acct.ID)
}

func TestAccountService_DeactivateHidesFromList(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	keep := e.openAccount(t, "Keep", "1")
	gone := e.openAccount(t, "Gone", "1")

	require.NoError(t, e.accounts.Deactivate(ctx, alice, gone.ID))
	require.NoError(t, e.accounts.Deactivate(ctx, alice, gone.ID))

	active, err := e.accounts.List(ctx, alice, false)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, keep.ID, active[0].ID)

	all, err := e.accounts.List(ctx, alice, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	got, err := e.accounts.Get(ctx, alice, gone.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)
}

func TestAccountService_Categories(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	c, err := e.accounts.CreateCategory(ctx, alice, ledger.NewCategory{Name: "Salary", Kind: ledger.KindIncome})
	require.NoError(t, err)
	assert.Equal(t, ledger.KindIncome, c.Kind)

	_, err = e.accounts.CreateCategory(ctx, alice, ledger.NewCategory{Name: " ", Kind: ledger.KindIncome})
	assert.Equal(t, ledger.CodeInvalidCategory, validationCode(t, err))

	_, err = e.accounts.CreateCategory(ctx, alice, ledger.NewCategory{Name: "x", Kind: "other"})
	assert.Equal(t, ledger.CodeInvalidKind, validationCode(t, err))

	list, err := e.accounts.ListCategories(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
