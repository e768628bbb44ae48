/*
transfer_test.go - Dual-account transfers

Tests for:
- Debit and credit land together
- A failure on either leg leaves both accounts and the transfer log untouched
- Self-transfers, foreign accounts and currency mismatches are refused
*/
package ledger_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/finance-engine/ledger"
	"github.com/warp/finance-engine/ledger/store"
)

// failingStore makes AdjustBalance fail for one account inside transactions.
type failingStore struct {
	*store.TxMemory
	failOn ledger.AccountID
}

type failingTx struct {
	ledger.Store
	failOn ledger.AccountID
}

var errDiskFull = errors.New("disk full")

func (f failingTx) AdjustBalance(ctx context.Context, owner ledger.OwnerID, id ledger.AccountID, delta decimal.Decimal) (decimal.Decimal, error) {
	if id == f.failOn {
		return decimal.Zero, errDiskFull
	}
	return f.Store.AdjustBalance(ctx, owner, id, delta)
}

func (f *failingStore) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	return f.TxMemory.WithTx(ctx, func(s ledger.Store) error {
		return fn(failingTx{Store: s, failOn: f.failOn})
	})
}

func TestTransfer_MovesMoney(t *testing.T) {
	// GIVEN: A at 200 and B at 10
	ctx := context.Background()
	e := newEnv(t)
	a := e.openAccount(t, "A", "200")
	b := e.openAccount(t, "B", "10")

	// WHEN: 50 moves from A to B
	tr, err := e.transfers.Create(ctx, alice, ledger.NewTransfer{
		SourceID:      a.ID,
		DestinationID: b.ID,
		Amount:        ledger.MustAmount("50"),
		Description:   " savings ",
	})
	require.NoError(t, err)

	// THEN: A is 150 and B is 60
	assert.Equal(t, "150.00", e.balance(t, a.ID))
	assert.Equal(t, "60.00", e.balance(t, b.ID))
	assert.Equal(t, "savings", tr.Description)
	assert.Equal(t, ledger.Day(today), tr.Date)
	e.requireConsistent(t, a.ID, b.ID)

	listed, err := e.transfers.List(ctx, alice, b.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, tr.ID, listed[0].ID)
}

func TestTransfer_FailingLegRollsBackEverything(t *testing.T) {
	for _, failSource := range []bool{true, false} {
		name := "destination fails"
		if failSource {
			name = "source fails"
		}
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			mem := store.NewTxMemory()
			e := newEnvWith(t, mem)
			a := e.openAccount(t, "A", "200")
			b := e.openAccount(t, "B", "10")

			// GIVEN: The store fails while applying one of the legs
			failOn := b.ID
			if failSource {
				failOn = a.ID
			}
			svc := ledger.NewTransferService(&failingStore{TxMemory: mem, failOn: failOn}, nil)

			// WHEN: A transfer is attempted
			_, err := svc.Create(ctx, alice, ledger.NewTransfer{
				SourceID: a.ID, DestinationID: b.ID, Amount: ledger.MustAmount("50"),
			})

			// THEN: The error surfaces and nothing is visible
			assert.ErrorIs(t, err, errDiskFull)
			assert.Equal(t, "200.00", e.balance(t, a.ID))
			assert.Equal(t, "10.00", e.balance(t, b.ID))

			transfers, err := e.transfers.List(ctx, alice, "")
			require.NoError(t, err)
			assert.Empty(t, transfers)
		})
	}
}

func TestTransfer_Validation(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	a := e.openAccount(t, "A", "100")
	b := e.openAccount(t, "B", "100")

	usd, err := e.accounts.Create(ctx, alice, ledger.NewAccount{Name: "USD", Currency: "usd"})
	require.NoError(t, err)
	assert.Equal(t, "USD", usd.Currency)

	closed := e.openAccount(t, "Closed", "100")
	require.NoError(t, e.accounts.Deactivate(ctx, alice, closed.ID))

	theirs, err := e.accounts.Create(ctx, "mallory", ledger.NewAccount{Name: "Theirs"})
	require.NoError(t, err)

	tests := []struct {
		name string
		in   ledger.NewTransfer
		code string
	}{
		{"self transfer", ledger.NewTransfer{SourceID: a.ID, DestinationID: a.ID, Amount: ledger.MustAmount("1")}, ledger.CodeSelfTransfer},
		{"zero amount", ledger.NewTransfer{SourceID: a.ID, DestinationID: b.ID, Amount: decimal.Zero}, ledger.CodeInvalidAmount},
		{"missing source", ledger.NewTransfer{DestinationID: b.ID, Amount: ledger.MustAmount("1")}, ledger.CodeInvalidAccount},
		{"foreign destination", ledger.NewTransfer{SourceID: a.ID, DestinationID: theirs.ID, Amount: ledger.MustAmount("1")}, ledger.CodeInvalidAccount},
		{"inactive source", ledger.NewTransfer{SourceID: closed.ID, DestinationID: b.ID, Amount: ledger.MustAmount("1")}, ledger.CodeAccountInactive},
		{"currency mismatch", ledger.NewTransfer{SourceID: a.ID, DestinationID: usd.ID, Amount: ledger.MustAmount("1")}, ledger.CodeCurrencyMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.transfers.Create(ctx, alice, tt.in)
			assert.Equal(t, tt.code, validationCode(t, err))
		})
	}

	assert.Equal(t, "100.00", e.balance(t, a.ID))
	assert.Equal(t, "100.00", e.balance(t, b.ID))
	transfers, err := e.transfers.List(ctx, alice, "")
	require.NoError(t, err)
	assert.Empty(t, transfers)
}

func TestTransfer_ListForeignAccount(t *testing.T) {
	e := newEnv(t)
	theirs, err := e.accounts.Create(context.Background(), "mallory", ledger.NewAccount{Name: "Theirs"})
	require.NoError(t, err)

	_, err = e.transfers.List(context.Background(), alice, theirs.ID)
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}
