package ledger_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/warp/finance-engine/ledger"
	"github.com/warp/finance-engine/ledger/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

const alice = ledger.OwnerID("alice")

var today = time.Date(2025, time.March, 15, 10, 30, 0, 0, time.UTC)

func fixedNow() time.Time { return today }

// sequence returns deterministic ids: prefix-1, prefix-2, ...
func sequence(prefix string) func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("%s-%d", prefix, n.Add(1)) }
}

type env struct {
	store     *store.TxMemory
	accounts  *ledger.AccountService
	postings  *ledger.PostingService
	transfers *ledger.TransferService
	generator *ledger.Generator
	food      ledger.CategoryID
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return newEnvWith(t, store.NewTxMemory())
}

func newEnvWith(t *testing.T, s *store.TxMemory) *env {
	t.Helper()
	e := &env{store: s}

	e.accounts = ledger.NewAccountService(s, "MXN")
	e.accounts.Now = fixedNow
	e.accounts.NewID = sequence("acct")

	e.postings = ledger.NewPostingService(s, nil)
	e.postings.Now = fixedNow
	e.postings.NewID = sequence("entry")

	e.transfers = ledger.NewTransferService(s, nil)
	e.transfers.Now = fixedNow
	e.transfers.NewID = sequence("tr")

	e.generator = ledger.NewGenerator(s, e.postings, nil)
	e.generator.Now = fixedNow
	e.generator.NewID = sequence("rule")

	cat, err := s.GetCategory(context.Background(), alice, "food")
	if err != nil {
		cat = ledger.Category{ID: "food", OwnerID: alice, Name: "Food", Kind: ledger.KindExpense}
		require.NoError(t, s.SaveCategory(context.Background(), cat))
	}
	e.food = cat.ID
	return e
}

func (e *env) openAccount(t *testing.T, name, initial string) ledger.Account {
	t.Helper()
	a, err := e.accounts.Create(context.Background(), alice, ledger.NewAccount{
		Name:           name,
		Type:           ledger.AccountBank,
		BalanceInitial: ledger.MustAmount(initial),
	})
	require.NoError(t, err)
	return a
}

func (e *env) expense(t *testing.T, account ledger.AccountID, amount string) ledger.Entry {
	t.Helper()
	return e.post(t, ledger.KindExpense, account, amount)
}

func (e *env) income(t *testing.T, account ledger.AccountID, amount string) ledger.Entry {
	t.Helper()
	return e.post(t, ledger.KindIncome, account, amount)
}

func (e *env) post(t *testing.T, kind ledger.Kind, account ledger.AccountID, amount string) ledger.Entry {
	t.Helper()
	entry, err := e.postings.Create(context.Background(), alice, ledger.NewEntry{
		Kind:       kind,
		CategoryID: e.food,
		Amount:     ledger.MustAmount(amount),
		AccountID:  account,
	})
	require.NoError(t, err)
	return entry
}

// balance returns the cached balance formatted with two decimals.
func (e *env) balance(t *testing.T, id ledger.AccountID) string {
	t.Helper()
	a, err := e.store.GetAccount(context.Background(), alice, id)
	require.NoError(t, err)
	return a.BalanceCurrent.StringFixed(ledger.Scale)
}

func (e *env) requireConsistent(t *testing.T, ids ...ledger.AccountID) {
	t.Helper()
	r := ledger.Reconciler{Store: e.store}
	for _, id := range ids {
		report, err := r.Check(context.Background(), alice, id)
		require.NoError(t, err)
		require.Truef(t, report.Consistent, "account %s: cached %s derived %s", id, report.Cached, report.Derived)
	}
}

func validationCode(t *testing.T, err error) string {
	t.Helper()
	var verr *ledger.ValidationError
	require.ErrorAs(t, err, &verr)
	return verr.Code
}
