/*
sqlstore_test.go - Query-shape tests against a mocked PostgreSQL connection

Tests for:
- "?" to "$n" rebinding
- FOR UPDATE only inside a PostgreSQL transaction
- Rollback when the unit of work fails
- Unique violations mapped to ErrDuplicateIdempotencyKey
*/
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/finance-engine/ledger"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, Postgres), mock
}

func TestRebind(t *testing.T) {
	pg := &queries{dialect: Postgres}
	lite := &queries{dialect: SQLite}

	query := "SELECT * FROM entries WHERE owner_id = ? AND kind = ? LIMIT ?"

	assert.Equal(t, "SELECT * FROM entries WHERE owner_id = $1 AND kind = $2 LIMIT $3", pg.rebind(query))
	assert.Equal(t, query, lite.rebind(query))
}

func TestForUpdate(t *testing.T) {
	assert.Equal(t, "", (&queries{dialect: Postgres}).forUpdate())
	assert.Equal(t, " FOR UPDATE", (&queries{dialect: Postgres, inTx: true}).forUpdate())
	assert.Equal(t, "", (&queries{dialect: SQLite, inTx: true}).forUpdate())
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t,
		"finance.db?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate",
		sqliteDSN("finance.db"))
	assert.Equal(t,
		"file:x.db?cache=shared&_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate",
		sqliteDSN("file:x.db?cache=shared"))
}

func TestAdjustBalance_Postgres(t *testing.T) {
	// GIVEN: An account holding 100.00
	store, mock := newMockStore(t)

	mock.ExpectQuery(`UPDATE accounts SET balance_current = balance_current \+ \$1\s+WHERE id = \$2 AND owner_id = \$3\s+RETURNING balance_current`).
		WithArgs(int64(-1250), "acct-1", "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"balance_current"}).AddRow(int64(8750)))

	// WHEN: 12.50 is taken out
	got, err := store.AdjustBalance(context.Background(), "user-1", "acct-1", ledger.MustAmount("-12.50"))

	// THEN: The database computes the new balance in one statement
	require.NoError(t, err)
	assert.True(t, got.Equal(ledger.MustAmount("87.50")), "got %s", got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAdjustBalance_UnknownAccount(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`UPDATE accounts SET balance_current`).
		WillReturnError(sql.ErrNoRows)

	_, err := store.AdjustBalance(context.Background(), "user-1", "ghost", ledger.MustAmount("1"))
	assert.ErrorIs(t, err, ledger.ErrAccountNotFound)
}

func TestAdjustBalance_OverflowNeverReachesDatabase(t *testing.T) {
	store, mock := newMockStore(t)

	_, err := store.AdjustBalance(context.Background(), "user-1", "acct-1", ledger.MustAmount("92233720368547758.08"))

	assert.ErrorIs(t, err, ledger.ErrAmountOutOfRange)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_LocksEntryAndRollsBack(t *testing.T) {
	// GIVEN: A unit of work that locks an entry which does not exist
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM entries WHERE id = \$1 AND owner_id = \$2 FOR UPDATE`).
		WithArgs("entry-1", "user-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	// WHEN: The work runs
	err := store.WithTx(context.Background(), func(s ledger.Store) error {
		_, err := s.GetEntryForUpdate(context.Background(), "user-1", "entry-1")
		return err
	})

	// THEN: The error surfaces and nothing is committed
	assert.ErrorIs(t, err, ledger.ErrEntryNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_Commits(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE accounts SET balance_current`).
		WithArgs(int64(500), "acct-1", "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"balance_current"}).AddRow(int64(500)))
	mock.ExpectCommit()

	err := store.WithTx(context.Background(), func(s ledger.Store) error {
		_, err := s.AdjustBalance(context.Background(), "user-1", "acct-1", ledger.MustAmount("5"))
		return err
	})

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_RollsBackOnPanic(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectRollback()

	assert.Panics(t, func() {
		_ = store.WithTx(context.Background(), func(ledger.Store) error {
			panic("boom")
		})
	})
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertEntry_DuplicateSourceKey(t *testing.T) {
	// GIVEN: PostgreSQL rejects the insert on the source_key unique index
	store, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO entries`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "idx_entries_source_key"})

	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	e := ledger.Entry{
		ID:         "entry-1",
		OwnerID:    "user-1",
		Kind:       ledger.KindExpense,
		Date:       now,
		CategoryID: "cat-1",
		Amount:     ledger.MustAmount("10"),
		RuleID:     "rule-1",
		SourceKey:  ledger.RecurringSourceKey("rule-1", now),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	// WHEN: The entry is inserted
	err := store.InsertEntry(context.Background(), e)

	// THEN: The store reports the idempotency conflict
	assert.ErrorIs(t, err, ledger.ErrDuplicateIdempotencyKey)
}

func TestListEntries_Postgres(t *testing.T) {
	store, mock := newMockStore(t)

	cols := []string{"id", "owner_id", "kind", "entry_date", "category_id", "description", "amount",
		"account_id", "rule_id", "source_key", "created_at", "updated_at"}
	mock.ExpectQuery(`FROM entries WHERE owner_id = \$1 AND kind = \$2 AND entry_date >= \$3 ORDER BY entry_date DESC, created_at DESC, id ASC LIMIT \$4 OFFSET \$5`).
		WithArgs("user-1", "expense", "2025-03-01", 10, 20).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("e1", "user-1", "expense", "2025-03-05", "cat-1", "Lunch", int64(1250),
				"acct-1", nil, nil, "2025-03-05T12:00:00.000000000Z", "2025-03-05T12:00:00.000000000Z"))

	entries, err := store.ListEntries(context.Background(), "user-1", ledger.EntryFilter{
		Kind:   ledger.KindExpense,
		From:   ledger.NewDay(2025, time.March, 1),
		Limit:  10,
		Offset: 20,
	})

	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.AccountID("acct-1"), entries[0].AccountID)
	assert.Equal(t, "", entries[0].SourceKey)
	assert.True(t, entries[0].Amount.Equal(ledger.MustAmount("12.50")))
	assert.Equal(t, ledger.NewDay(2025, time.March, 5), entries[0].Date)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.True(t, isUniqueViolation(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}))
	assert.False(t, isUniqueViolation(errors.New("boom")))
}

func TestParseTime(t *testing.T) {
	want := time.Date(2025, 3, 5, 12, 30, 0, 0, time.UTC)

	got, err := parseTime(formatTime(want))
	require.NoError(t, err)
	assert.True(t, want.Equal(got))

	got, err = parseTime("2025-03-05T12:30:00Z")
	require.NoError(t, err)
	assert.True(t, want.Equal(got))

	_, err = parseTime("yesterday")
	assert.Error(t, err)
}
