/*
Package sqlstore provides the SQL-backed ledger.TxStore and budget.Store.

PURPOSE:
  One implementation for two dialects: SQLite (dev, tests) and PostgreSQL
  (production). Queries are written once with "?" placeholders and rebound
  to "$n" for PostgreSQL.

KEY TABLES:
  accounts:        balance_current is the materialized value we maintain
  entries:         expenses and incomes; source_key is the idempotency key
  transfers:       create-only
  recurring_rules: templates + next_due
  budgets, notifications: budget watcher collaborator

BALANCE WRITES:
  AdjustBalance is a single statement evaluated by the database:

    UPDATE accounts SET balance_current = balance_current + ?
    WHERE id = ? AND owner_id = ? RETURNING balance_current

  Amounts are stored as BIGINT minor units so the addition is exact.

CONCURRENCY:
  PostgreSQL: row locks. AdjustBalance locks the account row until commit;
  GetEntryForUpdate/GetRuleForUpdate append FOR UPDATE.
  SQLite: WithTx serializes in-process writers with a mutex and begins
  transactions IMMEDIATE (_txlock=immediate) with a busy timeout. ":memory:"
  databases are pinned to one connection so every caller sees the same data.

MIGRATION:
  Versioned SQL migrations are embedded and applied with goose on Open.
  goose output goes to the logger passed to Open.

USAGE:
  store, err := sqlstore.Open(ctx, "sqlite", "./data/finance.db", log)
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()
*/
package sqlstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/warp/finance-engine/budget"
	"github.com/warp/finance-engine/ledger"
	"github.com/warp/finance-engine/logging"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Dialect selects placeholder style and locking clauses.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

func (d Dialect) driverName() string {
	if d == Postgres {
		return "pgx"
	}
	return "sqlite3"
}

func (d Dialect) gooseDialect() string {
	if d == Postgres {
		return "postgres"
	}
	return "sqlite3"
}

// Store implements ledger.TxStore and budget.Store.
type Store struct {
	*queries
	db  *sql.DB
	mu  sync.Mutex
	log logging.Logger
}

var (
	_ ledger.TxStore = (*Store)(nil)
	_ budget.Store   = (*Store)(nil)
)

// Open connects, migrates and returns a Store.
// driver is "sqlite" or "postgres". Use ":memory:" for an in-memory SQLite.
func Open(ctx context.Context, driver, dsn string, log logging.Logger) (*Store, error) {
	dialect := Dialect(driver)
	switch dialect {
	case SQLite:
		dsn = sqliteDSN(dsn)
	case Postgres:
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dialect == SQLite && strings.Contains(dsn, ":memory:") {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := New(db, dialect)
	if log != nil {
		store.log = log
	}
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// New wraps an open database without migrating it.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{
		queries: &queries{db: db, dialect: dialect},
		db:      db,
		log:     logging.Nop(),
	}
}

func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate"
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying pool for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// goose keeps its configuration in package globals.
var gooseMu sync.Mutex

// gooseLogger sends goose's printf-style output to a Logger.
type gooseLogger struct {
	log logging.Logger
}

func (g gooseLogger) Printf(format string, v ...any) {
	g.log.Info(context.Background(), strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// Fatalf only logs; goose reports the failure as an error as well.
func (g gooseLogger) Fatalf(format string, v ...any) {
	g.log.Error(context.Background(), strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// gooseUp is a seam for tests.
var gooseUp = func(ctx context.Context, db *sql.DB, dir string) error {
	return goose.UpContext(ctx, db, dir)
}

// Migrate applies the embedded migrations.
func (s *Store) Migrate(ctx context.Context) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{log: s.log.With("component", "migrations")})
	if err := goose.SetDialect(s.dialect.gooseDialect()); err != nil {
		return err
	}
	return gooseUp(ctx, s.db, "migrations")
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn against a transactional view of the store. It commits when
// fn returns nil and rolls back on error or panic.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	if s.dialect == SQLite {
		s.mu.Lock()
		defer s.mu.Unlock()
	}

	return withTx(ctx, s.db, nil, func(ctx context.Context, tx DBTX) error {
		return fn(&queries{db: tx, dialect: s.dialect, inTx: true})
	})
}

// DBTX is the subset of database/sql used by queries.
// Both *sql.DB and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func withTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = fmt.Errorf("failed to commit transaction: %w", cerr)
		}
	}()

	err = fn(ctx, tx)
	return err
}

// =============================================================================
// QUERIES - ledger.Store over a pool or a transaction
// =============================================================================

type queries struct {
	db      DBTX
	dialect Dialect
	inTx    bool
}

// rebind rewrites "?" placeholders to "$1..$n" for PostgreSQL.
func (q *queries) rebind(query string) string {
	if q.dialect != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// forUpdate returns the row-locking suffix when it means something.
func (q *queries) forUpdate() string {
	if q.dialect == Postgres && q.inTx {
		return " FOR UPDATE"
	}
	return ""
}

func (q *queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return q.db.ExecContext(ctx, q.rebind(query), args...)
}

func (q *queries) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return q.db.QueryContext(ctx, q.rebind(query), args...)
}

func (q *queries) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return q.db.QueryRowContext(ctx, q.rebind(query), args...)
}

// =============================================================================
// HELPERS
// =============================================================================

// timeLayout is fixed-width so stored timestamps sort as strings.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Rows written by hand or older tools.
		if t2, err2 := time.Parse(time.RFC3339Nano, s); err2 == nil {
			return t2.UTC(), nil
		}
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseDay(s string) (time.Time, error) {
	t, err := time.Parse(ledger.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad date %q: %w", s, err)
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func affected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n, nil
}
