// Package store provides the in-memory ledger.Store used by tests and dev.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/finance-engine/budget"
	"github.com/warp/finance-engine/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory guards a state with a RWMutex. Every method is one atomic step.
type Memory struct {
	mu sync.RWMutex
	st *state
}

func NewMemory() *Memory {
	return &Memory{st: newState()}
}

// state holds the data and implements ledger.Store without locking.
// Callers must hold Memory.mu.
type state struct {
	accounts      map[ledger.AccountID]ledger.Account
	categories    map[ledger.CategoryID]ledger.Category
	entries       map[ledger.EntryID]ledger.Entry
	sourceKeys    map[string]ledger.EntryID
	transfers     []ledger.Transfer
	rules         map[ledger.RuleID]ledger.RecurringRule
	budgets       map[budgetKey]budget.Budget
	notifications []budget.Notification
}

type budgetKey struct {
	owner    ledger.OwnerID
	category ledger.CategoryID
	year     int
	month    time.Month
}

func newState() *state {
	return &state{
		accounts:   make(map[ledger.AccountID]ledger.Account),
		categories: make(map[ledger.CategoryID]ledger.Category),
		entries:    make(map[ledger.EntryID]ledger.Entry),
		sourceKeys: make(map[string]ledger.EntryID),
		rules:      make(map[ledger.RuleID]ledger.RecurringRule),
		budgets:    make(map[budgetKey]budget.Budget),
	}
}

// clone deep-copies the maps and slices. Records are values, so a shallow
// copy of each is enough, except LastGenerated which is re-pointed.
func (s *state) clone() *state {
	c := newState()
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.categories {
		c.categories[k] = v
	}
	for k, v := range s.entries {
		c.entries[k] = v
	}
	for k, v := range s.sourceKeys {
		c.sourceKeys[k] = v
	}
	c.transfers = append([]ledger.Transfer(nil), s.transfers...)
	for k, v := range s.rules {
		c.rules[k] = copyRule(v)
	}
	for k, v := range s.budgets {
		c.budgets[k] = v
	}
	c.notifications = append([]budget.Notification(nil), s.notifications...)
	return c
}

func copyRule(r ledger.RecurringRule) ledger.RecurringRule {
	if r.LastGenerated != nil {
		t := *r.LastGenerated
		r.LastGenerated = &t
	}
	return r
}

// =============================================================================
// ACCOUNTS
// =============================================================================

func (s *state) CreateAccount(_ context.Context, a ledger.Account) error {
	if _, ok := s.accounts[a.ID]; ok {
		return fmt.Errorf("account %s already exists", a.ID)
	}
	s.accounts[a.ID] = a
	return nil
}

// UpdateAccount writes metadata and the active flag; balances are kept.
func (s *state) UpdateAccount(_ context.Context, a ledger.Account) error {
	cur, ok := s.accounts[a.ID]
	if !ok || cur.OwnerID != a.OwnerID {
		return ledger.ErrAccountNotFound
	}
	a.BalanceCurrent = cur.BalanceCurrent
	a.BalanceInitial = cur.BalanceInitial
	a.CreatedAt = cur.CreatedAt
	s.accounts[a.ID] = a
	return nil
}

func (s *state) GetAccount(_ context.Context, owner ledger.OwnerID, id ledger.AccountID) (ledger.Account, error) {
	a, ok := s.accounts[id]
	if !ok || a.OwnerID != owner {
		return ledger.Account{}, ledger.ErrAccountNotFound
	}
	return a, nil
}

func (s *state) ListAccounts(_ context.Context, owner ledger.OwnerID, includeInactive bool) ([]ledger.Account, error) {
	var result []ledger.Account
	for _, a := range s.accounts {
		if a.OwnerID != owner || (!a.Active && !includeInactive) {
			continue
		}
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (s *state) AdjustBalance(_ context.Context, owner ledger.OwnerID, id ledger.AccountID, delta decimal.Decimal) (decimal.Decimal, error) {
	a, ok := s.accounts[id]
	if !ok || a.OwnerID != owner {
		return decimal.Zero, ledger.ErrAccountNotFound
	}
	a.BalanceCurrent = a.BalanceCurrent.Add(delta)
	s.accounts[id] = a
	return a.BalanceCurrent, nil
}

func (s *state) SumPostings(_ context.Context, owner ledger.OwnerID, id ledger.AccountID) (ledger.PostingTotals, error) {
	if a, ok := s.accounts[id]; !ok || a.OwnerID != owner {
		return ledger.PostingTotals{}, ledger.ErrAccountNotFound
	}
	t := ledger.PostingTotals{
		Incomes:      decimal.Zero,
		Expenses:     decimal.Zero,
		TransfersIn:  decimal.Zero,
		TransfersOut: decimal.Zero,
	}
	for _, e := range s.entries {
		if e.AccountID != id {
			continue
		}
		if e.Kind == ledger.KindIncome {
			t.Incomes = t.Incomes.Add(e.Amount)
		} else {
			t.Expenses = t.Expenses.Add(e.Amount)
		}
	}
	for _, tr := range s.transfers {
		if tr.DestinationID == id {
			t.TransfersIn = t.TransfersIn.Add(tr.Amount)
		}
		if tr.SourceID == id {
			t.TransfersOut = t.TransfersOut.Add(tr.Amount)
		}
	}
	return t, nil
}

// =============================================================================
// CATEGORIES
// =============================================================================

func (s *state) SaveCategory(_ context.Context, c ledger.Category) error {
	if cur, ok := s.categories[c.ID]; ok && cur.OwnerID != c.OwnerID {
		return ledger.ErrCategoryNotFound
	}
	s.categories[c.ID] = c
	return nil
}

func (s *state) GetCategory(_ context.Context, owner ledger.OwnerID, id ledger.CategoryID) (ledger.Category, error) {
	c, ok := s.categories[id]
	if !ok || c.OwnerID != owner {
		return ledger.Category{}, ledger.ErrCategoryNotFound
	}
	return c, nil
}

func (s *state) ListCategories(_ context.Context, owner ledger.OwnerID) ([]ledger.Category, error) {
	var result []ledger.Category
	for _, c := range s.categories {
		if c.OwnerID == owner {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// =============================================================================
// ENTRIES
// =============================================================================

func (s *state) InsertEntry(_ context.Context, e ledger.Entry) error {
	if _, ok := s.entries[e.ID]; ok {
		return fmt.Errorf("entry %s already exists", e.ID)
	}
	if e.SourceKey != "" {
		if _, ok := s.sourceKeys[e.SourceKey]; ok {
			return ledger.ErrDuplicateIdempotencyKey
		}
		s.sourceKeys[e.SourceKey] = e.ID
	}
	s.entries[e.ID] = e
	return nil
}

func (s *state) UpdateEntry(_ context.Context, e ledger.Entry) error {
	cur, ok := s.entries[e.ID]
	if !ok || cur.OwnerID != e.OwnerID {
		return ledger.ErrEntryNotFound
	}
	// Identity and provenance are fixed at creation.
	e.Kind = cur.Kind
	e.RuleID = cur.RuleID
	e.SourceKey = cur.SourceKey
	e.CreatedAt = cur.CreatedAt
	s.entries[e.ID] = e
	return nil
}

func (s *state) GetEntry(_ context.Context, owner ledger.OwnerID, id ledger.EntryID) (ledger.Entry, error) {
	e, ok := s.entries[id]
	if !ok || e.OwnerID != owner {
		return ledger.Entry{}, ledger.ErrEntryNotFound
	}
	return e, nil
}

// GetEntryForUpdate is a plain read: the whole transaction already holds
// the store lock.
func (s *state) GetEntryForUpdate(ctx context.Context, owner ledger.OwnerID, id ledger.EntryID) (ledger.Entry, error) {
	return s.GetEntry(ctx, owner, id)
}

func (s *state) DeleteEntry(_ context.Context, owner ledger.OwnerID, id ledger.EntryID) error {
	e, ok := s.entries[id]
	if !ok || e.OwnerID != owner {
		return ledger.ErrEntryNotFound
	}
	if e.SourceKey != "" {
		delete(s.sourceKeys, e.SourceKey)
	}
	delete(s.entries, id)
	return nil
}

func (s *state) ListEntries(_ context.Context, owner ledger.OwnerID, f ledger.EntryFilter) ([]ledger.Entry, error) {
	var result []ledger.Entry
	for _, e := range s.entries {
		if e.OwnerID != owner || !matches(e, f) {
			continue
		}
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.After(b.Date)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return paginate(result, f.Limit, f.Offset), nil
}

func matches(e ledger.Entry, f ledger.EntryFilter) bool {
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	if f.AccountID != "" && e.AccountID != f.AccountID {
		return false
	}
	if f.CategoryID != "" && e.CategoryID != f.CategoryID {
		return false
	}
	if !f.From.IsZero() && e.Date.Before(ledger.Day(f.From)) {
		return false
	}
	if !f.To.IsZero() && e.Date.After(ledger.Day(f.To)) {
		return false
	}
	return true
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func (s *state) EntryExists(_ context.Context, sourceKey string) (bool, error) {
	_, ok := s.sourceKeys[sourceKey]
	return ok, nil
}

func (s *state) SumExpenses(_ context.Context, owner ledger.OwnerID, category ledger.CategoryID, from, to time.Time) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, e := range s.entries {
		if e.OwnerID != owner || e.Kind != ledger.KindExpense || e.CategoryID != category {
			continue
		}
		if e.Date.Before(ledger.Day(from)) || e.Date.After(ledger.Day(to)) {
			continue
		}
		total = total.Add(e.Amount)
	}
	return total, nil
}

// =============================================================================
// TRANSFERS
// =============================================================================

func (s *state) InsertTransfer(_ context.Context, t ledger.Transfer) error {
	s.transfers = append(s.transfers, t)
	return nil
}

func (s *state) ListTransfers(_ context.Context, owner ledger.OwnerID, account ledger.AccountID) ([]ledger.Transfer, error) {
	var result []ledger.Transfer
	for _, t := range s.transfers {
		if t.OwnerID != owner {
			continue
		}
		if account != "" && t.SourceID != account && t.DestinationID != account {
			continue
		}
		result = append(result, t)
	}
	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.After(result[j].Date)
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// =============================================================================
// RECURRING RULES
// =============================================================================

func (s *state) SaveRule(_ context.Context, r ledger.RecurringRule) error {
	if cur, ok := s.rules[r.ID]; ok && cur.OwnerID != r.OwnerID {
		return ledger.ErrRuleNotFound
	}
	s.rules[r.ID] = copyRule(r)
	return nil
}

func (s *state) GetRule(_ context.Context, owner ledger.OwnerID, id ledger.RuleID) (ledger.RecurringRule, error) {
	r, ok := s.rules[id]
	if !ok || r.OwnerID != owner {
		return ledger.RecurringRule{}, ledger.ErrRuleNotFound
	}
	return copyRule(r), nil
}

func (s *state) GetRuleForUpdate(ctx context.Context, owner ledger.OwnerID, id ledger.RuleID) (ledger.RecurringRule, error) {
	return s.GetRule(ctx, owner, id)
}

func (s *state) DeleteRule(_ context.Context, owner ledger.OwnerID, id ledger.RuleID) error {
	r, ok := s.rules[id]
	if !ok || r.OwnerID != owner {
		return ledger.ErrRuleNotFound
	}
	delete(s.rules, id)
	return nil
}

func (s *state) ListRules(_ context.Context, owner ledger.OwnerID) ([]ledger.RecurringRule, error) {
	return s.collectRules(func(r ledger.RecurringRule) bool { return r.OwnerID == owner }), nil
}

func (s *state) ListDueRules(_ context.Context, owner ledger.OwnerID, asOf time.Time) ([]ledger.RecurringRule, error) {
	return s.collectRules(func(r ledger.RecurringRule) bool {
		return r.OwnerID == owner && r.Active && !r.NextDue.After(asOf)
	}), nil
}

func (s *state) OwnersWithDueRules(_ context.Context, asOf time.Time) ([]ledger.OwnerID, error) {
	seen := make(map[ledger.OwnerID]bool)
	var owners []ledger.OwnerID
	for _, r := range s.rules {
		if r.Active && !r.NextDue.After(asOf) && !seen[r.OwnerID] {
			seen[r.OwnerID] = true
			owners = append(owners, r.OwnerID)
		}
	}
	sort.Slice(owners, func(i, j int) bool { return owners[i] < owners[j] })
	return owners, nil
}

func (s *state) collectRules(keep func(ledger.RecurringRule) bool) []ledger.RecurringRule {
	var result []ledger.RecurringRule
	for _, r := range s.rules {
		if keep(r) {
			result = append(result, copyRule(r))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].NextDue.Equal(result[j].NextDue) {
			return result[i].NextDue.Before(result[j].NextDue)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// =============================================================================
// BUDGETS AND NOTIFICATIONS
// =============================================================================

func (s *state) SaveBudget(_ context.Context, b budget.Budget) error {
	k := budgetKey{owner: b.OwnerID, category: b.CategoryID, year: b.Year, month: b.Month}
	if cur, ok := s.budgets[k]; ok {
		b.ID = cur.ID
	}
	s.budgets[k] = b
	return nil
}

func (s *state) FindBudget(_ context.Context, owner ledger.OwnerID, category ledger.CategoryID, year int, month time.Month) (budget.Budget, error) {
	b, ok := s.budgets[budgetKey{owner: owner, category: category, year: year, month: month}]
	if !ok {
		return budget.Budget{}, budget.ErrBudgetNotFound
	}
	return b, nil
}

func (s *state) ListBudgets(_ context.Context, owner ledger.OwnerID, year int, month time.Month) ([]budget.Budget, error) {
	var result []budget.Budget
	for k, b := range s.budgets {
		if k.owner != owner {
			continue
		}
		if year != 0 && (k.year != year || (month != 0 && k.month != month)) {
			continue
		}
		result = append(result, b)
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		if a.Month != b.Month {
			return a.Month < b.Month
		}
		return a.CategoryID < b.CategoryID
	})
	return result, nil
}

func (s *state) SaveNotification(_ context.Context, n budget.Notification) error {
	s.notifications = append(s.notifications, n)
	return nil
}

func (s *state) ListNotifications(_ context.Context, owner ledger.OwnerID, unreadOnly bool) ([]budget.Notification, error) {
	var result []budget.Notification
	for i := len(s.notifications) - 1; i >= 0; i-- {
		n := s.notifications[i]
		if n.OwnerID != owner || (unreadOnly && n.Read) {
			continue
		}
		result = append(result, n)
	}
	return result, nil
}

// =============================================================================
// LOCKED ACCESSORS
// =============================================================================

func (m *Memory) CreateAccount(ctx context.Context, a ledger.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.CreateAccount(ctx, a)
}

func (m *Memory) UpdateAccount(ctx context.Context, a ledger.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.UpdateAccount(ctx, a)
}

func (m *Memory) GetAccount(ctx context.Context, owner ledger.OwnerID, id ledger.AccountID) (ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetAccount(ctx, owner, id)
}

func (m *Memory) ListAccounts(ctx context.Context, owner ledger.OwnerID, includeInactive bool) ([]ledger.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListAccounts(ctx, owner, includeInactive)
}

func (m *Memory) AdjustBalance(ctx context.Context, owner ledger.OwnerID, id ledger.AccountID, delta decimal.Decimal) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.AdjustBalance(ctx, owner, id, delta)
}

func (m *Memory) SumPostings(ctx context.Context, owner ledger.OwnerID, id ledger.AccountID) (ledger.PostingTotals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.SumPostings(ctx, owner, id)
}

func (m *Memory) SaveCategory(ctx context.Context, c ledger.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SaveCategory(ctx, c)
}

func (m *Memory) GetCategory(ctx context.Context, owner ledger.OwnerID, id ledger.CategoryID) (ledger.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetCategory(ctx, owner, id)
}

func (m *Memory) ListCategories(ctx context.Context, owner ledger.OwnerID) ([]ledger.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListCategories(ctx, owner)
}

func (m *Memory) InsertEntry(ctx context.Context, e ledger.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.InsertEntry(ctx, e)
}

func (m *Memory) UpdateEntry(ctx context.Context, e ledger.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.UpdateEntry(ctx, e)
}

func (m *Memory) GetEntry(ctx context.Context, owner ledger.OwnerID, id ledger.EntryID) (ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetEntry(ctx, owner, id)
}

func (m *Memory) GetEntryForUpdate(ctx context.Context, owner ledger.OwnerID, id ledger.EntryID) (ledger.Entry, error) {
	return m.GetEntry(ctx, owner, id)
}

func (m *Memory) DeleteEntry(ctx context.Context, owner ledger.OwnerID, id ledger.EntryID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.DeleteEntry(ctx, owner, id)
}

func (m *Memory) ListEntries(ctx context.Context, owner ledger.OwnerID, f ledger.EntryFilter) ([]ledger.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListEntries(ctx, owner, f)
}

func (m *Memory) EntryExists(ctx context.Context, sourceKey string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.EntryExists(ctx, sourceKey)
}

func (m *Memory) SumExpenses(ctx context.Context, owner ledger.OwnerID, category ledger.CategoryID, from, to time.Time) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.SumExpenses(ctx, owner, category, from, to)
}

func (m *Memory) InsertTransfer(ctx context.Context, t ledger.Transfer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.InsertTransfer(ctx, t)
}

func (m *Memory) ListTransfers(ctx context.Context, owner ledger.OwnerID, account ledger.AccountID) ([]ledger.Transfer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListTransfers(ctx, owner, account)
}

func (m *Memory) SaveRule(ctx context.Context, r ledger.RecurringRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SaveRule(ctx, r)
}

func (m *Memory) GetRule(ctx context.Context, owner ledger.OwnerID, id ledger.RuleID) (ledger.RecurringRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.GetRule(ctx, owner, id)
}

func (m *Memory) GetRuleForUpdate(ctx context.Context, owner ledger.OwnerID, id ledger.RuleID) (ledger.RecurringRule, error) {
	return m.GetRule(ctx, owner, id)
}

func (m *Memory) DeleteRule(ctx context.Context, owner ledger.OwnerID, id ledger.RuleID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.DeleteRule(ctx, owner, id)
}

func (m *Memory) ListRules(ctx context.Context, owner ledger.OwnerID) ([]ledger.RecurringRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListRules(ctx, owner)
}

func (m *Memory) ListDueRules(ctx context.Context, owner ledger.OwnerID, asOf time.Time) ([]ledger.RecurringRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListDueRules(ctx, owner, asOf)
}

func (m *Memory) OwnersWithDueRules(ctx context.Context, asOf time.Time) ([]ledger.OwnerID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.OwnersWithDueRules(ctx, asOf)
}

func (m *Memory) SaveBudget(ctx context.Context, b budget.Budget) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SaveBudget(ctx, b)
}

func (m *Memory) FindBudget(ctx context.Context, owner ledger.OwnerID, category ledger.CategoryID, year int, month time.Month) (budget.Budget, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.FindBudget(ctx, owner, category, year, month)
}

func (m *Memory) ListBudgets(ctx context.Context, owner ledger.OwnerID, year int, month time.Month) ([]budget.Budget, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListBudgets(ctx, owner, year, month)
}

func (m *Memory) SaveNotification(ctx context.Context, n budget.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.SaveNotification(ctx, n)
}

func (m *Memory) ListNotifications(ctx context.Context, owner ledger.OwnerID, unreadOnly bool) ([]budget.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.ListNotifications(ctx, owner, unreadOnly)
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// The store lock is held for the whole of fn, so transactions are serial.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.st.clone()
	defer func() {
		if p := recover(); p != nil {
			tm.st = snapshot
			panic(p)
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fn(tm.st); err != nil {
		tm.st = snapshot
		return err
	}
	return nil
}

var (
	_ ledger.TxStore = (*TxMemory)(nil)
	_ budget.Store   = (*Memory)(nil)
)
