package ledger

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// ACCOUNT SERVICE - Account lifecycle and categories
// =============================================================================

// DefaultCurrency is used when neither the caller nor the service sets one.
const DefaultCurrency = "MXN"

type NewAccount struct {
	Name           string
	Type           AccountType
	BalanceInitial decimal.Decimal
	Currency       string
	Color          string
	Icon           string
}

// AccountUpdate changes metadata only. Balances are never written here.
type AccountUpdate struct {
	Name  string
	Type  AccountType
	Color string
	Icon  string
}

type NewCategory struct {
	Name string
	Kind Kind
}

// CurrencyTotal is the sum of active balances in one currency.
type CurrencyTotal struct {
	Currency string
	Total    decimal.Decimal
	Accounts int
}

type AccountService struct {
	Store           Store
	DefaultCurrency string

	Now   func() time.Time
	NewID func() string
}

func NewAccountService(store Store, currency string) *AccountService {
	if currency == "" {
		currency = DefaultCurrency
	}
	return &AccountService{
		Store:           store,
		DefaultCurrency: currency,
		Now:             time.Now,
		NewID:           uuid.NewString,
	}
}

func (a *AccountService) now() time.Time {
	if a.Now == nil {
		return time.Now().UTC()
	}
	return a.Now().UTC()
}

func (a *AccountService) newID() string {
	if a.NewID == nil {
		return uuid.NewString()
	}
	return a.NewID()
}

func validateAccountMeta(name string, t AccountType) error {
	if strings.TrimSpace(name) == "" {
		return invalid(CodeInvalidAccount, "name", "name is required", ErrInvalidAccount)
	}
	if !t.Valid() {
		return invalid(CodeInvalidAccount, "type", "unknown account type", ErrInvalidAccount)
	}
	return nil
}

// Create opens an account with BalanceCurrent = BalanceInitial.
func (a *AccountService) Create(ctx context.Context, owner OwnerID, in NewAccount) (Account, error) {
	if in.Type == "" {
		in.Type = AccountBank
	}
	if err := validateAccountMeta(in.Name, in.Type); err != nil {
		return Account{}, err
	}
	if !in.BalanceInitial.Equal(in.BalanceInitial.Round(Scale)) {
		return Account{}, invalid(CodeInvalidAmount, "balance_initial", "amount has more than two decimal places", ErrInvalidAmount)
	}
	if in.BalanceInitial.Abs().GreaterThan(MaxAmount) {
		return Account{}, invalid(CodeAmountOutOfRange, "balance_initial", "amount exceeds "+MaxAmount.StringFixed(Scale), ErrAmountOutOfRange)
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = a.DefaultCurrency
	}

	acct := Account{
		ID:             AccountID(a.newID()),
		OwnerID:        owner,
		Name:           strings.TrimSpace(in.Name),
		Type:           in.Type,
		BalanceInitial: in.BalanceInitial,
		BalanceCurrent: in.BalanceInitial,
		Currency:       currency,
		Color:          in.Color,
		Icon:           in.Icon,
		Active:         true,
		CreatedAt:      a.now(),
	}
	if err := a.Store.CreateAccount(ctx, acct); err != nil {
		return Account{}, err
	}
	return acct, nil
}

func (a *AccountService) Update(ctx context.Context, owner OwnerID, id AccountID, in AccountUpdate) (Account, error) {
	if err := validateAccountMeta(in.Name, in.Type); err != nil {
		return Account{}, err
	}
	acct, err := a.Store.GetAccount(ctx, owner, id)
	if err != nil {
		return Account{}, err
	}
	acct.Name = strings.TrimSpace(in.Name)
	acct.Type = in.Type
	acct.Color = in.Color
	acct.Icon = in.Icon
	if err := a.Store.UpdateAccount(ctx, acct); err != nil {
		return Account{}, err
	}
	return acct, nil
}

// Deactivate soft-deletes the account. Its postings stay in place.
func (a *AccountService) Deactivate(ctx context.Context, owner OwnerID, id AccountID) error {
	acct, err := a.Store.GetAccount(ctx, owner, id)
	if err != nil {
		return err
	}
	if !acct.Active {
		return nil
	}
	acct.Active = false
	return a.Store.UpdateAccount(ctx, acct)
}

func (a *AccountService) Get(ctx context.Context, owner OwnerID, id AccountID) (Account, error) {
	return a.Store.GetAccount(ctx, owner, id)
}

func (a *AccountService) List(ctx context.Context, owner OwnerID, includeInactive bool) ([]Account, error) {
	return a.Store.ListAccounts(ctx, owner, includeInactive)
}

// Totals sums the current balance of active accounts per currency.
func (a *AccountService) Totals(ctx context.Context, owner OwnerID) ([]CurrencyTotal, error) {
	accounts, err := a.Store.ListAccounts(ctx, owner, false)
	if err != nil {
		return nil, err
	}

	byCurrency := make(map[string]*CurrencyTotal)
	for _, acct := range accounts {
		t, ok := byCurrency[acct.Currency]
		if !ok {
			t = &CurrencyTotal{Currency: acct.Currency, Total: decimal.Zero}
			byCurrency[acct.Currency] = t
		}
		t.Total = t.Total.Add(acct.BalanceCurrent)
		t.Accounts++
	}

	totals := make([]CurrencyTotal, 0, len(byCurrency))
	for _, t := range byCurrency {
		totals = append(totals, *t)
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i].Currency < totals[j].Currency })
	return totals, nil
}

// =============================================================================
// CATEGORIES
// =============================================================================

func (a *AccountService) CreateCategory(ctx context.Context, owner OwnerID, in NewCategory) (Category, error) {
	if strings.TrimSpace(in.Name) == "" {
		return Category{}, invalid(CodeInvalidCategory, "name", "name is required", ErrInvalidCategory)
	}
	if !in.Kind.Valid() {
		return Category{}, invalid(CodeInvalidKind, "kind", "kind must be expense or income", ErrInvalidKind)
	}
	c := Category{
		ID:      CategoryID(a.newID()),
		OwnerID: owner,
		Name:    strings.TrimSpace(in.Name),
		Kind:    in.Kind,
	}
	if err := a.Store.SaveCategory(ctx, c); err != nil {
		return Category{}, err
	}
	return c, nil
}

func (a *AccountService) ListCategories(ctx context.Context, owner OwnerID) ([]Category, error) {
	return a.Store.ListCategories(ctx, owner)
}
