/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

WIRE FORMATS:
  Amounts:  responses are decimal strings, always two places ("1250.00");
            requests take a JSON number (12.5) or a string ("12.50")
  Dates:    calendar days as "YYYY-MM-DD"
  Instants: RFC 3339 in UTC

  Request amounts decode straight into decimal.Decimal, so a number is
  never round-tripped through a float. An unparseable amount is a
  malformed body.

VALIDATION:
  DTOs only parse. Domain rules live in the ledger services, which return
  ValidationErrors that the handlers map to 400.

SEE ALSO:
  - handlers.go: Uses these types
  - ledger/types.go: Domain model
*/
package api

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/finance-engine/budget"
	"github.com/warp/finance-engine/ledger"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
	Field string `json:"field,omitempty"`
}

// =============================================================================
// ACCOUNTS
// =============================================================================

type AccountDTO struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Type           string `json:"type"`
	BalanceCurrent string `json:"balance_current"`
	BalanceInitial string `json:"balance_initial"`
	Currency       string `json:"currency"`
	Color          string `json:"color,omitempty"`
	Icon           string `json:"icon,omitempty"`
	Active         bool   `json:"active"`
	CreatedAt      string `json:"created_at"`
}

type CreateAccountRequest struct {
	Name           string          `json:"name"`
	Type           string          `json:"type"`
	BalanceInitial decimal.Decimal `json:"balance_initial"`
	Currency       string          `json:"currency"`
	Color          string          `json:"color"`
	Icon           string          `json:"icon"`
}

// UpdateAccountRequest changes metadata only. Balances are never writable.
type UpdateAccountRequest struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Color string `json:"color"`
	Icon  string `json:"icon"`
}

type CurrencyTotalDTO struct {
	Currency string `json:"currency"`
	Total    string `json:"total"`
	Accounts int    `json:"accounts"`
}

// ReconcileDTO is the result of recomputing an account balance from its
// postings.
type ReconcileDTO struct {
	AccountID    string `json:"account_id"`
	Initial      string `json:"balance_initial"`
	Incomes      string `json:"incomes"`
	Expenses     string `json:"expenses"`
	TransfersIn  string `json:"transfers_in"`
	TransfersOut string `json:"transfers_out"`
	Cached       string `json:"balance_current"`
	Derived      string `json:"balance_derived"`
	Drift        string `json:"drift"`
	Consistent   bool   `json:"consistent"`
}

func toAccountDTO(a ledger.Account) AccountDTO {
	return AccountDTO{
		ID:             string(a.ID),
		Name:           a.Name,
		Type:           string(a.Type),
		BalanceCurrent: money(a.BalanceCurrent),
		BalanceInitial: money(a.BalanceInitial),
		Currency:       a.Currency,
		Color:          a.Color,
		Icon:           a.Icon,
		Active:         a.Active,
		CreatedAt:      instant(a.CreatedAt),
	}
}

func toAccountDTOs(accounts []ledger.Account) []AccountDTO {
	dtos := make([]AccountDTO, len(accounts))
	for i, a := range accounts {
		dtos[i] = toAccountDTO(a)
	}
	return dtos
}

func toReconcileDTO(r ledger.Report) ReconcileDTO {
	return ReconcileDTO{
		AccountID:    string(r.AccountID),
		Initial:      money(r.Initial),
		Incomes:      money(r.Totals.Incomes),
		Expenses:     money(r.Totals.Expenses),
		TransfersIn:  money(r.Totals.TransfersIn),
		TransfersOut: money(r.Totals.TransfersOut),
		Cached:       money(r.Cached),
		Derived:      money(r.Derived),
		Drift:        money(r.Drift),
		Consistent:   r.Consistent,
	}
}

// =============================================================================
// CATEGORIES
// =============================================================================

type CategoryDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Kind string `json:"kind"`
}

type CreateCategoryRequest struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

func toCategoryDTOs(cats []ledger.Category) []CategoryDTO {
	dtos := make([]CategoryDTO, len(cats))
	for i, c := range cats {
		dtos[i] = CategoryDTO{ID: string(c.ID), Name: c.Name, Kind: string(c.Kind)}
	}
	return dtos
}

// =============================================================================
// ENTRIES
// =============================================================================

type EntryDTO struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Date        string `json:"date"`
	CategoryID  string `json:"category_id"`
	Description string `json:"description,omitempty"`
	Amount      string `json:"amount"`
	AccountID   string `json:"account_id,omitempty"`
	RuleID      string `json:"recurring_rule_id,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// Request amounts accept a JSON number or a decimal string.
type CreateEntryRequest struct {
	Kind        string          `json:"kind"`
	Date        string          `json:"date"` // empty means today
	CategoryID  string          `json:"category_id"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	AccountID   string          `json:"account_id"`
}

// UpdateEntryRequest replaces the mutable fields of an entry. The kind
// cannot change.
type UpdateEntryRequest struct {
	Date        string          `json:"date"`
	CategoryID  string          `json:"category_id"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	AccountID   string          `json:"account_id"`
}

func toEntryDTO(e ledger.Entry) EntryDTO {
	return EntryDTO{
		ID:          string(e.ID),
		Kind:        string(e.Kind),
		Date:        ledger.FormatDay(e.Date),
		CategoryID:  string(e.CategoryID),
		Description: e.Description,
		Amount:      money(e.Amount),
		AccountID:   string(e.AccountID),
		RuleID:      string(e.RuleID),
		CreatedAt:   instant(e.CreatedAt),
		UpdatedAt:   instant(e.UpdatedAt),
	}
}

func toEntryDTOs(entries []ledger.Entry) []EntryDTO {
	dtos := make([]EntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toEntryDTO(e)
	}
	return dtos
}

// =============================================================================
// TRANSFERS
// =============================================================================

type TransferDTO struct {
	ID            string `json:"id"`
	SourceID      string `json:"source_id"`
	DestinationID string `json:"destination_id"`
	Amount        string `json:"amount"`
	Date          string `json:"date"`
	Description   string `json:"description,omitempty"`
	CreatedAt     string `json:"created_at"`
}

type CreateTransferRequest struct {
	SourceID      string          `json:"source_id"`
	DestinationID string          `json:"destination_id"`
	Amount        decimal.Decimal `json:"amount"`
	Date          string          `json:"date"`
	Description   string          `json:"description"`
}

func toTransferDTO(t ledger.Transfer) TransferDTO {
	return TransferDTO{
		ID:            string(t.ID),
		SourceID:      string(t.SourceID),
		DestinationID: string(t.DestinationID),
		Amount:        money(t.Amount),
		Date:          ledger.FormatDay(t.Date),
		Description:   t.Description,
		CreatedAt:     instant(t.CreatedAt),
	}
}

// =============================================================================
// RECURRING RULES
// =============================================================================

type RuleDTO struct {
	ID            string  `json:"id"`
	Description   string  `json:"description"`
	CategoryID    string  `json:"category_id"`
	Amount        string  `json:"amount"`
	AccountID     string  `json:"account_id,omitempty"`
	Cadence       string  `json:"cadence"`
	AnchorDay     int     `json:"anchor_day"`
	NextDue       string  `json:"next_due"`
	LastGenerated *string `json:"last_generated,omitempty"`
	Active        bool    `json:"active"`
	CreatedAt     string  `json:"created_at"`
}

type CreateRuleRequest struct {
	Description string          `json:"description"`
	CategoryID  string          `json:"category_id"`
	Amount      decimal.Decimal `json:"amount"`
	AccountID   string          `json:"account_id"`
	Cadence     string          `json:"cadence"`
	AnchorDay   int             `json:"anchor_day"`
	StartDate   string          `json:"start_date"` // empty means the first due day from today
}

type UpdateRuleRequest struct {
	Description string          `json:"description"`
	CategoryID  string          `json:"category_id"`
	Amount      decimal.Decimal `json:"amount"`
	AccountID   string          `json:"account_id"`
	Cadence     string          `json:"cadence"`
	AnchorDay   int             `json:"anchor_day"`
	Active      *bool           `json:"active"` // nil keeps the rule active
	NextDue     string          `json:"next_due"`
}

// RunRequest optionally pins the run date.
type RunRequest struct {
	AsOf string `json:"as_of"`
}

type RuleErrorDTO struct {
	RuleID string `json:"rule_id"`
	Error  string `json:"error"`
}

type RunResultDTO struct {
	Generated int            `json:"generated"`
	Failed    int            `json:"failed"`
	Skipped   int            `json:"skipped"`
	Entries   []EntryDTO     `json:"entries"`
	Errors    []RuleErrorDTO `json:"errors,omitempty"`
}

func toRuleDTO(r ledger.RecurringRule) RuleDTO {
	dto := RuleDTO{
		ID:          string(r.ID),
		Description: r.Description,
		CategoryID:  string(r.CategoryID),
		Amount:      money(r.Amount),
		AccountID:   string(r.AccountID),
		Cadence:     string(r.Cadence),
		AnchorDay:   r.AnchorDay,
		NextDue:     ledger.FormatDay(r.NextDue),
		Active:      r.Active,
		CreatedAt:   instant(r.CreatedAt),
	}
	if r.LastGenerated != nil {
		s := ledger.FormatDay(*r.LastGenerated)
		dto.LastGenerated = &s
	}
	return dto
}

func toRunResultDTO(res ledger.RunResult) RunResultDTO {
	dto := RunResultDTO{
		Generated: res.Generated,
		Failed:    res.Failed,
		Skipped:   res.Skipped,
		Entries:   toEntryDTOs(res.Entries),
	}
	for _, e := range res.Errors {
		dto.Errors = append(dto.Errors, RuleErrorDTO{RuleID: string(e.RuleID), Error: e.Err.Error()})
	}
	return dto
}

// =============================================================================
// BUDGETS
// =============================================================================

type BudgetDTO struct {
	ID         string `json:"id"`
	CategoryID string `json:"category_id"`
	Limit      string `json:"limit"`
	Year       int    `json:"year"`
	Month      int    `json:"month"`
}

type SetBudgetRequest struct {
	CategoryID string          `json:"category_id"`
	Limit      decimal.Decimal `json:"limit"`
	Year       int             `json:"year"`
	Month      int             `json:"month"`
}

type NotificationDTO struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Title     string `json:"title"`
	Message   string `json:"message"`
	Read      bool   `json:"is_read"`
	CreatedAt string `json:"created_at"`
}

func toBudgetDTO(b budget.Budget) BudgetDTO {
	return BudgetDTO{
		ID:         b.ID,
		CategoryID: string(b.CategoryID),
		Limit:      money(b.Limit),
		Year:       b.Year,
		Month:      int(b.Month),
	}
}

func toNotificationDTO(n budget.Notification) NotificationDTO {
	return NotificationDTO{
		ID:        n.ID,
		Type:      string(n.Type),
		Title:     n.Title,
		Message:   n.Message,
		Read:      n.Read,
		CreatedAt: instant(n.CreatedAt),
	}
}

// =============================================================================
// FORMAT HELPERS
// =============================================================================

func money(d decimal.Decimal) string { return d.StringFixed(2) }

func instant(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// parseOptionalDay returns the zero time for an empty string.
func parseOptionalDay(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	return ledger.ParseDay(s)
}


