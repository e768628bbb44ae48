/*
handlers.go - HTTP API handlers for the finance engine

PURPOSE:
  Exposes the ledger services via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the ledger and budget packages.

ENDPOINTS:
  Accounts:
    GET    /api/accounts                 List accounts (?include_inactive=true)
    POST   /api/accounts                 Open account
    GET    /api/accounts/total           Balance totals per currency
    GET    /api/accounts/{id}            Get account
    PUT    /api/accounts/{id}            Update metadata (never the balance)
    DELETE /api/accounts/{id}            Deactivate
    GET    /api/accounts/{id}/reconcile  Recompute balance from postings

  Categories:
    GET    /api/categories
    POST   /api/categories

  Entries:
    GET    /api/entries                  ?kind=&account_id=&category_id=&from=&to=&limit=&offset=
    POST   /api/entries
    GET    /api/entries/{id}
    PUT    /api/entries/{id}
    DELETE /api/entries/{id}

  Transfers:
    GET    /api/transfers                ?account_id=
    POST   /api/transfers

  Recurring:
    GET    /api/recurring
    POST   /api/recurring
    POST   /api/recurring/run            Run due rules for the caller
    GET    /api/recurring/{id}
    PUT    /api/recurring/{id}
    DELETE /api/recurring/{id}
    POST   /api/recurring/{id}/generate  Post one entry now

  Budgets:
    GET    /api/budgets                  ?year=&month=
    POST   /api/budgets
    GET    /api/notifications            ?unread=true

REQUEST FLOW:
  1. Owner comes from the auth middleware
  2. Parse request
  3. Call the ledger service (which validates)
  4. Serialize response
  5. Map errors

ERROR HANDLING:
  - 400: ValidationError, with its code
  - 401: Missing or invalid token (middleware)
  - 404: Resource not found or owned by someone else
  - 409: Duplicate idempotency key
  - 500: Everything else; details are logged, not returned

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/finance-engine/budget"
	"github.com/warp/finance-engine/ledger"
	"github.com/warp/finance-engine/logging"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Accounts   *ledger.AccountService
	Postings   *ledger.PostingService
	Transfers  *ledger.TransferService
	Recurring  *ledger.Generator
	Reconciler *ledger.Reconciler
	Budgets    *budget.Service
	Logger     logging.Logger

	Now func() time.Time
}

// Store is everything the handler needs from persistence.
type Store interface {
	ledger.TxStore
	budget.Store
}

// NewHandler wires the ledger services over one store.
func NewHandler(store Store, currency string, catchUp bool, log logging.Logger, hooks ...ledger.Hook) *Handler {
	if log == nil {
		log = logging.Nop()
	}
	postings := ledger.NewPostingService(store, log, hooks...)
	generator := ledger.NewGenerator(store, postings, log)
	generator.CatchUp = catchUp

	return &Handler{
		Accounts:   ledger.NewAccountService(store, currency),
		Postings:   postings,
		Transfers:  ledger.NewTransferService(store, log),
		Recurring:  generator,
		Reconciler: &ledger.Reconciler{Store: store},
		Budgets:    &budget.Service{Store: store, Categories: store},
		Logger:     log,
		Now:        time.Now,
	}
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func owner(r *http.Request) ledger.OwnerID {
	o, _ := OwnerFrom(r.Context())
	return o
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	includeInactive, _ := strconv.ParseBool(r.URL.Query().Get("include_inactive"))

	accounts, err := h.Accounts.List(r.Context(), owner(r), includeInactive)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTOs(accounts))
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if !decode(w, r, &req) {
		return
	}

	a, err := h.Accounts.Create(r.Context(), owner(r), ledger.NewAccount{
		Name:           req.Name,
		Type:           ledger.AccountType(req.Type),
		BalanceInitial: req.BalanceInitial,
		Currency:       req.Currency,
		Color:          req.Color,
		Icon:           req.Icon,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountDTO(a))
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	a, err := h.Accounts.Get(r.Context(), owner(r), ledger.AccountID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(a))
}

// UpdateAccount changes name, type, color and icon. An empty type keeps
// the current one.
func (h *Handler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	var req UpdateAccountRequest
	if !decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	id := ledger.AccountID(chi.URLParam(r, "id"))

	typ := ledger.AccountType(req.Type)
	if typ == "" {
		current, err := h.Accounts.Get(ctx, owner(r), id)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		typ = current.Type
	}

	a, err := h.Accounts.Update(ctx, owner(r), id, ledger.AccountUpdate{
		Name:  req.Name,
		Type:  typ,
		Color: req.Color,
		Icon:  req.Icon,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountDTO(a))
}

func (h *Handler) DeactivateAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.Accounts.Deactivate(r.Context(), owner(r), ledger.AccountID(chi.URLParam(r, "id"))); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AccountTotals(w http.ResponseWriter, r *http.Request) {
	totals, err := h.Accounts.Totals(r.Context(), owner(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]CurrencyTotalDTO, len(totals))
	for i, t := range totals {
		dtos[i] = CurrencyTotalDTO{Currency: t.Currency, Total: money(t.Total), Accounts: t.Accounts}
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) ReconcileAccount(w http.ResponseWriter, r *http.Request) {
	report, err := h.Reconciler.Check(r.Context(), owner(r), ledger.AccountID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !report.Consistent {
		h.Logger.Warn(r.Context(), "balance drift detected",
			"owner", string(owner(r)),
			"account", string(report.AccountID),
			"drift", money(report.Drift),
		)
	}
	writeJSON(w, http.StatusOK, toReconcileDTO(report))
}

// =============================================================================
// CATEGORY HANDLERS
// =============================================================================

func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.Accounts.ListCategories(r.Context(), owner(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCategoryDTOs(cats))
}

func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req CreateCategoryRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := h.Accounts.CreateCategory(r.Context(), owner(r), ledger.NewCategory{
		Name: req.Name,
		Kind: ledger.Kind(req.Kind),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, CategoryDTO{ID: string(c.ID), Name: c.Name, Kind: string(c.Kind)})
}

// =============================================================================
// ENTRY HANDLERS
// =============================================================================

func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ledger.EntryFilter{
		Kind:       ledger.Kind(q.Get("kind")),
		AccountID:  ledger.AccountID(q.Get("account_id")),
		CategoryID: ledger.CategoryID(q.Get("category_id")),
	}

	var err error
	if filter.From, err = parseOptionalDay(q.Get("from")); err != nil {
		h.fail(w, r, err)
		return
	}
	if filter.To, err = parseOptionalDay(q.Get("to")); err != nil {
		h.fail(w, r, err)
		return
	}
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "limit must be an integer", "invalid_limit", "limit")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, "offset must be an integer", "invalid_offset", "offset")
		return
	}

	entries, err := h.Postings.List(r.Context(), owner(r), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTOs(entries))
}

func (h *Handler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	var req CreateEntryRequest
	if !decode(w, r, &req) {
		return
	}
	date, err := parseOptionalDay(req.Date)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	e, err := h.Postings.Create(r.Context(), owner(r), ledger.NewEntry{
		Kind:        ledger.Kind(req.Kind),
		Date:        date,
		CategoryID:  ledger.CategoryID(req.CategoryID),
		Description: req.Description,
		Amount:      req.Amount,
		AccountID:   ledger.AccountID(req.AccountID),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTO(e))
}

func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	e, err := h.Postings.Get(r.Context(), owner(r), ledger.EntryID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(e))
}

func (h *Handler) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	var req UpdateEntryRequest
	if !decode(w, r, &req) {
		return
	}
	date, err := parseOptionalDay(req.Date)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	e, err := h.Postings.Update(r.Context(), owner(r), ledger.EntryID(chi.URLParam(r, "id")), ledger.EntryUpdate{
		Date:        date,
		CategoryID:  ledger.CategoryID(req.CategoryID),
		Description: req.Description,
		Amount:      req.Amount,
		AccountID:   ledger.AccountID(req.AccountID),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(e))
}

func (h *Handler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	if err := h.Postings.Delete(r.Context(), owner(r), ledger.EntryID(chi.URLParam(r, "id"))); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// TRANSFER HANDLERS
// =============================================================================

func (h *Handler) ListTransfers(w http.ResponseWriter, r *http.Request) {
	transfers, err := h.Transfers.List(r.Context(), owner(r), ledger.AccountID(r.URL.Query().Get("account_id")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]TransferDTO, len(transfers))
	for i, t := range transfers {
		dtos[i] = toTransferDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	var req CreateTransferRequest
	if !decode(w, r, &req) {
		return
	}
	date, err := parseOptionalDay(req.Date)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	t, err := h.Transfers.Create(r.Context(), owner(r), ledger.NewTransfer{
		SourceID:      ledger.AccountID(req.SourceID),
		DestinationID: ledger.AccountID(req.DestinationID),
		Amount:        req.Amount,
		Date:          date,
		Description:   req.Description,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransferDTO(t))
}

// =============================================================================
// RECURRING RULE HANDLERS
// =============================================================================

func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.Recurring.ListRules(r.Context(), owner(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]RuleDTO, len(rules))
	for i, rule := range rules {
		dtos[i] = toRuleDTO(rule)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req CreateRuleRequest
	if !decode(w, r, &req) {
		return
	}
	start, err := parseOptionalDay(req.StartDate)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	rule, err := h.Recurring.CreateRule(r.Context(), owner(r), ledger.NewRule{
		Description: req.Description,
		CategoryID:  ledger.CategoryID(req.CategoryID),
		Amount:      req.Amount,
		AccountID:   ledger.AccountID(req.AccountID),
		Cadence:     ledger.Cadence(req.Cadence),
		AnchorDay:   req.AnchorDay,
		StartDate:   start,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRuleDTO(rule))
}

func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.Recurring.GetRule(r.Context(), owner(r), ledger.RuleID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRuleDTO(rule))
}

func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	var req UpdateRuleRequest
	if !decode(w, r, &req) {
		return
	}
	next, err := parseOptionalDay(req.NextDue)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	rule, err := h.Recurring.UpdateRule(r.Context(), owner(r), ledger.RuleID(chi.URLParam(r, "id")), ledger.RuleUpdate{
		Description: req.Description,
		CategoryID:  ledger.CategoryID(req.CategoryID),
		Amount:      req.Amount,
		AccountID:   ledger.AccountID(req.AccountID),
		Cadence:     ledger.Cadence(req.Cadence),
		AnchorDay:   req.AnchorDay,
		Active:      active,
		NextDue:     next,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRuleDTO(rule))
}

func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := h.Recurring.DeleteRule(r.Context(), owner(r), ledger.RuleID(chi.URLParam(r, "id"))); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RunRules generates every due entry for the caller. The body is optional.
func (h *Handler) RunRules(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if r.ContentLength > 0 && !decode(w, r, &req) {
		return
	}
	asOf := h.now()
	if req.AsOf != "" {
		d, err := ledger.ParseDay(req.AsOf)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		asOf = d
	}

	result, err := h.Recurring.RunDue(r.Context(), owner(r), asOf)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRunResultDTO(result))
}

func (h *Handler) GenerateRule(w http.ResponseWriter, r *http.Request) {
	e, err := h.Recurring.Generate(r.Context(), owner(r), ledger.RuleID(chi.URLParam(r, "id")))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTO(e))
}

// =============================================================================
// BUDGET HANDLERS
// =============================================================================

func (h *Handler) ListBudgets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	year, err := intParam(q.Get("year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "year must be an integer", ledger.CodeInvalidDate, "year")
		return
	}
	month, err := intParam(q.Get("month"))
	if err != nil || month < 0 || month > 12 {
		writeError(w, http.StatusBadRequest, "month must be 1-12", ledger.CodeInvalidDate, "month")
		return
	}

	budgets, err := h.Budgets.List(r.Context(), owner(r), year, time.Month(month))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]BudgetDTO, len(budgets))
	for i, b := range budgets {
		dtos[i] = toBudgetDTO(b)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) SetBudget(w http.ResponseWriter, r *http.Request) {
	var req SetBudgetRequest
	if !decode(w, r, &req) {
		return
	}

	b, err := h.Budgets.Set(r.Context(), owner(r), budget.NewBudget{
		CategoryID: ledger.CategoryID(req.CategoryID),
		Limit:      req.Limit,
		Year:       req.Year,
		Month:      time.Month(req.Month),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBudgetDTO(b))
}

func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	unread, _ := strconv.ParseBool(r.URL.Query().Get("unread"))

	notes, err := h.Budgets.Notifications(r.Context(), owner(r), unread)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	dtos := make([]NotificationDTO, len(notes))
	for i, n := range notes {
		dtos[i] = toNotificationDTO(n)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message, code, field string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code, Field: field})
}

// fail maps a service error to its HTTP status. Internal errors are logged
// and hidden from the client.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var verr *ledger.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error(), verr.Code, verr.Field)
	case ledger.IsNotFound(err), errors.Is(err, budget.ErrBudgetNotFound):
		writeError(w, http.StatusNotFound, err.Error(), "not_found", "")
	case ledger.IsConflict(err):
		writeError(w, http.StatusConflict, err.Error(), "conflict", "")
	case ledger.IsClientError(err):
		writeError(w, http.StatusBadRequest, err.Error(), "invalid_request", "")
	case ledger.IsRetryable(err):
		writeError(w, http.StatusServiceUnavailable, "please retry", "retry", "")
	default:
		h.Logger.Error(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"owner", string(owner(r)),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal error", "internal", "")
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "invalid_body", "")
		return false
	}
	return true
}

// intParam parses an optional integer query parameter.
func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}
