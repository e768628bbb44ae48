/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the caller's books with
	realistic data for demos. Every scenario goes through the ledger
	services, so balances stay consistent with the postings it creates.

AVAILABLE SCENARIOS:

	household:       Checking, savings and cash with a month of activity
	recurring-bills: Rent and gym rules, first run already generated
	budgeting:       Food budget close to its limit

HOW SCENARIOS WORK:
 1. Create categories the scenario needs (reusing same-named ones)
 2. Open accounts
 3. Post entries and transfers
 4. Optionally create recurring rules and budgets

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "household"}

NOTE:

	Scenarios only add data for the authenticated owner. Nothing is reset.

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx, owner)
 3. Add case to LoadScenario
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/warp/finance-engine/budget"
	"github.com/warp/finance-engine/ledger"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

type LoadScenarioResponse struct {
	ScenarioID string       `json:"scenario_id"`
	Accounts   []AccountDTO `json:"accounts"`
}

var scenarios = []ScenarioDTO{
	{
		ID:          "household",
		Name:        "Household",
		Description: "Checking, savings and cash with salary, groceries, rent and a savings transfer",
	},
	{
		ID:          "recurring-bills",
		Name:        "Recurring Bills",
		Description: "Monthly rent and weekly gym rules with the first occurrences generated",
	},
	{
		ID:          "budgeting",
		Name:        "Budgeting",
		Description: "A food budget for the current month with spending past the warning threshold",
	},
}

// ListScenarios returns all available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario loads a demo scenario into the caller's books.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	o := owner(r)

	var err error
	switch req.ScenarioID {
	case "household":
		err = h.loadHouseholdScenario(ctx, o)
	case "recurring-bills":
		err = h.loadRecurringBillsScenario(ctx, o)
	case "budgeting":
		err = h.loadBudgetingScenario(ctx, o)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown scenario %q", req.ScenarioID), "unknown_scenario", "scenario_id")
		return
	}
	if err != nil {
		h.fail(w, r, fmt.Errorf("load scenario %s: %w", req.ScenarioID, err))
		return
	}

	accounts, err := h.Accounts.List(ctx, o, false)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.Logger.Info(ctx, "scenario loaded", "owner", string(o), "scenario", req.ScenarioID)
	writeJSON(w, http.StatusOK, LoadScenarioResponse{ScenarioID: req.ScenarioID, Accounts: toAccountDTOs(accounts)})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// loadHouseholdScenario:
//
//	Checking  5000.00  + salary 18000, - rent 7500, - groceries 1240.50, -> savings 3000
//	Savings  20000.00  + 3000 transfer
//	Cash       800.00  - coffee 65
func (h *Handler) loadHouseholdScenario(ctx context.Context, o ledger.OwnerID) error {
	cats, err := h.ensureCategories(ctx, o, map[string]ledger.Kind{
		"Salary":    ledger.KindIncome,
		"Rent":      ledger.KindExpense,
		"Groceries": ledger.KindExpense,
		"Coffee":    ledger.KindExpense,
	})
	if err != nil {
		return err
	}

	checking, err := h.openDemoAccount(ctx, o, "Checking", ledger.AccountBank, "5000")
	if err != nil {
		return err
	}
	savings, err := h.openDemoAccount(ctx, o, "Savings", ledger.AccountSavings, "20000")
	if err != nil {
		return err
	}
	cash, err := h.openDemoAccount(ctx, o, "Cash", ledger.AccountCash, "800")
	if err != nil {
		return err
	}

	start := ledger.StartOfMonth(h.now().Year(), h.now().Month())
	postings := []ledger.NewEntry{
		{Kind: ledger.KindIncome, Date: start, CategoryID: cats["Salary"], Description: "Salary", Amount: ledger.MustAmount("18000"), AccountID: checking.ID},
		{Kind: ledger.KindExpense, Date: start, CategoryID: cats["Rent"], Description: "Rent", Amount: ledger.MustAmount("7500"), AccountID: checking.ID},
		{Kind: ledger.KindExpense, Date: start.AddDate(0, 0, 2), CategoryID: cats["Groceries"], Description: "Supermarket", Amount: ledger.MustAmount("1240.50"), AccountID: checking.ID},
		{Kind: ledger.KindExpense, Date: start.AddDate(0, 0, 3), CategoryID: cats["Coffee"], Description: "Coffee beans", Amount: ledger.MustAmount("65"), AccountID: cash.ID},
	}
	for _, p := range postings {
		if _, err := h.Postings.Create(ctx, o, p); err != nil {
			return err
		}
	}

	_, err = h.Transfers.Create(ctx, o, ledger.NewTransfer{
		SourceID:      checking.ID,
		DestinationID: savings.ID,
		Amount:        ledger.MustAmount("3000"),
		Date:          start.AddDate(0, 0, 4),
		Description:   "Monthly savings",
	})
	return err
}

// loadRecurringBillsScenario creates rules due today and runs them once.
func (h *Handler) loadRecurringBillsScenario(ctx context.Context, o ledger.OwnerID) error {
	cats, err := h.ensureCategories(ctx, o, map[string]ledger.Kind{
		"Rent": ledger.KindExpense,
		"Gym":  ledger.KindExpense,
	})
	if err != nil {
		return err
	}
	checking, err := h.openDemoAccount(ctx, o, "Bills", ledger.AccountBank, "15000")
	if err != nil {
		return err
	}

	today := ledger.Day(h.now())
	weekday := int(today.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	rules := []ledger.NewRule{
		{Description: "Rent", CategoryID: cats["Rent"], Amount: ledger.MustAmount("7500"), AccountID: checking.ID, Cadence: ledger.CadenceMonthly, AnchorDay: today.Day(), StartDate: today},
		{Description: "Gym", CategoryID: cats["Gym"], Amount: ledger.MustAmount("450"), AccountID: checking.ID, Cadence: ledger.CadenceWeekly, AnchorDay: weekday, StartDate: today},
	}
	for _, r := range rules {
		if _, err := h.Recurring.CreateRule(ctx, o, r); err != nil {
			return err
		}
	}

	_, err = h.Recurring.RunDue(ctx, o, today)
	return err
}

// loadBudgetingScenario sets a 4000.00 food budget and spends 3400.00 of it.
func (h *Handler) loadBudgetingScenario(ctx context.Context, o ledger.OwnerID) error {
	cats, err := h.ensureCategories(ctx, o, map[string]ledger.Kind{"Food": ledger.KindExpense})
	if err != nil {
		return err
	}
	card, err := h.openDemoAccount(ctx, o, "Credit Card", ledger.AccountCreditCard, "0")
	if err != nil {
		return err
	}

	now := h.now()
	if _, err := h.Budgets.Set(ctx, o, budget.NewBudget{
		CategoryID: cats["Food"],
		Limit:      ledger.MustAmount("4000"),
		Year:       now.Year(),
		Month:      now.Month(),
	}); err != nil {
		return err
	}

	start := ledger.StartOfMonth(now.Year(), now.Month())
	for i, amount := range []string{"1200", "950.75", "1249.25"} {
		if _, err := h.Postings.Create(ctx, o, ledger.NewEntry{
			Kind:        ledger.KindExpense,
			Date:        start.AddDate(0, 0, i),
			CategoryID:  cats["Food"],
			Description: "Groceries",
			Amount:      ledger.MustAmount(amount),
			AccountID:   card.ID,
		}); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// ensureCategories returns category ids by name, creating the missing ones.
func (h *Handler) ensureCategories(ctx context.Context, o ledger.OwnerID, want map[string]ledger.Kind) (map[string]ledger.CategoryID, error) {
	existing, err := h.Accounts.ListCategories(ctx, o)
	if err != nil {
		return nil, err
	}

	ids := make(map[string]ledger.CategoryID, len(want))
	for _, c := range existing {
		if kind, ok := want[c.Name]; ok && kind == c.Kind {
			ids[c.Name] = c.ID
		}
	}
	for name, kind := range want {
		if _, ok := ids[name]; ok {
			continue
		}
		c, err := h.Accounts.CreateCategory(ctx, o, ledger.NewCategory{Name: name, Kind: kind})
		if err != nil {
			return nil, err
		}
		ids[name] = c.ID
	}
	return ids, nil
}

func (h *Handler) openDemoAccount(ctx context.Context, o ledger.OwnerID, name string, t ledger.AccountType, initial string) (ledger.Account, error) {
	return h.Accounts.Create(ctx, o, ledger.NewAccount{
		Name:           name,
		Type:           t,
		BalanceInitial: ledger.MustAmount(initial),
		Color:          colorFor(t),
	})
}

func colorFor(t ledger.AccountType) string {
	switch t {
	case ledger.AccountSavings:
		return "#16a34a"
	case ledger.AccountCash:
		return "#ca8a04"
	case ledger.AccountCreditCard:
		return "#dc2626"
	default:
		return "#2563eb"
	}
}
