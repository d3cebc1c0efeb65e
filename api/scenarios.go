/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the ledger with realistic
	data for demos. Each scenario creates authors, books and sales through
	the ledger itself, so wallets and logins come out exactly as they would
	from the admin API.

AVAILABLE SCENARIOS:

	withdrawal-walkthrough: one author whose wallet just crossed the minimum
	below-minimum:          one author who cannot withdraw yet
	multi-author:           three authors, mixed percentages, one payout pending

HOW SCENARIOS WORK:
 1. Delete every author (cascades to books, sales, wallets, withdrawals, logins)
 2. Create authors with DemoPassword
 3. Create books and record sales
 4. Optionally request withdrawals

USAGE VIA API:

	POST /api/admin/scenarios/load
	{"scenario_id": "multi-author"}

NOTE:

	Loading wipes all authors. The routes are only mounted when
	ROYALTY_SCENARIOS is enabled. Admin logins survive because admins have
	no author profile.
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ritera/royalty-engine/royalty"
)

// DemoPassword is the login password of every scenario author.
const DemoPassword = "royalty-demo"

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type scenario struct {
	ScenarioDTO
	load func(ctx context.Context, l *royalty.Ledger) error
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "withdrawal-walkthrough",
			Name:        "Withdrawal Walkthrough",
			Description: "Asha earns 50% on two sales; her wallet holds 3500.00, above the 2500 minimum",
		},
		load: loadWithdrawalWalkthrough,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "below-minimum",
			Name:        "Below Minimum",
			Description: "Ravi has 1200.00 in his wallet and is refused a withdrawal",
		},
		load: loadBelowMinimum,
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "multi-author",
			Name:        "Multi-Author Catalogue",
			Description: "Three authors with different royalty rates; one payout already pending",
		},
		load: loadMultiAuthor,
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	type listed struct {
		ScenarioDTO
		Current bool `json:"current,omitempty"`
	}
	out := make([]listed, len(scenarios))
	for i, s := range scenarios {
		out[i] = listed{ScenarioDTO: s.ScenarioDTO, Current: s.ID == current}
	}
	writeJSON(w, http.StatusOK, out)
}

// LoadScenario wipes the authors and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeRequest[LoadScenarioRequest](w, r)
	if !ok {
		return
	}

	var chosen *scenario
	for i := range scenarios {
		if scenarios[i].ID == req.ScenarioID {
			chosen = &scenarios[i]
		}
	}
	if chosen == nil {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	h.currentScenario = ""
	if err := resetAuthors(ctx, h.Ledger); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset data", err)
		return
	}
	if err := chosen.load(ctx, h.Ledger); err != nil {
		h.Log.Error("scenario load failed", zap.String("scenario", chosen.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	h.currentScenario = chosen.ID

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": chosen.ID})
}

func resetAuthors(ctx context.Context, l *royalty.Ledger) error {
	authors, err := l.ListAuthors(ctx)
	if err != nil {
		return err
	}
	for _, a := range authors {
		if err := l.DeleteAuthor(ctx, a.ID); err != nil {
			return fmt.Errorf("delete author %s: %w", a.ID, err)
		}
	}
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

type demoSale struct {
	copies int
	amount int64
}

type demoBook struct {
	title string
	sales []demoSale
}

type demoAuthor struct {
	name       string
	email      string
	percentage int
	bank       royalty.BankDetails
	books      []demoBook
	withdraw   bool
}

func loadAuthor(ctx context.Context, l *royalty.Ledger, d demoAuthor) (royalty.Author, error) {
	pct := d.percentage
	author, err := l.CreateAuthor(ctx, royalty.AuthorInput{
		Name:              d.name,
		Email:             d.email,
		Password:          DemoPassword,
		RoyaltyPercentage: &pct,
		Bank:              d.bank,
	})
	if err != nil {
		return royalty.Author{}, err
	}

	for _, db := range d.books {
		book, err := l.CreateBook(ctx, royalty.BookInput{AuthorID: author.ID, Title: db.title})
		if err != nil {
			return royalty.Author{}, err
		}
		for _, s := range db.sales {
			_, err := l.RecordSale(ctx, royalty.SaleInput{
				BookID: book.ID,
				Copies: s.copies,
				Amount: decimal.NewFromInt(s.amount),
			})
			if err != nil {
				return royalty.Author{}, err
			}
		}
	}

	if d.withdraw {
		if _, err := l.RequestWithdrawal(ctx, royalty.WithdrawalInput{AuthorID: author.ID}); err != nil {
			return royalty.Author{}, err
		}
	}
	return author, nil
}

func loadWithdrawalWalkthrough(ctx context.Context, l *royalty.Ledger) error {
	// 50% of 1000 = 500, then 50% of 6000 = 3000 → balance 3500
	_, err := loadAuthor(ctx, l, demoAuthor{
		name:       "Asha Menon",
		email:      "asha@example.com",
		percentage: 50,
		bank: royalty.BankDetails{
			AccountName:   "Asha Menon",
			AccountNumber: "001122334455",
			BankName:      "State Bank of India",
			IFSC:          "SBIN0001234",
		},
		books: []demoBook{
			{title: "Monsoon Letters", sales: []demoSale{{copies: 4, amount: 1000}, {copies: 24, amount: 6000}}},
		},
	})
	return err
}

func loadBelowMinimum(ctx context.Context, l *royalty.Ledger) error {
	_, err := loadAuthor(ctx, l, demoAuthor{
		name:       "Ravi Iyer",
		email:      "ravi@example.com",
		percentage: 40,
		bank:       royalty.BankDetails{AccountName: "Ravi Iyer", UPI: "ravi@upi"},
		books: []demoBook{
			{title: "The Quiet Harbour", sales: []demoSale{{copies: 10, amount: 3000}}},
		},
	})
	return err
}

func loadMultiAuthor(ctx context.Context, l *royalty.Ledger) error {
	authors := []demoAuthor{
		{
			name:       "Asha Menon",
			email:      "asha@example.com",
			percentage: 50,
			books: []demoBook{
				{title: "Monsoon Letters", sales: []demoSale{{copies: 12, amount: 3000}, {copies: 8, amount: 2000}}},
				{title: "Salt and Saffron", sales: []demoSale{{copies: 5, amount: 1500}}},
			},
			withdraw: true,
		},
		{
			name:       "Ravi Iyer",
			email:      "ravi@example.com",
			percentage: 33,
			books: []demoBook{
				{title: "The Quiet Harbour", sales: []demoSale{{copies: 30, amount: 9000}}},
			},
		},
		{
			name:       "Meera Das",
			email:      "meera@example.com",
			percentage: 100,
			books: []demoBook{
				{title: "Paper Kites"},
			},
		},
	}
	for _, d := range authors {
		if _, err := loadAuthor(ctx, l, d); err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
	}
	return nil
}
