package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"divvy/internal/banksync"
	"divvy/internal/core"
	"divvy/internal/services"
	"divvy/internal/storage"
)

type fixture struct {
	srv   *Server
	store *storage.MemoryStore
	org   core.Organization
	anna  core.CostCenter
	marco core.CostCenter
	casa  core.CostCenter
}

type fakeProvider struct {
	deleted []string
}

func (p *fakeProvider) CreateWidgetSession(context.Context) (banksync.WidgetSession, error) {
	return banksync.WidgetSession{ID: "ws-1", ConnectURL: "https://connect.example/ws-1"}, nil
}

func (p *fakeProvider) DeleteLink(_ context.Context, providerLinkID string) error {
	p.deleted = append(p.deleted, providerLinkID)
	return nil
}

func newFixture(t *testing.T, withLinks bool) *fixture {
	t.Helper()
	store := storage.NewMemoryStore()
	ctx := context.Background()

	org, err := store.CreateOrganization(ctx, core.Organization{Name: "Casa"})
	if err != nil {
		t.Fatalf("create organization: %v", err)
	}
	mk := func(name string, shared bool, pct float64) core.CostCenter {
		c, err := store.CreateCostCenter(ctx, core.CostCenter{
			OrganizationID: org.ID, Name: name, Active: true,
			Shared: shared, DefaultSplitPercentage: pct,
		})
		if err != nil {
			t.Fatalf("create cost center %s: %v", name, err)
		}
		return c
	}
	f := &fixture{
		store: store,
		org:   org,
		anna:  mk("Anna", false, 60),
		marco: mk("Marco", false, 40),
		casa:  mk("Casa", true, 0),
	}

	ledger := services.NewLedgerService(store, nil)
	var links *services.LinkService
	if withLinks {
		links = services.NewLinkService(store, &fakeProvider{}, nil)
	}
	f.srv = NewServer(":0", Deps{
		Store:  store,
		Ledger: ledger,
		Bills:  services.NewBillService(store, ledger),
		Goals:  services.NewGoalService(store),
		Links:  links,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = f.srv.Shutdown(ctx)
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	f.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return v
}

func (f *fixture) orgPath(parts ...string) string {
	return fmt.Sprintf("/api/orgs/%d/%s", f.org.ID, strings.Join(parts, "/"))
}

func TestHealthEndpoints(t *testing.T) {
	f := newFixture(t, false)
	for _, path := range []string{"/healthz", "/readyz"} {
		rr := f.do(t, http.MethodGet, path, nil)
		if rr.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, rr.Code)
		}
	}
}

func TestCostCenterValidation(t *testing.T) {
	f := newFixture(t, false)

	rr := f.do(t, http.MethodPost, f.orgPath("cost-centers"), map[string]any{
		"name": "", "default_split_percentage": 50,
	})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("empty name: status = %d, want 422", rr.Code)
	}

	rr = f.do(t, http.MethodPost, f.orgPath("cost-centers"), map[string]any{
		"name": "Luca", "default_split_percentage": 150,
	})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad percentage: status = %d, want 422", rr.Code)
	}

	rr = f.do(t, http.MethodGet, f.orgPath("cost-centers"), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d", rr.Code)
	}
	if centers := decode[[]costCenterView](t, rr); len(centers) != 3 {
		t.Errorf("got %d cost centers, want the 3 seeded ones", len(centers))
	}
}

func TestCreateSharedTransaction(t *testing.T) {
	f := newFixture(t, false)

	rr := f.do(t, http.MethodPost, f.orgPath("transactions"), map[string]any{
		"kind":        "expense",
		"description": "Groceries",
		"amount":      "100.01",
		"date":        "2025-03-08",
		"category":    "Food",
		"shared":      true,
		"shares": []map[string]any{
			{"cost_center_id": f.anna.ID, "percentage": 60},
			{"cost_center_id": f.marco.ID, "percentage": 40},
		},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	tx := decode[transactionView](t, rr)
	if !tx.Shared || len(tx.Splits) != 2 {
		t.Fatalf("expected a shared transaction with 2 splits, got %+v", tx)
	}
	if sum := tx.Splits[0].Amount.Cents + tx.Splits[1].Amount.Cents; sum != 10001 {
		t.Errorf("split cents sum to %d, want 10001", sum)
	}
}

func TestCreateTransactionRejectsBadShares(t *testing.T) {
	f := newFixture(t, false)

	rr := f.do(t, http.MethodPost, f.orgPath("transactions"), map[string]any{
		"kind":        "expense",
		"description": "Groceries",
		"amount":      "50.00",
		"date":        "2025-03-08",
		"category":    "Food",
		"shared":      true,
		"shares": []map[string]any{
			{"cost_center_id": f.anna.ID, "percentage": 60},
			{"cost_center_id": f.marco.ID, "percentage": 30},
		},
	})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422 for shares summing to 90", rr.Code)
	}
}

func TestListTransactionsViewerScoping(t *testing.T) {
	f := newFixture(t, false)

	create := func(desc string, ccID *int64, shared bool, shares []map[string]any) {
		body := map[string]any{
			"kind": "expense", "description": desc, "amount": "10.00",
			"date": "2025-03-10", "category": "Misc", "shared": shared,
		}
		if ccID != nil {
			body["cost_center_id"] = *ccID
		}
		if shares != nil {
			body["shares"] = shares
		}
		if rr := f.do(t, http.MethodPost, f.orgPath("transactions"), body); rr.Code != http.StatusCreated {
			t.Fatalf("create %s: status = %d, body %s", desc, rr.Code, rr.Body.String())
		}
	}
	create("Anna only", &f.anna.ID, false, nil)
	create("Marco only", &f.marco.ID, false, nil)
	create("Shared dinner", nil, true, []map[string]any{
		{"cost_center_id": f.anna.ID, "percentage": 50},
		{"cost_center_id": f.marco.ID, "percentage": 50},
	})

	rr := f.do(t, http.MethodGet, f.orgPath("transactions")+"?year=2025&month=3", nil)
	if all := decode[[]transactionView](t, rr); len(all) != 3 {
		t.Fatalf("unscoped list has %d rows, want 3", len(all))
	}

	rr = f.do(t, http.MethodGet,
		fmt.Sprintf("%s?year=2025&month=3&viewer=%d", f.orgPath("transactions"), f.anna.ID), nil)
	visible := decode[[]transactionView](t, rr)
	if len(visible) != 2 {
		t.Fatalf("viewer-scoped list has %d rows, want 2", len(visible))
	}
	for _, tx := range visible {
		if tx.Description == "Marco only" {
			t.Error("Marco's personal expense leaked to Anna")
		}
	}
}

func TestConfirmImportedTransaction(t *testing.T) {
	f := newFixture(t, false)

	pending, err := f.store.CreateTransaction(context.Background(), core.Transaction{
		OrganizationID: f.org.ID,
		Kind:           core.KindExpense,
		Description:    "CARD PAYMENT 1234",
		Amount:         core.Money{Cents: 2500},
		Date:           time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC),
		Category:       "Imported",
		Status:         core.StatusPending,
	})
	if err != nil {
		t.Fatalf("seed pending transaction: %v", err)
	}

	path := fmt.Sprintf("%s/%d/confirm", f.orgPath("transactions"), pending.ID)
	rr := f.do(t, http.MethodPost, path, map[string]any{
		"cost_center_id": f.anna.ID,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("confirm status = %d, body %s", rr.Code, rr.Body.String())
	}
	if tx := decode[transactionView](t, rr); tx.Status != "confirmed" {
		t.Errorf("status = %s, want confirmed", tx.Status)
	}

	// Confirming twice conflicts.
	if rr := f.do(t, http.MethodPost, path, map[string]any{}); rr.Code != http.StatusConflict {
		t.Errorf("second confirm status = %d, want 409", rr.Code)
	}
}

func TestSummaryIsCachedAndInvalidated(t *testing.T) {
	f := newFixture(t, false)

	post := func(amount string) {
		body := map[string]any{
			"kind": "expense", "description": "Stuff", "amount": amount,
			"date": "2025-03-01", "category": "Misc", "cost_center_id": f.anna.ID,
		}
		if rr := f.do(t, http.MethodPost, f.orgPath("transactions"), body); rr.Code != http.StatusCreated {
			t.Fatalf("create: status = %d", rr.Code)
		}
	}
	post("10.00")

	rr := f.do(t, http.MethodGet, f.orgPath("summary")+"?year=2025&month=3", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("summary status = %d", rr.Code)
	}
	if s := decode[summaryView](t, rr); s.TotalExpenses.Cents != 1000 {
		t.Fatalf("TotalExpenses = %d, want 1000", s.TotalExpenses.Cents)
	}

	// A second write must show up despite the cache.
	post("5.00")
	rr = f.do(t, http.MethodGet, f.orgPath("summary")+"?year=2025&month=3", nil)
	if s := decode[summaryView](t, rr); s.TotalExpenses.Cents != 1500 {
		t.Errorf("TotalExpenses after write = %d, want 1500", s.TotalExpenses.Cents)
	}
}

func TestBillLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t, false)

	rr := f.do(t, http.MethodPost, f.orgPath("bills"), map[string]any{
		"description": "Electricity",
		"amount":      "80.00",
		"due_date":    "2025-04-01",
		"category":    "Utilities",
		"recurring":   true,
		"frequency":   "monthly",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create bill status = %d, body %s", rr.Code, rr.Body.String())
	}
	bill := decode[billView](t, rr)

	payPath := fmt.Sprintf("%s/%d/pay", f.orgPath("bills"), bill.ID)

	if rr := f.do(t, http.MethodPost, payPath, map[string]any{}); rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("pay without payment method: status = %d, want 422", rr.Code)
	}

	rr = f.do(t, http.MethodPost, payPath, map[string]any{"payment_method": "card"})
	if rr.Code != http.StatusOK {
		t.Fatalf("pay status = %d, body %s", rr.Code, rr.Body.String())
	}
	expense := decode[transactionView](t, rr)
	if expense.Amount.Cents != 8000 || expense.Status != "confirmed" {
		t.Errorf("spawned expense = %+v", expense)
	}

	if rr := f.do(t, http.MethodPost, payPath, map[string]any{"payment_method": "card"}); rr.Code != http.StatusConflict {
		t.Errorf("second pay status = %d, want 409", rr.Code)
	}

	// Paying a recurring bill schedules the next occurrence.
	rr = f.do(t, http.MethodGet, f.orgPath("bills"), nil)
	bills := decode[[]billView](t, rr)
	var pendingDue string
	for _, b := range bills {
		if b.Status == "pending" || b.Status == "overdue" {
			pendingDue = b.DueDate
		}
	}
	if pendingDue != "2025-05-01" {
		t.Errorf("successor due date = %q, want 2025-05-01", pendingDue)
	}
}

func TestGoalContributionsAndBadges(t *testing.T) {
	f := newFixture(t, false)

	rr := f.do(t, http.MethodPost, f.orgPath("goals"), map[string]any{
		"name": "Holiday", "target": "1500.00", "deadline": "2025-12-31",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create goal status = %d, body %s", rr.Code, rr.Body.String())
	}
	goal := decode[goalView](t, rr)

	rr = f.do(t, http.MethodPost,
		fmt.Sprintf("%s/%d/contributions", f.orgPath("goals"), goal.ID),
		map[string]any{"amount": "1500.00"})
	if rr.Code != http.StatusOK {
		t.Fatalf("contribute status = %d, body %s", rr.Code, rr.Body.String())
	}
	if g := decode[goalView](t, rr); g.Status != "achieved" {
		t.Errorf("goal status = %s, want achieved", g.Status)
	}

	rr = f.do(t, http.MethodGet, f.orgPath("badges"), nil)
	badges := decode[[]badgeView](t, rr)
	codes := make(map[string]bool, len(badges))
	for _, b := range badges {
		codes[b.Code] = true
	}
	for _, want := range []string{core.BadgeFirstGoal, core.BadgeGoalAchieved, core.BadgeSuperSaver} {
		if !codes[want] {
			t.Errorf("badge %s not earned, got %v", want, codes)
		}
	}
}

func TestTransferBetweenAccounts(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	checking, err := f.store.CreateAccount(ctx, core.BankAccount{
		OrganizationID: f.org.ID, Name: "Checking", Balance: core.Money{Cents: 50000},
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	savings, err := f.store.CreateAccount(ctx, core.BankAccount{
		OrganizationID: f.org.ID, Name: "Savings",
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}

	rr := f.do(t, http.MethodPost, f.orgPath("transfers"), map[string]any{
		"from_account_id": checking.ID,
		"to_account_id":   savings.ID,
		"amount":          "150.00",
		"description":     "Monthly saving",
		"date":            "2025-03-01",
	})
	if rr.Code != http.StatusNoContent {
		t.Fatalf("transfer status = %d, body %s", rr.Code, rr.Body.String())
	}

	rr = f.do(t, http.MethodGet, f.orgPath("accounts"), nil)
	for _, a := range decode[[]accountView](t, rr) {
		switch a.ID {
		case checking.ID:
			if a.Balance.Cents != 35000 {
				t.Errorf("checking balance = %d, want 35000", a.Balance.Cents)
			}
		case savings.ID:
			if a.Balance.Cents != 15000 {
				t.Errorf("savings balance = %d, want 15000", a.Balance.Cents)
			}
		}
	}

	rr = f.do(t, http.MethodPost, f.orgPath("transfers"), map[string]any{
		"from_account_id": checking.ID,
		"to_account_id":   checking.ID,
		"amount":          "10.00",
		"description":     "Self",
		"date":            "2025-03-01",
	})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("self transfer status = %d, want 400", rr.Code)
	}
}

func TestBankLinkEndpointsWithoutProvider(t *testing.T) {
	f := newFixture(t, false)
	rr := f.do(t, http.MethodPost, f.orgPath("bank-links", "widget-session"), nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("widget session without provider: status = %d, want 503", rr.Code)
	}
}

func TestBankLinkRegistration(t *testing.T) {
	f := newFixture(t, true)

	rr := f.do(t, http.MethodPost, f.orgPath("bank-links", "widget-session"), nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("widget session status = %d, body %s", rr.Code, rr.Body.String())
	}

	rr = f.do(t, http.MethodPost, f.orgPath("bank-links"), map[string]any{
		"provider_link_id": "req-abc",
		"institution":      "Test Bank",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body %s", rr.Code, rr.Body.String())
	}
	if link := decode[linkView](t, rr); link.Status != "pending_sync" {
		t.Errorf("link status = %s, want pending_sync", link.Status)
	}

	rr = f.do(t, http.MethodGet, f.orgPath("bank-links"), nil)
	if links := decode[[]linkView](t, rr); len(links) != 1 {
		t.Errorf("got %d links, want 1", len(links))
	}
}

func TestRateLimitOnWrites(t *testing.T) {
	f := newFixture(t, false)

	var last int
	for i := 0; i < 61; i++ {
		rr := f.do(t, http.MethodPost, f.orgPath("goals"), map[string]any{
			"name": fmt.Sprintf("Goal %d", i), "target": "10.00",
		})
		last = rr.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("61st write status = %d, want 429", last)
	}
}
