package banksync

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"divvy/internal/core"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(srv.URL, "secret-id", "secret-key")
	c.pollEvery = time.Millisecond
	return c
}

func TestCreateWidgetSession(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/widget_sessions" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "secret-id" || pass != "secret-key" {
			t.Error("missing or wrong basic auth")
		}
		if r.Header.Get("Idempotency-Key") == "" {
			t.Error("POST without idempotency key")
		}
		json.NewEncoder(w).Encode(WidgetSession{ID: "ws_1", ConnectURL: "https://connect.example/ws_1"})
	}))

	ws, err := c.CreateWidgetSession(context.Background())
	if err != nil {
		t.Fatalf("CreateWidgetSession: %v", err)
	}
	if ws.ID != "ws_1" || ws.ConnectURL == "" {
		t.Errorf("unexpected session: %+v", ws)
	}
}

func TestLinkStatusAndNotFound(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/links/lnk_1":
			json.NewEncoder(w).Encode(map[string]string{"id": "lnk_1", "status": "valid"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	status, err := c.LinkStatus(context.Background(), "lnk_1")
	if err != nil {
		t.Fatalf("LinkStatus: %v", err)
	}
	if status != ProviderStatusValid {
		t.Errorf("status = %q, want valid", status)
	}

	if _, err := c.LinkStatus(context.Background(), "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestWaitForSyncPollsUntilSettled(t *testing.T) {
	var calls int64
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(&calls, 1)
		status := ProviderStatusPending
		if n >= 3 {
			status = ProviderStatusValid
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "lnk_1", "status": status})
	}))

	status, err := c.WaitForSync(context.Background(), "lnk_1")
	if err != nil {
		t.Fatalf("WaitForSync: %v", err)
	}
	if status != ProviderStatusValid {
		t.Errorf("status = %q, want valid", status)
	}
	if atomic.LoadInt64(&calls) != 3 {
		t.Errorf("expected 3 polls, got %d", calls)
	}
}

func TestWaitForSyncGivesUp(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "lnk_1", "status": ProviderStatusPending})
	}))

	status, err := c.WaitForSync(context.Background(), "lnk_1")
	if err == nil {
		t.Fatal("expected error after poll budget")
	}
	if status != ProviderStatusPending {
		t.Errorf("last status = %q, want pending", status)
	}
}

func TestListAccountsAndTransactions(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/links/lnk_1/accounts":
			json.NewEncoder(w).Encode([]Account{
				{ID: "acc_1", Name: "Conta Corrente", Institution: "Banco Azul", Balance: "1234.56", Currency: "EUR"},
			})
		case "/accounts/acc_1/transactions":
			if r.URL.Query().Get("from") != "2025-01-01" {
				t.Errorf("from = %q", r.URL.Query().Get("from"))
			}
			json.NewEncoder(w).Encode([]Transaction{
				{ID: "tx_1", AccountID: "acc_1", Description: "SUPERMERCADO", Amount: "45.50", Type: "OUTFLOW", ValueDate: "2025-01-03"},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	accounts, err := c.ListAccounts(context.Background(), "lnk_1")
	if err != nil {
		t.Fatalf("ListAccounts: %v", err)
	}
	if len(accounts) != 1 || accounts[0].ID != "acc_1" {
		t.Fatalf("unexpected accounts: %+v", accounts)
	}

	since := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	txs, err := c.ListTransactions(context.Background(), "acc_1", since)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(txs) != 1 || txs[0].Amount != "45.50" {
		t.Fatalf("unexpected transactions: %+v", txs)
	}
}

func TestProviderErrorMessageSurfaces(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"message": "link requires re-authentication"})
	}))

	err := c.TriggerSync(context.Background(), "lnk_1")
	if err == nil {
		t.Fatal("expected error")
	}
	if got := err.Error(); !contains(got, "re-authentication") {
		t.Errorf("error should carry provider message, got %q", got)
	}
}

func TestToMoneyAndToKind(t *testing.T) {
	m, err := ToMoney("45.50")
	if err != nil {
		t.Fatalf("ToMoney: %v", err)
	}
	if m.Cents != 4550 {
		t.Errorf("ToMoney(45.50) = %d cents", m.Cents)
	}
	if _, err := ToMoney("not-a-number"); err == nil {
		t.Error("expected error for bad amount")
	}

	if k, _ := ToKind("OUTFLOW"); k != core.KindExpense {
		t.Errorf("OUTFLOW mapped to %s", k)
	}
	if k, _ := ToKind("INFLOW"); k != core.KindIncome {
		t.Errorf("INFLOW mapped to %s", k)
	}
	if _, err := ToKind("SIDEWAYS"); err == nil {
		t.Error("expected error for unknown flow type")
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return len(substr) == 0
}
