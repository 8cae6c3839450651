// Package banksync talks to the open-banking aggregation provider. The
// provider owns the institution credentials; this client only registers
// links, triggers syncs, and reads back accounts and transactions.
package banksync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"divvy/internal/core"
)

const (
	pollInterval = 5 * time.Second
	maxPolls     = 24
)

// Link statuses as reported by the provider.
const (
	ProviderStatusPending = "pending"
	ProviderStatusValid   = "valid"
	ProviderStatusInvalid = "invalid"
	ProviderStatusExpired = "token_expired"
)

type Client struct {
	baseURL    string
	secretID   string
	secretKey  string
	httpClient *http.Client

	// pollEvery is overridable so tests don't sleep.
	pollEvery time.Duration
}

func NewClient(baseURL, secretID, secretKey string) *Client {
	return &Client{
		baseURL:    baseURL,
		secretID:   secretID,
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		pollEvery:  pollInterval,
	}
}

// WidgetSession is a short-lived token the frontend uses to run the
// provider's connect widget.
type WidgetSession struct {
	ID         string `json:"id"`
	ConnectURL string `json:"connect_url"`
	ExpiresAt  string `json:"expires_at"`
}

// Account is a bank account as the provider reports it.
type Account struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Institution string `json:"institution"`
	Balance     string `json:"balance"`
	Currency    string `json:"currency"`
}

// Transaction is a provider-side transaction. Type is INFLOW or OUTFLOW;
// Amount is a positive decimal string.
type Transaction struct {
	ID          string `json:"id"`
	AccountID   string `json:"account_id"`
	Description string `json:"description"`
	Amount      string `json:"amount"`
	Type        string `json:"type"`
	Category    string `json:"category"`
	ValueDate   string `json:"value_date"`
}

type linkResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type apiError struct {
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(c.secretID, c.secretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method == http.MethodPost {
		// Idempotency key so a retried sync request is deduplicated
		// provider-side.
		req.Header.Set("Idempotency-Key", uuid.NewString())
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return core.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var ae apiError
		if err := json.NewDecoder(resp.Body).Decode(&ae); err == nil && ae.Message != "" {
			return fmt.Errorf("provider %s %s: %s (status %d)", method, path, ae.Message, resp.StatusCode)
		}
		return fmt.Errorf("provider %s %s: status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// CreateWidgetSession opens a connect-widget session for registering a new
// institution link.
func (c *Client) CreateWidgetSession(ctx context.Context) (WidgetSession, error) {
	var ws WidgetSession
	if err := c.do(ctx, http.MethodPost, "/widget_sessions", map[string]string{}, &ws); err != nil {
		return WidgetSession{}, err
	}
	return ws, nil
}

// TriggerSync asks the provider to refresh a link's data.
func (c *Client) TriggerSync(ctx context.Context, providerLinkID string) error {
	path := fmt.Sprintf("/links/%s/sync", url.PathEscape(providerLinkID))
	return c.do(ctx, http.MethodPost, path, map[string]string{}, nil)
}

// LinkStatus reads the provider-side status of a link.
func (c *Client) LinkStatus(ctx context.Context, providerLinkID string) (string, error) {
	var lr linkResponse
	path := fmt.Sprintf("/links/%s", url.PathEscape(providerLinkID))
	if err := c.do(ctx, http.MethodGet, path, nil, &lr); err != nil {
		return "", err
	}
	return lr.Status, nil
}

// DeleteLink revokes a link at the provider.
func (c *Client) DeleteLink(ctx context.Context, providerLinkID string) error {
	path := fmt.Sprintf("/links/%s", url.PathEscape(providerLinkID))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// ListAccounts returns the accounts behind a link.
func (c *Client) ListAccounts(ctx context.Context, providerLinkID string) ([]Account, error) {
	var accounts []Account
	path := fmt.Sprintf("/links/%s/accounts", url.PathEscape(providerLinkID))
	if err := c.do(ctx, http.MethodGet, path, nil, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// ListTransactions returns an account's transactions from a given date on.
func (c *Client) ListTransactions(ctx context.Context, providerAccountID string, since time.Time) ([]Transaction, error) {
	var txs []Transaction
	path := fmt.Sprintf("/accounts/%s/transactions?from=%s",
		url.PathEscape(providerAccountID), since.Format("2006-01-02"))
	if err := c.do(ctx, http.MethodGet, path, nil, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

// WaitForSync polls the link status until it leaves the pending state or the
// attempt budget runs out. Returns the last observed status.
func (c *Client) WaitForSync(ctx context.Context, providerLinkID string) (string, error) {
	status := ProviderStatusPending
	for attempt := 0; attempt < maxPolls; attempt++ {
		s, err := c.LinkStatus(ctx, providerLinkID)
		if err != nil {
			return status, err
		}
		status = s
		if status != ProviderStatusPending {
			return status, nil
		}
		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-time.After(c.pollEvery):
		}
	}
	return status, fmt.Errorf("link %s still pending after %d polls", providerLinkID, maxPolls)
}

// ToMoney converts a provider decimal amount to cents.
func ToMoney(amount string) (core.Money, error) {
	cents, err := core.ParseDecimalToCents(amount)
	if err != nil {
		return core.Money{}, fmt.Errorf("parse provider amount %q: %w", amount, err)
	}
	return core.Money{Cents: cents}, nil
}

// ToKind maps the provider's flow direction to a ledger kind.
func ToKind(flowType string) (core.TransactionKind, error) {
	switch flowType {
	case "OUTFLOW":
		return core.KindExpense, nil
	case "INFLOW":
		return core.KindIncome, nil
	}
	return "", fmt.Errorf("unknown flow type %q", flowType)
}
