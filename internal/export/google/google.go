// Package google implements the spreadsheet export ports on the Google
// Sheets API.
package google

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"divvy/internal/core"
	"divvy/internal/export"
	"divvy/internal/report"
)

// Client writes the ledger to one spreadsheet. Each year gets its own pair of
// tabs, named "<year> <base>" and "<year> Dashboard".
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	ledgerBase    string
}

var _ export.LedgerWriter = (*Client)(nil)

func New(ctx context.Context, spreadsheetID, sheetName, credentialsJSON string) (*Client, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet ID")
	}
	if strings.TrimSpace(credentialsJSON) == "" {
		return nil, errors.New("missing credentials JSON")
	}
	if strings.TrimSpace(sheetName) == "" {
		sheetName = "Ledger"
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON([]byte(credentialsJSON)),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		ledgerBase:    sheetName,
	}, nil
}

// AppendTransaction writes one row below the last used row of the year's
// ledger tab and returns its range reference.
func (c *Client) AppendTransaction(ctx context.Context, t core.Transaction) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if err := t.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}

	sheet := yearPrefixedName(c.ledgerBase, t.Date.Year())

	// Find the next empty row from the sheet's current height.
	rng := fmt.Sprintf("%s!A:A", sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("read dimensions of %s: %w", sheet, err)
	}
	nextRow := len(resp.Values) + 1

	dataRange := fmt.Sprintf("%s!A%d:F%d", sheet, nextRow, nextRow)
	vr := &gsheet.ValueRange{Values: [][]any{{
		int(t.Date.Month()),
		t.Date.Day(),
		t.Description,
		euros(t.Amount),
		string(t.Kind),
		t.Category,
	}}}
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, dataRange, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("write row to %s: %w", sheet, err)
	}
	return dataRange, nil
}

// WriteMonthlySummary rewrites one month's row of the year's dashboard tab.
// Row n+1 holds month n, leaving row 1 for the header.
func (c *Client) WriteMonthlySummary(ctx context.Context, s report.Summary) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}
	if s.Month < 1 || s.Month > 12 {
		return fmt.Errorf("invalid month: %d", s.Month)
	}

	sheet := yearPrefixedName("Dashboard", s.Year)
	row := s.Month + 1
	dataRange := fmt.Sprintf("%s!A%d:E%d", sheet, row, row)
	vr := &gsheet.ValueRange{Values: [][]any{{
		s.Month,
		euros(s.TotalExpenses),
		euros(s.TotalIncome),
		euros(s.Balance),
		s.Score,
	}}}
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, dataRange, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write summary to %s: %w", sheet, err)
	}
	return nil
}

func euros(m core.Money) float64 {
	return float64(m.Cents) / 100.0
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a
// 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
