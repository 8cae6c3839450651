// Package memory implements the spreadsheet export ports in memory, for
// tests and for running the worker without Google credentials.
package memory

import (
	"context"
	"fmt"
	"sync"

	"divvy/internal/core"
	"divvy/internal/export"
	"divvy/internal/report"
)

type Writer struct {
	mu        sync.Mutex
	rows      []core.Transaction
	summaries map[string]report.Summary

	// FailWith, when set, is returned by every write.
	FailWith error
}

var _ export.LedgerWriter = (*Writer)(nil)

func NewWriter() *Writer {
	return &Writer{summaries: make(map[string]report.Summary)}
}

func (w *Writer) AppendTransaction(_ context.Context, t core.Transaction) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.FailWith != nil {
		return "", w.FailWith
	}
	w.rows = append(w.rows, t)
	return fmt.Sprintf("row-%d", len(w.rows)), nil
}

func (w *Writer) WriteMonthlySummary(_ context.Context, s report.Summary) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.FailWith != nil {
		return w.FailWith
	}
	w.summaries[fmt.Sprintf("%04d-%02d", s.Year, s.Month)] = s
	return nil
}

// Rows returns a copy of everything appended so far.
func (w *Writer) Rows() []core.Transaction {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]core.Transaction, len(w.rows))
	copy(out, w.rows)
	return out
}

// Summary returns the stored block for a month, if any.
func (w *Writer) Summary(year, month int) (report.Summary, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	s, ok := w.summaries[fmt.Sprintf("%04d-%02d", year, month)]
	return s, ok
}
