package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"divvy/internal/core"
	"divvy/internal/storage"
)

// BillsProcessorConfig holds the periodic processor's knobs.
type BillsProcessorConfig struct {
	// Interval is how often the processor scans bills.
	Interval time.Duration
}

func DefaultBillsProcessorConfig() BillsProcessorConfig {
	return BillsProcessorConfig{Interval: time.Hour}
}

// BillsProcessor periodically walks every organization's bills and logs what
// is overdue. It never creates rows: a recurring bill's successor exists only
// once the bill is marked paid, so an ignored bill stays a single overdue row
// instead of piling up unpaid occurrences.
type BillsProcessor struct {
	store  storage.Store
	config BillsProcessorConfig
	now    func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewBillsProcessor(store storage.Store, config BillsProcessorConfig) *BillsProcessor {
	if config.Interval <= 0 {
		config.Interval = DefaultBillsProcessorConfig().Interval
	}
	return &BillsProcessor{store: store, config: config, now: time.Now}
}

// Start begins the scan loop. Returns an error if already running.
func (p *BillsProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("bills processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "bills processor started", "interval", p.config.Interval)
	return nil
}

// Stop signals the loop and waits for it to drain.
func (p *BillsProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)
	select {
	case <-p.doneCh:
		slog.InfoContext(ctx, "bills processor stopped")
	case <-ctx.Done():
		slog.WarnContext(ctx, "bills processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	return nil
}

func (p *BillsProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	// First pass right away so a restart doesn't wait a full interval.
	if err := p.RunOnce(ctx); err != nil {
		slog.ErrorContext(ctx, "bills pass failed", "error", err)
	}

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			if err := p.RunOnce(ctx); err != nil {
				slog.ErrorContext(ctx, "bills pass failed", "error", err)
			}
		}
	}
}

// RunOnce performs a single scan over all organizations.
func (p *BillsProcessor) RunOnce(ctx context.Context) error {
	orgs, err := p.store.ListOrganizations(ctx)
	if err != nil {
		return fmt.Errorf("list organizations: %w", err)
	}
	for _, org := range orgs {
		if err := p.processOrg(ctx, org.ID); err != nil {
			slog.ErrorContext(ctx, "failed to process organization bills",
				"org_id", org.ID, "error", err)
		}
	}
	return nil
}

func (p *BillsProcessor) processOrg(ctx context.Context, orgID int64) error {
	bills, err := p.store.ListBills(ctx, orgID)
	if err != nil {
		return fmt.Errorf("list bills: %w", err)
	}
	today := core.TruncateDay(p.now())

	var overdue int
	for _, b := range bills {
		if b.EffectiveStatus(today) != core.BillOverdue {
			continue
		}
		overdue++
		slog.InfoContext(ctx, "bill overdue",
			"org_id", orgID, "bill_id", b.ID,
			"description", b.Description, "due_date", b.DueDate.Format("2006-01-02"))
	}

	if overdue > 0 {
		slog.InfoContext(ctx, "organization has overdue bills", "org_id", orgID, "count", overdue)
	}
	return nil
}
