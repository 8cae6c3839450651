package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"divvy/internal/core"
	"divvy/internal/storage"
)

// LedgerPublisher announces ledger changes to the message broker. The AMQP
// client satisfies it; tests plug in a recorder.
type LedgerPublisher interface {
	PublishLedgerEvent(ctx context.Context, orgID, txID int64, action string) error
}

// LedgerService orchestrates transaction writes: validation, split
// computation, persistence, and the async ledger event. The event is
// published only after the local write succeeds, and a publish failure never
// fails the request.
type LedgerService struct {
	store  storage.Store
	events LedgerPublisher
}

func NewLedgerService(store storage.Store, events LedgerPublisher) *LedgerService {
	return &LedgerService{store: store, events: events}
}

// Create validates and persists a transaction. For shared transactions the
// shares must cover the full amount; the computed split amounts always sum
// to the total.
func (s *LedgerService) Create(ctx context.Context, t core.Transaction, shares []core.Share) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	if t.Status == "" {
		t.Status = core.StatusConfirmed
	}

	if t.Shared {
		splits, err := s.buildSplits(ctx, t, shares)
		if err != nil {
			return core.Transaction{}, err
		}
		t.Splits = splits
		t.CostCenterID = nil
	} else {
		t.Splits = nil
	}

	created, err := s.store.CreateTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}

	s.publish(ctx, created.OrganizationID, created.ID, "created")
	return created, nil
}

// Update rewrites a transaction and its splits.
func (s *LedgerService) Update(ctx context.Context, t core.Transaction, shares []core.Share) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.Shared {
		splits, err := s.buildSplits(ctx, t, shares)
		if err != nil {
			return err
		}
		t.Splits = splits
		t.CostCenterID = nil
	} else {
		t.Splits = nil
	}

	if err := s.store.UpdateTransaction(ctx, t); err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	s.publish(ctx, t.OrganizationID, t.ID, "updated")
	return nil
}

func (s *LedgerService) Delete(ctx context.Context, orgID, id int64) error {
	if err := s.store.DeleteTransaction(ctx, orgID, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	s.publish(ctx, orgID, id, "deleted")
	return nil
}

// ConfirmImported flips a provider-imported pending transaction to confirmed
// and assigns it, optionally splitting it across cost centers.
func (s *LedgerService) ConfirmImported(ctx context.Context, orgID, id int64, costCenterID *int64, shared bool, shares []core.Share) error {
	t, err := s.store.GetTransaction(ctx, orgID, id)
	if err != nil {
		return err
	}
	if t.Status != core.StatusPending {
		return fmt.Errorf("%w: transaction %d is not pending", core.ErrInvalidState, id)
	}
	t.Status = core.StatusConfirmed
	t.Shared = shared
	t.CostCenterID = costCenterID
	return s.Update(ctx, t, shares)
}

func (s *LedgerService) buildSplits(ctx context.Context, t core.Transaction, shares []core.Share) ([]core.Split, error) {
	amounts, err := core.ComputeSplits(t.Amount, shares)
	if err != nil {
		return nil, err
	}
	centers, err := s.store.ListCostCenters(ctx, t.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("list cost centers: %w", err)
	}
	known := make(map[int64]bool, len(centers))
	for _, c := range centers {
		known[c.ID] = true
	}

	splits := make([]core.Split, len(shares))
	for i, sh := range shares {
		if !known[sh.CostCenterID] {
			return nil, fmt.Errorf("unknown cost center %d: %w", sh.CostCenterID, core.ErrNotFound)
		}
		splits[i] = core.Split{
			CostCenterID: sh.CostCenterID,
			Percentage:   sh.Percentage,
			Amount:       amounts[i].Amount,
		}
	}
	return splits, nil
}

func (s *LedgerService) publish(ctx context.Context, orgID, txID int64, action string) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishLedgerEvent(ctx, orgID, txID, action); err != nil {
		slog.ErrorContext(ctx, "failed to publish ledger event",
			"error", err, "transaction_id", txID, "action", action)
	}
}

// Transfer moves money between two accounts of the same organization.
func (s *LedgerService) Transfer(ctx context.Context, orgID, fromID, toID int64, amount core.Money, description string, date time.Time) error {
	if fromID == toID {
		return fmt.Errorf("cannot transfer an account to itself")
	}
	if date.IsZero() {
		return core.ErrZeroDate
	}
	if err := s.store.TransferBetweenAccounts(ctx, orgID, fromID, toID, amount, description, date); err != nil {
		return fmt.Errorf("transfer: %w", err)
	}
	return nil
}
