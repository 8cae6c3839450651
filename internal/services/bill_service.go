package services

import (
	"context"
	"fmt"
	"time"

	"divvy/internal/core"
	"divvy/internal/storage"
)

// BillService drives the bill lifecycle. Stored status only ever holds
// pending, paid, or cancelled; overdue is derived on read from the due date.
type BillService struct {
	store  storage.Store
	ledger *LedgerService
	now    func() time.Time
}

func NewBillService(store storage.Store, ledger *LedgerService) *BillService {
	return &BillService{store: store, ledger: ledger, now: time.Now}
}

func (s *BillService) Create(ctx context.Context, b core.Bill) (core.Bill, error) {
	if err := b.Validate(); err != nil {
		return core.Bill{}, err
	}
	b.Status = core.BillPending
	b.ExpenseID = nil
	return s.store.CreateBill(ctx, b)
}

// Update edits a pending bill in place. Paid and cancelled bills are
// immutable; revert first to edit a paid one.
func (s *BillService) Update(ctx context.Context, b core.Bill) (core.Bill, error) {
	if err := b.Validate(); err != nil {
		return core.Bill{}, err
	}
	current, err := s.store.GetBill(ctx, b.OrganizationID, b.ID)
	if err != nil {
		return core.Bill{}, err
	}
	if current.Status != core.BillPending {
		return core.Bill{}, fmt.Errorf("%w: bill %d is %s, only pending bills can be edited", core.ErrInvalidState, b.ID, current.Status)
	}
	b.Status = current.Status
	b.ExpenseID = current.ExpenseID
	if err := s.store.UpdateBill(ctx, b); err != nil {
		return core.Bill{}, err
	}
	return b, nil
}

// List returns the organization's bills with derived statuses applied.
func (s *BillService) List(ctx context.Context, orgID int64) ([]core.Bill, error) {
	bills, err := s.store.ListBills(ctx, orgID)
	if err != nil {
		return nil, err
	}
	today := s.now()
	for i := range bills {
		bills[i].Status = bills[i].EffectiveStatus(today)
	}
	return bills, nil
}

// MarkPaid pays a pending (or overdue) bill: it spawns a confirmed expense,
// links it to the bill, and schedules the next occurrence when the bill
// recurs. Everything lands in one store transaction.
func (s *BillService) MarkPaid(ctx context.Context, orgID, billID int64, paymentMethod string, shares []core.Share) (core.Transaction, error) {
	if paymentMethod == "" {
		return core.Transaction{}, core.ErrNoPaymentMethod
	}

	bill, err := s.store.GetBill(ctx, orgID, billID)
	if err != nil {
		return core.Transaction{}, err
	}
	if bill.Status != core.BillPending {
		return core.Transaction{}, fmt.Errorf("%w: bill %d is %s, only pending bills can be paid", core.ErrInvalidState, billID, bill.Status)
	}

	expense := core.Transaction{
		OrganizationID: orgID,
		Kind:           core.KindExpense,
		Description:    bill.Description,
		Amount:         bill.Amount,
		Date:           core.TruncateDay(s.now()),
		Category:       bill.Category,
		PaymentMethod:  paymentMethod,
		Status:         core.StatusConfirmed,
		CostCenterID:   bill.CostCenterID,
	}
	if len(shares) > 0 {
		expense.Shared = true
		expense.CostCenterID = nil
		splits, err := s.ledger.buildSplits(ctx, expense, shares)
		if err != nil {
			return core.Transaction{}, err
		}
		expense.Splits = splits
	}

	var successor *core.Bill
	if bill.Recurring {
		nextDue, err := NextOccurrence(bill.Frequency, bill.DueDate)
		if err != nil {
			return core.Transaction{}, err
		}
		// The successor carries the method this occurrence was paid with, so
		// the next payment can default to it.
		next := bill
		next.ID = 0
		next.Status = core.BillPending
		next.PaymentMethod = paymentMethod
		next.ExpenseID = nil
		next.DueDate = nextDue
		successor = &next
	}

	bill.PaymentMethod = paymentMethod
	spawned, err := s.store.PayBill(ctx, bill, expense, successor)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("pay bill: %w", err)
	}

	s.ledger.publish(ctx, orgID, spawned.ID, "created")
	return spawned, nil
}

// Revert undoes a payment: the spawned expense disappears and the bill
// returns to pending. The successor of a recurring bill is left alone.
func (s *BillService) Revert(ctx context.Context, orgID, billID int64) error {
	bill, err := s.store.GetBill(ctx, orgID, billID)
	if err != nil {
		return err
	}
	if bill.Status != core.BillPaid {
		return fmt.Errorf("%w: bill %d is %s, only paid bills can be reverted", core.ErrInvalidState, billID, bill.Status)
	}
	expenseID := bill.ExpenseID
	if err := s.store.RevertBill(ctx, bill); err != nil {
		return fmt.Errorf("revert bill: %w", err)
	}
	if expenseID != nil {
		s.ledger.publish(ctx, orgID, *expenseID, "deleted")
	}
	return nil
}

// Cancel retires a pending bill without paying it.
func (s *BillService) Cancel(ctx context.Context, orgID, billID int64) error {
	bill, err := s.store.GetBill(ctx, orgID, billID)
	if err != nil {
		return err
	}
	if bill.Status != core.BillPending {
		return fmt.Errorf("%w: bill %d is %s, only pending bills can be cancelled", core.ErrInvalidState, billID, bill.Status)
	}
	bill.Status = core.BillCancelled
	return s.store.UpdateBill(ctx, bill)
}
