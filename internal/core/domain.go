package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Monthly RecurrenceFrequency = "monthly"
	Weekly  RecurrenceFrequency = "weekly"
	Yearly  RecurrenceFrequency = "yearly"
)

const (
	KindExpense TransactionKind = "expense"
	KindIncome  TransactionKind = "income"
)

const (
	StatusPending   TransactionStatus = "pending"
	StatusConfirmed TransactionStatus = "confirmed"
	StatusCancelled TransactionStatus = "cancelled"
)

const (
	BillPending   BillStatus = "pending"
	BillPaid      BillStatus = "paid"
	BillOverdue   BillStatus = "overdue"
	BillCancelled BillStatus = "cancelled"
)

const (
	GoalActive   GoalStatus = "active"
	GoalAchieved GoalStatus = "achieved"
)

type (
	RecurrenceFrequency string
	TransactionKind     string
	TransactionStatus   string
	BillStatus          string
	GoalStatus          string

	Organization struct {
		ID   int64
		Name string
	}

	// CostCenter is the entity a transaction can be attributed to: a person,
	// or the organization as a whole when Shared is set.
	CostCenter struct {
		ID                     int64
		OrganizationID         int64
		Name                   string
		Color                  string
		Active                 bool
		Shared                 bool
		DefaultSplitPercentage float64 // 0-100, used when a shared transaction has no explicit splits
		UserID                 *string
	}

	// Transaction is an expense or income row. Kind is the tag; the two cases
	// are structurally identical.
	Transaction struct {
		ID             int64
		OrganizationID int64
		Kind           TransactionKind
		Description    string
		Amount         Money
		Date           time.Time
		Shared         bool
		CostCenterID   *int64 // nil means unassigned; shared rows are organization-owned
		Category       string
		PaymentMethod  string
		Status         TransactionStatus
		Splits         []Split
	}

	// Split allocates a percentage of a shared transaction to one cost center.
	Split struct {
		ID            int64
		TransactionID int64
		CostCenterID  int64
		Percentage    float64
		Amount        Money
	}

	Bill struct {
		ID             int64
		OrganizationID int64
		Description    string
		Amount         Money
		DueDate        time.Time
		Status         BillStatus
		Category       string
		CostCenterID   *int64
		PaymentMethod  string
		Recurring      bool
		Frequency      RecurrenceFrequency
		ExpenseID      *int64 // set while the bill is paid
	}

	BankAccount struct {
		ID             int64
		OrganizationID int64
		Name           string
		Institution    string
		Balance        Money
		LinkID         *int64 // set for provider-synced accounts
	}

	Goal struct {
		ID             int64
		OrganizationID int64
		Name           string
		Target         Money
		Current        Money
		Deadline       time.Time
		Status         GoalStatus
	}

	Contribution struct {
		ID     int64
		GoalID int64
		Amount Money
		Date   time.Time
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyName        = errors.New("empty name")
	ErrEmptyCategory    = errors.New("empty category")
	ErrZeroDate         = errors.New("date cannot be zero")
	ErrBadFrequency     = errors.New("invalid recurrence frequency")
	ErrBadKind          = errors.New("invalid transaction kind")
	ErrBadPercentage    = errors.New("percentage out of range")
	ErrNoPaymentMethod  = errors.New("payment method required")
	ErrNotFound         = errors.New("not found")

	// ErrInvalidState marks a state precondition failure, like paying a bill
	// that is not pending.
	ErrInvalidState = errors.New("invalid state")
)

func (f RecurrenceFrequency) Valid() bool {
	switch f {
	case Monthly, Weekly, Yearly:
		return true
	}
	return false
}

func (k TransactionKind) Valid() bool {
	return k == KindExpense || k == KindIncome
}

func (c CostCenter) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if c.DefaultSplitPercentage < 0 || c.DefaultSplitPercentage > 100 {
		return ErrBadPercentage
	}
	return nil
}

func (t Transaction) Validate() error {
	if !t.Kind.Valid() {
		return ErrBadKind
	}
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(t.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if t.Date.IsZero() {
		return ErrZeroDate
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	return nil
}

func (b Bill) Validate() error {
	if len(strings.TrimSpace(b.Description)) == 0 {
		return ErrEmptyDescription
	}
	if len(b.Description) > 200 {
		return errors.New("description too long (max 200 characters)")
	}
	if err := b.Amount.Validate(); err != nil {
		return err
	}
	if b.DueDate.IsZero() {
		return ErrZeroDate
	}
	if b.Recurring && !b.Frequency.Valid() {
		return ErrBadFrequency
	}
	return nil
}

func (g Goal) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return ErrEmptyName
	}
	return g.Target.Validate()
}

// EffectiveStatus derives the on-read status of a bill: a pending bill whose
// due date has passed reports as overdue. The stored status never changes.
func (b Bill) EffectiveStatus(today time.Time) BillStatus {
	if b.Status == BillPending && b.DueDate.Before(TruncateDay(today)) {
		return BillOverdue
	}
	return b.Status
}

// TruncateDay drops the time-of-day component.
func TruncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
