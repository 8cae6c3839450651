package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"divvy/internal/core"
)

// MemoryStore keeps everything in maps behind one mutex. It exists for tests
// and exercises the same atomicity contract as the real stores: a failing
// multi-step write leaves nothing behind.
type MemoryStore struct {
	mu sync.Mutex

	nextID       int64
	orgs         map[int64]core.Organization
	costCenters  map[int64]core.CostCenter
	transactions map[int64]core.Transaction
	bills        map[int64]core.Bill
	accounts     map[int64]core.BankAccount
	links        map[int64]core.BankLink
	goals        map[int64]core.Goal
	contribs     map[int64]core.Contribution
	badges       map[int64]map[string]core.EarnedBadge

	providerAccounts map[string]int64 // provider account id -> account id
	providerTxs      map[string]int64 // provider tx id -> transaction id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orgs:             make(map[int64]core.Organization),
		costCenters:      make(map[int64]core.CostCenter),
		transactions:     make(map[int64]core.Transaction),
		bills:            make(map[int64]core.Bill),
		accounts:         make(map[int64]core.BankAccount),
		links:            make(map[int64]core.BankLink),
		goals:            make(map[int64]core.Goal),
		contribs:         make(map[int64]core.Contribution),
		badges:           make(map[int64]map[string]core.EarnedBadge),
		providerAccounts: make(map[string]int64),
		providerTxs:      make(map[string]int64),
	}
}

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

// --- organizations ---

func (s *MemoryStore) ListOrganizations(_ context.Context) ([]core.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Organization
	for _, o := range s.orgs {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) CreateOrganization(_ context.Context, o core.Organization) (core.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o.ID = s.id()
	s.orgs[o.ID] = o
	return o, nil
}

// --- cost centers ---

func (s *MemoryStore) ListCostCenters(_ context.Context, orgID int64) ([]core.CostCenter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.CostCenter
	for _, c := range s.costCenters {
		if c.OrganizationID == orgID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Shared != out[j].Shared {
			return out[i].Shared
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *MemoryStore) GetCostCenter(_ context.Context, orgID, id int64) (core.CostCenter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.costCenters[id]
	if !ok || c.OrganizationID != orgID {
		return core.CostCenter{}, core.ErrNotFound
	}
	return c, nil
}

func (s *MemoryStore) CreateCostCenter(_ context.Context, c core.CostCenter) (core.CostCenter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.id()
	s.costCenters[c.ID] = c
	return c, nil
}

func (s *MemoryStore) UpdateCostCenter(_ context.Context, c core.CostCenter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.costCenters[c.ID]
	if !ok || old.OrganizationID != c.OrganizationID {
		return core.ErrNotFound
	}
	s.costCenters[c.ID] = c
	return nil
}

// --- transactions ---

func (s *MemoryStore) ListTransactions(_ context.Context, orgID int64, year int, month time.Month) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transaction
	for _, t := range s.transactions {
		if t.OrganizationID == orgID && t.Date.Year() == year && t.Date.Month() == month {
			out = append(out, cloneTx(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) GetTransaction(_ context.Context, orgID, id int64) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transactions[id]
	if !ok || t.OrganizationID != orgID {
		return core.Transaction{}, core.ErrNotFound
	}
	return cloneTx(t), nil
}

func (s *MemoryStore) CreateTransaction(_ context.Context, t core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertTxLocked(t), nil
}

func (s *MemoryStore) insertTxLocked(t core.Transaction) core.Transaction {
	t.ID = s.id()
	for i := range t.Splits {
		t.Splits[i].ID = s.id()
		t.Splits[i].TransactionID = t.ID
	}
	s.transactions[t.ID] = cloneTx(t)
	return t
}

func (s *MemoryStore) UpdateTransaction(_ context.Context, t core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.transactions[t.ID]
	if !ok || old.OrganizationID != t.OrganizationID {
		return core.ErrNotFound
	}
	for i := range t.Splits {
		if t.Splits[i].ID == 0 {
			t.Splits[i].ID = s.id()
		}
		t.Splits[i].TransactionID = t.ID
	}
	s.transactions[t.ID] = cloneTx(t)
	return nil
}

func (s *MemoryStore) DeleteTransaction(_ context.Context, orgID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transactions[id]
	if !ok || t.OrganizationID != orgID {
		return core.ErrNotFound
	}
	delete(s.transactions, id)
	return nil
}

func cloneTx(t core.Transaction) core.Transaction {
	t.Splits = append([]core.Split(nil), t.Splits...)
	return t
}

// --- bills ---

func (s *MemoryStore) ListBills(_ context.Context, orgID int64) ([]core.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Bill
	for _, b := range s.bills {
		if b.OrganizationID == orgID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].DueDate.Before(out[j].DueDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) GetBill(_ context.Context, orgID, id int64) (core.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bills[id]
	if !ok || b.OrganizationID != orgID {
		return core.Bill{}, core.ErrNotFound
	}
	return b, nil
}

func (s *MemoryStore) CreateBill(_ context.Context, b core.Bill) (core.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b.ID = s.id()
	s.bills[b.ID] = b
	return b, nil
}

func (s *MemoryStore) UpdateBill(_ context.Context, b core.Bill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.bills[b.ID]
	if !ok || old.OrganizationID != b.OrganizationID {
		return core.ErrNotFound
	}
	s.bills[b.ID] = b
	return nil
}

func (s *MemoryStore) PayBill(_ context.Context, bill core.Bill, expense core.Transaction, successor *core.Bill) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.bills[bill.ID]
	if !ok || stored.OrganizationID != bill.OrganizationID || stored.Status != core.BillPending {
		return core.Transaction{}, core.ErrNotFound
	}

	expense = s.insertTxLocked(expense)

	stored.Status = core.BillPaid
	stored.PaymentMethod = bill.PaymentMethod
	stored.ExpenseID = &expense.ID
	s.bills[stored.ID] = stored

	if successor != nil {
		next := *successor
		next.ID = s.id()
		s.bills[next.ID] = next
	}
	return expense, nil
}

func (s *MemoryStore) RevertBill(_ context.Context, bill core.Bill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.bills[bill.ID]
	if !ok || stored.OrganizationID != bill.OrganizationID || stored.Status != core.BillPaid {
		return core.ErrNotFound
	}
	if bill.ExpenseID != nil {
		delete(s.transactions, *bill.ExpenseID)
	}
	stored.Status = core.BillPending
	stored.ExpenseID = nil
	s.bills[stored.ID] = stored
	return nil
}

// --- bank accounts ---

func (s *MemoryStore) ListAccounts(_ context.Context, orgID int64) ([]core.BankAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.BankAccount
	for _, a := range s.accounts {
		if a.OrganizationID == orgID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) GetAccount(_ context.Context, orgID, id int64) (core.BankAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok || a.OrganizationID != orgID {
		return core.BankAccount{}, core.ErrNotFound
	}
	return a, nil
}

func (s *MemoryStore) CreateAccount(_ context.Context, a core.BankAccount) (core.BankAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = s.id()
	s.accounts[a.ID] = a
	return a, nil
}

func (s *MemoryStore) TransferBetweenAccounts(_ context.Context, orgID, fromID, toID int64, amount core.Money, description string, date time.Time) error {
	if err := amount.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	from, ok := s.accounts[fromID]
	if !ok || from.OrganizationID != orgID {
		return core.ErrNotFound
	}
	to, ok := s.accounts[toID]
	if !ok || to.OrganizationID != orgID {
		return core.ErrNotFound
	}
	from.Balance.Cents -= amount.Cents
	to.Balance.Cents += amount.Cents
	s.accounts[fromID] = from
	s.accounts[toID] = to

	out := core.Transaction{
		OrganizationID: orgID, Kind: core.KindExpense, Description: description,
		Amount: amount, Date: date, Category: "Transfer", Status: core.StatusConfirmed,
	}
	in := out
	in.Kind = core.KindIncome
	s.insertTxLocked(out)
	s.insertTxLocked(in)
	return nil
}

// --- bank links ---

func (s *MemoryStore) ListBankLinks(_ context.Context, orgID int64) ([]core.BankLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.BankLink
	for _, l := range s.links {
		if l.OrganizationID == orgID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) GetBankLink(_ context.Context, orgID, id int64) (core.BankLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.links[id]
	if !ok || l.OrganizationID != orgID {
		return core.BankLink{}, core.ErrNotFound
	}
	return l, nil
}

func (s *MemoryStore) CreateBankLink(_ context.Context, l core.BankLink) (core.BankLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.ID = s.id()
	s.links[l.ID] = l
	return l, nil
}

func (s *MemoryStore) UpdateBankLinkStatus(_ context.Context, orgID, id int64, status core.LinkStatus, syncedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.links[id]
	if !ok || l.OrganizationID != orgID {
		return core.ErrNotFound
	}
	l.Status = status
	if syncedAt != nil {
		t := *syncedAt
		l.LastSyncedAt = &t
	}
	s.links[id] = l
	return nil
}

func (s *MemoryStore) DeleteBankLink(_ context.Context, orgID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.links[id]
	if !ok || l.OrganizationID != orgID {
		return core.ErrNotFound
	}
	delete(s.links, id)
	for aid, a := range s.accounts {
		if a.LinkID != nil && *a.LinkID == id {
			a.LinkID = nil
			s.accounts[aid] = a
		}
	}
	return nil
}

func (s *MemoryStore) ListPendingBankLinks(_ context.Context) ([]core.BankLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.BankLink
	for _, l := range s.links {
		if l.Status == core.LinkPendingSync {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) UpsertProviderAccount(_ context.Context, orgID, linkID int64, providerAccountID, name, institution string, balance core.Money) (core.BankAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.providerAccounts[providerAccountID]; ok {
		a := s.accounts[id]
		a.Name = name
		a.Balance = balance
		s.accounts[id] = a
		return a, nil
	}
	a := core.BankAccount{
		ID: s.id(), OrganizationID: orgID, Name: name, Institution: institution,
		Balance: balance, LinkID: &linkID,
	}
	s.accounts[a.ID] = a
	s.providerAccounts[providerAccountID] = a.ID
	return a, nil
}

func (s *MemoryStore) UpsertProviderTransaction(_ context.Context, orgID int64, pt ProviderTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.providerTxs[pt.ProviderID]; ok {
		t := s.transactions[id]
		t.Description = pt.Description
		t.Amount = pt.Amount
		s.transactions[id] = t
		return nil
	}
	t := s.insertTxLocked(core.Transaction{
		OrganizationID: orgID, Kind: pt.Kind, Description: pt.Description,
		Amount: pt.Amount, Date: pt.Date, Category: pt.Category, Status: core.StatusPending,
	})
	s.providerTxs[pt.ProviderID] = t.ID
	return nil
}

// --- goals, contributions, badges ---

func (s *MemoryStore) ListGoals(_ context.Context, orgID int64) ([]core.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Goal
	for _, g := range s.goals {
		if g.OrganizationID == orgID {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) GetGoal(_ context.Context, orgID, id int64) (core.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[id]
	if !ok || g.OrganizationID != orgID {
		return core.Goal{}, core.ErrNotFound
	}
	return g, nil
}

func (s *MemoryStore) CreateGoal(_ context.Context, g core.Goal) (core.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g.ID = s.id()
	s.goals[g.ID] = g
	return g, nil
}

func (s *MemoryStore) UpdateGoal(_ context.Context, g core.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.goals[g.ID]
	if !ok || old.OrganizationID != g.OrganizationID {
		return core.ErrNotFound
	}
	s.goals[g.ID] = g
	return nil
}

func (s *MemoryStore) DeleteGoal(_ context.Context, orgID, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[id]
	if !ok || g.OrganizationID != orgID {
		return core.ErrNotFound
	}
	delete(s.goals, id)
	for cid, c := range s.contribs {
		if c.GoalID == id {
			delete(s.contribs, cid)
		}
	}
	return nil
}

func (s *MemoryStore) AddContribution(_ context.Context, orgID int64, c core.Contribution) (core.Goal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.goals[c.GoalID]
	if !ok || g.OrganizationID != orgID {
		return core.Goal{}, core.ErrNotFound
	}
	c.ID = s.id()
	s.contribs[c.ID] = c

	g.Current.Cents += c.Amount.Cents
	if g.Current.Cents >= g.Target.Cents {
		g.Status = core.GoalAchieved
	}
	s.goals[g.ID] = g
	return g, nil
}

func (s *MemoryStore) ListContributions(_ context.Context, orgID int64) ([]core.Contribution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Contribution
	for _, c := range s.contribs {
		g, ok := s.goals[c.GoalID]
		if ok && g.OrganizationID == orgID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) ListEarnedBadges(_ context.Context, orgID int64) ([]core.EarnedBadge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.EarnedBadge
	for _, b := range s.badges[orgID] {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EarnedAt.Before(out[j].EarnedAt) })
	return out, nil
}

func (s *MemoryStore) SaveEarnedBadge(_ context.Context, b core.EarnedBadge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.badges[b.OrganizationID] == nil {
		s.badges[b.OrganizationID] = make(map[string]core.EarnedBadge)
	}
	if _, ok := s.badges[b.OrganizationID][b.Code]; !ok {
		s.badges[b.OrganizationID][b.Code] = b
	}
	return nil
}
