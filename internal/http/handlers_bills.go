package http

import (
	"net/http"
	"time"

	"divvy/internal/core"
)

type billPayload struct {
	Description  string `json:"description"`
	Amount       string `json:"amount"`
	DueDate      string `json:"due_date"`
	Category     string `json:"category"`
	CostCenterID *int64 `json:"cost_center_id"`
	Recurring    bool   `json:"recurring"`
	Frequency    string `json:"frequency"`
}

func (s *Server) handleListBills(w http.ResponseWriter, r *http.Request) {
	orgID, ok := pathID(w, r, "org")
	if !ok {
		return
	}
	bills, err := s.bills.List(r.Context(), orgID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	out := make([]billView, len(bills))
	for i, b := range bills {
		out[i] = billToView(b)
	}
	respondJSON(w, http.StatusOK, out)
}

// toBill parses the payload into a bill, writing the error response itself
// when parsing fails.
func (p billPayload) toBill(w http.ResponseWriter, r *http.Request, orgID int64) (core.Bill, bool) {
	cents, err := core.ParseDecimalToCents(p.Amount)
	if err != nil {
		respondError(w, r, err)
		return core.Bill{}, false
	}
	dueDate, err := time.Parse(dateLayout, p.DueDate)
	if err != nil {
		respondBadRequest(w, "invalid due_date, expected YYYY-MM-DD")
		return core.Bill{}, false
	}
	return core.Bill{
		OrganizationID: orgID,
		Description:    p.Description,
		Amount:         core.Money{Cents: cents},
		DueDate:        dueDate,
		Category:       p.Category,
		CostCenterID:   p.CostCenterID,
		Recurring:      p.Recurring,
		Frequency:      core.RecurrenceFrequency(p.Frequency),
	}, true
}

func (s *Server) handleCreateBill(w http.ResponseWriter, r *http.Request) {
	orgID, ok := pathID(w, r, "org")
	if !ok {
		return
	}
	var payload billPayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	bill, ok := payload.toBill(w, r, orgID)
	if !ok {
		return
	}
	created, err := s.bills.Create(r.Context(), bill)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, billToView(created))
}

func (s *Server) handleUpdateBill(w http.ResponseWriter, r *http.Request) {
	orgID, ok := pathID(w, r, "org")
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var payload billPayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	bill, ok := payload.toBill(w, r, orgID)
	if !ok {
		return
	}
	bill.ID = id
	updated, err := s.bills.Update(r.Context(), bill)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, billToView(updated))
}

func (s *Server) handlePayBill(w http.ResponseWriter, r *http.Request) {
	orgID, ok := pathID(w, r, "org")
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var payload struct {
		PaymentMethod string         `json:"payment_method"`
		Shares        []sharePayload `json:"shares"`
	}
	if !decodeJSON(w, r, &payload) {
		return
	}
	expense, err := s.bills.MarkPaid(r.Context(), orgID, id, payload.PaymentMethod, toShares(payload.Shares))
	if err != nil {
		respondError(w, r, err)
		return
	}
	s.invalidateSummaries(orgID)
	respondJSON(w, http.StatusOK, txView(expense))
}

func (s *Server) handleRevertBill(w http.ResponseWriter, r *http.Request) {
	orgID, ok := pathID(w, r, "org")
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.bills.Revert(r.Context(), orgID, id); err != nil {
		respondError(w, r, err)
		return
	}
	s.invalidateSummaries(orgID)
	respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleCancelBill(w http.ResponseWriter, r *http.Request) {
	orgID, ok := pathID(w, r, "org")
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.bills.Cancel(r.Context(), orgID, id); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}
