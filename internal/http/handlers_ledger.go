package http

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"divvy/internal/core"
	"divvy/internal/report"
)

func (s *Server) handleListOrganizations(w http.ResponseWriter, r *http.Request) {
	orgs, err := s.store.ListOrganizations(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	out := make([]organizationView, len(orgs))
	for i, o := range orgs {
		out[i] = orgView(o)
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateOrganization(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name string `json:"name"`
	}
	if !decodeJSON(w, r, &payload) {
		return
	}
	if payload.Name == "" {
		respondError(w, r, core.ErrEmptyName)
		return
	}
	org, err := s.store.CreateOrganization(r.Context(), core.Organization{Name: payload.Name})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, orgView(org))
}

type costCenterPayload struct {
	Name                   string  `json:"name"`
	Color                  string  `json:"color"`
	Active                 *bool   `json:"active"`
	Shared                 bool    `json:"shared"`
	DefaultSplitPercentage float64 `json:"default_split_percentage"`
	UserID                 *string `json:"user_id"`
}

func (s *Server) handleListCostCenters(w http.ResponseWriter, r *http.Request) {
	orgID, ok := pathID(w, r, "org")
	if !ok {
		return
	}
	centers, err := s.store.ListCostCenters(r.Context(), orgID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	out := make([]costCenterView, len(centers))
	for i, c := range centers {
		out[i] = centerView(c)
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateCostCenter(w http.ResponseWriter, r *http.Request) {
	orgID, ok := pathID(w, r, "org")
	if !ok {
		return
	}
	var payload costCenterPayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	center := core.CostCenter{
		OrganizationID:         orgID,
		Name:                   payload.Name,
		Color:                  payload.Color,
		Active:                 payload.Active == nil || *payload.Active,
		Shared:                 payload.Shared,
		DefaultSplitPercentage: payload.DefaultSplitPercentage,
		UserID:                 payload.UserID,
	}
	if err := center.Validate(); err != nil {
		respondError(w, r, err)
		return
	}
	created, err := s.store.CreateCostCenter(r.Context(), center)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, centerView(created))
}

func (s *Server) handleUpdateCostCenter(w http.ResponseWriter, r *http.Request) {
	orgID, ok := pathID(w, r, "org")
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var payload costCenterPayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	center := core.CostCenter{
		ID:                     id,
		OrganizationID:         orgID,
		Name:                   payload.Name,
		Color:                  payload.Color,
		Active:                 payload.Active == nil || *payload.Active,
		Shared:                 payload.Shared,
		DefaultSplitPercentage: payload.DefaultSplitPercentage,
		UserID:                 payload.UserID,
	}
	if err := center.Validate(); err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.store.UpdateCostCenter(r.Context(), center); err != nil {
		respondError(w, r, err)
		return
	}
	s.invalidateSummaries(orgID)
	respondJSON(w, http.StatusOK, centerView(center))
}

type sharePayload struct {
	CostCenterID int64   `json:"cost_center_id"`
	Percentage   float64 `json:"percentage"`
}

func toShares(payloads []sharePayload) []core.Share {
	shares := make([]core.Share, len(payloads))
	for i, p := range payloads {
		shares[i] = core.Share{CostCenterID: p.CostCenterID, Percentage: p.Percentage}
	}
	return shares
}

type transactionPayload struct {
	Kind          string         `json:"kind"`
	Description   string         `json:"description"`
	Amount        string         `json:"amount"`
	Date          string         `json:"date"`
	Shared        bool           `json:"shared"`
	CostCenterID  *int64         `json:"cost_center_id"`
	Category      string         `json:"category"`
	PaymentMethod string         `json:"payment_method"`
	Shares        []sharePayload `json:"shares"`
}

func (p transactionPayload) toTransaction(w http.ResponseWriter, r *http.Request, orgID int64) (core.Transaction, bool) {
	cents, err := core.ParseDecimalToCents(p.Amount)
	if err != nil {
		respondError(w, r, fmt.Errorf("amount %q: %w", p.Amount, err))
		return core.Transaction{}, false
	}
	date, err := time.Parse(dateLayout, p.Date)
	if err != nil {
		respondBadRequest(w, "invalid date, expected YYYY-MM-DD")
		return core.Transaction{}, false
	}
	return core.Transaction{
		OrganizationID: orgID,
		Kind:           core.TransactionKind(p.Kind),
		Description:    p.Description,
		Amount:         core.Money{Cents: cents},
		Date:           date,
		Shared:         p.Shared,
		CostCenterID:   p.CostCenterID,
		Category:       p.Category,
		PaymentMethod:  p.PaymentMethod,
	}, true
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	orgID, ok := pathID(w, r, "org")
	if !ok {
		return
	}
	year, month, ok := yearMonth(w, r)
	if !ok {
		return
	}
	txs, err := s.store.ListTransactions(r.Context(), orgID, year, month)
	if err != nil {
		respondError(w, r, err)
		return
	}
	viewer, hasViewer, ok := viewerParam(w, r)
	if !ok {
		return
	}
	if hasViewer {
		txs = core.FilterVisible(txs, viewer)
	}
	respondJSON(w, http.StatusOK, txViews(txs))
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	orgID, ok := pathID(w, r, "org")
	if !ok {
		return
	}
	var payload transactionPayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	tx, ok := payload.toTransaction(w, r, orgID)
	if !ok {
		return
	}
	created, err := s.ledger.Create(r.Context(), tx, toShares(payload.Shares))
	if err != nil {
		respondError(w, r, err)
		return
	}
	s.invalidateSummaries(orgID)
	respondJSON(w, http.StatusCreated, txView(created))
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	orgID, ok := pathID(w, r, "org")
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var payload transactionPayload
	if !decodeJSON(w, r, &payload) {
		return
	}
	tx, ok := payload.toTransaction(w, r, orgID)
	if !ok {
		return
	}
	tx.ID = id

	existing, err := s.store.GetTransaction(r.Context(), orgID, id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	tx.Status = existing.Status

	if err := s.ledger.Update(r.Context(), tx, toShares(payload.Shares)); err != nil {
		respondError(w, r, err)
		return
	}
	s.invalidateSummaries(orgID)
	respondJSON(w, http.StatusOK, txView(tx))
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	orgID, ok := pathID(w, r, "org")
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.ledger.Delete(r.Context(), orgID, id); err != nil {
		respondError(w, r, err)
		return
	}
	s.invalidateSummaries(orgID)
	respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleConfirmTransaction(w http.ResponseWriter, r *http.Request) {
	orgID, ok := pathID(w, r, "org")
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var payload struct {
		Shared       bool           `json:"shared"`
		CostCenterID *int64         `json:"cost_center_id"`
		Shares       []sharePayload `json:"shares"`
	}
	if !decodeJSON(w, r, &payload) {
		return
	}
	err := s.ledger.ConfirmImported(r.Context(), orgID, id, payload.CostCenterID, payload.Shared, toShares(payload.Shares))
	if err != nil {
		respondError(w, r, err)
		return
	}
	s.invalidateSummaries(orgID)

	tx, err := s.store.GetTransaction(r.Context(), orgID, id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, txView(tx))
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	orgID, ok := pathID(w, r, "org")
	if !ok {
		return
	}
	year, month, ok := yearMonth(w, r)
	if !ok {
		return
	}
	viewer, hasViewer, ok := viewerParam(w, r)
	if !ok {
		return
	}

	key := summaryKey(orgID, year, month, hasViewer, viewer)
	if cached, found := s.summaryCache.Get(key); found {
		respondJSON(w, http.StatusOK, summaryToView(cached))
		return
	}

	txs, err := s.store.ListTransactions(r.Context(), orgID, year, month)
	if err != nil {
		respondError(w, r, err)
		return
	}
	centers, err := s.store.ListCostCenters(r.Context(), orgID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if hasViewer {
		txs = core.FilterVisible(txs, viewer)
	}

	summary := report.Summarize(year, month, txs, centers)
	s.summaryCache.Set(key, summary)
	respondJSON(w, http.StatusOK, summaryToView(summary))
}

func summaryKey(orgID int64, year int, month time.Month, hasViewer bool, viewer int64) string {
	key := fmt.Sprintf("summary:%d:%04d-%02d", orgID, year, int(month))
	if hasViewer {
		key += fmt.Sprintf(":viewer-%d", viewer)
	}
	return key
}

// invalidateSummaries drops every cached month of one organization after a
// ledger write.
func (s *Server) invalidateSummaries(orgID int64) {
	s.summaryCache.DeletePrefix(fmt.Sprintf("summary:%d:", orgID))
}

// yearMonth reads the year and month query parameters, defaulting to the
// current month.
func yearMonth(w http.ResponseWriter, r *http.Request) (int, time.Month, bool) {
	now := time.Now()
	year, month := now.Year(), now.Month()

	if v := r.URL.Query().Get("year"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil || y < 1970 || y > 9999 {
			respondBadRequest(w, "invalid year")
			return 0, 0, false
		}
		year = y
	}
	if v := r.URL.Query().Get("month"); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil || m < 1 || m > 12 {
			respondBadRequest(w, "invalid month")
			return 0, 0, false
		}
		month = time.Month(m)
	}
	return year, month, true
}

// viewerParam reads the optional viewer query parameter, the cost center the
// response should be scoped to.
func viewerParam(w http.ResponseWriter, r *http.Request) (viewer int64, found bool, ok bool) {
	v := r.URL.Query().Get("viewer")
	if v == "" {
		return 0, false, true
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id < 1 {
		respondBadRequest(w, "invalid viewer")
		return 0, false, false
	}
	return id, true, true
}
