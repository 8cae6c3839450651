package http

import (
	"net/http"
	"time"

	"divvy/internal/core"
)

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	orgID, ok := pathID(w, r, "org")
	if !ok {
		return
	}
	accounts, err := s.store.ListAccounts(r.Context(), orgID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	out := make([]accountView, len(accounts))
	for i, a := range accounts {
		out[i] = accountToView(a)
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	orgID, ok := pathID(w, r, "org")
	if !ok {
		return
	}
	var payload struct {
		Name        string `json:"name"`
		Institution string `json:"institution"`
		Balance     string `json:"balance"`
	}
	if !decodeJSON(w, r, &payload) {
		return
	}
	if payload.Name == "" {
		respondError(w, r, core.ErrEmptyName)
		return
	}
	account := core.BankAccount{
		OrganizationID: orgID,
		Name:           payload.Name,
		Institution:    payload.Institution,
	}
	if payload.Balance != "" {
		cents, err := core.ParseDecimalToCents(payload.Balance)
		if err != nil {
			respondError(w, r, err)
			return
		}
		account.Balance = core.Money{Cents: cents}
	}

	created, err := s.store.CreateAccount(r.Context(), account)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, accountToView(created))
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	orgID, ok := pathID(w, r, "org")
	if !ok {
		return
	}
	var payload struct {
		FromAccountID int64  `json:"from_account_id"`
		ToAccountID   int64  `json:"to_account_id"`
		Amount        string `json:"amount"`
		Description   string `json:"description"`
		Date          string `json:"date"`
	}
	if !decodeJSON(w, r, &payload) {
		return
	}
	if payload.FromAccountID == payload.ToAccountID {
		respondBadRequest(w, "cannot transfer an account to itself")
		return
	}
	cents, err := core.ParseDecimalToCents(payload.Amount)
	if err != nil {
		respondError(w, r, err)
		return
	}
	date, err := time.Parse(dateLayout, payload.Date)
	if err != nil {
		respondBadRequest(w, "invalid date, expected YYYY-MM-DD")
		return
	}

	err = s.ledger.Transfer(r.Context(), orgID, payload.FromAccountID, payload.ToAccountID,
		core.Money{Cents: cents}, payload.Description, date)
	if err != nil {
		respondError(w, r, err)
		return
	}
	s.invalidateSummaries(orgID)
	respondJSON(w, http.StatusNoContent, nil)
}

// linksConfigured guards the bank link endpoints when no provider is wired.
func (s *Server) linksConfigured(w http.ResponseWriter) bool {
	if s.links == nil {
		respondJSON(w, http.StatusServiceUnavailable, errorBody{Error: "bank sync is not configured"})
		return false
	}
	return true
}

func (s *Server) handleWidgetSession(w http.ResponseWriter, r *http.Request) {
	if !s.linksConfigured(w) {
		return
	}
	if _, ok := pathID(w, r, "org"); !ok {
		return
	}
	session, err := s.links.StartWidgetSession(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, session)
}

func (s *Server) handleListBankLinks(w http.ResponseWriter, r *http.Request) {
	orgID, ok := pathID(w, r, "org")
	if !ok {
		return
	}
	links, err := s.store.ListBankLinks(r.Context(), orgID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	out := make([]linkView, len(links))
	for i, l := range links {
		out[i] = linkToView(l)
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleRegisterBankLink(w http.ResponseWriter, r *http.Request) {
	if !s.linksConfigured(w) {
		return
	}
	orgID, ok := pathID(w, r, "org")
	if !ok {
		return
	}
	var payload struct {
		ProviderLinkID string `json:"provider_link_id"`
		Institution    string `json:"institution"`
	}
	if !decodeJSON(w, r, &payload) {
		return
	}
	if payload.ProviderLinkID == "" {
		respondBadRequest(w, "provider_link_id is required")
		return
	}
	link, err := s.links.Register(r.Context(), orgID, payload.ProviderLinkID, payload.Institution)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, linkToView(link))
}

func (s *Server) handleSyncBankLink(w http.ResponseWriter, r *http.Request) {
	if !s.linksConfigured(w) {
		return
	}
	orgID, ok := pathID(w, r, "org")
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.links.RequestSync(r.Context(), orgID, id); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusAccepted, nil)
}

func (s *Server) handleRemoveBankLink(w http.ResponseWriter, r *http.Request) {
	if !s.linksConfigured(w) {
		return
	}
	orgID, ok := pathID(w, r, "org")
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.links.Remove(r.Context(), orgID, id); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}
