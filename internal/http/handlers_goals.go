package http

import (
	"net/http"
	"time"

	"divvy/internal/core"
)

func (s *Server) handleListGoals(w http.ResponseWriter, r *http.Request) {
	orgID, ok := pathID(w, r, "org")
	if !ok {
		return
	}
	goals, err := s.store.ListGoals(r.Context(), orgID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	out := make([]goalView, len(goals))
	for i, g := range goals {
		out[i] = goalToView(g)
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	orgID, ok := pathID(w, r, "org")
	if !ok {
		return
	}
	var payload struct {
		Name     string `json:"name"`
		Target   string `json:"target"`
		Deadline string `json:"deadline"`
	}
	if !decodeJSON(w, r, &payload) {
		return
	}
	cents, err := core.ParseDecimalToCents(payload.Target)
	if err != nil {
		respondError(w, r, err)
		return
	}
	goal := core.Goal{
		OrganizationID: orgID,
		Name:           payload.Name,
		Target:         core.Money{Cents: cents},
	}
	if payload.Deadline != "" {
		deadline, err := time.Parse(dateLayout, payload.Deadline)
		if err != nil {
			respondBadRequest(w, "invalid deadline, expected YYYY-MM-DD")
			return
		}
		goal.Deadline = deadline
	}

	created, err := s.goals.Create(r.Context(), goal)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, goalToView(created))
}

func (s *Server) handleDeleteGoal(w http.ResponseWriter, r *http.Request) {
	orgID, ok := pathID(w, r, "org")
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.store.DeleteGoal(r.Context(), orgID, id); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleContribute(w http.ResponseWriter, r *http.Request) {
	orgID, ok := pathID(w, r, "org")
	if !ok {
		return
	}
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var payload struct {
		Amount string `json:"amount"`
	}
	if !decodeJSON(w, r, &payload) {
		return
	}
	cents, err := core.ParseDecimalToCents(payload.Amount)
	if err != nil {
		respondError(w, r, err)
		return
	}
	goal, err := s.goals.Contribute(r.Context(), orgID, id, core.Money{Cents: cents})
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, goalToView(goal))
}

func (s *Server) handleListBadges(w http.ResponseWriter, r *http.Request) {
	orgID, ok := pathID(w, r, "org")
	if !ok {
		return
	}
	badges, err := s.store.ListEarnedBadges(r.Context(), orgID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	out := make([]badgeView, len(badges))
	for i, b := range badges {
		out[i] = badgeView{Code: b.Code, EarnedAt: b.EarnedAt.Format(time.RFC3339)}
	}
	respondJSON(w, http.StatusOK, out)
}
