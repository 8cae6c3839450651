package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"divvy/internal/core"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// validationErrs are domain errors that map to 422: the request was
// well-formed but the data in it is not acceptable.
var validationErrs = []error{
	core.ErrInvalidAmount,
	core.ErrEmptyDescription,
	core.ErrEmptyName,
	core.ErrEmptyCategory,
	core.ErrZeroDate,
	core.ErrBadFrequency,
	core.ErrBadKind,
	core.ErrBadPercentage,
	core.ErrNoPaymentMethod,
	core.ErrNoShares,
	core.ErrBadSplitTotal,
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		respondJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
		return
	case errors.Is(err, core.ErrInvalidState):
		respondConflict(w, err)
		return
	default:
		for _, ve := range validationErrs {
			if errors.Is(err, ve) {
				respondJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error()})
				return
			}
		}
	}
	slog.ErrorContext(r.Context(), "request failed",
		"error", err, "method", r.Method, "path", r.URL.Path)
	respondJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
}

func respondBadRequest(w http.ResponseWriter, msg string) {
	respondJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

// respondConflict reports a state precondition failure, such as paying a bill
// that is not pending.
func respondConflict(w http.ResponseWriter, err error) {
	respondJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		respondBadRequest(w, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// pathID parses a numeric path segment captured by the route pattern.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id < 1 {
		respondBadRequest(w, "invalid "+name+" in path")
		return 0, false
	}
	return id, true
}
