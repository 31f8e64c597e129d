package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/stageleft/convoke/internal/meeting"
	"github.com/stageleft/convoke/internal/plan"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// writeJSON encodes v with the given status. On encoding failure it falls
// back to a plain 500, matching the health package's behaviour.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}

// writeError maps domain errors onto HTTP statuses. Unknown errors become
// opaque 500s so internals do not leak to clients.
func writeError(w http.ResponseWriter, err error) {
	var parseErr *plan.ParseError

	switch {
	case errors.As(err, &parseErr):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error(), Code: "invalid_plan"})
	case errors.Is(err, meeting.ErrInvalidArgument):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error(), Code: "invalid_argument"})
	case errors.Is(err, meeting.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error(), Code: "not_found"})
	case errors.Is(err, meeting.ErrDuplicateChunk):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Code: "duplicate_chunk"})
	case errors.Is(err, meeting.ErrInvalidState):
		// Covers ErrInvalidTransition as well, which wraps ErrInvalidState.
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error(), Code: "invalid_state"})
	default:
		slog.Error("request failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error", Code: "internal"})
	}
}
