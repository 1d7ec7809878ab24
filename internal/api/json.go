package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/rulesync/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// writeError maps domain errors to HTTP statuses. Unknown errors are logged
// and reported as 500 without details.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, msg := http.StatusInternalServerError, "internal error"
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		status, msg = http.StatusNotFound, "not found"
	case errors.Is(err, apperr.ErrInvalidName):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, apperr.ErrNoRules):
		status, msg = http.StatusConflict, "no rules found"
	case errors.Is(err, apperr.ErrDestinationMissing):
		status, msg = http.StatusUnprocessableEntity, "no rules directory found for context"
	case errors.Is(err, apperr.ErrStoreUnavailable):
		status, msg = http.StatusServiceUnavailable, "rule store unavailable"
	}
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "api: "+op+" failed", slog.String("error", err.Error()))
	}
	writeJSON(w, status, errorBody(msg))
}
