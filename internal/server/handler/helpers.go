package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"tokensniper/internal/domain"
)

// writeJSON encodes v as the response body with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a JSON error body, mapping known domain errors to
// their HTTP status.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrPositionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicatePosition):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrEngineStopped):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrInvariantViolation):
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeBadRequest is for malformed input that never reached the domain.
func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
}

// decodeJSON decodes the request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// logHandlerError records handler-level failures that were already mapped
// to a response, so operators see them without clients getting stack detail.
func logHandlerError(logger *slog.Logger, r *http.Request, err error) {
	logger.Warn("handler error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
}
