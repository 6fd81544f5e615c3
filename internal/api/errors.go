package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/neyasbook/neyasbook/internal/llm"
	"github.com/neyasbook/neyasbook/internal/manuscript"
)

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("writing response failed", "error", err)
	}
}

func writeSuccess(w http.ResponseWriter) {
	writeJSON(w, map[string]bool{"success": true})
}

// storeError maps repository errors to responses: missing documents are
// 404, unusable ids 400 and anything else 500.
func storeError(w http.ResponseWriter, what string, err error) {
	switch {
	case errors.Is(err, manuscript.ErrNotFound):
		httpError(w, http.StatusNotFound, "not_found_error", "%s not found", what)
	case errors.Is(err, manuscript.ErrInvalidID):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	default:
		slog.Error("storage failure", "what", what, "error", err)
		httpError(w, http.StatusInternalServerError, "api_error", "%s: %v", what, err)
	}
}

// upstreamError maps model call failures: a non-200 answer or exhausted
// rate limit retries are 502, anything else 500.
func upstreamError(w http.ResponseWriter, err error) {
	var se *llm.StatusError
	switch {
	case errors.As(err, &se), errors.Is(err, llm.ErrRateLimited):
		httpError(w, http.StatusBadGateway, "api_error", "upstream error: %v", err)
	case errors.Is(err, manuscript.ErrInvalidID):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	default:
		slog.Error("chat failure", "error", err)
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}
