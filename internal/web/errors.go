package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hourbook/hourbook/internal/core"
	"github.com/hourbook/hourbook/internal/logging"
)

type errorEnvelope struct {
	Error core.UserMessage `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError logs the technical error and sends the client-safe rendering.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		logging.FromContext(r.Context()).Error("request failed", "error", err)
	} else {
		logging.FromContext(r.Context()).Info("request rejected", "status", status, "error", err)
	}
	writeJSON(w, status, errorEnvelope{Error: core.MapError(err)})
}

// writeBadRequest reports a malformed request body or parameter without
// going through the error mapper.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorEnvelope{Error: core.UserMessage{
		Message: message,
		Action:  "Fix the request and retry.",
		Code:    "bad_request",
	}})
}

func statusFor(err error) int {
	var importErr *core.ImportError
	switch {
	case errors.As(err, &importErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrImportInFlight), errors.Is(err, core.ErrImportKeyConflict):
		return http.StatusConflict
	case errors.Is(err, core.ErrTooManyImports):
		return http.StatusTooManyRequests
	case errors.Is(err, core.ErrImportNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrUserNotFound), errors.Is(err, core.ErrUserInactive):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
