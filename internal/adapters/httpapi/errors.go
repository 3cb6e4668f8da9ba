package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/campushub/activity-registration-api/internal/app/apperr"
)

type errorBody struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]any) {
	body := errorResponse{Error: errorBody{
		Code:    code,
		Message: message,
		Details: details,
	}}
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		body.Error.RequestID = rid
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeAppError maps an application error to its HTTP response. Anything
// that is not an *apperr.Error is an unexpected failure and surfaces as a
// plain 500 so internals never leak to callers.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	if ae, ok := apperr.As(err); ok {
		writeError(w, r, ae.Status, ae.Code, ae.Message, ae.Details)
		return
	}
	writeError(w, r, http.StatusInternalServerError, apperr.CodeInternal, "internal error", nil)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
