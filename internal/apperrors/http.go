package apperrors

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// body is the JSON shape every error response takes. No field here may ever
// carry a kennitala, name, raw token, or salt — callers are responsible for
// keeping Message free of those (see internal/audit for the masking rules).
type body struct {
	Error     string `json:"error"`
	Kind      Kind   `json:"kind"`
	Field     string `json:"field,omitempty"`
	RetryHint string `json:"retry_hint,omitempty"`
}

// WriteHTTP translates err into the matching status code and JSON body. An
// err that isn't an *Error is logged and surfaced as KindInternal, never
// leaking its message to the caller.
func WriteHTTP(w http.ResponseWriter, log *slog.Logger, err error) {
	var appErr *Error
	if !errors.As(err, &appErr) {
		if log != nil {
			log.Error("unmapped error reached handler boundary", "error", err)
		}
		appErr = &Error{Kind: KindInternal, Message: "internal error"}
	}

	status := HTTPStatus(appErr.Kind)
	w.Header().Set("Content-Type", "application/json")
	if appErr.Kind == KindTooManyRequests {
		w.Header().Set("Retry-After", "1")
	}
	w.WriteHeader(status)

	resp := body{Error: appErr.Message, Kind: appErr.Kind, Field: appErr.Field}
	if appErr.Kind == KindTooManyRequests {
		resp.RetryHint = "retry after the window resets"
	}
	if encErr := json.NewEncoder(w).Encode(resp); encErr != nil && log != nil {
		log.Error("failed to encode error response", "error", encErr)
	}
}
