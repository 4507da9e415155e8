// Package api holds shared HTTP plumbing for the handlers, chiefly the
// uniform JSON error envelope.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/kindred-social/kindred/internal/middleware"
)

// Machine-readable error codes returned in the error envelope.
const (
	ErrCodeValidation          = "validation_error"
	ErrCodeAuthFailed          = "auth_failed"
	ErrCodeNotFound            = "not_found"
	ErrCodeRateLimited         = "rate_limited"
	ErrCodeInternal            = "internal_error"
	ErrCodeForbidden           = "forbidden"
	ErrCodeConflict            = "conflict"
	ErrCodeBadRequest          = "bad_request"
	ErrCodeInvalidVisibility   = "invalid_visibility"
	ErrCodeInvalidLimit        = "invalid_limit"
	ErrCodeUnsupportedType     = "unsupported_type"
	ErrCodeProviderUnavailable = "provider_unavailable"
	ErrCodeInvalidPermission   = "invalid_permission"
)

// ErrorResponse is the envelope every failed request returns:
// {"error": {"code": "...", "message": "..."}}.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes the JSON error envelope with the given status.
// Pass a context that went through middleware.SetErrorCode so the
// logging middleware can record the code on 4xx/5xx responses:
//
//	ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeNotFound)
//	api.WriteError(w, ctx, http.StatusNotFound, api.ErrCodeNotFound, "Profile not found")
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	middleware.UpdateResponseContext(w, ctx)

	data, err := json.Marshal(ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal error response", "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}

// StatusCodeMapping maps an error code to its usual HTTP status.
func StatusCodeMapping(code string) int {
	switch code {
	case ErrCodeValidation, ErrCodeBadRequest:
		return http.StatusBadRequest
	case ErrCodeAuthFailed:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeProviderUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
