package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON / writeError, so the API has one
// error shape:
//
//	{"error": "cooldown_active", "message": "server can be bumped again in 1 hour(s)", "hoursRemaining": 1}
//
// The frontend switches on "error"; "message" is safe to display as-is.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/sakif/dishub/internal/apperror"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error          string `json:"error"`                    // machine-readable kind, e.g. "not_found"
	Message        string `json:"message"`                  // human-readable description
	Field          string `json:"field,omitempty"`          // validation errors only
	HoursRemaining int    `json:"hoursRemaining,omitempty"` // cooldown errors only
}

// writeJSON sets headers, then status, then body. Headers written after the
// first body byte are silently dropped.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps a service error onto an HTTP status.
//
//	ErrValidation  → 400    ErrConflict    → 409
//	ErrForbidden   → 403    ErrCooldown    → 429 + Retry-After
//	ErrNotFound    → 404    ErrRateLimited → 429 + Retry-After
//	ErrUnavailable → 503    anything else  → 500
//
// Only AppError messages reach the client; anything untyped gets a generic
// message so SQL or file paths never leak.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
		return
	}

	status := http.StatusInternalServerError
	kind := "internal_error"

	switch {
	case errors.Is(err, apperror.ErrValidation):
		status, kind = http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrNotFound):
		status, kind = http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrForbidden):
		status, kind = http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrConflict):
		status, kind = http.StatusConflict, "conflict"
	case errors.Is(err, apperror.ErrCooldown):
		status, kind = http.StatusTooManyRequests, "cooldown_active"
	case errors.Is(err, apperror.ErrRateLimited):
		status, kind = http.StatusTooManyRequests, "rate_limited"
	case errors.Is(err, apperror.ErrUnavailable):
		status, kind = http.StatusServiceUnavailable, "store_unavailable"
	}

	if appErr.RetryAfter > 0 {
		w.Header().Set("Retry-After", retryAfterSeconds(appErr.RetryAfter))
	}

	writeJSON(w, status, ErrorResponse{
		Error:          kind,
		Message:        appErr.Message,
		Field:          appErr.Field,
		HoursRemaining: appErr.HoursRemaining,
	})
}

// retryAfterSeconds rounds up: telling a client to come back one second
// early would just earn it another 429.
func retryAfterSeconds(d time.Duration) string {
	return strconv.Itoa(int(math.Ceil(d.Seconds())))
}
