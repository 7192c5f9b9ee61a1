// Package apperror defines the typed errors shared by the store adapters,
// the directory service, and its callers (HTTP handlers and the chat bot).
//
// Every AppError wraps one sentinel so callers can branch with errors.Is
// without string matching:
//
//	if errors.Is(err, apperror.ErrCooldown) { ... }
//
// The Message is always safe to show to an end user.
package apperror

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrValidation  = errors.New("validation error")
	ErrConflict    = errors.New("conflict")
	ErrForbidden   = errors.New("forbidden")
	ErrCooldown    = errors.New("cooldown active")
	ErrRateLimited = errors.New("rate limited")
	ErrUnavailable = errors.New("store unavailable")
)

type AppError struct {
	Err     error  // sentinel, one of the Err* values above
	Message string // Human-readable error message
	Field   string // Optional: field causing the error

	// HoursRemaining is set on cooldown errors: whole hours, rounded up,
	// until the next bump is allowed. Always >= 1 when set.
	HoursRemaining int
	// RetryAfter is set on cooldown and rate-limit errors.
	RetryAfter time.Duration

	cause error // underlying I/O error for ErrUnavailable, never shown to users
}

func (e *AppError) Error() string {
	return e.Message
}

// Unwrap exposes both the sentinel and, for unavailable errors, the
// underlying cause, so errors.Is matches either.
func (e *AppError) Unwrap() []error {
	if e.cause != nil {
		return []error{e.Err, e.cause}
	}
	return []error{e.Err}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

// NotRegistered is the NotFound variant used when a Discord guild has no
// directory listing.
func NotRegistered(guildID string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("guild %s is not registered in the directory", guildID),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// CooldownActive reports a bump attempted inside the cooldown window.
func CooldownActive(hoursRemaining int, retryAfter time.Duration) *AppError {
	return &AppError{
		Err:            ErrCooldown,
		Message:        fmt.Sprintf("server can be bumped again in %d hour(s)", hoursRemaining),
		HoursRemaining: hoursRemaining,
		RetryAfter:     retryAfter,
	}
}

// RateLimited reports a per-user command throttle.
func RateLimited(retryAfter time.Duration) *AppError {
	return &AppError{
		Err:        ErrRateLimited,
		Message:    fmt.Sprintf("too many requests, retry in %s", retryAfter.Round(time.Second)),
		RetryAfter: retryAfter,
	}
}

// Unavailable wraps a transient store failure. The cause stays reachable via
// errors.Is/As for logging, but the message is generic.
func Unavailable(cause error) *AppError {
	return &AppError{
		Err:     ErrUnavailable,
		Message: "the directory is temporarily unavailable",
		cause:   cause,
	}
}
