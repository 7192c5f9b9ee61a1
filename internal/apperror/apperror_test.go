// GO TESTING BASICS:
// Run with: go test ./internal/apperror/ -v
package apperror

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

// TABLE-DRIVEN TESTS:
// Each case checks that errors.Is() identifies the sentinel behind a
// constructor, including through an fmt.Errorf("%w") wrap as the service
// layer produces.
func TestErrorsIs(t *testing.T) {
	storeErr := errors.New("disk I/O error")

	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{
			name:      "NotFound wraps ErrNotFound",
			err:       NotFound("server", "abc123"),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "NotRegistered wraps ErrNotFound",
			err:       NotRegistered("1234"),
			target:    ErrNotFound,
			wantMatch: true,
		},
		{
			name:      "ValidationFailed wraps ErrValidation",
			err:       ValidationFailed("name", "name is required"),
			target:    ErrValidation,
			wantMatch: true,
		},
		{
			name:      "Conflict wraps ErrConflict",
			err:       Conflict("server", "abc123"),
			target:    ErrConflict,
			wantMatch: true,
		},
		{
			name:      "CooldownActive wraps ErrCooldown",
			err:       CooldownActive(1, time.Minute),
			target:    ErrCooldown,
			wantMatch: true,
		},
		{
			name:      "RateLimited wraps ErrRateLimited",
			err:       RateLimited(time.Minute),
			target:    ErrRateLimited,
			wantMatch: true,
		},
		{
			name:      "Unavailable wraps ErrUnavailable",
			err:       Unavailable(storeErr),
			target:    ErrUnavailable,
			wantMatch: true,
		},
		{
			name:      "Unavailable keeps its cause reachable",
			err:       Unavailable(storeErr),
			target:    storeErr,
			wantMatch: true,
		},
		{
			name:      "wrapped Forbidden still matches",
			err:       fmt.Errorf("bumping server: %w", Forbidden("not yours")),
			target:    ErrForbidden,
			wantMatch: true,
		},
		{
			name:      "NotFound does NOT match ErrValidation",
			err:       NotFound("server", "abc123"),
			target:    ErrValidation,
			wantMatch: false,
		},
		{
			name:      "CooldownActive does NOT match ErrRateLimited",
			err:       CooldownActive(2, time.Hour),
			target:    ErrRateLimited,
			wantMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Is(tt.err, tt.target)
			if got != tt.wantMatch {
				t.Errorf("errors.Is(%v, %v) = %v, want %v", tt.err, tt.target, got, tt.wantMatch)
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name        string
		err         *AppError
		wantMessage string
	}{
		{
			name:        "NotFound message includes resource and id",
			err:         NotFound("server", "abc123"),
			wantMessage: "server not found with id abc123",
		},
		{
			name:        "ValidationFailed uses custom message",
			err:         ValidationFailed("name", "name is required"),
			wantMessage: "name is required",
		},
		{
			name:        "CooldownActive includes the hours",
			err:         CooldownActive(2, 90*time.Minute),
			wantMessage: "server can be bumped again in 2 hour(s)",
		},
		{
			name:        "Unavailable hides the cause",
			err:         Unavailable(errors.New("SQLITE_BUSY: database is locked")),
			wantMessage: "the directory is temporarily unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMessage {
				t.Errorf("Error() = %q, want %q", got, tt.wantMessage)
			}
		})
	}
}

func TestErrorsAs(t *testing.T) {
	wrapped := fmt.Errorf("bumping server: %w", CooldownActive(1, 30*time.Minute))

	var appErr *AppError
	if !errors.As(wrapped, &appErr) {
		t.Fatal("errors.As() did not find the *AppError")
	}
	if appErr.HoursRemaining != 1 {
		t.Errorf("HoursRemaining = %d, want 1", appErr.HoursRemaining)
	}
	if appErr.RetryAfter != 30*time.Minute {
		t.Errorf("RetryAfter = %v, want 30m", appErr.RetryAfter)
	}
}

func TestUnavailableKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")

	if err := Unavailable(cause); !errors.Is(err, cause) {
		t.Errorf("errors.Is(%v, cause) = false, want true", err)
	}
	if err := NotFound("server", "x"); errors.Is(err, cause) {
		t.Errorf("errors.Is(%v, cause) = true for an error without a cause", err)
	}
}

func TestValidationFailedField(t *testing.T) {
	err := ValidationFailed("inviteUrl", "invite URL must look like https://discord.gg/<code>")

	if err.Field != "inviteUrl" {
		t.Errorf("Field = %q, want %q", err.Field, "inviteUrl")
	}
}
