// Package bump holds the cooldown rule for promoting a server to the top
// of the directory.
//
// A server may be bumped once per Cooldown. The rule is pure: it only
// compares instants. Persisting the new timestamp atomically is the store's
// job (see repository.ServerRepository.BumpIfEligible), and the directory
// service ties the two together.
//
// BOUNDARY:
// The window is a closed lower bound. With hoursSince = (now - last) in hours:
//
//	hoursSince <  2  → blocked, CooldownActive{hoursRemaining = ceil(2 - hoursSince)}
//	hoursSince >= 2  → allowed
//
// A server that was never bumped (last == nil) is always allowed.
package bump

import (
	"math"
	"time"

	"github.com/sakif/dishub/internal/apperror"
)

// Cooldown is the minimum interval between two successful bumps.
const Cooldown = 2 * time.Hour

// HoursSince returns the elapsed time since last, in fractional hours.
// A nil last counts as +Inf.
func HoursSince(last *time.Time, now time.Time) float64 {
	if last == nil {
		return math.Inf(1)
	}
	return now.Sub(*last).Hours()
}

// Check returns nil when a server last bumped at last may be bumped at now,
// or a CooldownActive error otherwise.
func Check(last *time.Time, now time.Time) error {
	if last == nil {
		return nil
	}
	elapsed := now.Sub(*last)
	if elapsed >= Cooldown {
		return nil
	}

	hours := int(math.Ceil(Cooldown.Hours() - HoursSince(last, now)))
	if hours < 1 {
		hours = 1 // sub-nanosecond float rounding
	}
	return apperror.CooldownActive(hours, Cooldown-elapsed)
}

// Cutoff is the latest lastBumpedAt value that still permits a bump at now.
// Stores use it for the conditional write:
//
//	UPDATE ... SET last_bumped_at = now
//	WHERE last_bumped_at IS NULL OR last_bumped_at <= cutoff
func Cutoff(now time.Time) time.Time {
	return now.Add(-Cooldown)
}

// NextEligible returns the instant the server becomes bumpable again, or nil
// if it never was bumped.
func NextEligible(last *time.Time) *time.Time {
	if last == nil {
		return nil
	}
	next := last.Add(Cooldown)
	return &next
}
