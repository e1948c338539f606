package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrActivityNotFound is returned when an activity cannot be located.
	ErrActivityNotFound = errors.New("activity not found")
	// ErrActivityNotActive rejects a response submitted outside the active state.
	// Expected near activity close; not an alertable failure.
	ErrActivityNotActive = errors.New("activity is not accepting responses")
	// ErrActivityExpired rejects a response after the expiry timestamp passed,
	// even when the sweep has not yet persisted the expired state.
	ErrActivityExpired = errors.New("activity has expired")
	// ErrAlreadyResponded rejects a second submission from the same participant
	// when the activity type allows neither revoting nor multiple responses.
	ErrAlreadyResponded = errors.New("participant already responded")
	// ErrConfigLocked rejects configuration changes once an activity is active
	// or expired; changing the question mid-answer would drift from stored
	// responses.
	ErrConfigLocked = errors.New("configuration is only mutable in draft or published state")
	// ErrStateConflict is returned by Store.UpdateActivity when the stored
	// state no longer matches the caller's expectation.
	ErrStateConflict = errors.New("activity state changed concurrently")
)

// IllegalTransitionError is a business-rule rejection carrying the attempted
// pair. Callers must not retry blindly; the UI should refresh and re-evaluate.
type IllegalTransitionError struct {
	From State
	To   State
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal state transition %s -> %s", e.From, e.To)
}
