package approval

import (
	"errors"
	"fmt"

	"opsboard/internal/model"
)

var (
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrStale             = errors.New("approval request was changed concurrently")
	ErrForbidden         = errors.New("action not allowed for role")
	ErrNotFound          = errors.New("approval request not found")
	ErrStoreUnavailable  = errors.New("approval store unavailable")
)

// ValidationError describes a malformed submit payload.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", ErrValidation, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// TransitionError is returned when an action is not legal from the record's current state.
type TransitionError struct {
	Action Action
	From   model.Status
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot %s from %s: %s", ErrInvalidTransition, e.Action, e.From, e.Reason)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// StaleError means the compare-and-set condition failed. Current is the record as re-read after the failure.
type StaleError struct {
	Action  Action
	Current model.ApprovalRequest
}

func (e *StaleError) Error() string {
	return fmt.Sprintf("%s: %s lost to a concurrent change (now %s)", ErrStale, e.Action, e.Current.Status)
}

func (e *StaleError) Unwrap() error { return ErrStale }
