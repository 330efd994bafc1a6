package contracts

import (
	"errors"
	"fmt"
)

// ErrNotFound is wrapped by NotFoundError; use errors.Is to test for it.
var ErrNotFound = errors.New("not found")

// NotFoundError reports an unknown intent/action/setting/violation id.
type NotFoundError struct {
	Kind string // "intent", "action", "setting", "violation", "scan_log"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ValidationError reports bad setting bounds or an illegal state transition.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// TransitionError is a ValidationError variant naming the current state and
// the attempted transition, so callers can see exactly what was illegal.
type TransitionError struct {
	Kind      string // "intent" or "action"
	ID        string
	Current   string
	Attempted string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal %s transition for %s: %s -> %s", e.Kind, e.ID, e.Current, e.Attempted)
}

// GuardrailBlockedError signals that a budget, concurrency, or production
// lock prevented an action from proceeding. It is an expected control-flow
// outcome, recorded as a GuardrailViolation, not a user-facing failure.
type GuardrailBlockedError struct {
	GuardrailType GuardrailType
	GuardrailKey  string
	Detail        string
}

func (e *GuardrailBlockedError) Error() string {
	return fmt.Sprintf("guardrail %s (%s): %s", e.GuardrailType, e.GuardrailKey, e.Detail)
}

// DetectorError wraps a single detector failure. The scan cycle catches it,
// records it, and continues with the other detectors' results.
type DetectorError struct {
	Detector string
	Err      error
}

func (e *DetectorError) Error() string {
	return fmt.Sprintf("detector %s: %v", e.Detector, e.Err)
}

func (e *DetectorError) Unwrap() error { return e.Err }

// SimulationError wraps a delta-computation failure. The action is marked
// simulation_failed with this message, never simulation_passed.
type SimulationError struct {
	ActionID string
	Err      error
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("simulation of action %s: %v", e.ActionID, e.Err)
}

func (e *SimulationError) Unwrap() error { return e.Err }
