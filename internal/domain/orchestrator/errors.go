package orchestrator

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTask is returned when a task is missing required fields.
	ErrInvalidTask = errors.New("invalid task")

	// ErrGenerationFailed is returned when the provider fails. No cost is incurred.
	ErrGenerationFailed = errors.New("generation failed")

	// ErrTimeout is returned when generation exceeds the task timeout. No cost is incurred.
	ErrTimeout = errors.New("generation timed out")

	// ErrSettlementFailed is returned when a produced result could not be billed.
	ErrSettlementFailed = errors.New("settlement failed")

	// ErrDispatchNotFound is returned by Lookup for unknown or expired dispatch ids.
	ErrDispatchNotFound = errors.New("dispatch not found")
)

// SettlementError carries what reconciliation needs after a failed settlement.
type SettlementError struct {
	DispatchID string
	CallerID   string
	AmountUSD  float64
	Err        error
}

func (e *SettlementError) Error() string {
	return fmt.Sprintf("settlement failed for dispatch %s (caller %s, %.6f USD unbilled): %v",
		e.DispatchID, e.CallerID, e.AmountUSD, e.Err)
}

func (e *SettlementError) Unwrap() error {
	return e.Err
}

// Is matches ErrSettlementFailed.
func (e *SettlementError) Is(target error) bool {
	return target == ErrSettlementFailed
}
