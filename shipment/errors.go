/*
errors.go - Lifecycle error types

PURPOSE:
  Errors the orchestrator adds on top of the otif validation errors. All
  domain errors are detected before any persistence happens; once past
  validation, a failure aborts the whole transaction and surfaces as an
  opaque persistence error.

SEE ALSO:
  - otif/errors.go: Sequence/transition/payload errors, propagated unchanged
*/
package shipment

import (
	"errors"
	"fmt"

	"github.com/warp/shipment-engine/otif"
)

var (
	// ErrNotFound is returned for an unknown or soft-deleted order, or a
	// correction targeting a milestone the order never recorded.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyTerminal is returned when submitting or correcting a
	// milestone on a shipment that has already failed or completed.
	ErrAlreadyTerminal = errors.New("shipment already terminal")
)

// NotFoundError names what was missing.
type NotFoundError struct {
	OrderID string
	What    string // "shipment" or "milestone event"
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found for order %s", e.What, e.OrderID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// AlreadyTerminalError carries the terminal status reached.
type AlreadyTerminalError struct {
	OrderID string
	Status  otif.Status
}

func (e *AlreadyTerminalError) Error() string {
	return fmt.Sprintf("shipment %s has been %s", e.OrderID, e.Status)
}

func (e *AlreadyTerminalError) Unwrap() error { return ErrAlreadyTerminal }

// IsDomainError reports whether err is one of the validation errors a caller
// caused, as opposed to a persistence failure.
func IsDomainError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAlreadyTerminal) ||
		errors.Is(err, otif.ErrOutOfSequence) ||
		errors.Is(err, otif.ErrIllegalTransition) ||
		errors.Is(err, otif.ErrInvalidPayload) ||
		errors.Is(err, otif.ErrUnknownRoute)
}
