/*
errors.go - Centralized error types for milestone validation

PURPOSE:
  All domain errors returned by milestone validation, in one place.
  Callers classify with errors.Is; structured types carry the context
  needed for a human-readable message naming the violated rule.

ERROR CATEGORIES:
  1. Sequence errors - milestone not the immediate next step on the route
  2. Transition errors - reject/cancel attempted too late or with a
     non-pending invoice
  3. Payload errors - missing required fields for the target milestone

SEE ALSO:
  - rules.go: Returns sequence/transition errors
  - payload.go: Returns payload errors
*/
package otif

import (
	"errors"
	"fmt"
	"strings"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrOutOfSequence is returned when the requested milestone is not the
	// immediate next step of the route's sequence.
	ErrOutOfSequence = errors.New("milestones must be submitted sequentially")

	// ErrIllegalTransition is returned when a reject/cancel is attempted after
	// the shipment has departed, or while the invoice is past pending.
	ErrIllegalTransition = errors.New("shipment can only be rejected/cancelled before arrival while invoice is pending")

	// ErrInvalidPayload is returned when the submission lacks fields the
	// target milestone requires.
	ErrInvalidPayload = errors.New("invalid milestone payload")

	// ErrUnknownRoute is returned for a shipment service outside the four
	// door/port variants.
	ErrUnknownRoute = errors.New("unknown shipment service route")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// OutOfSequenceError reports which milestone the route expected next.
type OutOfSequenceError struct {
	Route     Route
	Current   Milestone
	Requested Milestone
	Expected  Milestone
}

func (e *OutOfSequenceError) Error() string {
	if e.Expected == "" {
		return fmt.Sprintf("%s: %q has no next milestone after %q", e.Route, e.Current, e.Requested)
	}
	return fmt.Sprintf("%s: expected %q after %q, got %q", e.Route, e.Expected, e.Current, e.Requested)
}

func (e *OutOfSequenceError) Unwrap() error { return ErrOutOfSequence }

// IllegalTransitionError reports why a reject/cancel was refused.
type IllegalTransitionError struct {
	Route     Route
	Current   Milestone
	Requested Milestone
	Invoice   InvoiceState
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("cannot move %q shipment at %q to %q (invoice %q): %v",
		e.Route, e.Current, e.Requested, e.Invoice, ErrIllegalTransition)
}

func (e *IllegalTransitionError) Unwrap() error { return ErrIllegalTransition }

// InvalidPayloadError lists the required fields missing for a milestone.
type InvalidPayloadError struct {
	Milestone Milestone
	Missing   []string
}

func (e *InvalidPayloadError) Error() string {
	return fmt.Sprintf("milestone %q requires: %s", e.Milestone, strings.Join(e.Missing, ", "))
}

func (e *InvalidPayloadError) Unwrap() error { return ErrInvalidPayload }
