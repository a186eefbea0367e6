/*
rules.go - Milestone transition validation

PURPOSE:
  ValidateTransition is the single gate every milestone submission passes
  through. It enforces two invariants:
  1. Forward milestones advance strictly one step along the route's sequence
  2. Rejected/Cancelled are only reachable up to Departure, and only while
     no invoice exists or the invoice is still pending

SEE ALSO:
  - types.go: Route sequences and status mapping
  - payload.go: Field requirements per milestone
*/
package otif

// Transition is the validated outcome of a milestone submission.
type Transition struct {
	Milestone Milestone
	Status    Status
}

// ValidateTransition decides whether a shipment on the given route, currently
// at current, may move to requested. The invoice state only matters for
// reject/cancel. Pure; no side effects.
func ValidateTransition(route Route, current, requested Milestone, invoice InvoiceState) (Transition, error) {
	if !route.Valid() {
		return Transition{}, ErrUnknownRoute
	}

	if requested.IsTerminalFailure() {
		// A shipment can fail at any point up to and including Departure, as
		// long as nothing past a pending invoice has been issued against it.
		idx := route.IndexOf(current)
		if idx >= 0 && idx <= route.IndexOf(MilestoneDeparture) && invoice.AllowsFailure() {
			return Transition{Milestone: requested, Status: StatusFailed}, nil
		}
		return Transition{}, &IllegalTransitionError{
			Route:     route,
			Current:   current,
			Requested: requested,
			Invoice:   invoice,
		}
	}

	seq := route.Sequence()
	idx := route.IndexOf(current)
	if idx < 0 || idx+1 >= len(seq) {
		return Transition{}, &OutOfSequenceError{
			Route:     route,
			Current:   current,
			Requested: requested,
		}
	}
	next := seq[idx+1]
	if requested != next {
		return Transition{}, &OutOfSequenceError{
			Route:     route,
			Current:   current,
			Requested: requested,
			Expected:  next,
		}
	}

	return Transition{Milestone: requested, Status: StatusOf(requested)}, nil
}
