/*
Package otif implements the OTIF (On-Time-In-Full) milestone rules.

PURPOSE:
  This package contains the pure decision logic for shipment milestone
  progression. Given a shipment-service route and a requested milestone it
  decides whether the transition is legal, what the resulting coarse shipment
  status is, and which fields the milestone event must carry. It has no side
  effects; persistence and scheduling belong to the orchestrator.

KEY CONCEPTS IN THIS FILE (types.go):
  - Milestone: A discrete operational checkpoint (Booked ... Complete)
  - Route: One of four door/port service variants; each defines the legal
    milestone sequence
  - Status: The coarse shipment status derived from the current milestone
  - InvoiceState: The invoice status the reject/cancel gate depends on

DESIGN PRINCIPLES:
  1. Purity: Every function here is a pure function of its inputs
  2. Monotonicity: Milestones only move forward along the route's sequence
  3. Derivation: Coarse status is always computed from the milestone,
     never stored independently of it

SEE ALSO:
  - rules.go: Transition validation
  - payload.go: Per-milestone event payload variants
  - progress.go: Display-only progression percentages
*/
package otif

// =============================================================================
// MILESTONE - Operational checkpoint
// =============================================================================

type Milestone string

const (
	MilestoneBooked              Milestone = "BOOKED"
	MilestoneScheduled           Milestone = "SCHEDULED"
	MilestonePickup              Milestone = "PICKUP"
	MilestoneOriginHandling      Milestone = "ORIGIN_LOCAL_HANDLING"
	MilestoneDeparture           Milestone = "DEPARTURE"
	MilestoneArrival             Milestone = "ARRIVAL"
	MilestoneDestinationHandling Milestone = "DESTINATION_LOCAL_HANDLING"
	MilestoneDelivery            Milestone = "DELIVERY"
	MilestoneComplete            Milestone = "COMPLETE"
	MilestoneRejected            Milestone = "REJECTED"
	MilestoneCancelled           Milestone = "CANCELLED"
)

// IsTerminalFailure reports whether m ends the shipment unsuccessfully.
func (m Milestone) IsTerminalFailure() bool {
	return m == MilestoneRejected || m == MilestoneCancelled
}

// =============================================================================
// ROUTE - Shipment-service variant
// =============================================================================

type Route string

const (
	RouteDoorToDoor Route = "Door to Door"
	RouteDoorToPort Route = "Door to Port"
	RoutePortToDoor Route = "Port to Door"
	RoutePortToPort Route = "Port to Port"
)

var routeSequences = map[Route][]Milestone{
	RouteDoorToDoor: {
		MilestoneBooked,
		MilestoneScheduled,
		MilestonePickup,
		MilestoneOriginHandling,
		MilestoneDeparture,
		MilestoneArrival,
		MilestoneDestinationHandling,
		MilestoneDelivery,
		MilestoneComplete,
	},
	RouteDoorToPort: {
		MilestoneBooked,
		MilestoneScheduled,
		MilestonePickup,
		MilestoneOriginHandling,
		MilestoneDeparture,
		MilestoneArrival,
		MilestoneComplete,
	},
	RoutePortToDoor: {
		MilestoneBooked,
		MilestoneScheduled,
		MilestoneDeparture,
		MilestoneArrival,
		MilestoneDestinationHandling,
		MilestoneDelivery,
		MilestoneComplete,
	},
	RoutePortToPort: {
		MilestoneBooked,
		MilestoneScheduled,
		MilestoneDeparture,
		MilestoneArrival,
		MilestoneComplete,
	},
}

// Valid reports whether r is one of the four known routes.
func (r Route) Valid() bool {
	_, ok := routeSequences[r]
	return ok
}

// Sequence returns the permitted milestone sequence for the route.
// The returned slice must not be modified.
func (r Route) Sequence() []Milestone {
	return routeSequences[r]
}

// IndexOf returns the position of m in the route's sequence, or -1 if the
// milestone does not occur on this route.
func (r Route) IndexOf(m Milestone) int {
	for i, s := range routeSequences[r] {
		if s == m {
			return i
		}
	}
	return -1
}

// =============================================================================
// STATUS - Coarse shipment status, derived from milestone
// =============================================================================

type Status string

const (
	StatusWaiting  Status = "WAITING"
	StatusOngoing  Status = "ONGOING"
	StatusComplete Status = "COMPLETE"
	StatusFailed   Status = "FAILED"
)

// StatusOf maps a milestone to its coarse shipment status.
// Booked/Scheduled are waiting, Complete completes, Rejected/Cancelled fail,
// everything between is ongoing.
func StatusOf(m Milestone) Status {
	switch m {
	case MilestoneBooked, MilestoneScheduled:
		return StatusWaiting
	case MilestoneComplete:
		return StatusComplete
	case MilestoneRejected, MilestoneCancelled:
		return StatusFailed
	default:
		return StatusOngoing
	}
}

// =============================================================================
// INVOICE STATE - External collaborator state the reject/cancel gate reads
// =============================================================================

type InvoiceState string

const (
	InvoiceAbsent  InvoiceState = ""
	InvoicePending InvoiceState = "PENDING"
	InvoiceIssued  InvoiceState = "ISSUED"
	InvoiceSettled InvoiceState = "SETTLED"
)

// AllowsFailure reports whether a shipment with this invoice state may still
// be rejected or cancelled.
func (s InvoiceState) AllowsFailure() bool {
	return s == InvoiceAbsent || s == InvoicePending
}
