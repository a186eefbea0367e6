/*
progress.go - Display-only progression percentages

PURPOSE:
  Per-route weight map used to render a progress bar for a shipment. The
  weights of a route's non-zero milestones sum to 100. This table is NOT
  used for revenue math: the ledger always recognizes the full agreed
  amount on every adjustment (see revenue package).
*/
package otif

var progressionWeights = map[Route]map[Milestone]int{
	RouteDoorToDoor: {
		MilestoneScheduled:           10,
		MilestonePickup:              10,
		MilestoneOriginHandling:      15,
		MilestoneDeparture:           35,
		MilestoneArrival:             5,
		MilestoneDestinationHandling: 15,
		MilestoneDelivery:            10,
	},
	RouteDoorToPort: {
		MilestoneScheduled:      10,
		MilestonePickup:         10,
		MilestoneOriginHandling: 15,
		MilestoneDeparture:      55,
		MilestoneArrival:        10,
	},
	RoutePortToDoor: {
		MilestoneScheduled:           10,
		MilestoneDeparture:           60,
		MilestoneArrival:             5,
		MilestoneDestinationHandling: 15,
		MilestoneDelivery:            10,
	},
	RoutePortToPort: {
		MilestoneScheduled: 10,
		MilestoneDeparture: 80,
		MilestoneArrival:   10,
	},
}

// ProgressionWeight returns the display weight of a single milestone on the
// route. Booked, Complete, Rejected and Cancelled always weigh 0.
func ProgressionWeight(route Route, m Milestone) int {
	return progressionWeights[route][m]
}

// ProgressThrough returns the cumulative display progress, 0-100, of a
// shipment currently at milestone m. Complete is 100; terminal failures
// report the progress reached before failing is unknowable here, so 0.
func ProgressThrough(route Route, m Milestone) int {
	if m == MilestoneComplete {
		return 100
	}
	if m.IsTerminalFailure() {
		return 0
	}
	idx := route.IndexOf(m)
	if idx < 0 {
		return 0
	}
	total := 0
	for _, s := range route.Sequence()[:idx+1] {
		total += progressionWeights[route][s]
	}
	return total
}
