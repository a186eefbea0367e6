/*
zoned.go - Local plan time to fire instant conversion

PURPOSE:
  Planned ETD/ETA arrive as a local date+time in a named timezone. The
  reminder fires a fixed lead (two hours) before the plan, and the instant
  is re-expressed in a fixed reference timezone for scheduling and logging.
*/
package reminder

import (
	"fmt"
	"time"

	"github.com/warp/shipment-engine/otif"
)

// DefaultLead is how far before the planned time a reminder fires.
const DefaultLead = 2 * time.Hour

// DefaultReferenceZone is the timezone fire instants are expressed in.
const DefaultReferenceZone = "Asia/Jakarta"

const planLayout = "2006-01-02 15:04"

// FireAt computes the reminder instant for a plan: the plan's local time
// minus lead, in the reference location.
func FireAt(plan otif.ZonedTime, lead time.Duration, reference *time.Location) (time.Time, error) {
	loc, err := time.LoadLocation(plan.Zone)
	if err != nil {
		return time.Time{}, fmt.Errorf("unknown plan timezone %q: %w", plan.Zone, err)
	}

	local, err := time.ParseInLocation(planLayout, plan.Date+" "+plan.Time, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid plan time %q: %w", plan, err)
	}

	return local.Add(-lead).In(reference), nil
}
