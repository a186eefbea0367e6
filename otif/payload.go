/*
payload.go - Per-milestone event payload variants

PURPOSE:
  Each milestone carries its own field set (Scheduled: document date plus
  planned ETD/ETA; Pickup: driver/vehicle/location/weights; Departure:
  vessel/voyage/container; terminal failures: a reason). Submissions arrive
  as one flat field bag; BuildDetails projects the fields the target
  milestone defines, drops everything else, and rejects submissions missing
  required fields at construction time.

DESIGN:
  EventDetails is a closed variant type: one concrete struct per milestone,
  each validated by its own constructor. The event log stores details as
  JSON; DecodeDetails restores the right variant from the milestone column.

SEE ALSO:
  - rules.go: Transition validation (runs before payload construction)
  - shipment/: Persists events carrying these details
*/
package otif

import (
	"encoding/json"
	"fmt"
)

// =============================================================================
// ZONED TIME - A local date+time in a named timezone
// =============================================================================

// ZonedTime is a planned local time with its IANA timezone, kept as submitted
// so reminders can re-derive the instant against the current plan.
type ZonedTime struct {
	Date string `json:"date"` // YYYY-MM-DD
	Time string `json:"time"` // HH:MM
	Zone string `json:"zone"` // e.g. "Asia/Jakarta"
}

func (z ZonedTime) IsZero() bool { return z.Date == "" && z.Time == "" && z.Zone == "" }

func (z ZonedTime) Equal(o ZonedTime) bool { return z == o }

func (z ZonedTime) String() string { return fmt.Sprintf("%s %s %s", z.Date, z.Time, z.Zone) }

// =============================================================================
// SUBMISSION - Flat inbound field bag
// =============================================================================

// Submission is the wire shape of a milestone submission or correction.
// All fields are optional at this level; BuildDetails enforces the required
// set of the target milestone.
type Submission struct {
	Milestone Milestone `json:"milestone"`

	DocumentDate string `json:"document_date,omitempty"`

	ETD ZonedTime `json:"etd,omitempty"`
	ETA ZonedTime `json:"eta,omitempty"`

	PickupDate         string  `json:"pickup_date,omitempty"`
	PickupTime         string  `json:"pickup_time,omitempty"`
	Location           string  `json:"location,omitempty"`
	DriverName         string  `json:"driver_name,omitempty"`
	DriverPhone        string  `json:"driver_phone,omitempty"`
	VehiclePlateNumber string  `json:"vehicle_plate_number,omitempty"`
	GrossWeight        float64 `json:"gross_weight,omitempty"`
	NettWeight         float64 `json:"nett_weight,omitempty"`
	Activity           string  `json:"activity,omitempty"`

	CustomsDocNumber string `json:"customs_doc_number,omitempty"`

	PortOfLoading   string `json:"port_of_loading,omitempty"`
	VesselName      string `json:"vessel_name,omitempty"`
	VoyageNumber    string `json:"voyage_number,omitempty"`
	ContainerNumber string `json:"container_number,omitempty"`

	PortOfDischarge string `json:"port_of_discharge,omitempty"`

	FailureReason string `json:"failure_reason,omitempty"`
}

// =============================================================================
// EVENT DETAILS - Tagged union, one variant per milestone
// =============================================================================

// EventDetails is the milestone-specific payload of a milestone event.
type EventDetails interface {
	// DetailsMilestone returns the milestone this payload variant belongs to.
	DetailsMilestone() Milestone
}

// ScheduledDetails carries the plan: document date and ETD/ETA local times.
type ScheduledDetails struct {
	DocumentDate string    `json:"document_date"`
	ETD          ZonedTime `json:"etd"`
	ETA          ZonedTime `json:"eta"`
}

func (ScheduledDetails) DetailsMilestone() Milestone { return MilestoneScheduled }

// PickupDetails carries the door pickup record.
type PickupDetails struct {
	PickupDate         string  `json:"pickup_date"`
	PickupTime         string  `json:"pickup_time"`
	Location           string  `json:"location"`
	DriverName         string  `json:"driver_name"`
	DriverPhone        string  `json:"driver_phone,omitempty"`
	VehiclePlateNumber string  `json:"vehicle_plate_number,omitempty"`
	GrossWeight        float64 `json:"gross_weight,omitempty"`
	NettWeight         float64 `json:"nett_weight,omitempty"`
	Activity           string  `json:"activity,omitempty"`
}

func (PickupDetails) DetailsMilestone() Milestone { return MilestonePickup }

// OriginHandlingDetails carries origin customs/handling paperwork.
type OriginHandlingDetails struct {
	DocumentDate     string `json:"document_date"`
	CustomsDocNumber string `json:"customs_doc_number,omitempty"`
	Location         string `json:"location"`
	Activity         string `json:"activity,omitempty"`
}

func (OriginHandlingDetails) DetailsMilestone() Milestone { return MilestoneOriginHandling }

// DepartureDetails carries the vessel/voyage departure record.
type DepartureDetails struct {
	DocumentDate    string  `json:"document_date"`
	Location        string  `json:"location"`
	PortOfLoading   string  `json:"port_of_loading"`
	VesselName      string  `json:"vessel_name,omitempty"`
	VoyageNumber    string  `json:"voyage_number,omitempty"`
	ContainerNumber string  `json:"container_number,omitempty"`
	GrossWeight     float64 `json:"gross_weight,omitempty"`
	NettWeight      float64 `json:"nett_weight,omitempty"`
	Activity        string  `json:"activity,omitempty"`
}

func (DepartureDetails) DetailsMilestone() Milestone { return MilestoneDeparture }

// ArrivalDetails carries the discharge-port arrival record.
type ArrivalDetails struct {
	DocumentDate    string `json:"document_date"`
	Location        string `json:"location"`
	PortOfDischarge string `json:"port_of_discharge"`
	Activity        string `json:"activity,omitempty"`
}

func (ArrivalDetails) DetailsMilestone() Milestone { return MilestoneArrival }

// DestinationHandlingDetails carries destination customs/handling paperwork.
type DestinationHandlingDetails struct {
	DocumentDate string `json:"document_date"`
	Location     string `json:"location"`
	Activity     string `json:"activity,omitempty"`
}

func (DestinationHandlingDetails) DetailsMilestone() Milestone { return MilestoneDestinationHandling }

// DeliveryDetails carries the final-mile delivery record.
type DeliveryDetails struct {
	DocumentDate string `json:"document_date"`
	Location     string `json:"location"`
	Activity     string `json:"activity,omitempty"`
}

func (DeliveryDetails) DetailsMilestone() Milestone { return MilestoneDelivery }

// CompleteDetails closes the shipment.
type CompleteDetails struct {
	DocumentDate string `json:"document_date"`
	Location     string `json:"location,omitempty"`
	Activity     string `json:"activity,omitempty"`
}

func (CompleteDetails) DetailsMilestone() Milestone { return MilestoneComplete }

// FailureDetails carries the reason a shipment was rejected or cancelled.
type FailureDetails struct {
	Kind   Milestone `json:"kind"` // REJECTED or CANCELLED
	Reason string    `json:"reason"`
}

func (d FailureDetails) DetailsMilestone() Milestone { return d.Kind }

// =============================================================================
// CONSTRUCTION - Projection + required-field validation
// =============================================================================

// BuildDetails projects the submission onto the target milestone's variant.
// Fields the milestone does not define are dropped; missing required fields
// fail with an InvalidPayloadError.
func BuildDetails(m Milestone, sub Submission) (EventDetails, error) {
	var missing []string
	req := func(name, value string) string {
		if value == "" {
			missing = append(missing, name)
		}
		return value
	}
	reqZoned := func(name string, z ZonedTime) ZonedTime {
		if z.Date == "" || z.Time == "" || z.Zone == "" {
			missing = append(missing, name)
		}
		return z
	}
	fail := func() error { return &InvalidPayloadError{Milestone: m, Missing: missing} }

	switch m {
	case MilestoneScheduled:
		d := ScheduledDetails{
			DocumentDate: req("document_date", sub.DocumentDate),
			ETD:          reqZoned("etd", sub.ETD),
			ETA:          reqZoned("eta", sub.ETA),
		}
		if len(missing) > 0 {
			return nil, fail()
		}
		return d, nil

	case MilestonePickup:
		d := PickupDetails{
			PickupDate:         req("pickup_date", sub.PickupDate),
			PickupTime:         req("pickup_time", sub.PickupTime),
			Location:           req("location", sub.Location),
			DriverName:         req("driver_name", sub.DriverName),
			DriverPhone:        sub.DriverPhone,
			VehiclePlateNumber: sub.VehiclePlateNumber,
			GrossWeight:        sub.GrossWeight,
			NettWeight:         sub.NettWeight,
			Activity:           sub.Activity,
		}
		if len(missing) > 0 {
			return nil, fail()
		}
		return d, nil

	case MilestoneOriginHandling:
		d := OriginHandlingDetails{
			DocumentDate:     req("document_date", sub.DocumentDate),
			CustomsDocNumber: sub.CustomsDocNumber,
			Location:         req("location", sub.Location),
			Activity:         sub.Activity,
		}
		if len(missing) > 0 {
			return nil, fail()
		}
		return d, nil

	case MilestoneDeparture:
		d := DepartureDetails{
			DocumentDate:    req("document_date", sub.DocumentDate),
			Location:        req("location", sub.Location),
			PortOfLoading:   req("port_of_loading", sub.PortOfLoading),
			VesselName:      sub.VesselName,
			VoyageNumber:    sub.VoyageNumber,
			ContainerNumber: sub.ContainerNumber,
			GrossWeight:     sub.GrossWeight,
			NettWeight:      sub.NettWeight,
			Activity:        sub.Activity,
		}
		if len(missing) > 0 {
			return nil, fail()
		}
		return d, nil

	case MilestoneArrival:
		d := ArrivalDetails{
			DocumentDate:    req("document_date", sub.DocumentDate),
			Location:        req("location", sub.Location),
			PortOfDischarge: req("port_of_discharge", sub.PortOfDischarge),
			Activity:        sub.Activity,
		}
		if len(missing) > 0 {
			return nil, fail()
		}
		return d, nil

	case MilestoneDestinationHandling:
		d := DestinationHandlingDetails{
			DocumentDate: req("document_date", sub.DocumentDate),
			Location:     req("location", sub.Location),
			Activity:     sub.Activity,
		}
		if len(missing) > 0 {
			return nil, fail()
		}
		return d, nil

	case MilestoneDelivery:
		d := DeliveryDetails{
			DocumentDate: req("document_date", sub.DocumentDate),
			Location:     req("location", sub.Location),
			Activity:     sub.Activity,
		}
		if len(missing) > 0 {
			return nil, fail()
		}
		return d, nil

	case MilestoneComplete:
		d := CompleteDetails{
			DocumentDate: req("document_date", sub.DocumentDate),
			Location:     sub.Location,
			Activity:     sub.Activity,
		}
		if len(missing) > 0 {
			return nil, fail()
		}
		return d, nil

	case MilestoneRejected, MilestoneCancelled:
		d := FailureDetails{Kind: m, Reason: req("failure_reason", sub.FailureReason)}
		if len(missing) > 0 {
			return nil, fail()
		}
		return d, nil
	}

	return nil, &InvalidPayloadError{Milestone: m, Missing: []string{"milestone"}}
}

// DecodeDetails restores the variant recorded for milestone m from its JSON
// representation in the event log.
func DecodeDetails(m Milestone, data []byte) (EventDetails, error) {
	decode := func(v EventDetails) (EventDetails, error) {
		if err := json.Unmarshal(data, v); err != nil {
			return nil, fmt.Errorf("failed to decode %s details: %w", m, err)
		}
		return v, nil
	}

	switch m {
	case MilestoneScheduled:
		d := &ScheduledDetails{}
		if _, err := decode(d); err != nil {
			return nil, err
		}
		return *d, nil
	case MilestonePickup:
		d := &PickupDetails{}
		if _, err := decode(d); err != nil {
			return nil, err
		}
		return *d, nil
	case MilestoneOriginHandling:
		d := &OriginHandlingDetails{}
		if _, err := decode(d); err != nil {
			return nil, err
		}
		return *d, nil
	case MilestoneDeparture:
		d := &DepartureDetails{}
		if _, err := decode(d); err != nil {
			return nil, err
		}
		return *d, nil
	case MilestoneArrival:
		d := &ArrivalDetails{}
		if _, err := decode(d); err != nil {
			return nil, err
		}
		return *d, nil
	case MilestoneDestinationHandling:
		d := &DestinationHandlingDetails{}
		if _, err := decode(d); err != nil {
			return nil, err
		}
		return *d, nil
	case MilestoneDelivery:
		d := &DeliveryDetails{}
		if _, err := decode(d); err != nil {
			return nil, err
		}
		return *d, nil
	case MilestoneComplete:
		d := &CompleteDetails{}
		if _, err := decode(d); err != nil {
			return nil, err
		}
		return *d, nil
	case MilestoneRejected, MilestoneCancelled:
		d := &FailureDetails{}
		if _, err := decode(d); err != nil {
			return nil, err
		}
		d.Kind = m
		return *d, nil
	}

	return nil, fmt.Errorf("no details variant for milestone %q", m)
}

// EncodeDetails serializes a details variant for the event log.
func EncodeDetails(d EventDetails) ([]byte, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s details: %w", d.DetailsMilestone(), err)
	}
	return data, nil
}
