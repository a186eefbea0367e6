/*
dto.go - Request/response data structures

PURPOSE:
  The JSON shapes the API speaks. Domain types never cross the HTTP
  boundary directly; handlers map between these DTOs and the shipment,
  revenue and otif packages.

CONVENTIONS:
  - Dates are YYYY-MM-DD strings
  - Timestamps are RFC3339
  - Money is a decimal string ("1500.50"), never a float
*/
package api

import (
	"encoding/json"
	"time"

	"github.com/warp/shipment-engine/otif"
	"github.com/warp/shipment-engine/revenue"
	"github.com/warp/shipment-engine/shipment"
)

// =============================================================================
// REQUESTS
// =============================================================================

// CreateShipmentRequest converts an accepted bid into a shipment.
type CreateShipmentRequest struct {
	QuoteRef     string           `json:"quote_ref"`
	ClientID     string           `json:"client_id"`
	CustomerID   string           `json:"customer_id"`
	Route        string           `json:"route"`
	ShipmentType string           `json:"shipment_type"`
	Lines        []PriceLineInput `json:"lines"`
}

// PriceLineInput is one selling-price component of the accepted bid.
type PriceLineInput struct {
	Component string `json:"component"`
	UOM       string `json:"uom"`
	Price     string `json:"price"`
}

// MilestoneRequest submits or corrects a milestone. The field set is the
// flat submission bag; which fields are required depends on the milestone.
type MilestoneRequest struct {
	otif.Submission
}

// IssueInvoiceRequest registers an invoice against the order.
type IssueInvoiceRequest struct {
	State  string `json:"state"`
	Amount string `json:"amount"`
}

// =============================================================================
// RESPONSES
// =============================================================================

// ErrorResponse is the uniform error shape.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ShipmentDTO is the API view of a shipment.
type ShipmentDTO struct {
	OrderNumber string `json:"order_number"`
	QuoteRef    string `json:"quote_ref"`
	CustomerID  string `json:"customer_id"`
	Route       string `json:"route"`
	Status      string `json:"status"`
	Milestone   string `json:"milestone"`
	Progress    int    `json:"progress"`
	CreatedBy   string `json:"created_by"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func toShipmentDTO(sh *shipment.Shipment) ShipmentDTO {
	return ShipmentDTO{
		OrderNumber: sh.OrderID,
		QuoteRef:    sh.QuoteRef,
		CustomerID:  sh.CustomerID,
		Route:       string(sh.Route),
		Status:      string(sh.Status),
		Milestone:   string(sh.Milestone),
		Progress:    otif.ProgressThrough(sh.Route, sh.Milestone),
		CreatedBy:   sh.CreatedBy,
		CreatedAt:   sh.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   sh.UpdatedAt.Format(time.RFC3339),
	}
}

// EventDTO is one recorded milestone with its payload. Details is the raw
// JSON of the milestone's payload variant, so clients (and our own tests)
// can round-trip the response without knowing the variant type.
type EventDTO struct {
	Milestone string          `json:"milestone"`
	Details   json.RawMessage `json:"details"`
	CreatedBy string          `json:"created_by"`
	UpdatedBy string          `json:"updated_by,omitempty"`
	CreatedAt string          `json:"created_at"`
	UpdatedAt string          `json:"updated_at"`
}

func toEventDTO(e *shipment.MilestoneEvent) EventDTO {
	details, err := otif.EncodeDetails(e.Details)
	if err != nil {
		details = json.RawMessage("{}")
	}
	return EventDTO{
		Milestone: string(e.Milestone),
		Details:   details,
		CreatedBy: e.CreatedBy,
		UpdatedBy: e.UpdatedBy,
		CreatedAt: e.CreatedAt.Format(time.RFC3339),
		UpdatedAt: e.UpdatedAt.Format(time.RFC3339),
	}
}

// ShipmentDetailDTO is a shipment with its milestone history.
type ShipmentDetailDTO struct {
	ShipmentDTO
	Events []EventDTO `json:"events"`
}

// MilestoneResponse is returned after an accepted submission.
type MilestoneResponse struct {
	Shipment ShipmentDTO `json:"shipment"`
	Event    EventDTO    `json:"event"`
}

// RevenueEntryDTO is one ledger row.
type RevenueEntryDTO struct {
	ID                 int64  `json:"id"`
	Milestone          string `json:"milestone"`
	Kind               string `json:"kind"`
	Period             string `json:"period"`
	Initial            string `json:"initial"`
	Final              string `json:"final"`
	Adjustment         string `json:"adjustment"`
	ProgressionPercent int    `json:"progression_percent"`
	Progress           int    `json:"progress"`
	ProgressionAmount  string `json:"progression_amount"`
	Settled            string `json:"settled"`
	Remaining          string `json:"remaining"`
	Actor              string `json:"actor"`
	CreatedAt          string `json:"created_at"`
}

func toRevenueEntryDTO(e revenue.Entry) RevenueEntryDTO {
	return RevenueEntryDTO{
		ID:                 e.ID,
		Milestone:          string(e.Milestone),
		Kind:               string(e.Kind),
		Period:             e.Period.String(),
		Initial:            e.Initial.String(),
		Final:              e.Final.String(),
		Adjustment:         e.Adjustment.String(),
		ProgressionPercent: e.ProgressionPercent,
		Progress:           e.Progress,
		ProgressionAmount:  e.ProgressionAmount.String(),
		Settled:            e.Settled.String(),
		Remaining:          e.Remaining.String(),
		Actor:              e.Actor,
		CreatedAt:          e.CreatedAt.Format(time.RFC3339),
	}
}

// RevenueDTO is the order's ledger with its current recognized amount.
type RevenueDTO struct {
	OrderNumber string            `json:"order_number"`
	Recognized  string            `json:"recognized"`
	Entries     []RevenueEntryDTO `json:"entries"`
}

// PriceLineDTO is one stored selling-price line.
type PriceLineDTO struct {
	ID            int64  `json:"id"`
	Component     string `json:"component"`
	UOM           string `json:"uom"`
	Price         string `json:"price"`
	Reimbursement bool   `json:"reimbursement"`
}

func toPriceLineDTO(l shipment.PriceLine) PriceLineDTO {
	return PriceLineDTO{
		ID:            l.ID,
		Component:     l.Component,
		UOM:           l.UOM,
		Price:         l.Price.String(),
		Reimbursement: l.IsReimbursement(),
	}
}
