/*
Package shipment implements the shipment lifecycle orchestrator.

PURPOSE:
  Coordinates a milestone submission end to end: validate the transition
  with the otif rules, persist shipment + event + ledger changes as one
  atomic unit, then (outside the transaction) adjust reminder timers and
  fire best-effort notifications.

KEY CONCEPTS IN THIS FILE (types.go):
  - Shipment: One row per fulfilled order; its coarse status is always the
    mapped status of its current milestone
  - MilestoneEvent: Append-once log entry per (order, milestone); a
    correction updates the existing event, it never appends a second one
  - Invoice / PriceLine: Collaborator state the lifecycle reads and
    soft-cancels

SEE ALSO:
  - service.go: Create / Advance / Amend orchestration
  - store.go: Persistence interfaces
*/
package shipment

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/shipment-engine/otif"
)

// =============================================================================
// ACTOR
// =============================================================================

// Actor is the user performing an operation.
type Actor struct {
	ID   string
	Name string
}

// =============================================================================
// SHIPMENT
// =============================================================================

type Shipment struct {
	OrderID    string
	QuoteRef   string
	CustomerID string
	Route      otif.Route

	// Status is always StatusOf(Milestone); both are stored so queries can
	// filter on either, and both are updated together in one transaction.
	Status    otif.Status
	Milestone otif.Milestone

	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time

	// Deleted marks a soft-removed shipment. Soft removal happens in flows
	// outside this package; the lifecycle only refuses to touch one.
	Deleted bool
}

// =============================================================================
// MILESTONE EVENT
// =============================================================================

// MilestoneEvent is one entry of the per-shipment milestone log. Milestones
// do not repeat for an order, so (OrderID, Milestone) is unique.
type MilestoneEvent struct {
	ID        int64
	OrderID   string
	Milestone otif.Milestone
	Details   otif.EventDetails

	CreatedBy string
	UpdatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// INVOICE - Collaborator state
// =============================================================================

type Invoice struct {
	ID      int64
	OrderID string
	State   otif.InvoiceState
	Amount  decimal.Decimal

	CreatedAt time.Time
}

// =============================================================================
// PRICE LINE - Selling price component copied from the accepted bid
// =============================================================================

type PriceLine struct {
	ID        int64
	OrderID   string
	Component string
	UOM       string
	Price     decimal.Decimal
	CreatedBy string
}

const reimbursementComponent = "reimbursement"

// IsReimbursement reports whether the line is a pass-through cost that does
// not count as revenue.
func (l PriceLine) IsReimbursement() bool {
	return strings.EqualFold(l.Component, reimbursementComponent)
}

// SellableTotal sums the lines' prices, excluding reimbursement components.
// This is the amount the revenue ledger recognizes.
func SellableTotal(lines []PriceLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		if l.IsReimbursement() {
			continue
		}
		total = total.Add(l.Price)
	}
	return total
}

// =============================================================================
// ORDER NUMBER
// =============================================================================

// Per-shipment-type order number suffix codes.
var shipmentTypeCodes = map[string]string{
	"AIRBREAKBULK": "0203",
	"AIRCOURIER":   "0202",
	"AIRCARGO":     "0201",
	"SEABREAKBULK": "0103",
	"SEALCL":       "0102",
}

func shipmentTypeCode(shipmentType string) string {
	if code, ok := shipmentTypeCodes[shipmentType]; ok {
		return code
	}
	return "0101"
}

// OrderNumber builds the order identifier:
// ORD/<client>/<yyyymmdd>-<sequence>-<typecode>, where sequence is the last
// segment of the originating quote reference.
func OrderNumber(clientID, quoteRef, shipmentType string, at time.Time) string {
	for len(clientID) < 4 {
		clientID = "0" + clientID
	}
	seq := quoteRef
	if i := strings.LastIndex(quoteRef, "-"); i >= 0 {
		seq = quoteRef[i+1:]
	}
	return "ORD/" + clientID + "/" + at.Format("20060102") + "-" + seq + "-" + shipmentTypeCode(shipmentType)
}
