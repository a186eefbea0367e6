/*
store.go - Persistence interfaces for the shipment lifecycle

PURPOSE:
  Defines what the orchestrator needs from storage. Implementations must
  serialize concurrent submissions for the same order (row lock or a store
  mutex) so two milestones are never validated against the same stale
  current milestone; submissions for different orders are independent.

INTERFACES:
  Store:    Shipments, milestone events, invoices, price lines, plus the
            revenue.Store entry operations
  TxStore:  Store with WithTx for the atomic unit of §persist-then-notify

SEE ALSO:
  - store/sqlite: SQLite implementation
  - revenue/ledger.go: The embedded revenue.Store contract
*/
package shipment

import (
	"context"

	"github.com/warp/shipment-engine/otif"
	"github.com/warp/shipment-engine/revenue"
)

// Store is the lifecycle's persistence surface.
type Store interface {
	revenue.Store

	// GetShipment returns the shipment, or nil if absent or soft-deleted.
	GetShipment(ctx context.Context, orderID string) (*Shipment, error)

	// InsertShipment persists a newly created shipment.
	InsertShipment(ctx context.Context, s *Shipment) error

	// UpdateShipmentProgress moves the shipment's milestone and coarse status
	// together.
	UpdateShipmentProgress(ctx context.Context, orderID string, m otif.Milestone, st otif.Status, updatedBy string) error

	// GetEvent returns the recorded event for (orderID, m), or nil.
	GetEvent(ctx context.Context, orderID string, m otif.Milestone) (*MilestoneEvent, error)

	// UpsertEvent inserts the event or, if (orderID, milestone) already
	// exists, replaces its details and update metadata.
	UpsertEvent(ctx context.Context, e *MilestoneEvent) error

	// ListEvents returns the order's events in insertion order.
	ListEvents(ctx context.Context, orderID string) ([]MilestoneEvent, error)

	// GetOpenInvoice returns the order's non-cancelled invoice, or nil.
	GetOpenInvoice(ctx context.Context, orderID string) (*Invoice, error)

	// InsertInvoice persists a new invoice and assigns its id.
	InsertInvoice(ctx context.Context, inv *Invoice) error

	// UpdateInvoiceState moves the order's open invoice to a new state.
	UpdateInvoiceState(ctx context.Context, orderID string, state otif.InvoiceState) error

	// SoftCancelInvoice marks the order's open invoice cancelled; no-op if
	// none exists.
	SoftCancelInvoice(ctx context.Context, orderID string, actor string) error

	// InsertPriceLines persists selling-price lines for a new shipment.
	InsertPriceLines(ctx context.Context, lines []PriceLine) error

	// ListPriceLines returns the order's selling-price lines.
	ListPriceLines(ctx context.Context, orderID string) ([]PriceLine, error)
}

// TxStore adds the atomic unit. If fn returns an error the whole transaction
// rolls back; no partial writes survive.
type TxStore interface {
	Store

	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// CONTACTS - Read-only directory collaborator
// =============================================================================

// CustomerContact is what outbound notifications need about a customer.
type CustomerContact struct {
	CompanyName string
	Phone       string
	Email       string
}

// Contacts resolves recipients for reminders and milestone notifications.
// Master-data management lives elsewhere; the lifecycle only reads.
type Contacts interface {
	// UserPhone returns the phone of a verified user, empty if unknown or
	// unverified.
	UserPhone(ctx context.Context, userID string) (string, error)

	// CustomerContact returns the customer's company and contact points.
	CustomerContact(ctx context.Context, customerID string) (CustomerContact, error)
}
