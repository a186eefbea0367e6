/*
ledger.go - Entry construction and the Ledger service

PURPOSE:
  Two layers:
  1. Pure builders (NewProgression, NextAdjustment) that compute a new entry
     from the previous one. The orchestrator uses these inside its own
     database transaction so the entry commits atomically with the shipment.
  2. The Ledger service, the entry point for revenue-affecting events from
     other subsystems (price edit, invoice issuance) that are not part of a
     milestone transition.

SEE ALSO:
  - types.go: Entry shape and invariants
  - store/sqlite: Store implementation
*/
package revenue

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/shipment-engine/otif"
)

// =============================================================================
// STORE - Persistence interface (insert-only for entries)
// =============================================================================

// Store persists ledger entries. Entries are INSERT-ONLY; the single
// exception is UpdateEntryPeriods, which rewrites the recognition period of
// a milestone's entries when the milestone date itself is corrected. Amounts
// are never updated.
type Store interface {
	// AppendEntry inserts an entry and assigns its insertion id.
	AppendEntry(ctx context.Context, e *Entry) error

	// LatestEntry returns the entry with the highest insertion id for the
	// order, or nil if the order has none. Insertion order, not timestamp.
	LatestEntry(ctx context.Context, orderID string) (*Entry, error)

	// ListEntries returns all entries for the order in insertion order.
	ListEntries(ctx context.Context, orderID string) ([]Entry, error)

	// UpdateEntryPeriods rewrites year/month on the order's entries recorded
	// under milestone m, always including the order's progression entry: the
	// progression is written at booking, before any dated milestone exists,
	// yet it belongs to the same recognition period the correction names.
	UpdateEntryPeriods(ctx context.Context, orderID string, m otif.Milestone, p Period) error
}

// =============================================================================
// SENTINEL ERRORS
// =============================================================================

var (
	// ErrProgressionExists is returned when a second progression entry is
	// attempted for an order. Progression happens exactly once, at creation.
	ErrProgressionExists = errors.New("order already has a progression entry")
)

// =============================================================================
// PURE BUILDERS
// =============================================================================

// NewProgression builds the single initial recognition entry for an order.
// The full amount is recognized immediately: settled = final, remaining = 0.
func NewProgression(ref Ref, finalAmount decimal.Decimal, period Period, now time.Time) Entry {
	return Entry{
		OrderID:            ref.OrderID,
		QuoteRef:           ref.QuoteRef,
		CustomerID:         ref.CustomerID,
		Milestone:          otif.MilestoneBooked,
		Route:              ref.Route,
		Kind:               KindProgression,
		Period:             period,
		Initial:            decimal.Zero,
		Final:              finalAmount,
		Adjustment:         decimal.Zero,
		ProgressionPercent: 100,
		Progress:           100,
		ProgressionAmount:  finalAmount,
		Settled:            finalAmount,
		Remaining:          decimal.Zero,
		Actor:              ref.Actor,
		CreatedAt:          now,
	}
}

// NextAdjustment builds the adjustment entry that moves the order's
// recognized amount to newFinal. prev is the order's latest entry by
// insertion order, or nil if none exists (then initial is zero).
func NextAdjustment(prev *Entry, ref Ref, m otif.Milestone, newFinal decimal.Decimal, period Period, now time.Time) Entry {
	initial := decimal.Zero
	if prev != nil {
		initial = prev.Final
	}
	return Entry{
		OrderID:            ref.OrderID,
		QuoteRef:           ref.QuoteRef,
		CustomerID:         ref.CustomerID,
		Milestone:          m,
		Route:              ref.Route,
		Kind:               KindAdjustment,
		Period:             period,
		Initial:            initial,
		Final:              newFinal,
		Adjustment:         newFinal.Sub(initial),
		ProgressionPercent: 0,
		Progress:           100,
		ProgressionAmount:  decimal.Zero,
		Settled:            newFinal,
		Remaining:          decimal.Zero,
		Actor:              ref.Actor,
		CreatedAt:          now,
	}
}

// =============================================================================
// LEDGER SERVICE
// =============================================================================

// Ledger records revenue-affecting events against a store. Callers that need
// the entry to commit atomically with other state (the milestone orchestrator)
// use the pure builders against a transaction-scoped store instead.
type Ledger struct {
	Store Store

	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

func NewLedger(store Store) *Ledger {
	return &Ledger{Store: store, Now: time.Now}
}

// RecordProgression writes the order's initial recognition entry. Used
// exactly once, at shipment creation; a second call fails.
func (l *Ledger) RecordProgression(ctx context.Context, ref Ref, finalAmount decimal.Decimal, period Period) (Entry, error) {
	prev, err := l.Store.LatestEntry(ctx, ref.OrderID)
	if err != nil {
		return Entry{}, err
	}
	if prev != nil {
		return Entry{}, ErrProgressionExists
	}

	e := NewProgression(ref, finalAmount, period, l.Now())
	if err := l.Store.AppendEntry(ctx, &e); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// RecordAdjustment writes an adjustment entry moving the recognized amount
// to newFinal. Used for price edits, invoice issuance, and (with newFinal
// zero) milestone reject/cancel reversals. Reimbursement-classified line
// items must already be excluded from newFinal by the caller.
func (l *Ledger) RecordAdjustment(ctx context.Context, ref Ref, m otif.Milestone, newFinal decimal.Decimal, period Period) (Entry, error) {
	prev, err := l.Store.LatestEntry(ctx, ref.OrderID)
	if err != nil {
		return Entry{}, err
	}

	e := NextAdjustment(prev, ref, m, newFinal, period, l.Now())
	if err := l.Store.AppendEntry(ctx, &e); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// Recognized returns the order's current recognized amount: the final/settled
// value of the latest entry, zero if the order has none.
func (l *Ledger) Recognized(ctx context.Context, orderID string) (decimal.Decimal, error) {
	prev, err := l.Store.LatestEntry(ctx, orderID)
	if err != nil {
		return decimal.Zero, err
	}
	if prev == nil {
		return decimal.Zero, nil
	}
	return prev.Settled, nil
}

// Entries returns the order's full ledger history in insertion order.
func (l *Ledger) Entries(ctx context.Context, orderID string) ([]Entry, error) {
	return l.Store.ListEntries(ctx, orderID)
}
