/*
Package revenue implements the shipment revenue ledger.

PURPOSE:
  Tracks how much revenue is recognized for each order. The ledger is an
  append-only sequence of entries: exactly one Progression entry written
  when the shipment is created, then one Adjustment entry per price edit,
  invoice issuance, or reject/cancel reversal.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: Entries are immutable once written. A correction is a new
     Adjustment entry, never an edit.
  2. FULL RECOGNITION: After any entry, the settled amount equals that
     entry's final amount. The current truth is always the LAST entry's
     final/settled value; callers must never sum or average across entries.
  3. INSERTION ORDER: "Previous entry" means highest insertion id, not the
     latest timestamp. Backfills can make the two disagree; insertion order
     wins.

PRECISION:
  Amounts use decimal.Decimal to avoid floating-point drift.

SEE ALSO:
  - ledger.go: Entry construction and the Ledger service
  - shipment/: Writes progression/reversal entries inside its transaction
*/
package revenue

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/shipment-engine/otif"
)

// =============================================================================
// KIND - Progression vs Adjustment
// =============================================================================

type Kind string

const (
	KindProgression Kind = "Progression"
	KindAdjustment  Kind = "Adjustment"
)

// =============================================================================
// PERIOD - Recognition year+month
// =============================================================================

type Period struct {
	Year  int
	Month time.Month
}

func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

// PeriodFromDate derives the period from a YYYY-MM-DD date string, the shape
// milestone payloads carry dates in.
func PeriodFromDate(date string) (Period, error) {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return Period{}, fmt.Errorf("invalid period date %q: %w", date, err)
	}
	return PeriodOf(t), nil
}

func (p Period) IsZero() bool { return p.Year == 0 && p.Month == 0 }

func (p Period) String() string { return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month)) }

// =============================================================================
// ENTRY - One revenue-affecting action on an order
// =============================================================================

// Entry is a single immutable ledger row.
type Entry struct {
	ID int64 // insertion order, assigned by the store

	OrderID    string
	QuoteRef   string
	CustomerID string
	Milestone  otif.Milestone
	Route      otif.Route
	Kind       Kind
	Period     Period

	// Initial is the previous entry's final amount; Final the newly agreed
	// amount; Adjustment their difference.
	Initial    decimal.Decimal
	Final      decimal.Decimal
	Adjustment decimal.Decimal

	// Display-only progression bookkeeping. The ledger always recognizes the
	// full final amount, so Settled == Final and Remaining == 0 on every
	// entry the current design produces.
	ProgressionPercent int
	Progress           int
	ProgressionAmount  decimal.Decimal
	Settled            decimal.Decimal
	Remaining          decimal.Decimal

	Actor     string
	CreatedAt time.Time
}

// Ref identifies the order an entry belongs to, plus the submitting actor.
type Ref struct {
	OrderID    string
	QuoteRef   string
	CustomerID string
	Route      otif.Route
	Actor      string
}
