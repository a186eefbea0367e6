package revenue_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/shipment-engine/otif"
	"github.com/warp/shipment-engine/revenue"
	"github.com/warp/shipment-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestLedger(t *testing.T) (*revenue.Ledger, *sqlite.Store) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ledger := revenue.NewLedger(store)
	return ledger, store
}

func orderRef(orderID string) revenue.Ref {
	return revenue.Ref{
		OrderID:    orderID,
		QuoteRef:   "RFQ-2026-0042",
		CustomerID: "cust-1",
		Route:      otif.RouteDoorToDoor,
		Actor:      "user-ops",
	}
}

func amount(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

var june = revenue.Period{Year: 2026, Month: time.June}

// =============================================================================
// PROGRESSION TESTS
// =============================================================================

func TestLedger_Progression_RecognizesFullAmount(t *testing.T) {
	// GIVEN: An order with no ledger history
	// WHEN: Recording the initial progression for 1500.50
	// THEN: The full amount is recognized immediately

	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	e, err := ledger.RecordProgression(ctx, orderRef("ORD-1"), amount("1500.50"), june)
	require.NoError(t, err)

	assert.Equal(t, revenue.KindProgression, e.Kind)
	assert.True(t, e.Initial.IsZero(), "initial starts at zero")
	assert.True(t, e.Final.Equal(amount("1500.50")))
	assert.True(t, e.Adjustment.IsZero(), "progression carries no adjustment")
	assert.Equal(t, 100, e.ProgressionPercent)
	assert.Equal(t, 100, e.Progress)
	assert.True(t, e.ProgressionAmount.Equal(amount("1500.50")))
	assert.True(t, e.Settled.Equal(amount("1500.50")), "settled equals final")
	assert.True(t, e.Remaining.IsZero(), "nothing remains unrecognized")

	recognized, err := ledger.Recognized(ctx, "ORD-1")
	require.NoError(t, err)
	assert.True(t, recognized.Equal(amount("1500.50")))
}

func TestLedger_Progression_SecondAttempt_Rejected(t *testing.T) {
	// GIVEN: An order that already has its progression entry
	// WHEN: Recording a second progression
	// THEN: Rejected with ErrProgressionExists, ledger unchanged

	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.RecordProgression(ctx, orderRef("ORD-1"), amount("1000"), june)
	require.NoError(t, err)

	_, err = ledger.RecordProgression(ctx, orderRef("ORD-1"), amount("2000"), june)
	assert.ErrorIs(t, err, revenue.ErrProgressionExists)

	entries, err := ledger.Entries(ctx, "ORD-1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLedger_Progression_DifferentOrders_Independent(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.RecordProgression(ctx, orderRef("ORD-1"), amount("1000"), june)
	require.NoError(t, err)
	_, err = ledger.RecordProgression(ctx, orderRef("ORD-2"), amount("2000"), june)
	require.NoError(t, err)

	r1, err := ledger.Recognized(ctx, "ORD-1")
	require.NoError(t, err)
	r2, err := ledger.Recognized(ctx, "ORD-2")
	require.NoError(t, err)

	assert.True(t, r1.Equal(amount("1000")))
	assert.True(t, r2.Equal(amount("2000")))
}

// =============================================================================
// ADJUSTMENT CHAIN TESTS
// =============================================================================

func TestLedger_Adjustment_ChainsFromPreviousFinal(t *testing.T) {
	// GIVEN: Progression of 1000, then adjustment to 1200
	// WHEN: Adjusting again to 800
	// THEN: Each entry's initial is the previous entry's final, and the
	//       recognized amount is always the LAST entry's final

	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	ref := orderRef("ORD-1")

	_, err := ledger.RecordProgression(ctx, ref, amount("1000"), june)
	require.NoError(t, err)

	e2, err := ledger.RecordAdjustment(ctx, ref, otif.MilestoneBooked, amount("1200"), june)
	require.NoError(t, err)
	assert.True(t, e2.Initial.Equal(amount("1000")))
	assert.True(t, e2.Final.Equal(amount("1200")))
	assert.True(t, e2.Adjustment.Equal(amount("200")))

	e3, err := ledger.RecordAdjustment(ctx, ref, otif.MilestoneBooked, amount("800"), june)
	require.NoError(t, err)
	assert.True(t, e3.Initial.Equal(amount("1200")))
	assert.True(t, e3.Final.Equal(amount("800")))
	assert.True(t, e3.Adjustment.Equal(amount("-400")))

	recognized, err := ledger.Recognized(ctx, "ORD-1")
	require.NoError(t, err)
	assert.True(t, recognized.Equal(amount("800")), "recognized is the last final, never a sum")
}

func TestLedger_Adjustment_SettledAlwaysEqualsFinal(t *testing.T) {
	// GIVEN: A chain of progression + several adjustments
	// THEN: On every entry, settled == final and remaining == 0

	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	ref := orderRef("ORD-1")

	_, err := ledger.RecordProgression(ctx, ref, amount("500"), june)
	require.NoError(t, err)
	for _, final := range []string{"750", "600", "0", "300"} {
		_, err = ledger.RecordAdjustment(ctx, ref, otif.MilestoneBooked, amount(final), june)
		require.NoError(t, err)
	}

	entries, err := ledger.Entries(ctx, "ORD-1")
	require.NoError(t, err)
	require.Len(t, entries, 5)

	for _, e := range entries {
		assert.True(t, e.Settled.Equal(e.Final), "entry %d: settled must equal final", e.ID)
		assert.True(t, e.Remaining.IsZero(), "entry %d: remaining must be zero", e.ID)
	}
}

func TestLedger_ReversalToZero(t *testing.T) {
	// GIVEN: An order recognizing 2500
	// WHEN: A reject reverses it to zero
	// THEN: The adjustment is the exact negative of the recognized amount

	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	ref := orderRef("ORD-1")

	_, err := ledger.RecordProgression(ctx, ref, amount("2500"), june)
	require.NoError(t, err)

	e, err := ledger.RecordAdjustment(ctx, ref, otif.MilestoneRejected, decimal.Zero, june)
	require.NoError(t, err)

	assert.Equal(t, revenue.KindAdjustment, e.Kind)
	assert.Equal(t, otif.MilestoneRejected, e.Milestone)
	assert.True(t, e.Initial.Equal(amount("2500")))
	assert.True(t, e.Final.IsZero())
	assert.True(t, e.Adjustment.Equal(amount("-2500")))
	assert.Equal(t, 0, e.ProgressionPercent)
	assert.Equal(t, 100, e.Progress)
	assert.True(t, e.ProgressionAmount.IsZero())
	assert.True(t, e.Settled.IsZero())
	assert.True(t, e.Remaining.IsZero())

	recognized, err := ledger.Recognized(ctx, "ORD-1")
	require.NoError(t, err)
	assert.True(t, recognized.IsZero())
}

func TestLedger_Adjustment_NoHistory_InitialZero(t *testing.T) {
	// GIVEN: An order with no ledger history
	// WHEN: Recording an adjustment directly
	// THEN: Initial is zero, adjustment equals the new final

	ledger, _ := newTestLedger(t)
	ctx := context.Background()

	e, err := ledger.RecordAdjustment(ctx, orderRef("ORD-1"), otif.MilestoneBooked, amount("400"), june)
	require.NoError(t, err)

	assert.True(t, e.Initial.IsZero())
	assert.True(t, e.Adjustment.Equal(amount("400")))
}

// =============================================================================
// INSERTION ORDER TESTS
// =============================================================================

func TestLedger_LatestEntry_ByInsertionOrder_NotTimestamp(t *testing.T) {
	// GIVEN: A backfilled entry whose created_at PREDATES the previous entry
	// WHEN: Asking for the latest entry
	// THEN: Insertion order wins; the chain continues from the backfill

	ledger, store := newTestLedger(t)
	ctx := context.Background()
	ref := orderRef("ORD-1")

	// Entry written "now"
	ledger.Now = func() time.Time { return time.Date(2026, time.June, 15, 12, 0, 0, 0, time.UTC) }
	_, err := ledger.RecordProgression(ctx, ref, amount("1000"), june)
	require.NoError(t, err)

	// Backfilled entry with an EARLIER timestamp
	ledger.Now = func() time.Time { return time.Date(2026, time.June, 1, 9, 0, 0, 0, time.UTC) }
	_, err = ledger.RecordAdjustment(ctx, ref, otif.MilestoneBooked, amount("1100"), june)
	require.NoError(t, err)

	latest, err := store.LatestEntry(ctx, "ORD-1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, latest.Final.Equal(amount("1100")), "latest must be the backfill (highest id)")

	// The next adjustment chains from the backfill, not the newest timestamp
	ledger.Now = time.Now
	e, err := ledger.RecordAdjustment(ctx, ref, otif.MilestoneBooked, amount("900"), june)
	require.NoError(t, err)
	assert.True(t, e.Initial.Equal(amount("1100")))
}

func TestLedger_Entries_InInsertionOrder(t *testing.T) {
	ledger, _ := newTestLedger(t)
	ctx := context.Background()
	ref := orderRef("ORD-1")

	_, err := ledger.RecordProgression(ctx, ref, amount("100"), june)
	require.NoError(t, err)
	_, err = ledger.RecordAdjustment(ctx, ref, otif.MilestoneBooked, amount("200"), june)
	require.NoError(t, err)
	_, err = ledger.RecordAdjustment(ctx, ref, otif.MilestoneBooked, amount("300"), june)
	require.NoError(t, err)

	entries, err := ledger.Entries(ctx, "ORD-1")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	for i := 1; i < len(entries); i++ {
		assert.Greater(t, entries[i].ID, entries[i-1].ID, "ids must be strictly increasing")
	}
	assert.True(t, entries[0].Final.Equal(amount("100")))
	assert.True(t, entries[2].Final.Equal(amount("300")))
}

// =============================================================================
// PERIOD TESTS
// =============================================================================

func TestPeriodFromDate(t *testing.T) {
	p, err := revenue.PeriodFromDate("2026-06-15")
	require.NoError(t, err)
	assert.Equal(t, 2026, p.Year)
	assert.Equal(t, time.June, p.Month)

	_, err = revenue.PeriodFromDate("15/06/2026")
	assert.Error(t, err, "non-ISO dates are rejected")
}

func TestStore_UpdateEntryPeriods_MilestoneScopedPlusProgression(t *testing.T) {
	// GIVEN: An order with the progression entry plus adjustments recorded
	//        under Pickup and Departure, all recognized in June
	// WHEN: Rewriting the Pickup recognition period to July
	// THEN: The Pickup adjustment and the progression entry move; the
	//       Departure adjustment keeps June, and other orders are untouched

	ledger, store := newTestLedger(t)
	ctx := context.Background()

	_, err := ledger.RecordProgression(ctx, orderRef("ORD-1"), amount("1000"), june)
	require.NoError(t, err)
	_, err = ledger.RecordAdjustment(ctx, orderRef("ORD-1"), otif.MilestonePickup, amount("1200"), june)
	require.NoError(t, err)
	_, err = ledger.RecordAdjustment(ctx, orderRef("ORD-1"), otif.MilestoneDeparture, amount("1100"), june)
	require.NoError(t, err)
	_, err = ledger.RecordProgression(ctx, orderRef("ORD-2"), amount("500"), june)
	require.NoError(t, err)

	july := revenue.Period{Year: 2026, Month: time.July}
	require.NoError(t, store.UpdateEntryPeriods(ctx, "ORD-1", otif.MilestonePickup, july))

	entries, err := ledger.Entries(ctx, "ORD-1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, july, entries[0].Period, "progression entry follows the corrected period")
	assert.Equal(t, july, entries[1].Period, "the amended milestone's entry moves")
	assert.Equal(t, june, entries[2].Period, "other milestones keep their period")

	other, err := ledger.Entries(ctx, "ORD-2")
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.Equal(t, june, other[0].Period)
}

// =============================================================================
// PERSISTENCE ROUND-TRIP
// =============================================================================

func TestStore_EntryRoundTrip(t *testing.T) {
	_, store := newTestLedger(t)
	ctx := context.Background()

	now := time.Date(2026, time.June, 15, 10, 30, 0, 0, time.UTC)
	e := revenue.NewProgression(orderRef("ORD-1"), amount("1234.56"), june, now)
	require.NoError(t, store.AppendEntry(ctx, &e))
	assert.NotZero(t, e.ID, "append assigns the insertion id")

	loaded, err := store.LatestEntry(ctx, "ORD-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, e.ID, loaded.ID)
	assert.Equal(t, "RFQ-2026-0042", loaded.QuoteRef)
	assert.Equal(t, "cust-1", loaded.CustomerID)
	assert.Equal(t, otif.RouteDoorToDoor, loaded.Route)
	assert.Equal(t, june, loaded.Period)
	assert.True(t, loaded.Final.Equal(amount("1234.56")), "decimal amounts survive storage exactly")
	assert.Equal(t, "user-ops", loaded.Actor)
}
