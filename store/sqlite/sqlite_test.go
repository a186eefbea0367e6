package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/shipment-engine/otif"
	"github.com/warp/shipment-engine/shipment"
	"github.com/warp/shipment-engine/store/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedShipment(t *testing.T, store *sqlite.Store, orderID string) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, store.InsertShipment(context.Background(), &shipment.Shipment{
		OrderID:    orderID,
		QuoteRef:   "RFQ-1",
		CustomerID: "cust-1",
		Route:      otif.RoutePortToPort,
		Status:     otif.StatusWaiting,
		Milestone:  otif.MilestoneBooked,
		CreatedBy:  "user-ops",
		CreatedAt:  now,
		UpdatedAt:  now,
	}))
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestWithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: A transaction that inserts a shipment and then fails
	// WHEN: WithTx returns the error
	// THEN: The shipment insert is rolled back

	store := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	now := time.Now().UTC()
	err := store.WithTx(ctx, func(tx shipment.Store) error {
		if err := tx.InsertShipment(ctx, &shipment.Shipment{
			OrderID:    "ORD/0001/x",
			QuoteRef:   "RFQ-1",
			CustomerID: "cust-1",
			Route:      otif.RoutePortToPort,
			Status:     otif.StatusWaiting,
			Milestone:  otif.MilestoneBooked,
			CreatedBy:  "user-ops",
			CreatedAt:  now,
			UpdatedAt:  now,
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	sh, err := store.GetShipment(ctx, "ORD/0001/x")
	require.NoError(t, err)
	assert.Nil(t, sh, "rolled-back insert must not be visible")
}

func TestWithTx_CommitsAllOrNothing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedShipment(t, store, "ORD/0001/y")

	now := time.Now().UTC()
	err := store.WithTx(ctx, func(tx shipment.Store) error {
		if err := tx.UpdateShipmentProgress(ctx, "ORD/0001/y", otif.MilestoneScheduled, otif.StatusWaiting, "user-ops"); err != nil {
			return err
		}
		return tx.UpsertEvent(ctx, &shipment.MilestoneEvent{
			OrderID:   "ORD/0001/y",
			Milestone: otif.MilestoneScheduled,
			Details:   otif.ScheduledDetails{DocumentDate: "2026-06-01"},
			CreatedBy: "user-ops",
			UpdatedBy: "user-ops",
			CreatedAt: now,
			UpdatedAt: now,
		})
	})
	require.NoError(t, err)

	sh, err := store.GetShipment(ctx, "ORD/0001/y")
	require.NoError(t, err)
	require.NotNil(t, sh)
	assert.Equal(t, otif.MilestoneScheduled, sh.Milestone)

	ev, err := store.GetEvent(ctx, "ORD/0001/y", otif.MilestoneScheduled)
	require.NoError(t, err)
	require.NotNil(t, ev)
}

// =============================================================================
// EVENTS
// =============================================================================

func TestUpsertEvent_SecondWriteUpdatesInPlace(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedShipment(t, store, "ORD/0001/z")

	now := time.Now().UTC()
	first := &shipment.MilestoneEvent{
		OrderID:   "ORD/0001/z",
		Milestone: otif.MilestoneScheduled,
		Details:   otif.ScheduledDetails{DocumentDate: "2026-06-01"},
		CreatedBy: "user-ops",
		UpdatedBy: "user-ops",
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, store.UpsertEvent(ctx, first))

	second := *first
	second.Details = otif.ScheduledDetails{DocumentDate: "2026-06-02"}
	second.UpdatedBy = "user-two"
	require.NoError(t, store.UpsertEvent(ctx, &second))

	events, err := store.ListEvents(ctx, "ORD/0001/z")
	require.NoError(t, err)
	require.Len(t, events, 1, "amendment must not create a second row")
	assert.Equal(t, "user-ops", events[0].CreatedBy, "original submitter survives amendment")
	assert.Equal(t, "user-two", events[0].UpdatedBy)

	details, ok := events[0].Details.(otif.ScheduledDetails)
	require.True(t, ok)
	assert.Equal(t, "2026-06-02", details.DocumentDate)
}

// =============================================================================
// INVOICES
// =============================================================================

func TestSoftCancelInvoice_HidesFromOpenLookup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seedShipment(t, store, "ORD/0001/w")

	require.NoError(t, store.InsertInvoice(ctx, &shipment.Invoice{
		OrderID:   "ORD/0001/w",
		State:     otif.InvoicePending,
		Amount:    decimal.NewFromInt(500),
		CreatedAt: time.Now().UTC(),
	}))

	inv, err := store.GetOpenInvoice(ctx, "ORD/0001/w")
	require.NoError(t, err)
	require.NotNil(t, inv)
	assert.True(t, inv.Amount.Equal(decimal.NewFromInt(500)))

	require.NoError(t, store.SoftCancelInvoice(ctx, "ORD/0001/w", "user-ops"))

	inv, err = store.GetOpenInvoice(ctx, "ORD/0001/w")
	require.NoError(t, err)
	assert.Nil(t, inv)
}

// =============================================================================
// CONTACTS
// =============================================================================

func TestUserPhone_OnlyVerifiedPhonesReturned(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveUser(ctx, sqlite.User{
		ID: "user-ops", Name: "Ops One", Phone: "+628111222333", PhoneVerified: true,
	}))
	require.NoError(t, store.SaveUser(ctx, sqlite.User{
		ID: "user-two", Name: "Ops Two", Phone: "+628999888777", PhoneVerified: false,
	}))

	phone, err := store.UserPhone(ctx, "user-ops")
	require.NoError(t, err)
	assert.Equal(t, "+628111222333", phone)

	phone, err = store.UserPhone(ctx, "user-two")
	require.NoError(t, err)
	assert.Empty(t, phone, "unverified phone must not be handed out")

	phone, err = store.UserPhone(ctx, "user-none")
	require.NoError(t, err)
	assert.Empty(t, phone)
}

func TestCustomerContact_UnknownCustomerIsEmpty(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveCustomer(ctx, sqlite.Customer{
		ID: "cust-1", CompanyName: "PT Nusantara Trading", Phone: "+62215550100", Email: "ops@nusantara.example",
	}))

	contact, err := store.CustomerContact(ctx, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, "PT Nusantara Trading", contact.CompanyName)

	contact, err = store.CustomerContact(ctx, "cust-404")
	require.NoError(t, err)
	assert.Empty(t, contact.CompanyName)
	assert.Empty(t, contact.Phone)
}
