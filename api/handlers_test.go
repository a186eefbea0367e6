package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/shipment-engine/api"
	"github.com/warp/shipment-engine/notify"
	"github.com/warp/shipment-engine/reminder"
	"github.com/warp/shipment-engine/shipment"
	"github.com/warp/shipment-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestRouter(t *testing.T) http.Handler {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	sched := reminder.NewTimerScheduler()
	t.Cleanup(sched.Stop)

	svc := shipment.NewService(store, sched, notify.LogNotifier{}, store)
	h := api.NewHandler(svc, store)
	return api.NewRouter(h, []string{"*"})
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-Id", "user-ops")
	req.Header.Set("X-User-Name", "Ops One")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeInto(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func createShipment(t *testing.T, router http.Handler, route string) api.ShipmentDTO {
	t.Helper()

	rec := doJSON(t, router, http.MethodPost, "/api/shipments", api.CreateShipmentRequest{
		QuoteRef:     "RFQ-2026-0042",
		ClientID:     "7",
		CustomerID:   "cust-1",
		Route:        route,
		ShipmentType: "SEALCL",
		Lines: []api.PriceLineInput{
			{Component: "Freight", UOM: "container", Price: "1200"},
			{Component: "Handling", UOM: "shipment", Price: "300.50"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var dto api.ShipmentDTO
	decodeInto(t, rec, &dto)
	return dto
}

func shipmentPath(orderNumber string, suffix string) string {
	return "/api/shipments/" + url.PathEscape(orderNumber) + suffix
}

func scheduledBody() map[string]any {
	return map[string]any{
		"milestone":     "SCHEDULED",
		"document_date": "2026-06-01",
		"etd":           map[string]string{"date": "2099-06-10", "time": "10:00", "zone": "Asia/Jakarta"},
		"eta":           map[string]string{"date": "2099-06-20", "time": "14:00", "zone": "Asia/Singapore"},
	}
}

// =============================================================================
// SHIPMENT ENDPOINTS
// =============================================================================

func TestAPI_CreateShipment(t *testing.T) {
	router := newTestRouter(t)

	dto := createShipment(t, router, "Port to Port")

	assert.Contains(t, dto.OrderNumber, "ORD/0007/")
	assert.Equal(t, "BOOKED", dto.Milestone)
	assert.Equal(t, "WAITING", dto.Status)
	assert.Equal(t, 0, dto.Progress)
}

func TestAPI_CreateShipment_UnknownRoute(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/shipments", api.CreateShipmentRequest{
		QuoteRef: "RFQ-1", Route: "Door to Moon",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_GetShipment_WithEncodedOrderNumber(t *testing.T) {
	// Order numbers contain slashes; the client must URL-encode them.
	router := newTestRouter(t)
	created := createShipment(t, router, "Port to Port")

	rec := doJSON(t, router, http.MethodGet, shipmentPath(created.OrderNumber, "/"), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var detail api.ShipmentDetailDTO
	decodeInto(t, rec, &detail)
	assert.Equal(t, created.OrderNumber, detail.OrderNumber)
	assert.Empty(t, detail.Events)
}

func TestAPI_GetShipment_NotFound(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, shipmentPath("ORD/0001/nope", "/"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// MILESTONE ENDPOINTS
// =============================================================================

func TestAPI_SubmitMilestone_Accepted(t *testing.T) {
	router := newTestRouter(t)
	created := createShipment(t, router, "Port to Port")

	rec := doJSON(t, router, http.MethodPost, shipmentPath(created.OrderNumber, "/milestones"), scheduledBody())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp api.MilestoneResponse
	decodeInto(t, rec, &resp)
	assert.Equal(t, "SCHEDULED", resp.Shipment.Milestone)
	assert.Equal(t, "WAITING", resp.Shipment.Status)
	assert.Equal(t, "SCHEDULED", resp.Event.Milestone)
	assert.Equal(t, "user-ops", resp.Event.CreatedBy)

	var details map[string]any
	require.NoError(t, json.Unmarshal(resp.Event.Details, &details), "event details decode as plain JSON")
	assert.Equal(t, "2026-06-01", details["document_date"])
}

func TestAPI_SubmitMilestone_OutOfSequence_Conflict(t *testing.T) {
	router := newTestRouter(t)
	created := createShipment(t, router, "Port to Port")

	rec := doJSON(t, router, http.MethodPost, shipmentPath(created.OrderNumber, "/milestones"), map[string]any{
		"milestone":       "DEPARTURE",
		"document_date":   "2026-06-10",
		"location":        "Jakarta",
		"port_of_loading": "IDTPP",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	var errResp api.ErrorResponse
	decodeInto(t, rec, &errResp)
	assert.Contains(t, errResp.Details, "SCHEDULED")
}

func TestAPI_SubmitMilestone_MissingFields_BadRequest(t *testing.T) {
	router := newTestRouter(t)
	created := createShipment(t, router, "Port to Port")

	rec := doJSON(t, router, http.MethodPost, shipmentPath(created.OrderNumber, "/milestones"), map[string]any{
		"milestone":     "SCHEDULED",
		"document_date": "2026-06-01",
		// no etd/eta
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_AmendMilestone(t *testing.T) {
	router := newTestRouter(t)
	created := createShipment(t, router, "Port to Port")

	rec := doJSON(t, router, http.MethodPost, shipmentPath(created.OrderNumber, "/milestones"), scheduledBody())
	require.Equal(t, http.StatusOK, rec.Code)

	body := scheduledBody()
	body["document_date"] = "2026-06-02"
	rec = doJSON(t, router, http.MethodPut, shipmentPath(created.OrderNumber, "/milestones"), body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp api.MilestoneResponse
	decodeInto(t, rec, &resp)
	assert.Equal(t, "SCHEDULED", resp.Shipment.Milestone, "correction does not move the milestone")

	var details map[string]any
	require.NoError(t, json.Unmarshal(resp.Event.Details, &details))
	assert.Equal(t, "2026-06-02", details["document_date"])
}

func TestAPI_AmendMilestone_NeverRecorded_NotFound(t *testing.T) {
	router := newTestRouter(t)
	created := createShipment(t, router, "Port to Port")

	rec := doJSON(t, router, http.MethodPut, shipmentPath(created.OrderNumber, "/milestones"), scheduledBody())
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// REVENUE + INVOICE ENDPOINTS
// =============================================================================

func TestAPI_GetRevenue_AfterReject(t *testing.T) {
	router := newTestRouter(t)
	created := createShipment(t, router, "Port to Port")

	rec := doJSON(t, router, http.MethodPost, shipmentPath(created.OrderNumber, "/milestones"), map[string]any{
		"milestone":      "REJECTED",
		"failure_reason": "customer withdrew",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodGet, shipmentPath(created.OrderNumber, "/revenue"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var dto api.RevenueDTO
	decodeInto(t, rec, &dto)
	assert.Equal(t, "0", dto.Recognized)
	require.Len(t, dto.Entries, 2)
	assert.Equal(t, "Progression", dto.Entries[0].Kind)
	assert.Equal(t, "1500.5", dto.Entries[0].Final)
	assert.Equal(t, "Adjustment", dto.Entries[1].Kind)
	assert.Equal(t, "-1500.5", dto.Entries[1].Adjustment)
}

func TestAPI_IssueInvoice_AdjustsLedgerToInvoicedAmount(t *testing.T) {
	// GIVEN: A shipment recognizing 1500.50
	// WHEN: An invoice is issued over 1600
	// THEN: The ledger moves to the invoiced amount, and a later cancel
	//       attempt conflicts because the invoice is past PENDING

	router := newTestRouter(t)
	created := createShipment(t, router, "Port to Port")

	rec := doJSON(t, router, http.MethodPost, shipmentPath(created.OrderNumber, "/invoices"), api.IssueInvoiceRequest{
		State: "ISSUED", Amount: "1600",
	})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodGet, shipmentPath(created.OrderNumber, "/revenue"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var dto api.RevenueDTO
	decodeInto(t, rec, &dto)
	assert.Equal(t, "1600", dto.Recognized)

	rec = doJSON(t, router, http.MethodPost, shipmentPath(created.OrderNumber, "/milestones"), map[string]any{
		"milestone":      "CANCELLED",
		"failure_reason": "too late",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAPI_IssueInvoice_RepriceAdjustsOnce(t *testing.T) {
	// GIVEN: An issued invoice over 1600 against 1500.50 recognized
	// WHEN: The invoice is re-issued at the same amount, then repriced
	// THEN: An unchanged amount writes no entry; the reprice writes one

	router := newTestRouter(t)
	created := createShipment(t, router, "Port to Port")

	rec := doJSON(t, router, http.MethodPost, shipmentPath(created.OrderNumber, "/invoices"), api.IssueInvoiceRequest{
		State: "ISSUED", Amount: "1600",
	})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodPost, shipmentPath(created.OrderNumber, "/invoices"), api.IssueInvoiceRequest{
		State: "ISSUED", Amount: "1600",
	})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodPost, shipmentPath(created.OrderNumber, "/invoices"), api.IssueInvoiceRequest{
		State: "ISSUED", Amount: "1500",
	})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, router, http.MethodGet, shipmentPath(created.OrderNumber, "/revenue"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var dto api.RevenueDTO
	decodeInto(t, rec, &dto)
	assert.Equal(t, "1500", dto.Recognized)
	require.Len(t, dto.Entries, 3, "progression + one adjustment per amount change")
	assert.Equal(t, "1600", dto.Entries[1].Final)
	assert.Equal(t, "1500", dto.Entries[2].Final)
}

func TestAPI_IssueInvoice_UnknownOrder_NotFound(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, shipmentPath("ORD/0001/nope", "/invoices"), api.IssueInvoiceRequest{
		State: "ISSUED", Amount: "100",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_Healthz(t *testing.T) {
	router := newTestRouter(t)

	rec := doJSON(t, router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
