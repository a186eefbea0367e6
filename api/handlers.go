/*
handlers.go - HTTP API handlers for the shipment engine

PURPOSE:
  Exposes the shipment lifecycle via REST. Handles HTTP request/response,
  JSON serialization, and delegates to the orchestrator and ledger.

ENDPOINTS:
  Shipments:
    GET    /api/shipments                         List shipments
    POST   /api/shipments                         Create from accepted bid
    GET    /api/shipments/{orderNumber}           Shipment + milestone history
    GET    /api/shipments/{orderNumber}/revenue   Ledger + recognized amount
    GET    /api/shipments/{orderNumber}/prices    Selling-price lines

  Milestones:
    POST   /api/shipments/{orderNumber}/milestones  Submit next milestone
    PUT    /api/shipments/{orderNumber}/milestones  Correct a recorded one

  Invoices:
    POST   /api/shipments/{orderNumber}/invoices    Register an invoice

ORDER NUMBERS IN URLS:
  Order numbers contain slashes (ORD/0007/20260615-0042-0102), so clients
  URL-encode them; the handler unescapes the route parameter.

ACTOR:
  The submitting user arrives in X-User-Id / X-User-Name headers. There is
  no authentication here; an upstream gateway owns that.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid body, unknown route, missing payload fields
  - 404: Unknown order or milestone event
  - 409: Sequence/transition violations, terminal shipments, duplicates
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - shipment/service.go: The orchestration these handlers delegate to
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/warp/shipment-engine/otif"
	"github.com/warp/shipment-engine/revenue"
	"github.com/warp/shipment-engine/shipment"
	"github.com/warp/shipment-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *shipment.Service
	Store   *sqlite.Store
	Ledger  *revenue.Ledger
}

// NewHandler creates a handler around the orchestrator and its store.
func NewHandler(svc *shipment.Service, store *sqlite.Store) *Handler {
	return &Handler{
		Service: svc,
		Store:   store,
		Ledger:  revenue.NewLedger(store),
	}
}

func actorFrom(r *http.Request) shipment.Actor {
	a := shipment.Actor{
		ID:   r.Header.Get("X-User-Id"),
		Name: r.Header.Get("X-User-Name"),
	}
	if a.ID == "" {
		a.ID = "system"
	}
	if a.Name == "" {
		a.Name = a.ID
	}
	return a
}

func orderNumberParam(r *http.Request) string {
	raw := chi.URLParam(r, "orderNumber")
	if decoded, err := url.PathUnescape(raw); err == nil {
		return decoded
	}
	return raw
}

// =============================================================================
// SHIPMENT HANDLERS
// =============================================================================

// ListShipments returns all shipments, newest first.
func (h *Handler) ListShipments(w http.ResponseWriter, r *http.Request) {
	shipments, err := h.Store.ListShipments(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list shipments", err)
		return
	}

	dtos := make([]ShipmentDTO, len(shipments))
	for i := range shipments {
		dtos[i] = toShipmentDTO(&shipments[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateShipment converts an accepted bid into a shipment.
func (h *Handler) CreateShipment(w http.ResponseWriter, r *http.Request) {
	var req CreateShipmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	lines := make([]shipment.PriceLine, 0, len(req.Lines))
	for _, l := range req.Lines {
		price, err := decimal.NewFromString(l.Price)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid price for component "+l.Component, err)
			return
		}
		lines = append(lines, shipment.PriceLine{
			Component: l.Component,
			UOM:       l.UOM,
			Price:     price,
		})
	}

	sh, err := h.Service.Create(r.Context(), actorFrom(r), shipment.CreateInput{
		QuoteRef:     req.QuoteRef,
		ClientID:     req.ClientID,
		CustomerID:   req.CustomerID,
		Route:        otif.Route(req.Route),
		ShipmentType: req.ShipmentType,
		Lines:        lines,
	})
	if err != nil {
		writeDomainError(w, "Failed to create shipment", err)
		return
	}

	writeJSON(w, http.StatusCreated, toShipmentDTO(sh))
}

// GetShipment returns one shipment with its milestone history.
func (h *Handler) GetShipment(w http.ResponseWriter, r *http.Request) {
	orderID := orderNumberParam(r)
	ctx := r.Context()

	sh, err := h.Store.GetShipment(ctx, orderID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get shipment", err)
		return
	}
	if sh == nil {
		writeError(w, http.StatusNotFound, "Shipment not found", nil)
		return
	}

	events, err := h.Store.ListEvents(ctx, orderID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list milestone events", err)
		return
	}

	detail := ShipmentDetailDTO{
		ShipmentDTO: toShipmentDTO(sh),
		Events:      make([]EventDTO, len(events)),
	}
	for i := range events {
		detail.Events[i] = toEventDTO(&events[i])
	}
	writeJSON(w, http.StatusOK, detail)
}

// GetPriceLines returns the order's selling-price lines.
func (h *Handler) GetPriceLines(w http.ResponseWriter, r *http.Request) {
	lines, err := h.Store.ListPriceLines(r.Context(), orderNumberParam(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list price lines", err)
		return
	}

	dtos := make([]PriceLineDTO, len(lines))
	for i, l := range lines {
		dtos[i] = toPriceLineDTO(l)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// MILESTONE HANDLERS
// =============================================================================

// SubmitMilestone records the next milestone for the order.
func (h *Handler) SubmitMilestone(w http.ResponseWriter, r *http.Request) {
	var req MilestoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	sh, event, err := h.Service.Advance(r.Context(), actorFrom(r), orderNumberParam(r), req.Submission)
	if err != nil {
		writeDomainError(w, "Milestone rejected", err)
		return
	}

	writeJSON(w, http.StatusOK, MilestoneResponse{
		Shipment: toShipmentDTO(sh),
		Event:    toEventDTO(event),
	})
}

// AmendMilestone corrects an already-recorded milestone.
func (h *Handler) AmendMilestone(w http.ResponseWriter, r *http.Request) {
	var req MilestoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	orderID := orderNumberParam(r)
	event, err := h.Service.Amend(r.Context(), actorFrom(r), orderID, req.Submission)
	if err != nil {
		writeDomainError(w, "Correction rejected", err)
		return
	}

	sh, err := h.Store.GetShipment(r.Context(), orderID)
	if err != nil || sh == nil {
		writeError(w, http.StatusInternalServerError, "Failed to reload shipment", err)
		return
	}

	writeJSON(w, http.StatusOK, MilestoneResponse{
		Shipment: toShipmentDTO(sh),
		Event:    toEventDTO(event),
	})
}

// =============================================================================
// REVENUE HANDLERS
// =============================================================================

// GetRevenue returns the order's ledger history and recognized amount.
func (h *Handler) GetRevenue(w http.ResponseWriter, r *http.Request) {
	orderID := orderNumberParam(r)
	ctx := r.Context()

	sh, err := h.Store.GetShipment(ctx, orderID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get shipment", err)
		return
	}
	if sh == nil {
		writeError(w, http.StatusNotFound, "Shipment not found", nil)
		return
	}

	entries, err := h.Ledger.Entries(ctx, orderID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list revenue entries", err)
		return
	}
	recognized, err := h.Ledger.Recognized(ctx, orderID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute recognized amount", err)
		return
	}

	dto := RevenueDTO{
		OrderNumber: orderID,
		Recognized:  recognized.String(),
		Entries:     make([]RevenueEntryDTO, len(entries)),
	}
	for i, e := range entries {
		dto.Entries[i] = toRevenueEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// INVOICE HANDLERS
// =============================================================================

// IssueInvoice registers an invoice against the order. Once past PENDING it
// closes the reject/cancel window.
func (h *Handler) IssueInvoice(w http.ResponseWriter, r *http.Request) {
	var req IssueInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	state := otif.InvoiceState(req.State)
	switch state {
	case otif.InvoicePending, otif.InvoiceIssued, otif.InvoiceSettled:
	default:
		writeError(w, http.StatusBadRequest, "Invalid invoice state", nil)
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid invoice amount", err)
		return
	}

	orderID := orderNumberParam(r)
	actor := actorFrom(r)
	now := time.Now()

	// The invoice write and the ledger adjustment land in one transaction:
	// an invoiced amount that differs from the recognized one adjusts the
	// ledger to the invoiced truth, or neither happens.
	err = h.Store.WithTx(r.Context(), func(tx shipment.Store) error {
		ctx := r.Context()

		sh, err := tx.GetShipment(ctx, orderID)
		if err != nil {
			return err
		}
		if sh == nil {
			return &shipment.NotFoundError{OrderID: orderID, What: "shipment"}
		}

		existing, err := tx.GetOpenInvoice(ctx, orderID)
		if err != nil {
			return err
		}
		if existing == nil {
			inv := &shipment.Invoice{
				OrderID:   orderID,
				State:     state,
				Amount:    amount,
				CreatedAt: now,
			}
			if err := tx.InsertInvoice(ctx, inv); err != nil {
				return err
			}
		} else {
			if err := tx.UpdateInvoiceState(ctx, orderID, state); err != nil {
				return err
			}
		}

		prev, err := tx.LatestEntry(ctx, orderID)
		if err != nil {
			return err
		}
		recognized := decimal.Zero
		if prev != nil {
			recognized = prev.Final
		}
		if recognized.Equal(amount) {
			return nil
		}

		ref := revenue.Ref{
			OrderID:    sh.OrderID,
			QuoteRef:   sh.QuoteRef,
			CustomerID: sh.CustomerID,
			Route:      sh.Route,
			Actor:      actor.ID,
		}
		adj := revenue.NextAdjustment(prev, ref, sh.Milestone, amount, revenue.PeriodOf(now), now)
		return tx.AppendEntry(ctx, &adj)
	})
	if err != nil {
		writeDomainError(w, "Failed to issue invoice", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps orchestrator errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, shipment.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, otif.ErrInvalidPayload), errors.Is(err, otif.ErrUnknownRoute):
		status = http.StatusBadRequest
	case errors.Is(err, otif.ErrOutOfSequence),
		errors.Is(err, otif.ErrIllegalTransition),
		errors.Is(err, shipment.ErrAlreadyTerminal),
		errors.Is(err, revenue.ErrProgressionExists):
		status = http.StatusConflict
	}
	writeError(w, status, message, err)
}
