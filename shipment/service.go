/*
service.go - Shipment lifecycle orchestration

PURPOSE:
  The coordinating service over the three coupled cores:
  1. otif rules decide whether a transition is legal
  2. the revenue ledger gets a progression entry at creation and a reversal
     adjustment on reject/cancel
  3. the reminder scheduler tracks the latest planned ETD/ETA

REQUEST FLOW (Advance):
  Received -> Validated -> Persisted -> Timers -> Notified
  - Load, validation, and writes share one store transaction; the store's
    write lock serializes concurrent submissions for the same order, so a
    transition is always validated against the committed current milestone
  - Shipment, event, invoice soft-cancel and ledger entry commit as one
    transaction; domain errors roll back and leave no partial state
  - Timer changes and notifications run after the commit; their failures are
    logged and never surfaced to the caller, because the authoritative state
    change has already succeeded

ADVANCE vs AMEND:
  Advancing records a NEW milestone; amending corrects an already-recorded
  one (same submission shape). They share the payload construction core but
  are separate operations: an amend never moves the shipment's milestone,
  it rewrites the event's fields and the recognition period of that
  milestone's revenue entries.

SEE ALSO:
  - otif/rules.go: Transition validation
  - revenue/ledger.go: Entry builders used inside the transaction
  - reminder/scheduler.go: Timer registry
*/
package shipment

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/shipment-engine/metrics"
	"github.com/warp/shipment-engine/notify"
	"github.com/warp/shipment-engine/otif"
	"github.com/warp/shipment-engine/reminder"
	"github.com/warp/shipment-engine/revenue"
)

// Service orchestrates the shipment lifecycle.
type Service struct {
	Store     TxStore
	Scheduler reminder.Scheduler
	Notifier  notify.Notifier
	Contacts  Contacts

	// Reference is the timezone reminder instants are expressed in.
	Reference *time.Location
	// Lead is how far before a planned ETD/ETA the reminder fires.
	Lead time.Duration
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// NewService wires a service with the default two-hour lead and reference
// timezone.
func NewService(store TxStore, sched reminder.Scheduler, notifier notify.Notifier, contacts Contacts) *Service {
	ref, err := time.LoadLocation(reminder.DefaultReferenceZone)
	if err != nil {
		ref = time.UTC
	}
	return &Service{
		Store:     store,
		Scheduler: sched,
		Notifier:  notifier,
		Contacts:  contacts,
		Reference: ref,
		Lead:      reminder.DefaultLead,
		Now:       time.Now,
	}
}

// =============================================================================
// CREATE - Quotation converts to a shipment
// =============================================================================

// CreateInput carries what the accepted bid settled on.
type CreateInput struct {
	QuoteRef     string
	ClientID     string
	CustomerID   string
	Route        otif.Route
	ShipmentType string
	Lines        []PriceLine
}

// Create persists a new shipment at Booked together with its selling-price
// lines and the order's single progression revenue entry, atomically.
// Reimbursement lines are excluded from the recognized amount.
func (s *Service) Create(ctx context.Context, actor Actor, in CreateInput) (*Shipment, error) {
	if !in.Route.Valid() {
		return nil, otif.ErrUnknownRoute
	}
	if in.QuoteRef == "" {
		return nil, fmt.Errorf("quote reference required: %w", otif.ErrInvalidPayload)
	}

	now := s.Now()
	orderID := OrderNumber(in.ClientID, in.QuoteRef, in.ShipmentType, now)

	sh := &Shipment{
		OrderID:    orderID,
		QuoteRef:   in.QuoteRef,
		CustomerID: in.CustomerID,
		Route:      in.Route,
		Status:     otif.StatusWaiting,
		Milestone:  otif.MilestoneBooked,
		CreatedBy:  actor.ID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	lines := make([]PriceLine, len(in.Lines))
	for i, l := range in.Lines {
		l.OrderID = orderID
		l.CreatedBy = actor.ID
		lines[i] = l
	}

	progression := revenue.NewProgression(s.revenueRef(sh, actor), SellableTotal(lines), revenue.PeriodOf(now), now)

	err := s.Store.WithTx(ctx, func(tx Store) error {
		if err := tx.InsertShipment(ctx, sh); err != nil {
			return err
		}
		if len(lines) > 0 {
			if err := tx.InsertPriceLines(ctx, lines); err != nil {
				return err
			}
		}
		return tx.AppendEntry(ctx, &progression)
	})
	if err != nil {
		return nil, err
	}

	metrics.RevenueEntryWritten(string(revenue.KindProgression))
	log.Printf("[Lifecycle] Created shipment %s (%s) recognizing %s", orderID, sh.Route, progression.Final)
	return sh, nil
}

// =============================================================================
// ADVANCE - Record a new milestone
// =============================================================================

// Advance validates and records the next milestone for an order. On success
// the shipment's milestone/status, the new event, and — for reject/cancel —
// the invoice soft-cancel and the zeroing adjustment entry have all
// committed; reminder timers and outbound notifications follow best-effort.
func (s *Service) Advance(ctx context.Context, actor Actor, orderID string, sub otif.Submission) (*Shipment, *MilestoneEvent, error) {
	now := s.Now()

	// Load, validate, and write under the one transaction. The store holds
	// its write lock across the whole unit, so two concurrent submissions
	// for the same order can never both validate against the same current
	// milestone: the loser re-reads the winner's committed state.
	var (
		sh      *Shipment
		invoice *Invoice
		tr      otif.Transition
		details otif.EventDetails
		event   *MilestoneEvent
	)
	err := s.Store.WithTx(ctx, func(tx Store) error {
		var err error
		sh, err = tx.GetShipment(ctx, orderID)
		if err != nil {
			return err
		}
		if sh == nil {
			return &NotFoundError{OrderID: orderID, What: "shipment"}
		}
		if sh.Status == otif.StatusFailed || sh.Status == otif.StatusComplete {
			return &AlreadyTerminalError{OrderID: orderID, Status: sh.Status}
		}

		invoice, err = tx.GetOpenInvoice(ctx, orderID)
		if err != nil {
			return err
		}
		invoiceState := otif.InvoiceAbsent
		if invoice != nil {
			invoiceState = invoice.State
		}

		tr, err = otif.ValidateTransition(sh.Route, sh.Milestone, sub.Milestone, invoiceState)
		if err != nil {
			return err
		}

		details, err = otif.BuildDetails(tr.Milestone, sub)
		if err != nil {
			return err
		}

		event = &MilestoneEvent{
			OrderID:   orderID,
			Milestone: tr.Milestone,
			Details:   details,
			CreatedBy: actor.ID,
			CreatedAt: now,
			UpdatedAt: now,
		}

		if err := tx.UpdateShipmentProgress(ctx, orderID, tr.Milestone, tr.Status, actor.ID); err != nil {
			return err
		}
		if err := tx.UpsertEvent(ctx, event); err != nil {
			return err
		}

		if tr.Milestone.IsTerminalFailure() {
			if invoice != nil {
				if err := tx.SoftCancelInvoice(ctx, orderID, actor.ID); err != nil {
					return err
				}
			}

			// Revert everything recognized so far: one adjustment down to zero.
			prev, err := tx.LatestEntry(ctx, orderID)
			if err != nil {
				return err
			}
			reversal := revenue.NextAdjustment(prev, s.revenueRef(sh, actor), tr.Milestone, decimal.Zero, revenue.PeriodOf(now), now)
			if err := tx.AppendEntry(ctx, &reversal); err != nil {
				return err
			}
			metrics.RevenueEntryWritten(string(revenue.KindAdjustment))
		}
		return nil
	})
	if err != nil {
		if IsDomainError(err) {
			metrics.MilestoneSubmitted(string(sub.Milestone), metrics.ResultRejected)
		}
		return nil, nil, err
	}

	sh.Milestone = tr.Milestone
	sh.Status = tr.Status
	sh.UpdatedAt = now
	metrics.MilestoneSubmitted(string(tr.Milestone), metrics.ResultAccepted)

	// Timer changes happen after the commit; the state change is already
	// authoritative even if scheduling fails.
	switch {
	case tr.Milestone == otif.MilestoneScheduled:
		s.scheduleReminders(orderID, details.(otif.ScheduledDetails))
	case tr.Milestone.IsTerminalFailure():
		s.Scheduler.Cancel(orderID, reminder.KindETD)
		s.Scheduler.Cancel(orderID, reminder.KindETA)
	}

	s.notifyMilestone(ctx, sh, event)

	return sh, event, nil
}

// =============================================================================
// AMEND - Correct an already-recorded milestone
// =============================================================================

// Amend rewrites the fields of a milestone the order has already recorded.
// The shipment's milestone does not move. Corrections to the milestone's
// date also move that milestone's revenue entries into the corrected
// period; a corrected Scheduled plan reschedules its reminder timers and,
// when someone other than the original submitter moved a date, tells the
// original submitter what changed.
func (s *Service) Amend(ctx context.Context, actor Actor, orderID string, sub otif.Submission) (*MilestoneEvent, error) {
	sh, err := s.Store.GetShipment(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if sh == nil {
		return nil, &NotFoundError{OrderID: orderID, What: "shipment"}
	}
	if sh.Status == otif.StatusFailed || sh.Status == otif.StatusComplete {
		return nil, &AlreadyTerminalError{OrderID: orderID, Status: sh.Status}
	}

	event, err := s.Store.GetEvent(ctx, orderID, sub.Milestone)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, &NotFoundError{OrderID: orderID, What: "milestone event"}
	}

	details, err := otif.BuildDetails(sub.Milestone, sub)
	if err != nil {
		return nil, err
	}

	var previous otif.ScheduledDetails
	if sub.Milestone == otif.MilestoneScheduled {
		previous = event.Details.(otif.ScheduledDetails)
	}

	now := s.Now()
	event.Details = details
	event.UpdatedBy = actor.ID
	event.UpdatedAt = now

	period, periodOK := amendPeriod(sub)

	err = s.Store.WithTx(ctx, func(tx Store) error {
		if err := tx.UpsertEvent(ctx, event); err != nil {
			return err
		}
		if periodOK {
			return tx.UpdateEntryPeriods(ctx, orderID, sub.Milestone, period)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if sub.Milestone == otif.MilestoneScheduled {
		updated := details.(otif.ScheduledDetails)
		// Ensure is idempotent for an unchanged plan, so only the timer whose
		// date actually moved gets rescheduled.
		s.scheduleReminders(orderID, updated)

		etdChanged := !updated.ETD.Equal(previous.ETD)
		etaChanged := !updated.ETA.Equal(previous.ETA)
		if actor.ID != event.CreatedBy && (etdChanged || etaChanged) {
			s.notifyScheduleChange(ctx, sh, event.CreatedBy, actor, previous, updated)
		}
	}

	return event, nil
}

// amendPeriod derives the corrected recognition period from the milestone's
// own date: pickup date for Pickup, document date otherwise. Milestones
// without a date (terminal failures) keep their period.
func amendPeriod(sub otif.Submission) (revenue.Period, bool) {
	date := sub.DocumentDate
	if sub.Milestone == otif.MilestonePickup {
		date = sub.PickupDate
	}
	if date == "" {
		return revenue.Period{}, false
	}
	p, err := revenue.PeriodFromDate(date)
	if err != nil {
		return revenue.Period{}, false
	}
	return p, true
}

// =============================================================================
// REMINDERS
// =============================================================================

func (s *Service) scheduleReminders(orderID string, d otif.ScheduledDetails) {
	plans := []struct {
		kind reminder.Kind
		plan otif.ZonedTime
	}{
		{reminder.KindETD, d.ETD},
		{reminder.KindETA, d.ETA},
	}

	for _, p := range plans {
		fireAt, err := reminder.FireAt(p.plan, s.Lead, s.Reference)
		if err != nil {
			log.Printf("[Lifecycle] Not scheduling %s reminder for %s: %v", p.kind, orderID, err)
			continue
		}
		s.Scheduler.Ensure(orderID, p.kind, fireAt, s.fireReminder)
	}
}

// fireReminder runs on the timer goroutine. It reads the CURRENT shipment
// state, decides whether the reminder is still meaningful, and self-cancels
// the companion timer when the submitter has no contact on file.
func (s *Service) fireReminder(orderID string, kind reminder.Kind) {
	ctx := context.Background()
	metrics.ReminderFired(string(kind))

	sh, err := s.Store.GetShipment(ctx, orderID)
	if err != nil || sh == nil {
		log.Printf("[Reminder] Skipping %s for %s: shipment unavailable (%v)", kind, orderID, err)
		return
	}

	event, err := s.Store.GetEvent(ctx, orderID, otif.MilestoneScheduled)
	if err != nil || event == nil {
		log.Printf("[Reminder] Skipping %s for %s: schedule event unavailable (%v)", kind, orderID, err)
		return
	}

	phone, err := s.Contacts.UserPhone(ctx, event.CreatedBy)
	if err != nil {
		log.Printf("[Reminder] Skipping %s for %s: contact lookup failed: %v", kind, orderID, err)
		return
	}
	if phone == "" {
		// Nobody to remind; the companion timer would hit the same wall.
		for _, k := range reminder.Kinds {
			s.Scheduler.Cancel(orderID, k)
		}
		log.Printf("[Reminder] No phone for submitter of %s; timers cancelled", orderID)
		return
	}

	contact, err := s.Contacts.CustomerContact(ctx, sh.CustomerID)
	if err != nil {
		log.Printf("[Reminder] Customer lookup failed for %s: %v", orderID, err)
	}

	var message string
	switch kind {
	case reminder.KindETD:
		message = fmt.Sprintf("ETD:\nReminder!\nYour shipment will depart in two hours with quote reference %s belongs to %s\nPlease update departure status immediately",
			sh.QuoteRef, contact.CompanyName)
	case reminder.KindETA:
		message = fmt.Sprintf("ETA:\nReminder!\nYour shipment will arrive in two hours with quote reference %s belongs to %s\nPlease update arrival status immediately",
			sh.QuoteRef, contact.CompanyName)
	}

	if err := s.Notifier.Send(ctx, notify.Recipient{Phone: phone}, message); err != nil {
		metrics.NotifyFailure()
		log.Printf("[Reminder] Send failed for %s/%s: %v", orderID, kind, err)
	}
}

// =============================================================================
// NOTIFICATIONS - Best-effort, post-commit
// =============================================================================

func (s *Service) notifyMilestone(ctx context.Context, sh *Shipment, event *MilestoneEvent) {
	contact, err := s.Contacts.CustomerContact(ctx, sh.CustomerID)
	if err != nil {
		log.Printf("[Lifecycle] Customer lookup failed for %s: %v", sh.OrderID, err)
		return
	}
	to := notify.Recipient{Phone: contact.Phone, Email: contact.Email}
	if !to.HasContact() {
		return
	}

	message := fmt.Sprintf("Shipment update\nOrder: %s\nQuote: %s\nMilestone: %s\nStatus: %s",
		sh.OrderID, sh.QuoteRef, event.Milestone, sh.Status)

	if err := s.Notifier.Send(ctx, to, message); err != nil {
		metrics.NotifyFailure()
		log.Printf("[Lifecycle] Notification failed for %s: %v", sh.OrderID, err)
	}
}

func (s *Service) notifyScheduleChange(ctx context.Context, sh *Shipment, creatorID string, changer Actor, previous, updated otif.ScheduledDetails) {
	phone, err := s.Contacts.UserPhone(ctx, creatorID)
	if err != nil || phone == "" {
		log.Printf("[Lifecycle] No contact for original submitter of %s (%v)", sh.OrderID, err)
		return
	}
	to := notify.Recipient{Phone: phone}

	if !updated.ETD.Equal(previous.ETD) {
		message := fmt.Sprintf("Attention!\nShipment with quote reference: %s\nETD has been changed by %s from %s to %s",
			sh.QuoteRef, changer.Name, previous.ETD, updated.ETD)
		if err := s.Notifier.Send(ctx, to, message); err != nil {
			metrics.NotifyFailure()
			log.Printf("[Lifecycle] Schedule-change notification failed for %s: %v", sh.OrderID, err)
		}
	}
	if !updated.ETA.Equal(previous.ETA) {
		message := fmt.Sprintf("Attention!\nShipment with quote reference: %s\nETA has been changed by %s from %s to %s",
			sh.QuoteRef, changer.Name, previous.ETA, updated.ETA)
		if err := s.Notifier.Send(ctx, to, message); err != nil {
			metrics.NotifyFailure()
			log.Printf("[Lifecycle] Schedule-change notification failed for %s: %v", sh.OrderID, err)
		}
	}
}

func (s *Service) revenueRef(sh *Shipment, actor Actor) revenue.Ref {
	return revenue.Ref{
		OrderID:    sh.OrderID,
		QuoteRef:   sh.QuoteRef,
		CustomerID: sh.CustomerID,
		Route:      sh.Route,
		Actor:      actor.ID,
	}
}
