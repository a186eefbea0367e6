/*
Package reminder implements the shipment reminder scheduler.

PURPOSE:
  Maintains one-shot timers that fire two hours before a shipment's planned
  departure (ETD) and arrival (ETA). Timers live in a single process-wide
  registry keyed by (order, kind); a plan change reschedules the timer in
  place, and a rejected/cancelled shipment drops both of its timers.

DESIGN:
  - The registry is mutex-guarded; Ensure/Cancel are safe from concurrent
    request goroutines.
  - Firing happens on a timer goroutine, never on the caller's request path.
    Each scheduled fire invokes the callback exactly once.
  - The callback receives only the timer key. It must look up the CURRENT
    shipment state to build the reminder, and decide itself whether the
    reminder is still meaningful.
  - Timers are in-process only. A restart drops pending reminders; the
    Scheduler interface exists so a durable implementation can replace the
    registry without touching callers.

SEE ALSO:
  - zoned.go: Local plan time -> fire instant conversion
  - shipment/: Schedules and cancels timers around milestone transitions
*/
package reminder

import (
	"log"
	"sync"
	"time"
)

// =============================================================================
// TIMER KINDS
// =============================================================================

type Kind string

const (
	KindETD Kind = "ETD"
	KindETA Kind = "ETA"
)

// Kinds lists both timer kinds a scheduled shipment carries.
var Kinds = []Kind{KindETD, KindETA}

// OnFire is invoked once per scheduled fire, off the scheduling request path.
type OnFire func(orderID string, kind Kind)

// =============================================================================
// SCHEDULER - Injectable capability
// =============================================================================

// Scheduler owns the reminder timers for all shipments.
type Scheduler interface {
	// Ensure creates the timer for (orderID, kind) or moves an existing one
	// to fireAt. Idempotent under repeated identical fireAt.
	Ensure(orderID string, kind Kind, fireAt time.Time, onFire OnFire)

	// Cancel stops and removes the timer if present; no-op otherwise.
	Cancel(orderID string, kind Kind)
}

// =============================================================================
// TIMER SCHEDULER - In-process registry implementation
// =============================================================================

type timerKey struct {
	orderID string
	kind    Kind
}

type timerEntry struct {
	timer  *time.Timer
	fireAt time.Time
}

// TimerScheduler is the in-process Scheduler backed by time.AfterFunc.
type TimerScheduler struct {
	mu     sync.Mutex
	timers map[timerKey]*timerEntry
}

func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{timers: make(map[timerKey]*timerEntry)}
}

var _ Scheduler = (*TimerScheduler)(nil)

// Ensure schedules or reschedules the timer. An existing timer with the same
// fire time is left untouched; a different fire time stops the old timer and
// creates a fresh one.
func (s *TimerScheduler) Ensure(orderID string, kind Kind, fireAt time.Time, onFire OnFire) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := timerKey{orderID: orderID, kind: kind}
	if e, ok := s.timers[k]; ok {
		if e.fireAt.Equal(fireAt) {
			return
		}
		e.timer.Stop()
		delete(s.timers, k)
		log.Printf("[Reminder] Rescheduling %s timer for %s to %s", kind, orderID, fireAt.Format(time.RFC3339))
	} else {
		log.Printf("[Reminder] Scheduling %s timer for %s at %s", kind, orderID, fireAt.Format(time.RFC3339))
	}

	d := time.Until(fireAt)
	if d < 0 {
		d = 0
	}
	e := &timerEntry{fireAt: fireAt}
	e.timer = time.AfterFunc(d, func() {
		s.mu.Lock()
		// Stop on an already-fired timer is a no-op, so a fire can race a
		// reschedule or cancel for the same key. Only the entry that still
		// owns the key may remove it and fire; a superseded one backs off.
		if cur, ok := s.timers[k]; !ok || cur != e {
			s.mu.Unlock()
			return
		}
		delete(s.timers, k)
		s.mu.Unlock()
		onFire(orderID, kind)
	})
	s.timers[k] = e
}

// Cancel stops and removes the timer for (orderID, kind) if one exists.
func (s *TimerScheduler) Cancel(orderID string, kind Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := timerKey{orderID: orderID, kind: kind}
	if e, ok := s.timers[k]; ok {
		e.timer.Stop()
		delete(s.timers, k)
		log.Printf("[Reminder] Cancelled %s timer for %s", kind, orderID)
	}
}

// Active reports whether a timer exists for (orderID, kind).
func (s *TimerScheduler) Active(orderID string, kind Kind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.timers[timerKey{orderID: orderID, kind: kind}]
	return ok
}

// FireTime returns the scheduled fire time for (orderID, kind), if any.
func (s *TimerScheduler) FireTime(orderID string, kind Kind) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.timers[timerKey{orderID: orderID, kind: kind}]
	if !ok {
		return time.Time{}, false
	}
	return e.fireAt, true
}

// Len returns the number of active timers across all shipments.
func (s *TimerScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.timers)
}

// Stop cancels every active timer. Used at shutdown.
func (s *TimerScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, e := range s.timers {
		e.timer.Stop()
		delete(s.timers, k)
	}
	log.Println("[Reminder] Stopped")
}
