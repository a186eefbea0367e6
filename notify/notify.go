/*
Package notify defines the outbound notification capability.

PURPOSE:
  The milestone orchestrator and the reminder callbacks send messages to
  customers and operators (post-transition updates, ETD/ETA reminders,
  schedule-change alerts). Actual delivery channels (email, WhatsApp) are
  external collaborators; this package only defines the interface they
  implement and a logging implementation for development.

CONTRACT:
  Send is best-effort and at-most-effort: a failure must never abort the
  caller. Callers log the error and move on; the authoritative state change
  has already committed by the time a notification goes out. Retries, if
  wanted, belong to the delivery collaborator.
*/
package notify

import (
	"context"
	"log"
)

// Recipient addresses a message. Either field may be empty; a channel
// implementation picks whichever it can deliver to.
type Recipient struct {
	Phone string
	Email string
}

// HasContact reports whether the recipient is reachable at all.
func (r Recipient) HasContact() bool { return r.Phone != "" || r.Email != "" }

// Notifier delivers a rendered message to a recipient.
type Notifier interface {
	Send(ctx context.Context, to Recipient, message string) error
}

// LogNotifier writes messages to the process log instead of delivering them.
type LogNotifier struct{}

var _ Notifier = LogNotifier{}

func (LogNotifier) Send(_ context.Context, to Recipient, message string) error {
	log.Printf("[Notify] to phone=%q email=%q: %s", to.Phone, to.Email, message)
	return nil
}
