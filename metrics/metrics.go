/*
Package metrics registers the engine's prometheus counters.

PURPOSE:
  Operational counters for the three hot paths: milestone submissions by
  outcome, ledger entries by kind, and reminder timers fired. Exposed on
  /metrics by the API router.

USAGE:
  metrics.Init()
  ...
  metrics.MilestoneSubmitted("DEPARTURE", "accepted")

  Increment helpers are safe to call before Init (they no-op), so domain
  packages and tests never need prometheus wiring of their own.
*/
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricPrefix = "otif_"

const (
	ResultAccepted = "accepted"
	ResultRejected = "rejected"
)

var (
	registerOnce sync.Once

	milestonesTotal     *prometheus.CounterVec
	revenueEntriesTotal *prometheus.CounterVec
	remindersFiredTotal *prometheus.CounterVec
	notifyFailuresTotal prometheus.Counter
)

// Init registers all counters with the default registry. Safe to call more
// than once.
func Init() {
	registerOnce.Do(func() {
		milestonesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "milestones_total",
				Help: "Milestone submissions by milestone and result",
			},
			[]string{"milestone", "result"},
		)
		revenueEntriesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "revenue_entries_total",
				Help: "Revenue ledger entries written, by kind",
			},
			[]string{"kind"},
		)
		remindersFiredTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reminders_fired_total",
				Help: "Reminder timers fired, by kind",
			},
			[]string{"kind"},
		)
		notifyFailuresTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "notify_failures_total",
				Help: "Outbound notifications that returned an error",
			},
		)

		prometheus.MustRegister(
			milestonesTotal,
			revenueEntriesTotal,
			remindersFiredTotal,
			notifyFailuresTotal,
		)
	})
}

// Handler serves the default registry.
func Handler() http.Handler { return promhttp.Handler() }

func MilestoneSubmitted(milestone, result string) {
	if milestonesTotal != nil {
		milestonesTotal.WithLabelValues(milestone, result).Inc()
	}
}

func RevenueEntryWritten(kind string) {
	if revenueEntriesTotal != nil {
		revenueEntriesTotal.WithLabelValues(kind).Inc()
	}
}

func ReminderFired(kind string) {
	if remindersFiredTotal != nil {
		remindersFiredTotal.WithLabelValues(kind).Inc()
	}
}

func NotifyFailure() {
	if notifyFailuresTotal != nil {
		notifyFailuresTotal.Inc()
	}
}
