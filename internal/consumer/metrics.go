package consumer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"example.com/runlog/internal/events"
)

// Reasons a record is rejected before it reaches the handler.
const (
	rejectFrame   = "frame"
	rejectHeader  = "header"
	rejectPayload = "payload"
)

var (
	appliedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "runlog",
		Subsystem: "consumer",
		Name:      "run_events_applied_total",
		Help:      "Run events handled and committed, by event type.",
	}, []string{"event_type"})

	handlerErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "runlog",
		Subsystem: "consumer",
		Name:      "run_event_handler_errors_total",
		Help:      "Run events left uncommitted after a handler error, by event type.",
	}, []string{"event_type"})

	rejectedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "runlog",
		Subsystem: "consumer",
		Name:      "records_rejected_total",
		Help:      "Records committed without handling, by rejection reason.",
	}, []string{"reason"})

	deliveryDelay = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "runlog",
		Subsystem: "consumer",
		Name:      "run_event_delay_seconds",
		Help:      "Seconds from record timestamp to a committed run event.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})
)

func init() {
	prometheus.MustRegister(appliedCounter, handlerErrorCounter, rejectedCounter, deliveryDelay)
}

// eventLabel keeps label cardinality bounded to the known run event types.
func eventLabel(eventType string) string {
	if events.IsKnown(eventType) {
		return eventType
	}
	return "unknown"
}

func recordApplied(msg Message, now time.Time) {
	appliedCounter.WithLabelValues(eventLabel(msg.EventType)).Inc()
	if !msg.Timestamp.IsZero() {
		if delay := now.Sub(msg.Timestamp); delay >= 0 {
			deliveryDelay.Observe(delay.Seconds())
		}
	}
}

func recordHandlerError(msg Message) {
	handlerErrorCounter.WithLabelValues(eventLabel(msg.EventType)).Inc()
}

func recordRejected(reason string) {
	rejectedCounter.WithLabelValues(reason).Inc()
}
