// Package observability exposes prometheus metrics for the activity service.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	activitiesCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "engage",
		Subsystem: "activities",
		Name:      "created_total",
		Help:      "Activities created, labelled by activity type.",
	}, []string{"type"})
	transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "engage",
		Subsystem: "activities",
		Name:      "transitions_total",
		Help:      "State transitions applied, labelled by target state.",
	}, []string{"target"})
	responsesAccepted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "engage",
		Subsystem: "responses",
		Name:      "accepted_total",
		Help:      "Responses accepted, labelled by activity type.",
	}, []string{"type"})
	responsesRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "engage",
		Subsystem: "responses",
		Name:      "rejected_total",
		Help:      "Responses rejected, labelled by rejection reason.",
	}, []string{"reason"})
	syncPolls = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "engage",
		Subsystem: "sync",
		Name:      "polls_total",
		Help:      "Session state polls served.",
	})
	syncRecords = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "engage",
		Subsystem: "sync",
		Name:      "records_delivered_total",
		Help:      "Changed records delivered across all polls.",
	})
	lastSweepGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "engage",
		Subsystem: "sweeper",
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix timestamp of the most recent expiry sweep.",
	})
)

func init() {
	prometheus.MustRegister(
		activitiesCreated,
		transitions,
		responsesAccepted,
		responsesRejected,
		syncPolls,
		syncRecords,
		lastSweepGauge,
	)
}

// RecordActivityCreated counts a created activity.
func RecordActivityCreated(activityType string) {
	activitiesCreated.WithLabelValues(activityType).Inc()
}

// RecordTransition counts an applied state transition.
func RecordTransition(target string) {
	transitions.WithLabelValues(target).Inc()
}

// RecordResponseAccepted counts an accepted response.
func RecordResponseAccepted(activityType string) {
	responsesAccepted.WithLabelValues(activityType).Inc()
}

// RecordResponseRejected counts a rejected response.
func RecordResponseRejected(reason string) {
	responsesRejected.WithLabelValues(reason).Inc()
}

// RecordSyncPoll counts one poll and the records it delivered.
func RecordSyncPoll(records int) {
	syncPolls.Inc()
	syncRecords.Add(float64(records))
}

// RecordSweep updates the sweep watermark gauge.
func RecordSweep(ts time.Time) {
	if ts.IsZero() {
		return
	}
	lastSweepGauge.Set(float64(ts.Unix()))
}
