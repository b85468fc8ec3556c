// Package metrics exposes the Prometheus collectors for the admission and
// booking pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AdmissionDecisions counts admission outcomes by result:
	// "admitted", "queued", "failsafe".
	AdmissionDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bilet_admission_decisions_total",
		Help: "Admission check outcomes",
	}, []string{"result"})

	// ActiveSessions tracks active admission slots per showing.
	ActiveSessions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "bilet_active_sessions",
		Help: "Active admission sessions per showing",
	}, []string{"showing"})

	// SeatLockConflicts counts lost optimistic seat lock races.
	SeatLockConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bilet_seat_lock_conflicts_total",
		Help: "Seat lock attempts that lost the version race",
	})

	// BookingsFinalized counts finalizations by outcome:
	// "confirmed", "cancelled", "expired".
	BookingsFinalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bilet_bookings_finalized_total",
		Help: "Booking finalizations by outcome",
	}, []string{"outcome"})

	// SweepDuration observes background sweep latency.
	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bilet_sweep_duration_seconds",
		Help:    "Duration of background sweep runs",
		Buckets: prometheus.DefBuckets,
	})

	// TokensExpired counts tokens reclaimed by the sweep, by cause:
	// "heartbeat", "hold", "deadline", "sold_out".
	TokensExpired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bilet_tokens_expired_total",
		Help: "Queue tokens expired by the sweep",
	}, []string{"cause"})
)
