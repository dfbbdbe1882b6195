package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	SlipsCreated         prometheus.Counter
	SlipsSigned          prometheus.Counter
	RemindersSent        prometheus.Counter
	ReminderFailures     prometheus.Counter
	VerificationAttempts *prometheus.CounterVec
	RequestDuration      *prometheus.HistogramVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		SlipsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "slipgate_slips_created_total",
			Help: "Total number of consent slips created",
		}),
		SlipsSigned: promauto.NewCounter(prometheus.CounterOpts{
			Name: "slipgate_slips_signed_total",
			Help: "Total number of consent slips signed",
		}),
		RemindersSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "slipgate_reminders_sent_total",
			Help: "Total number of reminder notifications dispatched",
		}),
		ReminderFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "slipgate_reminder_failures_total",
			Help: "Total number of reminder notifications that failed to deliver",
		}),
		VerificationAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "slipgate_verification_attempts_total",
			Help: "Signature integrity verification attempts by outcome",
		}, []string{"outcome"}),
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "slipgate_http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"route", "status"}),
	}
}
