// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// CheckoutsTotal counts checkout lines by outcome.
	CheckoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stocktrack_checkouts_total",
			Help: "Checkout lines processed, by outcome",
		},
		[]string{"outcome"},
	)

	// ReturnsTotal counts processed returns.
	ReturnsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stocktrack_returns_total",
			Help: "Returns processed",
		},
	)

	// ApprovalsTotal counts approval decisions.
	ApprovalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stocktrack_approvals_total",
			Help: "Approval decisions, by decision",
		},
		[]string{"decision"},
	)

	// NotificationsTotal counts notification channel deliveries.
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stocktrack_notifications_total",
			Help: "Notification channel deliveries, by channel and status",
		},
		[]string{"channel", "status"},
	)

	// MailBreakerState tracks the mail circuit breaker state
	// (0=closed, 1=open, 2=half-open).
	MailBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stocktrack_mail_breaker_state",
			Help: "Mail circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
	)

	// OverdueMarked counts transactions flipped to overdue by the sweep.
	OverdueMarked = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stocktrack_overdue_marked_total",
			Help: "Transactions marked overdue by the scheduled sweep",
		},
	)
)
