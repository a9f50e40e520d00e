// Package metrics exposes the prometheus collectors shared by the checker,
// the notifiers and the HTTP server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ogmon_checks_total",
			Help: "Total number of monitor checks by trigger and resulting status.",
		},
		[]string{"trigger", "status"},
	)

	CheckDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ogmon_check_duration_seconds",
			Help:    "Duration of a full monitor check.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30},
		},
	)

	FetchErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ogmon_fetch_errors_total",
			Help: "Total number of page fetch failures by kind.",
		},
		[]string{"kind"},
	)

	AlertsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ogmon_alerts_created_total",
			Help: "Total number of alerts created by change type.",
		},
		[]string{"type"},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ogmon_notifications_total",
			Help: "Total number of notification deliveries by channel and result.",
		},
		[]string{"channel", "result"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ogmon_http_requests_total",
			Help: "Total number of HTTP API requests.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ogmon_http_request_duration_seconds",
			Help:    "Duration of HTTP API requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Notification results
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)
