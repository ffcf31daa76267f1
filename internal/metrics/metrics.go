package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion metrics
	EventsCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trailpoint_events_created_total",
			Help: "Total number of events ingested",
		},
		[]string{"event_type", "severity"},
	)

	// Alert lifecycle metrics
	AlertsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trailpoint_alerts_created_total",
			Help: "Total number of alerts created",
		},
	)

	AlertStatusChangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trailpoint_alert_status_changes_total",
			Help: "Total number of alert status transitions",
		},
		[]string{"status"},
	)

	// Audit metrics
	AuditEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trailpoint_audit_entries_total",
			Help: "Total number of audit entries appended",
		},
		[]string{"action_type"},
	)

	// Correlation data-quality metrics
	MalformedReferencesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "trailpoint_malformed_event_references_total",
			Help: "Total number of unparseable event references found in alerts",
		},
	)

	// Query metrics
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trailpoint_query_duration_seconds",
			Help:    "Duration of entity queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"entity"},
	)

	ValidationFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trailpoint_validation_failures_total",
			Help: "Total number of requests rejected by validation",
		},
		[]string{"operation"},
	)
)
