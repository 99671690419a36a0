// Package metrics holds the prometheus collectors of the sync engine and the endpoint serving them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Iteration outcomes used as the outcome label of Iterations.
const (
	OutcomeSuccess          = "success"
	OutcomeConnectFailure   = "connect_failure"
	OutcomeSearchFailure    = "search_failure"
	OutcomePersistFailure   = "persist_failure"
	OutcomeCursorSaveFailed = "cursor_save_failure"
	OutcomeCanceled         = "canceled"
)

var (
	// Iterations counts finished sync iterations by strategy and outcome.
	Iterations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ldap_sync_iterations_total",
		Help: "Total sync iterations by strategy and outcome",
	}, []string{"strategy", "outcome"})

	// Entries counts directory entries by result: processed, skipped or failed.
	Entries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ldap_sync_entries_total",
		Help: "Total directory entries handled by result",
	}, []string{"result"})

	// Statuses counts written users by canonical status.
	Statuses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ldap_sync_user_status_total",
		Help: "Total users written by canonical status",
	}, []string{"status"})

	IterationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ldap_sync_iteration_duration_seconds",
		Help:    "Time spent in a single sync iteration",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	CursorAdvances = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ldap_sync_cursor_advances_total",
		Help: "Total cursor saves by cursor kind",
	}, []string{"kind"})

	Reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ldap_sync_directory_reconnects_total",
		Help: "Total directory connections opened after the first one",
	})

	// ConsecutiveFailures is reset to zero by every successful iteration.
	ConsecutiveFailures = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ldap_sync_consecutive_failures",
		Help: "Current number of consecutive failed iterations",
	})

	ConnectFailures = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ldap_sync_directory_connect_failures",
		Help: "Current number of consecutive failed directory connection attempts",
	})

	TruncatedPulls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ldap_sync_truncated_pulls_total",
		Help: "Total timestamp searches stopped by the server size limit",
	})

	LastSuccess = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ldap_sync_last_success_timestamp_seconds",
		Help: "Unix time of the last successful iteration",
	})
)
