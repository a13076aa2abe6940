// LinkScope - IoT Device Diagnostic Log Analytics
// Copyright 2026 ProbeLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/probelab/linkscope

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus Metrics Integration for Production Observability
// This package provides instrumentation for:
// - Database query performance (DuckDB)
// - API endpoint latency and throughput
// - Log ingestion throughput and parse failures
// - Assertion rule runs
// - Blob store circuit breaker state

var (
	// Database Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets, // 0.005s, 0.01s, 0.025s, 0.05s, 0.1s, 0.25s, 0.5s, 1s, 2.5s, 5s, 10s
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// Ingestion Metrics
	IngestFilesProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_files_processed_total",
			Help: "Total number of log files ingested",
		},
	)

	IngestLinesProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_lines_processed_total",
			Help: "Total number of log lines processed during ingestion",
		},
	)

	IngestEventsExtracted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_events_extracted_total",
			Help: "Total number of diagnostic events extracted from log lines",
		},
	)

	IngestParseErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_parse_errors_total",
			Help: "Total number of log lines that failed to parse",
		},
		[]string{"reason"}, // "bad_line", "bad_entry", "decrypt_failed"
	)

	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_duration_seconds",
			Help:    "Duration of log file ingestion in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	IngestBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_batch_size",
			Help:    "Number of events extracted per ingested file",
			Buckets: []float64{10, 50, 100, 250, 500, 1000, 5000, 10000},
		},
	)

	// Assertion Rule Metrics
	RuleRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rule_runs_total",
			Help: "Total number of assertion rule runs",
		},
		[]string{"trigger"}, // "automatic", "manual"
	)

	RuleRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rule_run_duration_seconds",
			Help:    "Duration of assertion rule runs in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	RuleResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rule_results_total",
			Help: "Total number of per-rule evaluation results",
		},
		[]string{"status"}, // "passed", "failed", "skipped"
	)

	RuleRunPassRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rule_run_last_pass_rate",
			Help: "Pass rate of the most recent assertion rule run",
		},
	)

	// Blob Store Metrics
	BlobOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blob_operations_total",
			Help: "Total number of blob store operations",
		},
		[]string{"operation", "result"}, // result: "success", "failure", "rejected"
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// System Metrics
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application version and build information",
		},
		[]string{"version", "go_version"},
	)

	AppUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "app_uptime_seconds",
			Help: "Application uptime in seconds",
		},
	)
)

// RecordDBQuery records a database query metric
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordIngest records a completed file ingestion
func RecordIngest(duration time.Duration, lines, events int) {
	IngestFilesProcessed.Inc()
	IngestLinesProcessed.Add(float64(lines))
	IngestEventsExtracted.Add(float64(events))
	IngestDuration.Observe(duration.Seconds())
	IngestBatchSize.Observe(float64(events))
}

// RecordParseError records a log line that could not be parsed
func RecordParseError(reason string) {
	IngestParseErrors.WithLabelValues(reason).Inc()
}

// RecordRuleRun records a completed assertion rule run
func RecordRuleRun(trigger string, duration time.Duration, passed, failed, skipped int, passRate float64) {
	RuleRunsTotal.WithLabelValues(trigger).Inc()
	RuleRunDuration.Observe(duration.Seconds())
	RuleResultsTotal.WithLabelValues("passed").Add(float64(passed))
	RuleResultsTotal.WithLabelValues("failed").Add(float64(failed))
	RuleResultsTotal.WithLabelValues("skipped").Add(float64(skipped))
	RuleRunPassRate.Set(passRate)
}

// RecordBlobOperation records a blob store operation and its outcome
func RecordBlobOperation(operation, result string) {
	BlobOperations.WithLabelValues(operation, result).Inc()
}

// RecordBreakerTransition records a circuit breaker state change
func RecordBreakerTransition(name, from, to string) {
	CircuitBreakerTransitions.WithLabelValues(name, from, to).Inc()
	var state float64
	switch to {
	case "half-open":
		state = 1
	case "open":
		state = 2
	}
	CircuitBreakerState.WithLabelValues(name).Set(state)
}
