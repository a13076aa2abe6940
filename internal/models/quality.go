// LinkScope - IoT Device Diagnostic Log Analytics
// Copyright 2026 ProbeLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/probelab/linkscope

package models

// CoverageStatus classifies one required protocol event against the observed batch.
type CoverageStatus string

// Coverage classification results.
//
//   - ok: the event was observed at its expected severity under its exact name
//   - missing: neither the exact name nor any alias was observed
//   - level_mismatch: observed, but at a different severity than expected
//   - name_mismatch: observed only under a case/whitespace-normalized alias
const (
	CoverageOK            CoverageStatus = "ok"
	CoverageMissing       CoverageStatus = "missing"
	CoverageLevelMismatch CoverageStatus = "level_mismatch"
	CoverageNameMismatch  CoverageStatus = "name_mismatch"
)

// CoverageEntry is the evaluation of one required protocol event.
type CoverageEntry struct {
	Name          string         `json:"name"`
	Category      string         `json:"category"`
	Status        CoverageStatus `json:"status"`
	ExpectedLevel int            `json:"expected_level"`
	ActualLevel   int            `json:"actual_level,omitempty"`
	Count         int            `json:"count"`
	MatchedName   string         `json:"matched_name,omitempty"` // alias that matched, when Status is name_mismatch
}

// PairCheckResult is the evaluation of one start/end event pairing: the count of
// start events minus end events, floored at zero.
type PairCheckResult struct {
	StartEvent string `json:"start_event"`
	EndEvent   string `json:"end_event"`
	StartCount int    `json:"start_count"`
	EndCount   int    `json:"end_count"`
	Unclosed   int    `json:"unclosed"`
}

// CategoryCoverage is the per-category rollup of a coverage report.
type CategoryCoverage struct {
	Required int     `json:"required"`
	OK       int     `json:"ok"`
	Ratio    float64 `json:"ratio"`
}

// CoverageReport is the protocol-coverage quality report: each required event
// classified, start/end pairs checked, and coverage rolled up per category and
// overall. Ratio is always okTotal/requiredTotal and lies in [0,1].
type CoverageReport struct {
	Entries    []CoverageEntry             `json:"entries"`
	Pairs      []PairCheckResult           `json:"pairs"`
	ByCategory map[string]CategoryCoverage `json:"by_category"`

	RequiredTotal int     `json:"required_total"`
	OKTotal       int     `json:"ok_total"`
	MissingTotal  int     `json:"missing_total"`
	MismatchTotal int     `json:"mismatch_total"`
	Ratio         float64 `json:"ratio"`
}

// EndpointStats summarizes the HTTP request lifecycle for one endpoint
// (method + normalized path).
type EndpointStats struct {
	Method string `json:"method"`
	Path   string `json:"path"`

	Success int `json:"success"`
	Failure int `json:"failure"`

	// Latency statistics over successful and failed samples, in milliseconds.
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	P95LatencyMs float64 `json:"p95_latency_ms"`
}

// FailedRequest is one entry in the top-failed or never-closed request lists.
type FailedRequest struct {
	RequestID string `json:"request_id"`
	Method    string `json:"method,omitempty"`
	Path      string `json:"path,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// HTTPHealth is the HTTP half of the transport health report.
type HTTPHealth struct {
	Requests    int             `json:"requests"`
	Success     int             `json:"success"`
	Failure     int             `json:"failure"`
	NeverClosed int             `json:"never_closed"`
	Endpoints   []EndpointStats `json:"endpoints"`
	TopFailed   []FailedRequest `json:"top_failed"`
	TopOpen     []FailedRequest `json:"top_open"`
}

// MQTTHealth is the messaging half of the transport health report. Counters are
// derived from the (stage=mqtt, op, result) classification of each event.
type MQTTHealth struct {
	UploadBatchSent     int `json:"upload_batch_sent"`
	SkippedNotConnected int `json:"skipped_not_connected"`
	PublishOK           int `json:"publish_ok"`
	PublishFailed       int `json:"publish_failed"`
	AckOK               int `json:"ack_ok"`
	AckFailed           int `json:"ack_failed"`
	AckTimeout          int `json:"ack_timeout"`
	SubscribeFailed     int `json:"subscribe_failed"`
	Connected           int `json:"connected"`
	Disconnected        int `json:"disconnected"`

	// DeviceIssues tallies publish/ack/subscribe issues per device serial.
	// IssuesMissingDeviceSN counts issues whose event carried no device identity.
	DeviceIssues          []DeviceIssueCount `json:"device_issues"`
	IssuesMissingDeviceSN int                `json:"issues_missing_device_sn"`
}

// DeviceIssueCount is one device's messaging issue tally.
type DeviceIssueCount struct {
	DeviceSN string `json:"device_sn"`
	Issues   int    `json:"issues"`
}

// TransportReport is the combined HTTP + MQTT transport health report.
type TransportReport struct {
	HTTP HTTPHealth `json:"http"`
	MQTT MQTTHealth `json:"mqtt"`
}

// OrderBrokenStats splits order-broken continuity errors into their sub-kinds.
type OrderBrokenStats struct {
	Total      int `json:"total"`
	Duplicate  int `json:"duplicate"`
	OutOfOrder int `json:"out_of_order"`
}

// ContinuityOffender is one correlator's continuity-error tally, used in the
// ranked by-device/by-link/by-request lists.
type ContinuityOffender struct {
	Key            string `json:"key"`
	Total          int    `json:"total"`
	OrderBroken    int    `json:"order_broken"`
	PersistTimeout int    `json:"persist_timeout"`
	RTBufferDrop   int    `json:"rt_buffer_drop"`
}

// ContinuityReport is the data-continuity quality report.
type ContinuityReport struct {
	OrderBroken    OrderBrokenStats `json:"order_broken"`
	PersistTimeout int              `json:"persist_timeout"`
	RTBufferDrop   int              `json:"rt_buffer_drop"`

	ByDevice  []ContinuityOffender `json:"by_device"`
	ByLink    []ContinuityOffender `json:"by_link"`
	ByRequest []ContinuityOffender `json:"by_request"`
}

// StreamBand classifies a stream-session score against the fixed thresholds.
type StreamBand string

// Stream score bands: good >= warn threshold, warn >= bad threshold, bad below.
const (
	StreamGood StreamBand = "good"
	StreamWarn StreamBand = "warn"
	StreamBad  StreamBand = "bad"
)

// StreamSessionScore is one scored stream session.
type StreamSessionScore struct {
	DeviceSN  string `json:"device_sn,omitempty"`
	LinkCode  string `json:"link_code,omitempty"`
	RequestID string `json:"request_id,omitempty"`

	Reason         string `json:"reason,omitempty"`
	BufferedOutOfO int    `json:"buffered_out_of_order"`
	IndexGap       int    `json:"index_gap"`

	Score int        `json:"score"` // deterministic 0-100
	Band  StreamBand `json:"band"`
}

// StreamGroupStats aggregates stream scores over one grouping key.
type StreamGroupStats struct {
	Key      string  `json:"key"`
	Sessions int     `json:"sessions"`
	AvgScore float64 `json:"avg_score"`
	Bad      int     `json:"bad"`
}

// StreamScoreReport is the stream-session scoring quality report.
type StreamScoreReport struct {
	Sessions []StreamSessionScore `json:"sessions"`

	Good int `json:"good"`
	Warn int `json:"warn"`
	Bad  int `json:"bad"`

	AvgScore float64 `json:"avg_score"`

	ByDevice  []StreamGroupStats `json:"by_device"`
	ByLink    []StreamGroupStats `json:"by_link"`
	ByRequest []StreamGroupStats `json:"by_request"`
	ByReason  []StreamGroupStats `json:"by_reason"`
}

// QualitySnapshot is the fixed set of scalar metrics describing one analyzed log
// file. Snapshots are the unit of comparison for regression evaluation.
type QualitySnapshot struct {
	QualityScore  float64 `json:"quality_score"`
	TotalEvents   int     `json:"total_events"`
	ErrorEvents   int     `json:"error_events"`
	WarningEvents int     `json:"warning_events"`
	SessionCount  int     `json:"session_count"`
	DeviceCount   int     `json:"device_count"`

	// ErrorRate is derived: errorEvents/totalEvents, 0 for an empty batch.
	ErrorRate float64 `json:"error_rate"`
}
