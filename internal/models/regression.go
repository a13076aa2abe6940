// LinkScope - IoT Device Diagnostic Log Analytics
// Copyright 2026 ProbeLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/probelab/linkscope

package models

import (
	"time"

	"github.com/google/uuid"
)

// RegressionMetric names one of the six compared metrics.
type RegressionMetric string

// Compared metrics. Score/session/device metrics flag drops; error/warning metrics
// flag increases.
const (
	MetricQualityScore  RegressionMetric = "quality_score"
	MetricErrorRate     RegressionMetric = "error_rate"
	MetricErrorEvents   RegressionMetric = "error_events"
	MetricWarningEvents RegressionMetric = "warning_events"
	MetricSessionCount  RegressionMetric = "session_count"
	MetricDeviceCount   RegressionMetric = "device_count"
)

// RegressionThresholds bounds the acceptable drift per metric. Drops and increases
// are absolute values except ErrorRateIncrease, which is in percentage points.
// A zero-valued field means "use the next resolution layer", not "zero tolerance";
// explicit zero tolerance is expressed with a small negative epsilon upstream.
type RegressionThresholds struct {
	QualityScoreDrop     *float64 `json:"quality_score_drop,omitempty"`
	ErrorRateIncrease    *float64 `json:"error_rate_increase,omitempty"`
	ErrorEventIncrease   *float64 `json:"error_event_increase,omitempty"`
	WarningEventIncrease *float64 `json:"warning_event_increase,omitempty"`
	SessionCountDrop     *float64 `json:"session_count_drop,omitempty"`
	DeviceCountDrop      *float64 `json:"device_count_drop,omitempty"`
}

// RegressionBaseline is a frozen quality snapshot anchored to one source log file,
// with optional per-metric threshold overrides.
type RegressionBaseline struct {
	ID         uuid.UUID             `json:"id"`
	ProjectID  string                `json:"project_id,omitempty"`
	FileID     string                `json:"file_id"`
	Name       string                `json:"name,omitempty"`
	Snapshot   QualitySnapshot       `json:"snapshot"`
	Thresholds *RegressionThresholds `json:"thresholds,omitempty"`
	CreatedAt  time.Time             `json:"created_at"`
}

// MetricDelta is the per-metric diff of a regression evaluation. Delta is always
// target minus baseline. Violated is set when the drop/increase strictly exceeds
// the resolved threshold.
type MetricDelta struct {
	Metric    RegressionMetric `json:"metric"`
	Baseline  float64          `json:"baseline"`
	Target    float64          `json:"target"`
	Delta     float64          `json:"delta"`
	Threshold float64          `json:"threshold"`
	Violated  bool             `json:"violated"`
}

// RegressionEvaluation is the pure diff of a target snapshot against a baseline.
// Never persisted by the core; trend storage is external.
type RegressionEvaluation struct {
	Passed     bool          `json:"passed"`
	Deltas     []MetricDelta `json:"deltas"`
	Violations []MetricDelta `json:"violations"`
}

// TopViolations returns at most n violations, preserving order. Used by trend
// views that show only the leading regressions.
func (e *RegressionEvaluation) TopViolations(n int) []MetricDelta {
	if len(e.Violations) <= n {
		return e.Violations
	}
	return e.Violations[:n]
}
