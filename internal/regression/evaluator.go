// LinkScope - IoT Device Diagnostic Log Analytics
// Copyright 2026 ProbeLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/probelab/linkscope

// Package regression diffs a target quality snapshot against a frozen baseline.
//
// Evaluation is a pure function: per-metric deltas, a violation flag when a
// drop or increase strictly exceeds its resolved threshold, and an ordered
// violation list. Nothing here persists; trend storage is the caller's.
package regression

import (
	"math"

	"github.com/probelab/linkscope/internal/models"
)

// Default tolerances. Drops and increases are absolute, except the error-rate
// increase which is in percentage points.
const (
	DefaultQualityScoreDrop     = 5.0
	DefaultErrorRateIncrease    = 5.0
	DefaultErrorEventIncrease   = 10.0
	DefaultWarningEventIncrease = 20.0
	DefaultSessionCountDrop     = 1.0
	DefaultDeviceCountDrop      = 1.0
)

// metricOrder fixes the delta and violation ordering of every evaluation.
var metricOrder = []models.RegressionMetric{
	models.MetricQualityScore,
	models.MetricErrorRate,
	models.MetricErrorEvents,
	models.MetricWarningEvents,
	models.MetricSessionCount,
	models.MetricDeviceCount,
}

// Evaluate diffs target against the baseline's frozen snapshot. Thresholds
// resolve per metric: the call-time override first, then the baseline's stored
// override, then the hard-coded defaults. A nil override layer falls through.
func Evaluate(baseline models.RegressionBaseline, target models.QualitySnapshot, override *models.RegressionThresholds) models.RegressionEvaluation {
	eval := models.RegressionEvaluation{Passed: true}

	for _, metric := range metricOrder {
		delta := diffMetric(metric, baseline, target, override)
		eval.Deltas = append(eval.Deltas, delta)
		if delta.Violated {
			eval.Passed = false
			eval.Violations = append(eval.Violations, delta)
		}
	}
	return eval
}

func diffMetric(metric models.RegressionMetric, baseline models.RegressionBaseline, target models.QualitySnapshot, override *models.RegressionThresholds) models.MetricDelta {
	base := baseline.Snapshot

	var (
		baseVal, targetVal float64
		threshold          float64
		drop               bool // violation on drop rather than increase
	)

	switch metric {
	case models.MetricQualityScore:
		baseVal, targetVal = base.QualityScore, target.QualityScore
		threshold = resolve(override, baseline.Thresholds,
			func(t *models.RegressionThresholds) *float64 { return t.QualityScoreDrop },
			DefaultQualityScoreDrop)
		drop = true
	case models.MetricErrorRate:
		// Rates are fractions; deltas and thresholds are percentage points.
		baseVal, targetVal = base.ErrorRate*100, target.ErrorRate*100
		threshold = resolve(override, baseline.Thresholds,
			func(t *models.RegressionThresholds) *float64 { return t.ErrorRateIncrease },
			DefaultErrorRateIncrease)
	case models.MetricErrorEvents:
		baseVal, targetVal = float64(base.ErrorEvents), float64(target.ErrorEvents)
		threshold = resolve(override, baseline.Thresholds,
			func(t *models.RegressionThresholds) *float64 { return t.ErrorEventIncrease },
			DefaultErrorEventIncrease)
	case models.MetricWarningEvents:
		baseVal, targetVal = float64(base.WarningEvents), float64(target.WarningEvents)
		threshold = resolve(override, baseline.Thresholds,
			func(t *models.RegressionThresholds) *float64 { return t.WarningEventIncrease },
			DefaultWarningEventIncrease)
	case models.MetricSessionCount:
		baseVal, targetVal = float64(base.SessionCount), float64(target.SessionCount)
		threshold = resolve(override, baseline.Thresholds,
			func(t *models.RegressionThresholds) *float64 { return t.SessionCountDrop },
			DefaultSessionCountDrop)
		drop = true
	case models.MetricDeviceCount:
		baseVal, targetVal = float64(base.DeviceCount), float64(target.DeviceCount)
		threshold = resolve(override, baseline.Thresholds,
			func(t *models.RegressionThresholds) *float64 { return t.DeviceCountDrop },
			DefaultDeviceCountDrop)
		drop = true
	}

	delta := models.MetricDelta{
		Metric:    metric,
		Baseline:  round2(baseVal),
		Target:    round2(targetVal),
		Delta:     round2(targetVal - baseVal),
		Threshold: threshold,
	}

	if drop {
		delta.Violated = baseVal-targetVal > threshold
	} else {
		delta.Violated = targetVal-baseVal > threshold
	}
	return delta
}

// resolve picks the first non-nil threshold across the override layers.
func resolve(override, stored *models.RegressionThresholds, field func(*models.RegressionThresholds) *float64, def float64) float64 {
	if override != nil {
		if v := field(override); v != nil {
			return *v
		}
	}
	if stored != nil {
		if v := field(stored); v != nil {
			return *v
		}
	}
	return def
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
