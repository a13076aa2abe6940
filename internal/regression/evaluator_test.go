// LinkScope - IoT Device Diagnostic Log Analytics
// Copyright 2026 ProbeLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/probelab/linkscope

package regression

import (
	"testing"

	"github.com/probelab/linkscope/internal/models"
)

func fptr(v float64) *float64 { return &v }

func snapshot() models.QualitySnapshot {
	return models.QualitySnapshot{
		QualityScore:  92.5,
		TotalEvents:   1000,
		ErrorEvents:   20,
		WarningEvents: 50,
		SessionCount:  8,
		DeviceCount:   3,
		ErrorRate:     0.02,
	}
}

func TestEvaluate_IdenticalSnapshots(t *testing.T) {
	baseline := models.RegressionBaseline{Snapshot: snapshot()}

	eval := Evaluate(baseline, snapshot(), nil)

	if !eval.Passed {
		t.Error("identical snapshots failed")
	}
	if len(eval.Violations) != 0 {
		t.Errorf("identical snapshots produced %d violations", len(eval.Violations))
	}
	if len(eval.Deltas) != 6 {
		t.Fatalf("deltas = %d, want all 6 metrics", len(eval.Deltas))
	}
	for _, d := range eval.Deltas {
		if d.Delta != 0 {
			t.Errorf("%s delta = %v, want 0", d.Metric, d.Delta)
		}
	}
}

func TestEvaluate_Violations(t *testing.T) {
	baseline := models.RegressionBaseline{Snapshot: snapshot()}

	t.Run("quality score drop", func(t *testing.T) {
		target := snapshot()
		target.QualityScore = 80 // drop of 12.5 against default tolerance 5

		eval := Evaluate(baseline, target, nil)
		if eval.Passed {
			t.Fatal("evaluation passed despite score drop")
		}
		if len(eval.Violations) != 1 || eval.Violations[0].Metric != models.MetricQualityScore {
			t.Fatalf("violations = %+v, want one quality_score violation", eval.Violations)
		}
		if got := eval.Violations[0].Delta; got != -12.5 {
			t.Errorf("delta = %v, want -12.5", got)
		}
	})

	t.Run("threshold boundary is not a violation", func(t *testing.T) {
		target := snapshot()
		target.QualityScore = baseline.Snapshot.QualityScore - DefaultQualityScoreDrop

		eval := Evaluate(baseline, target, nil)
		if !eval.Passed {
			t.Error("drop equal to the threshold flagged; only strict excess violates")
		}
	})

	t.Run("error rate increase in percentage points", func(t *testing.T) {
		target := snapshot()
		target.ErrorRate = 0.09 // +7pp against default tolerance 5pp

		eval := Evaluate(baseline, target, nil)
		if eval.Passed {
			t.Fatal("evaluation passed despite error rate increase")
		}
		v := eval.Violations[0]
		if v.Metric != models.MetricErrorRate {
			t.Fatalf("violated metric = %s, want error_rate", v.Metric)
		}
		if v.Delta != 7 {
			t.Errorf("delta = %v, want 7 percentage points", v.Delta)
		}
	})

	t.Run("increase metrics ignore drops", func(t *testing.T) {
		target := snapshot()
		target.ErrorEvents = 0
		target.WarningEvents = 0
		target.ErrorRate = 0

		eval := Evaluate(baseline, target, nil)
		if !eval.Passed {
			t.Errorf("improvement flagged as regression: %+v", eval.Violations)
		}
	})

	t.Run("violations keep metric order", func(t *testing.T) {
		target := snapshot()
		target.QualityScore = 50
		target.ErrorEvents = 100
		target.SessionCount = 1

		eval := Evaluate(baseline, target, nil)
		want := []models.RegressionMetric{
			models.MetricQualityScore,
			models.MetricErrorEvents,
			models.MetricSessionCount,
		}
		if len(eval.Violations) != len(want) {
			t.Fatalf("violations = %d, want %d", len(eval.Violations), len(want))
		}
		for i, metric := range want {
			if eval.Violations[i].Metric != metric {
				t.Errorf("violation[%d] = %s, want %s", i, eval.Violations[i].Metric, metric)
			}
		}
	})
}

func TestEvaluate_ThresholdResolution(t *testing.T) {
	baseline := models.RegressionBaseline{
		Snapshot:   snapshot(),
		Thresholds: &models.RegressionThresholds{QualityScoreDrop: fptr(20)},
	}
	target := snapshot()
	target.QualityScore = 80 // drop of 12.5

	t.Run("baseline override beats default", func(t *testing.T) {
		eval := Evaluate(baseline, target, nil)
		if !eval.Passed {
			t.Error("baseline tolerance of 20 not applied")
		}
	})

	t.Run("call-time override beats baseline", func(t *testing.T) {
		eval := Evaluate(baseline, target, &models.RegressionThresholds{QualityScoreDrop: fptr(10)})
		if eval.Passed {
			t.Error("call-time tolerance of 10 not applied")
		}
	})

	t.Run("nil override field falls through", func(t *testing.T) {
		// Override sets only an unrelated metric; the score drop still
		// resolves to the baseline's 20.
		eval := Evaluate(baseline, target, &models.RegressionThresholds{ErrorRateIncrease: fptr(1)})
		if !eval.Passed {
			t.Error("unset override field did not fall through to baseline")
		}
	})
}

func TestTopViolations(t *testing.T) {
	baseline := models.RegressionBaseline{Snapshot: snapshot()}
	target := models.QualitySnapshot{} // everything dropped

	eval := Evaluate(baseline, target, nil)
	if len(eval.Violations) < 3 {
		t.Fatalf("expected at least 3 violations, got %d", len(eval.Violations))
	}
	top := eval.TopViolations(3)
	if len(top) != 3 {
		t.Errorf("top = %d, want 3", len(top))
	}
	if top[0].Metric != eval.Violations[0].Metric {
		t.Error("truncation reordered violations")
	}
}
