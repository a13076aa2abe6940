// LinkScope - IoT Device Diagnostic Log Analytics
// Copyright 2026 ProbeLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/probelab/linkscope

package assertion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/probelab/linkscope/internal/models"
	"github.com/probelab/linkscope/internal/store"
)

// memSource is an in-memory EventSource + RuleSource for engine tests.
type memSource struct {
	events []*models.CanonicalEvent
	rules  []models.AssertionRule
	runs   []models.AssertionRun
}

func (m *memSource) QueryEvents(_ context.Context, q store.EventQuery) (store.EventPage, error) {
	var page store.EventPage
	for _, ev := range m.events {
		if !matches(ev, q) {
			continue
		}
		page.Events = append(page.Events, ev)
		if q.Limit > 0 && len(page.Events) >= q.Limit {
			break
		}
	}
	return page, nil
}

func (m *memSource) CountEvents(_ context.Context, q store.EventQuery) (int64, error) {
	var n int64
	for _, ev := range m.events {
		if matches(ev, q) {
			n++
		}
	}
	return n, nil
}

func matches(ev *models.CanonicalEvent, q store.EventQuery) bool {
	if q.EventName != "" && ev.EventName != q.EventName {
		return false
	}
	if q.MinLevel > 0 && ev.Level < q.MinLevel {
		return false
	}
	if q.FromTs > 0 && ev.Timestamp < q.FromTs {
		return false
	}
	if q.ToTs > 0 && ev.Timestamp > q.ToTs {
		return false
	}
	return true
}

func (m *memSource) ListRules(_ context.Context, _ string, enabledOnly bool) ([]models.AssertionRule, error) {
	var out []models.AssertionRule
	for _, r := range m.rules {
		if enabledOnly && !r.Enabled {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (m *memSource) InstallRules(_ context.Context, rules []models.AssertionRule) (int, error) {
	installed := 0
	for _, r := range rules {
		exists := false
		for _, have := range m.rules {
			if have.Name == r.Name {
				exists = true
				break
			}
		}
		if !exists {
			m.rules = append(m.rules, r)
			installed++
		}
	}
	return installed, nil
}

func (m *memSource) SaveRun(_ context.Context, run models.AssertionRun) error {
	m.runs = append(m.runs, run)
	return nil
}

func anchorEv(name string, ts int64, attemptID string) *models.CanonicalEvent {
	return &models.CanonicalEvent{
		ID:        uuid.New(),
		Timestamp: ts,
		Level:     models.LevelInfo,
		EventName: name,
		Tracking:  models.TrackingFields{AttemptID: attemptID},
	}
}

func enabledRule(name string, kind models.RuleKind, priority int, def models.RuleDefinition) models.AssertionRule {
	return models.AssertionRule{
		ID:        uuid.New(),
		Name:      name,
		Kind:      kind,
		Priority:  priority,
		Enabled:   true,
		CreatedAt: time.Now().UTC(),
		Def:       def,
	}
}

func TestEngine_AnchorCorrelation(t *testing.T) {
	// 10 anchors sharing an attemptId, 7 with a target inside a 30s window.
	src := &memSource{}
	for i := 0; i < 10; i++ {
		ts := int64(1000 + i*100000)
		src.events = append(src.events, anchorEv("cmd_send", ts, "a1"))
		if i < 7 {
			src.events = append(src.events, anchorEv("cmd_reply", ts+20000, "a1"))
		}
	}

	def := models.RuleDefinition{
		AnchorEventName: "cmd_send",
		TargetEventName: "cmd_reply",
		GroupBy:         "attemptId",
		WindowMs:        30000,
	}

	t.Run("missed above allowance fails", func(t *testing.T) {
		def := def
		def.AllowMissed = 2
		src.rules = []models.AssertionRule{enabledRule("reply-follows", models.RuleMustExistAfterAnchor, 10, def)}

		run, err := NewEngine(src, src).Run(context.Background(), "p1", "f1", models.TriggerManual)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		result := run.Results[0]
		if result.Matched != 7 || result.Missed != 3 {
			t.Errorf("matched/missed = %d/%d, want 7/3", result.Matched, result.Missed)
		}
		if result.Passed {
			t.Error("rule passed with 3 missed, allowance 2")
		}
		if len(result.SampleEventIDs) != 3 {
			t.Errorf("evidence ids = %d, want the 3 missed anchors", len(result.SampleEventIDs))
		}
	})

	t.Run("missed within allowance passes", func(t *testing.T) {
		def := def
		def.AllowMissed = 3
		src.rules = []models.AssertionRule{enabledRule("reply-follows", models.RuleMustExistAfterAnchor, 10, def)}

		run, err := NewEngine(src, src).Run(context.Background(), "p1", "f1", models.TriggerManual)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if !run.Results[0].Passed {
			t.Error("rule failed with 3 missed, allowance 3")
		}
	})
}

func TestEngine_AnchorEdgeCases(t *testing.T) {
	def := models.RuleDefinition{
		AnchorEventName: "cmd_send",
		TargetEventName: "cmd_reply",
		GroupBy:         "attemptId",
		WindowMs:        5000,
	}

	t.Run("zero anchors trivially pass", func(t *testing.T) {
		src := &memSource{
			rules: []models.AssertionRule{enabledRule("r", models.RuleMustExistAfterAnchor, 10, def)},
		}
		run, err := NewEngine(src, src).Run(context.Background(), "p1", "f1", models.TriggerManual)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		result := run.Results[0]
		if !result.Passed || !result.Skipped || result.Missed != 0 {
			t.Errorf("result = %+v, want skipped pass with missed 0", result)
		}
	})

	t.Run("anchors without correlator are not counted", func(t *testing.T) {
		src := &memSource{
			events: []*models.CanonicalEvent{anchorEv("cmd_send", 1000, "")},
			rules:  []models.AssertionRule{enabledRule("r", models.RuleMustExistAfterAnchor, 10, def)},
		}
		run, err := NewEngine(src, src).Run(context.Background(), "p1", "f1", models.TriggerManual)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if !run.Results[0].Skipped {
			t.Error("anchor without correlator should leave the rule skipped")
		}
	})

	t.Run("window boundary is inclusive", func(t *testing.T) {
		src := &memSource{
			events: []*models.CanonicalEvent{
				anchorEv("cmd_send", 1000, "a1"),
				anchorEv("cmd_reply", 6000, "a1"), // exactly anchorTs+windowMs
			},
			rules: []models.AssertionRule{enabledRule("r", models.RuleMustExistAfterAnchor, 10, def)},
		}
		run, err := NewEngine(src, src).Run(context.Background(), "p1", "f1", models.TriggerManual)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if got := run.Results[0].Matched; got != 1 {
			t.Errorf("matched = %d, want boundary target to count", got)
		}
	})

	t.Run("target in other group does not match", func(t *testing.T) {
		src := &memSource{
			events: []*models.CanonicalEvent{
				anchorEv("cmd_send", 1000, "a1"),
				anchorEv("cmd_reply", 2000, "a2"),
			},
			rules: []models.AssertionRule{enabledRule("r", models.RuleMustExistAfterAnchor, 10, def)},
		}
		run, err := NewEngine(src, src).Run(context.Background(), "p1", "f1", models.TriggerManual)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if got := run.Results[0].Missed; got != 1 {
			t.Errorf("missed = %d, want cross-group target ignored", got)
		}
	})
}

func TestEngine_Existence(t *testing.T) {
	src := &memSource{
		events: []*models.CanonicalEvent{
			anchorEv("ble_scan_start", 1000, ""),
			anchorEv("PARSER_ERROR", 2000, ""),
			anchorEv("PARSER_ERROR", 3000, ""),
		},
	}

	src.rules = []models.AssertionRule{
		enabledRule("scan-ran", models.RuleMustExist, 10, models.RuleDefinition{EventName: "ble_scan_start"}),
		enabledRule("clean-parse", models.RuleMustNotExist, 20, models.RuleDefinition{EventName: "PARSER_ERROR", MaxCount: 1}),
		enabledRule("pairing-ran", models.RuleMustExist, 30, models.RuleDefinition{EventName: "ble_pair_done", MinCount: 1}),
	}

	run, err := NewEngine(src, src).Run(context.Background(), "p1", "f1", models.TriggerManual)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if run.Total != 3 || run.Passed != 1 || run.Failed != 2 {
		t.Fatalf("run = %d/%d/%d, want total 3, passed 1, failed 2", run.Total, run.Passed, run.Failed)
	}
	if run.PassRate != 33.33 {
		t.Errorf("passRate = %v, want 33.33", run.PassRate)
	}

	if !run.Results[0].Passed {
		t.Error("must_exist with one match failed")
	}
	if run.Results[1].Passed {
		t.Error("must_not_exist passed with 2 matches, max 1")
	}
	if run.Results[2].Passed {
		t.Error("must_exist passed with zero matches")
	}
	if got := run.Results[1].Matched; got != 2 {
		t.Errorf("matched = %d, want 2", got)
	}
}

func TestEngine_RuleOrdering(t *testing.T) {
	now := time.Now().UTC()
	older := enabledRule("older", models.RuleMustExist, 10, models.RuleDefinition{EventName: "x"})
	older.CreatedAt = now.Add(-time.Hour)
	newer := enabledRule("newer", models.RuleMustExist, 10, models.RuleDefinition{EventName: "x"})
	newer.CreatedAt = now
	last := enabledRule("last", models.RuleMustExist, 99, models.RuleDefinition{EventName: "x"})

	src := &memSource{rules: []models.AssertionRule{last, older, newer}}
	run, err := NewEngine(src, src).Run(context.Background(), "p1", "f1", models.TriggerManual)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var names []string
	for _, r := range run.Results {
		names = append(names, r.RuleName)
	}
	want := []string{"newer", "older", "last"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("order = %v, want %v", names, want)
		}
	}
}

func TestEngine_DefaultRuleInstall(t *testing.T) {
	t.Run("automatic trigger installs defaults once", func(t *testing.T) {
		src := &memSource{}
		engine := NewEngine(src, src)

		run, err := engine.Run(context.Background(), "p1", "f1", models.TriggerAutomatic)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if run.Total != len(DefaultRuleSet("p1")) {
			t.Errorf("total = %d, want the default rule set", run.Total)
		}

		before := len(src.rules)
		if _, err := engine.Run(context.Background(), "p1", "f2", models.TriggerAutomatic); err != nil {
			t.Fatalf("second Run: %v", err)
		}
		if len(src.rules) != before {
			t.Errorf("second automatic run installed rules again: %d -> %d", before, len(src.rules))
		}
	})

	t.Run("injected rule set replaces the built-in defaults", func(t *testing.T) {
		custom := func(projectID string) []models.AssertionRule {
			return []models.AssertionRule{
				enabledRule("custom/only-rule", models.RuleMustNotExist, 10, models.RuleDefinition{
					EventName: models.EventParserError,
					MaxCount:  0,
				}),
			}
		}
		src := &memSource{}
		engine := NewEngine(src, src, WithDefaultRules(custom))

		run, err := engine.Run(context.Background(), "p1", "f1", models.TriggerAutomatic)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if run.Total != 1 {
			t.Errorf("total = %d, want the injected single-rule set", run.Total)
		}
		if len(src.rules) != 1 || src.rules[0].Name != "custom/only-rule" {
			t.Errorf("installed rules = %+v, want only the injected rule", src.rules)
		}
	})

	t.Run("manual trigger does not install", func(t *testing.T) {
		src := &memSource{}
		run, err := NewEngine(src, src).Run(context.Background(), "p1", "f1", models.TriggerManual)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if run.Total != 0 || len(src.rules) != 0 {
			t.Errorf("manual run against empty project installed %d rules", len(src.rules))
		}
	})
}

func TestEngine_InvalidRuleAbortsRun(t *testing.T) {
	bad := enabledRule("bad-window", models.RuleMustExistAfterAnchor, 10, models.RuleDefinition{
		AnchorEventName: "a",
		TargetEventName: "b",
		GroupBy:         "linkCode",
		WindowMs:        100, // below minimum
	})
	src := &memSource{rules: []models.AssertionRule{bad}}

	_, err := NewEngine(src, src).Run(context.Background(), "p1", "f1", models.TriggerManual)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Reason != ReasonWindowOutOfRange {
		t.Errorf("reason = %s, want %s", verr.Reason, ReasonWindowOutOfRange)
	}
	if len(src.runs) != 0 {
		t.Error("aborted run was persisted")
	}
}

func TestValidateRule(t *testing.T) {
	valid := models.RuleDefinition{
		AnchorEventName: "a",
		TargetEventName: "b",
		GroupBy:         "deviceMac",
		WindowMs:        models.MinRuleWindowMs,
	}

	cases := []struct {
		name   string
		rule   models.AssertionRule
		reason string // empty = valid
	}{
		{"valid anchor rule", enabledRule("r", models.RuleMustExistAfterAnchor, 1, valid), ""},
		{"valid must_exist", enabledRule("r", models.RuleMustExist, 1, models.RuleDefinition{EventName: "x"}), ""},
		{"unknown kind", enabledRule("r", "sometimes_exists", 1, valid), ReasonUnknownKind},
		{"missing event name", enabledRule("r", models.RuleMustExist, 1, models.RuleDefinition{}), ReasonMissingEventName},
		{"missing anchor", enabledRule("r", models.RuleMustExistAfterAnchor, 1, func() models.RuleDefinition {
			d := valid
			d.AnchorEventName = ""
			return d
		}()), ReasonMissingAnchor},
		{"missing target", enabledRule("r", models.RuleMustExistAfterAnchor, 1, func() models.RuleDefinition {
			d := valid
			d.TargetEventName = ""
			return d
		}()), ReasonMissingTarget},
		{"window too large", enabledRule("r", models.RuleMustExistAfterAnchor, 1, func() models.RuleDefinition {
			d := valid
			d.WindowMs = models.MaxRuleWindowMs + 1
			return d
		}()), ReasonWindowOutOfRange},
		{"bad group by", enabledRule("r", models.RuleMustExistAfterAnchor, 1, func() models.RuleDefinition {
			d := valid
			d.GroupBy = "threadName"
			return d
		}()), ReasonBadDefinition},
		{"inverted filter range", enabledRule("r", models.RuleMustExist, 1, models.RuleDefinition{
			EventName: "x",
			Filter:    models.RuleFilter{FromTs: 2000, ToTs: 1000},
		}), ReasonBadFilter},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateRule(tc.rule)
			if tc.reason == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Reason != tc.reason {
				t.Errorf("reason = %s, want %s", verr.Reason, tc.reason)
			}
		})
	}
}

func TestDefaultRuleSet_Valid(t *testing.T) {
	for _, rule := range DefaultRuleSet("p1") {
		if err := ValidateRule(rule); err != nil {
			t.Errorf("default rule %q invalid: %v", rule.Name, err)
		}
		if !rule.Enabled {
			t.Errorf("default rule %q not enabled", rule.Name)
		}
	}
}
