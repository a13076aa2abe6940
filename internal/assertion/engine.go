// LinkScope - IoT Device Diagnostic Log Analytics
// Copyright 2026 ProbeLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/probelab/linkscope

package assertion

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/probelab/linkscope/internal/logging"
	"github.com/probelab/linkscope/internal/metrics"
	"github.com/probelab/linkscope/internal/models"
	"github.com/probelab/linkscope/internal/store"
)

// Fetch caps. Rules touching more rows than this get a truncated, not failed,
// evaluation.
const (
	maxAnchorFetch = 5000
	maxTargetFetch = 20000

	maxSampleIDs = 5
)

// EventSource is the read-only slice of the event store the engine consumes.
type EventSource interface {
	QueryEvents(ctx context.Context, q store.EventQuery) (store.EventPage, error)
	CountEvents(ctx context.Context, q store.EventQuery) (int64, error)
}

// RuleSource persists rules and run records for the engine.
type RuleSource interface {
	ListRules(ctx context.Context, projectID string, enabledOnly bool) ([]models.AssertionRule, error)
	InstallRules(ctx context.Context, rules []models.AssertionRule) (installed int, err error)
	SaveRun(ctx context.Context, run models.AssertionRun) error
}

// Engine evaluates assertion rules against one log file's stored events.
type Engine struct {
	events   EventSource
	rules    RuleSource
	defaults func(projectID string) []models.AssertionRule
}

// Option configures an Engine.
type Option func(*Engine)

// WithDefaultRules replaces the rule set an automatic run installs into a
// project that has no enabled rules. Unset, the engine installs
// DefaultRuleSet.
func WithDefaultRules(fn func(projectID string) []models.AssertionRule) Option {
	return func(e *Engine) {
		e.defaults = fn
	}
}

// NewEngine returns an engine reading events from es and rules from rs.
func NewEngine(es EventSource, rs RuleSource, opts ...Option) *Engine {
	e := &Engine{events: es, rules: rs, defaults: DefaultRuleSet}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run evaluates the project's enabled rules against one file and persists the
// immutable run record. An automatic trigger against a project with no enabled
// rules installs the default rule set first. A structurally invalid rule
// aborts the whole run.
func (e *Engine) Run(ctx context.Context, projectID, fileID string, trigger models.RunTrigger) (models.AssertionRun, error) {
	log := logging.Ctx(ctx)

	rules, err := e.loadRules(ctx, projectID, trigger)
	if err != nil {
		return models.AssertionRun{}, err
	}
	for _, rule := range rules {
		if err := ValidateRule(rule); err != nil {
			return models.AssertionRun{}, err
		}
	}

	run := models.AssertionRun{
		ID:        uuid.New(),
		ProjectID: projectID,
		FileID:    fileID,
		Trigger:   trigger,
		StartedAt: time.Now().UTC(),
		Total:     len(rules),
	}

	for _, rule := range rules {
		result, err := e.evaluate(ctx, fileID, rule)
		if err != nil {
			return models.AssertionRun{}, fmt.Errorf("evaluating rule %q: %w", rule.Name, err)
		}
		if result.Passed {
			run.Passed++
		} else {
			run.Failed++
		}
		run.Results = append(run.Results, result)
	}

	if run.Total > 0 {
		run.PassRate = math.Round(float64(run.Passed)/float64(run.Total)*10000) / 100
	}
	run.FinishedAt = time.Now().UTC()

	if err := e.rules.SaveRun(ctx, run); err != nil {
		return models.AssertionRun{}, fmt.Errorf("saving run: %w", err)
	}

	skipped := 0
	for _, r := range run.Results {
		if r.Skipped {
			skipped++
		}
	}
	metrics.RecordRuleRun(string(trigger), run.FinishedAt.Sub(run.StartedAt),
		run.Passed, run.Failed, skipped, run.PassRate)

	log.Info().
		Str("file_id", fileID).
		Int("total", run.Total).
		Int("passed", run.Passed).
		Float64("pass_rate", run.PassRate).
		Msg("assertion run finished")
	return run, nil
}

// loadRules lists enabled rules sorted by priority ascending, creation time
// descending, installing the defaults first when an automatic run finds none.
func (e *Engine) loadRules(ctx context.Context, projectID string, trigger models.RunTrigger) ([]models.AssertionRule, error) {
	rules, err := e.rules.ListRules(ctx, projectID, true)
	if err != nil {
		return nil, fmt.Errorf("listing rules: %w", err)
	}

	if len(rules) == 0 && trigger == models.TriggerAutomatic {
		installed, err := e.rules.InstallRules(ctx, e.defaults(projectID))
		if err != nil {
			return nil, fmt.Errorf("installing default rules: %w", err)
		}
		logging.Ctx(ctx).Info().Int("installed", installed).
			Msg("installed default rule set")
		rules, err = e.rules.ListRules(ctx, projectID, true)
		if err != nil {
			return nil, fmt.Errorf("listing rules: %w", err)
		}
	}

	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority < rules[j].Priority
		}
		return rules[i].CreatedAt.After(rules[j].CreatedAt)
	})
	return rules, nil
}

func (e *Engine) evaluate(ctx context.Context, fileID string, rule models.AssertionRule) (models.RuleResult, error) {
	switch rule.Kind {
	case models.RuleMustExist, models.RuleMustNotExist:
		return e.evaluateExistence(ctx, fileID, rule)
	case models.RuleMustExistAfterAnchor:
		return e.evaluateAnchor(ctx, fileID, rule)
	}
	return models.RuleResult{}, &ValidationError{RuleName: rule.Name, Reason: ReasonUnknownKind, Detail: string(rule.Kind)}
}

func (e *Engine) evaluateExistence(ctx context.Context, fileID string, rule models.AssertionRule) (models.RuleResult, error) {
	result := models.RuleResult{RuleID: rule.ID, RuleName: rule.Name, Kind: rule.Kind}

	q := baseQuery(fileID, rule)
	q.EventName = rule.Def.EventName

	count, err := e.events.CountEvents(ctx, q)
	if err != nil {
		return result, err
	}
	result.Matched = int(count)

	if rule.Kind == models.RuleMustExist {
		minCount := rule.Def.MinCount
		if minCount <= 0 {
			minCount = 1
		}
		result.Passed = count >= int64(minCount)
		if !result.Passed {
			result.Message = fmt.Sprintf("found %d of %d required %q events", count, minCount, rule.Def.EventName)
		}
	} else {
		result.Passed = count <= int64(rule.Def.MaxCount)
		if !result.Passed {
			result.Message = fmt.Sprintf("found %d %q events, at most %d allowed", count, rule.Def.EventName, rule.Def.MaxCount)
		}
	}

	// Evidence: a page of the matching events, capped.
	if count > 0 {
		q.Limit = maxSampleIDs
		page, err := e.events.QueryEvents(ctx, q)
		if err != nil {
			return result, err
		}
		for _, ev := range page.Events {
			result.SampleEventIDs = append(result.SampleEventIDs, ev.ID)
		}
	}
	return result, nil
}

// evaluateAnchor runs the windowed anchor/target correlation. Anchor and
// target fetches are independent reads and are issued in parallel; targets are
// then restricted to the global [firstAnchor, lastAnchor+window] span before
// the per-anchor window check.
func (e *Engine) evaluateAnchor(ctx context.Context, fileID string, rule models.AssertionRule) (models.RuleResult, error) {
	result := models.RuleResult{RuleID: rule.ID, RuleName: rule.Name, Kind: rule.Kind}

	anchorQ := baseQuery(fileID, rule)
	anchorQ.EventName = rule.Def.AnchorEventName
	anchorQ.Limit = maxAnchorFetch

	targetQ := baseQuery(fileID, rule)
	targetQ.EventName = rule.Def.TargetEventName
	targetQ.Limit = maxTargetFetch

	var (
		wg                   sync.WaitGroup
		anchors, targets     []*models.CanonicalEvent
		anchorErr, targetErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		page, err := e.events.QueryEvents(ctx, anchorQ)
		anchors, anchorErr = page.Events, err
	}()
	go func() {
		defer wg.Done()
		page, err := e.events.QueryEvents(ctx, targetQ)
		targets, targetErr = page.Events, err
	}()
	wg.Wait()
	if anchorErr != nil {
		return result, anchorErr
	}
	if targetErr != nil {
		return result, targetErr
	}

	// Anchors without the correlator cannot be matched and are not counted.
	key := groupKey(rule.Def.GroupBy)
	valid := anchors[:0]
	for _, a := range anchors {
		if key(a) != "" {
			valid = append(valid, a)
		}
	}
	anchors = valid

	if len(anchors) == 0 {
		result.Passed = true
		result.Skipped = true
		result.Message = "no anchor events"
		return result, nil
	}

	firstTs, lastTs := anchors[0].Timestamp, anchors[0].Timestamp
	for _, a := range anchors[1:] {
		if a.Timestamp < firstTs {
			firstTs = a.Timestamp
		}
		if a.Timestamp > lastTs {
			lastTs = a.Timestamp
		}
	}
	spanEnd := lastTs + rule.Def.WindowMs

	// Group in-span targets by correlator, timestamps ascending.
	byKey := make(map[string][]int64)
	for _, t := range targets {
		if t.Timestamp < firstTs || t.Timestamp > spanEnd {
			continue
		}
		k := key(t)
		if k == "" {
			continue
		}
		byKey[k] = append(byKey[k], t.Timestamp)
	}
	for _, stamps := range byKey {
		sort.Slice(stamps, func(i, j int) bool { return stamps[i] < stamps[j] })
	}

	var missedIDs []uuid.UUID
	for _, a := range anchors {
		if hasTargetInWindow(byKey[key(a)], a.Timestamp, a.Timestamp+rule.Def.WindowMs) {
			result.Matched++
			if len(missedIDs) == 0 && len(result.SampleEventIDs) < maxSampleIDs {
				result.SampleEventIDs = append(result.SampleEventIDs, a.ID)
			}
		} else {
			result.Missed++
			if len(missedIDs) < maxSampleIDs {
				missedIDs = append(missedIDs, a.ID)
			}
		}
	}

	// Missed anchors are the evidence when there are any.
	if len(missedIDs) > 0 {
		result.SampleEventIDs = missedIDs
	}

	result.Passed = result.Missed <= rule.Def.AllowMissed
	if !result.Passed {
		result.Message = fmt.Sprintf("%d of %d anchors missed a %q target within %dms (allowed %d)",
			result.Missed, len(anchors), rule.Def.TargetEventName, rule.Def.WindowMs, rule.Def.AllowMissed)
	}
	return result, nil
}

// hasTargetInWindow reports whether the ascending timestamp slice holds a
// value in [from, to].
func hasTargetInWindow(stamps []int64, from, to int64) bool {
	i := sort.Search(len(stamps), func(i int) bool { return stamps[i] >= from })
	return i < len(stamps) && stamps[i] <= to
}

func baseQuery(fileID string, rule models.AssertionRule) store.EventQuery {
	return store.EventQuery{
		ProjectID: rule.ProjectID,
		FileID:    fileID,
		FromTs:    rule.Def.Filter.FromTs,
		ToTs:      rule.Def.Filter.ToTs,
		MinLevel:  rule.Def.Filter.MinLevel,
	}
}

// groupKey maps a groupBy name to its tracking-field accessor.
func groupKey(name string) func(*models.CanonicalEvent) string {
	switch name {
	case "linkCode":
		return func(ev *models.CanonicalEvent) string { return ev.Tracking.LinkCode }
	case "attemptId":
		return func(ev *models.CanonicalEvent) string { return ev.Tracking.AttemptID }
	case "deviceMac":
		return func(ev *models.CanonicalEvent) string { return ev.Tracking.DeviceMac }
	case "requestId":
		return func(ev *models.CanonicalEvent) string { return ev.Tracking.RequestID }
	}
	return func(*models.CanonicalEvent) string { return "" }
}
