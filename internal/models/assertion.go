// LinkScope - IoT Device Diagnostic Log Analytics
// Copyright 2026 ProbeLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/probelab/linkscope

package models

import (
	"time"

	"github.com/google/uuid"
)

// RuleKind identifies one of the three assertion rule kinds.
type RuleKind string

// Assertion rule kinds.
const (
	RuleMustExist            RuleKind = "must_exist"
	RuleMustNotExist         RuleKind = "must_not_exist"
	RuleMustExistAfterAnchor RuleKind = "must_exist_after_anchor"
)

// Anchor/target window bounds in milliseconds.
const (
	MinRuleWindowMs = 1000
	MaxRuleWindowMs = 600000
)

// GroupByKeys lists the correlators an anchor/target rule may group by.
var GroupByKeys = []string{"linkCode", "attemptId", "deviceMac", "requestId"}

// RuleFilter is the shared optional filter applied before rule matching.
type RuleFilter struct {
	// FromTs/ToTs bound the evaluated time range (epoch ms, 0 = unbounded).
	FromTs int64 `json:"from_ts,omitempty"`
	ToTs   int64 `json:"to_ts,omitempty"`

	// MinLevel drops events below this severity (0 = no minimum).
	MinLevel int `json:"min_level,omitempty" validate:"omitempty,min=1,max=4"`
}

// RuleDefinition is the validated free-form definition of an assertion rule.
// Which fields are required depends on the rule kind; Validate in the assertion
// package enforces per-kind structure.
type RuleDefinition struct {
	// must_exist / must_not_exist
	EventName string `json:"event_name,omitempty"`
	MinCount  int    `json:"min_count,omitempty" validate:"omitempty,min=1"`
	MaxCount  int    `json:"max_count,omitempty" validate:"omitempty,min=0"`

	// must_exist_after_anchor
	AnchorEventName string `json:"anchor_event_name,omitempty"`
	TargetEventName string `json:"target_event_name,omitempty"`
	GroupBy         string `json:"group_by,omitempty" validate:"omitempty,oneof=linkCode attemptId deviceMac requestId"`
	WindowMs        int64  `json:"window_ms,omitempty"`
	AllowMissed     int    `json:"allow_missed,omitempty" validate:"omitempty,min=0"`

	Filter RuleFilter `json:"filter"`
}

// AssertionRule is one declarative rule. Rules are evaluated in priority-ascending
// order, ties broken by creation time descending.
type AssertionRule struct {
	ID        uuid.UUID      `json:"id"`
	ProjectID string         `json:"project_id,omitempty"`
	Name      string         `json:"name"`
	Kind      RuleKind       `json:"kind"`
	Priority  int            `json:"priority"`
	Enabled   bool           `json:"enabled"`
	CreatedAt time.Time      `json:"created_at"`
	Def       RuleDefinition `json:"definition"`
}

// RuleResult is the outcome of evaluating one rule against one log file.
type RuleResult struct {
	RuleID   uuid.UUID `json:"rule_id"`
	RuleName string    `json:"rule_name"`
	Kind     RuleKind  `json:"kind"`

	Passed bool `json:"passed"`

	// Skipped marks a trivial pass (e.g. an anchor rule with zero anchors).
	Skipped bool `json:"skipped,omitempty"`

	// Matched and Missed carry the kind-specific counts: matched events for
	// existence rules, matched/missed anchors for anchor rules.
	Matched int `json:"matched"`
	Missed  int `json:"missed"`

	Message string `json:"message,omitempty"`

	// SampleEventIDs holds up to 5 evidence event ids.
	SampleEventIDs []uuid.UUID `json:"sample_event_ids,omitempty"`
}

// RunTrigger distinguishes user-initiated runs from automatic ones. Automatic runs
// against a project with zero enabled rules install the default rule set first.
type RunTrigger string

// Run triggers.
const (
	TriggerManual    RunTrigger = "manual"
	TriggerAutomatic RunTrigger = "automatic"
)

// AssertionRun is one immutable evaluation of a rule set against one log file.
type AssertionRun struct {
	ID        uuid.UUID  `json:"id"`
	ProjectID string     `json:"project_id,omitempty"`
	FileID    string     `json:"file_id"`
	Trigger   RunTrigger `json:"trigger"`

	Total  int `json:"total"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`

	// PassRate is passed/total as a percentage, rounded to 2 decimals.
	PassRate float64 `json:"pass_rate"`

	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Results    []RuleResult `json:"results"`
}
