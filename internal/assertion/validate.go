// LinkScope - IoT Device Diagnostic Log Analytics
// Copyright 2026 ProbeLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/probelab/linkscope

package assertion

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/probelab/linkscope/internal/models"
)

// Validation reason codes. These identify why a rule definition was rejected;
// a rejected definition aborts the run it belongs to.
const (
	ReasonUnknownKind      = "unknown_kind"
	ReasonMissingEventName = "missing_event_name"
	ReasonMissingAnchor    = "missing_anchor_event"
	ReasonMissingTarget    = "missing_target_event"
	ReasonBadGroupBy       = "invalid_group_by"
	ReasonWindowOutOfRange = "window_out_of_range"
	ReasonBadFilter        = "invalid_filter"
	ReasonBadDefinition    = "invalid_definition"
)

// ValidationError reports a structurally invalid rule definition. It carries a
// machine-readable reason code alongside the offending rule name.
type ValidationError struct {
	RuleName string
	Reason   string
	Detail   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("rule %q invalid (%s): %s", e.RuleName, e.Reason, e.Detail)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateRule checks a rule definition against its kind's structural
// requirements. The returned error, if any, is always a *ValidationError.
func ValidateRule(rule models.AssertionRule) error {
	fail := func(reason, detail string) error {
		return &ValidationError{RuleName: rule.Name, Reason: reason, Detail: detail}
	}

	if err := validate.Struct(rule.Def); err != nil {
		return fail(ReasonBadDefinition, err.Error())
	}
	if f := rule.Def.Filter; f.FromTs != 0 && f.ToTs != 0 && f.ToTs < f.FromTs {
		return fail(ReasonBadFilter, "filter time range is inverted")
	}

	switch rule.Kind {
	case models.RuleMustExist, models.RuleMustNotExist:
		if rule.Def.EventName == "" {
			return fail(ReasonMissingEventName, "event_name is required")
		}

	case models.RuleMustExistAfterAnchor:
		if rule.Def.AnchorEventName == "" {
			return fail(ReasonMissingAnchor, "anchor_event_name is required")
		}
		if rule.Def.TargetEventName == "" {
			return fail(ReasonMissingTarget, "target_event_name is required")
		}
		if !validGroupBy(rule.Def.GroupBy) {
			return fail(ReasonBadGroupBy,
				fmt.Sprintf("group_by %q is not one of %v", rule.Def.GroupBy, models.GroupByKeys))
		}
		if rule.Def.WindowMs < models.MinRuleWindowMs || rule.Def.WindowMs > models.MaxRuleWindowMs {
			return fail(ReasonWindowOutOfRange,
				fmt.Sprintf("window_ms %d outside [%d,%d]",
					rule.Def.WindowMs, models.MinRuleWindowMs, models.MaxRuleWindowMs))
		}

	default:
		return fail(ReasonUnknownKind, string(rule.Kind))
	}
	return nil
}

func validGroupBy(key string) bool {
	for _, k := range models.GroupByKeys {
		if key == k {
			return true
		}
	}
	return false
}
