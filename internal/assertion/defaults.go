// LinkScope - IoT Device Diagnostic Log Analytics
// Copyright 2026 ProbeLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/probelab/linkscope

package assertion

import (
	"time"

	"github.com/google/uuid"

	"github.com/probelab/linkscope/internal/models"
)

// DefaultRuleSetVersion identifies the built-in rule set. Bumping the version
// changes the rule names, so a project that already holds an older set keeps
// it untouched while new projects get the current one.
const DefaultRuleSetVersion = "v1"

// DefaultRuleSet returns the built-in rules installed for a project that has
// none when an automatic run starts. Installation matches by name and is
// idempotent.
func DefaultRuleSet(projectID string) []models.AssertionRule {
	now := time.Now().UTC()
	rule := func(name string, kind models.RuleKind, priority int, def models.RuleDefinition) models.AssertionRule {
		return models.AssertionRule{
			ID:        uuid.New(),
			ProjectID: projectID,
			Name:      "default/" + DefaultRuleSetVersion + "/" + name,
			Kind:      kind,
			Priority:  priority,
			Enabled:   true,
			CreatedAt: now,
			Def:       def,
		}
	}

	return []models.AssertionRule{
		rule("scan-must-run", models.RuleMustExist, 10, models.RuleDefinition{
			EventName: "ble_scan_start",
			MinCount:  1,
		}),
		rule("no-parser-errors", models.RuleMustNotExist, 20, models.RuleDefinition{
			EventName: models.EventParserError,
			MaxCount:  0,
		}),
		rule("connect-completes", models.RuleMustExistAfterAnchor, 30, models.RuleDefinition{
			AnchorEventName: "ble_connect_start",
			TargetEventName: "ble_connected",
			GroupBy:         "linkCode",
			WindowMs:        30000,
			AllowMissed:     0,
		}),
		rule("publish-acknowledged", models.RuleMustExistAfterAnchor, 40, models.RuleDefinition{
			AnchorEventName: "mqtt_publish",
			TargetEventName: "mqtt_ack",
			GroupBy:         "requestId",
			WindowMs:        60000,
			AllowMissed:     2,
		}),
	}
}
