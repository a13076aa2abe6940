// LinkScope - IoT Device Diagnostic Log Analytics
// Copyright 2026 ProbeLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/probelab/linkscope

package quality

import "github.com/probelab/linkscope/internal/models"

// BuildSnapshot reduces an analyzed batch to the scalar metrics used for
// baseline comparison. The quality score starts at 100 and loses a point per
// percent of error events and a fifth of a point per percent of warning
// events, clamped to [0,100]. Synthetic events count toward errors but not
// toward sessions or devices.
func BuildSnapshot(events []*models.CanonicalEvent) models.QualitySnapshot {
	snap := models.QualitySnapshot{TotalEvents: len(events)}

	links := make(map[string]struct{})
	devices := make(map[string]struct{})

	for _, ev := range events {
		switch {
		case ev.Level >= models.LevelError:
			snap.ErrorEvents++
		case ev.Level == models.LevelWarn:
			snap.WarningEvents++
		}
		if ev.IsSynthetic() {
			continue
		}
		if ev.Tracking.LinkCode != "" {
			links[ev.Tracking.LinkCode] = struct{}{}
		}
		if ev.Tracking.DeviceSN != "" {
			devices[ev.Tracking.DeviceSN] = struct{}{}
		}
	}

	snap.SessionCount = len(links)
	snap.DeviceCount = len(devices)

	if snap.TotalEvents > 0 {
		snap.ErrorRate = round2(float64(snap.ErrorEvents) / float64(snap.TotalEvents))
		warnRate := float64(snap.WarningEvents) / float64(snap.TotalEvents)
		score := 100 - 100*snap.ErrorRate - 20*warnRate
		if score < 0 {
			score = 0
		}
		snap.QualityScore = round2(score)
	} else {
		snap.QualityScore = 100
	}
	return snap
}
