// LinkScope - IoT Device Diagnostic Log Analytics
// Copyright 2026 ProbeLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/probelab/linkscope

package session

import (
	"regexp"

	"github.com/probelab/linkscope/internal/models"
)

// phaseSignal is what one event contributes to phase reconstruction.
type phaseSignal int

const (
	signalNone phaseSignal = iota
	signalScanStart
	signalPairStart
	signalConnectStart
	signalConnected
	signalDisconnect
)

// Fixed event-name patterns for phase detection. Order matters in classify:
// disconnect is tested before connected because "disconnected" contains
// "connected".
var (
	scanStartPattern    = regexp.MustCompile(`(?i)scan[_.]?start|start[_.]?scan`)
	pairStartPattern    = regexp.MustCompile(`(?i)pair[_.]?start|start[_.]?pair|bond[_.]?start`)
	connectStartPattern = regexp.MustCompile(`(?i)connect[_.]?start|start[_.]?connect`)
	connectedPattern    = regexp.MustCompile(`(?i)connected|connect[_.]?(ok|success)`)
	disconnectPattern   = regexp.MustCompile(`(?i)disconnect`)

	errorPattern   = regexp.MustCompile(`(?i)fail|error|exception`)
	timeoutPattern = regexp.MustCompile(`(?i)time[_.]?out`)
)

// classify maps an event to its phase signal, combining name-pattern matches
// with the structured (stage=ble, op=connect, result) signal.
func classify(ev *models.CanonicalEvent) phaseSignal {
	if ev.Tracking.Stage == "ble" && ev.Tracking.Op == "connect" {
		switch ev.Tracking.Result {
		case "start":
			return signalConnectStart
		case "ok":
			return signalConnected
		}
	}

	name := ev.EventName
	switch {
	case disconnectPattern.MatchString(name):
		return signalDisconnect
	case connectStartPattern.MatchString(name):
		return signalConnectStart
	case connectedPattern.MatchString(name):
		return signalConnected
	case pairStartPattern.MatchString(name):
		return signalPairStart
	case scanStartPattern.MatchString(name):
		return signalScanStart
	}
	return signalNone
}

// isErrorEvent reports whether the event counts against the session's error
// tally: severity >= 4 or an error-pattern name match.
func isErrorEvent(ev *models.CanonicalEvent) bool {
	return ev.Level >= models.LevelError || errorPattern.MatchString(ev.EventName)
}

// isTimeoutEvent reports whether the event's name or result indicates a timeout.
func isTimeoutEvent(ev *models.CanonicalEvent) bool {
	return timeoutPattern.MatchString(ev.EventName) || timeoutPattern.MatchString(ev.Tracking.Result)
}

// phaseLabel assigns the timeline phase label for one event. Request-correlated
// events with no phase signal of their own are communication traffic.
func phaseLabel(ev *models.CanonicalEvent) models.PhaseName {
	switch classify(ev) {
	case signalScanStart:
		return models.PhaseScan
	case signalPairStart:
		return models.PhasePair
	case signalConnectStart:
		return models.PhaseConnect
	case signalConnected:
		return models.PhaseConnected
	case signalDisconnect:
		return models.PhaseDisconnect
	}
	if ev.Tracking.RequestID != "" {
		return models.PhaseCommunicate
	}
	return models.PhaseNone
}

// buildTimeline run-length encodes the ordered event sequence into contiguous
// named phases, closing a phase whenever the label changes. Error and timeout
// status from any event inside a phase is carried onto the phase.
func buildTimeline(events []*models.CanonicalEvent) []models.TimelinePhase {
	var timeline []models.TimelinePhase
	var cur *models.TimelinePhase

	for _, ev := range events {
		label := phaseLabel(ev)
		if cur == nil || cur.Phase != label {
			timeline = append(timeline, models.TimelinePhase{
				Phase:     label,
				StartedAt: ev.Timestamp,
			})
			cur = &timeline[len(timeline)-1]
		}
		cur.EndedAt = ev.Timestamp
		cur.EventCount++
		if isErrorEvent(ev) {
			cur.HasError = true
		}
		if isTimeoutEvent(ev) {
			cur.HasTimeout = true
		}
	}
	return timeline
}
