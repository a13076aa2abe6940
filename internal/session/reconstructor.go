// LinkScope - IoT Device Diagnostic Log Analytics
// Copyright 2026 ProbeLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/probelab/linkscope

// Package session reconstructs per-link device sessions from ordered canonical
// event sequences: phase timestamps, a derived status state machine, a
// run-length-encoded phase timeline, and request/command chains.
//
// Reconstruction is wholesale: the session aggregate is recomputed from the full
// event set for one (projectScope, linkCode) key on every refresh; there is no
// incremental merge.
package session

import (
	"github.com/probelab/linkscope/internal/models"
)

// DefaultChainGapMs is the time-gap heuristic window for splitting command
// chains when no request correlator is present.
const DefaultChainGapMs = 5000

// Config tunes session reconstruction.
type Config struct {
	// ChainGapMs splits gap-based command chains. Default 5000.
	ChainGapMs int64
}

// Reconstructor derives session aggregates from event sequences. Stateless and
// safe for concurrent use.
type Reconstructor struct {
	chainGapMs int64
}

// NewReconstructor creates a reconstructor, applying defaults for zero values.
func NewReconstructor(cfg Config) *Reconstructor {
	gap := cfg.ChainGapMs
	if gap <= 0 {
		gap = DefaultChainGapMs
	}
	return &Reconstructor{chainGapMs: gap}
}

// Reconstruct derives the session aggregate, phase timeline, and command chains
// for one link code from its ordered-by-timestamp event sequence.
func (r *Reconstructor) Reconstruct(projectID, linkCode string, events []*models.CanonicalEvent) *models.SessionReconstruction {
	agg := models.SessionAggregate{
		ProjectID: projectID,
		LinkCode:  linkCode,
		Status:    models.StatusScanning,
	}
	if len(events) == 0 {
		return &models.SessionReconstruction{Session: agg}
	}

	agg.StartedAt = events[0].Timestamp
	agg.EndedAt = events[len(events)-1].Timestamp

	requestIDs := make(map[string]bool)
	hadRequestActivity := false

	for _, ev := range events {
		agg.EventCount++

		if agg.DeviceMac == "" && ev.Tracking.DeviceMac != "" {
			agg.DeviceMac = ev.Tracking.DeviceMac
		}
		if agg.DeviceSN == "" && ev.Tracking.DeviceSN != "" {
			agg.DeviceSN = ev.Tracking.DeviceSN
		}
		if ev.Tracking.RequestID != "" {
			requestIDs[ev.Tracking.RequestID] = true
			hadRequestActivity = true
		}

		signal := classify(ev)
		r.recordPhaseTimestamp(&agg, signal, ev.Timestamp)
		r.advanceStatus(&agg, signal, ev, hadRequestActivity)
	}
	agg.RequestCount = len(requestIDs)

	return &models.SessionReconstruction{
		Session:  agg,
		Timeline: buildTimeline(events),
		Chains:   r.buildChains(events),
	}
}

// recordPhaseTimestamp stores the first occurrence of each phase signal.
func (r *Reconstructor) recordPhaseTimestamp(agg *models.SessionAggregate, signal phaseSignal, ts int64) {
	switch signal {
	case signalScanStart:
		if agg.ScanStartedAt == 0 {
			agg.ScanStartedAt = ts
		}
	case signalPairStart:
		if agg.PairStartedAt == 0 {
			agg.PairStartedAt = ts
		}
	case signalConnectStart:
		if agg.ConnectStartedAt == 0 {
			agg.ConnectStartedAt = ts
		}
	case signalConnected:
		if agg.ConnectedAt == 0 {
			agg.ConnectedAt = ts
		}
	case signalDisconnect:
		if agg.DisconnectedAt == 0 {
			agg.DisconnectedAt = ts
		}
	}
}

// advanceStatus drives the session status state machine for one event.
//
// Transitions are triggered by phase detections in event order. An error event
// increments the error counter and moves the status to timeout or error unless
// the session is already disconnected. Reaching connected plus any correlated
// request activity moves the status to communicating.
func (r *Reconstructor) advanceStatus(agg *models.SessionAggregate, signal phaseSignal, ev *models.CanonicalEvent, hadRequestActivity bool) {
	// Disconnected is sticky: phase detections after a disconnect belong to a
	// finished session and never restart its lifecycle. Error and timeout may be
	// recovered by a later phase detection (connection retries).
	if agg.Status != models.StatusDisconnected {
		switch signal {
		case signalPairStart:
			agg.Status = models.StatusPairing
		case signalConnectStart:
			agg.Status = models.StatusConnecting
		case signalConnected:
			agg.Status = models.StatusConnected
		case signalDisconnect:
			agg.Status = models.StatusDisconnected
		}
	}

	if isErrorEvent(ev) {
		agg.ErrorCount++
		if agg.Status != models.StatusDisconnected {
			if isTimeoutEvent(ev) {
				agg.Status = models.StatusTimeout
			} else {
				agg.Status = models.StatusError
			}
		}
		return
	}

	if agg.Status == models.StatusConnected && hadRequestActivity && ev.Tracking.RequestID != "" {
		agg.Status = models.StatusCommunicating
	}
}
