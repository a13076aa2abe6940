// LinkScope - IoT Device Diagnostic Log Analytics
// Copyright 2026 ProbeLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/probelab/linkscope

package models

// SessionStatus is the derived state of a reconstructed device session.
type SessionStatus string

// Session status values. Sessions start in StatusScanning and advance through the
// connection lifecycle as phase events are observed. StatusDisconnected,
// StatusTimeout and StatusError are terminal for a finished session;
// StatusConnected and StatusCommunicating are not terminal until a later
// disconnect or error arrives.
const (
	StatusScanning      SessionStatus = "scanning"
	StatusPairing       SessionStatus = "pairing"
	StatusConnecting    SessionStatus = "connecting"
	StatusConnected     SessionStatus = "connected"
	StatusCommunicating SessionStatus = "communicating"
	StatusDisconnected  SessionStatus = "disconnected"
	StatusTimeout       SessionStatus = "timeout"
	StatusError         SessionStatus = "error"
)

// Terminal reports whether the status is terminal for a finished session.
func (s SessionStatus) Terminal() bool {
	switch s {
	case StatusDisconnected, StatusTimeout, StatusError:
		return true
	}
	return false
}

// PhaseName labels a contiguous segment of a session's event timeline.
type PhaseName string

// Timeline phase labels. PhaseNone marks events that belong to no named phase.
const (
	PhaseScan        PhaseName = "scan"
	PhasePair        PhaseName = "pair"
	PhaseConnect     PhaseName = "connect"
	PhaseConnected   PhaseName = "connected"
	PhaseDisconnect  PhaseName = "disconnect"
	PhaseCommunicate PhaseName = "communicate"
	PhaseNone        PhaseName = ""
)

// SessionAggregate summarizes all events sharing one (projectScope, linkCode) key.
// It is derived wholesale from the full event set for that key; there is no
// incremental merge.
type SessionAggregate struct {
	ProjectID string `json:"project_id,omitempty"`
	LinkCode  string `json:"link_code"`

	DeviceMac string `json:"device_mac,omitempty"`
	DeviceSN  string `json:"device_sn,omitempty"`

	// StartedAt and EndedAt are the first and last event timestamps (epoch ms).
	StartedAt int64 `json:"started_at"`
	EndedAt   int64 `json:"ended_at"`

	Status SessionStatus `json:"status"`

	EventCount   int `json:"event_count"`
	ErrorCount   int `json:"error_count"`
	RequestCount int `json:"request_count"` // distinct operation correlators

	// Phase start timestamps (epoch ms, 0 when the phase was never observed).
	ScanStartedAt    int64 `json:"scan_started_at,omitempty"`
	PairStartedAt    int64 `json:"pair_started_at,omitempty"`
	ConnectStartedAt int64 `json:"connect_started_at,omitempty"`
	ConnectedAt      int64 `json:"connected_at,omitempty"`
	DisconnectedAt   int64 `json:"disconnected_at,omitempty"`
}

// TimelinePhase is one run-length-encoded segment of a session timeline: a
// contiguous stretch of events carrying the same phase label.
type TimelinePhase struct {
	Phase      PhaseName `json:"phase"`
	StartedAt  int64     `json:"started_at"`
	EndedAt    int64     `json:"ended_at"`
	EventCount int       `json:"event_count"`

	// HasError and HasTimeout carry forward error/timeout status from any event
	// inside the phase.
	HasError   bool `json:"has_error,omitempty"`
	HasTimeout bool `json:"has_timeout,omitempty"`
}

// CommandChain is one reconstructed request/response exchange: events grouped by
// requestId when present, otherwise by the time-gap heuristic.
type CommandChain struct {
	RequestID string `json:"request_id,omitempty"`
	Command   string `json:"command,omitempty"`

	StartedAt  int64 `json:"started_at"`
	EndedAt    int64 `json:"ended_at"`
	EventCount int   `json:"event_count"`
	ErrorCount int   `json:"error_count"`
}

// SessionReconstruction is the full output of the session reconstructor for one
// link code: the aggregate, the phase timeline, and the command chains.
type SessionReconstruction struct {
	Session  SessionAggregate `json:"session"`
	Timeline []TimelinePhase  `json:"timeline"`
	Chains   []CommandChain   `json:"chains"`
}
