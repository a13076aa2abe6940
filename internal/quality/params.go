// LinkScope - IoT Device Diagnostic Log Analytics
// Copyright 2026 ProbeLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/probelab/linkscope

package quality

import "github.com/probelab/linkscope/internal/models"

// RequiredEvent is one entry of a protocol coverage matrix: an event the SDK is
// expected to emit, at what severity, and under which reporting category.
type RequiredEvent struct {
	Name          string
	ExpectedLevel int
	Category      string

	// Aliases are alternative names older SDK builds used for the same event.
	// Alias matching is case- and whitespace-normalized and aggregates all
	// aliases.
	Aliases []string
}

// PairCheck requires every start event to be closed by an end event.
type PairCheck struct {
	StartEvent string
	EndEvent   string
}

// CoverageParams parameterizes the protocol coverage builder.
type CoverageParams struct {
	Required []RequiredEvent
	Pairs    []PairCheck
}

// DefaultBLECoverage returns the required-event matrix for the BLE protocol
// path. The matrix reflects the events every healthy capture of a full
// connect/exchange/disconnect cycle contains.
func DefaultBLECoverage() CoverageParams {
	return CoverageParams{
		Required: []RequiredEvent{
			{Name: "ble_scan_start", ExpectedLevel: models.LevelInfo, Category: "scan"},
			{Name: "ble_scan_result", ExpectedLevel: models.LevelDebug, Category: "scan", Aliases: []string{"ble_scan_found"}},
			{Name: "ble_connect_start", ExpectedLevel: models.LevelInfo, Category: "connect"},
			{Name: "ble_connected", ExpectedLevel: models.LevelInfo, Category: "connect", Aliases: []string{"ble_connect_ok"}},
			{Name: "ble_pair_start", ExpectedLevel: models.LevelInfo, Category: "pair"},
			{Name: "ble_pair_done", ExpectedLevel: models.LevelInfo, Category: "pair", Aliases: []string{"ble_pair_ok", "ble_bond_done"}},
			{Name: "cmd_send", ExpectedLevel: models.LevelDebug, Category: "exchange"},
			{Name: "cmd_reply", ExpectedLevel: models.LevelDebug, Category: "exchange", Aliases: []string{"cmd_response"}},
			{Name: "ble_disconnect", ExpectedLevel: models.LevelInfo, Category: "disconnect"},
		},
		Pairs: []PairCheck{
			{StartEvent: "ble_scan_start", EndEvent: "ble_scan_stop"},
			{StartEvent: "ble_connect_start", EndEvent: "ble_disconnect"},
			{StartEvent: "cmd_send", EndEvent: "cmd_reply"},
		},
	}
}

// TransportParams parameterizes the transport health builder.
type TransportParams struct {
	// TopN caps the top-failed, never-closed, and offending-device lists.
	TopN int
}

// DefaultTransportParams returns the standard transport parameter table.
func DefaultTransportParams() TransportParams {
	return TransportParams{TopN: 5}
}

// ContinuityParams classifies the fixed set of data-continuity error codes.
type ContinuityParams struct {
	// DuplicateCodes and OutOfOrderCodes split orderBroken into its sub-counts;
	// OrderBrokenCodes catches order errors with no finer classification.
	DuplicateCodes   []string
	OutOfOrderCodes  []string
	OrderBrokenCodes []string

	PersistTimeoutCodes []string
	RTBufferDropCodes   []string

	// TopN caps the ranked by-device/by-link/by-request lists.
	TopN int
}

// DefaultContinuityParams returns the SDK's continuity error-code table.
func DefaultContinuityParams() ContinuityParams {
	return ContinuityParams{
		DuplicateCodes:      []string{"4101"},
		OutOfOrderCodes:     []string{"4102"},
		OrderBrokenCodes:    []string{"4100"},
		PersistTimeoutCodes: []string{"4201"},
		RTBufferDropCodes:   []string{"4301"},
		TopN:                10,
	}
}

// StreamParams parameterizes stream-session scoring.
type StreamParams struct {
	// SummaryEventNames select the per-session summary events to score.
	SummaryEventNames []string

	// Band thresholds: a score below WarnBelow is warn, below BadBelow is bad.
	WarnBelow int
	BadBelow  int

	// Penalties applied to the 100-point base score.
	MissingFieldPenalty  int            // per absent reason/buffer/index field
	OutOfOrderPenalty    int            // per buffered-out-of-order count
	OutOfOrderPenaltyCap int            // ceiling for the out-of-order penalty
	IndexGapPenalty      int            // per missing index
	IndexGapPenaltyCap   int            // ceiling for the index-gap penalty
	BadReasonPenalties   map[string]int // known-bad reason -> penalty

	// TopN caps the per-group aggregate lists.
	TopN int
}

// DefaultStreamParams returns the standard stream scoring table.
func DefaultStreamParams() StreamParams {
	return StreamParams{
		SummaryEventNames:    []string{"stream_session_summary", "stream_stats"},
		WarnBelow:            80,
		BadBelow:             60,
		MissingFieldPenalty:  10,
		OutOfOrderPenalty:    2,
		OutOfOrderPenaltyCap: 30,
		IndexGapPenalty:      3,
		IndexGapPenaltyCap:   30,
		BadReasonPenalties: map[string]int{
			"timeout":         40,
			"buffer_overflow": 50,
			"link_lost":       30,
			"decode_error":    35,
		},
		TopN: 10,
	}
}
