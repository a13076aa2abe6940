// LinkScope - IoT Device Diagnostic Log Analytics
// Copyright 2026 ProbeLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/probelab/linkscope

package models

import (
	"regexp"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Severity levels for canonical events. These mirror the levels emitted by the
// device SDK logger: 1=debug, 2=info, 3=warn, 4=error.
const (
	LevelDebug = 1
	LevelInfo  = 2
	LevelWarn  = 3
	LevelError = 4
)

// Synthetic event names emitted by the ingestion pipeline. They are real events in
// the stored batch and flow through the same reporting paths as SDK events, but they
// are excluded from fallback inference and from coverage matrices.
const (
	// EventParserError is emitted once per undecodable log line (severity 4).
	EventParserError = "PARSER_ERROR"

	// EventDecryptFailed is emitted once when an encrypted container yields zero
	// decryptable blocks (severity 4). Parsing stops after this event.
	EventDecryptFailed = "DECRYPT_FAILED"

	// EventDecryptDegraded is emitted once when an encrypted container decrypts
	// only partially (severity 3). Parsing continues over the recovered blocks.
	EventDecryptDegraded = "DECRYPT_DEGRADED"
)

// TrackingFields holds the canonical correlation fields extracted from an event
// payload. Every field is either empty (absent) or a trimmed non-empty string.
// MAC-shaped fields are validated against the accepted MAC formats before being set;
// values that fail validation are treated as absent.
type TrackingFields struct {
	// LinkCode correlates all events of one device connection/session.
	LinkCode string `json:"link_code,omitempty"`

	// RequestID correlates the events of one request/response operation.
	RequestID string `json:"request_id,omitempty"`

	// AttemptID correlates the events of one retry attempt.
	AttemptID string `json:"attempt_id,omitempty"`

	// DeviceMac is the device's Bluetooth MAC address.
	DeviceMac string `json:"device_mac,omitempty"`

	// DeviceSN is the device serial number.
	DeviceSN string `json:"device_sn,omitempty"`

	// ErrorCode is the SDK error code attached to failure events.
	ErrorCode string `json:"error_code,omitempty"`

	// ReasonCode carries a secondary failure reason (e.g. disconnect reason).
	ReasonCode string `json:"reason_code,omitempty"`

	// Stage, Op and Result describe a normalized protocol step, lower-cased on
	// extraction (e.g. stage=ble op=connect result=ok).
	Stage  string `json:"stage,omitempty"`
	Op     string `json:"op,omitempty"`
	Result string `json:"result,omitempty"`
}

// IsZero reports whether no tracking field was extracted.
func (t TrackingFields) IsZero() bool {
	return t == TrackingFields{}
}

// CanonicalEvent is the atomic unit of the analysis pipeline: one decoded log line
// from a device SDK capture. Events are immutable once persisted; the only mutation
// permitted is the fallback-inference backfill that runs before first persistence.
type CanonicalEvent struct {
	ID uuid.UUID `json:"id"`

	// ProjectID scopes the event to one tenant project. FileID identifies the
	// source log capture the event was decoded from.
	ProjectID string `json:"project_id,omitempty"`
	FileID    string `json:"file_id,omitempty"`

	// Timestamp is the device-side event time in epoch milliseconds. Timestamps
	// are monotonic-ish within one capture but may repeat or jitter.
	Timestamp int64 `json:"timestamp"`

	// Level is the severity level (1-4).
	Level int `json:"level"`

	// EventName is the free-text event category emitted by the SDK.
	EventName string `json:"event_name"`

	// Message is the optional human-readable message attached to the event.
	Message string `json:"message,omitempty"`

	// Payload is the raw structured payload of the event, kept verbatim for
	// re-extraction and debugging.
	Payload json.RawMessage `json:"payload,omitempty"`

	// Thread is optional thread metadata from the outer log envelope.
	Thread string `json:"thread,omitempty"`

	Tracking TrackingFields `json:"tracking"`
}

// NewCanonicalEvent creates an event with a unique ID.
func NewCanonicalEvent(name string, level int, timestamp int64) *CanonicalEvent {
	return &CanonicalEvent{
		ID:        uuid.New(),
		EventName: name,
		Level:     level,
		Timestamp: timestamp,
	}
}

// IsSynthetic reports whether the event was fabricated by the ingestion pipeline
// rather than decoded from a device log line.
func (e *CanonicalEvent) IsSynthetic() bool {
	switch e.EventName {
	case EventParserError, EventDecryptFailed, EventDecryptDegraded:
		return true
	}
	return false
}

// macPattern accepts colon-separated, dash-separated, and bare 12-hex-digit MACs.
var macPattern = regexp.MustCompile(`^(?:[0-9A-Fa-f]{2}:){5}[0-9A-Fa-f]{2}$|^(?:[0-9A-Fa-f]{2}-){5}[0-9A-Fa-f]{2}$|^[0-9A-Fa-f]{12}$`)

// ValidMac reports whether s matches one of the accepted MAC address shapes:
// AA:BB:CC:DD:EE:FF, AA-BB-CC-DD-EE-FF, or 12 contiguous hex digits.
func ValidMac(s string) bool {
	return macPattern.MatchString(s)
}

// CleanField trims s and returns it, or "" when the trimmed value is empty.
// Correlation fields are either absent or trimmed non-empty strings.
func CleanField(s string) string {
	return strings.TrimSpace(s)
}

// CleanMacField trims s and returns it only when it is a valid MAC shape.
func CleanMacField(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || !ValidMac(s) {
		return ""
	}
	return s
}
