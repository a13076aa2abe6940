// LinkScope - IoT Device Diagnostic Log Analytics
// Copyright 2026 ProbeLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/probelab/linkscope

package ingest

import (
	"fmt"
	"strings"
	"testing"

	"github.com/probelab/linkscope/internal/models"
)

// logLine renders one valid two-level log line: outer envelope with the nested
// payload encoded as a JSON string.
func logLine(ts int64, level int, payload string) string {
	quoted := strings.ReplaceAll(payload, `"`, `\"`)
	return fmt.Sprintf(`{"timestamp":%d,"level":%d,"thread":"main","payload":"%s"}`, ts, level, quoted)
}

func TestPipeline_Ingest(t *testing.T) {
	p := NewPipeline(nil, "proj-1", "file-1")

	t.Run("valid lines decode to canonical events", func(t *testing.T) {
		raw := strings.Join([]string{
			logLine(1000, 2, `{"event":"ble_scan_start","linkCode":"LC1"}`),
			logLine(2000, 4, `{"event":"ble_connect_fail","linkCode":"LC1","errorCode":1021}`),
		}, "\n")

		res, err := p.Ingest([]byte(raw))
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if len(res.Events) != 2 {
			t.Fatalf("Expected 2 events, got %d", len(res.Events))
		}
		if res.HadError {
			t.Error("Expected HadError=false for clean capture")
		}
		first := res.Events[0]
		if first.EventName != "ble_scan_start" {
			t.Errorf("Expected event name ble_scan_start, got %s", first.EventName)
		}
		if first.Timestamp != 1000 || first.Level != 2 {
			t.Errorf("Expected ts=1000 level=2, got ts=%d level=%d", first.Timestamp, first.Level)
		}
		if first.Tracking.LinkCode != "LC1" {
			t.Errorf("Expected tracking extraction, got %+v", first.Tracking)
		}
		if res.Events[1].Tracking.ErrorCode != "1021" {
			t.Errorf("Expected errorCode=1021, got %q", res.Events[1].Tracking.ErrorCode)
		}
		if first.ProjectID != "proj-1" || first.FileID != "file-1" {
			t.Errorf("Expected project/file stamping, got %s/%s", first.ProjectID, first.FileID)
		}
	})

	t.Run("object payload accepted", func(t *testing.T) {
		raw := `{"timestamp":1000,"level":2,"payload":{"event":"ble_connected","linkCode":"LC1"}}`
		res, err := p.Ingest([]byte(raw))
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if len(res.Events) != 1 || res.Events[0].EventName != "ble_connected" {
			t.Fatalf("Expected 1 ble_connected event, got %+v", res.Events)
		}
	})

	t.Run("malformed lines isolated as PARSER_ERROR", func(t *testing.T) {
		raw := strings.Join([]string{
			logLine(1000, 2, `{"event":"ble_scan_start"}`),
			`{this is not json`,
			logLine(3000, 2, `{"event":"ble_connected"}`),
			logLine(4000, 2, `{"no_event_name":true}`),
		}, "\n")

		res, err := p.Ingest([]byte(raw))
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if !res.HadError {
			t.Error("Expected HadError=true")
		}
		if len(res.Events) != 4 {
			t.Fatalf("Expected 4 events (2 good + 2 parser errors), got %d", len(res.Events))
		}

		var parserErrors int
		for _, ev := range res.Events {
			if ev.EventName == models.EventParserError {
				parserErrors++
				if ev.Level != models.LevelError {
					t.Errorf("Expected parser error severity 4, got %d", ev.Level)
				}
			}
		}
		if parserErrors != 2 {
			t.Errorf("Expected exactly 2 PARSER_ERROR events, got %d", parserErrors)
		}
	})

	t.Run("header and blank lines skipped", func(t *testing.T) {
		raw := strings.Join([]string{
			"==== LinkSDK device log ====",
			"# sdk-version: 3.2.1",
			"",
			logLine(1000, 2, `{"event":"ble_scan_start"}`),
		}, "\n")

		res, err := p.Ingest([]byte(raw))
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if res.HadError {
			t.Error("Header lines must not count as parse errors")
		}
		if len(res.Events) != 1 {
			t.Fatalf("Expected 1 event, got %d", len(res.Events))
		}
	})

	t.Run("fallback inference runs over batch", func(t *testing.T) {
		raw := strings.Join([]string{
			logLine(1000, 2, `{"event":"ble_connect","linkCode":"LC1","deviceSn":"SN1"}`),
			logLine(2000, 2, `{"event":"ble_data","linkCode":"LC1"}`),
		}, "\n")

		res, err := p.Ingest([]byte(raw))
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if got := res.Events[1].Tracking.DeviceSN; got != "SN1" {
			t.Errorf("Expected fallback inference to fill SN, got %q", got)
		}
	})

	t.Run("severity clamped to 1..4", func(t *testing.T) {
		raw := logLine(1000, 9, `{"event":"weird_level"}`)
		res, err := p.Ingest([]byte(raw))
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if res.Events[0].Level != models.LevelError {
			t.Errorf("Expected clamped level 4, got %d", res.Events[0].Level)
		}
	})
}

func TestPipeline_KOfNProperty(t *testing.T) {
	// K malformed lines among N total yields exactly K PARSER_ERROR events and
	// N-K canonical events; hadError iff K>0.
	const n, k = 10, 3
	var lines []string
	for i := 0; i < n-k; i++ {
		lines = append(lines, logLine(int64(1000+i), 2, `{"event":"ble_data"}`))
	}
	for i := 0; i < k; i++ {
		lines = append(lines, fmt.Sprintf("broken line %d", i))
	}

	p := NewPipeline(nil, "", "")
	res, err := p.Ingest([]byte(strings.Join(lines, "\n")))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(res.Events) != n {
		t.Fatalf("Expected %d events, got %d", n, len(res.Events))
	}
	var bad int
	for _, ev := range res.Events {
		if ev.EventName == models.EventParserError {
			bad++
		}
	}
	if bad != k {
		t.Errorf("Expected %d parser errors, got %d", k, bad)
	}
	if !res.HadError {
		t.Error("Expected HadError=true for K>0")
	}
}
