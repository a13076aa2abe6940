// LinkScope - IoT Device Diagnostic Log Analytics
// Copyright 2026 ProbeLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/probelab/linkscope

package quality

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/probelab/linkscope/internal/models"
)

func qev(name string, level int) *models.CanonicalEvent {
	return &models.CanonicalEvent{
		ID:        uuid.New(),
		Timestamp: 1000,
		Level:     level,
		EventName: name,
	}
}

func trackedEv(name string, level int, ts int64, tr models.TrackingFields, payload string) *models.CanonicalEvent {
	ev := qev(name, level)
	ev.Timestamp = ts
	ev.Tracking = tr
	if payload != "" {
		ev.Payload = json.RawMessage(payload)
	}
	return ev
}

func TestBuildCoverage(t *testing.T) {
	params := CoverageParams{
		Required: []RequiredEvent{
			{Name: "ble_scan_start", ExpectedLevel: models.LevelInfo, Category: "scan"},
			{Name: "ble_connected", ExpectedLevel: models.LevelInfo, Category: "connect", Aliases: []string{"ble_connect_ok"}},
			{Name: "ble_pair_done", ExpectedLevel: models.LevelInfo, Category: "pair"},
			{Name: "cmd_send", ExpectedLevel: models.LevelDebug, Category: "exchange"},
		},
		Pairs: []PairCheck{
			{StartEvent: "cmd_send", EndEvent: "cmd_reply"},
		},
	}

	events := []*models.CanonicalEvent{
		qev("ble_scan_start", models.LevelInfo),
		qev("ble_connect_ok", models.LevelInfo), // alias of ble_connected
		qev("cmd_send", models.LevelWarn),       // wrong severity
		qev("cmd_send", models.LevelWarn),
		qev("cmd_reply", models.LevelDebug),
	}

	report := BuildCoverage(events, params)

	byName := make(map[string]models.CoverageEntry)
	for _, entry := range report.Entries {
		byName[entry.Name] = entry
	}

	if got := byName["ble_scan_start"].Status; got != models.CoverageOK {
		t.Errorf("ble_scan_start status = %s, want ok", got)
	}
	if got := byName["ble_connected"].Status; got != models.CoverageNameMismatch {
		t.Errorf("ble_connected status = %s, want name_mismatch", got)
	}
	if got := byName["ble_pair_done"].Status; got != models.CoverageMissing {
		t.Errorf("ble_pair_done status = %s, want missing", got)
	}
	if got := byName["cmd_send"].Status; got != models.CoverageLevelMismatch {
		t.Errorf("cmd_send status = %s, want level_mismatch", got)
	}
	if got := byName["cmd_send"].Count; got != 2 {
		t.Errorf("cmd_send count = %d, want 2", got)
	}

	if report.OKTotal != 1 || report.RequiredTotal != 4 {
		t.Errorf("totals = %d/%d, want 1/4", report.OKTotal, report.RequiredTotal)
	}
	if report.Ratio != 0.25 {
		t.Errorf("ratio = %v, want 0.25", report.Ratio)
	}

	if len(report.Pairs) != 1 {
		t.Fatalf("expected 1 pair result, got %d", len(report.Pairs))
	}
	pair := report.Pairs[0]
	if pair.StartCount != 2 || pair.EndCount != 1 || pair.Unclosed != 1 {
		t.Errorf("pair = %d/%d unclosed %d, want 2/1 unclosed 1", pair.StartCount, pair.EndCount, pair.Unclosed)
	}
}

func TestBuildCoverage_RatioBounds(t *testing.T) {
	params := DefaultBLECoverage()

	t.Run("empty batch", func(t *testing.T) {
		report := BuildCoverage(nil, params)
		if report.Ratio != 0 {
			t.Errorf("ratio = %v, want 0", report.Ratio)
		}
		if report.MissingTotal != report.RequiredTotal {
			t.Errorf("missing = %d, want all %d", report.MissingTotal, report.RequiredTotal)
		}
	})

	t.Run("full coverage", func(t *testing.T) {
		var events []*models.CanonicalEvent
		for _, req := range params.Required {
			events = append(events, qev(req.Name, req.ExpectedLevel))
		}
		report := BuildCoverage(events, params)
		if report.Ratio != 1 {
			t.Errorf("ratio = %v, want 1", report.Ratio)
		}
	})
}

func TestBuildCoverage_PairUnclosedFloor(t *testing.T) {
	params := CoverageParams{
		Pairs: []PairCheck{{StartEvent: "cmd_send", EndEvent: "cmd_reply"}},
	}
	events := []*models.CanonicalEvent{
		qev("cmd_send", models.LevelDebug),
		qev("cmd_reply", models.LevelDebug),
		qev("cmd_reply", models.LevelDebug),
	}
	report := BuildCoverage(events, params)
	if got := report.Pairs[0].Unclosed; got != 0 {
		t.Errorf("more ends than starts: unclosed = %d, want 0", got)
	}
}

func TestBuildTransport_HTTP(t *testing.T) {
	payload := `{"method":"post","url":"https://api.example.com/v2/upload?batch=7"}`
	events := []*models.CanonicalEvent{
		trackedEv("http_req", models.LevelDebug, 1000,
			models.TrackingFields{Stage: "http", RequestID: "r1", Result: "start"}, payload),
		trackedEv("http_resp", models.LevelDebug, 1140,
			models.TrackingFields{Stage: "http", RequestID: "r1", Result: "ok"}, payload),
		trackedEv("http_req", models.LevelDebug, 2000,
			models.TrackingFields{Stage: "http", RequestID: "r2", Result: "start"}, payload),
		trackedEv("http_resp", models.LevelError, 2500,
			models.TrackingFields{Stage: "http", RequestID: "r2", Result: "fail", ErrorCode: "503"}, payload),
		trackedEv("http_req", models.LevelDebug, 3000,
			models.TrackingFields{Stage: "http", RequestID: "r3", Result: "start"}, payload),
	}

	report := BuildTransport(events, TransportParams{TopN: 5})
	h := report.HTTP

	if h.Requests != 3 || h.Success != 1 || h.Failure != 1 || h.NeverClosed != 1 {
		t.Fatalf("counts = req %d ok %d fail %d open %d, want 3/1/1/1",
			h.Requests, h.Success, h.Failure, h.NeverClosed)
	}
	if len(h.Endpoints) != 1 {
		t.Fatalf("expected 1 endpoint, got %d", len(h.Endpoints))
	}
	ep := h.Endpoints[0]
	if ep.Method != "POST" || ep.Path != "/v2/upload" {
		t.Errorf("endpoint = %s %s, want POST /v2/upload", ep.Method, ep.Path)
	}
	if ep.AvgLatencyMs != 320 { // (140+500)/2
		t.Errorf("avg latency = %v, want 320", ep.AvgLatencyMs)
	}
	if ep.P95LatencyMs != 500 {
		t.Errorf("p95 latency = %v, want 500", ep.P95LatencyMs)
	}
	if len(h.TopFailed) != 1 || h.TopFailed[0].RequestID != "r2" || h.TopFailed[0].ErrorCode != "503" {
		t.Errorf("top failed = %+v, want r2/503", h.TopFailed)
	}
	if len(h.TopOpen) != 1 || h.TopOpen[0].RequestID != "r3" {
		t.Errorf("top open = %+v, want r3", h.TopOpen)
	}
}

func TestBuildTransport_MQTT(t *testing.T) {
	mq := func(op, result, sn string) *models.CanonicalEvent {
		return trackedEv("mqtt", models.LevelDebug, 1000,
			models.TrackingFields{Stage: "mqtt", Op: op, Result: result, DeviceSN: sn}, "")
	}

	t.Run("publish start then fail", func(t *testing.T) {
		report := BuildTransport([]*models.CanonicalEvent{
			mq("publish", "start", "SN1"),
			mq("publish", "fail", "SN1"),
		}, TransportParams{})
		m := report.MQTT
		if m.UploadBatchSent != 1 {
			t.Errorf("uploadBatchSent = %d, want 1", m.UploadBatchSent)
		}
		if m.PublishFailed != 1 {
			t.Errorf("publishFailed = %d, want 1", m.PublishFailed)
		}
		if m.PublishOK != 0 {
			t.Errorf("publishOK = %d, want 0", m.PublishOK)
		}
	})

	t.Run("full counter table", func(t *testing.T) {
		report := BuildTransport([]*models.CanonicalEvent{
			mq("publish", "start", "SN1"),
			mq("publish", "ok", "SN1"),
			mq("publish", "skipped", "SN1"),
			mq("ack", "ok", "SN1"),
			mq("ack", "fail", "SN2"),
			mq("ack", "timeout", "SN2"),
			mq("subscribe", "fail", ""),
			mq("connect", "ok", "SN1"),
			mq("disconnect", "ok", "SN1"),
		}, TransportParams{})
		m := report.MQTT
		if m.SkippedNotConnected != 1 || m.AckOK != 1 || m.AckFailed != 1 || m.AckTimeout != 1 ||
			m.SubscribeFailed != 1 || m.Connected != 1 || m.Disconnected != 1 {
			t.Errorf("unexpected counters: %+v", m)
		}
		if m.IssuesMissingDeviceSN != 1 {
			t.Errorf("issuesMissingDeviceSN = %d, want 1", m.IssuesMissingDeviceSN)
		}
		if len(m.DeviceIssues) != 2 {
			t.Fatalf("expected 2 offending devices, got %d", len(m.DeviceIssues))
		}
		if m.DeviceIssues[0].DeviceSN != "SN2" || m.DeviceIssues[0].Issues != 2 {
			t.Errorf("top offender = %+v, want SN2 with 2 issues", m.DeviceIssues[0])
		}
	})
}

func TestBuildContinuity(t *testing.T) {
	cev := func(code, sn, link, req string) *models.CanonicalEvent {
		return trackedEv("data_error", models.LevelError, 1000,
			models.TrackingFields{ErrorCode: code, DeviceSN: sn, LinkCode: link, RequestID: req}, "")
	}

	events := []*models.CanonicalEvent{
		cev("4101", "SN1", "L1", "r1"), // duplicate
		cev("4102", "SN1", "L1", "r2"), // out of order
		cev("4100", "SN2", "L2", "r3"), // order broken, unclassified
		cev("4201", "SN1", "L1", "r1"), // persist timeout
		cev("4301", "SN2", "L2", ""),   // rt buffer drop, no request correlator
		cev("9999", "SN3", "L3", "r9"), // not a continuity code
	}

	report := BuildContinuity(events, DefaultContinuityParams())

	if report.OrderBroken.Total != 3 || report.OrderBroken.Duplicate != 1 || report.OrderBroken.OutOfOrder != 1 {
		t.Errorf("orderBroken = %+v, want total 3, dup 1, ooo 1", report.OrderBroken)
	}
	if report.PersistTimeout != 1 || report.RTBufferDrop != 1 {
		t.Errorf("persist/rtDrop = %d/%d, want 1/1", report.PersistTimeout, report.RTBufferDrop)
	}

	if len(report.ByDevice) != 2 {
		t.Fatalf("expected 2 offending devices, got %d", len(report.ByDevice))
	}
	if report.ByDevice[0].Key != "SN1" || report.ByDevice[0].Total != 3 {
		t.Errorf("top device = %+v, want SN1 with 3", report.ByDevice[0])
	}
	if report.ByDevice[0].OrderBroken != 2 || report.ByDevice[0].PersistTimeout != 1 {
		t.Errorf("SN1 split = %+v, want orderBroken 2, persistTimeout 1", report.ByDevice[0])
	}

	for _, off := range report.ByRequest {
		if off.Key == "" {
			t.Error("empty request correlator ranked as offender")
		}
	}
}

func TestBuildContinuity_TopNCap(t *testing.T) {
	var events []*models.CanonicalEvent
	for i := 0; i < 15; i++ {
		events = append(events, trackedEv("data_error", models.LevelError, 1000,
			models.TrackingFields{ErrorCode: "4100", DeviceSN: string(rune('A' + i))}, ""))
	}
	report := BuildContinuity(events, ContinuityParams{OrderBrokenCodes: []string{"4100"}, TopN: 3})
	if len(report.ByDevice) != 3 {
		t.Errorf("byDevice length = %d, want capped at 3", len(report.ByDevice))
	}
}

func TestBuildStreamScores(t *testing.T) {
	params := DefaultStreamParams()

	summary := func(payload, sn, link string) *models.CanonicalEvent {
		return trackedEv("stream_session_summary", models.LevelInfo, 1000,
			models.TrackingFields{DeviceSN: sn, LinkCode: link}, payload)
	}

	t.Run("clean session scores 100", func(t *testing.T) {
		report := BuildStreamScores([]*models.CanonicalEvent{
			summary(`{"reason":"done","buffered_out_of_order":0,"index_gap":0}`, "SN1", "L1"),
		}, params)
		if len(report.Sessions) != 1 {
			t.Fatalf("expected 1 session, got %d", len(report.Sessions))
		}
		s := report.Sessions[0]
		if s.Score != 100 || s.Band != models.StreamGood {
			t.Errorf("score = %d band %s, want 100 good", s.Score, s.Band)
		}
	})

	t.Run("penalties accumulate", func(t *testing.T) {
		// timeout 40 + 5 out-of-order * 2 + 4 index gaps * 3 = 62 off the base.
		report := BuildStreamScores([]*models.CanonicalEvent{
			summary(`{"reason":"timeout","buffered_out_of_order":5,"index_gap":4}`, "SN1", "L1"),
		}, params)
		s := report.Sessions[0]
		if s.Score != 38 {
			t.Errorf("score = %d, want 38", s.Score)
		}
		if s.Band != models.StreamBad {
			t.Errorf("band = %s, want bad", s.Band)
		}
	})

	t.Run("out of order penalty is capped", func(t *testing.T) {
		report := BuildStreamScores([]*models.CanonicalEvent{
			summary(`{"reason":"done","buffered_out_of_order":500,"index_gap":0}`, "SN1", "L1"),
		}, params)
		if got := report.Sessions[0].Score; got != 70 {
			t.Errorf("score = %d, want 70 (penalty capped at 30)", got)
		}
	})

	t.Run("missing fields are penalized", func(t *testing.T) {
		report := BuildStreamScores([]*models.CanonicalEvent{
			summary(`{"reason":"done"}`, "SN1", "L1"),
		}, params)
		if got := report.Sessions[0].Score; got != 80 {
			t.Errorf("score = %d, want 80 (two missing fields)", got)
		}
	})

	t.Run("string wrapped payload", func(t *testing.T) {
		report := BuildStreamScores([]*models.CanonicalEvent{
			summary(`"{\"reason\":\"link_lost\",\"buffered_out_of_order\":0,\"index_gap\":0}"`, "SN1", "L1"),
		}, params)
		s := report.Sessions[0]
		if s.Score != 70 || s.Reason != "link_lost" {
			t.Errorf("score = %d reason %q, want 70 link_lost", s.Score, s.Reason)
		}
	})

	t.Run("groups by reason", func(t *testing.T) {
		report := BuildStreamScores([]*models.CanonicalEvent{
			summary(`{"reason":"buffer_overflow","buffered_out_of_order":0,"index_gap":0}`, "SN1", "L1"),
			summary(`{"reason":"buffer_overflow","buffered_out_of_order":0,"index_gap":0}`, "SN2", "L2"),
			summary(`{"reason":"done","buffered_out_of_order":0,"index_gap":0}`, "SN1", "L1"),
		}, params)
		if report.Bad != 2 || report.Good != 1 {
			t.Fatalf("bands = bad %d good %d, want 2/1", report.Bad, report.Good)
		}
		if len(report.ByReason) != 2 {
			t.Fatalf("expected 2 reason groups, got %d", len(report.ByReason))
		}
		if report.ByReason[0].Key != "buffer_overflow" || report.ByReason[0].Sessions != 2 {
			t.Errorf("top reason = %+v, want buffer_overflow with 2 sessions", report.ByReason[0])
		}
	})

	t.Run("non summary events ignored", func(t *testing.T) {
		report := BuildStreamScores([]*models.CanonicalEvent{
			qev("ble_connected", models.LevelInfo),
		}, params)
		if len(report.Sessions) != 0 {
			t.Errorf("expected no sessions, got %d", len(report.Sessions))
		}
	})
}

func TestBuildSnapshot(t *testing.T) {
	events := []*models.CanonicalEvent{
		trackedEv("a", models.LevelInfo, 1, models.TrackingFields{LinkCode: "L1", DeviceSN: "SN1"}, ""),
		trackedEv("b", models.LevelWarn, 2, models.TrackingFields{LinkCode: "L1", DeviceSN: "SN1"}, ""),
		trackedEv("c", models.LevelError, 3, models.TrackingFields{LinkCode: "L2", DeviceSN: "SN2"}, ""),
		trackedEv("d", models.LevelDebug, 4, models.TrackingFields{}, ""),
	}

	snap := BuildSnapshot(events)
	if snap.TotalEvents != 4 || snap.ErrorEvents != 1 || snap.WarningEvents != 1 {
		t.Errorf("counts = %d/%d/%d, want 4/1/1", snap.TotalEvents, snap.ErrorEvents, snap.WarningEvents)
	}
	if snap.SessionCount != 2 || snap.DeviceCount != 2 {
		t.Errorf("sessions/devices = %d/%d, want 2/2", snap.SessionCount, snap.DeviceCount)
	}
	if snap.ErrorRate != 0.25 {
		t.Errorf("errorRate = %v, want 0.25", snap.ErrorRate)
	}

	t.Run("empty batch", func(t *testing.T) {
		snap := BuildSnapshot(nil)
		if snap.ErrorRate != 0 || snap.QualityScore != 100 {
			t.Errorf("empty batch: rate %v score %v, want 0/100", snap.ErrorRate, snap.QualityScore)
		}
	})
}
