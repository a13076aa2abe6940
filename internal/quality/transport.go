// LinkScope - IoT Device Diagnostic Log Analytics
// Copyright 2026 ProbeLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/probelab/linkscope

package quality

import (
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"github.com/probelab/linkscope/internal/models"
)

// httpRequest tracks one request lifecycle while correlating by requestId.
type httpRequest struct {
	method  string
	path    string
	startTs int64
	endTs   int64
	closed  bool
	failed  bool
	errCode string
}

// BuildTransport computes the HTTP + MQTT transport health report.
//
// HTTP request lifecycle events (stage=http, result in {start, ok, fail}) are
// correlated by requestId into open/success/failure outcomes, producing
// per-endpoint counts and latency statistics over successful and failed
// samples. MQTT events are classified from their (stage=mqtt, op, result)
// triple; issues are tallied per device, with a separate counter for issues
// missing a device identifier.
func BuildTransport(events []*models.CanonicalEvent, params TransportParams) *models.TransportReport {
	if params.TopN <= 0 {
		params.TopN = DefaultTransportParams().TopN
	}

	report := &models.TransportReport{}
	buildHTTPHealth(events, params, &report.HTTP)
	buildMQTTHealth(events, params, &report.MQTT)
	return report
}

func buildHTTPHealth(events []*models.CanonicalEvent, params TransportParams, health *models.HTTPHealth) {
	requests := make(map[string]*httpRequest)
	var order []string

	for _, ev := range events {
		if ev.Tracking.Stage != "http" {
			continue
		}
		reqID := ev.Tracking.RequestID
		if reqID == "" {
			continue
		}

		req, ok := requests[reqID]
		if !ok {
			req = &httpRequest{startTs: ev.Timestamp}
			requests[reqID] = req
			order = append(order, reqID)
		}
		if req.method == "" || req.path == "" {
			method, path := endpointFromPayload(ev.Payload)
			if req.method == "" {
				req.method = method
			}
			if req.path == "" {
				req.path = path
			}
		}

		switch ev.Tracking.Result {
		case "start":
			req.startTs = ev.Timestamp
		case "ok", "success":
			req.endTs = ev.Timestamp
			req.closed = true
		case "fail", "error":
			req.endTs = ev.Timestamp
			req.closed = true
			req.failed = true
			if req.errCode == "" {
				req.errCode = ev.Tracking.ErrorCode
			}
		}
	}

	endpoints := make(map[string]*endpointAccum)
	var endpointOrder []string

	for _, reqID := range order {
		req := requests[reqID]
		health.Requests++

		key := req.method + " " + req.path
		acc, ok := endpoints[key]
		if !ok {
			acc = &endpointAccum{method: req.method, path: req.path}
			endpoints[key] = acc
			endpointOrder = append(endpointOrder, key)
		}

		if !req.closed {
			health.NeverClosed++
			if len(health.TopOpen) < params.TopN {
				health.TopOpen = append(health.TopOpen, models.FailedRequest{
					RequestID: reqID,
					Method:    req.method,
					Path:      req.path,
					Timestamp: req.startTs,
				})
			}
			continue
		}

		latency := float64(req.endTs - req.startTs)
		acc.latencies = append(acc.latencies, latency)
		if req.failed {
			health.Failure++
			acc.failure++
			if len(health.TopFailed) < params.TopN {
				health.TopFailed = append(health.TopFailed, models.FailedRequest{
					RequestID: reqID,
					Method:    req.method,
					Path:      req.path,
					ErrorCode: req.errCode,
					Timestamp: req.endTs,
				})
			}
		} else {
			health.Success++
			acc.success++
		}
	}

	for _, key := range endpointOrder {
		acc := endpoints[key]
		health.Endpoints = append(health.Endpoints, acc.stats())
	}
}

type endpointAccum struct {
	method    string
	path      string
	success   int
	failure   int
	latencies []float64
}

func (a *endpointAccum) stats() models.EndpointStats {
	st := models.EndpointStats{
		Method:  a.method,
		Path:    a.path,
		Success: a.success,
		Failure: a.failure,
	}
	if len(a.latencies) == 0 {
		return st
	}
	var sum float64
	for _, l := range a.latencies {
		sum += l
	}
	st.AvgLatencyMs = sum / float64(len(a.latencies))
	st.P95LatencyMs = percentile95(a.latencies)
	return st
}

// percentile95 computes the 95th percentile by nearest-rank over a copy of the
// samples; the input order is left untouched.
func percentile95(samples []float64) float64 {
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	rank := (95*len(sorted) + 99) / 100 // ceil(0.95*n)
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

// endpointFromPayload pulls the method and normalized path (query stripped)
// from an HTTP event payload.
func endpointFromPayload(payload json.RawMessage) (method, path string) {
	if len(payload) == 0 {
		return "", ""
	}
	var body struct {
		Method string `json:"method"`
		Path   string `json:"path"`
		URL    string `json:"url"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return "", ""
	}
	method = strings.ToUpper(strings.TrimSpace(body.Method))
	path = body.Path
	if path == "" {
		path = body.URL
	}
	path = normalizePath(path)
	return method, path
}

// normalizePath strips scheme/host and query so the same endpoint aggregates
// under one key.
func normalizePath(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if i := strings.Index(raw, "://"); i >= 0 {
		rest := raw[i+3:]
		if j := strings.Index(rest, "/"); j >= 0 {
			raw = rest[j:]
		} else {
			raw = "/"
		}
	}
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	return raw
}

func buildMQTTHealth(events []*models.CanonicalEvent, params TransportParams, health *models.MQTTHealth) {
	issuesByDevice := make(map[string]int)
	var deviceOrder []string

	for _, ev := range events {
		if ev.Tracking.Stage != "mqtt" {
			continue
		}

		issue := false
		switch classifyMQTT(ev.Tracking.Op, ev.Tracking.Result) {
		case mqttBatchSent:
			health.UploadBatchSent++
		case mqttSkipped:
			health.SkippedNotConnected++
			issue = true
		case mqttPublishOK:
			health.PublishOK++
		case mqttPublishFailed:
			health.PublishFailed++
			issue = true
		case mqttAckOK:
			health.AckOK++
		case mqttAckFailed:
			health.AckFailed++
			issue = true
		case mqttAckTimeout:
			health.AckTimeout++
			issue = true
		case mqttSubscribeFailed:
			health.SubscribeFailed++
			issue = true
		case mqttConnected:
			health.Connected++
		case mqttDisconnected:
			health.Disconnected++
		}

		if issue {
			sn := ev.Tracking.DeviceSN
			if sn == "" {
				health.IssuesMissingDeviceSN++
				continue
			}
			if _, seen := issuesByDevice[sn]; !seen {
				deviceOrder = append(deviceOrder, sn)
			}
			issuesByDevice[sn]++
		}
	}

	for _, sn := range deviceOrder {
		health.DeviceIssues = append(health.DeviceIssues, models.DeviceIssueCount{
			DeviceSN: sn,
			Issues:   issuesByDevice[sn],
		})
	}
	sort.SliceStable(health.DeviceIssues, func(i, j int) bool {
		return health.DeviceIssues[i].Issues > health.DeviceIssues[j].Issues
	})
	if len(health.DeviceIssues) > params.TopN {
		health.DeviceIssues = health.DeviceIssues[:params.TopN]
	}
}

type mqttKind int

const (
	mqttUnknown mqttKind = iota
	mqttBatchSent
	mqttSkipped
	mqttPublishOK
	mqttPublishFailed
	mqttAckOK
	mqttAckFailed
	mqttAckTimeout
	mqttSubscribeFailed
	mqttConnected
	mqttDisconnected
)

// classifyMQTT maps an (op, result) pair to its messaging outcome. A publish
// start marks one upload batch handed to the broker client.
func classifyMQTT(op, result string) mqttKind {
	key := fmt.Sprintf("%s/%s", op, result)
	switch key {
	case "publish/start":
		return mqttBatchSent
	case "publish/skip", "publish/skipped":
		return mqttSkipped
	case "publish/ok", "publish/success":
		return mqttPublishOK
	case "publish/fail", "publish/error":
		return mqttPublishFailed
	case "ack/ok", "ack/success":
		return mqttAckOK
	case "ack/fail", "ack/error":
		return mqttAckFailed
	case "ack/timeout":
		return mqttAckTimeout
	case "subscribe/fail", "subscribe/error":
		return mqttSubscribeFailed
	case "connect/ok", "connect/success":
		return mqttConnected
	case "disconnect/ok", "disconnect/done":
		return mqttDisconnected
	}
	return mqttUnknown
}
