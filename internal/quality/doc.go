// LinkScope - IoT Device Diagnostic Log Analytics
// Copyright 2026 ProbeLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/probelab/linkscope

// Package quality computes multi-dimensional quality reports from categorized
// event batches.
//
// Four independent builders are provided: protocol coverage (required-event
// matrix), transport health (HTTP request lifecycle + MQTT messaging), data
// continuity (order/persist/buffer error classification), and stream-session
// scoring. Every builder is a pure function of its input batch and parameter
// table: no side effects, fully deterministic given the same input order.
package quality
