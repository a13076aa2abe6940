// LinkScope - IoT Device Diagnostic Log Analytics
// Copyright 2026 ProbeLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/probelab/linkscope

// Package api exposes the analysis core over HTTP using the chi router.
//
// Surface:
//   - POST /api/v1/files/{fileID}/ingest: store and decode a raw log capture
//   - GET  /api/v1/events: ordered event scan with cursor pagination
//   - GET  /api/v1/sessions/{linkCode}: per-link session reconstruction
//   - GET  /api/v1/reports/*: coverage, transport, continuity, stream reports
//   - CRUD /api/v1/rules, POST /api/v1/runs: assertion rules and runs
//   - CRUD /api/v1/baselines, evaluate: regression baselines
//   - GET  /api/v1/health, GET /metrics
//
// Every endpoint responds with the models.APIResponse envelope.
package api
