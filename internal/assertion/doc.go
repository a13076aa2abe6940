// LinkScope - IoT Device Diagnostic Log Analytics
// Copyright 2026 ProbeLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/probelab/linkscope

// Package assertion evaluates declarative rules against stored events.
//
// Three rule kinds are supported: must_exist, must_not_exist, and the windowed
// must_exist_after_anchor correlation. Rules are validated structurally before
// evaluation; a definition that fails validation is fatal for the run. Rule
// evaluation itself is read-only against the event store.
package assertion
