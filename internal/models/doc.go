// LinkScope - IoT Device Diagnostic Log Analytics
// Copyright 2026 ProbeLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/probelab/linkscope

// Package models defines data structures used throughout the LinkScope application.
// These models represent canonical diagnostic events, reconstructed device sessions,
// quality reports, assertion rules, and regression baselines.
package models
