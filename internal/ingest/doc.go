// LinkScope - IoT Device Diagnostic Log Analytics
// Copyright 2026 ProbeLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/probelab/linkscope

// Package ingest decodes raw device SDK log captures into flat ordered batches of
// canonical events.
//
// The pipeline runs in four stages:
//
//  1. Container detection: encrypted captures are handed to the decrypt
//     collaborator before any line parsing.
//  2. Two-level line decoding: each physical line is an outer envelope (severity,
//     timestamp, thread) wrapping a nested JSON payload (event name, message,
//     structured fields). Decoding failures are isolated per line as synthetic
//     PARSER_ERROR events; one bad line never aborts the batch.
//  3. Tracking-field extraction: canonical correlation fields are pulled from each
//     payload via a fixed alias table (see Extract).
//  4. Fallback inference: a batch-wide post-pass backfills missing correlation
//     fields using uniqueness closure (see InferFallback).
//
// Ingestion of one capture is a single sequential pass; line order is preserved
// because downstream phase reconstruction depends on it. The pipeline holds no
// shared mutable state, so multiple captures may be ingested concurrently.
package ingest
