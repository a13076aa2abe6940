// LinkScope - IoT Device Diagnostic Log Analytics
// Copyright 2026 ProbeLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/probelab/linkscope

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/probelab/linkscope/internal/models"
	"github.com/probelab/linkscope/internal/quality"
)

// fileBatch resolves the file_id/project_id query parameters and loads the
// file's full event batch. Reports false when an error response was already
// sent.
func (h *Handler) fileBatch(w http.ResponseWriter, r *http.Request) ([]*models.CanonicalEvent, bool) {
	if !h.requireDB(w) {
		return nil, false
	}
	fileID := r.URL.Query().Get("file_id")
	if fileID == "" {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "file_id is required", nil)
		return nil, false
	}

	events, err := h.fetchFileEvents(r.Context(), r.URL.Query().Get("project_id"), fileID, "")
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "failed to load events", err)
		return nil, false
	}
	return events, true
}

// Session reconstructs one link's session aggregate, phase timeline, and
// command chains.
//
// Method: GET
// Path: /api/v1/sessions/{linkCode}
// Query: file_id (required), project_id
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}

	linkCode := chi.URLParam(r, "linkCode")
	fileID := r.URL.Query().Get("file_id")
	if fileID == "" {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "file_id is required", nil)
		return
	}
	projectID := r.URL.Query().Get("project_id")

	start := time.Now()
	events, err := h.fetchFileEvents(r.Context(), projectID, fileID, linkCode)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "failed to load events", err)
		return
	}
	if len(events) == 0 {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "no events for link", nil)
		return
	}

	respondData(w, http.StatusOK, h.recon.Reconstruct(projectID, linkCode, events), start)
}

// CoverageReport builds the protocol coverage report for one file.
//
// Method: GET
// Path: /api/v1/reports/coverage
// Query: file_id (required), project_id
func (h *Handler) CoverageReport(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	events, ok := h.fileBatch(w, r)
	if !ok {
		return
	}
	respondData(w, http.StatusOK, quality.BuildCoverage(events, quality.DefaultBLECoverage()), start)
}

// TransportReport builds the HTTP/MQTT transport health report for one file.
//
// Method: GET
// Path: /api/v1/reports/transport
// Query: file_id (required), project_id, top_n
func (h *Handler) TransportReport(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	events, ok := h.fileBatch(w, r)
	if !ok {
		return
	}

	params := quality.DefaultTransportParams()
	if n := getIntParam(r, "top_n", 0); n > 0 {
		params.TopN = n
	}
	respondData(w, http.StatusOK, quality.BuildTransport(events, params), start)
}

// ContinuityReport builds the data continuity report for one file.
//
// Method: GET
// Path: /api/v1/reports/continuity
// Query: file_id (required), project_id, top_n
func (h *Handler) ContinuityReport(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	events, ok := h.fileBatch(w, r)
	if !ok {
		return
	}

	params := quality.DefaultContinuityParams()
	if n := getIntParam(r, "top_n", 0); n > 0 {
		params.TopN = n
	}
	respondData(w, http.StatusOK, quality.BuildContinuity(events, params), start)
}

// StreamReport builds the stream session scoring report for one file.
//
// Method: GET
// Path: /api/v1/reports/streams
// Query: file_id (required), project_id, top_n
func (h *Handler) StreamReport(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	events, ok := h.fileBatch(w, r)
	if !ok {
		return
	}

	params := quality.DefaultStreamParams()
	if n := getIntParam(r, "top_n", 0); n > 0 {
		params.TopN = n
	}
	respondData(w, http.StatusOK, quality.BuildStreamScores(events, params), start)
}

// SnapshotReport builds the quality snapshot for one file.
//
// Method: GET
// Path: /api/v1/reports/snapshot
// Query: file_id (required), project_id
func (h *Handler) SnapshotReport(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	events, ok := h.fileBatch(w, r)
	if !ok {
		return
	}
	respondData(w, http.StatusOK, quality.BuildSnapshot(events), start)
}
