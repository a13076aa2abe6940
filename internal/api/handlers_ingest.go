// LinkScope - IoT Device Diagnostic Log Analytics
// Copyright 2026 ProbeLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/probelab/linkscope

package api

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/probelab/linkscope/internal/ingest"
	"github.com/probelab/linkscope/internal/logging"
	"github.com/probelab/linkscope/internal/metrics"
	"github.com/probelab/linkscope/internal/models"
)

// ingestResponse summarizes one completed ingestion.
type ingestResponse struct {
	FileID     string `json:"file_id"`
	EventCount int    `json:"event_count"`
	HadError   bool   `json:"had_error"`

	// Run is the automatic assertion run triggered by the ingest, when an
	// engine is configured.
	Run *models.AssertionRun `json:"run,omitempty"`
}

// IngestFile stores a raw log capture in the blob store, decodes it into
// canonical events, persists them, and triggers an automatic assertion run.
//
// Method: POST
// Path: /api/v1/files/{fileID}/ingest
// Query: project_id (optional)
// Body: raw capture bytes (plaintext log or encrypted container)
func (h *Handler) IngestFile(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}

	fileID := chi.URLParam(r, "fileID")
	if fileID == "" {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "fileID is required", nil)
		return
	}
	projectID := r.URL.Query().Get("project_id")

	start := time.Now()

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes))
	if err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, "VALIDATION_ERROR", "upload too large", err)
		return
	}
	if len(raw) == 0 {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "empty upload", nil)
		return
	}

	if h.blobs != nil {
		if err := h.blobs.Put(r.Context(), fileID, raw); err != nil {
			// The capture is still decodable; keep going without the archive
			// copy.
			logging.Ctx(r.Context()).Warn().Err(err).Str("file_id", fileID).
				Msg("blob store rejected capture")
		}
	}

	pipeline := ingest.NewPipeline(h.dec, projectID, fileID)
	result, err := pipeline.Ingest(raw)
	if err != nil {
		respondError(w, http.StatusUnprocessableEntity, "INGEST_ERROR", err.Error(), err)
		return
	}

	if err := h.db.InsertEvents(r.Context(), result.Events); err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "failed to persist events", err)
		return
	}

	lines := bytes.Count(raw, []byte("\n")) + 1
	metrics.RecordIngest(time.Since(start), lines, len(result.Events))

	resp := ingestResponse{
		FileID:     fileID,
		EventCount: len(result.Events),
		HadError:   result.HadError,
	}

	if h.engine != nil {
		run, err := h.engine.Run(r.Context(), projectID, fileID, models.TriggerAutomatic)
		if err != nil {
			// The events are persisted; a failed automatic run is reported
			// but does not fail the ingest.
			logging.Ctx(r.Context()).Error().Err(err).Str("file_id", fileID).
				Msg("automatic assertion run failed")
		} else {
			resp.Run = &run
		}
	}

	respondData(w, http.StatusCreated, resp, start)
}
