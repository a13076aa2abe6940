// LinkScope - IoT Device Diagnostic Log Analytics
// Copyright 2026 ProbeLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/probelab/linkscope

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/probelab/linkscope/internal/models"
	"github.com/probelab/linkscope/internal/quality"
	"github.com/probelab/linkscope/internal/regression"
	"github.com/probelab/linkscope/internal/store"
)

// createBaselineRequest freezes one file's quality snapshot as a baseline.
type createBaselineRequest struct {
	ProjectID  string                       `json:"project_id"`
	FileID     string                       `json:"file_id" validate:"required"`
	Name       string                       `json:"name"`
	Thresholds *models.RegressionThresholds `json:"thresholds,omitempty"`
}

// CreateBaseline computes the file's quality snapshot and persists it as a
// regression baseline with optional per-metric threshold overrides.
//
// Method: POST
// Path: /api/v1/baselines
// Body: createBaselineRequest JSON
func (h *Handler) CreateBaseline(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}

	var req createBaselineRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid baseline body", err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondJSON(w, http.StatusBadRequest, &models.APIResponse{
			Status:   "error",
			Metadata: models.Metadata{Timestamp: time.Now()},
			Error:    apiErr,
		})
		return
	}

	start := time.Now()
	events, err := h.fetchFileEvents(r.Context(), req.ProjectID, req.FileID, "")
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "failed to load events", err)
		return
	}
	if len(events) == 0 {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "no events for file", nil)
		return
	}

	baseline := models.RegressionBaseline{
		ID:         uuid.New(),
		ProjectID:  req.ProjectID,
		FileID:     req.FileID,
		Name:       req.Name,
		Snapshot:   quality.BuildSnapshot(events),
		Thresholds: req.Thresholds,
		CreatedAt:  time.Now().UTC(),
	}
	if err := h.db.SaveBaseline(r.Context(), baseline); err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "failed to save baseline", err)
		return
	}
	respondData(w, http.StatusCreated, baseline, start)
}

// ListBaselines returns the project's baselines, newest first.
//
// Method: GET
// Path: /api/v1/baselines
// Query: project_id, limit
func (h *Handler) ListBaselines(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}

	limit := getIntParam(r, "limit", h.cfg.DefaultPageSize)
	if limit > h.cfg.MaxPageSize {
		limit = h.cfg.MaxPageSize
	}

	start := time.Now()
	baselines, err := h.db.ListBaselines(r.Context(), r.URL.Query().Get("project_id"), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "failed to list baselines", err)
		return
	}
	respondData(w, http.StatusOK, baselines, start)
}

// GetBaseline returns one baseline by id.
//
// Method: GET
// Path: /api/v1/baselines/{baselineID}
func (h *Handler) GetBaseline(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "baselineID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid baseline id", err)
		return
	}

	start := time.Now()
	baseline, err := h.db.GetBaseline(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "baseline not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "failed to load baseline", err)
		return
	}
	respondData(w, http.StatusOK, baseline, start)
}

// DeleteBaseline removes one baseline by id.
//
// Method: DELETE
// Path: /api/v1/baselines/{baselineID}
func (h *Handler) DeleteBaseline(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "baselineID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid baseline id", err)
		return
	}

	start := time.Now()
	err = h.db.DeleteBaseline(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "baseline not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "failed to delete baseline", err)
		return
	}
	respondData(w, http.StatusOK, map[string]string{"deleted": id.String()}, start)
}

// evaluateRequest compares a target file against a stored baseline.
type evaluateRequest struct {
	ProjectID  string                       `json:"project_id"`
	FileID     string                       `json:"file_id" validate:"required"`
	Thresholds *models.RegressionThresholds `json:"thresholds,omitempty"`
}

// evaluateResponse pairs the evaluation with both snapshots for display.
type evaluateResponse struct {
	Baseline   models.RegressionBaseline   `json:"baseline"`
	Target     models.QualitySnapshot      `json:"target"`
	Evaluation models.RegressionEvaluation `json:"evaluation"`
}

// EvaluateBaseline computes the target file's quality snapshot and diffs it
// against the stored baseline. Call-time threshold overrides win over
// baseline-stored ones, per metric.
//
// Method: POST
// Path: /api/v1/baselines/{baselineID}/evaluate
// Body: evaluateRequest JSON (file_id names the target file)
func (h *Handler) EvaluateBaseline(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "baselineID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid baseline id", err)
		return
	}

	var req evaluateRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid evaluate body", err)
		return
	}
	if apiErr := validateRequest(&req); apiErr != nil {
		respondJSON(w, http.StatusBadRequest, &models.APIResponse{
			Status:   "error",
			Metadata: models.Metadata{Timestamp: time.Now()},
			Error:    apiErr,
		})
		return
	}

	start := time.Now()
	baseline, err := h.db.GetBaseline(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "baseline not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "failed to load baseline", err)
		return
	}

	events, err := h.fetchFileEvents(r.Context(), req.ProjectID, req.FileID, "")
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "failed to load events", err)
		return
	}
	if len(events) == 0 {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "no events for target file", nil)
		return
	}

	target := quality.BuildSnapshot(events)
	respondData(w, http.StatusOK, evaluateResponse{
		Baseline:   baseline,
		Target:     target,
		Evaluation: regression.Evaluate(baseline, target, req.Thresholds),
	}, start)
}
