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

	"github.com/probelab/linkscope/internal/assertion"
	"github.com/probelab/linkscope/internal/models"
	"github.com/probelab/linkscope/internal/store"
)

// ListRules returns the project's rules ordered by priority.
//
// Method: GET
// Path: /api/v1/rules
// Query: project_id, enabled_only
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}

	start := time.Now()
	rules, err := h.db.ListRules(r.Context(), r.URL.Query().Get("project_id"), r.URL.Query().Get("enabled_only") == "true")
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "failed to list rules", err)
		return
	}
	respondData(w, http.StatusOK, rules, start)
}

// GetRule returns one rule by id.
//
// Method: GET
// Path: /api/v1/rules/{ruleID}
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "ruleID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid rule id", err)
		return
	}

	start := time.Now()
	rule, err := h.db.GetRule(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "rule not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "failed to load rule", err)
		return
	}
	respondData(w, http.StatusOK, rule, start)
}

// SaveRule creates or replaces a rule. The definition is structurally
// validated before persisting; an invalid definition is rejected with the
// validation reason code.
//
// Method: POST
// Path: /api/v1/rules
// Body: models.AssertionRule JSON (id and created_at optional)
func (h *Handler) SaveRule(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}

	var rule models.AssertionRule
	if err := decodeBody(r, &rule); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid rule body", err)
		return
	}
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}

	if err := assertion.ValidateRule(rule); err != nil {
		var verr *assertion.ValidationError
		if errors.As(err, &verr) {
			respondJSON(w, http.StatusBadRequest, &models.APIResponse{
				Status:   "error",
				Metadata: models.Metadata{Timestamp: time.Now()},
				Error: &models.APIError{
					Code:    "RULE_ERROR",
					Message: verr.Error(),
					Details: map[string]interface{}{"rule": verr.RuleName, "reason": verr.Reason},
				},
			})
			return
		}
		respondError(w, http.StatusBadRequest, "RULE_ERROR", err.Error(), err)
		return
	}

	start := time.Now()
	if err := h.db.SaveRule(r.Context(), rule); err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "failed to save rule", err)
		return
	}
	respondData(w, http.StatusCreated, rule, start)
}

// InstallDefaultRules installs the default rule set for a project,
// leaving existing rules untouched.
//
// Method: POST
// Path: /api/v1/rules/defaults
// Query: project_id
func (h *Handler) InstallDefaultRules(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}

	start := time.Now()
	installed, err := h.db.InstallRules(r.Context(), assertion.DefaultRuleSet(r.URL.Query().Get("project_id")))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "failed to install default rules", err)
		return
	}
	respondData(w, http.StatusOK, map[string]interface{}{
		"installed": installed,
		"version":   assertion.DefaultRuleSetVersion,
	}, start)
}

// DeleteRule removes one rule by id.
//
// Method: DELETE
// Path: /api/v1/rules/{ruleID}
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "ruleID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid rule id", err)
		return
	}

	start := time.Now()
	err = h.db.DeleteRule(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "rule not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "failed to delete rule", err)
		return
	}
	respondData(w, http.StatusOK, map[string]string{"deleted": id.String()}, start)
}

// triggerRunRequest asks for a manual assertion run.
type triggerRunRequest struct {
	ProjectID string `json:"project_id"`
	FileID    string `json:"file_id" validate:"required"`
}

// TriggerRun evaluates the project's enabled rules against one file and
// persists the run record.
//
// Method: POST
// Path: /api/v1/runs
// Body: {"project_id": "...", "file_id": "..."}
func (h *Handler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	if h.engine == nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_ERROR", "Assertion engine not available", nil)
		return
	}

	var req triggerRunRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid run body", err)
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
	run, err := h.engine.Run(r.Context(), req.ProjectID, req.FileID, models.TriggerManual)
	if err != nil {
		var verr *assertion.ValidationError
		if errors.As(err, &verr) {
			respondError(w, http.StatusBadRequest, "RULE_ERROR", verr.Error(), nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "RULE_ERROR", "assertion run failed", err)
		return
	}
	respondData(w, http.StatusCreated, run, start)
}

// ListRuns returns recent runs, newest first.
//
// Method: GET
// Path: /api/v1/runs
// Query: project_id, file_id, limit
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}

	limit := getIntParam(r, "limit", h.cfg.DefaultPageSize)
	if limit > h.cfg.MaxPageSize {
		limit = h.cfg.MaxPageSize
	}

	start := time.Now()
	runs, err := h.db.ListRuns(r.Context(), r.URL.Query().Get("project_id"), r.URL.Query().Get("file_id"), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "failed to list runs", err)
		return
	}
	respondData(w, http.StatusOK, runs, start)
}

// GetRun returns one immutable run record by id.
//
// Method: GET
// Path: /api/v1/runs/{runID}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "runID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid run id", err)
		return
	}

	start := time.Now()
	run, err := h.db.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "run not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "failed to load run", err)
		return
	}
	respondData(w, http.StatusOK, run, start)
}
