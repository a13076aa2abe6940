// LinkScope - IoT Device Diagnostic Log Analytics
// Copyright 2026 ProbeLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/probelab/linkscope

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/probelab/linkscope/internal/assertion"
	"github.com/probelab/linkscope/internal/ingest"
	"github.com/probelab/linkscope/internal/models"
	"github.com/probelab/linkscope/internal/session"
	"github.com/probelab/linkscope/internal/store"
)

// maxReportEvents caps how many events a report or reconstruction will pull
// from the store for one file.
const maxReportEvents = 100000

// Store is the persistence surface the handlers consume.
type Store interface {
	store.EventStore
	store.RuleStore
	store.BaselineStore
}

// HandlerConfig carries the request-shaping knobs.
type HandlerConfig struct {
	DefaultPageSize int
	MaxPageSize     int
	MaxUploadBytes  int64
}

// Handler holds the dependencies shared by all endpoints.
type Handler struct {
	db     Store
	blobs  store.BlobStore
	engine *assertion.Engine
	dec    ingest.Decryptor
	recon  *session.Reconstructor
	cfg    HandlerConfig
}

// NewHandler creates the API handler. dec may be nil when encrypted captures
// are not expected.
func NewHandler(db Store, blobs store.BlobStore, engine *assertion.Engine, dec ingest.Decryptor, recon *session.Reconstructor, cfg HandlerConfig) *Handler {
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 100
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 1000
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 64 << 20
	}
	return &Handler{
		db:     db,
		blobs:  blobs,
		engine: engine,
		dec:    dec,
		recon:  recon,
		cfg:    cfg,
	}
}

// requireDB checks store availability and reports whether the request may
// proceed.
func (h *Handler) requireDB(w http.ResponseWriter) bool {
	if h.db == nil {
		respondError(w, http.StatusServiceUnavailable, "SERVICE_ERROR", "Store not available", nil)
		return false
	}
	return true
}

// Health reports liveness plus store reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := map[string]string{"service": "ok"}
	code := http.StatusOK

	if h.db == nil {
		status["store"] = "unavailable"
		code = http.StatusServiceUnavailable
	} else if _, err := h.db.CountEvents(r.Context(), store.EventQuery{Limit: 1}); err != nil {
		status["store"] = "error"
		code = http.StatusServiceUnavailable
	} else {
		status["store"] = "ok"
	}

	respondData(w, code, status, start)
}

// HealthLive is a trivial liveness probe.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, map[string]string{"status": "live"}, time.Now())
}

// fetchFileEvents pulls the file's full ordered event batch, page by page,
// capped at maxReportEvents.
func (h *Handler) fetchFileEvents(ctx context.Context, projectID, fileID, linkCode string) ([]*models.CanonicalEvent, error) {
	q := store.EventQuery{
		ProjectID: projectID,
		FileID:    fileID,
		LinkCode:  linkCode,
		Limit:     h.cfg.MaxPageSize,
	}

	var events []*models.CanonicalEvent
	for {
		page, err := h.db.QueryEvents(ctx, q)
		if err != nil {
			return nil, err
		}
		events = append(events, page.Events...)
		if page.NextCursor == "" || len(events) >= maxReportEvents {
			return events, nil
		}
		q.Cursor = page.NextCursor
	}
}
