// LinkScope - IoT Device Diagnostic Log Analytics
// Copyright 2026 ProbeLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/probelab/linkscope

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/probelab/linkscope/internal/models"
	"github.com/probelab/linkscope/internal/store"
)

// eventsResponse is one page of an ordered event scan.
type eventsResponse struct {
	Events     []*models.CanonicalEvent `json:"events"`
	NextCursor string                   `json:"next_cursor,omitempty"`
}

// eventQueryFromRequest maps the shared filter query parameters onto an
// EventQuery.
func (h *Handler) eventQueryFromRequest(r *http.Request) store.EventQuery {
	q := r.URL.Query()

	limit := getIntParam(r, "limit", h.cfg.DefaultPageSize)
	if limit > h.cfg.MaxPageSize {
		limit = h.cfg.MaxPageSize
	}

	return store.EventQuery{
		ProjectID:  q.Get("project_id"),
		FileID:     q.Get("file_id"),
		EventName:  q.Get("event_name"),
		MinLevel:   getIntParam(r, "min_level", 0),
		FromTs:     getInt64Param(r, "from_ts", 0),
		ToTs:       getInt64Param(r, "to_ts", 0),
		LinkCode:   q.Get("link_code"),
		RequestID:  q.Get("request_id"),
		AttemptID:  q.Get("attempt_id"),
		DeviceMac:  q.Get("device_mac"),
		DeviceSN:   q.Get("device_sn"),
		Stage:      q.Get("stage"),
		Limit:      limit,
		Cursor:     q.Get("cursor"),
		Descending: q.Get("order") == "desc",
	}
}

// Events returns one page of canonical events ordered by (timestamp, id).
//
// Method: GET
// Path: /api/v1/events
// Query: file_id, project_id, event_name, min_level, from_ts, to_ts,
// link_code, request_id, attempt_id, device_mac, device_sn, stage, limit,
// cursor, order=asc|desc
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}

	start := time.Now()
	page, err := h.db.QueryEvents(r.Context(), h.eventQueryFromRequest(r))
	if err != nil {
		if errors.Is(err, store.ErrInvalidCursor) {
			respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "invalid cursor", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "failed to query events", err)
		return
	}

	respondData(w, http.StatusOK, eventsResponse{
		Events:     page.Events,
		NextCursor: page.NextCursor,
	}, start)
}

// EventGroups returns matching events grouped and counted by one canonical
// field, descending by count.
//
// Method: GET
// Path: /api/v1/events/groups
// Query: field (required) plus the shared event filters
func (h *Handler) EventGroups(w http.ResponseWriter, r *http.Request) {
	if !h.requireDB(w) {
		return
	}

	field := r.URL.Query().Get("field")
	if field == "" {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "field is required", nil)
		return
	}

	start := time.Now()
	groups, err := h.db.GroupCount(r.Context(), h.eventQueryFromRequest(r), field)
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), err)
		return
	}

	respondData(w, http.StatusOK, map[string]interface{}{"field": field, "groups": groups}, start)
}
