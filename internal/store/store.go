// LinkScope - IoT Device Diagnostic Log Analytics
// Copyright 2026 ProbeLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/probelab/linkscope

// Package store provides the persistence layer: a DuckDB-backed event store
// with cursor pagination and grouped counts, durable rule, run, and baseline
// records, and a badger-backed blob store for uploaded raw log files.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/probelab/linkscope/internal/models"
)

// Sentinel errors shared by all store implementations.
var (
	ErrNotFound      = errors.New("store: not found")
	ErrInvalidCursor = errors.New("store: invalid cursor")
)

// EventQuery selects canonical events. Zero-valued fields are not applied.
// Results are ordered by (timestamp, id), ascending unless Descending is set.
type EventQuery struct {
	ProjectID string
	FileID    string
	EventName string

	// MinLevel drops events below this severity.
	MinLevel int

	// FromTs/ToTs bound the scan (epoch ms, inclusive; 0 = unbounded).
	FromTs int64
	ToTs   int64

	LinkCode  string
	RequestID string
	AttemptID string
	DeviceMac string
	DeviceSN  string
	Stage     string

	// Limit caps the page size; implementations apply their own default and
	// maximum when it is zero or too large.
	Limit      int
	Cursor     string
	Descending bool
}

// EventPage is one page of an ordered event scan. NextCursor is empty on the
// last page.
type EventPage struct {
	Events     []*models.CanonicalEvent
	NextCursor string
}

// GroupCount is one bucket of a group-by-with-count aggregation.
type GroupCount struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// EventStore is the event persistence contract the analysis core consumes:
// bulk insert, ordered range scan with cursor pagination, counts, and
// group-by-with-count over canonical fields.
type EventStore interface {
	InsertEvents(ctx context.Context, events []*models.CanonicalEvent) error
	QueryEvents(ctx context.Context, q EventQuery) (EventPage, error)
	CountEvents(ctx context.Context, q EventQuery) (int64, error)

	// GroupCount aggregates matching events by one canonical field
	// (event_name or a tracking column), descending by count.
	GroupCount(ctx context.Context, q EventQuery, field string) ([]GroupCount, error)
}

// RuleStore persists assertion rules and run records.
type RuleStore interface {
	ListRules(ctx context.Context, projectID string, enabledOnly bool) ([]models.AssertionRule, error)
	GetRule(ctx context.Context, id uuid.UUID) (models.AssertionRule, error)
	SaveRule(ctx context.Context, rule models.AssertionRule) error
	DeleteRule(ctx context.Context, id uuid.UUID) error

	// InstallRules inserts rules that do not yet exist, matching by
	// (project, name). Existing rules are left untouched.
	InstallRules(ctx context.Context, rules []models.AssertionRule) (installed int, err error)

	SaveRun(ctx context.Context, run models.AssertionRun) error
	GetRun(ctx context.Context, id uuid.UUID) (models.AssertionRun, error)
	ListRuns(ctx context.Context, projectID, fileID string, limit int) ([]models.AssertionRun, error)
}

// BaselineStore persists regression baselines.
type BaselineStore interface {
	SaveBaseline(ctx context.Context, b models.RegressionBaseline) error
	GetBaseline(ctx context.Context, id uuid.UUID) (models.RegressionBaseline, error)
	ListBaselines(ctx context.Context, projectID string, limit int) ([]models.RegressionBaseline, error)
	DeleteBaseline(ctx context.Context, id uuid.UUID) error
}

// BlobStore stores raw uploaded file bytes by key.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Close() error
}
