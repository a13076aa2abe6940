// LinkScope - IoT Device Diagnostic Log Analytics
// Copyright 2026 ProbeLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/probelab/linkscope

/*
duckdb.go - DuckDB-backed event, rule, and baseline store

One embedded DuckDB database holds four tables:
  - events: canonical events with tracking columns denormalized for filtering
  - rules: assertion rules, definition stored as JSON
  - runs: immutable assertion run records, results stored as JSON
  - baselines: frozen regression baselines, snapshot and thresholds as JSON

Event scans are keyset-paginated on (ts, id) with an opaque cursor token, so
pages stay stable under concurrent inserts. Bulk insert runs inside a single
transaction with a prepared statement.
*/

package store

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/goccy/go-json"

	"github.com/probelab/linkscope/internal/logging"
	"github.com/probelab/linkscope/internal/models"
)

// Page size bounds for event scans.
const (
	defaultPageSize = 500
	maxPageSize     = 20000
)

// Config configures the embedded DuckDB database.
type Config struct {
	// Path is the database file; empty means in-memory.
	Path string

	// Threads caps DuckDB's worker threads; 0 uses the CPU count.
	Threads int

	// MaxMemory is DuckDB's memory limit, e.g. "512MB".
	MaxMemory string
}

// DB implements EventStore, RuleStore, and BaselineStore on one DuckDB handle.
type DB struct {
	conn *sql.DB
}

// NewDB opens the database and creates the schema.
func NewDB(cfg Config) (*DB, error) {
	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	maxMemory := cfg.MaxMemory
	if maxMemory == "" {
		maxMemory = "512MB"
	}

	connStr := fmt.Sprintf("%s?threads=%d&max_memory=%s", cfg.Path, threads, maxMemory)
	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening duckdb: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("pinging duckdb: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.createSchema(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	logging.Debug().Str("path", cfg.Path).Int("threads", threads).Msg("event store opened")
	return db, nil
}

// Close closes the underlying database handle.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) createSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id UUID PRIMARY KEY,
			project_id TEXT NOT NULL,
			file_id TEXT NOT NULL,
			ts BIGINT NOT NULL,
			level INTEGER NOT NULL,
			event_name TEXT NOT NULL,
			message TEXT,
			payload TEXT,
			thread TEXT,
			link_code TEXT,
			request_id TEXT,
			attempt_id TEXT,
			device_mac TEXT,
			device_sn TEXT,
			error_code TEXT,
			reason_code TEXT,
			stage TEXT,
			op TEXT,
			result TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_file_ts ON events (file_id, ts, id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_name ON events (event_name)`,

		`CREATE TABLE IF NOT EXISTS rules (
			id UUID PRIMARY KEY,
			project_id TEXT NOT NULL,
			name TEXT NOT NULL,
			kind TEXT NOT NULL,
			priority INTEGER NOT NULL,
			enabled BOOLEAN NOT NULL,
			created_at TIMESTAMP NOT NULL,
			definition TEXT NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_rules_project_name ON rules (project_id, name)`,

		`CREATE TABLE IF NOT EXISTS runs (
			id UUID PRIMARY KEY,
			project_id TEXT NOT NULL,
			file_id TEXT NOT NULL,
			triggered_by TEXT NOT NULL,
			total INTEGER NOT NULL,
			passed INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			pass_rate DOUBLE NOT NULL,
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP NOT NULL,
			results TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS baselines (
			id UUID PRIMARY KEY,
			project_id TEXT NOT NULL,
			file_id TEXT NOT NULL,
			name TEXT,
			snapshot TEXT NOT NULL,
			thresholds TEXT,
			created_at TIMESTAMP NOT NULL
		)`,
	}

	for _, query := range queries {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	return nil
}

// InsertEvents bulk-inserts canonical events in one transaction.
func (db *DB) InsertEvents(ctx context.Context, events []*models.CanonicalEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning insert transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO events (
		id, project_id, file_id, ts, level, event_name, message, payload, thread,
		link_code, request_id, attempt_id, device_mac, device_sn,
		error_code, reason_code, stage, op, result
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, ev := range events {
		tr := ev.Tracking
		if _, err := stmt.ExecContext(ctx,
			ev.ID, ev.ProjectID, ev.FileID, ev.Timestamp, ev.Level,
			ev.EventName, ev.Message, string(ev.Payload), ev.Thread,
			tr.LinkCode, tr.RequestID, tr.AttemptID, tr.DeviceMac, tr.DeviceSN,
			tr.ErrorCode, tr.ReasonCode, tr.Stage, tr.Op, tr.Result,
		); err != nil {
			return fmt.Errorf("inserting event %s: %w", ev.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing insert: %w", err)
	}
	return nil
}

const eventColumns = `id, project_id, file_id, ts, level, event_name, message, payload, thread,
	link_code, request_id, attempt_id, device_mac, device_sn,
	error_code, reason_code, stage, op, result`

// QueryEvents runs an ordered, cursor-paginated scan.
func (db *DB) QueryEvents(ctx context.Context, q EventQuery) (EventPage, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	where, args, err := buildWhere(q)
	if err != nil {
		return EventPage{}, err
	}

	order := "ts ASC, id ASC"
	if q.Descending {
		order = "ts DESC, id DESC"
	}

	// Fetch one extra row to know whether a next page exists.
	query := fmt.Sprintf("SELECT %s FROM events%s ORDER BY %s LIMIT %d",
		eventColumns, where, order, limit+1)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return EventPage{}, fmt.Errorf("querying events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var page EventPage
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return EventPage{}, err
		}
		page.Events = append(page.Events, ev)
	}
	if err := rows.Err(); err != nil {
		return EventPage{}, fmt.Errorf("scanning events: %w", err)
	}

	if len(page.Events) > limit {
		page.Events = page.Events[:limit]
		last := page.Events[limit-1]
		page.NextCursor = encodeCursor(last.Timestamp, last.ID)
	}
	return page, nil
}

// CountEvents counts rows matching the query filters. Cursor and limit are
// ignored.
func (db *DB) CountEvents(ctx context.Context, q EventQuery) (int64, error) {
	q.Cursor = ""
	where, args, err := buildWhere(q)
	if err != nil {
		return 0, err
	}

	var count int64
	row := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM events"+where, args...)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("counting events: %w", err)
	}
	return count, nil
}

// groupColumns whitelists the fields GroupCount may aggregate on.
var groupColumns = map[string]string{
	"eventName": "event_name",
	"level":     "level",
	"linkCode":  "link_code",
	"requestId": "request_id",
	"attemptId": "attempt_id",
	"deviceMac": "device_mac",
	"deviceSn":  "device_sn",
	"errorCode": "error_code",
	"stage":     "stage",
	"result":    "result",
}

// GroupCount aggregates matching events by one canonical field, descending by
// count.
func (db *DB) GroupCount(ctx context.Context, q EventQuery, field string) ([]GroupCount, error) {
	column, ok := groupColumns[field]
	if !ok {
		return nil, fmt.Errorf("store: cannot group by %q", field)
	}

	q.Cursor = ""
	where, args, err := buildWhere(q)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(
		"SELECT CAST(%s AS TEXT), COUNT(*) FROM events%s GROUP BY %s ORDER BY COUNT(*) DESC",
		column, where, column)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("grouping events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []GroupCount
	for rows.Next() {
		var gc GroupCount
		var key sql.NullString
		if err := rows.Scan(&key, &gc.Count); err != nil {
			return nil, fmt.Errorf("scanning group count: %w", err)
		}
		gc.Key = key.String
		out = append(out, gc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scanning group counts: %w", err)
	}
	return out, nil
}

// buildWhere assembles the WHERE clause shared by scans, counts, and groups.
func buildWhere(q EventQuery) (string, []any, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, val any) {
		conds = append(conds, cond)
		args = append(args, val)
	}

	if q.ProjectID != "" {
		add("project_id = ?", q.ProjectID)
	}
	if q.FileID != "" {
		add("file_id = ?", q.FileID)
	}
	if q.EventName != "" {
		add("event_name = ?", q.EventName)
	}
	if q.MinLevel > 0 {
		add("level >= ?", q.MinLevel)
	}
	if q.FromTs > 0 {
		add("ts >= ?", q.FromTs)
	}
	if q.ToTs > 0 {
		add("ts <= ?", q.ToTs)
	}
	if q.LinkCode != "" {
		add("link_code = ?", q.LinkCode)
	}
	if q.RequestID != "" {
		add("request_id = ?", q.RequestID)
	}
	if q.AttemptID != "" {
		add("attempt_id = ?", q.AttemptID)
	}
	if q.DeviceMac != "" {
		add("device_mac = ?", q.DeviceMac)
	}
	if q.DeviceSN != "" {
		add("device_sn = ?", q.DeviceSN)
	}
	if q.Stage != "" {
		add("stage = ?", q.Stage)
	}

	if q.Cursor != "" {
		ts, id, err := decodeCursor(q.Cursor)
		if err != nil {
			return "", nil, err
		}
		// Explicit CAST to UUID: the driver passes uuid strings as VARCHAR in
		// tuple comparisons, which otherwise mismatches the column type.
		if q.Descending {
			conds = append(conds, "(ts, id) < (?, CAST(? AS UUID))")
		} else {
			conds = append(conds, "(ts, id) > (?, CAST(? AS UUID))")
		}
		args = append(args, ts, id.String())
	}

	if len(conds) == 0 {
		return "", nil, nil
	}
	where := " WHERE " + conds[0]
	for _, c := range conds[1:] {
		where += " AND " + c
	}
	return where, args, nil
}

func scanEvent(rows *sql.Rows) (*models.CanonicalEvent, error) {
	var (
		ev      models.CanonicalEvent
		message sql.NullString
		payload sql.NullString
		thread  sql.NullString
		track   [10]sql.NullString
	)
	if err := rows.Scan(
		&ev.ID, &ev.ProjectID, &ev.FileID, &ev.Timestamp, &ev.Level,
		&ev.EventName, &message, &payload, &thread,
		&track[0], &track[1], &track[2], &track[3], &track[4],
		&track[5], &track[6], &track[7], &track[8], &track[9],
	); err != nil {
		return nil, fmt.Errorf("scanning event: %w", err)
	}

	ev.Message = message.String
	ev.Thread = thread.String
	if payload.String != "" {
		ev.Payload = json.RawMessage(payload.String)
	}
	ev.Tracking = models.TrackingFields{
		LinkCode:   track[0].String,
		RequestID:  track[1].String,
		AttemptID:  track[2].String,
		DeviceMac:  track[3].String,
		DeviceSN:   track[4].String,
		ErrorCode:  track[5].String,
		ReasonCode: track[6].String,
		Stage:      track[7].String,
		Op:         track[8].String,
		Result:     track[9].String,
	}
	return &ev, nil
}
