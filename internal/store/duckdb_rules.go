// LinkScope - IoT Device Diagnostic Log Analytics
// Copyright 2026 ProbeLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/probelab/linkscope

package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/probelab/linkscope/internal/models"
)

// ListRules returns a project's rules, optionally only enabled ones, ordered
// by priority ascending then creation time descending.
func (db *DB) ListRules(ctx context.Context, projectID string, enabledOnly bool) ([]models.AssertionRule, error) {
	query := `SELECT id, project_id, name, kind, priority, enabled, created_at, definition
		FROM rules WHERE project_id = ?`
	if enabledOnly {
		query += " AND enabled"
	}
	query += " ORDER BY priority ASC, created_at DESC"

	rows, err := db.conn.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var rules []models.AssertionRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scanning rules: %w", err)
	}
	return rules, nil
}

// GetRule fetches one rule by id.
func (db *DB) GetRule(ctx context.Context, id uuid.UUID) (models.AssertionRule, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, project_id, name, kind, priority, enabled, created_at, definition
		FROM rules WHERE id = ?`, id)
	if err != nil {
		return models.AssertionRule{}, fmt.Errorf("getting rule: %w", err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return models.AssertionRule{}, fmt.Errorf("getting rule: %w", err)
		}
		return models.AssertionRule{}, ErrNotFound
	}
	return scanRule(rows)
}

// SaveRule inserts or replaces a rule.
func (db *DB) SaveRule(ctx context.Context, rule models.AssertionRule) error {
	def, err := json.Marshal(rule.Def)
	if err != nil {
		return fmt.Errorf("encoding rule definition: %w", err)
	}
	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO rules (id, project_id, name, kind, priority, enabled, created_at, definition)
		VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT (id) DO UPDATE SET
			project_id = excluded.project_id, name = excluded.name, kind = excluded.kind,
			priority = excluded.priority, enabled = excluded.enabled,
			created_at = excluded.created_at, definition = excluded.definition`,
		rule.ID, rule.ProjectID, rule.Name, string(rule.Kind), rule.Priority,
		rule.Enabled, rule.CreatedAt, string(def))
	if err != nil {
		return fmt.Errorf("saving rule %q: %w", rule.Name, err)
	}
	return nil
}

// DeleteRule removes one rule by id.
func (db *DB) DeleteRule(ctx context.Context, id uuid.UUID) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting rule: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// InstallRules inserts rules that do not yet exist for their project, matching
// by name. Existing rules are left untouched, making installation idempotent.
func (db *DB) InstallRules(ctx context.Context, rules []models.AssertionRule) (int, error) {
	installed := 0
	for _, rule := range rules {
		var exists bool
		err := db.conn.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM rules WHERE project_id = ? AND name = ?)`,
			rule.ProjectID, rule.Name).Scan(&exists)
		if err != nil {
			return installed, fmt.Errorf("checking rule %q: %w", rule.Name, err)
		}
		if exists {
			continue
		}
		if err := db.SaveRule(ctx, rule); err != nil {
			return installed, err
		}
		installed++
	}
	return installed, nil
}

func scanRule(rows *sql.Rows) (models.AssertionRule, error) {
	var (
		rule models.AssertionRule
		kind string
		def  string
	)
	if err := rows.Scan(&rule.ID, &rule.ProjectID, &rule.Name, &kind,
		&rule.Priority, &rule.Enabled, &rule.CreatedAt, &def); err != nil {
		return rule, fmt.Errorf("scanning rule: %w", err)
	}
	rule.Kind = models.RuleKind(kind)
	if err := json.Unmarshal([]byte(def), &rule.Def); err != nil {
		return rule, fmt.Errorf("decoding rule definition: %w", err)
	}
	return rule, nil
}

// SaveRun persists one immutable run record.
func (db *DB) SaveRun(ctx context.Context, run models.AssertionRun) error {
	results, err := json.Marshal(run.Results)
	if err != nil {
		return fmt.Errorf("encoding run results: %w", err)
	}
	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO runs (id, project_id, file_id, triggered_by, total, passed, failed,
			pass_rate, started_at, finished_at, results)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		run.ID, run.ProjectID, run.FileID, string(run.Trigger),
		run.Total, run.Passed, run.Failed, run.PassRate,
		run.StartedAt, run.FinishedAt, string(results))
	if err != nil {
		return fmt.Errorf("saving run: %w", err)
	}
	return nil
}

// GetRun fetches one run record by id.
func (db *DB) GetRun(ctx context.Context, id uuid.UUID) (models.AssertionRun, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, project_id, file_id, triggered_by, total, passed, failed,
			pass_rate, started_at, finished_at, results
		FROM runs WHERE id = ?`, id)
	if err != nil {
		return models.AssertionRun{}, fmt.Errorf("getting run: %w", err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return models.AssertionRun{}, fmt.Errorf("getting run: %w", err)
		}
		return models.AssertionRun{}, ErrNotFound
	}
	return scanRun(rows)
}

// ListRuns returns recent runs, newest first, filtered by project and
// optionally by file.
func (db *DB) ListRuns(ctx context.Context, projectID, fileID string, limit int) ([]models.AssertionRun, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, project_id, file_id, triggered_by, total, passed, failed,
		pass_rate, started_at, finished_at, results
		FROM runs WHERE project_id = ?`
	args := []any{projectID}
	if fileID != "" {
		query += " AND file_id = ?"
		args = append(args, fileID)
	}
	query += fmt.Sprintf(" ORDER BY started_at DESC LIMIT %d", limit)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []models.AssertionRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scanning runs: %w", err)
	}
	return runs, nil
}

func scanRun(rows *sql.Rows) (models.AssertionRun, error) {
	var (
		run     models.AssertionRun
		trigger string
		results string
	)
	if err := rows.Scan(&run.ID, &run.ProjectID, &run.FileID, &trigger,
		&run.Total, &run.Passed, &run.Failed, &run.PassRate,
		&run.StartedAt, &run.FinishedAt, &results); err != nil {
		return run, fmt.Errorf("scanning run: %w", err)
	}
	run.Trigger = models.RunTrigger(trigger)
	if err := json.Unmarshal([]byte(results), &run.Results); err != nil {
		return run, fmt.Errorf("decoding run results: %w", err)
	}
	return run, nil
}

// SaveBaseline persists a regression baseline.
func (db *DB) SaveBaseline(ctx context.Context, b models.RegressionBaseline) error {
	snapshot, err := json.Marshal(b.Snapshot)
	if err != nil {
		return fmt.Errorf("encoding baseline snapshot: %w", err)
	}
	thresholds := sql.NullString{}
	if b.Thresholds != nil {
		raw, err := json.Marshal(b.Thresholds)
		if err != nil {
			return fmt.Errorf("encoding baseline thresholds: %w", err)
		}
		thresholds = sql.NullString{String: string(raw), Valid: true}
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO baselines (id, project_id, file_id, name, snapshot, thresholds, created_at)
		VALUES (?,?,?,?,?,?,?)`,
		b.ID, b.ProjectID, b.FileID, b.Name, string(snapshot), thresholds, b.CreatedAt)
	if err != nil {
		return fmt.Errorf("saving baseline: %w", err)
	}
	return nil
}

// GetBaseline fetches one baseline by id.
func (db *DB) GetBaseline(ctx context.Context, id uuid.UUID) (models.RegressionBaseline, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, project_id, file_id, name, snapshot, thresholds, created_at
		FROM baselines WHERE id = ?`, id)
	if err != nil {
		return models.RegressionBaseline{}, fmt.Errorf("getting baseline: %w", err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return models.RegressionBaseline{}, fmt.Errorf("getting baseline: %w", err)
		}
		return models.RegressionBaseline{}, ErrNotFound
	}
	return scanBaseline(rows)
}

// ListBaselines returns a project's baselines, newest first.
func (db *DB) ListBaselines(ctx context.Context, projectID string, limit int) ([]models.RegressionBaseline, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.conn.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, project_id, file_id, name, snapshot, thresholds, created_at
		FROM baselines WHERE project_id = ? ORDER BY created_at DESC LIMIT %d`, limit),
		projectID)
	if err != nil {
		return nil, fmt.Errorf("listing baselines: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var baselines []models.RegressionBaseline
	for rows.Next() {
		b, err := scanBaseline(rows)
		if err != nil {
			return nil, err
		}
		baselines = append(baselines, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scanning baselines: %w", err)
	}
	return baselines, nil
}

// DeleteBaseline removes one baseline by id.
func (db *DB) DeleteBaseline(ctx context.Context, id uuid.UUID) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM baselines WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting baseline: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanBaseline(rows *sql.Rows) (models.RegressionBaseline, error) {
	var (
		b          models.RegressionBaseline
		name       sql.NullString
		snapshot   string
		thresholds sql.NullString
	)
	if err := rows.Scan(&b.ID, &b.ProjectID, &b.FileID, &name,
		&snapshot, &thresholds, &b.CreatedAt); err != nil {
		return b, fmt.Errorf("scanning baseline: %w", err)
	}
	b.Name = name.String
	if err := json.Unmarshal([]byte(snapshot), &b.Snapshot); err != nil {
		return b, fmt.Errorf("decoding baseline snapshot: %w", err)
	}
	if thresholds.Valid {
		b.Thresholds = &models.RegressionThresholds{}
		if err := json.Unmarshal([]byte(thresholds.String), b.Thresholds); err != nil {
			return b, fmt.Errorf("decoding baseline thresholds: %w", err)
		}
	}
	return b, nil
}

// interface checks
var (
	_ EventStore    = (*DB)(nil)
	_ RuleStore     = (*DB)(nil)
	_ BaselineStore = (*DB)(nil)
)
