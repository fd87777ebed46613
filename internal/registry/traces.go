package registry

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"finevo/internal/model"
)

// migrateTraces adds the execution-trace, error-report, tool-patch, and
// batch-merge-record tables to the same SQLite database the artifacts table
// lives in. Adapted from the teacher's internal/store/trace_store.go (one
// append-only table per history kind, sharing a connection with the rest of
// the store) but narrowed to this domain's four record types instead of
// LLM reasoning traces.
func (r *Registry) migrateTraces() error {
	_, err := r.db.Exec(`
CREATE TABLE IF NOT EXISTS execution_traces (
	trace_id           TEXT PRIMARY KEY,
	task_id            TEXT NOT NULL,
	tool_id            INTEGER NOT NULL,
	input_args         TEXT NOT NULL DEFAULT '{}',
	output_repr        TEXT NOT NULL DEFAULT '',
	exit_code          INTEGER NOT NULL,
	stdout             TEXT NOT NULL DEFAULT '',
	stderr             TEXT NOT NULL DEFAULT '',
	execution_time_ms  INTEGER NOT NULL DEFAULT 0,
	created_at         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_execution_traces_tool ON execution_traces(tool_id);
CREATE INDEX IF NOT EXISTS idx_execution_traces_task ON execution_traces(task_id);

CREATE TABLE IF NOT EXISTS error_reports (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	trace_id    TEXT NOT NULL,
	error_type  TEXT NOT NULL,
	root_cause  TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_error_reports_trace ON error_reports(trace_id);

CREATE TABLE IF NOT EXISTS tool_patches (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	error_report_id     INTEGER NOT NULL,
	base_tool_id        INTEGER NOT NULL,
	patch_diff          TEXT NOT NULL DEFAULT '',
	rationale           TEXT NOT NULL DEFAULT '',
	resulting_tool_id   INTEGER NOT NULL DEFAULT 0,
	created_at          TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tool_patches_base ON tool_patches(base_tool_id);

CREATE TABLE IF NOT EXISTS batch_merge_records (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	canonical_tool_id  INTEGER NOT NULL,
	source_tool_ids    TEXT NOT NULL DEFAULT '[]',
	strategy           TEXT NOT NULL DEFAULT '',
	stats              TEXT NOT NULL DEFAULT '{}',
	created_at         TEXT NOT NULL
);
`)
	if err != nil {
		return fmt.Errorf("registry: migrate traces: %w", err)
	}
	return nil
}

// RecordTrace persists one execution trace. Insert failures are not fatal to
// the caller's execution path, but are surfaced so the task executor can
// log them.
func (r *Registry) RecordTrace(t model.ExecutionTrace) error {
	argsJSON, err := json.Marshal(t.InputArgs)
	if err != nil {
		return fmt.Errorf("registry: marshal input args: %w", err)
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	_, err = r.db.Exec(`
INSERT INTO execution_traces
	(trace_id, task_id, tool_id, input_args, output_repr, exit_code, stdout, stderr, execution_time_ms, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TraceID, t.TaskID, t.ToolID, string(argsJSON), t.OutputRepr, t.ExitCode,
		t.StdOut, t.StdErr, t.ExecutionTimeMs, t.CreatedAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("registry: record trace: %w", err)
	}
	return nil
}

// GetTrace returns one execution trace by id.
func (r *Registry) GetTrace(traceID string) (*model.ExecutionTrace, error) {
	row := r.db.QueryRow(`
SELECT trace_id, task_id, tool_id, input_args, output_repr, exit_code, stdout, stderr, execution_time_ms, created_at
FROM execution_traces WHERE trace_id = ?`, traceID)
	var t model.ExecutionTrace
	var argsJSON, createdAt string
	err := row.Scan(&t.TraceID, &t.TaskID, &t.ToolID, &argsJSON, &t.OutputRepr, &t.ExitCode,
		&t.StdOut, &t.StdErr, &t.ExecutionTimeMs, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("registry: get trace: %w", err)
	}
	_ = json.Unmarshal([]byte(argsJSON), &t.InputArgs)
	t.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	return &t, nil
}

// RecordErrorReport persists a refiner-generated error report and returns
// its assigned id.
func (r *Registry) RecordErrorReport(e model.ErrorReport) (int64, error) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	res, err := r.db.Exec(`INSERT INTO error_reports (trace_id, error_type, root_cause, created_at) VALUES (?, ?, ?, ?)`,
		e.TraceID, e.ErrorType, e.RootCause, e.CreatedAt.Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("registry: record error report: %w", err)
	}
	return res.LastInsertId()
}

// RecordToolPatch persists a refiner-generated patch and returns its
// assigned id.
func (r *Registry) RecordToolPatch(p model.ToolPatch) (int64, error) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	res, err := r.db.Exec(`
INSERT INTO tool_patches (error_report_id, base_tool_id, patch_diff, rationale, resulting_tool_id, created_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		p.ErrorReportID, p.BaseToolID, p.PatchDiff, p.Rationale, p.ResultingToolID, p.CreatedAt.Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("registry: record tool patch: %w", err)
	}
	return res.LastInsertId()
}

// PreviousPatchesForTool returns prior patch attempts against baseToolID,
// oldest first -- the refiner's previous_patches history.
func (r *Registry) PreviousPatchesForTool(baseToolID int64) ([]model.ToolPatch, error) {
	rows, err := r.db.Query(`
SELECT id, error_report_id, base_tool_id, patch_diff, rationale, resulting_tool_id, created_at
FROM tool_patches WHERE base_tool_id = ? ORDER BY id ASC`, baseToolID)
	if err != nil {
		return nil, fmt.Errorf("registry: previous patches: %w", err)
	}
	defer rows.Close()

	var out []model.ToolPatch
	for rows.Next() {
		var p model.ToolPatch
		var createdAt string
		if err := rows.Scan(&p.ID, &p.ErrorReportID, &p.BaseToolID, &p.PatchDiff, &p.Rationale, &p.ResultingToolID, &createdAt); err != nil {
			return nil, fmt.Errorf("registry: scan patch: %w", err)
		}
		p.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

// RecordMerge persists a deduplicator merge decision.
func (r *Registry) RecordMerge(m model.BatchMergeRecord) (int64, error) {
	sourcesJSON, err := json.Marshal(m.SourceToolIDs)
	if err != nil {
		return 0, fmt.Errorf("registry: marshal source ids: %w", err)
	}
	statsJSON, err := json.Marshal(m.Stats)
	if err != nil {
		return 0, fmt.Errorf("registry: marshal merge stats: %w", err)
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	res, err := r.db.Exec(`
INSERT INTO batch_merge_records (canonical_tool_id, source_tool_ids, strategy, stats, created_at)
VALUES (?, ?, ?, ?, ?)`,
		m.CanonicalToolID, string(sourcesJSON), m.Strategy, string(statsJSON), m.CreatedAt.Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("registry: record merge: %w", err)
	}
	return res.LastInsertId()
}
