// Package registry is the single source of truth for tool artifacts: it
// persists metadata in SQLite and the Go source payload on disk, keyed by
// content hash for deduplication. Adapted from the teacher's
// internal/store/tool_store.go (SQLite schema-and-CRUD pattern, row-scanning
// helpers, timestamp convention) and original_source/src/core/registry.py
// (content-hash dedup, semantic-version bump, filename generation).
package registry

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"finevo/internal/model"
)

const timeLayout = "2006-01-02 15:04:05"

// Registry is the tool artifact store: SQLite metadata + on-disk payload.
type Registry struct {
	db       *sql.DB
	rootDir  string // <data>/artifacts
}

// Open opens (creating if necessary) the SQLite database at dbPath and
// ensures the artifact directories exist under artifactsDir.
func Open(dbPath, artifactsDir string) (*Registry, error) {
	if err := os.MkdirAll(filepath.Join(artifactsDir, "bootstrap"), 0o755); err != nil {
		return nil, fmt.Errorf("registry: create bootstrap dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(artifactsDir, "generated"), 0o755); err != nil {
		return nil, fmt.Errorf("registry: create generated dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("registry: create db dir: %w", err)
	}
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("registry: open db: %w", err)
	}
	r := &Registry{db: db, rootDir: artifactsDir}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	if err := r.migrateTraces(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Registry) migrate() error {
	_, err := r.db.Exec(`
CREATE TABLE IF NOT EXISTS tool_artifacts (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	name                TEXT NOT NULL,
	semantic_version    TEXT NOT NULL,
	file_path           TEXT NOT NULL,
	content_hash        TEXT NOT NULL UNIQUE,
	code_content        TEXT NOT NULL,
	args_schema         TEXT NOT NULL DEFAULT '{}',
	permissions         TEXT NOT NULL DEFAULT '[]',
	category            TEXT NOT NULL DEFAULT '',
	contract_id         TEXT NOT NULL DEFAULT '',
	indicator           TEXT NOT NULL DEFAULT '',
	data_type           TEXT NOT NULL DEFAULT '',
	verification_stage  INTEGER NOT NULL DEFAULT 0,
	status              TEXT NOT NULL DEFAULT 'PROVISIONAL',
	parent_tool_ids      TEXT NOT NULL DEFAULT '[]',
	success_count       INTEGER NOT NULL DEFAULT 0,
	failure_count       INTEGER NOT NULL DEFAULT 0,
	avg_exec_time_ms    REAL NOT NULL DEFAULT 0,
	created_at          TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tool_artifacts_name ON tool_artifacts(name);
CREATE INDEX IF NOT EXISTS idx_tool_artifacts_contract ON tool_artifacts(contract_id);
CREATE INDEX IF NOT EXISTS idx_tool_artifacts_status ON tool_artifacts(status);
`)
	if err != nil {
		return fmt.Errorf("registry: migrate: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (r *Registry) Close() error { return r.db.Close() }

// ContentHash returns the SHA256 hex digest of a tool's code content, the
// dedup key used throughout registry.py's register().
func ContentHash(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// RegisterRequest describes a candidate tool to register.
type RegisterRequest struct {
	Name        string
	Code        string
	ArgsSchema  map[string]string
	Permissions []model.Permission
	Category    string
	ContractID  string
	Indicator   string
	DataType    string
	IsBootstrap bool
	ParentToolIDs []int64
}

// Register inserts a new tool artifact, or returns the existing artifact
// unchanged if an identical content hash is already registered (dedup, per
// registry.py's behavior: "if hash exists, return existing record, do not
// create a duplicate row"). A new registration for an existing name bumps
// the patch component of the semantic version (default "0.1.0" for a brand
// new name). Version lookup and insert run inside one transaction so a
// concurrent batch registering under the same name can't race two callers
// onto the same (name, version) pair.
func (r *Registry) Register(req RegisterRequest) (*model.ToolArtifact, error) {
	hash := ContentHash(req.Code)

	if existing, err := r.GetByHash(hash); err == nil {
		return existing, nil
	} else if err != ErrNotFound {
		return nil, err
	}

	schemaJSON, err := json.Marshal(req.ArgsSchema)
	if err != nil {
		return nil, fmt.Errorf("registry: marshal args schema: %w", err)
	}
	permsJSON, err := json.Marshal(req.Permissions)
	if err != nil {
		return nil, fmt.Errorf("registry: marshal permissions: %w", err)
	}
	parentsJSON, err := json.Marshal(req.ParentToolIDs)
	if err != nil {
		return nil, fmt.Errorf("registry: marshal parent ids: %w", err)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("registry: begin tx: %w", err)
	}
	defer tx.Rollback()

	version, err := r.nextVersion(tx, req.Name)
	if err != nil {
		return nil, err
	}

	subdir := "generated"
	if req.IsBootstrap {
		subdir = "bootstrap"
	}
	filename := fmt.Sprintf("%s_v%s_%s.go", sanitize(req.Name), version, hash[:8])
	relPath := filepath.Join(subdir, filename)
	absPath := filepath.Join(r.rootDir, relPath)
	if err := os.WriteFile(absPath, []byte(req.Code), 0o644); err != nil {
		return nil, fmt.Errorf("registry: write artifact file: %w", err)
	}

	now := time.Now()
	res, err := tx.Exec(`
INSERT INTO tool_artifacts
	(name, semantic_version, file_path, content_hash, code_content, args_schema,
	 permissions, category, contract_id, indicator, data_type,
	 verification_stage, status, parent_tool_ids, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.Name, version, relPath, hash, req.Code, string(schemaJSON),
		string(permsJSON), req.Category, req.ContractID, req.Indicator, req.DataType,
		model.StageNone, model.StatusProvisional, string(parentsJSON), now.Format(timeLayout))
	if err != nil {
		_ = os.Remove(absPath)
		return nil, fmt.Errorf("registry: insert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		_ = os.Remove(absPath)
		return nil, fmt.Errorf("registry: last insert id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		_ = os.Remove(absPath)
		return nil, fmt.Errorf("registry: commit: %w", err)
	}
	return r.GetByID(id)
}

// nextVersion computes the next semantic version for name: "0.1.0" if name
// is unseen, otherwise the prior highest version with its patch component
// incremented, matching registry.py's `_bump_version`. Run inside tx so the
// read-then-write is atomic with respect to concurrent registrations.
func (r *Registry) nextVersion(tx *sql.Tx, name string) (string, error) {
	rows, err := tx.Query(`SELECT semantic_version FROM tool_artifacts WHERE name = ?`, name)
	if err != nil {
		return "", fmt.Errorf("registry: query versions: %w", err)
	}
	defer rows.Close()

	best := [3]int{-1, -1, -1}
	found := false
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return "", err
		}
		parts := strings.SplitN(v, ".", 3)
		if len(parts) != 3 {
			continue
		}
		maj, _ := strconv.Atoi(parts[0])
		min, _ := strconv.Atoi(parts[1])
		pat, _ := strconv.Atoi(parts[2])
		if !found || greater([3]int{maj, min, pat}, best) {
			best = [3]int{maj, min, pat}
			found = true
		}
	}
	if !found {
		return "0.1.0", nil
	}
	return fmt.Sprintf("%d.%d.%d", best[0], best[1], best[2]+1), nil
}

func greater(a, b [3]int) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] > b[i]
		}
	}
	return false
}

func sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// ErrNotFound is returned by lookups that find no matching row.
var ErrNotFound = fmt.Errorf("registry: not found")

const selectColumns = `id, name, semantic_version, file_path, content_hash, code_content,
	args_schema, permissions, category, contract_id, indicator, data_type,
	verification_stage, status, parent_tool_ids, success_count, failure_count,
	avg_exec_time_ms, created_at`

func (r *Registry) scanArtifact(row interface {
	Scan(...any) error
}) (*model.ToolArtifact, error) {
	var a model.ToolArtifact
	var schemaJSON, permsJSON, parentsJSON, createdAt string
	var stage int
	var status string
	err := row.Scan(&a.ID, &a.Name, &a.SemanticVersion, &a.FilePath, &a.ContentHash, &a.CodeContent,
		&schemaJSON, &permsJSON, &a.Category, &a.ContractID, &a.Indicator, &a.DataType,
		&stage, &status, &parentsJSON, &a.SuccessCount, &a.FailureCount,
		&a.AvgExecTimeMs, &createdAt)
	if err != nil {
		return nil, err
	}
	a.VerificationStage = model.VerificationStage(stage)
	a.Status = model.ToolStatus(status)
	if err := json.Unmarshal([]byte(schemaJSON), &a.ArgsSchema); err != nil {
		return nil, fmt.Errorf("registry: unmarshal args schema: %w", err)
	}
	if err := json.Unmarshal([]byte(permsJSON), &a.Permissions); err != nil {
		return nil, fmt.Errorf("registry: unmarshal permissions: %w", err)
	}
	if err := json.Unmarshal([]byte(parentsJSON), &a.ParentToolIDs); err != nil {
		return nil, fmt.Errorf("registry: unmarshal parent ids: %w", err)
	}
	a.CreatedAt, err = time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("registry: parse created_at: %w", err)
	}
	return &a, nil
}

// GetByID returns the artifact with the given id.
func (r *Registry) GetByID(id int64) (*model.ToolArtifact, error) {
	row := r.db.QueryRow(`SELECT `+selectColumns+` FROM tool_artifacts WHERE id = ?`, id)
	a, err := r.scanArtifact(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("registry: get by id: %w", err)
	}
	return a, nil
}

// GetByHash returns the artifact with the given content hash.
func (r *Registry) GetByHash(hash string) (*model.ToolArtifact, error) {
	row := r.db.QueryRow(`SELECT `+selectColumns+` FROM tool_artifacts WHERE content_hash = ?`, hash)
	a, err := r.scanArtifact(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("registry: get by hash: %w", err)
	}
	return a, nil
}

// GetByName returns all artifacts registered under name, newest first.
func (r *Registry) GetByName(name string) ([]*model.ToolArtifact, error) {
	rows, err := r.db.Query(`SELECT `+selectColumns+` FROM tool_artifacts WHERE name = ? ORDER BY id DESC`, name)
	if err != nil {
		return nil, fmt.Errorf("registry: get by name: %w", err)
	}
	defer rows.Close()
	return scanAll(rows)
}

// FindByContractID returns every artifact registered under a contract,
// regardless of status, newest first.
func (r *Registry) FindByContractID(contractID string) ([]*model.ToolArtifact, error) {
	rows, err := r.db.Query(`SELECT `+selectColumns+` FROM tool_artifacts WHERE contract_id = ? ORDER BY id DESC`, contractID)
	if err != nil {
		return nil, fmt.Errorf("registry: find by contract: %w", err)
	}
	defer rows.Close()
	return scanAll(rows)
}

// List returns all artifacts, optionally filtered by status.
func (r *Registry) List(status model.ToolStatus) ([]*model.ToolArtifact, error) {
	var rows *sql.Rows
	var err error
	if status == "" {
		rows, err = r.db.Query(`SELECT ` + selectColumns + ` FROM tool_artifacts ORDER BY id DESC`)
	} else {
		rows, err = r.db.Query(`SELECT `+selectColumns+` FROM tool_artifacts WHERE status = ? ORDER BY id DESC`, string(status))
	}
	if err != nil {
		return nil, fmt.Errorf("registry: list: %w", err)
	}
	defer rows.Close()
	return scanAll(rows)
}

func scanAll(rows *sql.Rows) ([]*model.ToolArtifact, error) {
	var out []*model.ToolArtifact
	for rows.Next() {
		var a model.ToolArtifact
		var schemaJSON, permsJSON, parentsJSON, createdAt string
		var stage int
		var status string
		err := rows.Scan(&a.ID, &a.Name, &a.SemanticVersion, &a.FilePath, &a.ContentHash, &a.CodeContent,
			&schemaJSON, &permsJSON, &a.Category, &a.ContractID, &a.Indicator, &a.DataType,
			&stage, &status, &parentsJSON, &a.SuccessCount, &a.FailureCount,
			&a.AvgExecTimeMs, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("registry: scan row: %w", err)
		}
		a.VerificationStage = model.VerificationStage(stage)
		a.Status = model.ToolStatus(status)
		_ = json.Unmarshal([]byte(schemaJSON), &a.ArgsSchema)
		_ = json.Unmarshal([]byte(permsJSON), &a.Permissions)
		_ = json.Unmarshal([]byte(parentsJSON), &a.ParentToolIDs)
		a.CreatedAt, _ = time.Parse(timeLayout, createdAt)
		out = append(out, &a)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, rows.Err()
}

// UpdateStatus transitions a tool's lifecycle status.
func (r *Registry) UpdateStatus(id int64, status model.ToolStatus) error {
	_, err := r.db.Exec(`UPDATE tool_artifacts SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("registry: update status: %w", err)
	}
	return nil
}

// UpdateVerificationStage records the highest verification stage a tool has
// passed.
func (r *Registry) UpdateVerificationStage(id int64, stage model.VerificationStage) error {
	_, err := r.db.Exec(`UPDATE tool_artifacts SET verification_stage = ? WHERE id = ?`, int(stage), id)
	if err != nil {
		return fmt.Errorf("registry: update verification stage: %w", err)
	}
	return nil
}

// UpdateSchema overwrites a tool's extracted args schema, contract id,
// indicator, and data type (post-hoc enrichment by the synthesizer/refiner).
func (r *Registry) UpdateSchema(id int64, argsSchema map[string]string, contractID, indicator, dataType string) error {
	schemaJSON, err := json.Marshal(argsSchema)
	if err != nil {
		return fmt.Errorf("registry: marshal args schema: %w", err)
	}
	_, err = r.db.Exec(`UPDATE tool_artifacts SET args_schema = ?, contract_id = ?, indicator = ?, data_type = ? WHERE id = ?`,
		string(schemaJSON), contractID, indicator, dataType, id)
	if err != nil {
		return fmt.Errorf("registry: update schema: %w", err)
	}
	return nil
}

// RecordExecution updates a tool's running success/failure counters and
// exponential-moving-average execution time after one task-executor run,
// implementing the "real running counter" resolution of the dedup scoring
// Open Question.
func (r *Registry) RecordExecution(id int64, success bool, execTimeMs int64) error {
	a, err := r.GetByID(id)
	if err != nil {
		return err
	}
	successCount, failureCount := a.SuccessCount, a.FailureCount
	if success {
		successCount++
	} else {
		failureCount++
	}
	const alpha = 0.2
	avg := a.AvgExecTimeMs
	if avg == 0 {
		avg = float64(execTimeMs)
	} else {
		avg = alpha*float64(execTimeMs) + (1-alpha)*avg
	}
	_, err = r.db.Exec(`UPDATE tool_artifacts SET success_count = ?, failure_count = ?, avg_exec_time_ms = ? WHERE id = ?`,
		successCount, failureCount, avg, id)
	if err != nil {
		return fmt.Errorf("registry: record execution: %w", err)
	}
	return nil
}

// Deprecate marks a tool DEPRECATED, used by the deduplicator when a
// superior tool supersedes it.
func (r *Registry) Deprecate(id int64) error {
	return r.UpdateStatus(id, model.StatusDeprecated)
}
