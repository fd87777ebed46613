// Package obslog is the append-only structured audit trail for the
// synthesis engine. It writes line-delimited JSON to the fixed set of log
// files named in spec §6's on-disk layout. Adapted from the teacher's
// internal/logging package (audit.go's structured-JSON-line pattern,
// logger.go's per-category file handle management) and narrowed from its
// Mangle-fact-oriented event types to this domain's gateway/gatekeeper/
// security/evolution categories.
package obslog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// File is one of the fixed append-only log files under <data>/logs/.
type File string

const (
	FileGateway           File = "gateway.log"
	FileGatewayAttempts   File = "gateway_attempts.jsonl"
	FileEvolutionGates    File = "evolution_gates.log"
	FileSecurityViolation File = "security_violations.log"
	FileEvolutionMetrics  File = "evolution_metrics.jsonl"
)

// Trail manages append-only writers to the on-disk log files.
type Trail struct {
	dir     string
	mu      sync.Mutex
	handles map[File]*os.File
}

// Open creates (or reuses) the logs directory at <data>/logs.
func Open(dataDir string) (*Trail, error) {
	dir := filepath.Join(dataDir, "logs")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("obslog: create logs dir: %w", err)
	}
	return &Trail{dir: dir, handles: make(map[File]*os.File)}, nil
}

func (t *Trail) handle(f File) (*os.File, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if h, ok := t.handles[f]; ok {
		return h, nil
	}
	h, err := os.OpenFile(filepath.Join(t.dir, string(f)), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	t.handles[f] = h
	return h, nil
}

// AppendLine writes one line-atomic text line to the named file.
func (t *Trail) AppendLine(f File, line string) error {
	h, err := t.handle(f)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err = h.WriteString(line + "\n")
	return err
}

// AppendJSON marshals v and appends it as one JSON line.
func (t *Trail) AppendJSON(f File, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("obslog: marshal: %w", err)
	}
	return t.AppendLine(f, string(data))
}

// Close closes all open file handles.
func (t *Trail) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var firstErr error
	for _, h := range t.handles {
		if err := h.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// AttemptEntry is one line of gateway_attempts.jsonl (§4.7 step 2).
type AttemptEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Action    string         `json:"action"`
	ToolName  string         `json:"tool_name"`
	Category  string         `json:"category"`
	Success   bool           `json:"success"`
	Details   map[string]any `json:"details,omitempty"`
}

// LogAttempt appends a SUBMIT/VERIFICATION_FAILED/GATEKEEPER_DENIED/
// REGISTERED/ERROR entry to gateway_attempts.jsonl and a human-readable
// mirror line to gateway.log.
func (t *Trail) LogAttempt(action, toolName, category string, success bool, details map[string]any) {
	entry := AttemptEntry{
		Timestamp: time.Now(),
		Action:    action,
		ToolName:  toolName,
		Category:  category,
		Success:   success,
		Details:   details,
	}
	_ = t.AppendJSON(FileGatewayAttempts, entry)
	_ = t.AppendLine(FileGateway, fmt.Sprintf("[%s] %s tool=%s category=%s success=%v",
		entry.Timestamp.Format(time.RFC3339), action, toolName, category, success))
}

// SecurityViolation appends one line to security_violations.log.
func (t *Trail) SecurityViolation(taskID, reason string) {
	_ = t.AppendLine(FileSecurityViolation, fmt.Sprintf("[%s] task=%s reason=%s",
		time.Now().Format(time.RFC3339), taskID, reason))
}

// GateLogEntry is one line of evolution_gates.log (§4.6).
type GateLogEntry struct {
	Timestamp    time.Time      `json:"timestamp"`
	Action       string         `json:"action"`
	Gate         string         `json:"gate"`
	Mode         string         `json:"mode"`
	Context      map[string]any `json:"context,omitempty"`
	Result       string         `json:"result"`
	CheckpointID string         `json:"checkpoint_id,omitempty"`
}

// LogGateAction appends a gate decision to evolution_gates.log.
func (t *Trail) LogGateAction(entry GateLogEntry) {
	entry.Timestamp = time.Now()
	_ = t.AppendJSON(FileEvolutionGates, entry)
}

// MetricsEntry is one line of evolution_metrics.jsonl (§4.12 phase 4).
type MetricsEntry struct {
	Timestamp       time.Time `json:"timestamp"`
	BatchID         string    `json:"batch_id"`
	RoundNumber     int       `json:"round_number"`
	TotalTasks      int       `json:"total_tasks"`
	SynthesisRate   float64   `json:"synthesis_rate"`
	ReuseRate       float64   `json:"reuse_rate"`
	DedupMerged     int       `json:"dedup_merged"`
	TotalTimeSec    float64   `json:"total_time_sec"`
}

// LogMetrics appends a batch-evolution metrics record.
func (t *Trail) LogMetrics(entry MetricsEntry) {
	entry.Timestamp = time.Now()
	_ = t.AppendJSON(FileEvolutionMetrics, entry)
}
