package obslog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestOpenCreatesLogsDir(t *testing.T) {
	dataDir := t.TempDir()
	trail, err := Open(dataDir)
	if err != nil {
		t.Fatal(err)
	}
	defer trail.Close()

	if _, err := os.Stat(filepath.Join(dataDir, "logs")); err != nil {
		t.Errorf("expected logs dir to exist: %v", err)
	}
}

func TestLogAttemptWritesJSONAndMirrorLine(t *testing.T) {
	dataDir := t.TempDir()
	trail, err := Open(dataDir)
	if err != nil {
		t.Fatal(err)
	}
	defer trail.Close()

	trail.LogAttempt("REGISTERED", "calc_rsi", "calculation", true, map[string]any{"tool_id": 1})
	trail.Close()

	jsonl, err := os.ReadFile(filepath.Join(dataDir, "logs", string(FileGatewayAttempts)))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(jsonl), `"action":"REGISTERED"`) {
		t.Errorf("expected gateway_attempts.jsonl to contain the action, got: %s", jsonl)
	}

	mirror, err := os.ReadFile(filepath.Join(dataDir, "logs", string(FileGateway)))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(mirror), "tool=calc_rsi") {
		t.Errorf("expected gateway.log mirror line, got: %s", mirror)
	}
}

func TestSecurityViolationAppendsLine(t *testing.T) {
	dataDir := t.TempDir()
	trail, err := Open(dataDir)
	if err != nil {
		t.Fatal(err)
	}
	defer trail.Close()

	trail.SecurityViolation("task-1", "banned import: os/exec")
	trail.Close()

	data, err := os.ReadFile(filepath.Join(dataDir, "logs", string(FileSecurityViolation)))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "task=task-1") || !strings.Contains(string(data), "os/exec") {
		t.Errorf("unexpected security violation line: %s", data)
	}
}

func TestLogGateActionAndMetricsAppendLines(t *testing.T) {
	dataDir := t.TempDir()
	trail, err := Open(dataDir)
	if err != nil {
		t.Fatal(err)
	}
	defer trail.Close()

	trail.LogGateAction(GateLogEntry{Action: "create_tool", Gate: "CHECKPOINT", Mode: "dev", Result: "completed"})
	trail.LogMetrics(MetricsEntry{BatchID: "b1", RoundNumber: 1, TotalTasks: 5})
	trail.Close()

	gates, err := os.ReadFile(filepath.Join(dataDir, "logs", string(FileEvolutionGates)))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(gates), `"gate":"CHECKPOINT"`) {
		t.Errorf("unexpected evolution_gates.log content: %s", gates)
	}

	metrics, err := os.ReadFile(filepath.Join(dataDir, "logs", string(FileEvolutionMetrics)))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(metrics), `"batch_id":"b1"`) {
		t.Errorf("unexpected evolution_metrics.jsonl content: %s", metrics)
	}
}

func TestCloseIsIdempotentAcrossMultipleHandles(t *testing.T) {
	dataDir := t.TempDir()
	trail, err := Open(dataDir)
	if err != nil {
		t.Fatal(err)
	}
	trail.LogAttempt("SUBMIT", "t", "calculation", false, nil)
	trail.SecurityViolation("t2", "r")
	if err := trail.Close(); err != nil {
		t.Errorf("expected clean close, got %v", err)
	}
}
