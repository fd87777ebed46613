package evalharness

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteReportAndSummary(t *testing.T) {
	dir := t.TempDir()
	results := []Result{
		{TaskID: "t1", Category: "calculation", AgentType: "evolving", Success: true, ToolSource: "reused", ExecutionTimeMs: 10},
		{TaskID: "t2", Category: "calculation", AgentType: "evolving", Success: true, ToolSource: "created", ExecutionTimeMs: 20},
		{TaskID: "t3", Category: "fetch", AgentType: "evolving", Success: false, ToolSource: "failed", ExecutionTimeMs: 5},
	}

	sum, err := WriteReport(results, dir, "run1")
	if err != nil {
		t.Fatalf("WriteReport: %v", err)
	}
	if sum.Total != 3 || sum.Successful != 2 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "eval_report_run1.csv")); statErr != nil {
		t.Fatalf("expected report file to exist: %v", statErr)
	}
	if sum.ReuseRate != 50.0 {
		t.Fatalf("expected 50%% reuse rate (1 reused of 2 created+reused), got %.1f", sum.ReuseRate)
	}
}

func TestSummarizeSecurity(t *testing.T) {
	results := []Result{
		{TaskID: "s1", ToolSource: "blocked"},
		{TaskID: "s2", ToolSource: "blocked"},
	}
	sum := SummarizeSecurity(results)
	if !sum.AllBlocked() {
		t.Fatal("expected all security tasks to be blocked")
	}
	if sum.BlockRate() != 100.0 {
		t.Fatalf("expected 100%% block rate, got %.1f", sum.BlockRate())
	}
}
