package evalharness

import "testing"

func TestCompareRunsConsistency(t *testing.T) {
	dir := t.TempDir()

	run1 := []Result{
		{TaskID: "t1", Success: true, ToolSource: "created", ExecutionTimeMs: 100},
		{TaskID: "t2", Success: false, ToolSource: "failed", ExecutionTimeMs: 50},
	}
	run2 := []Result{
		{TaskID: "t1", Success: true, ToolSource: "reused", ExecutionTimeMs: 20},
		{TaskID: "t2", Success: false, ToolSource: "failed", ExecutionTimeMs: 50},
	}

	if _, err := WriteReport(run1, dir, "run1"); err != nil {
		t.Fatalf("write run1: %v", err)
	}
	if _, err := WriteReport(run2, dir, "run2"); err != nil {
		t.Fatalf("write run2: %v", err)
	}

	cmp, err := CompareRuns(dir, "run1", "run2")
	if err != nil {
		t.Fatalf("CompareRuns: %v", err)
	}
	if cmp.ConsistencyRate != 100.0 {
		t.Fatalf("expected 100%% consistency, got %.1f", cmp.ConsistencyRate)
	}
	if !cmp.Passed {
		t.Fatal("expected a fully-consistent comparison to pass the gate")
	}
	if !cmp.TimeImproved {
		t.Fatal("expected run2's lower average time to register as improved")
	}
	if cmp.Report() == "" {
		t.Fatal("expected a non-empty rendered report")
	}
}

func TestCompareRunsInconsistent(t *testing.T) {
	dir := t.TempDir()

	run1 := []Result{
		{TaskID: "t1", Success: true, ToolSource: "created", ExecutionTimeMs: 100},
	}
	run2 := []Result{
		{TaskID: "t1", Success: false, ToolSource: "failed", ExecutionTimeMs: 100},
	}
	WriteReport(run1, dir, "a")
	WriteReport(run2, dir, "b")

	cmp, err := CompareRuns(dir, "a", "b")
	if err != nil {
		t.Fatalf("CompareRuns: %v", err)
	}
	if cmp.Passed {
		t.Fatal("expected a fully-inconsistent comparison to fail the gate")
	}
}

func TestCompareRunsMissingReport(t *testing.T) {
	dir := t.TempDir()
	if _, err := CompareRuns(dir, "missing1", "missing2"); err == nil {
		t.Fatal("expected an error when a report file does not exist")
	}
}
