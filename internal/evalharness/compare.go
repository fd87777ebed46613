package evalharness

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// consistencyGate is the minimum consistency rate compare_runs.py
// requires for a merge to pass (eval.md section 6.2's regression_test,
// check.md step 8.2).
const consistencyGate = 95.0

type reportRow struct {
	Success         string
	ToolSource      string
	ExecutionTimeMs string
}

// loadReport reads an eval_report_<runID>.csv written by WriteReport,
// keyed by task_id. Adapted from compare_runs.py's load_report.
func loadReport(dir, runID string) (map[string]reportRow, error) {
	path := filepath.Join(dir, fmt.Sprintf("eval_report_%s.csv", runID))
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("evalharness: report not found: %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("evalharness: read report: %w", err)
	}
	if len(rows) == 0 {
		return map[string]reportRow{}, nil
	}

	header := rows[0]
	idx := map[string]int{}
	for i, col := range header {
		idx[col] = i
	}

	out := map[string]reportRow{}
	for _, row := range rows[1:] {
		taskID := row[idx["task_id"]]
		out[taskID] = reportRow{
			Success:         row[idx["success"]],
			ToolSource:      row[idx["tool_source"]],
			ExecutionTimeMs: row[idx["execution_time_ms"]],
		}
	}
	return out, nil
}

// TaskComparison is one row of the per-task comparison table.
type TaskComparison struct {
	TaskID                 string
	Run1Success, Run2Success string
	Run1Source, Run2Source   string
	Run1TimeMs, Run2TimeMs   string
	Match                    bool
}

// Comparison is the full result of comparing two evaluation runs.
// Adapted from compare_runs.py's compare_runs.
type Comparison struct {
	Run1ID, Run2ID   string
	Total            int
	Consistent       int
	ConsistencyRate  float64
	Run1SuccessRate  float64
	Run2SuccessRate  float64
	Run1Sources      map[string]int
	Run2Sources      map[string]int
	Run1AvgTimeMs    float64
	Run2AvgTimeMs    float64
	ReuseImproved    bool
	TimeImproved     bool
	Rows             []TaskComparison
	Passed           bool
}

// CompareRuns loads two reports from dir and compares them, returning
// the gate decision in Comparison.Passed (consistency rate >= 95%).
func CompareRuns(dir, run1ID, run2ID string) (Comparison, error) {
	run1, err := loadReport(dir, run1ID)
	if err != nil {
		return Comparison{}, err
	}
	run2, err := loadReport(dir, run2ID)
	if err != nil {
		return Comparison{}, err
	}

	taskSet := map[string]bool{}
	for id := range run1 {
		taskSet[id] = true
	}
	for id := range run2 {
		taskSet[id] = true
	}
	allTasks := make([]string, 0, len(taskSet))
	for id := range taskSet {
		allTasks = append(allTasks, id)
	}
	sort.Strings(allTasks)

	cmp := Comparison{
		Run1ID: run1ID, Run2ID: run2ID, Total: len(allTasks),
		Run1Sources: map[string]int{"created": 0, "reused": 0, "blocked": 0, "failed": 0},
		Run2Sources: map[string]int{"created": 0, "reused": 0, "blocked": 0, "failed": 0},
	}
	if cmp.Total == 0 {
		return cmp, fmt.Errorf("evalharness: no tasks found in reports")
	}

	var sr1Total, sr1Pass, sr2Total, sr2Pass int
	var t1Sum, t1Count, t2Sum, t2Count float64

	for _, taskID := range allTasks {
		r1, r2 := run1[taskID], run2[taskID]

		match := r1.Success == r2.Success
		if match {
			cmp.Consistent++
		}
		cmp.Rows = append(cmp.Rows, TaskComparison{
			TaskID: taskID,
			Run1Success: orNA(r1.Success), Run2Success: orNA(r2.Success),
			Run1Source: orNA(r1.ToolSource), Run2Source: orNA(r2.ToolSource),
			Run1TimeMs: orNA(r1.ExecutionTimeMs), Run2TimeMs: orNA(r2.ExecutionTimeMs),
			Match: match,
		})

		if _, ok := cmp.Run1Sources[r1.ToolSource]; ok {
			cmp.Run1Sources[r1.ToolSource]++
		}
		if _, ok := cmp.Run2Sources[r2.ToolSource]; ok {
			cmp.Run2Sources[r2.ToolSource]++
		}

		if r1.Success != "" {
			sr1Total++
			if r1.Success == "true" {
				sr1Pass++
			}
		}
		if r2.Success != "" {
			sr2Total++
			if r2.Success == "true" {
				sr2Pass++
			}
		}
		if ms, err := strconv.ParseFloat(r1.ExecutionTimeMs, 64); err == nil {
			t1Sum += ms
			t1Count++
		}
		if ms, err := strconv.ParseFloat(r2.ExecutionTimeMs, 64); err == nil {
			t2Sum += ms
			t2Count++
		}
	}

	cmp.ConsistencyRate = float64(cmp.Consistent) / float64(cmp.Total) * 100
	if sr1Total > 0 {
		cmp.Run1SuccessRate = float64(sr1Pass) / float64(sr1Total) * 100
	}
	if sr2Total > 0 {
		cmp.Run2SuccessRate = float64(sr2Pass) / float64(sr2Total) * 100
	}
	if t1Count > 0 {
		cmp.Run1AvgTimeMs = t1Sum / t1Count
	}
	if t2Count > 0 {
		cmp.Run2AvgTimeMs = t2Sum / t2Count
	}
	cmp.ReuseImproved = cmp.Run2Sources["reused"] >= cmp.Run1Sources["reused"]
	cmp.TimeImproved = cmp.Run2AvgTimeMs <= cmp.Run1AvgTimeMs
	cmp.Passed = cmp.ConsistencyRate >= consistencyGate

	return cmp, nil
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// Report renders the full comparison the way compare_runs.py's
// compare_runs prints it.
func (c Comparison) Report() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run Comparison: %s vs %s\n\n", c.Run1ID, c.Run2ID)
	fmt.Fprintf(&b, "Total tasks compared:  %d\n", c.Total)
	fmt.Fprintf(&b, "Consistent results:    %d/%d\n", c.Consistent, c.Total)
	fmt.Fprintf(&b, "Consistency Rate:      %.1f%% (target >= %.0f%%)\n", c.ConsistencyRate, consistencyGate)
	fmt.Fprintf(&b, "Run1 Success Rate:     %.1f%%\n", c.Run1SuccessRate)
	fmt.Fprintf(&b, "Run2 Success Rate:     %.1f%%\n\n", c.Run2SuccessRate)

	fmt.Fprintf(&b, "Tool Source Distribution:\n")
	for _, src := range []string{"created", "reused", "blocked", "failed"} {
		diff := c.Run2Sources[src] - c.Run1Sources[src]
		sign := ""
		if diff > 0 {
			sign = "+"
		}
		fmt.Fprintf(&b, "  %-10s %6d %6d %s%d\n", src, c.Run1Sources[src], c.Run2Sources[src], sign, diff)
	}
	fmt.Fprintf(&b, "\nReuse improved: %s\n", yesNo(c.ReuseImproved))

	fmt.Fprintf(&b, "\nRun1 avg: %.0f ms\nRun2 avg: %.0f ms\n", c.Run1AvgTimeMs, c.Run2AvgTimeMs)
	fmt.Fprintf(&b, "Time improved: %s\n", yesNo(c.TimeImproved))

	if c.Passed {
		fmt.Fprintf(&b, "\n[PASS] Consistency Rate %.1f%% >= %.0f%%\n", c.ConsistencyRate, consistencyGate)
	} else {
		fmt.Fprintf(&b, "\n[FAIL] Consistency Rate %.1f%% < %.0f%%\n", c.ConsistencyRate, consistencyGate)
	}
	return b.String()
}

func yesNo(b bool) string {
	if b {
		return "YES"
	}
	return "NO"
}
