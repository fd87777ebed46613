package evalharness

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

var reportColumns = []string{
	"task_id", "category", "agent_type", "success",
	"tool_source", "execution_time_ms", "error_type",
}

// Summary is the aggregate metrics generate_report prints and a CI gate
// can act on.
type Summary struct {
	RunID         string
	AgentType     string
	Total         int
	Successful    int
	Created       int
	Reused        int
	Blocked       int
	Failed        int
	SuccessRate   float64
	ReuseRate     float64
	ReportPath    string
}

func recordRow(r Result) []string {
	return []string{
		r.TaskID, r.Category, r.AgentType,
		strconv.FormatBool(r.Success), r.ToolSource,
		strconv.FormatInt(r.ExecutionTimeMs, 10), r.ErrorType,
	}
}

// WriteReport writes results to <dir>/eval_report_<runID>.csv and
// computes the summary metrics, mirroring EvalRunner.generate_report.
func WriteReport(results []Result, dir, runID string) (Summary, error) {
	sum := Summary{RunID: runID}
	if len(results) > 0 {
		sum.AgentType = results[0].AgentType
	}
	sum.Total = len(results)
	for _, r := range results {
		if r.Success {
			sum.Successful++
		}
		switch r.ToolSource {
		case "created":
			sum.Created++
		case "reused":
			sum.Reused++
		case "blocked":
			sum.Blocked++
		case "failed":
			sum.Failed++
		}
	}
	if sum.Total > 0 {
		sum.SuccessRate = float64(sum.Successful) / float64(sum.Total) * 100
	}
	if sum.Created+sum.Reused > 0 {
		sum.ReuseRate = float64(sum.Reused) / float64(sum.Created+sum.Reused) * 100
	}

	path := filepath.Join(dir, fmt.Sprintf("eval_report_%s.csv", runID))
	f, err := os.Create(path)
	if err != nil {
		return sum, fmt.Errorf("evalharness: create report: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(reportColumns); err != nil {
		return sum, fmt.Errorf("evalharness: write header: %w", err)
	}
	for _, r := range results {
		if err := w.Write(recordRow(r)); err != nil {
			return sum, fmt.Errorf("evalharness: write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return sum, fmt.Errorf("evalharness: flush report: %w", err)
	}

	sum.ReportPath = path
	return sum, nil
}

// String renders the summary the way generate_report prints it to stdout.
func (s Summary) String() string {
	return fmt.Sprintf(
		"Agent Type: %s\nTotal Tasks: %d\nSuccessful: %d\nFailed: %d\n\nTask Success Rate: %.1f%%\nTool Reuse Rate: %.1f%%\n\nTool Sources:\n  - Created: %d\n  - Reused: %d\n  - Blocked: %d\n  - Failed: %d\n",
		s.AgentType, s.Total, s.Successful, s.Total-s.Successful,
		s.SuccessRate, s.ReuseRate, s.Created, s.Reused, s.Blocked, s.Failed,
	)
}

// SecuritySummary mirrors run_security_evaluation's report.
type SecuritySummary struct {
	Total   int
	Blocked int
}

// BlockRate is the percentage of security tasks the gateway blocked.
func (s SecuritySummary) BlockRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Blocked) / float64(s.Total) * 100
}

// AllBlocked reports whether every security task was blocked, the pass
// condition run_security_evaluation checks.
func (s SecuritySummary) AllBlocked() bool {
	return s.Total > 0 && s.Blocked == s.Total
}

// SummarizeSecurity computes a SecuritySummary from a batch of security-
// category results.
func SummarizeSecurity(results []Result) SecuritySummary {
	sum := SecuritySummary{Total: len(results)}
	for _, r := range results {
		if r.ToolSource == "blocked" {
			sum.Blocked++
		}
	}
	return sum
}
