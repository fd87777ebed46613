// Package batch orchestrates batch tool evolution: parallel synthesis
// followed by sequential deduplication and metrics recording. Adapted
// from original_source's evolution/batch_manager.py's
// BatchEvolutionManager, retargeted from ThreadPoolExecutor to
// golang.org/x/sync/errgroup -- SQLite's single-writer locking plays the
// same role here as it does in the original, so concurrent writes from
// worker goroutines are safe without additional coordination.
package batch

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"finevo/internal/contracts"
	"finevo/internal/dedup"
	"finevo/internal/model"
	"finevo/internal/obslog"
	"finevo/internal/refine"
	"finevo/internal/registry"
	"finevo/internal/synth"
)

// Task is one unit of work submitted to a batch evolution round.
type Task struct {
	TaskID     string
	Query      string
	Category   string
	ContractID string
}

// EvolutionResult is the outcome of synthesizing one tool.
type EvolutionResult struct {
	TaskID                    string
	TaskQuery                 string
	Category                  string
	ContractID                string
	Success                   bool
	ToolID                    int64
	ToolName                  string
	Error                     string
	SynthesisTimeSec          float64
	Reused                    bool
	VerificationStageReached  model.VerificationStage
}

// Report aggregates one batch evolution round.
type Report struct {
	BatchID             string
	RoundNumber         int
	TotalTasks          int
	SynthesisSuccess    int
	RegistrationSuccess int
	ReusedCount         int
	DedupMerged         int
	TotalTimeSec        float64
	Results             []EvolutionResult
}

func (r *Report) SynthesisRate() float64 {
	if r.TotalTasks == 0 {
		return 0
	}
	return float64(r.SynthesisSuccess) / float64(r.TotalTasks)
}

func (r *Report) RegistrationRate() float64 {
	if r.TotalTasks == 0 {
		return 0
	}
	return float64(r.RegistrationSuccess) / float64(r.TotalTasks)
}

func (r *Report) ReuseRate() float64 {
	if r.TotalTasks == 0 {
		return 0
	}
	return float64(r.ReusedCount) / float64(r.TotalTasks)
}

// Manager orchestrates batch evolution rounds.
type Manager struct {
	synthesizer *synth.Synthesizer
	refiner     *refine.Refiner
	dedup       *dedup.Deduplicator
	registry    *registry.Registry
	trail       *obslog.Trail
	maxWorkers  int
	taskTimeout time.Duration
}

// NewManager creates a Manager. maxWorkers caps in-flight synthesis
// goroutines (default 3, matching the original's DashScope rate-limit
// safety margin); taskTimeoutSec bounds one task's synthesis+refine call.
func NewManager(s *synth.Synthesizer, r *refine.Refiner, d *dedup.Deduplicator, reg *registry.Registry, trail *obslog.Trail, maxWorkers, taskTimeoutSec int) *Manager {
	if maxWorkers <= 0 {
		maxWorkers = 3
	}
	if taskTimeoutSec <= 0 {
		taskTimeoutSec = 300
	}
	return &Manager{
		synthesizer: s, refiner: r, dedup: d, registry: reg, trail: trail,
		maxWorkers: maxWorkers, taskTimeout: time.Duration(taskTimeoutSec) * time.Second,
	}
}

// EvolveBatch runs one round of batch evolution: warm-start reuse check,
// parallel synthesis for the rest, then a sequential dedup pass.
func (m *Manager) EvolveBatch(ctx context.Context, tasks []Task, roundNumber int, now time.Time) *Report {
	report := &Report{
		BatchID:     fmt.Sprintf("batch_%d_%d", roundNumber, now.Unix()),
		RoundNumber: roundNumber,
		TotalTasks:  len(tasks),
	}
	start := now

	var toSynthesize []Task
	for _, task := range tasks {
		if existing := m.findExistingTool(task); existing != nil {
			report.Results = append(report.Results, EvolutionResult{
				TaskID: task.TaskID, TaskQuery: task.Query, Category: task.Category,
				ContractID: existing.ContractID, Success: true, ToolID: existing.ID,
				ToolName: existing.Name, Reused: true, VerificationStageReached: existing.VerificationStage,
			})
			report.SynthesisSuccess++
			report.RegistrationSuccess++
			report.ReusedCount++
			continue
		}
		toSynthesize = append(toSynthesize, task)
	}

	results := m.synthesizeParallel(ctx, toSynthesize)
	var pending []EvolutionResult
	for _, res := range results {
		if res.Success {
			report.SynthesisSuccess++
			report.RegistrationSuccess++
			pending = append(pending, res)
		}
		report.Results = append(report.Results, res)
	}

	for _, res := range pending {
		if res.ToolID != 0 && res.ContractID != "" {
			outcome, err := m.dedup.CheckAndResolve(res.ToolID, res.ContractID)
			if err == nil && outcome == dedup.ResolutionSuperseded {
				report.DedupMerged++
			}
		}
	}

	report.TotalTimeSec = now.Sub(start).Seconds()
	if m.trail != nil {
		m.trail.LogMetrics(obslog.MetricsEntry{
			BatchID: report.BatchID, RoundNumber: roundNumber, TotalTasks: report.TotalTasks,
			SynthesisRate: report.SynthesisRate(), ReuseRate: report.ReuseRate(),
			DedupMerged: report.DedupMerged, TotalTimeSec: report.TotalTimeSec,
		})
	}
	return report
}

func (m *Manager) findExistingTool(task Task) *model.ToolArtifact {
	if task.ContractID != "" {
		candidates, err := m.registry.FindByContractID(task.ContractID)
		if err == nil {
			for _, t := range candidates {
				if t.Status != model.StatusDeprecated && t.Status != model.StatusFailed {
					return t
				}
			}
		}
	}
	return nil
}

func (m *Manager) synthesizeParallel(ctx context.Context, tasks []Task) []EvolutionResult {
	results := make([]EvolutionResult, len(tasks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.maxWorkers)

	for i, task := range tasks {
		i, task := i, task
		g.Go(func() error {
			taskCtx, cancel := context.WithTimeout(gctx, m.taskTimeout)
			defer cancel()
			results[i] = m.synthesizeOne(taskCtx, task)
			return nil
		})
	}
	_ = g.Wait() // synthesizeOne never returns an error; failures are captured in EvolutionResult
	return results
}

func (m *Manager) synthesizeOne(ctx context.Context, task Task) EvolutionResult {
	start := time.Now()
	category := task.Category
	if category == "" {
		category = "calculation"
	}
	var contract *model.Contract
	if c, ok := contracts.InferFromQuery(task.Query, category); ok {
		contract = &c
	}

	tool, _ := m.synthesizer.SynthesizeWithRefine(ctx, task.Query, "", category, contract, m.refiner, 3)
	elapsed := time.Since(start).Seconds()

	if tool == nil {
		contractID := ""
		if contract != nil {
			contractID = contract.ContractID
		}
		return EvolutionResult{
			TaskID: task.TaskID, TaskQuery: task.Query, Category: category,
			ContractID: contractID, Success: false, Error: "verification failed",
			SynthesisTimeSec: elapsed,
		}
	}

	return EvolutionResult{
		TaskID: task.TaskID, TaskQuery: task.Query, Category: category,
		ContractID: tool.ContractID, Success: true, ToolID: tool.ID, ToolName: tool.Name,
		SynthesisTimeSec: elapsed, VerificationStageReached: tool.VerificationStage,
	}
}

// EvolveMultiRound runs num_rounds consecutive evolution rounds, each
// benefiting from tools registered in the previous round via warm-start
// reuse.
func (m *Manager) EvolveMultiRound(ctx context.Context, tasks []Task, numRounds int, now time.Time) []*Report {
	var reports []*Report
	for round := 1; round <= numRounds; round++ {
		reports = append(reports, m.EvolveBatch(ctx, tasks, round, now))
	}
	return reports
}
