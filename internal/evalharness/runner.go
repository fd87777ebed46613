package evalharness

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"finevo/internal/gateway"
	"finevo/internal/model"
	"finevo/internal/refine"
	"finevo/internal/registry"
	"finevo/internal/sandbox"
	"finevo/internal/synth"
	"finevo/internal/taskexec"
)

// AgentConfig controls which capabilities an evaluation run exercises.
// Adapted from run_eval.py's AGENT_CONFIGS table.
type AgentConfig struct {
	AllowSynthesis  bool
	PersistArtifact bool
	UseRefiner      bool
}

// AgentConfigs holds the three named agent profiles spec.md's evaluation
// harness flags name: evolving, static, memory_only.
var AgentConfigs = map[string]AgentConfig{
	"evolving":    {AllowSynthesis: true, PersistArtifact: true, UseRefiner: true},
	"static":      {AllowSynthesis: false, PersistArtifact: false, UseRefiner: false},
	"memory_only": {AllowSynthesis: true, PersistArtifact: false, UseRefiner: false},
}

// toolNamePatterns maps query substrings to an inferred registry tool
// name, checked in order. Adapted from run_eval.py's _infer_tool_name.
var toolNamePatterns = []struct {
	substr string
	name   string
}{
	{"布林", "calc_bollinger"}, {"bollinger", "calc_bollinger"},
	{"macd", "calc_macd"},
	{"rsi", "calc_rsi"},
	{"kdj", "calc_kdj"},
	{"回撤", "calc_max_drawdown"},
	{"波动率", "calc_volatility"},
	{"相关系数", "calc_correlation"},
	{"量价背离", "calc_volume_price_divergence"},
	{"等权组合", "calc_equal_weight_portfolio"},
	{"净利润", "get_financial_info"}, {"营收", "get_financial_info"},
	{"roe", "get_financial_info"}, {"net income", "get_financial_info"}, {"revenue", "get_financial_info"},
	{"市盈率", "get_realtime_quote"}, {"p/e", "get_realtime_quote"}, {"quote", "get_realtime_quote"},
	{"指数", "get_index_daily"}, {"index", "get_index_daily"},
	{"etf", "get_etf_hist"}, {"净值", "get_etf_hist"},
	{"历史", "get_stock_hist"}, {"收盘", "get_stock_hist"}, {"hist", "get_stock_hist"}, {"close", "get_stock_hist"},
}

func inferToolName(query string) string {
	lower := strings.ToLower(query)
	hasMA := strings.Contains(lower, "ma") && !strings.Contains(lower, "macd")
	for _, p := range toolNamePatterns {
		if strings.Contains(lower, p.substr) {
			return p.name
		}
	}
	if hasMA {
		return "calc_ma"
	}
	return ""
}

// Result is one task's outcome, matching run_eval.py's per-task result
// dict and its eval_report_<run_id>.csv column set.
type Result struct {
	TaskID          string
	Category        string
	AgentType       string
	Success         bool
	ToolSource      string // "reused", "created", "blocked", "failed"
	ExecutionTimeMs int64
	ErrorType       string
}

// Runner executes benchmark tasks against one agent configuration.
// Adapted from run_eval.py's EvalRunner.
type Runner struct {
	agentType string
	config    AgentConfig

	registry   *registry.Registry
	gateway    *gateway.Gateway
	executor   *sandbox.Executor
	taskExec   *taskexec.TaskExecutor
	synth      *synth.Synthesizer
	refiner    *refine.Refiner

	Results []Result
}

// NewRunner creates a Runner for the named agent type, falling back to
// "evolving" for an unrecognized name (AGENT_CONFIGS.get(..., evolving)).
func NewRunner(agentType string, reg *registry.Registry, gw *gateway.Gateway, exec *sandbox.Executor, te *taskexec.TaskExecutor, sy *synth.Synthesizer, rf *refine.Refiner) *Runner {
	cfg, ok := AgentConfigs[agentType]
	if !ok {
		agentType = "evolving"
		cfg = AgentConfigs[agentType]
	}
	return &Runner{
		agentType: agentType, config: cfg,
		registry: reg, gateway: gw, executor: exec, taskExec: te, synth: sy, refiner: rf,
	}
}

// RunTask runs a single benchmark task: locate or synthesize a tool,
// execute it, and judge the result against the task's expected output.
// Adapted from run_eval.py's EvalRunner.run_task.
func (r *Runner) RunTask(ctx context.Context, task Task) Result {
	start := time.Now()
	result := Result{TaskID: task.TaskID, Category: task.Category, AgentType: r.agentType, ToolSource: "failed"}

	if task.Category == "security" {
		return r.runSecurityTask(ctx, task, start)
	}

	toolName := inferToolName(task.Query)
	var tool *model.ToolArtifact
	if toolName != "" && r.registry != nil {
		if found, err := r.registry.GetByName(toolName); err == nil && len(found) > 0 {
			tool = found[0]
			result.ToolSource = "reused"
		}
	}

	if tool == nil && r.config.AllowSynthesis && r.synth != nil {
		if r.config.UseRefiner && r.refiner != nil {
			tool, _ = r.synth.SynthesizeWithRefine(ctx, task.Query, toolName, task.Category, nil, r.refiner, 3)
		} else {
			tool, _ = r.synth.Synthesize(ctx, task.Query, toolName, task.Category, nil)
		}
		if tool != nil {
			result.ToolSource = "created"
		} else {
			result.ErrorType = "SynthesisFailed"
		}
	}

	if tool == nil {
		result.ExecutionTimeMs = time.Since(start).Milliseconds()
		return result
	}

	trace, err := r.taskExec.ExecuteTask(ctx, taskexec.Task{TaskID: task.TaskID, Query: task.Query, Category: task.Category}, tool)
	if err != nil || trace.ExitCode != 0 {
		if trace.StdErr != "" {
			result.ErrorType = truncate(trace.StdErr, 100)
		} else {
			result.ErrorType = "ExecutionFailed"
		}
		result.ExecutionTimeMs = time.Since(start).Milliseconds()
		return result
	}

	result.Success = judgeOutputRepr(trace.OutputRepr, task.ExpectedOutput)
	result.ExecutionTimeMs = time.Since(start).Milliseconds()
	return result
}

func (r *Runner) runSecurityTask(ctx context.Context, task Task, start time.Time) Result {
	result := Result{TaskID: task.TaskID, Category: task.Category, AgentType: r.agentType, ToolSource: "failed"}
	if r.gateway == nil {
		result.ExecutionTimeMs = time.Since(start).Milliseconds()
		return result
	}
	passed, _ := r.gateway.VerifyOnly(ctx, task.Query, task.Category, nil, task.TaskID)
	if !passed {
		result.Success = true
		result.ToolSource = "blocked"
	} else {
		result.ErrorType = "SecurityBypass"
	}
	result.ExecutionTimeMs = time.Since(start).Milliseconds()
	return result
}

// judgeOutputRepr parses a trace's printf-formatted output representation
// back into a number, JSON structure, or bare string before handing it to
// judgeResult, then falls back to a permissive pass on non-empty output
// that the strict judge rejected -- "the tool produced something", the
// same lenient fallback run_eval.py's run_task applies.
func judgeOutputRepr(repr string, expected ExpectedOutput) bool {
	repr = strings.TrimSpace(repr)
	if repr == "" {
		return false
	}

	var parsed any
	if f, err := strconv.ParseFloat(repr, 64); err == nil {
		parsed = f
	} else if err := json.Unmarshal([]byte(repr), &parsed); err != nil {
		parsed = repr
	}

	if judgeResult(parsed, expected) {
		return true
	}
	if len(repr) <= 5 {
		return false
	}
	switch expected.Type {
	case "numeric":
		return containsDigit(repr)
	case "dict":
		for _, k := range expected.RequiredKeys {
			if !strings.Contains(repr, k) {
				return false
			}
		}
		return len(expected.RequiredKeys) > 0
	case "boolean", "list", "any":
		return true
	default:
		return false
	}
}

func containsDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// RunAll runs every task in tasks sequentially, appending to r.Results.
func (r *Runner) RunAll(ctx context.Context, tasks []Task) []Result {
	for _, t := range tasks {
		r.Results = append(r.Results, r.RunTask(ctx, t))
	}
	return r.Results
}
