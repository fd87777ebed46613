// Package taskexec bridges calculation-only tools (which expect data as
// arguments) with fetch-category tasks (which need data retrieved first).
// It decides, per task, whether a synthesized tool's result can be served
// directly by the data provider (a "simple fetch") or whether the
// provider's output must be assembled into calc-tool arguments and the
// tool actually run in the sandbox. Adapted from original_source's
// core/task_executor.py's TaskExecutor.
package taskexec

import (
	"context"
	"fmt"
	"strings"
	"time"

	"finevo/internal/dataprovider"
	"finevo/internal/model"
	"finevo/internal/sandbox"
)

// simpleFetchPatterns are query substrings that indicate the task wants
// raw historical/quote data back verbatim, with no further calculation.
var simpleFetchPatterns = []string{
	"historical data", "stock price", "get price", "fetch price",
	"quote for", "latest quote", "current price", "recent dividends",
	"financial statements", "financial info",
	"历史数据", "股价", "报价", "分红",
}

// TaskExecutor runs one task end to end: extract parameters from the
// query, fetch whatever market data the tool needs, and either hand the
// provider's result back directly (simple fetch) or invoke the tool in
// the sandbox with the fetched data as an argument.
type TaskExecutor struct {
	data     dataprovider.Provider
	executor *sandbox.Executor
}

// New creates a TaskExecutor.
func New(data dataprovider.Provider, executor *sandbox.Executor) *TaskExecutor {
	return &TaskExecutor{data: data, executor: executor}
}

// Task is one unit of work to execute against a registered tool.
type Task struct {
	TaskID   string
	Query    string
	Category string
}

// isSimpleFetch reports whether the query matches a known
// data-retrieval-only pattern, letting execution skip the sandbox
// entirely and return the provider's result directly.
func isSimpleFetch(query string) bool {
	lower := strings.ToLower(query)
	for _, p := range simpleFetchPatterns {
		if strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// handleSimpleFetch serves a fetch-only task directly from the data
// provider, bypassing the sandbox entirely.
func (e *TaskExecutor) handleSimpleFetch(ctx context.Context, task Task) (model.ExecutionTrace, error) {
	symbol := extractSymbol(task.Query)
	start, end := extractDateRange(task.Query)

	lower := strings.ToLower(task.Query)
	var (
		output any
		err    error
	)
	switch {
	case strings.Contains(lower, "quote") || strings.Contains(lower, "current price") || strings.Contains(lower, "报价"):
		output, err = e.data.GetQuote(ctx, symbol)
	case strings.Contains(lower, "dividend") || strings.Contains(lower, "分红"):
		var divs []dataprovider.Dividend
		divs, err = e.data.GetRecentDividends(ctx, symbol, 10)
		output = divs
	case strings.Contains(lower, "financial"):
		var periods []dataprovider.FinancialPeriod
		periods, err = e.data.GetFinancialInfo(ctx, symbol)
		output = periods
	default:
		var bars []dataprovider.OHLCVBar
		bars, err = e.data.GetHistorical(ctx, symbol, start, end, "1d")
		output = bars
	}

	trace := model.ExecutionTrace{
		TraceID: "fetch_" + task.TaskID,
		TaskID:  task.TaskID,
		InputArgs: map[string]any{
			"symbol": symbol, "start": start, "end": end,
		},
	}
	if err != nil {
		trace.ExitCode = 1
		trace.StdErr = err.Error()
		return trace, err
	}
	trace.ExitCode = 0
	trace.OutputRepr = fmt.Sprintf("%v", output)
	return trace, nil
}

// prepareCalcArgs fetches the data a calc tool needs and assembles it,
// along with any indicator parameters parsed from the query, into the
// tool's argument map. Adapted from task_executor.py's prepare_calc_args.
func (e *TaskExecutor) prepareCalcArgs(ctx context.Context, task Task) (map[string]any, error) {
	params := extractTaskParams(task.Query)

	if isMultiAssetTask(task.Query) {
		symbols := extractMultipleSymbols(task.Query)
		start, end := extractDateRange(task.Query)
		data, err := e.data.GetMultiHistorical(ctx, symbols, start, end, "1d")
		if err != nil {
			return nil, fmt.Errorf("taskexec: multi-asset fetch failed: %w", err)
		}
		series := make(map[string]any, len(data))
		for symbol, bars := range data {
			series[symbol] = barsToArgs(bars)
		}
		args := map[string]any{"symbols": symbols, "data": series}
		for k, v := range params {
			args[k] = v
		}
		return args, nil
	}

	symbol := extractSymbol(task.Query)
	start, end := extractDateRange(task.Query)
	bars, err := e.data.GetHistorical(ctx, symbol, start, end, "1d")
	if err != nil {
		return nil, fmt.Errorf("taskexec: historical fetch failed: %w", err)
	}

	args := map[string]any{"symbol": symbol, "data": barsToArgs(bars)}
	for k, v := range params {
		args[k] = v
	}
	return args, nil
}

// barsToArgs flattens OHLCVBar structs into the JSON-shaped
// []map[string]interface{} form that a sandboxed tool (which only sees
// stdlib types, never finevo's own structs) can consume.
func barsToArgs(bars []dataprovider.OHLCVBar) []map[string]any {
	out := make([]map[string]any, len(bars))
	for i, b := range bars {
		out[i] = map[string]any{
			"date": b.Date, "open": b.Open, "high": b.High, "low": b.Low, "close": b.Close, "volume": b.Volume,
		}
	}
	return out
}

// ExecuteTask runs one task against a registered tool, taking the
// fetch-shortcut path when the query needs nothing but raw data and
// otherwise preparing calc arguments and invoking the tool in the
// sandbox. Adapted from task_executor.py's execute_task.
func (e *TaskExecutor) ExecuteTask(ctx context.Context, task Task, tool *model.ToolArtifact) (model.ExecutionTrace, error) {
	if task.Category == "fetch" && isSimpleFetch(task.Query) {
		return e.handleSimpleFetch(ctx, task)
	}

	if tool == nil {
		return model.ExecutionTrace{}, fmt.Errorf("taskexec: no tool available for task %q", task.TaskID)
	}

	args, err := e.prepareCalcArgs(ctx, task)
	if err != nil {
		return model.ExecutionTrace{
			TraceID: "calc_" + task.TaskID, TaskID: task.TaskID, ToolID: tool.ID,
			ExitCode: 1, StdErr: err.Error(),
		}, err
	}

	start := time.Now()
	result, runErr := e.executor.Run(ctx, tool.CodeContent, tool.Category, args)
	elapsed := time.Since(start).Milliseconds()

	trace := model.ExecutionTrace{
		TraceID: "calc_" + task.TaskID, TaskID: task.TaskID, ToolID: tool.ID,
		InputArgs: args, ExecutionTimeMs: elapsed,
	}
	if runErr != nil {
		trace.ExitCode = 1
		if result != nil {
			trace.ExitCode = result.ExitCode
			trace.StdErr = result.Stderr
		} else {
			trace.StdErr = runErr.Error()
		}
		return trace, runErr
	}

	trace.ExitCode = 0
	trace.StdOut = result.Stdout
	trace.OutputRepr = fmt.Sprintf("%v", result.Output)
	return trace, nil
}
