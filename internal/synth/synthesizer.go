// Package synth implements the generate -> verify -> register evolution
// loop: call the LLM adapter for candidate code, submit it to the
// verification gateway (which verifies and registers atomically), and
// report back an execution trace either way. Adapted from
// original_source's evolution/synthesizer.py. All registration goes
// through gateway.Gateway.Submit exclusively; direct registry writes from
// this package are prohibited, matching the original's architecture note.
package synth

import (
	"context"
	"fmt"
	"strings"

	"finevo/internal/contracts"
	"finevo/internal/gateway"
	"finevo/internal/llm"
	"finevo/internal/model"
	"finevo/internal/refine"
	"finevo/internal/registry"
	"finevo/internal/verify"
)

// Synthesizer generates and registers new tools from task descriptions.
// It holds a registry reference only to enrich schema metadata
// (indicator/data_type) after the gateway has already verified and
// registered a tool -- it never calls registry.Register directly.
type Synthesizer struct {
	llm      llm.Adapter
	gateway  *gateway.Gateway
	registry *registry.Registry
}

// New creates a Synthesizer.
func New(adapter llm.Adapter, gw *gateway.Gateway, reg *registry.Registry) *Synthesizer {
	return &Synthesizer{llm: adapter, gateway: gw, registry: reg}
}

func inferCategory(task string) string {
	lower := strings.ToLower(task)
	fetchKw := []string{"fetch", "get", "price", "quote", "historical"}
	calcKw := []string{"calculate", "calc", "rsi", "macd", "bollinger", "volatility", "correlation"}
	compositeKw := []string{"if ", "return true", "return false", "signal", "divergence", "portfolio", "after"}

	hasFetch := false
	for _, kw := range fetchKw {
		if strings.Contains(lower, kw) {
			hasFetch = true
			break
		}
	}
	if hasFetch {
		for _, kw := range calcKw {
			if strings.Contains(lower, kw) {
				return "calculation"
			}
		}
		return "fetch"
	}
	for _, kw := range compositeKw {
		if strings.Contains(lower, kw) {
			return "composite"
		}
	}
	return "calculation"
}

func taskID(task string) string {
	if len(task) > 50 {
		return task[:50]
	}
	return task
}

// deriveToolName derives a stable registry name from the task text when the
// caller didn't supply one. Every synthesized tool's source names its sole
// entry point Run (the sandbox calling convention), so the source can't
// supply a distinct name the way the original's hand-named Python
// functions (calc_rsi, get_stock_hist) could; this slug stands in for
// that name so GetByName/toolExists still key on something meaningful
// per task rather than every evolved tool colliding on "Run".
func deriveToolName(task, category string) string {
	var b strings.Builder
	words := 0
	for _, r := range strings.ToLower(task) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			if b.Len() > 0 && b.String()[b.Len()-1] != '_' {
				b.WriteRune('_')
				words++
			}
		}
		if words >= 6 {
			break
		}
	}
	slug := strings.Trim(b.String(), "_")
	if slug == "" {
		slug = "tool"
	}
	if len(slug) > 48 {
		slug = slug[:48]
	}
	return category + "_" + slug
}

func failTrace(id, task, stderr string) model.ExecutionTrace {
	return model.ExecutionTrace{
		TraceID: id, TaskID: taskID(task),
		InputArgs: map[string]any{"task": task},
		ExitCode:  1, StdErr: stderr,
	}
}

// Synthesize generates one candidate tool and submits it for verification
// and registration. Returns (nil, trace) on failure at any stage.
func (s *Synthesizer) Synthesize(ctx context.Context, task, toolName, category string, contract *model.Contract) (*model.ToolArtifact, model.ExecutionTrace) {
	if category == "" {
		category = inferCategory(task)
	}
	if contract == nil {
		if c, ok := contracts.InferFromQuery(task, category); ok {
			contract = &c
		}
	}

	prompt := task
	if toolName != "" {
		prompt += "\n\nPlease name the function: " + toolName
	}
	result, err := s.llm.GenerateToolCode(ctx, llm.GenerationRequest{Task: prompt, Category: category, Contract: contract})
	if err != nil || result.CodePayload == "" {
		return nil, failTrace("gen_failed", task, "LLM failed to generate valid code")
	}

	name := toolName
	if name == "" {
		name = deriveToolName(task, category)
	}
	success, tool, report, err := s.gateway.Submit(ctx, gateway.SubmitRequest{
		Code: result.CodePayload, Category: category, Contract: contract,
		Task: task, TaskID: taskID(task), Force: false, Name: name,
	})
	trace := traceFromReport(task, report)
	if err != nil {
		trace.StdErr = err.Error()
		return nil, trace
	}
	if !success {
		return nil, trace
	}

	args := extractArgsSchema(result.CodePayload)
	indicator := extractIndicator(task, result.CodePayload)
	dataType := extractDataType(task, args)
	contractID := ""
	if contract != nil {
		contractID = contract.ContractID
	}
	if s.registry != nil {
		_ = s.registry.UpdateSchema(tool.ID, tool.ArgsSchema, contractID, indicator, dataType)
	}
	return tool, trace
}

func traceFromReport(task string, report *verify.Report) model.ExecutionTrace {
	if report == nil {
		return failTrace("verify_unknown", task, "no verification report produced")
	}
	var errs []string
	for _, stage := range report.Stages {
		if stage.Outcome == verify.OutcomeFail {
			errs = append(errs, fmt.Sprintf("%s: %s", stage.Stage, stage.Message))
		}
	}
	exitCode := 1
	if report.Passed {
		exitCode = 0
	}
	return model.ExecutionTrace{
		TraceID:    "verify_" + report.ToolName,
		TaskID:     taskID(task),
		InputArgs:  map[string]any{"task": task, "category": report.Category},
		OutputRepr: fmt.Sprintf("final_stage=%s", report.FinalStage),
		ExitCode:   exitCode,
		StdErr:     strings.Join(errs, "; "),
	}
}

// SynthesizeWithRetry retries plain synthesis (no refinement) up to
// maxAttempts times, feeding the previous failure's stderr back as error
// context on the LLM call only after the first failed direct synthesis.
func (s *Synthesizer) SynthesizeWithRetry(ctx context.Context, task string, maxAttempts int) (*model.ToolArtifact, []model.ExecutionTrace) {
	var traces []model.ExecutionTrace
	category := inferCategory(task)
	var contract *model.Contract
	if c, ok := contracts.InferFromQuery(task, category); ok {
		contract = &c
	}

	var errorContext string
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if errorContext == "" {
			tool, trace := s.Synthesize(ctx, task, "", category, contract)
			traces = append(traces, trace)
			if tool != nil {
				return tool, traces
			}
			errorContext = trace.StdErr
			continue
		}

		result, err := s.llm.GenerateToolCode(ctx, llm.GenerationRequest{Task: task, Category: category, Contract: contract, ErrorContext: errorContext})
		if err != nil || result.CodePayload == "" {
			continue
		}
		success, tool, report, err := s.gateway.Submit(ctx, gateway.SubmitRequest{
			Code: result.CodePayload, Category: category, Contract: contract,
			Task: task, TaskID: taskID(task), Force: false, Name: deriveToolName(task, category),
		})
		trace := traceFromReport(task, report)
		if err != nil {
			trace.StdErr = err.Error()
		}
		traces = append(traces, trace)
		if success && tool != nil {
			return tool, traces
		}
		errorContext = trace.StdErr
	}
	return nil, traces
}

// SynthesizeWithRefine tries plain synthesis once, then falls back to the
// refiner's analyze-patch-verify loop on failure. Adapted from
// synthesizer.py's synthesize_with_refine.
func (s *Synthesizer) SynthesizeWithRefine(ctx context.Context, task, toolName, category string, contract *model.Contract, refiner *refine.Refiner, maxRefineAttempts int) (*model.ToolArtifact, model.ExecutionTrace) {
	tool, trace := s.Synthesize(ctx, task, toolName, category, contract)
	if tool != nil || refiner == nil {
		return tool, trace
	}

	if category == "" {
		category = inferCategory(task)
	}
	result, err := s.llm.GenerateToolCode(ctx, llm.GenerationRequest{Task: task, Category: category, Contract: contract})
	if err != nil || result.CodePayload == "" {
		return nil, trace
	}

	refined, _ := refiner.Refine(ctx, result.CodePayload, task, trace, category, contract, nil, maxRefineAttempts)
	if refined == nil {
		return nil, trace
	}

	if s.registry != nil {
		args := extractArgsSchema(refined.CodeContent)
		indicator := extractIndicator(task, refined.CodeContent)
		dataType := extractDataType(task, args)
		_ = s.registry.UpdateSchema(refined.ID, refined.ArgsSchema, refined.ContractID, indicator, dataType)
	}

	successTrace := model.ExecutionTrace{
		TraceID: "refined_" + trace.TraceID, TaskID: taskID(task),
		InputArgs: map[string]any{"task": task}, ExitCode: 0, StdOut: "Refined successfully",
		ExecutionTimeMs: trace.ExecutionTimeMs,
	}
	return refined, successTrace
}
