// Package refine implements the error-analysis -> patch-generation ->
// re-verification repair loop: classify the failure from an execution
// trace, ask the LLM for a root-cause explanation and then a patched
// version of the code, and submit the patch back through the
// verification gateway. Adapted from original_source's
// evolution/refiner.py.
package refine

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"finevo/internal/gateway"
	"finevo/internal/llm"
	"finevo/internal/model"
	"finevo/internal/registry"
	"finevo/internal/verify"
)

// slugName derives a fallback registry name from task text when there's no
// prior registered tool to inherit a name from (a patch's first-ever
// submission). Every synthesized tool's source names its sole entry point
// Run (the sandbox calling convention), so the source itself never
// supplies a usable name.
func slugName(task, category string) string {
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
		slug = "patched"
	}
	if len(slug) > 48 {
		slug = slug[:48]
	}
	return category + "_" + slug
}

// errorPattern pairs a regex used to classify a stderr string with the
// repair strategy hint fed back to the LLM. Adapted from refiner.py's
// ERROR_PATTERNS (Go's runtime panics stand in for Python's exception
// hierarchy: index-out-of-range, nil map writes, type assertion panics).
type errorPattern struct {
	name     string
	re       *regexp.Regexp
	strategy string
}

var errorPatterns = []errorPattern{
	{"TypeConversion", regexp.MustCompile(`(?i)interface conversion|cannot convert`), "Check argument types and add explicit type assertions with ok checks"},
	{"MapKeyMissing", regexp.MustCompile(`(?i)key not found|missing key '?(\w+)'?`), "Check map keys and use comma-ok lookups with defaults"},
	{"IndexOutOfRange", regexp.MustCompile(`(?i)index out of range`), "Add length checks before indexing"},
	{"NilDereference", regexp.MustCompile(`(?i)nil pointer dereference|invalid memory address`), "Add nil checks before dereferencing"},
	{"DivisionByZero", regexp.MustCompile(`(?i)division by zero|integer divide by zero`), "Add zero-division guards"},
	{"PanicGeneric", regexp.MustCompile(`(?i)panic:`), "Analyze the panic message and add the missing guard"},
	{"AssertionFailure", regexp.MustCompile(`(?i)assertion failed|expected .* got`), "Fix the calculation logic to match expected output. Do NOT modify test assertions."},
	{"CompileError", regexp.MustCompile(`(?i)undefined:|syntax error|expected|cannot use`), "Fix the compile error; check identifier names and types"},
}

func classifyError(stderr string) (errorType, strategy string) {
	for _, p := range errorPatterns {
		if p.re.MatchString(stderr) {
			return p.name, p.strategy
		}
	}
	return "UnknownError", "Analyze the error message and fix accordingly"
}

// unfixableMarkers are stderr substrings for which no patch can help:
// sandbox-rejected code, or a transport-level failure rather than a bug in
// the candidate itself. Matched case-insensitively.
var unfixableMarkers = []string{
	"securityexception", "security exception",
	"unallowed import", "unallowed call", "unallowed attribute",
	"timeout", "timed out",
	"connection error", "connection refused",
	"llm api error",
}

// isUnfixable reports whether stderr names a failure class no patch can
// repair, per the fail-fast check that must run before any LLM call.
func isUnfixable(stderr string) bool {
	lower := strings.ToLower(stderr)
	for _, m := range unfixableMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

const maxAnalysisTextLen = 2000

func truncateMiddle(s string, max int) string {
	if len(s) <= max {
		return s
	}
	half := max / 2
	return s[:half] + "\n...[truncated]...\n" + s[len(s)-half:]
}

// PatchAttempt is one history entry fed back into subsequent patch
// prompts, per SPEC_FULL.md's previous_patches resolution: approach,
// failure reason, and a 400-byte stderr excerpt.
type PatchAttempt struct {
	Approach      string
	FailureReason string
	StderrExcerpt string
}

const stderrExcerptLen = 400

func newPatchAttempt(approach, failureReason, stderr string) PatchAttempt {
	excerpt := stderr
	if len(excerpt) > stderrExcerptLen {
		excerpt = excerpt[:stderrExcerptLen]
	}
	return PatchAttempt{Approach: approach, FailureReason: failureReason, StderrExcerpt: excerpt}
}

// Refiner repairs tool code that failed verification.
type Refiner struct {
	llm      llm.Adapter
	gateway  *gateway.Gateway
	registry *registry.Registry
}

// New creates a Refiner.
func New(adapter llm.Adapter, gw *gateway.Gateway, reg *registry.Registry) *Refiner {
	return &Refiner{llm: adapter, gateway: gw, registry: reg}
}

// AnalyzeError classifies a stderr string and asks the LLM for a root
// cause explanation, recording the result as an ErrorReport.
func (r *Refiner) AnalyzeError(ctx context.Context, trace model.ExecutionTrace, code string) (model.ErrorReport, error) {
	errorType, strategy := classifyError(trace.StdErr)

	prompt := fmt.Sprintf(`Analyze the root cause of the following Go code execution error.

## Code
`+"```go\n%s\n```"+`

## Error
`+"```\n%s\n```"+`

## Error type
%s (%s)

State concisely:
1. The exact cause of the failure.
2. The recommended fix.

Output only the analysis, no code.`, code, trace.StdErr, errorType, strategy)

	result, err := r.llm.GenerateToolCode(ctx, llm.GenerationRequest{Task: prompt})
	rootCause := fmt.Sprintf("%s: %s", errorType, strategy)
	if err == nil {
		text := result.TextResponse
		if text == "" {
			text = result.ThoughtTrace
		}
		if text != "" {
			rootCause = truncateMiddle(text, maxAnalysisTextLen)
		}
	}

	report := model.ErrorReport{TraceID: trace.TraceID, ErrorType: errorType, RootCause: rootCause}
	if r.registry != nil {
		id, rerr := r.registry.RecordErrorReport(report)
		if rerr != nil {
			return report, rerr
		}
		report.ID = id
	}
	return report, nil
}

// GeneratePatch asks the LLM for a corrected version of the code given an
// error report and the original task, optionally informed by prior
// failed patch attempts.
func (r *Refiner) GeneratePatch(ctx context.Context, report model.ErrorReport, originalCode, task string, previousPatches []PatchAttempt) (string, error) {
	var history strings.Builder
	for i, p := range previousPatches {
		history.WriteString(fmt.Sprintf("\nAttempt %d approach: %s\nFailure: %s\nStderr: %s\n", i+1, p.Approach, p.FailureReason, p.StderrExcerpt))
	}

	prompt := fmt.Sprintf(`Fix the error in the following Go code.

## Original task
%s

## Original code
`+"```go\n%s\n```"+`

## Error analysis
Type: %s
Root cause: %s
%s

## Requirements
1. Fix the error while preserving the original behavior.
2. Add necessary bounds/nil checks.
3. Keep the same function signature: func Run(args map[string]interface{}) (interface{}, error).

Output only the fixed code, wrapped in `+"```go ```"+`.`, task, originalCode, report.ErrorType, report.RootCause, history.String())

	result, err := r.llm.GenerateToolCode(ctx, llm.GenerationRequest{Task: prompt})
	if err != nil {
		return "", err
	}
	return result.CodePayload, nil
}

// Refine runs the full analyze -> patch -> verify loop up to maxAttempts
// times, submitting a successful patch through the gateway. baseTool may
// be nil if there's no prior registered version to link the patch to.
func (r *Refiner) Refine(ctx context.Context, code, task string, trace model.ExecutionTrace, category string, contract *model.Contract, baseTool *model.ToolArtifact, maxAttempts int) (*model.ToolArtifact, []model.ErrorReport) {
	var reports []model.ErrorReport
	history := r.seedHistory(baseTool)
	currentCode := code
	currentTrace := trace

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if isUnfixable(currentTrace.StdErr) {
			return nil, reports
		}

		if attempt > 0 {
			time.Sleep(time.Duration(1<<uint(attempt)) * time.Second)
		}

		report, err := r.AnalyzeError(ctx, currentTrace, currentCode)
		if err != nil {
			return nil, reports
		}
		reports = append(reports, report)

		patchedCode, err := r.GeneratePatch(ctx, report, currentCode, task, history)
		if err != nil || patchedCode == "" {
			history = append(history, newPatchAttempt(fmt.Sprintf("attempt_%d", attempt+1), "patch generation failed", ""))
			continue
		}

		name := slugName(task, category)
		if baseTool != nil {
			name = baseTool.Name
		}
		success, tool, verifyReport, err := r.gateway.Submit(ctx, gateway.SubmitRequest{
			Code: patchedCode, Category: category, Contract: contract,
			Task: task, TaskID: trace.TaskID, Force: false, Name: name,
		})
		if err != nil {
			history = append(history, newPatchAttempt(fmt.Sprintf("attempt_%d", attempt+1), err.Error(), ""))
			continue
		}

		if success {
			if baseTool != nil && r.registry != nil {
				_, _ = r.registry.RecordToolPatch(model.ToolPatch{
					ErrorReportID:   report.ID,
					BaseToolID:      baseTool.ID,
					PatchDiff:       fmt.Sprintf("Refined from v%s", baseTool.SemanticVersion),
					Rationale:       report.RootCause,
					ResultingToolID: tool.ID,
				})
			}
			return tool, reports
		}

		failureReason, stderr := summarizeFailure(verifyReport)
		history = append(history, newPatchAttempt(fmt.Sprintf("attempt_%d", attempt+1), failureReason, stderr))
		currentCode = patchedCode
		currentTrace = model.ExecutionTrace{TraceID: trace.TraceID, TaskID: trace.TaskID, StdErr: stderr}
	}

	return nil, reports
}

// seedHistory loads prior patch attempts against baseTool from the
// registry so a new refinement round doesn't repeat a previously failed
// approach, matching SPEC_FULL.md's previous_patches resolution.
func (r *Refiner) seedHistory(baseTool *model.ToolArtifact) []PatchAttempt {
	if baseTool == nil || r.registry == nil {
		return nil
	}
	patches, err := r.registry.PreviousPatchesForTool(baseTool.ID)
	if err != nil {
		return nil
	}
	history := make([]PatchAttempt, len(patches))
	for i, p := range patches {
		history[i] = newPatchAttempt(fmt.Sprintf("patch_%d", p.ID), p.Rationale, "")
	}
	return history
}

func summarizeFailure(report *verify.Report) (failureReason, stderr string) {
	if report == nil {
		return "verification failed", ""
	}
	var msgs []string
	for _, stage := range report.Stages {
		if stage.Outcome == verify.OutcomeFail {
			msgs = append(msgs, fmt.Sprintf("%s: %s", stage.Stage, stage.Message))
			if s, ok := stage.Details["stderr"].(string); ok && s != "" {
				stderr = s
			}
		}
	}
	return strings.Join(msgs, "; "), stderr
}
