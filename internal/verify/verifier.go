// Package verify implements the multi-stage verification pipeline:
// AST_SECURITY -> SELF_TEST -> CONTRACT_VALID -> INTEGRATION, run in order
// with short-circuit on first failure. Adapted from
// original_source/src/core/verifier.py's MultiStageVerifier. This package
// is pure: it has no registry, gatekeeper, or logging side effects (those
// belong to the caller, per spec §4.5's design note).
package verify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"finevo/internal/constraints"
	"finevo/internal/contracts"
	"finevo/internal/dataprovider"
	"finevo/internal/model"
	"finevo/internal/sandbox"
)

// Outcome is the result of a single stage.
type Outcome string

const (
	OutcomePass Outcome = "pass"
	OutcomeFail Outcome = "fail"
	OutcomeSkip Outcome = "skip"
)

// StageResult is the outcome of one verification stage.
type StageResult struct {
	Stage   model.VerificationStage
	Outcome Outcome
	Message string
	Details map[string]any
}

// Report is the complete verification record for one tool.
type Report struct {
	ToolName   string
	Category   string
	Stages     []StageResult
	FinalStage model.VerificationStage
	Passed     bool
}

func (r *Report) addStage(s StageResult) {
	r.Stages = append(r.Stages, s)
	if s.Outcome == OutcomeFail {
		r.Passed = false
	} else if s.Outcome == OutcomePass && s.Stage > r.FinalStage {
		r.FinalStage = s.Stage
	}
}

// Verifier runs the four-stage pipeline against candidate tool code.
type Verifier struct {
	constraints *constraints.Constraints
	executor    *sandbox.Executor
	data        dataprovider.Provider
}

// New creates a Verifier. A nil c falls back to constraints.Default(),
// matching sandbox.New's same nil-safety for tests and simple callers.
func New(c *constraints.Constraints, executor *sandbox.Executor, data dataprovider.Provider) *Verifier {
	if c == nil {
		c = constraints.Default()
	}
	return &Verifier{constraints: c, executor: executor, data: data}
}

// VerifyAllStages runs every applicable stage and returns whether all of
// them passed along with the full report. contract may be the zero value
// (no contract available yet); realData may be nil (no integration data).
func (v *Verifier) VerifyAllStages(ctx context.Context, code, category, toolName string, contract *model.Contract, realData map[string]any) (bool, *Report) {
	report := &Report{ToolName: toolName, Category: category, Passed: true}

	stage1 := v.verifyASTSecurity(code, category)
	report.addStage(stage1)
	if stage1.Outcome == OutcomeFail {
		return false, report
	}

	stage2 := v.verifySelfTest(ctx, code, category)
	report.addStage(stage2)
	if stage2.Outcome == OutcomeFail {
		return false, report
	}

	if contract != nil {
		stage3 := v.verifyContract(ctx, code, category, *contract)
		report.addStage(stage3)
		if stage3.Outcome == OutcomeFail {
			return false, report
		}
	} else {
		report.addStage(StageResult{Stage: model.StageContractValid, Outcome: OutcomeSkip, Message: "no contract provided"})
	}

	if category == "fetch" && realData != nil {
		stage4 := v.verifyIntegration(ctx, code, category, realData)
		report.addStage(stage4)
		if stage4.Outcome == OutcomeFail {
			return false, report
		}
	} else {
		report.addStage(StageResult{Stage: model.StageIntegration, Outcome: OutcomeSkip, Message: "integration test not applicable"})
	}

	return true, report
}

func (v *Verifier) verifyASTSecurity(code, category string) StageResult {
	check := sandbox.StaticCheck(code, category, v.constraints)
	if check.Passed {
		return StageResult{
			Stage: model.StageASTSecurity, Outcome: OutcomePass,
			Message: "AST security check passed",
			Details: map[string]any{"imports": check.Imports},
		}
	}
	return StageResult{
		Stage: model.StageASTSecurity, Outcome: OutcomeFail,
		Message: "AST security check failed: " + strings.Join(check.Violations, "; "),
		Details: map[string]any{"violations": check.Violations},
	}
}

func (v *Verifier) verifySelfTest(ctx context.Context, code, category string) StageResult {
	if err := v.executor.VerifyLoad(ctx, code); err != nil {
		msg := err.Error()
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return StageResult{
			Stage: model.StageSelfTest, Outcome: OutcomeFail,
			Message: "self-test failed: " + msg,
		}
	}
	return StageResult{
		Stage: model.StageSelfTest, Outcome: OutcomePass,
		Message: "self-test completed (entry point loads)",
	}
}

func (v *Verifier) verifyContract(ctx context.Context, code, category string, contract model.Contract) StageResult {
	testArgs := generateTestArgs(contract)
	res, err := v.executor.Run(ctx, code, category, testArgs)
	if err != nil {
		msg := err.Error()
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return StageResult{
			Stage: model.StageContractValid, Outcome: OutcomeFail,
			Message: "contract test execution failed: " + msg,
			Details: map[string]any{"stderr": truncate(res.Stderr, 500)},
		}
	}
	if err := contracts.Validate(contract, res.Output); err != nil {
		return StageResult{
			Stage: model.StageContractValid, Outcome: OutcomeFail,
			Message: "contract validation failed: " + err.Error(),
			Details: map[string]any{"output": res.Output},
		}
	}
	return StageResult{
		Stage: model.StageContractValid, Outcome: OutcomePass,
		Message: "contract validation passed",
		Details: map[string]any{"contract": contract.ContractID},
	}
}

var networkErrorMarkers = []string{"timeout", "connection", "network", "rate limit", "503", "504", "429"}

func (v *Verifier) verifyIntegration(ctx context.Context, code, category string, realData map[string]any) StageResult {
	const maxRetries = 2
	var lastErr string

	for attempt := 0; attempt <= maxRetries; attempt++ {
		res, err := v.executor.Run(ctx, code, category, realData)
		if err != nil {
			lastErr = err.Error()
			lower := strings.ToLower(res.Stderr + " " + lastErr)
			isNetworkErr := false
			for _, marker := range networkErrorMarkers {
				if strings.Contains(lower, marker) {
					isNetworkErr = true
					break
				}
			}
			if isNetworkErr && attempt < maxRetries {
				time.Sleep(time.Duration(attempt+1) * time.Second)
				continue
			}
			return StageResult{
				Stage: model.StageIntegration, Outcome: OutcomeFail,
				Message: "integration test failed: " + truncate(lastErr, 200),
				Details: map[string]any{"attempts": attempt + 1, "stderr": truncate(res.Stderr, 500)},
			}
		}

		if res.Output == nil {
			return StageResult{
				Stage: model.StageIntegration, Outcome: OutcomeFail,
				Message: "integration test returned empty/nil output",
				Details: map[string]any{"attempts": attempt + 1},
			}
		}
		return StageResult{
			Stage: model.StageIntegration, Outcome: OutcomePass,
			Message: "integration test passed",
			Details: map[string]any{"attempts": attempt + 1},
		}
	}
	return StageResult{
		Stage: model.StageIntegration, Outcome: OutcomeFail,
		Message: fmt.Sprintf("integration test failed after %d attempts", maxRetries+1),
		Details: map[string]any{"last_error": lastErr},
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var samplePrices = []float64{100.0, 101.5, 99.8, 102.3, 101.0, 103.5, 102.8, 104.0, 103.2, 105.0,
	104.5, 106.0, 105.2, 107.0, 106.5, 108.0, 107.2, 109.0, 108.5, 110.0}
var sampleHigh = []float64{101.0, 102.5, 100.8, 103.3, 102.0, 104.5, 103.8, 105.0, 104.2, 106.0,
	105.5, 107.0, 106.2, 108.0, 107.5, 109.0, 108.2, 110.0, 109.5, 111.0}
var sampleLow = []float64{99.0, 100.5, 98.8, 101.3, 100.0, 102.5, 101.8, 103.0, 102.2, 104.0,
	103.5, 105.0, 104.2, 106.0, 105.5, 107.0, 106.2, 108.0, 107.5, 109.0}
var sampleVolumes = []float64{1000000, 1100000, 950000, 1200000, 1050000, 1150000, 1000000, 1250000,
	1100000, 1300000, 1050000, 1200000, 980000, 1150000, 1020000, 1180000,
	1050000, 1220000, 1000000, 1280000}

// generateTestArgs synthesizes representative arguments from a contract's
// input types, mirroring verifier.py's _generate_test_args sample table.
func generateTestArgs(contract model.Contract) map[string]any {
	args := map[string]any{}
	for name, typ := range contract.InputTypes {
		switch name {
		case "prices", "close":
			args[name] = samplePrices
		case "high":
			args[name] = sampleHigh
		case "low":
			args[name] = sampleLow
		case "volume", "volumes":
			args[name] = sampleVolumes
		case "prices1":
			args[name] = samplePrices
		case "prices2":
			args[name] = sampleHigh
		case "symbol":
			args[name] = "AAPL"
		case "start", "start_date":
			args[name] = "2023-01-01"
		case "end", "end_date":
			args[name] = "2023-12-31"
		case "period":
			args[name] = 14
		case "window":
			args[name] = 20
		case "fast_period", "short_period":
			args[name] = 12
		case "slow_period", "long_period":
			args[name] = 26
		case "signal_period":
			args[name] = 9
		case "k_period":
			args[name] = 9
		case "d_period":
			args[name] = 3
		case "num_std":
			args[name] = 2.0
		case "weights", "weight":
			args[name] = []float64{0.33, 0.33, 0.34}
		case "symbols":
			args[name] = []string{"AAPL", "MSFT", "GOOGL"}
		case "signal_threshold":
			args[name] = 70.0
		default:
			switch typ {
			case "int":
				args[name] = 14
			case "float64":
				args[name] = 2.0
			case "string":
				args[name] = "default"
			case "[]float64":
				args[name] = samplePrices
			case "bool":
				args[name] = true
			}
		}
	}
	return args
}
