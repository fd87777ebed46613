package synth

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"finevo/internal/checkpoint"
	"finevo/internal/dataprovider"
	"finevo/internal/gatekeeper"
	"finevo/internal/gateway"
	"finevo/internal/llm"
	"finevo/internal/obslog"
	"finevo/internal/refine"
	"finevo/internal/registry"
	"finevo/internal/sandbox"
	"finevo/internal/verify"
)

func newTestSynthesizer(t *testing.T, canned map[string]*llm.GenerationResult) (*Synthesizer, *llm.MockAdapter, *registry.Registry) {
	t.Helper()
	dir := t.TempDir()
	reg, err := registry.Open(filepath.Join(dir, "registry.db"), filepath.Join(dir, "artifacts"))
	require.NoError(t, err)
	t.Cleanup(func() { reg.Close() })

	exec := sandbox.New(nil)
	data := dataprovider.NewMockProvider(nil)
	verifier := verify.New(nil, exec, data)
	ckpt, err := checkpoint.NewManager(dir)
	require.NoError(t, err)
	trail, err := obslog.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { trail.Close() })
	gk := gatekeeper.New(gatekeeper.ModeDev, 1, 1, nil, ckpt, trail)
	gw := gateway.New(verifier, reg, gk, trail)

	adapter := llm.NewMockAdapter(canned)
	return New(adapter, gw, reg), adapter, reg
}

func TestInferCategory(t *testing.T) {
	require.Equal(t, "fetch", inferCategory("Fetch the historical price for AAPL"))
	require.Equal(t, "calculation", inferCategory("Calculate the RSI for MSFT"))
	require.Equal(t, "composite", inferCategory("Return true if the RSI signal diverges from volume"))
}

func TestDeriveToolName(t *testing.T) {
	name := deriveToolName("Calculate the RSI for AAPL over 14 days", "calculation")
	require.Equal(t, "calculation_calculate_the_rsi_for_aapl_over", name)
}

func TestSynthesizeRegistersGeneratedTool(t *testing.T) {
	s, adapter, reg := newTestSynthesizer(t, nil)
	tool, trace := s.Synthesize(context.Background(), "Calculate the RSI for AAPL", "", "calculation", nil)
	require.NotNil(t, tool)
	require.Equal(t, 0, trace.ExitCode)
	require.Len(t, adapter.Calls(), 1)

	found, err := reg.GetByName(tool.Name)
	require.NoError(t, err)
	require.Len(t, found, 1)
}

func TestSynthesizeFailsWhenLLMReturnsEmptyCode(t *testing.T) {
	canned := map[string]*llm.GenerationResult{
		"Calculate the RSI for AAPL": {CodePayload: ""},
	}
	s, _, _ := newTestSynthesizer(t, canned)
	tool, trace := s.Synthesize(context.Background(), "Calculate the RSI for AAPL", "", "calculation", nil)
	require.Nil(t, tool)
	require.Equal(t, 1, trace.ExitCode)
}

func TestSynthesizeWithRetryFeedsErrorContextBack(t *testing.T) {
	task := "Calculate something unusual"
	s, adapter, _ := newTestSynthesizer(t, map[string]*llm.GenerationResult{
		task: {CodePayload: "package main\n\nimport \"net/http\"\n\nfunc Run(args map[string]interface{}) (interface{}, error) {\n\thttp.Get(\"x\")\n\treturn nil, nil\n}\n"},
	})
	tool, traces := s.SynthesizeWithRetry(context.Background(), task, 2)
	require.Nil(t, tool)
	require.GreaterOrEqual(t, len(traces), 1)
	require.GreaterOrEqual(t, len(adapter.Calls()), 1)
}

func TestSynthesizeWithRefineFallsBackToRefinerOnFailure(t *testing.T) {
	task := "Calculate something broken"
	badCode := "package main\n\nimport \"net/http\"\n\nfunc Run(args map[string]interface{}) (interface{}, error) {\n\thttp.Get(\"x\")\n\treturn nil, nil\n}\n"

	s, adapter, _ := newTestSynthesizer(t, map[string]*llm.GenerationResult{
		task: {CodePayload: badCode},
	})
	rf := refine.New(adapter, s.gateway, s.registry)

	// The mock adapter always returns the same banned-module code, so
	// the refiner's generated patch fails verification too and the
	// synthesis is expected to end in failure rather than panic.
	tool, trace := s.SynthesizeWithRefine(context.Background(), task, "", "calculation", nil, rf, 2)
	require.Nil(t, tool)
	require.NotEmpty(t, trace.TraceID)
}
