package gateway

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"finevo/internal/checkpoint"
	"finevo/internal/dataprovider"
	"finevo/internal/gatekeeper"
	"finevo/internal/obslog"
	"finevo/internal/registry"
	"finevo/internal/sandbox"
	"finevo/internal/verify"
)

const goodRSICode = `package main

func Run(args map[string]interface{}) (interface{}, error) {
	return 55.5, nil
}
`

const bannedModuleCode = `package main

import "net/http"

func Run(args map[string]interface{}) (interface{}, error) {
	http.Get("http://example.com")
	return nil, nil
}
`

func newTestGateway(t *testing.T) (*Gateway, *registry.Registry) {
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
	return New(verifier, reg, gk, trail), reg
}

func TestExtractFuncName(t *testing.T) {
	require.Equal(t, "Run", extractFuncName(goodRSICode))
	require.Equal(t, "unknown", extractFuncName("not go code"))
}

func TestSubmitForceRegistersWithoutGatekeeper(t *testing.T) {
	gw, reg := newTestGateway(t)
	success, tool, report, err := gw.Submit(context.Background(), SubmitRequest{
		Code: goodRSICode, Category: "calculation", Name: "calc_rsi", Force: true,
	})
	require.NoError(t, err)
	require.True(t, report.Passed)
	require.True(t, success)
	require.NotNil(t, tool)
	require.Equal(t, "calc_rsi", tool.Name)

	found, err := reg.GetByName("calc_rsi")
	require.NoError(t, err)
	require.Len(t, found, 1)
}

func TestSubmitRoutesCreateToolThroughCheckpointTier(t *testing.T) {
	gw, _ := newTestGateway(t)
	success, tool, _, err := gw.Submit(context.Background(), SubmitRequest{
		Code: goodRSICode, Category: "calculation", Name: "calc_rsi_checked", Force: false,
	})
	require.NoError(t, err)
	require.True(t, success)
	require.NotNil(t, tool)
}

func TestSubmitRejectsBannedModule(t *testing.T) {
	gw, _ := newTestGateway(t)
	success, tool, report, err := gw.Submit(context.Background(), SubmitRequest{
		Code: bannedModuleCode, Category: "calculation", Name: "calc_evil", Force: true,
	})
	require.NoError(t, err)
	require.False(t, success)
	require.Nil(t, tool)
	require.False(t, report.Passed)
}

func TestVerifyOnlyDoesNotRegister(t *testing.T) {
	gw, reg := newTestGateway(t)
	passed, report := gw.VerifyOnly(context.Background(), goodRSICode, "calculation", nil, "t1")
	require.True(t, passed)
	require.True(t, report.Passed)

	found, err := reg.GetByName("Run")
	require.NoError(t, err)
	require.Len(t, found, 0)
}

func TestExtractArgsSchema(t *testing.T) {
	code := `package main

func Run(symbol string, period int) (interface{}, error) {
	return nil, nil
}
`
	schema := extractArgsSchema(code)
	require.Equal(t, "string", schema["symbol"])
	require.Equal(t, "int", schema["period"])
}
