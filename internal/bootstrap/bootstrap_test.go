package bootstrap

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"finevo/internal/checkpoint"
	"finevo/internal/dataprovider"
	"finevo/internal/gatekeeper"
	"finevo/internal/gateway"
	"finevo/internal/obslog"
	"finevo/internal/registry"
	"finevo/internal/sandbox"
	"finevo/internal/verify"
)

func newTestGateway(t *testing.T) *gateway.Gateway {
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
	return gateway.New(verifier, reg, gk, trail)
}

func TestSeedRegistersAllToolsSuccessfully(t *testing.T) {
	gw := newTestGateway(t)
	results := Seed(context.Background(), gw)
	require.Len(t, results, len(seedTools))
	for _, r := range results {
		require.Truef(t, r.Success, "expected seed tool %s to register, error: %s", r.Name, r.Error)
		require.NotZero(t, r.ToolID)
	}
}

func TestSeedIsIdempotent(t *testing.T) {
	gw := newTestGateway(t)
	first := Seed(context.Background(), gw)
	second := Seed(context.Background(), gw)
	require.Len(t, second, len(seedTools))
	for i := range first {
		require.Equal(t, first[i].ToolID, second[i].ToolID, "expected re-seeding to return the same content-hash-deduped tool id")
	}
}
