package registry

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"finevo/internal/model"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	dir := t.TempDir()
	r, err := Open(filepath.Join(dir, "registry.db"), filepath.Join(dir, "artifacts"))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

const sampleCode = `package main

func Run(args map[string]interface{}) (interface{}, error) {
	return 42.0, nil
}
`

func TestRegisterNewToolStartsAtVersionZeroOneZero(t *testing.T) {
	r := newTestRegistry(t)
	a, err := r.Register(RegisterRequest{Name: "calc_rsi", Code: sampleCode, Category: "calculation"})
	require.NoError(t, err)
	require.Equal(t, "0.1.0", a.SemanticVersion)
	require.Equal(t, model.StatusProvisional, a.Status)
	require.Equal(t, model.StageNone, a.VerificationStage)
	require.Equal(t, ContentHash(sampleCode), a.ContentHash)
}

func TestRegisterDedupsByContentHash(t *testing.T) {
	r := newTestRegistry(t)
	first, err := r.Register(RegisterRequest{Name: "calc_rsi", Code: sampleCode, Category: "calculation"})
	require.NoError(t, err)

	second, err := r.Register(RegisterRequest{Name: "calc_rsi_renamed", Code: sampleCode, Category: "calculation"})
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID, "identical code should return the existing artifact, not a new row")
	require.Equal(t, first.Name, second.Name, "dedup returns the original record untouched, ignoring the new name")
}

func TestRegisterBumpsPatchVersionForExistingName(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Register(RegisterRequest{Name: "calc_rsi", Code: sampleCode, Category: "calculation"})
	require.NoError(t, err)

	secondCode := sampleCode + "\n// a distinct second revision\n"
	second, err := r.Register(RegisterRequest{Name: "calc_rsi", Code: secondCode, Category: "calculation"})
	require.NoError(t, err)
	require.Equal(t, "0.1.1", second.SemanticVersion)
}

func TestRegisterWritesArtifactFileToBootstrapOrGeneratedSubdir(t *testing.T) {
	r := newTestRegistry(t)
	gen, err := r.Register(RegisterRequest{Name: "gen_tool", Code: sampleCode, Category: "calculation"})
	require.NoError(t, err)
	require.Contains(t, gen.FilePath, filepath.Join("generated", ""))

	boot, err := r.Register(RegisterRequest{Name: "boot_tool", Code: sampleCode + "\nx", Category: "calculation", IsBootstrap: true})
	require.NoError(t, err)
	require.Contains(t, boot.FilePath, filepath.Join("bootstrap", ""))
}

func TestGetByIDAndGetByHash(t *testing.T) {
	r := newTestRegistry(t)
	a, err := r.Register(RegisterRequest{Name: "calc_rsi", Code: sampleCode, Category: "calculation"})
	require.NoError(t, err)

	byID, err := r.GetByID(a.ID)
	require.NoError(t, err)
	require.Equal(t, a.Name, byID.Name)

	byHash, err := r.GetByHash(a.ContentHash)
	require.NoError(t, err)
	require.Equal(t, a.ID, byHash.ID)

	_, err = r.GetByID(999999)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetByNameReturnsNewestFirst(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Register(RegisterRequest{Name: "calc_rsi", Code: sampleCode, Category: "calculation"})
	require.NoError(t, err)
	second, err := r.Register(RegisterRequest{Name: "calc_rsi", Code: sampleCode + "\nx", Category: "calculation"})
	require.NoError(t, err)

	all, err := r.GetByName("calc_rsi")
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, second.ID, all[0].ID, "expected newest-first ordering")
}

func TestFindByContractID(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Register(RegisterRequest{Name: "calc_rsi", Code: sampleCode, Category: "calculation", ContractID: "calc_rsi"})
	require.NoError(t, err)
	_, err = r.Register(RegisterRequest{Name: "calc_ma", Code: sampleCode + "\ny", Category: "calculation", ContractID: "calc_ma"})
	require.NoError(t, err)

	matches, err := r.FindByContractID("calc_rsi")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, "calc_rsi", matches[0].Name)
}

func TestListFiltersByStatus(t *testing.T) {
	r := newTestRegistry(t)
	a, err := r.Register(RegisterRequest{Name: "calc_rsi", Code: sampleCode, Category: "calculation"})
	require.NoError(t, err)
	_, err = r.Register(RegisterRequest{Name: "calc_ma", Code: sampleCode + "\ny", Category: "calculation"})
	require.NoError(t, err)

	require.NoError(t, r.UpdateStatus(a.ID, model.StatusVerified))

	active, err := r.List(model.StatusVerified)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, a.ID, active[0].ID)

	all, err := r.List("")
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestUpdateVerificationStage(t *testing.T) {
	r := newTestRegistry(t)
	a, err := r.Register(RegisterRequest{Name: "calc_rsi", Code: sampleCode, Category: "calculation"})
	require.NoError(t, err)

	require.NoError(t, r.UpdateVerificationStage(a.ID, model.StageContractValid))
	updated, err := r.GetByID(a.ID)
	require.NoError(t, err)
	require.Equal(t, model.StageContractValid, updated.VerificationStage)
}

func TestUpdateSchemaOverwritesEnrichmentFields(t *testing.T) {
	r := newTestRegistry(t)
	a, err := r.Register(RegisterRequest{Name: "calc_rsi", Code: sampleCode, Category: "calculation"})
	require.NoError(t, err)

	require.NoError(t, r.UpdateSchema(a.ID, map[string]string{"prices": "[]float64"}, "calc_rsi", "RSI", "technical"))
	updated, err := r.GetByID(a.ID)
	require.NoError(t, err)
	require.Equal(t, "[]float64", updated.ArgsSchema["prices"])
	require.Equal(t, "calc_rsi", updated.ContractID)
	require.Equal(t, "RSI", updated.Indicator)
	require.Equal(t, "technical", updated.DataType)
}

func TestRecordExecutionAccumulatesCountersAndAverage(t *testing.T) {
	r := newTestRegistry(t)
	a, err := r.Register(RegisterRequest{Name: "calc_rsi", Code: sampleCode, Category: "calculation"})
	require.NoError(t, err)

	require.NoError(t, r.RecordExecution(a.ID, true, 100))
	require.NoError(t, r.RecordExecution(a.ID, false, 200))

	updated, err := r.GetByID(a.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), updated.SuccessCount)
	require.Equal(t, int64(1), updated.FailureCount)
	require.InDelta(t, 120.0, updated.AvgExecTimeMs, 0.01)
}

func TestDeprecateMarksStatus(t *testing.T) {
	r := newTestRegistry(t)
	a, err := r.Register(RegisterRequest{Name: "calc_rsi", Code: sampleCode, Category: "calculation"})
	require.NoError(t, err)

	require.NoError(t, r.Deprecate(a.ID))
	updated, err := r.GetByID(a.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusDeprecated, updated.Status)
}
