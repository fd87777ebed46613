package taskexec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finevo/internal/dataprovider"
)

func TestHandleSimpleFetch(t *testing.T) {
	exec := New(dataprovider.NewMockProvider(nil), nil)
	trace, err := exec.handleSimpleFetch(context.Background(), Task{TaskID: "t1", Query: "Get AAPL historical data for 2023"})
	require.NoError(t, err)
	assert.Equal(t, 0, trace.ExitCode)
	assert.NotEmpty(t, trace.OutputRepr)
}

func TestExecuteTaskRoutesSimpleFetch(t *testing.T) {
	exec := New(dataprovider.NewMockProvider(nil), nil)
	trace, err := exec.ExecuteTask(context.Background(), Task{TaskID: "t1", Query: "What is the stock price of AAPL?", Category: "fetch"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, trace.ExitCode)
}

func TestExecuteTaskRequiresToolForCalc(t *testing.T) {
	exec := New(dataprovider.NewMockProvider(nil), nil)
	_, err := exec.ExecuteTask(context.Background(), Task{TaskID: "t2", Query: "Calculate RSI-14 for AAPL", Category: "calculation"}, nil)
	assert.Error(t, err)
}

func TestPrepareCalcArgsMultiAsset(t *testing.T) {
	exec := New(dataprovider.NewMockProvider(nil), nil)
	args, err := exec.prepareCalcArgs(context.Background(), Task{TaskID: "t3", Query: "What is the correlation between AAPL and MSFT in 2023?"})
	require.NoError(t, err)
	symbols, ok := args["symbols"].([]string)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"AAPL", "MSFT"}, symbols)
}

func TestPrepareCalcArgsSingleAsset(t *testing.T) {
	exec := New(dataprovider.NewMockProvider(nil), nil)
	args, err := exec.prepareCalcArgs(context.Background(), Task{TaskID: "t4", Query: "Calculate RSI-14 for AAPL"})
	require.NoError(t, err)
	assert.Equal(t, "AAPL", args["symbol"])
	assert.Equal(t, 14, args["period"])
}
