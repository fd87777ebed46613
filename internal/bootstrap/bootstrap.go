// Package bootstrap registers the fixed set of seed tools every fresh
// installation starts with, submitted through the gateway with force=true
// (the trusted bootstrap path, spec §4.7 step 5) so they pass through the
// same verification pipeline as evolved tools without needing gatekeeper
// approval. Adapted from original_source/src/finance/bootstrap.py's
// BOOTSTRAP_TOOLS table and create_bootstrap_tools, narrowed from its five
// yfinance-wrapper tools plus the indicator implementations under
// original_source/src/extraction to a representative subset spanning all
// three tool categories.
package bootstrap

import (
	"context"
	"fmt"

	"finevo/internal/gateway"
	"finevo/internal/verify"
)

const calcRSICode = `package main

import "fmt"

func calcRSI(closes []float64, period int) float64 {
	if len(closes) < period+1 {
		return 50.0
	}
	var gainSum, lossSum float64
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gainSum += delta
		} else {
			lossSum -= delta
		}
	}
	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)
	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

func closesFromData(args map[string]interface{}) []float64 {
	rows, _ := args["data"].([]map[string]interface{})
	closes := make([]float64, 0, len(rows))
	for _, row := range rows {
		if c, ok := row["close"].(float64); ok {
			closes = append(closes, c)
		}
	}
	return closes
}

func Run(args map[string]interface{}) (interface{}, error) {
	period := 14
	if p, ok := args["period"].(int); ok && p > 0 {
		period = p
	}
	closes := closesFromData(args)
	if len(closes) == 0 {
		return nil, fmt.Errorf("calcRSI: no closing prices in data")
	}
	return calcRSI(closes, period), nil
}
`

const calcMACode = `package main

import "fmt"

func Run(args map[string]interface{}) (interface{}, error) {
	period := 20
	if p, ok := args["period"].(int); ok && p > 0 {
		period = p
	}
	rows, _ := args["data"].([]map[string]interface{})
	if len(rows) < period {
		return nil, fmt.Errorf("calcMA: need at least %d bars, got %d", period, len(rows))
	}
	var sum float64
	for _, row := range rows[len(rows)-period:] {
		if c, ok := row["close"].(float64); ok {
			sum += c
		}
	}
	return sum / float64(period), nil
}
`

const calcBollingerCode = `package main

import "fmt"

func Run(args map[string]interface{}) (interface{}, error) {
	window := 20
	if w, ok := args["window"].(int); ok && w > 0 {
		window = w
	}
	numStd := 2.0
	if n, ok := args["num_std"].(int); ok {
		numStd = float64(n)
	}
	rows, _ := args["data"].([]map[string]interface{})
	if len(rows) < window {
		return nil, fmt.Errorf("calcBollinger: need at least %d bars, got %d", window, len(rows))
	}
	recent := rows[len(rows)-window:]
	var sum float64
	for _, row := range recent {
		if c, ok := row["close"].(float64); ok {
			sum += c
		}
	}
	mean := sum / float64(window)

	var variance float64
	for _, row := range recent {
		if c, ok := row["close"].(float64); ok {
			d := c - mean
			variance += d * d
		}
	}
	stddev := sqrt(variance / float64(window))

	return map[string]interface{}{
		"middle": mean,
		"upper":  mean + numStd*stddev,
		"lower":  mean - numStd*stddev,
	}, nil
}

func sqrt(x float64) float64 {
	if x <= 0 {
		return 0
	}
	guess := x
	for i := 0; i < 30; i++ {
		guess = 0.5 * (guess + x/guess)
	}
	return guess
}
`

const signalRSIOversoldCode = `package main

import "fmt"

func Run(args map[string]interface{}) (interface{}, error) {
	threshold := 30.0
	if t, ok := args["threshold"].(float64); ok {
		threshold = t
	}
	rsi, ok := args["rsi"].(float64)
	if !ok {
		return nil, fmt.Errorf("signalRSIOversold: missing rsi argument")
	}
	return rsi <= threshold, nil
}
`

const getStockSnapshotCode = `package main

import "fmt"

// getStockSnapshot validates the symbol/start/end arguments a fetch-category
// task would pass. Real network retrieval happens outside the sandbox via
// the data provider; the task executor's simple-fetch shortcut (spec
// §4.13's resolved Open Question) serves these tasks directly and never
// invokes this tool, so it exists to exercise the fetch category's
// verification and registration path rather than to perform I/O.
func Run(args map[string]interface{}) (interface{}, error) {
	symbol, ok := args["symbol"].(string)
	if !ok || symbol == "" {
		return nil, fmt.Errorf("getStockSnapshot: missing symbol argument")
	}
	start, _ := args["start"].(string)
	end, _ := args["end"].(string)
	return map[string]interface{}{"symbol": symbol, "start": start, "end": end}, nil
}
`

// seedTool is one bootstrap tool definition.
type seedTool struct {
	name     string
	code     string
	category string
}

var seedTools = []seedTool{
	{"calcRSI", calcRSICode, "calculation"},
	{"calcMA", calcMACode, "calculation"},
	{"calcBollinger", calcBollingerCode, "calculation"},
	{"signalRSIOversold", signalRSIOversoldCode, "composite"},
	{"getStockSnapshot", getStockSnapshotCode, "fetch"},
}

// Result records the outcome of bootstrapping one seed tool.
type Result struct {
	Name    string
	Success bool
	ToolID  int64
	Error   string
}

// Seed registers every seed tool through the gateway with Force=true,
// mirroring create_bootstrap_tools' force=True bootstrap path. It is safe
// to call repeatedly: the registry's content-hash dedup (registry.Register)
// makes re-registration a no-op that returns the existing artifact.
func Seed(ctx context.Context, gw *gateway.Gateway) []Result {
	results := make([]Result, 0, len(seedTools))
	for _, st := range seedTools {
		success, tool, report, err := gw.Submit(ctx, gateway.SubmitRequest{
			Code: st.code, Category: st.category, Name: st.name,
			TaskID: "bootstrap_" + st.name, Force: true,
		})
		res := Result{Name: st.name, Success: success}
		switch {
		case err != nil:
			res.Error = err.Error()
		case !success:
			res.Error = fmt.Sprintf("verification failed at %s", finalStage(report))
		case tool != nil:
			res.ToolID = tool.ID
		}
		results = append(results, res)
	}
	return results
}

func finalStage(report *verify.Report) string {
	if report == nil {
		return "unknown"
	}
	return report.FinalStage.String()
}
