// Package contracts holds the fixed catalog of tool contracts and the
// keyword-based inference used to pick one for a task when no explicit
// contract id is given. Adapted from
// original_source/src/core/contracts.py (CONTRACTS table, TASK_CONTRACT_MAPPING,
// infer_contract_from_query).
package contracts

import (
	"fmt"
	"strings"
	"unicode"

	"finevo/internal/model"
)

func f(v float64) *float64 { return &v }

// Catalog is the fixed set of predefined contracts, keyed by contract id.
var Catalog = map[string]model.Contract{
	// === fetch ===
	"fetch_financial": {
		ContractID: "fetch_financial", Category: "fetch",
		InputTypes: map[string]string{"symbol": "string", "period": "string"},
		RequiredInputs: []string{"symbol"},
		OutputType: model.OutputNumeric,
		AllowNegative: true,
	},
	"fetch_quote": {
		ContractID: "fetch_quote", Category: "fetch",
		InputTypes: map[string]string{"symbol": "string"},
		RequiredInputs: []string{"symbol"},
		OutputType: model.OutputNumeric,
		MinValue: f(0),
	},
	"fetch_price": {
		ContractID: "fetch_price", Category: "fetch",
		InputTypes: map[string]string{"symbol": "string", "start": "string", "end": "string"},
		RequiredInputs: []string{"symbol"},
		OutputType: model.OutputNumeric,
		MinValue: f(0),
	},
	"fetch_ohlcv": {
		ContractID: "fetch_ohlcv", Category: "fetch",
		InputTypes: map[string]string{"symbol": "string", "start": "string", "end": "string"},
		RequiredInputs: []string{"symbol"},
		OutputType: model.OutputDataFrame,
		RequiredKeys: []string{"Open", "High", "Low", "Close", "Volume"},
	},
	"fetch_list": {
		ContractID: "fetch_list", Category: "fetch",
		InputTypes: map[string]string{"symbol": "string"},
		RequiredInputs: []string{"symbol"},
		OutputType: model.OutputList,
	},

	// === calculation ===
	"calc_rsi": {
		ContractID: "calc_rsi", Category: "calculation",
		InputTypes: map[string]string{"prices": "[]float64", "period": "int"},
		RequiredInputs: []string{"prices"},
		OutputType: model.OutputNumeric,
		MinValue: f(0), MaxValue: f(100),
	},
	"calc_ma": {
		ContractID: "calc_ma", Category: "calculation",
		InputTypes: map[string]string{"prices": "[]float64", "window": "int"},
		RequiredInputs: []string{"prices"},
		OutputType: model.OutputNumeric,
		MinValue: f(0),
	},
	"calc_bollinger": {
		ContractID: "calc_bollinger", Category: "calculation",
		InputTypes: map[string]string{"prices": "[]float64", "window": "int", "num_std": "float64"},
		RequiredInputs: []string{"prices"},
		OutputType: model.OutputDict,
		RequiredKeys: []string{"upper", "middle", "lower"},
	},
	"calc_macd": {
		ContractID: "calc_macd", Category: "calculation",
		InputTypes: map[string]string{"prices": "[]float64", "fast_period": "int", "slow_period": "int", "signal_period": "int"},
		RequiredInputs: []string{"prices"},
		OutputType: model.OutputDict,
		RequiredKeys: []string{"macd", "signal", "histogram"},
	},
	"calc_volatility": {
		ContractID: "calc_volatility", Category: "calculation",
		InputTypes: map[string]string{"prices": "[]float64", "window": "int"},
		RequiredInputs: []string{"prices"},
		OutputType: model.OutputNumeric,
		MinValue: f(0),
	},
	"calc_kdj": {
		ContractID: "calc_kdj", Category: "calculation",
		InputTypes: map[string]string{"high": "[]float64", "low": "[]float64", "close": "[]float64", "k_period": "int", "d_period": "int"},
		RequiredInputs: []string{"high", "low", "close"},
		OutputType: model.OutputDict,
		RequiredKeys: []string{"k", "d", "j"},
	},
	"calc_drawdown": {
		ContractID: "calc_drawdown", Category: "calculation",
		InputTypes: map[string]string{"prices": "[]float64"},
		RequiredInputs: []string{"prices"},
		OutputType: model.OutputNumeric,
		MinValue: f(0), MaxValue: f(1),
	},
	"calc_correlation": {
		ContractID: "calc_correlation", Category: "calculation",
		InputTypes: map[string]string{"prices1": "[]float64", "prices2": "[]float64"},
		RequiredInputs: []string{"prices1", "prices2"},
		OutputType: model.OutputNumeric,
		MinValue: f(-1), MaxValue: f(1),
	},

	// === composite ===
	"comp_signal": {
		ContractID: "comp_signal", Category: "composite",
		InputTypes: map[string]string{"prices": "[]float64"},
		RequiredInputs: []string{"prices"},
		OutputType: model.OutputBoolean,
	},
	"comp_divergence": {
		ContractID: "comp_divergence", Category: "composite",
		InputTypes: map[string]string{"prices": "[]float64", "volumes": "[]float64"},
		RequiredInputs: []string{"prices", "volumes"},
		OutputType: model.OutputBoolean,
	},
	"comp_portfolio": {
		ContractID: "comp_portfolio", Category: "composite",
		InputTypes: map[string]string{"symbols": "[]string", "weights": "[]float64"},
		RequiredInputs: []string{"symbols"},
		OutputType: model.OutputNumeric,
		AllowNegative: true,
	},
	"comp_conditional_return": {
		ContractID: "comp_conditional_return", Category: "composite",
		InputTypes: map[string]string{"prices": "[]float64", "signal_threshold": "float64"},
		RequiredInputs: []string{"prices"},
		OutputType: model.OutputNumeric,
		AllowNegative: true,
	},
}

// TaskMapping maps fixed benchmark task ids to contract ids, mirroring
// TASK_CONTRACT_MAPPING.
var TaskMapping = map[string]string{
	"fetch_001": "fetch_financial",
	"fetch_002": "fetch_quote",
	"fetch_003": "fetch_financial",
	"fetch_004": "fetch_price",
	"fetch_005": "fetch_price",
	"fetch_006": "fetch_financial",
	"fetch_007": "fetch_list",
	"fetch_008": "fetch_price",

	"calc_001": "calc_rsi",
	"calc_002": "calc_ma",
	"calc_003": "calc_bollinger",
	"calc_004": "calc_macd",
	"calc_005": "calc_volatility",
	"calc_006": "calc_kdj",
	"calc_007": "calc_drawdown",
	"calc_008": "calc_correlation",

	"comp_001": "comp_signal",
	"comp_002": "comp_divergence",
	"comp_003": "comp_portfolio",
	"comp_004": "comp_conditional_return",
}

// ByTaskID returns the contract mapped to a fixed benchmark task id, if any.
func ByTaskID(taskID string) (model.Contract, bool) {
	contractID, ok := TaskMapping[taskID]
	if !ok {
		return model.Contract{}, false
	}
	c, ok := Catalog[contractID]
	return c, ok
}

// ByID returns a contract by its id.
func ByID(contractID string) (model.Contract, bool) {
	c, ok := Catalog[contractID]
	return c, ok
}

func containsAny(s string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// hasWord reports whether word appears in s as a whole word, so that a
// short keyword like "ma" does not match inside "max" or "macd".
func hasWord(s, word string) bool {
	for _, w := range strings.FieldsFunc(s, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) }) {
		if w == word {
			return true
		}
	}
	return false
}

// InferFromQuery picks the best-matching contract for a free-text task
// description and category, mirroring infer_contract_from_query's keyword
// table. Returns false if no contract matches.
func InferFromQuery(query, category string) (model.Contract, bool) {
	q := strings.ToLower(query)

	switch category {
	case "fetch":
		switch {
		case containsAny(q, "net income", "revenue", "earnings", "profit"):
			return Catalog["fetch_financial"], true
		case containsAny(q, "quote", "real-time", "realtime"):
			return Catalog["fetch_quote"], true
		case strings.Contains(q, "dividend"):
			return Catalog["fetch_list"], true
		default:
			return Catalog["fetch_price"], true
		}

	case "calculation":
		switch {
		case strings.Contains(q, "rsi"):
			return Catalog["calc_rsi"], true
		case strings.Contains(q, "moving average") || hasWord(q, "ma"):
			return Catalog["calc_ma"], true
		case strings.Contains(q, "bollinger"):
			return Catalog["calc_bollinger"], true
		case strings.Contains(q, "macd"):
			return Catalog["calc_macd"], true
		case strings.Contains(q, "volatility"):
			return Catalog["calc_volatility"], true
		case strings.Contains(q, "kdj"):
			return Catalog["calc_kdj"], true
		case strings.Contains(q, "drawdown"):
			return Catalog["calc_drawdown"], true
		case strings.Contains(q, "correlation"):
			return Catalog["calc_correlation"], true
		}

	case "composite":
		switch {
		case strings.Contains(q, "diverge"):
			return Catalog["comp_divergence"], true
		case containsAny(q, "signal", "if ", "return true", "return false"):
			return Catalog["comp_signal"], true
		case strings.Contains(q, "portfolio"):
			return Catalog["comp_portfolio"], true
		case strings.Contains(q, "after") && containsAny(q, "rsi", "return"):
			return Catalog["comp_conditional_return"], true
		}
	}

	return model.Contract{}, false
}

// Validate checks an output value against a contract's constraints,
// enforcing the CONTRACT_VALID verification stage (spec §4.5).
func Validate(c model.Contract, value any) error {
	switch c.OutputType {
	case model.OutputNumeric:
		n, ok := asFloat(value)
		if !ok {
			return errf("expected numeric output, got %T", value)
		}
		if c.MinValue != nil && n < *c.MinValue {
			return errf("output %.6g below contract minimum %.6g", n, *c.MinValue)
		}
		if c.MaxValue != nil && n > *c.MaxValue {
			return errf("output %.6g above contract maximum %.6g", n, *c.MaxValue)
		}
	case model.OutputDict:
		m, ok := value.(map[string]any)
		if !ok {
			return errf("expected dict output, got %T", value)
		}
		for _, k := range c.RequiredKeys {
			if _, ok := m[k]; !ok {
				return errf("missing required key %q", k)
			}
		}
	case model.OutputList:
		if _, ok := value.([]any); !ok {
			return errf("expected list output, got %T", value)
		}
	case model.OutputBoolean:
		if _, ok := value.(bool); !ok {
			return errf("expected boolean output, got %T", value)
		}
	case model.OutputDataFrame:
		m, ok := value.(map[string][]float64)
		if !ok {
			return errf("expected dataframe-shaped output, got %T", value)
		}
		for _, k := range c.RequiredKeys {
			if _, ok := m[k]; !ok {
				return errf("missing required column %q", k)
			}
		}
	}
	return nil
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func errf(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}
