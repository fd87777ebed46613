package evalharness

import (
	"math"
	"strconv"
)

// numericMatch is a relative-error judgment: tolerance 0.01 means 1%
// error allowed. Adapted from run_eval.py's numeric_match.
func numericMatch(actual, expected, tolerance float64) bool {
	if expected == 0 {
		return math.Abs(actual) < 1e-6
	}
	return math.Abs(actual-expected)/math.Abs(expected) <= tolerance
}

// listMatch compares two lists; order-insensitive by default (set
// equality), matching list_match's default order_sensitive=False.
func listMatch(actual, expected []any, orderSensitive bool) bool {
	if orderSensitive {
		if len(actual) != len(expected) {
			return false
		}
		for i := range actual {
			if fmt2(actual[i]) != fmt2(expected[i]) {
				return false
			}
		}
		return true
	}
	if len(actual) != len(expected) {
		return false
	}
	counts := map[string]int{}
	for _, v := range actual {
		counts[fmt2(v)]++
	}
	for _, v := range expected {
		counts[fmt2(v)]--
	}
	for _, c := range counts {
		if c != 0 {
			return false
		}
	}
	return true
}

func fmt2(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return ""
	}
}

// structMatch checks that every requiredKeys entry is present in actual.
// Adapted from run_eval.py's struct_match.
func structMatch(actual map[string]any, requiredKeys []string) bool {
	if actual == nil {
		return false
	}
	for _, k := range requiredKeys {
		if _, ok := actual[k]; !ok {
			return false
		}
	}
	return true
}

// booleanMatch checks actual is actually a bool (judge_result's boolean
// branch only checks the type, not the value, matching the original).
func booleanMatch(actual any) bool {
	_, ok := actual.(bool)
	return ok
}

// judgeResult dispatches on expected.Type, mirroring run_eval.py's
// judge_result.
func judgeResult(actual any, expected ExpectedOutput) bool {
	switch expected.Type {
	case "numeric":
		af, aok := asFloat(actual)
		if !aok {
			return false
		}
		if expected.Value != nil {
			ef, eok := asFloat(expected.Value)
			if !eok {
				return false
			}
			tol := expected.Tolerance
			if tol == 0 {
				tol = 0.01
			}
			return numericMatch(af, ef, tol)
		}
		return true

	case "list":
		actualList, aok := actual.([]any)
		expectedList, _ := expected.Value.([]any)
		if !aok {
			return false
		}
		return listMatch(actualList, expectedList, false)

	case "dict":
		actualMap, ok := actual.(map[string]any)
		if !ok {
			return false
		}
		return structMatch(actualMap, expected.RequiredKeys)

	case "boolean":
		return booleanMatch(actual)

	case "security_block":
		s, ok := actual.(string)
		return ok && s == "BLOCKED"

	default:
		return actual != nil
	}
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}
