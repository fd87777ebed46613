package synth

import (
	"go/ast"
	"go/parser"
	"go/token"
	"strings"
)

// indicatorKeywords maps an indicator name to the phrases that identify it
// in a task description or generated code. Adapted from synthesizer.py's
// INDICATOR_KEYWORDS.
var indicatorKeywords = map[string][]string{
	"rsi":          {"rsi", "relative strength"},
	"macd":         {"macd"},
	"bollinger":    {"bollinger", "boll"},
	"kdj":          {"kdj", "stochastic"},
	"ma":           {"moving average", "ma"},
	"volatility":   {"volatility"},
	"drawdown":     {"drawdown", "max_drawdown"},
	"correlation":  {"correlation"},
	"volume_price": {"volume price", "divergence"},
	"portfolio":    {"portfolio", "weight"},
}

// extractIndicator infers an indicator label from task text and generated
// code, used to tag a tool's registry schema.
func extractIndicator(task, code string) string {
	text := strings.ToLower(task + " " + code)
	for indicator, keywords := range indicatorKeywords {
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				return indicator
			}
		}
	}
	return ""
}

// extractDataType infers the expected input data shape from task text and
// the function's argument schema. Adapted from synthesizer.py's
// extract_data_type.
func extractDataType(task string, argsSchema map[string]string) string {
	lower := strings.ToLower(task)
	financial := []string{"financial", "net income", "revenue", "roe"}
	for _, kw := range financial {
		if strings.Contains(lower, kw) {
			return "financial"
		}
	}
	if strings.Contains(lower, "volume") {
		return "volume"
	}
	hasOHLC := true
	for _, k := range []string{"open", "high", "low", "close"} {
		if _, ok := argsSchema[k]; !ok {
			hasOHLC = false
			break
		}
	}
	if hasOHLC {
		return "ohlcv"
	}
	return "price"
}

// extractArgsSchema parses a Go function's parameter list into a
// name->type-string schema. Adapted from synthesizer.py's
// extract_args_schema, using go/ast instead of a regex split since Go
// parameter lists are not comma-separated `name: type` the way Python's
// are (multiple names can share one type).
func extractArgsSchema(code string) map[string]string {
	schema := map[string]string{}
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "tool.go", code, 0)
	if err != nil {
		return schema
	}
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Recv != nil || fn.Type.Params == nil {
			continue
		}
		for _, field := range fn.Type.Params.List {
			typeStr := exprString(field.Type)
			for _, name := range field.Names {
				schema[name.Name] = typeStr
			}
		}
		break
	}
	return schema
}

func exprString(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.ArrayType:
		return "[]" + exprString(t.Elt)
	case *ast.SelectorExpr:
		return exprString(t.X) + "." + t.Sel.Name
	case *ast.MapType:
		return "map[" + exprString(t.Key) + "]" + exprString(t.Value)
	case *ast.StarExpr:
		return "*" + exprString(t.X)
	default:
		return "any"
	}
}
