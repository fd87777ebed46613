// Package sandbox performs AST-based static security analysis on candidate
// tool source and executes accepted tools in an in-process Go interpreter.
// Adapted from the teacher's internal/autopoiesis/tool_validation.go
// (go/ast-based structural validation) and yaegi_executor.go (persistent
// interpreter execution), generalized from "warn on danger" to "reject on
// banned module/call/attribute" per the constraints catalog (spec §4.3's
// AST_SECURITY stage).
package sandbox

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strings"

	"finevo/internal/constraints"
)

// CheckResult is the outcome of a static security analysis pass.
type CheckResult struct {
	Passed     bool
	Violations []string
	Imports    []string
	Functions  []string
}

// StaticCheck parses code and rejects it if it imports a module outside the
// category's allow-list, imports an always-banned module, calls an
// always-banned function, or references an always-banned attribute
// (selector expression). This is the AST_SECURITY verification stage.
func StaticCheck(code, category string, c *constraints.Constraints) *CheckResult {
	res := &CheckResult{Passed: true}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "tool.go", code, parser.ParseComments)
	if err != nil {
		res.Passed = false
		res.Violations = append(res.Violations, fmt.Sprintf("syntax error: %v", err))
		return res
	}

	allowed := c.AllowedModules(category)
	banned := c.BannedModules(category)
	bannedCalls := c.AlwaysBannedCalls()
	bannedAttrs := c.AlwaysBannedAttributes()

	for _, imp := range file.Imports {
		path := strings.Trim(imp.Path.Value, `"`)
		res.Imports = append(res.Imports, path)

		if _, isBanned := banned[path]; isBanned {
			res.Passed = false
			res.Violations = append(res.Violations, fmt.Sprintf("banned import: %s", path))
			continue
		}
		if len(allowed) > 0 {
			if _, ok := allowed[path]; !ok {
				res.Passed = false
				res.Violations = append(res.Violations, fmt.Sprintf("import not in %s category allow-list: %s", category, path))
			}
		}
	}

	ast.Inspect(file, func(n ast.Node) bool {
		switch node := n.(type) {
		case *ast.CallExpr:
			switch fn := node.Fun.(type) {
			case *ast.Ident:
				if _, ok := bannedCalls[fn.Name]; ok {
					res.Passed = false
					res.Violations = append(res.Violations, fmt.Sprintf("banned call: %s", fn.Name))
				}
			case *ast.SelectorExpr:
				if ident, ok := fn.X.(*ast.Ident); ok {
					qualified := ident.Name + "." + fn.Sel.Name
					if _, ok := bannedCalls[qualified]; ok {
						res.Passed = false
						res.Violations = append(res.Violations, fmt.Sprintf("banned call: %s", qualified))
					}
				}
			}
		case *ast.SelectorExpr:
			if ident, ok := node.X.(*ast.Ident); ok {
				qualified := ident.Name + "." + node.Sel.Name
				if _, ok := bannedAttrs[qualified]; ok {
					res.Passed = false
					res.Violations = append(res.Violations, fmt.Sprintf("banned attribute reference: %s", qualified))
				}
			}
		case *ast.FuncDecl:
			res.Functions = append(res.Functions, node.Name.Name)
		case *ast.BasicLit:
			if node.Kind == token.STRING {
				value := strings.Trim(node.Value, `"`+"`")
				for banned := range bannedCalls {
					if strings.Contains(value, banned) {
						res.Passed = false
						res.Violations = append(res.Violations, fmt.Sprintf("suspicious string literal containing banned identifier: %s", banned))
					}
				}
				for banned := range bannedAttrs {
					if strings.Contains(value, banned) {
						res.Passed = false
						res.Violations = append(res.Violations, fmt.Sprintf("suspicious string literal containing banned identifier: %s", banned))
					}
				}
			}
		}
		return true
	})

	if len(res.Functions) == 0 {
		res.Passed = false
		res.Violations = append(res.Violations, "no functions defined")
	}

	return res
}
