// Package gateway is the single enforcement point for all tool
// registration. All tool registration must go through Submit; direct
// registry writes from evolution code are prohibited (see synth/refine
// packages, which call this instead). Adapted from
// original_source/src/core/gateway.py's VerificationGateway.
package gateway

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"regexp"

	"finevo/internal/contracts"
	"finevo/internal/gatekeeper"
	"finevo/internal/model"
	"finevo/internal/obslog"
	"finevo/internal/registry"
	"finevo/internal/verify"
)

// Error is raised when a tool fails verification or is denied registration.
type Error struct {
	Message string
	Report  *verify.Report
}

func (e *Error) Error() string { return e.Message }

// Gateway wires the verifier, registry, and gatekeeper into a single
// submit/verify_only/stats surface.
type Gateway struct {
	verifier   *verify.Verifier
	registry   *registry.Registry
	gatekeeper *gatekeeper.Gatekeeper
	trail      *obslog.Trail
}

// New creates a Gateway.
func New(v *verify.Verifier, r *registry.Registry, g *gatekeeper.Gatekeeper, trail *obslog.Trail) *Gateway {
	return &Gateway{verifier: v, registry: r, gatekeeper: g, trail: trail}
}

var funcNameRe = regexp.MustCompile(`(?m)^func\s+(\w+)\s*\(`)

func extractFuncName(code string) string {
	if m := funcNameRe.FindStringSubmatch(code); m != nil {
		return m[1]
	}
	return "unknown"
}

// SubmitRequest describes a candidate tool submission.
type SubmitRequest struct {
	Code       string
	Category   string
	Contract   *model.Contract
	ContractID string
	Task       string
	TaskID     string
	RealData   map[string]any
	Force      bool // skip gatekeeper approval; bootstrap/testing only

	// Name overrides the registered tool name. Every synthesized tool's
	// sole entry point is named Run per the sandbox calling convention
	// (see sandbox.Executor), so the source itself can never supply a
	// distinct name the way the original Python tools (calc_rsi,
	// get_stock_hist, ...) could; callers that care about a stable,
	// human-readable registry name (the synthesizer, bootstrap) must
	// supply it explicitly here. Left empty, it falls back to whatever
	// extractFuncName finds, which is "Run" for ordinary synthesized
	// code and a real helper name only for hand-written snippets that
	// declare one before Run.
	Name string
}

// Submit is the only approved way to register a tool. It runs full
// verification, then (unless Force) routes registration through the
// gatekeeper's risk tiers, then persists to the registry.
func (g *Gateway) Submit(ctx context.Context, req SubmitRequest) (bool, *model.ToolArtifact, *verify.Report, error) {
	funcName := req.Name
	if funcName == "" {
		funcName = extractFuncName(req.Code)
	}

	contract := req.Contract
	if contract == nil && req.ContractID != "" {
		if c, ok := contracts.ByID(req.ContractID); ok {
			contract = &c
		}
	} else if contract == nil && req.Task != "" {
		if c, ok := contracts.InferFromQuery(req.Task, req.Category); ok {
			contract = &c
		}
	}

	contractID := ""
	if contract != nil {
		contractID = contract.ContractID
	}
	g.logAttempt("SUBMIT", funcName, req.Category, false, map[string]any{"contract_id": contractID})

	taskID := req.TaskID
	if taskID == "" {
		taskID = "unknown"
	}
	passed, report := g.verifier.VerifyAllStages(ctx, req.Code, req.Category, funcName, contract, req.RealData)
	if !passed {
		g.logAttempt("VERIFICATION_FAILED", funcName, req.Category, false, map[string]any{"final_stage": report.FinalStage.String()})
		return false, nil, report, nil
	}

	register := func() (any, error) {
		return g.register(funcName, req.Code, req.Category, contract, report)
	}

	if !req.Force {
		action := "create_tool"
		if g.toolExists(funcName) {
			action = "modify_tool"
		}
		approved, result, err := g.gatekeeper.Execute(ctx, action, map[string]any{"tool_name": funcName, "category": req.Category}, register)
		if err != nil {
			g.logAttempt("ERROR", funcName, req.Category, false, map[string]any{"error": err.Error()})
			return false, nil, report, err
		}
		if !approved {
			g.logAttempt("GATEKEEPER_DENIED", funcName, req.Category, false, map[string]any{"action": action})
			return false, nil, report, nil
		}
		tool := result.(*model.ToolArtifact)
		g.logAttempt("REGISTERED", funcName, req.Category, true, map[string]any{
			"tool_id": tool.ID, "version": tool.SemanticVersion, "final_stage": report.FinalStage.String(),
		})
		return true, tool, report, nil
	}

	result, err := register()
	if err != nil {
		g.logAttempt("ERROR", funcName, req.Category, false, map[string]any{"error": err.Error()})
		return false, nil, report, err
	}
	tool := result.(*model.ToolArtifact)
	g.logAttempt("REGISTERED", funcName, req.Category, true, map[string]any{
		"tool_id": tool.ID, "version": tool.SemanticVersion, "final_stage": report.FinalStage.String(),
	})
	return true, tool, report, nil
}

func (g *Gateway) register(funcName, code, category string, contract *model.Contract, report *verify.Report) (*model.ToolArtifact, error) {
	perms := []model.Permission{model.PermCalcOnly}
	if category == "fetch" {
		perms = []model.Permission{model.PermNetworkRead, model.PermCalcOnly}
	}

	tool, err := g.registry.Register(registry.RegisterRequest{
		Name:        funcName,
		Code:        code,
		ArgsSchema:  extractArgsSchema(code),
		Permissions: perms,
		Category:    category,
	})
	if err != nil {
		return nil, fmt.Errorf("gateway: register: %w", err)
	}

	contractID := ""
	if contract != nil {
		contractID = contract.ContractID
	}
	if err := g.registry.UpdateSchema(tool.ID, tool.ArgsSchema, contractID, tool.Indicator, tool.DataType); err != nil {
		return nil, fmt.Errorf("gateway: update schema: %w", err)
	}
	if err := g.registry.UpdateVerificationStage(tool.ID, report.FinalStage); err != nil {
		return nil, fmt.Errorf("gateway: update verification stage: %w", err)
	}
	return g.registry.GetByID(tool.ID)
}

func (g *Gateway) toolExists(name string) bool {
	tools, err := g.registry.GetByName(name)
	return err == nil && len(tools) > 0
}

func (g *Gateway) logAttempt(action, toolName, category string, success bool, details map[string]any) {
	if g.trail == nil {
		return
	}
	g.trail.LogAttempt(action, toolName, category, success, details)
}

// VerifyOnly runs verification without registering -- a pre-check before
// committing to a Submit call.
func (g *Gateway) VerifyOnly(ctx context.Context, code, category string, contract *model.Contract, taskID string) (bool, *verify.Report) {
	funcName := extractFuncName(code)
	return g.verifier.VerifyAllStages(ctx, code, category, funcName, contract, nil)
}

// extractArgsSchema parses a Go function's parameter list into a
// name->type-string schema, mirroring gateway.py's AST-based
// _extract_args_schema (there walking Python ast.FunctionDef; here
// go/ast.FuncDecl).
func extractArgsSchema(code string) map[string]string {
	schema := map[string]string{}
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "tool.go", code, 0)
	if err != nil {
		return schema
	}
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Recv != nil {
			continue
		}
		if fn.Type.Params == nil {
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
