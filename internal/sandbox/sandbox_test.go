package sandbox

import (
	"context"
	"testing"

	"finevo/internal/constraints"
)

const calcRSICode = `package main

func Run(args map[string]interface{}) (interface{}, error) {
	return 55.5, nil
}
`

const bannedImportCode = `package main

import "os/exec"

func Run(args map[string]interface{}) (interface{}, error) {
	exec.Command("ls").Run()
	return nil, nil
}
`

const noFuncCode = `package main

var x = 1
`

const suspiciousStringLiteralCode = `package main

func Run(args map[string]interface{}) (interface{}, error) {
	fn := "eval"
	_ = fn
	return nil, nil
}
`

func TestStaticCheckPassesAllowedCode(t *testing.T) {
	c := constraints.Default()
	res := StaticCheck(calcRSICode, "calculation", c)
	if !res.Passed {
		t.Errorf("expected calcRSICode to pass, violations: %v", res.Violations)
	}
	if len(res.Functions) != 1 || res.Functions[0] != "Run" {
		t.Errorf("expected Run to be discovered, got %v", res.Functions)
	}
}

func TestStaticCheckRejectsBannedImport(t *testing.T) {
	c := constraints.Default()
	res := StaticCheck(bannedImportCode, "calculation", c)
	if res.Passed {
		t.Error("expected os/exec import to be rejected")
	}
}

func TestStaticCheckRejectsImportOutsideAllowList(t *testing.T) {
	c := constraints.Default()
	code := "package main\n\nimport \"net/http\"\n\nfunc Run(args map[string]interface{}) (interface{}, error) {\n\thttp.Get(\"x\")\n\treturn nil, nil\n}\n"
	res := StaticCheck(code, "calculation", c)
	if res.Passed {
		t.Error("expected net/http to be rejected for the calculation category")
	}
}

func TestStaticCheckAllowsNetHTTPForFetchCategory(t *testing.T) {
	c := constraints.Default()
	code := "package main\n\nimport \"net/http\"\n\nfunc Run(args map[string]interface{}) (interface{}, error) {\n\thttp.Get(\"x\")\n\treturn nil, nil\n}\n"
	res := StaticCheck(code, "fetch", c)
	if !res.Passed {
		t.Errorf("expected net/http to be allowed for fetch category, violations: %v", res.Violations)
	}
}

func TestStaticCheckRejectsCodeWithNoFunctions(t *testing.T) {
	c := constraints.Default()
	res := StaticCheck(noFuncCode, "calculation", c)
	if res.Passed {
		t.Error("expected code with no function declarations to fail")
	}
}

func TestStaticCheckRejectsSuspiciousStringLiteral(t *testing.T) {
	c := constraints.Default()
	res := StaticCheck(suspiciousStringLiteralCode, "calculation", c)
	if res.Passed {
		t.Error("expected a string literal naming a banned call to be rejected")
	}
}

func TestStaticCheckRejectsSyntaxError(t *testing.T) {
	c := constraints.Default()
	res := StaticCheck("this is not go code {{{", "calculation", c)
	if res.Passed {
		t.Error("expected a syntax error to fail the static check")
	}
}

func TestNewDefaultsNilConstraints(t *testing.T) {
	exec := New(nil)
	res, err := exec.Run(context.Background(), calcRSICode, "calculation", nil)
	if err != nil {
		t.Fatalf("expected nil constraints to fall back to a working default, got %v", err)
	}
	if res.Output != 55.5 {
		t.Errorf("expected Run to return 55.5, got %v", res.Output)
	}
}

func TestRunExecutesAcceptedCode(t *testing.T) {
	exec := New(constraints.Default())
	res, err := exec.Run(context.Background(), calcRSICode, "calculation", map[string]any{})
	if err != nil {
		t.Fatal(err)
	}
	if res.ExitCode != 0 {
		t.Errorf("expected exit code 0, got %d", res.ExitCode)
	}
	if res.Output != 55.5 {
		t.Errorf("expected 55.5, got %v", res.Output)
	}
}

func TestRunRejectsStaticallyBannedCode(t *testing.T) {
	exec := New(constraints.Default())
	_, err := exec.Run(context.Background(), bannedImportCode, "calculation", nil)
	if err == nil {
		t.Fatal("expected banned import to be rejected before execution")
	}
}
