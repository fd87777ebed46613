package evalharness

import "testing"

func TestNumericMatch(t *testing.T) {
	if !numericMatch(100.5, 100.0, 0.01) {
		t.Fatal("expected 100.5 to match 100.0 within 1% tolerance")
	}
	if numericMatch(110.0, 100.0, 0.01) {
		t.Fatal("expected 110.0 to fail matching 100.0 within 1% tolerance")
	}
	if !numericMatch(0.0000001, 0, 0.01) {
		t.Fatal("expected near-zero actual to match zero expected")
	}
}

func TestListMatchOrderInsensitive(t *testing.T) {
	a := []any{"AAPL", "MSFT"}
	b := []any{"MSFT", "AAPL"}
	if !listMatch(a, b, false) {
		t.Fatal("expected set-equal lists to match when order-insensitive")
	}
	if listMatch(a, b, true) {
		t.Fatal("expected differently-ordered lists to fail order-sensitive match")
	}
}

func TestStructMatch(t *testing.T) {
	actual := map[string]any{"rsi": 55.0, "period": 14.0}
	if !structMatch(actual, []string{"rsi", "period"}) {
		t.Fatal("expected struct match with all required keys present")
	}
	if structMatch(actual, []string{"rsi", "missing"}) {
		t.Fatal("expected struct match to fail when a required key is absent")
	}
}

func TestJudgeResultNumeric(t *testing.T) {
	expected := ExpectedOutput{Type: "numeric", Value: 55.0, Tolerance: 0.05}
	if !judgeResult(56.0, expected) {
		t.Fatal("expected 56.0 to judge as matching 55.0 within 5% tolerance")
	}
	if judgeResult(80.0, expected) {
		t.Fatal("expected 80.0 to judge as not matching 55.0 within 5% tolerance")
	}
}

func TestJudgeResultSecurityBlock(t *testing.T) {
	expected := ExpectedOutput{Type: "security_block"}
	if !judgeResult("BLOCKED", expected) {
		t.Fatal("expected BLOCKED to satisfy a security_block expectation")
	}
	if judgeResult("ok", expected) {
		t.Fatal("expected non-BLOCKED output to fail a security_block expectation")
	}
}

func TestJudgeResultAny(t *testing.T) {
	if !judgeResult(42, ExpectedOutput{Type: "any"}) {
		t.Fatal("expected a non-nil value to satisfy an any-typed expectation")
	}
	if judgeResult(nil, ExpectedOutput{Type: "any"}) {
		t.Fatal("expected nil to fail an any-typed expectation")
	}
}
