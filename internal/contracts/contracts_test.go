package contracts

import "testing"

func TestByTaskIDAndByID(t *testing.T) {
	c, ok := ByTaskID("calc_001")
	if !ok || c.ContractID != "calc_rsi" {
		t.Fatalf("expected calc_001 to map to calc_rsi, got %+v ok=%v", c, ok)
	}
	if _, ok := ByTaskID("not_a_real_task"); ok {
		t.Error("expected an unknown task id to not resolve")
	}
	c2, ok := ByID("calc_bollinger")
	if !ok || c2.Category != "calculation" {
		t.Errorf("unexpected contract for calc_bollinger: %+v", c2)
	}
}

func TestInferFromQueryCalculation(t *testing.T) {
	cases := map[string]string{
		"What is the RSI for AAPL?":               "calc_rsi",
		"Calculate the Bollinger bands for NVDA":   "calc_bollinger",
		"Show me the MACD for MSFT":                "calc_macd",
		"What is the historical volatility?":       "calc_volatility",
		"Compute the KDJ indicator":                "calc_kdj",
		"What is the max drawdown for this stock?": "calc_drawdown",
		"What is the correlation between A and B?": "calc_correlation",
	}
	for q, want := range cases {
		c, ok := InferFromQuery(q, "calculation")
		if !ok {
			t.Errorf("expected a match for %q", q)
			continue
		}
		if c.ContractID != want {
			t.Errorf("query %q: expected %s, got %s", q, want, c.ContractID)
		}
	}
}

func TestInferFromQueryFetchDefaultsToPrice(t *testing.T) {
	c, ok := InferFromQuery("Get the closing price history for AAPL", "fetch")
	if !ok || c.ContractID != "fetch_price" {
		t.Errorf("expected fetch_price fallback, got %+v ok=%v", c, ok)
	}
	c2, ok := InferFromQuery("What is the net income for AAPL?", "fetch")
	if !ok || c2.ContractID != "fetch_financial" {
		t.Errorf("expected fetch_financial, got %+v ok=%v", c2, ok)
	}
}

func TestInferFromQueryComposite(t *testing.T) {
	c, ok := InferFromQuery("Return true if the RSI and volume diverge", "composite")
	if !ok || c.ContractID != "comp_divergence" {
		t.Errorf("expected comp_divergence, got %+v ok=%v", c, ok)
	}
}

func TestInferFromQueryNoMatchReturnsFalse(t *testing.T) {
	if _, ok := InferFromQuery("this matches nothing in particular", "calculation"); ok {
		t.Error("expected no match for an unrelated calculation query")
	}
}

func TestValidateNumericRange(t *testing.T) {
	c, _ := ByID("calc_rsi")
	if err := Validate(c, 55.5); err != nil {
		t.Errorf("expected 55.5 to satisfy calc_rsi contract, got %v", err)
	}
	if err := Validate(c, 150.0); err == nil {
		t.Error("expected 150.0 to violate calc_rsi's max of 100")
	}
	if err := Validate(c, "not a number"); err == nil {
		t.Error("expected a non-numeric value to fail validation")
	}
}

func TestValidateDictRequiredKeys(t *testing.T) {
	c, _ := ByID("calc_bollinger")
	ok := map[string]any{"upper": 1.0, "middle": 2.0, "lower": 3.0}
	if err := Validate(c, ok); err != nil {
		t.Errorf("expected all required keys present to pass, got %v", err)
	}
	missing := map[string]any{"upper": 1.0}
	if err := Validate(c, missing); err == nil {
		t.Error("expected missing required keys to fail validation")
	}
}

func TestValidateBoolean(t *testing.T) {
	c, _ := ByID("comp_signal")
	if err := Validate(c, true); err != nil {
		t.Errorf("expected bool to satisfy comp_signal, got %v", err)
	}
	if err := Validate(c, "true"); err == nil {
		t.Error("expected a string to fail boolean validation")
	}
}
