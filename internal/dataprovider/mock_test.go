package dataprovider

import (
	"context"
	"testing"
)

func TestGetHistoricalIsDeterministicPerSymbol(t *testing.T) {
	p1 := NewMockProvider(nil)
	p2 := NewMockProvider(nil)
	bars1, err := p1.GetHistorical(context.Background(), "AAPL", "2023-01-02", "2023-01-13", "1d")
	if err != nil {
		t.Fatal(err)
	}
	bars2, err := p2.GetHistorical(context.Background(), "AAPL", "2023-01-02", "2023-01-13", "1d")
	if err != nil {
		t.Fatal(err)
	}
	if len(bars1) == 0 {
		t.Fatal("expected generated bars for a weekday range")
	}
	if len(bars1) != len(bars2) {
		t.Fatalf("expected the same number of bars across runs, got %d vs %d", len(bars1), len(bars2))
	}
	for i := range bars1 {
		if bars1[i] != bars2[i] {
			t.Errorf("expected identical bar at index %d for the same symbol/seed, got %+v vs %+v", i, bars1[i], bars2[i])
		}
	}
}

func TestGetHistoricalExcludesWeekends(t *testing.T) {
	p := NewMockProvider(nil)
	bars, err := p.GetHistorical(context.Background(), "AAPL", "2023-01-02", "2023-01-08", "1d")
	if err != nil {
		t.Fatal(err)
	}
	// 2023-01-02 is a Monday, 2023-01-08 is a Sunday: 5 trading days.
	if len(bars) != 5 {
		t.Errorf("expected 5 trading days, got %d", len(bars))
	}
}

func TestGetHistoricalHonorsCannedOverride(t *testing.T) {
	override := []OHLCVBar{{Date: "2023-01-02", Close: 42.0}}
	p := NewMockProvider(map[string]any{"get_historical:AAPL": override})
	bars, err := p.GetHistorical(context.Background(), "AAPL", "2023-01-02", "2023-01-10", "1d")
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 1 || bars[0].Close != 42.0 {
		t.Errorf("expected canned override to be returned, got %+v", bars)
	}
}

func TestGetQuoteDeterministicAndWithinSeedRange(t *testing.T) {
	p := NewMockProvider(nil)
	q, err := p.GetQuote(context.Background(), "MSFT")
	if err != nil {
		t.Fatal(err)
	}
	if q.Symbol != "MSFT" {
		t.Errorf("expected symbol MSFT, got %s", q.Symbol)
	}
	// The seeded price is 100 + [0, 80) - 20, i.e. within [80, 160].
	if q.Price < 80 || q.Price > 160 {
		t.Errorf("expected seeded price within [80, 160], got %v", q.Price)
	}
	q2, err := p.GetQuote(context.Background(), "MSFT")
	if err != nil {
		t.Fatal(err)
	}
	if q != q2 {
		t.Error("expected repeated GetQuote calls for the same symbol to be deterministic")
	}
}

func TestGetFinancialInfoReturnsThreePeriods(t *testing.T) {
	p := NewMockProvider(nil)
	periods, err := p.GetFinancialInfo(context.Background(), "AAPL")
	if err != nil {
		t.Fatal(err)
	}
	if len(periods) != 3 {
		t.Fatalf("expected 3 financial periods, got %d", len(periods))
	}
	if periods[0].NetIncome <= 0 {
		t.Error("expected a positive net income")
	}
}

func TestGetMultiHistoricalCoversAllSymbols(t *testing.T) {
	p := NewMockProvider(nil)
	result, err := p.GetMultiHistorical(context.Background(), []string{"AAPL", "MSFT"}, "2023-01-02", "2023-01-06", "1d")
	if err != nil {
		t.Fatal(err)
	}
	if len(result) != 2 {
		t.Fatalf("expected both symbols present, got %v", result)
	}
}

func TestGetRecentDividendsDefaultsLimit(t *testing.T) {
	p := NewMockProvider(nil)
	divs, err := p.GetRecentDividends(context.Background(), "AAPL", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(divs) != 4 {
		t.Errorf("expected default limit of 4, got %d", len(divs))
	}
}

func TestCallLogRecordsInvocations(t *testing.T) {
	p := NewMockProvider(nil)
	_, _ = p.GetQuote(context.Background(), "AAPL")
	_, _ = p.GetHistorical(context.Background(), "AAPL", "2023-01-02", "2023-01-03", "1d")
	log := p.CallLog()
	if len(log) != 2 {
		t.Fatalf("expected 2 logged calls, got %d", len(log))
	}
	if log[0].Method != "get_quote" || log[1].Method != "get_historical" {
		t.Errorf("unexpected call log order: %+v", log)
	}
	p.ClearCallLog()
	if len(p.CallLog()) != 0 {
		t.Error("expected ClearCallLog to empty the log")
	}
}
