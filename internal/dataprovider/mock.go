package dataprovider

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"sync"
	"time"
)

// MockProvider is a deterministic DataProvider backed by synthetic,
// symbol-seeded data -- no network calls, same output every run for the
// same inputs. Adapted from mock_adapter.py's MockAdapter: canned
// overrides take priority, then a random-walk OHLCV generator seeded from
// a hash of the symbol.
type MockProvider struct {
	mu      sync.Mutex
	canned  map[string]any
	calls   []CallRecord
}

// CallRecord is one logged method invocation, mirroring MockAdapter's
// call log used by tests to assert on interaction patterns.
type CallRecord struct {
	Method string
	Args   map[string]any
}

// NewMockProvider creates a MockProvider with optional canned responses,
// keyed "method:symbol" (e.g. "get_historical:TEST").
func NewMockProvider(canned map[string]any) *MockProvider {
	if canned == nil {
		canned = map[string]any{}
	}
	return &MockProvider{canned: canned}
}

func (m *MockProvider) logCall(method string, args map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, CallRecord{Method: method, Args: args})
}

// CallLog returns every logged call, in order.
func (m *MockProvider) CallLog() []CallRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CallRecord, len(m.calls))
	copy(out, m.calls)
	return out
}

// ClearCallLog discards the call log.
func (m *MockProvider) ClearCallLog() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

func symbolSeed(symbol string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(symbol))
	return int64(h.Sum64())
}

func tradingDays(start, end string) []time.Time {
	startDt, err1 := time.Parse("2006-01-02", start)
	endDt, err2 := time.Parse("2006-01-02", end)
	if err1 != nil || err2 != nil || endDt.Before(startDt) {
		return nil
	}
	var days []time.Time
	for d := startDt; !d.After(endDt); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			days = append(days, d)
		}
	}
	return days
}

func (m *MockProvider) generateOHLCV(symbol, start, end string) []OHLCVBar {
	dates := tradingDays(start, end)
	if len(dates) == 0 {
		return nil
	}
	rng := rand.New(rand.NewSource(symbolSeed(symbol)))
	const basePrice = 100.0

	bars := make([]OHLCVBar, len(dates))
	logPrice := 0.0
	for i, d := range dates {
		ret := rng.NormFloat64()*0.02 + 0.001
		logPrice += ret
		close := basePrice * math.Exp(logPrice)
		open := close * (1 + (rng.Float64()*0.02 - 0.01))
		high := close * (1 + rng.Float64()*0.02)
		low := close * (1 - rng.Float64()*0.02)
		volume := int64(1_000_000 + rng.Intn(9_000_000))
		bars[i] = OHLCVBar{
			Date: d.Format("2006-01-02"), Open: open, High: high, Low: low, Close: close, Volume: volume,
		}
	}
	return bars
}

func (m *MockProvider) GetHistorical(ctx context.Context, symbol, start, end, interval string) ([]OHLCVBar, error) {
	m.logCall("get_historical", map[string]any{"symbol": symbol, "start": start, "end": end, "interval": interval})
	if v, ok := m.canned[fmt.Sprintf("get_historical:%s", symbol)]; ok {
		return v.([]OHLCVBar), nil
	}
	return m.generateOHLCV(symbol, start, end), nil
}

func (m *MockProvider) GetQuote(ctx context.Context, symbol string) (Quote, error) {
	m.logCall("get_quote", map[string]any{"symbol": symbol})
	if v, ok := m.canned[fmt.Sprintf("get_quote:%s", symbol)]; ok {
		return v.(Quote), nil
	}
	rng := rand.New(rand.NewSource(symbolSeed(symbol)))
	price := 100 + rng.Float64()*80-20
	return Quote{
		Symbol:        symbol,
		Price:         math.Round(price*100) / 100,
		Volume:        int64(1_000_000 + rng.Intn(9_000_000)),
		MarketCap:     int64(price * float64(100_000_000+rng.Intn(9_900_000_000))),
		PreviousClose: math.Round(price*(1+(rng.Float64()*0.04-0.02))*100) / 100,
	}, nil
}

func (m *MockProvider) GetFinancialInfo(ctx context.Context, symbol string) ([]FinancialPeriod, error) {
	m.logCall("get_financial_info", map[string]any{"symbol": symbol})
	if v, ok := m.canned[fmt.Sprintf("get_financial_info:%s", symbol)]; ok {
		return v.([]FinancialPeriod), nil
	}
	rng := rand.New(rand.NewSource(symbolSeed(symbol)))
	periods := []string{"2023-12-31", "2022-12-31", "2021-12-31"}
	revenueBase := 1e9 + rng.Float64()*(1e11-1e9)

	out := make([]FinancialPeriod, len(periods))
	for i, p := range periods {
		growth := math.Pow(1.1, float64(i))
		out[i] = FinancialPeriod{
			Period:          p,
			TotalRevenue:    revenueBase * growth,
			NetIncome:       revenueBase * 0.1 * growth,
			OperatingIncome: revenueBase * 0.15 * growth,
		}
	}
	return out, nil
}

func (m *MockProvider) GetMultiHistorical(ctx context.Context, symbols []string, start, end, interval string) (map[string][]OHLCVBar, error) {
	m.logCall("get_multi_historical", map[string]any{"symbols": symbols, "start": start, "end": end, "interval": interval})
	result := make(map[string][]OHLCVBar, len(symbols))
	for _, s := range symbols {
		bars, err := m.GetHistorical(ctx, s, start, end, interval)
		if err != nil {
			return nil, err
		}
		result[s] = bars
	}
	return result, nil
}

func (m *MockProvider) GetRecentDividends(ctx context.Context, symbol string, limit int) ([]Dividend, error) {
	m.logCall("get_recent_dividends", map[string]any{"symbol": symbol, "limit": limit})
	if v, ok := m.canned[fmt.Sprintf("get_recent_dividends:%s", symbol)]; ok {
		return v.([]Dividend), nil
	}
	if limit <= 0 {
		limit = 4
	}
	rng := rand.New(rand.NewSource(symbolSeed(symbol)))
	out := make([]Dividend, limit)
	base := time.Now().AddDate(0, -3*limit, 0)
	for i := range out {
		out[i] = Dividend{
			Date:   base.AddDate(0, 3*i, 0).Format("2006-01-02"),
			Amount: math.Round((0.2+rng.Float64()*0.6)*100) / 100,
		}
	}
	return out, nil
}
