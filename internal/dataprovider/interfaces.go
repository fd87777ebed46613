// Package dataprovider defines the financial data access contract used by
// fetch-category tools and the integration verification stage, plus two
// implementations: a deterministic Mock (default, used in tests and when
// no network is configured) and an HTTP adapter. Adapted from
// original_source/src/data/interfaces.py's DataProvider Protocol and
// adapters/mock_adapter.py, generalized from Python's structural Protocol
// typing to an explicit Go interface.
package dataprovider

import "context"

// OHLCVBar is one day of open/high/low/close/volume data.
type OHLCVBar struct {
	Date   string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// Quote is a real-time (or latest-known) market quote.
type Quote struct {
	Symbol         string
	Price          float64
	Volume         int64
	MarketCap      int64
	PreviousClose  float64
}

// FinancialPeriod is one reporting period of financial-statement data.
type FinancialPeriod struct {
	Period           string
	TotalRevenue     float64
	NetIncome        float64
	OperatingIncome  float64
}

// Dividend is one historical dividend payment.
type Dividend struct {
	Date   string
	Amount float64
}

// Provider is the contract every data backend (mock, HTTP) satisfies.
type Provider interface {
	GetHistorical(ctx context.Context, symbol, start, end, interval string) ([]OHLCVBar, error)
	GetQuote(ctx context.Context, symbol string) (Quote, error)
	GetFinancialInfo(ctx context.Context, symbol string) ([]FinancialPeriod, error)
	GetMultiHistorical(ctx context.Context, symbols []string, start, end, interval string) (map[string][]OHLCVBar, error)
	GetRecentDividends(ctx context.Context, symbol string, limit int) ([]Dividend, error)
}
