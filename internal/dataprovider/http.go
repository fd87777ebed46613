package dataprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// HTTPProvider is a minimal REST-style DataProvider adapter standing in for
// a real market-data vendor (yfinance/akshare in the original). Adapted
// from yfinance_adapter.py's retry-with-exponential-backoff wrapper, using
// stdlib net/http directly rather than adopting golang.org/x/net (no
// extension of the standard client is needed here).
type HTTPProvider struct {
	baseURL string
	client  *http.Client

	maxAttempts  int
	baseDelay    time.Duration
	maxDelay     time.Duration
	backoffRatio float64
}

// NewHTTPProvider creates an HTTPProvider pointed at baseURL, which must
// expose /historical, /quote, /financials, and /dividends endpoints
// returning the shapes below as JSON.
func NewHTTPProvider(baseURL string, client *http.Client) *HTTPProvider {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPProvider{
		baseURL: baseURL, client: client,
		maxAttempts: 3, baseDelay: time.Second, maxDelay: 10 * time.Second, backoffRatio: 2.0,
	}
}

func (p *HTTPProvider) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := p.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	delay := p.baseDelay
	var lastErr error
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return fmt.Errorf("dataprovider: build request: %w", err)
		}
		resp, err := p.client.Do(req)
		if err != nil {
			lastErr = err
		} else {
			defer resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return json.NewDecoder(resp.Body).Decode(out)
			}
			lastErr = fmt.Errorf("dataprovider: unexpected status %d from %s", resp.StatusCode, u)
		}

		if attempt < p.maxAttempts-1 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay = minDuration(time.Duration(float64(delay)*p.backoffRatio), p.maxDelay)
			continue
		}
	}
	return fmt.Errorf("dataprovider: all %d attempts failed: %w", p.maxAttempts, lastErr)
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func (p *HTTPProvider) GetHistorical(ctx context.Context, symbol, start, end, interval string) ([]OHLCVBar, error) {
	var bars []OHLCVBar
	q := url.Values{"symbol": {symbol}, "start": {start}, "end": {end}, "interval": {interval}}
	if err := p.getJSON(ctx, "/historical", q, &bars); err != nil {
		return nil, err
	}
	return bars, nil
}

func (p *HTTPProvider) GetQuote(ctx context.Context, symbol string) (Quote, error) {
	var q Quote
	if err := p.getJSON(ctx, "/quote", url.Values{"symbol": {symbol}}, &q); err != nil {
		return Quote{}, err
	}
	return q, nil
}

func (p *HTTPProvider) GetFinancialInfo(ctx context.Context, symbol string) ([]FinancialPeriod, error) {
	var periods []FinancialPeriod
	if err := p.getJSON(ctx, "/financials", url.Values{"symbol": {symbol}}, &periods); err != nil {
		return nil, err
	}
	return periods, nil
}

func (p *HTTPProvider) GetMultiHistorical(ctx context.Context, symbols []string, start, end, interval string) (map[string][]OHLCVBar, error) {
	result := make(map[string][]OHLCVBar, len(symbols))
	for _, s := range symbols {
		bars, err := p.GetHistorical(ctx, s, start, end, interval)
		if err != nil {
			return nil, err
		}
		result[s] = bars
	}
	return result, nil
}

func (p *HTTPProvider) GetRecentDividends(ctx context.Context, symbol string, limit int) ([]Dividend, error) {
	var divs []Dividend
	q := url.Values{"symbol": {symbol}, "limit": {fmt.Sprintf("%d", limit)}}
	if err := p.getJSON(ctx, "/dividends", q, &divs); err != nil {
		return nil, err
	}
	return divs, nil
}
