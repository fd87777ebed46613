package taskexec

import (
	"regexp"
	"strconv"
	"strings"
)

// symbolExclusions lists common English words that look like ticker
// symbols and must never be mistaken for one. Adapted from
// task_executor.py's SYMBOL_EXCLUSIONS.
var symbolExclusions = map[string]bool{
	"GET": true, "SET": true, "PUT": true, "AND": true, "THE": true, "FOR": true, "NOT": true, "ALL": true, "HAS": true,
	"ADD": true, "SUB": true, "DIV": true, "MUL": true, "MAX": true, "MIN": true, "AVG": true, "SUM": true, "END": true,
	"NEW": true, "OLD": true, "TOP": true, "LOW": true, "NET": true, "DAY": true, "ETF": true, "USA": true, "USD": true,
	"BUY": true, "NOW": true, "USE": true, "OUT": true, "OUR": true, "ANY": true, "CAN": true, "MAY": true, "SAY": true,
	"HOW": true, "WHY": true, "YES": true, "TWO": true, "TEN": true, "ONE": true, "ITS": true,
}

var multiSymbolExclusions = map[string]bool{
	"EQUAL": true, "WEIGHT": true, "RETURN": true, "OVER": true, "LAST": true, "DAYS": true, "PRICE": true,
	"CALCULATE": true, "BETWEEN": true, "PORTFOLIO": true, "CORRELATION": true,
}

// indexSymbolMapping maps a human index name to its ticker symbol.
// Iteration order matters for longest-match-first semantics, so this is
// kept as an ordered slice rather than a map.
var indexSymbolMapping = []struct{ name, symbol string }{
	{"S&P 500", "^GSPC"}, {"S&P500", "^GSPC"}, {"SP500", "^GSPC"}, {"SP 500", "^GSPC"},
	{"DOW JONES", "^DJI"}, {"DOW", "^DJI"}, {"DJIA", "^DJI"},
	{"NASDAQ", "^IXIC"},
	{"RUSSELL 2000", "^RUT"}, {"RUSSELL", "^RUT"},
	{"VIX", "^VIX"},
}

var usTickers = []string{
	"AAPL", "MSFT", "GOOGL", "GOOG", "AMZN", "TSLA", "META", "NVDA", "AMD", "INTC",
	"SPY", "QQQ", "IWM", "DIA", "VOO", "VTI", "GLD", "SLV", "USO", "XLF",
	"NFLX", "PYPL", "CRM", "ADBE", "ORCL", "IBM", "CSCO", "QCOM", "TXN", "AVGO",
}

var tickerPattern = regexp.MustCompile(`\b([A-Z]{2,5})\b`)

// extractSymbol finds the most likely stock symbol in a query: index
// names first, then known tickers, then a regex scan excluding common
// English words, finally defaulting to AAPL. Adapted from
// task_executor.py's extract_symbol.
func extractSymbol(query string) string {
	upper := strings.ToUpper(query)

	for _, m := range indexSymbolMapping {
		if strings.Contains(upper, strings.ToUpper(m.name)) {
			return m.symbol
		}
	}
	for _, t := range usTickers {
		if strings.Contains(upper, t) {
			return t
		}
	}

	matches := tickerPattern.FindAllString(query, -1)
	sortByLenDesc(matches)
	for _, m := range matches {
		if !symbolExclusions[m] {
			return m
		}
	}
	return "AAPL"
}

func sortByLenDesc(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && len(s[j]) > len(s[j-1]); j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

// extractMultipleSymbols finds every distinct symbol referenced in a
// query, for correlation/portfolio tasks. Falls back to single-symbol
// extraction if fewer than two are found.
func extractMultipleSymbols(query string) []string {
	upper := strings.ToUpper(query)
	var symbols []string
	seen := map[string]bool{}

	add := func(s string) {
		if !seen[s] {
			symbols = append(symbols, s)
			seen[s] = true
		}
	}

	for _, m := range indexSymbolMapping {
		if strings.Contains(upper, strings.ToUpper(m.name)) {
			add(m.symbol)
		}
	}
	for _, t := range usTickers {
		if !strings.Contains(upper, t) || seen[t] {
			continue
		}
		isSubstring := false
		for existing := range seen {
			if t != existing && strings.Contains(existing, t) {
				isSubstring = true
				break
			}
		}
		if !isSubstring {
			add(t)
		}
	}

	if len(symbols) < 2 {
		for _, m := range tickerPattern.FindAllString(upper, -1) {
			if seen[m] || symbolExclusions[m] || multiSymbolExclusions[m] {
				continue
			}
			add(m)
		}
	}

	if len(symbols) >= 2 {
		return symbols
	}
	return []string{extractSymbol(query)}
}

// isMultiAssetTask reports whether a query needs more than one symbol's
// data (correlation, portfolio).
func isMultiAssetTask(query string) bool {
	lower := strings.ToLower(query)
	return strings.Contains(lower, "correlation") || strings.Contains(lower, "portfolio")
}

var datePattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

// extractDateRange pulls a start/end date pair out of a query, or
// returns the default 2023 calendar year.
func extractDateRange(query string) (start, end string) {
	dates := datePattern.FindAllString(query, -1)
	switch len(dates) {
	case 0:
		return "2023-01-01", "2023-12-31"
	case 1:
		return dates[0], "2023-12-31"
	default:
		return dates[0], dates[1]
	}
}

var (
	yearPattern    = regexp.MustCompile(`\b(20\d{2})\b`)
	quarterPattern = regexp.MustCompile(`(?i)Q(\d)|(\d)(?:st|nd|rd|th)?\s*quarter`)
	rsiPattern     = regexp.MustCompile(`(?i)RSI[- ]?(\d+)`)
	macdPattern    = regexp.MustCompile(`(?i)MACD\s*\(?\s*(\d+)\s*,\s*(\d+)\s*,\s*(\d+)`)
	bollingerDay   = regexp.MustCompile(`(?i)(\d+)[-\s]*day`)
	genericPeriod  = regexp.MustCompile(`(?i)(\d+)[-\s]*(天|日|day|period)`)
)

// extractTaskParams pulls indicator parameters (period/window/fast-slow-
// signal/etc.) out of a task's free-text query. Adapted from
// task_executor.py's _extract_task_params.
func extractTaskParams(query string) map[string]any {
	params := map[string]any{}

	if m := yearPattern.FindStringSubmatch(query); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			params["year"] = v
		}
	}
	if m := quarterPattern.FindStringSubmatch(query); m != nil {
		q := m[1]
		if q == "" {
			q = m[2]
		}
		if v, err := strconv.Atoi(q); err == nil {
			params["quarter"] = v
		}
	}

	lower := strings.ToLower(query)

	if m := rsiPattern.FindStringSubmatch(query); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			params["period"] = v
		}
	} else if strings.Contains(lower, "rsi") {
		params["period"] = 14
	}

	if m := macdPattern.FindStringSubmatch(query); m != nil {
		fast, _ := strconv.Atoi(m[1])
		slow, _ := strconv.Atoi(m[2])
		signal, _ := strconv.Atoi(m[3])
		params["fast_period"] = fast
		params["slow_period"] = slow
		params["signal_period"] = signal
	} else if strings.Contains(lower, "macd") {
		params["fast_period"] = 12
		params["slow_period"] = 26
		params["signal_period"] = 9
	}

	if strings.Contains(lower, "kdj") {
		params["k_period"] = 9
		params["d_period"] = 3
	}

	if strings.Contains(lower, "bollinger") || strings.Contains(query, "布林") {
		if m := bollingerDay.FindStringSubmatch(lower); m != nil {
			if v, err := strconv.Atoi(m[1]); err == nil {
				params["window"] = v
			}
		} else {
			params["window"] = 20
		}
		params["num_std"] = 2
	}

	if _, hasPeriod := params["period"]; !hasPeriod {
		if _, hasWindow := params["window"]; !hasWindow {
			if m := genericPeriod.FindStringSubmatch(lower); m != nil {
				if v, err := strconv.Atoi(m[1]); err == nil {
					params["period"] = v
				}
			}
		}
	}

	return params
}
