package service

import (
	"regexp"
	"strings"
)

// Tool names reported in QueryResponse.ToolsUsed.
const (
	ToolFinance   = "finance"
	ToolPapers    = "papers"
	ToolWebSearch = "websearch"
)

// queryIntent is the parsed routing decision for one question.
type queryIntent struct {
	Finance   bool
	Papers    bool
	WebSearch bool

	Ticker  string // candidate identifier, unvalidated
	Metrics []string
	Period  string
	Quote   bool // asking for a market price rather than a filing metric
}

var (
	cashtagRe     = regexp.MustCompile(`\$([A-Za-z]{1,5})\b`)
	upperTokenRe  = regexp.MustCompile(`\b[A-Z]{2,5}\b`)
	quarterRefRe  = regexp.MustCompile(`\b(\d{4})[-\s]?[Qq]([1-4])\b`)
	quarterAltRe  = regexp.MustCompile(`\b[Qq]([1-4])[-\s]?(\d{4})\b`)
	bareYearRe    = regexp.MustCompile(`\b(19[89]\d|20\d{2})\b`)
	fiscalNoiseRe = regexp.MustCompile(`(?i)\bfy\s?(\d{4})\b`)
)

// metricKeywords maps question phrasing to metric names. Longer phrases
// are checked before their substrings.
var metricKeywords = []struct {
	phrase string
	metric string
}{
	{"gross margin", "grossMargin"},
	{"gross profit", "grossProfit"},
	{"operating margin", "operatingMargin"},
	{"net margin", "netMargin"},
	{"profit margin", "netMargin"},
	{"free cash flow", "freeCashFlow"},
	{"operating cash flow", "operatingCashFlow"},
	{"cash flow", "operatingCashFlow"},
	{"capital expenditure", "capitalExpenditures"},
	{"capex", "capitalExpenditures"},
	{"debt to equity", "debtToEquity"},
	{"debt-to-equity", "debtToEquity"},
	{"earnings per share", "epsDiluted"},
	{"eps", "epsDiluted"},
	{"net income", "netIncome"},
	{"operating income", "operatingIncome"},
	{"cost of revenue", "costOfRevenue"},
	{"cost of goods", "costOfRevenue"},
	{"total assets", "totalAssets"},
	{"total liabilities", "totalLiabilities"},
	{"shareholder equity", "totalEquity"},
	{"stockholders equity", "totalEquity"},
	{"revenue", "revenue"},
	{"sales", "revenue"},
	{"earnings", "netIncome"},
	{"profit", "netIncome"},
}

var paperKeywords = []string{
	"paper", "papers", "study", "studies", "research", "publication",
	"journal", "literature", "citation", "cited", "arxiv", "preprint",
	"peer-reviewed", "peer reviewed", "survey",
}

var quoteKeywords = []string{
	"stock price", "share price", "price of", "trading at", "quote",
	"market price", "market cap",
}

// tickerStopwords are uppercase tokens that look like tickers but are
// almost always ordinary words or units in questions.
var tickerStopwords = map[string]bool{
	"USD": true, "EPS": true, "CEO": true, "CFO": true, "SEC": true,
	"API": true, "LLM": true, "AI": true, "GAAP": true, "YOY": true,
	"FY": true, "USA": true, "ETF": true, "IPO": true, "THE": true,
	"WHAT": true, "HOW": true, "WHY": true,
}

// tickerValidator reports whether a candidate resolves to a known
// company; satisfied by the fact store.
type tickerValidator interface {
	ValidTicker(identifier string) bool
}

// classifyQuery decides which tools a question needs. A question that
// matches nothing specific falls through to web search.
func classifyQuery(question string, symbols tickerValidator) queryIntent {
	lower := strings.ToLower(question)
	intent := queryIntent{Period: "latest"}

	intent.Ticker = extractTicker(question, symbols)
	intent.Metrics = extractMetrics(lower)
	intent.Period = extractPeriod(question)
	intent.Quote = containsAny(lower, quoteKeywords)

	if intent.Ticker != "" && (len(intent.Metrics) > 0 || intent.Quote) {
		intent.Finance = true
	}
	if containsAny(lower, paperKeywords) {
		intent.Papers = true
	}
	if !intent.Finance && !intent.Papers {
		intent.WebSearch = true
	}
	return intent
}

func extractTicker(question string, symbols tickerValidator) string {
	if m := cashtagRe.FindStringSubmatch(question); m != nil {
		return strings.ToUpper(m[1])
	}
	for _, token := range upperTokenRe.FindAllString(question, -1) {
		if tickerStopwords[token] {
			continue
		}
		if symbols.ValidTicker(token) {
			return token
		}
	}
	// Company names: try progressively shorter word windows so
	// "Apple's revenue" still resolves.
	words := strings.Fields(strings.Trim(question, "?!. "))
	for size := 3; size >= 1; size-- {
		for i := 0; i+size <= len(words); i++ {
			candidate := strings.Trim(strings.Join(words[i:i+size], " "), "'s,?!.")
			candidate = strings.TrimSuffix(candidate, "'s")
			if len(candidate) < 3 {
				continue
			}
			if symbols.ValidTicker(candidate) {
				return candidate
			}
		}
	}
	return ""
}

func extractMetrics(lower string) []string {
	var out []string
	seen := make(map[string]bool)
	remaining := lower
	for _, kw := range metricKeywords {
		if strings.Contains(remaining, kw.phrase) && !seen[kw.metric] {
			seen[kw.metric] = true
			out = append(out, kw.metric)
			// Blank the phrase so "gross margin" doesn't also match "margin".
			remaining = strings.ReplaceAll(remaining, kw.phrase, " ")
		}
	}
	return out
}

func extractPeriod(question string) string {
	question = fiscalNoiseRe.ReplaceAllString(question, "$1")
	if m := quarterRefRe.FindStringSubmatch(question); m != nil {
		return m[1] + "-Q" + m[2]
	}
	if m := quarterAltRe.FindStringSubmatch(question); m != nil {
		return m[2] + "-Q" + m[1]
	}
	if m := bareYearRe.FindStringSubmatch(question); m != nil {
		return m[1]
	}
	return "latest"
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
