// Package facts owns normalized financial observations: fetching them
// from structured upstreams, caching them, and the duration-filtered
// period selection that keeps quarterly values from being confused with
// year-to-date ones.
package facts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ErrUnknownTicker is returned when an identifier resolves to no company.
var ErrUnknownTicker = errors.New("unknown ticker")

// Company is one resolvable issuer.
type Company struct {
	Ticker string
	CIK    string // zero-padded to 10 digits, as EDGAR expects
	Name   string
}

// SymbolMap resolves user-supplied company identifiers (ticker or
// common name) to canonical upstream identifiers. Loaded once at
// startup and immutable afterwards.
type SymbolMap struct {
	byTicker map[string]Company
	byName   map[string]Company
}

// seedCompanies keeps resolution working when the SEC ticker file is
// unreachable at startup.
var seedCompanies = []Company{
	{Ticker: "AAPL", CIK: "0000320193", Name: "Apple Inc."},
	{Ticker: "MSFT", CIK: "0000789019", Name: "Microsoft Corporation"},
	{Ticker: "GOOGL", CIK: "0001652044", Name: "Alphabet Inc."},
	{Ticker: "AMZN", CIK: "0001018724", Name: "Amazon.com, Inc."},
	{Ticker: "META", CIK: "0001326801", Name: "Meta Platforms, Inc."},
	{Ticker: "NVDA", CIK: "0001045810", Name: "NVIDIA Corporation"},
	{Ticker: "TSLA", CIK: "0001318605", Name: "Tesla, Inc."},
	{Ticker: "PLTR", CIK: "0001321655", Name: "Palantir Technologies Inc."},
	{Ticker: "JPM", CIK: "0000019617", Name: "JPMorgan Chase & Co."},
	{Ticker: "BRK-B", CIK: "0001067983", Name: "Berkshire Hathaway Inc."},
	{Ticker: "V", CIK: "0001403161", Name: "Visa Inc."},
	{Ticker: "JNJ", CIK: "0000200406", Name: "Johnson & Johnson"},
	{Ticker: "WMT", CIK: "0000104169", Name: "Walmart Inc."},
	{Ticker: "XOM", CIK: "0000034088", Name: "Exxon Mobil Corporation"},
	{Ticker: "KO", CIK: "0000021344", Name: "The Coca-Cola Company"},
	{Ticker: "NFLX", CIK: "0001065280", Name: "Netflix, Inc."},
	{Ticker: "AMD", CIK: "0000002488", Name: "Advanced Micro Devices, Inc."},
	{Ticker: "INTC", CIK: "0000050863", Name: "Intel Corporation"},
	{Ticker: "ORCL", CIK: "0001341439", Name: "Oracle Corporation"},
	{Ticker: "IBM", CIK: "0000051143", Name: "International Business Machines Corporation"},
}

// NewSymbolMap builds a symbol map from the built-in seed table.
func NewSymbolMap() *SymbolMap {
	m := &SymbolMap{
		byTicker: make(map[string]Company),
		byName:   make(map[string]Company),
	}
	for _, c := range seedCompanies {
		m.add(c)
	}
	return m
}

// LoadSymbolMap fetches the SEC company-ticker file and merges it over
// the seed table. Failures leave the seed table in place.
func LoadSymbolMap(ctx context.Context, userAgent string, logger *slog.Logger) *SymbolMap {
	m := NewSymbolMap()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://www.sec.gov/files/company_tickers.json", nil)
	if err != nil {
		return m
	}
	req.Header.Set("User-Agent", userAgent)

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		logger.Warn("symbol map download failed, using seed table", "error", err)
		return m
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		logger.Warn("symbol map download failed, using seed table", "status", resp.StatusCode)
		return m
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return m
	}

	// The SEC file is an object keyed by row number:
	// {"0": {"cik_str": 320193, "ticker": "AAPL", "title": "Apple Inc."}, ...}
	var rows map[string]struct {
		CIK    int64  `json:"cik_str"`
		Ticker string `json:"ticker"`
		Title  string `json:"title"`
	}
	if err := json.Unmarshal(body, &rows); err != nil {
		logger.Warn("symbol map parse failed, using seed table", "error", err)
		return m
	}

	for _, row := range rows {
		m.add(Company{
			Ticker: row.Ticker,
			CIK:    fmt.Sprintf("%010d", row.CIK),
			Name:   row.Title,
		})
	}
	logger.Info("symbol map loaded", "companies", len(m.byTicker))
	return m
}

func (m *SymbolMap) add(c Company) {
	m.byTicker[strings.ToUpper(c.Ticker)] = c
	m.byName[normalizeName(c.Name)] = c
}

// Resolve maps a ticker or common company name to its canonical record.
func (m *SymbolMap) Resolve(identifier string) (Company, error) {
	if c, ok := m.byTicker[strings.ToUpper(strings.TrimSpace(identifier))]; ok {
		return c, nil
	}
	if c, ok := m.byName[normalizeName(identifier)]; ok {
		return c, nil
	}
	return Company{}, fmt.Errorf("%w: %s", ErrUnknownTicker, identifier)
}

// ValidTicker reports whether an identifier resolves to a known company.
func (m *SymbolMap) ValidTicker(identifier string) bool {
	_, err := m.Resolve(identifier)
	return err == nil
}

// normalizeName lowercases and strips corporate suffixes so "Apple" and
// "Apple Inc." resolve to the same record.
func normalizeName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	for _, suffix := range []string{", inc.", " inc.", " inc", " corporation", " corp.", " corp", " company", " co.", " plc", " ltd."} {
		s = strings.TrimSuffix(s, suffix)
	}
	return strings.TrimSuffix(s, ",")
}
