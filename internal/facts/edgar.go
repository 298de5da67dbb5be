package facts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/semaphore"
)

// ErrNoData is returned when an upstream has no observations for a
// (company, concept) pair.
var ErrNoData = errors.New("no data available")

const edgarBaseURL = "https://data.sec.gov"

// Observation is one raw reported value before normalization.
type Observation struct {
	Start       time.Time
	End         time.Time
	Value       float64
	Unit        string
	AccessionID string
	Form        string // "10-Q", "10-K", ...
	FiscalPer   string // "Q1".."Q4", "FY"
}

// EdgarClient fetches company-concept observations from the SEC's
// structured-data API. Outbound concurrency is capped because the SEC
// rate-limits aggressively and expects a descriptive User-Agent.
type EdgarClient struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	sem        *semaphore.Weighted
	logger     *slog.Logger
}

// NewEdgarClient creates an EDGAR client with the given concurrency cap.
func NewEdgarClient(userAgent string, maxConcurrent int64, logger *slog.Logger) *EdgarClient {
	return &EdgarClient{
		httpClient: &http.Client{Timeout: 20 * time.Second},
		baseURL:    edgarBaseURL,
		userAgent:  userAgent,
		sem:        semaphore.NewWeighted(maxConcurrent),
		logger:     logger.With("component", "edgar"),
	}
}

// CompanyConcept fetches every reported Observation of one us-gaap tag
// for one company. Returns ErrNoData on 404 (the filer never reported
// the tag).
func (c *EdgarClient) CompanyConcept(ctx context.Context, cik, tag string) ([]Observation, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.sem.Release(1)

	url := fmt.Sprintf("%s/api/xbrl/companyconcept/CIK%s/us-gaap/%s.json", c.baseURL, cik, tag)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("edgar request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s has no %s", ErrNoData, cik, tag)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("edgar status %d for %s/%s", resp.StatusCode, cik, tag)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("edgar read: %w", err)
	}
	return c.parseCompanyConcept(body)
}

// parseCompanyConcept flattens the units map into observations. The
// response nests arrays per unit ("USD", "USD/shares", "shares").
func (c *EdgarClient) parseCompanyConcept(body []byte) ([]Observation, error) {
	units := gjson.GetBytes(body, "units")
	if !units.Exists() {
		return nil, fmt.Errorf("edgar response missing units")
	}

	var obs []Observation
	units.ForEach(func(unit, entries gjson.Result) bool {
		entries.ForEach(func(_, entry gjson.Result) bool {
			o := Observation{
				Value:       entry.Get("val").Float(),
				Unit:        unit.String(),
				AccessionID: entry.Get("accn").String(),
				Form:        entry.Get("form").String(),
				FiscalPer:   entry.Get("fp").String(),
			}
			o.End = parseEdgarDate(entry.Get("end").String())
			if o.End.IsZero() {
				return true
			}
			if start := entry.Get("start"); start.Exists() {
				o.Start = parseEdgarDate(start.String())
			}
			obs = append(obs, o)
			return true
		})
		return true
	})

	if len(obs) == 0 {
		return nil, ErrNoData
	}
	return obs, nil
}

func parseEdgarDate(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}
	}
	return t
}
