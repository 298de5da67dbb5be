package facts

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/veriscope/veriscope-api/internal/config"
	"github.com/veriscope/veriscope-api/internal/models"
)

// conceptFetcher is the upstream seam; satisfied by *EdgarClient and by
// test fakes.
type conceptFetcher interface {
	CompanyConcept(ctx context.Context, cik, tag string) ([]Observation, error)
}

// oldDataAge marks observations older than this as OLD_DATA.
const oldDataAge = 2 * 365 * 24 * time.Hour

// staleRetention keeps expired cache entries around so they can be
// served with a STALE_CACHE flag when a refresh fails.
const staleRetention = 7 * 24 * time.Hour

type cacheEntry struct {
	facts     []*models.Fact
	fetchedAt time.Time
}

// Store caches normalized facts per (ticker, concept) with a TTL.
// Concurrent misses for the same pair are collapsed into one upstream
// fetch; observations whose duration falls outside the configured
// quarterly/annual bands are discarded at ingest so year-to-date values
// never masquerade as quarters.
type Store struct {
	fetcher conceptFetcher
	symbols *SymbolMap
	ttl     time.Duration

	qMin, qMax int
	aMin, aMax int

	mu    sync.RWMutex
	cache map[string]*cacheEntry
	group singleflight.Group

	logger *slog.Logger
	now    func() time.Time
}

// NewStore creates a fact store over the given fetcher and symbol map.
func NewStore(cfg *config.Config, fetcher conceptFetcher, symbols *SymbolMap, logger *slog.Logger) *Store {
	return &Store{
		fetcher: fetcher,
		symbols: symbols,
		ttl:     cfg.FactCacheTTL,
		qMin:    cfg.QuarterMinDays,
		qMax:    cfg.QuarterMaxDays,
		aMin:    cfg.AnnualMinDays,
		aMax:    cfg.AnnualMaxDays,
		cache:   make(map[string]*cacheEntry),
		logger:  logger.With("component", "fact-store"),
		now:     time.Now,
	}
}

// Resolve exposes symbol resolution to callers that only need the
// canonical ticker.
func (s *Store) Resolve(identifier string) (Company, error) {
	return s.symbols.Resolve(identifier)
}

// ValidTicker reports whether an identifier resolves to a known company.
func (s *Store) ValidTicker(identifier string) bool {
	_, err := s.symbols.Resolve(identifier)
	return err == nil
}

// Lookup returns the fact for (identifier, concept, period) plus any
// quality flags. period is "latest", "YYYY-Qn", or "YYYY".
func (s *Store) Lookup(ctx context.Context, identifier, concept, period string) (*models.Fact, []string, error) {
	company, err := s.symbols.Resolve(identifier)
	if err != nil {
		return nil, nil, err
	}
	want, err := ParsePeriod(period)
	if err != nil {
		return nil, nil, err
	}

	facts, flags, err := s.factsFor(ctx, company, concept)
	if err != nil {
		return nil, nil, err
	}

	fact, selFlags, err := s.selectFact(facts, want)
	if err != nil {
		return nil, nil, err
	}
	return fact, append(flags, selFlags...), nil
}

// factsFor returns the cached fact set for (ticker, concept), fetching
// on miss or expiry. A failed refresh falls back to the expired entry
// with a STALE_CACHE flag rather than failing the request.
func (s *Store) factsFor(ctx context.Context, company Company, concept string) ([]*models.Fact, []string, error) {
	key := company.Ticker + "/" + concept

	s.mu.RLock()
	entry := s.cache[key]
	s.mu.RUnlock()

	if entry != nil && s.now().Sub(entry.fetchedAt) < s.ttl {
		return entry.facts, nil, nil
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		facts, err := s.fetch(ctx, company, concept)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.cache[key] = &cacheEntry{facts: facts, fetchedAt: s.now()}
		s.mu.Unlock()
		return facts, nil
	})
	if err != nil {
		if entry != nil {
			s.logger.Warn("serving stale facts after refresh failure",
				"ticker", company.Ticker,
				"concept", concept,
				"age", s.now().Sub(entry.fetchedAt).String(),
				"error", err,
			)
			return entry.facts, []string{models.FlagStaleCache}, nil
		}
		return nil, nil, err
	}
	return v.([]*models.Fact), nil, nil
}

// fetch pulls observations for the first concept tag the filer reports
// and normalizes them into facts.
func (s *Store) fetch(ctx context.Context, company Company, concept string) ([]*models.Fact, error) {
	spec, err := LookupConcept(concept)
	if err != nil {
		return nil, err
	}

	var lastErr error = ErrNoData
	for _, tag := range spec.Tags {
		obs, err := s.fetcher.CompanyConcept(ctx, company.CIK, tag)
		if err != nil {
			lastErr = err
			continue
		}
		facts := s.normalize(company.Ticker, concept, spec, obs)
		if len(facts) > 0 {
			return facts, nil
		}
	}
	return nil, fmt.Errorf("concept %s for %s: %w", concept, company.Ticker, lastErr)
}

// normalize converts raw observations into facts, classifying each by
// duration band and dropping anything outside both bands. Restated
// values for the same date range keep only the most recent filing.
func (s *Store) normalize(ticker, concept string, spec conceptSpec, obs []Observation) []*models.Fact {
	type rangeKey struct{ start, end string }
	seen := make(map[rangeKey]*models.Fact)
	dropped := 0

	for _, o := range obs {
		var freq models.Frequency
		if spec.Instant {
			// Balance-sheet points carry no duration; cadence comes
			// from the filing form.
			if o.FiscalPer == "FY" {
				freq = models.FreqAnnual
			} else {
				freq = models.FreqQuarterly
			}
			o.Start = o.End
		} else {
			days := int(o.End.Sub(o.Start).Hours() / 24)
			switch {
			case days >= s.qMin && days <= s.qMax:
				freq = models.FreqQuarterly
			case days >= s.aMin && days <= s.aMax:
				freq = models.FreqAnnual
			default:
				// Year-to-date or otherwise odd duration.
				dropped++
				continue
			}
		}

		fact := &models.Fact{
			Ticker:      ticker,
			Concept:     concept,
			Value:       o.Value,
			Unit:        o.Unit,
			PeriodLabel: LabelFor(o.End, freq),
			PeriodStart: o.Start,
			PeriodEnd:   o.End,
			AccessionID: o.AccessionID,
			Source:      "sec-edgar",
			Frequency:   freq,
		}
		// Later entries for the same range are restatements; keep them.
		seen[rangeKey{o.Start.Format("2006-01-02"), o.End.Format("2006-01-02")}] = fact
	}

	facts := make([]*models.Fact, 0, len(seen))
	for _, f := range seen {
		facts = append(facts, f)
	}
	// A 10-K routinely reports FY and Q4 ending on the same date, and
	// the slice above comes out of a map, so ties need a total order:
	// annual sorts before quarterly on a shared end so the quarter wins
	// "latest", and the accession id settles anything left.
	sort.Slice(facts, func(i, j int) bool {
		if !facts[i].PeriodEnd.Equal(facts[j].PeriodEnd) {
			return facts[i].PeriodEnd.Before(facts[j].PeriodEnd)
		}
		if facts[i].Frequency != facts[j].Frequency {
			return facts[i].Frequency == models.FreqAnnual
		}
		return facts[i].AccessionID < facts[j].AccessionID
	})

	if dropped > 0 {
		s.logger.Debug("dropped out-of-band observations",
			"ticker", ticker, "concept", concept, "dropped", dropped, "kept", len(facts))
	}
	return facts
}

// selectFact picks the fact matching the requested period. A request
// for a specific period that resolves to a different one gets a
// PERIOD_MISMATCH flag; anything ending more than two years ago gets
// OLD_DATA.
func (s *Store) selectFact(facts []*models.Fact, want Period) (*models.Fact, []string, error) {
	if len(facts) == 0 {
		return nil, nil, ErrNoData
	}

	var pick *models.Fact
	var flags []string

	if want.Latest {
		// Prefer the newest quarter: a cumulative annual value sharing
		// its period end with Q4 must not shadow the quarter. Concepts
		// filed only annually fall back to the newest fact of any
		// frequency.
		pick = latestOfFrequency(facts, models.FreqQuarterly)
		if pick == nil {
			pick = facts[len(facts)-1]
		}
	} else {
		candidates := facts
		if want.Frequency != "" {
			candidates = nil
			for _, f := range facts {
				if f.Frequency == want.Frequency {
					candidates = append(candidates, f)
				}
			}
		}
		if len(candidates) == 0 {
			return nil, nil, ErrNoData
		}
		// Exact label first, then the nearest period end. Fiscal years
		// offset from the calendar land on the nearest range.
		best := candidates[0]
		bestDist := absDuration(best.PeriodEnd.Sub(want.End))
		for _, f := range candidates[1:] {
			if f.PeriodLabel == want.Label {
				best, bestDist = f, 0
				break
			}
			if d := absDuration(f.PeriodEnd.Sub(want.End)); d < bestDist {
				best, bestDist = f, d
			}
		}
		if bestDist > matchTolerance(want.Frequency) {
			return nil, nil, fmt.Errorf("period %s: %w", want.Label, ErrNoData)
		}
		pick = best
		if pick.PeriodLabel != want.Label {
			flags = append(flags, models.FlagPeriodMismatch)
		}
	}

	if s.now().Sub(pick.PeriodEnd) > oldDataAge {
		flags = append(flags, models.FlagOldData)
	}
	return pick, flags, nil
}

// matchTolerance bounds how far a fiscal period may drift from the
// requested calendar range before it stops counting as a match.
func matchTolerance(freq models.Frequency) time.Duration {
	if freq == models.FreqAnnual {
		return 183 * 24 * time.Hour
	}
	return 46 * 24 * time.Hour
}

// latestOfFrequency returns the newest fact with the given frequency,
// or nil. facts must be sorted by period end.
func latestOfFrequency(facts []*models.Fact, freq models.Frequency) *models.Fact {
	for i := len(facts) - 1; i >= 0; i-- {
		if facts[i].Frequency == freq {
			return facts[i]
		}
	}
	return nil
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// Sweep evicts entries expired past the stale-retention window.
// Returns the number of entries removed.
func (s *Store) Sweep() int {
	cutoff := s.now().Add(-(s.ttl + staleRetention))
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, entry := range s.cache {
		if entry.fetchedAt.Before(cutoff) {
			delete(s.cache, key)
			removed++
		}
	}
	return removed
}

// CacheSize reports the number of live cache entries.
func (s *Store) CacheSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}
