package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/veriscope/veriscope-api/internal/config"
	"github.com/veriscope/veriscope-api/internal/facts"
	"github.com/veriscope/veriscope-api/internal/models"
)

// ErrUnknownMetric is returned for a metric name with no definition.
var ErrUnknownMetric = errors.New("unknown metric")

// metricDef describes one resolvable metric: either a single fact
// concept passed through, or a formula over named inputs.
type metricDef struct {
	concept string // primitive pass-through when set
	inputs  []string
	unit    string // overrides the input unit; "ratio" for margins
	compute func(v map[string]float64) (float64, error)
}

var metricDefs = map[string]metricDef{
	// Primitives.
	"revenue":             {concept: "revenue"},
	"costOfRevenue":       {concept: "costOfRevenue"},
	"netIncome":           {concept: "netIncome"},
	"operatingIncome":     {concept: "operatingIncome"},
	"operatingCashFlow":   {concept: "operatingCashFlow"},
	"capitalExpenditures": {concept: "capitalExpenditures"},
	"epsDiluted":          {concept: "epsDiluted"},
	"totalAssets":         {concept: "totalAssets"},
	"totalLiabilities":    {concept: "totalLiabilities"},
	"totalEquity":         {concept: "totalEquity"},
	"cash":                {concept: "cash"},

	// Computed.
	"grossProfit": {
		inputs: []string{"revenue", "costOfRevenue"},
		compute: func(v map[string]float64) (float64, error) {
			return v["revenue"] - v["costOfRevenue"], nil
		},
	},
	"grossMargin": {
		inputs: []string{"revenue", "costOfRevenue"},
		unit:   "ratio",
		compute: func(v map[string]float64) (float64, error) {
			if v["revenue"] == 0 {
				return 0, fmt.Errorf("revenue is zero")
			}
			return (v["revenue"] - v["costOfRevenue"]) / v["revenue"], nil
		},
	},
	"operatingMargin": {
		inputs: []string{"operatingIncome", "revenue"},
		unit:   "ratio",
		compute: func(v map[string]float64) (float64, error) {
			if v["revenue"] == 0 {
				return 0, fmt.Errorf("revenue is zero")
			}
			return v["operatingIncome"] / v["revenue"], nil
		},
	},
	"netMargin": {
		inputs: []string{"netIncome", "revenue"},
		unit:   "ratio",
		compute: func(v map[string]float64) (float64, error) {
			if v["revenue"] == 0 {
				return 0, fmt.Errorf("revenue is zero")
			}
			return v["netIncome"] / v["revenue"], nil
		},
	},
	"freeCashFlow": {
		inputs: []string{"operatingCashFlow", "capitalExpenditures"},
		compute: func(v map[string]float64) (float64, error) {
			return v["operatingCashFlow"] - v["capitalExpenditures"], nil
		},
	},
	"debtToEquity": {
		inputs: []string{"totalLiabilities", "totalEquity"},
		unit:   "ratio",
		compute: func(v map[string]float64) (float64, error) {
			if v["totalEquity"] == 0 {
				return 0, fmt.Errorf("equity is zero")
			}
			return v["totalLiabilities"] / v["totalEquity"], nil
		},
	},
}

// KnownMetrics lists every resolvable metric name, sorted.
func KnownMetrics() []string {
	out := make([]string, 0, len(metricDefs))
	for name := range metricDefs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// FinanceService resolves metrics against the fact store. Computed
// metrics fetch every input for the same period and refuse to mix
// periods silently: incoherent inputs carry a PERIOD_MISMATCH flag.
type FinanceService struct {
	store  *facts.Store
	quotes *facts.QuoteClient
	logger *slog.Logger
}

// NewFinanceService creates a finance service over the fact store.
func NewFinanceService(_ *config.Config, store *facts.Store, quotes *facts.QuoteClient, logger *slog.Logger) *FinanceService {
	return &FinanceService{
		store:  store,
		quotes: quotes,
		logger: logger,
	}
}

// Compute resolves one metric for (identifier, period). period is
// "latest", "YYYY-Qn", or "YYYY".
func (s *FinanceService) Compute(ctx context.Context, identifier, metric, period string) (*models.CalcResult, error) {
	def, ok := metricDefs[metric]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMetric, metric)
	}

	company, err := s.store.Resolve(identifier)
	if err != nil {
		return nil, err
	}

	if def.concept != "" {
		return s.primitive(ctx, company.Ticker, metric, def.concept, period)
	}
	return s.computed(ctx, company.Ticker, metric, def, period)
}

func (s *FinanceService) primitive(ctx context.Context, ticker, metric, concept, period string) (*models.CalcResult, error) {
	fact, flags, err := s.store.Lookup(ctx, ticker, concept, period)
	if err != nil {
		return nil, err
	}
	return &models.CalcResult{
		Ticker:       ticker,
		Metric:       metric,
		Period:       fact.PeriodLabel,
		Value:        fact.Value,
		Unit:         fact.Unit,
		Inputs:       map[string]*models.Fact{concept: fact},
		QualityFlags: dedupeFlags(flags),
	}, nil
}

func (s *FinanceService) computed(ctx context.Context, ticker, metric string, def metricDef, period string) (*models.CalcResult, error) {
	inputs := make(map[string]*models.Fact, len(def.inputs))
	values := make(map[string]float64, len(def.inputs))
	var flags []string

	// When the caller asked for "latest", the first input picks the
	// concrete period and the rest are pinned to it so a formula never
	// mixes a fresh quarter with a stale one.
	resolved := period
	for _, concept := range def.inputs {
		fact, factFlags, err := s.store.Lookup(ctx, ticker, concept, resolved)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", concept, err)
		}
		if resolved == facts.PeriodLatest || resolved == "" {
			resolved = fact.PeriodLabel
		}
		inputs[concept] = fact
		values[concept] = fact.Value
		flags = append(flags, factFlags...)
	}

	// Coherence: every input must cover the same date range.
	var first *models.Fact
	for _, fact := range inputs {
		if first == nil {
			first = fact
			continue
		}
		if !fact.SamePeriod(first) {
			flags = append(flags, models.FlagPeriodMismatch)
			s.logger.Warn("metric inputs span different periods",
				"ticker", ticker, "metric", metric,
				"a", first.PeriodLabel, "b", fact.PeriodLabel)
			break
		}
	}

	value, err := def.compute(values)
	if err != nil {
		return nil, fmt.Errorf("compute %s for %s: %w", metric, ticker, err)
	}

	unit := def.unit
	if unit == "" {
		unit = inputs[def.inputs[0]].Unit
	}

	return &models.CalcResult{
		Ticker:       ticker,
		Metric:       metric,
		Period:       inputs[def.inputs[0]].PeriodLabel,
		Value:        value,
		Unit:         unit,
		Inputs:       inputs,
		QualityFlags: dedupeFlags(flags),
	}, nil
}

// Quote returns the latest market price for an identifier.
func (s *FinanceService) Quote(ctx context.Context, identifier string) (*facts.Quote, error) {
	company, err := s.store.Resolve(identifier)
	if err != nil {
		return nil, err
	}
	return s.quotes.Latest(ctx, company.Ticker)
}

func dedupeFlags(flags []string) []string {
	if len(flags) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(flags))
	out := flags[:0]
	for _, f := range flags {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	return out
}
