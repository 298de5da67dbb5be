// Package service contains the business logic layer.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/veriscope/veriscope-api/internal/auth"
	"github.com/veriscope/veriscope-api/internal/config"
	"github.com/veriscope/veriscope-api/internal/facts"
	"github.com/veriscope/veriscope-api/internal/llm"
	"github.com/veriscope/veriscope-api/internal/metrics"
	"github.com/veriscope/veriscope-api/internal/papers"
	"github.com/veriscope/veriscope-api/internal/repository"
	"github.com/veriscope/veriscope-api/internal/websearch"
)

// Services holds all service instances.
type Services struct {
	Auth      *AuthService
	Quota     *QuotaService
	Finance   *FinanceService
	Query     *QueryService
	Synthesis *SynthesisService

	// Shared infrastructure exposed for the HTTP layer and the
	// maintenance worker.
	Facts  *facts.Store
	Papers *papers.Adapter
	Web    *websearch.Client
	Router *llm.Router
	Keys   *llm.KeyStore
}

// NewServices creates all service instances and the upstream clients
// they share. ctx bounds startup work (the symbol-map download).
func NewServices(ctx context.Context, cfg *config.Config, repos *repository.Repositories, m *metrics.Metrics, logger *slog.Logger) (*Services, error) {
	tokens := auth.NewTokenIssuer(cfg.TokenSecret, cfg.TokenExpiry)

	keyStore := llm.NewKeyStore(cfg.ProviderKeys)
	router := llm.NewRouter(cfg, keyStore, llm.NewClient(logger), logger)

	symbols := facts.LoadSymbolMap(ctx, cfg.SECUserAgent, logger)
	edgar := facts.NewEdgarClient(cfg.SECUserAgent, cfg.SECConcurrency, logger)
	factStore := facts.NewStore(cfg, edgar, symbols, logger)
	quotes := facts.NewQuoteClient(cfg.QuoteBaseURL)

	paperSources, err := buildPaperSources(cfg)
	if err != nil {
		return nil, err
	}
	paperAdapter := papers.NewAdapter(logger, paperSources...)

	web := websearch.NewClient(cfg.WebSearchURL)

	authSvc := NewAuthService(cfg, repos, tokens, logger)
	quotaSvc := NewQuotaService(cfg, repos.Quota, logger)
	financeSvc := NewFinanceService(cfg, factStore, quotes, logger)
	querySvc := NewQueryService(cfg, quotaSvc, financeSvc, paperAdapter, web, router, factStore, m, logger)
	synthesisSvc := NewSynthesisService(cfg, quotaSvc, paperAdapter, router, logger)

	return &Services{
		Auth:      authSvc,
		Quota:     quotaSvc,
		Finance:   financeSvc,
		Query:     querySvc,
		Synthesis: synthesisSvc,
		Facts:     factStore,
		Papers:    paperAdapter,
		Web:       web,
		Router:    router,
		Keys:      keyStore,
	}, nil
}

func buildPaperSources(cfg *config.Config) ([]papers.Source, error) {
	sources := make([]papers.Source, 0, len(cfg.PaperSources))
	for _, name := range cfg.PaperSources {
		switch name {
		case "openalex":
			sources = append(sources, papers.NewOpenAlexClient())
		case "crossref":
			sources = append(sources, papers.NewCrossrefClient(cfg.ContactEmail))
		default:
			return nil, fmt.Errorf("unknown paper source %q", name)
		}
	}
	return sources, nil
}
