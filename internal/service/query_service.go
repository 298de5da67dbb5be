package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/veriscope/veriscope-api/internal/config"
	"github.com/veriscope/veriscope-api/internal/facts"
	"github.com/veriscope/veriscope-api/internal/llm"
	"github.com/veriscope/veriscope-api/internal/metrics"
	"github.com/veriscope/veriscope-api/internal/models"
	"github.com/veriscope/veriscope-api/internal/websearch"
)

// ErrEmptyQuestion is returned for a blank query.
var ErrEmptyQuestion = errors.New("question is empty")

const (
	paperSearchLimit = 8
	webSearchLimit   = 5

	// historyWindow bounds how many trailing conversation turns the
	// prompt carries; older turns add cost without improving grounding.
	historyWindow = 3
)

// Seams for the pipeline's collaborators, satisfied by the concrete
// services and by test fakes.
type (
	metricComputer interface {
		Compute(ctx context.Context, identifier, metric, period string) (*models.CalcResult, error)
		Quote(ctx context.Context, identifier string) (*facts.Quote, error)
	}
	paperSearcher interface {
		Search(ctx context.Context, query string, limit int) ([]*models.Paper, bool, error)
	}
	webSearcher interface {
		Search(ctx context.Context, query string, limit int) ([]websearch.Result, error)
	}
	llmCompleter interface {
		Complete(ctx context.Context, prompt string, opts llm.CallOptions) (*llm.RouteResult, error)
	}
)

// QueryService runs the grounded question pipeline: check quota,
// classify the question, fan out to the relevant tools under a shared
// budget, assemble a prompt over the gathered context, route the LLM
// call, then record actual token usage and post-filter citations.
type QueryService struct {
	cfg     *config.Config
	quota   *QuotaService
	finance metricComputer
	papers  paperSearcher
	web     webSearcher
	router  llmCompleter
	symbols tickerValidator
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewQueryService creates the query pipeline.
func NewQueryService(
	cfg *config.Config,
	quota *QuotaService,
	finance metricComputer,
	papers paperSearcher,
	web webSearcher,
	router llmCompleter,
	symbols tickerValidator,
	m *metrics.Metrics,
	logger *slog.Logger,
) *QueryService {
	return &QueryService{
		cfg:     cfg,
		quota:   quota,
		finance: finance,
		papers:  papers,
		web:     web,
		router:  router,
		symbols: symbols,
		metrics: m,
		logger:  logger,
	}
}

// gathered is the pooled output of the tool fan-out.
type gathered struct {
	mu        sync.Mutex
	sections  []string
	citations []models.Citation
	tools     []string
	empty     []string // tools that ran cleanly and found nothing
	flags     []string
	failures  int
	attempts  int
}

func (g *gathered) addSection(tool, section string, citations []models.Citation, flags ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if section != "" {
		g.sections = append(g.sections, section)
	}
	g.citations = append(g.citations, citations...)
	g.tools = append(g.tools, tool)
	g.flags = append(g.flags, flags...)
}

// addEmpty records a tool that ran and found nothing. Each empty slot
// is flagged so the prompt can forbid fabricating entries for it.
func (g *gathered) addEmpty(tool string, flags ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tools = append(g.tools, tool)
	g.empty = append(g.empty, tool)
	g.flags = append(g.flags, flags...)
	g.flags = append(g.flags, models.FlagEmptyResults)
}

func (g *gathered) addFailure(flags ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures++
	g.flags = append(g.flags, flags...)
}

// Query answers one question. Failed or cancelled requests do not
// charge the user; successful ones are recorded at provider-reported
// usage after the fact, which may land the day past the ceiling.
func (s *QueryService) Query(ctx context.Context, userID, question string, history []models.Exchange) (*models.QueryResponse, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}

	if err := s.quota.Check(ctx, userID); err != nil {
		if errors.Is(err, ErrQuotaExceeded) && s.metrics != nil {
			s.metrics.QuotaRejectedTotal.Inc()
		}
		return nil, err
	}

	intent := classifyQuery(question, s.symbols)
	g := s.gather(ctx, question, intent)

	prompt := buildPrompt(question, history, g)

	res, err := s.router.Complete(ctx, prompt, llm.CallOptions{})
	if err != nil {
		// No tokens were delivered, nothing is charged.
		if s.metrics != nil {
			s.metrics.RecordLLMCall("none", "failed", 0, 0)
		}
		return nil, err
	}

	actual := res.TokensUsed()
	s.quota.Record(context.WithoutCancel(ctx), userID, actual)
	if s.metrics != nil {
		s.metrics.RecordLLMCall(res.Provider, "success", res.PromptTokens, res.CompletionTokens)
	}

	flags := dedupeFlags(g.flags)
	if s.metrics != nil {
		s.metrics.RecordFlags(flags)
	}

	return &models.QueryResponse{
		AnswerText:    res.Content,
		Citations:     filterCitations(res.Content, g.citations),
		ToolsUsed:     g.tools,
		QualityFlags:  flags,
		TokensCharged: actual,
	}, nil
}

// gather fans out to the tools the intent selected under the shared
// fan-out budget. A slow or failed tool degrades the context rather
// than failing the query.
func (s *QueryService) gather(ctx context.Context, question string, intent queryIntent) *gathered {
	g := &gathered{}

	fanCtx, cancel := context.WithTimeout(ctx, s.cfg.FanoutBudget)
	defer cancel()

	eg, egCtx := errgroup.WithContext(fanCtx)

	if intent.Finance {
		g.attempts++
		eg.Go(func() error {
			s.gatherFinance(egCtx, intent, g)
			return nil
		})
	}
	if intent.Papers {
		g.attempts++
		eg.Go(func() error {
			s.gatherPapers(egCtx, question, g)
			return nil
		})
	}
	if intent.WebSearch {
		g.attempts++
		eg.Go(func() error {
			s.gatherWeb(egCtx, question, g)
			return nil
		})
	}
	_ = eg.Wait()

	if g.failures > 0 {
		g.flags = append(g.flags, models.FlagPartialContext)
	}
	if len(g.sections) == 0 {
		g.flags = append(g.flags, models.FlagEmptyResults)
	}
	return g
}

func (s *QueryService) gatherFinance(ctx context.Context, intent queryIntent, g *gathered) {
	var lines []string
	var citations []models.Citation
	var flags []string
	resolved := 0

	for _, metric := range intent.Metrics {
		result, err := s.finance.Compute(ctx, intent.Ticker, metric, intent.Period)
		if err != nil {
			s.logger.Warn("finance lookup failed",
				"ticker", intent.Ticker, "metric", metric, "period", intent.Period, "error", err)
			continue
		}
		resolved++
		flags = append(flags, result.QualityFlags...)
		for _, fact := range result.Inputs {
			lines = append(lines, formatFactLine(fact))
			citations = append(citations, factCitation(fact))
		}
		if len(result.Inputs) > 1 {
			lines = append(lines, fmt.Sprintf("- %s %s (%s) = %.4g %s (derived from the inputs above)",
				result.Ticker, result.Metric, result.Period, result.Value, result.Unit))
		}
	}

	if intent.Quote {
		if quote, err := s.finance.Quote(ctx, intent.Ticker); err == nil {
			resolved++
			lines = append(lines, fmt.Sprintf("[%s] %s market price = %.2f %s as of %s",
				quoteCitationID(quote), quote.Ticker, quote.Price, quote.Currency, quote.AsOf.Format("2006-01-02 15:04 MST")))
			citations = append(citations, models.Citation{
				Kind:   "fact",
				ID:     quoteCitationID(quote),
				Source: quote.Source,
				Title:  quote.Ticker + " market price",
			})
		} else {
			s.logger.Warn("quote lookup failed", "ticker", intent.Ticker, "error", err)
		}
	}

	if resolved == 0 {
		g.addFailure()
		return
	}
	section := "### Financial facts\n" + strings.Join(lines, "\n")
	g.addSection(ToolFinance, section, citations, flags...)
}

func (s *QueryService) gatherPapers(ctx context.Context, question string, g *gathered) {
	results, degraded, err := s.papers.Search(ctx, question, paperSearchLimit)
	if err != nil {
		g.addFailure()
		return
	}

	var flags []string
	if degraded {
		flags = append(flags, models.FlagPartialContext)
	}
	if len(results) == 0 {
		g.addEmpty(ToolPapers, flags...)
		return
	}

	lines := make([]string, 0, len(results))
	citations := make([]models.Citation, 0, len(results))
	for _, p := range results {
		line := fmt.Sprintf("[%s] %s (%d)", p.ID, p.Title, p.Year)
		if len(p.Authors) > 0 {
			line += " — " + strings.Join(truncateAuthors(p.Authors), ", ")
		}
		if p.Abstract != "" {
			line += "\n  " + truncateText(p.Abstract, 400)
		}
		lines = append(lines, line)
		citations = append(citations, models.Citation{
			Kind:   "paper",
			ID:     p.ID,
			Source: p.Source,
			Title:  p.Title,
		})
	}
	g.addSection(ToolPapers, "### Papers\n"+strings.Join(lines, "\n"), citations, flags...)
}

func (s *QueryService) gatherWeb(ctx context.Context, question string, g *gathered) {
	results, err := s.web.Search(ctx, question, webSearchLimit)
	if err != nil {
		g.addFailure()
		return
	}
	if len(results) == 0 {
		g.addEmpty(ToolWebSearch)
		return
	}

	lines := make([]string, 0, len(results))
	for _, r := range results {
		lines = append(lines, fmt.Sprintf("- %s (%s): %s", r.Title, r.URL, truncateText(r.Snippet, 300)))
	}
	g.addSection(ToolWebSearch, "### Web results\n"+strings.Join(lines, "\n"), nil)
}

// buildPrompt assembles the grounded prompt. Every empty slot gets an
// explicit line forbidding fabricated entries for it; when the whole
// fan-out came back empty the model is directed to say so.
func buildPrompt(question string, history []models.Exchange, g *gathered) string {
	var b strings.Builder

	b.WriteString("You are a research assistant that answers strictly from the provided context.\n")
	b.WriteString("Cite supporting items inline using their bracketed ids, e.g. [openalex:W123] or [0000320193-25-000073].\n")
	b.WriteString("Never invent figures, papers, or citations.\n\n")

	if len(g.sections) > 0 {
		b.WriteString("## Context\n")
		for _, section := range g.sections {
			b.WriteString(section)
			b.WriteString("\n\n")
		}
		for _, tool := range g.empty {
			b.WriteString("No results were found by the " + tool + " tool; do not fabricate entries for it.\n")
		}
		if len(g.empty) > 0 {
			b.WriteString("\n")
		}
	} else {
		b.WriteString("## Context\nNo supporting material was retrieved. ")
		b.WriteString("State clearly that you could not find relevant data and suggest how the user might rephrase; do not answer from memory.\n\n")
	}

	if len(history) > 0 {
		turns := history
		if len(turns) > historyWindow {
			turns = turns[len(turns)-historyWindow:]
		}
		b.WriteString("## Conversation so far\n")
		for _, turn := range turns {
			b.WriteString(turn.Role)
			b.WriteString(": ")
			b.WriteString(truncateText(turn.Content, 280))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("## Question\n")
	b.WriteString(question)
	return b.String()
}

// filterCitations keeps only the retrieved records the answer actually
// references, dropping duplicates. Ids the model invented are absent
// from the candidate set and thus can never surface.
func filterCitations(answer string, candidates []models.Citation) []models.Citation {
	var kept []models.Citation
	seen := make(map[string]bool)
	for _, c := range candidates {
		if seen[c.ID] {
			continue
		}
		if strings.Contains(answer, "["+c.ID+"]") {
			seen[c.ID] = true
			kept = append(kept, c)
		}
	}
	return kept
}

func formatFactLine(f *models.Fact) string {
	return fmt.Sprintf("[%s] %s %s (%s, %s to %s) = %.4g %s [source: %s]",
		f.AccessionID, f.Ticker, f.Concept, f.PeriodLabel,
		f.PeriodStart.Format("2006-01-02"), f.PeriodEnd.Format("2006-01-02"),
		f.Value, f.Unit, f.Source)
}

func factCitation(f *models.Fact) models.Citation {
	return models.Citation{
		Kind:        "fact",
		ID:          f.AccessionID,
		Source:      f.Source,
		Title:       fmt.Sprintf("%s %s %s", f.Ticker, f.Concept, f.PeriodLabel),
		PeriodStart: f.PeriodStart.Format("2006-01-02"),
		PeriodEnd:   f.PeriodEnd.Format("2006-01-02"),
	}
}

func quoteCitationID(q *facts.Quote) string {
	return fmt.Sprintf("quote:%s:%s", q.Ticker, q.AsOf.Format("2006-01-02"))
}

func truncateAuthors(authors []string) []string {
	if len(authors) <= 4 {
		return authors
	}
	return append(append([]string{}, authors[:4]...), "et al.")
}

func truncateText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
