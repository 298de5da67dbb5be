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
	"github.com/veriscope/veriscope-api/internal/llm"
	"github.com/veriscope/veriscope-api/internal/models"
)

var (
	// ErrNoPapers is returned for an empty id list.
	ErrNoPapers = errors.New("no papers requested")
	// ErrUnknownPaper is returned when a requested id does not resolve.
	ErrUnknownPaper = errors.New("unknown paper id")
	// ErrTooManyPapers bounds one synthesis request.
	ErrTooManyPapers = errors.New("too many papers requested")
)

const maxSynthesisPapers = 12

// paperGetter resolves individual paper ids; satisfied by the adapter.
type paperGetter interface {
	GetByID(ctx context.Context, id string) (*models.Paper, error)
}

// SynthesisService produces a grounded synthesis across an explicit set
// of papers, unlike the query pipeline which discovers its own context.
type SynthesisService struct {
	cfg    *config.Config
	quota  *QuotaService
	papers paperGetter
	router llmCompleter
	logger *slog.Logger
}

// NewSynthesisService creates a synthesis service.
func NewSynthesisService(cfg *config.Config, quota *QuotaService, papers paperGetter, router llmCompleter, logger *slog.Logger) *SynthesisService {
	return &SynthesisService{
		cfg:    cfg,
		quota:  quota,
		papers: papers,
		router: router,
		logger: logger,
	}
}

// Synthesize fetches the given papers and asks the model for a
// synthesis guided by instruction. Every id must resolve: an unknown
// id fails the request rather than silently synthesizing over a
// smaller set than the caller asked for.
func (s *SynthesisService) Synthesize(ctx context.Context, userID string, paperIDs []string, instruction string) (*models.QueryResponse, error) {
	if len(paperIDs) == 0 {
		return nil, ErrNoPapers
	}
	if len(paperIDs) > maxSynthesisPapers {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyPapers, len(paperIDs), maxSynthesisPapers)
	}
	if strings.TrimSpace(instruction) == "" {
		instruction = "Synthesize the shared themes, agreements, and contradictions across these papers."
	}

	if err := s.quota.Check(ctx, userID); err != nil {
		return nil, err
	}

	papers, missed := s.resolvePapers(ctx, paperIDs)
	if len(missed) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPaper, strings.Join(missed, ", "))
	}

	prompt := buildSynthesisPrompt(instruction, papers)
	res, err := s.router.Complete(ctx, prompt, llm.CallOptions{})
	if err != nil {
		return nil, err
	}

	actual := res.TokensUsed()
	s.quota.Record(context.WithoutCancel(ctx), userID, actual)

	citations := make([]models.Citation, 0, len(papers))
	for _, p := range papers {
		citations = append(citations, models.Citation{
			Kind:   "paper",
			ID:     p.ID,
			Source: p.Source,
			Title:  p.Title,
		})
	}

	return &models.QueryResponse{
		AnswerText:    res.Content,
		Citations:     citations,
		ToolsUsed:     []string{ToolPapers},
		TokensCharged: actual,
	}, nil
}

// resolvePapers fetches ids concurrently, preserving request order,
// and reports the ids that did not resolve.
func (s *SynthesisService) resolvePapers(ctx context.Context, ids []string) ([]*models.Paper, []string) {
	resolved := make([]*models.Paper, len(ids))
	var mu sync.Mutex
	var missed []string

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(4)
	for i, id := range ids {
		eg.Go(func() error {
			p, err := s.papers.GetByID(egCtx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil || p == nil || !p.Valid() {
				missed = append(missed, id)
				s.logger.Warn("paper id did not resolve", "id", id, "error", err)
				return nil
			}
			resolved[i] = p
			return nil
		})
	}
	_ = eg.Wait()

	papers := make([]*models.Paper, 0, len(ids))
	for _, p := range resolved {
		if p != nil {
			papers = append(papers, p)
		}
	}
	return papers, missed
}

func buildSynthesisPrompt(instruction string, papers []*models.Paper) string {
	var b strings.Builder
	b.WriteString("You are a research assistant synthesizing across the papers below.\n")
	b.WriteString("Ground every claim in the papers and cite them inline with their bracketed ids.\n")
	b.WriteString("Never attribute a claim to a paper that does not support it.\n\n")

	b.WriteString("## Papers\n")
	for _, p := range papers {
		fmt.Fprintf(&b, "[%s] %s (%d)", p.ID, p.Title, p.Year)
		if len(p.Authors) > 0 {
			b.WriteString(" — " + strings.Join(truncateAuthors(p.Authors), ", "))
		}
		if p.Venue != "" {
			b.WriteString(". " + p.Venue)
		}
		b.WriteString("\n")
		if p.Abstract != "" {
			b.WriteString("  " + truncateText(p.Abstract, 800) + "\n")
		}
	}

	b.WriteString("\n## Task\n")
	b.WriteString(instruction)
	return b.String()
}
