package handlers

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/veriscope/veriscope-api/internal/models"
	"github.com/veriscope/veriscope-api/internal/papers"
)

// paperFinder is the slice of the papers adapter the handler needs.
type paperFinder interface {
	Search(ctx context.Context, query string, limit int) ([]*models.Paper, bool, error)
	GetByID(ctx context.Context, id string) (*models.Paper, error)
}

// PapersHandler handles academic-paper search and lookup.
type PapersHandler struct {
	adapter paperFinder
}

// NewPapersHandler creates a new papers handler.
func NewPapersHandler(adapter paperFinder) *PapersHandler {
	return &PapersHandler{adapter: adapter}
}

// SearchPapersInput represents a paper search.
type SearchPapersInput struct {
	Query string `query:"query" required:"true" minLength:"1" maxLength:"500" doc:"Free-text search query"`
	Limit int    `query:"limit" default:"10" minimum:"1" maximum:"25" doc:"Maximum results after merging sources"`
}

// SearchPapersOutput represents merged, deduplicated search results.
type SearchPapersOutput struct {
	Body struct {
		Papers       []*models.Paper `json:"papers"`
		EmptyResults bool            `json:"empty_results" doc:"True when the search matched nothing; downstream consumers must not fabricate entries"`
		Degraded     bool            `json:"degraded" doc:"True when one of the sources failed and results are partial"`
	}
}

// SearchPapers searches the configured scholarly sources.
func (h *PapersHandler) SearchPapers(ctx context.Context, input *SearchPapersInput) (*SearchPapersOutput, error) {
	results, degraded, err := h.adapter.Search(ctx, input.Query, input.Limit)
	if err != nil {
		return nil, huma.Error502BadGateway("all paper sources failed")
	}
	out := &SearchPapersOutput{}
	out.Body.Papers = results
	out.Body.EmptyResults = len(results) == 0
	out.Body.Degraded = degraded
	if out.Body.Papers == nil {
		out.Body.Papers = []*models.Paper{}
	}
	return out, nil
}

// GetPaperInput identifies one paper. The id rides in a query parameter
// because DOI-based ids contain slashes.
type GetPaperInput struct {
	ID string `query:"id" required:"true" maxLength:"300" doc:"Paper id from search results (openalex:… or doi:…)"`
}

// GetPaperOutput represents one resolved paper.
type GetPaperOutput struct {
	Body models.Paper
}

// GetPaper resolves a paper id to its full record.
func (h *PapersHandler) GetPaper(ctx context.Context, input *GetPaperInput) (*GetPaperOutput, error) {
	paper, err := h.adapter.GetByID(ctx, input.ID)
	if err != nil {
		if errors.Is(err, papers.ErrNotFound) {
			return nil, huma.Error404NotFound("paper not found")
		}
		return nil, huma.Error502BadGateway("paper lookup failed")
	}
	return &GetPaperOutput{Body: *paper}, nil
}
