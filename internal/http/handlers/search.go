package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/veriscope/veriscope-api/internal/websearch"
)

// webSearcher is the slice of the web-search client the handler needs.
type webSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]websearch.Result, error)
}

// SearchHandler handles general web search.
type SearchHandler struct {
	web webSearcher
}

// NewSearchHandler creates a new web-search handler.
func NewSearchHandler(web webSearcher) *SearchHandler {
	return &SearchHandler{web: web}
}

// WebSearchInput represents a web search.
type WebSearchInput struct {
	Query string `query:"query" required:"true" minLength:"1" maxLength:"500" doc:"Free-text search query"`
	Limit int    `query:"limit" default:"5" minimum:"1" maximum:"10"`
}

// WebSearchOutput represents web search results. An empty set is a
// valid response, not an error.
type WebSearchOutput struct {
	Body struct {
		Results []websearch.Result `json:"results"`
	}
}

// WebSearch runs a web search against the configured engine.
func (h *SearchHandler) WebSearch(ctx context.Context, input *WebSearchInput) (*WebSearchOutput, error) {
	results, err := h.web.Search(ctx, input.Query, input.Limit)
	if err != nil {
		return nil, huma.Error502BadGateway("web search failed")
	}
	out := &WebSearchOutput{}
	out.Body.Results = results
	if out.Body.Results == nil {
		out.Body.Results = []websearch.Result{}
	}
	return out, nil
}
