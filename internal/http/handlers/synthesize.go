package handlers

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/veriscope/veriscope-api/internal/models"
	"github.com/veriscope/veriscope-api/internal/service"
)

// synthesizer is the slice of SynthesisService the handler needs.
type synthesizer interface {
	Synthesize(ctx context.Context, userID string, paperIDs []string, instruction string) (*models.QueryResponse, error)
}

// SynthesizeHandler handles cross-paper synthesis.
type SynthesizeHandler struct {
	synthSvc synthesizer
}

// NewSynthesizeHandler creates a new synthesis handler.
func NewSynthesizeHandler(synthSvc synthesizer) *SynthesizeHandler {
	return &SynthesizeHandler{synthSvc: synthSvc}
}

// SynthesizeInput names the papers to synthesize across.
type SynthesizeInput struct {
	Body struct {
		PaperIDs    []string `json:"paper_ids" minItems:"1" maxItems:"12" doc:"Paper ids from search results (openalex:… or doi:…)"`
		Instruction string   `json:"instruction,omitempty" maxLength:"2000" doc:"Optional guidance for the synthesis"`
	}
}

// SynthesizeOutput represents the synthesis result.
type SynthesizeOutput struct {
	Body models.QueryResponse
}

// Synthesize produces a grounded synthesis across the given papers.
func (h *SynthesizeHandler) Synthesize(ctx context.Context, input *SynthesizeInput) (*SynthesizeOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	resp, err := h.synthSvc.Synthesize(ctx, userID, input.Body.PaperIDs, input.Body.Instruction)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrUnknownPaper):
			return nil, huma.Error404NotFound(err.Error())
		case errors.Is(err, service.ErrNoPapers):
			return nil, huma.Error422UnprocessableEntity("no papers requested")
		case errors.Is(err, service.ErrTooManyPapers):
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}
		return nil, mapPipelineError(err)
	}
	return &SynthesizeOutput{Body: *resp}, nil
}
