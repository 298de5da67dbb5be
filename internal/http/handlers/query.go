package handlers

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/veriscope/veriscope-api/internal/llm"
	"github.com/veriscope/veriscope-api/internal/models"
	"github.com/veriscope/veriscope-api/internal/service"
)

// queryRunner is the slice of QueryService the handler needs.
type queryRunner interface {
	Query(ctx context.Context, userID, question string, history []models.Exchange) (*models.QueryResponse, error)
}

// QueryHandler handles the grounded question endpoint.
type QueryHandler struct {
	querySvc queryRunner
}

// NewQueryHandler creates a new query handler.
func NewQueryHandler(querySvc queryRunner) *QueryHandler {
	return &QueryHandler{querySvc: querySvc}
}

// QueryInput represents a question with optional conversation history.
type QueryInput struct {
	Body struct {
		Question string            `json:"question" minLength:"1" maxLength:"4000" doc:"Question to answer from grounded sources"`
		History  []models.Exchange `json:"history,omitempty" maxItems:"20" doc:"Prior turns of this conversation"`
	}
}

// QueryOutput represents the grounded answer.
type QueryOutput struct {
	Body models.QueryResponse
}

// Query answers a question grounded in retrieved facts, papers, and
// web results.
func (h *QueryHandler) Query(ctx context.Context, input *QueryInput) (*QueryOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	resp, err := h.querySvc.Query(ctx, userID, input.Body.Question, input.Body.History)
	if err != nil {
		return nil, mapPipelineError(err)
	}
	return &QueryOutput{Body: *resp}, nil
}

// mapPipelineError translates sentinel errors shared by the query and
// synthesis pipelines.
func mapPipelineError(err error) error {
	switch {
	case errors.Is(err, service.ErrEmptyQuestion):
		return huma.Error422UnprocessableEntity("question is empty")
	case errors.Is(err, service.ErrQuotaExceeded):
		return huma.Error429TooManyRequests("daily token quota exceeded")
	case errors.Is(err, llm.ErrNoCapacity):
		return huma.Error502BadGateway("no provider capacity available, retry later")
	case errors.Is(err, llm.ErrCallFailed):
		return huma.Error502BadGateway("language model call failed")
	case errors.Is(err, context.DeadlineExceeded):
		return huma.Error504GatewayTimeout("upstream work timed out")
	}
	return huma.Error500InternalServerError("query failed")
}
