package handlers

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/veriscope/veriscope-api/internal/facts"
	"github.com/veriscope/veriscope-api/internal/models"
	"github.com/veriscope/veriscope-api/internal/service"
)

// metricComputer is the slice of FinanceService the handler needs.
type metricComputer interface {
	Compute(ctx context.Context, identifier, metric, period string) (*models.CalcResult, error)
	Quote(ctx context.Context, identifier string) (*facts.Quote, error)
}

// FinanceHandler handles financial metric and quote endpoints.
type FinanceHandler struct {
	financeSvc metricComputer
}

// NewFinanceHandler creates a new finance handler.
func NewFinanceHandler(financeSvc metricComputer) *FinanceHandler {
	return &FinanceHandler{financeSvc: financeSvc}
}

// ListMetricsOutput lists the supported metric names.
type ListMetricsOutput struct {
	Body struct {
		Metrics []string `json:"metrics"`
	}
}

// ListMetrics returns all supported metric names, primitive and derived.
func (h *FinanceHandler) ListMetrics(ctx context.Context, input *struct{}) (*ListMetricsOutput, error) {
	out := &ListMetricsOutput{}
	out.Body.Metrics = service.KnownMetrics()
	return out, nil
}

// ComputeMetricInput identifies one metric lookup.
type ComputeMetricInput struct {
	Ticker string `path:"ticker" maxLength:"80" doc:"Ticker symbol or company name"`
	Metric string `path:"metric" maxLength:"64" doc:"Metric name, see /api/v1/finance/metrics"`
	Period string `query:"period" default:"latest" doc:"\"latest\", \"YYYY-Qn\", or \"YYYY\""`
}

// ComputeMetricOutput represents a resolved metric with provenance.
type ComputeMetricOutput struct {
	Body models.CalcResult
}

// ComputeMetric resolves a financial metric for a company and period.
func (h *FinanceHandler) ComputeMetric(ctx context.Context, input *ComputeMetricInput) (*ComputeMetricOutput, error) {
	if _, err := facts.ParsePeriod(input.Period); err != nil {
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}

	result, err := h.financeSvc.Compute(ctx, input.Ticker, input.Metric, input.Period)
	if err != nil {
		switch {
		case errors.Is(err, facts.ErrUnknownTicker):
			return nil, huma.Error404NotFound("unknown ticker or company name")
		case errors.Is(err, service.ErrUnknownMetric):
			return nil, huma.Error422UnprocessableEntity("unknown metric, see /api/v1/finance/metrics")
		case errors.Is(err, facts.ErrNoData):
			return nil, huma.Error404NotFound("no data for the requested period")
		case errors.Is(err, context.DeadlineExceeded):
			return nil, huma.Error504GatewayTimeout("upstream lookup timed out")
		}
		return nil, huma.Error502BadGateway("upstream lookup failed")
	}
	return &ComputeMetricOutput{Body: *result}, nil
}

// QuoteInput identifies a market quote lookup.
type QuoteInput struct {
	Ticker string `path:"ticker" maxLength:"80" doc:"Ticker symbol or company name"`
}

// QuoteOutput represents a current market price.
type QuoteOutput struct {
	Body facts.Quote
}

// GetQuote returns the latest market price for a company.
func (h *FinanceHandler) GetQuote(ctx context.Context, input *QuoteInput) (*QuoteOutput, error) {
	quote, err := h.financeSvc.Quote(ctx, input.Ticker)
	if err != nil {
		if errors.Is(err, facts.ErrUnknownTicker) {
			return nil, huma.Error404NotFound("unknown ticker or company name")
		}
		return nil, huma.Error502BadGateway("quote lookup failed")
	}
	return &QuoteOutput{Body: *quote}, nil
}
