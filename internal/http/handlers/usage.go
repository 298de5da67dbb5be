package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/veriscope/veriscope-api/internal/models"
)

// quotaReader is the slice of QuotaService the handler needs.
type quotaReader interface {
	Usage(ctx context.Context, userID string) (*models.DailyQuota, error)
	Ceiling() int64
}

// UsageHandler handles the quota usage endpoint.
type UsageHandler struct {
	quotaSvc quotaReader
}

// NewUsageHandler creates a new usage handler.
func NewUsageHandler(quotaSvc quotaReader) *UsageHandler {
	return &UsageHandler{quotaSvc: quotaSvc}
}

// GetUsageOutput represents today's token ledger for the caller.
type GetUsageOutput struct {
	Body struct {
		Date           string `json:"date" doc:"UTC day the ledger covers (YYYY-MM-DD)"`
		TokensConsumed int64  `json:"tokens_consumed"`
		Ceiling        int64  `json:"ceiling"`
		Remaining      int64  `json:"remaining" doc:"Zero when consumption reached or overshot the ceiling"`
	}
}

// GetUsage returns the caller's consumption for the current UTC day.
// Recorded overshoot can push consumption past the ceiling; remaining is
// clamped at zero rather than going negative.
func (h *UsageHandler) GetUsage(ctx context.Context, input *struct{}) (*GetUsageOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	usage, err := h.quotaSvc.Usage(ctx, userID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to read usage")
	}

	remaining := h.quotaSvc.Ceiling() - usage.TokensConsumed
	if remaining < 0 {
		remaining = 0
	}

	out := &GetUsageOutput{}
	out.Body.Date = usage.UTCDate
	out.Body.TokensConsumed = usage.TokensConsumed
	out.Body.Ceiling = h.quotaSvc.Ceiling()
	out.Body.Remaining = remaining
	return out, nil
}
