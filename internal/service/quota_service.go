package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/veriscope/veriscope-api/internal/config"
	"github.com/veriscope/veriscope-api/internal/models"
	"github.com/veriscope/veriscope-api/internal/repository"
)

// ErrQuotaExceeded is returned when a user has already consumed the
// daily token ceiling.
var ErrQuotaExceeded = errors.New("daily token quota exceeded")

// QuotaService enforces the per-user daily token ceiling. The precheck
// never mutates the ledger; provider-reported usage is recorded after
// the work is done, so a day's total may land past the ceiling and
// only new work is refused from then on.
type QuotaService struct {
	repo    repository.QuotaRepository
	ceiling int64
	logger  *slog.Logger
	now     func() time.Time
}

// NewQuotaService creates a quota service with the configured ceiling.
func NewQuotaService(cfg *config.Config, repo repository.QuotaRepository, logger *slog.Logger) *QuotaService {
	return &QuotaService{
		repo:    repo,
		ceiling: cfg.DailyCeiling,
		logger:  logger,
		now:     time.Now,
	}
}

// Ceiling returns the configured daily token ceiling.
func (s *QuotaService) Ceiling() int64 { return s.ceiling }

// Usage returns the user's consumption for the current UTC day.
func (s *QuotaService) Usage(ctx context.Context, userID string) (*models.DailyQuota, error) {
	date := s.utcDate()
	row, err := s.repo.Get(ctx, userID, date)
	if err != nil {
		return nil, err
	}
	if row == nil {
		row = &models.DailyQuota{UserID: userID, UTCDate: date}
	}
	return row, nil
}

// Check reports whether the user may start new work today. A user
// below the ceiling proceeds even when the remainder is small; the
// response they are about to earn is charged by Record afterwards.
func (s *QuotaService) Check(ctx context.Context, userID string) error {
	row, err := s.repo.Get(ctx, userID, s.utcDate())
	if err != nil {
		return err
	}
	if row != nil && row.TokensConsumed >= s.ceiling {
		return ErrQuotaExceeded
	}
	return nil
}

// Record commits provider-reported usage for work already performed.
// Overshoot past the ceiling is recorded, never refused.
func (s *QuotaService) Record(ctx context.Context, userID string, tokens int64) {
	if tokens <= 0 {
		return
	}
	if err := s.repo.Add(ctx, userID, s.utcDate(), tokens); err != nil {
		// The LLM work already happened; losing the ledger entry is
		// preferable to failing the response.
		s.logger.Error("quota record failed", "user_id", userID, "tokens", tokens, "error", err)
	}
}

func (s *QuotaService) utcDate() string {
	return s.now().UTC().Format("2006-01-02")
}
