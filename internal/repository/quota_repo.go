package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/veriscope/veriscope-api/internal/models"
)

// SQLiteQuotaRepository implements QuotaRepository using SQLite.
type SQLiteQuotaRepository struct {
	db *sql.DB
}

// NewSQLiteQuotaRepository creates a new SQLite quota repository.
func NewSQLiteQuotaRepository(db *sql.DB) *SQLiteQuotaRepository {
	return &SQLiteQuotaRepository{db: db}
}

func (r *SQLiteQuotaRepository) Get(ctx context.Context, userID, utcDate string) (*models.DailyQuota, error) {
	var q models.DailyQuota
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, utc_date, tokens_consumed FROM daily_quota
		WHERE user_id = ? AND utc_date = ?
	`, userID, utcDate).Scan(&q.UserID, &q.UTCDate, &q.TokensConsumed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query quota: %w", err)
	}
	return &q, nil
}

// Add upserts the day's row and accumulates cost atomically, so
// concurrent settlements for the same user never lose an update.
func (r *SQLiteQuotaRepository) Add(ctx context.Context, userID, utcDate string, cost int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO daily_quota (user_id, utc_date, tokens_consumed)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id, utc_date) DO UPDATE SET
			tokens_consumed = tokens_consumed + excluded.tokens_consumed
	`, userID, utcDate, cost)
	if err != nil {
		return fmt.Errorf("failed to record quota usage: %w", err)
	}
	return nil
}

func (r *SQLiteQuotaRepository) DeleteBefore(ctx context.Context, utcDate string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM daily_quota WHERE utc_date < ?`, utcDate)
	if err != nil {
		return 0, fmt.Errorf("failed to prune quota rows: %w", err)
	}
	return res.RowsAffected()
}
