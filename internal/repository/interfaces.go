// Package repository contains data access layers for persisted state.
package repository

import (
	"context"
	"errors"

	"github.com/veriscope/veriscope-api/internal/models"
)

// ErrDuplicateEmail is returned when registering an email that already exists.
var ErrDuplicateEmail = errors.New("email already registered")

// UserRepository handles user persistence.
type UserRepository interface {
	// Create inserts a new user. Returns ErrDuplicateEmail when the email
	// is already taken.
	Create(ctx context.Context, user *models.User) error
	// GetByEmail returns the user with the given email, or nil when absent.
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	// GetByID returns the user with the given id, or nil when absent.
	GetByID(ctx context.Context, userID string) (*models.User, error)
}

// QuotaRepository handles the per-user per-UTC-day token ledger.
type QuotaRepository interface {
	// Get returns the quota row for (userID, utcDate), or nil when the
	// user has not consumed tokens that day.
	Get(ctx context.Context, userID, utcDate string) (*models.DailyQuota, error)
	// Add adds cost to the day's total, creating the row on first use.
	// Used to record provider-reported usage for work already
	// performed, so the total is allowed to grow past any ceiling.
	Add(ctx context.Context, userID, utcDate string, cost int64) error
	// DeleteBefore removes ledger rows older than utcDate and reports
	// how many were deleted.
	DeleteBefore(ctx context.Context, utcDate string) (int64, error)
}

// Repositories bundles all repository implementations.
type Repositories struct {
	User  UserRepository
	Quota QuotaRepository
}
