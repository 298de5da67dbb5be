package service

import (
	"context"
	"sync"

	"github.com/veriscope/veriscope-api/internal/models"
	"github.com/veriscope/veriscope-api/internal/repository"
)

// memUserRepo is an in-memory UserRepository.
type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*models.User // by id
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]*models.User)}
}

func (r *memUserRepo) Create(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return repository.ErrDuplicateEmail
		}
	}
	r.users[user.ID] = user
	return nil
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (r *memUserRepo) GetByID(_ context.Context, userID string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.users[userID], nil
}

// memQuotaRepo is an in-memory QuotaRepository.
type memQuotaRepo struct {
	mu   sync.Mutex
	rows map[string]int64 // userID|utcDate -> tokens
}

func newMemQuotaRepo() *memQuotaRepo {
	return &memQuotaRepo{rows: make(map[string]int64)}
}

func (r *memQuotaRepo) key(userID, utcDate string) string { return userID + "|" + utcDate }

func (r *memQuotaRepo) Get(_ context.Context, userID, utcDate string) (*models.DailyQuota, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tokens, ok := r.rows[r.key(userID, utcDate)]
	if !ok {
		return nil, nil
	}
	return &models.DailyQuota{UserID: userID, UTCDate: utcDate, TokensConsumed: tokens}, nil
}

func (r *memQuotaRepo) Add(_ context.Context, userID, utcDate string, cost int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[r.key(userID, utcDate)] += cost
	return nil
}

func (r *memQuotaRepo) DeleteBefore(_ context.Context, utcDate string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for key := range r.rows {
		if key[len(key)-10:] < utcDate {
			delete(r.rows, key)
			deleted++
		}
	}
	return deleted, nil
}
