package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/veriscope/veriscope-api/internal/auth"
	"github.com/veriscope/veriscope-api/internal/config"
	"github.com/veriscope/veriscope-api/internal/models"
	"github.com/veriscope/veriscope-api/internal/repository"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrInvalidToken       = errors.New("invalid token")
)

// Session is an authenticated user with a freshly issued bearer token.
type Session struct {
	User      *models.User
	Token     string
	ExpiresAt time.Time
}

// AuthService handles registration, login, and bearer-token validation.
type AuthService struct {
	cfg    *config.Config
	repos  *repository.Repositories
	tokens *auth.TokenIssuer
	logger *slog.Logger
}

// NewAuthService creates a new auth service.
func NewAuthService(cfg *config.Config, repos *repository.Repositories, tokens *auth.TokenIssuer, logger *slog.Logger) *AuthService {
	return &AuthService{
		cfg:    cfg,
		repos:  repos,
		tokens: tokens,
		logger: logger,
	}
}

// Register creates an account and returns a session for it.
func (s *AuthService) Register(ctx context.Context, email, password string) (*Session, error) {
	email = normalizeEmail(email)
	if !validEmail(email) {
		return nil, ErrInvalidEmail
	}
	if err := auth.CheckPasswordStrength(password); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:           ulid.Make().String(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repos.User.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	s.logger.Info("user registered", "user_id", user.ID)

	return s.newSession(user)
}

// Login verifies credentials and returns a session. With
// AUTO_REGISTER_ON_UNKNOWN enabled, an unknown email registers
// transparently instead of failing.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	email = normalizeEmail(email)

	user, err := s.repos.User.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		if s.cfg.AutoRegisterOnUnknown {
			return s.Register(ctx, email, password)
		}
		// Burn a hash comparison anyway so unknown emails take as long
		// as wrong passwords.
		auth.VerifyPassword("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy", password)
		return nil, ErrInvalidCredentials
	}

	if !auth.VerifyPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return s.newSession(user)
}

// Validate resolves a bearer token to its user.
func (s *AuthService) Validate(ctx context.Context, token string) (*models.User, error) {
	userID, err := s.tokens.Validate(token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			return nil, errors.Join(ErrInvalidToken, auth.ErrExpiredToken)
		}
		return nil, ErrInvalidToken
	}

	user, err := s.repos.User.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		// Token signed for a user that no longer exists.
		return nil, ErrInvalidToken
	}
	return user, nil
}

func (s *AuthService) newSession(user *models.User) (*Session, error) {
	token, expiresAt, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}
	return &Session{User: user, Token: token, ExpiresAt: expiresAt}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validEmail(email string) bool {
	at := strings.Index(email, "@")
	if at < 1 || at == len(email)-1 {
		return false
	}
	return strings.Contains(email[at+1:], ".")
}
