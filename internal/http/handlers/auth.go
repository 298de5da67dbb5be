package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/veriscope/veriscope-api/internal/auth"
	"github.com/veriscope/veriscope-api/internal/service"
)

// sessionIssuer is the slice of AuthService the handler needs.
type sessionIssuer interface {
	Register(ctx context.Context, email, password string) (*service.Session, error)
	Login(ctx context.Context, email, password string) (*service.Session, error)
}

// AuthHandler handles registration and login.
type AuthHandler struct {
	authSvc      sessionIssuer
	dailyCeiling int64
}

// NewAuthHandler creates a new auth handler. The daily token ceiling
// is echoed in session responses so clients can display the budget.
func NewAuthHandler(authSvc sessionIssuer, dailyCeiling int64) *AuthHandler {
	return &AuthHandler{authSvc: authSvc, dailyCeiling: dailyCeiling}
}

// CredentialsInput carries an email/password pair.
type CredentialsInput struct {
	Body struct {
		Email    string `json:"email" format:"email" doc:"Account email address"`
		Password string `json:"password" minLength:"8" doc:"Account password"`
	}
}

// SessionOutput represents a freshly issued session.
type SessionOutput struct {
	Body struct {
		Token        string    `json:"token" doc:"Bearer token for subsequent requests"`
		ExpiresAt    time.Time `json:"expires_at"`
		DailyCeiling int64     `json:"daily_ceiling" doc:"Max tokens per UTC day"`
		UserID       string    `json:"user_id"`
		Email        string    `json:"email"`
	}
}

// Register creates an account and returns its first session.
func (h *AuthHandler) Register(ctx context.Context, input *CredentialsInput) (*SessionOutput, error) {
	session, err := h.authSvc.Register(ctx, input.Body.Email, input.Body.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmailTaken):
			return nil, huma.Error409Conflict("email already registered")
		case errors.Is(err, service.ErrInvalidEmail):
			return nil, huma.Error422UnprocessableEntity("invalid email address")
		case errors.Is(err, auth.ErrWeakPassword):
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}
		return nil, huma.Error500InternalServerError("failed to register")
	}
	return h.sessionOutput(session), nil
}

// Login verifies credentials and returns a session.
func (h *AuthHandler) Login(ctx context.Context, input *CredentialsInput) (*SessionOutput, error) {
	session, err := h.authSvc.Login(ctx, input.Body.Email, input.Body.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			return nil, huma.Error401Unauthorized("invalid email or password")
		// With auto-registration enabled an unknown email flows through
		// Register and can fail its validation.
		case errors.Is(err, service.ErrInvalidEmail):
			return nil, huma.Error422UnprocessableEntity("invalid email address")
		case errors.Is(err, auth.ErrWeakPassword):
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}
		return nil, huma.Error500InternalServerError("failed to log in")
	}
	return h.sessionOutput(session), nil
}

func (h *AuthHandler) sessionOutput(session *service.Session) *SessionOutput {
	out := &SessionOutput{}
	out.Body.Token = session.Token
	out.Body.ExpiresAt = session.ExpiresAt
	out.Body.DailyCeiling = h.dailyCeiling
	out.Body.UserID = session.User.ID
	out.Body.Email = session.User.Email
	return out
}
