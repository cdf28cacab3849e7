package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/nodewire/nodewire/internal/models"
	"github.com/nodewire/nodewire/internal/policies"
	"github.com/nodewire/nodewire/pkg/crypto"
	apperrors "github.com/nodewire/nodewire/pkg/errors"
	"github.com/nodewire/nodewire/pkg/metrics"
)

// LoginResult carries the issued token alongside the authenticated user.
type LoginResult struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// AuthService authenticates users and resolves their access contexts. Policy
// sets come from the registry keyed by role; nothing about a user's
// effective policies is persisted.
type AuthService struct {
	db       *gorm.DB
	jwt      *JWTService
	registry *policies.Registry
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(db *gorm.DB, jwtService *JWTService, registry *policies.Registry) (*AuthService, error) {
	if db == nil {
		return nil, errors.New("auth service: db is required")
	}
	if jwtService == nil {
		return nil, errors.New("auth service: jwt service is required")
	}
	if registry == nil {
		return nil, errors.New("auth service: policy registry is required")
	}
	return &AuthService{db: db, jwt: jwtService, registry: registry}, nil
}

// Login verifies the email/password pair and issues an access token. Failed
// attempts are indistinguishable regardless of whether the account exists.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, apperrors.ErrInvalidCredentials
	}

	var user models.User
	err := s.db.WithContext(ctx).First(&user, "email = ?", email).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, apperrors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("auth service: load user: %w", err)
	}

	if !crypto.VerifyPassword(user.PasswordHash, password) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, apperrors.ErrInvalidCredentials
	}
	if user.Status != models.UserActive {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, apperrors.ErrUnauthorized.WithMessage("account is disabled")
	}

	token, err := s.jwt.GenerateAccessToken(user.ID)
	if err != nil {
		return nil, fmt.Errorf("auth service: issue token: %w", err)
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	return &LoginResult{Token: token, User: user}, nil
}

// ResolveAccessContext validates a bearer token and loads the corresponding
// user's access context.
func (s *AuthService) ResolveAccessContext(ctx context.Context, tokenString string) (policies.AccessContext, error) {
	claims, err := s.jwt.ValidateAccessToken(tokenString)
	if err != nil {
		return policies.AccessContext{}, apperrors.ErrUnauthorized.WithInternal(err)
	}

	var user models.User
	dbErr := s.db.WithContext(ctx).First(&user, "id = ?", claims.UserID).Error
	if errors.Is(dbErr, gorm.ErrRecordNotFound) {
		return policies.AccessContext{}, apperrors.ErrUnauthorized
	}
	if dbErr != nil {
		return policies.AccessContext{}, fmt.Errorf("auth service: load user: %w", dbErr)
	}

	if user.Status != models.UserActive {
		return policies.AccessContext{}, apperrors.ErrUnauthorized.WithMessage("account is disabled")
	}

	return s.BuildAccessContext(user), nil
}

// BuildAccessContext derives the access context of a user from the policy
// registry.
func (s *AuthService) BuildAccessContext(user models.User) policies.AccessContext {
	return policies.AccessContext{
		UserID:         user.ID,
		OrganizationID: user.OrganizationID,
		Role:           user.Role,
		Email:          user.Email,
		Status:         user.Status,
		Policies:       s.registry.PoliciesFor(user.Role),
	}
}
