package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/nodewire/nodewire/internal/models"
	"github.com/nodewire/nodewire/internal/policies"
	"github.com/nodewire/nodewire/pkg/crypto"
	apperrors "github.com/nodewire/nodewire/pkg/errors"
)

// UserDTO is the API-facing user payload.
type UserDTO struct {
	ID             string            `json:"id"`
	Email          string            `json:"email"`
	FirstName      string            `json:"first_name"`
	LastName       string            `json:"last_name"`
	Role           models.Role       `json:"role"`
	Status         models.UserStatus `json:"status"`
	OrganizationID string            `json:"organization_id"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// CreateUserInput captures the attributes required to register a user.
type CreateUserInput struct {
	Email          string
	Password       string
	FirstName      string
	LastName       string
	Role           models.Role
	OrganizationID string
}

// UserService manages organization membership. Role assignment is the
// security-sensitive part: granting an administrative role requires the
// role-management policy on top of ordinary user management.
type UserService struct {
	db *gorm.DB
}

// NewUserService constructs a UserService instance.
func NewUserService(db *gorm.DB) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	return &UserService{db: db}, nil
}

// Create registers a user in the target organization.
func (s *UserService) Create(ctx context.Context, access policies.AccessContext, input CreateUserInput) (*UserDTO, error) {
	ctx = ensureContext(ctx)

	orgID := strings.TrimSpace(input.OrganizationID)
	if err := s.authorize(access, orgID); err != nil {
		return nil, err
	}

	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return nil, apperrors.NewBadRequest("email is required")
	}
	if strings.TrimSpace(input.Password) == "" {
		return nil, apperrors.NewBadRequest("password is required")
	}

	role := input.Role
	if role == "" {
		role = models.RoleUser
	}
	if !models.ValidRole(role) {
		return nil, apperrors.NewBadRequest("role must be user, administrator or root")
	}
	if role != models.RoleUser {
		if err := policies.CheckAccess(access, policies.MatchAny, true, policies.UsersManageRoles); err != nil {
			return nil, err
		}
	}

	var org models.Organization
	err := s.db.WithContext(ctx).First(&org, "id = ?", orgID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewNotFound("organization not found")
	}
	if err != nil {
		return nil, fmt.Errorf("user service: load organization: %w", err)
	}

	hash, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("user service: hash password: %w", err)
	}

	user := models.User{
		Email:          email,
		PasswordHash:   hash,
		FirstName:      strings.TrimSpace(input.FirstName),
		LastName:       strings.TrimSpace(input.LastName),
		Role:           role,
		Status:         models.UserActive,
		OrganizationID: org.ID,
	}

	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.ErrConflict.WithMessage("email is already registered")
		}
		return nil, fmt.Errorf("user service: create user: %w", err)
	}

	dto := mapUser(user)
	return &dto, nil
}

// Get loads a single user under the usual ownership rule.
func (s *UserService) Get(ctx context.Context, access policies.AccessContext, userID string) (*UserDTO, error) {
	ctx = ensureContext(ctx)

	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(access, user.OrganizationID); err != nil {
		return nil, err
	}

	dto := mapUser(*user)
	return &dto, nil
}

// List returns the users of one organization.
func (s *UserService) List(ctx context.Context, access policies.AccessContext, organizationID string) ([]UserDTO, error) {
	ctx = ensureContext(ctx)

	if err := s.authorize(access, organizationID); err != nil {
		return nil, err
	}

	var users []models.User
	if err := s.db.WithContext(ctx).
		Where("organization_id = ?", organizationID).
		Order("created_at DESC").
		Find(&users).Error; err != nil {
		return nil, fmt.Errorf("user service: list users: %w", err)
	}

	out := make([]UserDTO, 0, len(users))
	for _, user := range users {
		out = append(out, mapUser(user))
	}
	return out, nil
}

// UpdateRole performs the privileged role change. Roles are otherwise
// immutable once assigned.
func (s *UserService) UpdateRole(ctx context.Context, access policies.AccessContext, userID string, role models.Role) (*UserDTO, error) {
	ctx = ensureContext(ctx)

	if !models.ValidRole(role) {
		return nil, apperrors.NewBadRequest("role must be user, administrator or root")
	}
	if err := policies.CheckAccess(access, policies.MatchAny, true, policies.UsersManageRoles); err != nil {
		return nil, err
	}

	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	if user.Role != role {
		if err := s.db.WithContext(ctx).Model(user).Update("role", role).Error; err != nil {
			return nil, fmt.Errorf("user service: update role: %w", err)
		}
		user.Role = role
	}

	dto := mapUser(*user)
	return &dto, nil
}

// SetStatus enables or disables an account.
func (s *UserService) SetStatus(ctx context.Context, access policies.AccessContext, userID string, status models.UserStatus) error {
	ctx = ensureContext(ctx)

	if status != models.UserActive && status != models.UserDisabled {
		return apperrors.NewBadRequest("status must be active or disabled")
	}

	user, err := s.load(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.authorize(access, user.OrganizationID); err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Model(user).Update("status", status).Error; err != nil {
		return fmt.Errorf("user service: update status: %w", err)
	}
	return nil
}

func (s *UserService) authorize(access policies.AccessContext, organizationID string) error {
	if policies.HasAccess(access, policies.MatchAny, policies.UsersManageAll) {
		return nil
	}
	return policies.CheckAccess(access, policies.MatchAny,
		access.OrganizationID == organizationID, policies.UsersManageOwn)
}

func (s *UserService) load(ctx context.Context, userID string) (*models.User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperrors.NewNotFound("user not found")
	}

	var user models.User
	err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewNotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("user service: load user: %w", err)
	}
	return &user, nil
}

func mapUser(user models.User) UserDTO {
	return UserDTO{
		ID:             user.ID,
		Email:          user.Email,
		FirstName:      user.FirstName,
		LastName:       user.LastName,
		Role:           user.Role,
		Status:         user.Status,
		OrganizationID: user.OrganizationID,
		CreatedAt:      user.CreatedAt,
		UpdatedAt:      user.UpdatedAt,
	}
}
