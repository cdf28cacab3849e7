package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/nodewire/nodewire/internal/models"
	"github.com/nodewire/nodewire/internal/policies"
	"github.com/nodewire/nodewire/pkg/crypto"
	apperrors "github.com/nodewire/nodewire/pkg/errors"
)

// OrganizationDTO is the API-facing organization payload. Credential fields
// are populated for self-view only; another organization's client secret is
// never exposed.
type OrganizationDTO struct {
	ID             string                    `json:"id"`
	ParentID       *string                   `json:"parent_id"`
	Name           string                    `json:"name"`
	URI            string                    `json:"uri"`
	Description    string                    `json:"description"`
	SolutionAPIURL string                    `json:"solution_api_url"`
	Status         models.OrganizationStatus `json:"status"`
	ClientID       string                    `json:"client_id,omitempty"`
	ClientSecret   string                    `json:"client_secret,omitempty"`
	NetworkKey     string                    `json:"network_key,omitempty"`
	Settings       datatypes.JSON            `json:"settings,omitempty"`
	CreatedAt      time.Time                 `json:"created_at"`
	UpdatedAt      time.Time                 `json:"updated_at"`
}

// CreateOrganizationInput captures the attributes required to register an organization.
type CreateOrganizationInput struct {
	Name           string
	ParentID       *string
	URI            string
	Description    string
	SolutionAPIURL string
	Settings       datatypes.JSON
}

// OrganizationService exposes the organization hierarchy: parent/child
// relationships, the recursive descendant query, and the descendant-or-self
// authorization predicate used by the connection state machine.
type OrganizationService struct {
	db *gorm.DB
}

// NewOrganizationService constructs an OrganizationService instance.
func NewOrganizationService(db *gorm.DB) (*OrganizationService, error) {
	if db == nil {
		return nil, errors.New("organization service: db is required")
	}
	return &OrganizationService{db: db}, nil
}

// Get loads a single organization. Callers see their own organization with
// credential fields included; any other organization requires the
// all-organizations view policy and comes back sanitized.
func (s *OrganizationService) Get(ctx context.Context, access policies.AccessContext, id string) (*OrganizationDTO, error) {
	ctx = ensureContext(ctx)

	org, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if access.OrganizationID == org.ID {
		dto := mapOrganization(*org, true)
		return &dto, nil
	}

	if err := policies.CheckAccess(access, policies.MatchAny, true, policies.OrganizationsViewAll); err != nil {
		return nil, err
	}

	dto := mapOrganization(*org, false)
	return &dto, nil
}

// Create registers a new organization. The parent, when given, must already
// exist, which keeps the hierarchy a forest by construction.
func (s *OrganizationService) Create(ctx context.Context, access policies.AccessContext, input CreateOrganizationInput) (*OrganizationDTO, error) {
	ctx = ensureContext(ctx)

	if err := policies.CheckAccess(access, policies.MatchAny, true, policies.OrganizationsManage); err != nil {
		return nil, err
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewBadRequest("organization name is required")
	}

	parentID := normalizeOptionalID(input.ParentID)
	if parentID != nil {
		if _, err := s.load(ctx, *parentID); err != nil {
			if apperrors.IsNotFound(err) {
				return nil, apperrors.NewBadRequest("parent organization does not exist")
			}
			return nil, err
		}
	}

	creds, err := crypto.GenerateCredentials()
	if err != nil {
		return nil, fmt.Errorf("organization service: generate credentials: %w", err)
	}
	networkKey, err := crypto.GenerateToken(32)
	if err != nil {
		return nil, fmt.Errorf("organization service: generate network key: %w", err)
	}

	org := models.Organization{
		ParentID:       parentID,
		Name:           name,
		URI:            strings.TrimSpace(input.URI),
		Description:    strings.TrimSpace(input.Description),
		SolutionAPIURL: strings.TrimSpace(input.SolutionAPIURL),
		ClientID:       creds.ClientID,
		ClientSecret:   creds.ClientSecret,
		NetworkKey:     networkKey,
		Settings:       input.Settings,
		Status:         models.OrganizationActive,
	}

	if err := s.db.WithContext(ctx).Create(&org).Error; err != nil {
		return nil, fmt.Errorf("organization service: create organization: %w", err)
	}

	dto := mapOrganization(org, true)
	return &dto, nil
}

// ListDescendants returns the organization itself plus every transitive child.
// Result ordering is unspecified; callers must not depend on it.
func (s *OrganizationService) ListDescendants(ctx context.Context, access policies.AccessContext, parentID string) ([]OrganizationDTO, error) {
	ctx = ensureContext(ctx)

	allowed := policies.HasAccess(access, policies.MatchAny, policies.OrganizationsViewAll) ||
		(policies.HasAccess(access, policies.MatchAny, policies.OrganizationsViewOwn) && access.OrganizationID == parentID)
	if !allowed {
		return nil, apperrors.ErrForbidden
	}

	parent, err := s.load(ctx, parentID)
	if err != nil {
		return nil, err
	}

	ids, err := s.descendantIDs(ctx, parent.ID)
	if err != nil {
		return nil, err
	}

	var orgs []models.Organization
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&orgs).Error; err != nil {
		return nil, fmt.Errorf("organization service: load descendants: %w", err)
	}

	out := make([]OrganizationDTO, 0, len(orgs))
	for _, org := range orgs {
		out = append(out, mapOrganization(org, org.ID == access.OrganizationID))
	}
	return out, nil
}

// IsDescendantOrSelf reports whether candidate sits at or below ancestor in
// the organization forest. Used by the connection state machine for
// cross-organization checks.
func (s *OrganizationService) IsDescendantOrSelf(ctx context.Context, ancestorID, candidateID string) (bool, error) {
	ctx = ensureContext(ctx)

	if ancestorID == "" || candidateID == "" {
		return false, nil
	}
	if ancestorID == candidateID {
		return true, nil
	}

	// Walk the candidate's parent chain upward. The visited set guards
	// against corrupted data; well-formed hierarchies cannot cycle.
	visited := map[string]struct{}{candidateID: {}}
	current := candidateID
	for {
		var org models.Organization
		err := s.db.WithContext(ctx).Select("id", "parent_id").First(&org, "id = ?", current).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("organization service: walk hierarchy: %w", err)
		}

		if org.ParentID == nil {
			return false, nil
		}
		if *org.ParentID == ancestorID {
			return true, nil
		}
		if _, seen := visited[*org.ParentID]; seen {
			return false, nil
		}
		visited[*org.ParentID] = struct{}{}
		current = *org.ParentID
	}
}

// descendantIDs computes the recursive closure over parent_id edges starting
// at rootID (inclusive), breadth-first.
func (s *OrganizationService) descendantIDs(ctx context.Context, rootID string) ([]string, error) {
	ids := []string{rootID}
	seen := map[string]struct{}{rootID: {}}
	frontier := []string{rootID}

	for len(frontier) > 0 {
		var children []models.Organization
		if err := s.db.WithContext(ctx).Select("id").Where("parent_id IN ?", frontier).Find(&children).Error; err != nil {
			return nil, fmt.Errorf("organization service: list children: %w", err)
		}

		frontier = frontier[:0]
		for _, child := range children {
			if _, ok := seen[child.ID]; ok {
				continue
			}
			seen[child.ID] = struct{}{}
			ids = append(ids, child.ID)
			frontier = append(frontier, child.ID)
		}
	}

	return ids, nil
}

func (s *OrganizationService) load(ctx context.Context, id string) (*models.Organization, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperrors.NewNotFound("organization not found")
	}

	var org models.Organization
	err := s.db.WithContext(ctx).First(&org, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewNotFound("organization not found")
	}
	if err != nil {
		return nil, fmt.Errorf("organization service: load organization: %w", err)
	}
	return &org, nil
}

func mapOrganization(org models.Organization, includeCredentials bool) OrganizationDTO {
	dto := OrganizationDTO{
		ID:             org.ID,
		ParentID:       org.ParentID,
		Name:           org.Name,
		URI:            org.URI,
		Description:    org.Description,
		SolutionAPIURL: org.SolutionAPIURL,
		Status:         org.Status,
		Settings:       org.Settings,
		CreatedAt:      org.CreatedAt,
		UpdatedAt:      org.UpdatedAt,
	}
	if includeCredentials {
		dto.ClientID = org.ClientID
		dto.ClientSecret = org.ClientSecret
		dto.NetworkKey = org.NetworkKey
	}
	return dto
}
