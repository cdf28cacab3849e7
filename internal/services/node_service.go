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
	apperrors "github.com/nodewire/nodewire/pkg/errors"
)

// NodeDTO is the API-facing node payload, joined with the owning
// organization's display name.
type NodeDTO struct {
	ID               string            `json:"id"`
	OrganizationID   string            `json:"organization_id"`
	OrganizationName string            `json:"organization_name,omitempty"`
	Name             string            `json:"name"`
	Type             models.NodeType   `json:"type"`
	APIURL           string            `json:"api_url"`
	Status           models.NodeStatus `json:"status"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// CreateNodeInput describes the fields needed to register a node.
type CreateNodeInput struct {
	Name   string
	Type   models.NodeType
	APIURL string
}

// UpdateNodeInput represents mutable node fields. APIURL may only be changed
// for external nodes; internal node URLs encode the node's own id and are
// immutable after creation.
type UpdateNodeInput struct {
	Name   *string
	APIURL *string
	Status *models.NodeStatus
}

// NodeList is a paginated node listing.
type NodeList struct {
	Nodes      []NodeDTO  `json:"nodes"`
	Pagination Pagination `json:"pagination"`
}

// NodeService manages the node registry: nodes are owned by exactly one
// organization and are the unit connections are established between.
type NodeService struct {
	db      *gorm.DB
	baseURL string
}

// NewNodeService constructs a NodeService. baseURL is the public URL of this
// deployment, used to derive internal node API URLs.
func NewNodeService(db *gorm.DB, baseURL string) (*NodeService, error) {
	if db == nil {
		return nil, errors.New("node service: db is required")
	}
	return &NodeService{
		db:      db,
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
	}, nil
}

// Get loads a node when the caller may see it: all-organizations policy, or
// the own-organization policy combined with ownership.
func (s *NodeService) Get(ctx context.Context, access policies.AccessContext, nodeID string) (*NodeDTO, error) {
	ctx = ensureContext(ctx)

	node, err := s.load(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(access, node.OrganizationID); err != nil {
		return nil, err
	}

	dto := mapNode(*node)
	return &dto, nil
}

// Create registers a node under the target organization. Internal nodes get a
// generated API URL embedding the node's own id; because the id is assigned at
// insert time the create runs as a two-phase insert-then-patch inside one
// transaction.
func (s *NodeService) Create(ctx context.Context, access policies.AccessContext, organizationID string, input CreateNodeInput) (*NodeDTO, error) {
	ctx = ensureContext(ctx)

	if err := s.authorize(access, organizationID); err != nil {
		return nil, err
	}

	var org models.Organization
	err := s.db.WithContext(ctx).First(&org, "id = ?", organizationID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewNotFound("organization not found")
	}
	if err != nil {
		return nil, fmt.Errorf("node service: load organization: %w", err)
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, apperrors.NewBadRequest("node name is required")
	}
	if !models.ValidNodeType(input.Type) {
		return nil, apperrors.NewBadRequest("node type must be internal or external")
	}

	apiURL := strings.TrimSpace(input.APIURL)
	if input.Type == models.NodeExternal && apiURL == "" {
		return nil, apperrors.NewBadRequest("api url is required for external nodes")
	}

	node := models.Node{
		OrganizationID: org.ID,
		Name:           name,
		Type:           input.Type,
		Status:         models.NodePending,
	}
	if input.Type == models.NodeExternal {
		node.APIURL = apiURL
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&node).Error; err != nil {
			return fmt.Errorf("node service: create node: %w", err)
		}

		if node.Type == models.NodeInternal {
			node.APIURL = s.internalAPIURL(node.ID)
			if err := tx.Model(&models.Node{}).Where("id = ?", node.ID).
				Update("api_url", node.APIURL).Error; err != nil {
				return fmt.Errorf("node service: assign internal api url: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	node.Organization = &org
	dto := mapNode(node)
	return &dto, nil
}

// Update modifies node metadata after re-authorizing against the current row.
func (s *NodeService) Update(ctx context.Context, access policies.AccessContext, nodeID string, input UpdateNodeInput) (*NodeDTO, error) {
	ctx = ensureContext(ctx)

	node, err := s.load(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(access, node.OrganizationID); err != nil {
		return nil, err
	}

	updates := map[string]any{}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, apperrors.NewBadRequest("node name must not be empty")
		}
		updates["name"] = name
	}

	if input.Status != nil {
		if !models.ValidNodeStatus(*input.Status) {
			return nil, apperrors.NewBadRequest("node status must be active, inactive or pending")
		}
		updates["status"] = *input.Status
	}

	if input.APIURL != nil {
		if node.Type == models.NodeInternal {
			return nil, apperrors.NewBadRequest("api url of an internal node cannot be changed")
		}
		apiURL := strings.TrimSpace(*input.APIURL)
		if apiURL == "" {
			return nil, apperrors.NewBadRequest("api url must not be empty")
		}
		updates["api_url"] = apiURL
	}

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(node).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("node service: update node: %w", err)
		}
	}

	reloaded, err := s.load(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	dto := mapNode(*reloaded)
	return &dto, nil
}

// Delete soft-deletes a node by marking it inactive. Rows are never removed.
func (s *NodeService) Delete(ctx context.Context, access policies.AccessContext, nodeID string) error {
	ctx = ensureContext(ctx)

	node, err := s.load(ctx, nodeID)
	if err != nil {
		return err
	}
	if err := s.authorize(access, node.OrganizationID); err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Model(node).Update("status", models.NodeInactive).Error; err != nil {
		return fmt.Errorf("node service: deactivate node: %w", err)
	}
	return nil
}

// List returns the paginated nodes of one organization.
func (s *NodeService) List(ctx context.Context, access policies.AccessContext, organizationID string, query ListQuery) (*NodeList, error) {
	ctx = ensureContext(ctx)

	if err := s.authorize(access, organizationID); err != nil {
		return nil, err
	}

	return s.list(ctx, query, func(db *gorm.DB) *gorm.DB {
		return db.Where("nodes.organization_id = ?", organizationID)
	})
}

// ListAll returns nodes across every organization. This spans tenants, so the
// all-organizations policy is required outright.
func (s *NodeService) ListAll(ctx context.Context, access policies.AccessContext, query ListQuery) (*NodeList, error) {
	ctx = ensureContext(ctx)

	if err := policies.CheckAccess(access, policies.MatchAny, true, policies.NodesManageAll); err != nil {
		return nil, err
	}

	return s.list(ctx, query, func(db *gorm.DB) *gorm.DB { return db })
}

func (s *NodeService) list(ctx context.Context, query ListQuery, scope func(*gorm.DB) *gorm.DB) (*NodeList, error) {
	normalized := query.normalized()

	filtered := scope(s.db.WithContext(ctx).Model(&models.Node{}))
	filtered = applyNodeFilters(filtered, normalized)

	var total int64
	if err := filtered.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("node service: count nodes: %w", err)
	}

	sortable := map[string]string{
		"name":       "nodes.name",
		"type":       "nodes.type",
		"status":     "nodes.status",
		"created_at": "nodes.created_at",
	}

	var rows []models.Node
	err := applyNodeFilters(scope(s.db.WithContext(ctx).Model(&models.Node{})), normalized).
		Preload("Organization").
		Order(normalized.orderClause(sortable)).
		Limit(normalized.Limit).
		Offset(normalized.Offset).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("node service: list nodes: %w", err)
	}

	nodes := make([]NodeDTO, 0, len(rows))
	for _, row := range rows {
		nodes = append(nodes, mapNode(row))
	}

	return &NodeList{
		Nodes:      nodes,
		Pagination: normalized.Pagination(total),
	}, nil
}

func applyNodeFilters(db *gorm.DB, query ListQuery) *gorm.DB {
	if nodeType := query.Filter("type"); nodeType != "" {
		db = db.Where("nodes.type = ?", nodeType)
	}
	if status := query.Filter("status"); status != "" {
		db = db.Where("nodes.status = ?", status)
	}
	if search := strings.TrimSpace(query.Search); search != "" {
		db = db.Where("LOWER(nodes.name) LIKE ?", "%"+strings.ToLower(search)+"%")
	}
	return db
}

// authorize applies the node ownership rule: all-organizations access, or
// own-organization access scoped to the caller's organization.
func (s *NodeService) authorize(access policies.AccessContext, organizationID string) error {
	if policies.HasAccess(access, policies.MatchAny, policies.NodesManageAll) {
		return nil
	}
	return policies.CheckAccess(access, policies.MatchAny,
		access.OrganizationID == organizationID, policies.NodesManageOwn)
}

func (s *NodeService) internalAPIURL(nodeID string) string {
	return fmt.Sprintf("%s/api/nodes/%s", s.baseURL, nodeID)
}

func (s *NodeService) load(ctx context.Context, nodeID string) (*models.Node, error) {
	nodeID = strings.TrimSpace(nodeID)
	if nodeID == "" {
		return nil, apperrors.NewNotFound("node not found")
	}

	var node models.Node
	err := s.db.WithContext(ctx).Preload("Organization").First(&node, "id = ?", nodeID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewNotFound("node not found")
	}
	if err != nil {
		return nil, fmt.Errorf("node service: load node: %w", err)
	}
	return &node, nil
}

func mapNode(node models.Node) NodeDTO {
	dto := NodeDTO{
		ID:             node.ID,
		OrganizationID: node.OrganizationID,
		Name:           node.Name,
		Type:           node.Type,
		APIURL:         node.APIURL,
		Status:         node.Status,
		CreatedAt:      node.CreatedAt,
		UpdatedAt:      node.UpdatedAt,
	}
	if node.Organization != nil {
		dto.OrganizationName = node.Organization.Name
	}
	return dto
}
