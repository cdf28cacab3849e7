package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/nodewire/nodewire/internal/models"
	"github.com/nodewire/nodewire/internal/policies"
	"github.com/nodewire/nodewire/pkg/crypto"
	apperrors "github.com/nodewire/nodewire/pkg/errors"
	"github.com/nodewire/nodewire/pkg/logger"
	"github.com/nodewire/nodewire/pkg/metrics"
)

// connectionLifetime is how long accepted credentials stay valid before the
// partner is expected to rotate them.
const connectionLifetime = 365 * 24 * time.Hour

// ConnectionDTO is the API-facing connection payload. The client secret stays
// encoded here; the plaintext only ever leaves through ConnectionCredentials.
type ConnectionDTO struct {
	ID             string                  `json:"id"`
	FromNodeID     string                  `json:"from_node_id"`
	FromNodeName   string                  `json:"from_node_name,omitempty"`
	TargetNodeID   string                  `json:"target_node_id"`
	TargetNodeName string                  `json:"target_node_name,omitempty"`
	ClientID       string                  `json:"client_id"`
	ClientSecret   string                  `json:"client_secret,omitempty"`
	Status         models.ConnectionStatus `json:"status"`
	ExpiresAt      *time.Time              `json:"expires_at"`
	CreatedAt      time.Time               `json:"created_at"`
	UpdatedAt      time.Time               `json:"updated_at"`
}

// ConnectionCredentials carries the decoded secret for an accepted
// connection. Returned only from accept, rotate and explicit retrieval.
type ConnectionCredentials struct {
	ConnectionID string `json:"connection_id"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// CreateInvitationInput identifies the two nodes an invitation covers.
type CreateInvitationInput struct {
	FromNodeID   string
	TargetNodeID string
}

// ConnectionList is a paginated connection listing.
type ConnectionList struct {
	Connections []ConnectionDTO `json:"connections"`
	Pagination  Pagination      `json:"pagination"`
}

// HierarchyResolver answers descendant-or-self queries over the organization
// forest. Satisfied by OrganizationService.
type HierarchyResolver interface {
	IsDescendantOrSelf(ctx context.Context, ancestorID, candidateID string) (bool, error)
}

// NodeConnectionService drives the connection lifecycle between two nodes:
// invitation, accept/reject, credential rotation and removal. All durable
// state lives in storage; every multi-write runs in a transaction and every
// transition is a status-guarded single-row update.
type NodeConnectionService struct {
	db        *gorm.DB
	codec     crypto.SecretCodec
	hierarchy HierarchyResolver
	notifier  ConnectionNotifier
	log       *zap.Logger
}

// NewNodeConnectionService constructs a NodeConnectionService. The notifier
// may be nil, in which case invitation notifications are skipped.
func NewNodeConnectionService(db *gorm.DB, codec crypto.SecretCodec, hierarchy HierarchyResolver, notifier ConnectionNotifier) (*NodeConnectionService, error) {
	if db == nil {
		return nil, errors.New("node connection service: db is required")
	}
	if codec == nil {
		return nil, errors.New("node connection service: secret codec is required")
	}
	if hierarchy == nil {
		return nil, errors.New("node connection service: hierarchy resolver is required")
	}
	return &NodeConnectionService{
		db:        db,
		codec:     codec,
		hierarchy: hierarchy,
		notifier:  notifier,
		log:       logger.WithModule("connections"),
	}, nil
}

// CreateInvitation opens a pending connection from one node to another with
// freshly generated credentials. The returned payload carries the secret in
// encoded form only; the plaintext is first surfaced to the target side on
// accept.
func (s *NodeConnectionService) CreateInvitation(ctx context.Context, access policies.AccessContext, input CreateInvitationInput) (*ConnectionDTO, error) {
	ctx = ensureContext(ctx)

	fromID := strings.TrimSpace(input.FromNodeID)
	targetID := strings.TrimSpace(input.TargetNodeID)
	if fromID == "" || targetID == "" {
		return nil, apperrors.NewBadRequest("from node and target node are required")
	}
	if fromID == targetID {
		return nil, apperrors.NewBadRequest("a node cannot connect to itself")
	}

	fromNode, err := s.loadNode(ctx, fromID)
	if err != nil {
		return nil, err
	}
	targetNode, err := s.loadNode(ctx, targetID)
	if err != nil {
		return nil, err
	}

	// Inviting requires edit-level access on the from side specifically.
	if err := s.authorize(ctx, access, fromNode.OrganizationID); err != nil {
		return nil, err
	}

	creds, err := crypto.GenerateCredentials()
	if err != nil {
		return nil, fmt.Errorf("node connection service: generate credentials: %w", err)
	}
	encoded, err := s.codec.Encode(creds.ClientSecret)
	if err != nil {
		return nil, fmt.Errorf("node connection service: encode secret: %w", err)
	}

	conn := models.NodeConnection{
		FromNodeID:   fromNode.ID,
		TargetNodeID: targetNode.ID,
		ClientID:     creds.ClientID,
		ClientSecret: encoded,
		Status:       models.ConnectionPending,
	}

	// The existence check and insert run in one transaction, and the
	// normalized pair key carries a unique index, so two concurrent
	// invitations cannot both pass the check.
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.NodeConnection{}).
			Where("pair_key = ?", models.ConnectionPairKey(fromNode.ID, targetNode.ID)).
			Count(&count).Error; err != nil {
			return fmt.Errorf("node connection service: check existing connection: %w", err)
		}
		if count > 0 {
			return apperrors.NewBadRequest("a connection between these nodes already exists")
		}

		if err := tx.Create(&conn).Error; err != nil {
			if isUniqueConstraintError(err) {
				return apperrors.NewBadRequest("a connection between these nodes already exists")
			}
			return fmt.Errorf("node connection service: create invitation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.ConnectionTransitions.WithLabelValues("invited").Inc()
	s.notifyInvitation(ctx, fromNode, targetNode)

	dto := mapConnection(conn, fromNode, targetNode)
	return &dto, nil
}

// ListInvitations returns the pending invitations targeting the given node.
func (s *NodeConnectionService) ListInvitations(ctx context.Context, access policies.AccessContext, nodeID string, query ListQuery) (*ConnectionList, error) {
	ctx = ensureContext(ctx)

	node, err := s.loadNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, access, node.OrganizationID); err != nil {
		return nil, err
	}

	return s.list(ctx, query, func(db *gorm.DB) *gorm.DB {
		return db.Where("target_node_id = ? AND status = ?", node.ID, models.ConnectionPending)
	})
}

// AcceptInvitation transitions a pending invitation to accepted and returns
// the decoded credentials. Accepting is the target side's privilege. An
// invitation that was already processed is indistinguishable from one that
// never existed.
func (s *NodeConnectionService) AcceptInvitation(ctx context.Context, access policies.AccessContext, invitationID string) (*ConnectionCredentials, error) {
	ctx = ensureContext(ctx)

	conn, err := s.loadConnection(ctx, invitationID, models.ConnectionPending)
	if err != nil {
		return nil, err
	}

	targetNode, err := s.loadNode(ctx, conn.TargetNodeID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, access, targetNode.OrganizationID); err != nil {
		return nil, err
	}

	// Decode before committing the transition. Accepting is the target
	// side's only chance at the plaintext, so an undecodable secret must
	// leave the invitation pending rather than strand an accepted row.
	secret, err := s.codec.Decode(conn.ClientSecret)
	if err != nil {
		return nil, fmt.Errorf("node connection service: decode secret: %w", err)
	}

	expiresAt := time.Now().Add(connectionLifetime)
	if err := s.transition(ctx, conn.ID, models.ConnectionPending, map[string]any{
		"status":     models.ConnectionAccepted,
		"expires_at": expiresAt,
	}); err != nil {
		return nil, err
	}

	metrics.ConnectionTransitions.WithLabelValues("accepted").Inc()

	return &ConnectionCredentials{
		ConnectionID: conn.ID,
		ClientID:     conn.ClientID,
		ClientSecret: secret,
	}, nil
}

// RejectInvitation transitions a pending invitation to rejected. Same
// preconditions and authorization as accept.
func (s *NodeConnectionService) RejectInvitation(ctx context.Context, access policies.AccessContext, invitationID string) error {
	ctx = ensureContext(ctx)

	conn, err := s.loadConnection(ctx, invitationID, models.ConnectionPending)
	if err != nil {
		return err
	}

	targetNode, err := s.loadNode(ctx, conn.TargetNodeID)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, access, targetNode.OrganizationID); err != nil {
		return err
	}

	if err := s.transition(ctx, conn.ID, models.ConnectionPending, map[string]any{
		"status": models.ConnectionRejected,
	}); err != nil {
		return err
	}

	metrics.ConnectionTransitions.WithLabelValues("rejected").Inc()
	return nil
}

// ListConnections returns the accepted connections touching the given node on
// either side of the pair.
func (s *NodeConnectionService) ListConnections(ctx context.Context, access policies.AccessContext, nodeID string, query ListQuery) (*ConnectionList, error) {
	ctx = ensureContext(ctx)

	node, err := s.loadNode(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, access, node.OrganizationID); err != nil {
		return nil, err
	}

	return s.list(ctx, query, func(db *gorm.DB) *gorm.DB {
		return db.Where("(from_node_id = ? OR target_node_id = ?) AND status = ?",
			node.ID, node.ID, models.ConnectionAccepted)
	})
}

// RemoveConnection soft-removes an accepted connection by forcing its status
// to rejected; the row is kept for audit history. Either side of the pair may
// remove.
func (s *NodeConnectionService) RemoveConnection(ctx context.Context, access policies.AccessContext, connectionID string) error {
	ctx = ensureContext(ctx)

	conn, err := s.loadConnection(ctx, connectionID, models.ConnectionAccepted)
	if err != nil {
		return err
	}

	fromNode, err := s.loadNode(ctx, conn.FromNodeID)
	if err != nil {
		return err
	}
	targetNode, err := s.loadNode(ctx, conn.TargetNodeID)
	if err != nil {
		return err
	}

	if err := s.authorize(ctx, access, fromNode.OrganizationID); err != nil {
		if err := s.authorize(ctx, access, targetNode.OrganizationID); err != nil {
			return apperrors.ErrForbidden
		}
	}

	if err := s.transition(ctx, conn.ID, models.ConnectionAccepted, map[string]any{
		"status": models.ConnectionRejected,
	}); err != nil {
		return err
	}

	metrics.ConnectionTransitions.WithLabelValues("removed").Inc()
	return nil
}

// RotateCredentials replaces the credential pair of an accepted connection
// and extends its lifetime. Rotation is an inviter-side privilege.
func (s *NodeConnectionService) RotateCredentials(ctx context.Context, access policies.AccessContext, connectionID string) (*ConnectionCredentials, error) {
	ctx = ensureContext(ctx)

	conn, err := s.loadConnection(ctx, connectionID, models.ConnectionAccepted)
	if err != nil {
		return nil, err
	}

	fromNode, err := s.loadNode(ctx, conn.FromNodeID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, access, fromNode.OrganizationID); err != nil {
		return nil, err
	}

	creds, err := crypto.GenerateCredentials()
	if err != nil {
		return nil, fmt.Errorf("node connection service: generate credentials: %w", err)
	}
	encoded, err := s.codec.Encode(creds.ClientSecret)
	if err != nil {
		return nil, fmt.Errorf("node connection service: encode secret: %w", err)
	}

	expiresAt := time.Now().Add(connectionLifetime)
	if err := s.transition(ctx, conn.ID, models.ConnectionAccepted, map[string]any{
		"client_id":     creds.ClientID,
		"client_secret": encoded,
		"expires_at":    expiresAt,
	}); err != nil {
		return nil, err
	}

	metrics.ConnectionTransitions.WithLabelValues("rotated").Inc()

	return &ConnectionCredentials{
		ConnectionID: conn.ID,
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
	}, nil
}

// GetCredentials decodes and returns the credentials of an accepted
// connection. Read-only disclosure path, inviter side only.
func (s *NodeConnectionService) GetCredentials(ctx context.Context, access policies.AccessContext, connectionID string) (*ConnectionCredentials, error) {
	ctx = ensureContext(ctx)

	conn, err := s.loadConnection(ctx, connectionID, models.ConnectionAccepted)
	if err != nil {
		return nil, err
	}

	fromNode, err := s.loadNode(ctx, conn.FromNodeID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, access, fromNode.OrganizationID); err != nil {
		return nil, err
	}

	// Expired credentials are not handed out again; rotation is the
	// recovery path.
	if conn.ExpiresAt != nil && time.Now().After(*conn.ExpiresAt) {
		return nil, apperrors.NewBadRequest("connection credentials have expired")
	}

	secret, err := s.codec.Decode(conn.ClientSecret)
	if err != nil {
		return nil, fmt.Errorf("node connection service: decode secret: %w", err)
	}

	return &ConnectionCredentials{
		ConnectionID: conn.ID,
		ClientID:     conn.ClientID,
		ClientSecret: secret,
	}, nil
}

// transition performs a status-guarded single-row update. Zero affected rows
// means another request already moved the row, which callers surface the same
// way as a missing row.
func (s *NodeConnectionService) transition(ctx context.Context, id string, expected models.ConnectionStatus, updates map[string]any) error {
	result := s.db.WithContext(ctx).Model(&models.NodeConnection{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("node connection service: update connection: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFound("connection not found")
	}
	return nil
}

func (s *NodeConnectionService) list(ctx context.Context, query ListQuery, scope func(*gorm.DB) *gorm.DB) (*ConnectionList, error) {
	normalized := query.normalized()

	var total int64
	if err := scope(s.db.WithContext(ctx).Model(&models.NodeConnection{})).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("node connection service: count connections: %w", err)
	}

	sortable := map[string]string{
		"created_at": "created_at",
		"updated_at": "updated_at",
		"expires_at": "expires_at",
	}

	var rows []models.NodeConnection
	err := scope(s.db.WithContext(ctx).Model(&models.NodeConnection{})).
		Preload("FromNode").
		Preload("TargetNode").
		Order(normalized.orderClause(sortable)).
		Limit(normalized.Limit).
		Offset(normalized.Offset).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("node connection service: list connections: %w", err)
	}

	connections := make([]ConnectionDTO, 0, len(rows))
	for _, row := range rows {
		connections = append(connections, mapConnection(row, row.FromNode, row.TargetNode))
	}

	return &ConnectionList{
		Connections: connections,
		Pagination:  normalized.Pagination(total),
	}, nil
}

// notifyInvitation emails the target organization's administrators. Fire and
// forget: a delivery failure never fails the invitation.
func (s *NodeConnectionService) notifyInvitation(ctx context.Context, fromNode, targetNode *models.Node) {
	if s.notifier == nil {
		return
	}

	var admins []models.User
	err := s.db.WithContext(ctx).
		Where("organization_id = ? AND role IN ? AND status = ?",
			targetNode.OrganizationID,
			[]models.Role{models.RoleAdministrator, models.RoleRoot},
			models.UserActive).
		Find(&admins).Error
	if err != nil {
		s.log.Warn("resolve notification recipients failed",
			zap.String("target_node", targetNode.ID), zap.Error(err))
		return
	}

	recipients := make([]string, 0, len(admins))
	for _, admin := range admins {
		recipients = append(recipients, admin.Email)
	}

	notification := ConnectionNotification{
		Recipients:     recipients,
		TargetNodeName: targetNode.Name,
	}
	if targetNode.Organization != nil {
		notification.TargetOrgName = targetNode.Organization.Name
	}
	if fromNode.Organization != nil {
		notification.InvitingOrgName = fromNode.Organization.Name
	}

	if err := s.notifier.ConnectionRequested(ctx, notification); err != nil {
		s.log.Warn("connection request notification failed",
			zap.String("target_node", targetNode.ID), zap.Error(err))
	}
}

// authorize applies the connection ownership rule against a node's owning
// organization. Own-level access extends down the caller's subtree, so an
// administrator manages connections for the nodes of child organizations too.
func (s *NodeConnectionService) authorize(ctx context.Context, access policies.AccessContext, organizationID string) error {
	if policies.HasAccess(access, policies.MatchAny, policies.ConnectionsManageAll) {
		return nil
	}
	if !policies.HasAccess(access, policies.MatchAny, policies.ConnectionsManageOwn) {
		return apperrors.ErrForbidden
	}
	if access.OrganizationID == organizationID {
		return nil
	}

	managed, err := s.hierarchy.IsDescendantOrSelf(ctx, access.OrganizationID, organizationID)
	if err != nil {
		return fmt.Errorf("node connection service: resolve hierarchy: %w", err)
	}
	if !managed {
		return apperrors.ErrForbidden
	}
	return nil
}

// loadConnection fetches a connection only when it currently holds the
// expected status; anything else reads as not found so repeat callers cannot
// probe state transitions.
func (s *NodeConnectionService) loadConnection(ctx context.Context, id string, expected models.ConnectionStatus) (*models.NodeConnection, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperrors.NewNotFound("connection not found")
	}

	var conn models.NodeConnection
	err := s.db.WithContext(ctx).First(&conn, "id = ? AND status = ?", id, expected).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewNotFound("connection not found")
	}
	if err != nil {
		return nil, fmt.Errorf("node connection service: load connection: %w", err)
	}
	return &conn, nil
}

func (s *NodeConnectionService) loadNode(ctx context.Context, nodeID string) (*models.Node, error) {
	var node models.Node
	err := s.db.WithContext(ctx).Preload("Organization").First(&node, "id = ?", nodeID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewNotFound("node not found")
	}
	if err != nil {
		return nil, fmt.Errorf("node connection service: load node: %w", err)
	}
	return &node, nil
}

func mapConnection(conn models.NodeConnection, fromNode, targetNode *models.Node) ConnectionDTO {
	dto := ConnectionDTO{
		ID:           conn.ID,
		FromNodeID:   conn.FromNodeID,
		TargetNodeID: conn.TargetNodeID,
		ClientID:     conn.ClientID,
		ClientSecret: conn.ClientSecret,
		Status:       conn.Status,
		ExpiresAt:    conn.ExpiresAt,
		CreatedAt:    conn.CreatedAt,
		UpdatedAt:    conn.UpdatedAt,
	}
	if fromNode != nil {
		dto.FromNodeName = fromNode.Name
	}
	if targetNode != nil {
		dto.TargetNodeName = targetNode.Name
	}
	return dto
}
