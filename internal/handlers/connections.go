package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nodewire/nodewire/internal/services"
	"github.com/nodewire/nodewire/pkg/response"
)

// ConnectionHandler exposes the node-connection lifecycle over HTTP.
type ConnectionHandler struct {
	connections *services.NodeConnectionService
}

func NewConnectionHandler(connections *services.NodeConnectionService) *ConnectionHandler {
	return &ConnectionHandler{connections: connections}
}

type createInvitationRequest struct {
	FromNodeID   string `json:"from_node_id" validate:"required"`
	TargetNodeID string `json:"target_node_id" validate:"required"`
}

// POST /api/connections/invitations
func (h *ConnectionHandler) CreateInvitation(c *gin.Context) {
	access, ok := requireAccess(c)
	if !ok {
		return
	}

	var req createInvitationRequest
	if !bindAndValidate(c, &req) {
		return
	}

	conn, err := h.connections.CreateInvitation(requestContext(c), access, services.CreateInvitationInput{
		FromNodeID:   req.FromNodeID,
		TargetNodeID: req.TargetNodeID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, conn)
}

// GET /api/nodes/:id/invitations
func (h *ConnectionHandler) ListInvitations(c *gin.Context) {
	access, ok := requireAccess(c)
	if !ok {
		return
	}

	list, err := h.connections.ListInvitations(requestContext(c), access, c.Param("id"), listQueryFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, gin.H{"invitations": list.Connections}, paginationMeta(list.Pagination))
}

// POST /api/connections/invitations/:id/accept
func (h *ConnectionHandler) AcceptInvitation(c *gin.Context) {
	access, ok := requireAccess(c)
	if !ok {
		return
	}

	creds, err := h.connections.AcceptInvitation(requestContext(c), access, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, creds)
}

// POST /api/connections/invitations/:id/reject
func (h *ConnectionHandler) RejectInvitation(c *gin.Context) {
	access, ok := requireAccess(c)
	if !ok {
		return
	}

	if err := h.connections.RejectInvitation(requestContext(c), access, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"rejected": true})
}

// GET /api/nodes/:id/connections
func (h *ConnectionHandler) ListConnections(c *gin.Context) {
	access, ok := requireAccess(c)
	if !ok {
		return
	}

	list, err := h.connections.ListConnections(requestContext(c), access, c.Param("id"), listQueryFrom(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, gin.H{"connections": list.Connections}, paginationMeta(list.Pagination))
}

// DELETE /api/connections/:id
func (h *ConnectionHandler) RemoveConnection(c *gin.Context) {
	access, ok := requireAccess(c)
	if !ok {
		return
	}

	if err := h.connections.RemoveConnection(requestContext(c), access, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"removed": true})
}

// POST /api/connections/:id/rotate
func (h *ConnectionHandler) RotateCredentials(c *gin.Context) {
	access, ok := requireAccess(c)
	if !ok {
		return
	}

	creds, err := h.connections.RotateCredentials(requestContext(c), access, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, creds)
}

// GET /api/connections/:id/credentials
func (h *ConnectionHandler) GetCredentials(c *gin.Context) {
	access, ok := requireAccess(c)
	if !ok {
		return
	}

	creds, err := h.connections.GetCredentials(requestContext(c), access, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, creds)
}
