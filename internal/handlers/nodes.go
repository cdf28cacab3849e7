package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nodewire/nodewire/internal/models"
	"github.com/nodewire/nodewire/internal/services"
	"github.com/nodewire/nodewire/pkg/response"
)

// NodeHandler exposes the node registry over HTTP.
type NodeHandler struct {
	nodes *services.NodeService
}

func NewNodeHandler(nodes *services.NodeService) *NodeHandler {
	return &NodeHandler{nodes: nodes}
}

type createNodeRequest struct {
	Name   string `json:"name" validate:"required,min=2,max=255"`
	Type   string `json:"type" validate:"required,oneof=internal external"`
	APIURL string `json:"api_url" validate:"omitempty,url"`
}

type updateNodeRequest struct {
	Name   *string `json:"name" validate:"omitempty,min=2,max=255"`
	APIURL *string `json:"api_url" validate:"omitempty,url"`
	Status *string `json:"status" validate:"omitempty,oneof=active inactive pending"`
}

// GET /api/nodes/:id
func (h *NodeHandler) Get(c *gin.Context) {
	access, ok := requireAccess(c)
	if !ok {
		return
	}

	node, err := h.nodes.Get(requestContext(c), access, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, node)
}

// POST /api/organizations/:id/nodes
func (h *NodeHandler) Create(c *gin.Context) {
	access, ok := requireAccess(c)
	if !ok {
		return
	}

	var req createNodeRequest
	if !bindAndValidate(c, &req) {
		return
	}

	node, err := h.nodes.Create(requestContext(c), access, c.Param("id"), services.CreateNodeInput{
		Name:   req.Name,
		Type:   models.NodeType(req.Type),
		APIURL: req.APIURL,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, node)
}

// PATCH /api/nodes/:id
func (h *NodeHandler) Update(c *gin.Context) {
	access, ok := requireAccess(c)
	if !ok {
		return
	}

	var req updateNodeRequest
	if !bindAndValidate(c, &req) {
		return
	}

	input := services.UpdateNodeInput{
		Name:   req.Name,
		APIURL: req.APIURL,
	}
	if req.Status != nil {
		status := models.NodeStatus(*req.Status)
		input.Status = &status
	}

	node, err := h.nodes.Update(requestContext(c), access, c.Param("id"), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, node)
}

// DELETE /api/nodes/:id
func (h *NodeHandler) Delete(c *gin.Context) {
	access, ok := requireAccess(c)
	if !ok {
		return
	}

	if err := h.nodes.Delete(requestContext(c), access, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// GET /api/organizations/:id/nodes
func (h *NodeHandler) List(c *gin.Context) {
	access, ok := requireAccess(c)
	if !ok {
		return
	}

	list, err := h.nodes.List(requestContext(c), access, c.Param("id"), listQueryFrom(c, "type", "status"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, gin.H{"nodes": list.Nodes}, paginationMeta(list.Pagination))
}

// GET /api/nodes
func (h *NodeHandler) ListAll(c *gin.Context) {
	access, ok := requireAccess(c)
	if !ok {
		return
	}

	list, err := h.nodes.ListAll(requestContext(c), access, listQueryFrom(c, "type", "status"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, gin.H{"nodes": list.Nodes}, paginationMeta(list.Pagination))
}
