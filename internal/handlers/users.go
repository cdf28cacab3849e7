package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nodewire/nodewire/internal/models"
	"github.com/nodewire/nodewire/internal/services"
	"github.com/nodewire/nodewire/pkg/response"
)

// UserHandler exposes organization membership over HTTP.
type UserHandler struct {
	users *services.UserService
}

func NewUserHandler(users *services.UserService) *UserHandler {
	return &UserHandler{users: users}
}

type createUserRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8"`
	FirstName string `json:"first_name" validate:"omitempty,max=255"`
	LastName  string `json:"last_name" validate:"omitempty,max=255"`
	Role      string `json:"role" validate:"omitempty,oneof=user administrator root"`
}

type updateRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=user administrator root"`
}

type updateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active disabled"`
}

// POST /api/organizations/:id/users
func (h *UserHandler) Create(c *gin.Context) {
	access, ok := requireAccess(c)
	if !ok {
		return
	}

	var req createUserRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.Create(requestContext(c), access, services.CreateUserInput{
		Email:          req.Email,
		Password:       req.Password,
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Role:           models.Role(req.Role),
		OrganizationID: c.Param("id"),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, user)
}

// GET /api/users/:id
func (h *UserHandler) Get(c *gin.Context) {
	access, ok := requireAccess(c)
	if !ok {
		return
	}

	user, err := h.users.Get(requestContext(c), access, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

// GET /api/organizations/:id/users
func (h *UserHandler) List(c *gin.Context) {
	access, ok := requireAccess(c)
	if !ok {
		return
	}

	users, err := h.users.List(requestContext(c), access, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"users": users})
}

// PATCH /api/users/:id/role
func (h *UserHandler) UpdateRole(c *gin.Context) {
	access, ok := requireAccess(c)
	if !ok {
		return
	}

	var req updateRoleRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.UpdateRole(requestContext(c), access, c.Param("id"), models.Role(req.Role))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

// PATCH /api/users/:id/status
func (h *UserHandler) UpdateStatus(c *gin.Context) {
	access, ok := requireAccess(c)
	if !ok {
		return
	}

	var req updateStatusRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.users.SetStatus(requestContext(c), access, c.Param("id"), models.UserStatus(req.Status)); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"updated": true})
}
