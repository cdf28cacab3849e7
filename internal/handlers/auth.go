package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	iauth "github.com/nodewire/nodewire/internal/auth"
	"github.com/nodewire/nodewire/pkg/response"
)

// AuthHandler manages the authentication flow.
type AuthHandler struct {
	auth *iauth.AuthService
}

func NewAuthHandler(auth *iauth.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.auth.Login(requestContext(c), req.Email, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"token": result.Token,
		"user": gin.H{
			"id":              result.User.ID,
			"email":           result.User.Email,
			"first_name":      result.User.FirstName,
			"last_name":       result.User.LastName,
			"role":            result.User.Role,
			"organization_id": result.User.OrganizationID,
		},
	})
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	access, ok := requireAccess(c)
	if !ok {
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"id":              access.UserID,
		"email":           access.Email,
		"role":            access.Role,
		"organization_id": access.OrganizationID,
		"policies":        sortedPolicyNames(access),
	})
}
