package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"github.com/nodewire/nodewire/internal/services"
	"github.com/nodewire/nodewire/pkg/response"
)

// OrganizationHandler exposes the organization hierarchy over HTTP.
type OrganizationHandler struct {
	organizations *services.OrganizationService
}

func NewOrganizationHandler(organizations *services.OrganizationService) *OrganizationHandler {
	return &OrganizationHandler{organizations: organizations}
}

type createOrganizationRequest struct {
	Name           string          `json:"name" validate:"required,min=2,max=255"`
	ParentID       *string         `json:"parent_id"`
	URI            string          `json:"uri" validate:"omitempty,url"`
	Description    string          `json:"description" validate:"omitempty,max=1024"`
	SolutionAPIURL string          `json:"solution_api_url" validate:"omitempty,url"`
	Settings       json.RawMessage `json:"settings"`
}

// GET /api/organizations/:id
func (h *OrganizationHandler) Get(c *gin.Context) {
	access, ok := requireAccess(c)
	if !ok {
		return
	}

	org, err := h.organizations.Get(requestContext(c), access, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, org)
}

// POST /api/organizations
func (h *OrganizationHandler) Create(c *gin.Context) {
	access, ok := requireAccess(c)
	if !ok {
		return
	}

	var req createOrganizationRequest
	if !bindAndValidate(c, &req) {
		return
	}

	org, err := h.organizations.Create(requestContext(c), access, services.CreateOrganizationInput{
		Name:           req.Name,
		ParentID:       req.ParentID,
		URI:            req.URI,
		Description:    req.Description,
		SolutionAPIURL: req.SolutionAPIURL,
		Settings:       datatypes.JSON(req.Settings),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, org)
}

// GET /api/organizations/:id/descendants
func (h *OrganizationHandler) ListDescendants(c *gin.Context) {
	access, ok := requireAccess(c)
	if !ok {
		return
	}

	orgs, err := h.organizations.ListDescendants(requestContext(c), access, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"organizations": orgs})
}
