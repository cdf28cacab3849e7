package models

import "gorm.io/datatypes"

// OrganizationStatus enumerates the lifecycle states of an organization.
type OrganizationStatus string

const (
	OrganizationActive   OrganizationStatus = "active"
	OrganizationDisabled OrganizationStatus = "disabled"
)

// Organization is a registered tenant. Organizations form a forest via
// ParentID; the parent must exist before a child can be created and no update
// path reassigns it, so cycles cannot occur.
type Organization struct {
	BaseModel

	ParentID       *string            `gorm:"type:uuid;index" json:"parent_id"`
	Name           string             `gorm:"not null;index" json:"name"`
	URI            string             `json:"uri"`
	Description    string             `json:"description"`
	SolutionAPIURL string             `json:"solution_api_url"`
	ClientID       string             `json:"client_id,omitempty"`
	ClientSecret   string             `json:"client_secret,omitempty"`
	NetworkKey     string             `json:"network_key,omitempty"`
	Status         OrganizationStatus `gorm:"not null;default:active" json:"status"`
	Settings       datatypes.JSON     `json:"settings,omitempty"`

	Parent   *Organization  `gorm:"foreignKey:ParentID" json:"-"`
	Children []Organization `gorm:"foreignKey:ParentID" json:"-"`
	Users    []User         `gorm:"foreignKey:OrganizationID" json:"users,omitempty"`
	Nodes    []Node         `gorm:"foreignKey:OrganizationID" json:"nodes,omitempty"`
}

// ValidOrganizationStatus reports whether the value is a known status.
func ValidOrganizationStatus(status OrganizationStatus) bool {
	switch status {
	case OrganizationActive, OrganizationDisabled:
		return true
	}
	return false
}
