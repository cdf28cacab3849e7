package models

// Role is the enumerated role tag assigned to a user. It is immutable once
// assigned except through the privileged role update in the user service.
type Role string

const (
	RoleUser          Role = "user"
	RoleAdministrator Role = "administrator"
	RoleRoot          Role = "root"
)

// ValidRole reports whether the value is a known role.
func ValidRole(role Role) bool {
	switch role {
	case RoleUser, RoleAdministrator, RoleRoot:
		return true
	}
	return false
}

// UserStatus enumerates account states.
type UserStatus string

const (
	UserActive   UserStatus = "active"
	UserDisabled UserStatus = "disabled"
)

// User is a member of exactly one organization.
type User struct {
	BaseModel

	Email          string     `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash   string     `gorm:"not null" json:"-"`
	FirstName      string     `json:"first_name"`
	LastName       string     `json:"last_name"`
	Role           Role       `gorm:"not null;default:user" json:"role"`
	Status         UserStatus `gorm:"not null;default:active" json:"status"`
	OrganizationID string     `gorm:"type:uuid;index;not null" json:"organization_id"`

	Organization *Organization `gorm:"foreignKey:OrganizationID" json:"organization,omitempty"`
}
