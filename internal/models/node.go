package models

// NodeType distinguishes platform-hosted nodes from externally hosted ones.
type NodeType string

const (
	NodeInternal NodeType = "internal"
	NodeExternal NodeType = "external"
)

// ValidNodeType reports whether the value is a known node type.
func ValidNodeType(t NodeType) bool {
	return t == NodeInternal || t == NodeExternal
}

// NodeStatus enumerates node lifecycle states. Nodes are never hard-deleted;
// removal sets the status to inactive.
type NodeStatus string

const (
	NodeActive   NodeStatus = "active"
	NodeInactive NodeStatus = "inactive"
	NodePending  NodeStatus = "pending"
)

// ValidNodeStatus reports whether the value is a known node status.
func ValidNodeStatus(status NodeStatus) bool {
	switch status {
	case NodeActive, NodeInactive, NodePending:
		return true
	}
	return false
}

// Node is an API endpoint owned by exactly one organization. Connections are
// established between nodes, not between organizations directly. Internal
// nodes carry a generated APIURL that embeds their own id and is immutable
// after creation; external nodes carry a caller-supplied URL.
type Node struct {
	BaseModel

	OrganizationID string     `gorm:"type:uuid;index;not null" json:"organization_id"`
	Name           string     `gorm:"not null;index" json:"name"`
	Type           NodeType   `gorm:"not null" json:"type"`
	APIURL         string     `json:"api_url"`
	Status         NodeStatus `gorm:"not null;default:pending" json:"status"`

	Organization *Organization `gorm:"foreignKey:OrganizationID" json:"organization,omitempty"`
}
