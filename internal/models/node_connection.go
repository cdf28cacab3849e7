package models

import (
	"time"

	"gorm.io/gorm"
)

// ConnectionStatus enumerates node-connection lifecycle states. Transitions:
// pending -> accepted, pending -> rejected, accepted -> rejected (removal).
// Rejected is terminal; rows are never deleted so history is retained.
type ConnectionStatus string

const (
	ConnectionPending  ConnectionStatus = "pending"
	ConnectionAccepted ConnectionStatus = "accepted"
	ConnectionRejected ConnectionStatus = "rejected"
)

// NodeConnection is the single connection record between an unordered pair of
// nodes. PairKey normalizes the pair so the unique index rejects a second
// invitation in either direction regardless of status.
type NodeConnection struct {
	BaseModel

	FromNodeID   string           `gorm:"type:uuid;index;not null" json:"from_node_id"`
	TargetNodeID string           `gorm:"type:uuid;index;not null" json:"target_node_id"`
	PairKey      string           `gorm:"uniqueIndex;not null" json:"-"`
	ClientID     string           `gorm:"not null" json:"client_id"`
	ClientSecret string           `gorm:"not null" json:"-"`
	Status       ConnectionStatus `gorm:"not null;default:pending;index" json:"status"`
	ExpiresAt    *time.Time       `json:"expires_at"`

	FromNode   *Node `gorm:"foreignKey:FromNodeID" json:"from_node,omitempty"`
	TargetNode *Node `gorm:"foreignKey:TargetNodeID" json:"target_node,omitempty"`
}

// BeforeCreate assigns the row id and derives the normalized pair key.
func (c *NodeConnection) BeforeCreate(tx *gorm.DB) error {
	if err := c.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	if c.PairKey == "" {
		c.PairKey = ConnectionPairKey(c.FromNodeID, c.TargetNodeID)
	}
	return nil
}

// ConnectionPairKey returns the normalized key for an unordered node pair.
func ConnectionPairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + ":" + b
}
