package models

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestConnectionPairKeyIsOrderIndependent(t *testing.T) {
	require.Equal(t, ConnectionPairKey("a", "b"), ConnectionPairKey("b", "a"))
	require.Equal(t, "a:b", ConnectionPairKey("b", "a"))
}

func TestNodeConnectionBeforeCreateDerivesPairKey(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:models-test?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&NodeConnection{}))

	conn := NodeConnection{
		FromNodeID:   "node-b",
		TargetNodeID: "node-a",
		ClientID:     "cid",
		ClientSecret: "encoded",
		Status:       ConnectionPending,
	}
	require.NoError(t, db.Create(&conn).Error)
	require.NotEmpty(t, conn.ID)
	require.Equal(t, "node-a:node-b", conn.PairKey)

	// The unique index blocks a reverse-direction row regardless of status.
	reverse := NodeConnection{
		FromNodeID:   "node-a",
		TargetNodeID: "node-b",
		ClientID:     "cid2",
		ClientSecret: "encoded2",
		Status:       ConnectionRejected,
	}
	require.Error(t, db.Create(&reverse).Error)
}

func TestEnumValidators(t *testing.T) {
	require.True(t, ValidRole(RoleAdministrator))
	require.False(t, ValidRole(Role("owner")))

	require.True(t, ValidNodeType(NodeExternal))
	require.False(t, ValidNodeType(NodeType("virtual")))

	require.True(t, ValidNodeStatus(NodePending))
	require.False(t, ValidNodeStatus(NodeStatus("archived")))

	require.True(t, ValidOrganizationStatus(OrganizationActive))
	require.False(t, ValidOrganizationStatus(OrganizationStatus("deleted")))
}
