package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/nodewire/nodewire/internal/models"
	"github.com/nodewire/nodewire/internal/policies"
)

func openServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// A uniquely named shared-cache memory database keeps the schema visible
	// across pooled connections without leaking state between tests.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Organization{},
		&models.User{},
		&models.Node{},
		&models.NodeConnection{},
	))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}

func accessFor(orgID string, role models.Role, policyNames ...string) policies.AccessContext {
	set := make(map[string]struct{}, len(policyNames))
	for _, name := range policyNames {
		set[name] = struct{}{}
	}
	return policies.AccessContext{
		UserID:         uuid.NewString(),
		OrganizationID: orgID,
		Role:           role,
		Status:         models.UserActive,
		Policies:       set,
	}
}

func createTestOrg(t *testing.T, db *gorm.DB, name string, parentID *string) models.Organization {
	t.Helper()

	org := models.Organization{
		Name:         name,
		ParentID:     parentID,
		Status:       models.OrganizationActive,
		ClientID:     "org-client-" + name,
		ClientSecret: "org-secret-" + name,
		NetworkKey:   "org-key-" + name,
	}
	require.NoError(t, db.Create(&org).Error)
	return org
}

func createTestNode(t *testing.T, db *gorm.DB, orgID, name string, nodeType models.NodeType) models.Node {
	t.Helper()

	node := models.Node{
		OrganizationID: orgID,
		Name:           name,
		Type:           nodeType,
		APIURL:         "https://nodes.example.com/" + name,
		Status:         models.NodeActive,
	}
	require.NoError(t, db.Create(&node).Error)
	return node
}

type mockNotifier struct {
	calls []ConnectionNotification
	err   error
}

func (m *mockNotifier) ConnectionRequested(_ context.Context, notification ConnectionNotification) error {
	m.calls = append(m.calls, notification)
	return m.err
}
