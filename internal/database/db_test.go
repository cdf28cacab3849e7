package database

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nodewire/nodewire/internal/models"
)

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"})
	require.Error(t, err)
}

func TestAutoMigrateAndSeed(t *testing.T) {
	db, err := Open(Config{Driver: "sqlite", DSN: "file::memory:"})
	require.NoError(t, err)

	seed := SeedConfig{
		RootOrganizationName: "Network Operator",
		RootEmail:            "root@example.com",
		RootPassword:         "bootstrap-secret",
	}
	require.NoError(t, AutoMigrateAndSeed(db, seed))

	var root models.User
	require.NoError(t, db.Preload("Organization").First(&root, "email = ?", "root@example.com").Error)
	require.Equal(t, models.RoleRoot, root.Role)
	require.NotNil(t, root.Organization)
	require.Equal(t, "Network Operator", root.Organization.Name)
	require.NotEmpty(t, root.Organization.ClientID)

	// Second run must not create another root user.
	require.NoError(t, AutoMigrateAndSeed(db, seed))

	var count int64
	require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestSeedRequiresPassword(t *testing.T) {
	db, err := Open(Config{Driver: "sqlite", DSN: "file::memory:"})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))

	require.Error(t, SeedData(db, SeedConfig{}))
}

func TestBuildPostgresDSN(t *testing.T) {
	dsn, err := buildPostgresDSN(Config{User: "app", Name: "nodewire", Host: "db", Port: 5433})
	require.NoError(t, err)
	require.Contains(t, dsn, "host=db")
	require.Contains(t, dsn, "port=5433")
	require.Contains(t, dsn, "sslmode=disable")

	_, err = buildPostgresDSN(Config{Host: "db"})
	require.Error(t, err)
}

func TestBuildMySQLDSN(t *testing.T) {
	dsn, err := buildMySQLDSN(Config{User: "app", Password: "pw", Name: "nodewire"})
	require.NoError(t, err)
	require.Contains(t, dsn, "app:pw@tcp(127.0.0.1:3306)/nodewire")
	require.Contains(t, dsn, "parseTime=True")

	_, err = buildMySQLDSN(Config{})
	require.Error(t, err)
}
