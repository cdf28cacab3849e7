package database

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/nodewire/nodewire/internal/models"
	"github.com/nodewire/nodewire/pkg/crypto"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Organization{},
		&models.User{},
		&models.Node{},
		&models.NodeConnection{},
	)
}

// SeedConfig controls first-start provisioning of the root tenant.
type SeedConfig struct {
	RootOrganizationName string
	RootEmail            string
	RootPassword         string
}

// SeedData provisions the root organization and root user when no users exist
// yet. Re-running against a populated database is a no-op.
func SeedData(db *gorm.DB, cfg SeedConfig) error {
	var count int64
	if err := db.Model(&models.User{}).Count(&count).Error; err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil
	}

	email := strings.TrimSpace(cfg.RootEmail)
	if email == "" {
		email = "root@localhost"
	}
	if strings.TrimSpace(cfg.RootPassword) == "" {
		return errors.New("root password is required for first-start seeding")
	}

	orgName := strings.TrimSpace(cfg.RootOrganizationName)
	if orgName == "" {
		orgName = "Root Organization"
	}

	hash, err := crypto.HashPassword(cfg.RootPassword)
	if err != nil {
		return fmt.Errorf("hash root password: %w", err)
	}

	creds, err := crypto.GenerateCredentials()
	if err != nil {
		return fmt.Errorf("generate root credentials: %w", err)
	}

	return db.Transaction(func(tx *gorm.DB) error {
		org := models.Organization{
			Name:         orgName,
			Status:       models.OrganizationActive,
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
		}
		if err := tx.Create(&org).Error; err != nil {
			return fmt.Errorf("create root organization: %w", err)
		}

		root := models.User{
			Email:          email,
			PasswordHash:   hash,
			Role:           models.RoleRoot,
			Status:         models.UserActive,
			OrganizationID: org.ID,
		}
		if err := tx.Create(&root).Error; err != nil {
			return fmt.Errorf("create root user: %w", err)
		}
		return nil
	})
}
