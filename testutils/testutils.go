// Package testutils provides database fixtures used in tests.
package testutils

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/odokhq/odok/leveling"
	"github.com/odokhq/odok/models"
)

// InitMemoryDB creates an in-memory SQLite database with the schema migrated.
// Each call uses a unique shared-cache name so tests never see each other's
// data.
func InitMemoryDB(t *testing.T) *gorm.DB {
	t.Helper()

	dbName := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dbName), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.Book{},
		&models.Episode{},
		&models.SlotClaim{},
		&models.InkTransaction{},
		&models.BookUnlock{},
	); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	return db
}

// SetupUser creates a user with the given economy state. Level is derived
// from xp the same way production writes do.
func SetupUser(t *testing.T, db *gorm.DB, username string, ink, xp int) *models.User {
	t.Helper()

	user := &models.User{
		Username: username,
		Ink:      ink,
		XP:       xp,
		Level:    leveling.LevelFromXP(xp),
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create user %s: %v", username, err)
	}
	return user
}

// ReloadUser fetches the latest user row.
func ReloadUser(t *testing.T, db *gorm.DB, id uint) *models.User {
	t.Helper()

	var user models.User
	if err := db.First(&user, id).Error; err != nil {
		t.Fatalf("failed to reload user %d: %v", id, err)
	}
	return &user
}

// MustExec fails the test when the statement returned an error.
func MustExec(t *testing.T, result *gorm.DB, message string) {
	t.Helper()

	if result.Error != nil {
		t.Fatalf("%s: %v", message, result.Error)
	}
}
