package forms

import (
	"testing"

	"privmsg/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Message{}))
	return db
}

func createUser(t *testing.T, db *gorm.DB, name string) models.User {
	t.Helper()
	u := models.User{Username: name, Email: name + "@example.com"}
	require.NoError(t, db.Create(&u).Error)
	return u
}

func compose(t *testing.T, db *gorm.DB, sender *models.User, data MessageData) (*models.Message, []models.Message) {
	t.Helper()
	form := NewComposeForm(sender, data)
	require.NoError(t, form.IsValid(db))

	instance, copies, err := form.Save(db)
	require.NoError(t, err)
	return instance, copies
}
