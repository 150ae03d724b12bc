package models

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
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

	require.NoError(t, db.AutoMigrate(&User{}, &Message{}))
	return db
}

func createUser(t *testing.T, db *gorm.DB, name string) User {
	t.Helper()
	u := User{Username: name, Email: name + "@example.com"}
	require.NoError(t, db.Create(&u).Error)
	return u
}

// createSend writes the copies of one send the same way the forms do.
func createSend(t *testing.T, db *gorm.DB, sender User, subject string, sentAt time.Time, recipients ...User) (Message, []Message) {
	t.Helper()

	thread := fmt.Sprintf("thread-%s-%d", subject, sentAt.UnixNano())
	names := make([]string, len(recipients))
	for i, r := range recipients {
		names[i] = r.Username
	}

	own := Message{
		OwnerID:  sender.ID,
		SenderID: sender.ID,
		To:       strings.Join(names, ","),
		Subject:  subject,
		Body:     "body of " + subject,
		Thread:   &thread,
		SentAt:   &sentAt,
		Unread:   true,
	}
	require.NoError(t, db.Omit(clause.Associations).Create(&own).Error)

	copies := make([]Message, len(recipients))
	for i, r := range recipients {
		rid := r.ID
		copies[i] = Message{
			OwnerID:     r.ID,
			SenderID:    sender.ID,
			RecipientID: &rid,
			To:          r.Username,
			Subject:     subject,
			Body:        "body of " + subject,
			Thread:      &thread,
			SentAt:      &sentAt,
			Unread:      true,
		}
		require.NoError(t, db.Omit(clause.Associations).Create(&copies[i]).Error)
	}
	return own, copies
}
