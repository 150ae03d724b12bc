package models

import (
	"time"

	"gorm.io/gorm"
)

// Messages is the base query every box is built from, newest first.
func Messages(db *gorm.DB) *gorm.DB {
	return db.Model(&Message{}).Order("sent_at DESC").Order("id DESC")
}

// Unread narrows a message query to rows the owner has not read.
func Unread(q *gorm.DB) *gorm.DB {
	return q.Where("unread = ?", true)
}

// TrashMessages soft-deletes every row matched by q and returns how many
// rows were moved to the trash.
func TrashMessages(q *gorm.DB) (int64, error) {
	res := q.Updates(map[string]interface{}{
		"deleted":    true,
		"deleted_at": time.Now(),
	})
	return res.RowsAffected, res.Error
}

// Box is a filtered view over a user's message copies.
type Box struct {
	db      *gorm.DB
	deleted bool
	owned   func(q *gorm.DB, userID uint) *gorm.DB
}

// Inbox holds messages received by the user that are not in the trash.
func Inbox(db *gorm.DB) Box {
	return Box{db: db, owned: func(q *gorm.DB, userID uint) *gorm.DB {
		return q.Where("owner_id = ? AND recipient_id = ?", userID, userID)
	}}
}

// Outbox holds messages sent by the user that are not in the trash.
func Outbox(db *gorm.DB) Box {
	return Box{db: db, owned: func(q *gorm.DB, userID uint) *gorm.DB {
		return q.Where("owner_id = ? AND sender_id = ?", userID, userID)
	}}
}

// Trash holds every deleted copy owned by the user, sent or received.
func Trash(db *gorm.DB) Box {
	return Box{db: db, deleted: true, owned: func(q *gorm.DB, userID uint) *gorm.DB {
		return q.Where("owner_id = ?", userID)
	}}
}

// Query returns the box without the per-user restriction.
func (b Box) Query() *gorm.DB {
	return Messages(b.db).Where("deleted = ?", b.deleted)
}

// ForUser returns a fresh query over the user's copies in this box.
func (b Box) ForUser(userID uint) *gorm.DB {
	return b.owned(b.Query(), userID)
}

// InboxCountFor returns the number of unread inbox messages without marking
// any of them read.
func InboxCountFor(db *gorm.DB, userID uint) (int64, error) {
	var count int64
	err := Unread(Inbox(db).ForUser(userID)).Count(&count).Error
	return count, err
}
