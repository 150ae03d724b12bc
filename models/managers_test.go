package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func subjects(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Subject
	}
	return out
}

func TestBoxesSplitCopiesByOwner(t *testing.T) {
	db := newTestDB(t)
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	carol := createUser(t, db, "carol")

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	createSend(t, db, alice, "first", base, bob, carol)
	createSend(t, db, bob, "second", base.Add(time.Minute), alice)

	var inbox, outbox []Message
	require.NoError(t, Inbox(db).ForUser(alice.ID).Find(&inbox).Error)
	require.NoError(t, Outbox(db).ForUser(alice.ID).Find(&outbox).Error)
	assert.Equal(t, []string{"second"}, subjects(inbox))
	assert.Equal(t, []string{"first"}, subjects(outbox))

	var bobInbox, carolInbox []Message
	require.NoError(t, Inbox(db).ForUser(bob.ID).Find(&bobInbox).Error)
	require.NoError(t, Inbox(db).ForUser(carol.ID).Find(&carolInbox).Error)
	assert.Equal(t, []string{"first"}, subjects(bobInbox))
	assert.Equal(t, []string{"first"}, subjects(carolInbox))

	// Every copy is owned by exactly one user
	var total int64
	require.NoError(t, db.Model(&Message{}).Count(&total).Error)
	assert.EqualValues(t, 5, total)
}

func TestBoxesNewestFirst(t *testing.T) {
	db := newTestDB(t)
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	createSend(t, db, bob, "old", base, alice)
	createSend(t, db, bob, "new", base.Add(time.Hour), alice)
	createSend(t, db, bob, "middle", base.Add(time.Minute), alice)

	var inbox []Message
	require.NoError(t, Inbox(db).ForUser(alice.ID).Find(&inbox).Error)
	assert.Equal(t, []string{"new", "middle", "old"}, subjects(inbox))
}

func TestTrashCollectsDeletedCopies(t *testing.T) {
	db := newTestDB(t)
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	sent, _ := createSend(t, db, alice, "sent", base, bob)
	_, received := createSend(t, db, bob, "received", base.Add(time.Minute), alice)
	createSend(t, db, bob, "kept", base.Add(2*time.Minute), alice)

	n, err := TrashMessages(db.Model(&Message{}).Where("id IN ?", []uint{sent.ID, received[0].ID}))
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	var trash, inbox, outbox []Message
	require.NoError(t, Trash(db).ForUser(alice.ID).Find(&trash).Error)
	require.NoError(t, Inbox(db).ForUser(alice.ID).Find(&inbox).Error)
	require.NoError(t, Outbox(db).ForUser(alice.ID).Find(&outbox).Error)

	assert.Equal(t, []string{"received", "sent"}, subjects(trash))
	assert.Equal(t, []string{"kept"}, subjects(inbox))
	assert.Empty(t, outbox)

	for _, m := range trash {
		assert.True(t, m.Deleted)
		assert.NotNil(t, m.DeletedAt)
	}

	// Bob's copies are untouched
	var bobTrash []Message
	require.NoError(t, Trash(db).ForUser(bob.ID).Find(&bobTrash).Error)
	assert.Empty(t, bobTrash)
}

func TestInboxCountFor(t *testing.T) {
	db := newTestDB(t)
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	_, first := createSend(t, db, bob, "one", base, alice)
	createSend(t, db, bob, "two", base.Add(time.Minute), alice)
	_, trashed := createSend(t, db, bob, "three", base.Add(2*time.Minute), alice)
	createSend(t, db, alice, "outgoing", base.Add(3*time.Minute), bob)

	n, err := InboxCountFor(db, alice.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, n)

	require.NoError(t, db.Model(&first[0]).Updates(map[string]interface{}{"unread": false, "read_at": time.Now()}).Error)
	_, err = TrashMessages(db.Model(&Message{}).Where("id = ?", trashed[0].ID))
	require.NoError(t, err)

	n, err = InboxCountFor(db, alice.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	// Counting does not mark anything read
	var unread int64
	require.NoError(t, Unread(Inbox(db).ForUser(alice.ID)).Count(&unread).Error)
	assert.EqualValues(t, 1, unread)
}

func TestBoxQueryIgnoresOwner(t *testing.T) {
	db := newTestDB(t)
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")

	createSend(t, db, alice, "hello", time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), bob)

	var all int64
	require.NoError(t, Inbox(db).Query().Count(&all).Error)
	assert.EqualValues(t, 2, all)
}
