package forms

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"privmsg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func loadMessage(t *testing.T, db *gorm.DB, id uint) *models.Message {
	t.Helper()
	var msg models.Message
	require.NoError(t, db.Preload("Sender").First(&msg, id).Error)
	return &msg
}

func TestReplyInitial(t *testing.T) {
	parent := &models.Message{
		SenderID: 1,
		To:       "bob",
		Subject:  "Lunch",
		Body:     "Noon?\nOr later",
		Sender:   models.User{Model: gorm.Model{ID: 1}, Username: "alice"},
	}
	form := NewReplyForm(&models.User{Model: gorm.Model{ID: 2}, Username: "bob"}, parent, MessageData{})

	initial := form.Initial()
	assert.Equal(t, "alice", initial.Recipients)
	assert.Equal(t, "Re: Lunch", initial.Subject)
	assert.Equal(t, "alice wrote:\n> Noon?\n> Or later", initial.Body)

	parent.Subject = "Re: Lunch"
	assert.Equal(t, "Re: Lunch", form.Initial().Subject)
}

func TestReplyInitialOnOwnSentCopy(t *testing.T) {
	db := newTestDB(t)
	alice := createUser(t, db, "alice")
	createUser(t, db, "bob")
	createUser(t, db, "carol")

	instance, _ := compose(t, db, &alice, MessageData{Recipients: "bob, carol", Subject: "Plans", Body: "Friday?"})
	parent := loadMessage(t, db, instance.ID)

	initial := NewReplyForm(&alice, parent, MessageData{}).Initial()
	assert.Equal(t, "bob,carol", initial.Recipients)

	form := NewReplyForm(&alice, parent, initial)
	require.NoError(t, form.IsValid(db))
	_, copies, err := form.Save(db)
	require.NoError(t, err)
	assert.Len(t, copies, 2)
}

func TestFormatQuoteCountsRunes(t *testing.T) {
	body := strings.Repeat("źdźbło ", 20)
	lines := strings.Split(FormatQuote("alice", body), "\n")[1:]
	require.Greater(t, len(lines), 1)

	first := strings.TrimPrefix(lines[0], "> ")
	assert.LessOrEqual(t, utf8.RuneCountInString(first), quoteWidth)
	assert.Greater(t, utf8.RuneCountInString(first), quoteWidth-len("źdźbło "))
}

func TestFormatQuoteWrapsLongLines(t *testing.T) {
	body := strings.Repeat("word ", 20)
	quote := FormatQuote("alice", body)

	lines := strings.Split(quote, "\n")
	require.Greater(t, len(lines), 2)
	assert.Equal(t, "alice wrote:", lines[0])
	for _, line := range lines[1:] {
		assert.True(t, strings.HasPrefix(line, "> "))
		assert.LessOrEqual(t, len(line), quoteWidth+2)
	}
}

func TestReplyJoinsThreadAndLinksParents(t *testing.T) {
	db := newTestDB(t)
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	carol := createUser(t, db, "carol")

	original, received := compose(t, db, &alice, MessageData{
		Recipients: "bob,carol",
		Subject:    "Lunch",
		Body:       "Noon?",
	})
	bobCopy, carolCopy := received[0], received[1]

	parent := loadMessage(t, db, bobCopy.ID)
	form := NewReplyForm(&bob, parent, MessageData{
		Recipients: "alice, carol",
		Subject:    "Re: Lunch",
		Body:       "Sure",
	})
	require.NoError(t, form.IsValid(db))

	var (
		instance *models.Message
		copies   []models.Message
	)
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		var err error
		instance, copies, err = form.Save(tx)
		return err
	}))

	// Same conversation
	assert.Equal(t, *original.Thread, *instance.Thread)
	require.NotNil(t, instance.ParentMsgID)
	assert.Equal(t, bobCopy.ID, *instance.ParentMsgID)
	assert.Equal(t, "alice,carol", instance.To)

	// Each recipient's copy points at their own copy of the parent
	require.Len(t, copies, 2)
	assert.Equal(t, alice.ID, copies[0].OwnerID)
	require.NotNil(t, copies[0].ParentMsgID)
	assert.Equal(t, original.ID, *copies[0].ParentMsgID)
	assert.True(t, copies[0].IsReply())

	assert.Equal(t, carol.ID, copies[1].OwnerID)
	require.NotNil(t, copies[1].ParentMsgID)
	assert.Equal(t, carolCopy.ID, *copies[1].ParentMsgID)

	// Only the parent is stamped as replied
	reloaded := loadMessage(t, db, bobCopy.ID)
	assert.True(t, reloaded.Replied())
	assert.Nil(t, instance.RepliedAt)

	aliceOwn := loadMessage(t, db, original.ID)
	assert.False(t, aliceOwn.Replied())
}

func TestReplyFindsParentInTrash(t *testing.T) {
	db := newTestDB(t)
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")

	original, received := compose(t, db, &alice, MessageData{Recipients: "bob", Subject: "Hi", Body: "Hi"})

	// Alice trashed her copy before Bob answered
	_, err := models.TrashMessages(db.Model(&models.Message{}).Where("id = ?", original.ID))
	require.NoError(t, err)

	form := NewReplyForm(&bob, loadMessage(t, db, received[0].ID), MessageData{Recipients: "alice", Subject: "Re: Hi", Body: "Hello"})
	require.NoError(t, form.IsValid(db))
	_, copies, err := form.Save(db)
	require.NoError(t, err)

	require.NotNil(t, copies[0].ParentMsgID)
	assert.Equal(t, original.ID, *copies[0].ParentMsgID)
}

func TestReplyToNewParticipantHasNoParent(t *testing.T) {
	db := newTestDB(t)
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	createUser(t, db, "dave")

	_, received := compose(t, db, &alice, MessageData{Recipients: "bob", Subject: "Hi", Body: "Hi"})

	form := NewReplyForm(&bob, loadMessage(t, db, received[0].ID), MessageData{Recipients: "dave", Subject: "Fwd", Body: "See below"})
	require.NoError(t, form.IsValid(db))
	_, copies, err := form.Save(db)
	require.NoError(t, err)

	require.Len(t, copies, 1)
	assert.Nil(t, copies[0].ParentMsgID)
	assert.False(t, copies[0].IsReply())
}

func TestReplyOpensThreadOnUnthreadedParent(t *testing.T) {
	db := newTestDB(t)
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")

	sentAt := time.Date(2020, 5, 1, 9, 0, 0, 0, time.UTC)
	bobID := bob.ID
	legacy := models.Message{
		OwnerID:     bob.ID,
		SenderID:    alice.ID,
		RecipientID: &bobID,
		To:          "bob",
		Subject:     "Old",
		Body:        "From before threads",
		SentAt:      &sentAt,
		Unread:      true,
	}
	require.NoError(t, db.Omit(clause.Associations).Create(&legacy).Error)

	parent := loadMessage(t, db, legacy.ID)
	form := NewReplyForm(&bob, parent, MessageData{Recipients: "alice", Subject: "Re: Old", Body: "Still here"})
	require.NoError(t, form.IsValid(db))
	instance, copies, err := form.Save(db)
	require.NoError(t, err)

	reloaded := loadMessage(t, db, legacy.ID)
	require.NotNil(t, reloaded.Thread)
	assert.Equal(t, *reloaded.Thread, *instance.Thread)
	assert.Equal(t, *reloaded.Thread, *copies[0].Thread)
	assert.Nil(t, copies[0].ParentMsgID)
}
