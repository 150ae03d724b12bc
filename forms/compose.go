package forms

import (
	"fmt"

	"privmsg/models"

	"gorm.io/gorm"
)

// ComposeForm starts a new conversation.
type ComposeForm struct {
	messageForm
}

func NewComposeForm(sender *models.User, data MessageData, opts ...Option) *ComposeForm {
	return &ComposeForm{messageForm: newMessageForm(sender, data, opts)}
}

// InitialCompose pre-fills the recipient list, e.g. from a profile link.
func InitialCompose(recipients []string) MessageData {
	return MessageData{Recipients: joinNames(recipients)}
}

// Save writes the sender's copy and one copy per recipient, all in a fresh
// thread. It must run after IsValid and inside the caller's transaction.
func (f *ComposeForm) Save(tx *gorm.DB) (*models.Message, []models.Message, error) {
	if !f.valid {
		return nil, nil, ErrNotValidated
	}

	thread := newThreadID()
	sentAt := sendTime()

	instance := f.senderCopy(thread, sentAt)
	copies := make([]models.Message, 0, len(f.recipients))
	for _, r := range f.recipients {
		copies = append(copies, f.recipientCopy(r, thread, sentAt))
	}

	if err := f.write(tx, &instance, copies); err != nil {
		return nil, nil, fmt.Errorf("failed to save message: %w", err)
	}
	return &instance, copies, nil
}
