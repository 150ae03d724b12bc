package forms

import (
	"errors"
	"strings"
	"time"

	"privmsg/models"
	"privmsg/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	FieldRecipients = "recipients"
	FieldSubject    = "subject"
	FieldBody       = "body"

	// MaxToLength is the width of the denormalized recipient list column.
	MaxToLength = 255
)

// ErrNotValidated is returned by Save when IsValid has not succeeded first.
var ErrNotValidated = errors.New("forms: save called on a form that has not been validated")

// MessageData is the user-submitted part of a compose or reply form.
type MessageData struct {
	Recipients string `json:"recipients" form:"recipients" validate:"required"`
	Subject    string `json:"subject" form:"subject" validate:"required,max=120"`
	Body       string `json:"body" form:"body" validate:"required"`
}

type Option func(*messageForm)

// WithRecipientFilter restricts who may be addressed.
func WithRecipientFilter(filter RecipientFilter) Option {
	return func(f *messageForm) {
		f.filter = filter
	}
}

// messageForm holds what compose and reply share: cleaning the submitted
// data and building the per-participant copies.
type messageForm struct {
	Data   MessageData
	Sender *models.User

	filter     RecipientFilter
	recipients []models.User
	valid      bool
}

func newMessageForm(sender *models.User, data MessageData, opts []Option) messageForm {
	f := messageForm{Data: data, Sender: sender}
	for _, opt := range opts {
		opt(&f)
	}
	return f
}

// IsValid cleans the submitted data and resolves the recipients. It returns
// nil on success, utils.FieldErrors for user mistakes, or a database error.
func (f *messageForm) IsValid(db *gorm.DB) error {
	f.valid = false
	f.Data.Recipients = strings.TrimSpace(f.Data.Recipients)
	f.Data.Subject = strings.TrimSpace(f.Data.Subject)
	f.Data.Body = strings.TrimSpace(f.Data.Body)

	if err := utils.ValidateStruct(f.Data); err != nil {
		return err
	}

	recipients, err := ParseRecipients(db, f.Data.Recipients, f.filter)
	if err != nil {
		return err
	}
	for _, r := range recipients {
		if r.ID == f.Sender.ID {
			return utils.FieldErrors{FieldRecipients: "You cannot send a message to yourself"}
		}
	}
	if len(joinUsernames(recipients)) > MaxToLength {
		return utils.FieldErrors{FieldRecipients: "Too many recipients"}
	}

	f.recipients = recipients
	f.valid = true
	return nil
}

// Recipients returns the users resolved by IsValid.
func (f *messageForm) Recipients() []models.User {
	return f.recipients
}

func (f *messageForm) senderCopy(thread string, sentAt time.Time) models.Message {
	return models.Message{
		OwnerID:  f.Sender.ID,
		SenderID: f.Sender.ID,
		To:       joinUsernames(f.recipients),
		Subject:  f.Data.Subject,
		Body:     f.Data.Body,
		Thread:   &thread,
		SentAt:   &sentAt,
		Unread:   true,
	}
}

func (f *messageForm) recipientCopy(recipient models.User, thread string, sentAt time.Time) models.Message {
	recipientID := recipient.ID
	return models.Message{
		OwnerID:     recipient.ID,
		SenderID:    f.Sender.ID,
		RecipientID: &recipientID,
		To:          recipient.Username,
		Subject:     f.Data.Subject,
		Body:        f.Data.Body,
		Thread:      &thread,
		SentAt:      &sentAt,
		Unread:      true,
	}
}

// write inserts the sender copy and the recipient copies, then attaches the
// already-loaded users so callers can notify without reloading them.
func (f *messageForm) write(tx *gorm.DB, instance *models.Message, copies []models.Message) error {
	if err := tx.Omit(clause.Associations).Create(instance).Error; err != nil {
		return err
	}
	if len(copies) > 0 {
		if err := tx.Omit(clause.Associations).Create(&copies).Error; err != nil {
			return err
		}
	}

	instance.Sender = *f.Sender
	for i := range copies {
		copies[i].Sender = *f.Sender
		copies[i].Recipient = &f.recipients[i]
	}
	return nil
}

func newThreadID() string {
	return uuid.NewString()
}

// sendTime is truncated so it compares equal after a database round trip.
func sendTime() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
