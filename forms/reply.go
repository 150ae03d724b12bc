package forms

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"privmsg/models"

	"gorm.io/gorm"
)

const quoteWidth = 55

// ReplyForm answers an existing message owned by the sender. The new rows
// join the parent's thread and point back at each participant's own copy of
// the parent.
type ReplyForm struct {
	messageForm
	Parent *models.Message
}

// NewReplyForm expects parent to have its Sender loaded.
func NewReplyForm(sender *models.User, parent *models.Message, data MessageData, opts ...Option) *ReplyForm {
	return &ReplyForm{
		messageForm: newMessageForm(sender, data, opts),
		Parent:      parent,
	}
}

// Initial returns the pre-filled form shown before the user edits the reply.
// Replying to one's own sent copy addresses the original recipients again.
func (f *ReplyForm) Initial() MessageData {
	subject := f.Parent.Subject
	if !strings.HasPrefix(strings.ToLower(subject), "re:") {
		subject = "Re: " + subject
	}
	to := f.Parent.Sender.Username
	if f.Parent.SenderID == f.Sender.ID {
		to = f.Parent.To
	}
	return MessageData{
		Recipients: to,
		Subject:    subject,
		Body:       f.Quote(),
	}
}

// Quote renders the parent body as a quoted block attributed to its sender.
func (f *ReplyForm) Quote() string {
	return FormatQuote(f.Parent.Sender.Username, f.Parent.Body)
}

// FormatQuote wraps body and prefixes each line with "> ".
func FormatQuote(sender, body string) string {
	var b strings.Builder
	b.WriteString(sender)
	b.WriteString(" wrote:\n")
	lines := wrap(body, quoteWidth)
	for i, line := range lines {
		b.WriteString("> ")
		b.WriteString(line)
		if i < len(lines)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func wrap(text string, width int) []string {
	var out []string
	for _, para := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			out = append(out, "")
			continue
		}
		line, n := words[0], utf8.RuneCountInString(words[0])
		for _, w := range words[1:] {
			if n+1+utf8.RuneCountInString(w) > width {
				out = append(out, line)
				line, n = w, utf8.RuneCountInString(w)
				continue
			}
			line += " " + w
			n += 1 + utf8.RuneCountInString(w)
		}
		out = append(out, line)
	}
	return out
}

// Save writes the reply copies and stamps the parent as replied. It must
// run after IsValid and inside the caller's transaction.
func (f *ReplyForm) Save(tx *gorm.DB) (*models.Message, []models.Message, error) {
	if !f.valid {
		return nil, nil, ErrNotValidated
	}

	thread, err := f.thread(tx)
	if err != nil {
		return nil, nil, err
	}
	sentAt := sendTime()

	instance := f.senderCopy(thread, sentAt)
	instance.ParentMsgID = &f.Parent.ID

	copies := make([]models.Message, 0, len(f.recipients))
	for _, r := range f.recipients {
		msg := f.recipientCopy(r, thread, sentAt)
		parentID, err := f.parentFor(tx, r.ID)
		if err != nil {
			return nil, nil, err
		}
		msg.ParentMsgID = parentID
		copies = append(copies, msg)
	}

	if err := f.write(tx, &instance, copies); err != nil {
		return nil, nil, fmt.Errorf("failed to save reply: %w", err)
	}

	if err := tx.Model(f.Parent).Update("replied_at", sentAt).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to mark parent replied: %w", err)
	}
	f.Parent.RepliedAt = &sentAt

	return &instance, copies, nil
}

// thread returns the parent's thread, opening one on the parent when it
// predates threading.
func (f *ReplyForm) thread(tx *gorm.DB) (string, error) {
	if f.Parent.Thread != nil && *f.Parent.Thread != "" {
		return *f.Parent.Thread, nil
	}
	thread := newThreadID()
	if err := tx.Model(f.Parent).Update("thread", thread).Error; err != nil {
		return "", fmt.Errorf("failed to assign thread: %w", err)
	}
	f.Parent.Thread = &thread
	return thread, nil
}

// parentFor finds the recipient's own copy of the parent message, whether it
// sits in their inbox, outbox or trash. A recipient who never had a copy gets
// no parent.
func (f *ReplyForm) parentFor(tx *gorm.DB, recipientID uint) (*uint, error) {
	if f.Parent.SentAt == nil || f.Parent.Thread == nil {
		return nil, nil
	}

	var own models.Message
	err := tx.Select("id").
		Where("owner_id = ? AND thread = ? AND sender_id = ? AND sent_at = ?",
			recipientID, *f.Parent.Thread, f.Parent.SenderID, *f.Parent.SentAt).
		Order("id").
		First(&own).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve parent for recipient %d: %w", recipientID, err)
	}
	return &own.ID, nil
}
