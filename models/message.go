package models

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Message is one participant's copy of a private message. A single send
// writes the sender's copy plus one copy per recipient, all sharing Thread
// and SentAt, so each participant can read, trash and restore independently.
type Message struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	OwnerID     uint    `gorm:"not null;index" json:"owner_id"`
	SenderID    uint    `gorm:"not null;index" json:"sender_id"`
	RecipientID *uint   `gorm:"index" json:"recipient_id,omitempty"`
	To          string  `gorm:"size:255;not null" json:"to"` // recipient usernames comma separated
	Subject     string  `gorm:"size:120;not null" json:"subject"`
	Body        string  `gorm:"type:text;not null" json:"body"`
	Thread      *string `gorm:"size:64;index" json:"thread,omitempty"`
	ParentMsgID *uint   `gorm:"index" json:"parent_msg_id,omitempty"`

	SentAt    *time.Time `gorm:"index" json:"sent_at"`
	Unread    bool       `gorm:"default:true;index" json:"unread"`
	ReadAt    *time.Time `json:"read_at"`
	RepliedAt *time.Time `json:"replied_at"`
	Deleted   bool       `gorm:"default:false;index" json:"deleted"`
	DeletedAt *time.Time `json:"deleted_at"`

	// Relations
	Owner     User     `gorm:"foreignKey:OwnerID" json:"-"`
	Sender    User     `gorm:"foreignKey:SenderID" json:"sender"`
	Recipient *User    `gorm:"foreignKey:RecipientID" json:"recipient,omitempty"`
	ParentMsg *Message `gorm:"foreignKey:ParentMsgID;constraint:OnDelete:SET NULL" json:"-"`
}

func (Message) TableName() string {
	return "messages_message"
}

func (m *Message) String() string {
	return m.Subject
}

// IsUnread reports whether the owner has not opened the message yet.
func (m *Message) IsUnread() bool {
	return m.ReadAt == nil
}

// Replied reports whether the owner has written a reply to this message.
func (m *Message) Replied() bool {
	return m.RepliedAt != nil
}

func (m *Message) MarkRead() {
	now := time.Now()
	m.Unread = false
	m.ReadAt = &now
}

func (m *Message) MarkUnread() {
	m.Unread = true
	m.ReadAt = nil
}

func (m *Message) MoveToTrash() {
	now := time.Now()
	m.Deleted = true
	m.DeletedAt = &now
}

func (m *Message) Undelete() {
	m.Deleted = false
	m.DeletedAt = nil
}

// IsReply reports whether the message answers an earlier one.
func (m *Message) IsReply() bool {
	return m.ParentMsgID != nil
}

// Recipients splits the denormalized To column into usernames.
func (m *Message) Recipients() []string {
	var names []string
	for _, name := range strings.Split(m.To, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// AllRecipients loads every user the message was addressed to.
func (m *Message) AllRecipients(db *gorm.DB) ([]User, error) {
	var users []User
	names := m.Recipients()
	if len(names) == 0 {
		return users, nil
	}
	err := db.Where("username IN ?", names).Find(&users).Error
	return users, err
}

func (m *Message) AbsoluteURL() string {
	return fmt.Sprintf("/messages/view/%d", m.ID)
}
