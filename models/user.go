package models

import (
	"gorm.io/gorm"
)

// User is the host application's account record. The messaging service only
// reads it: usernames resolve recipients and the email address receives
// new-message notifications.
type User struct {
	gorm.Model

	Username string `gorm:"uniqueIndex;size:150;not null" json:"username"`
	Email    string `gorm:"size:254" json:"email,omitempty"`
	IsActive bool   `gorm:"default:true" json:"is_active"`
}

// FindActiveUsers returns the active users whose usernames are in names.
func FindActiveUsers(db *gorm.DB, names []string) ([]User, error) {
	var users []User
	if len(names) == 0 {
		return users, nil
	}
	err := db.Where("username IN ? AND is_active = ?", names, true).Find(&users).Error
	return users, err
}
