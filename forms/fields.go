package forms

import (
	"fmt"
	"strings"

	"privmsg/models"
	"privmsg/utils"

	"gorm.io/gorm"
)

// RecipientFilter reports whether a user may receive messages. Users it
// rejects are reported like unknown usernames.
type RecipientFilter func(user *models.User) bool

// SplitUsernames turns a comma separated list into distinct, trimmed names
// in their original order.
func SplitUsernames(raw string) []string {
	seen := make(map[string]struct{})
	var names []string
	for _, name := range strings.Split(raw, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

// ParseRecipients resolves a comma separated list of usernames to active
// users. Every name must resolve and pass filter, otherwise a FieldErrors
// naming the offending usernames is returned.
func ParseRecipients(db *gorm.DB, raw string, filter RecipientFilter) ([]models.User, error) {
	names := SplitUsernames(raw)
	if len(names) == 0 {
		return nil, utils.FieldErrors{FieldRecipients: "recipients is required"}
	}

	users, err := models.FindActiveUsers(db, names)
	if err != nil {
		return nil, fmt.Errorf("failed to look up recipients: %w", err)
	}

	byName := make(map[string]models.User, len(users))
	for _, u := range users {
		byName[u.Username] = u
	}

	var (
		resolved = make([]models.User, 0, len(names))
		invalid  []string
	)
	for _, name := range names {
		u, ok := byName[name]
		if !ok || (filter != nil && !filter(&u)) {
			invalid = append(invalid, name)
			continue
		}
		resolved = append(resolved, u)
	}

	if len(invalid) > 0 {
		return nil, utils.FieldErrors{
			FieldRecipients: "The following usernames are incorrect: " + strings.Join(invalid, ", "),
		}
	}
	return resolved, nil
}

func joinUsernames(users []models.User) string {
	names := make([]string, len(users))
	for i, u := range users {
		names[i] = u.Username
	}
	return strings.Join(names, ",")
}

func joinNames(names []string) string {
	return strings.Join(SplitUsernames(strings.Join(names, ",")), ",")
}
