package users

import (
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/plate400/internal/textkey"
)

// User is the identity record the diary, moderation and social packages reference by id.
type User struct {
	ID         string    `gorm:"column:id;primaryKey;size:190;not null"`
	Email      string    `gorm:"column:email;size:320;not null;uniqueIndex"`
	FirstName  string    `gorm:"column:first_name;size:150;not null;default:''"`
	MiddleName string    `gorm:"column:middle_name;size:150;not null;default:''"`
	LastName   string    `gorm:"column:last_name;size:150;not null;default:''"`
	Bio        string    `gorm:"column:bio;type:text;not null;default:''"`
	SearchText string    `gorm:"column:search_text;size:800;not null;default:'';index"`
	LastSeenAt time.Time `gorm:"column:last_seen_at"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing users.
func (User) TableName() string {
	return "users"
}

// FullName joins the non-empty name parts.
func (u User) FullName() string {
	parts := make([]string, 0, 3)
	for _, part := range []string{u.FirstName, u.MiddleName, u.LastName} {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return strings.Join(parts, " ")
}

// DisplayName prefers the full name and falls back to the email.
func (u User) DisplayName() string {
	if name := u.FullName(); name != "" {
		return name
	}
	return u.Email
}

// SearchKey is the folded text matched by user search and the feed filter.
func SearchKey(u User) string {
	return textkey.Fold(strings.Join([]string{u.Email, u.FirstName, u.MiddleName, u.LastName}, " "))
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}

func normalizeEmail(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// splitDisplayName treats the first word as the first name and the last word as the last name.
func splitDisplayName(displayName string) (string, string, string) {
	fields := strings.Fields(displayName)
	switch len(fields) {
	case 0:
		return "", "", ""
	case 1:
		return fields[0], "", ""
	default:
		return fields[0], strings.Join(fields[1:len(fields)-1], " "), fields[len(fields)-1]
	}
}
