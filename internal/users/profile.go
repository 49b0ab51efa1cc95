package users

import (
	"strings"
	"time"
)

// Profile is the forum-facing record of a member, keyed by the canonical user
// id derived from session claims.
type Profile struct {
	UserID      string    `gorm:"column:user_id;primaryKey;size:190"`
	Provider    string    `gorm:"column:provider;size:32;not null;default:default"`
	Username    string    `gorm:"column:username;size:150;not null"`
	Email       string    `gorm:"column:email;size:320"`
	DisplayName string    `gorm:"column:display_name;size:320"`
	AvatarURL   string    `gorm:"column:avatar_url;size:512"`
	LastSeenAt  time.Time `gorm:"column:last_seen_at"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
	NumAnswers  int       `gorm:"column:num_answers;->;-:migration"`
}

// TableName exposes the table backing member profiles.
func (Profile) TableName() string {
	return "profiles"
}

// Name returns the best human-readable label for the member.
func (p Profile) Name() string {
	if display := normalize(p.DisplayName); display != "" {
		return display
	}
	return p.Username
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}

// usernameFor picks a username from the email local part, falling back to the subject.
func usernameFor(email, subject string) string {
	if local, _, found := strings.Cut(normalize(email), "@"); found && normalize(local) != "" {
		return normalize(local)
	}
	return subject
}
