package model

import (
	"strings"
	"time"
)

// Link maps a short code to its destination URL
type Link struct {
	ID          int64      `json:"id" db:"id"`
	ShortCode   string     `json:"short_code" db:"short_code"`
	OriginalURL string     `json:"original_url" db:"original_url"`
	Title       *string    `json:"title,omitempty" db:"title"`
	Password    *string    `json:"password,omitempty" db:"password"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	ClickCount  int64      `json:"click_count" db:"click_count"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// HasPassword reports whether the link is gated behind a password.
func (l *Link) HasPassword() bool {
	return l.Password != nil && *l.Password != ""
}

// IsExpired reports whether the link expired strictly before now.
func (l *Link) IsExpired(now time.Time) bool {
	return l.ExpiresAt != nil && l.ExpiresAt.Before(now)
}

// DisplayTitle falls back to the short code when no title is set.
func (l *Link) DisplayTitle() string {
	if l.Title != nil && strings.TrimSpace(*l.Title) != "" {
		return *l.Title
	}
	return l.ShortCode
}
