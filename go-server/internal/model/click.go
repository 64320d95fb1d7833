package model

import "time"

// ClickEvent is one successful resolution of a link
type ClickEvent struct {
	ID            int64     `json:"id" db:"id"`
	LinkID        int64     `json:"link_id" db:"link_id"`
	OccurredAt    time.Time `json:"occurred_at" db:"clicked_at"`
	ClientAddress *string   `json:"client_address,omitempty" db:"ip_address"`
	UserAgent     *string   `json:"user_agent,omitempty" db:"user_agent"`
	Referer       *string   `json:"referer,omitempty" db:"referer"`
}

// ClickMeta is the request metadata captured for a click
type ClickMeta struct {
	ClientAddress string
	UserAgent     string
	Referer       string
}

// NewClickEvent builds the event for link at t, keeping empty metadata as NULL.
func NewClickEvent(linkID int64, t time.Time, meta ClickMeta) *ClickEvent {
	return &ClickEvent{
		LinkID:        linkID,
		OccurredAt:    t.UTC(),
		ClientAddress: nullable(meta.ClientAddress),
		UserAgent:     nullable(meta.UserAgent),
		Referer:       nullable(meta.Referer),
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
