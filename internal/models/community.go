package models

import (
	"strings"
	"time"
)

const (
	CommunityStatusPending  = "pending"
	CommunityStatusApproved = "approved"
	CommunityStatusRejected = "rejected"
)

type Community struct {
	CommunityID int64      `json:"community_id"`
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	EndAt       *time.Time `json:"end_at"` // set when the community stopped meeting
	Description string     `json:"description"`
	GroupURL    string     `json:"group_url"`
	CreatedAt   time.Time  `json:"created_at"`
}

// IsActive returns true for approved communities that have not ended.
func (c *Community) IsActive() bool {
	return c.Status == CommunityStatusApproved && c.EndAt == nil
}

// CalendarSummary is the remote event title. Remote events are matched on it.
func (c *Community) CalendarSummary() string {
	return strings.TrimSpace(c.Name)
}
