package social

import (
	"time"

	"github.com/MarcoPoloResearchLab/plate400/internal/civil"
	"github.com/MarcoPoloResearchLab/plate400/internal/users"
)

// EventTypeEntryCreated tags events emitted when a diary entry is added.
const EventTypeEntryCreated = "entry_created"

// Scope selects whose events the feed shows.
type Scope string

const (
	// ScopeAll shows the user's own events and those of followees.
	ScopeAll Scope = "all"
	// ScopeSubscriptions shows followees only.
	ScopeSubscriptions Scope = "subs"
)

// ParseScope maps request input to a scope; anything unrecognised is ScopeAll.
func ParseScope(raw string) Scope {
	if Scope(raw) == ScopeSubscriptions {
		return ScopeSubscriptions
	}
	return ScopeAll
}

// Follow is a directed subscription edge.
type Follow struct {
	FollowerID string    `gorm:"column:follower_id;primaryKey;size:190;not null"`
	FolloweeID string    `gorm:"column:followee_id;primaryKey;size:190;not null;index"`
	CreatedAt  time.Time `gorm:"column:created_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Follow) TableName() string {
	return "follows"
}

// EntryPayload snapshots the product at logging time so later catalog edits leave the feed unchanged.
type EntryPayload struct {
	ProductID   string     `json:"product_id"`
	ProductName string     `json:"product_name"`
	Kind        string     `json:"kind"`
	Date        civil.Date `json:"date"`
}

// Event is an append-only feed record.
type Event struct {
	ID        string       `gorm:"column:id;primaryKey;size:36;not null"`
	UserID    string       `gorm:"column:user_id;size:190;not null;index:idx_events_user_created,priority:1"`
	Type      string       `gorm:"column:type;size:40;not null"`
	Payload   EntryPayload `gorm:"column:payload;type:text;not null;serializer:json"`
	CreatedAt time.Time    `gorm:"column:created_at;not null;index:idx_events_user_created,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (Event) TableName() string {
	return "events"
}

// FeedItem pairs an event with its owner for rendering.
type FeedItem struct {
	Event Event
	Owner users.User
}
