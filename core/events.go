package core

import "time"

// EventType enumerates domain events.
type EventType string

const (
	EventXPAwarded   EventType = "xp_awarded"
	EventLevelUp     EventType = "level_up"
	EventBadgeEarned EventType = "badge_earned"
)

// Event represents an immutable domain event.
type Event struct {
	Type     EventType      `json:"type"`
	Time     time.Time      `json:"time"`
	UserID   UserID         `json:"user_id"`
	Action   Action         `json:"action,omitempty"`
	Reason   string         `json:"reason,omitempty"`
	Points   int64          `json:"points,omitempty"`
	Total    int64          `json:"total,omitempty"`
	Badge    BadgeID        `json:"badge,omitempty"`
	Level    int64          `json:"level,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func NewXPAwarded(user UserID, points, total int64, reason string) Event {
	return Event{Type: EventXPAwarded, Time: time.Now().UTC(), UserID: user, Points: points, Total: total, Reason: reason}
}

func NewLevelUp(user UserID, level int64) Event {
	return Event{Type: EventLevelUp, Time: time.Now().UTC(), UserID: user, Level: level}
}

func NewBadgeEarned(user UserID, badge BadgeID) Event {
	return Event{Type: EventBadgeEarned, Time: time.Now().UTC(), UserID: user, Badge: badge}
}
