package stats

import (
	"sort"
	"sync"
	"time"

	"scuolakit/core"
)

// Hook receives domain events for dashboard aggregation.
type Hook interface {
	OnEvent(e core.Event)
}

// Earner is one row of the top-contributors table.
type Earner struct {
	User core.UserID `json:"user_id"`
	XP   int64       `json:"xp"`
}

// PortalMetrics aggregates the numbers the dashboard page shows: XP awarded
// per action and per day, active users, level-ups, and badge grants.
// Safe for concurrent use; feed it by subscribing OnEvent to the event bus.
type PortalMetrics struct {
	mu sync.RWMutex

	xpByAction       map[core.Action]int64
	xpByDay          map[string]int64
	xpByUser         map[core.UserID]int64
	activeUsersByDay map[string]map[core.UserID]struct{}
	levelUpsByDay    map[string]int64
	grantsByBadge    map[core.BadgeID]int64
	holdersByBadge   map[core.BadgeID]map[core.UserID]struct{}
	awards           int64
}

func NewPortalMetrics() *PortalMetrics {
	return &PortalMetrics{
		xpByAction:       map[core.Action]int64{},
		xpByDay:          map[string]int64{},
		xpByUser:         map[core.UserID]int64{},
		activeUsersByDay: map[string]map[core.UserID]struct{}{},
		levelUpsByDay:    map[string]int64{},
		grantsByBadge:    map[core.BadgeID]int64{},
		holdersByBadge:   map[core.BadgeID]map[core.UserID]struct{}{},
	}
}

func dayKey(t time.Time) string { return t.UTC().Format("2006-01-02") }

func (m *PortalMetrics) OnEvent(e core.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	day := dayKey(e.Time)
	if m.activeUsersByDay[day] == nil {
		m.activeUsersByDay[day] = map[core.UserID]struct{}{}
	}
	m.activeUsersByDay[day][e.UserID] = struct{}{}

	switch e.Type {
	case core.EventXPAwarded:
		m.awards++
		m.xpByDay[day] += e.Points
		m.xpByUser[e.UserID] += e.Points
		if e.Action != "" {
			m.xpByAction[e.Action] += e.Points
		}
	case core.EventLevelUp:
		m.levelUpsByDay[day]++
	case core.EventBadgeEarned:
		m.grantsByBadge[e.Badge]++
		if m.holdersByBadge[e.Badge] == nil {
			m.holdersByBadge[e.Badge] = map[core.UserID]struct{}{}
		}
		m.holdersByBadge[e.Badge][e.UserID] = struct{}{}
	}
}

// XPByAction returns total XP awarded for one action tag.
func (m *PortalMetrics) XPByAction(a core.Action) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.xpByAction[a]
}

// ActiveUsers returns the distinct users seen on a day (key "2006-01-02").
func (m *PortalMetrics) ActiveUsers(day string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.activeUsersByDay[day])
}

// LevelUps returns the level transitions recorded on a day.
func (m *PortalMetrics) LevelUps(day string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.levelUpsByDay[day]
}

// BadgeGrants returns how often a badge has been earned.
func (m *PortalMetrics) BadgeGrants(b core.BadgeID) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.grantsByBadge[b]
}

// UniqueHolders returns how many distinct users hold a badge.
func (m *PortalMetrics) UniqueHolders(b core.BadgeID) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.holdersByBadge[b])
}

// TopEarners returns the highest observed XP earners, descending, ties
// broken by user id for stable output.
func (m *PortalMetrics) TopEarners(limit int) []Earner {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Earner, 0, len(m.xpByUser))
	for u, xp := range m.xpByUser {
		out = append(out, Earner{User: u, XP: xp})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].XP == out[j].XP {
			return out[i].User < out[j].User
		}
		return out[i].XP > out[j].XP
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

var _ Hook = (*PortalMetrics)(nil)
