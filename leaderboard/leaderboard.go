package leaderboard

import "scuolakit/core"

// Entry is one leaderboard row, as the portal's classifica page shows it.
type Entry struct {
	User  core.UserID `json:"user_id"`
	XP    int64       `json:"xp_points"`
	Level int64       `json:"level"`
}

// Board abstracts leaderboard operations, ordered by XP descending.
type Board interface {
	Update(user core.UserID, xp int64)
	Remove(user core.UserID)
	TopN(n int) []Entry
	Get(user core.UserID) (Entry, bool)
}
