package sdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Award mirrors the JSON result of an XP award.
type Award struct {
	UserID    string `json:"user_id"`
	Points    int64  `json:"points"`
	Reason    string `json:"reason"`
	NewXP     int64  `json:"new_xp"`
	NewLevel  int64  `json:"new_level"`
	LeveledUp bool   `json:"leveled_up"`
}

// Evaluation mirrors the JSON result of a badge evaluation pass.
type Evaluation struct {
	Granted []string `json:"granted"`
}

// Progress mirrors the earned/total/percentage badge summary.
type Progress struct {
	Earned     int `json:"earned"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

// UserInfo mirrors the public JSON surface of a user record.
type UserInfo struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	XP          int64     `json:"xp_points"`
	Level       int64     `json:"level"`
	Updated     time.Time `json:"updated"`
}

// GrantInfo mirrors one held badge.
type GrantInfo struct {
	UserID   string    `json:"user_id"`
	BadgeID  string    `json:"badge_id"`
	EarnedAt time.Time `json:"earned_at"`
}

// Profile is the user snapshot plus held badges.
type Profile struct {
	User   UserInfo    `json:"user"`
	Grants []GrantInfo `json:"grants"`
}

// BadgeInfo mirrors one catalog entry.
type BadgeInfo struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Description      string `json:"description"`
	Icon             string `json:"icon"`
	RequirementType  string `json:"requirement_type"`
	RequirementValue int64  `json:"requirement_value"`
}

// LeaderboardEntry mirrors one leaderboard row.
type LeaderboardEntry struct {
	User  string `json:"user_id"`
	XP    int64  `json:"xp_points"`
	Level int64  `json:"level"`
}

// HealthStatus describes the /healthz response.
type HealthStatus struct {
	Status string                 `json:"status"`
	Checks map[string]interface{} `json:"checks"`
}

func decodeJSON(resp *http.Response, target any) error {
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("request failed: status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(target)
}

// ErrEmptyUserID is returned when user id is empty.
var ErrEmptyUserID = errors.New("user id is required")
