package core

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// UserID uniquely identifies a portal user in the gamification domain.
type UserID string

// LevelSize is the XP span of a single level. The portal renders progress as
// "xp-in-level / 100", so a level is crossed every 100 XP.
const LevelSize int64 = 100

// User is a snapshot of a user's gamification state. XP and Level are kept
// consistent by the stores: Level is always LevelFor(XP).
type User struct {
	ID          UserID    `json:"id"`
	DisplayName string    `json:"display_name,omitempty"`
	XP          int64     `json:"xp_points"`
	Level       int64     `json:"level"`
	Updated     time.Time `json:"updated"`
}

// LevelFor derives the level from an XP total: floor(xp/LevelSize)+1.
// Total for all non-negative xp; never below 1.
func LevelFor(xp int64) int64 {
	if xp <= 0 {
		return 1
	}
	return xp/LevelSize + 1
}

// Action tags the user activity that earns XP.
type Action string

const (
	ActionCommentPosted      Action = "comment_posted"
	ActionLikeGiven          Action = "like_given"
	ActionMaterialUploaded   Action = "material_uploaded"
	ActionMaterialDownloaded Action = "material_downloaded"
	ActionQuizCompleted      Action = "quiz_completed"
)

// actionXP is the single lookup table of fixed per-action grants.
// ActionQuizCompleted is absent on purpose: quiz XP is computed from the
// score percentage via QuizPoints.
var actionXP = map[Action]int64{
	ActionCommentPosted:      5,
	ActionLikeGiven:          2,
	ActionMaterialUploaded:   20,
	ActionMaterialDownloaded: 5,
}

// XPForAction resolves the fixed XP value for an action tag.
func XPForAction(a Action) (int64, error) {
	if xp, ok := actionXP[a]; ok {
		return xp, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAction, a)
}

// QuizPoints converts a quiz score percentage (0-100) into XP: floor(p*10),
// so a perfect quiz is worth 1000 XP.
func QuizPoints(percentage int64) (int64, error) {
	if percentage < 0 || percentage > 100 {
		return 0, fmt.Errorf("percentage out of range [0,100]: %d", percentage)
	}
	return percentage * 10, nil
}

// AddSafe adds delta to base ensuring no signed overflow occurs.
func AddSafe(base int64, delta int64) (int64, error) {
	if (delta > 0 && base > math.MaxInt64-delta) || (delta < 0 && base < math.MinInt64-delta) {
		return 0, errors.New("integer overflow in AddSafe")
	}
	return base + delta, nil
}

// NormalizeUserID trims and lowercases user identifiers.
func NormalizeUserID(id UserID) (UserID, error) {
	s := strings.TrimSpace(string(id))
	if s == "" {
		return "", errors.New("empty user id")
	}
	return UserID(strings.ToLower(s)), nil
}
