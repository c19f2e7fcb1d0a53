package core

import (
	"errors"
	"strings"
	"time"
)

// BadgeID is a named badge identifier from the catalog.
type BadgeID string

// RequirementType names the counter category a badge threshold is checked
// against. Counters are sourced from the portal's content tables, not from
// this engine.
type RequirementType string

const (
	ReqCommentsPosted      RequirementType = "comments_posted"
	ReqLikesGiven          RequirementType = "likes_given"
	ReqMaterialsUploaded   RequirementType = "materials_uploaded"
	ReqMaterialsDownloaded RequirementType = "materials_downloaded"
	ReqQuizzesCompleted    RequirementType = "quizzes_completed"
	ReqXPPoints            RequirementType = "xp_points"
)

// Badge is one catalog entry. The catalog is fixed; the engine never creates
// or mutates entries.
type Badge struct {
	ID               BadgeID         `json:"id"`
	Name             string          `json:"name"`
	Description      string          `json:"description"`
	Icon             string          `json:"icon"`
	RequirementType  RequirementType `json:"requirement_type"`
	RequirementValue int64           `json:"requirement_value"`
}

// UnlockedBy reports whether a counter value satisfies the badge threshold.
func (b Badge) UnlockedBy(counter int64) bool {
	return counter >= b.RequirementValue
}

// Grant records a badge earned by a user. Created exactly once per
// (user, badge) pair and never mutated afterwards.
type Grant struct {
	UserID   UserID    `json:"user_id"`
	BadgeID  BadgeID   `json:"badge_id"`
	EarnedAt time.Time `json:"earned_at"`
}

// ValidateBadgeID ensures non-empty badge id with simple charset check.
func ValidateBadgeID(b BadgeID) error {
	s := strings.TrimSpace(string(b))
	if s == "" {
		return errors.New("empty badge id")
	}
	// simple check: alnum, dash, underscore
	for _, r := range s {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_' {
			continue
		}
		return errors.New("invalid badge id")
	}
	return nil
}

// DefaultCatalog returns the portal's built-in badge set, ordered by
// requirement value the way the badges page lists them.
func DefaultCatalog() []Badge {
	return []Badge{
		{ID: "primo-appunto", Name: "Primo Appunto", Description: "Carica il tuo primo appunto", Icon: "notebook", RequirementType: ReqMaterialsUploaded, RequirementValue: 1},
		{ID: "voce-del-forum", Name: "Voce del Forum", Description: "Pubblica 3 commenti", Icon: "message-circle", RequirementType: ReqCommentsPosted, RequirementValue: 3},
		{ID: "primo-quiz", Name: "Primo Quiz", Description: "Completa il tuo primo quiz", Icon: "help-circle", RequirementType: ReqQuizzesCompleted, RequirementValue: 1},
		{ID: "sostenitore", Name: "Sostenitore", Description: "Metti 20 like ai compagni", Icon: "thumbs-up", RequirementType: ReqLikesGiven, RequirementValue: 20},
		{ID: "lettore-assiduo", Name: "Lettore Assiduo", Description: "Scarica 25 appunti", Icon: "download", RequirementType: ReqMaterialsDownloaded, RequirementValue: 25},
		{ID: "archivista", Name: "Archivista", Description: "Carica 10 appunti", Icon: "archive", RequirementType: ReqMaterialsUploaded, RequirementValue: 10},
		{ID: "quiz-master", Name: "Quiz Master", Description: "Completa 10 quiz", Icon: "award", RequirementType: ReqQuizzesCompleted, RequirementValue: 10},
		{ID: "studioso", Name: "Studioso", Description: "Raggiungi 500 XP", Icon: "book-open", RequirementType: ReqXPPoints, RequirementValue: 500},
		{ID: "veterano", Name: "Veterano", Description: "Raggiungi 2000 XP", Icon: "trophy", RequirementType: ReqXPPoints, RequirementValue: 2000},
	}
}
