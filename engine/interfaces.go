package engine

import (
	"context"
	"time"

	"scuolakit/core"
)

// UserStore abstracts persistence of the user's XP total and derived level.
// AddXP must apply the increment and the recomputed level in one atomic
// store-level step: two concurrent awards for the same user must both land,
// and xp/level must never be observable out of sync.
type UserStore interface {
	GetUser(ctx context.Context, user core.UserID) (core.User, error)
	AddXP(ctx context.Context, user core.UserID, delta int64) (newXP, newLevel int64, err error)
}

// BadgeCatalog reads the fixed badge catalog.
type BadgeCatalog interface {
	ListBadges(ctx context.Context) ([]core.Badge, error)
}

// GrantStore reads and writes badge grant records. CreateGrant returns
// created=false when the (user, badge) pair already exists; backed by a
// uniqueness constraint where the store supports one.
type GrantStore interface {
	ListGrants(ctx context.Context, user core.UserID) ([]core.Grant, error)
	CreateGrant(ctx context.Context, user core.UserID, badge core.BadgeID, earnedAt time.Time) (created bool, err error)
}

// CounterSource resolves the named activity counters badge thresholds are
// checked against. Counters live with the portal's content tables, not here.
type CounterSource interface {
	CountFor(ctx context.Context, user core.UserID, req core.RequirementType) (int64, error)
}

// Storage bundles the four collaborator interfaces; the adapters implement
// all of them against one backend.
type Storage interface {
	UserStore
	BadgeCatalog
	GrantStore
	CounterSource
}
