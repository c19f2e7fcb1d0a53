package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"scuolakit/core"
)

// Service is the gamification engine: it translates qualifying user actions
// into persistent XP totals, keeps the derived level in sync, and grants
// catalog badges when counters cross their thresholds.
type Service struct {
	users    UserStore
	catalog  BadgeCatalog
	grants   GrantStore
	counters CounterSource
	bus      *EventBus
}

func NewService(users UserStore, catalog BadgeCatalog, grants GrantStore, counters CounterSource, bus *EventBus) *Service {
	if users == nil || catalog == nil || grants == nil || counters == nil || bus == nil {
		panic("NewService requires non-nil collaborators and bus")
	}
	return &Service{users: users, catalog: catalog, grants: grants, counters: counters, bus: bus}
}

// Award reports the outcome of one XP grant.
type Award struct {
	UserID    core.UserID `json:"user_id"`
	Points    int64       `json:"points"`
	Reason    string      `json:"reason"`
	NewXP     int64       `json:"new_xp"`
	NewLevel  int64       `json:"new_level"`
	LeveledUp bool        `json:"leveled_up"`
}

// Evaluation reports the outcome of one badge evaluation pass. Skipped
// carries the badges whose counter source failed; they are retried on the
// next pass.
type Evaluation struct {
	Granted []core.BadgeID      `json:"granted"`
	Skipped []core.CounterError `json:"-"`
}

// Progress summarizes earned vs. available badges for a user.
type Progress struct {
	Earned     int `json:"earned"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

// Profile is the user snapshot plus held grants, as the profile page shows.
type Profile struct {
	User   core.User    `json:"user"`
	Grants []core.Grant `json:"grants"`
}

// Subscribe convenience method.
func (s *Service) Subscribe(typ core.EventType, handler func(context.Context, core.Event)) func() {
	return s.bus.Subscribe(typ, handler)
}

func (s *Service) Publish(ctx context.Context, ev core.Event) {
	s.bus.Publish(ctx, ev)
}

// AwardXP increments the user's XP by points and recomputes the level from
// the new total. Points must be non-negative: the total never decreases
// through this operation. Badge evaluation is a separate, explicit step.
func (s *Service) AwardXP(ctx context.Context, user core.UserID, points int64, reason string) (Award, error) {
	return s.award(ctx, user, points, reason, "")
}

// AwardAction grants the fixed XP value for an action tag.
func (s *Service) AwardAction(ctx context.Context, user core.UserID, action core.Action) (Award, error) {
	points, err := core.XPForAction(action)
	if err != nil {
		return Award{}, err
	}
	return s.award(ctx, user, points, string(action), action)
}

// AwardQuizCompletion grants XP computed from the quiz score percentage.
func (s *Service) AwardQuizCompletion(ctx context.Context, user core.UserID, percentage int64) (Award, error) {
	points, err := core.QuizPoints(percentage)
	if err != nil {
		return Award{}, err
	}
	return s.award(ctx, user, points, string(core.ActionQuizCompleted), core.ActionQuizCompleted)
}

func (s *Service) award(ctx context.Context, user core.UserID, points int64, reason string, action core.Action) (Award, error) {
	if points < 0 {
		return Award{}, fmt.Errorf("points must be non-negative, got %d", points)
	}
	normalized, err := core.NormalizeUserID(user)
	if err != nil {
		return Award{}, err
	}
	newXP, newLevel, err := s.users.AddXP(ctx, normalized, points)
	if err != nil {
		return Award{}, core.NewStorageError("add_xp", err)
	}
	ev := core.NewXPAwarded(normalized, points, newXP, reason)
	ev.Action = action
	s.bus.Publish(ctx, ev)

	// The pre-award level follows from the pre-award total; no extra read.
	leveledUp := newLevel > core.LevelFor(newXP-points)
	if leveledUp {
		s.bus.Publish(ctx, core.NewLevelUp(normalized, newLevel))
	}
	return Award{
		UserID:    normalized,
		Points:    points,
		Reason:    reason,
		NewXP:     newXP,
		NewLevel:  newLevel,
		LeveledUp: leveledUp,
	}, nil
}

// EvaluateBadges checks every not-yet-earned catalog badge against the
// user's current counters and grants the qualified ones exactly once.
// A failed counter lookup skips that badge only; evaluation continues.
func (s *Service) EvaluateBadges(ctx context.Context, user core.UserID) (Evaluation, error) {
	normalized, err := core.NormalizeUserID(user)
	if err != nil {
		return Evaluation{}, err
	}
	if _, err := s.users.GetUser(ctx, normalized); err != nil {
		return Evaluation{}, core.NewStorageError("get_user", err)
	}
	badges, err := s.catalog.ListBadges(ctx)
	if err != nil {
		return Evaluation{}, core.NewStorageError("list_badges", err)
	}
	grants, err := s.grants.ListGrants(ctx, normalized)
	if err != nil {
		return Evaluation{}, core.NewStorageError("list_grants", err)
	}
	held := make(map[core.BadgeID]struct{}, len(grants))
	for _, g := range grants {
		held[g.BadgeID] = struct{}{}
	}

	var eval Evaluation
	for _, b := range badges {
		if _, ok := held[b.ID]; ok {
			continue
		}
		counter, err := s.counters.CountFor(ctx, normalized, b.RequirementType)
		if err != nil {
			eval.Skipped = append(eval.Skipped, core.CounterError{Badge: b.ID, RequirementType: b.RequirementType, Err: err})
			continue
		}
		if !b.UnlockedBy(counter) {
			continue
		}
		created, err := s.grants.CreateGrant(ctx, normalized, b.ID, time.Now().UTC())
		if err != nil {
			if errors.Is(err, core.ErrDuplicateGrant) {
				continue
			}
			return eval, core.NewStorageError("create_grant", err)
		}
		if !created {
			// lost the race to a concurrent pass; the grant exists
			continue
		}
		eval.Granted = append(eval.Granted, b.ID)
		s.bus.Publish(ctx, core.NewBadgeEarned(normalized, b.ID))
	}
	return eval, nil
}

// State returns the user's snapshot and held grants.
func (s *Service) State(ctx context.Context, user core.UserID) (Profile, error) {
	normalized, err := core.NormalizeUserID(user)
	if err != nil {
		return Profile{}, err
	}
	u, err := s.users.GetUser(ctx, normalized)
	if err != nil {
		return Profile{}, core.NewStorageError("get_user", err)
	}
	grants, err := s.grants.ListGrants(ctx, normalized)
	if err != nil {
		return Profile{}, core.NewStorageError("list_grants", err)
	}
	return Profile{User: u, Grants: grants}, nil
}

// BadgeProgress returns earned/total/percentage for a user, as the profile
// page displays it.
func (s *Service) BadgeProgress(ctx context.Context, user core.UserID) (Progress, error) {
	normalized, err := core.NormalizeUserID(user)
	if err != nil {
		return Progress{}, err
	}
	badges, err := s.catalog.ListBadges(ctx)
	if err != nil {
		return Progress{}, core.NewStorageError("list_badges", err)
	}
	grants, err := s.grants.ListGrants(ctx, normalized)
	if err != nil {
		return Progress{}, core.NewStorageError("list_grants", err)
	}
	p := Progress{Earned: len(grants), Total: len(badges)}
	if p.Total > 0 {
		p.Percentage = int(float64(p.Earned) / float64(p.Total) * 100)
	}
	return p, nil
}

// Catalog lists the badge catalog.
func (s *Service) Catalog(ctx context.Context) ([]core.Badge, error) {
	badges, err := s.catalog.ListBadges(ctx)
	if err != nil {
		return nil, core.NewStorageError("list_badges", err)
	}
	return badges, nil
}

func (s *Service) Close() { s.bus.Close() }
