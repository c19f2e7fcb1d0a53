package memory

import (
	"context"
	"sync"
	"time"

	"scuolakit/core"
)

// Store is a concurrent in-memory implementation of every engine
// collaborator: user XP totals, badge catalog, grant records, and activity
// counters. It backs tests and demo deployments.
type Store struct {
	catalog []core.Badge
	users   sync.Map // map[core.UserID]*userRecord
}

type userRecord struct {
	mu       sync.Mutex
	user     core.User
	grants   map[core.BadgeID]core.Grant
	counters map[core.RequirementType]int64
}

// New creates a Store with the portal's default badge catalog.
func New() *Store { return NewWithCatalog(core.DefaultCatalog()) }

// NewWithCatalog creates a Store serving the given badge catalog.
func NewWithCatalog(catalog []core.Badge) *Store {
	return &Store{catalog: append([]core.Badge(nil), catalog...)}
}

// PutUser creates or replaces a user record. Level is forced consistent
// with the XP total, and the ID is normalized so lookups through the
// engine find it.
func (s *Store) PutUser(u core.User) {
	if id, err := core.NormalizeUserID(u.ID); err == nil {
		u.ID = id
	}
	u.Level = core.LevelFor(u.XP)
	u.Updated = time.Now().UTC()
	rec := &userRecord{
		user:     u,
		grants:   map[core.BadgeID]core.Grant{},
		counters: map[core.RequirementType]int64{},
	}
	s.users.Store(u.ID, rec)
}

func (s *Store) record(user core.UserID) (*userRecord, bool) {
	v, ok := s.users.Load(user)
	if !ok {
		return nil, false
	}
	return v.(*userRecord), true
}

func (s *Store) GetUser(_ context.Context, user core.UserID) (core.User, error) {
	rec, ok := s.record(user)
	if !ok {
		return core.User{}, core.ErrUserNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.user, nil
}

// AddXP applies the increment and level recompute under the record's lock,
// so concurrent awards for one user never lose an update.
func (s *Store) AddXP(_ context.Context, user core.UserID, delta int64) (int64, int64, error) {
	rec, ok := s.record(user)
	if !ok {
		return 0, 0, core.ErrUserNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	next, err := core.AddSafe(rec.user.XP, delta)
	if err != nil {
		return 0, 0, err
	}
	rec.user.XP = next
	rec.user.Level = core.LevelFor(next)
	rec.user.Updated = time.Now().UTC()
	return rec.user.XP, rec.user.Level, nil
}

func (s *Store) ListBadges(_ context.Context) ([]core.Badge, error) {
	return append([]core.Badge(nil), s.catalog...), nil
}

func (s *Store) ListGrants(_ context.Context, user core.UserID) ([]core.Grant, error) {
	rec, ok := s.record(user)
	if !ok {
		return nil, nil
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	out := make([]core.Grant, 0, len(rec.grants))
	for _, g := range rec.grants {
		out = append(out, g)
	}
	return out, nil
}

func (s *Store) CreateGrant(_ context.Context, user core.UserID, badge core.BadgeID, earnedAt time.Time) (bool, error) {
	rec, ok := s.record(user)
	if !ok {
		return false, core.ErrUserNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if _, dup := rec.grants[badge]; dup {
		return false, nil
	}
	rec.grants[badge] = core.Grant{UserID: user, BadgeID: badge, EarnedAt: earnedAt}
	return true, nil
}

// RecordActivity feeds the named counter, standing in for the portal's
// content tables (comments, likes, uploads, quiz attempts).
func (s *Store) RecordActivity(_ context.Context, user core.UserID, req core.RequirementType, n int64) {
	rec, ok := s.record(user)
	if !ok {
		return
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.counters[req] += n
}

func (s *Store) CountFor(_ context.Context, user core.UserID, req core.RequirementType) (int64, error) {
	rec, ok := s.record(user)
	if !ok {
		return 0, core.ErrUserNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if req == core.ReqXPPoints {
		return rec.user.XP, nil
	}
	return rec.counters[req], nil
}

// engine.Storage is asserted inline to keep this package importable from
// engine tests without a cycle.
var _ interface {
	GetUser(context.Context, core.UserID) (core.User, error)
	AddXP(context.Context, core.UserID, int64) (int64, int64, error)
	ListBadges(context.Context) ([]core.Badge, error)
	ListGrants(context.Context, core.UserID) ([]core.Grant, error)
	CreateGrant(context.Context, core.UserID, core.BadgeID, time.Time) (bool, error)
	CountFor(context.Context, core.UserID, core.RequirementType) (int64, error)
} = (*Store)(nil)
