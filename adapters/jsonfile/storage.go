package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"scuolakit/core"
)

// Store persists the whole gamification state to a single JSON file.
// Suitable for demos and small class deployments.
type Store struct {
	path    string
	catalog []core.Badge
	mu      sync.Mutex
	// in-memory cache for speed
	data map[core.UserID]*userState
}

type userState struct {
	User     core.User                      `json:"user"`
	Grants   map[core.BadgeID]time.Time     `json:"grants"`
	Counters map[core.RequirementType]int64 `json:"counters"`
}

func New(path string, catalog []core.Badge) (*Store, error) {
	s := &Store{path: path, catalog: append([]core.Badge(nil), catalog...), data: map[core.UserID]*userState{}}
	if err := s.load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) load() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var raw map[string]*userState
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for k, v := range raw {
		if v.Grants == nil {
			v.Grants = map[core.BadgeID]time.Time{}
		}
		if v.Counters == nil {
			v.Counters = map[core.RequirementType]int64{}
		}
		s.data[core.UserID(k)] = v
	}
	return nil
}

func (s *Store) persist() error {
	tmp := s.path + ".tmp"
	raw := make(map[string]*userState, len(s.data))
	for k, v := range s.data {
		raw[string(k)] = v
	}
	b, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// PutUser creates or replaces a user record and persists immediately.
// The stored ID is normalized so lookups through the engine find it.
func (s *Store) PutUser(_ context.Context, u core.User) error {
	id, err := core.NormalizeUserID(u.ID)
	if err != nil {
		return err
	}
	u.ID = id
	s.mu.Lock()
	defer s.mu.Unlock()
	u.Level = core.LevelFor(u.XP)
	u.Updated = time.Now().UTC()
	st, ok := s.data[u.ID]
	if !ok {
		st = &userState{Grants: map[core.BadgeID]time.Time{}, Counters: map[core.RequirementType]int64{}}
		s.data[u.ID] = st
	}
	prev := st.User
	st.User = u
	if err := s.persist(); err != nil {
		if ok {
			st.User = prev
		} else {
			delete(s.data, u.ID)
		}
		return err
	}
	return nil
}

func (s *Store) GetUser(_ context.Context, user core.UserID) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.data[user]
	if !ok {
		return core.User{}, core.ErrUserNotFound
	}
	return st.User, nil
}

func (s *Store) AddXP(_ context.Context, user core.UserID, delta int64) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.data[user]
	if !ok {
		return 0, 0, core.ErrUserNotFound
	}
	next, err := core.AddSafe(st.User.XP, delta)
	if err != nil {
		return 0, 0, err
	}
	prev := st.User
	st.User.XP = next
	st.User.Level = core.LevelFor(next)
	st.User.Updated = time.Now().UTC()
	if err := s.persist(); err != nil {
		st.User = prev
		return 0, 0, err
	}
	return st.User.XP, st.User.Level, nil
}

func (s *Store) ListBadges(_ context.Context) ([]core.Badge, error) {
	return append([]core.Badge(nil), s.catalog...), nil
}

func (s *Store) ListGrants(_ context.Context, user core.UserID) ([]core.Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.data[user]
	if !ok {
		return nil, nil
	}
	grants := make([]core.Grant, 0, len(st.Grants))
	for badge, earned := range st.Grants {
		grants = append(grants, core.Grant{UserID: user, BadgeID: badge, EarnedAt: earned})
	}
	return grants, nil
}

func (s *Store) CreateGrant(_ context.Context, user core.UserID, badge core.BadgeID, earnedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.data[user]
	if !ok {
		return false, core.ErrUserNotFound
	}
	if _, dup := st.Grants[badge]; dup {
		return false, nil
	}
	st.Grants[badge] = earnedAt.UTC()
	if err := s.persist(); err != nil {
		delete(st.Grants, badge)
		return false, err
	}
	return true, nil
}

// RecordActivity feeds a named counter and persists it.
func (s *Store) RecordActivity(_ context.Context, user core.UserID, req core.RequirementType, n int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.data[user]
	if !ok {
		return core.ErrUserNotFound
	}
	prev, had := st.Counters[req]
	st.Counters[req] = prev + n
	if err := s.persist(); err != nil {
		if had {
			st.Counters[req] = prev
		} else {
			delete(st.Counters, req)
		}
		return err
	}
	return nil
}

func (s *Store) CountFor(_ context.Context, user core.UserID, req core.RequirementType) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.data[user]
	if !ok {
		return 0, core.ErrUserNotFound
	}
	if req == core.ReqXPPoints {
		return st.User.XP, nil
	}
	return st.Counters[req], nil
}
