package leaderboard

import (
	"testing"

	"scuolakit/core"
)

func TestSkipListBasic(t *testing.T) {
	s := NewSkipList()
	s.Update(core.UserID("a"), 10)
	s.Update(core.UserID("b"), 20)
	s.Update(core.UserID("c"), 15)
	top := s.TopN(3)
	if len(top) != 3 || top[0].User != core.UserID("b") || top[1].User != core.UserID("c") || top[2].User != core.UserID("a") {
		t.Fatalf("unexpected order: %#v", top)
	}
	s.Update(core.UserID("a"), 25)
	top = s.TopN(1)
	if top[0].User != core.UserID("a") {
		t.Fatalf("top should be a, got %#v", top)
	}
}

func TestSkipListEntryLevel(t *testing.T) {
	s := NewSkipList()
	s.Update(core.UserID("a"), 250)
	e, ok := s.Get(core.UserID("a"))
	if !ok || e.Level != core.LevelFor(250) {
		t.Fatalf("unexpected entry: %#v ok=%v", e, ok)
	}
}

func TestSkipListRemove(t *testing.T) {
	s := NewSkipList()
	s.Update(core.UserID("a"), 10)
	s.Update(core.UserID("b"), 20)
	s.Remove(core.UserID("b"))
	top := s.TopN(10)
	if len(top) != 1 || top[0].User != core.UserID("a") {
		t.Fatalf("unexpected board after remove: %#v", top)
	}
	if _, ok := s.Get(core.UserID("b")); ok {
		t.Fatal("removed user still present")
	}
}

func TestSkipListTieBreakByUser(t *testing.T) {
	s := NewSkipList()
	s.Update(core.UserID("zoe"), 50)
	s.Update(core.UserID("ada"), 50)
	top := s.TopN(2)
	if top[0].User != core.UserID("ada") || top[1].User != core.UserID("zoe") {
		t.Fatalf("tie not broken by user id: %#v", top)
	}
}
