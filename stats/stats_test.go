package stats

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"scuolakit/core"
)

func at(day string) time.Time {
	t, _ := time.Parse("2006-01-02", day)
	return t
}

func TestMetricsAggregation(t *testing.T) {
	m := NewPortalMetrics()

	ev := core.NewXPAwarded("alice", 5, 5, string(core.ActionCommentPosted))
	ev.Action = core.ActionCommentPosted
	ev.Time = at("2026-03-01")
	m.OnEvent(ev)

	ev2 := core.NewXPAwarded("bob", 20, 20, string(core.ActionMaterialUploaded))
	ev2.Action = core.ActionMaterialUploaded
	ev2.Time = at("2026-03-01")
	m.OnEvent(ev2)

	ev3 := core.NewXPAwarded("alice", 2, 7, string(core.ActionLikeGiven))
	ev3.Action = core.ActionLikeGiven
	ev3.Time = at("2026-03-02")
	m.OnEvent(ev3)

	if got := m.XPByAction(core.ActionCommentPosted); got != 5 {
		t.Errorf("XPByAction(comment_posted) = %d, want 5", got)
	}
	if got := m.ActiveUsers("2026-03-01"); got != 2 {
		t.Errorf("ActiveUsers(2026-03-01) = %d, want 2", got)
	}
	if got := m.ActiveUsers("2026-03-02"); got != 1 {
		t.Errorf("ActiveUsers(2026-03-02) = %d, want 1", got)
	}

	lvl := core.NewLevelUp("bob", 2)
	lvl.Time = at("2026-03-01")
	m.OnEvent(lvl)
	if got := m.LevelUps("2026-03-01"); got != 1 {
		t.Errorf("LevelUps = %d, want 1", got)
	}

	grant := core.NewBadgeEarned("alice", "primo-quiz")
	grant.Time = at("2026-03-02")
	m.OnEvent(grant)
	m.OnEvent(grant) // duplicate holder, counted once
	if got := m.BadgeGrants("primo-quiz"); got != 2 {
		t.Errorf("BadgeGrants = %d, want 2", got)
	}
	if got := m.UniqueHolders("primo-quiz"); got != 1 {
		t.Errorf("UniqueHolders = %d, want 1", got)
	}
}

func TestTopEarnersOrderAndLimit(t *testing.T) {
	m := NewPortalMetrics()
	for user, pts := range map[core.UserID]int64{"carla": 40, "bruno": 120, "anna": 40} {
		ev := core.NewXPAwarded(user, pts, pts, "seed")
		m.OnEvent(ev)
	}

	top := m.TopEarners(0)
	if len(top) != 3 {
		t.Fatalf("len = %d, want 3", len(top))
	}
	if top[0].User != "bruno" {
		t.Errorf("top[0] = %s, want bruno", top[0].User)
	}
	// equal XP sorts by user id
	if top[1].User != "anna" || top[2].User != "carla" {
		t.Errorf("tie-break order = %s, %s", top[1].User, top[2].User)
	}

	if got := m.TopEarners(1); len(got) != 1 {
		t.Errorf("limited len = %d, want 1", len(got))
	}
}

func TestSnapshotIsIndependent(t *testing.T) {
	m := NewPortalMetrics()
	m.OnEvent(core.NewXPAwarded("alice", 10, 10, "seed"))

	s := m.Snapshot(10)
	m.OnEvent(core.NewXPAwarded("alice", 90, 100, "seed"))

	if s.Awards != 1 {
		t.Errorf("snapshot awards = %d, want 1", s.Awards)
	}
	if len(s.TopEarners) != 1 || s.TopEarners[0].XP != 10 {
		t.Errorf("snapshot top earners mutated: %+v", s.TopEarners)
	}
}

func TestSnapshotExports(t *testing.T) {
	m := NewPortalMetrics()
	ev := core.NewXPAwarded("alice", 5, 5, string(core.ActionCommentPosted))
	ev.Action = core.ActionCommentPosted
	m.OnEvent(ev)
	m.OnEvent(core.NewBadgeEarned("alice", "primo-appunto"))

	s := m.Snapshot(5)

	var buf bytes.Buffer
	if err := s.WriteJSON(&buf); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	var round Snapshot
	if err := json.Unmarshal(buf.Bytes(), &round); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if round.Awards != 1 || round.BadgeGrants["primo-appunto"] != 1 {
		t.Errorf("round trip: %+v", round)
	}

	buf.Reset()
	if err := s.WriteCSV(&buf); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "section,key,value") {
		t.Errorf("missing header: %q", out)
	}
	if !strings.Contains(out, "xp_by_action,comment_posted,5") {
		t.Errorf("missing action row: %q", out)
	}
	if !strings.Contains(out, "top_earners,alice,5") {
		t.Errorf("missing earner row: %q", out)
	}
}
