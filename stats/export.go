package stats

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"sort"
	"strconv"
	"time"

	"scuolakit/core"
)

// Snapshot is a point-in-time copy of the aggregated dashboard numbers,
// suitable for serving as JSON or exporting to a spreadsheet.
type Snapshot struct {
	TakenAt       time.Time              `json:"taken_at"`
	Awards        int64                  `json:"awards"`
	XPByAction    map[core.Action]int64  `json:"xp_by_action"`
	XPByDay       map[string]int64       `json:"xp_by_day"`
	ActiveByDay   map[string]int         `json:"active_users_by_day"`
	LevelUpsByDay map[string]int64       `json:"level_ups_by_day"`
	BadgeGrants   map[core.BadgeID]int64 `json:"badge_grants"`
	BadgeHolders  map[core.BadgeID]int   `json:"badge_holders"`
	TopEarners    []Earner               `json:"top_earners"`
}

// Snapshot copies the current aggregates. The receiver keeps accumulating
// afterwards; the snapshot is independent.
func (m *PortalMetrics) Snapshot(topN int) Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Snapshot{
		TakenAt:       time.Now().UTC(),
		Awards:        m.awards,
		XPByAction:    make(map[core.Action]int64, len(m.xpByAction)),
		XPByDay:       make(map[string]int64, len(m.xpByDay)),
		ActiveByDay:   make(map[string]int, len(m.activeUsersByDay)),
		LevelUpsByDay: make(map[string]int64, len(m.levelUpsByDay)),
		BadgeGrants:   make(map[core.BadgeID]int64, len(m.grantsByBadge)),
		BadgeHolders:  make(map[core.BadgeID]int, len(m.holdersByBadge)),
	}
	for k, v := range m.xpByAction {
		s.XPByAction[k] = v
	}
	for k, v := range m.xpByDay {
		s.XPByDay[k] = v
	}
	for k, v := range m.activeUsersByDay {
		s.ActiveByDay[k] = len(v)
	}
	for k, v := range m.levelUpsByDay {
		s.LevelUpsByDay[k] = v
	}
	for k, v := range m.grantsByBadge {
		s.BadgeGrants[k] = v
	}
	for k, v := range m.holdersByBadge {
		s.BadgeHolders[k] = len(v)
	}

	out := make([]Earner, 0, len(m.xpByUser))
	for u, xp := range m.xpByUser {
		out = append(out, Earner{User: u, XP: xp})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].XP == out[j].XP {
			return out[i].User < out[j].User
		}
		return out[i].XP > out[j].XP
	})
	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	s.TopEarners = out
	return s
}

// WriteJSON writes the snapshot as indented JSON.
func (s Snapshot) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// WriteCSV writes the snapshot as rows of (section, key, value). The flat
// shape keeps the export openable in any spreadsheet without preprocessing.
func (s Snapshot) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"section", "key", "value"}); err != nil {
		return err
	}
	write := func(section, key string, value int64) error {
		return cw.Write([]string{section, key, strconv.FormatInt(value, 10)})
	}

	if err := write("totals", "awards", s.Awards); err != nil {
		return err
	}
	for _, k := range sortedKeys(s.XPByAction) {
		if err := write("xp_by_action", string(k), s.XPByAction[k]); err != nil {
			return err
		}
	}
	for _, k := range sortedStrings(s.XPByDay) {
		if err := write("xp_by_day", k, s.XPByDay[k]); err != nil {
			return err
		}
	}
	for k, v := range s.ActiveByDay {
		if err := write("active_users_by_day", k, int64(v)); err != nil {
			return err
		}
	}
	for _, k := range sortedBadges(s.BadgeGrants) {
		if err := write("badge_grants", string(k), s.BadgeGrants[k]); err != nil {
			return err
		}
	}
	for _, e := range s.TopEarners {
		if err := write("top_earners", string(e.User), e.XP); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func sortedKeys(m map[core.Action]int64) []core.Action {
	keys := make([]core.Action, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func sortedStrings(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedBadges(m map[core.BadgeID]int64) []core.BadgeID {
	keys := make([]core.BadgeID, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
