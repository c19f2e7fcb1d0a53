package leaderboard

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"sync"

	"scuolakit/core"
)

// Skip list ordered by XP descending, user ascending, giving O(log n)
// updates as award events stream in.

const (
	maxHeight = 16
	promoteP  = 0.25
)

type node struct {
	e    Entry
	next [maxHeight]*node
}

type SkipList struct {
	mu     sync.RWMutex
	head   *node
	height int
	byUser map[core.UserID]*node
	rng    *rand.Rand
}

func NewSkipList() *SkipList {
	// Seed PCG from crypto/rand so tower heights differ between runs.
	var seed [16]byte
	_, _ = cryptorand.Read(seed[:])
	return &SkipList{
		head:   &node{},
		height: 1,
		byUser: map[core.UserID]*node{},
		rng: rand.New(rand.NewPCG(
			binary.BigEndian.Uint64(seed[:8]),
			binary.BigEndian.Uint64(seed[8:]),
		)),
	}
}

func (s *SkipList) rollHeight() int {
	h := 1
	for h < maxHeight && s.rng.Float64() < promoteP {
		h++
	}
	return h
}

func rankBefore(a, b Entry) bool {
	if a.XP != b.XP {
		return a.XP > b.XP
	}
	return a.User < b.User
}

// predecessors returns, per height, the last node ranked before e.
func (s *SkipList) predecessors(e Entry) [maxHeight]*node {
	var prev [maxHeight]*node
	cur := s.head
	for i := s.height - 1; i >= 0; i-- {
		for cur.next[i] != nil && rankBefore(cur.next[i].e, e) {
			cur = cur.next[i]
		}
		prev[i] = cur
	}
	return prev
}

// Update inserts user at the given XP total, or moves an existing entry to
// its new rank.
func (s *SkipList) Update(user core.UserID, xp int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.byUser[user]; ok {
		s.unlink(old)
	}
	e := Entry{User: user, XP: xp, Level: core.LevelFor(xp)}
	prev := s.predecessors(e)
	h := s.rollHeight()
	for i := s.height; i < h; i++ {
		prev[i] = s.head
	}
	if h > s.height {
		s.height = h
	}
	n := &node{e: e}
	for i := 0; i < h; i++ {
		n.next[i] = prev[i].next[i]
		prev[i].next[i] = n
	}
	s.byUser[user] = n
}

func (s *SkipList) unlink(target *node) {
	prev := s.predecessors(target.e)
	if prev[0].next[0] != target {
		return
	}
	for i := 0; i < s.height; i++ {
		if prev[i].next[i] == target {
			prev[i].next[i] = target.next[i]
		}
	}
	delete(s.byUser, target.e.User)
	for s.height > 1 && s.head.next[s.height-1] == nil {
		s.height--
	}
}

func (s *SkipList) Remove(user core.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.byUser[user]; ok {
		s.unlink(n)
	}
}

// TopN walks the base level, which is already in rank order.
func (s *SkipList) TopN(n int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 {
		return nil
	}
	out := make([]Entry, 0, n)
	for cur := s.head.next[0]; cur != nil && len(out) < n; cur = cur.next[0] {
		out = append(out, cur.e)
	}
	return out
}

func (s *SkipList) Get(user core.UserID) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n, ok := s.byUser[user]; ok {
		return n.e, true
	}
	return Entry{}, false
}

var _ Board = (*SkipList)(nil)
