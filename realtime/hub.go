package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"scuolakit/core"
)

// Hub fans engine events out to live listeners, the boundary the portal's
// XP widget and notification tray hang off. Each subscriber owns a buffered
// channel; a listener that stops draining loses events instead of stalling
// the rest.
type Hub struct {
	mu        sync.RWMutex
	lastID    int
	listeners map[int]chan core.Event
}

func NewHub() *Hub {
	return &Hub{listeners: make(map[int]chan core.Event)}
}

// Subscribe returns a listener id and the channel events arrive on. The
// buffer size bounds how far a slow listener may fall behind.
func (h *Hub) Subscribe(buffer int) (int, <-chan core.Event) {
	ch := make(chan core.Event, buffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastID++
	h.listeners[h.lastID] = ch
	return h.lastID, ch
}

// Unsubscribe removes the listener and closes its channel.
func (h *Hub) Unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.listeners[id]
	if !ok {
		return
	}
	delete(h.listeners, id)
	close(ch)
}

// Broadcast offers ev to every listener without blocking. Sends happen
// outside the lock so a slow receiver cannot block Subscribe.
func (h *Hub) Broadcast(_ context.Context, ev core.Event) {
	h.mu.RLock()
	targets := make([]chan core.Event, 0, len(h.listeners))
	for _, ch := range h.listeners {
		targets = append(targets, ch)
	}
	h.mu.RUnlock()
	for _, ch := range targets {
		select {
		case ch <- ev:
		default:
			// full buffer, listener misses this one
		}
	}
}

// MarshalJSON encodes an event for the WebSocket and SSE transports.
func MarshalJSON(ev core.Event) []byte {
	b, _ := json.Marshal(ev)
	return b
}
