package engine

import (
	"context"
	"sync"

	"scuolakit/core"
)

// DispatchMode selects how Publish hands events to subscribers.
type DispatchMode int

const (
	// DispatchSync runs every handler on the publishing goroutine.
	DispatchSync DispatchMode = iota
	// DispatchAsync queues events for a small worker pool.
	DispatchAsync
)

const (
	asyncQueueDepth  = 2048
	asyncWorkerCount = 4
)

// EventBus fans portal events (xp awards, level ups, badge grants) out to
// registered handlers. Safe for concurrent Subscribe and Publish.
type EventBus struct {
	mode   DispatchMode
	mu     sync.RWMutex
	lastID int64
	byType map[core.EventType]map[int64]func(context.Context, core.Event)

	queue     chan core.Event
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewEventBus(mode DispatchMode) *EventBus {
	b := &EventBus{
		mode:   mode,
		byType: make(map[core.EventType]map[int64]func(context.Context, core.Event)),
		queue:  make(chan core.Event, asyncQueueDepth),
		done:   make(chan struct{}),
	}
	if mode == DispatchAsync {
		b.wg.Add(asyncWorkerCount)
		for i := 0; i < asyncWorkerCount; i++ {
			go b.worker()
		}
	}
	return b
}

func (b *EventBus) worker() {
	defer b.wg.Done()
	for {
		select {
		case ev := <-b.queue:
			b.deliver(context.Background(), ev)
		case <-b.done:
			return
		}
	}
}

// Close stops the async workers and waits for them to exit.
func (b *EventBus) Close() {
	b.closeOnce.Do(func() { close(b.done) })
	b.wg.Wait()
}

// Subscribe registers handler for one event type and returns a function
// that removes the registration again.
func (b *EventBus) Subscribe(typ core.EventType, handler func(context.Context, core.Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastID++
	id := b.lastID
	if b.byType[typ] == nil {
		b.byType[typ] = make(map[int64]func(context.Context, core.Event))
	}
	b.byType[typ][id] = handler
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.byType[typ], id)
	}
}

// Publish delivers ev to every handler subscribed to its type. In async
// mode a full queue drops the event rather than blocking the award path.
func (b *EventBus) Publish(ctx context.Context, ev core.Event) {
	if b.mode != DispatchAsync {
		b.deliver(ctx, ev)
		return
	}
	select {
	case b.queue <- ev:
	case <-b.done:
	default:
	}
}

// deliver snapshots the handler list so callbacks run without the lock held.
func (b *EventBus) deliver(ctx context.Context, ev core.Event) {
	b.mu.RLock()
	handlers := make([]func(context.Context, core.Event), 0, len(b.byType[ev.Type]))
	for _, h := range b.byType[ev.Type] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()
	for _, h := range handlers {
		h(ctx, ev)
	}
}
