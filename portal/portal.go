// Package portal assembles the gamification engine with its optional
// collaborators (realtime hub, leaderboard, dashboard stats) behind a single
// builder, so embedding the engine in a school portal takes one call.
package portal

import (
	"context"

	mem "scuolakit/adapters/memory"
	"scuolakit/core"
	"scuolakit/engine"
	"scuolakit/leaderboard"
	"scuolakit/realtime"
	"scuolakit/stats"
)

// Option configures the portal service builder.
type Option func(*config)

type config struct {
	storage engine.Storage
	catalog []core.Badge
	mode    engine.DispatchMode
	hub     *realtime.Hub
	board   leaderboard.Board
	metrics *stats.PortalMetrics
}

// WithStorage sets the persistence adapter.
func WithStorage(s engine.Storage) Option { return func(c *config) { c.storage = s } }

// WithCatalog sets the badge catalog used when the builder creates its own
// in-memory storage. Ignored when WithStorage is given.
func WithCatalog(badges []core.Badge) Option { return func(c *config) { c.catalog = badges } }

// WithDispatchMode selects sync or async event dispatch.
func WithDispatchMode(m engine.DispatchMode) Option { return func(c *config) { c.mode = m } }

// WithRealtime wires a realtime hub to receive all engine events.
func WithRealtime(h *realtime.Hub) Option { return func(c *config) { c.hub = h } }

// WithLeaderboard keeps a leaderboard current from XP award events.
func WithLeaderboard(b leaderboard.Board) Option { return func(c *config) { c.board = b } }

// WithStats feeds engine events into dashboard aggregation.
func WithStats(m *stats.PortalMetrics) Option { return func(c *config) { c.metrics = m } }

// New builds a configured engine service. Defaults when options are omitted:
//   - storage: in-memory with the default badge catalog
//   - dispatch: async
func New(opts ...Option) *engine.Service {
	cfg := &config{mode: engine.DispatchAsync}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.storage == nil {
		if cfg.catalog != nil {
			cfg.storage = mem.NewWithCatalog(cfg.catalog)
		} else {
			cfg.storage = mem.New()
		}
	}

	bus := engine.NewEventBus(cfg.mode)
	svc := engine.NewService(cfg.storage, cfg.storage, cfg.storage, cfg.storage, bus)

	if cfg.hub != nil {
		// Bridge all engine events to realtime
		bus.Subscribe(core.EventXPAwarded, func(ctx context.Context, e core.Event) { cfg.hub.Broadcast(ctx, e) })
		bus.Subscribe(core.EventLevelUp, func(ctx context.Context, e core.Event) { cfg.hub.Broadcast(ctx, e) })
		bus.Subscribe(core.EventBadgeEarned, func(ctx context.Context, e core.Event) { cfg.hub.Broadcast(ctx, e) })
	}
	if cfg.board != nil {
		board := cfg.board
		bus.Subscribe(core.EventXPAwarded, func(_ context.Context, e core.Event) { board.Update(e.UserID, e.Total) })
	}
	if cfg.metrics != nil {
		metrics := cfg.metrics
		onEvent := func(_ context.Context, e core.Event) { metrics.OnEvent(e) }
		bus.Subscribe(core.EventXPAwarded, onEvent)
		bus.Subscribe(core.EventLevelUp, onEvent)
		bus.Subscribe(core.EventBadgeEarned, onEvent)
	}

	return svc
}
