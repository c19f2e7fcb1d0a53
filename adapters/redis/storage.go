package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"scuolakit/core"
	"scuolakit/leaderboard"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection configuration
type Config struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Store implements the engine collaborator interfaces on Redis.
// Data structure:
// - user:{id}           -> hash {xp, level, display_name, updated}
// - user:{id}:grants    -> hash badge id -> earned_at (RFC3339)
// - user:{id}:counters  -> hash requirement type -> count
// - leaderboard:xp      -> sorted set user id scored by xp
// The badge catalog is fixed and injected at construction.
type Store struct {
	client  *redis.Client
	catalog []core.Badge
}

// New creates a Redis-backed store with the provided configuration.
func New(config Config, catalog []core.Badge) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewWithClient(client, catalog), nil
}

// NewWithClient creates a Store using an existing Redis client (useful for testing).
func NewWithClient(client *redis.Client, catalog []core.Badge) *Store {
	return &Store{client: client, catalog: append([]core.Badge(nil), catalog...)}
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

func userKey(user core.UserID) string     { return fmt.Sprintf("user:%s", user) }
func grantsKey(user core.UserID) string   { return fmt.Sprintf("user:%s:grants", user) }
func countersKey(user core.UserID) string { return fmt.Sprintf("user:%s:counters", user) }

const leaderboardKey = "leaderboard:xp"

// addXPScript increments xp and recomputes the level in one atomic step, so
// the two fields can never be observed out of sync and concurrent awards
// never lose an update. The leaderboard score rides along.
var addXPScript = redis.NewScript(`
	if redis.call('EXISTS', KEYS[1]) == 0 then
		return redis.error_reply('user not found')
	end
	local xp = redis.call('HINCRBY', KEYS[1], 'xp', ARGV[1])
	local level = 1
	if xp > 0 then
		level = math.floor(xp / tonumber(ARGV[2])) + 1
	end
	redis.call('HSET', KEYS[1], 'level', level)
	redis.call('ZADD', KEYS[2], xp, ARGV[3])
	return {xp, level}
`)

// PutUser creates or replaces a user record.
func (s *Store) PutUser(ctx context.Context, u core.User) error {
	id, err := core.NormalizeUserID(u.ID)
	if err != nil {
		return err
	}
	u.ID = id
	u.Level = core.LevelFor(u.XP)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, userKey(u.ID),
		"xp", u.XP,
		"level", u.Level,
		"display_name", u.DisplayName,
		"updated", time.Now().UTC().Format(time.RFC3339Nano),
	)
	pipe.ZAdd(ctx, leaderboardKey, redis.Z{Score: float64(u.XP), Member: string(u.ID)})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to put user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, user core.UserID) (core.User, error) {
	fields, err := s.client.HGetAll(ctx, userKey(user)).Result()
	if err != nil {
		return core.User{}, fmt.Errorf("failed to get user: %w", err)
	}
	if len(fields) == 0 {
		return core.User{}, core.ErrUserNotFound
	}
	xp, _ := strconv.ParseInt(fields["xp"], 10, 64)
	level, _ := strconv.ParseInt(fields["level"], 10, 64)
	if level == 0 {
		level = core.LevelFor(xp)
	}
	u := core.User{ID: user, DisplayName: fields["display_name"], XP: xp, Level: level}
	if ts, err := time.Parse(time.RFC3339Nano, fields["updated"]); err == nil {
		u.Updated = ts
	}
	return u, nil
}

func (s *Store) AddXP(ctx context.Context, user core.UserID, delta int64) (int64, int64, error) {
	result, err := addXPScript.Run(ctx, s.client,
		[]string{userKey(user), leaderboardKey},
		delta, core.LevelSize, string(user),
	).Result()
	if err != nil {
		if strings.Contains(err.Error(), "user not found") {
			return 0, 0, core.ErrUserNotFound
		}
		return 0, 0, fmt.Errorf("failed to add xp: %w", err)
	}
	vals, ok := result.([]interface{})
	if !ok || len(vals) != 2 {
		return 0, 0, errors.New("unexpected result type from Redis script")
	}
	xp, _ := vals[0].(int64)
	level, _ := vals[1].(int64)
	return xp, level, nil
}

func (s *Store) ListBadges(_ context.Context) ([]core.Badge, error) {
	return append([]core.Badge(nil), s.catalog...), nil
}

func (s *Store) ListGrants(ctx context.Context, user core.UserID) ([]core.Grant, error) {
	fields, err := s.client.HGetAll(ctx, grantsKey(user)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	grants := make([]core.Grant, 0, len(fields))
	for badge, earned := range fields {
		g := core.Grant{UserID: user, BadgeID: core.BadgeID(badge)}
		if ts, err := time.Parse(time.RFC3339Nano, earned); err == nil {
			g.EarnedAt = ts
		}
		grants = append(grants, g)
	}
	return grants, nil
}

// CreateGrant relies on HSETNX for the one-grant-per-(user,badge) backstop.
func (s *Store) CreateGrant(ctx context.Context, user core.UserID, badge core.BadgeID, earnedAt time.Time) (bool, error) {
	created, err := s.client.HSetNX(ctx, grantsKey(user), string(badge), earnedAt.UTC().Format(time.RFC3339Nano)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to create grant: %w", err)
	}
	return created, nil
}

// IncrCounter feeds a named activity counter; feature handlers call this
// when the backing content row is written.
func (s *Store) IncrCounter(ctx context.Context, user core.UserID, req core.RequirementType, n int64) error {
	if err := s.client.HIncrBy(ctx, countersKey(user), string(req), n).Err(); err != nil {
		return fmt.Errorf("failed to incr counter: %w", err)
	}
	return nil
}

func (s *Store) CountFor(ctx context.Context, user core.UserID, req core.RequirementType) (int64, error) {
	if req == core.ReqXPPoints {
		val, err := s.client.HGet(ctx, userKey(user), "xp").Result()
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		if err != nil {
			return 0, fmt.Errorf("failed to read xp counter: %w", err)
		}
		return strconv.ParseInt(val, 10, 64)
	}
	val, err := s.client.HGet(ctx, countersKey(user), string(req)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read counter: %w", err)
	}
	return strconv.ParseInt(val, 10, 64)
}

// TopXP returns the highest-XP users from the sorted-set leaderboard.
func (s *Store) TopXP(ctx context.Context, n int) ([]leaderboard.Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	zs, err := s.client.ZRevRangeWithScores(ctx, leaderboardKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read leaderboard: %w", err)
	}
	entries := make([]leaderboard.Entry, 0, len(zs))
	for _, z := range zs {
		member, _ := z.Member.(string)
		xp := int64(z.Score)
		entries = append(entries, leaderboard.Entry{User: core.UserID(member), XP: xp, Level: core.LevelFor(xp)})
	}
	return entries, nil
}
