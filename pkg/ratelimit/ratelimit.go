package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"aura-payments/pkg/config"
	"aura-payments/pkg/rediskey"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("ratelimit",
	fx.Provide(NewRedis),
)

// Result is the outcome of one Allow call.
type Result struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
	Limit     int
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

const (
	defaultLimit  = 60
	defaultWindow = time.Minute
)

// fixedWindow counts hits per key and expires the counter with the window.
var fixedWindow = goredis.NewScript(`
	local key = KEYS[1]
	local limit = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])

	local current = tonumber(redis.call('GET', key) or '0')
	local ttl = redis.call('TTL', key)
	if ttl < 0 then
		ttl = window
	end

	if current < limit then
		current = redis.call('INCR', key)
		if current == 1 then
			redis.call('EXPIRE', key, window)
		end
		return {1, limit - current, ttl}
	end
	return {0, 0, ttl}
`)

type redisLimiter struct {
	client *goredis.Client
	limit  int
	window time.Duration
}

type Params struct {
	fx.In
	Config *config.Config
	Redis  *goredis.Client
}

func NewRedis(p Params) Limiter {
	limit, window := p.Config.RateLimit.Limit, p.Config.RateLimit.Window
	if limit <= 0 {
		limit = defaultLimit
	}
	if window <= 0 {
		window = defaultWindow
	}
	return &redisLimiter{client: p.Redis, limit: limit, window: window}
}

func (r *redisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	res, err := fixedWindow.Run(ctx, r.client, []string{rediskey.BuildRateLimitKey(key)}, r.limit, int(r.window.Seconds())).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("rate limit check failed: %w", err)
	}
	if len(res) < 3 {
		return Result{}, fmt.Errorf("unexpected rate limit result: %v", res)
	}

	return Result{
		Allowed:   res[0] == 1,
		Remaining: int(res[1]),
		ResetIn:   time.Duration(res[2]) * time.Second,
		Limit:     r.limit,
	}, nil
}

type window struct {
	count int
	reset time.Time
}

// Memory is a process-local fixed window limiter.
type Memory struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	now     func() time.Time
	windows map[string]*window
}

func NewMemory(limit int, w time.Duration) *Memory {
	return &Memory{
		limit:   limit,
		window:  w,
		now:     time.Now,
		windows: make(map[string]*window),
	}
}

func (m *Memory) Allow(_ context.Context, key string) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	w, ok := m.windows[key]
	if !ok || !now.Before(w.reset) {
		w = &window{reset: now.Add(m.window)}
		m.windows[key] = w
	}

	res := Result{Limit: m.limit, ResetIn: w.reset.Sub(now)}
	if w.count >= m.limit {
		return res, nil
	}
	w.count++
	res.Allowed = true
	res.Remaining = m.limit - w.count
	return res, nil
}
