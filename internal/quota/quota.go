package quota

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "studio:quota:"

// Memory counts generations per subject inside one process.
type Memory struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	counts *cache.Cache
}

func NewMemory(max int, window time.Duration) *Memory {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &Memory{
		max:    max,
		window: window,
		counts: cache.New(window, window),
	}
}

func (m *Memory) Allow(ctx context.Context, subject string) (bool, error) {
	if m.max <= 0 {
		return true, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	key := keyPrefix + subject
	_ = m.counts.Add(key, 0, m.window)
	n, err := m.counts.IncrementInt(key, 1)
	if err != nil {
		return false, fmt.Errorf("increment quota: %w", err)
	}
	return n <= m.max, nil
}

type RedisOptions struct {
	Addr     string
	Username string
	Password string
	DB       int
	UseTLS   bool
	Max      int
	Window   time.Duration
}

// Redis shares the generation count across processes. The window starts
// with a subject's first generation.
type Redis struct {
	rdb    *redis.Client
	max    int
	window time.Duration
}

func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	ro := &redis.Options{
		Addr:     opts.Addr,
		Username: opts.Username,
		Password: opts.Password,
		DB:       opts.DB,
	}
	if opts.UseTLS {
		ro.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	rdb := redis.NewClient(ro)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	window := opts.Window
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &Redis{rdb: rdb, max: opts.Max, window: window}, nil
}

func (r *Redis) Allow(ctx context.Context, subject string) (bool, error) {
	if r.max <= 0 {
		return true, nil
	}

	key := keyPrefix + subject
	n, err := r.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("incr %s: %w", key, err)
	}
	if n == 1 {
		if err := r.rdb.Expire(ctx, key, r.window).Err(); err != nil {
			return false, fmt.Errorf("expire %s: %w", key, err)
		}
	}
	return n <= int64(r.max), nil
}

func (r *Redis) Close() error {
	return r.rdb.Close()
}
