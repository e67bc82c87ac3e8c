package utils

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"tg-tires-server/storage"

	"github.com/kataras/iris/v12"
)

// LimitClass is a named fixed-window budget. Identifiers (client IPs) are
// counted per class, so hammering the login endpoint does not consume the
// general API budget and vice versa.
type LimitClass struct {
	Name   string
	Limit  int64
	Window time.Duration
}

var (
	LimitGeneral = LimitClass{Name: "api", Limit: 100, Window: time.Minute}
	LimitLogin   = LimitClass{Name: "login", Limit: 5, Window: 15 * time.Minute}
	LimitInquiry = LimitClass{Name: "inquiry", Limit: 10, Window: time.Minute}
)

// CounterStore increments the fixed-window counter behind a limit key and
// reports the remaining window. Implementations: Redis for deployments,
// in-memory for tests and single-process runs.
type CounterStore interface {
	Incr(key string, window time.Duration) (count int64, remaining time.Duration, err error)
}

type counterEntry struct {
	count     int64
	expiresAt time.Time
}

type MemoryCounterStore struct {
	mu      sync.Mutex
	entries map[string]*counterEntry
	now     func() time.Time
}

func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{
		entries: make(map[string]*counterEntry),
		now:     time.Now,
	}
}

func (s *MemoryCounterStore) Incr(key string, window time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.entries[key]
	if !ok || !e.expiresAt.After(now) {
		e = &counterEntry{expiresAt: now.Add(window)}
		s.entries[key] = e
	}
	e.count++
	return e.count, e.expiresAt.Sub(now), nil
}

// StartSweeper purges expired windows in the background so identifiers that
// stop sending traffic do not pin memory forever.
func (s *MemoryCounterStore) StartSweeper(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}

func (s *MemoryCounterStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for key, e := range s.entries {
		if !e.expiresAt.After(now) {
			delete(s.entries, key)
		}
	}
}

var errRedisUnavailable = errors.New("redis not initialized")

// RedisCounterStore counts with INCR and lets the key expire with the window.
type RedisCounterStore struct{}

func (RedisCounterStore) Incr(key string, window time.Duration) (int64, time.Duration, error) {
	if storage.Redis == nil {
		return 0, 0, errRedisUnavailable
	}
	count, err := storage.Redis.Incr(bgContext, key).Result()
	if err != nil {
		return 0, 0, err
	}
	if count == 1 {
		storage.Redis.Expire(bgContext, key, window)
	}
	ttl, err := storage.Redis.TTL(bgContext, key).Result()
	if err != nil || ttl < 0 {
		ttl = window
	}
	return count, ttl, nil
}

// RateLimit rejects the N+1st request from an identifier inside a window with
// 429 and a Retry-After header. Counter failures fail open: rejecting traffic
// because Redis blinked would be worse than letting a burst through.
func RateLimit(store CounterStore, class LimitClass) iris.Handler {
	return func(ctx iris.Context) {
		key := "rl:" + class.Name + ":" + ClientIP(ctx)
		count, remaining, err := store.Incr(key, class.Window)
		if err != nil {
			ctx.Next()
			return
		}
		if count > class.Limit {
			retryAfter := int(remaining / time.Second)
			if retryAfter < 1 {
				retryAfter = 1
			}
			ctx.Header("Retry-After", strconv.Itoa(retryAfter))
			RecordSecurityEvent(ctx, "rate_limit_exceeded", "MEDIUM",
				"limit class "+class.Name+" exhausted")
			ctx.StopWithJSON(iris.StatusTooManyRequests, iris.Map{
				"error":   "rate_limited",
				"message": "Too many requests. Try again later.",
			})
			return
		}
		ctx.Next()
	}
}
