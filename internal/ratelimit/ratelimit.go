package ratelimit

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Tier is a named request budget: at most Limit requests in any Period.
type Tier struct {
	Name   string
	Limit  int
	Period time.Duration
}

var (
	Standard = Tier{Name: "standard", Limit: 20, Period: time.Minute}
	Report   = Tier{Name: "report", Limit: 5, Period: 5 * time.Minute}
	Read     = Tier{Name: "read", Limit: 50, Period: time.Minute}
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter decides whether key may spend one request from tier.
type Limiter interface {
	Allow(ctx context.Context, tier Tier, key string) (Decision, error)
}

// RedisLimiter shares budgets across instances. Each tier and key is a
// sorted set of request timestamps covering the last Period.
type RedisLimiter struct {
	rdb redis.UniversalClient
	now func() time.Time
}

func NewRedisLimiter(rdb redis.UniversalClient) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, now: time.Now}
}

func (l *RedisLimiter) Allow(ctx context.Context, tier Tier, key string) (Decision, error) {
	now := l.now()
	nowMs := now.UnixMilli()
	windowStart := nowMs - tier.Period.Milliseconds()
	k := "rl:" + tier.Name + ":" + key
	member := strconv.FormatInt(nowMs, 10) + ":" + uuid.NewString()

	// Record first, then count, so concurrent instances see each other.
	pipe := l.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, k, "-inf", strconv.FormatInt(windowStart, 10))
	pipe.ZAdd(ctx, k, redis.Z{Score: float64(nowMs), Member: member})
	count := pipe.ZCard(ctx, k)
	pipe.PExpire(ctx, k, tier.Period)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, err
	}

	n := int(count.Val())
	if n <= tier.Limit {
		return Decision{Allowed: true, Remaining: tier.Limit - n}, nil
	}

	// Denied requests do not spend budget.
	if err := l.rdb.ZRem(ctx, k, member).Err(); err != nil {
		return Decision{}, err
	}
	oldest, err := l.rdb.ZRangeWithScores(ctx, k, 0, 0).Result()
	if err != nil {
		return Decision{}, err
	}
	retry := tier.Period
	if len(oldest) == 1 {
		retry = time.Duration(int64(oldest[0].Score)+tier.Period.Milliseconds()-nowMs) * time.Millisecond
	}
	return Decision{Allowed: false, RetryAfter: retry}, nil
}

// MemoryLimiter keeps, per tier and key, the times of the last Limit
// accepted requests.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

type window struct {
	hits     []time.Time // ring of accepted request times
	next     int
	lastSeen time.Time
}

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, tier Tier, key string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	id := tier.Name + ":" + key
	w, ok := l.windows[id]
	if !ok {
		w = &window{hits: make([]time.Time, 0, tier.Limit)}
		l.windows[id] = w
	}
	w.lastSeen = now

	if len(w.hits) < tier.Limit {
		w.hits = append(w.hits, now)
		return Decision{Allowed: true, Remaining: tier.Limit - l.inWindow(w, now, tier.Period)}, nil
	}

	// The ring is full, so w.hits[w.next] is the oldest accepted request.
	oldest := w.hits[w.next]
	if wait := oldest.Add(tier.Period).Sub(now); wait > 0 {
		return Decision{Allowed: false, RetryAfter: wait}, nil
	}
	w.hits[w.next] = now
	w.next = (w.next + 1) % tier.Limit
	return Decision{Allowed: true, Remaining: tier.Limit - l.inWindow(w, now, tier.Period)}, nil
}

func (l *MemoryLimiter) inWindow(w *window, now time.Time, period time.Duration) int {
	n := 0
	for _, t := range w.hits {
		if now.Sub(t) < period {
			n++
		}
	}
	return n
}

// Sweep drops windows idle for longer than maxIdle.
func (l *MemoryLimiter) Sweep(maxIdle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-maxIdle)
	for id, w := range l.windows {
		if w.lastSeen.Before(cutoff) {
			delete(l.windows, id)
		}
	}
}
