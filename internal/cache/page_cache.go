package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Page is a rendered public response.
type Page struct {
	ContentType string `json:"contentType"`
	Body        []byte `json:"body"`
}

// PageCache stores rendered pages by request key (path plus query) and
// indexes them by path so every variant of a path can be dropped at once.
type PageCache interface {
	Get(ctx context.Context, key string) (*Page, bool, error)
	Set(ctx context.Context, path, key string, page *Page, ttl time.Duration) error
	Invalidate(ctx context.Context, paths ...string) error
}

const (
	pageKeyPrefix  = "page:"
	indexKeyPrefix = "pageidx:"
)

type RedisPageCache struct {
	rdb redis.UniversalClient
}

func NewRedisPageCache(rdb redis.UniversalClient) *RedisPageCache {
	return &RedisPageCache{rdb: rdb}
}

func (c *RedisPageCache) Get(ctx context.Context, key string) (*Page, bool, error) {
	raw, err := c.rdb.Get(ctx, pageKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var p Page
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, false, err
	}
	return &p, true, nil
}

func (c *RedisPageCache) Set(ctx context.Context, path, key string, page *Page, ttl time.Duration) error {
	raw, err := json.Marshal(page)
	if err != nil {
		return err
	}
	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, pageKeyPrefix+key, raw, ttl)
	pipe.SAdd(ctx, indexKeyPrefix+path, key)
	pipe.Expire(ctx, indexKeyPrefix+path, 2*ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (c *RedisPageCache) Invalidate(ctx context.Context, paths ...string) error {
	for _, path := range paths {
		idx := indexKeyPrefix + path
		keys, err := c.rdb.SMembers(ctx, idx).Result()
		if err != nil {
			return err
		}
		toDelete := make([]string, 0, len(keys)+1)
		for _, k := range keys {
			toDelete = append(toDelete, pageKeyPrefix+k)
		}
		toDelete = append(toDelete, idx)
		if err := c.rdb.Del(ctx, toDelete...).Err(); err != nil {
			return err
		}
	}
	return nil
}

type memoryPage struct {
	page    *Page
	path    string
	expires time.Time
}

// DefaultMemoryEntries caps a MemoryPageCache.
const DefaultMemoryEntries = 5000

// MemoryPageCache is a single-process PageCache holding at most
// maxEntries pages. When full, expired pages go first, then the page
// closest to expiry.
type MemoryPageCache struct {
	mu         sync.Mutex
	pages      map[string]memoryPage
	index      map[string]map[string]struct{}
	maxEntries int
	now        func() time.Time
}

func NewMemoryPageCache() *MemoryPageCache {
	return &MemoryPageCache{
		pages:      make(map[string]memoryPage),
		index:      make(map[string]map[string]struct{}),
		maxEntries: DefaultMemoryEntries,
		now:        time.Now,
	}
}

func (c *MemoryPageCache) Get(_ context.Context, key string) (*Page, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pages[key]
	if !ok {
		return nil, false, nil
	}
	if c.now().After(p.expires) {
		c.remove(key)
		return nil, false, nil
	}
	return p.page, true, nil
}

func (c *MemoryPageCache) Set(_ context.Context, path, key string, page *Page, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, ok := c.pages[key]; ok {
		c.remove(key)
	} else if len(c.pages) >= c.maxEntries {
		c.sweep(now)
		if len(c.pages) >= c.maxEntries {
			c.evictSoonest()
		}
	}

	c.pages[key] = memoryPage{page: page, path: path, expires: now.Add(ttl)}
	if c.index[path] == nil {
		c.index[path] = make(map[string]struct{})
	}
	c.index[path][key] = struct{}{}
	return nil
}

func (c *MemoryPageCache) Invalidate(_ context.Context, paths ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, path := range paths {
		for key := range c.index[path] {
			delete(c.pages, key)
		}
		delete(c.index, path)
	}
	return nil
}

// Sweep drops expired pages and returns how many were removed.
func (c *MemoryPageCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweep(c.now())
}

func (c *MemoryPageCache) sweep(now time.Time) int {
	n := 0
	for key, p := range c.pages {
		if now.After(p.expires) {
			c.remove(key)
			n++
		}
	}
	return n
}

func (c *MemoryPageCache) evictSoonest() {
	var (
		victim string
		first  time.Time
	)
	for key, p := range c.pages {
		if victim == "" || p.expires.Before(first) {
			victim, first = key, p.expires
		}
	}
	if victim != "" {
		c.remove(victim)
	}
}

// remove deletes key and its index entry. Callers hold mu.
func (c *MemoryPageCache) remove(key string) {
	p, ok := c.pages[key]
	if !ok {
		return
	}
	delete(c.pages, key)
	if keys := c.index[p.path]; keys != nil {
		delete(keys, key)
		if len(keys) == 0 {
			delete(c.index, p.path)
		}
	}
}
