package cache

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func exercisePageCache(t *testing.T, c PageCache) {
	t.Helper()
	ctx := context.Background()
	page := &Page{ContentType: "application/json", Body: []byte(`{"success":true}`)}

	if err := c.Set(ctx, "/reports", "/reports?page=1", page, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := c.Set(ctx, "/reports", "/reports?page=2", page, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := c.Set(ctx, "/reports/abc", "/reports/abc", page, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}

	got, ok, err := c.Get(ctx, "/reports?page=2")
	if err != nil || !ok {
		t.Fatalf("expected hit, ok=%v err=%v", ok, err)
	}
	if string(got.Body) != `{"success":true}` || got.ContentType != "application/json" {
		t.Fatalf("unexpected page %+v", got)
	}

	if err := c.Invalidate(ctx, "/reports"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	for _, key := range []string{"/reports?page=1", "/reports?page=2"} {
		if _, ok, _ := c.Get(ctx, key); ok {
			t.Fatalf("%s should be invalidated", key)
		}
	}
	if _, ok, _ := c.Get(ctx, "/reports/abc"); !ok {
		t.Fatalf("other paths must survive")
	}
}

func TestRedisPageCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	exercisePageCache(t, NewRedisPageCache(rdb))

	ctx := context.Background()
	c := NewRedisPageCache(rdb)
	if err := c.Set(ctx, "/", "/", &Page{Body: []byte("x")}, time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}
	mr.FastForward(2 * time.Second)
	if _, ok, _ := c.Get(ctx, "/"); ok {
		t.Fatalf("entry should have expired")
	}
}

func TestMemoryPageCache(t *testing.T) {
	exercisePageCache(t, NewMemoryPageCache())

	c := NewMemoryPageCache()
	now := time.Now()
	c.now = func() time.Time { return now }
	_ = c.Set(context.Background(), "/", "/", &Page{Body: []byte("x")}, time.Second)
	now = now.Add(2 * time.Second)
	if _, ok, _ := c.Get(context.Background(), "/"); ok {
		t.Fatalf("entry should have expired")
	}
}

func TestMemoryPageCacheStaysBounded(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryPageCache()
	c.maxEntries = 100
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	page := &Page{Body: []byte("x")}

	for i := 0; i < 1000; i++ {
		key := "/reports?q=" + strconv.Itoa(i)
		if err := c.Set(ctx, "/reports", key, page, time.Minute); err != nil {
			t.Fatalf("set: %v", err)
		}
		now = now.Add(time.Millisecond)
	}
	if len(c.pages) != 100 || len(c.index["/reports"]) != 100 {
		t.Fatalf("pages=%d index=%d, want 100 each", len(c.pages), len(c.index["/reports"]))
	}
	if _, ok, _ := c.Get(ctx, "/reports?q=0"); ok {
		t.Fatalf("the page closest to expiry should have been evicted")
	}
	if _, ok, _ := c.Get(ctx, "/reports?q=999"); !ok {
		t.Fatalf("the newest page should be kept")
	}

	now = now.Add(24 * time.Hour)
	if n := c.Sweep(); n != 100 {
		t.Fatalf("swept %d pages, want 100", n)
	}
	if len(c.pages) != 0 || len(c.index) != 0 {
		t.Fatalf("pages=%d index=%d after sweep", len(c.pages), len(c.index))
	}
}

func TestMemoryPageCacheSetPrunesExpired(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryPageCache()
	c.maxEntries = 10
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	for i := 0; i < 10; i++ {
		_ = c.Set(ctx, "/reports", "/reports?q="+strconv.Itoa(i), &Page{}, time.Minute)
	}
	now = now.Add(time.Hour)
	_ = c.Set(ctx, "/reports/r-1", "/reports/r-1", &Page{}, time.Minute)

	if len(c.pages) != 1 || len(c.index) != 1 {
		t.Fatalf("pages=%d index=%d, expired pages should be pruned on set", len(c.pages), len(c.index))
	}
}
