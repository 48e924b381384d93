package sessioncache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/culture-relevance/internal/core/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func entry(id string) domain.CacheEntry {
	return domain.CacheEntry{Session: domain.Session{ID: id, Fingerprint: "fp-" + id}}
}

func TestGetReturnsStoredEntry(t *testing.T) {
	c := New(Config{TTL: time.Hour, MaxEntries: 4})
	c.Put(entry("s1"))

	got, ok := c.Get("s1")
	if !ok {
		t.Fatalf("expected hit")
	}
	if got.Session.Fingerprint != "fp-s1" {
		t.Fatalf("unexpected entry: %+v", got)
	}
	if _, ok := c.Get("missing"); ok {
		t.Fatalf("expected miss for unknown session")
	}
}

func TestGetExpiresEntryByInjectedClock(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New(Config{TTL: 30 * time.Minute, MaxEntries: 4, Clock: clock.Now})
	c.Put(entry("s1"))

	clock.Advance(29 * time.Minute)
	if _, ok := c.Get("s1"); !ok {
		t.Fatalf("expected hit before ttl")
	}

	clock.Advance(2 * time.Minute)
	if _, ok := c.Get("s1"); ok {
		t.Fatalf("expected miss after ttl")
	}
	if c.Len() != 0 {
		t.Fatalf("expected expired entry to be removed, len=%d", c.Len())
	}
}

func TestPutEvictsOldestWhenFull(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := New(Config{TTL: time.Hour, MaxEntries: 2, Clock: clock.Now})

	c.Put(entry("s1"))
	clock.Advance(time.Second)
	c.Put(entry("s2"))
	clock.Advance(time.Second)
	c.Put(entry("s3"))

	if c.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.Len())
	}
	if _, ok := c.Get("s1"); ok {
		t.Fatalf("expected oldest session to be evicted")
	}
	for _, id := range []string{"s2", "s3"} {
		if _, ok := c.Get(id); !ok {
			t.Fatalf("expected %s to remain", id)
		}
	}
}

func TestPutReplacingExistingSessionDoesNotEvict(t *testing.T) {
	c := New(Config{TTL: time.Hour, MaxEntries: 2})
	c.Put(entry("s1"))
	c.Put(entry("s2"))
	c.Put(entry("s2"))

	if _, ok := c.Get("s1"); !ok {
		t.Fatalf("expected s1 to remain after re-put of s2")
	}
}

func TestConcurrentPutsUnderDistinctKeys(t *testing.T) {
	c := New(Config{TTL: time.Hour, MaxEntries: 1000})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Put(entry(fmt.Sprintf("s%d", i)))
		}(i)
	}
	wg.Wait()

	if c.Len() != 50 {
		t.Fatalf("expected 50 entries, got %d", c.Len())
	}
	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("s%d", i)
		got, ok := c.Get(id)
		if !ok || got.Session.ID != id {
			t.Fatalf("expected entry %s intact, got %+v ok=%v", id, got, ok)
		}
	}
}
