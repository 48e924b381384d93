package sessioncache

import (
	"log/slog"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/kirillkom/culture-relevance/internal/core/domain"
)

type Config struct {
	TTL             time.Duration
	CleanupInterval time.Duration
	MaxEntries      int
	Clock           func() time.Time
}

func DefaultConfig() Config {
	return Config{
		TTL:             2 * time.Hour,
		CleanupInterval: 10 * time.Minute,
		MaxEntries:      512,
	}
}

func (c Config) normalize() Config {
	out := c
	def := DefaultConfig()
	if out.TTL <= 0 {
		out.TTL = def.TTL
	}
	if out.CleanupInterval <= 0 {
		out.CleanupInterval = def.CleanupInterval
	}
	if out.MaxEntries <= 0 {
		out.MaxEntries = def.MaxEntries
	}
	if out.Clock == nil {
		out.Clock = time.Now
	}
	return out
}

type record struct {
	entry    domain.CacheEntry
	storedAt time.Time
}

// Cache keeps session upstream artifacts for at most TTL and at most
// MaxEntries sessions; the oldest session is evicted first.
type Cache struct {
	cfg   Config
	items *cache.Cache

	// serializes the count-then-evict step of Put
	mu sync.Mutex
}

func New(cfg Config) *Cache {
	cfg = cfg.normalize()
	return &Cache{
		cfg:   cfg,
		items: cache.New(cfg.TTL, cfg.CleanupInterval),
	}
}

func (c *Cache) Get(sessionID string) (domain.CacheEntry, bool) {
	x, found := c.items.Get(sessionID)
	if !found {
		return domain.CacheEntry{}, false
	}
	rec, ok := x.(record)
	if !ok {
		return domain.CacheEntry{}, false
	}
	if c.cfg.Clock().Sub(rec.storedAt) > c.cfg.TTL {
		c.items.Delete(sessionID)
		return domain.CacheEntry{}, false
	}
	return rec.entry, true
}

func (c *Cache) Put(entry domain.CacheEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := entry.Session.ID
	if _, exists := c.items.Get(id); !exists {
		for c.items.ItemCount() >= c.cfg.MaxEntries {
			if !c.evictOldest() {
				break
			}
		}
	}
	c.items.Set(id, record{entry: entry, storedAt: c.cfg.Clock()}, cache.DefaultExpiration)
}

func (c *Cache) Delete(sessionID string) {
	c.items.Delete(sessionID)
}

func (c *Cache) Len() int {
	return c.items.ItemCount()
}

func (c *Cache) evictOldest() bool {
	var (
		oldestID string
		oldestAt time.Time
	)
	for id, item := range c.items.Items() {
		rec, ok := item.Object.(record)
		if !ok {
			continue
		}
		if oldestID == "" || rec.storedAt.Before(oldestAt) {
			oldestID = id
			oldestAt = rec.storedAt
		}
	}
	if oldestID == "" {
		return false
	}
	c.items.Delete(oldestID)
	slog.Info("session_evicted", "session_id", oldestID, "stored_at", oldestAt)
	return true
}
