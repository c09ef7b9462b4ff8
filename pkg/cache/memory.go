package cache

import (
	"context"
	"sync"
	"time"
)

// memoryEntry хранит значение и срок его жизни
type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e *memoryEntry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// MemoryCache - потокобезопасный in-memory кэш с TTL и фоновой очисткой
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry

	maxEntries int
	defaultTTL time.Duration

	hits   int64
	misses int64

	closeOnce sync.Once
	closed    chan struct{}
}

// NewMemoryCache создаёт in-memory кэш и запускает фоновую очистку
func NewMemoryCache(opts *Options) *MemoryCache {
	if opts == nil {
		opts = DefaultOptions()
	}
	c := &MemoryCache{
		entries:    make(map[string]*memoryEntry),
		maxEntries: opts.MaxEntries,
		defaultTTL: opts.DefaultTTL,
		closed:     make(chan struct{}),
	}

	interval := opts.CleanupInterval
	if interval <= 0 {
		interval = time.Minute
	}
	go c.janitor(interval)

	return c
}

// janitor периодически удаляет просроченные записи
func (c *MemoryCache) janitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.closed:
			return
		case now := <-ticker.C:
			c.mu.Lock()
			for key, entry := range c.entries {
				if entry.expired(now) {
					delete(c.entries, key)
				}
			}
			c.mu.Unlock()
		}
	}
}

// Get возвращает значение по ключу
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	if err := c.guard(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok || entry.expired(time.Now()) {
		if ok {
			delete(c.entries, key)
		}
		c.misses++
		return nil, ErrKeyNotFound
	}
	c.hits++

	value := make([]byte, len(entry.value))
	copy(value, entry.value)
	return value, nil
}

// Set сохраняет значение с TTL
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.guard(ctx); err != nil {
		return err
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	c.mu.Lock()
	defer c.mu.Unlock()

	// при переполнении вытесняем запись с ближайшим сроком истечения
	if c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		if _, exists := c.entries[key]; !exists {
			c.evictSoonest()
		}
	}

	c.entries[key] = &memoryEntry{value: stored, expiresAt: time.Now().Add(ttl)}
	return nil
}

// evictSoonest удаляет запись с минимальным сроком жизни; вызывается под mu
func (c *MemoryCache) evictSoonest() {
	var victim string
	var soonest time.Time
	for key, entry := range c.entries {
		if victim == "" || entry.expiresAt.Before(soonest) {
			victim = key
			soonest = entry.expiresAt
		}
	}
	if victim != "" {
		delete(c.entries, victim)
	}
}

// Delete удаляет запись
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	if err := c.guard(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

// Exists проверяет наличие ключа
func (c *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	if err := c.guard(ctx); err != nil {
		return false, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	return ok && !entry.expired(time.Now()), nil
}

// Stats возвращает статистику кэша
func (c *MemoryCache) Stats(ctx context.Context) (*Stats, error) {
	if err := c.guard(ctx); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := &Stats{
		TotalKeys: int64(len(c.entries)),
		Hits:      c.hits,
		Misses:    c.misses,
		Backend:   BackendMemory,
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}
	return stats, nil
}

// Clear удаляет все записи
func (c *MemoryCache) Clear(ctx context.Context) error {
	if err := c.guard(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*memoryEntry)
	return nil
}

// Close останавливает фоновую очистку
func (c *MemoryCache) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// guard проверяет контекст и состояние кэша
func (c *MemoryCache) guard(ctx context.Context) error {
	select {
	case <-c.closed:
		return ErrCacheClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
