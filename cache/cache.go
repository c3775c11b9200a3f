// Package cache implements the semantic cache: a content-addressable store
// of past retrieval and distillation results keyed by normalized query.
// Backed by ristretto for size-bounded, TTL-aware eviction, it guarantees at
// most one in-flight external fetch per key (single-flight) and validates
// entries with a content hash on every read.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/dgraph-io/ristretto"
	"golang.org/x/sync/singleflight"

	"github.com/stratgov/researchgraph/core"
	"github.com/stratgov/researchgraph/logging"
)

// Config tunes cache capacity and freshness. All bounds are finite; the zero
// value is replaced by defaults at construction time.
type Config struct {
	// TTL is the lifetime of an entry. Expiry is enforced lazily on lookup
	// by the backing store. Default 24h.
	TTL time.Duration

	// MaxEntries bounds the number of live entries; beyond it the backing
	// store evicts by recency/frequency. Default 4096.
	MaxEntries int64

	// Logger receives lookup diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{TTL: 24 * time.Hour, MaxEntries: 4096}
}

// Entry is a cached result: the raw payload of the external call plus the
// distilled summary derived from it. Entries are immutable once stored.
type Entry struct {
	Key       string    `json:"key"`
	Payload   []byte    `json:"payload"`
	Summary   string    `json:"summary,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	// hash guards against corruption of the stored value, not tampering.
	hash string
}

func entryHash(payload []byte, summary string) string {
	h := sha256.New()
	h.Write(payload)
	h.Write([]byte{0})
	h.Write([]byte(summary))
	return hex.EncodeToString(h.Sum(nil))
}

// SemanticCache coalesces identical external calls and remembers their
// results. Safe for concurrent use; reads and writes for the same key are
// linearizable through the single-flight group.
type SemanticCache struct {
	cfg    Config
	store  *ristretto.Cache
	group  singleflight.Group
	logger logging.Logger
}

// New creates a semantic cache. The only error source is an invalid
// ristretto configuration, which the defaults preclude.
func New(cfg Config) (*SemanticCache, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultConfig().MaxEntries
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NoOpLogger{}
	}

	store, err := ristretto.NewCache(&ristretto.Config{
		// Ristretto guidance: counters at 10x expected live entries.
		NumCounters: cfg.MaxEntries * 10,
		MaxCost:     cfg.MaxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}

	return &SemanticCache{cfg: cfg, store: store, logger: cfg.Logger}, nil
}

// Lookup returns the entry for key, or (nil, false) on a miss. An expired
// entry is a miss. An entry whose content hash no longer matches is treated
// as a miss and invalidated, never surfaced.
func (c *SemanticCache) Lookup(key string) (*Entry, bool) {
	v, ok := c.store.Get(key)
	if !ok {
		c.logger.Debug("cache miss", "key", key)
		return nil, false
	}
	entry, ok := v.(*Entry)
	if !ok {
		c.store.Del(key)
		return nil, false
	}
	if entryHash(entry.Payload, entry.Summary) != entry.hash {
		c.logger.Warn("cache entry failed content hash validation, treating as miss",
			"key", key, "error", core.ErrCacheCorrupted)
		c.store.Del(key)
		return nil, false
	}
	c.logger.Debug("cache hit", "key", key)
	return entry, true
}

// Store inserts an entry under key, computing its content hash. Storing the
// same key twice keeps the latest value (at most one entry per key). The
// write is flushed before returning so an immediate Lookup observes it.
func (c *SemanticCache) Store(key string, payload []byte, summary string) *Entry {
	entry := &Entry{
		Key:       key,
		Payload:   payload,
		Summary:   summary,
		CreatedAt: time.Now().UTC(),
		hash:      entryHash(payload, summary),
	}
	c.store.SetWithTTL(key, entry, 1, c.cfg.TTL)
	c.store.Wait()
	return entry
}

// Invalidate removes the entry for key, if present.
func (c *SemanticCache) Invalidate(key string) {
	c.store.Del(key)
}

// GetOrFetch returns the cached entry for key or, on a miss, runs fetch
// exactly once regardless of how many goroutines ask concurrently; the
// others block behind the first call and share its result. A fetch error is
// returned to every waiter and nothing is cached.
func (c *SemanticCache) GetOrFetch(ctx context.Context, key string, fetch func(ctx context.Context) ([]byte, string, error)) (*Entry, error) {
	if entry, ok := c.Lookup(key); ok {
		return entry, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		// Double-check under the flight: a concurrent caller may have
		// populated the entry between our miss and acquiring the flight.
		if entry, ok := c.Lookup(key); ok {
			return entry, nil
		}
		payload, summary, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		return c.Store(key, payload, summary), nil
	})

	select {
	case <-ctx.Done():
		return nil, core.Transient("cache.fetch", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Entry), nil
	}
}

// Close releases the backing store's resources.
func (c *SemanticCache) Close() {
	c.store.Close()
}
