package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratgov/researchgraph/core"
)

// recordingLogger captures warn calls so tests can assert on how lookup
// failures are reported.
type recordingLogger struct {
	mu    sync.Mutex
	warns [][]any
}

func (l *recordingLogger) Debug(msg string, args ...any) {}
func (l *recordingLogger) Info(msg string, args ...any)  {}
func (l *recordingLogger) Error(msg string, args ...any) {}

func (l *recordingLogger) Warn(msg string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, args)
}

func (l *recordingLogger) warnArgs() []any {
	l.mu.Lock()
	defer l.mu.Unlock()
	var flat []any
	for _, w := range l.warns {
		flat = append(flat, w...)
	}
	return flat
}

func newTestCache(t *testing.T, cfg Config) *SemanticCache {
	t.Helper()
	c, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestKey_Deterministic(t *testing.T) {
	f1 := core.SearchFilter{Domains: []string{"europa.eu", "oecd.org"}}
	f2 := core.SearchFilter{Domains: []string{"OECD.org", "europa.eu"}}

	k1 := Key("Digital   Transformation trends", f1)
	k2 := Key("digital transformation trends", f2)

	assert.Equal(t, k1, k2, "equivalent queries with reordered filters must collapse to one key")
	assert.NotEqual(t, k1, Key("digital transformation trends", core.SearchFilter{}),
		"different filter sets must produce different keys")
	assert.NotEqual(t, k1, Key("industrial policy", f1))
}

func TestLookup_MissOnUnknownKey(t *testing.T) {
	c := newTestCache(t, Config{})

	entry, ok := c.Lookup("nope")
	assert.False(t, ok)
	assert.Nil(t, entry)
}

func TestStoreThenLookup_Hit(t *testing.T) {
	c := newTestCache(t, Config{})

	stored := c.Store("k1", []byte(`{"results":[]}`), "summary text")
	entry, ok := c.Lookup("k1")

	require.True(t, ok)
	assert.Equal(t, stored.Payload, entry.Payload)
	assert.Equal(t, "summary text", entry.Summary)
}

func TestLookup_CorruptedEntryIsMiss(t *testing.T) {
	logger := &recordingLogger{}
	c := newTestCache(t, Config{Logger: logger})

	entry := c.Store("k1", []byte("original"), "")
	// Simulate a corrupted stored value: payload no longer matches the hash.
	entry.Payload = []byte("tampered")

	got, ok := c.Lookup("k1")
	assert.False(t, ok, "hash mismatch must surface as a miss, never stale data")
	assert.Nil(t, got)

	// The corrupted entry was invalidated, not left behind, and the miss
	// was reported as corruption rather than absence.
	_, ok = c.Lookup("k1")
	assert.False(t, ok)
	assert.Contains(t, logger.warnArgs(), core.ErrCacheCorrupted)
}

func TestLookup_ExpiredEntryIsMiss(t *testing.T) {
	c := newTestCache(t, Config{TTL: 20 * time.Millisecond})

	c.Store("k1", []byte("payload"), "")
	time.Sleep(50 * time.Millisecond)

	_, ok := c.Lookup("k1")
	assert.False(t, ok)
}

func TestGetOrFetch_SingleFlight(t *testing.T) {
	c := newTestCache(t, Config{})

	var calls atomic.Int32
	fetch := func(ctx context.Context) ([]byte, string, error) {
		calls.Add(1)
		time.Sleep(30 * time.Millisecond) // widen the race window
		return []byte("result"), "sum", nil
	}

	const waiters = 8
	var wg sync.WaitGroup
	entries := make([]*Entry, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			entry, err := c.GetOrFetch(context.Background(), "shared", fetch)
			require.NoError(t, err)
			entries[i] = entry
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load(), "concurrent misses on one key must issue exactly one fetch")
	for _, e := range entries {
		assert.Equal(t, []byte("result"), e.Payload)
	}
}

func TestGetOrFetch_ErrorNotCached(t *testing.T) {
	c := newTestCache(t, Config{})

	boom := errors.New("upstream down")
	_, err := c.GetOrFetch(context.Background(), "k1", func(ctx context.Context) ([]byte, string, error) {
		return nil, "", boom
	})
	require.ErrorIs(t, err, boom)

	// The failure was not memoized; the next call fetches again.
	entry, err := c.GetOrFetch(context.Background(), "k1", func(ctx context.Context) ([]byte, string, error) {
		return []byte("ok"), "", nil
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), entry.Payload)
}

func TestGetOrFetch_HitSkipsFetch(t *testing.T) {
	c := newTestCache(t, Config{})
	c.Store("k1", []byte("cached"), "")

	entry, err := c.GetOrFetch(context.Background(), "k1", func(ctx context.Context) ([]byte, string, error) {
		t.Fatal("fetch must not run on a cache hit")
		return nil, "", nil
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("cached"), entry.Payload)
}

func TestInvalidate(t *testing.T) {
	c := newTestCache(t, Config{})
	c.Store("k1", []byte("payload"), "")

	c.Invalidate("k1")

	_, ok := c.Lookup("k1")
	assert.False(t, ok)
}

func TestDistillKey_SensitiveToContentAndQuery(t *testing.T) {
	k := DistillKey("body text", "what changed")
	assert.Equal(t, k, DistillKey("body text", "What   Changed"))
	assert.NotEqual(t, k, DistillKey("other text", "what changed"))
	assert.NotEqual(t, k, DistillKey("body text", "other query"))
}
