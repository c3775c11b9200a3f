package distill

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratgov/researchgraph/cache"
	"github.com/stratgov/researchgraph/core"
	"github.com/stratgov/researchgraph/resilience"
)

// stubGenerate is a capability returning canned findings keyed by a document
// marker found in the prompt.
type stubGenerate struct {
	mu        sync.Mutex
	responses map[string]string // substring of prompt -> findings
	errFor    map[string]error
	calls     atomic.Int32
	inFlight  atomic.Int32
	maxSeen   atomic.Int32
	delay     time.Duration
}

func newStubGenerate() *stubGenerate {
	return &stubGenerate{
		responses: make(map[string]string),
		errFor:    make(map[string]error),
	}
}

func (s *stubGenerate) Name() string { return core.CapabilityGenerate }

func (s *stubGenerate) Call(ctx context.Context, params map[string]any) (any, error) {
	s.calls.Add(1)
	cur := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		prev := s.maxSeen.Load()
		if cur <= prev || s.maxSeen.CompareAndSwap(prev, cur) {
			break
		}
	}
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.delay):
		}
	}

	prompt, _ := params["prompt"].(string)
	s.mu.Lock()
	defer s.mu.Unlock()
	for marker, err := range s.errFor {
		if strings.Contains(prompt, marker) {
			return nil, err
		}
	}
	for marker, resp := range s.responses {
		if strings.Contains(prompt, marker) {
			return resp, nil
		}
	}
	return "generic findings", nil
}

func fastInvoker() *resilience.Invoker {
	return resilience.NewInvoker(resilience.Config{
		InitialInterval:  time.Millisecond,
		BreakerThreshold: 100,
	})
}

func doc(id, content string) core.Document {
	return core.Document{ID: id, Title: "title " + id, URL: "https://example.org/" + id, Content: content}
}

func TestDistill_OneInsightPerDocumentInOrder(t *testing.T) {
	gen := newStubGenerate()
	gen.responses["doc-a"] = "findings for a"
	gen.responses["doc-b"] = "findings for b"
	d := New(gen, Config{Invoker: fastInvoker()})

	insights, err := d.Distill(context.Background(), "q", []core.Document{
		doc("a", "doc-a body"), doc("b", "doc-b body"),
	})
	require.NoError(t, err)
	require.Len(t, insights, 2)
	assert.Equal(t, "a", insights[0].DocumentID)
	assert.Equal(t, "findings for a", insights[0].Findings)
	assert.Equal(t, "b", insights[1].DocumentID)
	assert.Positive(t, insights[0].Tokens)
}

func TestDistill_EmptyInput(t *testing.T) {
	d := New(newStubGenerate(), Config{Invoker: fastInvoker()})
	insights, err := d.Distill(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Empty(t, insights)
}

func TestDistill_DropsIrrelevantDocuments(t *testing.T) {
	gen := newStubGenerate()
	gen.responses["doc-a"] = "real findings"
	gen.responses["doc-b"] = NoRelevantInfo
	d := New(gen, Config{Invoker: fastInvoker()})

	insights, err := d.Distill(context.Background(), "q", []core.Document{
		doc("a", "doc-a body"), doc("b", "doc-b body"),
	})
	require.NoError(t, err)
	require.Len(t, insights, 1)
	assert.Equal(t, "a", insights[0].DocumentID)
}

func TestDistill_PartialFailureDropsDocOnly(t *testing.T) {
	gen := newStubGenerate()
	gen.responses["doc-a"] = "kept findings"
	gen.errFor["doc-b"] = core.Fatal("generate", errors.New("boom"))
	d := New(gen, Config{Invoker: fastInvoker()})

	insights, err := d.Distill(context.Background(), "q", []core.Document{
		doc("a", "doc-a body"), doc("b", "doc-b body"),
	})
	require.NoError(t, err, "one failed document must not fail the batch")
	require.Len(t, insights, 1)
	assert.Equal(t, "a", insights[0].DocumentID)
}

func TestDistill_BoundsConcurrency(t *testing.T) {
	gen := newStubGenerate()
	gen.delay = 20 * time.Millisecond
	d := New(gen, Config{Concurrency: 2, Invoker: fastInvoker()})

	docs := make([]core.Document, 8)
	for i := range docs {
		docs[i] = doc(string(rune('a'+i)), "body")
	}
	_, err := d.Distill(context.Background(), "q", docs)
	require.NoError(t, err)
	assert.LessOrEqual(t, gen.maxSeen.Load(), int32(2), "worker pool must not exceed its bound")
}

func TestDistill_EnforcesTokenBudget(t *testing.T) {
	long := strings.Repeat("word ", 4000)
	gen := newStubGenerate()
	gen.responses["doc-a"] = strings.Repeat("finding ", 2000)
	d := New(gen, Config{Invoker: fastInvoker()})

	insights, err := d.Distill(context.Background(), "q", []core.Document{doc("a", "doc-a "+long)})
	require.NoError(t, err)
	require.Len(t, insights, 1)

	sourceTokens := len("doc-a "+long) / 4
	budget := int(float64(sourceTokens) * DefaultBudgetRatio)
	assert.LessOrEqual(t, insights[0].Tokens, budget)
}

func TestDistill_CachesByContentAndQuery(t *testing.T) {
	c, err := cache.New(cache.Config{})
	require.NoError(t, err)
	defer c.Close()

	gen := newStubGenerate()
	gen.responses["doc-a"] = "cached findings"
	d := New(gen, Config{Cache: c, Invoker: fastInvoker()})
	ctx := context.Background()
	docs := []core.Document{doc("a", "doc-a body")}

	first, err := d.Distill(ctx, "q", docs)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.False(t, first[0].FromCache)
	callsAfterFirst := gen.calls.Load()

	second, err := d.Distill(ctx, "q", docs)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.True(t, second[0].FromCache)
	assert.Equal(t, "cached findings", second[0].Findings)
	assert.Equal(t, callsAfterFirst, gen.calls.Load(), "cache hit must not call the model")

	// A different query misses the cache.
	_, err = d.Distill(ctx, "another question", docs)
	require.NoError(t, err)
	assert.Greater(t, gen.calls.Load(), callsAfterFirst)
}

func TestDistill_ContextCancellation(t *testing.T) {
	gen := newStubGenerate()
	gen.delay = 50 * time.Millisecond
	d := New(gen, Config{Invoker: fastInvoker()})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := d.Distill(ctx, "q", []core.Document{doc("a", "body"), doc("b", "body")})
	require.Error(t, err)
}
