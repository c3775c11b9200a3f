// Package researchgraph provides a high-level façade over the graph
// executor and its collaborators (semantic cache, vector index, checkpoint
// memory, resilience layer) for building research conversations. Most
// applications interact with this package by:
//  1. Creating a ResearchGraph via New() with a model and a search provider
//  2. Submitting user messages per thread and consuming the event stream
//  3. Resetting a thread to cancel its in-flight turn and start over
//
// The façade wires safe in-memory defaults for every store; production
// deployments typically supply a file-backed checkpoint store, real trusted
// domains and a structured logger.
package researchgraph

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/stratgov/researchgraph/archive"
	"github.com/stratgov/researchgraph/cache"
	"github.com/stratgov/researchgraph/capability"
	"github.com/stratgov/researchgraph/core"
	"github.com/stratgov/researchgraph/graph"
	"github.com/stratgov/researchgraph/logging"
	"github.com/stratgov/researchgraph/memory"
	"github.com/stratgov/researchgraph/model"
	"github.com/stratgov/researchgraph/resilience"
	"github.com/stratgov/researchgraph/trace"
	"github.com/stratgov/researchgraph/vector"
)

// Options configures the ResearchGraph instance.
type Options struct {
	// TrustedDomains restricts search and fetch to these domains. Empty
	// means unrestricted.
	TrustedDomains []string

	// MaxIterations bounds Think cycles per turn. Default 8.
	MaxIterations int

	// SearchRetryBudget bounds empty-search retries per turn. Default 2.
	SearchRetryBudget int

	// DownloadConcurrency bounds the download fan-out. Default 4.
	DownloadConcurrency int

	// EventBufferSize sets the stream channel buffer. Default 128.
	EventBufferSize int

	// Embedder vectorizes queries and documents. Defaults to a
	// deterministic mock, suitable only for development.
	Embedder model.Embedder

	// Classifier overrides the Think routing. Defaults to a model-backed
	// classifier.
	Classifier graph.Classifier

	// HTTPClient is used by the fetch capability. Defaults to a client with
	// a bounded timeout.
	HTTPClient *http.Client

	// CacheConfig tunes the semantic cache.
	CacheConfig cache.Config

	// CheckpointStore persists conversation state between turns. Defaults
	// to the in-memory store.
	CheckpointStore core.CheckpointStore

	// Archive keeps the raw content of fetched documents per thread.
	// Defaults to the in-memory archive.
	Archive archive.Store

	// ResilienceConfig tunes retry and circuit breaking.
	ResilienceConfig resilience.Config

	// Tracer receives transition events. Defaults to NoOpEmitter.
	Tracer trace.Emitter

	// Logger defaults to NoOp logger if nil.
	Logger logging.Logger
}

// thread tracks per-thread turn serialization and cancellation state.
type thread struct {
	mu     sync.Mutex // serializes turns
	gen    atomic.Int64
	cancel context.CancelFunc
	cmu    sync.Mutex // guards cancel
}

// ResearchGraph is the high-level façade aggregating the executor and its
// collaborators. Safe for concurrent use; turns on the same thread are
// serialized, turns on distinct threads run independently.
type ResearchGraph struct {
	opts     Options
	executor *graph.Executor
	cache    *cache.SemanticCache
	vectors  *vector.Store
	memory   *memory.Manager
	logger   logging.Logger

	mu      sync.Mutex
	threads map[string]*thread
}

// New creates a ResearchGraph driving the given model and search provider.
// Any unset collaborator is initialized with an in-memory default.
func New(m model.Model, provider capability.SearchProvider, optFns ...func(o *Options)) (*ResearchGraph, error) {
	opts := Options{
		MaxIterations:       graph.DefaultMaxIterations,
		SearchRetryBudget:   graph.DefaultSearchRetryBudget,
		DownloadConcurrency: graph.DefaultDownloadConcurrency,
		EventBufferSize:     128,
		Tracer:              trace.NoOpEmitter{},
		Logger:              logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Embedder == nil {
		opts.Embedder = model.NewMockEmbedder(0)
	}
	if opts.Archive == nil {
		opts.Archive = archive.NewInMemoryStore()
	}
	if opts.CacheConfig.Logger == nil {
		opts.CacheConfig.Logger = opts.Logger
	}
	if opts.ResilienceConfig.Logger == nil {
		opts.ResilienceConfig.Logger = opts.Logger
	}

	semanticCache, err := cache.New(opts.CacheConfig)
	if err != nil {
		return nil, fmt.Errorf("researchgraph: create cache: %w", err)
	}
	vectors, err := vector.New(vector.Config{Logger: opts.Logger})
	if err != nil {
		return nil, fmt.Errorf("researchgraph: create vector store: %w", err)
	}
	checkpoints := memory.NewManager(memory.Config{
		Store:  opts.CheckpointStore,
		Logger: opts.Logger,
	})
	invoker := resilience.NewInvoker(opts.ResilienceConfig)

	registry := capability.NewRegistry()
	registry.Register(capability.NewSearchCapability(provider, 0, opts.Logger))
	registry.Register(capability.NewFetchCapability(opts.HTTPClient, opts.Logger))
	registry.Register(capability.NewEmbedCapability(opts.Embedder))
	registry.Register(capability.NewGenerateCapability(m))

	executor := graph.New(registry, m, func(o *graph.Options) {
		o.MaxIterations = opts.MaxIterations
		o.SearchRetryBudget = opts.SearchRetryBudget
		o.DownloadConcurrency = opts.DownloadConcurrency
		o.TrustedDomains = opts.TrustedDomains
		o.Classifier = opts.Classifier
		o.Cache = semanticCache
		o.Vectors = vectors
		o.Archive = opts.Archive
		// Checkpointing stays with the façade so results from a reset
		// generation are discarded before any state is persisted.
		o.Checkpoints = nil
		o.Invoker = invoker
		o.Tracer = opts.Tracer
		o.Logger = opts.Logger
	})

	return &ResearchGraph{
		opts:     opts,
		executor: executor,
		cache:    semanticCache,
		vectors:  vectors,
		memory:   checkpoints,
		logger:   opts.Logger,
		threads:  make(map[string]*thread),
	}, nil
}

func (rg *ResearchGraph) thread(threadID string) *thread {
	rg.mu.Lock()
	defer rg.mu.Unlock()
	t, ok := rg.threads[threadID]
	if !ok {
		t = &thread{}
		rg.threads[threadID] = t
	}
	return t
}

// Submit starts one conversation turn: the message is appended to the
// thread's history and the graph runs until it produces an answer. Events
// stream on the returned channel; a terminal failure arrives on the error
// channel. Both channels close when the turn completes. Concurrent submits
// on one thread queue behind each other.
func (rg *ResearchGraph) Submit(ctx context.Context, threadID, message string) (<-chan core.StreamEvent, <-chan error) {
	events := make(chan core.StreamEvent, rg.opts.EventBufferSize)
	errs := make(chan error, 1)

	t := rg.thread(threadID)
	go func() {
		defer close(events)
		defer close(errs)

		t.mu.Lock()
		defer t.mu.Unlock()

		gen := t.gen.Load()
		turnCtx, cancel := context.WithCancel(ctx)
		t.cmu.Lock()
		t.cancel = cancel
		t.cmu.Unlock()
		defer cancel()

		state, err := rg.memory.Restore(turnCtx, threadID)
		if err != nil {
			// A broken checkpoint store must not take the thread down with
			// it: the turn degrades to in-memory state and still answers.
			rg.logger.Warn("restore failed, continuing without persisted history",
				"thread_id", threadID, "error", err)
			select {
			case events <- core.NewLogEvent(threadID, core.NodeThink, "warn",
				"failed to restore conversation history, answering from this turn only"):
			case <-ctx.Done():
			}
			state = nil
		}
		if state == nil {
			state = core.NewConversationState(threadID)
		}
		// Each submit is a fresh turn over the accumulated context, even when
		// the previous turn failed mid-graph.
		state.AddMessage("user", message)
		state.Node = core.NodeThink
		state.Query = ""
		state.SearchRetries = 0
		state.Iterations = 0

		// The executor emits into an inner channel; the forwarder drops
		// everything once the generation moves on, so a reset thread never
		// sees stale output.
		inner := make(chan core.StreamEvent, rg.opts.EventBufferSize)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for ev := range inner {
				if t.gen.Load() != gen {
					continue
				}
				select {
				case events <- ev:
				case <-ctx.Done():
				}
			}
		}()

		runErr := rg.executor.Run(turnCtx, state, inner)
		close(inner)
		<-done

		if t.gen.Load() != gen {
			rg.logger.Debug("discarding stale turn result", "thread_id", threadID)
			return
		}
		// The state is persisted whether the turn ended cleanly or failed,
		// so a failed turn can be inspected and resumed.
		if _, err := rg.memory.Checkpoint(context.WithoutCancel(turnCtx), state); err != nil {
			// The answer already streamed; losing persistence degrades the
			// next turn, it does not retract this one.
			rg.logger.Error("checkpoint failed", "thread_id", threadID, "error", err)
			select {
			case events <- core.NewLogEvent(threadID, core.NodeEnd, "warn",
				"failed to persist conversation state"):
			case <-ctx.Done():
			}
		}
		if runErr != nil {
			errs <- runErr
		}
	}()

	return events, errs
}

// Reset cancels the thread's in-flight turn, discards its pending results
// and forgets its persisted history. The next Submit starts fresh.
func (rg *ResearchGraph) Reset(ctx context.Context, threadID string) error {
	t := rg.thread(threadID)
	t.gen.Add(1)
	t.cmu.Lock()
	if t.cancel != nil {
		t.cancel()
	}
	t.cmu.Unlock()

	if err := rg.memory.Forget(ctx, threadID); err != nil {
		return fmt.Errorf("researchgraph: reset thread %s: %w", threadID, err)
	}
	if err := rg.opts.Archive.DeleteThread(threadID); err != nil {
		return fmt.Errorf("researchgraph: reset thread %s: %w", threadID, err)
	}
	rg.logger.Info("thread reset", "thread_id", threadID)
	return nil
}

// History returns the thread's checkpoint records, oldest first.
func (rg *ResearchGraph) History(ctx context.Context, threadID string) ([]*core.CheckpointRecord, error) {
	return rg.memory.History(ctx, threadID)
}

// Sweep removes expired checkpoint records now. See memory.Manager.Sweep.
func (rg *ResearchGraph) Sweep(ctx context.Context) (int, error) {
	return rg.memory.Sweep(ctx)
}

// Vectors exposes the document index for direct similarity queries.
func (rg *ResearchGraph) Vectors() *vector.Store { return rg.vectors }

// Archive exposes the raw document archive.
func (rg *ResearchGraph) Archive() archive.Store { return rg.opts.Archive }

// Close releases the façade's resources.
func (rg *ResearchGraph) Close() {
	rg.cache.Close()
}
