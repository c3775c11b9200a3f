package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/stratgov/researchgraph/archive"
	"github.com/stratgov/researchgraph/cache"
	"github.com/stratgov/researchgraph/capability"
	"github.com/stratgov/researchgraph/core"
	"github.com/stratgov/researchgraph/distill"
	"github.com/stratgov/researchgraph/internal/util"
	"github.com/stratgov/researchgraph/logging"
	"github.com/stratgov/researchgraph/memory"
	"github.com/stratgov/researchgraph/model"
	"github.com/stratgov/researchgraph/resilience"
	"github.com/stratgov/researchgraph/trace"
	"github.com/stratgov/researchgraph/vector"
)

// Defaults for the executor.
const (
	DefaultMaxIterations       = 8
	DefaultSearchRetryBudget   = 2
	DefaultDownloadConcurrency = 4
)

const synthesizeSystem = "You are a research assistant. Answer the user's question from the " +
	"findings provided, citing document titles inline. Say so plainly when the findings are " +
	"thin rather than inventing detail."

const synthesizePrompt = `Question: {{.question}}

Findings:
{{.findings}}`

// Options configures an Executor. Required collaborators are arguments to
// New; everything here has a working default.
type Options struct {
	// MaxIterations bounds Think cycles per turn. Default 8.
	MaxIterations int

	// SearchRetryBudget is how many empty search rounds may loop back to
	// Think before the turn synthesizes from what it has. Default 2.
	SearchRetryBudget int

	// DownloadConcurrency bounds the Download fan-out. Default 4.
	DownloadConcurrency int

	// TrustedDomains is the default domain filter applied when the state
	// carries none.
	TrustedDomains []string

	// Classifier routes Think. Defaults to a model-backed classifier over
	// the registry's generate capability.
	Classifier Classifier

	// Distiller condenses fetched documents. Defaults to a distiller over
	// the registry's generate capability, sharing Cache and Invoker.
	Distiller *distill.Distiller

	// Cache is the semantic cache for search results. Optional; without it
	// every search goes out.
	Cache *cache.SemanticCache

	// Vectors indexes fetched documents. Optional.
	Vectors *vector.Store

	// Archive keeps the raw content of fetched documents. Optional.
	Archive archive.Store

	// Checkpoints persists state at End. Optional.
	Checkpoints *memory.Manager

	// Invoker wraps capability calls. Defaults to production settings.
	Invoker *resilience.Invoker

	// Tracer receives one event per transition. Defaults to NoOpEmitter.
	Tracer trace.Emitter

	// Logger receives executor diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Executor walks one conversation turn through the graph. Safe for
// concurrent use across distinct states; a single state must only be run by
// one goroutine at a time.
type Executor struct {
	registry *capability.Registry
	model    model.Model
	opts     Options
	logger   logging.Logger
}

// New creates an executor over the given capability registry and synthesis
// model.
func New(registry *capability.Registry, m model.Model, optFns ...func(o *Options)) *Executor {
	opts := Options{
		MaxIterations:       DefaultMaxIterations,
		SearchRetryBudget:   DefaultSearchRetryBudget,
		DownloadConcurrency: DefaultDownloadConcurrency,
		Tracer:              trace.NoOpEmitter{},
		Logger:              logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Invoker == nil {
		opts.Invoker = resilience.NewInvoker(resilience.Config{Logger: opts.Logger})
	}
	if opts.Classifier == nil || opts.Distiller == nil {
		if generate, err := registry.Get(core.CapabilityGenerate); err == nil {
			if opts.Classifier == nil {
				opts.Classifier = NewModelClassifier(generate, opts.Invoker, opts.MaxIterations)
			}
			if opts.Distiller == nil {
				opts.Distiller = distill.New(generate, distill.Config{
					Concurrency: opts.DownloadConcurrency,
					Cache:       opts.Cache,
					Invoker:     opts.Invoker,
					Logger:      opts.Logger,
				})
			}
		}
	}
	return &Executor{registry: registry, model: m, opts: opts, logger: opts.Logger}
}

// turn carries the data that flows between nodes within a single turn but
// does not belong in the persisted state.
type turn struct {
	state   *core.ConversationState
	events  chan<- core.StreamEvent
	results []core.SearchResult
	newDocs []core.Document
}

// Run drives state from its current node to End, emitting stream events
// along the way. On return the state is at End (success) or unchanged from
// the failing node (error). Run does not close the events channel; the
// caller owns it.
func (e *Executor) Run(ctx context.Context, state *core.ConversationState, events chan<- core.StreamEvent) error {
	if state.Node == core.NodeEnd {
		state.Node = core.NodeThink
	}
	if len(state.Filter.Domains) == 0 && len(e.opts.TrustedDomains) > 0 {
		state.Filter = core.SearchFilter{Domains: e.opts.TrustedDomains}.Clone()
	}
	if state.Query == "" {
		state.Query = state.LastUserMessage()
	}

	t := &turn{state: state, events: events}
	for state.Node != core.NodeEnd {
		if err := ctx.Err(); err != nil {
			return err
		}
		var err error
		switch state.Node {
		case core.NodeThink:
			err = e.think(ctx, t)
		case core.NodeSearch:
			err = e.search(ctx, t)
		case core.NodeDownload:
			err = e.download(ctx, t)
		case core.NodeDistill:
			err = e.distillNode(ctx, t)
		case core.NodeSynthesize:
			err = e.synthesize(ctx, t)
		default:
			err = fmt.Errorf("graph: unknown node %q", state.Node)
		}
		if err != nil {
			e.emitError(ctx, t, err)
			return err
		}
	}
	if e.opts.Checkpoints != nil {
		if _, err := e.opts.Checkpoints.Checkpoint(ctx, state); err != nil {
			// The answer already streamed; a failed checkpoint is surfaced
			// but does not retract it.
			e.logger.Error("checkpoint failed", "thread_id", state.ThreadID, "error", err)
			e.emit(ctx, t, core.NewLogEvent(state.ThreadID, core.NodeEnd, "warn",
				"failed to persist conversation state"))
		}
	}
	return nil
}

// transition moves the state to the next node, enforcing the transition
// table and emitting a trace event.
func (e *Executor) transition(t *turn, to core.Node, note string) error {
	from := t.state.Node
	if !validTransition(from, to) {
		return errInvalidTransition(from, to)
	}
	t.state.Node = to
	t.state.Updated = time.Now().UTC()
	e.logger.Debug("node transition",
		"thread_id", t.state.ThreadID, "from", from, "to", to, "iteration", t.state.Iterations)
	e.opts.Tracer.Emit(trace.Event{
		ID:        uuid.NewString(),
		ThreadID:  t.state.ThreadID,
		At:        time.Now().UTC(),
		From:      from,
		To:        to,
		Iteration: t.state.Iterations,
		Note:      note,
	})
	return nil
}

func (e *Executor) emit(ctx context.Context, t *turn, ev core.StreamEvent) {
	select {
	case <-ctx.Done():
	case t.events <- ev:
	}
}

func (e *Executor) emitError(ctx context.Context, t *turn, err error) {
	node := t.state.Node
	ec := core.NewErrorContext(string(node), err, 0, e.breakerStateFor(err))
	e.opts.Tracer.Emit(trace.Event{
		ID:       uuid.NewString(),
		ThreadID: t.state.ThreadID,
		At:       time.Now().UTC(),
		From:     node,
		Error:    ec,
	})
	e.emit(ctx, t, core.NewErrorEvent(t.state.ThreadID, node, ec))
}

// traceInvocation records one capability call outcome on the trace stream.
func (e *Executor) traceInvocation(threadID, capability string, attempts int, started time.Time, err error) {
	inv := &core.Invocation{
		Capability: capability,
		Attempts:   attempts,
		StartedAt:  started,
		Duration:   time.Since(started),
	}
	if err != nil {
		inv.Err = err.Error()
	}
	e.opts.Tracer.Emit(trace.Event{
		ID:         uuid.NewString(),
		ThreadID:   threadID,
		At:         time.Now().UTC(),
		Invocation: inv,
	})
}

func (e *Executor) breakerStateFor(err error) string {
	if err != nil && e.opts.Invoker != nil && core.IsFatal(err) {
		// Breaker state only matters when the failure may be breaker-driven.
		if strings.Contains(err.Error(), core.ErrCircuitOpen.Error()) {
			return "open"
		}
	}
	return ""
}

// think classifies the conversation and routes to Search or Synthesize. The
// iteration ceiling is enforced here: once reached, the turn synthesizes
// from whatever context exists.
func (e *Executor) think(ctx context.Context, t *turn) error {
	state := t.state
	if state.Iterations >= e.opts.MaxIterations {
		// The answer is forced, not chosen, so flag it as possibly
		// incomplete regardless of how many findings exist.
		state.RequiresFollowUp = true
		e.emit(ctx, t, core.NewLogEvent(state.ThreadID, core.NodeThink, "warn",
			fmt.Sprintf("iteration ceiling %d reached, synthesizing with current context", e.opts.MaxIterations)))
		return e.transition(t, core.NodeSynthesize, "iteration ceiling")
	}

	decision, err := e.opts.Classifier.Classify(ctx, state)
	if err != nil {
		if len(state.Insights) > 0 {
			// Findings exist; a broken classifier should not lose them.
			e.logger.Warn("classifier failed, synthesizing from existing findings",
				"thread_id", state.ThreadID, "error", err)
			return e.transition(t, core.NodeSynthesize, "classifier failure fallback")
		}
		return err
	}

	if decision.Action == ActionAnswer {
		e.emit(ctx, t, core.NewLogEvent(state.ThreadID, core.NodeThink, "info",
			"sufficient context gathered, composing answer"))
		return e.transition(t, core.NodeSynthesize, "classifier answer")
	}

	state.Query = decision.Query
	state.Iterations++
	e.emit(ctx, t, core.NewLogEvent(state.ThreadID, core.NodeThink, "info",
		fmt.Sprintf("searching for: %s", state.Query)))
	return e.transition(t, core.NodeSearch, "classifier search")
}

// search resolves the current query through the semantic cache and routes on
// the result set. Empty results loop back to Think while the retry budget
// lasts; once spent, the turn synthesizes from what it has.
func (e *Executor) search(ctx context.Context, t *turn) error {
	state := t.state

	results, fromCache, err := e.searchResults(ctx, state)
	if err != nil {
		return err
	}

	if len(results) == 0 {
		if state.SearchRetries < e.opts.SearchRetryBudget {
			state.SearchRetries++
			e.emit(ctx, t, core.NewLogEvent(state.ThreadID, core.NodeSearch, "info",
				fmt.Sprintf("no results, refining query (retry %d of %d)",
					state.SearchRetries, e.opts.SearchRetryBudget)))
			return e.transition(t, core.NodeThink, "empty results, retry budget left")
		}
		e.emit(ctx, t, core.NewLogEvent(state.ThreadID, core.NodeSearch, "warn",
			"no results and retry budget spent, synthesizing with current context"))
		return e.transition(t, core.NodeSynthesize, "empty results, budget spent")
	}

	t.results = results
	source := "live"
	if fromCache {
		source = "cache"
	}
	e.emit(ctx, t, core.NewLogEvent(state.ThreadID, core.NodeSearch, "info",
		fmt.Sprintf("found %d results (%s)", len(results), source)))
	return e.transition(t, core.NodeDownload, "results found")
}

func (e *Executor) searchResults(ctx context.Context, state *core.ConversationState) ([]core.SearchResult, bool, error) {
	fetch := func(ctx context.Context) ([]byte, string, error) {
		started := time.Now().UTC()
		raw, attempts, err := e.opts.Invoker.Do(ctx, core.CapabilitySearch, func(ctx context.Context) (any, error) {
			searchCap, err := e.registry.Get(core.CapabilitySearch)
			if err != nil {
				return nil, core.Fatal(core.CapabilitySearch, err)
			}
			return searchCap.Call(ctx, map[string]any{
				"query":   state.Query,
				"domains": state.Filter.Domains,
			})
		})
		e.traceInvocation(state.ThreadID, core.CapabilitySearch, attempts, started, err)
		if err != nil {
			e.logger.Warn("search failed", "thread_id", state.ThreadID, "attempts", attempts, "error", err)
			return nil, "", err
		}
		results, _ := raw.([]core.SearchResult)
		payload, err := json.Marshal(results)
		if err != nil {
			return nil, "", core.Fatal(core.CapabilitySearch, err)
		}
		return payload, "", nil
	}

	if e.opts.Cache == nil {
		payload, _, err := fetch(ctx)
		if err != nil {
			return nil, false, err
		}
		var results []core.SearchResult
		if err := json.Unmarshal(payload, &results); err != nil {
			return nil, false, err
		}
		return results, false, nil
	}

	key := cache.Key(state.Query, state.Filter)
	hit := false
	if _, ok := e.opts.Cache.Lookup(key); ok {
		hit = true
	}
	entry, err := e.opts.Cache.GetOrFetch(ctx, key, fetch)
	if err != nil {
		return nil, false, err
	}
	var results []core.SearchResult
	if err := json.Unmarshal(entry.Payload, &results); err != nil {
		// A payload that no longer parses is a miss, never stale data:
		// invalidate and go back out once.
		e.logger.Warn("cached search payload unreadable, refetching",
			"key", key, "error", core.ErrCacheCorrupted)
		e.opts.Cache.Invalidate(key)
		entry, err = e.opts.Cache.GetOrFetch(ctx, key, fetch)
		if err != nil {
			return nil, false, err
		}
		if err := json.Unmarshal(entry.Payload, &results); err != nil {
			return nil, false, core.Fatal(core.CapabilitySearch,
				fmt.Errorf("%w: %v", core.ErrCacheCorrupted, err))
		}
		return results, false, nil
	}
	return results, hit, nil
}

// download fetches each search result through a bounded pool, embeds the
// content and indexes it. A result that fails to fetch or embed is dropped
// with a warning; the node fails only when the context does.
func (e *Executor) download(ctx context.Context, t *turn) error {
	state := t.state

	fetchCap, err := e.registry.Get(core.CapabilityFetch)
	if err != nil {
		return err
	}
	embedCap, _ := e.registry.Get(core.CapabilityEmbed)

	docs := make([]*core.Document, len(t.results))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.DownloadConcurrency)
	for i, result := range t.results {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			doc, err := e.fetchOne(gctx, state.ThreadID, fetchCap, embedCap, result)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				e.logger.Warn("dropping search result after fetch failure",
					"thread_id", state.ThreadID, "url", result.URL, "error", err)
				return nil
			}
			mu.Lock()
			docs[i] = doc
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	t.newDocs = t.newDocs[:0]
	for _, doc := range docs {
		if doc == nil {
			continue
		}
		state.AddDocument(*doc)
		t.newDocs = append(t.newDocs, *doc)
	}

	if len(t.newDocs) == 0 {
		if state.SearchRetries < e.opts.SearchRetryBudget {
			state.SearchRetries++
			e.emit(ctx, t, core.NewLogEvent(state.ThreadID, core.NodeDownload, "warn",
				"every download failed, refining query"))
			return e.transition(t, core.NodeThink, "all downloads failed, retry budget left")
		}
		e.emit(ctx, t, core.NewLogEvent(state.ThreadID, core.NodeDownload, "warn",
			"every download failed and retry budget spent"))
		return e.transition(t, core.NodeSynthesize, "all downloads failed, budget spent")
	}

	e.emit(ctx, t, core.NewLogEvent(state.ThreadID, core.NodeDownload, "info",
		fmt.Sprintf("downloaded %d of %d documents", len(t.newDocs), len(t.results))))
	return e.transition(t, core.NodeDistill, "documents downloaded")
}

func (e *Executor) fetchOne(ctx context.Context, threadID string, fetchCap, embedCap core.Capability, result core.SearchResult) (*core.Document, error) {
	started := time.Now().UTC()
	raw, attempts, err := e.opts.Invoker.Do(ctx, core.CapabilityFetch, func(ctx context.Context) (any, error) {
		return fetchCap.Call(ctx, map[string]any{"url": result.URL, "title": result.Title})
	})
	e.traceInvocation(threadID, core.CapabilityFetch, attempts, started, err)
	if err != nil {
		return nil, err
	}
	doc, ok := raw.(core.Document)
	if !ok {
		return nil, fmt.Errorf("fetch capability returned %T, want core.Document", raw)
	}
	if doc.Content == "" {
		return nil, fmt.Errorf("fetched %s: empty content", result.URL)
	}

	if e.opts.Archive != nil {
		if err := e.opts.Archive.Save(threadID, doc.ID, []byte(doc.Content)); err != nil {
			// Archiving is best effort; the document still feeds this turn.
			e.logger.Warn("failed to archive document", "url", doc.URL, "error", err)
		}
	}

	if embedCap != nil {
		rawVec, _, err := e.opts.Invoker.Do(ctx, core.CapabilityEmbed, func(ctx context.Context) (any, error) {
			return embedCap.Call(ctx, map[string]any{"text": doc.Content})
		})
		if err != nil {
			return nil, err
		}
		if vec, ok := rawVec.([]float32); ok {
			doc.Embedding = vec
		}
	}

	if e.opts.Vectors != nil && len(doc.Embedding) > 0 {
		if err := e.opts.Vectors.Upsert(ctx, doc); err != nil {
			// Indexing is best effort; the document still feeds this turn.
			e.logger.Warn("failed to index document", "url", doc.URL, "error", err)
		}
	}
	return &doc, nil
}

// distillNode condenses the freshly downloaded documents into insights and
// loops back to Think for the next classification.
func (e *Executor) distillNode(ctx context.Context, t *turn) error {
	state := t.state

	insights, err := e.opts.Distiller.Distill(ctx, state.Query, t.newDocs)
	if err != nil {
		return err
	}
	for _, in := range insights {
		state.AddInsight(in)
	}
	e.emit(ctx, t, core.NewLogEvent(state.ThreadID, core.NodeDistill, "info",
		fmt.Sprintf("distilled %d insights from %d documents", len(insights), len(t.newDocs))))
	t.newDocs = nil
	t.results = nil
	return e.transition(t, core.NodeThink, "insights distilled")
}

// synthesize streams the final answer from the accumulated insights,
// records it as an assistant message, emits the supporting resources and
// moves to End.
func (e *Executor) synthesize(ctx context.Context, t *turn) error {
	state := t.state

	var findings []string
	for _, in := range state.Insights {
		findings = append(findings, fmt.Sprintf("[%s] (%s)\n%s", in.Title, in.URL, in.Findings))
	}
	if len(findings) == 0 {
		findings = append(findings, "(no findings were gathered)")
		state.RequiresFollowUp = true
	}
	prompt, err := util.RenderTemplate(synthesizePrompt, map[string]any{
		"question": state.LastUserMessage(),
		"findings": strings.Join(findings, "\n\n"),
	})
	if err != nil {
		return err
	}

	respCh, errCh := e.model.Generate(ctx, model.Request{
		System: synthesizeSystem,
		Prompt: prompt,
		Stream: true,
	})

	var answer strings.Builder
	for respCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case resp, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if resp.Text != "" {
				answer.WriteString(resp.Text)
				e.emit(ctx, t, core.NewAnswerDeltaEvent(state.ThreadID, resp.Text))
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return err
			}
		}
	}

	state.AddMessage("assistant", strings.TrimSpace(answer.String()))

	resources := e.answerResources(state)
	if len(resources) > 0 {
		e.emit(ctx, t, core.NewResourcesEvent(state.ThreadID, resources))
	}
	return e.transition(t, core.NodeEnd, "answer streamed")
}

// answerResources lists the documents whose insights backed the answer,
// without their content or embeddings.
func (e *Executor) answerResources(state *core.ConversationState) []core.Document {
	backing := make(map[string]struct{}, len(state.Insights))
	for _, in := range state.Insights {
		backing[in.DocumentID] = struct{}{}
	}
	var resources []core.Document
	for _, doc := range state.Documents {
		if _, ok := backing[doc.ID]; !ok {
			continue
		}
		resources = append(resources, core.Document{
			ID:        doc.ID,
			Title:     doc.Title,
			URL:       doc.URL,
			FetchedAt: doc.FetchedAt,
		})
	}
	return resources
}
