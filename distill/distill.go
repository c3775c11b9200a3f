// Package distill compresses fetched documents into bounded, query-focused
// insights. Documents distill concurrently through a bounded worker pool;
// each document's output is capped at a fraction of its source token count,
// results are cached by content hash, and a document that fails or yields
// nothing relevant is dropped with a warning rather than failing the batch.
package distill

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/stratgov/researchgraph/cache"
	"github.com/stratgov/researchgraph/core"
	"github.com/stratgov/researchgraph/internal/textutil"
	"github.com/stratgov/researchgraph/internal/util"
	"github.com/stratgov/researchgraph/logging"
	"github.com/stratgov/researchgraph/resilience"
)

// NoRelevantInfo is the sentinel the model returns when a document contains
// nothing useful for the query. Such documents are dropped silently.
const NoRelevantInfo = "NO_RELEVANT_INFO"

// Defaults for the distillation pool and budget.
const (
	DefaultConcurrency  = 4
	DefaultBudgetRatio  = 0.15
	DefaultMinBudget    = 120
	DefaultMaxInputToks = 6000
)

const distillSystem = "You distill documents for a research workflow. Extract only findings " +
	"relevant to the query as terse bullet points with figures and dates kept exact. " +
	"If the document contains nothing relevant, reply with exactly " + NoRelevantInfo + "."

const distillPrompt = `Query: {{.query}}

Document: {{.title}} ({{.url}})

{{.content}}`

// Config tunes the distiller. The zero value yields the defaults.
type Config struct {
	// Concurrency bounds how many documents distill at once. Default 4.
	Concurrency int

	// BudgetRatio is the fraction of a document's estimated tokens its
	// insight may keep. Default 0.15.
	BudgetRatio float64

	// MinBudget is the floor for the per-document insight budget in tokens,
	// so short documents still yield usable findings. Default 120.
	MinBudget int

	// MaxInputTokens caps how much of a document is shown to the model.
	// Default 6000.
	MaxInputTokens int

	// Cache, when set, memoizes distillation results keyed by document
	// content and query.
	Cache *cache.SemanticCache

	// Invoker wraps model calls with retry and circuit breaking. Defaults to
	// a fresh invoker with production settings.
	Invoker *resilience.Invoker

	// Logger receives per-document diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.BudgetRatio <= 0 || c.BudgetRatio > 1 {
		c.BudgetRatio = DefaultBudgetRatio
	}
	if c.MinBudget <= 0 {
		c.MinBudget = DefaultMinBudget
	}
	if c.MaxInputTokens <= 0 {
		c.MaxInputTokens = DefaultMaxInputToks
	}
	if c.Invoker == nil {
		c.Invoker = resilience.NewInvoker(resilience.Config{})
	}
	if c.Logger == nil {
		c.Logger = logging.NoOpLogger{}
	}
	return c
}

// Distiller turns documents into condensed insights using the generate
// capability. Safe for concurrent use.
type Distiller struct {
	generate core.Capability
	cfg      Config
	logger   logging.Logger
}

// New creates a distiller driving the given generate capability.
func New(generate core.Capability, cfg Config) *Distiller {
	cfg = cfg.withDefaults()
	return &Distiller{generate: generate, cfg: cfg, logger: cfg.Logger}
}

// Distill condenses docs against query. Results preserve input order and
// contain one insight per surviving document: a document whose distillation
// fails, or which the model marks as irrelevant, is dropped. The only error
// returned is context cancellation; partial failure is not an error.
func (d *Distiller) Distill(ctx context.Context, query string, docs []core.Document) ([]core.CondensedInsight, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	results := make([]*core.CondensedInsight, len(docs))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.cfg.Concurrency)
	for i, doc := range docs {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			insight, err := d.distillOne(gctx, query, doc)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				d.logger.Warn("dropping document after distillation failure",
					"document_id", doc.ID, "url", doc.URL, "error", err)
				return nil
			}
			if insight == nil {
				d.logger.Debug("document contained nothing relevant",
					"document_id", doc.ID, "url", doc.URL)
				return nil
			}
			mu.Lock()
			results[i] = insight
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	insights := make([]core.CondensedInsight, 0, len(docs))
	for _, r := range results {
		if r != nil {
			insights = append(insights, *r)
		}
	}
	return insights, nil
}

// distillOne condenses a single document. A nil insight with nil error means
// the document was judged irrelevant.
func (d *Distiller) distillOne(ctx context.Context, query string, doc core.Document) (*core.CondensedInsight, error) {
	budget := int(float64(textutil.EstimateTokens(doc.Content)) * d.cfg.BudgetRatio)
	if budget < d.cfg.MinBudget {
		budget = d.cfg.MinBudget
	}

	if d.cfg.Cache != nil {
		key := cache.DistillKey(doc.Content, query)
		if entry, ok := d.cfg.Cache.Lookup(key); ok {
			var insight core.CondensedInsight
			if err := json.Unmarshal(entry.Payload, &insight); err == nil {
				insight.FromCache = true
				return &insight, nil
			}
			d.cfg.Cache.Invalidate(key)
		}
	}

	prompt, err := util.RenderTemplate(distillPrompt, map[string]any{
		"query":   query,
		"title":   doc.Title,
		"url":     doc.URL,
		"content": textutil.TruncateToTokens(doc.Content, d.cfg.MaxInputTokens),
	})
	if err != nil {
		return nil, err
	}

	result, _, err := d.cfg.Invoker.Do(ctx, core.CapabilityGenerate, func(ctx context.Context) (any, error) {
		return d.generate.Call(ctx, map[string]any{
			"system": distillSystem,
			"prompt": prompt,
		})
	})
	if err != nil {
		return nil, err
	}
	findings, ok := result.(string)
	if !ok {
		return nil, fmt.Errorf("generate capability returned %T, want string", result)
	}
	findings = strings.TrimSpace(findings)
	if findings == "" || strings.EqualFold(findings, NoRelevantInfo) {
		return nil, nil
	}

	findings = textutil.TruncateToTokens(findings, budget)
	insight := &core.CondensedInsight{
		DocumentID: doc.ID,
		Title:      doc.Title,
		URL:        doc.URL,
		Findings:   findings,
		Tokens:     textutil.EstimateTokens(findings),
	}

	if d.cfg.Cache != nil {
		if payload, err := json.Marshal(insight); err == nil {
			d.cfg.Cache.Store(cache.DistillKey(doc.Content, query), payload, "")
		}
	}
	return insight, nil
}
