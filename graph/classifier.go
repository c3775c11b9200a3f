package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stratgov/researchgraph/core"
	"github.com/stratgov/researchgraph/internal/util"
	"github.com/stratgov/researchgraph/resilience"
)

// Action is the outcome of a Think classification.
type Action string

const (
	// ActionSearch means the conversation needs more retrieved context.
	ActionSearch Action = "search"
	// ActionAnswer means the accumulated context suffices to answer now.
	ActionAnswer Action = "answer"
)

// Decision is the classifier's verdict: answer now, or search with a refined
// query.
type Decision struct {
	Action Action `json:"action"`
	// Query is the refined search query. Meaningful only for ActionSearch.
	Query string `json:"query,omitempty"`
}

// Classifier decides at each Think node whether to retrieve more or answer.
type Classifier interface {
	Classify(ctx context.Context, state *core.ConversationState) (Decision, error)
}

const classifySystem = "You route a research workflow. Decide whether the accumulated findings " +
	"answer the user's question or whether another targeted search is needed. " +
	`Reply with JSON only: {"action":"answer"} or {"action":"search","query":"<refined query>"}.`

const classifyPrompt = `Question: {{.question}}

Iteration {{.iteration}} of {{.ceiling}}. Findings gathered so far: {{.findings}}

{{.insights}}`

// ModelClassifier asks the generate capability to route the conversation.
// Unparseable model output degrades gracefully: search on the first
// iteration, answer once findings exist.
type ModelClassifier struct {
	generate      core.Capability
	invoker       *resilience.Invoker
	maxIterations int
}

// NewModelClassifier builds a model-backed classifier. The invoker wraps the
// model call with retry and circuit breaking.
func NewModelClassifier(generate core.Capability, invoker *resilience.Invoker, maxIterations int) *ModelClassifier {
	if invoker == nil {
		invoker = resilience.NewInvoker(resilience.Config{})
	}
	return &ModelClassifier{generate: generate, invoker: invoker, maxIterations: maxIterations}
}

var _ Classifier = (*ModelClassifier)(nil)

// Classify implements Classifier.
func (c *ModelClassifier) Classify(ctx context.Context, state *core.ConversationState) (Decision, error) {
	var summaries []string
	for _, in := range state.Insights {
		summaries = append(summaries, fmt.Sprintf("- %s: %s", in.Title, in.Findings))
	}
	prompt, err := util.RenderTemplate(classifyPrompt, map[string]any{
		"question":  state.LastUserMessage(),
		"iteration": state.Iterations + 1,
		"ceiling":   c.maxIterations,
		"findings":  len(state.Insights),
		"insights":  strings.Join(summaries, "\n"),
	})
	if err != nil {
		return Decision{}, err
	}

	result, _, err := c.invoker.Do(ctx, core.CapabilityGenerate, func(ctx context.Context) (any, error) {
		return c.generate.Call(ctx, map[string]any{
			"system": classifySystem,
			"prompt": prompt,
		})
	})
	if err != nil {
		return Decision{}, err
	}
	raw, _ := result.(string)

	decision, ok := parseDecision(raw)
	if !ok {
		if len(state.Insights) > 0 {
			return Decision{Action: ActionAnswer}, nil
		}
		return Decision{Action: ActionSearch, Query: state.LastUserMessage()}, nil
	}
	if decision.Action == ActionSearch && decision.Query == "" {
		decision.Query = state.LastUserMessage()
	}
	return decision, nil
}

// parseDecision extracts a Decision from model output, tolerating code
// fences and surrounding prose.
func parseDecision(raw string) (Decision, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return Decision{}, false
	}
	var d Decision
	if err := json.Unmarshal([]byte(raw[start:end+1]), &d); err != nil {
		return Decision{}, false
	}
	switch d.Action {
	case ActionSearch, ActionAnswer:
		return d, true
	default:
		return Decision{}, false
	}
}

// RuleClassifier is a deterministic classifier for tests and offline runs:
// search until MinInsights findings exist, then answer. The refined query is
// the user's question, optionally rewritten by Refine.
type RuleClassifier struct {
	// MinInsights is how many findings must exist before answering. Default 1.
	MinInsights int
	// Refine, when set, rewrites the search query per iteration.
	Refine func(state *core.ConversationState) string
}

var _ Classifier = (*RuleClassifier)(nil)

// Classify implements Classifier.
func (c *RuleClassifier) Classify(_ context.Context, state *core.ConversationState) (Decision, error) {
	min := c.MinInsights
	if min <= 0 {
		min = 1
	}
	if len(state.Insights) >= min {
		return Decision{Action: ActionAnswer}, nil
	}
	query := state.LastUserMessage()
	if c.Refine != nil {
		query = c.Refine(state)
	}
	return Decision{Action: ActionSearch, Query: query}, nil
}
