package graph

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratgov/researchgraph/capability"
	"github.com/stratgov/researchgraph/core"
	"github.com/stratgov/researchgraph/internal/testutil"
	"github.com/stratgov/researchgraph/model"
	"github.com/stratgov/researchgraph/resilience"
)

// scriptedGenerate returns a fixed string for every call.
type scriptedGenerate struct {
	output string
	err    error
}

func (s *scriptedGenerate) Name() string { return core.CapabilityGenerate }

func (s *scriptedGenerate) Call(context.Context, map[string]any) (any, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.output, nil
}

func classifierInvoker() *resilience.Invoker {
	return resilience.NewInvoker(resilience.Config{
		InitialInterval:  time.Millisecond,
		BreakerThreshold: 100,
	})
}

func classifyState(msg string, insights int) *core.ConversationState {
	return testutil.NewStateBuilder("t1").UserMessage(msg).Insights(insights).Build()
}

func TestModelClassifier_ParsesSearchDecision(t *testing.T) {
	gen := &scriptedGenerate{output: `{"action":"search","query":"eu digital spending 2025"}`}
	c := NewModelClassifier(gen, classifierInvoker(), 8)

	d, err := c.Classify(context.Background(), classifyState("how much did the EU spend?", 0))
	require.NoError(t, err)
	assert.Equal(t, ActionSearch, d.Action)
	assert.Equal(t, "eu digital spending 2025", d.Query)
}

func TestModelClassifier_ParsesAnswerDecision(t *testing.T) {
	gen := &scriptedGenerate{output: "Here is my verdict:\n```json\n{\"action\":\"answer\"}\n```"}
	c := NewModelClassifier(gen, classifierInvoker(), 8)

	d, err := c.Classify(context.Background(), classifyState("q", 2))
	require.NoError(t, err)
	assert.Equal(t, ActionAnswer, d.Action)
}

func TestModelClassifier_UnparseableOutputDegrades(t *testing.T) {
	gen := &scriptedGenerate{output: "I think we should probably search more?"}
	c := NewModelClassifier(gen, classifierInvoker(), 8)

	// Without findings, degrade to searching the raw question.
	d, err := c.Classify(context.Background(), classifyState("raw question", 0))
	require.NoError(t, err)
	assert.Equal(t, ActionSearch, d.Action)
	assert.Equal(t, "raw question", d.Query)

	// With findings, degrade to answering.
	d, err = c.Classify(context.Background(), classifyState("raw question", 1))
	require.NoError(t, err)
	assert.Equal(t, ActionAnswer, d.Action)
}

func TestModelClassifier_EmptySearchQueryFallsBackToQuestion(t *testing.T) {
	gen := &scriptedGenerate{output: `{"action":"search"}`}
	c := NewModelClassifier(gen, classifierInvoker(), 8)

	d, err := c.Classify(context.Background(), classifyState("the question", 0))
	require.NoError(t, err)
	assert.Equal(t, "the question", d.Query)
}

func TestModelClassifier_PropagatesModelFailure(t *testing.T) {
	gen := &scriptedGenerate{err: core.Fatal("generate", assert.AnError)}
	c := NewModelClassifier(gen, classifierInvoker(), 8)

	_, err := c.Classify(context.Background(), classifyState("q", 0))
	assert.Error(t, err)
}

func TestModelClassifier_WorksThroughGenerateCapability(t *testing.T) {
	m := model.NewMockModel()
	c := NewModelClassifier(capability.NewGenerateCapability(m), classifierInvoker(), 8)

	// The mock echoes the prompt, which is unparseable; with no findings the
	// classifier must still produce a usable search decision.
	d, err := c.Classify(context.Background(), classifyState("what changed in 2025?", 0))
	require.NoError(t, err)
	assert.Equal(t, ActionSearch, d.Action)
	assert.Equal(t, "what changed in 2025?", d.Query)
}

func TestRuleClassifier(t *testing.T) {
	c := &RuleClassifier{MinInsights: 2}

	d, err := c.Classify(context.Background(), classifyState("q", 1))
	require.NoError(t, err)
	assert.Equal(t, ActionSearch, d.Action)
	assert.Equal(t, "q", d.Query)

	d, err = c.Classify(context.Background(), classifyState("q", 2))
	require.NoError(t, err)
	assert.Equal(t, ActionAnswer, d.Action)
}
