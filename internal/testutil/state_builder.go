package testutil

import (
	"fmt"
	"time"

	"github.com/stratgov/researchgraph/core"
)

// StateBuilder constructs conversation states with fluent chaining for tests.
// Example:
//
//	state := NewStateBuilder("t1").UserMessage("question").Insights(2).Build()
type StateBuilder struct {
	threadID  string
	node      core.Node
	messages  []core.Message
	documents []core.Document
	insights  []core.CondensedInsight
	domains   []string
	iters     int
}

// NewStateBuilder creates a builder for a state on the given thread.
func NewStateBuilder(threadID string) *StateBuilder {
	return &StateBuilder{threadID: threadID}
}

// UserMessage appends a user turn (chainable).
func (b *StateBuilder) UserMessage(content string) *StateBuilder {
	b.messages = append(b.messages, core.Message{Role: "user", Content: content})
	return b
}

// AssistantMessage appends an assistant turn (chainable).
func (b *StateBuilder) AssistantMessage(content string) *StateBuilder {
	b.messages = append(b.messages, core.Message{Role: "assistant", Content: content})
	return b
}

// Document appends a fetched document (chainable).
func (b *StateBuilder) Document(doc core.Document) *StateBuilder {
	b.documents = append(b.documents, doc)
	return b
}

// Insight appends a condensed insight (chainable).
func (b *StateBuilder) Insight(in core.CondensedInsight) *StateBuilder {
	b.insights = append(b.insights, in)
	return b
}

// Insights appends n generated placeholder insights (chainable).
func (b *StateBuilder) Insights(n int) *StateBuilder {
	for i := 0; i < n; i++ {
		b.insights = append(b.insights, core.CondensedInsight{
			DocumentID: fmt.Sprintf("doc_%d", i),
			Title:      fmt.Sprintf("document %d", i),
			Findings:   fmt.Sprintf("finding %d", i),
		})
	}
	return b
}

// Domains sets the trusted-domain filter (chainable).
func (b *StateBuilder) Domains(domains ...string) *StateBuilder {
	b.domains = domains
	return b
}

// Node sets the current graph node (chainable).
func (b *StateBuilder) Node(node core.Node) *StateBuilder {
	b.node = node
	return b
}

// Iterations sets the completed think-cycle count (chainable).
func (b *StateBuilder) Iterations(n int) *StateBuilder {
	b.iters = n
	return b
}

// Build returns the assembled *core.ConversationState.
func (b *StateBuilder) Build() *core.ConversationState {
	state := core.NewConversationState(b.threadID)
	for _, msg := range b.messages {
		state.AddMessage(msg.Role, msg.Content)
	}
	for _, doc := range b.documents {
		state.AddDocument(doc)
	}
	for _, in := range b.insights {
		state.AddInsight(in)
	}
	if len(b.domains) > 0 {
		state.Filter = core.SearchFilter{Domains: b.domains}
	}
	if b.node != "" {
		state.Node = b.node
	}
	state.Iterations = b.iters
	return state
}

// Doc builds a document with deterministic fields derived from the URL,
// useful when a test only cares that distinct documents exist.
func Doc(url, content string) core.Document {
	return core.Document{
		ID:        "doc_" + url,
		Title:     "title for " + url,
		URL:       url,
		Content:   content,
		FetchedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}
