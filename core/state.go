package core

import (
	"time"
)

// Node identifies a state of the graph executor's finite state machine.
type Node string

const (
	// NodeThink classifies the query: answerable now, or needing retrieval.
	NodeThink Node = "think"
	// NodeSearch issues an external search for the refined query.
	NodeSearch Node = "search"
	// NodeDownload fetches the content behind each search result.
	NodeDownload Node = "download"
	// NodeDistill compresses fetched documents into bounded insights.
	NodeDistill Node = "distill"
	// NodeSynthesize produces the final answer from accumulated context.
	NodeSynthesize Node = "synthesize"
	// NodeEnd is the terminal state; reaching it persists a checkpoint.
	NodeEnd Node = "end"
)

// Message is a single conversational turn.
type Message struct {
	Role    string    `json:"role"` // "user" or "assistant"
	Content string    `json:"content"`
	Time    time.Time `json:"time"`
}

// ConversationState is the complete mutable state of one conversation thread.
//
// Contract:
//   - Owned exclusively by the graph executor while a turn is in flight; the
//     persisted snapshot is owned by the memory manager between turns.
//   - Never shared for mutation across threads; Clone produces an isolated
//     deep copy for checkpointing.
//   - Iterations counts completed Think cycles and is what the iteration
//     ceiling is enforced against.
type ConversationState struct {
	ThreadID string    `json:"thread_id"`
	Messages []Message `json:"messages"`
	Node     Node      `json:"node"`

	// Query is the current (possibly classifier-refined) research query.
	Query string `json:"query,omitempty"`
	// Filter constrains search and fetch to trusted domains.
	Filter SearchFilter `json:"filter,omitempty"`

	// Documents accumulated as context for synthesis. The state references
	// documents; the vector store owns them.
	Documents []Document `json:"documents,omitempty"`
	// Insights are the distilled findings extracted from Documents.
	Insights []CondensedInsight `json:"insights,omitempty"`

	Iterations    int `json:"iterations"`
	SearchRetries int `json:"search_retries"`

	// RequiresFollowUp marks an answer synthesized without any findings, so
	// callers can flag it as needing verification or a rephrased question.
	RequiresFollowUp bool `json:"requires_follow_up,omitempty"`

	Created time.Time `json:"created"`
	Updated time.Time `json:"updated"`
}

// NewConversationState creates an empty state positioned at the Think node.
func NewConversationState(threadID string) *ConversationState {
	now := time.Now().UTC()
	return &ConversationState{
		ThreadID: threadID,
		Node:     NodeThink,
		Created:  now,
		Updated:  now,
	}
}

// AddMessage appends a conversational turn and bumps the Updated timestamp.
func (s *ConversationState) AddMessage(role, content string) {
	s.Messages = append(s.Messages, Message{Role: role, Content: content, Time: time.Now().UTC()})
	s.Updated = time.Now().UTC()
}

// AddDocument records a context document reference, ignoring duplicates by id.
func (s *ConversationState) AddDocument(doc Document) {
	for _, d := range s.Documents {
		if d.ID == doc.ID {
			return
		}
	}
	s.Documents = append(s.Documents, doc)
	s.Updated = time.Now().UTC()
}

// AddInsight appends a distilled finding to the synthesis context.
func (s *ConversationState) AddInsight(in CondensedInsight) {
	s.Insights = append(s.Insights, in)
	s.Updated = time.Now().UTC()
}

// LastUserMessage returns the most recent user turn, or "" when none exists.
func (s *ConversationState) LastUserMessage() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == "user" {
			return s.Messages[i].Content
		}
	}
	return ""
}

// Clone returns a deep copy safe for independent mutation or persistence.
func (s *ConversationState) Clone() *ConversationState {
	clone := *s
	clone.Messages = make([]Message, len(s.Messages))
	copy(clone.Messages, s.Messages)
	clone.Documents = make([]Document, len(s.Documents))
	copy(clone.Documents, s.Documents)
	clone.Insights = make([]CondensedInsight, len(s.Insights))
	copy(clone.Insights, s.Insights)
	clone.Filter = s.Filter.Clone()
	return &clone
}
