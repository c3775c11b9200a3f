package core

import "time"

// StreamEventType categorizes events on the chat boundary stream.
type StreamEventType string

const (
	// StreamLog carries a progress message from a node.
	StreamLog StreamEventType = "log"
	// StreamAnswerDelta carries an incremental chunk of the final answer.
	StreamAnswerDelta StreamEventType = "answer_delta"
	// StreamResources carries the documents backing the answer.
	StreamResources StreamEventType = "resources"
	// StreamError carries a structured, non-recoverable failure.
	StreamError StreamEventType = "error"
)

// StreamEvent is one element of the stream returned by Submit. Events for a
// thread are delivered in the order the underlying transitions occurred.
type StreamEvent struct {
	Type      StreamEventType `json:"type"`
	ThreadID  string          `json:"thread_id"`
	Node      Node            `json:"node,omitempty"`
	Timestamp time.Time       `json:"timestamp"`

	// Message is the log text for StreamLog events.
	Message string `json:"message,omitempty"`
	// Level refines StreamLog events: "info", "warn" or "error".
	Level string `json:"level,omitempty"`
	// Delta is the answer fragment for StreamAnswerDelta events.
	Delta string `json:"delta,omitempty"`
	// Resources lists context documents for StreamResources events.
	Resources []Document `json:"resources,omitempty"`
	// Error describes the failure for StreamError events.
	Error *ErrorContext `json:"error,omitempty"`
}

// NewLogEvent builds a StreamLog event for the given node.
func NewLogEvent(threadID string, node Node, level, message string) StreamEvent {
	return StreamEvent{
		Type:      StreamLog,
		ThreadID:  threadID,
		Node:      node,
		Level:     level,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

// NewAnswerDeltaEvent builds a StreamAnswerDelta event.
func NewAnswerDeltaEvent(threadID, delta string) StreamEvent {
	return StreamEvent{
		Type:      StreamAnswerDelta,
		ThreadID:  threadID,
		Node:      NodeSynthesize,
		Delta:     delta,
		Timestamp: time.Now().UTC(),
	}
}

// NewResourcesEvent builds a StreamResources event.
func NewResourcesEvent(threadID string, docs []Document) StreamEvent {
	return StreamEvent{
		Type:      StreamResources,
		ThreadID:  threadID,
		Resources: docs,
		Timestamp: time.Now().UTC(),
	}
}

// NewErrorEvent builds a StreamError event.
func NewErrorEvent(threadID string, node Node, ec *ErrorContext) StreamEvent {
	return StreamEvent{
		Type:      StreamError,
		ThreadID:  threadID,
		Node:      node,
		Error:     ec,
		Timestamp: time.Now().UTC(),
	}
}
