package core

import (
	"context"
	"time"
)

// CheckpointRecord is a durable snapshot of one thread's conversation state.
// Records are created on each successful turn and superseded, never mutated,
// by the next checkpoint. The retention sweep removes records past Expiry.
type CheckpointRecord struct {
	ID        string             `json:"id"`
	ThreadID  string             `json:"thread_id"`
	CreatedAt time.Time          `json:"created_at"`
	Expiry    time.Time          `json:"expiry"`
	State     *ConversationState `json:"state"`
}

// CheckpointStore persists checkpoint records keyed by thread id: one current
// record per thread plus an append-only history.
//
// Contract:
//   - Latest immediately after Save returns a state equivalent to the saved
//     one (round-trip law).
//   - Latest returns (nil, nil) when the thread has no checkpoint.
//   - List returns records in creation order, oldest first.
//   - Sweep removes only records whose Expiry has passed; a failed sweep must
//     not delete or corrupt anything (fail closed).
type CheckpointStore interface {
	Save(ctx context.Context, rec *CheckpointRecord) error
	Latest(ctx context.Context, threadID string) (*CheckpointRecord, error)
	List(ctx context.Context, threadID string) ([]*CheckpointRecord, error)
	DeleteThread(ctx context.Context, threadID string) error
	Sweep(ctx context.Context, now time.Time) (removed int, err error)
}
