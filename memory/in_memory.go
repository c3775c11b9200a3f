package memory

import (
	"context"
	"sync"
	"time"

	"github.com/stratgov/researchgraph/core"
)

// InMemoryStore is a volatile CheckpointStore keeping records in a process
// local map. It is safe for concurrent access and best suited for tests or
// ephemeral demo runs. Records are cloned on both save and read so callers
// cannot mutate internal state.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string][]*core.CheckpointRecord // threadID -> history, oldest first
}

// NewInMemoryStore constructs an empty in-memory checkpoint store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string][]*core.CheckpointRecord)}
}

var _ core.CheckpointStore = (*InMemoryStore)(nil)

// Save appends a clone of the record to the thread's history.
func (s *InMemoryStore) Save(_ context.Context, rec *core.CheckpointRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ThreadID] = append(s.records[rec.ThreadID], cloneRecord(rec))
	return nil
}

// Latest returns the most recent record for the thread, or (nil, nil) when
// the thread has never been checkpointed.
func (s *InMemoryStore) Latest(_ context.Context, threadID string) (*core.CheckpointRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.records[threadID]
	if len(history) == 0 {
		return nil, nil
	}
	return cloneRecord(history[len(history)-1]), nil
}

// List returns the thread's full history in creation order, oldest first.
func (s *InMemoryStore) List(_ context.Context, threadID string) ([]*core.CheckpointRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.records[threadID]
	out := make([]*core.CheckpointRecord, len(history))
	for i, rec := range history {
		out[i] = cloneRecord(rec)
	}
	return out, nil
}

// DeleteThread removes all records for the thread.
func (s *InMemoryStore) DeleteThread(_ context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, threadID)
	return nil
}

// Sweep removes records whose Expiry has passed and reports how many were
// removed. Threads whose entire history expired are dropped from the map.
func (s *InMemoryStore) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for threadID, history := range s.records {
		kept := history[:0]
		for _, rec := range history {
			if rec.Expiry.After(now) {
				kept = append(kept, rec)
			} else {
				removed++
			}
		}
		if len(kept) == 0 {
			delete(s.records, threadID)
		} else {
			s.records[threadID] = kept
		}
	}
	return removed, nil
}

func cloneRecord(rec *core.CheckpointRecord) *core.CheckpointRecord {
	clone := *rec
	if rec.State != nil {
		clone.State = rec.State.Clone()
	}
	return &clone
}
