package archive

import (
	"sort"
	"sync"
)

// InMemoryStore keeps archived documents in a nested map guarded by an
// RWMutex. Content is copied on save and retrieval so callers cannot mutate
// internal buffers.
//
// Layout: threadID -> documentID -> raw bytes
//
// It enforces no retention limits or size quotas; for deployments that
// outlive a process, prefer a durable backend.
type InMemoryStore struct {
	mu        sync.RWMutex
	documents map[string]map[string][]byte
}

// NewInMemoryStore returns an empty in-memory archive.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{documents: make(map[string]map[string][]byte)}
}

var _ Store = (*InMemoryStore)(nil)

// Save implements Store. The input slice is copied before storage.
func (s *InMemoryStore) Save(threadID, documentID string, content []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[threadID]; !ok {
		s.documents[threadID] = make(map[string][]byte)
	}
	cp := make([]byte, len(content))
	copy(cp, content)
	s.documents[threadID][documentID] = cp
	return nil
}

// Get implements Store.
func (s *InMemoryStore) Get(threadID, documentID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.documents[threadID]
	if !ok {
		return nil, ErrNotFound
	}
	content, ok := m[documentID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(content))
	copy(cp, content)
	return cp, nil
}

// List implements Store. Ids come back sorted for deterministic iteration.
func (s *InMemoryStore) List(threadID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.documents[threadID]
	if !ok {
		return []string{}, nil
	}
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete implements Store.
func (s *InMemoryStore) Delete(threadID, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.documents[threadID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := m[documentID]; !ok {
		return ErrNotFound
	}
	delete(m, documentID)
	return nil
}

// DeleteThread implements Store.
func (s *InMemoryStore) DeleteThread(threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.documents, threadID)
	return nil
}
