// Package vector provides the similarity index over fetched documents. It
// wraps an in-process chromem-go collection with an append-only deletion
// model: removed documents are tombstoned and filtered from query results
// rather than compacted out of the index.
package vector

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/philippgille/chromem-go"

	"github.com/stratgov/researchgraph/core"
	"github.com/stratgov/researchgraph/logging"
)

// Config tunes the document index.
type Config struct {
	// CollectionName names the underlying collection. Default "documents".
	CollectionName string

	// Logger receives index diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Store indexes document embeddings and answers nearest-neighbour queries by
// cosine similarity. Safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	collection *chromem.Collection
	tombstones map[string]struct{}
	fetchedAt  map[string]time.Time
	logger     logging.Logger
}

// New creates an empty in-process document index.
func New(cfg Config) (*Store, error) {
	if cfg.CollectionName == "" {
		cfg.CollectionName = "documents"
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NoOpLogger{}
	}

	// Embeddings are always supplied by the caller; the collection-level
	// embedding func must never run.
	noEmbed := func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("vector: store requires precomputed embeddings")
	}
	collection, err := chromem.NewDB().CreateCollection(cfg.CollectionName, nil, noEmbed)
	if err != nil {
		return nil, err
	}

	return &Store{
		collection: collection,
		tombstones: make(map[string]struct{}),
		fetchedAt:  make(map[string]time.Time),
		logger:     cfg.Logger,
	}, nil
}

// Upsert adds or replaces a document in the index. The document must carry a
// non-empty embedding. Upserting a previously deleted ID makes it live again.
func (s *Store) Upsert(ctx context.Context, doc core.Document) error {
	if doc.ID == "" {
		return errors.New("vector: document ID must not be empty")
	}
	if len(doc.Embedding) == 0 {
		return errors.New("vector: document embedding must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.collection.AddDocument(ctx, chromem.Document{
		ID:        doc.ID,
		Embedding: doc.Embedding,
		Content:   doc.Content,
		Metadata: map[string]string{
			"url":        doc.URL,
			"title":      doc.Title,
			"fetched_at": doc.FetchedAt.UTC().Format(time.RFC3339Nano),
		},
	})
	if err != nil {
		return err
	}

	delete(s.tombstones, doc.ID)
	s.fetchedAt[doc.ID] = doc.FetchedAt
	s.logger.Debug("indexed document", "id", doc.ID, "url", doc.URL)
	return nil
}

// Delete tombstones a document. The underlying index keeps the record; it is
// simply excluded from every subsequent query. Deleting an unknown or
// already-deleted ID is a no-op.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.fetchedAt[id]; !ok {
		return
	}
	s.tombstones[id] = struct{}{}
	s.logger.Debug("tombstoned document", "id", id)
}

// Len reports the number of live (non-tombstoned) documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.fetchedAt) - len(s.tombstones)
}

// Query returns up to k live documents ranked by cosine similarity to the
// query embedding, highest first. Equal scores order by most recent fetch
// time. An empty index yields an empty slice, not an error.
func (s *Store) Query(ctx context.Context, embedding []float32, k int) ([]core.ScoredDocument, error) {
	if k <= 0 {
		return []core.ScoredDocument{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	total := s.collection.Count()
	if total == 0 || len(s.fetchedAt)-len(s.tombstones) == 0 {
		return []core.ScoredDocument{}, nil
	}

	// Over-fetch to compensate for tombstoned records, clamped to the
	// collection size as the library requires.
	n := k + len(s.tombstones)
	if n > total {
		n = total
	}

	results, err := s.collection.QueryEmbedding(ctx, embedding, n, nil, nil)
	if err != nil {
		return nil, err
	}

	scored := make([]core.ScoredDocument, 0, len(results))
	for _, r := range results {
		if _, dead := s.tombstones[r.ID]; dead {
			continue
		}
		scored = append(scored, core.ScoredDocument{
			Document: core.Document{
				ID:        r.ID,
				Title:     r.Metadata["title"],
				URL:       r.Metadata["url"],
				Content:   r.Content,
				FetchedAt: s.fetchedAt[r.ID],
				Embedding: r.Embedding,
			},
			Similarity: float64(r.Similarity),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Similarity != scored[j].Similarity {
			return scored[i].Similarity > scored[j].Similarity
		}
		return scored[i].Document.FetchedAt.After(scored[j].Document.FetchedAt)
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}
