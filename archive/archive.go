// Package archive stores the raw content of fetched documents, keyed by
// thread and document id. The vector index keeps only embeddings and
// metadata; the archive keeps the full text so a document can be re-read
// after its condensed findings were extracted, without refetching.
//
// Callers should depend on the Store interface rather than a concrete type
// so the backend can be swapped between tests and production.
package archive

import "fmt"

// ErrNotFound is returned when no document exists for the given thread and
// id pair.
var ErrNotFound = fmt.Errorf("archive: document not found")

// Store persists raw document content per thread.
type Store interface {
	// Save stores (or overwrites) the content for the given thread and
	// document id.
	Save(threadID, documentID string, content []byte) error
	// Get returns the stored content or ErrNotFound.
	Get(threadID, documentID string) ([]byte, error)
	// List returns the document ids archived for the thread.
	List(threadID string) ([]string, error)
	// Delete removes one document, or ErrNotFound when absent.
	Delete(threadID, documentID string) error
	// DeleteThread removes everything archived for the thread. Unknown
	// threads are a no-op.
	DeleteThread(threadID string) error
}
