package core

import (
	"context"
	"time"
)

// Capability names understood by the graph executor. Adapters for external
// dependencies register under these names; dispatch is by explicit name
// lookup, never by type inspection.
const (
	CapabilitySearch   = "search"
	CapabilityFetch    = "fetch"
	CapabilityEmbed    = "embed"
	CapabilityGenerate = "generate"
)

// Capability is the uniform invocation interface for one external
// dependency (search API, content fetcher, embedding or language model).
//
// Implementations must be safe for concurrent use and must respect ctx
// cancellation: the executor bounds every call with a deadline, and the
// resilience layer classifies a deadline overrun as retryable.
type Capability interface {
	// Name returns the capability identifier used for registry lookup and
	// for the per-dependency circuit breaker.
	Name() string

	// Call executes the capability with the given parameters. The result
	// shape is capability-specific; helpers in the capability package
	// encode and decode the conventional payloads.
	Call(ctx context.Context, params map[string]any) (any, error)
}

// Invocation records one capability call for trace emission. It is transient:
// scoped to a single call and never persisted.
type Invocation struct {
	Capability string         `json:"capability"`
	Params     map[string]any `json:"params,omitempty"`
	Attempts   int            `json:"attempts"`
	Err        string         `json:"err,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	Duration   time.Duration  `json:"duration"`
}
