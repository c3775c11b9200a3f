// Package capability implements the adapters between the graph executor and
// its external dependencies: search, content fetch, embedding and text
// generation. Each adapter satisfies core.Capability and is registered by
// name; the executor dispatches by name lookup and wraps every call in the
// resilience layer.
package capability

import (
	"fmt"
	"sort"
	"sync"

	"github.com/stratgov/researchgraph/core"
)

// Error describes a capability failure with a stable code for categorization.
type Error struct {
	Capability string `json:"capability"`
	Message    string `json:"message"`
	Code       string `json:"code"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("capability error [%s] in %s: %s", e.Code, e.Capability, e.Message)
}

// Stable error codes carried by Error.
const (
	CodeMissingParameter = "missing_parameter"
	CodeInvalidParameter = "invalid_parameter"
	CodeHTTPStatus       = "http_status"
)

// Registry holds the registered capabilities by name. Safe for concurrent
// use; registrations normally all happen at construction time.
type Registry struct {
	mu           sync.RWMutex
	capabilities map[string]core.Capability
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{capabilities: make(map[string]core.Capability)}
}

// Register adds a capability, replacing any previous one with the same name.
func (r *Registry) Register(c core.Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capabilities[c.Name()] = c
}

// Get returns the capability registered under name.
func (r *Registry) Get(name string) (core.Capability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.capabilities[name]
	if !ok {
		return nil, fmt.Errorf("capability %q: %w", name, core.ErrNotFound)
	}
	return c, nil
}

// Names returns the registered capability names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.capabilities))
	for name := range r.capabilities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// stringParam extracts a required string parameter from a capability call.
func stringParam(capability string, params map[string]any, key string) (string, error) {
	v, ok := params[key]
	if !ok {
		return "", &Error{
			Capability: capability,
			Code:       CodeMissingParameter,
			Message:    fmt.Sprintf("missing required parameter %q", key),
		}
	}
	s, ok := v.(string)
	if !ok {
		return "", &Error{
			Capability: capability,
			Code:       CodeInvalidParameter,
			Message:    fmt.Sprintf("parameter %q must be a string, got %T", key, v),
		}
	}
	return s, nil
}
