// Package model defines the language model and embedding interfaces the
// workflow drives, with adapters for OpenAI and Anthropic in subpackages and
// deterministic mocks for tests.
package model

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
)

// Request is the normalized model input. Prompt carries the user-facing
// content; System carries standing instructions.
type Request struct {
	System    string `json:"system,omitempty"`
	Prompt    string `json:"prompt"`
	MaxTokens int64  `json:"max_tokens,omitempty"`
	Stream    bool   `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a model.
//
// Contract:
//   - Streaming requests emit deltas with Partial=true carrying only the new
//     text, then one terminal response with Partial=false and empty Text.
//   - Non-streaming requests emit a single response with Partial=false
//     carrying the full text.
type Response struct {
	Text         string      `json:"text"`
	Partial      bool        `json:"partial"`
	FinishReason string      `json:"finish_reason,omitempty"`
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock"
}

// Model is the minimal interface required to drive generation. Generate
// returns its channels immediately and closes both when done; errors arrive
// on the error channel and terminate the stream.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// Embedder produces fixed-dimension vectors for text. Implementations must
// return the same dimension for every input.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Info() Info
}

// MockModel is a lightweight in-memory Model for tests and examples.
// Responses are canned by exact prompt; unregistered prompts get a generic
// echo.
type MockModel struct {
	mu        sync.Mutex
	info      Info
	responses map[string]string
	err       error
	calls     []Request
}

// NewMockModel constructs an empty mock model.
func NewMockModel() *MockModel {
	return &MockModel{
		info:      Info{Name: "mock", Provider: "mock"},
		responses: make(map[string]string),
	}
}

var _ Model = (*MockModel)(nil)

// AddResponse registers a deterministic canned completion for a prompt.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// SetError makes every subsequent Generate call fail with err.
func (m *MockModel) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns the requests seen so far, in order.
func (m *MockModel) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}

// Generate implements Model; emits optional streaming word chunks then the
// terminal response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	m.mu.Lock()
	m.calls = append(m.calls, req)
	full, ok := m.responses[req.Prompt]
	err := m.err
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)
		if err != nil {
			errCh <- err
			return
		}
		if !ok {
			full = fmt.Sprintf("Mock response to: %s", req.Prompt)
		}
		if !req.Stream {
			respCh <- Response{Text: full, Partial: false, FinishReason: "stop"}
			return
		}
		for _, word := range strings.SplitAfter(full, " ") {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case respCh <- Response{Text: word, Partial: true}:
			}
		}
		respCh <- Response{Partial: false, FinishReason: "stop"}
	}()
	return respCh, errCh
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }

// MockEmbedder produces deterministic pseudo-embeddings derived from the
// input text. Identical inputs embed identically, different inputs almost
// always differ, and every vector is unit length, which keeps cosine
// similarity well defined in tests.
type MockEmbedder struct {
	dim int
	err error
	mu  sync.Mutex
}

// NewMockEmbedder constructs a mock embedder with the given dimension
// (default 8 when non-positive).
func NewMockEmbedder(dim int) *MockEmbedder {
	if dim <= 0 {
		dim = 8
	}
	return &MockEmbedder{dim: dim}
}

var _ Embedder = (*MockEmbedder)(nil)

// SetError makes every subsequent Embed call fail with err.
func (e *MockEmbedder) SetError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

// Embed implements Embedder.
func (e *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	err := e.err
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	vec := make([]float32, e.dim)
	h := fnv.New64a()
	for i := range vec {
		h.Write([]byte(text))
		h.Write([]byte{byte(i)})
		// Map the hash into [-1, 1).
		vec[i] = float32(int64(h.Sum64())%1000) / 500.0
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		vec[0] = 1
		return vec, nil
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec, nil
}

// Info implements Embedder.
func (e *MockEmbedder) Info() Info { return Info{Name: "mock-embedder", Provider: "mock"} }
