package capability

import (
	"context"

	"github.com/stratgov/researchgraph/core"
	"github.com/stratgov/researchgraph/model"
)

// EmbedCapability adapts an Embedder to the capability interface so the
// executor can vectorize queries and documents through the same resilience
// path as every other dependency.
type EmbedCapability struct {
	embedder model.Embedder
}

// NewEmbedCapability wraps embedder.
func NewEmbedCapability(embedder model.Embedder) *EmbedCapability {
	return &EmbedCapability{embedder: embedder}
}

var _ core.Capability = (*EmbedCapability)(nil)

// Name implements core.Capability.
func (c *EmbedCapability) Name() string { return core.CapabilityEmbed }

// Call expects params {"text": string} and returns the []float32 embedding.
func (c *EmbedCapability) Call(ctx context.Context, params map[string]any) (any, error) {
	text, err := stringParam(core.CapabilityEmbed, params, "text")
	if err != nil {
		return nil, core.Fatal(core.CapabilityEmbed, err)
	}
	return c.embedder.Embed(ctx, text)
}
