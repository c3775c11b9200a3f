package capability

import (
	"context"
	"strings"

	"github.com/stratgov/researchgraph/core"
	"github.com/stratgov/researchgraph/model"
)

// GenerateCapability adapts a model to the capability interface for the
// non-streaming call sites (classification, distillation). Streaming
// synthesis talks to the model directly so partial chunks can flow to the
// caller as they arrive.
type GenerateCapability struct {
	model model.Model
}

// NewGenerateCapability wraps m.
func NewGenerateCapability(m model.Model) *GenerateCapability {
	return &GenerateCapability{model: m}
}

var _ core.Capability = (*GenerateCapability)(nil)

// Name implements core.Capability.
func (c *GenerateCapability) Name() string { return core.CapabilityGenerate }

// Call expects params {"prompt": string, "system": string optional} and
// returns the model's complete text output.
func (c *GenerateCapability) Call(ctx context.Context, params map[string]any) (any, error) {
	prompt, err := stringParam(core.CapabilityGenerate, params, "prompt")
	if err != nil {
		return nil, core.Fatal(core.CapabilityGenerate, err)
	}
	system, _ := params["system"].(string)

	respCh, errCh := c.model.Generate(ctx, model.Request{
		System: system,
		Prompt: prompt,
	})

	var b strings.Builder
	for respCh != nil || errCh != nil {
		select {
		case resp, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			b.WriteString(resp.Text)
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return nil, err
			}
		case <-ctx.Done():
			return nil, core.Transient(core.CapabilityGenerate, ctx.Err())
		}
	}
	return strings.TrimSpace(b.String()), nil
}
