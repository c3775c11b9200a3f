package model

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, respCh <-chan Response, errCh <-chan error) (string, []Response) {
	t.Helper()
	var (
		b         strings.Builder
		responses []Response
	)
	for respCh != nil || errCh != nil {
		select {
		case resp, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			responses = append(responses, resp)
			b.WriteString(resp.Text)
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			require.NoError(t, err)
		}
	}
	return b.String(), responses
}

func TestMockModel_NonStreaming(t *testing.T) {
	m := NewMockModel()
	m.AddResponse("hello", "hi there")

	respCh, errCh := m.Generate(context.Background(), Request{Prompt: "hello"})
	text, responses := collect(t, respCh, errCh)

	assert.Equal(t, "hi there", text)
	require.Len(t, responses, 1)
	assert.False(t, responses[0].Partial)
	assert.Equal(t, "stop", responses[0].FinishReason)
}

func TestMockModel_StreamingDeltasThenTerminal(t *testing.T) {
	m := NewMockModel()
	m.AddResponse("q", "one two three")

	respCh, errCh := m.Generate(context.Background(), Request{Prompt: "q", Stream: true})
	text, responses := collect(t, respCh, errCh)

	assert.Equal(t, "one two three", text)
	require.NotEmpty(t, responses)
	last := responses[len(responses)-1]
	assert.False(t, last.Partial)
	assert.Empty(t, last.Text, "terminal streaming response carries no text")
	for _, r := range responses[:len(responses)-1] {
		assert.True(t, r.Partial)
	}
}

func TestMockModel_Error(t *testing.T) {
	m := NewMockModel()
	boom := errors.New("model down")
	m.SetError(boom)

	respCh, errCh := m.Generate(context.Background(), Request{Prompt: "q"})
	for range respCh {
	}
	assert.ErrorIs(t, <-errCh, boom)
}

func TestMockModel_RecordsCalls(t *testing.T) {
	m := NewMockModel()
	_, _ = m.Generate(context.Background(), Request{Prompt: "a", System: "sys"})

	calls := m.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "a", calls[0].Prompt)
	assert.Equal(t, "sys", calls[0].System)
}

func TestMockEmbedder_DeterministicUnitVectors(t *testing.T) {
	e := NewMockEmbedder(8)
	ctx := context.Background()

	v1, err := e.Embed(ctx, "digital policy")
	require.NoError(t, err)
	v2, err := e.Embed(ctx, "digital policy")
	require.NoError(t, err)
	v3, err := e.Embed(ctx, "something else entirely")
	require.NoError(t, err)

	assert.Equal(t, v1, v2, "same input must embed identically")
	assert.NotEqual(t, v1, v3)
	assert.Len(t, v1, 8)

	var norm float64
	for _, v := range v1 {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 1e-5, "embeddings are unit length")
}
