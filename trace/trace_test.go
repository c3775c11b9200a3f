package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratgov/researchgraph/core"
)

// Interface compliance (compile-time assertions)
var (
	_ Emitter = NoOpEmitter{}
	_ Emitter = (*ChannelEmitter)(nil)
)

func TestChannelEmitter_DeliversInOrder(t *testing.T) {
	em := NewChannelEmitter(8)

	em.Emit(Event{ThreadID: "t1", From: core.NodeThink, To: core.NodeSearch})
	em.Emit(Event{ThreadID: "t1", From: core.NodeSearch, To: core.NodeDownload})
	em.Close()

	var got []Event
	for ev := range em.Events() {
		got = append(got, ev)
	}

	require.Len(t, got, 2)
	assert.Equal(t, core.NodeSearch, got[0].To)
	assert.Equal(t, core.NodeDownload, got[1].To)
}

func TestChannelEmitter_DropsWhenFull(t *testing.T) {
	em := NewChannelEmitter(1)

	em.Emit(Event{Note: "kept"})
	// Buffer is full; this must not block.
	done := make(chan struct{})
	go func() {
		em.Emit(Event{Note: "dropped"})
		close(done)
	}()
	<-done

	ev := <-em.Events()
	assert.Equal(t, "kept", ev.Note)

	select {
	case extra := <-em.Events():
		t.Fatalf("expected second event to be dropped, got %q", extra.Note)
	default:
	}
}
