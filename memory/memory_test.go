package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratgov/researchgraph/core"
)

func testState(threadID string) *core.ConversationState {
	state := core.NewConversationState(threadID)
	state.AddMessage("user", "what are the latest digital policy trends?")
	state.Query = "digital policy trends"
	state.Iterations = 2
	state.AddInsight(core.CondensedInsight{DocumentID: "d1", Title: "report", Findings: "finding one"})
	return state
}

// storeUnderTest runs the CheckpointStore contract against both
// implementations.
func storesUnderTest(t *testing.T) map[string]core.CheckpointStore {
	t.Helper()
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return map[string]core.CheckpointStore{
		"in_memory": NewInMemoryStore(),
		"file":      fs,
	}
}

func TestStore_RoundTrip(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			state := testState("t1")
			rec := &core.CheckpointRecord{
				ID:        "c1",
				ThreadID:  "t1",
				CreatedAt: time.Now().UTC(),
				Expiry:    time.Now().Add(time.Hour).UTC(),
				State:     state,
			}
			require.NoError(t, store.Save(ctx, rec))

			got, err := store.Latest(ctx, "t1")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, "c1", got.ID)
			assert.Equal(t, state.Query, got.State.Query)
			assert.Equal(t, state.Iterations, got.State.Iterations)
			assert.Equal(t, state.Messages[0].Content, got.State.Messages[0].Content)
			assert.Equal(t, state.Insights[0].Findings, got.State.Insights[0].Findings)
		})
	}
}

func TestStore_LatestUnknownThreadIsNilNil(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			got, err := store.Latest(context.Background(), "never-seen")
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestStore_ListOldestFirst(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i, id := range []string{"c1", "c2", "c3"} {
				rec := &core.CheckpointRecord{
					ID:        id,
					ThreadID:  "t1",
					CreatedAt: time.Now().Add(time.Duration(i) * time.Second),
					Expiry:    time.Now().Add(time.Hour),
					State:     testState("t1"),
				}
				require.NoError(t, store.Save(ctx, rec))
			}

			history, err := store.List(ctx, "t1")
			require.NoError(t, err)
			require.Len(t, history, 3)
			assert.Equal(t, "c1", history[0].ID)
			assert.Equal(t, "c3", history[2].ID)

			latest, err := store.Latest(ctx, "t1")
			require.NoError(t, err)
			assert.Equal(t, "c3", latest.ID)
		})
	}
}

func TestStore_DeleteThread(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.Save(ctx, &core.CheckpointRecord{
				ID: "c1", ThreadID: "t1", Expiry: time.Now().Add(time.Hour), State: testState("t1"),
			}))

			require.NoError(t, store.DeleteThread(ctx, "t1"))
			// Deleting again is fine.
			require.NoError(t, store.DeleteThread(ctx, "t1"))

			got, err := store.Latest(ctx, "t1")
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestStore_SweepRemovesOnlyExpired(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Now().UTC()
			require.NoError(t, store.Save(ctx, &core.CheckpointRecord{
				ID: "expired", ThreadID: "t1", Expiry: now.Add(-time.Minute), State: testState("t1"),
			}))
			require.NoError(t, store.Save(ctx, &core.CheckpointRecord{
				ID: "live", ThreadID: "t1", Expiry: now.Add(time.Hour), State: testState("t1"),
			}))

			removed, err := store.Sweep(ctx, now)
			require.NoError(t, err)
			assert.Equal(t, 1, removed)

			history, err := store.List(ctx, "t1")
			require.NoError(t, err)
			require.Len(t, history, 1)
			assert.Equal(t, "live", history[0].ID)
		})
	}
}

func TestFileStore_SweepFailsClosedOnCorruptFile(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &core.CheckpointRecord{
		ID: "expired", ThreadID: "t1", Expiry: time.Now().Add(-time.Minute), State: testState("t1"),
	}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "garbage.json"), []byte("{not json"), 0o644))

	removed, err := store.Sweep(ctx, time.Now())
	require.Error(t, err, "an undecodable file must abort the sweep")
	assert.Zero(t, removed)

	// The expired record survived the failed sweep.
	history, err := store.List(ctx, "t1")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, first.Save(ctx, &core.CheckpointRecord{
		ID: "c1", ThreadID: "t1", Expiry: time.Now().Add(time.Hour), State: testState("t1"),
	}))

	second, err := NewFileStore(dir)
	require.NoError(t, err)
	got, err := second.Latest(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "c1", got.ID)
}

func TestManager_CheckpointAndRestore(t *testing.T) {
	m := NewManager(Config{})
	ctx := context.Background()
	state := testState("t1")

	rec, err := m.Checkpoint(ctx, state)
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "t1", rec.ThreadID)
	assert.True(t, rec.Expiry.After(rec.CreatedAt))

	// Mutating the original after checkpointing must not affect the snapshot.
	state.Query = "mutated"

	restored, err := m.Restore(ctx, "t1")
	require.NoError(t, err)
	require.NotNil(t, restored)
	assert.Equal(t, "digital policy trends", restored.Query)
}

func TestManager_RestoreUnknownThreadIsNilNil(t *testing.T) {
	m := NewManager(Config{})
	restored, err := m.Restore(context.Background(), "fresh")
	require.NoError(t, err)
	assert.Nil(t, restored)
}

func TestManager_SweepHonoursRetention(t *testing.T) {
	base := time.Now().UTC()
	clock := base
	m := NewManager(Config{
		Retention: time.Hour,
		now:       func() time.Time { return clock },
	})
	ctx := context.Background()

	_, err := m.Checkpoint(ctx, testState("t1"))
	require.NoError(t, err)

	// Within retention: nothing removed.
	removed, err := m.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)

	// Past retention: the record goes.
	clock = base.Add(2 * time.Hour)
	removed, err = m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	restored, err := m.Restore(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, restored)
}

func TestManager_Forget(t *testing.T) {
	m := NewManager(Config{})
	ctx := context.Background()

	_, err := m.Checkpoint(ctx, testState("t1"))
	require.NoError(t, err)
	require.NoError(t, m.Forget(ctx, "t1"))

	restored, err := m.Restore(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, restored)
}
