package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/stratgov/researchgraph/core"
	"github.com/stratgov/researchgraph/logging"
)

// DefaultRetention is how long a checkpoint record survives before the sweep
// removes it.
const DefaultRetention = 7 * 24 * time.Hour

// Config tunes the checkpoint manager.
type Config struct {
	// Store is the backing CheckpointStore. Defaults to NewInMemoryStore().
	Store core.CheckpointStore

	// Retention is the lifetime of each record. Default DefaultRetention.
	Retention time.Duration

	// Logger receives checkpoint and sweep diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger

	// now overrides the clock in tests.
	now func() time.Time
}

// Manager checkpoints conversation state between turns and enforces the
// retention policy. One current record per thread (the most recent) plus an
// append-only history live in the configured store.
type Manager struct {
	store     core.CheckpointStore
	retention time.Duration
	logger    logging.Logger
	now       func() time.Time
}

// NewManager creates a checkpoint manager with the given configuration.
func NewManager(cfg Config) *Manager {
	if cfg.Store == nil {
		cfg.Store = NewInMemoryStore()
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NoOpLogger{}
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	return &Manager{
		store:     cfg.Store,
		retention: cfg.Retention,
		logger:    cfg.Logger,
		now:       cfg.now,
	}
}

// Checkpoint snapshots the state into a new record and persists it. The
// record carries an expiry derived from the retention window. The state is
// cloned, so the caller may keep mutating its copy afterwards.
func (m *Manager) Checkpoint(ctx context.Context, state *core.ConversationState) (*core.CheckpointRecord, error) {
	now := m.now().UTC()
	rec := &core.CheckpointRecord{
		ID:        uuid.NewString(),
		ThreadID:  state.ThreadID,
		CreatedAt: now,
		Expiry:    now.Add(m.retention),
		State:     state.Clone(),
	}
	if err := m.store.Save(ctx, rec); err != nil {
		return nil, err
	}
	m.logger.Debug("checkpointed thread", "thread_id", state.ThreadID, "checkpoint_id", rec.ID)
	return rec, nil
}

// Restore returns the latest persisted state for the thread, or (nil, nil)
// when the thread has no checkpoint yet.
func (m *Manager) Restore(ctx context.Context, threadID string) (*core.ConversationState, error) {
	rec, err := m.store.Latest(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.State == nil {
		return nil, nil
	}
	return rec.State.Clone(), nil
}

// History returns the thread's checkpoint records, oldest first.
func (m *Manager) History(ctx context.Context, threadID string) ([]*core.CheckpointRecord, error) {
	return m.store.List(ctx, threadID)
}

// Forget removes every record for the thread.
func (m *Manager) Forget(ctx context.Context, threadID string) error {
	return m.store.DeleteThread(ctx, threadID)
}

// Sweep removes expired records now. A sweep error leaves all data in place.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	removed, err := m.store.Sweep(ctx, m.now().UTC())
	if err != nil {
		m.logger.Error("retention sweep failed, no records removed beyond reported count", "removed", removed, "error", err)
		return removed, err
	}
	if removed > 0 {
		m.logger.Info("retention sweep completed", "removed", removed)
	}
	return removed, nil
}

// RunSweeper sweeps on the given interval until ctx is cancelled. Sweep
// failures are logged and the loop continues; the next tick retries.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := m.Sweep(ctx); err != nil {
				continue
			}
		}
	}
}
