package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/stratgov/researchgraph/core"
)

// FileStore is a CheckpointStore persisting each thread's history as a JSON
// file under a directory. Writes go through a temp file and rename so a crash
// mid-write never corrupts an existing snapshot. Thread ids are hashed into
// file names, so any id is safe regardless of characters.
type FileStore struct {
	mu  sync.Mutex
	dir string
}

// NewFileStore creates the directory if needed and returns a store over it.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("memory: create checkpoint dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

var _ core.CheckpointStore = (*FileStore)(nil)

func (s *FileStore) path(threadID string) string {
	sum := sha256.Sum256([]byte(threadID))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:16])+".json")
}

// threadFile is the on-disk layout: the raw thread id plus its history. The
// id is stored because file names are hashes and Sweep needs to scan blind.
type threadFile struct {
	ThreadID string                   `json:"thread_id"`
	Records  []*core.CheckpointRecord `json:"records"`
}

func (s *FileStore) load(path string) (*threadFile, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("memory: read checkpoint file: %w", err)
	}
	var tf threadFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("memory: decode checkpoint file %s: %w", filepath.Base(path), err)
	}
	return &tf, nil
}

func (s *FileStore) write(path string, tf *threadFile) error {
	data, err := json.MarshalIndent(tf, "", "  ")
	if err != nil {
		return fmt.Errorf("memory: encode checkpoint file: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("memory: write checkpoint file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("memory: replace checkpoint file: %w", err)
	}
	return nil
}

// Save appends the record to the thread's history file.
func (s *FileStore) Save(_ context.Context, rec *core.CheckpointRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(rec.ThreadID)
	tf, err := s.load(path)
	if err != nil {
		return err
	}
	if tf == nil {
		tf = &threadFile{ThreadID: rec.ThreadID}
	}
	tf.Records = append(tf.Records, cloneRecord(rec))
	return s.write(path, tf)
}

// Latest returns the most recent record for the thread, or (nil, nil) when
// the thread has never been checkpointed.
func (s *FileStore) Latest(_ context.Context, threadID string) (*core.CheckpointRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tf, err := s.load(s.path(threadID))
	if err != nil {
		return nil, err
	}
	if tf == nil || len(tf.Records) == 0 {
		return nil, nil
	}
	return tf.Records[len(tf.Records)-1], nil
}

// List returns the thread's history in creation order, oldest first.
func (s *FileStore) List(_ context.Context, threadID string) ([]*core.CheckpointRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tf, err := s.load(s.path(threadID))
	if err != nil {
		return nil, err
	}
	if tf == nil {
		return nil, nil
	}
	return tf.Records, nil
}

// DeleteThread removes the thread's history file, if present.
func (s *FileStore) DeleteThread(_ context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(threadID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("memory: delete checkpoint file: %w", err)
	}
	return nil
}

// Sweep scans every thread file and removes records whose Expiry has passed.
// It fails closed: an unreadable or undecodable file aborts the sweep with an
// error before anything is deleted, so a sweep failure never loses data.
func (s *FileStore) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	paths, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return 0, fmt.Errorf("memory: scan checkpoint dir: %w", err)
	}

	// Phase one: load and partition everything. Any failure aborts here,
	// before any file is touched.
	type pending struct {
		path string
		tf   *threadFile
		drop int
	}
	var work []pending
	for _, path := range paths {
		tf, err := s.load(path)
		if err != nil {
			return 0, err
		}
		if tf == nil {
			continue
		}
		kept := make([]*core.CheckpointRecord, 0, len(tf.Records))
		for _, rec := range tf.Records {
			if rec.Expiry.After(now) {
				kept = append(kept, rec)
			}
		}
		drop := len(tf.Records) - len(kept)
		if drop == 0 {
			continue
		}
		tf.Records = kept
		work = append(work, pending{path: path, tf: tf, drop: drop})
	}

	// Phase two: apply.
	removed := 0
	for _, p := range work {
		if len(p.tf.Records) == 0 {
			if err := os.Remove(p.path); err != nil {
				return removed, fmt.Errorf("memory: sweep remove: %w", err)
			}
		} else {
			if err := s.write(p.path, p.tf); err != nil {
				return removed, err
			}
		}
		removed += p.drop
	}
	return removed, nil
}
