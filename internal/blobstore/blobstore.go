// Package blobstore is the local content-blob collaborator spec.md §1
// and §6 call for: file bytes are written under CONTENT_PATH keyed by
// "<name>.<file_type>", with an idempotent write-then-rename so a
// crash mid-write never leaves a partial file visible under its final
// name.
//
// Grounded on the same mutex-guarded-map idiom as internal/storage's
// memory.go, generalized from an in-memory KV to a local directory
// since blob content has no natural in-process home.
package blobstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"tagstore-dht/internal/logger"
	"tagstore-dht/internal/replication"
)

// Entry is one blob's bookkeeping record (its content lives in a
// sibling file on disk; ListSince/ApplyDelta ship the bytes inline as
// part of the replicated Row so a newly-responsible node ends up with
// the content, not just its metadata).
type Entry struct {
	Key       string    `json:"key"`
	UpdatedAt time.Time `json:"updated_at"`
	Deleted   bool      `json:"deleted"`
}

type deltaPayload struct {
	Entry   Entry  `json:"entry"`
	Content []byte `json:"content,omitempty"`
}

// Store is a directory-backed blob store with an in-memory index of
// what it currently holds.
type Store struct {
	root string
	lgr  logger.Logger

	mu      sync.RWMutex
	entries map[string]Entry
}

// New opens (creating if absent) a blob store rooted at dir.
func New(dir string, lgr logger.Logger) (*Store, error) {
	if lgr == nil {
		lgr = &logger.NopLogger{}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: create content dir: %w", err)
	}
	return &Store{root: dir, lgr: lgr, entries: make(map[string]Entry)}, nil
}

// Channel identifies this store to internal/replication.
func (s *Store) Channel() string { return "blob" }

// key builds the on-disk file name spec.md §6 specifies: "<name>.<file_type>".
func key(name, fileType string) string {
	if fileType == "" {
		return name
	}
	return name + "." + fileType
}

// Write stores content under name.fileType, writing to a temp file in
// the same directory and renaming into place so a reader never
// observes a partially-written blob (the "idempotent write-then-rename"
// SPEC_FULL.md calls for).
func (s *Store) Write(name, fileType string, content []byte) error {
	k := key(name, fileType)
	final := filepath.Join(s.root, k)
	tmp := final + ".tmp"

	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return fmt.Errorf("blobstore: write temp file: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("blobstore: rename into place: %w", err)
	}

	s.mu.Lock()
	s.entries[k] = Entry{Key: k, UpdatedAt: time.Now()}
	s.mu.Unlock()
	s.lgr.Debug("blobstore: wrote blob", logger.F("key", k), logger.F("bytes", len(content)))
	return nil
}

// Read returns the bytes stored under name.fileType.
func (s *Store) Read(name, fileType string) ([]byte, error) {
	k := key(name, fileType)
	s.mu.RLock()
	entry, ok := s.entries[k]
	s.mu.RUnlock()
	if !ok || entry.Deleted {
		return nil, os.ErrNotExist
	}
	return os.ReadFile(filepath.Join(s.root, k))
}

// Delete tombstones name.fileType. The bytes on disk are left in place
// — compaction/garbage-collection of deleted content is an explicit
// spec.md non-goal — only the index entry is marked deleted so Read
// and replication treat it as gone.
func (s *Store) Delete(name, fileType string) error {
	k := key(name, fileType)
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[k]
	if !ok {
		entry = Entry{Key: k}
	}
	entry.Deleted = true
	entry.UpdatedAt = time.Now()
	s.entries[k] = entry
	return nil
}

// ---- internal/replication.Source ----

func (s *Store) ListSince(since int64) ([]replication.Row, error) {
	s.mu.RLock()
	snapshot := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if e.UpdatedAt.UnixNano() >= since {
			snapshot = append(snapshot, e)
		}
	}
	s.mu.RUnlock()

	out := make([]replication.Row, 0, len(snapshot))
	for _, e := range snapshot {
		var content []byte
		if !e.Deleted {
			raw, err := os.ReadFile(filepath.Join(s.root, e.Key))
			if err != nil {
				return nil, fmt.Errorf("blobstore: read %s for replication: %w", e.Key, err)
			}
			content = raw
		}
		data, err := json.Marshal(deltaPayload{Entry: e, Content: content})
		if err != nil {
			return nil, err
		}
		out = append(out, replication.Row{
			Key:       e.Key,
			Data:      data,
			UpdatedAt: e.UpdatedAt.UnixNano(),
			Deleted:   e.Deleted,
		})
	}
	return out, nil
}

// ToReplicationRow encodes the current entry for name.fileType the same
// way ListSince does, for a caller that just performed a single Write or
// Delete and wants to fan it out immediately via
// internal/replication.Replicator.PushMutation.
func (s *Store) ToReplicationRow(name, fileType string) (replication.Row, error) {
	k := key(name, fileType)
	s.mu.RLock()
	e, ok := s.entries[k]
	s.mu.RUnlock()
	if !ok {
		return replication.Row{}, fmt.Errorf("blobstore: no entry for %s", k)
	}

	var content []byte
	if !e.Deleted {
		raw, err := os.ReadFile(filepath.Join(s.root, k))
		if err != nil {
			return replication.Row{}, fmt.Errorf("blobstore: read %s for replication: %w", k, err)
		}
		content = raw
	}
	data, err := json.Marshal(deltaPayload{Entry: e, Content: content})
	if err != nil {
		return replication.Row{}, err
	}
	return replication.Row{Key: k, Data: data, UpdatedAt: e.UpdatedAt.UnixNano(), Deleted: e.Deleted}, nil
}

func (s *Store) ApplyDelta(rows []replication.Row) error {
	for _, rr := range rows {
		var payload deltaPayload
		if err := json.Unmarshal(rr.Data, &payload); err != nil {
			return err
		}

		s.mu.Lock()
		existing, ok := s.entries[payload.Entry.Key]
		s.mu.Unlock()
		if ok {
			existingRepl := replication.Row{UpdatedAt: existing.UpdatedAt.UnixNano(), Deleted: existing.Deleted}
			if !replication.Newer(rr, existingRepl) {
				continue
			}
		}

		if !payload.Entry.Deleted {
			final := filepath.Join(s.root, payload.Entry.Key)
			tmp := final + ".tmp"
			if err := os.WriteFile(tmp, payload.Content, 0o644); err != nil {
				return fmt.Errorf("blobstore: apply delta write: %w", err)
			}
			if err := os.Rename(tmp, final); err != nil {
				os.Remove(tmp)
				return fmt.Errorf("blobstore: apply delta rename: %w", err)
			}
		}

		s.mu.Lock()
		s.entries[payload.Entry.Key] = payload.Entry
		s.mu.Unlock()
	}
	return nil
}
