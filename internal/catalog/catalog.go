// Package catalog is the external collaborator spec.md §1 calls for: a
// local transactional catalog with per-row created_at/updated_at/deleted
// and AND-semantics tag queries (§6's catalog command surface). It is
// deliberately thin — the core is the coordination layer — but still
// carries a storage idiom rather than a bare map.
//
// Grounded on internal/storage/memory.go's mutex-guarded map + Debug
// logging shape, enriched with a tag index (the reference Resource type
// has no tags at all).
package catalog

import (
	"encoding/json"
	"sort"
	"strconv"
	"sync"
	"time"

	"tagstore-dht/internal/logger"
	"tagstore-dht/internal/replication"
)

// Row is one catalog entry (spec.md §3's "Catalog rows" contract,
// concretized by SPEC_FULL.md §3).
type Row struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	FileType   string    `json:"file_type"`
	Size       int64     `json:"size"`
	UserID     int64     `json:"user_id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Deleted    bool      `json:"deleted"`
	Tags       []string  `json:"tags"`
	ContentRef string    `json:"content_ref,omitempty"`
}

// UserRow answers get_user_id.
type UserRow struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Catalog is a concurrency-safe, in-process catalog with a tag index.
type Catalog struct {
	lgr logger.Logger

	mu     sync.RWMutex
	rows   map[int64]Row
	tagIdx map[string]map[int64]bool
	nextID int64
	users  map[string]int64
	nextU  int64
}

// New returns an empty Catalog.
func New(lgr logger.Logger) *Catalog {
	if lgr == nil {
		lgr = &logger.NopLogger{}
	}
	return &Catalog{
		lgr:    lgr,
		rows:   make(map[int64]Row),
		tagIdx: make(map[string]map[int64]bool),
		users:  make(map[string]int64),
	}
}

// Channel identifies this store to internal/replication.
func (c *Catalog) Channel() string { return "catalog" }

// Add inserts a new row (the "add" verb / Create/add) and returns it
// with an assigned id and timestamps.
func (c *Catalog) Add(row Row) Row {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	row.ID = c.nextID
	now := time.Now()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	row.UpdatedAt = now
	row.Deleted = false

	c.rows[row.ID] = row
	c.indexTagsLocked(row.ID, row.Tags)
	c.lgr.Debug("catalog: row added", logger.F("id", row.ID), logger.F("name", row.Name))
	return row
}

// List returns every non-deleted row matching tagQuery's AND semantics
// (the "list" verb / GetAll/list_files).
func (c *Catalog) List(tagQuery []string) []Row {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []Row
	for _, row := range c.rows {
		if row.Deleted {
			continue
		}
		if c.matchesLocked(row.ID, tagQuery) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Delete soft-deletes every non-deleted row matching tagQuery (the
// "delete" verb / Delete/delete) and returns the affected rows
// post-mutation, so a caller can fan each tombstone out via
// internal/replication without a second locked pass.
func (c *Catalog) Delete(tagQuery []string) []Row {
	c.mu.Lock()
	defer c.mu.Unlock()
	var affected []Row
	now := time.Now()
	for id, row := range c.rows {
		if row.Deleted || !c.matchesLocked(id, tagQuery) {
			continue
		}
		row.Deleted = true
		row.UpdatedAt = now
		c.rows[id] = row
		affected = append(affected, row)
	}
	c.lgr.Debug("catalog: rows deleted", logger.F("count", len(affected)))
	return affected
}

// AddTags adds tags to every row matching tagQuery (the "add_tags" verb
// / Create/add_tags) and returns the affected rows post-mutation.
func (c *Catalog) AddTags(tagQuery, tags []string) []Row {
	c.mu.Lock()
	defer c.mu.Unlock()
	var affected []Row
	now := time.Now()
	for id, row := range c.rows {
		if row.Deleted || !c.matchesLocked(id, tagQuery) {
			continue
		}
		row.Tags = unionTags(row.Tags, tags)
		row.UpdatedAt = now
		c.rows[id] = row
		c.indexTagsLocked(id, tags)
		affected = append(affected, row)
	}
	return affected
}

// DeleteTags removes tags from every row matching tagQuery (the
// "delete_tags" verb / Delete/delete_tags) and returns the affected rows
// post-mutation.
func (c *Catalog) DeleteTags(tagQuery, tags []string) []Row {
	c.mu.Lock()
	defer c.mu.Unlock()
	var affected []Row
	now := time.Now()
	remove := make(map[string]bool, len(tags))
	for _, t := range tags {
		remove[t] = true
	}
	for id, row := range c.rows {
		if row.Deleted || !c.matchesLocked(id, tagQuery) {
			continue
		}
		kept := row.Tags[:0:0]
		for _, t := range row.Tags {
			if !remove[t] {
				kept = append(kept, t)
			} else if set, ok := c.tagIdx[t]; ok {
				delete(set, id)
			}
		}
		row.Tags = kept
		row.UpdatedAt = now
		c.rows[id] = row
		affected = append(affected, row)
	}
	return affected
}

// GetUserID resolves or lazily assigns an integer id for userName (the
// "get_user_id" verb / Get/get_user_id). No prior user directory
// exists; spec.md §6 names the operation without
// describing provisioning, so a first-seen name is assigned the next
// sequential id, matching how Add assigns row ids.
func (c *Catalog) GetUserID(userName string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := c.users[userName]; ok {
		return id
	}
	c.nextU++
	c.users[userName] = c.nextU
	return c.nextU
}

// matchesLocked reports whether row id carries every tag in query.
// Caller must hold c.mu (read or write).
func (c *Catalog) matchesLocked(id int64, query []string) bool {
	for _, t := range query {
		set, ok := c.tagIdx[t]
		if !ok || !set[id] {
			return false
		}
	}
	return true
}

func (c *Catalog) indexTagsLocked(id int64, tags []string) {
	for _, t := range tags {
		set, ok := c.tagIdx[t]
		if !ok {
			set = make(map[int64]bool)
			c.tagIdx[t] = set
		}
		set[id] = true
	}
}

func unionTags(existing, add []string) []string {
	seen := make(map[string]bool, len(existing)+len(add))
	out := make([]string, 0, len(existing)+len(add))
	for _, t := range existing {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, t := range add {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// ---- internal/replication.Source ----

// ListSince returns every row (including tombstones) updated at or
// after the unix-nanosecond timestamp since, encoded as replication.Row.
func (c *Catalog) ListSince(since int64) ([]replication.Row, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []replication.Row
	for id, row := range c.rows {
		if row.UpdatedAt.UnixNano() < since {
			continue
		}
		data, err := json.Marshal(row)
		if err != nil {
			return nil, err
		}
		out = append(out, replication.Row{
			Key:       keyFor(id),
			Data:      data,
			UpdatedAt: row.UpdatedAt.UnixNano(),
			Deleted:   row.Deleted,
		})
	}
	return out, nil
}

// ApplyDelta merges inbound replicated rows, keeping the newer of
// (incoming, local) by last-writer-wins with tombstone dominance.
func (c *Catalog) ApplyDelta(rows []replication.Row) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, rr := range rows {
		var incoming Row
		if err := json.Unmarshal(rr.Data, &incoming); err != nil {
			return err
		}
		if existing, ok := c.rows[incoming.ID]; ok {
			existingRepl := replication.Row{UpdatedAt: existing.UpdatedAt.UnixNano(), Deleted: existing.Deleted}
			if !replication.Newer(rr, existingRepl) {
				continue
			}
		}
		c.rows[incoming.ID] = incoming
		c.indexTagsLocked(incoming.ID, incoming.Tags)
		if incoming.ID > c.nextID {
			c.nextID = incoming.ID
		}
	}
	return nil
}

func keyFor(id int64) string {
	return "row:" + strconv.FormatInt(id, 10)
}

// ToReplicationRow encodes row the same way ListSince does, for a caller
// that just performed a single mutation and wants to fan it out via
// internal/replication.Replicator.PushMutation without waiting for the
// next ListSince poll.
func (c *Catalog) ToReplicationRow(row Row) (replication.Row, error) {
	data, err := json.Marshal(row)
	if err != nil {
		return replication.Row{}, err
	}
	return replication.Row{
		Key:       keyFor(row.ID),
		Data:      data,
		UpdatedAt: row.UpdatedAt.UnixNano(),
		Deleted:   row.Deleted,
	}, nil
}
