package graph

import (
	"sort"

	"github.com/gekko3d/rangesim/core"
	"github.com/gekko3d/rangesim/gpu"
)

type cacheEntry struct {
	buf *gpu.BufferPair
	gen uint64
}

// CacheManager is a per-node store of derived field buffers with
// generation-based staleness. Trigger advances the tick, marking every
// entry potentially stale; SetUpdated stamps one entry current again.
// The manager never allocates: callers insert buffers they own.
type CacheManager struct {
	gen     uint64
	entries map[core.Field]*cacheEntry
}

func NewCacheManager() *CacheManager {
	return &CacheManager{
		gen:     1,
		entries: make(map[core.Field]*cacheEntry),
	}
}

func (c *CacheManager) Contains(f core.Field) bool {
	_, ok := c.entries[f]
	return ok
}

// Insert stores buf under f. With markStale set the entry starts one tick
// behind, forcing a recomputation before first use.
func (c *CacheManager) Insert(f core.Field, buf *gpu.BufferPair, markStale bool) {
	e := &cacheEntry{buf: buf, gen: c.gen}
	if markStale {
		e.gen = c.gen - 1
	}
	c.entries[f] = e
}

// IsLatest reports whether f's entry is current for this tick. Absent
// entries are never latest.
func (c *CacheManager) IsLatest(f core.Field) bool {
	e, ok := c.entries[f]
	return ok && e.gen == c.gen
}

// Value returns the buffer stored under f, nil if absent.
func (c *CacheManager) Value(f core.Field) *gpu.BufferPair {
	if e, ok := c.entries[f]; ok {
		return e.buf
	}
	return nil
}

func (c *CacheManager) SetUpdated(f core.Field) {
	if e, ok := c.entries[f]; ok {
		e.gen = c.gen
	}
}

// Trigger advances the tick counter. Together with SetUpdated this
// guarantees at most one recomputation per field per tick.
func (c *CacheManager) Trigger() { c.gen++ }

// Clear drops every entry and releases the buffers. Used when the node's
// entire produced-field set may have changed; a stale buffer must never be
// reused even if the field kind nominally matches.
func (c *CacheManager) Clear() {
	for _, e := range c.entries {
		e.buf.Release()
	}
	c.entries = make(map[core.Field]*cacheEntry)
}

// Keys returns the cached field kinds in stable order.
func (c *CacheManager) Keys() []core.Field {
	out := make([]core.Field, 0, len(c.entries))
	for f := range c.entries {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
