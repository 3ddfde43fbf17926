// Package tucache owns the live parsed translation units, one entry per
// file identity, and decides between full parse, incremental reparse, and
// cache hit. Per-file call serialization is the dispatcher's job; the cache
// only guards its own index, so concurrent Ensure calls for *different*
// files are safe while calls for the same file must not overlap.
package tucache

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"ccd/internal/buffers"
	ccderr "ccd/internal/errors"
	"ccd/internal/flags"
	"ccd/internal/frontend"
	"ccd/internal/logging"
)

// Outcome reports which library operation Ensure performed.
type Outcome int

const (
	// OutcomeHit means the entry was fresh; no library call was made.
	OutcomeHit Outcome = iota
	// OutcomeReparsed means the entry was incrementally reparsed.
	OutcomeReparsed
	// OutcomeParsed means a full parse built a new entry.
	OutcomeParsed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeHit:
		return "hit"
	case OutcomeReparsed:
		return "reparsed"
	case OutcomeParsed:
		return "parsed"
	default:
		return "unknown"
	}
}

// Entry is one live translation unit. The handle is owned exclusively by the
// cache and disposed exactly once, on eviction or replacement. Callers hold
// the entry pinned (via Release) while reading the handle so eviction for
// capacity cannot dispose it mid-query.
type Entry struct {
	Path  string
	Flags flags.Flags

	Handle      frontend.Handle
	BufferHash  uint64
	Diagnostics []frontend.Diagnostic
	LastAccess  time.Time

	refs     int
	doomed   bool
	disposed bool
}

// Cache is the translation unit registry. Construct one per process (or per
// test) and tear it down with Close.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*Entry
	fe         frontend.Frontend
	maxEntries int
	logger     *logging.Logger
}

// New creates a cache. maxEntries of 0 means unbounded.
func New(fe frontend.Frontend, maxEntries int, logger *logging.Logger) *Cache {
	return &Cache{
		entries:    make(map[string]*Entry),
		fe:         fe,
		maxEntries: maxEntries,
		logger:     logger,
	}
}

// Ensure returns the entry for path, fresh relative to the snapshot. It
// performs a full parse when no entry exists or the flags changed, an
// incremental reparse when only buffer content changed, and no library call
// otherwise. The returned entry is pinned; the caller must Release it.
//
// Must not be called concurrently for the same path.
func (c *Cache) Ensure(ctx context.Context, path string, fl flags.Flags, snap *buffers.Snapshot) (*Entry, Outcome, error) {
	hash := snap.CombinedHash(path)

	// The pin happens inside the lookup critical section so a concurrent
	// Evict (file close, capacity) can never dispose the handle between
	// finding the entry and using it.
	c.mu.Lock()
	entry := c.entries[path]
	if entry != nil && entry.Flags.Equal(fl) {
		entry.refs++
		entry.LastAccess = time.Now()
		c.mu.Unlock()
		if entry.BufferHash == hash {
			return entry, OutcomeHit, nil
		}
		return c.reparse(ctx, entry, hash, snap)
	}
	c.mu.Unlock()

	return c.fullParse(ctx, path, fl, hash, snap)
}

// Peek returns the current entry without freshness checks or library calls,
// pinned. Used by read paths that already know the entry is fresh.
func (c *Cache) Peek(path string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[path]
	if !ok {
		return nil, false
	}
	entry.refs++
	entry.LastAccess = time.Now()
	return entry, true
}

// Release unpins an entry. A doomed entry (evicted while pinned) is disposed
// when the last reader lets go.
func (c *Cache) Release(entry *Entry) {
	if entry == nil {
		return
	}
	c.mu.Lock()
	entry.refs--
	dispose := entry.doomed && entry.refs <= 0 && !entry.disposed
	if dispose {
		entry.disposed = true
	}
	c.mu.Unlock()

	if dispose {
		c.fe.Dispose(entry.Handle)
	}
}

// reparse runs an incremental reparse on an entry the caller has already
// pinned, so an eviction racing with the library call defers disposal instead
// of freeing the handle under it. On failure the pin is dropped here.
func (c *Cache) reparse(ctx context.Context, entry *Entry, hash uint64, snap *buffers.Snapshot) (*Entry, Outcome, error) {
	diags, err := c.fe.Reparse(ctx, entry.Handle, snap.Overlay())
	if err != nil {
		c.Release(entry)
		if ctx.Err() != nil {
			return nil, OutcomeReparsed, ccderr.New(ccderr.Timeout, "reparse interrupted", err)
		}
		// A faulted entry cannot be trusted; drop it so the next request
		// retries with a full parse.
		c.Evict(entry.Path)
		return nil, OutcomeReparsed, ccderr.New(ccderr.LibraryFault,
			fmt.Sprintf("reparse of %s failed", entry.Path), err)
	}

	c.mu.Lock()
	entry.Diagnostics = diags
	entry.BufferHash = hash
	entry.LastAccess = time.Now()
	c.mu.Unlock()

	return entry, OutcomeReparsed, nil
}

func (c *Cache) fullParse(ctx context.Context, path string, fl flags.Flags, hash uint64, snap *buffers.Snapshot) (*Entry, Outcome, error) {
	// Replacement discards the old entry before parsing; flag changes
	// invalidate its preprocessor state either way.
	c.Evict(path)

	// A parse that errors but still yields a handle is a partially parsed
	// unit: keep it, with its diagnostics, and degrade gracefully. Only a
	// handle-level failure is an error.
	handle, diags, err := c.fe.Parse(ctx, path, fl.Args, fl.WorkingDir, snap.Overlay())
	if handle == nil {
		if ctx.Err() != nil {
			return nil, OutcomeParsed, ccderr.New(ccderr.Timeout, "parse interrupted", err)
		}
		return nil, OutcomeParsed, ccderr.New(ccderr.ParseFailed,
			fmt.Sprintf("no usable AST for %s", path), err)
	}

	entry := &Entry{
		Path:        path,
		Flags:       fl,
		Handle:      handle,
		BufferHash:  hash,
		Diagnostics: diags,
		LastAccess:  time.Now(),
		refs:        1,
	}

	c.mu.Lock()
	// The dispatcher serializes per path, so no racing entry can exist here;
	// replace defensively all the same.
	if old := c.entries[path]; old != nil {
		c.doomLocked(old)
	}
	c.entries[path] = entry
	victim := c.capacityVictimLocked()
	if victim != nil {
		delete(c.entries, victim.Path)
		c.doomLocked(victim)
	}
	c.mu.Unlock()

	if victim != nil {
		c.logger.Debug("Evicted translation unit for capacity", map[string]interface{}{
			"file": victim.Path,
		})
	}

	return entry, OutcomeParsed, nil
}

// capacityVictimLocked picks the least recently used unpinned entry when the
// cache is over capacity. Pinned entries are skipped; the cache may briefly
// overflow rather than dispose a handle in use.
func (c *Cache) capacityVictimLocked() *Entry {
	if c.maxEntries <= 0 || len(c.entries) <= c.maxEntries {
		return nil
	}
	var victim *Entry
	for _, e := range c.entries {
		if e.refs > 0 {
			continue
		}
		if victim == nil || e.LastAccess.Before(victim.LastAccess) {
			victim = e
		}
	}
	return victim
}

// doomLocked marks an entry dead, disposing immediately when unpinned.
func (c *Cache) doomLocked(entry *Entry) {
	entry.doomed = true
	if entry.refs <= 0 && !entry.disposed {
		entry.disposed = true
		c.fe.Dispose(entry.Handle)
	}
}

// Evict drops the entry for path, releasing its AST handle. Called on
// file-close notification and before replacement.
func (c *Cache) Evict(path string) {
	c.mu.Lock()
	entry, ok := c.entries[path]
	if ok {
		delete(c.entries, path)
		c.doomLocked(entry)
	}
	c.mu.Unlock()
}

// EvictUnder drops every entry for files in dir or its descendants and
// returns how many were dropped. Used when a compilation database or flags
// file changes.
func (c *Cache) EvictUnder(dir string) int {
	prefix := dir + string(filepath.Separator)

	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for path, entry := range c.entries {
		if path == dir || strings.HasPrefix(path, prefix) {
			delete(c.entries, path)
			c.doomLocked(entry)
			n++
		}
	}
	return n
}

// InvalidateAll drops every entry. Used when global flags or config change.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	for path, entry := range c.entries {
		delete(c.entries, path)
		c.doomLocked(entry)
	}
	c.mu.Unlock()
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close tears the cache down, disposing every handle.
func (c *Cache) Close() {
	c.InvalidateAll()
}
