// Package buffers models the set of unsaved editor buffers supplied with a
// request. A snapshot is read-only and never outlives the request it was
// built for.
package buffers

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sort"
)

// Buffer is the in-editor content of a single file that may differ from disk.
type Buffer struct {
	Path    string `json:"path"`
	Content []byte `json:"content"`
}

// Snapshot is an immutable view of all unsaved buffers for one request,
// keyed by normalized absolute path.
type Snapshot struct {
	byPath map[string]Buffer
}

// Normalize resolves a path to its canonical absolute form. Two requests for
// the same file must map to the same key regardless of how the editor spells
// the path.
func Normalize(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("normalize %q: %w", path, err)
	}
	return filepath.Clean(abs), nil
}

// NewSnapshot builds a snapshot from the editor-supplied buffer list. Later
// entries for the same path win.
func NewSnapshot(bufs []Buffer) (*Snapshot, error) {
	byPath := make(map[string]Buffer, len(bufs))
	for _, b := range bufs {
		key, err := Normalize(b.Path)
		if err != nil {
			return nil, err
		}
		byPath[key] = Buffer{Path: key, Content: b.Content}
	}
	return &Snapshot{byPath: byPath}, nil
}

// EmptySnapshot returns a snapshot with no unsaved buffers.
func EmptySnapshot() *Snapshot {
	return &Snapshot{byPath: map[string]Buffer{}}
}

// Get returns the unsaved buffer for a normalized path, if any.
func (s *Snapshot) Get(path string) (Buffer, bool) {
	b, ok := s.byPath[path]
	return b, ok
}

// Len returns the number of unsaved buffers.
func (s *Snapshot) Len() int {
	return len(s.byPath)
}

// Paths returns the normalized buffer paths in sorted order.
func (s *Snapshot) Paths() []string {
	paths := make([]string, 0, len(s.byPath))
	for p := range s.byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Overlay returns path -> content for every unsaved buffer, in the shape the
// compiler frontend takes as in-memory file overrides.
func (s *Snapshot) Overlay() map[string][]byte {
	overlay := make(map[string][]byte, len(s.byPath))
	for p, b := range s.byPath {
		overlay[p] = b.Content
	}
	return overlay
}

// Hash fingerprints the state of a file as seen by this snapshot: the buffer
// content when unsaved, otherwise the on-disk size and mtime. The translation
// unit cache compares these fingerprints to decide whether a reparse is due.
func (s *Snapshot) Hash(path string) uint64 {
	h := fnv.New64a()
	if b, ok := s.byPath[path]; ok {
		_, _ = h.Write([]byte("buf\x00"))
		_, _ = h.Write(b.Content)
		return h.Sum64()
	}
	info, err := os.Stat(path)
	if err != nil {
		_, _ = h.Write([]byte("missing\x00"))
		_, _ = h.Write([]byte(path))
		return h.Sum64()
	}
	_, _ = fmt.Fprintf(h, "disk\x00%d\x00%d", info.Size(), info.ModTime().UnixNano())
	return h.Sum64()
}

// CombinedHash fingerprints the main file together with every unsaved buffer
// in the snapshot. Edits to an unsaved header must trigger a reparse of
// translation units that include it, so the fingerprint covers all buffers,
// not just the main file.
func (s *Snapshot) CombinedHash(mainFile string) uint64 {
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "%d\x00", s.Hash(mainFile))
	for _, p := range s.Paths() {
		if p == mainFile {
			continue
		}
		_, _ = fmt.Fprintf(h, "%s\x00%d\x00", p, s.Hash(p))
	}
	return h.Sum64()
}

// Read returns the current content of a file: the unsaved buffer when
// present, disk content otherwise.
func (s *Snapshot) Read(path string) ([]byte, error) {
	if b, ok := s.byPath[path]; ok {
		return b.Content, nil
	}
	return os.ReadFile(path)
}
