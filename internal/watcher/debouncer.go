package watcher

import (
	"sort"
	"sync"
	"time"
)

// Debouncer delays execution until a quiet period has passed
type Debouncer struct {
	delay   time.Duration
	timer   *time.Timer
	mu      sync.Mutex
	pending func()
}

// NewDebouncer creates a new debouncer with the specified delay
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{
		delay: delay,
	}
}

// Trigger schedules or resets the debounced function
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending = fn

	if d.timer != nil {
		d.timer.Stop()
	}

	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		fn := d.pending
		d.pending = nil
		d.mu.Unlock()

		if fn != nil {
			fn()
		}
	})
}

// Cancel cancels any pending execution
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = nil
}

// Flush immediately executes any pending function
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	fn := d.pending
	d.pending = nil
	d.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// pathBatcher collects distinct paths and emits them as a sorted batch after
// a quiet period. The Debouncer supplies the quiet-period timing.
type pathBatcher struct {
	mu    sync.Mutex
	paths map[string]bool
	deb   *Debouncer
	emit  func([]string)
}

func newPathBatcher(delay time.Duration, emit func([]string)) *pathBatcher {
	return &pathBatcher{
		paths: make(map[string]bool),
		deb:   NewDebouncer(delay),
		emit:  emit,
	}
}

// Add records a path and resets the quiet-period timer.
func (b *pathBatcher) Add(path string) {
	b.mu.Lock()
	b.paths[path] = true
	b.mu.Unlock()

	b.deb.Trigger(b.drain)
}

func (b *pathBatcher) drain() {
	b.mu.Lock()
	paths := make([]string, 0, len(b.paths))
	for p := range b.paths {
		paths = append(paths, p)
	}
	b.paths = make(map[string]bool)
	b.mu.Unlock()

	sort.Strings(paths)
	if len(paths) > 0 && b.emit != nil {
		b.emit(paths)
	}
}

// Flush immediately emits any pending paths
func (b *pathBatcher) Flush() {
	b.deb.Cancel()
	b.drain()
}

// PendingCount returns the number of collected paths
func (b *pathBatcher) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.paths)
}
