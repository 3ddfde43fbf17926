// Package watcher invalidates cached compile flags when their sources change
// on disk.
package watcher

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"ccd/internal/logging"
)

// flagSources are the file names whose changes invalidate flag discovery for
// their directory.
var flagSources = map[string]bool{
	"compile_commands.json": true,
	".ccd_flags":            true,
}

// Invalidator receives the directory whose flag sources changed.
type Invalidator func(dir string)

// Config contains watcher configuration
type Config struct {
	Enabled    bool `json:"enabled" mapstructure:"enabled"`
	DebounceMs int  `json:"debounceMs" mapstructure:"debounce_ms"`
}

// DefaultConfig returns the default watcher configuration
func DefaultConfig() Config {
	return Config{
		Enabled:    true,
		DebounceMs: 1000,
	}
}

// Watcher watches directories that hold a compile_commands.json or
// .ccd_flags file. A burst of writes to one source collapses into a single
// invalidation after the debounce window.
type Watcher struct {
	config  Config
	logger  *logging.Logger
	handler Invalidator

	fw      *fsnotify.Watcher
	batcher *pathBatcher

	mu      sync.RWMutex
	dirs    map[string]bool
	started bool

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a watcher delivering debounced invalidations to handler.
func New(config Config, logger *logging.Logger, handler Invalidator) *Watcher {
	w := &Watcher{
		config:  config,
		logger:  logger,
		handler: handler,
		dirs:    make(map[string]bool),
		done:    make(chan struct{}),
	}
	w.batcher = newPathBatcher(time.Duration(config.DebounceMs)*time.Millisecond, w.emit)
	return w
}

// Start begins watching. A disabled watcher starts successfully and does
// nothing.
func (w *Watcher) Start() error {
	if !w.config.Enabled {
		w.logger.Info("Flag watcher is disabled", nil)
		return nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.fw = fw
	w.started = true
	for dir := range w.dirs {
		if err := fw.Add(dir); err != nil {
			w.logger.Warn("Cannot watch directory", map[string]interface{}{
				"dir":   dir,
				"error": err.Error(),
			})
		}
	}
	w.mu.Unlock()

	w.wg.Add(1)
	go w.loop()

	w.logger.Info("Flag watcher started", map[string]interface{}{
		"debounceMs": w.config.DebounceMs,
	})
	return nil
}

// Stop stops watching and flushes any pending invalidation.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return nil
	}
	w.started = false
	fw := w.fw
	w.mu.Unlock()

	close(w.done)
	if fw != nil {
		fw.Close()
	}
	w.wg.Wait()
	w.batcher.Flush()
	w.logger.Info("Flag watcher stopped", nil)
	return nil
}

// WatchDir registers a directory whose flag sources should be observed.
// Directories registered before Start are picked up when the watcher starts.
func (w *Watcher) WatchDir(dir string) error {
	dir = filepath.Clean(dir)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.dirs[dir] {
		return nil
	}
	w.dirs[dir] = true

	if w.started && w.fw != nil {
		if err := w.fw.Add(dir); err != nil {
			delete(w.dirs, dir)
			return err
		}
	}
	w.logger.Debug("Watching flag sources", map[string]interface{}{"dir": dir})
	return nil
}

// WatchedDirs returns the registered directories.
func (w *Watcher) WatchedDirs() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	dirs := make([]string, 0, len(w.dirs))
	for dir := range w.dirs {
		dirs = append(dirs, dir)
	}
	return dirs
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if !flagSources[filepath.Base(ev.Name)] {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug("Flag source changed", map[string]interface{}{
				"file": ev.Name,
				"op":   ev.Op.String(),
			})
			w.batcher.Add(filepath.Dir(ev.Name))
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Watch error", map[string]interface{}{"error": err.Error()})
		case <-w.done:
			return
		}
	}
}

func (w *Watcher) emit(dirs []string) {
	for _, dir := range dirs {
		if w.handler != nil {
			w.handler(dir)
		}
	}
}
