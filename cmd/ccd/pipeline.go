package main

import (
	"time"

	"ccd/internal/completion"
	"ccd/internal/config"
	"ccd/internal/dispatch"
	"ccd/internal/flags"
	"ccd/internal/frontend/clangbin"
	"ccd/internal/logging"
	"ccd/internal/stats"
	"ccd/internal/tucache"
	"ccd/internal/watcher"
)

// pipeline is the wired request path shared by serve and the one-shot
// commands.
type pipeline struct {
	frontend   *clangbin.Clang
	resolver   *flags.Resolver
	cache      *tucache.Cache
	engine     *completion.Engine
	dispatcher *dispatch.Dispatcher
	stats      *stats.Store
	watcher    *watcher.Watcher
}

// buildPipeline constructs the full request path from configuration.
// withStats enables the persistent stats store; one-shot commands skip it
// unless they need to read it.
func buildPipeline(cfg *config.Config, logger *logging.Logger, withStats bool) (*pipeline, error) {
	fe, err := clangbin.New(cfg.Clang.Binary, cfg.Clang.ExtraArgs, logger)
	if err != nil {
		return nil, err
	}

	resolver, err := flags.NewResolver(cfg.Flags.Fallback, cfg.Flags.CacheSize, logger)
	if err != nil {
		return nil, err
	}
	resolver.SetDatabaseDirs(cfg.Flags.CompilationDatabases)

	cache := tucache.New(fe, cfg.Cache.MaxEntries, logger)
	engine := completion.NewEngine(cfg.Completion.MaxCandidates, logger)
	engine.SetCaseInsensitive(cfg.Completion.CaseInsensitive)
	dispatcher := dispatch.New(fe, resolver, cache, engine, dispatch.Options{
		Workers:        cfg.Dispatch.Workers,
		QueueSize:      cfg.Dispatch.QueueSize,
		RequestTimeout: time.Duration(cfg.Dispatch.RequestTimeoutMs) * time.Millisecond,
	}, logger)

	p := &pipeline{
		frontend:   fe,
		resolver:   resolver,
		cache:      cache,
		engine:     engine,
		dispatcher: dispatcher,
	}

	if withStats && cfg.Stats.Enabled {
		store, err := stats.Open(cfg.Stats.Dir, logger)
		if err != nil {
			logger.Warn("Stats store unavailable", map[string]interface{}{
				"dir":   cfg.Stats.Dir,
				"error": err.Error(),
			})
		} else {
			p.stats = store
			dispatcher.SetRecorder(store)
		}
	}

	if cfg.Watcher.Enabled {
		w := watcher.New(watcher.Config{
			Enabled:    true,
			DebounceMs: cfg.Watcher.DebounceMs,
		}, logger, func(dir string) {
			dispatcher.NotifyFlagsChanged(dir)
		})
		resolver.OnDiscover(func(dir string) {
			if err := w.WatchDir(dir); err != nil {
				logger.Warn("Cannot watch flag source directory", map[string]interface{}{
					"dir":   dir,
					"error": err.Error(),
				})
			}
		})
		p.watcher = w
	}

	return p, nil
}

// Close tears the pipeline down in dependency order.
func (p *pipeline) Close() {
	if p.watcher != nil {
		p.watcher.Stop()
	}
	p.dispatcher.Close()
	p.cache.Close()
	if p.stats != nil {
		p.stats.Close()
	}
}
