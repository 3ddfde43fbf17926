package flags

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"gopkg.in/yaml.v3"

	ccderr "ccd/internal/errors"
	"ccd/internal/logging"
)

const (
	databaseName  = "compile_commands.json"
	flagsFileName = ".ccd_flags"
)

// discovery is the cached result of looking upward from one directory.
// Negative results are cached too.
type discovery struct {
	db        *database
	flagsFile string
	flagsArgs []string
	root      string // directory the hit (or the search top) lives in
}

// Resolver resolves compile flags for a file: compilation database first,
// then a .ccd_flags file, then configured fallback flags. Results are cached
// per containing directory and invalidated only by explicit notification.
type Resolver struct {
	cache      *lru.Cache[string, *discovery]
	fallback   []string
	extraRoots []string
	logger     *logging.Logger

	onDiscover func(dir string)
}

// NewResolver creates a resolver. cacheSize bounds the per-directory cache.
func NewResolver(fallback []string, cacheSize int, logger *logging.Logger) (*Resolver, error) {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	cache, err := lru.New[string, *discovery](cacheSize)
	if err != nil {
		return nil, err
	}
	return &Resolver{
		cache:    cache,
		fallback: fallback,
		logger:   logger,
	}, nil
}

// OnDiscover registers a callback invoked with the directory of each newly
// discovered flag source. The file watcher uses it to follow build files.
// Call before serving requests.
func (r *Resolver) OnDiscover(fn func(dir string)) {
	r.onDiscover = fn
}

// SetDatabaseDirs registers extra directories holding a compilation database,
// consulted when the upward walk from a file finds nothing. Out-of-tree build
// directories are the usual case. Call before serving requests.
func (r *Resolver) SetDatabaseDirs(dirs []string) {
	r.extraRoots = append([]string{}, dirs...)
}

// Resolve returns the flags to parse path with. Fails with FLAGS_UNAVAILABLE
// when no database entry, flags file, or fallback exists. Deterministic for
// a fixed external build state.
func (r *Resolver) Resolve(path string) (Flags, error) {
	dir := filepath.Dir(path)

	disc, ok := r.cache.Get(dir)
	if !ok {
		disc = r.discover(dir)
		r.cache.Add(dir, disc)
		if r.onDiscover != nil && (disc.db != nil || disc.flagsFile != "") {
			r.onDiscover(disc.root)
		}
	}

	if disc.db != nil {
		if f, ok := r.fromDatabase(disc.db, path, dir); ok {
			return f, nil
		}
	}
	if disc.flagsFile != "" {
		return Flags{Args: append([]string{}, disc.flagsArgs...), WorkingDir: disc.root}, nil
	}
	if len(r.fallback) > 0 {
		return Flags{Args: append([]string{}, r.fallback...), WorkingDir: dir}, nil
	}

	return Flags{}, ccderr.New(ccderr.FlagsUnavailable,
		fmt.Sprintf("no compile flags for %s", path), nil)
}

// fromDatabase picks the database entry for path: exact match, else the
// lexically smallest entry in the same directory (headers and new files
// borrow a neighbor's flags), else the lexically smallest entry overall.
func (r *Resolver) fromDatabase(db *database, path, dir string) (Flags, bool) {
	if cmd, ok := db.entries[path]; ok {
		return Flags{Args: cmd.args(), WorkingDir: cmd.Directory}, true
	}

	var sameDir, all []string
	for file := range db.entries {
		all = append(all, file)
		if filepath.Dir(file) == dir {
			sameDir = append(sameDir, file)
		}
	}
	pick := func(files []string) (Flags, bool) {
		if len(files) == 0 {
			return Flags{}, false
		}
		sort.Strings(files)
		cmd := db.entries[files[0]]
		return Flags{Args: cmd.args(), WorkingDir: cmd.Directory}, true
	}
	if f, ok := pick(sameDir); ok {
		r.logger.Debug("Borrowing flags from same-directory entry", map[string]interface{}{
			"file": path,
		})
		return f, true
	}
	return pick(all)
}

// discover walks up from dir looking for a compilation database or flags
// file. The nearer hit wins; a database and a flags file at the same level
// prefer the database.
func (r *Resolver) discover(dir string) *discovery {
	for d := dir; ; d = filepath.Dir(d) {
		if disc := r.tryDatabase(d); disc != nil {
			return disc
		}

		ffPath := filepath.Join(d, flagsFileName)
		if fileExists(ffPath) {
			args, err := loadFlagsFile(ffPath)
			if err != nil {
				r.logger.Warn("Unreadable flags file", map[string]interface{}{
					"path":  ffPath,
					"error": err.Error(),
				})
			} else {
				return &discovery{flagsFile: ffPath, flagsArgs: args, root: d}
			}
		}

		if filepath.Dir(d) == d {
			break
		}
	}

	// Out-of-tree build directories never sit above the source file, so the
	// upward walk cannot find them. Configured directories fill the gap.
	for _, extra := range r.extraRoots {
		if disc := r.tryDatabase(extra); disc != nil {
			return disc
		}
	}

	return &discovery{root: dir}
}

// tryDatabase loads the compilation database in d, if any.
func (r *Resolver) tryDatabase(d string) *discovery {
	dbPath := filepath.Join(d, databaseName)
	if !fileExists(dbPath) {
		return nil
	}
	db, err := loadDatabase(dbPath)
	if err != nil {
		r.logger.Warn("Unreadable compilation database", map[string]interface{}{
			"path":  dbPath,
			"error": err.Error(),
		})
		return nil
	}
	return &discovery{db: db, root: d}
}

// loadFlagsFile reads a .ccd_flags yaml list of compiler arguments.
func loadFlagsFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var args []string
	if err := yaml.Unmarshal(data, &args); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return args, nil
}

// Invalidate drops cached lookups affected by a changed build file or
// directory. Passing a file path invalidates its directory subtree. Returns
// the directory whose subtree was invalidated so callers can evict dependent
// state for the same files.
func (r *Resolver) Invalidate(pathOrDir string) string {
	dir := pathOrDir
	if info, err := os.Stat(pathOrDir); err != nil || !info.IsDir() {
		dir = filepath.Dir(pathOrDir)
	}

	for _, key := range r.cache.Keys() {
		if key == dir || strings.HasPrefix(key, dir+string(filepath.Separator)) {
			r.cache.Remove(key)
		}
	}

	r.logger.Info("Invalidated flag cache", map[string]interface{}{
		"dir": dir,
	})
	return dir
}

// InvalidateAll drops every cached lookup.
func (r *Resolver) InvalidateAll() {
	r.cache.Purge()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
