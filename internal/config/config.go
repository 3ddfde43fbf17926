// Package config loads ccd configuration from .ccd.yaml with environment
// overrides.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config represents the complete ccd configuration
type Config struct {
	Completion CompletionConfig `json:"completion" mapstructure:"completion"`
	Cache      CacheConfig      `json:"cache" mapstructure:"cache"`
	Flags      FlagsConfig      `json:"flags" mapstructure:"flags"`
	Dispatch   DispatchConfig   `json:"dispatch" mapstructure:"dispatch"`
	Clang      ClangConfig      `json:"clang" mapstructure:"clang"`
	Watcher    WatcherConfig    `json:"watcher" mapstructure:"watcher"`
	Server     ServerConfig     `json:"server" mapstructure:"server"`
	Stats      StatsConfig      `json:"stats" mapstructure:"stats"`
	Logging    LoggingConfig    `json:"logging" mapstructure:"logging"`
}

// CompletionConfig controls candidate filtering and ranking
type CompletionConfig struct {
	// MaxCandidates bounds returned candidates; 0 means no artificial cap
	MaxCandidates int `json:"maxCandidates" mapstructure:"maxCandidates"`
	// CaseInsensitive lets a case-insensitive prefix match rank above
	// non-matches
	CaseInsensitive bool `json:"caseInsensitive" mapstructure:"caseInsensitive"`
}

// CacheConfig controls the translation unit cache
type CacheConfig struct {
	// MaxEntries bounds live translation units; 0 means unbounded
	MaxEntries int `json:"maxEntries" mapstructure:"maxEntries"`
}

// FlagsConfig controls compile flag discovery
type FlagsConfig struct {
	// Fallback flags used when no compilation database entry exists
	Fallback []string `json:"fallback" mapstructure:"fallback"`
	// CompilationDatabases lists extra directories searched for
	// compile_commands.json after the upward walk finds nothing
	CompilationDatabases []string `json:"compilationDatabases" mapstructure:"compilationDatabases"`
	// CacheSize is the per-directory flag lookup LRU capacity
	CacheSize int `json:"cacheSize" mapstructure:"cacheSize"`
}

// DispatchConfig controls request scheduling
type DispatchConfig struct {
	Workers          int `json:"workers" mapstructure:"workers"`
	QueueSize        int `json:"queueSize" mapstructure:"queueSize"`
	RequestTimeoutMs int `json:"requestTimeoutMs" mapstructure:"requestTimeoutMs"`
}

// ClangConfig locates the compiler frontend binary
type ClangConfig struct {
	Binary    string   `json:"binary" mapstructure:"binary"`
	ExtraArgs []string `json:"extraArgs" mapstructure:"extraArgs"`
}

// WatcherConfig controls build-file watching
type WatcherConfig struct {
	Enabled    bool `json:"enabled" mapstructure:"enabled"`
	DebounceMs int  `json:"debounceMs" mapstructure:"debounceMs"`
}

// ServerConfig contains daemon HTTP settings
type ServerConfig struct {
	Bind string     `json:"bind" mapstructure:"bind"`
	Port int        `json:"port" mapstructure:"port"`
	Auth AuthConfig `json:"auth" mapstructure:"auth"`
}

// AuthConfig contains daemon auth settings
type AuthConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`
}

// StatsConfig contains parse-stats store settings
type StatsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Dir     string `json:"dir" mapstructure:"dir"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format"`
	Level  string `json:"level" mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Completion: CompletionConfig{
			MaxCandidates:   0,
			CaseInsensitive: true,
		},
		Cache: CacheConfig{
			MaxEntries: 16,
		},
		Flags: FlagsConfig{
			Fallback:  nil,
			CacheSize: 256,
		},
		Dispatch: DispatchConfig{
			Workers:          4,
			QueueSize:        32,
			RequestTimeoutMs: 20000,
		},
		Clang: ClangConfig{
			Binary: "clang",
		},
		Watcher: WatcherConfig{
			Enabled:    true,
			DebounceMs: 1000,
		},
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 7951,
			Auth: AuthConfig{Enabled: false},
		},
		Stats: StatsConfig{
			Enabled: true,
			Dir:     defaultStateDir(),
		},
		Logging: LoggingConfig{
			Format: "human",
			Level:  "info",
		},
	}
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ccd"
	}
	return filepath.Join(home, ".ccd")
}

// LoadConfig loads configuration from .ccd.yaml in the given directory,
// falling back to defaults when no file exists. CCD_* environment variables
// override file values (e.g. CCD_LOGGING_LEVEL=debug).
func LoadConfig(dir string) (*Config, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("completion", map[string]interface{}{
		"maxCandidates":   defaults.Completion.MaxCandidates,
		"caseInsensitive": defaults.Completion.CaseInsensitive,
	})
	v.SetDefault("cache", map[string]interface{}{"maxEntries": defaults.Cache.MaxEntries})
	v.SetDefault("flags", map[string]interface{}{"cacheSize": defaults.Flags.CacheSize})
	v.SetDefault("dispatch", map[string]interface{}{
		"workers":          defaults.Dispatch.Workers,
		"queueSize":        defaults.Dispatch.QueueSize,
		"requestTimeoutMs": defaults.Dispatch.RequestTimeoutMs,
	})
	v.SetDefault("clang", map[string]interface{}{"binary": defaults.Clang.Binary})
	v.SetDefault("watcher", map[string]interface{}{
		"enabled":    defaults.Watcher.Enabled,
		"debounceMs": defaults.Watcher.DebounceMs,
	})
	v.SetDefault("server", map[string]interface{}{
		"bind": defaults.Server.Bind,
		"port": defaults.Server.Port,
	})
	v.SetDefault("stats", map[string]interface{}{
		"enabled": defaults.Stats.Enabled,
		"dir":     defaults.Stats.Dir,
	})
	v.SetDefault("logging", map[string]interface{}{
		"format": defaults.Logging.Format,
		"level":  defaults.Logging.Level,
	})

	v.SetConfigName(".ccd")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	v.SetEnvPrefix("CCD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration as JSON, mostly for `ccd config dump`.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Dispatch.Workers <= 0 {
		return &ConfigError{Field: "dispatch.workers", Message: "must be positive"}
	}
	if c.Dispatch.QueueSize <= 0 {
		return &ConfigError{Field: "dispatch.queueSize", Message: "must be positive"}
	}
	if c.Cache.MaxEntries < 0 {
		return &ConfigError{Field: "cache.maxEntries", Message: "must not be negative"}
	}
	if c.Completion.MaxCandidates < 0 {
		return &ConfigError{Field: "completion.maxCandidates", Message: "must not be negative"}
	}
	if c.Clang.Binary == "" {
		return &ConfigError{Field: "clang.binary", Message: "must not be empty"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
