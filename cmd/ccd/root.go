package main

import (
	"os"

	"github.com/spf13/cobra"

	"ccd/internal/config"
	"ccd/internal/logging"
	"ccd/internal/version"
)

var (
	// configDir is the CLI --config-dir flag value
	configDir string

	// logLevelFlag is the CLI --log-level flag value
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "ccd",
	Short: "CCD - C completion daemon",
	Long: `CCD is a semantic completion daemon for C, C++, and Objective-C. It keeps
parsed translation units warm across requests and answers code completion and
diagnostics queries against unsaved editor buffers, resolving compile flags
from compile_commands.json or .ccd_flags files.`,
	Version: version.Version,
}

func init() {
	rootCmd.SetVersionTemplate("CCD version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", ".",
		"Directory containing .ccd.yaml")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "",
		"Log level: debug, info, warn, or error (overrides config)")
}

// loadConfig reads the effective configuration for this invocation.
// Precedence: CLI flag > CCD_* env var > .ccd.yaml > defaults.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		return nil, err
	}
	if logLevelFlag != "" {
		cfg.Logging.Level = logLevelFlag
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the process logger from configuration.
func newLogger(cfg *config.Config) *logging.Logger {
	return logging.NewLogger(logging.Config{
		Format: logging.Format(cfg.Logging.Format),
		Level:  logging.LogLevel(cfg.Logging.Level),
		Output: os.Stderr,
	})
}
