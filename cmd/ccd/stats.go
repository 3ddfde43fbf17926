package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"ccd/internal/stats"
)

var statsTop int

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show request statistics",
	Long: `Print aggregate request statistics from the stats database: totals
across all files and the files that cost the most parse time.`,
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().IntVar(&statsTop, "top", 10, "Number of slowest files to list")
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	store, err := stats.Open(cfg.Stats.Dir, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	totals, err := store.Totals()
	if err != nil {
		return err
	}
	slowest, err := store.SlowestFiles(statsTop)
	if err != nil {
		return err
	}

	out := map[string]interface{}{
		"totals":  totals,
		"slowest": slowest,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
