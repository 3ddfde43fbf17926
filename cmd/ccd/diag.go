package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"ccd/internal/buffers"
	"ccd/internal/diagnostics"
)

var diagStdin bool

var diagCmd = &cobra.Command{
	Use:   "diag <file>",
	Short: "Run a one-shot diagnostics query",
	Long: `Parse the file and print its diagnostics as JSON. With --stdin, the
file's unsaved content is read from standard input instead of disk.`,
	Args: cobra.ExactArgs(1),
	RunE: runDiag,
}

func init() {
	rootCmd.AddCommand(diagCmd)

	diagCmd.Flags().BoolVar(&diagStdin, "stdin", false, "Read unsaved file content from stdin")
}

func runDiag(cmd *cobra.Command, args []string) error {
	file := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	snap := buffers.EmptySnapshot()
	if diagStdin {
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		snap, err = buffers.NewSnapshot([]buffers.Buffer{{Path: file, Content: content}})
		if err != nil {
			return err
		}
	}

	p, err := buildPipeline(cfg, logger, false)
	if err != nil {
		return err
	}
	defer p.Close()

	res, err := p.dispatcher.RequestDiagnostics(context.Background(), file, snap)
	if err != nil {
		return err
	}

	counts := diagnostics.CountBySeverity(res.Diagnostics)
	out := map[string]interface{}{
		"requestId":   res.RequestID,
		"outcome":     res.Outcome,
		"diagnostics": res.Diagnostics,
		"counts":      counts,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
