package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"ccd/internal/buffers"
)

var (
	completeLimit int
	completeStdin bool
)

var completeCmd = &cobra.Command{
	Use:   "complete <file> <line> <column>",
	Short: "Run a one-shot completion query",
	Long: `Parse the file and print completion candidates for the given 1-based
cursor position as JSON. With --stdin, the file's unsaved content is read
from standard input instead of disk.`,
	Args: cobra.ExactArgs(3),
	RunE: runComplete,
}

func init() {
	rootCmd.AddCommand(completeCmd)

	completeCmd.Flags().IntVar(&completeLimit, "limit", 0, "Maximum candidates to return (0 = config cap)")
	completeCmd.Flags().BoolVar(&completeStdin, "stdin", false, "Read unsaved file content from stdin")
}

func runComplete(cmd *cobra.Command, args []string) error {
	file := args[0]
	line, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid line %q", args[1])
	}
	col, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("invalid column %q", args[2])
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	snap := buffers.EmptySnapshot()
	if completeStdin {
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

	res, err := p.dispatcher.RequestCompletion(context.Background(), file, snap, line, col, completeLimit)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
