// Package clangbin implements the frontend boundary by driving a clang
// binary through subprocess invocations, the way editor plugins fall back to
// `clang -fsyntax-only` when libclang is not available. A subprocess has no
// persistent AST, so Reparse re-runs the syntax check and preamble reuse is
// a no-op.
package clangbin

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"ccd/internal/frontend"
	"ccd/internal/logging"
)

var versionRe = regexp.MustCompile(`version\s+(\d+)\.(\d+)`)

// Clang drives a clang binary for parsing and code completion.
type Clang struct {
	binary    string
	extraArgs []string
	version   string
	logger    *logging.Logger
}

// handle records everything needed to re-run the front end for one
// translation unit. It is the opaque frontend.Handle for this implementation.
type handle struct {
	mainFile   string
	flags      []string
	workingDir string
}

// New probes the clang binary and returns a frontend backed by it.
func New(binary string, extraArgs []string, logger *logging.Logger) (*Clang, error) {
	if binary == "" {
		return nil, fmt.Errorf("clang binary not configured")
	}

	out, err := exec.Command(binary, "--version").CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("probing %s: %w", binary, err)
	}

	version := "unknown"
	if m := versionRe.FindSubmatch(out); m != nil {
		version = fmt.Sprintf("%s.%s", m[1], m[2])
	}

	logger.Info("Detected clang", map[string]interface{}{
		"binary":  binary,
		"version": version,
	})

	return &Clang{
		binary:    binary,
		extraArgs: extraArgs,
		version:   version,
		logger:    logger,
	}, nil
}

// Version returns the detected clang version string.
func (c *Clang) Version() string {
	return c.version
}

// Parse runs a syntax-only compile of mainFile and captures diagnostics.
// A compile that exits non-zero but produces diagnostics is a successful
// parse of a broken translation unit, not a failure.
func (c *Clang) Parse(ctx context.Context, mainFile string, flags []string, workingDir string, unsaved map[string][]byte) (frontend.Handle, []frontend.Diagnostic, error) {
	h := &handle{mainFile: mainFile, flags: flags, workingDir: workingDir}

	diags, err := c.syntaxCheck(ctx, h, unsaved)
	if err != nil {
		return nil, nil, err
	}
	return h, diags, nil
}

// Reparse re-runs the syntax check with fresh buffer content.
func (c *Clang) Reparse(ctx context.Context, fh frontend.Handle, unsaved map[string][]byte) ([]frontend.Diagnostic, error) {
	h, ok := fh.(*handle)
	if !ok {
		return nil, fmt.Errorf("foreign handle %T", fh)
	}
	return c.syntaxCheck(ctx, h, unsaved)
}

// CompleteAt asks clang for completion results at the cursor.
func (c *Clang) CompleteAt(ctx context.Context, fh frontend.Handle, line, col int, unsaved map[string][]byte) ([]frontend.RawCandidate, error) {
	h, ok := fh.(*handle)
	if !ok {
		return nil, fmt.Errorf("foreign handle %T", fh)
	}

	inv, cleanup, err := c.invocation(h, unsaved)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	completeArg := fmt.Sprintf("-code-completion-at=%s:%d:%d", inv.inputName, line, col)
	args := append([]string{}, inv.args...)
	args = append(args,
		"-fsyntax-only",
		"-Xclang", completeArg,
		"-Xclang", "-code-completion-macros",
		inv.inputName,
	)

	out, _ := c.run(ctx, args, h.workingDir, inv.stdin)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	return parseCompletions(out), nil
}

// Dispose releases the handle. Subprocess handles hold no resources.
func (c *Clang) Dispose(frontend.Handle) {}

// invocation is a prepared clang command minus the mode-specific arguments.
type invocation struct {
	args      []string
	inputName string
	stdin     []byte
}

// invocation assembles flags, the overlay include dir for unsaved headers,
// and the stdin redirection for an unsaved main file. cleanup removes the
// overlay dir and must run even on error paths.
func (c *Clang) invocation(h *handle, unsaved map[string][]byte) (*invocation, func(), error) {
	cleanup := func() {}

	args := append([]string{}, c.extraArgs...)
	args = append(args, h.flags...)
	args = append(args, "-fno-color-diagnostics", "-fdiagnostics-parseable-fixits")

	// Unsaved headers become an overlay directory that shadows includes.
	var overlayDir string
	for path, content := range unsaved {
		if path == h.mainFile {
			continue
		}
		if overlayDir == "" {
			dir, err := os.MkdirTemp("", "ccd-overlay-*")
			if err != nil {
				return nil, cleanup, fmt.Errorf("overlay dir: %w", err)
			}
			overlayDir = dir
			cleanup = func() { _ = os.RemoveAll(dir) }
		}
		dst := filepath.Join(overlayDir, overlayRelPath(h.mainFile, path))
		if err := os.MkdirAll(filepath.Dir(dst), 0700); err != nil {
			cleanup()
			return nil, func() {}, fmt.Errorf("overlay mkdir: %w", err)
		}
		if err := os.WriteFile(dst, content, 0600); err != nil {
			cleanup()
			return nil, func() {}, fmt.Errorf("overlay write: %w", err)
		}
	}
	if overlayDir != "" {
		args = append([]string{"-I", overlayDir}, args...)
	}

	inv := &invocation{args: args, inputName: h.mainFile}
	if content, ok := unsaved[h.mainFile]; ok {
		// Unsaved main file goes in on stdin; clang needs an explicit
		// language when reading from a pipe.
		inv.inputName = "-"
		inv.stdin = content
		args = append(args, "-x", languageFor(h.mainFile))
		inv.args = args
	}
	return inv, cleanup, nil
}

// overlayRelPath places an unsaved header inside the overlay dir at the path
// an include from the main file would use, so `#include "sub/hdr.h"` resolves
// to the unsaved buffer. Headers outside the main file's tree keep only their
// base name.
func overlayRelPath(mainFile, header string) string {
	rel, err := filepath.Rel(filepath.Dir(mainFile), header)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.Base(header)
	}
	return rel
}

func (c *Clang) syntaxCheck(ctx context.Context, h *handle, unsaved map[string][]byte) ([]frontend.Diagnostic, error) {
	inv, cleanup, err := c.invocation(h, unsaved)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	args := append([]string{}, inv.args...)
	args = append(args, "-fsyntax-only", inv.inputName)

	out, runErr := c.run(ctx, args, h.workingDir, inv.stdin)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	diags := parseDiagnostics(out, h.mainFile)

	// Exit status 1 with diagnostics is a broken-but-parsed unit. A failure
	// with nothing to show for it means clang never ran properly.
	if runErr != nil && len(diags) == 0 && len(bytes.TrimSpace(out)) == 0 {
		return nil, fmt.Errorf("clang produced no output: %w", runErr)
	}
	return diags, nil
}

func (c *Clang) run(ctx context.Context, args []string, workingDir string, stdin []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.binary, args...)
	cmd.Dir = workingDir
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	c.logger.Debug("Running clang", map[string]interface{}{
		"args": strings.Join(args, " "),
		"dir":  workingDir,
	})

	err := cmd.Run()
	return buf.Bytes(), err
}

// languageFor maps a file extension to the clang -x language argument.
func languageFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".c":
		return "c"
	case ".m":
		return "objective-c"
	case ".mm":
		return "objective-c++"
	case ".h":
		return "c++-header"
	default:
		return "c++"
	}
}
