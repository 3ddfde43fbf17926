// Package completion turns raw front-end completion results into the ranked
// candidate list delivered to the editor.
package completion

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	"ccd/internal/buffers"
	ccderr "ccd/internal/errors"
	"ccd/internal/frontend"
	"ccd/internal/logging"
)

// Candidate is one ranked completion result.
type Candidate struct {
	Display   string                 `json:"display"`
	Insertion string                 `json:"insertion"`
	Kind      frontend.CandidateKind `json:"kind"`
	Detail    string                 `json:"detail"`
	// Priority is the front end's rank, kept for tie-breaking and display.
	Priority int `json:"priority"`
}

// matchClass orders prefix-match quality: exact case-sensitive prefix beats
// case-insensitive prefix beats everything the library suggested anyway.
const (
	matchExact = iota
	matchCaseInsensitive
	matchNone
)

// Engine filters, ranks, and truncates completion results.
type Engine struct {
	classifier      *Classifier
	maxCandidates   int
	caseInsensitive bool
	logger          *logging.Logger
}

// NewEngine creates an engine. maxCandidates of 0 means no artificial cap.
func NewEngine(maxCandidates int, logger *logging.Logger) *Engine {
	return &Engine{
		classifier:      NewClassifier(),
		maxCandidates:   maxCandidates,
		caseInsensitive: true,
		logger:          logger,
	}
}

// SetCaseInsensitive controls whether a prefix that matches only when case
// is folded still ranks above non-matching candidates.
func (e *Engine) SetCaseInsensitive(enabled bool) {
	e.caseInsensitive = enabled
}

// Complete queries the translation unit handle for completions at the cursor
// and returns the ranked list. The handle must be fresh relative to snap and
// must not be reparsed concurrently; the dispatcher guarantees both.
//
// limit further caps this request's results; 0 defers to the engine cap.
func (e *Engine) Complete(ctx context.Context, fe frontend.Frontend, handle frontend.Handle, path string, snap *buffers.Snapshot, line, col, limit int) ([]Candidate, error) {
	content, err := snap.Read(path)
	if err != nil {
		return nil, ccderr.New(ccderr.InvalidPosition,
			fmt.Sprintf("cannot read %s", path), err)
	}

	lineText, err := validatePosition(content, line, col)
	if err != nil {
		return nil, err
	}

	cursorCtx := e.classifier.Classify(ctx, content, line, col)
	if cursorCtx == CtxComment || cursorCtx == CtxString {
		return []Candidate{}, nil
	}

	prefix := identifierPrefix(lineText, col)
	if cursorCtx == CtxUnknown || cursorCtx == CtxGeneral {
		if isMemberAccess(lineText, col, prefix) {
			cursorCtx = CtxMember
		}
	}

	raw, err := fe.CompleteAt(ctx, handle, line, col, snap.Overlay())
	if err != nil {
		if ctx.Err() != nil {
			return nil, ccderr.New(ccderr.Timeout, "completion interrupted", err)
		}
		return nil, ccderr.New(ccderr.LibraryFault,
			fmt.Sprintf("completion query for %s failed", path), err)
	}

	cands := filterByContext(raw, cursorCtx)
	ranked := rank(cands, prefix, e.caseInsensitive)

	if max := e.effectiveLimit(limit); max > 0 && len(ranked) > max {
		ranked = ranked[:max] // truncate from the tail, never the top
	}
	return ranked, nil
}

func (e *Engine) effectiveLimit(limit int) int {
	switch {
	case limit > 0 && e.maxCandidates > 0 && limit < e.maxCandidates:
		return limit
	case limit > 0 && e.maxCandidates <= 0:
		return limit
	default:
		return e.maxCandidates
	}
}

// validatePosition checks the 1-based cursor against the buffer content and
// returns the cursor's line text. A cursor one column past the end of a line
// is valid (that is where typing happens).
func validatePosition(content []byte, line, col int) ([]byte, error) {
	if line < 1 || col < 1 {
		return nil, ccderr.New(ccderr.InvalidPosition,
			fmt.Sprintf("position %d:%d is not 1-based", line, col), nil)
	}

	lines := bytes.Split(content, []byte("\n"))
	if line > len(lines) {
		return nil, ccderr.New(ccderr.InvalidPosition,
			fmt.Sprintf("line %d past end of file (%d lines)", line, len(lines)), nil)
	}
	lineText := lines[line-1]
	if col > len(lineText)+1 {
		return nil, ccderr.New(ccderr.InvalidPosition,
			fmt.Sprintf("column %d past end of line %d", col, line), nil)
	}
	return lineText, nil
}

func isIdentChar(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// identifierPrefix returns the partially typed identifier ending at the
// cursor.
func identifierPrefix(lineText []byte, col int) string {
	end := col - 1
	if end > len(lineText) {
		end = len(lineText)
	}
	start := end
	for start > 0 && isIdentChar(lineText[start-1]) {
		start--
	}
	return string(lineText[start:end])
}

// isMemberAccess reports whether the text immediately before the typed
// prefix is a  .  or  ->  member access. A digit before the dot means a
// floating point literal, not member access.
func isMemberAccess(lineText []byte, col int, prefix string) bool {
	pos := col - 1 - len(prefix)
	if pos > len(lineText) {
		pos = len(lineText)
	}
	if pos >= 2 && lineText[pos-2] == '-' && lineText[pos-1] == '>' {
		return true
	}
	if pos >= 1 && lineText[pos-1] == '.' {
		if pos >= 2 && lineText[pos-2] >= '0' && lineText[pos-2] <= '9' {
			return false
		}
		return pos >= 2 && isIdentCharOrCloser(lineText[pos-2])
	}
	return false
}

func isIdentCharOrCloser(c byte) bool {
	return isIdentChar(c) || c == ')' || c == ']'
}

// memberKinds are the kinds that can appear after a member access.
var memberKinds = map[frontend.CandidateKind]bool{
	frontend.KindField:        true,
	frontend.KindMethod:       true,
	frontend.KindFunction:     true,
	frontend.KindVariable:     true,
	frontend.KindEnumConstant: true,
	frontend.KindOther:        true,
}

// preprocKinds are the kinds worth offering on a preprocessor line.
var preprocKinds = map[frontend.CandidateKind]bool{
	frontend.KindMacro:   true,
	frontend.KindKeyword: true,
	frontend.KindOther:   true,
}

// filterByContext drops results whose kind cannot occur in the cursor's
// token context. The front end usually filters members itself; this only
// removes what it let through.
func filterByContext(raw []frontend.RawCandidate, cursorCtx Context) []frontend.RawCandidate {
	var keep func(frontend.CandidateKind) bool
	switch cursorCtx {
	case CtxMember:
		keep = func(k frontend.CandidateKind) bool { return memberKinds[k] }
	case CtxPreproc:
		keep = func(k frontend.CandidateKind) bool { return preprocKinds[k] }
	default:
		return raw
	}

	out := raw[:0:0]
	for _, r := range raw {
		if keep(r.Kind) {
			out = append(out, r)
		}
	}
	return out
}

func classify(display, prefix string, caseInsensitive bool) int {
	switch {
	case prefix == "":
		return matchNone
	case strings.HasPrefix(display, prefix):
		return matchExact
	case caseInsensitive && strings.HasPrefix(strings.ToLower(display), strings.ToLower(prefix)):
		return matchCaseInsensitive
	default:
		return matchNone
	}
}

// rank orders candidates by prefix-match quality, then library priority,
// then display text. The order is fully deterministic for identical inputs.
func rank(raw []frontend.RawCandidate, prefix string, caseInsensitive bool) []Candidate {
	cands := make([]Candidate, 0, len(raw))
	for _, r := range raw {
		cands = append(cands, Candidate{
			Display:   r.Display,
			Insertion: r.Insertion,
			Kind:      r.Kind,
			Detail:    r.Signature,
			Priority:  r.Priority,
		})
	}

	sort.SliceStable(cands, func(i, j int) bool {
		ci, cj := classify(cands[i].Display, prefix, caseInsensitive), classify(cands[j].Display, prefix, caseInsensitive)
		if ci != cj {
			return ci < cj
		}
		if cands[i].Priority != cands[j].Priority {
			return cands[i].Priority < cands[j].Priority
		}
		return cands[i].Display < cands[j].Display
	})

	return cands
}
