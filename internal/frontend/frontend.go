// Package frontend defines the boundary to the compiler front end that
// parses translation units and answers completion queries. Callers treat
// parsed units as opaque handles; a handle is owned by exactly one cache
// entry and is not safe for concurrent use.
package frontend

import (
	"context"
)

// Severity is a diagnostic severity level as reported by the front end.
// The mapping is preserved exactly end to end.
type Severity string

const (
	SeverityFatal   Severity = "fatal"
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityNote    Severity = "note"
)

// FixIt is a replacement range suggested alongside a diagnostic.
type FixIt struct {
	File      string `json:"file"`
	StartLine int    `json:"startLine"`
	StartCol  int    `json:"startCol"`
	EndLine   int    `json:"endLine"`
	EndCol    int    `json:"endCol"`
	Text      string `json:"text"`
}

// Diagnostic is a single compiler diagnostic. Diagnostics with no source
// location have Line == 0 and are rehomed by the collector.
type Diagnostic struct {
	File     string   `json:"file"`
	Line     int      `json:"line"`
	Column   int      `json:"column"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	FixIts   []FixIt  `json:"fixIts,omitempty"`
}

// CandidateKind tags what sort of entity a raw completion result names.
type CandidateKind string

const (
	KindFunction     CandidateKind = "function"
	KindMethod       CandidateKind = "method"
	KindVariable     CandidateKind = "variable"
	KindField        CandidateKind = "field"
	KindType         CandidateKind = "type"
	KindNamespace    CandidateKind = "namespace"
	KindMacro        CandidateKind = "macro"
	KindKeyword      CandidateKind = "keyword"
	KindEnumConstant CandidateKind = "enumConstant"
	KindConstructor  CandidateKind = "constructor"
	KindOther        CandidateKind = "other"
)

// RawCandidate is one completion result as the front end reports it, before
// any filtering or re-ranking.
type RawCandidate struct {
	Display   string        `json:"display"`
	Insertion string        `json:"insertion"`
	Kind      CandidateKind `json:"kind"`
	Signature string        `json:"signature"`
	// Priority is the front end's own ranking, lower is better.
	Priority int `json:"priority"`
}

// Handle is an opaque reference to a parsed translation unit. Implementations
// attach whatever state they need; callers only pass it back.
type Handle interface{}

// Frontend is the compiler front end the core delegates to. All calls are
// blocking and must be serialized per handle by the caller; no internal
// concurrency guarantees are assumed.
//
// Parse may fail while still producing diagnostics; only a nil handle with a
// non-nil error is a handle-level failure.
type Frontend interface {
	Parse(ctx context.Context, mainFile string, flags []string, workingDir string, unsaved map[string][]byte) (Handle, []Diagnostic, error)
	Reparse(ctx context.Context, h Handle, unsaved map[string][]byte) ([]Diagnostic, error)
	CompleteAt(ctx context.Context, h Handle, line, col int, unsaved map[string][]byte) ([]RawCandidate, error)
	Dispose(h Handle)
}
