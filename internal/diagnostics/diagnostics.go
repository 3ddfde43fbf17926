// Package diagnostics shapes the compiler diagnostics stored on a
// translation unit entry into the form delivered to the editor.
package diagnostics

import (
	"ccd/internal/frontend"
)

// Severity mirrors the front end's levels exactly; no level is collapsed
// into another.
type Severity string

const (
	SeverityFatal   Severity = "fatal"
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityNote    Severity = "note"
)

// Diagnostic is one issue reported against the translation unit. Diagnostics
// cover the whole unit, included headers too, since header errors are what
// broke the parse more often than not.
type Diagnostic struct {
	File     string          `json:"file"`
	Line     int             `json:"line"`
	Column   int             `json:"column"`
	Severity Severity        `json:"severity"`
	Message  string          `json:"message"`
	FixIts   []frontend.FixIt `json:"fixIts,omitempty"`
}

// severityFor maps frontend severities one to one.
func severityFor(s frontend.Severity) Severity {
	switch s {
	case frontend.SeverityFatal:
		return SeverityFatal
	case frontend.SeverityError:
		return SeverityError
	case frontend.SeverityWarning:
		return SeverityWarning
	default:
		return SeverityNote
	}
}

// Collect converts the diagnostics of the last parse. Diagnostics with no
// valid source location are still surfaced, attributed to the main file at
// line 1 column 1.
func Collect(mainFile string, diags []frontend.Diagnostic) []Diagnostic {
	out := make([]Diagnostic, 0, len(diags))
	for _, d := range diags {
		conv := Diagnostic{
			File:     d.File,
			Line:     d.Line,
			Column:   d.Column,
			Severity: severityFor(d.Severity),
			Message:  d.Message,
			FixIts:   d.FixIts,
		}
		if conv.Line <= 0 {
			conv.File = mainFile
			conv.Line = 1
			conv.Column = 1
		}
		out = append(out, conv)
	}
	return out
}

// CountBySeverity tallies diagnostics per severity, for status reporting.
func CountBySeverity(diags []Diagnostic) map[Severity]int {
	counts := make(map[Severity]int)
	for _, d := range diags {
		counts[d.Severity]++
	}
	return counts
}
