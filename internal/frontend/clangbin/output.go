package clangbin

import (
	"bufio"
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"ccd/internal/frontend"
)

var (
	diagRe  = regexp.MustCompile(`^(.+?):(\d+):(\d+):\s+(fatal error|error|warning|note):\s+(.*)$`)
	driverRe = regexp.MustCompile(`^(?:[\w.+-]*clang[\w.+-]*:\s+)?(fatal error|error|warning|note):\s+(.*)$`)
	fixitRe = regexp.MustCompile(`^fix-it:"(.*)":\{(\d+):(\d+)-(\d+):(\d+)\}:"(.*)"$`)

	completionRe = regexp.MustCompile(`^COMPLETION:\s+(.+?)(?:\s+:\s+(.*))?$`)
)

// parseDiagnostics extracts diagnostics from clang stderr output. Diagnostics
// reported against stdin are rehomed to the main file; driver-level messages
// with no location keep Line 0 for the collector to rehome.
func parseDiagnostics(out []byte, mainFile string) []frontend.Diagnostic {
	var diags []frontend.Diagnostic

	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		if m := fixitRe.FindStringSubmatch(line); m != nil {
			if len(diags) == 0 {
				continue
			}
			last := &diags[len(diags)-1]
			last.FixIts = append(last.FixIts, frontend.FixIt{
				File:      rehome(m[1], mainFile),
				StartLine: atoi(m[2]),
				StartCol:  atoi(m[3]),
				EndLine:   atoi(m[4]),
				EndCol:    atoi(m[5]),
				Text:      m[6],
			})
			continue
		}

		if m := diagRe.FindStringSubmatch(line); m != nil {
			diags = append(diags, frontend.Diagnostic{
				File:     rehome(m[1], mainFile),
				Line:     atoi(m[2]),
				Column:   atoi(m[3]),
				Severity: severityFor(m[4]),
				Message:  m[5],
			})
			continue
		}

		if m := driverRe.FindStringSubmatch(line); m != nil {
			diags = append(diags, frontend.Diagnostic{
				File:     mainFile,
				Severity: severityFor(m[1]),
				Message:  m[2],
			})
		}
	}

	return diags
}

func severityFor(s string) frontend.Severity {
	switch s {
	case "fatal error":
		return frontend.SeverityFatal
	case "error":
		return frontend.SeverityError
	case "warning":
		return frontend.SeverityWarning
	default:
		return frontend.SeverityNote
	}
}

func rehome(file, mainFile string) string {
	if file == "-" || file == "<stdin>" {
		return mainFile
	}
	return file
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// parseCompletions extracts completion candidates from clang's
// -code-completion-at output. Result order is clang's own ranking, preserved
// as the candidate priority.
func parseCompletions(out []byte) []frontend.RawCandidate {
	var cands []frontend.RawCandidate

	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		m := completionRe.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		display, signature := m[1], m[2]

		cand := frontend.RawCandidate{
			Display:   display,
			Insertion: display,
			Kind:      kindFor(display, signature),
			Signature: cleanSignature(signature),
			Priority:  len(cands),
		}
		if cand.Kind == frontend.KindKeyword {
			cand.Display = cleanSignature(signature)
			cand.Insertion = cand.Display
		}
		cands = append(cands, cand)
	}

	return cands
}

// kindFor infers a candidate kind from the shape of a COMPLETION line. The
// text protocol does not carry libclang cursor kinds, so this is a
// best-effort mapping; context filtering downstream tolerates KindOther.
func kindFor(display, signature string) frontend.CandidateKind {
	switch {
	case display == "Pattern":
		return frontend.KindKeyword
	case signature == "":
		return frontend.KindMacro
	case signature == display:
		return frontend.KindType
	case strings.Contains(signature, display+"("):
		return frontend.KindFunction
	case strings.HasPrefix(signature, "[#"):
		return frontend.KindVariable
	default:
		return frontend.KindOther
	}
}

// cleanSignature strips clang's placeholder markup: [#int#]size() const
// becomes int size() const, and <#args#> keeps the placeholder text.
func cleanSignature(sig string) string {
	sig = strings.ReplaceAll(sig, "[#", "")
	sig = strings.ReplaceAll(sig, "<#", "")
	sig = strings.ReplaceAll(sig, "#>", "")
	sig = strings.ReplaceAll(sig, "#]", " ")
	sig = strings.Join(strings.Fields(sig), " ")
	return sig
}
