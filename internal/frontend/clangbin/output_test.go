package clangbin

import (
	"strings"
	"testing"

	"ccd/internal/frontend"
)

func TestParseDiagnostics(t *testing.T) {
	out := `In file included from /src/a.cpp:1:
/src/a.h:3:5: warning: unused variable 'v' [-Wunused-variable]
/src/a.cpp:12:9: error: use of undeclared identifier 'foo'
fix-it:"/src/a.cpp":{12:9-12:12}:"f"
/src/a.cpp:20:1: fatal error: 'missing.h' file not found
1 error generated.
`
	diags := parseDiagnostics([]byte(out), "/src/a.cpp")
	if len(diags) != 3 {
		t.Fatalf("got %d diagnostics, want 3: %+v", len(diags), diags)
	}

	if diags[0].Severity != frontend.SeverityWarning || diags[0].File != "/src/a.h" || diags[0].Line != 3 {
		t.Errorf("first diagnostic = %+v, want warning at /src/a.h:3", diags[0])
	}

	if diags[1].Severity != frontend.SeverityError || diags[1].Column != 9 {
		t.Errorf("second diagnostic = %+v, want error at col 9", diags[1])
	}
	if len(diags[1].FixIts) != 1 {
		t.Fatalf("second diagnostic has %d fix-its, want 1", len(diags[1].FixIts))
	}
	fix := diags[1].FixIts[0]
	if fix.Text != "f" || fix.StartLine != 12 || fix.StartCol != 9 || fix.EndCol != 12 {
		t.Errorf("fix-it = %+v", fix)
	}

	if diags[2].Severity != frontend.SeverityFatal {
		t.Errorf("third diagnostic severity = %s, want fatal", diags[2].Severity)
	}
}

func TestParseDiagnosticsStdinRehome(t *testing.T) {
	out := "<stdin>:4:2: error: expected ';' after expression\n"
	diags := parseDiagnostics([]byte(out), "/src/main.cpp")
	if len(diags) != 1 {
		t.Fatalf("got %d diagnostics, want 1", len(diags))
	}
	if diags[0].File != "/src/main.cpp" {
		t.Errorf("File = %q, want rehomed /src/main.cpp", diags[0].File)
	}
}

func TestParseDiagnosticsDriverError(t *testing.T) {
	out := "clang: error: unknown argument: '-fnope'\n"
	diags := parseDiagnostics([]byte(out), "/src/main.cpp")
	if len(diags) != 1 {
		t.Fatalf("got %d diagnostics, want 1", len(diags))
	}
	if diags[0].Line != 0 {
		t.Errorf("driver diagnostic Line = %d, want 0 (no location)", diags[0].Line)
	}
	if diags[0].Severity != frontend.SeverityError {
		t.Errorf("Severity = %s, want error", diags[0].Severity)
	}
}

func TestParseCompletions(t *testing.T) {
	out := `COMPLETION: x : [#int#]x
COMPLETION: size : [#size_t#]size()[# const#]
COMPLETION: string : string
COMPLETION: NDEBUG
COMPLETION: Pattern : static_cast<<#type#>>(<#expression#>)
`
	cands := parseCompletions([]byte(out))
	if len(cands) != 5 {
		t.Fatalf("got %d candidates, want 5", len(cands))
	}

	tests := []struct {
		display string
		kind    frontend.CandidateKind
	}{
		{"x", frontend.KindVariable},
		{"size", frontend.KindFunction},
		{"string", frontend.KindType},
		{"NDEBUG", frontend.KindMacro},
		{"static_cast<type>(expression)", frontend.KindKeyword},
	}
	for i, tt := range tests {
		if cands[i].Display != tt.display {
			t.Errorf("candidate %d display = %q, want %q", i, cands[i].Display, tt.display)
		}
		if cands[i].Kind != tt.kind {
			t.Errorf("candidate %d kind = %s, want %s", i, cands[i].Kind, tt.kind)
		}
		if cands[i].Priority != i {
			t.Errorf("candidate %d priority = %d, want clang order preserved", i, cands[i].Priority)
		}
	}

	if cands[1].Signature != "size_t size() const" {
		t.Errorf("cleaned signature = %q, want %q", cands[1].Signature, "size_t size() const")
	}
}

func TestParseCompletionsIgnoresNoise(t *testing.T) {
	out := `note: remark
/src/a.cpp:1:1: warning: something
COMPLETION: y : [#float#]y
`
	cands := parseCompletions([]byte(out))
	if len(cands) != 1 || cands[0].Display != "y" {
		t.Fatalf("got %+v, want single candidate y", cands)
	}
}

func TestLanguageFor(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/a/b.c", "c"},
		{"/a/b.cpp", "c++"},
		{"/a/b.cc", "c++"},
		{"/a/b.m", "objective-c"},
		{"/a/b.mm", "objective-c++"},
		{"/a/b.h", "c++-header"},
	}
	for _, tt := range tests {
		if got := languageFor(tt.path); got != tt.want {
			t.Errorf("languageFor(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestCleanSignature(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"[#int#]x", "int x"},
		{"[#void#]push_back(<#const T &__x#>)", "void push_back(const T &__x)"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := cleanSignature(tt.in); got != tt.want {
			t.Errorf("cleanSignature(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestVersionRegex(t *testing.T) {
	out := "Ubuntu clang version 18.1.3 (1ubuntu1)\nTarget: x86_64-pc-linux-gnu\n"
	m := versionRe.FindStringSubmatch(out)
	if m == nil {
		t.Fatal("version regex did not match clang --version output")
	}
	if !strings.HasPrefix(m[0], "version 18.1") {
		t.Errorf("matched %q", m[0])
	}
}
