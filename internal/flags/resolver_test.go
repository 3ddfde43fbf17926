package flags

import (
	"os"
	"path/filepath"
	"testing"

	ccderr "ccd/internal/errors"
	"ccd/internal/logging"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func newResolver(t *testing.T, fallback []string) *Resolver {
	t.Helper()
	r, err := NewResolver(fallback, 16, logging.Discard())
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestResolveFromDatabase(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	writeFile(t, filepath.Join(dir, "compile_commands.json"), `[
		{"directory": "`+dir+`", "command": "clang++ -std=c++17 -Iinclude -c src/a.cpp -o a.o", "file": "src/a.cpp"}
	]`)
	writeFile(t, filepath.Join(src, "a.cpp"), "int main() {}")

	r := newResolver(t, nil)
	f, err := r.Resolve(filepath.Join(src, "a.cpp"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	want := []string{"-std=c++17", "-I" + filepath.Join(dir, "include")}
	if len(f.Args) != len(want) {
		t.Fatalf("Args = %v, want %v", f.Args, want)
	}
	for i := range want {
		if f.Args[i] != want[i] {
			t.Errorf("Args[%d] = %q, want %q", i, f.Args[i], want[i])
		}
	}
	if f.WorkingDir != dir {
		t.Errorf("WorkingDir = %q, want %q", f.WorkingDir, dir)
	}
}

func TestResolveBorrowsNeighborFlags(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	writeFile(t, filepath.Join(dir, "compile_commands.json"), `[
		{"directory": "`+dir+`", "arguments": ["clang++", "-DNEIGHBOR", "-c", "src/a.cpp"], "file": "src/a.cpp"}
	]`)
	writeFile(t, filepath.Join(src, "a.cpp"), "")
	writeFile(t, filepath.Join(src, "b.h"), "")

	r := newResolver(t, nil)
	f, err := r.Resolve(filepath.Join(src, "b.h"))
	if err != nil {
		t.Fatalf("Resolve() for header error = %v", err)
	}
	if len(f.Args) != 1 || f.Args[0] != "-DNEIGHBOR" {
		t.Errorf("Args = %v, want [-DNEIGHBOR]", f.Args)
	}
}

func TestResolveFlagsFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".ccd_flags"), "- -std=c++20\n- -Wall\n")
	writeFile(t, filepath.Join(dir, "sub", "a.cpp"), "")

	r := newResolver(t, nil)
	f, err := r.Resolve(filepath.Join(dir, "sub", "a.cpp"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(f.Args) != 2 || f.Args[0] != "-std=c++20" || f.Args[1] != "-Wall" {
		t.Errorf("Args = %v, want [-std=c++20 -Wall]", f.Args)
	}
	if f.WorkingDir != dir {
		t.Errorf("WorkingDir = %q, want flags file dir %q", f.WorkingDir, dir)
	}
}

func TestResolveFallback(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.cpp"), "")

	r := newResolver(t, []string{"-std=c++17"})
	f, err := r.Resolve(filepath.Join(dir, "a.cpp"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(f.Args) != 1 || f.Args[0] != "-std=c++17" {
		t.Errorf("Args = %v, want fallback flags", f.Args)
	}
}

func TestResolveExtraDatabaseDir(t *testing.T) {
	srcDir := t.TempDir()
	buildDir := t.TempDir()
	writeFile(t, filepath.Join(srcDir, "a.cpp"), "")
	writeFile(t, filepath.Join(buildDir, "compile_commands.json"), `[
		{"directory": "`+srcDir+`", "arguments": ["clang++", "-DOUTOFTREE", "-c", "a.cpp"], "file": "a.cpp"}
	]`)

	r := newResolver(t, nil)
	r.SetDatabaseDirs([]string{buildDir})

	f, err := r.Resolve(filepath.Join(srcDir, "a.cpp"))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(f.Args) != 1 || f.Args[0] != "-DOUTOFTREE" {
		t.Errorf("Args = %v, want [-DOUTOFTREE]", f.Args)
	}
}

func TestOnDiscoverReportsFlagSourceDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "compile_commands.json"), `[
		{"directory": "`+dir+`", "arguments": ["clang", "-c", "a.c"], "file": "a.c"}
	]`)
	writeFile(t, filepath.Join(dir, "sub", "a.c"), "")

	r := newResolver(t, nil)
	var seen []string
	r.OnDiscover(func(d string) { seen = append(seen, d) })

	if _, err := r.Resolve(filepath.Join(dir, "sub", "a.c")); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(seen) != 1 || seen[0] != dir {
		t.Errorf("discovered dirs = %v, want [%s]", seen, dir)
	}

	// Cached lookups do not re-announce.
	if _, err := r.Resolve(filepath.Join(dir, "sub", "a.c")); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 1 {
		t.Errorf("discovered dirs after cached resolve = %v, want one entry", seen)
	}
}

func TestResolveUnavailable(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.cpp"), "")

	r := newResolver(t, nil)
	_, err := r.Resolve(filepath.Join(dir, "a.cpp"))
	if !ccderr.Is(err, ccderr.FlagsUnavailable) {
		t.Errorf("error = %v, want FLAGS_UNAVAILABLE", err)
	}
}

func TestResolveCachesAndInvalidates(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "compile_commands.json")
	writeFile(t, dbPath, `[
		{"directory": "`+dir+`", "arguments": ["clang++", "-DOLD", "-c", "a.cpp"], "file": "a.cpp"}
	]`)
	writeFile(t, filepath.Join(dir, "a.cpp"), "")

	r := newResolver(t, nil)
	path := filepath.Join(dir, "a.cpp")

	f1, err := r.Resolve(path)
	if err != nil {
		t.Fatal(err)
	}

	// The database changes on disk; without invalidation the cached lookup
	// still answers.
	writeFile(t, dbPath, `[
		{"directory": "`+dir+`", "arguments": ["clang++", "-DNEW", "-c", "a.cpp"], "file": "a.cpp"}
	]`)

	f2, _ := r.Resolve(path)
	if !f1.Equal(f2) {
		t.Error("cached result should survive unnotified database changes")
	}

	r.Invalidate(dbPath)
	f3, err := r.Resolve(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(f3.Args) != 1 || f3.Args[0] != "-DNEW" {
		t.Errorf("after invalidation Args = %v, want [-DNEW]", f3.Args)
	}
}

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{`clang++ -c a.cpp`, []string{"clang++", "-c", "a.cpp"}},
		{`clang -DMSG="hello world" a.c`, []string{"clang", "-DMSG=hello world", "a.c"}},
		{`clang -I'dir with spaces' a.c`, []string{"clang", "-Idir with spaces", "a.c"}},
		{``, nil},
	}
	for _, tt := range tests {
		got := splitCommand(tt.in)
		if len(got) != len(tt.want) {
			t.Errorf("splitCommand(%q) = %v, want %v", tt.in, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("splitCommand(%q)[%d] = %q, want %q", tt.in, i, got[i], tt.want[i])
			}
		}
	}
}

func TestNormalizeArgsDropsOutputs(t *testing.T) {
	got := normalizeArgs([]string{"cc", "-c", "-o", "a.o", "-MF", "a.d", "-Wall", "a.c"}, "/b")
	if len(got) != 1 || got[0] != "-Wall" {
		t.Errorf("normalizeArgs() = %v, want [-Wall]", got)
	}
}

func TestFlagsEqual(t *testing.T) {
	a := Flags{Args: []string{"-std=c++17", "-Wall"}, WorkingDir: "/x"}
	b := Flags{Args: []string{"-std=c++17", "-Wall"}, WorkingDir: "/x"}
	c := Flags{Args: []string{"-Wall", "-std=c++17"}, WorkingDir: "/x"}

	if !a.Equal(b) {
		t.Error("identical flag sets should be equal")
	}
	if a.Equal(c) {
		t.Error("flag order matters")
	}
}
