// Package flags resolves the compiler flags used to parse a source file,
// backed by a compilation database with per-directory caching.
package flags

// Flags is an ordered compiler argument list plus the directory the compiler
// should run in. Flags are associated with a file, never global.
type Flags struct {
	Args       []string `json:"args"`
	WorkingDir string   `json:"workingDir"`
}

// Equal reports whether two flag sets would build the same preprocessor
// state. Order matters.
func (f Flags) Equal(o Flags) bool {
	if f.WorkingDir != o.WorkingDir || len(f.Args) != len(o.Args) {
		return false
	}
	for i := range f.Args {
		if f.Args[i] != o.Args[i] {
			return false
		}
	}
	return true
}
