package flags

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// compileCommand is one entry of a compile_commands.json database.
type compileCommand struct {
	Directory string   `json:"directory"`
	Command   string   `json:"command,omitempty"`
	Arguments []string `json:"arguments,omitempty"`
	File      string   `json:"file"`
}

// database is a loaded compilation database indexed by absolute file path.
type database struct {
	path    string
	entries map[string]compileCommand
}

// loadDatabase reads and indexes a compile_commands.json file.
func loadDatabase(path string) (*database, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cmds []compileCommand
	if err := json.Unmarshal(data, &cmds); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	db := &database{path: path, entries: make(map[string]compileCommand, len(cmds))}
	for _, cmd := range cmds {
		file := cmd.File
		if !filepath.IsAbs(file) {
			file = filepath.Join(cmd.Directory, file)
		}
		db.entries[filepath.Clean(file)] = cmd
	}
	return db, nil
}

// args returns the normalized compiler arguments of an entry.
func (cmd compileCommand) args() []string {
	raw := cmd.Arguments
	if len(raw) == 0 {
		raw = splitCommand(cmd.Command)
	}
	return normalizeArgs(raw, cmd.Directory)
}

// splitCommand splits a shell command line into arguments, honoring single
// and double quotes. Compilation databases escape conservatively, so this
// does not handle the full shell grammar.
func splitCommand(command string) []string {
	var args []string
	var cur strings.Builder
	var quote rune
	inArg := false

	for _, r := range command {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inArg = true
		case r == ' ' || r == '\t':
			if inArg {
				args = append(args, cur.String())
				cur.Reset()
				inArg = false
			}
		default:
			cur.WriteRune(r)
			inArg = true
		}
	}
	if inArg {
		args = append(args, cur.String())
	}
	return args
}

// argsWithValue are flags whose value is the next argument and must be kept
// together with it.
var argsWithValue = map[string]bool{
	"-I": true, "-isystem": true, "-iquote": true, "-include": true,
	"-D": true, "-U": true, "-x": true, "-std": true, "-isysroot": true,
	"-F": true, "-framework": true,
}

// argsToDrop are flags irrelevant to a syntax-only parse; -o and -c would
// make clang try to produce build outputs.
var argsToDrop = map[string]bool{
	"-c": true, "-o": true, "-MMD": true, "-MD": true, "-MP": true,
	"-MF": true, "-MT": true, "-MQ": true,
}

var dropsValue = map[string]bool{
	"-o": true, "-MF": true, "-MT": true, "-MQ": true,
}

// normalizeArgs strips the compiler argv[0], build-output flags, and the
// input file, and absolutizes relative include paths against the entry's
// directory so the flags work from any working directory.
func normalizeArgs(raw []string, dir string) []string {
	if len(raw) == 0 {
		return nil
	}
	raw = raw[1:] // compiler executable

	var out []string
	skipNext := false
	for i := 0; i < len(raw); i++ {
		arg := raw[i]
		if skipNext {
			skipNext = false
			continue
		}
		if argsToDrop[arg] {
			skipNext = dropsValue[arg]
			continue
		}
		if argsWithValue[arg] && i+1 < len(raw) {
			val := raw[i+1]
			if isPathFlag(arg) && !filepath.IsAbs(val) {
				val = filepath.Join(dir, val)
			}
			out = append(out, arg, val)
			i++
			continue
		}
		if pref, val, ok := splitJoinedPathFlag(arg); ok {
			if !filepath.IsAbs(val) {
				val = filepath.Join(dir, val)
			}
			out = append(out, pref+val)
			continue
		}
		if !strings.HasPrefix(arg, "-") && looksLikeSource(arg) {
			continue // input file
		}
		out = append(out, arg)
	}
	return out
}

func isPathFlag(flag string) bool {
	switch flag {
	case "-I", "-isystem", "-iquote", "-include", "-isysroot", "-F":
		return true
	}
	return false
}

// splitJoinedPathFlag handles -Ifoo/bar style arguments.
func splitJoinedPathFlag(arg string) (prefix, value string, ok bool) {
	for _, p := range []string{"-I", "-iquote", "-F"} {
		if strings.HasPrefix(arg, p) && len(arg) > len(p) {
			return p, arg[len(p):], true
		}
	}
	return "", "", false
}

func looksLikeSource(arg string) bool {
	switch strings.ToLower(filepath.Ext(arg)) {
	case ".c", ".cc", ".cpp", ".cxx", ".m", ".mm", ".h", ".hh", ".hpp":
		return true
	}
	return false
}
