//go:build cgo

package completion

import (
	"context"
	"path/filepath"
	"testing"

	"ccd/internal/buffers"
	"ccd/internal/frontend"
	"ccd/internal/frontend/frontendtest"
	"ccd/internal/logging"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		line, col int
		want      Context
	}{
		{"line comment", "int x; // hello\n", 1, 12, CtxComment},
		{"block comment", "/* note */ int x;\n", 1, 6, CtxComment},
		{"string literal", `const char* s = "hel";`, 1, 20, CtxString},
		{"char literal", "char c = 'a';", 1, 12, CtxString},
		{"include path", "#include <vect>\n", 1, 14, CtxPreproc},
		{"plain code", "int main() { int x; }", 1, 18, CtxGeneral},
	}

	c := NewClassifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(context.Background(), []byte(tt.content), tt.line, tt.col)
			if got != tt.want {
				t.Errorf("Classify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompleteInsideCommentReturnsEmpty(t *testing.T) {
	raw := []frontend.RawCandidate{{Display: "x", Kind: frontend.KindVariable}}

	path := filepath.Join(t.TempDir(), "a.cpp")
	content := "int x; // see als\n"
	snap, err := buffers.NewSnapshot([]buffers.Buffer{{Path: path, Content: []byte(content)}})
	if err != nil {
		t.Fatal(err)
	}

	stub := frontendtest.New()
	stub.Candidates = raw
	handle, _, err := stub.Parse(context.Background(), path, nil, "", snap.Overlay())
	if err != nil {
		t.Fatal(err)
	}

	eng := NewEngine(0, logging.Discard())
	got, err := eng.Complete(context.Background(), stub, handle, path, snap, 1, 18, 0)
	if err != nil {
		t.Fatalf("comment cursor must not error, got %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d candidates inside a comment, want 0", len(got))
	}
	if stub.CompleteCalls() != 0 {
		t.Error("comment cursor should not reach the frontend")
	}
}
