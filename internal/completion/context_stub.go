//go:build !cgo

package completion

import "context"

// Classifier is a stub for non-CGO builds; classification is unavailable and
// the engine falls back to textual member detection only.
type Classifier struct{}

// NewClassifier returns nil when CGO is disabled.
func NewClassifier() *Classifier {
	return nil
}

// Classify always reports an unknown context.
func (c *Classifier) Classify(ctx context.Context, content []byte, line, col int) Context {
	return CtxUnknown
}
