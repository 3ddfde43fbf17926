//go:build cgo

package completion

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/cpp"
)

// Classifier determines the token context at the cursor using the
// tree-sitter C++ grammar, which parses C and Objective-C constructs well
// enough for this coarse classification.
type Classifier struct {
	parser *sitter.Parser
}

// NewClassifier creates a classifier.
func NewClassifier() *Classifier {
	parser := sitter.NewParser()
	parser.SetLanguage(cpp.GetLanguage())
	return &Classifier{parser: parser}
}

// Classify returns the token context at the 1-based cursor position.
func (c *Classifier) Classify(ctx context.Context, content []byte, line, col int) Context {
	if c == nil {
		return CtxUnknown
	}

	tree, err := c.parser.ParseCtx(ctx, nil, content)
	if err != nil || tree == nil {
		return CtxUnknown
	}
	defer tree.Close()

	// Look at the character before the cursor; the cursor itself sits one
	// past the text typed so far.
	row := uint32(line - 1)
	column := uint32(col - 1)
	if column > 0 {
		column--
	}
	point := sitter.Point{Row: row, Column: column}

	node := tree.RootNode().NamedDescendantForPointRange(point, point)
	for node != nil {
		switch node.Type() {
		case "comment":
			return CtxComment
		case "string_literal", "raw_string_literal", "char_literal",
			"string_content", "concatenated_string":
			return CtxString
		case "field_expression":
			return CtxMember
		case "system_lib_string", "preproc_include", "preproc_def",
			"preproc_function_def", "preproc_ifdef", "preproc_if", "preproc_call":
			// Include paths classify as preproc, not string, so header name
			// completion keeps working inside the angle brackets.
			return CtxPreproc
		}
		node = node.Parent()
	}

	return CtxGeneral
}
