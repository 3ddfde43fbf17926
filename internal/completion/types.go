package completion

// Context is the coarse token context at the cursor, used to filter
// candidate kinds and to suppress completion entirely inside comments and
// string literals.
type Context int

const (
	// CtxUnknown means classification was unavailable; no filtering applies.
	CtxUnknown Context = iota
	// CtxGeneral is ordinary code.
	CtxGeneral
	// CtxComment covers line and block comments.
	CtxComment
	// CtxString covers string and character literals.
	CtxString
	// CtxMember is the position after a . or -> member access.
	CtxMember
	// CtxPreproc is a preprocessor directive line.
	CtxPreproc
)

func (c Context) String() string {
	switch c {
	case CtxGeneral:
		return "general"
	case CtxComment:
		return "comment"
	case CtxString:
		return "string"
	case CtxMember:
		return "member"
	case CtxPreproc:
		return "preproc"
	default:
		return "unknown"
	}
}
