package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		name string
		err  *CcdError
		want string
	}{
		{
			name: "without cause",
			err:  New(FlagsUnavailable, "no compilation database entry", nil),
			want: "[FLAGS_UNAVAILABLE] no compilation database entry",
		},
		{
			name: "with cause",
			err:  New(LibraryFault, "clang invocation failed", stderrors.New("exit status 254")),
			want: "[LIBRARY_FAULT] clang invocation failed: exit status 254",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("boom")
	err := New(ParseFailed, "no AST handle", cause)

	if !stderrors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"nil", nil, ""},
		{"direct", New(Timeout, "deadline exceeded", nil), Timeout},
		{"wrapped", fmt.Errorf("outer: %w", New(Cancelled, "superseded", nil)), Cancelled},
		{"foreign", stderrors.New("plain"), InternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIs(t *testing.T) {
	err := New(InvalidPosition, "cursor past end of file", nil)
	if !Is(err, InvalidPosition) {
		t.Error("Is() should match the carried code")
	}
	if Is(err, Timeout) {
		t.Error("Is() should not match a different code")
	}
}
