package convert

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies conversion failures. Every kind is terminal for the
// conversion call that produced it.
type ErrorKind int

const (
	// KindNotFound indicates the source is missing or unreadable.
	KindNotFound ErrorKind = iota + 1
	// KindUnsupportedFormat indicates no format is registered for the extension.
	KindUnsupportedFormat
	// KindMalformedInput indicates the source could not be parsed or serialized.
	KindMalformedInput
	// KindIOError indicates the destination could not be written.
	KindIOError
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindUnsupportedFormat:
		return "unsupported_format"
	case KindMalformedInput:
		return "malformed_input"
	case KindIOError:
		return "io_error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is a classified conversion failure.
// Line and Column are 1-based and zero when the parser gave no position.
type Error struct {
	Kind   ErrorKind
	Path   string
	Msg    string
	Line   int
	Column int
	Offset int64
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Path != "" {
		b.WriteString(": ")
		b.WriteString(e.Path)
	}
	if e.Line > 0 {
		fmt.Fprintf(&b, ":%d", e.Line)
		if e.Column > 0 {
			fmt.Fprintf(&b, ":%d", e.Column)
		}
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a conversion error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var convErr *Error
	if errors.As(err, &convErr) {
		return convErr.Kind == kind
	}
	return false
}

// KindOf returns the kind of a conversion error, or zero.
func KindOf(err error) ErrorKind {
	var convErr *Error
	if errors.As(err, &convErr) {
		return convErr.Kind
	}
	return 0
}

func malformed(msg string, err error) *Error {
	return &Error{Kind: KindMalformedInput, Msg: msg, Err: err}
}

// withPath fills in Path on a conversion error, or classifies a bare error
// as fallback.
func withPath(err error, path string, fallback ErrorKind) error {
	if err == nil {
		return nil
	}
	var convErr *Error
	if errors.As(err, &convErr) {
		if convErr.Path == "" {
			convErr.Path = path
		}
		return convErr
	}
	return &Error{Kind: fallback, Path: path, Err: err}
}

// lineColumn converts a byte offset into 1-based line and column numbers.
func lineColumn(data []byte, offset int64) (line, column int) {
	if offset < 0 {
		return 0, 0
	}
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	line, column = 1, 1
	for _, c := range data[:offset] {
		if c == '\n' {
			line++
			column = 1
		} else {
			column++
		}
	}
	return line, column
}
