package process

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies executor failures. All kinds are terminal; the
// executor never retries.
type ErrorKind int

const (
	// KindCommandNotAllowed indicates a program outside the allow-list.
	KindCommandNotAllowed ErrorKind = iota + 1
	// KindInvalidArguments indicates an argument that failed sanitization.
	KindInvalidArguments
	// KindPathViolation indicates a path argument escaping the working directory.
	KindPathViolation
	// KindTimeout indicates the operation budget expired and the child was terminated.
	KindTimeout
	// KindNonZeroExit indicates the child exited with a non-zero status.
	KindNonZeroExit
	// KindSpawnFailure indicates the OS could not start the child.
	KindSpawnFailure
	// KindOutputOverflow indicates captured output exceeded the limit.
	KindOutputOverflow
	// KindCanceled indicates the caller's context ended before the child finished.
	KindCanceled
)

func (k ErrorKind) String() string {
	switch k {
	case KindCommandNotAllowed:
		return "command_not_allowed"
	case KindInvalidArguments:
		return "invalid_arguments"
	case KindPathViolation:
		return "path_violation"
	case KindTimeout:
		return "timeout"
	case KindNonZeroExit:
		return "non_zero_exit"
	case KindSpawnFailure:
		return "spawn_failure"
	case KindOutputOverflow:
		return "output_overflow"
	case KindCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is a classified executor failure. Stderr holds the redacted tail
// of the child's stderr for KindNonZeroExit and KindTimeout.
type Error struct {
	Kind     ErrorKind
	Program  string
	ExitCode int
	Stderr   string
	Path     string
	Msg      string
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Program != "" {
		b.WriteString(": ")
		b.WriteString(e.Program)
	}
	if e.Kind == KindNonZeroExit {
		fmt.Fprintf(&b, ": exit status %d", e.ExitCode)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, ": %q", e.Path)
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

// IsKind reports whether err is an executor error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var procErr *Error
	if errors.As(err, &procErr) {
		return procErr.Kind == kind
	}
	return false
}

// KindOf returns the kind of an executor error, or zero.
func KindOf(err error) ErrorKind {
	var procErr *Error
	if errors.As(err, &procErr) {
		return procErr.Kind
	}
	return 0
}

// Causes attached to the run context so Wait's outcome can be classified.
var (
	errTimedOut       = errors.New("operation timed out")
	errOutputOverflow = errors.New("output exceeded capture limit")
)
