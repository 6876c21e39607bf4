package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/zisk-dev/zisk-dev/artifact"
	"github.com/zisk-dev/zisk-dev/convert"
	"github.com/zisk-dev/zisk-dev/process"
)

// Exit codes.
const (
	exitSuccess      = 0
	exitFailure      = 1 // generic failure or non-zero tool exit
	exitInvalidInput = 2 // bad input, arguments, paths or configuration
	exitIOError      = 3 // filesystem, storage or output capture failure
	exitTimeout      = 4
	exitSpawnFailure = 5
)

// usageError marks invalid flags or configuration.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

// exitCodeFor maps an error to the process exit code.
func exitCodeFor(err error) int {
	if err == nil {
		return exitSuccess
	}

	var usage *usageError
	if errors.As(err, &usage) {
		return exitInvalidInput
	}

	var convErr *convert.Error
	if errors.As(err, &convErr) {
		switch convErr.Kind {
		case convert.KindNotFound, convert.KindUnsupportedFormat, convert.KindMalformedInput:
			return exitInvalidInput
		case convert.KindIOError:
			return exitIOError
		}
	}

	var procErr *process.Error
	if errors.As(err, &procErr) {
		switch procErr.Kind {
		case process.KindCommandNotAllowed, process.KindInvalidArguments, process.KindPathViolation:
			return exitInvalidInput
		case process.KindTimeout:
			return exitTimeout
		case process.KindOutputOverflow:
			return exitIOError
		case process.KindSpawnFailure:
			return exitSpawnFailure
		default:
			return exitFailure
		}
	}

	var storeErr *artifact.StorageError
	if errors.As(err, &storeErr) {
		return exitIOError
	}

	return exitFailure
}

// exitError wraps err for the app's ExitErrHandler.
func exitError(err error) error {
	if err == nil {
		return nil
	}
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		return err
	}
	msg := err.Error()
	var procErr *process.Error
	if errors.As(err, &procErr) {
		if tail := strings.TrimRight(procErr.Stderr, "\r\n"); tail != "" {
			msg += "\n" + tail
		}
	}
	return cli.Exit(msg, exitCodeFor(err))
}
