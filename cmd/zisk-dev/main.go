// Package main provides the zisk-dev CLI entrypoint.
//
// Usage:
//
//	zisk-dev [global options] <command> [options]
//
// Exit codes:
//   - 0: success
//   - 1: failure, including a non-zero exit of a toolchain program
//   - 2: invalid input, arguments, paths or configuration
//   - 3: filesystem, artifact storage or output capture error
//   - 4: operation timed out
//   - 5: a toolchain program could not be started
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/zisk-dev/zisk-dev/cli/cmd"
	"github.com/zisk-dev/zisk-dev/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		// ExitErrHandler already handled the exit for cli.ExitCoder errors.
		// This branch handles unexpected errors that weren't wrapped.
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:           "zisk-dev",
		Usage:          "Developer CLI for ZisK guest programs: convert inputs, build, prove, verify",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		Flags:          cmd.GlobalFlags(),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.ConvertCommand(),
			cmd.BuildCommand(),
			cmd.ProveCommand(),
			cmd.VerifyCommand(),
			cmd.ExecuteCommand(),
			cmd.ArtifactsCommand(),
			cmd.DoctorCommand(),
			cmd.VersionCommand(commit),
		},
	}
}

// osExit is replaced in tests.
var osExit = os.Exit

// exitErrHandler handles errors from the CLI, preserving exit codes from cli.Exit().
func exitErrHandler(c *cli.Context, err error) {
	if err == nil {
		return
	}

	var stderr io.Writer = os.Stderr
	if c != nil && c.App != nil && c.App.ErrWriter != nil {
		stderr = c.App.ErrWriter
	}

	// Check for ExitCoder (from cli.Exit), handles wrapped errors
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()

		// cli.Exit("", N).Error() returns "exit status N", so skip those
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(stderr, msg)
		}
		osExit(code)
		return
	}

	// Unexpected error - print and exit with code 1
	fmt.Fprintf(stderr, "Error: %v\n", err)
	osExit(1)
}
