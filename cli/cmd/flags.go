// Package cmd provides CLI commands for the zisk-dev binary.
package cmd

import "github.com/urfave/cli/v2"

// Global flags, accepted before the command name.
var (
	// ConfigFlag selects the project config file.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to zisk-dev.yaml (default: <project-dir>/zisk-dev.yaml when present)",
		EnvVars: []string{"ZISK_DEV_CONFIG"},
	}

	// ProjectDirFlag sets the project root. Relative paths in flags and
	// config resolve against it, and tools run in it.
	ProjectDirFlag = &cli.StringFlag{
		Name:    "project-dir",
		Aliases: []string{"C"},
		Usage:   "Project root directory",
		Value:   ".",
	}

	// LogLevelFlag sets the structured log level.
	LogLevelFlag = &cli.StringFlag{
		Name:    "log-level",
		Usage:   "Log level: debug, info, warn, error",
		Value:   "warn",
		EnvVars: []string{"ZISK_DEV_LOG_LEVEL"},
	}
)

// Shared output flags.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	// Only valid for doctor.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (doctor only)",
	}

	// QuietFlag suppresses live tool output.
	QuietFlag = &cli.BoolFlag{
		Name:    "quiet",
		Aliases: []string{"q"},
		Usage:   "Do not stream tool output (it is still captured)",
	}

	// TimeoutFlag overrides the configured budget for one invocation.
	TimeoutFlag = &cli.DurationFlag{
		Name:  "timeout",
		Usage: "Kill the tool after this long (default: executor.timeouts for the operation)",
	}
)

// GlobalFlags returns the flags accepted by the app itself.
func GlobalFlags() []cli.Flag {
	return []cli.Flag{ConfigFlag, ProjectDirFlag, LogLevelFlag}
}

// OutputFlags returns the shared flags for commands that render a result.
// Includes --tui so that unsupported commands can provide explicit error
// messages instead of generic "flag not defined" errors.
func OutputFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}

// ToolFlags returns the output flags plus --quiet and --timeout, for
// commands that run toolchain programs.
func ToolFlags(extra ...cli.Flag) []cli.Flag {
	return append(append(OutputFlags(), QuietFlag, TimeoutFlag), extra...)
}

// rejectTUI returns an error when --tui was given to a command without a
// TUI view.
func rejectTUI(c *cli.Context) error {
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for "+c.Command.Name+" command", exitInvalidInput)
	}
	return nil
}
