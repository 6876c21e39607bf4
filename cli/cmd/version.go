package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/zisk-dev/zisk-dev/cli/render"
	"github.com/zisk-dev/zisk-dev/cli/report"
	"github.com/zisk-dev/zisk-dev/types"
)

// VersionCommand returns the version command.
// It must not load configuration or run any tool.
func VersionCommand(commit string) *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  OutputFlags(),
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		r, err := render.NewRenderer(c)
		if err != nil {
			return exitError(&usageError{err: err})
		}

		// TUI not supported for version command
		if err := rejectTUI(c); err != nil {
			return err
		}

		return r.Render(report.VersionResponse{
			Version: types.Version,
			Commit:  commit,
		})
	}
}
