package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/zisk-dev/zisk-dev/cli/render"
	"github.com/zisk-dev/zisk-dev/cli/report"
	"github.com/zisk-dev/zisk-dev/cli/tui"
	"github.com/zisk-dev/zisk-dev/platform"
	"github.com/zisk-dev/zisk-dev/process"
	"github.com/zisk-dev/zisk-dev/types"
)

// versionTimeout bounds each `<tool> --version` probe.
const versionTimeout = 10 * time.Second

// requiredTools must be present for doctor --strict to pass.
var requiredTools = []string{types.ToolCargoZisk, types.ToolZiskemu}

// DoctorCommand returns the doctor command.
// Doctor is read-only: it only runs `--version` probes.
func DoctorCommand() *cli.Command {
	return &cli.Command{
		Name:  "doctor",
		Usage: "Report host capabilities, toolchain paths and executor settings",
		Flags: append(OutputFlags(),
			&cli.BoolFlag{Name: "stats", Usage: "Include invocation metrics (TUI shows the metrics view)"},
			&cli.BoolFlag{Name: "no-versions", Usage: "Skip running <tool> --version"},
			&cli.BoolFlag{Name: "strict", Usage: "Exit non-zero when cargo-zisk or ziskemu is missing"},
		),
		Action: doctorAction,
	}
}

func doctorAction(c *cli.Context) error {
	s, err := newSession(c)
	if err != nil {
		return exitError(err)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return exitError(&usageError{err: err})
	}

	ctx, cancel := signalContext()
	defer cancel()

	var version platform.VersionFunc
	if !c.Bool("no-versions") {
		version = toolVersion(s.executor)
	}
	rep := &report.DoctorReport{
		Platform:   platform.Probe(ctx, version),
		Executor:   report.NewExecutorSettings(s.executor),
		ConfigPath: s.configPath,
		Project:    s.cfg.Project.Name,
		Storage:    s.cfg.Storage.Backend,
		Notify:     s.cfg.Notify.Type,
	}
	if c.Bool("stats") {
		snap := s.metrics.Snapshot()
		rep.Metrics = &snap
	}

	switch {
	case c.Bool("tui") && rep.Metrics != nil:
		err = r.RenderTUI(tui.ViewStats, rep.Metrics)
	case c.Bool("tui"):
		err = r.RenderTUI(tui.ViewDoctor, rep)
	default:
		sections := []render.Section{
			{Title: "Host", Data: rep.Summary()},
			{Title: "Toolchain", Data: rep.Platform.Tools},
			{Title: "Timeouts", Data: rep.Executor.Timeouts},
		}
		if rep.Metrics != nil {
			sections = append(sections, render.Section{Title: "Metrics", Data: rep.Metrics})
		}
		err = r.RenderSections(rep, sections...)
	}
	if err != nil {
		return err
	}

	if c.Bool("strict") {
		if missing := rep.MissingRequired(requiredTools...); len(missing) > 0 {
			return cli.Exit(fmt.Sprintf("missing required tools: %s", strings.Join(missing, ", ")), exitFailure)
		}
		if rep.Platform.ExecutionMode == platform.ModeUnsupported {
			return cli.Exit(fmt.Sprintf("unsupported platform: %s/%s", rep.Platform.OS, rep.Platform.Arch), exitFailure)
		}
	}
	return nil
}

// toolVersion runs `<path> --version` through the executor and returns
// the first line of its output.
func toolVersion(e *process.Executor) platform.VersionFunc {
	return func(ctx context.Context, _, path string) (string, error) {
		res, err := e.Execute(ctx, path, []string{"--version"}, process.Options{
			Operation: process.OpGeneric,
			Timeout:   versionTimeout,
			Quiet:     true,
		})
		if err != nil {
			return "", err
		}
		out := strings.TrimSpace(res.Stdout)
		if out == "" {
			out = strings.TrimSpace(res.Stderr)
		}
		first, _, _ := strings.Cut(out, "\n")
		return first, nil
	}
}
