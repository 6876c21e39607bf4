package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/zisk-dev/zisk-dev/artifact"
	"github.com/zisk-dev/zisk-dev/cli/render"
	"github.com/zisk-dev/zisk-dev/cli/report"
	"github.com/zisk-dev/zisk-dev/convert"
)

// artifactKindInput is the artifact kind of converted inputs.
const artifactKindInput = "input"

// ConvertCommand returns the convert command.
func ConvertCommand() *cli.Command {
	return &cli.Command{
		Name:      "convert",
		Usage:     "Convert JSON, YAML, text or binary inputs into ZisK input files",
		ArgsUsage: "[source file or directory]",
		Flags: append(OutputFlags(),
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "Destination file (single source) or directory (default: outputs.dir)",
			},
			&cli.StringFlag{
				Name:  "mode",
				Usage: "Payload serialization: default, compact, typed, msgpack",
			},
			&cli.StringFlag{
				Name:  "text-mode",
				Usage: "How .txt sources are parsed: lines, csv, keyvalue",
			},
			&cli.IntFlag{
				Name:  "parallel",
				Usage: "Concurrent conversions for directory sources (default: CPU count)",
			},
			&cli.BoolFlag{
				Name:  "publish",
				Usage: "Publish converted files to the configured artifact store",
			},
		),
		Action: convertAction,
	}
}

func convertAction(c *cli.Context) error {
	if err := rejectTUI(c); err != nil {
		return err
	}
	if c.NArg() > 1 {
		return exitError(usagef("convert takes at most one source, got %d", c.NArg()))
	}

	s, err := newSession(c)
	if err != nil {
		return exitError(err)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return exitError(&usageError{err: err})
	}

	mode, err := convert.ParseMode(resolveString(c, "mode", s.cfg.Convert.Mode))
	if err != nil {
		return exitError(&usageError{err: err})
	}
	textMode, err := convert.ParseTextMode(resolveString(c, "text-mode", s.cfg.Convert.TextMode))
	if err != nil {
		return exitError(&usageError{err: err})
	}
	opts := convert.Options{Mode: mode, TextMode: textMode, Parallelism: c.Int("parallel")}

	source := c.Args().First()
	if source == "" {
		source = s.cfg.InputsDir()
	}
	source = s.path(source)

	ctx, cancel := signalContext()
	defer cancel()

	resp := &report.ConvertResponse{}
	var convErr error

	info, statErr := os.Stat(source)
	if statErr == nil && info.IsDir() {
		dst := s.path(resolveString(c, "out", s.cfg.OutputsDir()))
		resp.Converted, convErr = s.converter.ConvertDir(ctx, source, dst, opts)
		resp.Failed = countErrors(convErr)
	} else {
		dst := c.String("out")
		if dst == "" {
			stem := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
			dst = filepath.Join(s.cfg.OutputsDir(), stem+convert.OutputExt)
		}
		res, err := s.converter.Convert(ctx, source, s.path(dst), opts)
		if err != nil {
			convErr = err
			resp.Failed = 1
		} else {
			resp.Converted = append(resp.Converted, res)
		}
	}

	if c.Bool("publish") && len(resp.Converted) > 0 {
		published, err := publishConverted(ctx, s, resp.Converted)
		resp.Published = published
		if err != nil {
			convErr = errors.Join(convErr, err)
		}
	}

	if err := r.RenderSections(resp,
		render.Section{Title: "Converted", Data: resp.Rows()},
	); err != nil {
		return err
	}

	return exitError(convErr)
}

func publishConverted(ctx context.Context, s *session, results []*convert.Result) ([]*artifact.Published, error) {
	store, err := s.openStore(ctx)
	if err != nil {
		return nil, err
	}

	var (
		published []*artifact.Published
		errs      []error
	)
	for _, res := range results {
		p, err := store.Publish(ctx, res.Destination, artifactKindInput)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		published = append(published, p)
	}
	return published, errors.Join(errs...)
}

// countErrors counts the errors joined into err.
func countErrors(err error) int {
	if err == nil {
		return 0
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return len(joined.Unwrap())
	}
	return 1
}
