package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/zisk-dev/zisk-dev/cli/render"
)

// ArtifactsCommand returns the artifacts command with subcommands.
func ArtifactsCommand() *cli.Command {
	return &cli.Command{
		Name:  "artifacts",
		Usage: "List and fetch published inputs and proofs",
		Subcommands: []*cli.Command{
			artifactsListCommand(),
			artifactsFetchCommand(),
		},
	}
}

// ArtifactListResponse is the artifacts list payload.
type ArtifactListResponse struct {
	Kind string   `json:"kind"`
	Keys []string `json:"keys"`
}

type artifactRow struct {
	Key string `json:"key"`
}

func artifactsListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List published artifacts of one kind",
		Flags: append(OutputFlags(),
			&cli.StringFlag{Name: "kind", Usage: "Artifact kind: input or proof", Value: artifactKindProof},
		),
		Action: artifactsListAction,
	}
}

func artifactsListAction(c *cli.Context) error {
	if err := rejectTUI(c); err != nil {
		return err
	}
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

	store, err := s.openStore(ctx)
	if err != nil {
		return exitError(err)
	}
	keys, err := store.List(ctx, c.String("kind"))
	if err != nil {
		return exitError(err)
	}

	resp := ArtifactListResponse{Kind: c.String("kind"), Keys: keys}
	rows := make([]artifactRow, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, artifactRow{Key: k})
	}
	return r.RenderSections(resp, render.Section{Data: rows})
}

func artifactsFetchCommand() *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Download an artifact and verify its digest",
		ArgsUsage: "<key> <destination>",
		Flags:     OutputFlags(),
		Action:    artifactsFetchAction,
	}
}

func artifactsFetchAction(c *cli.Context) error {
	if err := rejectTUI(c); err != nil {
		return err
	}
	if c.NArg() != 2 {
		return exitError(usagef("fetch requires <key> and <destination>"))
	}
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

	store, err := s.openStore(ctx)
	if err != nil {
		return exitError(err)
	}
	fetched, err := store.Fetch(ctx, c.Args().Get(0), s.path(c.Args().Get(1)))
	if err != nil {
		return exitError(err)
	}
	return r.Render(fetched)
}
