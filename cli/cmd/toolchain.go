package cmd

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/zisk-dev/zisk-dev/cli/render"
	"github.com/zisk-dev/zisk-dev/cli/report"
	"github.com/zisk-dev/zisk-dev/process"
	"github.com/zisk-dev/zisk-dev/types"
)

const (
	// artifactKindProof is the artifact kind of published proofs.
	artifactKindProof = "proof"
	// DefaultProofFile is the file cargo-zisk prove writes into its output directory.
	DefaultProofFile = "vadcop_final_proof.bin"
	// defaultProofsDir is the prove output directory under outputs.dir.
	defaultProofsDir = "proofs"
)

// Flags whose values are paths under the project directory.
var toolPathFlags = []string{"-e", "--elf", "-i", "--input", "-o", "--output-dir", "-p", "--proof"}

// BuildCommand returns the build command.
func BuildCommand() *cli.Command {
	return &cli.Command{
		Name:      "build",
		Usage:     "Build the guest program with cargo-zisk",
		ArgsUsage: "[-- extra cargo-zisk build arguments]",
		Flags: ToolFlags(
			&cli.BoolFlag{Name: "release", Usage: "Build with the release profile (default from build.profile)"},
			&cli.StringSliceFlag{Name: "features", Usage: "Cargo features to enable"},
			&cli.StringFlag{Name: "target", Usage: "Target triple passed to cargo-zisk"},
		),
		Action: buildAction,
	}
}

func buildAction(c *cli.Context) error {
	return runTool(c, func(ctx context.Context, s *session) (*process.Result, process.Operation, error) {
		args := buildArgs(
			resolveBool(c, "release", s.cfg.Build.Profile == "release"),
			resolveStringSlice(c, "features", s.cfg.Build.Features),
			resolveString(c, "target", s.cfg.Build.Target),
		)
		args = append(args, c.Args().Slice()...)
		res, err := s.executor.ExecuteCargoZisk(ctx, "build", args, s.toolOptions(c, args))
		return res, process.OpBuild, err
	}, nil)
}

func buildArgs(release bool, features []string, target string) []string {
	var args []string
	if release {
		args = append(args, "--release")
	}
	if len(features) > 0 {
		args = append(args, "--features", strings.Join(features, ","))
	}
	if target != "" {
		args = append(args, "--target", target)
	}
	return args
}

// ProveCommand returns the prove command.
func ProveCommand() *cli.Command {
	return &cli.Command{
		Name:      "prove",
		Usage:     "Generate a proof with cargo-zisk, natively or under MPI",
		ArgsUsage: "[-- extra cargo-zisk prove arguments]",
		Flags: ToolFlags(
			&cli.StringFlag{Name: "elf", Aliases: []string{"e"}, Usage: "Guest ELF, relative to the project", Required: true},
			&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "Input file produced by convert"},
			&cli.StringFlag{Name: "output-dir", Aliases: []string{"o"}, Usage: "Proof output directory (default: <outputs.dir>/proofs)"},
			&cli.BoolFlag{Name: "aggregate", Aliases: []string{"a"}, Usage: "Generate the final aggregated proof", Value: true},
			&cli.BoolFlag{Name: "verify-proofs", Aliases: []string{"y"}, Usage: "Verify proofs after generation"},
			&cli.IntFlag{Name: "mpi-processes", Usage: "Run under mpirun with this many ranks (default from mpi.processes)"},
			&cli.IntFlag{Name: "threads", Usage: "Threads per MPI rank (default from mpi.threads)"},
			&cli.BoolFlag{Name: "bind-to-none", Usage: "Pass --bind-to none to mpirun"},
			&cli.BoolFlag{Name: "publish", Usage: "Publish the proof to the configured artifact store"},
			&cli.StringFlag{Name: "proof-file", Usage: "Proof file name inside the output directory", Value: DefaultProofFile},
		),
		Action: proveAction,
	}
}

func proveAction(c *cli.Context) error {
	var outputDir string
	return runTool(c, func(ctx context.Context, s *session) (*process.Result, process.Operation, error) {
		outputDir = c.String("output-dir")
		if outputDir == "" {
			outputDir = filepath.Join(s.cfg.OutputsDir(), defaultProofsDir)
		}
		args := proveArgs(c.String("elf"), c.String("input"), outputDir, c.Bool("aggregate"), c.Bool("verify-proofs"))
		args = append(args, c.Args().Slice()...)
		opts := s.toolOptions(c, args)

		ranks := resolveInt(c, "mpi-processes", s.cfg.MPI.Processes)
		if ranks > 0 {
			mpi := process.MPIOptions{
				Processes:  ranks,
				Threads:    resolveInt(c, "threads", s.cfg.MPI.Threads),
				BindToNone: resolveBool(c, "bind-to-none", s.cfg.MPI.BindToNone),
			}
			opts.Operation = process.OpProve
			opts.PathArgs = process.PathFlagIndices(append([]string{"prove"}, args...), toolPathFlags...)
			res, err := s.executor.ExecuteWithMPI(ctx, mpi, types.ToolCargoZisk, append([]string{"prove"}, args...), opts)
			return res, process.OpProve, err
		}

		res, err := s.executor.ExecuteCargoZisk(ctx, "prove", args, opts)
		return res, process.OpProve, err
	}, func(ctx context.Context, s *session) (string, error) {
		if !c.Bool("publish") {
			return "", nil
		}
		store, err := s.openStore(ctx)
		if err != nil {
			return "", err
		}
		p, err := store.Publish(ctx, s.path(filepath.Join(outputDir, c.String("proof-file"))), artifactKindProof)
		if err != nil {
			return "", err
		}
		return p.Key, nil
	})
}

func proveArgs(elf, input, outputDir string, aggregate, verify bool) []string {
	args := []string{"-e", elf}
	if input != "" {
		args = append(args, "-i", input)
	}
	args = append(args, "-o", outputDir)
	if aggregate {
		args = append(args, "-a")
	}
	if verify {
		args = append(args, "-y")
	}
	return args
}

// VerifyCommand returns the verify command.
func VerifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "Verify a proof with cargo-zisk",
		ArgsUsage: "[-- extra cargo-zisk verify arguments]",
		Flags: ToolFlags(
			&cli.StringFlag{Name: "proof", Aliases: []string{"p"}, Usage: "Proof file, relative to the project", Required: true},
		),
		Action: verifyAction,
	}
}

func verifyAction(c *cli.Context) error {
	return runTool(c, func(ctx context.Context, s *session) (*process.Result, process.Operation, error) {
		args := append([]string{"-p", c.String("proof")}, c.Args().Slice()...)
		res, err := s.executor.ExecuteCargoZisk(ctx, "verify", args, s.toolOptions(c, args))
		return res, process.OpVerify, err
	}, nil)
}

// ExecuteCommand returns the execute command.
func ExecuteCommand() *cli.Command {
	return &cli.Command{
		Name:      "execute",
		Usage:     "Run the guest program in the ziskemu emulator",
		ArgsUsage: "[-- extra ziskemu arguments]",
		Flags: ToolFlags(
			&cli.StringFlag{Name: "elf", Aliases: []string{"e"}, Usage: "Guest ELF, relative to the project", Required: true},
			&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "Input file produced by convert"},
		),
		Action: executeAction,
	}
}

func executeAction(c *cli.Context) error {
	return runTool(c, func(ctx context.Context, s *session) (*process.Result, process.Operation, error) {
		args := []string{"-e", c.String("elf")}
		if in := c.String("input"); in != "" {
			args = append(args, "-i", in)
		}
		args = append(args, c.Args().Slice()...)
		res, err := s.executor.ExecuteZiskemu(ctx, args, s.toolOptions(c, args))
		return res, process.OpExecute, err
	}, nil)
}

// toolOptions returns executor options for args run in the project.
func (s *session) toolOptions(c *cli.Context, args []string) process.Options {
	return process.Options{
		Dir:      s.dir,
		PathArgs: process.PathFlagIndices(args, toolPathFlags...),
		Quiet:    c.Bool("quiet"),
		Timeout:  resolveDuration(c, "timeout", 0),
	}
}

type toolFunc func(ctx context.Context, s *session) (*process.Result, process.Operation, error)

// publishFunc stores the output of a successful operation and returns its
// artifact key, or "" when nothing was published.
type publishFunc func(ctx context.Context, s *session) (string, error)

// runTool runs one toolchain operation, renders its response, and sends
// the completion notification.
func runTool(c *cli.Context, run toolFunc, publish publishFunc) error {
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

	res, op, runErr := run(ctx, s)
	resp := report.NewOperationResponse(op, programFor(op), res, runErr)

	if runErr == nil && publish != nil {
		key, err := publish(ctx, s)
		if err != nil {
			runErr = err
			s.warnf("operation succeeded but publishing failed: %v", err)
		}
		resp.Artifact = key
	}

	s.notify(resp)

	if err := r.Render(resp); err != nil {
		return err
	}
	return exitError(runErr)
}

func programFor(op process.Operation) string {
	if op == process.OpExecute {
		return types.ToolZiskemu
	}
	return types.ToolCargoZisk
}
