package process

import (
	"context"
	"fmt"
	"maps"
	"strconv"

	"github.com/zisk-dev/zisk-dev/types"
)

// subcommandOperations maps cargo-zisk subcommands to timeout classes.
var subcommandOperations = map[string]Operation{
	"build":              OpBuild,
	"prove":              OpProve,
	"verify":             OpVerify,
	"verify-constraints": OpVerify,
	"execute":            OpExecute,
	"run":                OpExecute,
	"rom-setup":          OpSetup,
	"check-setup":        OpSetup,
	"setup":              OpSetup,
}

// OperationForSubcommand returns the timeout class of a cargo-zisk subcommand.
func OperationForSubcommand(subcommand string) Operation {
	if op, ok := subcommandOperations[subcommand]; ok {
		return op
	}
	return OpGeneric
}

// ExecuteCargoZisk runs `cargo-zisk <subcommand> args...`. The operation
// defaults from the subcommand.
func (e *Executor) ExecuteCargoZisk(ctx context.Context, subcommand string, args []string, opts Options) (*Result, error) {
	if subcommand == "" {
		return nil, &Error{Kind: KindInvalidArguments, Program: types.ToolCargoZisk, Msg: "missing subcommand"}
	}
	if opts.Operation == "" {
		opts.Operation = OperationForSubcommand(subcommand)
	}
	opts.PathArgs = shiftIndices(opts.PathArgs, 1)
	return e.Execute(ctx, types.ToolCargoZisk, append([]string{subcommand}, args...), opts)
}

// ExecuteZiskemu runs `ziskemu args...` as an execute operation.
func (e *Executor) ExecuteZiskemu(ctx context.Context, args []string, opts Options) (*Result, error) {
	if opts.Operation == "" {
		opts.Operation = OpExecute
	}
	return e.Execute(ctx, types.ToolZiskemu, args, opts)
}

// MPIOptions configures an MPI launch.
type MPIOptions struct {
	// Launcher is mpirun (default) or mpiexec.
	Launcher string
	// Processes is the -np value. Must be positive.
	Processes int
	// Threads sets OMP_NUM_THREADS and RAYON_NUM_THREADS in every rank when positive.
	Threads int
	// BindToNone adds --bind-to none.
	BindToNone bool
	// Export lists extra environment variables forwarded to ranks with -x.
	Export []string
}

// ExecuteWithMPI runs program under an MPI launcher:
//
//	mpirun -np N [--bind-to none] [-x VAR ...] <program> args...
//
// program is validated against the allow-list before it is wrapped.
func (e *Executor) ExecuteWithMPI(ctx context.Context, mpi MPIOptions, program string, args []string, opts Options) (*Result, error) {
	launcher := mpi.Launcher
	if launcher == "" {
		launcher = types.ToolMPIRun
	}
	if launcher != types.ToolMPIRun && launcher != types.ToolMPIExec {
		return nil, &Error{Kind: KindCommandNotAllowed, Program: launcher, Msg: "not an MPI launcher"}
	}
	if mpi.Processes < 1 {
		return nil, &Error{Kind: KindInvalidArguments, Program: launcher, Msg: fmt.Sprintf("process count must be positive, got %d", mpi.Processes)}
	}
	target, err := e.ResolveProgram(program)
	if err != nil {
		return nil, err
	}

	env := maps.Clone(opts.Env)
	if env == nil {
		env = map[string]string{}
	}
	export := append([]string(nil), mpi.Export...)
	if mpi.Threads > 0 {
		n := strconv.Itoa(mpi.Threads)
		env["OMP_NUM_THREADS"] = n
		env["RAYON_NUM_THREADS"] = n
		export = append(export, "OMP_NUM_THREADS", "RAYON_NUM_THREADS")
	}

	launch := []string{"-np", strconv.Itoa(mpi.Processes)}
	if mpi.BindToNone {
		launch = append(launch, "--bind-to", "none")
	}
	for _, name := range export {
		launch = append(launch, "-x", name)
	}
	launch = append(launch, target)

	opts.Env = env
	opts.PathArgs = shiftIndices(opts.PathArgs, len(launch))
	return e.Execute(ctx, launcher, append(launch, args...), opts)
}

func shiftIndices(idx []int, by int) []int {
	if len(idx) == 0 {
		return nil
	}
	out := make([]int, len(idx))
	for i, v := range idx {
		out[i] = v + by
	}
	return out
}
