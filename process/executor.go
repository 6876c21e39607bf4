package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/zisk-dev/zisk-dev/log"
	"github.com/zisk-dev/zisk-dev/metrics"
	"github.com/zisk-dev/zisk-dev/platform"
)

// State is an invocation lifecycle state.
type State string

const (
	StatePending   State = "pending"
	StateValidated State = "validated"
	StateAdmitted  State = "admitted"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateTimedOut  State = "timed_out"
	StateFailed    State = "failed"
	StateKilled    State = "killed"
)

// Terminal reports whether s is an outcome state.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateTimedOut, StateFailed, StateKilled:
		return true
	default:
		return false
	}
}

// waitDelaySlack is added to the grace period before Wait stops waiting
// for output pipes held open by escaped descendants.
const waitDelaySlack = 2 * time.Second

// Options configures one invocation.
type Options struct {
	// Dir is the working directory and the root for path arguments.
	// Empty selects the current directory.
	Dir string
	// Env holds overrides. They bypass the allow-list but not the deny rules.
	Env map[string]string
	// Operation selects the timeout budget. Empty selects OpGeneric.
	Operation Operation
	// Timeout overrides the operation budget when positive.
	Timeout time.Duration
	// PathArgs lists indices of arguments that are paths under Dir.
	PathArgs []int
	// RelativeOnly rejects absolute path arguments.
	RelativeOnly bool
	// Stdout and Stderr receive live output. Nil selects the executor's writers.
	Stdout io.Writer
	Stderr io.Writer
	// Quiet disables live output; output is still captured.
	Quiet bool
}

// Invocation is a validated command ready for admission.
type Invocation struct {
	ID        string
	Program   string
	Path      string
	Args      []string
	Dir       string
	Env       []string
	Operation Operation
	Timeout   time.Duration
	State     State
}

// Result is the outcome of a command that was started.
type Result struct {
	ID        string        `json:"id"`
	Program   string        `json:"program"`
	Args      []string      `json:"args"`
	Operation Operation     `json:"operation"`
	ExitCode  int           `json:"exit_code"`
	Stdout    string        `json:"stdout,omitempty"`
	Stderr    string        `json:"stderr,omitempty"`
	Duration  time.Duration `json:"duration"`
	State     State         `json:"state"`
}

// Config configures an Executor.
type Config struct {
	// MaxProcesses bounds concurrent children. Zero reads
	// ZISK_DEV_MAX_PROCESSES, then falls back to the platform recommendation.
	MaxProcesses int
	// GracePeriod separates graceful and forced termination. Zero selects
	// DefaultGracePeriod.
	GracePeriod time.Duration
	// Timeouts overlays the default budgets. ZISK_DEV_TIMEOUT_<OP>
	// variables overlay these in turn.
	Timeouts Timeouts
	// MaxOutputBytes bounds capture per stream. Zero selects DefaultMaxOutputBytes.
	MaxOutputBytes int64
	// ExtraPrograms extends the allow-list.
	ExtraPrograms []string
	// ToolPaths pins program names to binaries, bypassing lookup.
	ToolPaths map[string]string
	// EnvPolicy filters the child environment. Nil builds one from
	// ZISK_DEV_ENV_ALLOW and ZISK_DEV_ENV_DENY.
	EnvPolicy *EnvPolicy
	// Environ is the environment filtered for children. Nil selects os.Environ().
	Environ []string
	// LookupEnv reads executor settings. Nil selects os.LookupEnv.
	LookupEnv func(string) (string, bool)

	Logger  *log.Logger
	Metrics *metrics.Collector
	// Stdout and Stderr are the default live output writers. Nil selects
	// os.Stdout and os.Stderr.
	Stdout io.Writer
	Stderr io.Writer
}

// Executor runs allow-listed programs. It is safe for concurrent use and
// meant to live for the whole process.
type Executor struct {
	allow     *Allowlist
	env       *EnvPolicy
	environ   []string
	pool      *Pool
	timeouts  Timeouts
	grace     time.Duration
	maxOutput int64
	toolPaths map[string]string
	term      terminator
	logger    *log.Logger
	metrics   *metrics.Collector
	stdout    io.Writer
	stderr    io.Writer
}

// NewExecutor creates an Executor.
func NewExecutor(cfg Config) (*Executor, error) {
	lookup := cfg.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}

	capacity, err := ResolveCapacity(cfg.MaxProcesses, lookup)
	if err != nil {
		return nil, err
	}
	envTimeouts, err := TimeoutsFromEnv(lookup)
	if err != nil {
		return nil, err
	}

	e := &Executor{
		allow:     NewAllowlist(cfg.ExtraPrograms...),
		env:       cfg.EnvPolicy,
		environ:   cfg.Environ,
		timeouts:  DefaultTimeouts().Merge(cfg.Timeouts).Merge(envTimeouts),
		grace:     cfg.GracePeriod,
		maxOutput: cfg.MaxOutputBytes,
		toolPaths: make(map[string]string, len(cfg.ToolPaths)),
		term:      newTerminator(),
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		stdout:    cfg.Stdout,
		stderr:    cfg.Stderr,
	}
	for name, path := range cfg.ToolPaths {
		e.toolPaths[name] = path
	}
	if e.env == nil {
		e.env = EnvPolicyFromEnv(lookup)
	}
	if e.environ == nil {
		e.environ = os.Environ()
	}
	if e.grace <= 0 {
		e.grace = DefaultGracePeriod
	}
	if e.maxOutput <= 0 {
		e.maxOutput = DefaultMaxOutputBytes
	}
	if e.logger == nil {
		e.logger = log.Nop()
	}
	if e.stdout == nil {
		e.stdout = os.Stdout
	}
	if e.stderr == nil {
		e.stderr = os.Stderr
	}
	e.pool = NewPool(capacity, cfg.Metrics)
	return e, nil
}

// Pool returns the admission pool.
func (e *Executor) Pool() *Pool { return e.pool }

// Timeouts returns the effective operation budgets.
func (e *Executor) Timeouts() Timeouts { return DefaultTimeouts().Merge(e.timeouts) }

// GracePeriod returns the delay between graceful and forced termination.
func (e *Executor) GracePeriod() time.Duration { return e.grace }

// Allowlist returns the program allow-list.
func (e *Executor) Allowlist() *Allowlist { return e.allow }

// Prepare validates a command without running it.
func (e *Executor) Prepare(program string, args []string, opts Options) (*Invocation, error) {
	op := opts.Operation
	if op == "" {
		op = OpGeneric
	}
	inv := &Invocation{
		ID:        uuid.NewString(),
		Program:   program,
		Operation: op,
		State:     StatePending,
	}

	name, err := e.allow.Validate(program)
	if err != nil {
		return inv, err
	}
	inv.Program = name
	if filepath.IsAbs(program) {
		inv.Path = program
	}

	inv.Args, err = SanitizeArgs(args)
	if err != nil {
		return inv, withProgram(err, name)
	}

	dir := opts.Dir
	if dir == "" {
		if dir, err = os.Getwd(); err != nil {
			return inv, &Error{Kind: KindPathViolation, Program: name, Msg: "resolve working directory", Err: err}
		}
	}
	inv.Dir = dir
	for _, i := range opts.PathArgs {
		if i < 0 || i >= len(inv.Args) {
			return inv, &Error{Kind: KindInvalidArguments, Program: name, Msg: fmt.Sprintf("path argument index %d out of range", i)}
		}
		if _, err := ValidatePath(dir, pathArgValue(inv.Args[i]), opts.RelativeOnly); err != nil {
			return inv, withProgram(err, name)
		}
	}

	inv.Env = e.env.Filter(e.environ, opts.Env)
	inv.Timeout = opts.Timeout
	if inv.Timeout <= 0 {
		inv.Timeout = e.timeouts.For(op)
	}
	inv.State = StateValidated
	return inv, nil
}

// Execute runs program with args and waits for it to finish.
//
// Validation failures return a nil Result. Once the child has been started
// the Result is always returned, together with an *Error for non-zero
// exits, timeouts, output overflow and cancellation.
func (e *Executor) Execute(ctx context.Context, program string, args []string, opts Options) (*Result, error) {
	inv, err := e.Prepare(program, args, opts)
	logger := e.logger.With(map[string]any{
		"invocation_id": inv.ID,
		"operation":     string(inv.Operation),
	})
	if err != nil {
		e.metrics.IncExecutionRejected()
		logger.Warn("exec.rejected", map[string]any{
			"program": Redact(program),
			"kind":    KindOf(err).String(),
			"error":   Redact(err.Error()),
		})
		return nil, err
	}

	if err := e.pool.Acquire(ctx); err != nil {
		logger.Warn("exec.canceled", map[string]any{"program": inv.Program, "state": string(inv.State)})
		return nil, &Error{Kind: KindCanceled, Program: inv.Program, Msg: "waiting for a process slot", Err: err}
	}
	defer e.pool.Release()
	inv.State = StateAdmitted

	return e.run(ctx, inv, opts, logger)
}

func (e *Executor) run(ctx context.Context, inv *Invocation, opts Options, logger *log.Logger) (*Result, error) {
	if inv.Path == "" {
		path, err := e.resolve(inv.Program)
		if err != nil {
			e.metrics.IncSpawnFailure()
			logger.Error("exec.spawn_failed", map[string]any{"program": inv.Program, "error": err.Error()})
			return nil, &Error{Kind: KindSpawnFailure, Program: inv.Program, Err: err}
		}
		inv.Path = path
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	runCtx, cancelTimeout := context.WithTimeoutCause(runCtx, inv.Timeout, errTimedOut)
	defer cancelTimeout()

	overflow := func() { cancel(errOutputOverflow) }
	stdout := newCapture(e.maxOutput, overflow)
	stderr := newCapture(e.maxOutput, overflow)

	cmd := exec.CommandContext(runCtx, inv.Path, inv.Args...)
	cmd.Dir = inv.Dir
	cmd.Env = inv.Env
	cmd.Stdout = outputWriter(stdout, e.tee(opts.Stdout, e.stdout, opts.Quiet))
	cmd.Stderr = outputWriter(stderr, e.tee(opts.Stderr, e.stderr, opts.Quiet))
	e.term.prepare(cmd)

	exited := make(chan struct{})
	cmd.Cancel = func() error {
		logger.Warn("exec.terminate", map[string]any{
			"phase": PhaseGraceful.String(),
			"cause": context.Cause(runCtx).Error(),
		})
		if err := e.term.terminate(cmd.Process, PhaseGraceful); err != nil {
			if errors.Is(err, os.ErrProcessDone) {
				return err
			}
			return e.term.terminate(cmd.Process, PhaseForce)
		}
		go func() {
			timer := time.NewTimer(e.grace)
			defer timer.Stop()
			select {
			case <-timer.C:
				logger.Warn("exec.terminate", map[string]any{"phase": PhaseForce.String()})
				_ = e.term.terminate(cmd.Process, PhaseForce)
			case <-exited:
			}
		}()
		return nil
	}
	cmd.WaitDelay = e.grace + waitDelaySlack

	logger.Info("exec.start", map[string]any{
		"command":    RedactCommand(inv.Program, inv.Args),
		"dir":        inv.Dir,
		"timeout_ms": inv.Timeout.Milliseconds(),
	})

	start := time.Now()
	if err := cmd.Start(); err != nil {
		e.metrics.IncSpawnFailure()
		logger.Error("exec.spawn_failed", map[string]any{"program": inv.Program, "error": err.Error()})
		return nil, &Error{Kind: KindSpawnFailure, Program: inv.Program, Err: err}
	}
	inv.State = StateRunning
	e.metrics.ExecutionStarted()

	waitErr := cmd.Wait()
	close(exited)
	e.metrics.ExecutionFinished()

	res := &Result{
		ID:        inv.ID,
		Program:   inv.Program,
		Args:      RedactArgs(inv.Args),
		Operation: inv.Operation,
		ExitCode:  exitCode(cmd, waitErr),
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Duration:  time.Since(start),
	}

	var outErr error
	res.State, outErr = e.classify(ctx, runCtx, inv, res, waitErr)
	inv.State = res.State

	fields := map[string]any{
		"state":       string(res.State),
		"exit_code":   res.ExitCode,
		"duration_ms": res.Duration.Milliseconds(),
	}
	if outErr != nil {
		fields["kind"] = KindOf(outErr).String()
		logger.Warn("exec.done", fields)
	} else {
		logger.Info("exec.done", fields)
	}
	return res, outErr
}

func (e *Executor) classify(parent, runCtx context.Context, inv *Invocation, res *Result, waitErr error) (State, error) {
	stderrTail := Redact(tail(res.Stderr, stderrTailBytes))
	cause := context.Cause(runCtx)

	switch {
	case errors.Is(cause, errOutputOverflow):
		e.metrics.IncExecutionKilled()
		return StateKilled, &Error{
			Kind:     KindOutputOverflow,
			Program:  inv.Program,
			ExitCode: res.ExitCode,
			Msg:      fmt.Sprintf("output exceeded %d bytes", e.maxOutput),
		}
	case errors.Is(cause, errTimedOut):
		e.metrics.IncExecutionTimedOut()
		return StateTimedOut, &Error{
			Kind:     KindTimeout,
			Program:  inv.Program,
			ExitCode: res.ExitCode,
			Stderr:   stderrTail,
			Msg:      fmt.Sprintf("exceeded %s budget of %s", inv.Operation, inv.Timeout),
		}
	case parent.Err() != nil:
		e.metrics.IncExecutionKilled()
		return StateKilled, &Error{Kind: KindCanceled, Program: inv.Program, ExitCode: res.ExitCode, Err: context.Cause(parent)}
	}

	if waitErr == nil || (errors.Is(waitErr, exec.ErrWaitDelay) && res.ExitCode == 0) {
		e.metrics.IncExecutionCompleted()
		return StateCompleted, nil
	}

	e.metrics.IncExecutionFailed()
	var exitErr *exec.ExitError
	if !errors.As(waitErr, &exitErr) {
		return StateFailed, &Error{Kind: KindNonZeroExit, Program: inv.Program, ExitCode: res.ExitCode, Stderr: stderrTail, Err: waitErr}
	}
	return StateFailed, &Error{Kind: KindNonZeroExit, Program: inv.Program, ExitCode: res.ExitCode, Stderr: stderrTail}
}

func (e *Executor) tee(override, fallback io.Writer, quiet bool) io.Writer {
	if quiet {
		return nil
	}
	if override != nil {
		return override
	}
	return fallback
}

// resolve maps an allow-listed program name to a binary path.
func (e *Executor) resolve(name string) (string, error) {
	if path, ok := e.toolPaths[name]; ok {
		return path, nil
	}
	return platform.LookupTool(name)
}

// ResolveProgram validates program and returns the binary that would run.
func (e *Executor) ResolveProgram(program string) (string, error) {
	name, err := e.allow.Validate(program)
	if err != nil {
		return "", err
	}
	if filepath.IsAbs(program) {
		return program, nil
	}
	path, err := e.resolve(name)
	if err != nil {
		return "", &Error{Kind: KindSpawnFailure, Program: name, Err: err}
	}
	return path, nil
}

func exitCode(cmd *exec.Cmd, err error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func withProgram(err error, program string) error {
	var procErr *Error
	if errors.As(err, &procErr) && procErr.Program == "" {
		procErr.Program = program
	}
	return err
}
