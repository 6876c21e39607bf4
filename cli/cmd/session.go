package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/zisk-dev/zisk-dev/adapter"
	"github.com/zisk-dev/zisk-dev/adapter/redis"
	"github.com/zisk-dev/zisk-dev/adapter/webhook"
	"github.com/zisk-dev/zisk-dev/artifact"
	"github.com/zisk-dev/zisk-dev/cli/config"
	"github.com/zisk-dev/zisk-dev/cli/report"
	"github.com/zisk-dev/zisk-dev/convert"
	"github.com/zisk-dev/zisk-dev/iox"
	"github.com/zisk-dev/zisk-dev/log"
	"github.com/zisk-dev/zisk-dev/metrics"
	"github.com/zisk-dev/zisk-dev/process"
)

// notifyTimeout bounds the whole completion notification, retries included.
const notifyTimeout = 30 * time.Second

// session holds the collaborators shared by one CLI invocation.
type session struct {
	dir        string
	cfg        *config.Config
	configPath string
	logger     *log.Logger
	loggerFor  func(component string) *log.Logger
	metrics    *metrics.Collector
	executor   *process.Executor
	converter  *convert.Converter
	stderr     io.Writer
}

// newSession loads configuration and builds the executor and converter.
func newSession(c *cli.Context) (*session, error) {
	dir, err := filepath.Abs(c.String("project-dir"))
	if err != nil {
		return nil, usagef("invalid --project-dir: %v", err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, usagef("project directory %s does not exist", dir)
	}

	cfg, cfgPath, err := config.LoadOrDefault(c.String("config"), dir)
	if err != nil {
		return nil, &usageError{err: err}
	}

	level, err := log.ParseLevel(c.String("log-level"))
	if err != nil {
		return nil, &usageError{err: err}
	}

	stderr := c.App.ErrWriter
	if stderr == nil {
		stderr = os.Stderr
	}
	loggerFor := func(component string) *log.Logger {
		return log.NewLoggerWithWriter(component, level, stderr)
	}
	logger := loggerFor("cli")

	mode := "native"
	if cfg.MPI.Processes > 0 {
		mode = "mpi"
	}
	collector := metrics.NewCollector(mode, cfg.Storage.Backend, cfg.Project.Name)

	exec, err := process.NewExecutor(process.Config{
		MaxProcesses:   cfg.Executor.MaxProcesses,
		GracePeriod:    cfg.Executor.GracePeriod.Duration,
		Timeouts:       cfg.ExecutorTimeouts(),
		MaxOutputBytes: cfg.Executor.MaxOutputBytes,
		Logger:         loggerFor("executor"),
		Metrics:        collector,
		// Tool output goes to stderr; stdout carries the rendered result.
		Stdout: stderr,
		Stderr: stderr,
	})
	if err != nil {
		return nil, &usageError{err: err}
	}

	return &session{
		dir:        dir,
		cfg:        cfg,
		configPath: cfgPath,
		logger:     logger,
		loggerFor:  loggerFor,
		metrics:    collector,
		executor:   exec,
		converter: convert.NewConverter(convert.Config{
			Logger:  loggerFor("convert"),
			Metrics: collector,
		}),
		stderr: stderr,
	}, nil
}

// path resolves p against the project directory.
func (s *session) path(p string) string {
	return projectPath(s.dir, p)
}

// openStore opens the configured artifact store.
func (s *session) openStore(ctx context.Context) (*artifact.Store, error) {
	st := s.cfg.Storage
	if st.Backend == "" {
		return nil, usagef("--publish requires storage.backend in %s", config.DefaultFileName)
	}
	compression, err := artifact.ParseCompression(st.Compression)
	if err != nil {
		return nil, &usageError{err: err}
	}
	path := st.Path
	if st.Backend == artifact.BackendFS {
		path = s.path(path)
	}
	project := s.cfg.Project.Name
	if project == "" {
		project = filepath.Base(s.dir)
	}
	return artifact.Open(ctx, artifact.Config{
		Backend:     st.Backend,
		Path:        path,
		Region:      st.Region,
		Endpoint:    st.Endpoint,
		S3PathStyle: st.S3PathStyle,
		Compression: compression,
		Project:     project,
		Logger:      s.loggerFor("artifact"),
		Metrics:     s.metrics,
	})
}

// newAdapter builds the configured notification adapter, or nil.
func newAdapter(n config.NotifyConfig) (adapter.Adapter, error) {
	retries := -1
	if n.Retries != nil {
		retries = *n.Retries
	}
	switch n.Type {
	case "":
		return nil, nil
	case "webhook":
		if retries < 0 {
			retries = webhook.DefaultRetries
		}
		return webhook.New(webhook.Config{
			URL:     n.URL,
			Headers: n.Headers,
			Timeout: n.Timeout.Duration,
			Retries: retries,
		})
	case "redis":
		if retries < 0 {
			retries = redis.DefaultRetries
		}
		return redis.New(redis.Config{
			URL:     n.URL,
			Channel: n.Channel,
			Stream:  n.Stream,
			Timeout: n.Timeout.Duration,
			Retries: retries,
		})
	default:
		return nil, usagef("unknown notify.type: %q (must be webhook or redis)", n.Type)
	}
}

// notify publishes the completion event for resp. Failures are logged;
// they never change the command outcome.
func (s *session) notify(resp *report.OperationResponse) {
	a, err := newAdapter(s.cfg.Notify)
	if err != nil {
		s.logger.Warn("notify.init_failed", map[string]any{"error": err.Error()})
		return
	}
	if a == nil {
		return
	}
	defer iox.DiscardClose(a)

	event := adapter.NewOperationCompletedEvent(time.Now())
	event.InvocationID = resp.InvocationID
	event.Project = s.cfg.Project.Name
	event.Operation = resp.Operation
	event.Program = resp.Program
	event.Outcome = resp.State
	event.ExitCode = resp.ExitCode
	event.ErrorKind = resp.ErrorKind
	event.ArtifactKey = resp.Artifact
	event.DurationMs = resp.DurationMs

	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := a.Publish(ctx, event); err != nil {
		s.logger.Warn("notify.failed", map[string]any{
			"type":          s.cfg.Notify.Type,
			"invocation_id": resp.InvocationID,
			"error":         err.Error(),
		})
		return
	}
	s.logger.Info("notify.sent", map[string]any{"type": s.cfg.Notify.Type, "invocation_id": resp.InvocationID})
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

func (s *session) warnf(format string, args ...any) {
	fmt.Fprintf(s.stderr, "Warning: "+format+"\n", args...)
}
