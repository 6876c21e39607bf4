// Package report defines the payloads zisk-dev commands render.
//
// Every command renders exactly one payload through cli/render, so json,
// yaml, table and TUI output all carry the same data.
package report

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/zisk-dev/zisk-dev/artifact"
	"github.com/zisk-dev/zisk-dev/convert"
	"github.com/zisk-dev/zisk-dev/metrics"
	"github.com/zisk-dev/zisk-dev/platform"
	"github.com/zisk-dev/zisk-dev/process"
)

// ExecutorSettings describes the effective executor configuration.
type ExecutorSettings struct {
	MaxProcesses    int               `json:"max_processes" yaml:"max_processes"`
	GracePeriod     string            `json:"grace_period" yaml:"grace_period"`
	Timeouts        map[string]string `json:"timeouts" yaml:"timeouts"`
	AllowedPrograms []string          `json:"allowed_programs" yaml:"allowed_programs"`
}

// NewExecutorSettings reads the settings of e.
func NewExecutorSettings(e *process.Executor) ExecutorSettings {
	timeouts := e.Timeouts()
	out := ExecutorSettings{
		MaxProcesses:    e.Pool().Capacity(),
		GracePeriod:     e.GracePeriod().String(),
		Timeouts:        make(map[string]string, len(timeouts)),
		AllowedPrograms: e.Allowlist().Names(),
	}
	for _, op := range process.Operations() {
		out.Timeouts[string(op)] = timeouts.For(op).String()
	}
	return out
}

// DoctorReport is the full doctor payload.
type DoctorReport struct {
	Platform   platform.Report   `json:"platform" yaml:"platform"`
	Executor   ExecutorSettings  `json:"executor" yaml:"executor"`
	ConfigPath string            `json:"config_path,omitempty" yaml:"config_path,omitempty"`
	Project    string            `json:"project,omitempty" yaml:"project,omitempty"`
	Storage    string            `json:"storage_backend,omitempty" yaml:"storage_backend,omitempty"`
	Notify     string            `json:"notify,omitempty" yaml:"notify,omitempty"`
	Metrics    *metrics.Snapshot `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

// DoctorSummary is the flat form of DoctorReport used for tables.
type DoctorSummary struct {
	OS                     string `json:"os"`
	Arch                   string `json:"arch"`
	CPUs                   int    `json:"cpus"`
	MemoryMiB              uint64 `json:"memory_mib"`
	RecommendedConcurrency int    `json:"recommended_concurrency"`
	MaxProcesses           int    `json:"max_processes"`
	ExecutionMode          string `json:"execution_mode"`
	MPIAvailable           bool   `json:"mpi_available"`
	ZiskHome               string `json:"zisk_home"`
	ToolsFound             string `json:"tools_found"`
	ConfigPath             string `json:"config_path"`
}

// Summary flattens r.
func (r *DoctorReport) Summary() DoctorSummary {
	found := 0
	for _, t := range r.Platform.Tools {
		if t.Found {
			found++
		}
	}
	cfg := r.ConfigPath
	if cfg == "" {
		cfg = "(none)"
	}
	return DoctorSummary{
		OS:                     r.Platform.OS,
		Arch:                   r.Platform.Arch,
		CPUs:                   r.Platform.CPUs,
		MemoryMiB:              r.Platform.MemoryBytes >> 20,
		RecommendedConcurrency: r.Platform.RecommendedConcurrency,
		MaxProcesses:           r.Executor.MaxProcesses,
		ExecutionMode:          string(r.Platform.ExecutionMode),
		MPIAvailable:           r.Platform.MPIAvailable,
		ZiskHome:               r.Platform.ZiskHome,
		ToolsFound:             fmt.Sprintf("%d/%d", found, len(r.Platform.Tools)),
		ConfigPath:             cfg,
	}
}

// MissingRequired lists required tools that were not found.
func (r *DoctorReport) MissingRequired(required ...string) []string {
	var missing []string
	for _, name := range required {
		if st, ok := r.Platform.Tool(name); !ok || !st.Found {
			missing = append(missing, name)
		}
	}
	return missing
}

// ConvertResponse is the convert command payload.
type ConvertResponse struct {
	Converted []*convert.Result     `json:"converted" yaml:"converted"`
	Published []*artifact.Published `json:"published,omitempty" yaml:"published,omitempty"`
	Failed    int                   `json:"failed" yaml:"failed"`
}

// ConvertRow is one table line of a ConvertResponse.
type ConvertRow struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Format      string `json:"format"`
	Bytes       int64  `json:"bytes"`
	Digest      string `json:"digest"`
	Artifact    string `json:"artifact"`
}

// Rows returns one row per converted file, sorted by source.
func (r *ConvertResponse) Rows() []ConvertRow {
	keys := make(map[string]string, len(r.Published))
	for _, p := range r.Published {
		keys[p.Source] = p.Key
	}
	rows := make([]ConvertRow, 0, len(r.Converted))
	for _, c := range r.Converted {
		rows = append(rows, ConvertRow{
			Source:      c.Source,
			Destination: c.Destination,
			Format:      c.Format,
			Bytes:       c.Bytes,
			Digest:      shortDigest(c.Digest),
			Artifact:    keys[c.Destination],
		})
	}
	slices.SortFunc(rows, func(a, b ConvertRow) int {
		switch {
		case a.Source < b.Source:
			return -1
		case a.Source > b.Source:
			return 1
		}
		return 0
	})
	return rows
}

// OperationResponse is the payload of build, prove, verify and execute.
type OperationResponse struct {
	InvocationID string `json:"invocation_id" yaml:"invocation_id"`
	Operation    string `json:"operation" yaml:"operation"`
	Program      string `json:"program" yaml:"program"`
	Command      string `json:"command" yaml:"command"`
	State        string `json:"state" yaml:"state"`
	ExitCode     int    `json:"exit_code" yaml:"exit_code"`
	DurationMs   int64  `json:"duration_ms" yaml:"duration_ms"`
	ErrorKind    string `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	Artifact     string `json:"artifact,omitempty" yaml:"artifact,omitempty"`
	Stdout       string `json:"stdout,omitempty" yaml:"stdout,omitempty"`
	// StderrTail is the redacted end of stderr for failed and timed-out runs.
	StderrTail   string `json:"stderr_tail,omitempty" yaml:"stderr_tail,omitempty"`
}

// NewOperationResponse builds a response from an executor result and the
// error it came with. res may be nil when the command never started.
func NewOperationResponse(op process.Operation, program string, res *process.Result, err error) *OperationResponse {
	out := &OperationResponse{Operation: string(op), Program: program, State: string(process.StateFailed)}
	if res != nil {
		out.InvocationID = res.ID
		out.Program = res.Program
		out.Command = process.RedactCommand(res.Program, res.Args)
		out.State = string(res.State)
		out.ExitCode = res.ExitCode
		out.DurationMs = res.Duration.Milliseconds()
		out.Stdout = res.Stdout
	}
	var procErr *process.Error
	if errors.As(err, &procErr) {
		out.ErrorKind = procErr.Kind.String()
		out.StderrTail = procErr.Stderr
		if res == nil && procErr.Kind == process.KindTimeout {
			out.State = string(process.StateTimedOut)
		}
	} else if err != nil {
		out.ErrorKind = "internal"
	}
	return out
}

// Duration returns the run time of the operation.
func (r *OperationResponse) Duration() time.Duration {
	return time.Duration(r.DurationMs) * time.Millisecond
}

// VersionResponse is the version command payload.
type VersionResponse struct {
	Version string `json:"version" yaml:"version"`
	Commit  string `json:"commit" yaml:"commit"`
}

// SortedTimeouts returns timeout entries sorted by operation name.
func (s ExecutorSettings) SortedTimeouts() [][2]string {
	names := slices.Sorted(maps.Keys(s.Timeouts))
	out := make([][2]string, 0, len(names))
	for _, n := range names {
		out = append(out, [2]string{n, s.Timeouts[n]})
	}
	return out
}

func shortDigest(d string) string {
	if len(d) > 16 {
		return d[:16]
	}
	return d
}
