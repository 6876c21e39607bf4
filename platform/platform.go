// Package platform reports host capabilities relevant to the ZisK
// toolchain: OS and architecture, CPU and memory, where the toolchain
// binaries live and which execution mode the host supports.
//
// Everything here is read-only. The executor consumes RecommendedConcurrency
// and LookupTool; doctor renders a full Report.
package platform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/zisk-dev/zisk-dev/types"
)

// MaxConcurrency caps RecommendedConcurrency.
const MaxConcurrency = 16

// ExecutionMode describes how proofs can run on this host.
type ExecutionMode string

const (
	// ModeNative runs the toolchain directly.
	ModeNative ExecutionMode = "native"
	// ModeMPI runs the prover under an MPI launcher.
	ModeMPI ExecutionMode = "mpi"
	// ModeUnsupported means the toolchain does not run on this OS.
	ModeUnsupported ExecutionMode = "unsupported"
)

// ErrToolNotFound indicates a toolchain binary could not be located.
var ErrToolNotFound = errors.New("tool not found")

// ToolStatus describes one resolved toolchain binary.
type ToolStatus struct {
	Name    string `json:"name"`
	Path    string `json:"path,omitempty"`
	Found   bool   `json:"found"`
	Version string `json:"version,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Report is a snapshot of host capabilities.
type Report struct {
	OS                     string        `json:"os"`
	Arch                   string        `json:"arch"`
	CPUs                   int           `json:"cpus"`
	MemoryBytes            uint64        `json:"memory_bytes,omitempty"`
	RecommendedConcurrency int           `json:"recommended_concurrency"`
	ExecutionMode          ExecutionMode `json:"execution_mode"`
	MPIAvailable           bool          `json:"mpi_available"`
	ZiskHome               string        `json:"zisk_home,omitempty"`
	Tools                  []ToolStatus  `json:"tools"`
}

// VersionFunc reports the version of a resolved tool.
type VersionFunc func(ctx context.Context, name, path string) (string, error)

// RecommendedConcurrency returns half the CPU count, at least 1 and at
// most MaxConcurrency.
func RecommendedConcurrency() int {
	n := runtime.NumCPU() / 2
	if n < 1 {
		n = 1
	}
	if n > MaxConcurrency {
		n = MaxConcurrency
	}
	return n
}

// Supported reports whether the toolchain runs on goos.
func Supported(goos string) bool {
	return goos == "linux" || goos == "darwin"
}

// ToolEnvVar returns the variable that pins a tool's path, e.g.
// ZISK_DEV_CARGO_ZISK_PATH.
func ToolEnvVar(name string) string {
	return "ZISK_DEV_" + strings.ToUpper(strings.ReplaceAll(name, "-", "_")) + "_PATH"
}

var (
	ziskHomeOnce sync.Once
	ziskHome     string
)

// ZiskHome returns the toolchain install directory: $ZISK_HOME, else
// ~/.zisk. Resolved once per process.
func ZiskHome() string {
	ziskHomeOnce.Do(func() {
		if h := os.Getenv("ZISK_HOME"); h != "" {
			ziskHome = h
			return
		}
		if home, err := os.UserHomeDir(); err == nil {
			ziskHome = filepath.Join(home, ".zisk")
		}
	})
	return ziskHome
}

// LookupTool resolves a toolchain binary: the ZISK_DEV_<TOOL>_PATH
// override, then PATH, then the toolchain's bin directory.
func LookupTool(name string) (string, error) {
	if p := os.Getenv(ToolEnvVar(name)); p != "" {
		if isExecutable(p) {
			return p, nil
		}
		return "", fmt.Errorf("%s=%s: %w", ToolEnvVar(name), p, ErrToolNotFound)
	}
	if p, err := exec.LookPath(name); err == nil {
		return p, nil
	}
	if home := ZiskHome(); home != "" {
		p := filepath.Join(home, "bin", name)
		if runtime.GOOS == "windows" {
			p += ".exe"
		}
		if isExecutable(p) {
			return p, nil
		}
	}
	return "", fmt.Errorf("%s: %w", name, ErrToolNotFound)
}

func isExecutable(p string) bool {
	info, err := os.Stat(p)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}

// Probe builds a Report. version, when non-nil, is called for every tool
// that was found; its failures are recorded, not returned.
func Probe(ctx context.Context, version VersionFunc) Report {
	r := Report{
		OS:                     runtime.GOOS,
		Arch:                   runtime.GOARCH,
		CPUs:                   runtime.NumCPU(),
		MemoryBytes:            totalMemory(),
		RecommendedConcurrency: RecommendedConcurrency(),
		ZiskHome:               ZiskHome(),
	}

	for _, name := range types.KnownTools() {
		st := ToolStatus{Name: name}
		path, err := LookupTool(name)
		if err != nil {
			st.Error = err.Error()
			r.Tools = append(r.Tools, st)
			continue
		}
		st.Path, st.Found = path, true
		if version != nil {
			v, err := version(ctx, name, path)
			if err != nil {
				st.Error = err.Error()
			}
			st.Version = strings.TrimSpace(v)
		}
		r.Tools = append(r.Tools, st)
	}

	for _, t := range r.Tools {
		if t.Name == types.ToolMPIRun && t.Found {
			r.MPIAvailable = true
		}
	}
	r.ExecutionMode = executionMode(r.OS, r.MPIAvailable)
	return r
}

func executionMode(goos string, mpi bool) ExecutionMode {
	switch {
	case !Supported(goos):
		return ModeUnsupported
	case mpi:
		return ModeMPI
	default:
		return ModeNative
	}
}

// Tool returns the status of the named tool.
func (r Report) Tool(name string) (ToolStatus, bool) {
	for _, t := range r.Tools {
		if t.Name == name {
			return t, true
		}
	}
	return ToolStatus{}, false
}
