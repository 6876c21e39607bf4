package config

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/zisk-dev/zisk-dev/convert"
	"github.com/zisk-dev/zisk-dev/process"
)

// Default directories, relative to the project root.
const (
	DefaultInputsDir  = "inputs"
	DefaultOutputsDir = "build"
)

// Config represents a zisk-dev.yaml project file.
// All values are optional and act as defaults for command flags.
// CLI flags always override config values.
type Config struct {
	Project  ProjectConfig  `yaml:"project"`
	Inputs   DirConfig      `yaml:"inputs"`
	Outputs  DirConfig      `yaml:"outputs"`
	Build    BuildConfig    `yaml:"build"`
	Convert  ConvertConfig  `yaml:"convert"`
	Executor ExecutorConfig `yaml:"executor"`
	MPI      MPIConfig      `yaml:"mpi"`
	Storage  StorageConfig  `yaml:"storage"`
	Notify   NotifyConfig   `yaml:"notify"`
}

// ProjectConfig identifies the guest program.
type ProjectConfig struct {
	Name string `yaml:"name"`
}

// DirConfig names a project directory.
type DirConfig struct {
	Dir string `yaml:"dir"`
}

// BuildConfig holds cargo-zisk build defaults.
type BuildConfig struct {
	Profile  string   `yaml:"profile"`
	Target   string   `yaml:"target"`
	Features []string `yaml:"features,omitempty"`
}

// ConvertConfig holds input conversion defaults.
type ConvertConfig struct {
	Mode     string `yaml:"mode"`
	TextMode string `yaml:"text_mode"`
}

// ExecutorConfig holds process executor settings.
type ExecutorConfig struct {
	MaxProcesses   int                 `yaml:"max_processes"`
	GracePeriod    Duration            `yaml:"grace_period,omitempty"`
	Timeouts       map[string]Duration `yaml:"timeouts,omitempty"`
	MaxOutputBytes int64               `yaml:"max_output_bytes"`
}

// MPIConfig holds distributed proving defaults. Processes of zero runs
// the prover natively.
type MPIConfig struct {
	Processes  int  `yaml:"processes"`
	Threads    int  `yaml:"threads"`
	BindToNone bool `yaml:"bind_to_none"`
}

// StorageConfig holds artifact storage settings.
type StorageConfig struct {
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
	Compression string `yaml:"compression"`
}

// NotifyConfig holds completion notification settings.
type NotifyConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Stream  string            `yaml:"stream,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// InputsDir returns inputs.dir or its default.
func (c *Config) InputsDir() string {
	if c.Inputs.Dir == "" {
		return DefaultInputsDir
	}
	return c.Inputs.Dir
}

// OutputsDir returns outputs.dir or its default.
func (c *Config) OutputsDir() string {
	if c.Outputs.Dir == "" {
		return DefaultOutputsDir
	}
	return c.Outputs.Dir
}

// ExecutorTimeouts converts executor.timeouts into executor budgets.
// Call Validate first; unknown operations are skipped here.
func (c *Config) ExecutorTimeouts() process.Timeouts {
	if len(c.Executor.Timeouts) == 0 {
		return nil
	}
	out := make(process.Timeouts, len(c.Executor.Timeouts))
	for name, d := range c.Executor.Timeouts {
		op, err := process.ParseOperation(name)
		if err != nil {
			continue
		}
		out[op] = d.Duration
	}
	return out
}

// Validate checks enumerated values and cross-field requirements.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []error
	if c.Convert.Mode != "" {
		if _, err := convert.ParseMode(c.Convert.Mode); err != nil {
			errs = append(errs, fmt.Errorf("convert.mode: %w", err))
		}
	}
	if c.Convert.TextMode != "" {
		if _, err := convert.ParseTextMode(c.Convert.TextMode); err != nil {
			errs = append(errs, fmt.Errorf("convert.text_mode: %w", err))
		}
	}
	if c.Executor.MaxProcesses < 0 {
		errs = append(errs, fmt.Errorf("executor.max_processes: must not be negative, got %d", c.Executor.MaxProcesses))
	}
	if c.Executor.MaxOutputBytes < 0 {
		errs = append(errs, fmt.Errorf("executor.max_output_bytes: must not be negative, got %d", c.Executor.MaxOutputBytes))
	}
	names := make([]string, 0, len(c.Executor.Timeouts))
	for name := range c.Executor.Timeouts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := process.ParseOperation(name); err != nil {
			errs = append(errs, fmt.Errorf("executor.timeouts: %w", err))
		} else if c.Executor.Timeouts[name].Duration < 0 {
			errs = append(errs, fmt.Errorf("executor.timeouts.%s: must not be negative", name))
		}
	}
	if c.MPI.Processes < 0 || c.MPI.Threads < 0 {
		errs = append(errs, errors.New("mpi: processes and threads must not be negative"))
	}
	switch c.Storage.Backend {
	case "", "fs", "s3":
	default:
		errs = append(errs, fmt.Errorf("storage.backend: must be fs or s3, got %q", c.Storage.Backend))
	}
	if c.Storage.Backend != "" && c.Storage.Path == "" {
		errs = append(errs, errors.New("storage.path: required when storage.backend is set"))
	}
	switch c.Storage.Compression {
	case "", "none", "zstd", "lz4":
	default:
		errs = append(errs, fmt.Errorf("storage.compression: must be none, zstd or lz4, got %q", c.Storage.Compression))
	}
	switch c.Notify.Type {
	case "":
	case "webhook", "redis":
		if c.Notify.URL == "" {
			errs = append(errs, fmt.Errorf("notify.url: required for %s notifications", c.Notify.Type))
		}
	default:
		errs = append(errs, fmt.Errorf("notify.type: must be webhook or redis, got %q", c.Notify.Type))
	}
	if c.Notify.Retries != nil && *c.Notify.Retries < 0 {
		errs = append(errs, errors.New("notify.retries: must not be negative"))
	}
	return errors.Join(errs...)
}
