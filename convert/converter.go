package convert

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/zeebo/blake3"
	"golang.org/x/sync/errgroup"

	"github.com/zisk-dev/zisk-dev/envelope"
	"github.com/zisk-dev/zisk-dev/iox"
	"github.com/zisk-dev/zisk-dev/log"
	"github.com/zisk-dev/zisk-dev/metrics"
)

// OutputExt is the extension ConvertDir gives every destination file.
const OutputExt = ".bin"

// Options controls a single conversion.
type Options struct {
	// Mode selects payload serialization. Empty selects ModeDefault.
	Mode Mode
	// TextMode selects how .txt sources are parsed. Empty selects TextLines.
	TextMode TextMode
	// Parallelism bounds concurrent conversions in ConvertDir.
	// Zero or negative selects runtime.NumCPU().
	Parallelism int
}

// Job is a resolved conversion: source and destination paths plus the format
// selected by the source extension.
type Job struct {
	Source      string
	Destination string
	Format      Format
	Mode        Mode
	TextMode    TextMode
}

// Result describes a written destination file.
type Result struct {
	Source      string        `json:"source"`
	Destination string        `json:"destination"`
	Bytes       int64         `json:"bytes"`
	Duration    time.Duration `json:"duration"`
	Format      string        `json:"format"`
	Mode        Mode          `json:"mode,omitempty"`
	// Digest is the BLAKE3 hex digest of the destination file contents.
	Digest string `json:"digest"`
}

// Config configures a Converter.
type Config struct {
	// Registry resolves extensions. Nil selects the built-in formats.
	Registry *Registry
	Logger   *log.Logger
	Metrics  *metrics.Collector
}

// Converter turns input files into envelopes. It holds no per-call state
// and is safe for concurrent use.
type Converter struct {
	registry *Registry
	logger   *log.Logger
	metrics  *metrics.Collector
}

// NewConverter creates a Converter.
func NewConverter(cfg Config) *Converter {
	c := &Converter{registry: cfg.Registry, logger: cfg.Logger, metrics: cfg.Metrics}
	if c.registry == nil {
		c.registry = MustRegistry()
	}
	if c.logger == nil {
		c.logger = log.Nop()
	}
	return c
}

// Registry returns the extension registry in use.
func (c *Converter) Registry() *Registry {
	return c.registry
}

// Plan resolves the format for source without touching the filesystem.
func (c *Converter) Plan(source, destination string, opts Options) (Job, error) {
	format, err := c.registry.Lookup(source)
	if err != nil {
		return Job{}, err
	}
	mode := opts.Mode
	if mode == "" {
		mode = ModeDefault
	}
	if _, err := ParseMode(string(mode)); err != nil {
		return Job{}, &Error{Kind: KindMalformedInput, Path: source, Msg: err.Error()}
	}
	return Job{
		Source:      source,
		Destination: destination,
		Format:      format,
		Mode:        mode,
		TextMode:    opts.TextMode,
	}, nil
}

// Convert converts source into an envelope at destination. Binary sources
// are copied unchanged. The destination is replaced atomically; on failure
// nothing is left at destination.
func (c *Converter) Convert(ctx context.Context, source, destination string, opts Options) (*Result, error) {
	job, err := c.Plan(source, destination, opts)
	if err != nil {
		c.metrics.IncConversionFailed()
		c.logger.Warn("convert.failed", map[string]any{"source": source, "error": err.Error()})
		return nil, err
	}
	return c.Run(ctx, job)
}

// Run executes a planned job.
func (c *Converter) Run(ctx context.Context, job Job) (*Result, error) {
	start := time.Now()
	fields := map[string]any{
		"source":      job.Source,
		"destination": job.Destination,
		"format":      job.Format.Name,
		"mode":        string(job.Mode),
	}
	c.logger.Info("convert.start", fields)

	res, err := c.run(ctx, job)
	if err != nil {
		c.metrics.IncConversionFailed()
		c.logger.Warn("convert.failed", map[string]any{
			"source":      job.Source,
			"destination": job.Destination,
			"kind":        KindOf(err).String(),
			"error":       err.Error(),
		})
		return nil, err
	}
	res.Duration = time.Since(start)

	c.metrics.IncConversionSucceeded(job.Format.Name, res.Bytes)
	c.logger.Info("convert.done", map[string]any{
		"source":      job.Source,
		"destination": job.Destination,
		"format":      job.Format.Name,
		"mode":        string(job.Mode),
		"bytes":       res.Bytes,
		"duration_ms": res.Duration.Milliseconds(),
	})
	return res, nil
}

func (c *Converter) run(ctx context.Context, job Job) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := readSource(job.Source)
	if err != nil {
		return nil, err
	}

	var payload []byte
	if job.Format.Kind != FormatBinary {
		value, err := job.Format.Parse(data, Options{Mode: job.Mode, TextMode: job.TextMode})
		if err != nil {
			return nil, withPath(err, job.Source, KindMalformedInput)
		}
		payload, err = Serialize(value, job.Mode)
		if err != nil {
			return nil, withPath(err, job.Source, KindMalformedInput)
		}
		if len(payload) > envelope.MaxPayloadSize {
			return nil, &Error{
				Kind: KindMalformedInput,
				Path: job.Source,
				Msg:  fmt.Sprintf("payload of %d bytes exceeds envelope limit %d", len(payload), envelope.MaxPayloadSize),
			}
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hasher := blake3.New()
	var written int64
	err = iox.WriteFileAtomic(job.Destination, 0o644, func(w io.Writer) error {
		mw := io.MultiWriter(w, hasher)
		if job.Format.Kind == FormatBinary {
			n, err := mw.Write(data)
			written = int64(n)
			return err
		}
		n, err := envelope.Write(mw, payload)
		written = n
		return err
	})
	if err != nil {
		return nil, &Error{Kind: KindIOError, Path: job.Destination, Err: err}
	}

	return &Result{
		Source:      job.Source,
		Destination: job.Destination,
		Bytes:       written,
		Format:      job.Format.Name,
		Mode:        modeFor(job),
		Digest:      hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

func modeFor(job Job) Mode {
	if job.Format.Kind == FormatBinary {
		return ""
	}
	return job.Mode
}

func readSource(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &Error{Kind: KindNotFound, Path: path, Err: err}
	}
	if !info.Mode().IsRegular() {
		return nil, &Error{Kind: KindNotFound, Path: path, Msg: "not a regular file"}
	}
	if info.Size() > envelope.MaxPayloadSize {
		return nil, &Error{
			Kind: KindMalformedInput,
			Path: path,
			Msg:  fmt.Sprintf("source of %d bytes exceeds limit %d", info.Size(), envelope.MaxPayloadSize),
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Kind: KindNotFound, Path: path, Err: err}
	}
	return data, nil
}

// ConvertDir converts every file under srcDir with a registered extension
// into dstDir, keeping relative paths and replacing the extension with
// OutputExt. Conversions run concurrently, bounded by opts.Parallelism.
//
// Results are returned in completion order. A failed file does not stop the
// others; all failures are joined into the returned error.
func (c *Converter) ConvertDir(ctx context.Context, srcDir, dstDir string, opts Options) ([]*Result, error) {
	jobs, err := c.PlanDir(srcDir, dstDir, opts)
	if err != nil {
		return nil, err
	}

	limit := opts.Parallelism
	if limit <= 0 {
		limit = runtime.NumCPU()
	}

	var (
		mu      sync.Mutex
		results = make([]*Result, 0, len(jobs))
		errs    []error
	)
	var g errgroup.Group
	g.SetLimit(limit)
	for _, job := range jobs {
		g.Go(func() error {
			res, err := c.Run(ctx, job)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return nil
			}
			results = append(results, res)
			return nil
		})
	}
	_ = g.Wait()

	return results, errors.Join(errs...)
}

// PlanDir lists the jobs ConvertDir would run. Two sources that map to the
// same destination are rejected before anything is written.
func (c *Converter) PlanDir(srcDir, dstDir string, opts Options) ([]Job, error) {
	info, err := os.Stat(srcDir)
	if err != nil {
		return nil, &Error{Kind: KindNotFound, Path: srcDir, Err: err}
	}
	if !info.IsDir() {
		return nil, &Error{Kind: KindNotFound, Path: srcDir, Msg: "not a directory"}
	}

	var jobs []Job
	claimed := make(map[string]string)
	err = filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() || !c.registry.Supports(path) {
			return nil
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		dst := filepath.Join(dstDir, strings.TrimSuffix(rel, filepath.Ext(rel))+OutputExt)
		if prev, ok := claimed[dst]; ok {
			return &Error{
				Kind: KindIOError,
				Path: dst,
				Msg:  fmt.Sprintf("sources %s and %s map to the same destination", prev, path),
			}
		}
		claimed[dst] = path
		job, err := c.Plan(path, dst, opts)
		if err != nil {
			return err
		}
		jobs = append(jobs, job)
		return nil
	})
	if err != nil {
		return nil, withPath(err, srcDir, KindNotFound)
	}
	return jobs, nil
}
