// Package artifact publishes build outputs (converted inputs, proofs) to
// a lode store on the local filesystem or S3, and fetches them back.
//
// Keys are content addressed:
//
//	artifacts/<project>/<kind>/<digest16>/<name>[.zst|.lz4]
//
// where digest16 is the first 16 hex characters of the BLAKE3 digest of
// the uncompressed content. Publishing identical content twice is a no-op.
// Fetch verifies content against the digest in its key.
package artifact

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/justapithecus/lode/lode"
	"github.com/zeebo/blake3"

	"github.com/zisk-dev/zisk-dev/iox"
	"github.com/zisk-dev/zisk-dev/log"
	"github.com/zisk-dev/zisk-dev/metrics"
)

// Backends.
const (
	BackendFS     = "fs"
	BackendS3     = "s3"
	BackendMemory = "memory"
)

// keyRoot prefixes every artifact key.
const keyRoot = "artifacts"

// digestPrefixLen is the number of digest hex characters embedded in keys.
const digestPrefixLen = 16

// Config configures Open.
type Config struct {
	// Backend is fs, s3 or memory.
	Backend string
	// Path is the root directory (fs) or "bucket/prefix" (s3).
	Path        string
	Region      string
	Endpoint    string
	S3PathStyle bool
	Compression Compression
	// Project namespaces keys. Empty selects "default".
	Project string
	Logger  *log.Logger
	Metrics *metrics.Collector
}

// Published describes a stored artifact.
type Published struct {
	Key          string      `json:"key"`
	Source       string      `json:"source"`
	Bytes        int64       `json:"bytes"`
	StoredBytes  int64       `json:"stored_bytes"`
	Digest       string      `json:"digest"`
	Compression  Compression `json:"compression"`
	Deduplicated bool        `json:"deduplicated"`
}

// Fetched describes a fetched artifact.
type Fetched struct {
	Key    string `json:"key"`
	Path   string `json:"path"`
	Bytes  int64  `json:"bytes"`
	Digest string `json:"digest"`
}

// Store publishes and fetches artifacts. It is safe for concurrent use.
type Store struct {
	factory     lode.StoreFactory
	project     string
	compression Compression
	logger      *log.Logger
	metrics     *metrics.Collector

	once     sync.Once
	store    lode.Store
	storeErr error
}

// Open builds a Store for cfg.Backend.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	var factory lode.StoreFactory
	switch cfg.Backend {
	case BackendFS, "":
		if cfg.Path == "" {
			return nil, wrapError("init", "", fmt.Errorf("fs backend requires a path"))
		}
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, wrapError("init", "", err)
		}
		factory = lode.NewFSFactory(cfg.Path)
	case BackendS3:
		bucket, prefix := ParseS3Path(cfg.Path)
		f, err := NewS3Factory(ctx, S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       cfg.Region,
			Endpoint:     cfg.Endpoint,
			UsePathStyle: cfg.S3PathStyle,
		})
		if err != nil {
			return nil, wrapError("init", "", err)
		}
		factory = f
	case BackendMemory:
		factory = lode.NewMemoryFactory()
	default:
		return nil, fmt.Errorf("unknown storage backend: %q (must be fs or s3)", cfg.Backend)
	}
	return NewStore(factory, cfg), nil
}

// NewStore creates a Store over factory. Backend and path settings in cfg
// are ignored. The factory is invoked lazily on first use.
func NewStore(factory lode.StoreFactory, cfg Config) *Store {
	s := &Store{
		factory:     factory,
		project:     cfg.Project,
		compression: cfg.Compression,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
	}
	if s.project == "" {
		s.project = "default"
	}
	if s.compression == "" {
		s.compression = CompressionNone
	}
	if s.logger == nil {
		s.logger = log.Nop()
	}
	return s
}

func (s *Store) backend() (lode.Store, error) {
	s.once.Do(func() {
		s.store, s.storeErr = s.factory()
	})
	return s.store, s.storeErr
}

// Key returns the key under which content with digest is published.
func (s *Store) Key(kind, name, digest string) string {
	if len(digest) > digestPrefixLen {
		digest = digest[:digestPrefixLen]
	}
	return path.Join(keyRoot, s.project, kind, digest, name) + s.compression.Suffix()
}

// Publish stores the file at localPath under kind (e.g. "inputs", "proofs").
func (s *Store) Publish(ctx context.Context, localPath, kind string) (*Published, error) {
	pub, err := s.publish(ctx, localPath, kind)
	if err != nil {
		s.metrics.IncArtifactPublishFailure()
		s.logger.Error("artifact.publish_failed", map[string]any{"source": localPath, "error": err.Error()})
		return nil, err
	}
	s.metrics.IncArtifactPublishSuccess()
	s.logger.Info("artifact.published", map[string]any{
		"key":          pub.Key,
		"bytes":        pub.Bytes,
		"stored_bytes": pub.StoredBytes,
		"deduplicated": pub.Deduplicated,
	})
	return pub, nil
}

func (s *Store) publish(ctx context.Context, localPath, kind string) (*Published, error) {
	if err := validSegment(kind); err != nil {
		return nil, wrapError("publish", "", err)
	}
	f, err := os.Open(localPath)
	if err != nil {
		return nil, wrapError("publish", "", err)
	}
	defer f.Close()

	var stored bytes.Buffer
	cw, err := compressor(&stored, s.compression)
	if err != nil {
		return nil, wrapError("publish", "", err)
	}
	hasher := blake3.New()
	n, err := io.Copy(io.MultiWriter(cw, hasher), f)
	if err != nil {
		return nil, wrapError("publish", "", err)
	}
	if err := cw.Close(); err != nil {
		return nil, wrapError("publish", "", err)
	}

	digest := hex.EncodeToString(hasher.Sum(nil))
	key := s.Key(kind, filepath.Base(localPath), digest)
	pub := &Published{
		Key:         key,
		Source:      localPath,
		Bytes:       n,
		StoredBytes: int64(stored.Len()),
		Digest:      digest,
		Compression: s.compression,
	}

	store, err := s.backend()
	if err != nil {
		return nil, wrapError("init", key, err)
	}
	exists, err := store.Exists(ctx, key)
	if err != nil {
		return nil, wrapError("publish", key, err)
	}
	if exists {
		pub.Deduplicated = true
		return pub, nil
	}
	if err := store.Put(ctx, key, bytes.NewReader(stored.Bytes())); err != nil {
		return nil, wrapError("publish", key, err)
	}
	return pub, nil
}

// Fetch reads key, decompresses it according to its suffix and writes it
// atomically to dst.
func (s *Store) Fetch(ctx context.Context, key, dst string) (*Fetched, error) {
	store, err := s.backend()
	if err != nil {
		return nil, wrapError("init", key, err)
	}
	exists, err := store.Exists(ctx, key)
	if err != nil {
		return nil, wrapError("fetch", key, err)
	}
	if !exists {
		return nil, &StorageError{Kind: ErrNotFound, Op: "fetch", Key: key, Err: fmt.Errorf("no artifact at %s", key)}
	}

	rc, err := store.Get(ctx, key)
	if err != nil {
		return nil, wrapError("fetch", key, err)
	}
	defer rc.Close()
	dr, err := decompressor(rc, compressionForKey(key))
	if err != nil {
		return nil, wrapError("fetch", key, err)
	}
	defer dr.Close()

	hasher := blake3.New()
	var n int64
	err = iox.WriteFileAtomic(dst, 0o644, func(w io.Writer) error {
		var copyErr error
		n, copyErr = io.Copy(io.MultiWriter(w, hasher), dr)
		if copyErr != nil {
			return copyErr
		}
		if want := keyDigest(key); want != "" && !strings.HasPrefix(hex.EncodeToString(hasher.Sum(nil)), want) {
			return &StorageError{Kind: ErrCorrupt, Op: "fetch", Key: key, Err: fmt.Errorf("content does not match %s", want)}
		}
		return nil
	})
	if err != nil {
		return nil, wrapError("fetch", key, err)
	}

	s.logger.Info("artifact.fetched", map[string]any{"key": key, "path": dst, "bytes": n})
	return &Fetched{Key: key, Path: dst, Bytes: n, Digest: hex.EncodeToString(hasher.Sum(nil))}, nil
}

// List returns artifact keys of kind for this project. Empty kind lists
// every kind.
func (s *Store) List(ctx context.Context, kind string) ([]string, error) {
	store, err := s.backend()
	if err != nil {
		return nil, wrapError("init", "", err)
	}
	prefix := path.Join(keyRoot, s.project, kind) + "/"
	keys, err := store.List(ctx, prefix)
	if err != nil {
		return nil, wrapError("list", prefix, err)
	}
	return keys, nil
}

// keyDigest extracts the digest prefix segment from a key produced by Key.
func keyDigest(key string) string {
	parts := strings.Split(key, "/")
	if len(parts) < 5 || parts[0] != keyRoot {
		return ""
	}
	d := parts[len(parts)-2]
	if len(d) != digestPrefixLen {
		return ""
	}
	if _, err := hex.DecodeString(d); err != nil {
		return ""
	}
	return d
}

func validSegment(s string) error {
	if s == "" || s == "." || s == ".." || strings.ContainsAny(s, `/\`) {
		return fmt.Errorf("invalid artifact kind %q", s)
	}
	return nil
}
