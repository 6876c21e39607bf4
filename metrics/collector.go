// Package metrics provides per-invocation counters for conversions, external
// process executions and artifact publishing.
//
// The Collector is a leaf package with no internal dependencies. It is shared
// by the converter and the executor of a single CLI invocation and reported
// by doctor --stats and by command results.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Conversion
	ConversionsSucceeded int64
	ConversionsFailed    int64
	BytesWritten         int64
	ConversionsByFormat  map[string]int64

	// Execution
	ExecutionsStarted   int64
	ExecutionsCompleted int64
	ExecutionsFailed    int64
	ExecutionsTimedOut  int64
	ExecutionsKilled    int64
	ExecutionsRejected  int64
	SpawnFailures       int64

	// Pool
	PoolWaits      int64
	PeakConcurrent int64

	// Artifact storage
	ArtifactPublishSuccess int64
	ArtifactPublishFailure int64

	// Dimensions (informational, set at construction)
	ExecutionMode  string
	StorageBackend string
	Project        string
}

// Collector accumulates metrics during a single CLI invocation.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	conversionsSucceeded int64
	conversionsFailed    int64
	bytesWritten         int64
	byFormat             map[string]int64

	executionsStarted   int64
	executionsCompleted int64
	executionsFailed    int64
	executionsTimedOut  int64
	executionsKilled    int64
	executionsRejected  int64
	spawnFailures       int64

	poolWaits      int64
	running        int64
	peakConcurrent int64

	artifactPublishSuccess int64
	artifactPublishFailure int64

	executionMode  string
	storageBackend string
	project        string
}

// NewCollector creates a Collector with dimension labels. All are optional.
func NewCollector(executionMode, storageBackend, project string) *Collector {
	return &Collector{
		byFormat:       make(map[string]int64),
		executionMode:  executionMode,
		storageBackend: storageBackend,
		project:        project,
	}
}

func (c *Collector) add(counter *int64, n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	*counter += n
	c.mu.Unlock()
}

// --- Conversion ---

// IncConversionSucceeded records a written conversion output of n bytes.
func (c *Collector) IncConversionSucceeded(format string, n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.conversionsSucceeded++
	c.bytesWritten += n
	c.byFormat[format]++
	c.mu.Unlock()
}

// IncConversionFailed records a failed conversion.
func (c *Collector) IncConversionFailed() {
	if c == nil {
		return
	}
	c.add(&c.conversionsFailed, 1)
}

// --- Execution ---

// IncExecutionRejected records an invocation refused during validation.
func (c *Collector) IncExecutionRejected() {
	if c == nil {
		return
	}
	c.add(&c.executionsRejected, 1)
}

// ExecutionStarted records a spawned child and tracks peak concurrency.
// Every call must be paired with ExecutionFinished.
func (c *Collector) ExecutionStarted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.executionsStarted++
	c.running++
	if c.running > c.peakConcurrent {
		c.peakConcurrent = c.running
	}
	c.mu.Unlock()
}

// ExecutionFinished marks a spawned child as exited.
func (c *Collector) ExecutionFinished() {
	if c == nil {
		return
	}
	c.add(&c.running, -1)
}

// IncExecutionCompleted records a child that exited with status zero.
func (c *Collector) IncExecutionCompleted() {
	if c == nil {
		return
	}
	c.add(&c.executionsCompleted, 1)
}

// IncExecutionFailed records a child that exited non-zero.
func (c *Collector) IncExecutionFailed() {
	if c == nil {
		return
	}
	c.add(&c.executionsFailed, 1)
}

// IncExecutionTimedOut records a child terminated for exceeding its timeout.
func (c *Collector) IncExecutionTimedOut() {
	if c == nil {
		return
	}
	c.add(&c.executionsTimedOut, 1)
}

// IncExecutionKilled records a child terminated by cancellation or output overflow.
func (c *Collector) IncExecutionKilled() {
	if c == nil {
		return
	}
	c.add(&c.executionsKilled, 1)
}

// IncSpawnFailure records a child the OS could not start.
func (c *Collector) IncSpawnFailure() {
	if c == nil {
		return
	}
	c.add(&c.spawnFailures, 1)
}

// IncPoolWait records an admission that had to queue for a slot.
func (c *Collector) IncPoolWait() {
	if c == nil {
		return
	}
	c.add(&c.poolWaits, 1)
}

// --- Artifact storage ---

// IncArtifactPublishSuccess records a stored artifact.
func (c *Collector) IncArtifactPublishSuccess() {
	if c == nil {
		return
	}
	c.add(&c.artifactPublishSuccess, 1)
}

// IncArtifactPublishFailure records a failed artifact write.
func (c *Collector) IncArtifactPublishFailure() {
	if c == nil {
		return
	}
	c.add(&c.artifactPublishFailure, 1)
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	byFormat := make(map[string]int64, len(c.byFormat))
	for k, v := range c.byFormat {
		byFormat[k] = v
	}

	return Snapshot{
		ConversionsSucceeded: c.conversionsSucceeded,
		ConversionsFailed:    c.conversionsFailed,
		BytesWritten:         c.bytesWritten,
		ConversionsByFormat:  byFormat,

		ExecutionsStarted:   c.executionsStarted,
		ExecutionsCompleted: c.executionsCompleted,
		ExecutionsFailed:    c.executionsFailed,
		ExecutionsTimedOut:  c.executionsTimedOut,
		ExecutionsKilled:    c.executionsKilled,
		ExecutionsRejected:  c.executionsRejected,
		SpawnFailures:       c.spawnFailures,

		PoolWaits:      c.poolWaits,
		PeakConcurrent: c.peakConcurrent,

		ArtifactPublishSuccess: c.artifactPublishSuccess,
		ArtifactPublishFailure: c.artifactPublishFailure,

		ExecutionMode:  c.executionMode,
		StorageBackend: c.storageBackend,
		Project:        c.project,
	}
}
