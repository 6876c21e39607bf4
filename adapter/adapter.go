// Package adapter defines the notification boundary for finished
// toolchain operations.
//
// Adapters publish operation completion notifications to downstream
// systems (CI dashboards, proving queues). The CLI owns adapter lifecycle;
// users provide configuration only.
package adapter

import (
	"context"
	"time"

	"github.com/zisk-dev/zisk-dev/types"
)

// EventTypeOperationCompleted is the only event type.
const EventTypeOperationCompleted = "operation_completed"

// OperationCompletedEvent is the payload published when a build, prove,
// verify or execute operation finishes.
type OperationCompletedEvent struct {
	ContractVersion string `json:"contract_version"`
	EventType       string `json:"event_type"` // always "operation_completed"
	InvocationID    string `json:"invocation_id"`
	Project         string `json:"project"`
	Operation       string `json:"operation"`
	Program         string `json:"program"`
	Outcome         string `json:"outcome"` // completed, failed, timed_out, killed
	ExitCode        int    `json:"exit_code"`
	ErrorKind       string `json:"error_kind,omitempty"`
	ArtifactKey     string `json:"artifact_key,omitempty"`
	Timestamp       string `json:"timestamp"` // RFC 3339
	DurationMs      int64  `json:"duration_ms"`
}

// NewOperationCompletedEvent fills the envelope fields of an event.
func NewOperationCompletedEvent(at time.Time) *OperationCompletedEvent {
	return &OperationCompletedEvent{
		ContractVersion: types.EventContractVersion,
		EventType:       EventTypeOperationCompleted,
		Timestamp:       at.UTC().Format(time.RFC3339),
	}
}

// Adapter publishes operation completion events to a downstream system.
type Adapter interface {
	// Publish sends an event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *OperationCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}

// Backoff returns the delay before retry attempt (1-based): 500ms doubling.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	return time.Duration(1<<uint(attempt-1)) * 500 * time.Millisecond
}
