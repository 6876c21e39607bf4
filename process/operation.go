package process

import (
	"fmt"
	"maps"
	"strings"
	"time"
)

// Operation is the class of work an invocation performs. It selects the
// timeout budget.
type Operation string

const (
	OpBuild   Operation = "build"
	OpProve   Operation = "prove"
	OpVerify  Operation = "verify"
	OpExecute Operation = "execute"
	OpSetup   Operation = "setup"
	OpGeneric Operation = "generic"
)

// Operations lists every operation class.
func Operations() []Operation {
	return []Operation{OpBuild, OpProve, OpVerify, OpExecute, OpSetup, OpGeneric}
}

// ParseOperation parses an operation name. Empty selects OpGeneric.
func ParseOperation(s string) (Operation, error) {
	op := Operation(strings.ToLower(strings.TrimSpace(s)))
	if op == "" {
		return OpGeneric, nil
	}
	for _, known := range Operations() {
		if op == known {
			return op, nil
		}
	}
	return "", fmt.Errorf("invalid operation: %q", s)
}

// Default grace period between the graceful and forced termination phases.
const DefaultGracePeriod = 10 * time.Second

var defaultTimeouts = Timeouts{
	OpBuild:   30 * time.Minute,
	OpProve:   2 * time.Hour,
	OpVerify:  5 * time.Minute,
	OpExecute: 30 * time.Minute,
	OpSetup:   time.Hour,
	OpGeneric: 10 * time.Minute,
}

// Timeouts maps operation classes to budgets.
type Timeouts map[Operation]time.Duration

// DefaultTimeouts returns a copy of the built-in budgets.
func DefaultTimeouts() Timeouts {
	return maps.Clone(defaultTimeouts)
}

// For returns the budget for op, falling back to the built-in budget and
// then to the generic one.
func (t Timeouts) For(op Operation) time.Duration {
	if d, ok := t[op]; ok && d > 0 {
		return d
	}
	if d, ok := defaultTimeouts[op]; ok {
		return d
	}
	if d, ok := t[OpGeneric]; ok && d > 0 {
		return d
	}
	return defaultTimeouts[OpGeneric]
}

// Merge returns t overlaid with the positive entries of override.
func (t Timeouts) Merge(override Timeouts) Timeouts {
	out := maps.Clone(t)
	if out == nil {
		out = Timeouts{}
	}
	for op, d := range override {
		if d > 0 {
			out[op] = d
		}
	}
	return out
}

// TimeoutEnvPrefix prefixes per-operation timeout overrides, e.g.
// ZISK_DEV_TIMEOUT_PROVE=3h.
const TimeoutEnvPrefix = "ZISK_DEV_TIMEOUT_"

// TimeoutsFromEnv reads ZISK_DEV_TIMEOUT_<OP> overrides through lookup.
func TimeoutsFromEnv(lookup func(string) (string, bool)) (Timeouts, error) {
	out := Timeouts{}
	for _, op := range Operations() {
		name := TimeoutEnvPrefix + strings.ToUpper(string(op))
		raw, ok := lookup(name)
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		d, err := time.ParseDuration(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("%s: must be positive, got %s", name, d)
		}
		out[op] = d
	}
	return out, nil
}
