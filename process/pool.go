package process

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/zisk-dev/zisk-dev/metrics"
	"github.com/zisk-dev/zisk-dev/platform"
)

// MaxPoolCapacity caps the pool regardless of configuration.
const MaxPoolCapacity = 16

// MaxProcessesEnv overrides the default pool capacity.
const MaxProcessesEnv = "ZISK_DEV_MAX_PROCESSES"

// PoolStats is a point-in-time view of a pool.
type PoolStats struct {
	Capacity int `json:"capacity"`
	Active   int `json:"active"`
	Waiting  int `json:"waiting"`
}

// Pool bounds the number of concurrently running children. Waiters are
// admitted strictly in arrival order; nothing is ever dropped.
type Pool struct {
	mu       sync.Mutex
	capacity int
	active   int
	waiters  []chan struct{}
	metrics  *metrics.Collector
}

// NewPool creates a pool with the given capacity, clamped to
// [1, MaxPoolCapacity].
func NewPool(capacity int, m *metrics.Collector) *Pool {
	return &Pool{capacity: clampCapacity(capacity), metrics: m}
}

func clampCapacity(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxPoolCapacity {
		return MaxPoolCapacity
	}
	return n
}

// ResolveCapacity picks the pool capacity: requested when positive, else
// ZISK_DEV_MAX_PROCESSES read through lookup, else the platform
// recommendation. The result is always clamped.
func ResolveCapacity(requested int, lookup func(string) (string, bool)) (int, error) {
	if requested > 0 {
		return clampCapacity(requested), nil
	}
	if lookup != nil {
		if raw, ok := lookup(MaxProcessesEnv); ok && strings.TrimSpace(raw) != "" {
			n, err := strconv.Atoi(strings.TrimSpace(raw))
			if err != nil || n < 1 {
				return 0, fmt.Errorf("%s: must be a positive integer, got %q", MaxProcessesEnv, raw)
			}
			return clampCapacity(n), nil
		}
	}
	return clampCapacity(platform.RecommendedConcurrency()), nil
}

// Acquire blocks until a slot is free or ctx is done.
func (p *Pool) Acquire(ctx context.Context) error {
	p.mu.Lock()
	if p.active < p.capacity && len(p.waiters) == 0 {
		p.active++
		p.mu.Unlock()
		return nil
	}
	ready := make(chan struct{})
	p.waiters = append(p.waiters, ready)
	p.mu.Unlock()
	p.metrics.IncPoolWait()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		p.mu.Lock()
		defer p.mu.Unlock()
		for i, w := range p.waiters {
			if w == ready {
				p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
				return ctx.Err()
			}
		}
		// Granted concurrently with cancellation: pass the slot on.
		p.releaseLocked()
		return ctx.Err()
	}
}

// Release frees a slot acquired with Acquire, handing it directly to the
// oldest waiter if there is one.
func (p *Pool) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releaseLocked()
}

func (p *Pool) releaseLocked() {
	if len(p.waiters) > 0 {
		next := p.waiters[0]
		p.waiters[0] = nil
		p.waiters = p.waiters[1:]
		close(next)
		return
	}
	if p.active > 0 {
		p.active--
	}
}

// Capacity returns the pool capacity.
func (p *Pool) Capacity() int {
	return p.capacity
}

// Stats returns current occupancy.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{Capacity: p.capacity, Active: p.active, Waiting: len(p.waiters)}
}
