// Package inflight tracks in-progress generations per fingerprint so that
// concurrent requests for the same fingerprint share one engine invocation
// instead of duplicating work.
package inflight

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/voice-service/internal/core"
)

// Log formats.
const (
	logFmtLateComplete = "Ignoring duplicate completion for fingerprint %s"
)

// Handle is what a follower waits on. The leader populates the outcome
// exactly once and closes done; every waiter then observes the same result.
type Handle struct {
	done  chan struct{}
	audio []byte
	err   error
}

// Wait blocks until the leader completes, the context is cancelled, or the
// budget elapses. Timing out releases only this waiter: the leader's
// invocation continues and its eventual completion still reaches the cache.
func (h *Handle) Wait(ctx context.Context, budget time.Duration) ([]byte, error) {
	timer := time.NewTimer(budget)
	defer timer.Stop()

	select {
	case <-h.done:
		return h.audio, h.err
	case <-timer.C:
		return nil, fmt.Errorf("%w: waited %s for shared generation", core.ErrGenerationTimeout, budget)
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", core.ErrGenerationTimeout, ctx.Err())
	}
}

// Coordinator is the per-fingerprint registry of in-progress generations.
// All state is guarded by one mutex; records live only between the first
// RegisterOrJoin and the matching Complete, never persisted.
type Coordinator struct {
	mu      sync.Mutex
	pending map[string]*Handle
	log     *logger.Logger
}

// NewCoordinator creates an empty coordinator.
func NewCoordinator(log *logger.Logger) *Coordinator {
	return &Coordinator{
		mu:      sync.Mutex{},
		pending: make(map[string]*Handle),
		log:     log,
	}
}

// RegisterOrJoin atomically checks whether a fingerprint already has an
// in-flight generation. The first caller becomes the leader (leader == true)
// and must eventually call Complete; later callers receive the existing
// handle to wait on.
func (c *Coordinator) RegisterOrJoin(fingerprint string) (bool, *Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	handle, ok := c.pending[fingerprint]
	if ok {
		return false, handle
	}

	handle = &Handle{
		done:  make(chan struct{}),
		audio: nil,
		err:   nil,
	}
	c.pending[fingerprint] = handle

	return true, handle
}

// Complete publishes the leader's outcome, releases every waiter, and removes
// the in-flight record. A second Complete for the same fingerprint is ignored
// with a warning rather than panicking on a double close.
func (c *Coordinator) Complete(fingerprint string, audio []byte, err error) {
	c.mu.Lock()

	handle, ok := c.pending[fingerprint]
	if !ok {
		c.mu.Unlock()
		c.log.Warn(logFmtLateComplete, fingerprint)

		return
	}

	delete(c.pending, fingerprint)
	c.mu.Unlock()

	handle.audio = audio
	handle.err = err
	close(handle.done)
}

// Pending reports how many fingerprints currently have in-flight generations.
func (c *Coordinator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.pending)
}
