// Package dispatch runs webhook processing off the request path on a
// bounded worker pool.
package dispatch

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/kart-io/logger"
	"github.com/oklog/ulid/v2"
	"github.com/panjf2000/ants/v2"
)

// Task is one unit of background work. The returned error is logged, never
// dropped.
type Task func() error

// Pool wraps an ants worker pool with task identifiers and panic recovery.
type Pool struct {
	pool *ants.Pool

	// entropy is not safe for concurrent use; mu serializes id generation
	// across request goroutines.
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// NewPool creates a Pool with the given size.
func NewPool(size int) (*Pool, error) {
	p, err := ants.NewPool(size, ants.WithNonblocking(false))
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	return &Pool{
		pool:    p,
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}, nil
}

// Submit schedules the task. When the pool cannot take it, the task degrades
// to a plain goroutine so webhook deliveries are never silently lost.
func (p *Pool) Submit(name string, task Task) string {
	p.mu.Lock()
	taskID := ulid.MustNew(ulid.Timestamp(time.Now()), p.entropy).String()
	p.mu.Unlock()

	run := func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorw("task panicked",
					"task", name,
					"task_id", taskID,
					"panic", fmt.Sprintf("%v", r),
				)
			}
		}()

		start := time.Now()
		if err := task(); err != nil {
			logger.Errorw("task failed",
				"task", name,
				"task_id", taskID,
				"duration", time.Since(start).String(),
				"error", err.Error(),
			)
			return
		}
		logger.Debugw("task finished",
			"task", name,
			"task_id", taskID,
			"duration", time.Since(start).String(),
		)
	}

	if err := p.pool.Submit(run); err != nil {
		logger.Warnw("worker pool unavailable, degrading to goroutine",
			"task", name,
			"task_id", taskID,
			"error", err.Error(),
		)
		go run()
	}
	return taskID
}

// Running returns the number of busy workers.
func (p *Pool) Running() int {
	return p.pool.Running()
}

// Release stops the pool, waiting for running tasks to finish.
func (p *Pool) Release() {
	p.pool.Release()
}
