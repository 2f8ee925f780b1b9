// Package worker provides goroutine pool management.
//
// All background concurrency goes through a Pool with context propagation
// and unified panic recovery instead of naked goroutines.
package worker

import (
	"context"
	"errors"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/opsdesk/opsdesk/internal/pkg/logger"
)

// ErrPoolClosed is returned when submitting to a closed pool.
var ErrPoolClosed = errors.New("worker pool is closed")

// Task is a context-aware task function.
type Task func(ctx context.Context)

// Pool wraps ants.Pool with context-aware submission.
type Pool struct {
	pool *ants.Pool
	name string
}

// NewPool creates a named worker pool of the given size.
func NewPool(name string, size int) (*Pool, error) {
	panicHandler := func(p interface{}) {
		logger.Error("worker panic recovered",
			zap.String("pool", name),
			zap.Any("panic", p),
			zap.Stack("stack"),
		)
	}

	antsPool, err := ants.NewPool(size,
		ants.WithPanicHandler(panicHandler),
		ants.WithNonblocking(false),
	)
	if err != nil {
		return nil, err
	}

	return &Pool{pool: antsPool, name: name}, nil
}

// Submit schedules a task on the pool. The task receives ctx and must honor
// its cancellation.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	if p.pool.IsClosed() {
		return ErrPoolClosed
	}
	return p.pool.Submit(func() {
		task(ctx)
	})
}

// Running returns the number of currently running workers.
func (p *Pool) Running() int {
	return p.pool.Running()
}

// Release stops the pool and releases its workers.
func (p *Pool) Release() {
	p.pool.Release()
}
