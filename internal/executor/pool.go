package executor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ErrPoolClosed is returned by Acquire after Stop.
var ErrPoolClosed = errors.New("worker pool closed")

// Pool bounds the number of runs in flight. A slot is held for the whole
// life of a run, including any time the run keeps going after its caller
// has already been told it timed out.
type Pool struct {
	logger    *slog.Logger
	slots     chan struct{}
	done      chan struct{}
	inUse     atomic.Int64
	startOnce sync.Once
	stopOnce  sync.Once
	onChange  func(inUse int)
}

// NewPool creates a pool with size slots. Call Start before Acquire.
func NewPool(size int, logger *slog.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		logger: logger,
		slots:  make(chan struct{}, size),
		done:   make(chan struct{}),
	}
}

// OnChange registers a callback fired with the busy count after every
// Acquire and Release. It must be set before Start.
func (p *Pool) OnChange(fn func(inUse int)) { p.onChange = fn }

// Start fills the pool with free slots.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		p.logger.Info("starting worker pool", slog.Int("poolSize", cap(p.slots)))
		for range cap(p.slots) {
			p.slots <- struct{}{}
		}
	})
}

// Stop refuses further Acquire calls. Runs already holding a slot finish
// normally.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.logger.Info("shutting down worker pool", slog.Int("inUse", p.InUse()))
		close(p.done)
	})
}

// Acquire blocks until a slot is free, ctx is done, or the pool stops.
func (p *Pool) Acquire(ctx context.Context) error {
	select {
	case <-p.done:
		return ErrPoolClosed
	default:
	}
	select {
	case <-p.slots:
		p.changed(p.inUse.Add(1))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrPoolClosed
	}
}

// Release returns a slot taken by Acquire.
func (p *Pool) Release() {
	p.changed(p.inUse.Add(-1))
	p.slots <- struct{}{}
}

// InUse reports how many slots are currently held.
func (p *Pool) InUse() int { return int(p.inUse.Load()) }

// Size reports the total number of slots.
func (p *Pool) Size() int { return cap(p.slots) }

func (p *Pool) changed(n int64) {
	if p.onChange != nil {
		p.onChange(int(n))
	}
}
