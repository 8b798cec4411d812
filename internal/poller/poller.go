// Package poller runs a task on a fixed interval with at most one execution
// in flight. Ticks that arrive while the previous run is still going are
// skipped and counted rather than queued.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrAlreadyStarted is returned by Start on a running poller
var ErrAlreadyStarted = errors.New("poller already started")

// Task is one unit of periodic work. It must return when ctx is cancelled.
type Task func(ctx context.Context) error

// Stats is a snapshot of poller activity.
type Stats struct {
	Runs      uint64
	Failures  uint64
	Skipped   uint64
	LastRunAt time.Time
	LastError error
}

// Option customizes a Poller.
type Option func(*Poller)

// WithImmediateRun runs the task as soon as the poller starts instead of
// waiting for the first tick
func WithImmediateRun() Option {
	return func(p *Poller) {
		p.immediate = true
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(p *Poller) {
		p.logger = logger
	}
}

// Poller schedules a Task.
type Poller struct {
	name      string
	interval  time.Duration
	immediate bool
	logger    *zap.Logger

	mu       sync.Mutex
	task     Task
	parent   context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}

	trigger  chan struct{}
	inFlight atomic.Bool

	runs     atomic.Uint64
	failures atomic.Uint64
	skipped  atomic.Uint64

	lastMu    sync.Mutex
	lastRunAt time.Time
	lastErr   error
}

// New creates a stopped poller
func New(name string, interval time.Duration, task Task, opts ...Option) *Poller {
	p := &Poller{
		name:     name,
		interval: interval,
		task:     task,
		logger:   zap.NewNop(),
		trigger:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start launches the scheduling loop. The loop stops when ctx is cancelled or Stop is called.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return ErrAlreadyStarted
	}
	if p.interval <= 0 {
		return fmt.Errorf("poller %s: interval must be positive", p.name)
	}

	p.parent = ctx
	p.startLocked()

	p.logger.Debug("poller started",
		zap.String("poller", p.name),
		zap.Duration("interval", p.interval))
	return nil
}

func (p *Poller) startLocked() {
	ctx, cancel := context.WithCancel(p.parent)
	p.cancel = cancel
	p.loopDone = make(chan struct{})
	go p.loop(ctx, p.task, p.loopDone)
}

// Stop cancels the running task, if any, and waits for it and the loop to exit.
// Stop on a stopped poller is a no-op.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.loopDone
	p.cancel = nil
	p.loopDone = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	p.logger.Debug("poller stopped", zap.String("poller", p.name))
}

// Reset replaces the task. A running poller is stopped, which cancels any
// in-flight execution of the old task, and restarted with the new one.
func (p *Poller) Reset(task Task) {
	p.mu.Lock()
	p.task = task
	running := p.cancel != nil
	p.mu.Unlock()

	if !running {
		return
	}

	p.Stop()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel == nil && p.parent != nil && p.parent.Err() == nil {
		p.startLocked()
	}
}

// Trigger requests a run outside the schedule. It never blocks; repeated
// triggers before the loop picks one up collapse into one.
func (p *Poller) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Running reports whether the scheduling loop is active
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// Stats returns a snapshot of the counters
func (p *Poller) Stats() Stats {
	p.lastMu.Lock()
	defer p.lastMu.Unlock()
	return Stats{
		Runs:      p.runs.Load(),
		Failures:  p.failures.Load(),
		Skipped:   p.skipped.Load(),
		LastRunAt: p.lastRunAt,
		LastError: p.lastErr,
	}
}

func (p *Poller) loop(ctx context.Context, task Task, done chan struct{}) {
	defer close(done)

	var wg sync.WaitGroup
	defer wg.Wait()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	if p.immediate {
		p.dispatch(ctx, task, &wg)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.dispatch(ctx, task, &wg)
		case <-p.trigger:
			p.dispatch(ctx, task, &wg)
		}
	}
}

func (p *Poller) dispatch(ctx context.Context, task Task, wg *sync.WaitGroup) {
	if !p.inFlight.CompareAndSwap(false, true) {
		p.skipped.Add(1)
		p.logger.Debug("poller tick skipped, previous run still in flight", zap.String("poller", p.name))
		return
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer p.inFlight.Store(false)
		p.run(ctx, task)
	}()
}

func (p *Poller) run(ctx context.Context, task Task) {
	start := time.Now()
	err := safeRun(ctx, task)

	p.lastMu.Lock()
	p.lastRunAt = start
	p.lastErr = err
	if err != nil {
		p.failures.Add(1)
	}
	p.runs.Add(1)
	p.lastMu.Unlock()

	if err != nil && ctx.Err() == nil {
		p.logger.Warn("poller task failed",
			zap.String("poller", p.name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
	}
}

func safeRun(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return task(ctx)
}
