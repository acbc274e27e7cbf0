// File: internal/infra/worker/pool.go
package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/rs/zerolog"

	"telegram-ai-relay/internal/infra/metrics"
)

var (
	ErrQueueFull   = errors.New("worker queue full")
	ErrPoolStopped = errors.New("worker pool stopped")
)

// Task is one unit of work, typically one Telegram update.
type Task func(ctx context.Context) error

// Pool runs submitted tasks on a fixed number of goroutines fed by a
// bounded queue. Submit never blocks; Stop drains what is already queued.
type Pool struct {
	wg     sync.WaitGroup
	mu     sync.RWMutex
	jobs   chan Task
	n      int
	done   bool
	cancel context.CancelFunc
	log    *zerolog.Logger
}

func NewPool(workers, queueSize int, logger *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if queueSize <= 0 {
		queueSize = workers * 4
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "worker_pool").Logger()
	return &Pool{jobs: make(chan Task, queueSize), n: workers, log: &l}
}

// Start launches the workers. Tasks receive a context that keeps ctx's values
// but not its cancellation, so updates already accepted still complete after
// a shutdown signal. Only a Shutdown deadline cancels them.
func (p *Pool) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			for task := range p.jobs {
				metrics.SetWorkerQueueDepth(len(p.jobs))
				p.run(ctx, id, task)
			}
		}(i)
	}
	p.log.Info().Int("workers", p.n).Int("queue", cap(p.jobs)).Msg("worker pool started")
}

func (p *Pool) run(ctx context.Context, id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			metrics.IncWorkerJob("panic")
			p.log.Error().Int("worker", id).Interface("panic", r).Msg("task panicked")
		}
	}()
	if err := task(ctx); err != nil {
		metrics.IncWorkerJob("error")
		p.log.Warn().Err(err).Int("worker", id).Msg("task failed")
		return
	}
	metrics.IncWorkerJob("ok")
}

// Stop refuses new tasks, waits for queued ones to finish and returns.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.done {
		p.mu.Unlock()
		return
	}
	p.done = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
	p.cancelTasks()
	metrics.SetWorkerQueueDepth(0)
	p.log.Info().Msg("worker pool stopped")
}

// Shutdown is Stop bounded by ctx. When ctx ends first the running and queued
// tasks see their context cancelled; Shutdown still waits for them to return
// and reports ctx.Err().
func (p *Pool) Shutdown(ctx context.Context) error {
	drained := make(chan struct{})
	go func() {
		p.Stop()
		close(drained)
	}()
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		p.log.Warn().Msg("drain deadline reached, cancelling tasks")
		p.cancelTasks()
		<-drained
		return ctx.Err()
	}
}

func (p *Pool) cancelTasks() {
	p.mu.RLock()
	cancel := p.cancel
	p.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

// Submit enqueues task or returns ErrQueueFull when the queue is saturated.
func (p *Pool) Submit(task Task) error {
	if task == nil {
		return errors.New("nil task")
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.done {
		return ErrPoolStopped
	}
	select {
	case p.jobs <- task:
		metrics.SetWorkerQueueDepth(len(p.jobs))
		return nil
	default:
		metrics.IncWorkerJob("rejected")
		return ErrQueueFull
	}
}
