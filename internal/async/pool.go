// Package async provides the bounded worker pool that keeps external
// service calls off request-handling goroutines.
package async

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Job is one unit of background work.
type Job struct {
	Name string
	Run  func(ctx context.Context)
}

// Pool executes jobs on a fixed set of workers. Enqueue never blocks the
// caller unless the queue is full, in which case backpressure applies.
type Pool struct {
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type Option func(*Pool)

func WithWorkers(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.ch = make(chan Job, n)
		}
	}
}

func WithJobTimeout(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// NewPool creates a started pool.
func NewPool(logger *slog.Logger, opts ...Option) *Pool {
	p := &Pool{
		logger:  logger,
		workers: 4,
		timeout: 15 * time.Minute,
		ch:      make(chan Job, 256),
	}
	for _, o := range opts {
		o(p)
	}
	p.start()
	return p
}

func (p *Pool) start() {
	p.once.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go func(workerID int) {
				defer p.wg.Done()
				p.logger.Debug("worker started", "worker_id", workerID)

				for job := range p.ch {
					start := time.Now()
					ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
					job.Run(ctx)
					cancel()
					p.logger.Debug("job finished",
						"worker_id", workerID, "job", job.Name,
						"elapsed_ms", time.Since(start).Milliseconds())
				}

				p.logger.Debug("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

// Enqueue submits a job. Jobs submitted after Shutdown are dropped with a
// warning rather than panicking on the closed channel.
func (p *Pool) Enqueue(job Job) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		p.logger.Warn("cannot enqueue: pool is shutting down", "job", job.Name)
		return
	}
	select {
	case p.ch <- job:
	default:
		p.logger.Warn("queue full, applying backpressure", "job", job.Name)
		p.ch <- job
	}
}

// Shutdown stops intake and waits for in-flight jobs to drain, or for ctx.
func (p *Pool) Shutdown(ctx context.Context) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.ch)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); p.wg.Wait() }()

	select {
	case <-ctx.Done():
		p.logger.Warn("shutdown interrupted by context")
	case <-done:
		p.logger.Info("worker pool drained")
	}
}
