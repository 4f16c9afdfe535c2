package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one unit of background work.
type Job struct {
	Name     string
	TenantID string
	Run      func(context.Context) error
	// Abandon is called instead of Run for jobs still queued at shutdown.
	Abandon func()
}

// Queue runs enqueued work on a fixed pool of workers and drives periodic
// tasks registered with Schedule.
type Queue struct {
	queue   chan Job
	workers int
	wg      sync.WaitGroup
	running sync.WaitGroup
	cron    *cron.Cron

	mu     sync.Mutex
	closed bool
}

func New(size, workers int) *Queue {
	if size <= 0 {
		size = 1
	}
	if workers <= 0 {
		workers = 1
	}
	return &Queue{queue: make(chan Job, size), workers: workers, cron: cron.New()}
}

// Start launches the workers and the scheduler. When ctx is cancelled they
// stop, the queue closes and jobs that never ran are abandoned. Wait blocks
// until all of that has happened.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.workers; i++ {
		q.running.Add(1)
		go q.worker(ctx)
	}
	q.cron.Start()
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		<-ctx.Done()
		<-q.cron.Stop().Done()
		q.running.Wait()
		q.drain()
	}()
}

func (q *Queue) Wait() {
	q.wg.Wait()
}

// Enqueue queues run without an abandon hook.
func (q *Queue) Enqueue(name, tenantID string, run func(context.Context) error) bool {
	return q.Submit(Job{Name: name, TenantID: tenantID, Run: run})
}

// Submit never blocks; it returns false when the queue is full or closed.
func (q *Queue) Submit(j Job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		slog.Warn("job queue closed", "job", j.Name, "tenantId", j.TenantID)
		return false
	}
	select {
	case q.queue <- j:
		return true
	default:
		slog.Warn("job queue full", "job", j.Name, "tenantId", j.TenantID)
		return false
	}
}

// Schedule enqueues run on a standard cron expression such as "@hourly" or
// "*/15 * * * *". Sub-second "@every" intervals round up to one second.
func (q *Queue) Schedule(expr, name string, run func(context.Context) error) error {
	if _, err := q.cron.AddFunc(expr, func() { q.Enqueue(name, "", run) }); err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return nil
}

func (q *Queue) drain() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	for {
		select {
		case j := <-q.queue:
			slog.Warn("job abandoned at shutdown", "job", j.Name, "tenantId", j.TenantID)
			if j.Abandon != nil {
				q.abandon(j)
			}
		default:
			return
		}
	}
}

func (q *Queue) abandon(j Job) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("job abandon panicked", "job", j.Name, "tenantId", j.TenantID, "panic", rec)
		}
	}()
	j.Abandon()
}

func (q *Queue) worker(ctx context.Context) {
	defer q.running.Done()
	for {
		if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case j := <-q.queue:
			q.run(ctx, j)
		}
	}
}

func (q *Queue) run(ctx context.Context, j Job) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("job panicked", "job", j.Name, "tenantId", j.TenantID, "panic", rec)
		}
	}()
	started := time.Now()
	if err := j.Run(ctx); err != nil {
		slog.Warn("job run failed", "job", j.Name, "tenantId", j.TenantID, "err", err)
		return
	}
	slog.Debug("job run completed", "job", j.Name, "tenantId", j.TenantID, "durationMs", time.Since(started).Milliseconds())
}
