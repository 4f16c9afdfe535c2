package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestQueueRunsJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := New(4, 2)
	q.Start(ctx)

	done := make(chan string, 3)
	for _, name := range []string{"a", "b", "c"} {
		name := name
		if !q.Enqueue(name, "t1", func(context.Context) error {
			done <- name
			return nil
		}) {
			t.Fatalf("enqueue %s rejected", name)
		}
	}
	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		select {
		case name := <-done:
			seen[name] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for jobs, saw %v", seen)
		}
	}

	cancel()
	q.Wait()
}

func TestQueueRejectsWhenFull(t *testing.T) {
	q := New(1, 1)
	noop := func(context.Context) error { return nil }
	if !q.Enqueue("first", "", noop) {
		t.Fatal("expected first job to be queued")
	}
	if q.Enqueue("second", "", noop) {
		t.Fatal("expected full queue to reject")
	}
}

func TestQueueSurvivesFailingJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := New(4, 1)
	q.Start(ctx)

	q.Enqueue("error", "", func(context.Context) error { return errors.New("boom") })
	q.Enqueue("panic", "", func(context.Context) error { panic("boom") })
	ok := make(chan struct{})
	q.Enqueue("ok", "", func(context.Context) error {
		close(ok)
		return nil
	})
	select {
	case <-ok:
	case <-time.After(2 * time.Second):
		t.Fatal("worker stopped after a failing job")
	}
}

func TestShutdownAbandonsQueuedJobs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := New(4, 1)
	q.Start(ctx)

	started := make(chan struct{})
	q.Enqueue("slow", "t1", func(jobCtx context.Context) error {
		close(started)
		<-jobCtx.Done()
		return jobCtx.Err()
	})
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("slow job never started")
	}

	var ran, abandoned atomic.Int32
	if !q.Submit(Job{
		Name:     "queued",
		TenantID: "t1",
		Run:      func(context.Context) error { ran.Add(1); return nil },
		Abandon:  func() { abandoned.Add(1) },
	}) {
		t.Fatal("expected queued job to be accepted")
	}
	q.Enqueue("queued-without-hook", "t1", func(context.Context) error { ran.Add(1); return nil })

	cancel()
	q.Wait()
	if ran.Load() != 0 || abandoned.Load() != 1 {
		t.Fatalf("expected queued jobs abandoned, ran=%d abandoned=%d", ran.Load(), abandoned.Load())
	}
	if q.Enqueue("late", "t1", func(context.Context) error { return nil }) {
		t.Fatal("expected closed queue to reject new jobs")
	}
}

func TestScheduleRunsPeriodically(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := New(8, 1)
	q.Start(ctx)

	var runs atomic.Int32
	if err := q.Schedule("@every 1s", "tick", func(context.Context) error {
		runs.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	deadline := time.Now().Add(4 * time.Second)
	for runs.Load() < 1 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	cancel()
	q.Wait()
	if runs.Load() < 1 {
		t.Fatalf("expected a scheduled run, got %d", runs.Load())
	}
}

func TestScheduleRejectsBadExpression(t *testing.T) {
	if err := New(1, 1).Schedule("every tuesday", "bad", func(context.Context) error { return nil }); err == nil {
		t.Fatalf("expected an invalid cron expression error")
	}
}
