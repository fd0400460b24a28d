package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestSchedulerRunsJobPeriodically(t *testing.T) {
	s := New(zap.NewNop())

	var runs atomic.Int32
	s.Add(Job{
		Name:     "tick",
		Interval: 10 * time.Millisecond,
		Run:      func(ctx context.Context) { runs.Add(1) },
	})

	s.Start(context.Background())
	time.Sleep(60 * time.Millisecond)
	s.Stop()

	if got := runs.Load(); got < 2 {
		t.Errorf("job ran %d times, want at least 2", got)
	}
}

func TestSchedulerStopDuringJitter(t *testing.T) {
	s := New(zap.NewNop())

	var runs atomic.Int32
	s.Add(Job{
		Name:     "jittered",
		Interval: 10 * time.Millisecond,
		Jitter:   time.Hour,
		Run:      func(ctx context.Context) { runs.Add(1) },
	})

	s.Start(context.Background())

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop must not wait out the jitter delay")
	}
	if runs.Load() != 0 {
		t.Errorf("job ran %d times during jitter, want 0", runs.Load())
	}
}

func TestSchedulerContextCancelStopsJobs(t *testing.T) {
	s := New(zap.NewNop())

	started := make(chan struct{}, 1)
	s.Add(Job{
		Name:     "cancellable",
		Interval: 5 * time.Millisecond,
		Run: func(ctx context.Context) {
			select {
			case started <- struct{}{}:
			default:
			}
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	<-started
	cancel()

	// Горутины должны завершиться по контексту, без вызова Stop
	deadline := time.After(time.Second)
	waitDone := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(waitDone)
	}()

	select {
	case <-waitDone:
	case <-deadline:
		t.Fatal("jobs must exit when the context is cancelled")
	}
}
