package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/angelmondragon/freightbid-backend/pkg/logger"
)

type fakeLock struct {
	held     bool
	released int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	f.released++
	return nil
}

type testJob struct {
	name  string
	err   error
	runs  int
	order *[]string
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	if t.order != nil {
		*t.order = append(*t.order, t.name)
	}
	return t.err
}

type recordingMetrics struct {
	success  map[string]int
	failure  map[string]int
	observed map[string]int
	skipped  int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{success: map[string]int{}, failure: map[string]int{}, observed: map[string]int{}}
}

func (r *recordingMetrics) ObserveDuration(job string, _ time.Duration) { r.observed[job]++ }
func (r *recordingMetrics) IncSuccess(job string)                       { r.success[job]++ }
func (r *recordingMetrics) IncFailure(job string)                       { r.failure[job]++ }
func (r *recordingMetrics) IncSkipped()                                 { r.skipped++ }

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cycle-test", Output: io.Discard})
}

func TestRunOnceRunsAllJobsEvenOnFailure(t *testing.T) {
	var order []string
	first := &testJob{name: "reconcile", err: errors.New("feed unavailable"), order: &order}
	second := &testJob{name: "start", order: &order}
	third := &testJob{name: "advance", order: &order}
	metrics := newRecordingMetrics()
	lock := &fakeLock{}

	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(first, second, third),
		Lock:     lock,
		Metrics:  metrics,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := service.RunOnce(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}

	want := []string{"reconcile", "start", "advance"}
	if len(order) != len(want) {
		t.Fatalf("expected %d job runs, got %v", len(want), order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, order)
		}
	}
	if metrics.failure["reconcile"] != 1 || metrics.success["start"] != 1 || metrics.success["advance"] != 1 {
		t.Fatalf("unexpected outcome counters: success=%v failure=%v", metrics.success, metrics.failure)
	}
	if metrics.observed["reconcile"] != 1 {
		t.Fatalf("expected duration observed for failed job")
	}
	if lock.released != 1 || lock.held {
		t.Fatalf("expected lock to be released once")
	}
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "start"}
	metrics := newRecordingMetrics()
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(job),
		Lock:     &fakeLock{held: true},
		Metrics:  metrics,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	if err := service.RunOnce(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("expected no job runs while lock is held, got %d", job.runs)
	}
	if metrics.skipped != 1 {
		t.Fatalf("expected skipped cycle to be counted")
	}
}

type signalJob struct {
	ran chan struct{}
}

func (s *signalJob) Name() string { return "signal" }

func (s *signalJob) Run(context.Context) error {
	select {
	case s.ran <- struct{}{}:
	default:
	}
	return nil
}

func TestRunExecutesImmediatelyAndStopsOnCancel(t *testing.T) {
	job := &signalJob{ran: make(chan struct{}, 1)}
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(job),
		Lock:     &LocalLock{},
		Interval: time.Hour,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- service.Run(ctx) }()

	select {
	case <-job.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("first cycle did not run before the first tick")
	}
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewServiceValidatesParams(t *testing.T) {
	if _, err := NewService(ServiceParams{Lock: &LocalLock{}}); err == nil {
		t.Fatal("expected missing logger to fail")
	}
	if _, err := NewService(ServiceParams{Logger: testLogger()}); err == nil {
		t.Fatal("expected missing lock to fail")
	}
}
