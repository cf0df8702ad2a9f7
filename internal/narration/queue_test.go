package narration

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestQueue_RetriesRetryableErrors(t *testing.T) {
	q := NewQueue(QueueOptions{Concurrency: 2, Retries: 3, Backoff: time.Millisecond, Logger: testLogger()})

	var calls atomic.Int32
	results := q.Run(context.Background(), []Task{{
		Key: "seg-1",
		Run: func(ctx context.Context) error {
			if calls.Add(1) < 3 {
				return &ServiceError{StatusCode: 503}
			}
			return nil
		},
	}})

	if results[0].Err != nil {
		t.Fatalf("unexpected error: %v", results[0].Err)
	}
	if results[0].Attempts != 3 {
		t.Errorf("attempts = %d, want 3", results[0].Attempts)
	}
}

func TestQueue_PermanentErrorNotRetried(t *testing.T) {
	q := NewQueue(QueueOptions{Retries: 3, Backoff: time.Millisecond, Logger: testLogger()})

	results := q.Run(context.Background(), []Task{{
		Key: "seg-1",
		Run: func(ctx context.Context) error { return &ServiceError{StatusCode: 400} },
	}})
	if results[0].Attempts != 1 {
		t.Errorf("attempts = %d, want 1", results[0].Attempts)
	}
	var svcErr *ServiceError
	if !errors.As(results[0].Err, &svcErr) {
		t.Errorf("expected ServiceError, got %v", results[0].Err)
	}
}

func TestQueue_RetryBudget(t *testing.T) {
	q := NewQueue(QueueOptions{Retries: 2, Backoff: time.Millisecond, Logger: testLogger()})

	results := q.Run(context.Background(), []Task{{
		Key: "seg-1",
		Run: func(ctx context.Context) error { return &ServiceError{StatusCode: 500} },
	}})
	if results[0].Attempts != 3 {
		t.Errorf("attempts = %d, want 3", results[0].Attempts)
	}
	if results[0].Err == nil {
		t.Error("expected error after exhausting retries")
	}
}

func TestQueue_ConcurrencyLimit(t *testing.T) {
	q := NewQueue(QueueOptions{Concurrency: 2, Logger: testLogger()})

	var mu sync.Mutex
	running, peak := 0, 0
	tasks := make([]Task, 6)
	for i := range tasks {
		tasks[i] = Task{Key: string(rune('a' + i)), Run: func(ctx context.Context) error {
			mu.Lock()
			running++
			peak = max(peak, running)
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			mu.Lock()
			running--
			mu.Unlock()
			return nil
		}}
	}

	results := q.Run(context.Background(), tasks)
	if peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}
	for i, r := range results {
		if r.Key != tasks[i].Key || r.Err != nil {
			t.Errorf("result %d = %+v", i, r)
		}
	}
}

func TestQueue_FailureDoesNotStopOthers(t *testing.T) {
	q := NewQueue(QueueOptions{Concurrency: 1, Retries: 0, Logger: testLogger()})

	var ran atomic.Int32
	results := q.Run(context.Background(), []Task{
		{Key: "bad", Run: func(ctx context.Context) error { return errors.New("boom") }},
		{Key: "good", Run: func(ctx context.Context) error { ran.Add(1); return nil }},
	})
	if results[0].Err == nil || results[1].Err != nil {
		t.Errorf("unexpected results: %+v", results)
	}
	if ran.Load() != 1 {
		t.Error("second task did not run")
	}
}

func TestQueue_RatePacing(t *testing.T) {
	q := NewQueue(QueueOptions{Concurrency: 4, Rate: 20, Logger: testLogger()})

	tasks := make([]Task, 3)
	for i := range tasks {
		tasks[i] = Task{Key: "t", Run: func(ctx context.Context) error { return nil }}
	}
	start := time.Now()
	q.Run(context.Background(), tasks)
	// Burst of 1 at 20/s: the third start waits about 100ms.
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("tasks were not paced: %v", elapsed)
	}
}

func TestQueue_Cancelled(t *testing.T) {
	q := NewQueue(QueueOptions{Retries: 5, Backoff: time.Hour, Logger: testLogger()})
	ctx, cancel := context.WithCancel(context.Background())

	results := q.Run(ctx, []Task{{
		Key: "seg-1",
		Run: func(ctx context.Context) error {
			cancel()
			return &ServiceError{StatusCode: 503}
		},
	}})
	if !errors.Is(results[0].Err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", results[0].Err)
	}
}
