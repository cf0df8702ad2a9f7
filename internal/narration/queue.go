package narration

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	DefaultConcurrency = 2
	DefaultRate        = 1.0
	DefaultRetries     = 3
	defaultBackoff     = time.Second
)

// Task is one unit of work submitted to a Queue.
type Task struct {
	Key string
	Run func(ctx context.Context) error
}

// TaskResult is the outcome of one task. Attempts counts every call to Run.
type TaskResult struct {
	Key      string
	Attempts int
	Err      error
}

type QueueOptions struct {
	Concurrency int
	Rate        float64 // task starts per second; <= 0 disables pacing
	Retries     int
	Backoff     time.Duration
	Logger      *slog.Logger
}

// Queue runs tasks with bounded concurrency, a shared start rate and
// exponential backoff on retryable service errors. One failing task never
// stops the others.
type Queue struct {
	limiter     *rate.Limiter
	concurrency int
	retries     int
	backoff     time.Duration
	logger      *slog.Logger
}

func NewQueue(opts QueueOptions) *Queue {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Backoff <= 0 {
		opts.Backoff = defaultBackoff
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.Rate), 1)
	}
	return &Queue{
		limiter:     limiter,
		concurrency: opts.Concurrency,
		retries:     opts.Retries,
		backoff:     opts.Backoff,
		logger:      opts.Logger,
	}
}

// Run executes every task and returns their results in submission order.
func (q *Queue) Run(ctx context.Context, tasks []Task) []TaskResult {
	results := make([]TaskResult, len(tasks))
	var g errgroup.Group
	g.SetLimit(q.concurrency)
	for i, task := range tasks {
		g.Go(func() error {
			results[i] = q.run(ctx, task)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (q *Queue) run(ctx context.Context, task Task) TaskResult {
	res := TaskResult{Key: task.Key}
	for {
		if err := q.limiter.Wait(ctx); err != nil {
			res.Err = err
			return res
		}
		res.Attempts++
		err := task.Run(ctx)
		if err == nil {
			res.Err = nil
			return res
		}
		res.Err = err
		if !retryable(err) || res.Attempts > q.retries {
			return res
		}

		wait := q.backoff << (res.Attempts - 1)
		q.logger.Warn("narration task failed, retrying",
			"key", task.Key,
			"attempt", res.Attempts,
			"wait", wait,
			"error", err,
		)
		select {
		case <-ctx.Done():
			res.Err = ctx.Err()
			return res
		case <-time.After(wait):
		}
	}
}

func retryable(err error) bool {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Retryable()
	}
	return false
}
