package tracking

import "context"

// JobHandle is the server's acknowledgement of a submitted job.
type JobHandle struct {
	ID      string
	Message string
	Status  string
}

// Submitter starts a batch job covering target items.
type Submitter interface {
	Submit(ctx context.Context, target int) (JobHandle, error)
}

// SubmitterFunc adapts a function to Submitter.
type SubmitterFunc func(ctx context.Context, target int) (JobHandle, error)

// Submit calls f(ctx, target).
func (f SubmitterFunc) Submit(ctx context.Context, target int) (JobHandle, error) {
	return f(ctx, target)
}

// Counter reads the aggregate count of processed items.
type Counter interface {
	FetchCount(ctx context.Context) (int, error)
}

// CounterFunc adapts a function to Counter.
type CounterFunc func(ctx context.Context) (int, error)

// FetchCount calls f(ctx).
func (f CounterFunc) FetchCount(ctx context.Context) (int, error) {
	return f(ctx)
}

// Source is what a resource adapter provides to a Tracker.
type Source interface {
	Submitter
	Counter
}
