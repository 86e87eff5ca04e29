package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidKind    = errors.New("jobs: invalid kind")
	ErrUnknownKind    = errors.New("jobs: no handler registered for kind")
	ErrQueueStopped   = errors.New("jobs: queue stopped")
	ErrInvalidPayload = errors.New("jobs: invalid payload")
)

// Request describes one job to enqueue. A non-empty DedupeKey makes
// the enqueue idempotent across redeliveries.
type Request struct {
	Kind      Kind
	Payload   map[string]any
	DedupeKey string
	RunAfter  time.Time
}

type Queue interface {
	Enqueue(ctx context.Context, req Request) (*Job, error)
	// EnqueueBatch inserts all requests in a single statement and
	// reports how many rows were actually created.
	EnqueueBatch(ctx context.Context, reqs []Request) (int, error)
}

// Handler processes one claimed job. A returned error requeues the job
// with backoff until the attempt limit, after which it is failed.
type Handler func(ctx context.Context, job *Job) error
