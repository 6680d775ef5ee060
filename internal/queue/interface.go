package queue

import (
	"context"
)

// MessageInterface abstracts a delivered message so job handlers can be
// tested without a broker.
type MessageInterface interface {
	Ack() error
	Nack(requeue bool) error
	GetJob() *Job
}

// JobQueue is the broker-facing surface used by the API and the worker.
type JobQueue interface {
	// Enqueue publishes a job.
	Enqueue(ctx context.Context, job *Job) error

	// Dequeue pulls a single message, or nil when the queue is empty.
	// The caller owns acknowledgement.
	// DEPRECATED: Use Consume() for better performance and scalability
	Dequeue(ctx context.Context) (*Message, error)

	// Consume streams messages until ctx is cancelled. prefetchCount
	// bounds unacknowledged messages per consumer. The caller owns
	// acknowledgement of each message.
	Consume(ctx context.Context, prefetchCount int) (<-chan *Message, <-chan error, error)

	// Close tears down the broker connection.
	Close() error

	// HealthCheck verifies the broker connection is usable.
	HealthCheck(ctx context.Context) error
}
