package queue

import "context"

// Client enqueues analysis-start messages for the worker binary to consume.
// When no queue is configured the service starts jobs in-process instead, so
// a nil Client is a valid deployment.
type Client interface {
	Send(ctx context.Context, msg Message) error
}
