// Package messaging defines the queue abstraction the subsystem's event bus
// is built on. Delivery is at-least-once: a consumer that Nacks (or crashes
// before Ack) sees the payload again.
package messaging

import "context"

// Vendor names a queue implementation ("memory", "fs").
type Vendor string

const (
	// VendorMemory selects the channel-backed in-process queue.
	VendorMemory Vendor = "memory"

	// VendorFS selects the filesystem-backed queue (viant/afs).
	VendorFS Vendor = "fs"
)

// Queue is an abstract message queue for any payload type.
type Queue[T any] interface {
	// Publish appends a new message carrying the payload.
	Publish(ctx context.Context, t *T) error

	// Consume blocks until a message is available or ctx is cancelled.
	Consume(ctx context.Context) (Message[T], error)
}

// Message is a single delivery retrieved from a queue.
type Message[T any] interface {
	// T returns the payload of this delivery.
	T() *T

	// Ack marks the delivery as successfully processed.
	Ack() error

	// Nack signals a processing failure; the queue may redeliver.
	Nack(err error) error
}
