// Package dispatcher delivers screening outcomes to webhook subscribers.
//
// Deliveries are queued in memory and sent by a small worker pool with
// exponential backoff. A circuit breaker per destination host stops a dead
// subscriber from tying up the workers. Nothing is persisted: deliveries
// still queued when the process exits are lost.
package dispatcher

import (
	"context"
	"errors"

	"github.com/DotoriPicnic/condition-pick/pkg/cloudevent"
)

// ErrBufferFull is returned when the queue is full and the delivery is dropped.
var ErrBufferFull = errors.New("dispatcher buffer full, delivery dropped")

// ErrClosed is returned by Dispatch after Close.
var ErrClosed = errors.New("dispatcher is closed")

// Dispatcher handles async delivery of CloudEvents.
type Dispatcher interface {
	// Dispatch queues a delivery. Non-blocking.
	// Returns ErrBufferFull if the delivery cannot be queued.
	Dispatch(d *Delivery) error

	// Stats returns current dispatcher statistics.
	Stats() Stats

	// Close stops accepting deliveries and drains the queue.
	// The context deadline controls how long to wait for the drain.
	Close(ctx context.Context) error
}

// Delivery is one CloudEvent addressed to one subscriber.
type Delivery struct {
	Payload     *cloudevent.CloudEvent
	Destination string // subscriber URL
	Signature   string // precomputed X-Signature-256 value, empty = unsigned
	Requeues    int    // times put back because the destination circuit was open
}

// Stats holds dispatcher statistics.
type Stats struct {
	QueueDepth   int   // current queue size
	Queued       int64 // total deliveries queued
	Delivered    int64 // successful deliveries
	Failed       int64 // failed after retries
	Dropped      int64 // dropped due to full buffer or max requeues
	Requeued     int64 // requeued due to open circuit
	RetriesTotal int64 // total retry attempts
	BreakersOpen int   // destinations currently cut off
}
