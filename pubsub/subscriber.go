package pubsub

import (
	"github.com/google/uuid"

	"github.com/c360/logstream/logline"
)

// Subscriber is invoked once per published line, synchronously on the
// publisher's read loop and in subscription order. Handlers must not
// call back into Subscribe/Unsubscribe on the same publisher.
type Subscriber interface {
	Handle(line logline.Line)
}

// SubscriberFunc adapts a plain function to the Subscriber interface.
type SubscriberFunc func(line logline.Line)

// Handle calls f.
func (f SubscriberFunc) Handle(line logline.Line) { f(line) }

// StreamEndObserver is implemented by subscribers that need to know
// when the stream terminates (EOF, source failure, or Stop). The
// publisher invokes it once so blocked waiters are released rather
// than hanging forever.
type StreamEndObserver interface {
	StreamEnded()
}

// Subscription is the handle returned by Subscribe and consumed by
// Unsubscribe. The zero value is not a valid subscription.
type Subscription struct {
	id uuid.UUID
}

// Valid reports whether the subscription was issued by a publisher.
func (s Subscription) Valid() bool {
	return s.id != uuid.Nil
}
