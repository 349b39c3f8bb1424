// Package pubsub implements the publish/subscribe core: a Publisher
// that reads a logcat line stream from a source and fans each parsed
// line out to subscribers, and a one-shot EventSubscriber that fires
// when a line matches a pattern.
//
// Dispatch is synchronous and ordered. Every subscriber sees every
// line published after its subscription, in stream order, and
// Unsubscribe returning guarantees no handler call is still in
// flight. Handlers therefore must be fast and must not call back into
// the publisher.
//
// The usual way to wait for a log event is through Publisher.Event,
// which subscribes before returning so the event cannot slip through
// between arming and acting:
//
//	ev, cancel, err := pub.Event(`Upload complete: (\d+) bytes`, pubsub.WithTag("Uploader"))
//	if err != nil {
//		return err
//	}
//	defer cancel()
//
//	triggerUpload()
//
//	if err := ev.WaitTimeout(30 * time.Second); err != nil {
//		return err
//	}
//	size := ev.Groups()[1]
package pubsub
