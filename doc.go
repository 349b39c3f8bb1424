// Package logstream provides event subscription over an Android logcat
// line stream.
//
// # Architecture
//
// A Publisher owns one line stream and fans every parsed line out to
// its subscribers, synchronously and in subscription order:
//
//	┌──────────────┐
//	│   Source     │  stdin, `adb logcat` subprocess,
//	│              │  tailed file, or websocket feed
//	└──────┬───────┘
//	       │ raw lines
//	┌──────▼───────┐
//	│  Publisher   │  parse (threadtime format),
//	│  (read loop) │  count drops, dispatch in order
//	└──────┬───────┘
//	       │ logline.Line
//	  ┌────┼──────────────┐
//	  ▼    ▼              ▼
//	Event  FileSink   NATSSink
//	(one-  (append    (forward
//	shot)  + excerpt)  as JSON)
//
// Dispatch happens on the read loop with the subscriber list locked,
// so Unsubscribe returning guarantees no handler call is in flight.
// The price is that handlers must be fast; anything slow belongs
// behind its own queue.
//
// # Waiting for events
//
// The EventSubscriber is the reason this module exists: arm a pattern
// before performing the action that should produce it, then block
// until the matching line arrives.
//
//	ev, cancel, err := pub.Event(`Boot completed in (\d+)ms`,
//		pubsub.WithTag("SystemServer"))
//	if err != nil {
//		return err
//	}
//	defer cancel()
//
//	rebootDevice()
//
//	switch err := ev.WaitTimeout(time.Minute); {
//	case err == nil:
//		bootMillis := ev.Groups()[1]
//	case errors.Is(err, errors.ErrWaitTimeout):
//		// device never finished booting
//	case errors.Is(err, errors.ErrStreamEnded):
//		// logcat died before the match
//	}
//
// # Packages
//
// Core:
//   - logline: threadtime line model and parser
//   - pubsub: publisher, subscriber registry, pattern events
//   - source: stdin, subprocess, tailed-file, and websocket streams
//   - sink: file capture with time-range excerpts, NATS forwarding
//
// Infrastructure:
//   - config: YAML configuration loading and validation
//   - errors: structured error handling with classification
//   - metric: Prometheus metrics and the /metrics endpoint
//   - pkg/retry: retry policies for source opens and publishes
//
// Binary:
//   - cmd/logstream: the watch/excerpt CLI
package logstream
