// Package sink provides ready-made subscribers that persist or
// forward the line stream: a buffered file writer with time-range
// excerpting, and a NATS forwarder publishing lines as JSON.
package sink
