// Package progress carries per-submission progress events from the pipeline
// to any number of readers.
//
// Each Stream is an append-only log with dense sequence numbers starting at 1.
// Producers never block and the terminal event is never dropped; readers can
// replay from any sequence (the SSE Last-Event-ID) and follow until the stream
// closes. Hub maps submission ids to their streams.
package progress
