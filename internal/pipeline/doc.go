// Package pipeline runs one submission through the fixed stage sequence:
// parsing, downloading, uploading, video_ready, then analyzing or a gated
// completion.
//
// Execute emits progress events in order and always ends with exactly one
// terminal event (completed or error). Percentages follow fixed checkpoints
// per stage and never decrease within a stage; byte-level progress from the
// retriever and store is mapped into the downloading and uploading bands.
// Stage failures go straight to error with the client-facing code from
// services.Code; nothing is retried across stage boundaries.
package pipeline
