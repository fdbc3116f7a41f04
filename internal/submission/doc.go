// Package submission defines the data model shared by the pipeline, the
// session table, the progress stream and the HTTP surface: stages and their
// ordering, the per-submission PipelineState, progress events, and the video
// and analysis records a run produces.
//
// The types carry JSON tags matching the wire format served by the daemon.
// State.Apply folds a progress event into a state snapshot, so any consumer
// of the event stream can rebuild the same view the session table holds.
package submission
