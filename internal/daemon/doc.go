// Package daemon coordinates the long-running reelscope process.
//
// It wires configuration, the content store, the submission manager and the
// HTTP API into a single lifecycle with flock-based locking to prevent multiple
// instances from sharing a staging directory. The API accepts submissions,
// streams their progress as server-sent events, serves polling snapshots,
// status, logs and Prometheus metrics, and, for the filesystem store, the
// stored media itself.
//
// Keep orchestration logic here: pipeline stages live in their own packages
// while the daemon focuses on startup, shutdown and the transport surface.
package daemon
