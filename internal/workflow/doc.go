// Package workflow runs submissions on behalf of the daemon.
//
// The Manager owns the pipeline orchestrator, the in-memory session table and
// the per-submission progress streams. Submit starts a pipeline detached from
// the caller's context but bound to the manager's lifetime, so a client that
// disconnects does not cancel work while a daemon shutdown does. The number of
// pipelines in flight is bounded by workflow.max_concurrent; excess
// submissions are refused with a RATE_LIMIT error rather than queued.
//
// While running, the manager also sweeps idle sessions (dropping their
// streams with them) and periodically removes abandoned staging files that do
// not belong to an in-flight submission.
package workflow
