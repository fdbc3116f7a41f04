// Package retriever downloads resolved media into the staging directory.
//
// Fetch streams one attempt to disk and reports byte-level progress at most
// every 100ms, always finishing with a 100% update on success. FetchWithRetry
// wraps Fetch in an exponential backoff policy and keeps reported progress
// monotonic across attempts. Partial files never survive a failed attempt.
package retriever
