// Package daemonctl is the client side of the daemon: an HTTP client for the
// submission API and helpers that launch, locate and stop the daemon process.
//
// Follow reconnects dropped event streams with Last-Event-ID so callers see
// each progress event exactly once.
package daemonctl
