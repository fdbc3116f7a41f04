// Package api defines the wire format shared by the daemon's HTTP server and
// its clients: request and response payloads, error bodies and the
// server-sent event framing used for progress streams.
//
// Submission snapshots and progress events are sent as the internal
// submission.State and submission.Event types directly; their JSON tags are
// the contract. Everything else that crosses the wire is declared here so the
// server and the CLI cannot drift apart.
package api
