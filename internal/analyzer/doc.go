// Package analyzer dispatches stored videos to the analysis backend and turns
// its JSON breakdown into the client-facing AnalysisResult.
//
// Analyze never returns an error. Durations over the gate limit are rejected
// without a backend call, failures are retried a bounded number of times with
// a fixed delay, and anything that still fails comes back as the explicit
// degraded variant carrying a DegradedReason. Responses that decode but fail
// Validate count as failed attempts.
package analyzer
