// Package ffprobe wraps the ffprobe binary to measure downloaded media.
//
// Inspect returns the decoded JSON report; Prober narrows that to the
// duration the pipeline feeds into the analysis gate.
package ffprobe
