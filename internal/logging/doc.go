// Package logging assembles structured slog loggers and formatting helpers used
// across reelscope.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so pipeline code automatically
// tags log lines with submission IDs, stages, and correlation IDs. A StreamHub
// keeps recent records in memory for the daemon's /api/logs endpoint.
//
// Prefer these constructors over hand-rolled slog setup so new components emit
// data with the same shape as the rest of the system.
package logging
