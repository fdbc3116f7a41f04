// Package services defines shared utilities consumed by the pipeline stages
// and their external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp submission IDs, stage names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper, and Code which turns any
//     stage failure into the client-facing error code.
//
// Use these helpers when wiring new stage logic so failure reporting stays
// uniform across the pipeline.
package services
