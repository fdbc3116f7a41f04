// Package preflight provides readiness checks for the filesystem paths and
// external services reelscope depends on.
//
// These checks run in two contexts:
//   - The daemon reports them from /api/status and logs failures at startup.
//   - The CLI "reelscope check" command renders them as a table.
//
// A missing analyzer key is reported as a failed check but does not stop the
// daemon: submissions still complete with a degraded result.
package preflight
