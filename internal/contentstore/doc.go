// Package contentstore keeps at most one durable copy of each distinct video.
//
// Store hashes a staged file, asks its Backend whether an object already
// lives under the derived content key, and uploads only on a miss. Concurrent
// stores of the same bytes inside one process collapse into a single upload;
// callers that did not perform it report the object as a duplicate.
//
// Two backends are provided: an S3-compatible bucket and a local directory
// whose object metadata is catalogued in SQLite. The staged file is always
// removed once Put returns.
package contentstore
