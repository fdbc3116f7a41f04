// Package session keeps the in-memory table of submission states that backs
// status polling. Entries are evicted once idle for the configured TTL.
package session
