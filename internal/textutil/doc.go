// Package textutil provides small string helpers shared across packages:
// filesystem-safe names for staging files, header-safe encoding for object
// metadata, and rune-aware truncation for notifications and CLI output.
package textutil
