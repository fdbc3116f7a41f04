package contentstore

import (
	"fmt"

	"reelscope/internal/services"
)

// Store operations reported in StoreError.
const (
	OpHash   = "hash"
	OpLookup = "lookup"
	OpUpload = "upload"
)

// StoreError describes a failed store step.
type StoreError struct {
	Op  string
	Key string
	Err error
}

func (e *StoreError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("store %s %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

// Unwrap exposes the cause plus the matching service marker, so upload
// failures classify as ErrUpload and everything else as ErrStorage.
func (e *StoreError) Unwrap() []error {
	marker := services.ErrStorage
	if e.Op == OpUpload {
		marker = services.ErrUpload
	}
	return []error{marker, e.Err}
}
