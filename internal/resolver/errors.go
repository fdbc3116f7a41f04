package resolver

import (
	"errors"
	"fmt"

	"reelscope/internal/services"
)

// Reasons reported by ParseError.
const (
	ReasonNoLink       = "no link found"
	ReasonUnsupported  = "unsupported source"
	ReasonLookupFailed = "lookup failed"
)

// ParseError describes why input could not be resolved.
type ParseError struct {
	Reason string
	Link   string
	Err    error
}

func (e *ParseError) Error() string {
	msg := e.Reason
	if e.Link != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Link)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ParseError) Unwrap() []error {
	if e.Err == nil {
		return []error{services.ErrParse}
	}
	return []error{services.ErrParse, e.Err}
}

// statusError is a non-2xx response from an upstream collaborator.
type statusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s returned status %d: %s", e.Endpoint, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s returned status %d", e.Endpoint, e.StatusCode)
}

var errNoCollaborator = errors.New("no lookup configured for this source")

type fallbackError struct {
	lookup error
	page   error
}

func (e *fallbackError) Error() string {
	return fmt.Sprintf("%v; share page: %v", e.lookup, e.page)
}

func (e *fallbackError) Unwrap() []error { return []error{e.lookup, e.page} }

func joinCause(lookup, page error) error {
	return &fallbackError{lookup: lookup, page: page}
}
