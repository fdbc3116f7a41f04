package retriever

import (
	"errors"
	"fmt"

	"reelscope/internal/services"
)

// ErrTooLarge marks downloads that exceed the configured size ceiling.
var ErrTooLarge = errors.New("media exceeds size limit")

// DownloadError describes a failed fetch. It matches services.ErrDownload.
type DownloadError struct {
	Locator    string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *DownloadError) Error() string {
	msg := "download failed"
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s: status %d", msg, e.StatusCode)
	}
	if e.Attempts > 1 {
		msg = fmt.Sprintf("%s after %d attempts", msg, e.Attempts)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *DownloadError) Unwrap() []error {
	if e.Err == nil {
		return []error{services.ErrDownload}
	}
	return []error{services.ErrDownload, e.Err}
}

// retryable reports whether another attempt could succeed. Size violations
// are deterministic and cancellations are the caller's decision.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrTooLarge) && !errors.Is(err, errCanceled)
}

var errCanceled = errors.New("download canceled")
