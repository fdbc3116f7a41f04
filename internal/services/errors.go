package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrParse         = errors.New("parse error")
	ErrDownload      = errors.New("download error")
	ErrStorage       = errors.New("storage error")
	ErrUpload        = errors.New("upload error")
	ErrAnalysis      = errors.New("analysis error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrRateLimited   = errors.New("rate limited")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
)

// ErrorCode is the machine-readable failure category surfaced to clients.
type ErrorCode string

const (
	CodeInvalidInput  ErrorCode = "INVALID_INPUT"
	CodeParseError    ErrorCode = "PARSE_ERROR"
	CodeDownloadError ErrorCode = "DOWNLOAD_ERROR"
	CodeUploadError   ErrorCode = "UPLOAD_ERROR"
	CodeStorageError  ErrorCode = "STORAGE_ERROR"
	CodeAnalysisError ErrorCode = "ANALYSIS_ERROR"
	CodeNetworkError  ErrorCode = "NETWORK_ERROR"
	CodeRateLimit     ErrorCode = "RATE_LIMIT"
	CodeInternal      ErrorCode = "INTERNAL_ERROR"
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Code maps an error to the client-facing error code. Stage markers win over
// transport markers so a download that timed out still reports DOWNLOAD_ERROR.
func Code(err error) ErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return CodeInvalidInput
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimit
	case errors.Is(err, ErrParse):
		return CodeParseError
	case errors.Is(err, ErrDownload):
		return CodeDownloadError
	case errors.Is(err, ErrUpload):
		return CodeUploadError
	case errors.Is(err, ErrStorage):
		return CodeStorageError
	case errors.Is(err, ErrAnalysis):
		return CodeAnalysisError
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrTransient):
		return CodeNetworkError
	default:
		return CodeInternal
	}
}

// Retryable reports whether the failure is worth another attempt.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrConfiguration) || errors.Is(err, ErrNotFound) {
		return false
	}
	return errors.Is(err, ErrTransient) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrRateLimited)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
