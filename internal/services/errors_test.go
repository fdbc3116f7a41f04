package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"reelscope/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrDownload, "downloading", "fetch", "status 503", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrDownload) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"downloading", "fetch", "status 503"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestCodeMapping(t *testing.T) {
	cases := []struct {
		err  error
		want services.ErrorCode
	}{
		{nil, ""},
		{services.Wrap(services.ErrValidation, "parsing", "", "empty input", nil), services.CodeInvalidInput},
		{services.Wrap(services.ErrParse, "parsing", "resolve", "no link found", nil), services.CodeParseError},
		{services.Wrap(services.ErrDownload, "downloading", "", "", services.ErrTimeout), services.CodeDownloadError},
		{services.Wrap(services.ErrUpload, "uploading", "put", "", nil), services.CodeUploadError},
		{services.Wrap(services.ErrStorage, "uploading", "head", "", nil), services.CodeStorageError},
		{fmt.Errorf("outer: %w", services.ErrRateLimited), services.CodeRateLimit},
		{services.ErrTimeout, services.CodeNetworkError},
		{errors.New("mystery"), services.CodeInternal},
	}
	for _, tc := range cases {
		if got := services.Code(tc.err); got != tc.want {
			t.Errorf("Code(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestRetryable(t *testing.T) {
	if services.Retryable(services.Wrap(services.ErrValidation, "", "", "bad", nil)) {
		t.Fatal("validation errors must not be retried")
	}
	if !services.Retryable(services.Wrap(services.ErrTransient, "analyzing", "", "503", nil)) {
		t.Fatal("transient errors should be retried")
	}
	if services.Retryable(nil) {
		t.Fatal("nil is not retryable")
	}
}
