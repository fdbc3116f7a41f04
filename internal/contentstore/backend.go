package contentstore

import (
	"context"
	"io"
	"time"

	"reelscope/internal/textutil"
)

// ObjectMeta is attached to every uploaded object.
type ObjectMeta struct {
	Title       string
	Author      string
	VideoID     string
	SourceURL   string
	Address     string
	ContentType string
	SizeBytes   int64
	UploadedAt  time.Time
}

// Backend is durable object storage addressed by key.
type Backend interface {
	Name() string
	// FindByContentAddress reports whether key already exists and, when it
	// does, the public URL it is served from.
	FindByContentAddress(ctx context.Context, key string) (publicURL string, found bool, err error)
	// Upload stores size bytes from body under key and marks the object
	// publicly retrievable.
	Upload(ctx context.Context, key string, body io.Reader, size int64, meta ObjectMeta) (publicURL string, err error)
	HealthCheck(ctx context.Context) error
}

func metadataMap(meta ObjectMeta) map[string]string {
	out := map[string]string{
		"content-address": meta.Address,
		"uploaded-at":     meta.UploadedAt.UTC().Format(time.RFC3339),
	}
	add := func(key, value string) {
		if value = textutil.HeaderSafe(value); value != "" {
			out[key] = value
		}
	}
	add("title", meta.Title)
	add("author", meta.Author)
	add("video-id", meta.VideoID)
	add("source-url", meta.SourceURL)
	return out
}
