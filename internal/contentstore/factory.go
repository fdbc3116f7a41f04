package contentstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"reelscope/internal/config"
)

// NewFromConfig builds the configured backend and wraps it in a Store.
func NewFromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	sc := cfg.Store
	var backend Backend
	switch sc.Backend {
	case config.StoreBackendS3:
		b, err := NewS3Backend(ctx, S3Config{
			Bucket:        sc.S3Bucket,
			Region:        sc.S3Region,
			Endpoint:      sc.S3Endpoint,
			AccessKey:     sc.S3AccessKey,
			SecretKey:     sc.S3SecretKey,
			PublicBaseURL: sc.PublicBaseURL,
			PublicACL:     sc.S3PublicACL,
		})
		if err != nil {
			return nil, err
		}
		backend = b
	case config.StoreBackendFilesystem, "":
		b, err := NewFilesystemBackend(ctx, sc.Dir, cfg.CatalogPath(), sc.PublicBaseURL)
		if err != nil {
			return nil, err
		}
		backend = b
	default:
		return nil, fmt.Errorf("unsupported store backend %q", sc.Backend)
	}
	return New(backend,
		WithKeyPrefix(sc.KeyPrefix),
		WithTimeout(time.Duration(sc.TimeoutSeconds)*time.Second),
		WithLogger(logger),
	), nil
}
