package contentstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"reelscope/internal/fileutil"
	"reelscope/internal/logging"
)

const (
	defaultKeyPrefix        = "videos"
	defaultTimeout          = 2 * time.Minute
	defaultProgressInterval = 100 * time.Millisecond
)

// Metadata describes the video being stored.
type Metadata struct {
	Title     string
	Author    string
	VideoID   string
	SourceURL string
}

// Object is the outcome of a successful Put.
type Object struct {
	Address     string    `json:"address"`
	Key         string    `json:"key"`
	PublicURL   string    `json:"public_url"`
	SizeBytes   int64     `json:"size_bytes"`
	ContentType string    `json:"content_type"`
	IsDuplicate bool      `json:"is_duplicate"`
	StoredAt    time.Time `json:"stored_at"`
}

// Progress is a byte-level upload update.
type Progress struct {
	Uploaded   int64 `json:"uploaded"`
	Total      int64 `json:"total"`
	Percentage int   `json:"percentage"`
}

// ProgressFunc receives upload progress. It must not block.
type ProgressFunc func(Progress)

// Store deduplicates staged files into a Backend.
type Store struct {
	backend          Backend
	keyPrefix        string
	timeout          time.Duration
	progressInterval time.Duration
	now              func() time.Time
	logger           *slog.Logger
	group            singleflight.Group
}

// Option customizes a Store.
type Option func(*Store)

// WithKeyPrefix sets the key namespace objects are stored under.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix = strings.Trim(strings.TrimSpace(prefix), "/"); prefix != "" {
			s.keyPrefix = prefix
		}
	}
}

// WithTimeout bounds each lookup and upload.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithProgressInterval overrides the minimum spacing between progress updates.
func WithProgressInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.progressInterval = d
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source used for StoredAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New wraps backend.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend:          backend,
		keyPrefix:        defaultKeyPrefix,
		timeout:          defaultTimeout,
		progressInterval: defaultProgressInterval,
		now:              time.Now,
		logger:           logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, "contentstore").With(logging.String("backend", backend.Name()))
	return s
}

// Backend returns the underlying backend.
func (s *Store) Backend() Backend {
	return s.backend
}

// HealthCheck probes the backend.
func (s *Store) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.backend.HealthCheck(ctx)
}

// Close releases backend resources when the backend holds any.
func (s *Store) Close() error {
	if closer, ok := s.backend.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// Key returns the storage key for a content address and file extension.
func (s *Store) Key(address, ext string) string {
	if ext == "" {
		ext = ".mp4"
	}
	return path.Join(s.keyPrefix, address+ext)
}

// Put stores the file at localPath unless identical bytes already exist.
// localPath is removed before Put returns, whatever the outcome.
func (s *Store) Put(ctx context.Context, localPath string, meta Metadata, onProgress ProgressFunc) (Object, error) {
	defer s.discard(localPath)

	digest, err := fileutil.HashFile(localPath)
	if err != nil {
		return Object{}, &StoreError{Op: OpHash, Err: err}
	}
	key := s.Key(digest.SHA256, ExtensionFor(digest.ContentType))

	executed := false
	v, err, _ := s.group.Do(key, func() (any, error) {
		executed = true
		return s.findOrUpload(ctx, localPath, key, digest, meta, onProgress)
	})
	if err != nil {
		return Object{}, err
	}
	obj := v.(Object)
	if !executed {
		// Another caller uploaded these bytes while we waited.
		obj.IsDuplicate = true
		s.logger.Debug("joined in-flight store", logging.String("key", key))
	}
	return obj, nil
}

func (s *Store) findOrUpload(ctx context.Context, localPath, key string, digest fileutil.Digest, meta Metadata, onProgress ProgressFunc) (Object, error) {
	obj := Object{
		Address:     digest.SHA256,
		Key:         key,
		SizeBytes:   digest.Size,
		ContentType: digest.ContentType,
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.timeout)
	publicURL, found, err := s.backend.FindByContentAddress(lookupCtx, key)
	cancel()
	if err != nil {
		return Object{}, &StoreError{Op: OpLookup, Key: key, Err: err}
	}
	if found {
		obj.PublicURL = publicURL
		obj.IsDuplicate = true
		obj.StoredAt = s.now()
		s.logger.Info("content already stored",
			logging.String(logging.FieldEventType, "store_dedup_hit"),
			logging.String("key", key),
			logging.Int64("size_bytes", digest.Size),
		)
		return obj, nil
	}

	file, err := os.Open(localPath)
	if err != nil {
		return Object{}, &StoreError{Op: OpUpload, Key: key, Err: err}
	}
	defer file.Close()

	body := fileutil.NewProgressReader(file, digest.Size, s.progressInterval, func(done, total int64) {
		if onProgress == nil {
			return
		}
		onProgress(Progress{Uploaded: done, Total: total, Percentage: percentOf(done, total)})
	})

	uploadCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	started := s.now()
	publicURL, err = s.backend.Upload(uploadCtx, key, body, digest.Size, ObjectMeta{
		Title:       meta.Title,
		Author:      meta.Author,
		VideoID:     meta.VideoID,
		SourceURL:   meta.SourceURL,
		Address:     digest.SHA256,
		ContentType: digest.ContentType,
		SizeBytes:   digest.Size,
		UploadedAt:  started.UTC(),
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		return Object{}, &StoreError{Op: OpUpload, Key: key, Err: err}
	}
	obj.PublicURL = publicURL
	obj.StoredAt = s.now()
	s.logger.Info("content stored",
		logging.String(logging.FieldEventType, "store_uploaded"),
		logging.String("key", key),
		logging.Int64("size_bytes", digest.Size),
		logging.Int64("sent_bytes", body.BytesRead()),
		logging.Duration("elapsed", obj.StoredAt.Sub(started)),
	)
	return obj, nil
}

func (s *Store) discard(localPath string) {
	if err := os.Remove(localPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		logging.WarnWithContext(s.logger, "staging file cleanup failed", "staging_cleanup_failed",
			logging.String("path", localPath),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the file manually or let the staging janitor reclaim it"),
			logging.String(logging.FieldImpact, "disk space is held until the janitor runs"),
		)
	}
}

// ExtensionFor maps a sniffed content type to an object extension.
func ExtensionFor(contentType string) string {
	mediaType, _, _ := strings.Cut(contentType, ";")
	switch strings.TrimSpace(mediaType) {
	case "video/webm":
		return ".webm"
	case "video/quicktime":
		return ".mov"
	default:
		return ".mp4"
	}
}

func percentOf(done, total int64) int {
	if total <= 0 {
		return 0
	}
	pct := int(done * 100 / total)
	if pct > 100 {
		pct = 100
	}
	return pct
}
