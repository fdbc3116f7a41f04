package retriever

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"reelscope/internal/config"
	"reelscope/internal/logging"
)

const defaultProgressInterval = 100 * time.Millisecond

// Progress is a byte-level download update. Total is 0 when the server did
// not announce a length.
type Progress struct {
	Downloaded int64 `json:"downloaded"`
	Total      int64 `json:"total"`
	Percentage int   `json:"percentage"`
}

// ProgressFunc receives download progress. It must not block.
type ProgressFunc func(Progress)

// Result describes a completed download.
type Result struct {
	Path      string
	SizeBytes int64
}

// Retriever fetches media locators over HTTP.
type Retriever struct {
	client           *http.Client
	userAgent        string
	referer          string
	maxBytes         int64
	timeout          time.Duration
	progressInterval time.Duration
	onRetry          func(attempt int, err error)
	logger           *slog.Logger
}

// Option customizes a Retriever.
type Option func(*Retriever)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Retriever) {
		if client != nil {
			r.client = client
		}
	}
}

// WithProgressInterval overrides the minimum spacing between progress updates.
func WithProgressInterval(d time.Duration) Option {
	return func(r *Retriever) {
		if d > 0 {
			r.progressInterval = d
		}
	}
}

// WithMaxBytes overrides the download size ceiling.
func WithMaxBytes(n int64) Option {
	return func(r *Retriever) {
		if n > 0 {
			r.maxBytes = n
		}
	}
}

// WithRetryObserver registers a callback invoked before each retry.
func WithRetryObserver(fn func(attempt int, err error)) Option {
	return func(r *Retriever) {
		r.onRetry = fn
	}
}

// New constructs a Retriever from configuration.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Retriever {
	r := &Retriever{
		client:           &http.Client{},
		progressInterval: defaultProgressInterval,
		logger:           logging.NewComponentLogger(logger, "retriever"),
	}
	if cfg != nil {
		r.userAgent = cfg.Retriever.UserAgent
		r.referer = cfg.Retriever.Referer
		r.maxBytes = int64(cfg.Retriever.MaxSizeMB) * 1024 * 1024
		r.timeout = time.Duration(cfg.Retriever.TimeoutSeconds) * time.Second
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NormalizeLocator rewrites watermarked play addresses to their clean form.
func NormalizeLocator(locator string) string {
	return strings.Replace(locator, "playwm", "play", 1)
}

// Extension returns the file extension implied by the locator path, or .mp4.
func Extension(locator string) string {
	parsed, err := url.Parse(locator)
	if err != nil {
		return ".mp4"
	}
	switch ext := strings.ToLower(path.Ext(parsed.Path)); ext {
	case ".mp4", ".mov", ".webm", ".m4v", ".mkv", ".m4a", ".mp3":
		return ext
	default:
		return ".mp4"
	}
}

// Fetch performs a single download attempt of locator into dest.
func (r *Retriever) Fetch(ctx context.Context, locator, dest string, onProgress ProgressFunc) (Result, error) {
	locator = NormalizeLocator(strings.TrimSpace(locator))
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return Result{}, &DownloadError{Locator: locator, Err: err}
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}
	if r.referer != "" {
		req.Header.Set("Referer", r.referer)
	}
	req.Header.Set("Accept", "*/*")

	resp, err := r.client.Do(req)
	if err != nil {
		return Result{}, &DownloadError{Locator: locator, Err: r.classify(ctx, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Result{}, &DownloadError{Locator: locator, StatusCode: resp.StatusCode}
	}
	total := resp.ContentLength
	if total < 0 {
		total = 0
	}
	if r.maxBytes > 0 && total > r.maxBytes {
		return Result{}, &DownloadError{Locator: locator, Err: fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, total, r.maxBytes)}
	}

	partial := dest + ".part"
	file, err := os.Create(partial)
	if err != nil {
		return Result{}, &DownloadError{Locator: locator, Err: fmt.Errorf("create staging file: %w", err)}
	}
	cleanup := func() {
		_ = file.Close()
		_ = os.Remove(partial)
	}

	counter := &progressWriter{
		total:    total,
		limiter:  rate.NewLimiter(rate.Every(r.progressInterval), 1),
		callback: onProgress,
	}
	body := io.Reader(resp.Body)
	if r.maxBytes > 0 {
		body = io.LimitReader(resp.Body, r.maxBytes+1)
	}
	written, err := io.Copy(io.MultiWriter(file, counter), body)
	if err != nil {
		cleanup()
		return Result{}, &DownloadError{Locator: locator, Err: r.classify(ctx, err)}
	}
	if r.maxBytes > 0 && written > r.maxBytes {
		cleanup()
		return Result{}, &DownloadError{Locator: locator, Err: fmt.Errorf("%w: more than %d bytes", ErrTooLarge, r.maxBytes)}
	}
	if total > 0 && written != total {
		cleanup()
		return Result{}, &DownloadError{Locator: locator, Err: fmt.Errorf("connection closed after %d of %d bytes", written, total)}
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(partial)
		return Result{}, &DownloadError{Locator: locator, Err: fmt.Errorf("close staging file: %w", err)}
	}
	if err := os.Rename(partial, dest); err != nil {
		_ = os.Remove(partial)
		return Result{}, &DownloadError{Locator: locator, Err: fmt.Errorf("finalize staging file: %w", err)}
	}

	counter.finish()
	return Result{Path: dest, SizeBytes: written}, nil
}

func (r *Retriever) classify(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("%w: %w", errCanceled, err)
	}
	return err
}

type progressWriter struct {
	written  int64
	total    int64
	limiter  *rate.Limiter
	callback ProgressFunc
}

func (p *progressWriter) Write(b []byte) (int, error) {
	p.written += int64(len(b))
	if p.callback != nil && p.limiter.Allow() {
		p.callback(Progress{Downloaded: p.written, Total: p.total, Percentage: p.percentage()})
	}
	return len(b), nil
}

func (p *progressWriter) percentage() int {
	if p.total <= 0 {
		return 0
	}
	pct := int(p.written * 100 / p.total)
	// 100 is reserved for the completion event.
	return min(pct, 99)
}

func (p *progressWriter) finish() {
	if p.callback == nil {
		return
	}
	total := p.total
	if total == 0 {
		total = p.written
	}
	p.callback(Progress{Downloaded: p.written, Total: total, Percentage: 100})
}
