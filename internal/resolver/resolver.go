package resolver

import (
	"context"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"

	"reelscope/internal/config"
	"reelscope/internal/logging"
)

// Metadata is best-effort information about the resolved video.
type Metadata struct {
	Title           string  `json:"title,omitempty"`
	Author          string  `json:"author,omitempty"`
	VideoID         string  `json:"video_id,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	CoverURL        string  `json:"cover_url,omitempty"`
}

// Resolution is the outcome of Resolve.
type Resolution struct {
	MediaLocator string   `json:"media_locator"`
	ShareURL     string   `json:"share_url"`
	Family       Family   `json:"family"`
	Metadata     Metadata `json:"metadata"`
}

// Lookup exchanges a platform link for a media locator.
type Lookup interface {
	Lookup(ctx context.Context, link string, family Family) (Resolution, error)
}

// PageFetcher reads a media locator out of a share page.
type PageFetcher interface {
	FetchPage(ctx context.Context, shareURL string) (Resolution, error)
}

// Resolver resolves raw input into a media locator.
type Resolver struct {
	lookup      Lookup
	page        PageFetcher
	allowDirect bool
	timeout     time.Duration
	logger      *slog.Logger
}

// Option customizes a Resolver.
type Option func(*Resolver)

// WithLookup replaces the extract-API collaborator.
func WithLookup(l Lookup) Option {
	return func(r *Resolver) { r.lookup = l }
}

// WithPageFetcher replaces the share-page fallback. nil disables it.
func WithPageFetcher(p PageFetcher) Option {
	return func(r *Resolver) { r.page = p }
}

// WithAllowDirect toggles acceptance of plain video file links.
func WithAllowDirect(allow bool) Option {
	return func(r *Resolver) { r.allowDirect = allow }
}

// New builds a Resolver from configuration.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Resolver {
	r := &Resolver{logger: logging.NewComponentLogger(logger, "resolver")}
	if cfg != nil {
		rc := cfg.Resolver
		if rc.LookupURL != "" {
			r.lookup = NewExtractClient(rc.LookupURL, rc.LookupKey, rc.UserAgent)
		}
		if rc.PageFallback {
			r.page = NewDouyinPage(rc.UserAgent)
		}
		r.allowDirect = rc.AllowDirect
		r.timeout = time.Duration(rc.TimeoutSeconds) * time.Second
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve extracts, classifies and looks up the link in raw.
func (r *Resolver) Resolve(ctx context.Context, raw string) (Resolution, error) {
	logger := logging.WithContext(ctx, r.logger)

	link, ok := ExtractURL(raw)
	if !ok {
		return Resolution{}, &ParseError{Reason: ReasonNoLink}
	}
	family, ok := Classify(link, r.allowDirect)
	if !ok {
		return Resolution{}, &ParseError{Reason: ReasonUnsupported, Link: link}
	}
	logger.Debug("link classified", logging.String("link", link), logging.String("family", string(family)))

	if family == FamilyDirect {
		return directResolution(link), nil
	}

	var lookupErr error
	if r.lookup != nil {
		res, err := r.withTimeout(ctx, func(ctx context.Context) (Resolution, error) {
			return r.lookup.Lookup(ctx, link, family)
		})
		if err == nil {
			return res, nil
		}
		lookupErr = err
		if ctx.Err() != nil {
			return Resolution{}, &ParseError{Reason: ReasonLookupFailed, Link: link, Err: err}
		}
	}

	if family == FamilyDouyin && r.page != nil {
		if lookupErr != nil {
			logging.WarnWithContext(logger, "extract lookup failed; trying share page", "resolver_fallback",
				logging.String("link", link),
				logging.Error(lookupErr),
				logging.String(logging.FieldErrorHint, "check resolver.lookup_url and resolver.lookup_key"),
				logging.String(logging.FieldImpact, "resolution relies on page scraping"),
			)
		}
		res, err := r.withTimeout(ctx, func(ctx context.Context) (Resolution, error) {
			return r.page.FetchPage(ctx, link)
		})
		if err == nil {
			return res, nil
		}
		if lookupErr == nil {
			lookupErr = err
		} else {
			lookupErr = joinCause(lookupErr, err)
		}
	}
	if lookupErr == nil {
		lookupErr = errNoCollaborator
	}
	return Resolution{}, &ParseError{Reason: ReasonLookupFailed, Link: link, Err: lookupErr}
}

func (r *Resolver) withTimeout(ctx context.Context, fn func(context.Context) (Resolution, error)) (Resolution, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return fn(ctx)
}

func directResolution(link string) Resolution {
	res := Resolution{MediaLocator: link, ShareURL: link, Family: FamilyDirect}
	if parsed, err := url.Parse(link); err == nil {
		base := path.Base(parsed.Path)
		res.Metadata.Title = strings.TrimSuffix(base, path.Ext(base))
	}
	return res
}
