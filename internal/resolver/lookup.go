package resolver

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

const (
	defaultLookupAttempts = 3
	defaultLookupDelay    = 500 * time.Millisecond
	defaultLookupMaxDelay = 4 * time.Second
	maxErrorBody          = 512
)

// ExtractClient calls a SnapAny-compatible extract API.
type ExtractClient struct {
	endpoint    string
	key         string
	userAgent   string
	httpClient  *http.Client
	maxAttempts int
	delay       time.Duration
	maxDelay    time.Duration
	now         func() time.Time
}

// ExtractOption customizes an ExtractClient.
type ExtractOption func(*ExtractClient)

// WithExtractHTTPClient overrides the HTTP client.
func WithExtractHTTPClient(client *http.Client) ExtractOption {
	return func(c *ExtractClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithExtractRetry overrides how often a 5xx or 429 response is retried.
func WithExtractRetry(attempts int, delay, maxDelay time.Duration) ExtractOption {
	return func(c *ExtractClient) {
		if attempts > 0 {
			c.maxAttempts = attempts
		}
		c.delay = delay
		c.maxDelay = maxDelay
	}
}

// NewExtractClient constructs a client for endpoint signed with key.
func NewExtractClient(endpoint, key, userAgent string, opts ...ExtractOption) *ExtractClient {
	c := &ExtractClient{
		endpoint:    strings.TrimSpace(endpoint),
		key:         key,
		userAgent:   userAgent,
		httpClient:  &http.Client{},
		maxAttempts: defaultLookupAttempts,
		delay:       defaultLookupDelay,
		maxDelay:    defaultLookupMaxDelay,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type extractResponse struct {
	Text   string         `json:"text"`
	Medias []extractMedia `json:"medias"`
	Error  string         `json:"error"`
}

type extractMedia struct {
	MediaType   string          `json:"media_type"`
	ResourceURL string          `json:"resource_url"`
	PreviewURL  string          `json:"preview_url"`
	Formats     []extractFormat `json:"formats"`
}

type extractFormat struct {
	Quality     int    `json:"quality"`
	VideoURL    string `json:"video_url"`
	VideoExt    string `json:"video_ext"`
	VideoSize   int64  `json:"video_size"`
	QualityNote string `json:"quality_note"`
}

// Lookup exchanges link for a media locator.
func (c *ExtractClient) Lookup(ctx context.Context, link string, family Family) (Resolution, error) {
	if c.endpoint == "" {
		return Resolution{}, errors.New("extract endpoint not configured")
	}
	policy := retrypolicy.NewBuilder[*extractResponse]().
		WithMaxAttempts(c.maxAttempts).
		HandleIf(func(_ *extractResponse, err error) bool { return transientLookupError(err) }).
		ReturnLastFailure()
	if c.delay > 0 {
		if c.maxDelay > c.delay {
			policy = policy.WithBackoff(c.delay, c.maxDelay)
		} else {
			policy = policy.WithDelay(c.delay)
		}
	}

	payload, err := failsafe.With(policy.Build()).WithContext(ctx).Get(func() (*extractResponse, error) {
		return c.call(ctx, link, family.language())
	})
	if err != nil {
		return Resolution{}, err
	}
	if payload.Error != "" {
		return Resolution{}, fmt.Errorf("extract api: %s", payload.Error)
	}

	locator, cover := pickMedia(payload.Medias)
	if locator == "" {
		return Resolution{}, errors.New("extract api returned no usable media")
	}
	res := Resolution{
		MediaLocator: locator,
		ShareURL:     link,
		Family:       family,
		Metadata: Metadata{
			Title:    strings.TrimSpace(payload.Text),
			CoverURL: cover,
		},
	}
	if family == FamilyDouyin || family == FamilyTikTok {
		res.Metadata.Author = authorFromTitle(res.Metadata.Title)
	}
	return res, nil
}

func (c *ExtractClient) call(ctx context.Context, link, lang string) (*extractResponse, error) {
	body, err := json.Marshal(map[string]string{"link": link})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	timestamp := strconv.FormatInt(c.now().UnixMilli(), 10)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Language", lang)
	req.Header.Set("G-Timestamp", timestamp)
	req.Header.Set("G-Footer", footer(link, lang, timestamp, c.key))
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &statusError{Endpoint: "extract api", StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	var payload extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode extract response: %w", err)
	}
	return &payload, nil
}

// footer signs a request the way the extract API expects:
// md5(link + lang + timestamp + key), hex encoded.
func footer(link, lang, timestamp, key string) string {
	sum := md5.Sum([]byte(link + lang + timestamp + key))
	return hex.EncodeToString(sum[:])
}

// pickMedia prefers the first video entry, choosing its highest-quality
// format when formats are listed, and falls back to an audio entry.
func pickMedia(medias []extractMedia) (locator, cover string) {
	for _, m := range medias {
		if m.MediaType != "video" {
			continue
		}
		locator, cover = m.ResourceURL, m.PreviewURL
		formats := make([]extractFormat, 0, len(m.Formats))
		for _, f := range m.Formats {
			if f.VideoURL != "" {
				formats = append(formats, f)
			}
		}
		if len(formats) > 0 {
			sort.SliceStable(formats, func(i, j int) bool { return formats[i].Quality > formats[j].Quality })
			locator = formats[0].VideoURL
		}
		if locator != "" {
			return locator, cover
		}
	}
	for _, m := range medias {
		if m.MediaType == "audio" && m.ResourceURL != "" {
			return m.ResourceURL, m.PreviewURL
		}
	}
	return "", ""
}

func transientLookupError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var status *statusError
	if errors.As(err, &status) {
		return status.StatusCode == http.StatusTooManyRequests || status.StatusCode >= 500
	}
	var transportErr *url.Error
	return errors.As(err, &transportErr)
}
