package daemonctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"reelscope/internal/analyzer"
	"reelscope/internal/api"
	"reelscope/internal/config"
	"reelscope/internal/services"
	"reelscope/internal/submission"
)

const (
	defaultRequestTimeout = 30 * time.Second
	reconnectAttempts     = 5
	reconnectDelay        = 500 * time.Millisecond
	reconnectMaxDelay     = 5 * time.Second
)

// ErrDaemonNotRunning indicates the daemon API is unreachable.
var ErrDaemonNotRunning = errors.New("daemon not running")

var errStreamInterrupted = errors.New("event stream ended before a terminal event")

// APIError is a non-2xx response from the daemon.
type APIError struct {
	StatusCode int
	Code       services.ErrorCode
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("daemon returned %d [%s]: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("daemon returned %d: %s", e.StatusCode, e.Message)
}

// Client talks to a running daemon over its HTTP API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	// stream has no overall timeout; event streams stay open for the
	// lifetime of a submission.
	stream *http.Client
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient overrides the client used for plain requests and streams.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
		c.stream = hc
	}
}

// NewClient returns a client for the daemon at baseURL.
func NewClient(baseURL, token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		http:    &http.Client{Timeout: defaultRequestTimeout},
		stream:  &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewClientFromConfig returns a client for the daemon described by cfg.
func NewClientFromConfig(cfg *config.Config, opts ...ClientOption) *Client {
	return NewClient(cfg.APIBaseURL(), cfg.Server.APIToken, opts...)
}

// Submit posts input to the daemon. opts may be nil to use the daemon's
// configured account context.
func (c *Client) Submit(ctx context.Context, input string, opts *analyzer.Options) (api.SubmitResponse, error) {
	var resp api.SubmitResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/submissions", api.SubmitRequest{Input: input, Context: opts}, &resp)
	return resp, err
}

// Get returns the last-known state of a submission.
func (c *Client) Get(ctx context.Context, id string) (submission.State, error) {
	var state submission.State
	err := c.doJSON(ctx, http.MethodGet, api.SubmissionPath(url.PathEscape(id)), nil, &state)
	return state, err
}

// Status returns the daemon status. withChecks also runs preflight checks.
func (c *Client) Status(ctx context.Context, withChecks bool) (api.DaemonStatus, error) {
	path := "/api/status"
	if withChecks {
		path += "?checks=1"
	}
	var status api.DaemonStatus
	err := c.doJSON(ctx, http.MethodGet, path, nil, &status)
	return status, err
}

// LogQuery filters GET /api/logs.
type LogQuery struct {
	Since        uint64
	Limit        int
	Follow       bool
	Tail         bool
	SubmissionID string
	Component    string
}

func (q LogQuery) encode() string {
	values := url.Values{}
	if q.Since > 0 {
		values.Set("since", strconv.FormatUint(q.Since, 10))
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Follow {
		values.Set("follow", "1")
	}
	if q.Tail {
		values.Set("tail", "1")
	}
	if q.SubmissionID != "" {
		values.Set("submission", q.SubmissionID)
	}
	if q.Component != "" {
		values.Set("component", q.Component)
	}
	return values.Encode()
}

// Logs fetches a batch of daemon log events.
func (c *Client) Logs(ctx context.Context, query LogQuery) (api.LogStreamResponse, error) {
	path := "/api/logs"
	if encoded := query.encode(); encoded != "" {
		path += "?" + encoded
	}
	var resp api.LogStreamResponse
	err := c.doJSON(ctx, http.MethodGet, path, nil, &resp)
	return resp, err
}

// TestNotification asks the daemon to send a test notification.
func (c *Client) TestNotification(ctx context.Context) (api.NotificationTestResponse, error) {
	var resp api.NotificationTestResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/notifications/test", nil, &resp)
	return resp, err
}

// Follow relays progress events for id to onEvent until the terminal event
// arrives, reconnecting with Last-Event-ID when the stream drops.
func (c *Client) Follow(ctx context.Context, id string, onEvent func(submission.Event)) (submission.Event, error) {
	var lastID uint64
	policy := retrypolicy.NewBuilder[submission.Event]().
		WithMaxAttempts(reconnectAttempts).
		WithBackoff(reconnectDelay, reconnectMaxDelay).
		HandleIf(func(_ submission.Event, err error) bool { return reconnectable(ctx, err) }).
		ReturnLastFailure().
		Build()
	return failsafe.With(policy).WithContext(ctx).Get(func() (submission.Event, error) {
		return c.followOnce(ctx, id, &lastID, onEvent)
	})
}

// SubmitFollow submits input and follows its events to the terminal event.
func (c *Client) SubmitFollow(ctx context.Context, input string, opts *analyzer.Options, onEvent func(submission.Event)) (string, submission.Event, error) {
	accepted, err := c.Submit(ctx, input, opts)
	if err != nil {
		return "", submission.Event{}, err
	}
	evt, err := c.Follow(ctx, accepted.ID, onEvent)
	return accepted.ID, evt, err
}

func (c *Client) followOnce(ctx context.Context, id string, lastID *uint64, onEvent func(submission.Event)) (submission.Event, error) {
	req, err := c.newRequest(ctx, http.MethodGet, api.EventsPath(url.PathEscape(id)), nil)
	if err != nil {
		return submission.Event{}, err
	}
	req.Header.Set("Accept", api.EventStreamType)
	if *lastID > 0 {
		req.Header.Set("Last-Event-ID", strconv.FormatUint(*lastID, 10))
	}
	resp, err := c.stream.Do(req)
	if err != nil {
		return submission.Event{}, wrapTransportError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return submission.Event{}, decodeAPIError(resp)
	}

	reader := api.NewEventReader(resp.Body)
	for {
		evt, err := reader.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return submission.Event{}, errStreamInterrupted
			}
			return submission.Event{}, fmt.Errorf("%w: %v", errStreamInterrupted, err)
		}
		if evt.Seq <= *lastID {
			continue
		}
		*lastID = evt.Seq
		if onEvent != nil {
			onEvent(evt)
		}
		if evt.Terminal() {
			return evt, nil
		}
	}
}

func reconnectable(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	return !errors.Is(err, ErrDaemonNotRunning)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return wrapTransportError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var payload api.ErrorResponse
	if err := json.Unmarshal(data, &payload); err == nil && payload.Error != "" {
		apiErr.Message = payload.Error
		apiErr.Code = payload.Code
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

func wrapTransportError(err error) error {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return fmt.Errorf("%w: %v", ErrDaemonNotRunning, err)
	}
	return fmt.Errorf("daemon request: %w", err)
}
