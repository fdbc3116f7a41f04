package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"reelscope/internal/config"
	"reelscope/internal/gate"
	"reelscope/internal/submission"
	"reelscope/internal/textutil"
)

const userAgent = "reelscope/0.1"

// Service defines the notification surface exposed to the submission manager.
type Service interface {
	NotifyCompleted(ctx context.Context, result submission.AnalysisResult, warning string) error
	NotifyError(ctx context.Context, submissionID string, code string, message string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:  topic,
		client:    &http.Client{Timeout: timeout},
		completed: cfg.Notifications.Completed,
		gated:     cfg.Notifications.Gated,
		errors:    cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
	click    string
}

type ntfyService struct {
	endpoint  string
	client    *http.Client
	completed bool
	gated     bool
	errors    bool
}

func (n *ntfyService) NotifyCompleted(ctx context.Context, result submission.AnalysisResult, warning string) error {
	info := result.VideoInfo
	title := textutil.Truncate(strings.TrimSpace(info.Title), 80)
	if title == "" {
		title = "untitled"
	}

	if result.DegradedReason == submission.DegradedGated {
		if !n.gated {
			return nil
		}
		return n.send(ctx, payload{
			title:   "reelscope - Analysis Skipped",
			message: fmt.Sprintf("Stored %s (%s)\n%s", title, gate.FormatDuration(info.DurationSeconds), warning),
			tags:    []string{"reelscope", "gated"},
			click:   info.PublicURL,
		})
	}
	if !n.completed {
		return nil
	}

	message := fmt.Sprintf("Analyzed: %s", title)
	tags := []string{"reelscope", "completed"}
	if result.Degraded() {
		message = fmt.Sprintf("Stored %s, analysis degraded (%s)", title, result.DegradedReason)
		tags = append(tags, "degraded")
	} else if len(result.Recommendations) > 0 {
		message = fmt.Sprintf("%s\nTop fix: %s", message, textutil.Truncate(result.Recommendations[0], 120))
	}
	if info.IsDuplicate {
		tags = append(tags, "duplicate")
	}
	return n.send(ctx, payload{
		title:   "reelscope - Complete",
		message: message,
		tags:    tags,
		click:   info.PublicURL,
	})
}

func (n *ntfyService) NotifyError(ctx context.Context, submissionID, code, message string) error {
	if !n.errors {
		return nil
	}
	var builder strings.Builder
	builder.WriteString("Submission failed")
	if code = strings.TrimSpace(code); code != "" {
		builder.WriteString(" [")
		builder.WriteString(code)
		builder.WriteString("]")
	}
	builder.WriteString(": ")
	if message = strings.TrimSpace(message); message != "" {
		builder.WriteString(textutil.Truncate(message, 200))
	} else {
		builder.WriteString("unknown")
	}
	if submissionID != "" {
		builder.WriteString("\nID: ")
		builder.WriteString(submissionID)
	}
	return n.send(ctx, payload{
		title:    "reelscope - Error",
		message:  builder.String(),
		tags:     []string{"reelscope", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "reelscope - Test",
		message:  "Notification system test",
		tags:     []string{"reelscope", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}
	if strings.HasPrefix(data.click, "http") {
		req.Header.Set("Click", data.click)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyCompleted(context.Context, submission.AnalysisResult, string) error {
	return nil
}
func (noopService) NotifyError(context.Context, string, string, string) error { return nil }
func (noopService) TestNotification(context.Context) error                    { return nil }
