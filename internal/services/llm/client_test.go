package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func completionServer(t *testing.T, choice map[string]any) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]any{"choices": []any{choice}}
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			t.Errorf("encode response: %v", err)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestClientHealthCheck(t *testing.T) {
	server := completionServer(t, map[string]any{
		"message": map[string]any{"content": `{"ok":true}`},
	})
	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestClientHealthCheckCodeFence(t *testing.T) {
	server := completionServer(t, map[string]any{
		"message": map[string]any{"content": "```json\n{\"ok\":true}\n```"},
	})
	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo-model"})
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck returned error: %v", err)
	}
}

func TestClientHealthCheckFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "bad", BaseURL: server.URL, Model: "demo"})
	err := client.HealthCheck(context.Background())
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.Temporary() {
		t.Fatal("401 should not be temporary")
	}
}

func TestClientNotConfigured(t *testing.T) {
	client := NewClient(Config{Model: "demo"})
	if client.Configured() {
		t.Fatal("client without key should not be configured")
	}
	_, err := client.CompleteVideoJSON(context.Background(), VideoPrompt{User: "hi"})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestCompleteVideoJSONSendsMultipartMessage(t *testing.T) {
	var captured struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string          `json:"role"`
			Content json.RawMessage `json:"content"`
		} `json:"messages"`
		ResponseFormat map[string]string `json:"response_format"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test" {
			t.Errorf("unexpected authorization %q", got)
		}
		if got := r.Header.Get("X-Title"); got != "reelscope" {
			t.Errorf("unexpected title %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"content": `{"language_detected":"en"}`}}},
		})
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "vision", Title: "reelscope"})
	content, err := client.CompleteVideoJSON(context.Background(), VideoPrompt{
		System:   "be strict",
		User:     "analyze this",
		VideoURL: "https://cdn.example/videos/abc.mp4",
	})
	if err != nil {
		t.Fatalf("CompleteVideoJSON: %v", err)
	}
	if content != `{"language_detected":"en"}` {
		t.Fatalf("unexpected content %q", content)
	}
	if captured.Model != "vision" || captured.ResponseFormat["type"] != "json_object" {
		t.Fatalf("unexpected request envelope: %+v", captured)
	}
	if len(captured.Messages) != 2 || captured.Messages[0].Role != "system" {
		t.Fatalf("expected system and user messages, got %+v", captured.Messages)
	}
	var parts []contentPart
	if err := json.Unmarshal(captured.Messages[1].Content, &parts); err != nil {
		t.Fatalf("user content should be a part list: %v", err)
	}
	if len(parts) != 2 || parts[0].Text != "analyze this" {
		t.Fatalf("unexpected parts %+v", parts)
	}
	if parts[1].Type != "video_url" || parts[1].VideoURL == nil || parts[1].VideoURL.URL != "https://cdn.example/videos/abc.mp4" {
		t.Fatalf("unexpected video part %+v", parts[1])
	}
}

func TestCompleteVideoJSONToolCallArguments(t *testing.T) {
	server := completionServer(t, map[string]any{
		"finish_reason": "tool_calls",
		"message": map[string]any{
			"content": "",
			"tool_calls": []any{map[string]any{
				"function": map[string]any{"arguments": `{"timeline":[]}`},
			}},
		},
	})
	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo"})
	content, err := client.CompleteVideoJSON(context.Background(), VideoPrompt{User: "go"})
	if err != nil {
		t.Fatalf("CompleteVideoJSON: %v", err)
	}
	if !strings.Contains(content, "timeline") {
		t.Fatalf("expected tool call arguments, got %q", content)
	}
}

func TestCompleteVideoJSONDeltaAndLegacyText(t *testing.T) {
	for name, choice := range map[string]map[string]any{
		"delta":  {"delta": map[string]any{"content": `{"a":1}`}},
		"legacy": {"finish_reason": "stop", "text": `{"a":1}`},
	} {
		t.Run(name, func(t *testing.T) {
			server := completionServer(t, choice)
			client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo"})
			content, err := client.CompleteVideoJSON(context.Background(), VideoPrompt{User: "go"})
			if err != nil {
				t.Fatalf("CompleteVideoJSON: %v", err)
			}
			if content != `{"a":1}` {
				t.Fatalf("unexpected content %q", content)
			}
		})
	}
}

func TestCompleteVideoJSONEmptyContentHasSnippet(t *testing.T) {
	server := completionServer(t, map[string]any{
		"finish_reason": "stop",
		"message":       map[string]any{"content": "", "refusal": "cannot watch"},
	})
	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo"})
	_, err := client.CompleteVideoJSON(context.Background(), VideoPrompt{User: "go"})
	var empty *EmptyContentError
	if !errors.As(err, &empty) {
		t.Fatalf("expected EmptyContentError, got %v", err)
	}
	if empty.Refusal != "cannot watch" || empty.FinishReason != "stop" {
		t.Fatalf("unexpected empty content details %+v", empty)
	}
	if !strings.Contains(err.Error(), "response_snippet=") {
		t.Fatalf("expected snippet in error, got %v", err)
	}
}

func TestClientSingleAttemptOn429(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limited"}`))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "test", BaseURL: server.URL, Model: "demo"})
	_, err := client.CompleteVideoJSON(context.Background(), VideoPrompt{User: "go"})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one call, got %d", calls)
	}
	if !statusErr.Temporary() || statusErr.RetryAfter != 3*time.Second {
		t.Fatalf("unexpected status error %+v", statusErr)
	}
}

func TestDecodeJSONToleratesProse(t *testing.T) {
	var out struct {
		Score int `json:"score"`
	}
	if err := DecodeJSON("Here you go:\n{\"score\": 7}\nThanks", &out); err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	if out.Score != 7 {
		t.Fatalf("expected score 7, got %d", out.Score)
	}
	if err := DecodeJSON("   ", &out); err == nil {
		t.Fatal("expected empty payload error")
	}
	if got := ExtractJSON("```json\n{\"a\":1}\n```"); got != `{"a":1}` {
		t.Fatalf("unexpected extract %q", got)
	}
}
