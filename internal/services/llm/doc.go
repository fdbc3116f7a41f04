// Package llm provides an OpenAI-compatible chat client used by the analyzer.
//
// CompleteVideoJSON sends a system prompt plus a multipart user message (text
// and a video_url part) in JSON response mode and returns the raw payload.
// HealthCheck issues a tiny JSON ping to verify credentials and model.
//
// Every call is a single HTTP attempt. StatusError.Temporary marks 408, 429
// and 5xx responses so the caller's retry policy can decide what to repeat.
// DecodeJSON tolerates code fences and prose around the JSON object.
package llm
