package workflow

import (
	"time"

	"reelscope/internal/staging"
	"reelscope/internal/submission"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running        bool                     `json:"running"`
	StartedAt      time.Time                `json:"started_at,omitzero"`
	InFlight       int                      `json:"in_flight"`
	MaxConcurrent  int                      `json:"max_concurrent"`
	Sessions       int                      `json:"sessions"`
	Streams        int                      `json:"streams"`
	StageCounts    map[submission.Stage]int `json:"stage_counts"`
	LastSubmission string                   `json:"last_submission,omitempty"`
	LastError      string                   `json:"last_error,omitempty"`
	LastJanitor    JanitorSummary           `json:"last_janitor"`
}

// JanitorSummary reports the most recent staging cleanup pass.
type JanitorSummary struct {
	Removed int   `json:"removed"`
	Freed   int64 `json:"freed_bytes"`
	Errors  int   `json:"errors"`
}

func summarizeCleanup(result staging.CleanResult) JanitorSummary {
	return JanitorSummary{Removed: len(result.Removed), Freed: result.Freed, Errors: len(result.Errors)}
}

// Status returns the latest workflow information.
func (m *Manager) Status() StatusSummary {
	m.mu.RLock()
	summary := StatusSummary{
		Running:        m.running,
		StartedAt:      m.startedAt,
		InFlight:       len(m.active),
		MaxConcurrent:  cap(m.slots),
		LastSubmission: m.lastID,
		LastError:      m.lastErr,
		LastJanitor:    summarizeCleanup(m.lastJanitor),
	}
	m.mu.RUnlock()

	summary.Sessions = m.sessions.Len()
	summary.Streams = m.streams.Len()
	summary.StageCounts = m.sessions.Counts()
	return summary
}
