package submission

import (
	"encoding/json"
	"time"

	"reelscope/internal/services"
)

// Submission is one caller request. It is immutable apart from UpdatedAt.
type Submission struct {
	ID        string    `json:"id"`
	RawInput  string    `json:"raw_input"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Metadata is best-effort information about the source video.
type Metadata struct {
	Title           string  `json:"title,omitempty"`
	Author          string  `json:"author,omitempty"`
	VideoID         string  `json:"video_id,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}

// VideoInfo describes a stored video.
type VideoInfo struct {
	ID              string    `json:"id"`
	OriginalURL     string    `json:"original_url"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	DurationSeconds float64   `json:"duration_seconds"`
	StoredAt        time.Time `json:"stored_at"`
	Address         string    `json:"address"`
	Key             string    `json:"key"`
	PublicURL       string    `json:"public_url"`
	SizeBytes       int64     `json:"size_bytes"`
	IsDuplicate     bool      `json:"is_duplicate"`
}

// Variant distinguishes real analysis from a fallback result.
type Variant string

const (
	VariantGenuine  Variant = "genuine"
	VariantDegraded Variant = "degraded"
)

// Reasons a result is degraded.
const (
	DegradedGated        = "gated"
	DegradedExhausted    = "analysis_failed"
	DegradedUnconfigured = "analyzer_unconfigured"
	DegradedCanceled     = "canceled"
)

// Insights is the condensed view of an analysis.
type Insights struct {
	Hooks             []string `json:"hooks"`
	VisualElements    []string `json:"visual_elements"`
	AudioAnalysis     string   `json:"audio_analysis"`
	Pacing            string   `json:"pacing"`
	EngagementTactics []string `json:"engagement_tactics"`
	ViralFactors      []string `json:"viral_factors"`
}

// AnalysisResult is the outcome of the analysis step. A degraded result
// never carries Analysis.
type AnalysisResult struct {
	Variant         Variant         `json:"variant"`
	VideoInfo       VideoInfo       `json:"video_info"`
	Insights        Insights        `json:"insights"`
	Recommendations []string        `json:"recommendations"`
	Analysis        json.RawMessage `json:"analysis,omitempty"`
	DegradedReason  string          `json:"degraded_reason,omitempty"`
}

// Degraded reports whether r is a fallback result.
func (r *AnalysisResult) Degraded() bool {
	return r != nil && r.Variant == VariantDegraded
}

// State is the last-known view of a submission.
type State struct {
	ID              string             `json:"id"`
	RawInput        string             `json:"raw_input,omitempty"`
	Stage           Stage              `json:"stage"`
	ProgressPercent int                `json:"progress"`
	MediaLocator    string             `json:"media_locator,omitempty"`
	Metadata        *Metadata          `json:"metadata,omitempty"`
	StoredAddress   string             `json:"stored_address,omitempty"`
	VideoInfo       *VideoInfo         `json:"video_info,omitempty"`
	AnalysisResult  *AnalysisResult    `json:"analysis_result,omitempty"`
	Warning         string             `json:"warning,omitempty"`
	ErrorMessage    string             `json:"error,omitempty"`
	ErrorCode       services.ErrorCode `json:"error_code,omitempty"`
	LastSeq         uint64             `json:"last_seq"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// NewState returns the idle state for sub.
func NewState(sub Submission) State {
	return State{
		ID:        sub.ID,
		RawInput:  sub.RawInput,
		Stage:     StageIdle,
		CreatedAt: sub.CreatedAt,
		UpdatedAt: sub.UpdatedAt,
	}
}

// Event is one progress update. Fields other than Seq, Stage and Progress
// are set only when the update carries them.
type Event struct {
	Seq           uint64             `json:"seq"`
	SubmissionID  string             `json:"submission_id"`
	Stage         Stage              `json:"stage"`
	Progress      int                `json:"progress"`
	ParsedLocator string             `json:"parsed_locator,omitempty"`
	Metadata      *Metadata          `json:"metadata,omitempty"`
	VideoInfo     *VideoInfo         `json:"video_info,omitempty"`
	Result        *AnalysisResult    `json:"result,omitempty"`
	Warning       string             `json:"warning,omitempty"`
	Error         string             `json:"error,omitempty"`
	ErrorCode     services.ErrorCode `json:"error_code,omitempty"`
	Downloaded    int64              `json:"downloaded,omitempty"`
	Total         int64              `json:"total,omitempty"`
	Timestamp     time.Time          `json:"timestamp"`
}

// Terminal reports whether e ends its stream.
func (e Event) Terminal() bool {
	return e.Stage.Terminal()
}

// Apply folds e into s. Events for a stage s may not move to are ignored,
// so replaying a stream out of order cannot move a state backwards.
func (s *State) Apply(e Event) bool {
	if e.Seq != 0 && e.Seq <= s.LastSeq {
		return false
	}
	if !CanTransition(s.Stage, e.Stage) {
		return false
	}
	if e.Stage != s.Stage {
		s.ProgressPercent = 0
	}
	s.Stage = e.Stage
	if e.Progress > s.ProgressPercent || e.Stage.Terminal() {
		s.ProgressPercent = e.Progress
	}
	if e.ParsedLocator != "" {
		s.MediaLocator = e.ParsedLocator
	}
	if e.Metadata != nil {
		md := *e.Metadata
		s.Metadata = &md
	}
	if e.VideoInfo != nil {
		info := *e.VideoInfo
		s.VideoInfo = &info
		s.StoredAddress = info.Address
	}
	if e.Result != nil {
		s.AnalysisResult = e.Result
	}
	if e.Warning != "" {
		s.Warning = e.Warning
	}
	if e.Error != "" {
		s.ErrorMessage = e.Error
		s.ErrorCode = e.ErrorCode
	}
	if e.Seq != 0 {
		s.LastSeq = e.Seq
	}
	if !e.Timestamp.IsZero() {
		s.UpdatedAt = e.Timestamp
	}
	return true
}
