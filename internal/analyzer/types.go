package analyzer

import (
	"fmt"
	"math"
	"strings"

	"reelscope/internal/services"
)

// Analysis is the structured breakdown returned by the analysis backend.
type Analysis struct {
	VideoURI          string            `json:"video_uri"`
	LanguageDetected  string            `json:"language_detected"`
	MetricsEstimated  Metrics           `json:"metrics_estimated"`
	Timeline          []TimelineSegment `json:"timeline"`
	Copywriting       Copywriting       `json:"copywriting"`
	Visual            Visual            `json:"visual"`
	EmotionValue      EmotionValue      `json:"emotion_value"`
	Commerce          Commerce          `json:"commerce"`
	RiskCompliance    RiskCompliance    `json:"risk_compliance"`
	ReplicableFormula ReplicableFormula `json:"replicable_formula"`
	Remake            Remake            `json:"remake"`
	ABTests           []ABTest          `json:"ab_tests"`
	Distribution      Distribution      `json:"distribution"`
	SeriesPlan        []string          `json:"series_plan"`
	Scorecard         Scorecard         `json:"scorecard"`
	NextActions       []string          `json:"next_actions"`
}

// Metrics are model estimates, not measurements.
type Metrics struct {
	Retention3s   float64 `json:"retention_3s"`
	Retention8s   float64 `json:"retention_8s"`
	Retention15s  float64 `json:"retention_15s"`
	Retention30s  float64 `json:"retention_30s"`
	RewatchRate   float64 `json:"rewatch_rate"`
	LikeRate      float64 `json:"like_rate"`
	CommentRate   float64 `json:"comment_rate"`
	ShareRate     float64 `json:"share_rate"`
	SaveRate      float64 `json:"save_rate"`
	FollowConv    float64 `json:"follow_conv"`
	CTR           float64 `json:"ctr"`
	AvgShotLenSec float64 `json:"avg_shot_len_sec"`
	CutsPerMin    float64 `json:"cuts_per_min"`
	BPMEstimate   float64 `json:"bpm_estimate"`
}

type TimelineSegment struct {
	Start        string   `json:"start"`
	End          string   `json:"end"`
	ShotType     string   `json:"shot_type"`
	Function     string   `json:"function"`
	Editing      []string `json:"editing"`
	OnscreenText string   `json:"onscreen_text"`
	Objects      []string `json:"objects"`
	Issues       []string `json:"issues"`
}

type Copywriting struct {
	HookType            []string            `json:"hook_type"`
	SubtitleReadability SubtitleReadability `json:"subtitle_readability"`
	TitleCandidates     []string            `json:"title_candidates"`
}

type SubtitleReadability struct {
	CharsPerSec  float64  `json:"chars_per_sec"`
	Lines        int      `json:"lines"`
	ContrastOK   bool     `json:"contrast_ok"`
	TypoOrFiller []string `json:"typo_or_filler"`
}

type Visual struct {
	CoverEval     CoverEval `json:"cover_eval"`
	ColorTendency string    `json:"color_tendency"`
	FocusPoints   []string  `json:"focus_points"`
}

type CoverEval struct {
	Strengths   []string `json:"strengths"`
	Risks       []string `json:"risks"`
	Suggestions []string `json:"suggestions"`
}

type EmotionValue struct {
	Curve    []EmotionPoint `json:"curve"`
	Triggers []string       `json:"triggers"`
}

type EmotionPoint struct {
	T   string `json:"t"`
	Emo string `json:"emo"`
}

type Commerce struct {
	IsCommerce       bool     `json:"is_commerce"`
	LoopCompleteness float64  `json:"loop_completeness"`
	ProofTypes       []string `json:"proof_types"`
	CTAMoments       []string `json:"cta_moments"`
}

type RiskCompliance struct {
	Flags        []string `json:"flags"`
	Alternatives []string `json:"alternatives"`
}

type ReplicableFormula struct {
	Template   string   `json:"template"`
	Parameters []string `json:"parameters"`
}

type Remake struct {
	FullScript FullScript      `json:"full_script"`
	Variants   []RemakeVariant `json:"variants"`
}

type FullScript struct {
	Shots              []Shot   `json:"shots"`
	MaterialsChecklist []string `json:"materials_checklist"`
}

type Shot struct {
	ID              int      `json:"id"`
	DurationSec     float64  `json:"duration_sec"`
	VisualDirection string   `json:"visual_direction"`
	Voiceover       string   `json:"voiceover"`
	OnscreenText    string   `json:"onscreen_text"`
	Assets          []string `json:"assets"`
	SFXBGM          string   `json:"sfx_bgm"`
}

type RemakeVariant struct {
	Hook         string `json:"hook"`
	ScriptBrief  string `json:"script_brief"`
	WhyItMayWork string `json:"why_it_may_work"`
}

type ABTest struct {
	Hypothesis    string   `json:"hypothesis"`
	TestElements  []string `json:"test_elements"`
	SuccessMetric string   `json:"success_metric"`
	ExpectedLift  string   `json:"expected_lift,omitempty"`
}

type Distribution struct {
	PostTimeSuggestion []string `json:"post_time_suggestion"`
	Tags               []string `json:"tags"`
	PinnedComment      string   `json:"pinned_comment"`
}

type Scorecard struct {
	Hook              float64  `json:"hook"`
	PacingEditing     float64  `json:"pacing_editing"`
	InfoDensity       float64  `json:"info_density"`
	VisualReadability float64  `json:"visual_readability"`
	EmotionPeak       float64  `json:"emotion_peak"`
	ProofTrust        float64  `json:"proof_trust"`
	ShareCommentRemix float64  `json:"share_comment_remix"`
	NicheFitSearch    float64  `json:"niche_fit_search"`
	ComplianceSafety  float64  `json:"compliance_safety"`
	Replicability     float64  `json:"replicability"`
	WeightedTotal     float64  `json:"weighted_total"`
	PriorityFixes     []string `json:"priority_fixes"`
}

// SchemaError reports a response that decoded but is not a usable analysis.
// It matches services.ErrAnalysis.
type SchemaError struct {
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("analysis schema: %s %s", e.Field, e.Reason)
}

func (e *SchemaError) Unwrap() error { return services.ErrAnalysis }

// Validate checks the fields the result mapping depends on.
func (a *Analysis) Validate() error {
	if a == nil {
		return &SchemaError{Field: "analysis", Reason: "is empty"}
	}
	if strings.TrimSpace(a.LanguageDetected) == "" {
		return &SchemaError{Field: "language_detected", Reason: "is required"}
	}
	if len(a.Timeline) == 0 {
		return &SchemaError{Field: "timeline", Reason: "must not be empty"}
	}
	total := a.Scorecard.WeightedTotal
	if math.IsNaN(total) || total < 0 || total > 100 {
		return &SchemaError{Field: "scorecard.weighted_total", Reason: fmt.Sprintf("must be within 0-100, got %v", total)}
	}
	return nil
}
