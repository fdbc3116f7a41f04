package analyzer

import (
	_ "embed"
	"strings"

	"reelscope/internal/config"
	"reelscope/internal/gate"
)

//go:embed prompt.md
var promptTemplate string

const (
	systemPrompt = "You analyze short-form videos and answer with strict JSON only."
	jsonReminder = "\n\nImportant: follow the JSON shape exactly and give every field a value."
)

// Options is caller-supplied context that steers the analysis. Empty fields
// fall back to configured or built-in defaults.
type Options struct {
	AccountNiche    string `json:"account_niche,omitempty"`
	Goal            string `json:"goal,omitempty"`
	TargetPersona   string `json:"target_persona,omitempty"`
	ProductInfo     string `json:"product_info,omitempty"`
	BrandTone       string `json:"brand_tone,omitempty"`
	ComplianceNotes string `json:"compliance_notes,omitempty"`
	TranscriptText  string `json:"transcript_text,omitempty"`
	CommentsSample  string `json:"comments_sample,omitempty"`
	PostMeta        string `json:"post_meta,omitempty"`
}

// builtinOptions fill anything neither the caller nor configuration set.
var builtinOptions = Options{
	AccountNiche:    "general short-form",
	Goal:            "growth / conversion / brand",
	TargetPersona:   "18-35 short-video core audience",
	ProductInfo:     "no specific product",
	BrandTone:       "professional, fun, youthful",
	ComplianceNotes: "follow platform rules, no violations",
	TranscriptText:  "transcribe automatically with high accuracy",
	CommentsSample:  "no comment data",
	PostMeta:        "no post metadata",
}

// DefaultOptions returns the prompt context configured for the account.
func DefaultOptions(cfg *config.Config) Options {
	opts := builtinOptions
	if cfg == nil {
		return opts
	}
	return Options{
		AccountNiche:  cfg.Analyzer.AccountNiche,
		Goal:          cfg.Analyzer.Goal,
		TargetPersona: cfg.Analyzer.TargetPersona,
		BrandTone:     cfg.Analyzer.BrandTone,
	}.Merge(opts)
}

// Merge returns o with empty fields taken from fallback.
func (o Options) Merge(fallback Options) Options {
	pick := func(value, def string) string {
		if v := strings.TrimSpace(value); v != "" {
			return v
		}
		return def
	}
	return Options{
		AccountNiche:    pick(o.AccountNiche, fallback.AccountNiche),
		Goal:            pick(o.Goal, fallback.Goal),
		TargetPersona:   pick(o.TargetPersona, fallback.TargetPersona),
		ProductInfo:     pick(o.ProductInfo, fallback.ProductInfo),
		BrandTone:       pick(o.BrandTone, fallback.BrandTone),
		ComplianceNotes: pick(o.ComplianceNotes, fallback.ComplianceNotes),
		TranscriptText:  pick(o.TranscriptText, fallback.TranscriptText),
		CommentsSample:  pick(o.CommentsSample, fallback.CommentsSample),
		PostMeta:        pick(o.PostMeta, fallback.PostMeta),
	}
}

// BuildPrompt fills the analysis template for one video.
func BuildPrompt(videoURI string, durationSeconds float64, opts Options) string {
	opts = opts.Merge(builtinOptions)
	duration := "unknown"
	if durationSeconds > 0 {
		duration = gate.FormatDuration(durationSeconds)
	}
	replacer := strings.NewReplacer(
		"<VIDEO_URI>", videoURI,
		"<VIDEO_DURATION>", duration,
		"<ACCOUNT_NICHE>", opts.AccountNiche,
		"<GOAL>", opts.Goal,
		"<TARGET_PERSONA>", opts.TargetPersona,
		"<PRODUCT_INFO>", opts.ProductInfo,
		"<BRAND_TONE>", opts.BrandTone,
		"<COMPLIANCE_NOTES>", opts.ComplianceNotes,
		"<TRANSCRIPT_TEXT>", opts.TranscriptText,
		"<COMMENTS_SAMPLE>", opts.CommentsSample,
		"<POST_META>", opts.PostMeta,
	)
	return replacer.Replace(promptTemplate) + jsonReminder
}
