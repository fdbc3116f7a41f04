package config

// Store backends.
const (
	StoreBackendFilesystem = "filesystem"
	StoreBackendS3         = "s3"
)

const (
	defaultConfigPath               = "~/.config/reelscope/config.toml"
	defaultStagingDir               = "~/.local/share/reelscope/staging"
	defaultLogDir                   = "~/.local/share/reelscope/logs"
	defaultDataDir                  = "~/.local/share/reelscope"
	defaultStoreDir                 = "~/.local/share/reelscope/objects"
	defaultLogRetentionDays         = 30
	defaultLogFormat                = "console"
	defaultLogLevel                 = "info"
	defaultAPIBind                  = "127.0.0.1:7489"
	defaultLookupURL                = "https://api.snapany.com/v1/extract"
	defaultLookupKey                = "6HTugjCXxR"
	defaultResolverTimeoutSeconds   = 30
	defaultMobileUserAgent          = "Mozilla/5.0 (iPhone; CPU iPhone OS 16_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.6 Mobile/15E148 Safari/604.1"
	defaultRetrieverReferer         = "https://www.douyin.com/"
	defaultRetrieverMaxAttempts     = 3
	defaultRetrieverBaseDelayMillis = 1000
	defaultRetrieverMaxDelayMillis  = 30000
	defaultRetrieverMultiplier      = 2.0
	defaultRetrieverTimeoutSeconds  = 300
	defaultRetrieverMaxSizeMB       = 500
	defaultStoreKeyPrefix           = "videos"
	defaultStoreTimeoutSeconds      = 120
	defaultS3Region                 = "us-east-1"
	defaultGateLimitMinutes         = 5
	defaultAnalyzerBaseURL          = "https://openrouter.ai/api/v1/chat/completions"
	defaultAnalyzerModel            = "google/gemini-2.5-flash"
	defaultAnalyzerReferer          = "https://github.com/reelscope/reelscope"
	defaultAnalyzerTitle            = "reelscope analyzer"
	defaultAnalyzerTimeoutSeconds   = 300
	defaultAnalyzerMaxAttempts      = 3
	defaultAnalyzerRetryDelay       = 2
	defaultAccountNiche             = "general short-form"
	defaultGoal                     = "growth / conversion / brand"
	defaultTargetPersona            = "18-35 short-video core audience"
	defaultBrandTone                = "professional, fun, youthful"
	defaultSessionTTLMinutes        = 30
	defaultSessionSweepMinutes      = 5
	defaultMaxConcurrent            = 4
	defaultStagingMaxAgeHours       = 24
	defaultJanitorIntervalMinutes   = 60
	defaultShutdownGraceSeconds     = 30
	defaultNotifyRequestTimeout     = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			LogDir:     defaultLogDir,
			DataDir:    defaultDataDir,
		},
		Server: Server{
			APIBind: defaultAPIBind,
		},
		Resolver: Resolver{
			LookupURL:      defaultLookupURL,
			LookupKey:      defaultLookupKey,
			TimeoutSeconds: defaultResolverTimeoutSeconds,
			UserAgent:      defaultMobileUserAgent,
			PageFallback:   true,
		},
		Retriever: Retriever{
			MaxAttempts:       defaultRetrieverMaxAttempts,
			BaseDelayMillis:   defaultRetrieverBaseDelayMillis,
			MaxDelayMillis:    defaultRetrieverMaxDelayMillis,
			BackoffMultiplier: defaultRetrieverMultiplier,
			TimeoutSeconds:    defaultRetrieverTimeoutSeconds,
			MaxSizeMB:         defaultRetrieverMaxSizeMB,
			UserAgent:         defaultMobileUserAgent,
			Referer:           defaultRetrieverReferer,
		},
		Store: Store{
			Backend:        StoreBackendFilesystem,
			Dir:            defaultStoreDir,
			KeyPrefix:      defaultStoreKeyPrefix,
			TimeoutSeconds: defaultStoreTimeoutSeconds,
			S3Region:       defaultS3Region,
			S3PublicACL:    true,
		},
		Gate: Gate{
			LimitMinutes: defaultGateLimitMinutes,
		},
		Analyzer: Analyzer{
			BaseURL:           defaultAnalyzerBaseURL,
			Model:             defaultAnalyzerModel,
			Referer:           defaultAnalyzerReferer,
			Title:             defaultAnalyzerTitle,
			TimeoutSeconds:    defaultAnalyzerTimeoutSeconds,
			MaxAttempts:       defaultAnalyzerMaxAttempts,
			RetryDelaySeconds: defaultAnalyzerRetryDelay,
			AccountNiche:      defaultAccountNiche,
			Goal:              defaultGoal,
			TargetPersona:     defaultTargetPersona,
			BrandTone:         defaultBrandTone,
		},
		Sessions: Sessions{
			TTLMinutes:   defaultSessionTTLMinutes,
			SweepMinutes: defaultSessionSweepMinutes,
		},
		Workflow: Workflow{
			MaxConcurrent:        defaultMaxConcurrent,
			StagingMaxAgeHours:   defaultStagingMaxAgeHours,
			JanitorIntervalMins:  defaultJanitorIntervalMinutes,
			ShutdownGraceSeconds: defaultShutdownGraceSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Completed:      true,
			Gated:          true,
			Errors:         true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
