package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeServer()
	c.normalizeResolver()
	c.normalizeRetriever()
	if err := c.normalizeStore(); err != nil {
		return err
	}
	c.normalizeAnalyzer()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		c.Paths.StagingDir = defaultStagingDir
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeServer() {
	c.Server.APIBind = strings.TrimSpace(c.Server.APIBind)
	if c.Server.APIBind == "" {
		c.Server.APIBind = defaultAPIBind
	}
	c.Server.APIToken = strings.TrimSpace(c.Server.APIToken)
	if c.Server.APIToken == "" {
		if value, ok := os.LookupEnv("REELSCOPE_API_TOKEN"); ok {
			c.Server.APIToken = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeResolver() {
	c.Resolver.LookupURL = strings.TrimSpace(c.Resolver.LookupURL)
	if c.Resolver.LookupURL == "" {
		c.Resolver.LookupURL = defaultLookupURL
	}
	c.Resolver.LookupKey = strings.TrimSpace(c.Resolver.LookupKey)
	if value, ok := os.LookupEnv("SNAPANY_KEY"); ok && strings.TrimSpace(value) != "" {
		c.Resolver.LookupKey = strings.TrimSpace(value)
	}
	if c.Resolver.LookupKey == "" {
		c.Resolver.LookupKey = defaultLookupKey
	}
	c.Resolver.UserAgent = strings.TrimSpace(c.Resolver.UserAgent)
	if c.Resolver.UserAgent == "" {
		c.Resolver.UserAgent = defaultMobileUserAgent
	}
	if c.Resolver.TimeoutSeconds <= 0 {
		c.Resolver.TimeoutSeconds = defaultResolverTimeoutSeconds
	}
}

func (c *Config) normalizeRetriever() {
	c.Retriever.UserAgent = strings.TrimSpace(c.Retriever.UserAgent)
	if c.Retriever.UserAgent == "" {
		c.Retriever.UserAgent = defaultMobileUserAgent
	}
	c.Retriever.Referer = strings.TrimSpace(c.Retriever.Referer)
	if c.Retriever.BackoffMultiplier <= 0 {
		c.Retriever.BackoffMultiplier = defaultRetrieverMultiplier
	}
	if c.Retriever.MaxDelayMillis <= 0 {
		c.Retriever.MaxDelayMillis = defaultRetrieverMaxDelayMillis
	}
}

func (c *Config) normalizeStore() error {
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	if c.Store.Backend == "" {
		c.Store.Backend = StoreBackendFilesystem
	}
	var err error
	if strings.TrimSpace(c.Store.Dir) == "" {
		c.Store.Dir = defaultStoreDir
	}
	if c.Store.Dir, err = expandPath(c.Store.Dir); err != nil {
		return fmt.Errorf("store.dir: %w", err)
	}
	c.Store.KeyPrefix = strings.Trim(strings.TrimSpace(c.Store.KeyPrefix), "/")
	if c.Store.KeyPrefix == "" {
		c.Store.KeyPrefix = defaultStoreKeyPrefix
	}
	c.Store.PublicBaseURL = strings.TrimRight(strings.TrimSpace(c.Store.PublicBaseURL), "/")
	c.Store.S3Bucket = strings.TrimSpace(c.Store.S3Bucket)
	c.Store.S3Endpoint = strings.TrimRight(strings.TrimSpace(c.Store.S3Endpoint), "/")
	c.Store.S3Region = strings.TrimSpace(c.Store.S3Region)
	if c.Store.S3Region == "" {
		if value, ok := os.LookupEnv("AWS_REGION"); ok && strings.TrimSpace(value) != "" {
			c.Store.S3Region = strings.TrimSpace(value)
		} else {
			c.Store.S3Region = defaultS3Region
		}
	}
	c.Store.S3AccessKey = strings.TrimSpace(c.Store.S3AccessKey)
	if c.Store.S3AccessKey == "" {
		if value, ok := os.LookupEnv("AWS_ACCESS_KEY_ID"); ok {
			c.Store.S3AccessKey = strings.TrimSpace(value)
		}
	}
	c.Store.S3SecretKey = strings.TrimSpace(c.Store.S3SecretKey)
	if c.Store.S3SecretKey == "" {
		if value, ok := os.LookupEnv("AWS_SECRET_ACCESS_KEY"); ok {
			c.Store.S3SecretKey = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeAnalyzer() {
	c.Analyzer.BaseURL = strings.TrimSpace(c.Analyzer.BaseURL)
	if c.Analyzer.BaseURL == "" {
		c.Analyzer.BaseURL = defaultAnalyzerBaseURL
	}
	c.Analyzer.Model = strings.TrimSpace(c.Analyzer.Model)
	if c.Analyzer.Model == "" {
		c.Analyzer.Model = defaultAnalyzerModel
	}
	c.Analyzer.Referer = strings.TrimSpace(c.Analyzer.Referer)
	if c.Analyzer.Referer == "" {
		c.Analyzer.Referer = defaultAnalyzerReferer
	}
	c.Analyzer.Title = strings.TrimSpace(c.Analyzer.Title)
	if c.Analyzer.Title == "" {
		c.Analyzer.Title = defaultAnalyzerTitle
	}
	if c.Analyzer.TimeoutSeconds <= 0 {
		c.Analyzer.TimeoutSeconds = defaultAnalyzerTimeoutSeconds
	}
	c.Analyzer.APIKey = strings.TrimSpace(c.Analyzer.APIKey)
	if c.Analyzer.APIKey == "" {
		if value, ok := os.LookupEnv("ANALYZER_API_KEY"); ok {
			c.Analyzer.APIKey = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv("OPENROUTER_API_KEY"); ok {
			c.Analyzer.APIKey = strings.TrimSpace(value)
		}
	}
	c.Analyzer.AccountNiche = defaultIfBlank(c.Analyzer.AccountNiche, defaultAccountNiche)
	c.Analyzer.Goal = defaultIfBlank(c.Analyzer.Goal, defaultGoal)
	c.Analyzer.TargetPersona = defaultIfBlank(c.Analyzer.TargetPersona, defaultTargetPersona)
	c.Analyzer.BrandTone = defaultIfBlank(c.Analyzer.BrandTone, defaultBrandTone)
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("REELSCOPE_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func defaultIfBlank(value, fallback string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	return value
}
