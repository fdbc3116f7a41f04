package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	LogDir     string `toml:"log_dir"`
	DataDir    string `toml:"data_dir"`
}

// Server contains the daemon HTTP API settings.
type Server struct {
	APIBind    string `toml:"api_bind"`
	APIToken   string `toml:"api_token"`
	ServeMedia bool   `toml:"serve_media"`
}

// Resolver contains settings for turning share text into a media locator.
type Resolver struct {
	LookupURL      string `toml:"lookup_url"`
	LookupKey      string `toml:"lookup_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	UserAgent      string `toml:"user_agent"`
	PageFallback   bool   `toml:"page_fallback"`
	AllowDirect    bool   `toml:"allow_direct"`
}

// Retriever contains download settings.
type Retriever struct {
	MaxAttempts       int     `toml:"max_attempts"`
	BaseDelayMillis   int     `toml:"base_delay_ms"`
	MaxDelayMillis    int     `toml:"max_delay_ms"`
	BackoffMultiplier float64 `toml:"backoff_multiplier"`
	TimeoutSeconds    int     `toml:"timeout_seconds"`
	MaxSizeMB         int     `toml:"max_size_mb"`
	UserAgent         string  `toml:"user_agent"`
	Referer           string  `toml:"referer"`
}

// Store contains content-addressed storage settings.
type Store struct {
	Backend        string `toml:"backend"`
	Dir            string `toml:"dir"`
	KeyPrefix      string `toml:"key_prefix"`
	PublicBaseURL  string `toml:"public_base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	S3Bucket       string `toml:"s3_bucket"`
	S3Region       string `toml:"s3_region"`
	S3Endpoint     string `toml:"s3_endpoint"`
	S3AccessKey    string `toml:"s3_access_key"`
	S3SecretKey    string `toml:"s3_secret_key"`
	S3PublicACL    bool   `toml:"s3_public_acl"`
}

// Gate contains the duration policy for analysis dispatch.
type Gate struct {
	LimitMinutes int `toml:"limit_minutes"`
}

// Analyzer contains the analysis backend connection and retry settings.
type Analyzer struct {
	APIKey            string `toml:"api_key"`
	BaseURL           string `toml:"base_url"`
	Model             string `toml:"model"`
	Referer           string `toml:"referer"`
	Title             string `toml:"title"`
	TimeoutSeconds    int    `toml:"timeout_seconds"`
	MaxAttempts       int    `toml:"max_attempts"`
	RetryDelaySeconds int    `toml:"retry_delay_seconds"`
	AccountNiche      string `toml:"account_niche"`
	Goal              string `toml:"goal"`
	TargetPersona     string `toml:"target_persona"`
	BrandTone         string `toml:"brand_tone"`
}

// Sessions contains the in-memory session table policy.
type Sessions struct {
	TTLMinutes   int `toml:"ttl_minutes"`
	SweepMinutes int `toml:"sweep_minutes"`
}

// Workflow contains submission manager settings.
type Workflow struct {
	MaxConcurrent        int `toml:"max_concurrent"`
	StagingMaxAgeHours   int `toml:"staging_max_age_hours"`
	JanitorIntervalMins  int `toml:"janitor_interval_minutes"`
	ShutdownGraceSeconds int `toml:"shutdown_grace_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Completed      bool   `toml:"completed"`
	Gated          bool   `toml:"gated"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for reelscope.
//
// Configuration sections by subsystem:
//   - Paths: staging, log, and data directories
//   - Server: daemon API bind address and token
//   - Resolver: extract API and page fallback
//   - Retriever: download retry, size, and header policy
//   - Store: content-addressed backend (filesystem or s3)
//   - Gate: analysis duration limit
//   - Analyzer: analysis backend and prompt context defaults
//   - Sessions: in-memory session TTL and sweep interval
//   - Workflow: concurrency and staging janitor
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Server        Server        `toml:"server"`
	Resolver      Resolver      `toml:"resolver"`
	Retriever     Retriever     `toml:"retriever"`
	Store         Store         `toml:"store"`
	Gate          Gate          `toml:"gate"`
	Analyzer      Analyzer      `toml:"analyzer"`
	Sessions      Sessions      `toml:"sessions"`
	Workflow      Workflow      `toml:"workflow"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("reelscope.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.StagingDir, c.Paths.LogDir, c.Paths.DataDir}
	if c.Store.Backend == StoreBackendFilesystem {
		dirs = append(dirs, c.Store.Dir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// FFprobeBinary returns the ffprobe executable name used for duration probing.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// CatalogPath returns the SQLite catalog location used by the filesystem store.
func (c *Config) CatalogPath() string {
	return filepath.Join(c.Paths.DataDir, "catalog.db")
}

// LockPath returns the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "reelscoped.lock")
}

// PIDPath returns the file the daemon writes its process id to.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.DataDir, "reelscoped.pid")
}

// APIBaseURL returns the base URL clients use to reach the daemon API.
func (c *Config) APIBaseURL() string {
	bind := strings.TrimSpace(c.Server.APIBind)
	if strings.HasPrefix(bind, "http://") || strings.HasPrefix(bind, "https://") {
		return strings.TrimRight(bind, "/")
	}
	if rest, ok := strings.CutPrefix(bind, "0.0.0.0"); ok {
		bind = rest
	}
	if strings.HasPrefix(bind, ":") {
		bind = "127.0.0.1" + bind
	}
	return "http://" + bind
}

// SessionTTL returns the idle eviction window for session entries.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Sessions.TTLMinutes) * time.Minute
}

// SessionSweepInterval returns how often expired sessions are swept.
func (c *Config) SessionSweepInterval() time.Duration {
	return time.Duration(c.Sessions.SweepMinutes) * time.Minute
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
