package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable the tool reads.
const EnvPrefix = "DEVOPS_RAG"

// DefaultExtensions is the crawl allow-list used when none is configured.
var DefaultExtensions = []string{"md", "txt", "py", "cs", "ts", "js", "java", "go", "ps1", "sql", "yaml", "yml", "json"}

// HTTPSettings configuration for outbound requests
type HTTPSettings struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"` // requests per second, 0 disables
	RateBurst int           `mapstructure:"rate_burst"`
}

// RetrySettings configuration for retries on transient server errors
type RetrySettings struct {
	MaxRetries    int           `mapstructure:"max_retries"`
	BackoffFactor time.Duration `mapstructure:"backoff_factor"`
	MaxBackoff    time.Duration `mapstructure:"max_backoff"`
	Statuses      []int         `mapstructure:"statuses"`
}

// IndexSettings configuration for the search index built by ingest
type IndexSettings struct {
	Enabled     bool   `mapstructure:"enabled"`
	Dir         string `mapstructure:"dir"`
	MaxResults  int    `mapstructure:"max_results"`
	MaxFileSize int64  `mapstructure:"max_file_size"`
}

// Settings application settings
type Settings struct {
	Organization string        `mapstructure:"organization"`
	Project      string        `mapstructure:"project"`
	Token        string        `mapstructure:"token"`
	BaseURL      string        `mapstructure:"base_url"`
	DownloadDir  string        `mapstructure:"download_dir"`
	Branch       string        `mapstructure:"branch"`
	Extensions   []string      `mapstructure:"extensions"`
	Clean        bool          `mapstructure:"clean"`
	LogLevel     string        `mapstructure:"log_level"`
	HTTP         HTTPSettings  `mapstructure:"http"`
	Retry        RetrySettings `mapstructure:"retry"`
	Index        IndexSettings `mapstructure:"index"`
}

// keyFlags maps settings keys to the CLI flags that override them.
var keyFlags = map[string]string{
	"organization":         "organization",
	"project":              "project",
	"token":                "token",
	"base_url":             "base-url",
	"download_dir":         "download-dir",
	"branch":               "branch",
	"extensions":           "extensions",
	"clean":                "clean",
	"log_level":            "log-level",
	"http.timeout":         "http-timeout",
	"http.rate_limit":      "http-rate-limit",
	"http.rate_burst":      "http-rate-burst",
	"retry.max_retries":    "retry-max",
	"retry.backoff_factor": "retry-backoff-factor",
	"retry.max_backoff":    "retry-max-backoff",
	"retry.statuses":       "retry-statuses",
	"index.enabled":        "index-enabled",
	"index.dir":            "index-dir",
	"index.max_results":    "index-max-results",
	"index.max_file_size":  "index-max-file-size",
}

// LoadSettings loads settings from environment variables and optional .env file
func LoadSettings() (*Settings, error) {
	return LoadSettingsWithFlags(nil)
}

// LoadSettingsWithFlags loads settings with optional CLI flag overrides.
// Priority: CLI flags > environment variables > .env file > defaults.
// If flags is nil, only env vars and defaults are used.
func LoadSettingsWithFlags(flags *pflag.FlagSet) (*Settings, error) {
	v := viper.New()

	v.SetDefault("base_url", "https://dev.azure.com")
	v.SetDefault("download_dir", filepath.Join(defaultHomeDir(), "repos"))
	v.SetDefault("extensions", DefaultExtensions)
	v.SetDefault("clean", false)
	v.SetDefault("log_level", "info")

	v.SetDefault("http.timeout", 5*time.Minute)
	v.SetDefault("http.rate_limit", 0.0)
	v.SetDefault("http.rate_burst", 1)

	v.SetDefault("retry.max_retries", 5)
	v.SetDefault("retry.backoff_factor", time.Second)
	v.SetDefault("retry.max_backoff", 2*time.Minute)
	v.SetDefault("retry.statuses", []int{500, 502, 503, 504})

	v.SetDefault("index.enabled", true)
	v.SetDefault("index.dir", filepath.Join(defaultHomeDir(), "indexes"))
	v.SetDefault("index.max_results", 20)
	v.SetDefault("index.max_file_size", int64(256*1024)) // 256KB

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key := range keyFlags {
		_ = v.BindEnv(key, envName(key))
	}
	// The Azure CLI devops extension reads its PAT from this variable.
	_ = v.BindEnv("token", envName("token"), "AZURE_DEVOPS_EXT_PAT")

	if flags != nil {
		for key, flag := range keyFlags {
			if f := flags.Lookup(flag); f != nil {
				_ = v.BindPFlag(key, f)
			}
		}
	}

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // Ignore error if .env doesn't exist

	var settings Settings
	if err := v.Unmarshal(&settings); err != nil {
		return nil, err
	}

	settings.Extensions = normalizeExtensions(settings.Extensions)
	settings.DownloadDir = expandHomeDir(settings.DownloadDir)
	settings.Index.Dir = expandHomeDir(settings.Index.Dir)
	settings.LogLevel = strings.ToLower(strings.TrimSpace(settings.LogLevel))

	return &settings, nil
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// normalizeExtensions trims whitespace and a leading dot, dropping empty entries.
// Case is preserved since extension matching is exact.
func normalizeExtensions(exts []string) []string {
	result := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
		if ext != "" {
			result = append(result, ext)
		}
	}
	return result
}

// defaultHomeDir returns the default state directory
func defaultHomeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".devops-rag"
	}
	return filepath.Join(home, ".devops-rag")
}

// expandHomeDir expands ~ to the user's home directory
func expandHomeDir(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return home
	}
	return path
}

// ValidateSettings checks settings that every command depends on.
func ValidateSettings(s *Settings) error {
	switch s.LogLevel {
	case "debug", "info", "warn", "error", "":
		// valid
	default:
		return errors.New("log-level must be one of debug, info, warn, error, got: " + s.LogLevel)
	}

	if s.DownloadDir == "" {
		return errors.New("download-dir cannot be empty")
	}

	if s.HTTP.Timeout <= 0 {
		return errors.New("http-timeout must be positive")
	}
	if s.HTTP.RateLimit < 0 {
		return errors.New("http-rate-limit cannot be negative")
	}
	if s.HTTP.RateLimit > 0 && s.HTTP.RateBurst <= 0 {
		return errors.New("http-rate-burst must be positive when rate limiting is enabled")
	}

	if s.Retry.MaxRetries < 0 {
		return errors.New("retry-max cannot be negative")
	}
	if s.Retry.BackoffFactor < 0 || s.Retry.MaxBackoff < 0 {
		return errors.New("retry backoff durations cannot be negative")
	}
	for _, code := range s.Retry.Statuses {
		if code < 100 || code > 599 {
			return errors.New("retry-statuses contains an invalid HTTP status: " + strconv.Itoa(code))
		}
	}

	return validateIndexSettings(&s.Index)
}

// validateIndexSettings validates the index configuration
func validateIndexSettings(i *IndexSettings) error {
	if !i.Enabled {
		return nil // No validation needed when disabled
	}

	if i.Dir == "" {
		return errors.New("index-dir cannot be empty")
	}

	if i.MaxResults <= 0 {
		return errors.New("index-max-results must be positive")
	}

	if i.MaxFileSize <= 0 {
		return errors.New("index-max-file-size must be positive")
	}

	return nil
}

// ValidateConnection checks the settings that remote commands need.
func ValidateConnection(s *Settings) error {
	var missing []string
	if strings.TrimSpace(s.Organization) == "" {
		missing = append(missing, "organization")
	}
	if strings.TrimSpace(s.Project) == "" {
		missing = append(missing, "project")
	}
	if s.Token == "" {
		missing = append(missing, "token")
	}
	if len(missing) > 0 {
		return errors.New("missing required settings: " + strings.Join(missing, ", ") +
			" (set flags or " + EnvPrefix + "_* environment variables)")
	}
	return nil
}
