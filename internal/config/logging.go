package config

import (
	"context"
	"log/slog"
	"strings"
)

// Log logs the resolved settings in a granular way, skipping irrelevant ones
func Log(s *Settings) {
	LogWithLogger(s, slog.Default())
}

// LogWithLogger logs the resolved settings using the provided logger
func LogWithLogger(s *Settings, logger *slog.Logger) {
	ctx := context.Background()
	logger.InfoContext(ctx, "Config: organization", "value", s.Organization)
	logger.InfoContext(ctx, "Config: project", "value", s.Project)
	logger.InfoContext(ctx, "Config: token", "value", maskSecret(s.Token))
	logger.InfoContext(ctx, "Config: base_url", "value", s.BaseURL)
	logger.InfoContext(ctx, "Config: download_dir", "value", s.DownloadDir)
	if s.Branch != "" {
		logger.InfoContext(ctx, "Config: branch", "value", s.Branch)
	}
	logger.InfoContext(ctx, "Config: extensions", "value", strings.Join(s.Extensions, ","))
	logger.InfoContext(ctx, "Config: retry", "value", RetrySettingsLogValue(s.Retry))
	if s.HTTP.RateLimit > 0 {
		logger.InfoContext(ctx, "Config: http.rate_limit", "value", s.HTTP.RateLimit, "burst", s.HTTP.RateBurst)
	}

	logger.InfoContext(ctx, "Config: index.enabled", "value", s.Index.Enabled)
	if s.Index.Enabled {
		logger.InfoContext(ctx, "Config: index.dir", "value", s.Index.Dir)
	}
}

// RetrySettingsLogValue returns a slog.Value for RetrySettings
func RetrySettingsLogValue(r RetrySettings) slog.Value {
	return slog.GroupValue(
		slog.Int("max_retries", r.MaxRetries),
		slog.Duration("backoff_factor", r.BackoffFactor),
		slog.Duration("max_backoff", r.MaxBackoff),
		slog.Any("statuses", r.Statuses),
	)
}

// SettingsLogValue returns a slog.Value for Settings with masked data
func SettingsLogValue(s Settings) slog.Value {
	return slog.GroupValue(
		slog.String("organization", s.Organization),
		slog.String("project", s.Project),
		slog.String("token", maskSecret(s.Token)),
		slog.String("base_url", s.BaseURL),
		slog.String("download_dir", s.DownloadDir),
		slog.Any("retry", RetrySettingsLogValue(s.Retry)),
	)
}

// ParseLevel maps a log level name to a slog.Level. Unknown names mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	return "****"
}
