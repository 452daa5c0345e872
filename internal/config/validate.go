package config

import (
	"fmt"
	"net/url"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if err := validateEndpoint("wikipedia.api_url", cfg.Wikipedia.APIURL); err != nil {
		return err
	}
	if err := validateEndpoint("wikipedia.auth_url", cfg.Wikipedia.AuthURL); err != nil {
		return err
	}
	if cfg.Wikipedia.UserAgent == "" {
		return fmt.Errorf("wikipedia.user_agent must not be empty")
	}
	if cfg.Wikipedia.RequestTimeout <= 0 {
		return fmt.Errorf("wikipedia.request_timeout must be > 0")
	}

	if cfg.RateLimit.Calls < 1 {
		return fmt.Errorf("rate_limit.calls must be >= 1, got %d", cfg.RateLimit.Calls)
	}
	if cfg.RateLimit.Period <= 0 {
		return fmt.Errorf("rate_limit.period must be > 0")
	}

	if cfg.Collector.PageTitle == "" {
		return fmt.Errorf("collector.page_title must not be empty")
	}
	if cfg.Collector.Workers < 1 {
		return fmt.Errorf("collector.workers must be >= 1, got %d", cfg.Collector.Workers)
	}
	if cfg.Collector.Workers > 100 {
		return fmt.Errorf("collector.workers must be <= 100, got %d", cfg.Collector.Workers)
	}

	if cfg.Debug.KeepHTML && cfg.Debug.HTMLDir == "" {
		return fmt.Errorf("debug.html_dir must be set when debug.keep_html is enabled")
	}

	switch cfg.Storage.Type {
	case "sqlite":
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage.path must be set for sqlite storage")
		}
	case "mongodb":
		if cfg.Storage.MongoURI == "" || cfg.Storage.MongoDatabase == "" {
			return fmt.Errorf("storage.mongo_uri and storage.mongo_database must be set for mongodb storage")
		}
	default:
		return fmt.Errorf("storage.type %q is not supported (valid: sqlite, mongodb)", cfg.Storage.Type)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be 1-65535, got %d", cfg.Metrics.Port)
		}
	}

	return nil
}

// ValidateCredentials checks that the OAuth client credentials are present.
// Only commands that talk to the content API need them.
func ValidateCredentials(cfg *Config) error {
	if cfg.Wikipedia.ClientID == "" || cfg.Wikipedia.ClientSecret == "" {
		return fmt.Errorf("wikipedia.client_id and wikipedia.client_secret are required (set MUSEUMFETCH_WIKIPEDIA_CLIENT_ID / MUSEUMFETCH_WIKIPEDIA_CLIENT_SECRET)")
	}
	return nil
}

func validateEndpoint(key, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", key, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s scheme must be http or https, got %q", key, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must have a host", key)
	}
	return nil
}
