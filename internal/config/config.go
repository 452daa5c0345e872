package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for museumfetch.
type Config struct {
	Wikipedia WikipediaConfig `mapstructure:"wikipedia"  yaml:"wikipedia"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
	Collector CollectorConfig `mapstructure:"collector"  yaml:"collector"`
	Debug     DebugConfig     `mapstructure:"debug"      yaml:"debug"`
	Storage   StorageConfig   `mapstructure:"storage"    yaml:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"    yaml:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"    yaml:"metrics"`
}

// WikipediaConfig controls access to the Wikimedia content API.
type WikipediaConfig struct {
	APIURL         string        `mapstructure:"api_url"         yaml:"api_url"`
	AuthURL        string        `mapstructure:"auth_url"        yaml:"auth_url"`
	ClientID       string        `mapstructure:"client_id"       yaml:"client_id"`
	ClientSecret   string        `mapstructure:"client_secret"   yaml:"client_secret"`
	UserAgent      string        `mapstructure:"user_agent"      yaml:"user_agent"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// RateLimitConfig is the call ceiling shared by every page fetch.
type RateLimitConfig struct {
	Calls  int           `mapstructure:"calls"  yaml:"calls"`
	Period time.Duration `mapstructure:"period" yaml:"period"`
}

// CollectorConfig controls the collection run.
type CollectorConfig struct {
	PageTitle    string `mapstructure:"page_title"    yaml:"page_title"`
	Workers      int    `mapstructure:"workers"       yaml:"workers"`
	DedupeCities bool   `mapstructure:"dedupe_cities" yaml:"dedupe_cities"`
}

// DebugConfig controls raw page persistence.
type DebugConfig struct {
	KeepHTML bool   `mapstructure:"keep_html" yaml:"keep_html"`
	HTMLDir  string `mapstructure:"html_dir"  yaml:"html_dir"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Type          string `mapstructure:"type"           yaml:"type"` // sqlite, mongodb
	Path          string `mapstructure:"path"           yaml:"path"`
	MongoURI      string `mapstructure:"mongo_uri"      yaml:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database" yaml:"mongo_database"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Wikipedia: WikipediaConfig{
			APIURL:         "https://en.wikipedia.org/api/rest_v1/",
			AuthURL:        "https://en.wikipedia.org/w/rest.php/oauth2/access_token",
			UserAgent:      "MuseumAttendanceDataFetcher/" + Version + " (https://github.com/IshaanNene/museumfetch)",
			RequestTimeout: 30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Calls:  2,
			Period: 1 * time.Second,
		},
		Collector: CollectorConfig{
			PageTitle: "List_of_most_visited_museums",
			Workers:   5,
		},
		Debug: DebugConfig{
			KeepHTML: false,
			HTMLDir:  "assets",
		},
		Storage: StorageConfig{
			Type:          "sqlite",
			Path:          "museums.db",
			MongoURI:      "mongodb://localhost:27017",
			MongoDatabase: "museum_attendance",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}
