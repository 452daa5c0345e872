package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from file, environment, and defaults.
// Priority (highest to lowest): env vars > config file > defaults.
// CLI flags are applied by the caller on the returned Config.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	// Every key needs a default so that AutomaticEnv can bind it on Unmarshal.
	setDefaults(v, cfg)

	v.SetEnvPrefix("MUSEUMFETCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("museumfetch")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".museumfetch"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is okay if not explicitly specified
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers default values in viper.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("wikipedia.api_url", cfg.Wikipedia.APIURL)
	v.SetDefault("wikipedia.auth_url", cfg.Wikipedia.AuthURL)
	v.SetDefault("wikipedia.client_id", cfg.Wikipedia.ClientID)
	v.SetDefault("wikipedia.client_secret", cfg.Wikipedia.ClientSecret)
	v.SetDefault("wikipedia.user_agent", cfg.Wikipedia.UserAgent)
	v.SetDefault("wikipedia.request_timeout", cfg.Wikipedia.RequestTimeout)

	v.SetDefault("rate_limit.calls", cfg.RateLimit.Calls)
	v.SetDefault("rate_limit.period", cfg.RateLimit.Period)

	v.SetDefault("collector.page_title", cfg.Collector.PageTitle)
	v.SetDefault("collector.workers", cfg.Collector.Workers)
	v.SetDefault("collector.dedupe_cities", cfg.Collector.DedupeCities)

	v.SetDefault("debug.keep_html", cfg.Debug.KeepHTML)
	v.SetDefault("debug.html_dir", cfg.Debug.HTMLDir)

	v.SetDefault("storage.type", cfg.Storage.Type)
	v.SetDefault("storage.path", cfg.Storage.Path)
	v.SetDefault("storage.mongo_uri", cfg.Storage.MongoURI)
	v.SetDefault("storage.mongo_database", cfg.Storage.MongoDatabase)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.port", cfg.Metrics.Port)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
}
