/*
 * Copyright 2025 Google LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envPrefix namespaces the environment variables read by Load, e.g.
// ENRICHER_GEMINI_API_KEY and ENRICHER_CATALOG_TOKEN.
const envPrefix = "ENRICHER"

// Config holds all configuration for the application.
type Config struct {
	Catalog CatalogConfig `mapstructure:"catalog"`
	Gemini  GeminiConfig  `mapstructure:"gemini"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Retry   RetryConfig   `mapstructure:"retry"`
	Breaker BreakerConfig `mapstructure:"breaker"`
	Store   StoreConfig   `mapstructure:"store"`
}

// CatalogConfig selects and configures the metadata catalog backend.
type CatalogConfig struct {
	// Backend is the registered catalog driver name, e.g. "datahub" or
	// "postgres".
	Backend string `mapstructure:"backend"`
	// URL is the catalog API endpoint (DataHub GMS URL).
	URL string `mapstructure:"url"`
	// Token authenticates against the catalog API.
	Token string `mapstructure:"token"`
	// DSN is the connection string for SQL-backed catalogs.
	DSN string `mapstructure:"dsn"`
	// Timeout bounds individual catalog requests.
	Timeout time.Duration `mapstructure:"timeout"`
}

// GeminiConfig configures the generative model client.
type GeminiConfig struct {
	APIKey          string  `mapstructure:"api_key"`
	Model           string  `mapstructure:"model"`
	Temperature     float32 `mapstructure:"temperature"`
	MaxOutputTokens int32   `mapstructure:"max_output_tokens"`
}

// EngineConfig tunes the enrichment pipeline.
type EngineConfig struct {
	Concurrency         int           `mapstructure:"concurrency"`
	CacheSize           int           `mapstructure:"cache_size"`
	CacheMaxAge         time.Duration `mapstructure:"cache_max_age"`
	ConfidenceThreshold float64       `mapstructure:"confidence_threshold"`
}

// RetryConfig tunes the backoff policy shared by model calls and catalog
// writes.
type RetryConfig struct {
	MaxAttempts       int           `mapstructure:"max_attempts"`
	InitialBackoff    time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier"`
	AttemptTimeout    time.Duration `mapstructure:"attempt_timeout"`
}

// BreakerConfig tunes the model-call circuit breaker.
type BreakerConfig struct {
	Threshold int           `mapstructure:"threshold"`
	Cooldown  time.Duration `mapstructure:"cooldown"`
}

// StoreConfig configures the suggestion store.
type StoreConfig struct {
	// Path is the BadgerDB directory for staged suggestions.
	Path string `mapstructure:"path"`
	// MaxSuggestionAge is the default cutoff for the expire command.
	MaxSuggestionAge time.Duration `mapstructure:"max_suggestion_age"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("catalog.backend", "datahub")
	v.SetDefault("catalog.url", "http://localhost:8080")
	// Empty defaults register the keys so AutomaticEnv can populate them
	// during Unmarshal.
	v.SetDefault("catalog.token", "")
	v.SetDefault("catalog.dsn", "")
	v.SetDefault("catalog.timeout", 30*time.Second)
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model", "gemini-1.5-flash-latest")
	v.SetDefault("gemini.temperature", 0.3)
	v.SetDefault("gemini.max_output_tokens", 4096)
	v.SetDefault("engine.concurrency", 5)
	v.SetDefault("engine.cache_size", 128)
	v.SetDefault("engine.cache_max_age", 0)
	v.SetDefault("engine.confidence_threshold", 0.8)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff", 500*time.Millisecond)
	v.SetDefault("retry.max_backoff", 8*time.Second)
	v.SetDefault("retry.backoff_multiplier", 2.0)
	v.SetDefault("retry.attempt_timeout", 30*time.Second)
	v.SetDefault("breaker.threshold", 5)
	v.SetDefault("breaker.cooldown", 30*time.Second)
	v.SetDefault("store.path", ".enricher/suggestions")
	v.SetDefault("store.max_suggestion_age", 30*24*time.Hour)
}

// Load reads configuration from an optional YAML file and ENRICHER_*
// environment variables. Flags are bound by the CLI layer on top of the
// returned values.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %v", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %v", err)
	}
	return &cfg, nil
}

// Validate checks the fields every command depends on.
func (c *Config) Validate() error {
	if c.Catalog.Backend == "" {
		return fmt.Errorf("catalog backend is required")
	}
	if c.Engine.ConfidenceThreshold < 0 || c.Engine.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence threshold must be between 0 and 1")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry max attempts must be at least 1")
	}
	return nil
}
