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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "datahub", cfg.Catalog.Backend)
	assert.Equal(t, "http://localhost:8080", cfg.Catalog.URL)
	assert.Equal(t, 30*time.Second, cfg.Catalog.Timeout)
	assert.Equal(t, "gemini-1.5-flash-latest", cfg.Gemini.Model)
	assert.InDelta(t, 0.3, cfg.Gemini.Temperature, 1e-6)
	assert.Equal(t, int32(4096), cfg.Gemini.MaxOutputTokens)
	assert.Equal(t, 5, cfg.Engine.Concurrency)
	assert.Equal(t, 128, cfg.Engine.CacheSize)
	assert.Equal(t, 0.8, cfg.Engine.ConfidenceThreshold)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.InitialBackoff)
	assert.Equal(t, 8*time.Second, cfg.Retry.MaxBackoff)
	assert.Equal(t, 5, cfg.Breaker.Threshold)
	assert.Equal(t, ".enricher/suggestions", cfg.Store.Path)
	assert.Equal(t, 30*24*time.Hour, cfg.Store.MaxSuggestionAge)
	assert.NoError(t, cfg.Validate())
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("ENRICHER_GEMINI_API_KEY", "env-key")
	t.Setenv("ENRICHER_CATALOG_TOKEN", "env-token")
	t.Setenv("ENRICHER_ENGINE_CONCURRENCY", "12")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.Gemini.APIKey)
	assert.Equal(t, "env-token", cfg.Catalog.Token)
	assert.Equal(t, 12, cfg.Engine.Concurrency)
}

func TestLoadConfigFile(t *testing.T) {
	contents := `
catalog:
  backend: postgres
  dsn: postgres://localhost:5432/warehouse
engine:
  confidence_threshold: 0.6
retry:
  max_attempts: 5
  initial_backoff: 1s
store:
  path: /var/lib/enricher
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Catalog.Backend)
	assert.Equal(t, "postgres://localhost:5432/warehouse", cfg.Catalog.DSN)
	assert.Equal(t, 0.6, cfg.Engine.ConfidenceThreshold)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Retry.InitialBackoff)
	assert.Equal(t, "/var/lib/enricher", cfg.Store.Path)
	// Values the file omits keep their defaults.
	assert.Equal(t, "gemini-1.5-flash-latest", cfg.Gemini.Model)
}

func TestLoadMissingConfigFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing backend",
			mutate:  func(c *Config) { c.Catalog.Backend = "" },
			wantErr: "catalog backend is required",
		},
		{
			name:    "threshold above one",
			mutate:  func(c *Config) { c.Engine.ConfidenceThreshold = 1.5 },
			wantErr: "confidence threshold",
		},
		{
			name:    "threshold negative",
			mutate:  func(c *Config) { c.Engine.ConfidenceThreshold = -0.1 },
			wantErr: "confidence threshold",
		},
		{
			name:    "zero retry attempts",
			mutate:  func(c *Config) { c.Retry.MaxAttempts = 0 },
			wantErr: "retry max attempts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
