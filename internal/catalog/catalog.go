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
package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Client defines the operations the enrichment engine consumes from a
// metadata catalog backend.
type Client interface {
	// FetchSchema retrieves the schema snapshot for a dataset.
	// Returns ErrNotFound if the dataset does not exist in the catalog.
	FetchSchema(ctx context.Context, datasetID string) (*SchemaSnapshot, error)

	// ListDatasets returns dataset references, optionally filtered by platform.
	ListDatasets(ctx context.Context, platform string, limit int) ([]DatasetRef, error)

	// WriteDescription sets the description of a column (or of the dataset
	// itself when columnName is empty). Returns ErrConflict if the catalog-side
	// metadata changed since it was fetched.
	WriteDescription(ctx context.Context, datasetID, columnName, text string) error

	// AddTag attaches a tag to a column, or to the dataset when columnName is empty.
	AddTag(ctx context.Context, datasetID, columnName, tag string) error

	Ping(ctx context.Context) error
	Close() error
}

// SchemaSnapshot is an immutable view of a dataset's schema as fetched from
// the catalog. It is owned exclusively by the pipeline run that fetched it.
type SchemaSnapshot struct {
	DatasetID   string
	Name        string
	Platform    string
	Description string
	Tags        []string
	Columns     []Column
}

// Column describes a single field of a dataset schema.
type Column struct {
	Name        string
	DataType    string
	Nullable    bool
	Description string
	Tags        []string
}

// DatasetRef identifies a dataset in the catalog.
type DatasetRef struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Platform string `json:"platform"`
}

// Config holds connection settings for a catalog backend.
type Config struct {
	// Backend selects the registered driver ("datahub" or "postgres").
	Backend string
	// URL of the catalog metadata service (datahub backend).
	URL string
	// Token is an optional bearer token (datahub backend).
	Token string
	// DSN is the database connection string (postgres backend).
	DSN string
	// Timeout applies to each individual catalog call.
	Timeout time.Duration
	Logger  *zap.Logger
}

// Driver constructs a catalog client from a config.
type Driver func(cfg Config) (Client, error)

var (
	mu      sync.RWMutex
	drivers = make(map[string]Driver)
)

// RegisterDriver makes a catalog backend available under the given name.
// Backends register themselves in init, mirroring database/sql drivers.
func RegisterDriver(name string, driver Driver) {
	mu.Lock()
	defer mu.Unlock()
	drivers[name] = driver
}

// SupportedBackends returns the names of all registered drivers.
func SupportedBackends() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New opens a catalog client for the configured backend.
func New(cfg Config) (Client, error) {
	mu.RLock()
	driver, ok := drivers[cfg.Backend]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported catalog backend: %q", cfg.Backend)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return driver(cfg)
}
