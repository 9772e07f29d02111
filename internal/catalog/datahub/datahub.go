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

// Package datahub implements the catalog client against the DataHub GMS
// GraphQL API.
package datahub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/catalog-ai-enrichment/internal/catalog"
)

func init() {
	catalog.RegisterDriver("datahub", func(cfg catalog.Config) (catalog.Client, error) {
		return NewClient(cfg)
	})
}

type client struct {
	gmsURL string
	token  string
	http   *http.Client
	logger *zap.Logger
}

var _ catalog.Client = (*client)(nil)

// NewClient creates a DataHub catalog client against the given GMS endpoint.
func NewClient(cfg catalog.Config) (*client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("datahub backend requires a GMS URL")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &client{
		gmsURL: strings.TrimRight(cfg.URL, "/"),
		token:  cfg.Token,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: cfg.Logger,
	}, nil
}

func (c *client) Close() error { return nil }

type gqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []gqlError      `json:"errors"`
}

type gqlError struct {
	Message string `json:"message"`
}

// queryGraphQL posts a single GraphQL request to the GMS endpoint and returns
// the raw data payload. Connection failures and 5xx/429 responses are wrapped
// as transient so the caller's retry policy can act on them.
func (c *client) queryGraphQL(ctx context.Context, query string, variables map[string]any) (json.RawMessage, error) {
	body, err := json.Marshal(gqlRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("failed to encode GraphQL request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.gmsURL+"/api/graphql", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-RestLi-Protocol-Version", "2.0.0")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &catalog.TransientError{Msg: "GraphQL request failed", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict:
		return nil, catalog.ErrConflict
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &catalog.TransientError{
			Msg: "GMS returned a retryable status",
			Err: fmt.Errorf("HTTP %d", resp.StatusCode),
		}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("GMS returned HTTP %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &catalog.TransientError{Msg: "failed to read GMS response", Err: err}
	}

	var parsed gqlResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode GraphQL response: %w", err)
	}
	if len(parsed.Errors) > 0 {
		msgs := make([]string, len(parsed.Errors))
		for i, e := range parsed.Errors {
			msgs[i] = e.Message
		}
		return nil, fmt.Errorf("GraphQL errors: %s", strings.Join(msgs, "; "))
	}
	return parsed.Data, nil
}

const fetchSchemaQuery = `
query getDataset($urn: String!) {
    dataset(urn: $urn) {
        urn
        name
        description
        platform {
            name
        }
        schemaMetadata {
            fields {
                fieldPath
                nativeDataType
                description
                nullable
                tags {
                    tags {
                        tag {
                            name
                        }
                    }
                }
            }
        }
        tags {
            tags {
                tag {
                    name
                }
            }
        }
    }
}`

type tagGroup struct {
	Tags []struct {
		Tag struct {
			Name string `json:"name"`
		} `json:"tag"`
	} `json:"tags"`
}

func (t *tagGroup) names() []string {
	if t == nil || len(t.Tags) == 0 {
		return nil
	}
	names := make([]string, 0, len(t.Tags))
	for _, entry := range t.Tags {
		if entry.Tag.Name != "" {
			names = append(names, entry.Tag.Name)
		}
	}
	return names
}

type datasetPayload struct {
	Dataset *struct {
		URN         string `json:"urn"`
		Name        string `json:"name"`
		Description string `json:"description"`
		Platform    *struct {
			Name string `json:"name"`
		} `json:"platform"`
		SchemaMetadata *struct {
			Fields []struct {
				FieldPath      string    `json:"fieldPath"`
				NativeDataType string    `json:"nativeDataType"`
				Description    string    `json:"description"`
				Nullable       bool      `json:"nullable"`
				Tags           *tagGroup `json:"tags"`
			} `json:"fields"`
		} `json:"schemaMetadata"`
		Tags *tagGroup `json:"tags"`
	} `json:"dataset"`
}

// FetchSchema retrieves the schema snapshot for a dataset URN.
func (c *client) FetchSchema(ctx context.Context, datasetID string) (*catalog.SchemaSnapshot, error) {
	data, err := c.queryGraphQL(ctx, fetchSchemaQuery, map[string]any{"urn": datasetID})
	if err != nil {
		return nil, err
	}

	var payload datasetPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode dataset payload: %w", err)
	}
	if payload.Dataset == nil {
		return nil, catalog.ErrNotFound
	}

	ds := payload.Dataset
	snapshot := &catalog.SchemaSnapshot{
		DatasetID:   datasetID,
		Name:        ds.Name,
		Description: ds.Description,
		Tags:        ds.Tags.names(),
	}
	if ds.Platform != nil {
		snapshot.Platform = ds.Platform.Name
	}
	if ds.SchemaMetadata != nil {
		snapshot.Columns = make([]catalog.Column, 0, len(ds.SchemaMetadata.Fields))
		for _, f := range ds.SchemaMetadata.Fields {
			snapshot.Columns = append(snapshot.Columns, catalog.Column{
				Name:        f.FieldPath,
				DataType:    f.NativeDataType,
				Nullable:    f.Nullable,
				Description: f.Description,
				Tags:        f.Tags.names(),
			})
		}
	}
	return snapshot, nil
}

const listDatasetsQuery = `
query searchDatasets($input: SearchInput!) {
    search(input: $input) {
        total
        searchResults {
            entity {
                ... on Dataset {
                    urn
                    name
                    platform {
                        name
                    }
                }
            }
        }
    }
}`

type searchPayload struct {
	Search struct {
		Total         int `json:"total"`
		SearchResults []struct {
			Entity struct {
				URN      string `json:"urn"`
				Name     string `json:"name"`
				Platform *struct {
					Name string `json:"name"`
				} `json:"platform"`
			} `json:"entity"`
		} `json:"searchResults"`
	} `json:"search"`
}

// ListDatasets searches the catalog for datasets, optionally filtered by platform.
func (c *client) ListDatasets(ctx context.Context, platform string, limit int) ([]catalog.DatasetRef, error) {
	if limit <= 0 {
		limit = 100
	}
	input := map[string]any{
		"type":  "DATASET",
		"query": "*",
		"start": 0,
		"count": limit,
	}
	if platform != "" {
		input["filters"] = []map[string]any{{"field": "platform", "value": platform}}
	}

	data, err := c.queryGraphQL(ctx, listDatasetsQuery, map[string]any{"input": input})
	if err != nil {
		return nil, err
	}

	var payload searchPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode search payload: %w", err)
	}

	refs := make([]catalog.DatasetRef, 0, len(payload.Search.SearchResults))
	for _, result := range payload.Search.SearchResults {
		ref := catalog.DatasetRef{ID: result.Entity.URN, Name: result.Entity.Name}
		if result.Entity.Platform != nil {
			ref.Platform = result.Entity.Platform.Name
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

const updateDescriptionMutation = `
mutation updateDescription($input: DescriptionUpdateInput!) {
    updateDescription(input: $input)
}`

// WriteDescription sets the documentation of a column, or of the dataset
// itself when columnName is empty.
func (c *client) WriteDescription(ctx context.Context, datasetID, columnName, text string) error {
	input := map[string]any{
		"resourceUrn": datasetID,
		"description": text,
	}
	if columnName != "" {
		input["subResource"] = columnName
		input["subResourceType"] = "DATASET_FIELD"
	}
	_, err := c.queryGraphQL(ctx, updateDescriptionMutation, map[string]any{"input": input})
	if err != nil {
		return err
	}
	c.logger.Debug("updated description in catalog",
		zap.String("dataset", datasetID), zap.String("column", columnName))
	return nil
}

const addTagMutation = `
mutation addTag($input: TagAssociationInput!) {
    addTag(input: $input)
}`

// AddTag attaches a tag to a column, or to the dataset when columnName is empty.
func (c *client) AddTag(ctx context.Context, datasetID, columnName, tag string) error {
	input := map[string]any{
		"tagUrn":      tagURN(tag),
		"resourceUrn": datasetID,
	}
	if columnName != "" {
		input["subResource"] = columnName
		input["subResourceType"] = "DATASET_FIELD"
	}
	_, err := c.queryGraphQL(ctx, addTagMutation, map[string]any{"input": input})
	if err != nil {
		return err
	}
	c.logger.Debug("added tag in catalog",
		zap.String("dataset", datasetID), zap.String("column", columnName), zap.String("tag", tag))
	return nil
}

// Ping verifies connectivity by running a minimal search.
func (c *client) Ping(ctx context.Context) error {
	_, err := c.ListDatasets(ctx, "", 1)
	return err
}

// tagURN converts a bare tag name into a DataHub tag URN. Callers may also
// pass a full URN, which is used as-is.
func tagURN(tag string) string {
	if strings.HasPrefix(tag, "urn:li:tag:") {
		return tag
	}
	return "urn:li:tag:" + tag
}
