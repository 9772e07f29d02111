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
package datahub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoogleCloudPlatform/catalog-ai-enrichment/internal/catalog"
)

const testURN = "urn:li:dataset:(urn:li:dataPlatform:postgres,shop.public.users,PROD)"

type capturedRequest struct {
	query     string
	variables map[string]any
	headers   http.Header
}

// newGMS serves canned GraphQL responses and captures each request.
func newGMS(t *testing.T, status int, response string) (*httptest.Server, *[]capturedRequest) {
	t.Helper()
	var captured []capturedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/graphql", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)

		var body struct {
			Query     string         `json:"query"`
			Variables map[string]any `json:"variables"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		captured = append(captured, capturedRequest{query: body.Query, variables: body.Variables, headers: r.Header.Clone()})

		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(server.Close)
	return server, &captured
}

func newTestClient(t *testing.T, url string) *client {
	t.Helper()
	c, err := NewClient(catalog.Config{URL: url, Token: "test-token", Timeout: 5 * time.Second})
	require.NoError(t, err)
	return c
}

func TestFetchSchema(t *testing.T) {
	response := `{"data": {"dataset": {
		"urn": "` + testURN + `",
		"name": "users",
		"description": "registered users",
		"platform": {"name": "postgres"},
		"schemaMetadata": {"fields": [
			{"fieldPath": "id", "nativeDataType": "integer", "nullable": false},
			{"fieldPath": "email", "nativeDataType": "varchar", "nullable": false,
			 "description": "login email",
			 "tags": {"tags": [{"tag": {"name": "pii"}}]}}
		]},
		"tags": {"tags": [{"tag": {"name": "core"}}]}
	}}}`
	server, captured := newGMS(t, http.StatusOK, response)
	c := newTestClient(t, server.URL)

	snapshot, err := c.FetchSchema(context.Background(), testURN)
	require.NoError(t, err)

	assert.Equal(t, testURN, snapshot.DatasetID)
	assert.Equal(t, "users", snapshot.Name)
	assert.Equal(t, "postgres", snapshot.Platform)
	assert.Equal(t, []string{"core"}, snapshot.Tags)
	require.Len(t, snapshot.Columns, 2)
	assert.Equal(t, "id", snapshot.Columns[0].Name)
	assert.False(t, snapshot.Columns[0].Nullable)
	assert.Equal(t, "email", snapshot.Columns[1].Name)
	assert.Equal(t, "login email", snapshot.Columns[1].Description)
	assert.Equal(t, []string{"pii"}, snapshot.Columns[1].Tags)

	require.Len(t, *captured, 1)
	req := (*captured)[0]
	assert.Equal(t, testURN, req.variables["urn"])
	assert.Equal(t, "Bearer test-token", req.headers.Get("Authorization"))
	assert.Equal(t, "2.0.0", req.headers.Get("X-Restli-Protocol-Version"))
}

func TestFetchSchemaNotFound(t *testing.T) {
	server, _ := newGMS(t, http.StatusOK, `{"data": {"dataset": null}}`)
	c := newTestClient(t, server.URL)

	_, err := c.FetchSchema(context.Background(), testURN)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestQueryGraphQLStatusMapping(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		transient bool
		conflict  bool
	}{
		{"server error is transient", http.StatusBadGateway, true, false},
		{"throttling is transient", http.StatusTooManyRequests, true, false},
		{"conflict maps to ErrConflict", http.StatusConflict, false, true},
		{"client error is terminal", http.StatusBadRequest, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := newGMS(t, tt.status, `{}`)
			c := newTestClient(t, server.URL)

			_, err := c.FetchSchema(context.Background(), testURN)
			require.Error(t, err)
			assert.Equal(t, tt.transient, catalog.IsTransient(err))
			assert.Equal(t, tt.conflict, err == catalog.ErrConflict)
		})
	}
}

func TestQueryGraphQLErrorsSurface(t *testing.T) {
	server, _ := newGMS(t, http.StatusOK, `{"errors": [{"message": "unauthorized"}]}`)
	c := newTestClient(t, server.URL)

	_, err := c.FetchSchema(context.Background(), testURN)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unauthorized")
	assert.False(t, catalog.IsTransient(err))
}

func TestListDatasets(t *testing.T) {
	response := `{"data": {"search": {"total": 2, "searchResults": [
		{"entity": {"urn": "urn:a", "name": "a", "platform": {"name": "postgres"}}},
		{"entity": {"urn": "urn:b", "name": "b"}}
	]}}}`
	server, captured := newGMS(t, http.StatusOK, response)
	c := newTestClient(t, server.URL)

	refs, err := c.ListDatasets(context.Background(), "postgres", 25)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, catalog.DatasetRef{ID: "urn:a", Name: "a", Platform: "postgres"}, refs[0])
	assert.Equal(t, catalog.DatasetRef{ID: "urn:b", Name: "b"}, refs[1])

	req := (*captured)[0]
	input, ok := req.variables["input"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(25), input["count"])
	assert.NotNil(t, input["filters"], "platform filter must be forwarded")
}

func TestWriteDescription(t *testing.T) {
	server, captured := newGMS(t, http.StatusOK, `{"data": {"updateDescription": true}}`)
	c := newTestClient(t, server.URL)

	require.NoError(t, c.WriteDescription(context.Background(), testURN, "email", "login email"))
	input := (*captured)[0].variables["input"].(map[string]any)
	assert.Equal(t, testURN, input["resourceUrn"])
	assert.Equal(t, "email", input["subResource"])
	assert.Equal(t, "DATASET_FIELD", input["subResourceType"])
	assert.Equal(t, "login email", input["description"])

	// Dataset-level description carries no subResource.
	require.NoError(t, c.WriteDescription(context.Background(), testURN, "", "the users table"))
	input = (*captured)[1].variables["input"].(map[string]any)
	_, hasSub := input["subResource"]
	assert.False(t, hasSub)
}

func TestAddTag(t *testing.T) {
	server, captured := newGMS(t, http.StatusOK, `{"data": {"addTag": true}}`)
	c := newTestClient(t, server.URL)

	require.NoError(t, c.AddTag(context.Background(), testURN, "email", "PII"))
	input := (*captured)[0].variables["input"].(map[string]any)
	assert.Equal(t, "urn:li:tag:PII", input["tagUrn"])
	assert.Equal(t, "email", input["subResource"])

	// A full tag URN passes through untouched.
	require.NoError(t, c.AddTag(context.Background(), testURN, "", "urn:li:tag:custom"))
	input = (*captured)[1].variables["input"].(map[string]any)
	assert.Equal(t, "urn:li:tag:custom", input["tagUrn"])
}

func TestConnectionRefusedIsTransient(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1")
	_, err := c.FetchSchema(context.Background(), testURN)
	require.Error(t, err)
	assert.True(t, catalog.IsTransient(err))
}
