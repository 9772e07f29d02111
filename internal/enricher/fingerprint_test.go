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
package enricher

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/GoogleCloudPlatform/catalog-ai-enrichment/internal/catalog"
)

func baseSnapshot() *catalog.SchemaSnapshot {
	return &catalog.SchemaSnapshot{
		DatasetID:   "urn:li:dataset:(urn:li:dataPlatform:postgres,shop.public.users,PROD)",
		Name:        "users",
		Platform:    "postgres",
		Description: "registered users",
		Tags:        []string{"core", "Verified"},
		Columns: []catalog.Column{
			{Name: "id", DataType: "integer", Nullable: false},
			{Name: "email", DataType: "varchar", Nullable: false, Tags: []string{"pii"}},
			{Name: "created_at", DataType: "timestamp", Nullable: true},
		},
	}
}

func TestComputeFingerprintDeterministic(t *testing.T) {
	a := ComputeFingerprint(baseSnapshot())
	b := ComputeFingerprint(baseSnapshot())
	assert.Equal(t, a, b)
	assert.Len(t, string(a), 64)
}

func TestComputeFingerprintIgnoresIdentity(t *testing.T) {
	base := ComputeFingerprint(baseSnapshot())

	renamed := baseSnapshot()
	renamed.DatasetID = "urn:li:dataset:(urn:li:dataPlatform:postgres,shop.public.users_v2,PROD)"
	renamed.Name = "users_v2"
	assert.Equal(t, base, ComputeFingerprint(renamed),
		"dataset id and display name must not affect the fingerprint")
}

func TestComputeFingerprintNormalization(t *testing.T) {
	base := ComputeFingerprint(baseSnapshot())

	tests := []struct {
		name   string
		mutate func(s *catalog.SchemaSnapshot)
		same   bool
	}{
		{
			name: "tag order is irrelevant",
			mutate: func(s *catalog.SchemaSnapshot) {
				s.Tags = []string{"Verified", "core"}
			},
			same: true,
		},
		{
			name: "tag casing is irrelevant",
			mutate: func(s *catalog.SchemaSnapshot) {
				s.Tags = []string{"CORE", "verified"}
			},
			same: true,
		},
		{
			name: "column name casing is irrelevant",
			mutate: func(s *catalog.SchemaSnapshot) {
				s.Columns[0].Name = "ID"
			},
			same: true,
		},
		{
			name: "column order is significant",
			mutate: func(s *catalog.SchemaSnapshot) {
				s.Columns[0], s.Columns[1] = s.Columns[1], s.Columns[0]
			},
			same: false,
		},
		{
			name: "description change is significant",
			mutate: func(s *catalog.SchemaSnapshot) {
				s.Columns[1].Description = "user email address"
			},
			same: false,
		},
		{
			name: "type change is significant",
			mutate: func(s *catalog.SchemaSnapshot) {
				s.Columns[0].DataType = "bigint"
			},
			same: false,
		},
		{
			name: "nullability change is significant",
			mutate: func(s *catalog.SchemaSnapshot) {
				s.Columns[0].Nullable = true
			},
			same: false,
		},
		{
			name: "added column is significant",
			mutate: func(s *catalog.SchemaSnapshot) {
				s.Columns = append(s.Columns, catalog.Column{Name: "deleted_at", DataType: "timestamp", Nullable: true})
			},
			same: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snapshot := baseSnapshot()
			tt.mutate(snapshot)
			got := ComputeFingerprint(snapshot)
			if tt.same {
				assert.Equal(t, base, got)
			} else {
				assert.NotEqual(t, base, got)
			}
		})
	}
}
