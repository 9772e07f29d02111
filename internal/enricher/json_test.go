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
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
		wantErr  bool
	}{
		{
			name:     "bare array",
			response: `[{"a": 1}]`,
			want:     `[{"a": 1}]`,
		},
		{
			name:     "markdown fenced",
			response: "```json\n[{\"a\": 1}]\n```",
			want:     `[{"a": 1}]`,
		},
		{
			name:     "fenced without language",
			response: "```\n[{\"a\": 1}]\n```",
			want:     `[{"a": 1}]`,
		},
		{
			name:     "surrounded by prose",
			response: "Here are the results:\n[{\"a\": 1}, {\"b\": 2}]\nLet me know if you need more.",
			want:     `[{"a": 1}, {"b": 2}]`,
		},
		{
			name:     "object payload",
			response: `The answer is {"a": [1, 2]} as requested`,
			want:     `{"a": [1, 2]}`,
		},
		{
			name:     "brackets inside strings",
			response: `[{"a": "closing ] bracket"}]`,
			want:     `[{"a": "closing ] bracket"}]`,
		},
		{
			name:     "escaped quotes inside strings",
			response: `[{"a": "quote \" and ] bracket"}]`,
			want:     `[{"a": "quote \" and ] bracket"}]`,
		},
		{
			name:     "no payload",
			response: "I could not produce any suggestions.",
			wantErr:  true,
		},
		{
			name:     "unbalanced payload",
			response: `[{"a": 1}`,
			wantErr:  true,
		},
		{
			name:     "invalid json in balanced brackets",
			response: `[{a: 1}]`,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractJSON(tt.response)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
