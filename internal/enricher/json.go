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
	"encoding/json"
	"fmt"
	"strings"
)

// extractJSON pulls the first balanced JSON array or object out of a model
// response. Models routinely wrap payloads in markdown fences or surround
// them with prose, so a plain json.Unmarshal on the raw text is not enough.
func extractJSON(response string) (string, error) {
	cleaned := stripMarkdownFences(strings.TrimSpace(response))

	start := strings.IndexAny(cleaned, "[{")
	if start == -1 {
		return "", fmt.Errorf("no JSON payload found in response")
	}

	open := cleaned[start]
	var closing byte = ']'
	if open == '{' {
		closing = '}'
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(cleaned); i++ {
		c := cleaned[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == open:
			depth++
		case c == closing:
			depth--
			if depth == 0 {
				candidate := cleaned[start : i+1]
				if !json.Valid([]byte(candidate)) {
					return "", fmt.Errorf("extracted payload is not valid JSON")
				}
				return candidate, nil
			}
		}
	}
	return "", fmt.Errorf("unbalanced JSON payload in response")
}

func stripMarkdownFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
