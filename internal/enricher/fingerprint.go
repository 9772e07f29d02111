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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/GoogleCloudPlatform/catalog-ai-enrichment/internal/catalog"
)

// Fingerprint is a deterministic digest of a normalized schema snapshot, used
// as the cache key and as the staleness check at apply time.
type Fingerprint string

// ComputeFingerprint digests a snapshot with identifier casing folded and tag
// sets sorted. The dataset identifier and display name are deliberately
// excluded: two datasets with fingerprint-equal schemas are
// enrichment-equivalent, so one can serve cached suggestions for the other.
// Column order is significant.
func ComputeFingerprint(s *catalog.SchemaSnapshot) Fingerprint {
	h := sha256.New()
	fmt.Fprintf(h, "platform=%s\n", strings.ToLower(s.Platform))
	fmt.Fprintf(h, "description=%s\n", s.Description)
	fmt.Fprintf(h, "tags=%s\n", normalizeTags(s.Tags))
	for _, col := range s.Columns {
		fmt.Fprintf(h, "column=%s type=%s nullable=%t description=%s tags=%s\n",
			strings.ToLower(col.Name),
			strings.ToLower(col.DataType),
			col.Nullable,
			col.Description,
			normalizeTags(col.Tags),
		)
	}
	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}

// normalizeTags lowercases and sorts a tag set so its ordering never affects
// the digest.
func normalizeTags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	normalized := make([]string, len(tags))
	for i, tag := range tags {
		normalized[i] = strings.ToLower(strings.TrimSpace(tag))
	}
	sort.Strings(normalized)
	return strings.Join(normalized, ",")
}
