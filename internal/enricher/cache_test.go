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
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleBatch(datasetID string, fingerprint Fingerprint) *SuggestionBatch {
	return &SuggestionBatch{
		DatasetID:   datasetID,
		Fingerprint: fingerprint,
		GeneratedAt: time.Now().UTC(),
		Suggestions: []Suggestion{
			{
				ID:          "orig-1",
				DatasetID:   datasetID,
				Column:      "email",
				Kind:        KindDescription,
				Value:       "user email address",
				Confidence:  0.95,
				Fingerprint: fingerprint,
				CreatedAt:   time.Now().UTC(),
			},
			{
				ID:          "orig-2",
				DatasetID:   datasetID,
				Kind:        KindTag,
				Value:       "customer-data",
				Confidence:  0.7,
				Fingerprint: fingerprint,
				CreatedAt:   time.Now().UTC(),
			},
		},
	}
}

func TestFingerprintCacheMiss(t *testing.T) {
	cache := NewFingerprintCache(4, 0)
	_, ok := cache.Get(Fingerprint("absent"), "ds1")
	assert.False(t, ok)
}

func TestFingerprintCacheHitClonesBatch(t *testing.T) {
	fp := Fingerprint("fp-1")
	cache := NewFingerprintCache(4, 0)
	cache.Put(fp, sampleBatch("ds-source", fp))

	got, ok := cache.Get(fp, "ds-other")
	require.True(t, ok)
	assert.True(t, got.CacheHit)
	assert.Equal(t, "ds-other", got.DatasetID)
	assert.Equal(t, fp, got.Fingerprint)
	require.Len(t, got.Suggestions, 2)
	for _, s := range got.Suggestions {
		assert.Equal(t, "ds-other", s.DatasetID)
		assert.NotEqual(t, "orig-1", s.ID)
		assert.NotEqual(t, "orig-2", s.ID)
		assert.NotEmpty(t, s.ID)
		assert.Equal(t, fp, s.Fingerprint)
	}

	// Values and order survive the clone.
	assert.Equal(t, "user email address", got.Suggestions[0].Value)
	assert.Equal(t, "customer-data", got.Suggestions[1].Value)

	// Two hits yield independent clones.
	again, ok := cache.Get(fp, "ds-third")
	require.True(t, ok)
	assert.NotEqual(t, got.Suggestions[0].ID, again.Suggestions[0].ID)
}

func TestFingerprintCacheEvictsLRU(t *testing.T) {
	cache := NewFingerprintCache(2, 0)
	cache.Put(Fingerprint("a"), sampleBatch("ds-a", "a"))
	cache.Put(Fingerprint("b"), sampleBatch("ds-b", "b"))

	// Touch "a" so "b" becomes the eviction candidate.
	_, ok := cache.Get(Fingerprint("a"), "ds-a")
	require.True(t, ok)

	cache.Put(Fingerprint("c"), sampleBatch("ds-c", "c"))
	assert.Equal(t, 2, cache.Len())

	_, ok = cache.Get(Fingerprint("b"), "ds-b")
	assert.False(t, ok, "least recently used entry must be evicted")
	_, ok = cache.Get(Fingerprint("a"), "ds-a")
	assert.True(t, ok)
	_, ok = cache.Get(Fingerprint("c"), "ds-c")
	assert.True(t, ok)
}

func TestFingerprintCacheMaxAge(t *testing.T) {
	cache := NewFingerprintCache(4, time.Minute)
	now := time.Now()
	cache.now = func() time.Time { return now }

	cache.Put(Fingerprint("a"), sampleBatch("ds-a", "a"))

	_, ok := cache.Get(Fingerprint("a"), "ds-a")
	assert.True(t, ok)

	cache.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, ok = cache.Get(Fingerprint("a"), "ds-a")
	assert.False(t, ok, "entries past max age are misses")
	assert.Equal(t, 0, cache.Len(), "expired entries are evicted on access")
}

func TestFingerprintCachePutIsolation(t *testing.T) {
	fp := Fingerprint("fp-iso")
	cache := NewFingerprintCache(4, 0)
	batch := sampleBatch("ds", fp)
	cache.Put(fp, batch)

	// Mutating the caller's batch after Put must not affect the cache.
	batch.Suggestions[0].Value = "mutated"

	got, ok := cache.Get(fp, "ds")
	require.True(t, ok)
	assert.Equal(t, "user email address", got.Suggestions[0].Value)
}
