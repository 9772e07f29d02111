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
	"container/list"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FingerprintCache maps schema fingerprints to previously generated
// suggestion batches so structurally identical schemas never pay for a second
// round of model calls. It is a bounded LRU; entries older than maxAge are
// treated as misses to bound staleness against upstream model changes.
//
// Cached batches are templates, not dataset-specific facts: Get always
// returns a clone rewritten for the requesting dataset.
type FingerprintCache struct {
	mu       sync.Mutex
	capacity int
	maxAge   time.Duration
	order    *list.List // front = most recently used
	items    map[Fingerprint]*list.Element
	now      func() time.Time
}

type cacheEntry struct {
	fingerprint Fingerprint
	batch       *SuggestionBatch
	storedAt    time.Time
}

// NewFingerprintCache creates a cache holding up to capacity entries. A
// maxAge of zero disables age-based expiry.
func NewFingerprintCache(capacity int, maxAge time.Duration) *FingerprintCache {
	if capacity <= 0 {
		capacity = 128
	}
	return &FingerprintCache{
		capacity: capacity,
		maxAge:   maxAge,
		order:    list.New(),
		items:    make(map[Fingerprint]*list.Element),
		now:      time.Now,
	}
}

// Get returns a clone of the cached batch rewritten for datasetID, or false
// on a miss. Expired entries are evicted and reported as misses.
func (c *FingerprintCache) Get(fingerprint Fingerprint, datasetID string) (*SuggestionBatch, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[fingerprint]
	if !ok {
		return nil, false
	}
	entry := elem.Value.(*cacheEntry)
	if c.maxAge > 0 && c.now().Sub(entry.storedAt) > c.maxAge {
		c.order.Remove(elem)
		delete(c.items, fingerprint)
		return nil, false
	}
	c.order.MoveToFront(elem)
	return entry.batch.cloneFor(datasetID, c.now()), true
}

// Put stores a batch under its fingerprint, evicting the least recently used
// entry when the cache is full. The cache keeps its own clone so later
// mutations by the caller cannot leak in.
func (c *FingerprintCache) Put(fingerprint Fingerprint, batch *SuggestionBatch) {
	if batch == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[fingerprint]; ok {
		elem.Value.(*cacheEntry).batch = batch.copy()
		elem.Value.(*cacheEntry).storedAt = c.now()
		c.order.MoveToFront(elem)
		return
	}

	c.items[fingerprint] = c.order.PushFront(&cacheEntry{
		fingerprint: fingerprint,
		batch:       batch.copy(),
		storedAt:    c.now(),
	})
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheEntry).fingerprint)
	}
}

// Len returns the number of live entries.
func (c *FingerprintCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// copy performs a deep copy of the batch.
func (b *SuggestionBatch) copy() *SuggestionBatch {
	dup := *b
	dup.Suggestions = make([]Suggestion, len(b.Suggestions))
	copy(dup.Suggestions, b.Suggestions)
	return &dup
}

// cloneFor materializes the batch for a different dataset: every suggestion
// gets a fresh id, creation timestamp, and the requesting dataset's
// identifier. The source fingerprint is preserved so staleness checks still
// work against the requesting dataset's schema.
func (b *SuggestionBatch) cloneFor(datasetID string, now time.Time) *SuggestionBatch {
	clone := b.copy()
	clone.DatasetID = datasetID
	clone.GeneratedAt = now
	clone.CacheHit = true
	for i := range clone.Suggestions {
		clone.Suggestions[i].ID = uuid.NewString()
		clone.Suggestions[i].DatasetID = datasetID
		clone.Suggestions[i].CreatedAt = now
	}
	return clone
}
