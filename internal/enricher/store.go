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
	"context"
	"time"
)

// Store holds pending suggestions between generation and human review, and
// owns the apply gates: idempotence (a suggestion is written to the catalog
// at most once), freshness (the stored fingerprint must match the live
// schema), and the confidence threshold (unless overridden).
type Store interface {
	// SaveBatch persists every suggestion in the batch.
	SaveBatch(ctx context.Context, batch *SuggestionBatch) error

	// Get returns a suggestion by ID, or ErrSuggestionNotFound.
	Get(ctx context.Context, id string) (*Suggestion, error)

	// ListByDataset returns all pending suggestions for a dataset in their
	// stored (deterministic) order.
	ListByDataset(ctx context.Context, datasetID string) ([]Suggestion, error)

	// Apply writes a suggestion through to the catalog if it passes the
	// gates, recording the outcome. currentFingerprint is the fingerprint of
	// the dataset's live schema; override bypasses the confidence threshold
	// but never the freshness or idempotence checks.
	Apply(ctx context.Context, id string, currentFingerprint Fingerprint, override bool) (*ApplyOutcome, error)

	// ExpireOlderThan deletes pending suggestions created before the cutoff
	// age and reports how many were removed.
	ExpireOlderThan(ctx context.Context, maxAge time.Duration) (int, error)

	Close() error
}
