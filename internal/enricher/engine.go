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

// Package enricher implements the enrichment pipeline: fetch a dataset's
// schema from the catalog, generate suggestions with a language model, stage
// them for review, and apply approved suggestions back to the catalog.
package enricher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/catalog-ai-enrichment/internal/catalog"
)

// defaultConcurrency bounds the batch worker pool when none is configured.
const defaultConcurrency = 5

// Engine coordinates the per-dataset pipeline and fans it out across a
// bounded worker pool for batch runs.
type Engine struct {
	catalog     catalog.Client
	generator   *Generator
	cache       *FingerprintCache
	store       Store
	concurrency int
	logger      *zap.Logger
}

// NewEngine wires the pipeline stages together. cache may be nil to disable
// fingerprint caching.
func NewEngine(cat catalog.Client, gen *Generator, cache *FingerprintCache, store Store, concurrency int, logger *zap.Logger) *Engine {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		catalog:     cat,
		generator:   gen,
		cache:       cache,
		store:       store,
		concurrency: concurrency,
		logger:      logger,
	}
}

// EnrichDataset runs the full pipeline for one dataset: fetch schema,
// fingerprint it, consult the cache, generate suggestions on a miss, and
// stage the batch in the store.
func (e *Engine) EnrichDataset(ctx context.Context, datasetID string) (*SuggestionBatch, error) {
	schema, err := e.catalog.FetchSchema(ctx, datasetID)
	if err != nil {
		return nil, &ErrFetch{DatasetID: datasetID, Err: err}
	}
	fingerprint := ComputeFingerprint(schema)

	if e.cache != nil {
		if batch, ok := e.cache.Get(fingerprint, datasetID); ok {
			e.logger.Info("fingerprint cache hit",
				zap.String("dataset", datasetID),
				zap.String("fingerprint", string(fingerprint)))
			if err := e.store.SaveBatch(ctx, batch); err != nil {
				return nil, err
			}
			return batch, nil
		}
	}

	batch, err := e.generator.Generate(ctx, schema, fingerprint)
	if err != nil {
		return nil, err
	}
	if err := e.store.SaveBatch(ctx, batch); err != nil {
		return nil, err
	}
	if e.cache != nil {
		e.cache.Put(fingerprint, batch)
	}
	return batch, nil
}

// EnrichBatch enriches many datasets concurrently. Per-dataset failures are
// recorded and do not stop the batch; a fatal generation error (auth,
// invalid request) cancels the remaining work since every dataset would hit
// the same wall. Results preserve submission order.
func (e *Engine) EnrichBatch(ctx context.Context, datasetIDs []string) (*BatchResult, error) {
	pool, err := ants.NewPool(e.concurrency)
	if err != nil {
		return nil, fmt.Errorf("creating worker pool: %v", err)
	}
	defer pool.Release()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]DatasetResult, len(datasetIDs))
	var wg sync.WaitGroup
	var fatalOnce sync.Once

	for i, datasetID := range datasetIDs {
		i, datasetID := i, datasetID
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			batch, runErr := e.EnrichDataset(ctx, datasetID)
			results[i] = DatasetResult{DatasetID: datasetID, Batch: batch, Err: runErr}
			if IsFatalError(runErr) {
				e.logger.Error("fatal error, cancelling remaining datasets",
					zap.String("dataset", datasetID), zap.Error(runErr))
				fatalOnce.Do(cancel)
			}
		})
		if submitErr != nil {
			wg.Done()
			results[i] = DatasetResult{DatasetID: datasetID, Err: fmt.Errorf("submitting dataset: %v", submitErr)}
		}
	}
	wg.Wait()

	return &BatchResult{Results: results, Summary: summarize(results)}, nil
}

func summarize(results []DatasetResult) Summary {
	var summary Summary
	for _, result := range results {
		if result.Err != nil {
			var cancelled *ErrCancelled
			if errors.As(result.Err, &cancelled) || errors.Is(result.Err, context.Canceled) {
				summary.Skipped++
			} else {
				summary.Failed++
			}
			continue
		}
		summary.Succeeded++
		if result.Batch != nil {
			summary.Suggestions += len(result.Batch.Suggestions)
			summary.DroppedCandidates += result.Batch.Dropped
			if result.Batch.CacheHit {
				summary.CacheHits++
			}
		}
	}
	return summary
}

// ApplySuggestions writes approved suggestions back to the catalog. The live
// schema fingerprint is fetched once per dataset and memoized, so a batch of
// approvals for one dataset costs a single catalog read.
func (e *Engine) ApplySuggestions(ctx context.Context, suggestionIDs []string, override bool) (*ApplyReport, error) {
	report := &ApplyReport{}
	fingerprints := make(map[string]Fingerprint)

	for _, id := range suggestionIDs {
		suggestion, err := e.store.Get(ctx, id)
		if err != nil {
			report.add(ApplyOutcome{
				SuggestionID: id,
				Result:       ApplyFailed,
				Detail:       err.Error(),
				Timestamp:    time.Now().UTC(),
			})
			continue
		}

		fingerprint, ok := fingerprints[suggestion.DatasetID]
		if !ok {
			schema, fetchErr := e.catalog.FetchSchema(ctx, suggestion.DatasetID)
			if fetchErr != nil {
				report.add(ApplyOutcome{
					SuggestionID: id,
					Result:       ApplyFailed,
					Detail:       fmt.Sprintf("fetching live schema: %v", fetchErr),
					Timestamp:    time.Now().UTC(),
				})
				continue
			}
			fingerprint = ComputeFingerprint(schema)
			fingerprints[suggestion.DatasetID] = fingerprint
		}

		outcome, err := e.store.Apply(ctx, id, fingerprint, override)
		if err != nil {
			report.add(ApplyOutcome{
				SuggestionID: id,
				Result:       ApplyFailed,
				Detail:       err.Error(),
				Timestamp:    time.Now().UTC(),
			})
			continue
		}
		report.add(*outcome)
	}
	return report, nil
}

// ListSuggestions returns the pending suggestions staged for a dataset.
func (e *Engine) ListSuggestions(ctx context.Context, datasetID string) ([]Suggestion, error) {
	return e.store.ListByDataset(ctx, datasetID)
}

// ExpireSuggestions removes pending suggestions older than maxAge.
func (e *Engine) ExpireSuggestions(ctx context.Context, maxAge time.Duration) (int, error) {
	return e.store.ExpireOlderThan(ctx, maxAge)
}
