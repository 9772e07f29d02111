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

// Package badgerstore persists pending suggestions and apply outcomes in an
// embedded BadgerDB database, and enforces the apply gates before writing a
// suggestion through to the catalog.
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/catalog-ai-enrichment/internal/catalog"
	"github.com/GoogleCloudPlatform/catalog-ai-enrichment/internal/enricher"
)

// Key prefixes. Suggestion records live under sug:, a per-dataset ordering
// index under ds:, and persisted apply outcomes under out:.
const (
	suggestionPrefix = "sug:"
	datasetPrefix    = "ds:"
	outcomePrefix    = "out:"
)

// defaultConfidenceThreshold gates Apply when the caller configures none.
const defaultConfidenceThreshold = 0.8

// Options configures a Store.
type Options struct {
	// Path is the on-disk database directory. Ignored when InMemory is set.
	Path string
	// InMemory runs BadgerDB without persistence, used in tests.
	InMemory bool
	// Writer receives applied suggestions. Required for Apply.
	Writer catalog.Client
	// ConfidenceThreshold is the minimum confidence Apply accepts without an
	// override. Zero means the default threshold.
	ConfidenceThreshold float64
	// Retry is the backoff policy for catalog writes during Apply.
	Retry enricher.RetryOptions
	Logger *zap.Logger
}

// Store implements enricher.Store on BadgerDB.
type Store struct {
	db        *badger.DB
	writer    catalog.Client
	threshold float64
	retry     enricher.RetryOptions
	logger    *zap.Logger

	// applyMu serializes Apply end to end: the prior-outcome check, the
	// catalog write, and the outcome record must not interleave, or two
	// concurrent applies of the same id could both write to the catalog.
	applyMu sync.Mutex
}

var _ enricher.Store = (*Store)(nil)

// record wraps a stored suggestion with the key of its dataset index entry,
// so Apply and expiry can remove the index entry without re-deriving the
// sequence number.
type record struct {
	Suggestion enricher.Suggestion `json:"suggestion"`
	IndexKey   string              `json:"index_key"`
}

// badgerLoggerAdapter routes BadgerDB's internal logging through zap.
type badgerLoggerAdapter struct {
	sugar *zap.SugaredLogger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, args ...interface{})   { bl.sugar.Errorf(msg, args...) }
func (bl *badgerLoggerAdapter) Warningf(msg string, args ...interface{}) { bl.sugar.Warnf(msg, args...) }
func (bl *badgerLoggerAdapter) Infof(msg string, args ...interface{})    { bl.sugar.Debugf(msg, args...) }
func (bl *badgerLoggerAdapter) Debugf(msg string, args ...interface{})   { bl.sugar.Debugf(msg, args...) }

// Open creates or opens the store.
func Open(opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.ConfidenceThreshold <= 0 {
		opts.ConfidenceThreshold = defaultConfidenceThreshold
	}

	var badgerOpts badger.Options
	if opts.InMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(opts.Path, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %v", err)
		}
		badgerOpts = badger.DefaultOptions(opts.Path)
	}
	badgerOpts.Logger = &badgerLoggerAdapter{sugar: opts.Logger.Sugar()}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("opening suggestion store: %v", err)
	}
	return &Store{
		db:        db,
		writer:    opts.Writer,
		threshold: opts.ConfidenceThreshold,
		retry:     opts.Retry,
		logger:    opts.Logger,
	}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func suggestionKey(id string) []byte {
	return []byte(suggestionPrefix + id)
}

func outcomeKey(id string) []byte {
	return []byte(outcomePrefix + id)
}

// indexKey orders suggestions within a dataset by their batch position. The
// suggestion ID rides along as the value, not parsed from the key, because
// dataset identifiers (URNs) contain the separator character.
func indexKey(datasetID string, seq int, id string) []byte {
	return []byte(fmt.Sprintf("%s%s:%06d:%s", datasetPrefix, datasetID, seq, id))
}

// SaveBatch stages every suggestion in the batch, each with an ordering
// index entry so listing preserves the batch's deterministic order.
func (s *Store) SaveBatch(ctx context.Context, batch *enricher.SuggestionBatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		for i := range batch.Suggestions {
			suggestion := batch.Suggestions[i]
			idxKey := indexKey(suggestion.DatasetID, i, suggestion.ID)
			value, err := json.Marshal(record{Suggestion: suggestion, IndexKey: string(idxKey)})
			if err != nil {
				return fmt.Errorf("encoding suggestion %s: %v", suggestion.ID, err)
			}
			if err := txn.Set(suggestionKey(suggestion.ID), value); err != nil {
				return err
			}
			if err := txn.Set(idxKey, []byte(suggestion.ID)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) getRecord(txn *badger.Txn, id string) (*record, error) {
	item, err := txn.Get(suggestionKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, enricher.ErrSuggestionNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec record
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	}); err != nil {
		return nil, fmt.Errorf("decoding suggestion %s: %v", id, err)
	}
	if !rec.Suggestion.Kind.IsValid() {
		return nil, fmt.Errorf("suggestion %s has unrecognized kind %q", id, rec.Suggestion.Kind)
	}
	return &rec, nil
}

// Get returns a pending suggestion by ID.
func (s *Store) Get(ctx context.Context, id string) (*enricher.Suggestion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var suggestion *enricher.Suggestion
	err := s.db.View(func(txn *badger.Txn) error {
		rec, err := s.getRecord(txn, id)
		if err != nil {
			return err
		}
		suggestion = &rec.Suggestion
		return nil
	})
	if err != nil {
		return nil, err
	}
	return suggestion, nil
}

// ListByDataset returns the dataset's pending suggestions in stored order.
func (s *Store) ListByDataset(ctx context.Context, datasetID string) ([]enricher.Suggestion, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var suggestions []enricher.Suggestion
	err := s.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = []byte(datasetPrefix + datasetID + ":")
		iter := txn.NewIterator(iterOpts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var id string
			if err := iter.Item().Value(func(val []byte) error {
				id = string(val)
				return nil
			}); err != nil {
				return err
			}
			rec, err := s.getRecord(txn, id)
			if errors.Is(err, enricher.ErrSuggestionNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			suggestions = append(suggestions, rec.Suggestion)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return suggestions, nil
}

// Apply pushes one suggestion through the gates and, if they pass, writes it
// to the catalog. An already-applied suggestion returns its recorded outcome
// without touching the catalog again. Gate skips are reported in the outcome
// and are not persisted, so the suggestion stays pending for a later retry.
func (s *Store) Apply(ctx context.Context, id string, currentFingerprint enricher.Fingerprint, override bool) (*enricher.ApplyOutcome, error) {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	if prior, err := s.priorOutcome(id); err != nil {
		return nil, err
	} else if prior != nil {
		return prior, nil
	}

	var rec *record
	err := s.db.View(func(txn *badger.Txn) error {
		var getErr error
		rec, getErr = s.getRecord(txn, id)
		return getErr
	})
	if err != nil {
		return nil, err
	}
	suggestion := rec.Suggestion

	if suggestion.Fingerprint != currentFingerprint {
		return &enricher.ApplyOutcome{
			SuggestionID: id,
			Result:       enricher.ApplySkippedStale,
			Detail:       "schema changed since the suggestion was generated",
			Timestamp:    time.Now().UTC(),
		}, nil
	}
	if !override && suggestion.Confidence < s.threshold {
		return &enricher.ApplyOutcome{
			SuggestionID: id,
			Result:       enricher.ApplySkippedLowConfidence,
			Detail:       fmt.Sprintf("confidence %.2f below threshold %.2f", suggestion.Confidence, s.threshold),
			Timestamp:    time.Now().UTC(),
		}, nil
	}

	if writeErr := s.writeThrough(ctx, &suggestion); writeErr != nil {
		if errors.Is(writeErr, catalog.ErrConflict) {
			return &enricher.ApplyOutcome{
				SuggestionID: id,
				Result:       enricher.ApplySkippedStale,
				Detail:       "catalog rejected the write as conflicting",
				Timestamp:    time.Now().UTC(),
			}, nil
		}
		return &enricher.ApplyOutcome{
			SuggestionID: id,
			Result:       enricher.ApplyFailed,
			Detail:       writeErr.Error(),
			Timestamp:    time.Now().UTC(),
		}, nil
	}

	outcome := &enricher.ApplyOutcome{
		SuggestionID: id,
		Result:       enricher.ApplyApplied,
		Timestamp:    time.Now().UTC(),
	}
	if err := s.recordApplied(rec, outcome); err != nil {
		return nil, err
	}
	s.logger.Info("applied suggestion",
		zap.String("id", id),
		zap.String("dataset", suggestion.DatasetID),
		zap.String("kind", string(suggestion.Kind)))
	return outcome, nil
}

func (s *Store) priorOutcome(id string) (*enricher.ApplyOutcome, error) {
	var outcome *enricher.ApplyOutcome
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(outcomeKey(id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			outcome = &enricher.ApplyOutcome{}
			return json.Unmarshal(val, outcome)
		})
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// writeThrough dispatches the catalog write for a suggestion's kind under
// the store's retry policy.
func (s *Store) writeThrough(ctx context.Context, suggestion *enricher.Suggestion) error {
	if s.writer == nil {
		return fmt.Errorf("store has no catalog writer configured")
	}
	_, _, err := enricher.WithRetry(ctx, s.retry, s.logger, func(ctx context.Context) (struct{}, error) {
		var writeErr error
		switch suggestion.Kind {
		case enricher.KindDescription:
			writeErr = s.writer.WriteDescription(ctx, suggestion.DatasetID, suggestion.Column, suggestion.Value)
		case enricher.KindPIITag:
			writeErr = s.writer.AddTag(ctx, suggestion.DatasetID, suggestion.Column, suggestion.Value)
		case enricher.KindTag:
			writeErr = s.writer.AddTag(ctx, suggestion.DatasetID, "", suggestion.Value)
		default:
			writeErr = fmt.Errorf("unknown suggestion kind %q", suggestion.Kind)
		}
		return struct{}{}, writeErr
	})
	return err
}

// recordApplied persists the outcome and removes the suggestion from the
// pending index in one transaction, making re-application a no-op. The
// suggestion record itself is kept: suggestions are append-only, and only
// age-based expiry deletes them.
func (s *Store) recordApplied(rec *record, outcome *enricher.ApplyOutcome) error {
	value, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("encoding outcome: %v", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(outcomeKey(outcome.SuggestionID), value); err != nil {
			return err
		}
		return txn.Delete([]byte(rec.IndexKey))
	})
}

// ExpireOlderThan removes pending suggestions created before now-maxAge.
func (s *Store) ExpireOlderThan(ctx context.Context, maxAge time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	cutoff := time.Now().UTC().Add(-maxAge)
	expired := 0
	err := s.db.Update(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = []byte(suggestionPrefix)
		iter := txn.NewIterator(iterOpts)
		defer iter.Close()

		type victim struct {
			suggestionKey []byte
			indexKey      []byte
		}
		var victims []victim
		for iter.Rewind(); iter.Valid(); iter.Next() {
			item := iter.Item()
			var rec record
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			if rec.Suggestion.CreatedAt.Before(cutoff) {
				victims = append(victims, victim{
					suggestionKey: item.KeyCopy(nil),
					indexKey:      []byte(rec.IndexKey),
				})
			}
		}
		for _, v := range victims {
			if err := txn.Delete(v.suggestionKey); err != nil {
				return err
			}
			if err := txn.Delete(v.indexKey); err != nil {
				return err
			}
			expired++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return expired, nil
}
