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
	"time"
)

// Kind identifies what a suggestion proposes to change.
type Kind string

const (
	KindDescription Kind = "description"
	KindPIITag      Kind = "pii_tag"
	KindTag         Kind = "tag"
)

// kindPriority orders suggestions on the same column: descriptions first,
// then PII tags, then plain tags.
var kindPriority = map[Kind]int{
	KindDescription: 0,
	KindPIITag:      1,
	KindTag:         2,
}

// IsValid reports whether k is one of the recognized suggestion kinds.
func (k Kind) IsValid() bool {
	_, ok := kindPriority[k]
	return ok
}

// Suggestion is one proposed metadata change. Immutable after creation;
// corrections are modeled as new suggestions.
type Suggestion struct {
	ID          string      `json:"id"`
	DatasetID   string      `json:"dataset_id"`
	Column      string      `json:"column,omitempty"` // empty for dataset-level suggestions
	Kind        Kind        `json:"kind"`
	Value       string      `json:"value"`
	Confidence  float64     `json:"confidence"`
	Rationale   string      `json:"rationale,omitempty"`
	Fingerprint Fingerprint `json:"fingerprint"`
	CreatedAt   time.Time   `json:"created_at"`
}

// SuggestionBatch is the ordered set of suggestions one pipeline run produced
// for one dataset: column order, then kind priority, dataset-level tags last.
type SuggestionBatch struct {
	DatasetID   string       `json:"dataset_id"`
	Fingerprint Fingerprint  `json:"fingerprint"`
	GeneratedAt time.Time    `json:"generated_at"`
	Suggestions []Suggestion `json:"suggestions"`
	// Dropped counts model candidates rejected by validation.
	Dropped int `json:"dropped"`
	// CacheHit marks batches cloned from the fingerprint cache.
	CacheHit bool `json:"cache_hit,omitempty"`
}

// ApplyResult enumerates the possible outcomes of applying a suggestion.
type ApplyResult string

const (
	ApplyApplied              ApplyResult = "applied"
	ApplySkippedStale         ApplyResult = "skipped_stale"
	ApplySkippedLowConfidence ApplyResult = "skipped_low_confidence"
	ApplyFailed               ApplyResult = "failed"
)

// ApplyOutcome records what happened when a suggestion was applied.
type ApplyOutcome struct {
	SuggestionID string      `json:"suggestion_id"`
	Result       ApplyResult `json:"result"`
	Detail       string      `json:"detail,omitempty"`
	Timestamp    time.Time   `json:"timestamp"`
}

// DatasetResult is one entry of a batch run: either a suggestion batch or the
// per-dataset error that prevented it.
type DatasetResult struct {
	DatasetID string
	Batch     *SuggestionBatch
	Err       error
}

// MarshalJSON renders Err as its message so batch reports stay readable.
func (r DatasetResult) MarshalJSON() ([]byte, error) {
	out := struct {
		DatasetID string           `json:"dataset_id"`
		Batch     *SuggestionBatch `json:"batch,omitempty"`
		Error     string           `json:"error,omitempty"`
	}{DatasetID: r.DatasetID, Batch: r.Batch}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return json.Marshal(out)
}

// Summary aggregates a batch run. Callers always get counts, never a bare
// success/failure boolean.
type Summary struct {
	Succeeded         int `json:"succeeded"`
	Failed            int `json:"failed"`
	Skipped           int `json:"skipped"`
	CacheHits         int `json:"cache_hits"`
	Suggestions       int `json:"suggestions"`
	DroppedCandidates int `json:"dropped_candidates"`
}

// BatchResult holds per-dataset results in the caller's submission order plus
// the aggregated summary.
type BatchResult struct {
	Results []DatasetResult `json:"results"`
	Summary Summary         `json:"summary"`
}

// ApplyReport aggregates the outcomes of one apply request.
type ApplyReport struct {
	Outcomes             []ApplyOutcome `json:"outcomes"`
	Applied              int            `json:"applied"`
	SkippedStale         int            `json:"skipped_stale"`
	SkippedLowConfidence int            `json:"skipped_low_confidence"`
	Failed               int            `json:"failed"`
}

func (r *ApplyReport) add(outcome ApplyOutcome) {
	r.Outcomes = append(r.Outcomes, outcome)
	switch outcome.Result {
	case ApplyApplied:
		r.Applied++
	case ApplySkippedStale:
		r.SkippedStale++
	case ApplySkippedLowConfidence:
		r.SkippedLowConfidence++
	case ApplyFailed:
		r.Failed++
	}
}
