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
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/catalog-ai-enrichment/internal/catalog"
	"github.com/GoogleCloudPlatform/catalog-ai-enrichment/internal/genai"
)

// piiTagValue is the tag attached to columns flagged as sensitive.
const piiTagValue = "PII"

// Generator turns a schema snapshot into a validated suggestion batch via
// language-model calls. It owns prompt construction, the retry/backoff policy
// for model calls, and response parsing.
type Generator struct {
	model   genai.ModelClient
	retry   RetryOptions
	breaker *CircuitBreaker
	logger  *zap.Logger

	// Enrichments gates which suggestion kinds are generated. An empty map
	// means all kinds are requested.
	Enrichments map[string]bool
	// AdditionalContext is extra documentation fed to description prompts.
	AdditionalContext string
}

// NewGenerator creates a generator. The circuit breaker is shared across the
// engine: consecutive transient failures from any dataset's pipeline count
// toward the same trip threshold.
func NewGenerator(model genai.ModelClient, retry RetryOptions, breaker *CircuitBreaker, logger *zap.Logger) *Generator {
	if breaker == nil {
		breaker = NewCircuitBreaker(DefaultBreakerOptions)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		model:   model,
		retry:   retry,
		breaker: breaker,
		logger:  logger,
	}
}

func (g *Generator) isRequested(enrichment string) bool {
	if len(g.Enrichments) == 0 {
		return true
	}
	return g.Enrichments[strings.ToLower(enrichment)]
}

// Generate runs the enabled model calls for a schema and assembles the
// validated, deterministically ordered suggestion batch. Individual malformed
// candidates are dropped and counted; only transport-level failures surface
// as errors.
func (g *Generator) Generate(ctx context.Context, schema *catalog.SchemaSnapshot, fingerprint Fingerprint) (*SuggestionBatch, error) {
	now := time.Now().UTC()
	batch := &SuggestionBatch{
		DatasetID:   schema.DatasetID,
		Fingerprint: fingerprint,
		GeneratedAt: now,
	}
	columns := columnIndex(schema)

	if g.isRequested("descriptions") {
		raw, err := g.complete(ctx, buildColumnDescriptionPrompt(schema, g.AdditionalContext))
		if err != nil {
			return nil, err
		}
		suggestions, dropped := g.parseDescriptions(schema.DatasetID, raw, columns)
		batch.Suggestions = append(batch.Suggestions, suggestions...)
		batch.Dropped += dropped
	}

	if g.isRequested("pii") {
		raw, err := g.complete(ctx, buildPIIDetectionPrompt(schema))
		if err != nil {
			return nil, err
		}
		suggestions, dropped := g.parsePIIFlags(schema.DatasetID, raw, columns)
		batch.Suggestions = append(batch.Suggestions, suggestions...)
		batch.Dropped += dropped
	}

	if g.isRequested("tags") {
		raw, err := g.complete(ctx, buildTagSuggestionPrompt(schema))
		if err != nil {
			return nil, err
		}
		suggestions, dropped := g.parseTags(schema.DatasetID, raw)
		batch.Suggestions = append(batch.Suggestions, suggestions...)
		batch.Dropped += dropped
	}

	sortSuggestions(batch.Suggestions, columns)
	for i := range batch.Suggestions {
		batch.Suggestions[i].ID = uuid.NewString()
		batch.Suggestions[i].Fingerprint = fingerprint
		batch.Suggestions[i].CreatedAt = now
	}

	g.logger.Info("generated suggestions",
		zap.String("dataset", schema.DatasetID),
		zap.Int("suggestions", len(batch.Suggestions)),
		zap.Int("dropped", batch.Dropped))
	return batch, nil
}

// complete runs one model call under the shared circuit breaker and the retry
// policy, and maps exhaustion and auth failures onto the engine's error
// taxonomy.
func (g *Generator) complete(ctx context.Context, prompt string) (string, error) {
	text, attempts, err := WithRetry(ctx, g.retry, g.logger, func(ctx context.Context) (string, error) {
		if breakerErr := g.breaker.Allow(); breakerErr != nil {
			return "", &ErrCircuitOpen{Err: breakerErr}
		}
		out, callErr := g.model.Complete(ctx, prompt)
		if callErr != nil {
			if isRetryableError(callErr) {
				g.breaker.RecordFailure()
			}
			return "", callErr
		}
		g.breaker.RecordSuccess()
		return out, nil
	})
	if err == nil {
		return text, nil
	}

	if genai.IsFatal(err) {
		return "", &ErrGenerationFatal{Msg: "model service rejected the request", Err: err}
	}
	var cancelled *ErrCancelled
	if errors.As(err, &cancelled) {
		return "", err
	}
	return "", &ErrGenerationTransient{Msg: "model call did not succeed", Attempts: attempts, Err: err}
}

// columnIndex maps folded column names to their canonical name and position,
// used both for candidate validation and for deterministic ordering.
type columnRef struct {
	name     string
	position int
}

func columnIndex(schema *catalog.SchemaSnapshot) map[string]columnRef {
	index := make(map[string]columnRef, len(schema.Columns))
	for i, col := range schema.Columns {
		index[strings.ToLower(col.Name)] = columnRef{name: col.Name, position: i}
	}
	return index
}

// decodeCandidateList splits the model response into individually decodable
// candidates, so one malformed entry never poisons its siblings. An
// undecodable response counts as a single dropped candidate.
func (g *Generator) decodeCandidateList(raw string) ([]json.RawMessage, int) {
	jsonStr, err := extractJSON(raw)
	if err != nil {
		g.logger.Warn("model response contained no decodable JSON", zap.Error(err))
		return nil, 1
	}
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(jsonStr), &items); err != nil {
		g.logger.Warn("model response was not a JSON array", zap.Error(err))
		return nil, 1
	}
	return items, 0
}

// normalizeConfidence applies the validation rule for confidence values:
// absent defaults to 0, out-of-range values invalidate the candidate.
func normalizeConfidence(confidence *float64) (float64, bool) {
	if confidence == nil {
		return 0, true
	}
	if *confidence < 0 || *confidence > 1 {
		return 0, false
	}
	return *confidence, true
}

type descriptionCandidate struct {
	Column      string   `json:"column"`
	Description string   `json:"description"`
	Confidence  *float64 `json:"confidence"`
	Rationale   string   `json:"rationale"`
}

func (g *Generator) parseDescriptions(datasetID, raw string, columns map[string]columnRef) ([]Suggestion, int) {
	items, dropped := g.decodeCandidateList(raw)
	var suggestions []Suggestion
	for _, item := range items {
		var cand descriptionCandidate
		if err := json.Unmarshal(item, &cand); err != nil {
			g.logger.Warn("dropping undecodable description candidate", zap.Error(err))
			dropped++
			continue
		}
		ref, ok := columns[strings.ToLower(cand.Column)]
		if !ok || strings.TrimSpace(cand.Description) == "" {
			g.logger.Warn("dropping invalid description candidate",
				zap.String("dataset", datasetID), zap.String("column", cand.Column))
			dropped++
			continue
		}
		confidence, ok := normalizeConfidence(cand.Confidence)
		if !ok {
			dropped++
			continue
		}
		suggestions = append(suggestions, Suggestion{
			DatasetID:  datasetID,
			Column:     ref.name,
			Kind:       KindDescription,
			Value:      strings.TrimSpace(cand.Description),
			Confidence: confidence,
			Rationale:  cand.Rationale,
		})
	}
	return suggestions, dropped
}

type piiCandidate struct {
	Column     string   `json:"column"`
	PIIType    string   `json:"pii_type"`
	Confidence *float64 `json:"confidence"`
	Rationale  string   `json:"rationale"`
}

func (g *Generator) parsePIIFlags(datasetID, raw string, columns map[string]columnRef) ([]Suggestion, int) {
	items, dropped := g.decodeCandidateList(raw)
	var suggestions []Suggestion
	for _, item := range items {
		var cand piiCandidate
		if err := json.Unmarshal(item, &cand); err != nil {
			g.logger.Warn("dropping undecodable PII candidate", zap.Error(err))
			dropped++
			continue
		}
		ref, ok := columns[strings.ToLower(cand.Column)]
		if !ok {
			g.logger.Warn("dropping PII candidate for unknown column",
				zap.String("dataset", datasetID), zap.String("column", cand.Column))
			dropped++
			continue
		}
		confidence, ok := normalizeConfidence(cand.Confidence)
		if !ok {
			dropped++
			continue
		}
		rationale := cand.Rationale
		if cand.PIIType != "" {
			rationale = strings.TrimSpace("detected type: " + cand.PIIType + ". " + rationale)
		}
		suggestions = append(suggestions, Suggestion{
			DatasetID:  datasetID,
			Column:     ref.name,
			Kind:       KindPIITag,
			Value:      piiTagValue,
			Confidence: confidence,
			Rationale:  rationale,
		})
	}
	return suggestions, dropped
}

type tagCandidate struct {
	Tag        string   `json:"tag"`
	Confidence *float64 `json:"confidence"`
	Rationale  string   `json:"rationale"`
}

func (g *Generator) parseTags(datasetID, raw string) ([]Suggestion, int) {
	items, dropped := g.decodeCandidateList(raw)
	var suggestions []Suggestion
	for _, item := range items {
		var cand tagCandidate
		if err := json.Unmarshal(item, &cand); err != nil {
			g.logger.Warn("dropping undecodable tag candidate", zap.Error(err))
			dropped++
			continue
		}
		tag := strings.TrimSpace(cand.Tag)
		if tag == "" {
			dropped++
			continue
		}
		confidence, ok := normalizeConfidence(cand.Confidence)
		if !ok {
			dropped++
			continue
		}
		suggestions = append(suggestions, Suggestion{
			DatasetID:  datasetID,
			Kind:       KindTag,
			Value:      tag,
			Confidence: confidence,
			Rationale:  cand.Rationale,
		})
	}
	return suggestions, dropped
}

// sortSuggestions enforces the deterministic batch order: column order, then
// kind priority within a column, dataset-level suggestions last. The model's
// own response ordering never leaks through.
func sortSuggestions(suggestions []Suggestion, columns map[string]columnRef) {
	position := func(s Suggestion) int {
		if s.Column == "" {
			return int(^uint(0) >> 1) // dataset-level sorts last
		}
		if ref, ok := columns[strings.ToLower(s.Column)]; ok {
			return ref.position
		}
		return int(^uint(0)>>1) - 1
	}
	sort.SliceStable(suggestions, func(i, j int) bool {
		pi, pj := position(suggestions[i]), position(suggestions[j])
		if pi != pj {
			return pi < pj
		}
		if kindPriority[suggestions[i].Kind] != kindPriority[suggestions[j].Kind] {
			return kindPriority[suggestions[i].Kind] < kindPriority[suggestions[j].Kind]
		}
		return suggestions[i].Value < suggestions[j].Value
	})
}
