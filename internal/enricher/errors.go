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
	"errors"
	"fmt"
)

// ErrSuggestionNotFound indicates the store has no suggestion for the id.
var ErrSuggestionNotFound = errors.New("suggestion not found")

// ErrFetch represents a per-dataset failure to retrieve the schema snapshot.
// It never aborts sibling work in a batch.
type ErrFetch struct {
	DatasetID string
	Err       error
}

// ErrGenerationTransient represents a model-call failure that persisted past
// the retry ceiling. It escalates to a per-dataset failure.
type ErrGenerationTransient struct {
	Msg      string
	Attempts int
	Err      error
}

// ErrGenerationFatal represents a systemic model-service failure
// (authentication, malformed request). It aborts the whole batch since
// retrying cannot help.
type ErrGenerationFatal struct {
	Msg string
	Err error
}

// ErrCircuitOpen represents a call short-circuited by the engine-wide
// circuit breaker. It fails fast and is not retried.
type ErrCircuitOpen struct {
	Err error
}

// ErrCancelled represents errors when an operation is cancelled.
type ErrCancelled struct {
	Msg string
	Err error
}

func (e *ErrFetch) Error() string {
	return fmt.Sprintf("failed to fetch schema for %s: %v", e.DatasetID, e.Err)
}

func (e *ErrFetch) Unwrap() error { return e.Err }

func (e *ErrGenerationTransient) Error() string {
	return fmt.Sprintf("suggestion generation failed after %d attempt(s): %s: %v", e.Attempts, e.Msg, e.Err)
}

func (e *ErrGenerationTransient) Unwrap() error { return e.Err }

func (e *ErrGenerationFatal) Error() string {
	return fmt.Sprintf("fatal generation error: %s: %v", e.Msg, e.Err)
}

func (e *ErrGenerationFatal) Unwrap() error { return e.Err }

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("model service circuit open: %v", e.Err)
}

func (e *ErrCircuitOpen) Unwrap() error { return e.Err }

func (e *ErrCancelled) Error() string {
	return fmt.Sprintf("operation cancelled: %s: %v", e.Msg, e.Err)
}

func (e *ErrCancelled) Unwrap() error { return e.Err }

// IsFatalError reports whether err should abort an entire batch.
func IsFatalError(err error) bool {
	var fatal *ErrGenerationFatal
	return errors.As(err, &fatal)
}
