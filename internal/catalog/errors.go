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
package catalog

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates the requested dataset does not exist in the catalog.
var ErrNotFound = errors.New("dataset not found in catalog")

// ErrConflict indicates the catalog-side metadata changed since it was
// fetched; callers treat it the same as a stale-fingerprint skip.
var ErrConflict = errors.New("catalog metadata changed since fetch")

// TransientError wraps failures that are worth retrying, such as network
// errors and 5xx responses from the metadata service.
type TransientError struct {
	Msg string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient catalog error: %s: %v", e.Msg, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a retryable catalog failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
