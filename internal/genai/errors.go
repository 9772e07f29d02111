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
package genai

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// RateLimitedError indicates the model service throttled the request.
// RetryAfter carries the provider's backoff hint when one was supplied.
type RateLimitedError struct {
	RetryAfter time.Duration
	Err        error
}

// AuthError indicates the request can never succeed as constructed: a bad
// API key, missing permissions, or a malformed request.
type AuthError struct {
	Msg string
	Err error
}

// TransientError indicates a failure that is expected to clear on its own.
type TransientError struct {
	Msg string
	Err error
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("model service rate limited the request (retry after %s): %v", e.RetryAfter, e.Err)
}

func (e *RateLimitedError) Unwrap() error { return e.Err }

func (e *AuthError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("model service authentication error: %s", e.Msg)
	}
	return fmt.Sprintf("model service authentication error: %s: %v", e.Msg, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient model service error: %s: %v", e.Msg, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsFatal reports whether err can never succeed on retry.
func IsFatal(err error) bool {
	var auth *AuthError
	return errors.As(err, &auth)
}

// classifyError maps a raw Gemini API error onto the package taxonomy using
// its gRPC status code.
func classifyError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return &TransientError{Msg: "unclassified model service error", Err: err}
	}
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return &AuthError{Msg: "invalid or unauthorized API key", Err: err}
	case codes.InvalidArgument:
		return &AuthError{Msg: "request rejected as invalid", Err: err}
	case codes.ResourceExhausted:
		return &RateLimitedError{RetryAfter: retryDelayHint(st), Err: err}
	default:
		return &TransientError{Msg: st.Message(), Err: err}
	}
}

// retryDelayHint extracts the RetryInfo detail some quota errors carry.
func retryDelayHint(st *status.Status) time.Duration {
	for _, detail := range st.Details() {
		if info, ok := detail.(*errdetails.RetryInfo); ok && info.GetRetryDelay() != nil {
			return info.GetRetryDelay().AsDuration()
		}
	}
	return 0
}
