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
	"errors"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/catalog-ai-enrichment/internal/catalog"
	"github.com/GoogleCloudPlatform/catalog-ai-enrichment/internal/genai"
)

// RetryOptions configures the retry behavior for external calls.
type RetryOptions struct {
	MaxAttempts       int           // Maximum number of attempts, including the first
	InitialBackoff    time.Duration // Base backoff duration
	MaxBackoff        time.Duration // Backoff ceiling
	BackoffMultiplier float64       // Multiplier for exponential backoff
	AttemptTimeout    time.Duration // Per-attempt deadline, distinct from the retry ceiling
}

// DefaultRetryOptions provides sensible default retry settings.
var DefaultRetryOptions = RetryOptions{
	MaxAttempts:       3,
	InitialBackoff:    500 * time.Millisecond,
	MaxBackoff:        8 * time.Second,
	BackoffMultiplier: 2.0,
	AttemptTimeout:    30 * time.Second,
}

// isRetryableError determines if an error should trigger a retry. Per-attempt
// timeouts count as transient; auth errors and breaker fast-failures do not.
func isRetryableError(err error) bool {
	var rateLimited *genai.RateLimitedError
	var transient *genai.TransientError
	var open *ErrCircuitOpen
	var cancelled *ErrCancelled
	switch {
	case errors.As(err, &open), errors.As(err, &cancelled):
		return false
	case genai.IsFatal(err):
		return false
	case errors.As(err, &rateLimited), errors.As(err, &transient):
		return true
	case catalog.IsTransient(err):
		return true
	case errors.Is(err, context.DeadlineExceeded):
		return true
	default:
		return false
	}
}

// retryAfterHint extracts a provider-supplied backoff hint, if any.
func retryAfterHint(err error) (time.Duration, bool) {
	var rateLimited *genai.RateLimitedError
	if errors.As(err, &rateLimited) && rateLimited.RetryAfter > 0 {
		return rateLimited.RetryAfter, true
	}
	return 0, false
}

// WithRetry executes op with exponential backoff and full jitter, honoring a
// provider-supplied retry-after hint over the computed backoff. It returns the
// number of attempts actually made.
func WithRetry[T any](ctx context.Context, opts RetryOptions, logger *zap.Logger, op func(context.Context) (T, error)) (T, int, error) {
	var result T
	var lastErr error

	for attempt := 0; attempt < opts.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			if lastErr == nil {
				lastErr = &ErrCancelled{Msg: "operation cancelled by context", Err: ctx.Err()}
			}
			return result, attempt, lastErr
		}

		attemptCtx := ctx
		cancel := context.CancelFunc(func() {})
		if opts.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, opts.AttemptTimeout)
		}
		result, lastErr = op(attemptCtx)
		cancel()
		if lastErr == nil {
			return result, attempt + 1, nil
		}

		// A deadline hit on the parent context is a cancellation, not a
		// transient per-attempt timeout.
		if ctx.Err() != nil {
			return result, attempt + 1, &ErrCancelled{Msg: "operation cancelled by context", Err: ctx.Err()}
		}
		if !isRetryableError(lastErr) {
			return result, attempt + 1, lastErr
		}
		if attempt == opts.MaxAttempts-1 {
			return result, attempt + 1, lastErr
		}

		wait := backoffWithJitter(opts, attempt)
		if hint, ok := retryAfterHint(lastErr); ok {
			wait = hint
		}
		logger.Warn("operation failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", wait),
			zap.Error(lastErr))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, attempt + 1, &ErrCancelled{Msg: "operation cancelled during backoff", Err: ctx.Err()}
		case <-timer.C:
		}
	}

	return result, opts.MaxAttempts, lastErr
}

// backoffWithJitter computes a full-jitter delay: uniformly random in
// [0, base*multiplier^attempt], capped at MaxBackoff.
func backoffWithJitter(opts RetryOptions, attempt int) time.Duration {
	ceiling := float64(opts.InitialBackoff) * math.Pow(opts.BackoffMultiplier, float64(attempt))
	if max := float64(opts.MaxBackoff); ceiling > max {
		ceiling = max
	}
	return time.Duration(rand.Float64() * ceiling)
}
