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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GoogleCloudPlatform/catalog-ai-enrichment/internal/genai"
)

func fastRetryOptions() RetryOptions {
	return RetryOptions{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2.0,
		AttemptTimeout:    time.Second,
	}
}

func TestWithRetryTransientThenSuccess(t *testing.T) {
	calls := 0
	result, attempts, err := WithRetry(context.Background(), fastRetryOptions(), zap.NewNop(),
		func(ctx context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", &genai.TransientError{Msg: "flaky", Err: errors.New("boom")}
			}
			return "ok", nil
		})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, calls)
}

func TestWithRetryFatalNotRetried(t *testing.T) {
	calls := 0
	_, attempts, err := WithRetry(context.Background(), fastRetryOptions(), zap.NewNop(),
		func(ctx context.Context) (string, error) {
			calls++
			return "", &genai.AuthError{Msg: "bad key"}
		})
	require.Error(t, err)
	assert.True(t, genai.IsFatal(err))
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}

func TestWithRetryCircuitOpenNotRetried(t *testing.T) {
	calls := 0
	_, attempts, err := WithRetry(context.Background(), fastRetryOptions(), zap.NewNop(),
		func(ctx context.Context) (string, error) {
			calls++
			return "", &ErrCircuitOpen{Err: errors.New("cooling down")}
		})
	require.Error(t, err)
	var open *ErrCircuitOpen
	assert.ErrorAs(t, err, &open)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}

func TestWithRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	_, attempts, err := WithRetry(context.Background(), fastRetryOptions(), zap.NewNop(),
		func(ctx context.Context) (string, error) {
			calls++
			return "", &genai.TransientError{Msg: "still down", Err: errors.New("boom")}
		})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, calls)
}

func TestWithRetryHonorsRetryAfterHint(t *testing.T) {
	opts := fastRetryOptions()
	opts.MaxAttempts = 2

	hint := 30 * time.Millisecond
	calls := 0
	start := time.Now()
	_, _, err := WithRetry(context.Background(), opts, zap.NewNop(),
		func(ctx context.Context) (string, error) {
			calls++
			if calls == 1 {
				return "", &genai.RateLimitedError{RetryAfter: hint, Err: errors.New("quota")}
			}
			return "ok", nil
		})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), hint,
		"second attempt must wait at least the provider hint")
}

func TestWithRetryCancelledDuringBackoff(t *testing.T) {
	opts := fastRetryOptions()
	opts.InitialBackoff = time.Second
	opts.MaxBackoff = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, _, err := WithRetry(ctx, opts, zap.NewNop(),
		func(ctx context.Context) (string, error) {
			return "", &genai.RateLimitedError{RetryAfter: time.Second, Err: errors.New("quota")}
		})
	require.Error(t, err)
	var cancelled *ErrCancelled
	assert.ErrorAs(t, err, &cancelled)
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limited", &genai.RateLimitedError{Err: errors.New("quota")}, true},
		{"transient", &genai.TransientError{Msg: "blip"}, true},
		{"per-attempt deadline", context.DeadlineExceeded, true},
		{"auth", &genai.AuthError{Msg: "bad key"}, false},
		{"circuit open", &ErrCircuitOpen{Err: errors.New("open")}, false},
		{"cancelled", &ErrCancelled{Msg: "ctx"}, false},
		{"unknown", errors.New("unknown"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryableError(tt.err))
		})
	}
}
