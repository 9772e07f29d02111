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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreakerTripsAtThreshold(t *testing.T) {
	cb := NewCircuitBreaker(BreakerOptions{Threshold: 3, Cooldown: time.Minute})

	for i := 0; i < 2; i++ {
		cb.RecordFailure()
		assert.NoError(t, cb.Allow(), "below threshold the circuit stays closed")
	}
	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())
	assert.Error(t, cb.Allow())
}

func TestCircuitBreakerSuccessResetsCount(t *testing.T) {
	cb := NewCircuitBreaker(BreakerOptions{Threshold: 2, Cooldown: time.Minute})

	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	assert.Equal(t, CircuitClosed, cb.State(),
		"non-consecutive failures must not trip the circuit")
	assert.NoError(t, cb.Allow())
}

func TestCircuitBreakerHalfOpenProbe(t *testing.T) {
	cb := NewCircuitBreaker(BreakerOptions{Threshold: 1, Cooldown: 10 * time.Millisecond})

	cb.RecordFailure()
	require.Error(t, cb.Allow())

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, cb.Allow(), "cooldown elapsed, one probe is allowed")
	assert.Equal(t, CircuitHalfOpen, cb.State())
	assert.Error(t, cb.Allow(), "only a single probe may be in flight")

	cb.RecordSuccess()
	assert.Equal(t, CircuitClosed, cb.State())
	assert.NoError(t, cb.Allow())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(BreakerOptions{Threshold: 1, Cooldown: 10 * time.Millisecond})

	cb.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, cb.Allow())

	cb.RecordFailure()
	assert.Equal(t, CircuitOpen, cb.State())
	assert.Error(t, cb.Allow())
}

func TestCircuitStateString(t *testing.T) {
	assert.Equal(t, "closed", CircuitClosed.String())
	assert.Equal(t, "open", CircuitOpen.String())
	assert.Equal(t, "half-open", CircuitHalfOpen.String())
}
