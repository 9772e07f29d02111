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
	"fmt"
	"sync"
	"time"
)

// CircuitState represents the current state of the circuit breaker.
type CircuitState int

const (
	// CircuitClosed means calls to the model service flow through.
	CircuitClosed CircuitState = iota
	// CircuitOpen means the circuit has tripped and calls fail fast.
	CircuitOpen
	// CircuitHalfOpen means one probe call is allowed to test recovery.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerOptions configures the engine-wide circuit breaker.
type BreakerOptions struct {
	// Threshold is the number of consecutive transient failures before the
	// circuit trips. Failures are counted across the whole engine, not per
	// dataset.
	Threshold int
	// Cooldown is how long the circuit stays open before a probe is allowed.
	Cooldown time.Duration
}

// DefaultBreakerOptions provides sensible defaults.
var DefaultBreakerOptions = BreakerOptions{
	Threshold: 5,
	Cooldown:  30 * time.Second,
}

// CircuitBreaker short-circuits model-service calls after repeated transient
// failures so a degraded provider is not hammered while cache hits and
// already-completed work continue unaffected.
type CircuitBreaker struct {
	mu               sync.Mutex
	threshold        int
	cooldown         time.Duration
	consecutiveFails int
	lastFailure      time.Time
	state            CircuitState
}

// NewCircuitBreaker creates a closed circuit breaker with the given options.
func NewCircuitBreaker(opts BreakerOptions) *CircuitBreaker {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultBreakerOptions.Threshold
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultBreakerOptions.Cooldown
	}
	return &CircuitBreaker{
		threshold: opts.Threshold,
		cooldown:  opts.Cooldown,
		state:     CircuitClosed,
	}
}

// Allow reports whether a call may proceed. After the cooldown expires the
// circuit transitions to half-open and lets a single probe through.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return nil
	case CircuitOpen:
		if time.Since(cb.lastFailure) > cb.cooldown {
			cb.state = CircuitHalfOpen
			return nil
		}
		return fmt.Errorf("model service failed %d consecutive time(s), cooling down (last failure %s ago)",
			cb.consecutiveFails, time.Since(cb.lastFailure).Round(time.Second))
	case CircuitHalfOpen:
		return fmt.Errorf("probe call already in flight, testing model service recovery")
	default:
		return fmt.Errorf("circuit breaker in unknown state: %v", cb.state)
	}
}

// RecordSuccess resets the failure count and closes the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutiveFails = 0
	cb.state = CircuitClosed
}

// RecordFailure counts a transient failure and trips the circuit once the
// threshold is reached. A failed half-open probe reopens the circuit.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFails++
	cb.lastFailure = time.Now()

	if cb.state == CircuitHalfOpen {
		cb.state = CircuitOpen
		return
	}
	if cb.consecutiveFails >= cb.threshold {
		cb.state = CircuitOpen
	}
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
