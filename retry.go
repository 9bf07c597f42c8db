// Copyright 2026 The Tsilna Nav Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tsilna

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (0 = single attempt, no retry)
	MaxAttempts int
	// InitialBackoff is the wait before the second attempt
	InitialBackoff time.Duration
	// MaxBackoff caps the wait between attempts
	MaxBackoff time.Duration
	// BackoffMultiplier grows the wait after each failed attempt
	BackoffMultiplier float64
	// Jitter adds up to this fraction of the wait at random
	Jitter float64
	// RetryTimeout bounds all attempts together (0 = no bound)
	RetryTimeout time.Duration
}

// DefaultRetryConfig returns the retry configuration used for frame sends.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       SendRetries,
		InitialBackoff:    SendInitialBackoff,
		MaxBackoff:        SendMaxBackoff,
		BackoffMultiplier: SendBackoffMultiplier,
		Jitter:            SendJitter,
		RetryTimeout:      SendRetryTimeout,
	}
}

// Validate rejects configurations that would misbehave at runtime.
func (c *RetryConfig) Validate() error {
	switch {
	case c.MaxAttempts < 0:
		return fmt.Errorf("%w: negative MaxAttempts %d", ErrInvalidParameter, c.MaxAttempts)
	case c.InitialBackoff < 0 || c.MaxBackoff < 0:
		return fmt.Errorf("%w: negative backoff", ErrInvalidParameter)
	case c.BackoffMultiplier < 1 && c.MaxAttempts > 1:
		return fmt.Errorf("%w: BackoffMultiplier %.2f below 1", ErrInvalidParameter, c.BackoffMultiplier)
	case c.Jitter < 0 || c.Jitter > 1:
		return fmt.Errorf("%w: Jitter %.2f outside [0, 1]", ErrInvalidParameter, c.Jitter)
	default:
		return nil
	}
}

// RetryableFunc is one attempt of a retried operation.
type RetryableFunc func(ctx context.Context) error

// RetryWithConfig runs fn until it succeeds, returns a non-retryable error,
// or the attempts or the time budget run out. The last error is returned.
func RetryWithConfig(ctx context.Context, config *RetryConfig, fn RetryableFunc) error {
	if config == nil {
		config = DefaultRetryConfig()
	}

	if config.MaxAttempts <= 1 {
		return fn(ctx)
	}

	if config.RetryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.RetryTimeout)
		defer cancel()
	}

	var lastErr error
	backoff := config.InitialBackoff

	for attempt := range config.MaxAttempts {
		if ctx.Err() != nil {
			if lastErr != nil {
				return lastErr
			}
			return fmt.Errorf("retry context cancelled: %w", ctx.Err())
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return err
		}
		lastErr = err
		Debugf("attempt %d/%d failed: %v", attempt+1, config.MaxAttempts, err)

		if attempt == config.MaxAttempts-1 {
			break
		}
		if !sleepCtx(ctx, jittered(backoff, config.Jitter)) {
			return lastErr
		}
		backoff = nextBackoff(backoff, config)
	}

	return lastErr
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func nextBackoff(backoff time.Duration, config *RetryConfig) time.Duration {
	next := time.Duration(float64(backoff) * config.BackoffMultiplier)
	if config.MaxBackoff > 0 && next > config.MaxBackoff {
		return config.MaxBackoff
	}
	return next
}

func jittered(base time.Duration, factor float64) time.Duration {
	if factor <= 0 || base <= 0 {
		return base
	}
	return base + time.Duration(rand.Float64()*factor*float64(base)) //nolint:gosec // timing jitter only
}
