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

package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tsilna-nav/tsilna-go"
)

// ErrTooManyErrors stops a reader whose link keeps failing.
var ErrTooManyErrors = errors.New("too many consecutive read errors")

// ReopenFunc opens a fresh link after the old one failed.
type ReopenFunc func(ctx context.Context) (*tsilna.Link, error)

// recoverer replaces a dead link using a caller-provided reopen function.
type recoverer struct {
	reopen      ReopenFunc
	backoff     time.Duration
	maxAttempts int
}

func newRecoverer(reopen ReopenFunc, config RecoveryConfig) *recoverer {
	if !config.Enabled || reopen == nil {
		return nil
	}
	return &recoverer{
		reopen:      reopen,
		backoff:     config.Backoff,
		maxAttempts: config.MaxAttempts,
	}
}

// recover closes old and tries reopen up to maxAttempts times.
func (r *recoverer) recover(ctx context.Context, old *tsilna.Link) (*tsilna.Link, error) {
	if old != nil {
		_ = old.Close()
	}

	var lastErr error
	for attempt := range r.maxAttempts {
		if attempt > 0 {
			timer := time.NewTimer(r.backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}

		link, err := r.reopen(ctx)
		if err == nil {
			tsilna.Debugf("stream: link reopened after %d attempt(s)", attempt+1)
			return link, nil
		}
		lastErr = err
		tsilna.Debugf("stream: reopen attempt %d/%d failed: %v", attempt+1, r.maxAttempts, err)
	}
	return nil, fmt.Errorf("link recovery failed after %d attempts: %w", r.maxAttempts, lastErr)
}
