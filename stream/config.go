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
	"fmt"
	"time"

	"github.com/tsilna-nav/tsilna-go"
)

// RecoveryConfig configures reconnection after the link reports a fatal error.
type RecoveryConfig struct {
	// Enabled turns reconnection on. It also needs a Reopen function.
	Enabled bool

	// MaxAttempts is the number of reopen attempts before the error is
	// reported as fatal. Default: 3
	MaxAttempts int

	// Backoff is the delay between attempts.
	Backoff time.Duration
}

// DefaultRecoveryConfig returns sensible defaults for reconnection
func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		Enabled:     true,
		MaxAttempts: 3,
		Backoff:     500 * time.Millisecond,
	}
}

// Config holds reader configuration options
type Config struct {
	// StallTimeout is how long the stream may go without a valid frame
	// before OnStall fires. Zero disables stall reporting.
	StallTimeout time.Duration

	// MaxConsecutiveErrors stops the reader after this many retryable
	// errors in a row. Zero means no limit.
	MaxConsecutiveErrors int

	Recovery RecoveryConfig
}

// DefaultConfig returns the default reader configuration
func DefaultConfig() *Config {
	return &Config{
		StallTimeout:         time.Second,
		MaxConsecutiveErrors: 0,
		Recovery:             DefaultRecoveryConfig(),
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch {
	case c.StallTimeout < 0:
		return fmt.Errorf("%w: stall timeout %v", tsilna.ErrInvalidParameter, c.StallTimeout)
	case c.MaxConsecutiveErrors < 0:
		return fmt.Errorf("%w: max consecutive errors %d", tsilna.ErrInvalidParameter, c.MaxConsecutiveErrors)
	case c.Recovery.Enabled && c.Recovery.MaxAttempts <= 0:
		return fmt.Errorf("%w: recovery attempts %d", tsilna.ErrInvalidParameter, c.Recovery.MaxAttempts)
	case c.Recovery.Backoff < 0:
		return fmt.Errorf("%w: recovery backoff %v", tsilna.ErrInvalidParameter, c.Recovery.Backoff)
	}
	return nil
}
