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

import "time"

// Send retry constants. A frame is small and the stream keeps moving, so
// retries are short and few.
const (
	// SendRetries is the number of attempts for one frame send.
	SendRetries = 3
	// SendInitialBackoff is the delay before the first resend.
	SendInitialBackoff = 5 * time.Millisecond
	// SendMaxBackoff caps the delay between resends.
	SendMaxBackoff = 50 * time.Millisecond
	// SendBackoffMultiplier is the exponential backoff multiplier.
	SendBackoffMultiplier = 2.0
	// SendJitter is the random jitter factor (0.0-1.0).
	SendJitter = 0.1
	// SendRetryTimeout bounds all attempts for one frame.
	SendRetryTimeout = 250 * time.Millisecond
)

// Receive constants.
const (
	// DefaultReadTimeout is the transport read timeout set by NewLink. At
	// 1 kHz an IMU emits a frame every millisecond, so a silent link for this
	// long means the device stalled.
	DefaultReadTimeout = 100 * time.Millisecond
	// DefaultReadBufferSize is the chunk size for one transport read.
	DefaultReadBufferSize = 4096
	// MaxReadBufferSize bounds WithReadBufferSize.
	MaxReadBufferSize = 64 * 1024
)

// Transport drain constants.
const (
	// TransportDrainRetries is the number of attempts to drain stale data
	// after opening a port.
	TransportDrainRetries = 3
	// TransportDrainTimeout is the per-attempt read timeout while draining.
	TransportDrainTimeout = 10 * time.Millisecond
)
