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

package testing

import (
	"io"
	"time"

	"github.com/tsilna-nav/tsilna-go/pkg/navmath"
)

// JitterConfig configures the behavior of JitteryConnection.
type JitterConfig struct {
	MaxLatency       time.Duration
	StallDuration    time.Duration
	FragmentMinBytes int
	StallAfterBytes  int
	// FlipEvery flips one random bit in roughly one of every FlipEvery bytes
	// delivered. Zero disables corruption.
	FlipEvery         int
	Seed              uint32
	FragmentReads     bool
	USBBoundaryStress bool
}

// DefaultJitterConfig returns a sensible default configuration for testing.
func DefaultJitterConfig() JitterConfig {
	return JitterConfig{
		MaxLatency:       2 * time.Millisecond,
		FragmentReads:    true,
		FragmentMinBytes: 1,
		Seed:             1,
	}
}

// JitteryConnection wraps an io.ReadWriter to simulate a USB-UART bridge or
// a noisy bus: random latency, fragmented delivery, a stall at a byte count
// and occasional bit errors. Reads are buffered so fragmentation never loses
// data. Writes pass through untouched.
type JitteryConnection struct {
	backend        io.ReadWriter
	rng            *navmath.Xorshift
	readBuf        []byte
	config         JitterConfig
	delivered      int
	flipped        int
	stallTriggered bool
}

// NewJitteryConnection wraps backend with jitter simulation.
func NewJitteryConnection(backend io.ReadWriter, config JitterConfig) *JitteryConnection {
	if config.FragmentMinBytes < 1 {
		config.FragmentMinBytes = 1
	}
	return &JitteryConnection{
		backend: backend,
		config:  config,
		rng:     navmath.NewXorshift(config.Seed),
		readBuf: make([]byte, 0, 1024),
	}
}

// Write passes writes through to the backend without modification.
func (j *JitteryConnection) Write(data []byte) (int, error) {
	return j.backend.Write(data) //nolint:wrapcheck // pass-through wrapper
}

// Read reads from the backend with simulated jitter and fragmentation.
func (j *JitteryConnection) Read(buf []byte) (int, error) {
	if j.config.MaxLatency > 0 {
		time.Sleep(time.Duration(j.intn(int(j.config.MaxLatency) + 1)))
	}

	if len(j.readBuf) == 0 {
		tmp := make([]byte, 1024)
		n, err := j.backend.Read(tmp)
		if err != nil {
			return 0, err //nolint:wrapcheck // pass-through wrapper
		}
		if n == 0 {
			return 0, nil
		}
		j.readBuf = append(j.readBuf, tmp[:n]...)
	}

	toReturn := min(len(j.readBuf), len(buf))

	if j.config.StallAfterBytes > 0 && !j.stallTriggered {
		if j.delivered >= j.config.StallAfterBytes {
			j.stallTriggered = true
			time.Sleep(j.config.StallDuration)
		} else {
			toReturn = min(toReturn, j.config.StallAfterBytes-j.delivered)
		}
	}

	// Full-speed USB delivers at most one 64-byte packet per transfer.
	if j.config.USBBoundaryStress && toReturn > 0 {
		untilBoundary := 64 - j.delivered%64
		toReturn = min(toReturn, untilBoundary)
	}

	if j.config.FragmentReads && toReturn > j.config.FragmentMinBytes {
		toReturn = j.config.FragmentMinBytes + j.intn(toReturn-j.config.FragmentMinBytes+1)
	}

	n := copy(buf, j.readBuf[:toReturn])
	j.readBuf = j.readBuf[n:]
	j.corrupt(buf[:n])
	j.delivered += n
	return n, nil
}

func (j *JitteryConnection) corrupt(b []byte) {
	if j.config.FlipEvery <= 0 {
		return
	}
	for i := range b {
		if j.intn(j.config.FlipEvery) == 0 {
			b[i] ^= 1 << j.intn(8)
			j.flipped++
		}
	}
}

func (j *JitteryConnection) intn(n int) int {
	if n <= 1 {
		return 0
	}
	return int(j.rng.Uint32() % uint32(n)) //nolint:gosec // n is small and positive
}

// Delivered returns the number of bytes handed to readers.
func (j *JitteryConnection) Delivered() int {
	return j.delivered
}

// Flipped returns the number of bits corrupted so far.
func (j *JitteryConnection) Flipped() int {
	return j.flipped
}

// ResetStallState re-arms the stall.
func (j *JitteryConnection) ResetStallState() {
	j.delivered = 0
	j.stallTriggered = false
}

// ClearBuffer clears any buffered read data.
func (j *JitteryConnection) ClearBuffer() {
	j.readBuf = j.readBuf[:0]
}
