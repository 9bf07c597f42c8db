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


package main

import (
	"context"
	"io"
	"time"

	"github.com/tsilna-nav/tsilna-go"
	virt "github.com/tsilna-nav/tsilna-go/internal/testing"
)

const (
	// simulatedRate is the sample rate of the built-in IMU.
	simulatedRate = 100
	// simulatedChunk is read from the device per tick. It is larger than one
	// IMU6 frame, so jitter mode can deliver partial and joined frames.
	simulatedChunk = 64
)

// simulator feeds a virtual IMU's byte stream into a mock transport at a
// fixed rate, optionally through a jittery connection.
type simulator struct {
	transport *tsilna.MockTransport
	imu       *virt.VirtualIMU
	source    io.Reader
	interval  time.Duration
}

func newSimulator(cfg *config) *simulator {
	imuConfig := virt.DefaultIMUConfig()
	imuConfig.Mode = cfg.mode
	imuConfig.Payload = cfg.payload
	imuConfig.IntervalMicros = 1_000_000 / simulatedRate
	imuConfig.Seed = uint32(time.Now().UnixNano())

	imu := virt.NewVirtualIMU(imuConfig)
	var source io.Reader = imu
	if cfg.jitter {
		jitter := virt.DefaultJitterConfig()
		jitter.USBBoundaryStress = true
		jitter.FlipEvery = 4096
		jitter.Seed = imuConfig.Seed
		source = virt.NewJitteryConnection(imu, jitter)
	}

	return &simulator{
		transport: tsilna.NewMockTransport(),
		imu:       imu,
		source:    source,
		interval:  time.Second / simulatedRate,
	}
}

// run pumps the device until ctx ends or the device stops.
func (s *simulator) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	buf := make([]byte, simulatedChunk)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		n, err := s.source.Read(buf)
		if err != nil {
			tsilna.Debugf("simulator: %v", err)
			return
		}
		if n > 0 {
			s.transport.QueueReceive(buf[:n])
		}
	}
}

func (s *simulator) stop() {
	s.imu.Stop()
}
