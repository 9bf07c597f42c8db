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
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsilna-nav/tsilna-go/pkg/idtp"
)

// readFrames pulls bytes from r into a decoder until want frames decode.
func readFrames(t *testing.T, r interface{ Read([]byte) (int, error) }, want int) ([]*idtp.Frame, idtp.DecoderStats) {
	t.Helper()

	dec := idtp.NewDecoder()
	buf := make([]byte, 256)
	var frames []*idtp.Frame
	for reads := 0; len(frames) < want; reads++ {
		require.Less(t, reads, 100000, "stream never produced %d frames", want)

		n, err := r.Read(buf)
		require.NoError(t, err)
		_, _ = dec.Write(buf[:n])

		for {
			f, err := dec.Next()
			if errors.Is(err, idtp.ErrIncomplete) {
				break
			}
			if err == nil {
				frames = append(frames, f)
			}
		}
	}
	return frames, dec.Stats()
}

func TestJitteryConnection_PassThrough(t *testing.T) {
	t.Parallel()

	imu := NewVirtualIMU(DefaultIMUConfig())
	jittery := NewJitteryConnection(imu, JitterConfig{Seed: 12345})

	frames, stats := readFrames(t, jittery, 5)
	assert.Zero(t, stats.DroppedBytes)
	for i, f := range frames {
		assert.Equal(t, uint32(i), f.Header.Sequence)
	}
}

func TestJitteryConnection_FragmentationKeepsData(t *testing.T) {
	t.Parallel()

	imu := NewVirtualIMU(DefaultIMUConfig())
	jittery := NewJitteryConnection(imu, JitterConfig{
		FragmentReads:    true,
		FragmentMinBytes: 1,
		Seed:             42,
	})

	frames, stats := readFrames(t, jittery, 20)
	assert.Zero(t, stats.DroppedBytes)

	emitted := imu.Emitted()
	for i, f := range frames {
		p, err := f.Decoded()
		require.NoError(t, err)
		assert.Equal(t, emitted[i], p)
	}
}

func TestJitteryConnection_USBBoundaryStress(t *testing.T) {
	t.Parallel()

	imu := NewVirtualIMU(DefaultIMUConfig())
	imu.SetAutoStream(false)
	imu.Emit(4)
	jittery := NewJitteryConnection(imu, JitterConfig{USBBoundaryStress: true, Seed: 7})

	buf := make([]byte, 512)
	for jittery.Delivered() < 4*(idtp.HeaderSize+idtp.IMU6Size) {
		before := jittery.Delivered()
		n, err := jittery.Read(buf)
		require.NoError(t, err)
		// A read never crosses a 64-byte packet boundary.
		assert.LessOrEqual(t, before%64+n, 64)
	}
}

func TestJitteryConnection_StallAfterBytes(t *testing.T) {
	t.Parallel()

	imu := NewVirtualIMU(DefaultIMUConfig())
	stall := 30 * time.Millisecond
	jittery := NewJitteryConnection(imu, JitterConfig{
		StallAfterBytes: 3,
		StallDuration:   stall,
		Seed:            1,
	})

	buf := make([]byte, 64)
	n, err := jittery.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	start := time.Now()
	_, err = jittery.Read(buf)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), stall)

	jittery.ResetStallState()
	assert.Zero(t, jittery.Delivered())
	assert.False(t, jittery.stallTriggered)
}

func TestJitteryConnection_CorruptionIsCaught(t *testing.T) {
	t.Parallel()

	config := DefaultIMUConfig()
	config.Mode = idtp.ModeSafety
	imu := NewVirtualIMU(config)
	jittery := NewJitteryConnection(imu, JitterConfig{
		FragmentReads:    true,
		FragmentMinBytes: 4,
		FlipEvery:        300,
		Seed:             99,
	})

	frames, stats := readFrames(t, jittery, 100)
	require.Positive(t, jittery.Flipped())
	assert.Positive(t, stats.HeaderErrors+stats.ChecksumErrors+stats.CRCErrors)

	// Every frame that survived matches what the device generated.
	emitted := imu.Emitted()
	for _, f := range frames {
		p, err := f.Decoded()
		require.NoError(t, err)
		assert.Equal(t, emitted[f.Header.Sequence], p, "sequence %d", f.Header.Sequence)
	}
}

func TestJitteryConnection_WritePassesThrough(t *testing.T) {
	t.Parallel()

	imu := NewVirtualIMU(DefaultIMUConfig())
	jittery := NewJitteryConnection(imu, JitterConfig{FlipEvery: 1, Seed: 3})

	enc := idtp.NewEncoder(9, idtp.ModeNormal)
	data, err := enc.Encode(0, idtp.Raw{Data: []byte("cal"), Kind: 0x20})
	require.NoError(t, err)

	n, err := jittery.Write(data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	require.Len(t, imu.Received(), 1)
	assert.True(t, bytes.Equal([]byte("cal"), imu.Received()[0].Payload))
}

func TestDefaultJitterConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultJitterConfig()
	assert.True(t, cfg.FragmentReads)
	assert.Equal(t, 1, cfg.FragmentMinBytes)
	assert.Zero(t, cfg.FlipEvery)
	assert.NotZero(t, cfg.Seed)
}
