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

package detection

import (
	"context"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsilna-nav/tsilna-go"
	"github.com/tsilna-nav/tsilna-go/pkg/idtp"
)

func queueSequences(t *testing.T, mock *tsilna.MockTransport, deviceID uint16, seqs ...uint32) {
	t.Helper()
	for _, seq := range seqs {
		data, err := idtp.Encode(&idtp.Frame{
			Header: idtp.Header{
				Mode:        idtp.ModeNormal,
				DeviceID:    deviceID,
				Sequence:    seq,
				PayloadType: idtp.PayloadIMU6,
			},
			Payload: make([]byte, 24),
		})
		require.NoError(t, err)
		mock.QueueReceive(data)
	}
}

func probeCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	t.Cleanup(cancel)
	return ctx
}

func TestProbe_SafeHearsOneFrame(t *testing.T) {
	t.Parallel()

	mock := tsilna.NewMockTransport()
	queueSequences(t, mock, 0x0A0B, 77)

	result, err := Probe(probeCtx(t), mock, Safe)
	require.NoError(t, err)
	assert.Equal(t, ProbeResult{DeviceID: 0x0A0B, Mode: idtp.ModeNormal, PayloadType: idtp.PayloadIMU6, Frames: 1}, result)
	assert.False(t, mock.IsConnected(), "probe closes the transport")
	assert.Empty(t, mock.Sent(), "probe never writes")
}

func TestProbe_FullNeedsConsecutiveSequence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		seqs   []uint32
		wantOK bool
	}{
		{name: "three in a row", seqs: []uint32{5, 6, 7}, wantOK: true},
		{name: "gap restarts count", seqs: []uint32{5, 6, 9, 10}, wantOK: false},
		{name: "gap then run", seqs: []uint32{5, 9, 10, 11}, wantOK: true},
		{name: "wraps", seqs: []uint32{0xFFFFFFFE, 0xFFFFFFFF, 0}, wantOK: true},
		{name: "too few", seqs: []uint32{1, 2}, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			mock := tsilna.NewMockTransport()
			queueSequences(t, mock, 1, tt.seqs...)

			result, err := Probe(probeCtx(t), mock, Full)
			if !tt.wantOK {
				require.ErrorIs(t, err, ErrNotIMU)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, fullProbeFrames, result.Frames)
		})
	}
}

func TestProbe_SkipsNoiseAndCorruptFrames(t *testing.T) {
	t.Parallel()

	mock := tsilna.NewMockTransport()
	mock.QueueReceive([]byte("garbage before the first frame"))
	queueSequences(t, mock, 2, 1)

	result, err := Probe(probeCtx(t), mock, Safe)
	require.NoError(t, err)
	assert.Equal(t, uint16(2), result.DeviceID)
}

func TestProbe_Errors(t *testing.T) {
	t.Parallel()

	_, err := Probe(probeCtx(t), tsilna.NewMockTransport(), Passive)
	require.ErrorIs(t, err, tsilna.ErrInvalidParameter)

	_, err = Probe(probeCtx(t), tsilna.NewMockTransport(), Safe)
	require.ErrorIs(t, err, ErrNotIMU)

	mock := tsilna.NewMockTransport()
	mock.QueueReceiveError(syscall.EIO)
	_, err = Probe(probeCtx(t), mock, Safe)
	require.ErrorIs(t, err, syscall.EIO)
}

func TestProbeResult_Apply(t *testing.T) {
	t.Parallel()

	device := DeviceInfo{Path: "/dev/ttyUSB0", Confidence: Low}
	ProbeResult{DeviceID: 0x1F, Mode: idtp.ModeSafety, PayloadType: idtp.PayloadIMU10}.Apply(&device)

	assert.Equal(t, High, device.Confidence)
	assert.Equal(t, "0x1f", device.Metadata["device_id"])
	assert.Equal(t, idtp.ModeSafety.String(), device.Metadata["mode"])
	assert.Equal(t, idtp.PayloadIMU10.String(), device.Metadata["payload"])
}

func TestBusPaths(t *testing.T) {
	t.Setenv("TSILNA_TEST_BUSES", " SPI1.0 ,SPI0.0,, ")

	paths := BusPaths("TSILNA_TEST_BUSES", []string{"SPI0.0", "SPI0.1"})
	assert.Equal(t, []string{"SPI1.0", "SPI0.0", "SPI0.1"}, paths)
	assert.Equal(t, []string{"a"}, BusPaths("TSILNA_TEST_UNSET", []string{"a", "a"}))
}
