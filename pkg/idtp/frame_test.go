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

package idtp

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsilna-nav/tsilna-go/pkg/checksum"
	"github.com/tsilna-nav/tsilna-go/pkg/crc"
)

func sampleFrame(mode Mode) *Frame {
	return &Frame{
		Header: Header{
			Mode:        mode,
			DeviceID:    0x0102,
			Sequence:    1,
			Timestamp:   0x10,
			PayloadType: PayloadRaw,
		},
		Payload: []byte{0xAA, 0xBB, 0xCC},
	}
}

func TestEncode_Golden(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		mode Mode
		want []byte
	}{
		{
			name: "normal mode",
			mode: ModeNormal,
			want: []byte{
				0x49, 0x44, 0x54, 0x50, 0x01, 0x00, 0x01, 0x02, 0x00, 0x00, 0x00, 0x01,
				0x00, 0x00, 0x00, 0x10, 0x00, 0x03, 0x00, 0x40, 0xE9, 0x58, 0xAA, 0xBB, 0xCC,
			},
		},
		{
			name: "safety mode appends CRC-16",
			mode: ModeSafety,
			want: []byte{
				0x49, 0x44, 0x54, 0x50, 0x01, 0x01, 0x01, 0x02, 0x00, 0x00, 0x00, 0x01,
				0x00, 0x00, 0x00, 0x10, 0x00, 0x03, 0x00, 0xA5, 0xE8, 0xF2, 0xAA, 0xBB, 0xCC,
				0xD1, 0x85,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := sampleFrame(tt.mode)
			got, err := Encode(f)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, len(tt.want), f.Size())
			assert.Equal(t, Version, f.Header.Version)
			assert.Equal(t, uint16(3), f.Header.PayloadSize)
		})
	}
}

func TestEncode_ChecksumFieldSumsToZero(t *testing.T) {
	t.Parallel()

	for _, size := range []int{0, 1, 2, 17, MaxPayloadSize} {
		f := &Frame{Header: Header{PayloadType: PayloadRaw}, Payload: make([]byte, size)}
		for i := range f.Payload {
			f.Payload[i] = byte(i * 7)
		}

		out, err := Encode(f)
		require.NoError(t, err)

		covered := out[:HeaderSize+size]
		assert.Equal(t, uint16(0), checksum.Internet(covered), "payload size %d", size)
		assert.Equal(t, f.Header.Checksum, binary.BigEndian.Uint16(out[offChecksum:]))
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	t.Parallel()

	for _, mode := range []Mode{ModeNormal, ModeSafety} {
		t.Run(mode.String(), func(t *testing.T) {
			t.Parallel()

			f := sampleFrame(mode)
			out, err := Encode(f)
			require.NoError(t, err)

			// Trailing bytes belong to the next frame and must be left alone.
			stream := append(append([]byte(nil), out...), 0x49, 0x44)

			got, n, err := Decode(stream)
			require.NoError(t, err)
			assert.Equal(t, len(out), n)
			assert.Equal(t, f.Header, got.Header)
			assert.Equal(t, f.Payload, got.Payload)
			assert.Equal(t, f.CRC, got.CRC)
		})
	}
}

func TestEncode_Errors(t *testing.T) {
	t.Parallel()

	_, err := Encode(&Frame{Header: Header{Mode: Mode(7)}})
	require.ErrorIs(t, err, ErrUnknownMode)

	_, err = Encode(&Frame{Payload: make([]byte, MaxPayloadSize+1)})
	require.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestDecode_Incomplete(t *testing.T) {
	t.Parallel()

	out, err := Encode(sampleFrame(ModeSafety))
	require.NoError(t, err)

	for i := range len(out) {
		_, n, err := Decode(out[:i])
		require.ErrorIs(t, err, ErrIncomplete, "prefix of %d bytes", i)
		assert.Zero(t, n)
	}
}

func TestDecode_Corruption(t *testing.T) {
	t.Parallel()

	tests := []struct {
		wantErr error
		name    string
		mode    Mode
		offset  int
	}{
		{name: "preamble", mode: ModeNormal, offset: 1, wantErr: ErrBadPreamble},
		{name: "version guarded by header CRC", mode: ModeNormal, offset: offVersion, wantErr: ErrHeaderCRCMismatch},
		{name: "payload size guarded by header CRC", mode: ModeNormal, offset: offPayloadSize, wantErr: ErrHeaderCRCMismatch},
		{name: "header CRC byte", mode: ModeNormal, offset: offHeaderCRC, wantErr: ErrHeaderCRCMismatch},
		{name: "checksum field", mode: ModeNormal, offset: offChecksum, wantErr: ErrChecksumMismatch},
		{name: "payload byte", mode: ModeNormal, offset: HeaderSize + 1, wantErr: ErrChecksumMismatch},
		{name: "payload byte in safety mode", mode: ModeSafety, offset: HeaderSize, wantErr: ErrChecksumMismatch},
		{name: "trailer", mode: ModeSafety, offset: HeaderSize + 3, wantErr: ErrCRCMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			out, err := Encode(sampleFrame(tt.mode))
			require.NoError(t, err)
			out[tt.offset] ^= 0x10

			_, _, err = Decode(out)
			require.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsIntegrityError(err))
		})
	}
}

// Swapping two aligned payload words keeps the one's complement sum intact.
// Only the Safety mode CRC catches it.
func TestDecode_WordSwapCaughtOnlyBySafetyCRC(t *testing.T) {
	t.Parallel()

	build := func(mode Mode) []byte {
		f := &Frame{Header: Header{Mode: mode}, Payload: []byte{0x12, 0x34, 0x56, 0x78}}
		out, err := Encode(f)
		require.NoError(t, err)
		p := out[HeaderSize : HeaderSize+4]
		p[0], p[1], p[2], p[3] = p[2], p[3], p[0], p[1]
		return out
	}

	_, _, err := Decode(build(ModeNormal))
	require.NoError(t, err)

	_, _, err = Decode(build(ModeSafety))
	require.ErrorIs(t, err, ErrCRCMismatch)
}

func TestDecodeHeader_RejectsBadFields(t *testing.T) {
	t.Parallel()

	// Valid header CRC over invalid fields.
	rebuild := func(mutate func(b []byte)) []byte {
		out, err := Encode(sampleFrame(ModeNormal))
		require.NoError(t, err)
		mutate(out)
		out[offHeaderCRC] = crc.CRC8(out[:offHeaderCRC])
		return out
	}

	_, err := DecodeHeader(rebuild(func(b []byte) { b[offVersion] = 9 }))
	require.ErrorIs(t, err, ErrUnsupportedVersion)

	_, err = DecodeHeader(rebuild(func(b []byte) { b[offMode] = 5 }))
	require.ErrorIs(t, err, ErrUnknownMode)

	_, err = DecodeHeader(rebuild(func(b []byte) {
		binary.BigEndian.PutUint16(b[offPayloadSize:], MaxPayloadSize+1)
	}))
	require.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestFrame_Decoded(t *testing.T) {
	t.Parallel()

	data, err := IMU6{Accel: Vec3{0, 0, 9.81}}.MarshalBinary()
	require.NoError(t, err)

	f := &Frame{Header: Header{PayloadType: PayloadIMU6}, Payload: data}
	p, err := f.Decoded()
	require.NoError(t, err)

	imu, ok := p.(IMU6)
	require.True(t, ok)
	assert.InDelta(t, 9.81, imu.Accel[2], 1e-6)
}

func TestIsIntegrityError(t *testing.T) {
	t.Parallel()

	assert.False(t, IsIntegrityError(nil))
	assert.False(t, IsIntegrityError(ErrIncomplete))
	assert.False(t, IsIntegrityError(errors.New("other")))
	assert.True(t, IsIntegrityError(ErrChecksumMismatch))
}
