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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsilna-nav/tsilna-go/pkg/navmath"
)

func TestPayload_RoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		payload Payload
		name    string
		size    int
	}{
		{
			name:    "imu6",
			payload: IMU6{Accel: Vec3{0.1, -0.2, 9.81}, Gyro: Vec3{0.01, 0.02, -0.03}},
			size:    IMU6Size,
		},
		{
			name: "imu9",
			payload: IMU9{
				Accel: Vec3{1, 2, 3},
				Gyro:  Vec3{4, 5, 6},
				Mag:   Vec3{22.5, -4.1, 40.2},
			},
			size: IMU9Size,
		},
		{
			name: "imu10",
			payload: IMU10{
				Accel:    Vec3{1, 2, 3},
				Gyro:     Vec3{4, 5, 6},
				Mag:      Vec3{7, 8, 9},
				Pressure: 101325,
			},
			size: IMU10Size,
		},
		{
			name:    "attitude",
			payload: AttitudeFromQuaternion(navmath.EulerFromDegrees(10, 20, 30).Quaternion()),
			size:    AttitudeSize,
		},
		{
			name:    "raw",
			payload: Raw{Kind: PayloadType(0x7E), Data: []byte{1, 2, 3}},
			size:    3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			data, err := tt.payload.MarshalBinary()
			require.NoError(t, err)
			assert.Len(t, data, tt.size)

			got, err := ParsePayload(tt.payload.Type(), data)
			require.NoError(t, err)
			assert.Equal(t, tt.payload, got)
		})
	}
}

func TestParsePayload_SizeMismatch(t *testing.T) {
	t.Parallel()

	for _, pt := range []PayloadType{PayloadIMU6, PayloadIMU9, PayloadIMU10, PayloadAttitude} {
		_, err := ParsePayload(pt, make([]byte, 5))
		require.ErrorIs(t, err, ErrPayloadSize, "type %s", pt)
	}
}

func TestParsePayload_UnknownTypeIsRaw(t *testing.T) {
	t.Parallel()

	src := []byte{9, 8, 7}
	p, err := ParsePayload(PayloadType(0x42), src)
	require.NoError(t, err)

	raw, ok := p.(Raw)
	require.True(t, ok)
	assert.Equal(t, PayloadType(0x42), raw.Type())

	// The payload must not alias the frame buffer.
	src[0] = 0
	assert.Equal(t, byte(9), raw.Data[0])
}

func TestRaw_TooLarge(t *testing.T) {
	t.Parallel()

	_, err := Raw{Data: make([]byte, MaxPayloadSize+1)}.MarshalBinary()
	require.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestAttitude_Euler(t *testing.T) {
	t.Parallel()

	want := navmath.EulerFromDegrees(-15, 5, 120)
	got := AttitudeFromQuaternion(want.Quaternion()).Euler()

	assert.InDelta(t, want.Roll, got.Roll, 1e-5)
	assert.InDelta(t, want.Pitch, got.Pitch, 1e-5)
	assert.InDelta(t, want.Yaw, got.Yaw, 1e-5)
}

func TestPayloadType_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "imu6", PayloadIMU6.String())
	assert.Equal(t, "attitude", PayloadAttitude.String())
	assert.Equal(t, "0x7E", PayloadType(0x7E).String())
}
