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
	"fmt"
	"math"

	"github.com/tsilna-nav/tsilna-go/pkg/navmath"
)

// PayloadType identifies the layout of a frame payload.
type PayloadType uint8

// Payload types
const (
	PayloadRaw      PayloadType = 0x00 // opaque bytes
	PayloadIMU6     PayloadType = 0x01 // accelerometer + gyroscope
	PayloadIMU9     PayloadType = 0x02 // IMU6 + magnetometer
	PayloadIMU10    PayloadType = 0x03 // IMU9 + barometer
	PayloadAttitude PayloadType = 0x10 // unit quaternion
)

// Payload sizes in bytes
const (
	IMU6Size     = 6 * 4
	IMU9Size     = 9 * 4
	IMU10Size    = 10 * 4
	AttitudeSize = 4 * 4
)

func (t PayloadType) String() string {
	switch t {
	case PayloadRaw:
		return "raw"
	case PayloadIMU6:
		return "imu6"
	case PayloadIMU9:
		return "imu9"
	case PayloadIMU10:
		return "imu10"
	case PayloadAttitude:
		return "attitude"
	default:
		return fmt.Sprintf("0x%02X", uint8(t))
	}
}

// Payload is a typed frame payload.
type Payload interface {
	Type() PayloadType
	MarshalBinary() ([]byte, error)
}

// Vec3 is an X, Y, Z triple.
type Vec3 [3]float32

// IMU6 is an accelerometer (m/s²) and gyroscope (rad/s) sample.
type IMU6 struct {
	Accel Vec3
	Gyro  Vec3
}

// IMU9 adds a magnetometer (µT) to IMU6.
type IMU9 struct {
	Accel Vec3
	Gyro  Vec3
	Mag   Vec3
}

// IMU10 adds barometric pressure (Pa) to IMU9.
type IMU10 struct {
	Accel    Vec3
	Gyro     Vec3
	Mag      Vec3
	Pressure float32
}

// Attitude is an orientation as a unit quaternion w, x, y, z.
type Attitude struct {
	Q [4]float32
}

// Raw is a payload this package does not interpret.
type Raw struct {
	Data []byte
	Kind PayloadType
}

// AttitudeFromQuaternion narrows q for the wire.
func AttitudeFromQuaternion(q navmath.Quaternion) Attitude {
	return Attitude{Q: q.Float32()}
}

// Quaternion widens the attitude back to a unit quaternion.
func (a Attitude) Quaternion() navmath.Quaternion {
	return navmath.QuaternionFromFloat32(a.Q)
}

// Euler converts the attitude to roll, pitch and yaw.
func (a Attitude) Euler() navmath.Euler {
	return a.Quaternion().Euler()
}

func (IMU6) Type() PayloadType     { return PayloadIMU6 }
func (IMU9) Type() PayloadType     { return PayloadIMU9 }
func (IMU10) Type() PayloadType    { return PayloadIMU10 }
func (Attitude) Type() PayloadType { return PayloadAttitude }
func (r Raw) Type() PayloadType    { return r.Kind }

// MarshalBinary implements Payload.
func (p IMU6) MarshalBinary() ([]byte, error) {
	return appendFloats(make([]byte, 0, IMU6Size), p.Accel[:], p.Gyro[:]), nil
}

// MarshalBinary implements Payload.
func (p IMU9) MarshalBinary() ([]byte, error) {
	return appendFloats(make([]byte, 0, IMU9Size), p.Accel[:], p.Gyro[:], p.Mag[:]), nil
}

// MarshalBinary implements Payload.
func (p IMU10) MarshalBinary() ([]byte, error) {
	b := appendFloats(make([]byte, 0, IMU10Size), p.Accel[:], p.Gyro[:], p.Mag[:])
	return binary.BigEndian.AppendUint32(b, math.Float32bits(p.Pressure)), nil
}

// MarshalBinary implements Payload.
func (p Attitude) MarshalBinary() ([]byte, error) {
	return appendFloats(make([]byte, 0, AttitudeSize), p.Q[:]), nil
}

// MarshalBinary implements Payload.
func (r Raw) MarshalBinary() ([]byte, error) {
	if len(r.Data) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(r.Data))
	}
	return append([]byte(nil), r.Data...), nil
}

// ParsePayload decodes b as a payload of type t. Unknown types come back as
// Raw so that newer senders do not break older receivers.
func ParsePayload(t PayloadType, b []byte) (Payload, error) {
	switch t {
	case PayloadIMU6:
		if len(b) != IMU6Size {
			return nil, payloadSizeError(t, len(b), IMU6Size)
		}
		var p IMU6
		readFloats(b, p.Accel[:], p.Gyro[:])
		return p, nil
	case PayloadIMU9:
		if len(b) != IMU9Size {
			return nil, payloadSizeError(t, len(b), IMU9Size)
		}
		var p IMU9
		readFloats(b, p.Accel[:], p.Gyro[:], p.Mag[:])
		return p, nil
	case PayloadIMU10:
		if len(b) != IMU10Size {
			return nil, payloadSizeError(t, len(b), IMU10Size)
		}
		var p IMU10
		readFloats(b, p.Accel[:], p.Gyro[:], p.Mag[:])
		p.Pressure = math.Float32frombits(binary.BigEndian.Uint32(b[IMU9Size:]))
		return p, nil
	case PayloadAttitude:
		if len(b) != AttitudeSize {
			return nil, payloadSizeError(t, len(b), AttitudeSize)
		}
		var p Attitude
		readFloats(b, p.Q[:])
		return p, nil
	default:
		return Raw{Kind: t, Data: append([]byte(nil), b...)}, nil
	}
}

func payloadSizeError(t PayloadType, got, want int) error {
	return fmt.Errorf("%w: %s payload is %d bytes, want %d", ErrPayloadSize, t, got, want)
}

func appendFloats(dst []byte, groups ...[]float32) []byte {
	for _, g := range groups {
		for _, v := range g {
			dst = binary.BigEndian.AppendUint32(dst, math.Float32bits(v))
		}
	}
	return dst
}

func readFloats(src []byte, groups ...[]float32) {
	off := 0
	for _, g := range groups {
		for i := range g {
			g[i] = math.Float32frombits(binary.BigEndian.Uint32(src[off:]))
			off += 4
		}
	}
}
