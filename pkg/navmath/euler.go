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

// Package navmath holds the orientation and random number primitives used by
// the navigation stack.
package navmath

import "math"

const degToRad = math.Pi / 180.0

// Euler is an orientation expressed as roll, pitch and yaw in radians.
// Rotations apply in yaw (Z), pitch (Y), roll (X) order.
type Euler struct {
	Roll  float64 // rotation around X
	Pitch float64 // rotation around Y
	Yaw   float64 // rotation around Z
}

// EulerFromRadians builds an Euler orientation from radians.
func EulerFromRadians(roll, pitch, yaw float64) Euler {
	return Euler{Roll: roll, Pitch: pitch, Yaw: yaw}
}

// EulerFromDegrees builds an Euler orientation from degrees.
func EulerFromDegrees(roll, pitch, yaw float64) Euler {
	return Euler{
		Roll:  roll * degToRad,
		Pitch: pitch * degToRad,
		Yaw:   yaw * degToRad,
	}
}

// EulerFromQuaternion extracts roll, pitch and yaw from a unit quaternion.
// At gimbal lock the pitch is clamped to ±π/2.
func EulerFromQuaternion(q Quaternion) Euler {
	w, x, y, z := q.Components()

	roll := math.Atan2(2*(w*x+y*z), 1-2*(x*x+y*y))

	var pitch float64
	if sinp := 2 * (w*y - z*x); math.Abs(sinp) >= 1 {
		pitch = math.Copysign(math.Pi/2, sinp)
	} else {
		pitch = math.Asin(sinp)
	}

	yaw := math.Atan2(2*(w*z+x*y), 1-2*(y*y+z*z))

	return Euler{Roll: roll, Pitch: pitch, Yaw: yaw}
}

// Quaternion converts the orientation to a unit quaternion.
func (e Euler) Quaternion() Quaternion {
	sr, cr := math.Sincos(e.Roll * 0.5)
	sp, cp := math.Sincos(e.Pitch * 0.5)
	sy, cy := math.Sincos(e.Yaw * 0.5)

	return NewQuaternion(
		cr*cp*cy+sr*sp*sy,
		sr*cp*cy-cr*sp*sy,
		cr*sp*cy+sr*cp*sy,
		cr*cp*sy-sr*sp*cy,
	)
}

// Degrees returns roll, pitch and yaw in degrees.
func (e Euler) Degrees() (roll, pitch, yaw float64) {
	return e.Roll / degToRad, e.Pitch / degToRad, e.Yaw / degToRad
}
