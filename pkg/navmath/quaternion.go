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

package navmath

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// Quaternion is a unit quaternion describing a rotation.
type Quaternion struct {
	n quat.Number
}

// Identity returns the rotation that leaves every vector unchanged.
func Identity() Quaternion {
	return Quaternion{n: quat.Number{Real: 1}}
}

// NewQuaternion builds a unit quaternion from w + xi + yj + zk, normalizing
// it. A zero quaternion yields Identity.
func NewQuaternion(w, x, y, z float64) Quaternion {
	return Quaternion{n: quat.Number{Real: w, Imag: x, Jmag: y, Kmag: z}}.Normalize()
}

// Components returns w, x, y and z.
func (q Quaternion) Components() (w, x, y, z float64) {
	return q.n.Real, q.n.Imag, q.n.Jmag, q.n.Kmag
}

// Norm returns the Euclidean norm. It is 1 for any value built through this
// package, up to rounding.
func (q Quaternion) Norm() float64 {
	return quat.Abs(q.n)
}

// Normalize rescales q to unit norm.
func (q Quaternion) Normalize() Quaternion {
	norm := quat.Abs(q.n)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return Identity()
	}
	return Quaternion{n: quat.Scale(1/norm, q.n)}
}

// Mul composes two rotations: the result applies r first, then q.
func (q Quaternion) Mul(r Quaternion) Quaternion {
	return Quaternion{n: quat.Mul(q.n, r.n)}.Normalize()
}

// Conj returns the inverse rotation.
func (q Quaternion) Conj() Quaternion {
	return Quaternion{n: quat.Conj(q.n)}
}

// Rotate applies the rotation to a vector.
func (q Quaternion) Rotate(v [3]float64) [3]float64 {
	p := quat.Number{Imag: v[0], Jmag: v[1], Kmag: v[2]}
	r := quat.Mul(quat.Mul(q.n, p), quat.Conj(q.n))
	return [3]float64{r.Imag, r.Jmag, r.Kmag}
}

// Euler converts q to roll, pitch and yaw.
func (q Quaternion) Euler() Euler {
	return EulerFromQuaternion(q)
}

// Float32 returns w, x, y, z narrowed for the wire.
func (q Quaternion) Float32() [4]float32 {
	return [4]float32{float32(q.n.Real), float32(q.n.Imag), float32(q.n.Jmag), float32(q.n.Kmag)}
}

// QuaternionFromFloat32 rebuilds a unit quaternion from wire components.
func QuaternionFromFloat32(c [4]float32) Quaternion {
	return NewQuaternion(float64(c[0]), float64(c[1]), float64(c[2]), float64(c[3]))
}
