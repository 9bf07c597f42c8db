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

import "math"

// defaultSeed replaces a zero seed, which would lock the generator at zero.
const defaultSeed uint32 = 2463534242

// Xorshift is Marsaglia's 32-bit xorshift generator (shifts 13, 17, 5).
// It is deterministic and not safe for concurrent use.
type Xorshift struct {
	state uint32
}

// NewXorshift seeds a generator.
func NewXorshift(seed uint32) *Xorshift {
	if seed == 0 {
		seed = defaultSeed
	}
	return &Xorshift{state: seed}
}

// Uint32 returns the next value in the sequence.
func (x *Xorshift) Uint32() uint32 {
	s := x.state
	s ^= s << 13
	s ^= s >> 17
	s ^= s << 5
	x.state = s
	return s
}

// Float32 returns the next value scaled into [lo, hi].
func (x *Xorshift) Float32(lo, hi float32) float32 {
	r := float32(x.Uint32()) / float32(math.MaxUint32)
	return lo + r*(hi-lo)
}

// Float64 returns the next value scaled into [lo, hi].
func (x *Xorshift) Float64(lo, hi float64) float64 {
	r := float64(x.Uint32()) / float64(math.MaxUint32)
	return lo + r*(hi-lo)
}
