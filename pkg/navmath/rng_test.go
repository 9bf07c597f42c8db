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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestXorshift_KnownSequence(t *testing.T) {
	t.Parallel()

	rng := NewXorshift(1)
	assert.Equal(t, uint32(270369), rng.Uint32())
	assert.Equal(t, uint32(67634689), rng.Uint32())
	assert.Equal(t, uint32(2647435461), rng.Uint32())
}

func TestXorshift_ZeroSeed(t *testing.T) {
	t.Parallel()

	rng := NewXorshift(0)
	assert.Equal(t, uint32(723471715), rng.Uint32())
	assert.NotZero(t, rng.Uint32())
}

func TestXorshift_Deterministic(t *testing.T) {
	t.Parallel()

	a := NewXorshift(0xC0FFEE)
	b := NewXorshift(0xC0FFEE)
	for range 1000 {
		assert.Equal(t, a.Uint32(), b.Uint32())
	}
}

func TestXorshift_FloatRange(t *testing.T) {
	t.Parallel()

	rng := NewXorshift(42)
	for range 10000 {
		f := rng.Float32(-1, 1)
		assert.GreaterOrEqual(t, f, float32(-1))
		assert.LessOrEqual(t, f, float32(1))

		d := rng.Float64(0, 10)
		assert.GreaterOrEqual(t, d, 0.0)
		assert.LessOrEqual(t, d, 10.0)
	}
}
