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

package checksum

import (
	"encoding/binary"
	"testing"
)

// Run with: go test -fuzz=FuzzInternet -fuzztime=30s ./pkg/checksum/

// referenceInternet is the textbook index-based formulation, kept only to
// cross-check the chunked implementation.
func referenceInternet(data []byte) uint16 {
	if len(data) == 0 {
		return 0xFFFF
	}
	var sum uint64
	for i := 0; i+1 < len(data); i += 2 {
		sum += uint64(binary.BigEndian.Uint16(data[i:]))
	}
	if len(data)%2 == 1 {
		sum += uint64(data[len(data)-1]) << 8
	}
	for sum>>16 != 0 {
		sum = sum&0xFFFF + sum>>16
	}
	return ^uint16(sum)
}

func FuzzInternet(f *testing.F) {
	f.Add([]byte{})
	f.Add([]byte{0x00})
	f.Add([]byte{0xFF})
	f.Add([]byte{0x01, 0x02, 0x03})
	f.Add([]byte{0xFF, 0xFF, 0x00, 0x01})
	f.Add([]byte{0x01, 0x00, 0xF2, 0x03, 0xF4, 0xF5, 0xF6, 0xF7})

	f.Fuzz(func(t *testing.T, data []byte) {
		got := Internet(data)
		if again := Internet(data); again != got {
			t.Fatalf("Internet is not deterministic: 0x%04X != 0x%04X", got, again)
		}
		if want := referenceInternet(data); got != want {
			t.Fatalf("Internet(% X) = 0x%04X, want 0x%04X", data, got, want)
		}

		framed := append([]byte(nil), data...)
		if len(framed)%2 == 1 {
			framed = append(framed, 0x00)
		}
		framed = binary.BigEndian.AppendUint16(framed, got)
		if !Verify(framed) {
			t.Fatalf("self verification failed for % X", data)
		}
	})
}
