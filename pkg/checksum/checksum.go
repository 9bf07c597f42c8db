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

// Package checksum implements the Internet checksum (RFC 1071) used by the
// IDTP frame layer.
//
// Words are always paired big-endian (network byte order), whatever the
// byte order of the host.
package checksum

// Empty is the checksum of a zero-length buffer. It is a valid result.
const Empty uint16 = 0xFFFF

// Internet computes the RFC 1071 checksum of buf: the one's complement of the
// one's complement sum of its big-endian 16-bit words. An odd trailing byte
// is the high byte of a zero-padded word.
//
// Internet never fails and never modifies buf. It is safe to call
// concurrently on any buffers.
func Internet(buf []byte) uint16 {
	if len(buf) == 0 {
		return Empty
	}
	return Fold(Sum(0, buf))
}

// Sum adds the big-endian words of buf to an unfolded running sum and returns
// it. It lets a caller checksum several regions that do not share a backing
// array; every region except the last must have an even length.
func Sum(sum uint32, buf []byte) uint32 {
	for len(buf) >= 2 {
		sum += uint32(buf[0])<<8 | uint32(buf[1])
		buf = buf[2:]
		// Fold eagerly so huge inputs cannot wrap the accumulator.
		if sum&0x80000000 != 0 {
			sum = sum&0xFFFF + sum>>16
		}
	}
	if len(buf) == 1 {
		sum += uint32(buf[0]) << 8
	}
	return sum
}

// Fold reduces a running sum to 16 bits, adding carries back in until none
// remain, and returns its one's complement.
func Fold(sum uint32) uint16 {
	for sum>>16 != 0 {
		sum = sum&0xFFFF + sum>>16
	}
	return ^uint16(sum)
}

// Verify reports whether buf, which already carries its checksum field at a
// 16-bit aligned offset, sums to zero.
func Verify(buf []byte) bool {
	return Internet(buf) == 0
}
