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

// Frame layout. All multi-byte fields are big-endian.
//
//	off  size  field
//	  0     4  preamble "IDTP"
//	  4     1  version
//	  5     1  mode
//	  6     2  device id
//	  8     4  sequence
//	 12     4  timestamp (microseconds, wraps)
//	 16     2  payload size
//	 18     1  payload type
//	 19     1  header CRC-8 over bytes 0..18
//	 20     2  Internet checksum over header and payload
//	 22     n  payload
//	22+n    2  CRC-16 over bytes 0..22+n (Safety mode only)
const (
	offPreamble    = 0
	offVersion     = 4
	offMode        = 5
	offDeviceID    = 6
	offSequence    = 8
	offTimestamp   = 12
	offPayloadSize = 16
	offPayloadType = 18
	offHeaderCRC   = 19
	offChecksum    = 20
)

// Frame size limits
const (
	HeaderSize     = 22
	TrailerSize    = 2 // CRC-16, Safety mode only
	MaxPayloadSize = 1024
	MaxFrameSize   = HeaderSize + MaxPayloadSize + TrailerSize
)

// Version is the protocol revision written by this package.
const Version uint8 = 0x01

// Preamble marks the start of every frame.
var Preamble = [4]byte{'I', 'D', 'T', 'P'}

// Mode selects the integrity levels carried by a frame.
type Mode uint8

const (
	// ModeNormal carries the header CRC-8 and the Internet checksum.
	ModeNormal Mode = 0x00
	// ModeSafety adds a CRC-16 trailer over the whole frame.
	ModeSafety Mode = 0x01
)

func (m Mode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeSafety:
		return "safety"
	default:
		return "unknown"
	}
}

// Valid reports whether m is a mode this package can encode and decode.
func (m Mode) Valid() bool {
	return m == ModeNormal || m == ModeSafety
}

// ParseMode converts a mode name as printed by String.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "normal":
		return ModeNormal, nil
	case "safety":
		return ModeSafety, nil
	default:
		return 0, ErrUnknownMode
	}
}

func (m Mode) trailerSize() int {
	if m == ModeSafety {
		return TrailerSize
	}
	return 0
}
