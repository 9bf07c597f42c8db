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

// Package idtp implements IDTP, the IMU data transfer protocol: a binary
// frame format for moving inertial samples over SPI, I2C, UART or UDP.
//
// Every frame carries layered integrity checks. A CRC-8 guards the header so
// the payload length can be trusted before the payload arrives, an RFC 1071
// Internet checksum covers header and payload, and Safety mode appends a
// CRC-16 over everything before it.
package idtp

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/tsilna-nav/tsilna-go/pkg/checksum"
	"github.com/tsilna-nav/tsilna-go/pkg/crc"
)

// Header is the fixed part of a frame.
type Header struct {
	Version     uint8
	Mode        Mode
	DeviceID    uint16
	Sequence    uint32
	Timestamp   uint32 // microseconds
	PayloadSize uint16
	PayloadType PayloadType
	HeaderCRC   uint8
	Checksum    uint16
}

// Frame is a decoded frame. CRC is only meaningful in Safety mode.
type Frame struct {
	Payload []byte
	Header  Header
	CRC     uint16
}

// Size returns the encoded length of the frame.
func (f *Frame) Size() int {
	return HeaderSize + len(f.Payload) + f.Header.Mode.trailerSize()
}

// Decoded parses the payload according to its type.
func (f *Frame) Decoded() (Payload, error) {
	return ParsePayload(f.Header.PayloadType, f.Payload)
}

// Encode serializes f. The version defaults to Version when zero; payload
// size and all integrity fields are computed and written back into
// f.Header.
func Encode(f *Frame) ([]byte, error) {
	return AppendEncode(make([]byte, 0, f.Size()), f)
}

// AppendEncode appends the encoded frame to dst.
func AppendEncode(dst []byte, f *Frame) ([]byte, error) {
	if !f.Header.Mode.Valid() {
		return dst, fmt.Errorf("%w: 0x%02X", ErrUnknownMode, uint8(f.Header.Mode))
	}
	if len(f.Payload) > MaxPayloadSize {
		return dst, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(f.Payload))
	}
	if f.Header.Version == 0 {
		f.Header.Version = Version
	}
	f.Header.PayloadSize = uint16(len(f.Payload)) //nolint:gosec // bounded by MaxPayloadSize

	start := len(dst)
	dst = append(dst, Preamble[:]...)
	dst = append(dst, f.Header.Version, byte(f.Header.Mode))
	dst = binary.BigEndian.AppendUint16(dst, f.Header.DeviceID)
	dst = binary.BigEndian.AppendUint32(dst, f.Header.Sequence)
	dst = binary.BigEndian.AppendUint32(dst, f.Header.Timestamp)
	dst = binary.BigEndian.AppendUint16(dst, f.Header.PayloadSize)
	dst = append(dst, byte(f.Header.PayloadType))

	f.Header.HeaderCRC = crc.CRC8(dst[start : start+offHeaderCRC])
	dst = append(dst, f.Header.HeaderCRC)
	dst = append(dst, 0x00, 0x00) // checksum placeholder
	dst = append(dst, f.Payload...)

	// The checksum field is 16-bit aligned, so a receiver summing the whole
	// region including it gets zero.
	f.Header.Checksum = checksum.Internet(dst[start:])
	binary.BigEndian.PutUint16(dst[start+offChecksum:], f.Header.Checksum)

	if f.Header.Mode == ModeSafety {
		f.CRC = crc.CRC16(dst[start:])
		dst = binary.BigEndian.AppendUint16(dst, f.CRC)
	}
	return dst, nil
}

// DecodeHeader parses and validates the header at the start of buf. It checks
// the preamble, the header CRC, the version, the mode and the payload size
// limit, but not the payload.
func DecodeHeader(buf []byte) (Header, error) {
	var h Header

	n := min(len(buf), len(Preamble))
	if !bytes.Equal(buf[:n], Preamble[:n]) {
		return h, ErrBadPreamble
	}
	if len(buf) < HeaderSize {
		return h, ErrIncomplete
	}

	h.HeaderCRC = buf[offHeaderCRC]
	if want := crc.CRC8(buf[:offHeaderCRC]); want != h.HeaderCRC {
		return h, fmt.Errorf("%w: got 0x%02X, want 0x%02X", ErrHeaderCRCMismatch, h.HeaderCRC, want)
	}

	h.Version = buf[offVersion]
	h.Mode = Mode(buf[offMode])
	h.DeviceID = binary.BigEndian.Uint16(buf[offDeviceID:])
	h.Sequence = binary.BigEndian.Uint32(buf[offSequence:])
	h.Timestamp = binary.BigEndian.Uint32(buf[offTimestamp:])
	h.PayloadSize = binary.BigEndian.Uint16(buf[offPayloadSize:])
	h.PayloadType = PayloadType(buf[offPayloadType])
	h.Checksum = binary.BigEndian.Uint16(buf[offChecksum:])

	if h.Version != Version {
		return h, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}
	if !h.Mode.Valid() {
		return h, fmt.Errorf("%w: 0x%02X", ErrUnknownMode, uint8(h.Mode))
	}
	if h.PayloadSize > MaxPayloadSize {
		return h, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, h.PayloadSize)
	}
	return h, nil
}

// Decode parses one frame from the start of buf and returns it with the
// number of bytes it occupied. ErrIncomplete means buf is a valid prefix of a
// frame; any other error means the bytes at the start of buf are not a valid
// frame.
func Decode(buf []byte) (*Frame, int, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return nil, 0, err
	}

	covered := HeaderSize + int(h.PayloadSize)
	total := covered + h.Mode.trailerSize()
	if len(buf) < total {
		return nil, 0, ErrIncomplete
	}

	if !checksum.Verify(buf[:covered]) {
		return nil, 0, fmt.Errorf("%w: sequence %d", ErrChecksumMismatch, h.Sequence)
	}

	f := &Frame{Header: h}
	if h.Mode == ModeSafety {
		f.CRC = binary.BigEndian.Uint16(buf[covered:])
		if want := crc.CRC16(buf[:covered]); want != f.CRC {
			return nil, 0, fmt.Errorf("%w: got 0x%04X, want 0x%04X", ErrCRCMismatch, f.CRC, want)
		}
	}

	f.Payload = make([]byte, h.PayloadSize)
	copy(f.Payload, buf[HeaderSize:covered])
	return f, total, nil
}
