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

import "errors"

// Framing errors
var (
	// ErrIncomplete means the buffer holds the start of a frame but not all of
	// it yet. It is not a corruption.
	ErrIncomplete         = errors.New("idtp: incomplete frame")
	ErrBadPreamble        = errors.New("idtp: bad preamble")
	ErrUnsupportedVersion = errors.New("idtp: unsupported version")
	ErrUnknownMode        = errors.New("idtp: unknown mode")
	ErrPayloadTooLarge    = errors.New("idtp: payload too large")
)

// Integrity errors, one per level
var (
	ErrHeaderCRCMismatch = errors.New("idtp: header CRC mismatch")
	ErrChecksumMismatch  = errors.New("idtp: checksum mismatch")
	ErrCRCMismatch       = errors.New("idtp: frame CRC mismatch")
)

// Payload errors
var (
	ErrPayloadSize = errors.New("idtp: payload size does not match type")
)

// IsIntegrityError reports whether err means the frame bytes were damaged in
// transit. Such frames are dropped and the stream continues.
func IsIntegrityError(err error) bool {
	return errors.Is(err, ErrHeaderCRCMismatch) ||
		errors.Is(err, ErrChecksumMismatch) ||
		errors.Is(err, ErrCRCMismatch) ||
		errors.Is(err, ErrBadPreamble) ||
		errors.Is(err, ErrUnsupportedVersion) ||
		errors.Is(err, ErrUnknownMode) ||
		errors.Is(err, ErrPayloadTooLarge)
}
