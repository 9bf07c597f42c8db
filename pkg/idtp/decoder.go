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
	"bytes"
	"errors"
)

// DecoderStats counts what a Decoder has seen.
type DecoderStats struct {
	Frames          uint64 // valid frames returned
	DroppedBytes    uint64 // bytes discarded while resynchronizing
	HeaderErrors    uint64 // preamble found but header rejected
	ChecksumErrors  uint64
	CRCErrors       uint64
	IncompleteReads uint64 // calls to Next that needed more data
}

// Decoder extracts frames from a byte stream that may deliver them in
// arbitrary fragments, interleaved with noise. After a corrupted frame it
// resynchronizes on the next preamble.
//
// A Decoder is not safe for concurrent use.
type Decoder struct {
	buf   []byte
	stats DecoderStats
}

// NewDecoder creates an empty decoder.
func NewDecoder() *Decoder {
	return &Decoder{buf: make([]byte, 0, MaxFrameSize)}
}

// Write appends stream bytes. It never fails.
func (d *Decoder) Write(p []byte) (int, error) {
	d.buf = append(d.buf, p...)
	return len(p), nil
}

// Buffered returns the number of bytes waiting to be decoded.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Next returns the next valid frame. It returns ErrIncomplete when more data
// is needed. Any other error reports a frame that was dropped; the offending
// bytes are already skipped, so the caller simply calls Next again.
func (d *Decoder) Next() (*Frame, error) {
	if !d.sync() {
		d.stats.IncompleteReads++
		return nil, ErrIncomplete
	}

	f, n, err := Decode(d.buf)
	switch {
	case err == nil:
		d.consume(n)
		d.stats.Frames++
		return f, nil
	case errors.Is(err, ErrIncomplete):
		d.stats.IncompleteReads++
		return nil, err
	}

	switch {
	case errors.Is(err, ErrChecksumMismatch):
		d.stats.ChecksumErrors++
	case errors.Is(err, ErrCRCMismatch):
		d.stats.CRCErrors++
	default:
		d.stats.HeaderErrors++
	}
	// Skip the first preamble byte so the scan moves past this frame.
	d.consume(1)
	d.stats.DroppedBytes++
	return nil, err
}

// Stats returns a snapshot of the counters.
func (d *Decoder) Stats() DecoderStats {
	return d.stats
}

// Reset discards buffered bytes and counters.
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
	d.stats = DecoderStats{}
}

// sync drops everything before the first preamble. It reports whether the
// buffer now starts with a full preamble.
func (d *Decoder) sync() bool {
	idx := bytes.Index(d.buf, Preamble[:])
	if idx >= 0 {
		if idx > 0 {
			d.consume(idx)
			d.stats.DroppedBytes += uint64(idx)
		}
		return true
	}

	// Keep a tail that could still grow into a preamble.
	keep := 0
	for k := min(len(Preamble)-1, len(d.buf)); k > 0; k-- {
		if bytes.HasSuffix(d.buf, Preamble[:k]) {
			keep = k
			break
		}
	}
	if drop := len(d.buf) - keep; drop > 0 {
		d.consume(drop)
		d.stats.DroppedBytes += uint64(drop)
	}
	return false
}

func (d *Decoder) consume(n int) {
	d.buf = append(d.buf[:0], d.buf[n:]...)
}
