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

import "fmt"

// Encoder stamps outgoing payloads with a device id, a mode and a sequence
// number that increases by one per frame. It is not safe for concurrent use.
type Encoder struct {
	deviceID uint16
	mode     Mode
	seq      uint32
}

// NewEncoder creates an encoder whose first frame has sequence 0.
func NewEncoder(deviceID uint16, mode Mode) *Encoder {
	return &Encoder{deviceID: deviceID, mode: mode}
}

// Encode marshals p and frames it. The sequence number is consumed only when
// encoding succeeds.
func (e *Encoder) Encode(timestamp uint32, p Payload) ([]byte, error) {
	data, err := p.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", p.Type(), err)
	}

	f := &Frame{
		Header: Header{
			Mode:        e.mode,
			DeviceID:    e.deviceID,
			Sequence:    e.seq,
			Timestamp:   timestamp,
			PayloadType: p.Type(),
		},
		Payload: data,
	}
	out, err := Encode(f)
	if err != nil {
		return nil, err
	}
	e.seq++
	return out, nil
}

// NextSequence returns the sequence number the next frame will carry.
func (e *Encoder) NextSequence() uint32 {
	return e.seq
}

// Mode returns the mode frames are encoded with.
func (e *Encoder) Mode() Mode {
	return e.mode
}

// SequenceTracker counts frames lost between consecutive sequence numbers.
type SequenceTracker struct {
	last    uint32
	started bool
}

// Observe records seq and returns how many frames were skipped since the
// previous one. Duplicates and sequence numbers that jump backwards (a
// restarted sender) count as zero and resynchronize the tracker.
func (s *SequenceTracker) Observe(seq uint32) uint32 {
	if !s.started {
		s.started = true
		s.last = seq
		return 0
	}

	diff := seq - s.last
	s.last = seq
	if diff == 0 || diff > 1<<31 {
		return 0
	}
	return diff - 1
}

// Reset forgets the last sequence number.
func (s *SequenceTracker) Reset() {
	s.started = false
	s.last = 0
}
