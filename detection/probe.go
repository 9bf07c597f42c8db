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

package detection

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/tsilna-nav/tsilna-go"
	"github.com/tsilna-nav/tsilna-go/pkg/idtp"
)

// Frames a Full probe must hear with consecutive sequence numbers.
const fullProbeFrames = 3

// ErrNotIMU is returned when a candidate stays silent or sends no valid
// frames before the probe gives up.
var ErrNotIMU = errors.New("device did not send IDTP frames")

// ProbeResult describes what a probe heard.
type ProbeResult struct {
	DeviceID    uint16
	Mode        idtp.Mode
	PayloadType idtp.PayloadType
	Frames      int
}

// Apply raises d to High confidence and records the probe in its metadata.
func (r ProbeResult) Apply(d *DeviceInfo) {
	if d.Metadata == nil {
		d.Metadata = make(map[string]string)
	}
	d.Confidence = High
	d.Metadata["device_id"] = "0x" + strconv.FormatUint(uint64(r.DeviceID), 16)
	d.Metadata["mode"] = r.Mode.String()
	d.Metadata["payload"] = r.PayloadType.String()
}

// Probe listens on t until it hears enough valid frames for mode or ctx
// ends. It never sends and makes one attempt per candidate. The transport is
// closed before Probe returns.
func Probe(ctx context.Context, t tsilna.Transport, mode Mode) (ProbeResult, error) {
	defer func() { _ = t.Close() }()

	need := 1
	switch mode {
	case Passive:
		return ProbeResult{}, fmt.Errorf("%w: passive mode does not probe", tsilna.ErrInvalidParameter)
	case Full:
		need = fullProbeFrames
	case Safe:
	}

	link, err := tsilna.NewLink(t)
	if err != nil {
		return ProbeResult{}, err
	}

	var result ProbeResult
	var last uint32
	for result.Frames < need {
		f, err := link.Receive(ctx)
		switch {
		case err == nil:
		case tsilna.IsTimeout(err) && ctx.Err() == nil:
			continue
		case ctx.Err() != nil:
			return ProbeResult{}, fmt.Errorf("%w after %d frame(s)", ErrNotIMU, result.Frames)
		default:
			return ProbeResult{}, err
		}

		h := f.Header
		if result.Frames > 0 && (h.Sequence != last+1 || h.DeviceID != result.DeviceID) {
			// Start over from this frame.
			result.Frames = 0
		}
		result.Frames++
		result.DeviceID = h.DeviceID
		result.Mode = h.Mode
		result.PayloadType = h.PayloadType
		last = h.Sequence
	}

	tsilna.Debugf("detection: heard device 0x%04X (%s, %s)", result.DeviceID, result.Mode, result.PayloadType)
	return result, nil
}
