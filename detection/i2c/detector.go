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

// Package i2c detects IMUs on I2C buses. Importing it registers the detector
// with the detection package.
package i2c

import (
	"context"
	"fmt"

	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/tsilna-nav/tsilna-go"
	"github.com/tsilna-nav/tsilna-go/detection"
	"github.com/tsilna-nav/tsilna-go/transport/i2c"
)

// EnvDevices names extra bus paths to probe, e.g. "/dev/i2c-1:0x69".
const EnvDevices = "TSILNA_I2C_DEVICES"

// Addresses probed on every bus: the default and the alternate strap.
var addresses = []uint16{i2c.DefaultAddress, i2c.DefaultAddress + 1}

type detector struct {
	listBuses func() ([]string, error)
	open      detection.OpenFunc
}

// New creates a new I2C detector
func New() detection.Detector {
	return &detector{
		listBuses: listBuses,
		open: func(path string) (tsilna.Transport, error) {
			return i2c.New(path)
		},
	}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return "i2c"
}

// Detect probes every address on every registered bus.
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	buses, err := d.listBuses()
	if err != nil {
		return nil, err
	}

	var candidates []string
	for _, bus := range buses {
		for _, addr := range addresses {
			candidates = append(candidates, fmt.Sprintf("%s:0x%02x", bus, addr))
		}
	}
	return detection.DetectOnBuses(ctx, "i2c", detection.BusPaths(EnvDevices, candidates), d.open, opts)
}

func listBuses() ([]string, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("%w: %w", detection.ErrUnsupportedPlatform, err)
	}
	var names []string
	for _, ref := range i2creg.All() {
		names = append(names, ref.Name)
	}
	return names, nil
}
