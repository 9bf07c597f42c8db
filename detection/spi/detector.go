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

// Package spi detects IMUs on SPI ports. Importing it registers the detector
// with the detection package.
package spi

import (
	"context"
	"fmt"

	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/tsilna-nav/tsilna-go"
	"github.com/tsilna-nav/tsilna-go/detection"
	"github.com/tsilna-nav/tsilna-go/transport/spi"
)

// EnvDevices names extra ports to probe, comma separated.
const EnvDevices = "TSILNA_SPI_DEVICES"

type detector struct {
	listPorts func() ([]string, error)
	open      detection.OpenFunc
}

// New creates a new SPI detector
func New() detection.Detector {
	return &detector{
		listPorts: listPorts,
		open: func(path string) (tsilna.Transport, error) {
			return spi.New(path)
		},
	}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return "spi"
}

// Detect listens on every registered SPI port.
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	ports, err := d.listPorts()
	if err != nil {
		return nil, err
	}
	return detection.DetectOnBuses(ctx, "spi", detection.BusPaths(EnvDevices, ports), d.open, opts)
}

func listPorts() ([]string, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("%w: %w", detection.ErrUnsupportedPlatform, err)
	}
	var names []string
	for _, ref := range spireg.All() {
		names = append(names, ref.Name)
	}
	return names, nil
}
