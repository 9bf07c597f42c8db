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

// Package uart detects IMUs on serial ports. Importing it registers the
// detector with the detection package.
package uart

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.bug.st/serial/enumerator"

	"github.com/tsilna-nav/tsilna-go"
	"github.com/tsilna-nav/tsilna-go/detection"
	"github.com/tsilna-nav/tsilna-go/transport/uart"
)

// USB ids of IMUs and the serial bridges IMU boards commonly carry.
var knownIMUs = map[string]string{
	"0403:6001": "FTDI FT232R",
	"0403:6014": "FTDI FT232H",
	"0403:6015": "FTDI FT-X",
	"10C4:EA60": "Silicon Labs CP210x",
	"1A86:7523": "QinHeng CH340",
	"0483:5740": "STM32 virtual COM port",
	"2639:0013": "Xsens MTi",
	"16D0:0E2D": "VectorNav VN-100",
}

var imuKeywords = []string{"imu", "ahrs", "ins", "inertial", "xsens", "vectornav", "tsilna"}

// detector implements the Detector interface for UART devices.
type detector struct {
	listPorts func() ([]*enumerator.PortDetails, error)
	open      func(path string) (tsilna.Transport, error)
}

// New creates a new UART detector
func New() detection.Detector {
	return &detector{
		listPorts: enumerator.GetDetailedPortsList,
		open: func(path string) (tsilna.Transport, error) {
			return uart.New(path, uart.DefaultConfig())
		},
	}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return "uart"
}

// Detect searches for IMUs on serial ports
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	ports, err := d.listPorts()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	var devices []detection.DeviceInfo
	for _, port := range ports {
		if ctx.Err() != nil {
			break
		}
		if device, ok := d.processPort(ctx, port, opts); ok {
			devices = append(devices, device)
		}
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

// processPort decides whether port is reported and at what confidence.
func (d *detector) processPort(
	ctx context.Context,
	port *enumerator.PortDetails,
	opts *detection.Options,
) (detection.DeviceInfo, bool) {
	vidpid := ""
	if port.IsUSB {
		vidpid = detection.FormatVIDPID(port.VID, port.PID)
	}
	if detection.IsBlocked(vidpid, opts.Blocklist) || detection.IsPathIgnored(port.Name, opts.IgnorePaths) {
		return detection.DeviceInfo{}, false
	}

	device := createDeviceInfo(port, vidpid)
	likely := isLikelyIMU(port, vidpid)
	if likely {
		device.Confidence = detection.Medium
	}

	switch opts.Mode {
	case detection.Passive:
		return device, likely
	case detection.Safe, detection.Full:
	default:
		return detection.DeviceInfo{}, false
	}

	// A port that stays silent is not reported, whatever its descriptors
	// say: a stale guess hides a real IMU that enumerates later.
	result, err := d.probe(ctx, port.Name, opts)
	if err != nil {
		tsilna.Debugf("uart detection: %s: %v", port.Name, err)
		return detection.DeviceInfo{}, false
	}
	result.Apply(&device)
	return device, true
}

func (d *detector) probe(ctx context.Context, path string, opts *detection.Options) (detection.ProbeResult, error) {
	timeout := opts.ProbeTimeout
	if timeout <= 0 {
		timeout = detection.DefaultOptions().ProbeTimeout
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	transport, err := d.open(path)
	if err != nil {
		return detection.ProbeResult{}, err
	}
	return detection.Probe(probeCtx, transport, opts.Mode)
}

func createDeviceInfo(port *enumerator.PortDetails, vidpid string) detection.DeviceInfo {
	device := detection.DeviceInfo{
		Transport:  "uart",
		Path:       port.Name,
		Name:       port.Name,
		Confidence: detection.Low,
		Metadata:   make(map[string]string),
	}
	if vidpid != "" {
		device.Metadata["vidpid"] = vidpid
		if bridge, ok := knownIMUs[vidpid]; ok {
			device.Name = bridge
		}
	}
	if port.Product != "" {
		device.Metadata["product"] = port.Product
		device.Name = port.Product
	}
	if port.SerialNumber != "" {
		device.Metadata["serial"] = port.SerialNumber
	}
	return device
}

// isLikelyIMU checks USB ids and the product string.
func isLikelyIMU(port *enumerator.PortDetails, vidpid string) bool {
	if _, ok := knownIMUs[vidpid]; ok {
		return true
	}
	product := strings.ToLower(port.Product)
	for _, word := range strings.FieldsFunc(product, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_' || r == '/'
	}) {
		if slices.Contains(imuKeywords, word) {
			return true
		}
	}
	return false
}
