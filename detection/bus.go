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
	"os"
	"strings"

	"github.com/tsilna-nav/tsilna-go"
)

// OpenFunc opens a transport on a bus path.
type OpenFunc func(path string) (tsilna.Transport, error)

// BusPaths merges the paths named in the environment variable envVar
// (comma separated) ahead of the discovered ones, dropping duplicates.
func BusPaths(envVar string, discovered []string) []string {
	seen := make(map[string]bool)
	var paths []string
	add := func(p string) {
		p = strings.TrimSpace(p)
		if p != "" && !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}

	if env := os.Getenv(envVar); env != "" {
		for _, p := range strings.Split(env, ",") {
			add(p)
		}
	}
	for _, p := range discovered {
		add(p)
	}
	return paths
}

// DetectOnBuses probes each bus path. Buses carry no descriptors, so
// Passive mode finds nothing.
func DetectOnBuses(
	ctx context.Context,
	transport string,
	paths []string,
	open OpenFunc,
	opts *Options,
) ([]DeviceInfo, error) {
	if opts.Mode == Passive {
		return nil, ErrNoDevicesFound
	}

	timeout := opts.ProbeTimeout
	if timeout <= 0 {
		timeout = DefaultOptions().ProbeTimeout
	}

	var devices []DeviceInfo
	for _, path := range paths {
		if ctx.Err() != nil {
			break
		}
		if IsPathIgnored(path, opts.IgnorePaths) {
			continue
		}

		t, err := open(path)
		if err != nil {
			tsilna.Debugf("%s detection: %s: %v", transport, path, err)
			continue
		}

		probeCtx, cancel := context.WithTimeout(ctx, timeout)
		result, err := Probe(probeCtx, t, opts.Mode)
		cancel()
		if err != nil {
			tsilna.Debugf("%s detection: %s: %v", transport, path, err)
			continue
		}

		device := DeviceInfo{
			Transport: transport,
			Path:      path,
			Name:      transport + " IMU at " + path,
		}
		result.Apply(&device)
		devices = append(devices, device)
	}

	if len(devices) == 0 {
		return nil, ErrNoDevicesFound
	}
	return devices, nil
}
