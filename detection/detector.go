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

// Package detection finds IMUs attached over serial, I2C and SPI.
//
// Transport detectors live in sub-packages and register themselves on
// import:
//
//	import (
//		"github.com/tsilna-nav/tsilna-go/detection"
//		_ "github.com/tsilna-nav/tsilna-go/detection/uart"
//	)
//
//	devices, err := detection.DetectAll(ctx, &opts)
//
// Probing only listens. It never writes to a candidate device, so a port
// that turns out to be something else is left undisturbed.
package detection

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/tsilna-nav/tsilna-go/internal/syncutil"
)

// Mode represents the level of invasiveness for device detection
type Mode int

const (
	// Passive mode only checks device descriptors and opens nothing
	Passive Mode = iota
	// Safe mode listens until one valid frame arrives
	Safe
	// Full mode listens for several frames with consecutive sequence numbers
	Full
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case Passive:
		return "passive"
	case Safe:
		return "safe"
	case Full:
		return "full"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Confidence represents the confidence level of device detection
type Confidence int

const (
	// Low confidence: the port exists but nothing identifies an IMU
	Low Confidence = iota
	// Medium confidence: descriptors match a known IMU or bridge
	Medium
	// High confidence: the device was heard sending IDTP frames
	High
)

// String returns the confidence name.
func (c Confidence) String() string {
	switch c {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	default:
		return "unknown"
	}
}

// DeviceInfo represents a detected IMU
type DeviceInfo struct {
	// Metadata holds descriptor and probe details: "vidpid", "product",
	// "serial", "device_id", "mode", "payload".
	Metadata map[string]string
	// Transport type: "uart", "i2c", "spi"
	Transport string
	// Connection path (e.g., "/dev/ttyUSB0", "/dev/i2c-1:0x68")
	Path string
	// Human-readable device name
	Name string
	// Detection confidence level
	Confidence Confidence
}

// String returns a human-readable representation of the device
func (d DeviceInfo) String() string {
	return fmt.Sprintf("%s device at %s (confidence: %s)", d.Transport, d.Path, d.Confidence)
}

// Options configures the detection behavior
type Options struct {
	// USB VID:PID pairs to skip (e.g., ["1234:5678", "ABCD:EF01"])
	Blocklist []string
	// Device paths to explicitly ignore (e.g., ["/dev/ttyUSB0", "COM2"])
	IgnorePaths []string
	// Which transports to check (empty = all)
	Transports []string
	// Cache TTL duration
	CacheTTL time.Duration
	// Maximum time to wait for detection
	Timeout time.Duration
	// ProbeTimeout bounds listening on a single candidate
	ProbeTimeout time.Duration
	// Detection invasiveness level
	Mode Mode
	// Enable result caching
	EnableCache bool
}

// DefaultOptions returns sensible default detection options
func DefaultOptions() Options {
	return Options{
		Mode:         Safe,
		Timeout:      5 * time.Second,
		ProbeTimeout: 500 * time.Millisecond,
		Blocklist:    DefaultBlocklist(),
		EnableCache:  true,
		CacheTTL:     30 * time.Second,
	}
}

// Detector interface for transport-specific device detection
type Detector interface {
	// Detect searches for devices using the given options
	Detect(ctx context.Context, opts *Options) ([]DeviceInfo, error)
	// Transport returns the transport type this detector handles
	Transport() string
}

// Errors
var (
	// ErrNoDevicesFound indicates no IMUs were detected
	ErrNoDevicesFound = errors.New("no IMU devices found")
	// ErrDetectionTimeout indicates detection timed out
	ErrDetectionTimeout = errors.New("detection timeout")
	// ErrUnsupportedPlatform indicates the platform doesn't support this detection method
	ErrUnsupportedPlatform = errors.New("platform not supported")
	// ErrNoDetectors indicates no registered detector matched Options.Transports
	ErrNoDetectors = errors.New("no detectors available for specified transports")
)

var (
	registry   []Detector
	registryMu syncutil.RWMutex
)

// RegisterDetector adds a detector to the registry. A detector for an
// already registered transport replaces it.
func RegisterDetector(d Detector) {
	registryMu.Lock()
	defer registryMu.Unlock()

	for i, existing := range registry {
		if existing.Transport() == d.Transport() {
			registry[i] = d
			return
		}
	}
	registry = append(registry, d)
}

// Transports lists the registered transport names.
func Transports() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for _, d := range registry {
		names = append(names, d.Transport())
	}
	return names
}

// getDetectors returns detectors filtered by transport types
func getDetectors(transports []string) []Detector {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if len(transports) == 0 {
		return slices.Clone(registry)
	}

	var filtered []Detector
	for _, d := range registry {
		if slices.Contains(transports, d.Transport()) {
			filtered = append(filtered, d)
		}
	}
	return filtered
}

type detectionResult struct {
	err     error
	devices []DeviceInfo
}

// DetectAll runs every matching detector in parallel and merges their
// results. Devices are returned even when some detectors fail.
func DetectAll(ctx context.Context, opts *Options) ([]DeviceInfo, error) {
	if opts == nil {
		defaults := DefaultOptions()
		opts = &defaults
	}

	detectors := getDetectors(opts.Transports)
	if len(detectors) == 0 {
		return nil, ErrNoDetectors
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	results := make(chan detectionResult, len(detectors))
	for _, detector := range detectors {
		go func(d Detector) {
			results <- runSingleDetector(ctx, d, opts)
		}(detector)
	}
	return collectDetectionResults(ctx, results, len(detectors))
}

// runSingleDetector performs detection for a single detector
func runSingleDetector(ctx context.Context, detector Detector, opts *Options) detectionResult {
	key := cacheKey{transport: detector.Transport(), mode: opts.Mode}

	if opts.EnableCache {
		if cached, found := defaultCache.get(key, opts.CacheTTL); found {
			// Cached results bypass Detect, so filter them again.
			return detectionResult{devices: filterDevices(cached, opts)}
		}
	}

	devices, err := detector.Detect(ctx, opts)
	if err != nil && !errors.Is(err, ErrNoDevicesFound) {
		return detectionResult{err: fmt.Errorf("%s detection: %w", detector.Transport(), err)}
	}

	if opts.EnableCache {
		if len(devices) > 0 {
			defaultCache.set(key, devices)
		} else {
			// A stale entry would point consumers at an unplugged device.
			defaultCache.clearTransport(detector.Transport())
		}
	}

	return detectionResult{devices: devices}
}

// collectDetectionResults gathers results from all detector goroutines
func collectDetectionResults(
	ctx context.Context,
	results chan detectionResult,
	numDetectors int,
) ([]DeviceInfo, error) {
	var allDevices []DeviceInfo
	var errs []error

	for range numDetectors {
		select {
		case res := <-results:
			if res.err != nil {
				errs = append(errs, res.err)
			} else {
				allDevices = append(allDevices, res.devices...)
			}
		case <-ctx.Done():
			if len(allDevices) > 0 {
				return sortDevices(allDevices), nil
			}
			return nil, ErrDetectionTimeout
		}
	}

	if len(allDevices) > 0 {
		return sortDevices(allDevices), nil
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return nil, ErrNoDevicesFound
}

// sortDevices orders devices by descending confidence, then path.
func sortDevices(devices []DeviceInfo) []DeviceInfo {
	slices.SortStableFunc(devices, func(a, b DeviceInfo) int {
		if a.Confidence != b.Confidence {
			return int(b.Confidence) - int(a.Confidence)
		}
		switch {
		case a.Path < b.Path:
			return -1
		case a.Path > b.Path:
			return 1
		}
		return 0
	})
	return devices
}

// filterDevices applies IgnorePaths and Blocklist filtering to a device list.
func filterDevices(devices []DeviceInfo, opts *Options) []DeviceInfo {
	if len(opts.IgnorePaths) == 0 && len(opts.Blocklist) == 0 {
		return devices
	}

	var filtered []DeviceInfo
	for _, device := range devices {
		if IsPathIgnored(device.Path, opts.IgnorePaths) {
			continue
		}
		if vidpid, ok := device.Metadata["vidpid"]; ok && IsBlocked(vidpid, opts.Blocklist) {
			continue
		}
		filtered = append(filtered, device)
	}
	return filtered
}

// ClearDetectionCache removes all cached detection results
func ClearDetectionCache() {
	defaultCache.clear()
}

// ClearDetectionCacheForTransport removes cached results for a specific transport
func ClearDetectionCacheForTransport(transport string) {
	defaultCache.clearTransport(transport)
}
