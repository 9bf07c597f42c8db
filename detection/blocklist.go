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
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultBlocklist returns USB devices that are never probed. Format: VID:PID
// in hexadecimal (case-insensitive).
func DefaultBlocklist() []string {
	return []string{
		"1366:0105", // SEGGER J-Link CDC: the debug console, not a sensor
		"0483:374B", // ST-LINK/V2-1 virtual COM port
		"2341:0043", // Arduino Uno, resets when the port opens
	}
}

// IsBlocked checks if a USB device is in the blocklist.
func IsBlocked(vidpid string, blocklist []string) bool {
	vidpid = strings.ToUpper(strings.TrimSpace(vidpid))
	if vidpid == "" {
		return false
	}

	for _, blocked := range blocklist {
		if vidpid == strings.ToUpper(strings.TrimSpace(blocked)) {
			return true
		}
	}
	return false
}

// FormatVIDPID joins hexadecimal vendor and product ids as "VVVV:PPPP". It
// returns "" when either id is not hexadecimal.
func FormatVIDPID(vid, pid string) string {
	v, err := strconv.ParseUint(strings.TrimSpace(vid), 16, 16)
	if err != nil {
		return ""
	}
	p, err := strconv.ParseUint(strings.TrimSpace(pid), 16, 16)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%04X:%04X", v, p)
}

// ParseVIDPID extracts VID:PID from the descriptor formats operating systems
// report:
//
//	"VID:1234 PID:5678"
//	"USB VID:PID=0403:6001 SER=A1"
//	"vendor=1234 product=5678"
//	"1234:5678"
func ParseVIDPID(descriptor string) string {
	descriptor = strings.ToUpper(descriptor)

	if idx := strings.Index(descriptor, "VID:PID="); idx >= 0 {
		if vid, pid, ok := strings.Cut(descriptor[idx+8:], ":"); ok {
			return FormatVIDPID(extractHex(vid), extractHex(pid))
		}
	}

	vid := findField(descriptor, "VID:", "VENDOR=", "VID=", "VID_")
	pid := findField(descriptor, "PID:", "PRODUCT=", "PID=", "PID_")
	if vid != "" && pid != "" {
		return FormatVIDPID(vid, pid)
	}

	if strings.Count(descriptor, ":") == 1 {
		v, p, _ := strings.Cut(strings.TrimSpace(descriptor), ":")
		if isHex(v) && isHex(p) {
			return FormatVIDPID(v, p)
		}
	}
	return ""
}

// findField returns the hex digits after the first marker found.
func findField(s string, markers ...string) string {
	for _, marker := range markers {
		if idx := strings.Index(s, marker); idx >= 0 {
			return extractHex(s[idx+len(marker):])
		}
	}
	return ""
}

// extractHex extracts the first sequence of hex digits from a string.
func extractHex(s string) string {
	start := strings.IndexFunc(s, isHexRune)
	if start < 0 {
		return ""
	}
	s = s[start:]
	if end := strings.IndexFunc(s, func(r rune) bool { return !isHexRune(r) }); end >= 0 {
		return s[:end]
	}
	return s
}

func isHexRune(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'A' && r <= 'F') || (r >= 'a' && r <= 'f')
}

// isHex checks if a string contains only hexadecimal characters.
func isHex(s string) bool {
	return s != "" && strings.IndexFunc(s, func(r rune) bool { return !isHexRune(r) }) < 0
}

// IsPathIgnored checks if a device path should be ignored. Paths are compared
// cleaned and case-insensitively, since Windows COM names are.
func IsPathIgnored(devicePath string, ignorePaths []string) bool {
	if devicePath == "" || len(ignorePaths) == 0 {
		return false
	}

	normalizedDevice := normalizedPath(devicePath)
	for _, ignorePath := range ignorePaths {
		if ignorePath == "" {
			continue
		}
		if devicePath == ignorePath || normalizedDevice == normalizedPath(ignorePath) {
			return true
		}
	}
	return false
}

func normalizedPath(path string) string {
	return strings.ToLower(filepath.Clean(path))
}
