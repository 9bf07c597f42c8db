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
	"maps"
	"time"

	"github.com/tsilna-nav/tsilna-go/internal/syncutil"
)

// cacheKey separates results by mode: a Passive scan must not answer a
// Full request.
type cacheKey struct {
	transport string
	mode      Mode
}

type cacheEntry struct {
	timestamp time.Time
	devices   []DeviceInfo
}

// resultCache is a thread-safe store of recent detection results.
type resultCache struct {
	entries map[cacheKey]cacheEntry
	now     func() time.Time
	mu      syncutil.RWMutex
}

func newResultCache() *resultCache {
	return &resultCache{
		entries: make(map[cacheKey]cacheEntry),
		now:     time.Now,
	}
}

var defaultCache = newResultCache()

// get returns a copy of unexpired cached devices.
func (c *resultCache) get(key cacheKey, ttl time.Duration) ([]DeviceInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[key]
	if !exists || c.now().Sub(entry.timestamp) > ttl {
		return nil, false
	}
	return cloneDevices(entry.devices), true
}

func (c *resultCache) set(key cacheKey, devices []DeviceInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{
		devices:   cloneDevices(devices),
		timestamp: c.now(),
	}
}

func (c *resultCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[cacheKey]cacheEntry)
}

// clearTransport drops entries for transport in every mode.
func (c *resultCache) clearTransport(transport string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.entries {
		if key.transport == transport {
			delete(c.entries, key)
		}
	}
}

// cloneDevices copies devices including their metadata maps.
func cloneDevices(devices []DeviceInfo) []DeviceInfo {
	out := make([]DeviceInfo, len(devices))
	for i, d := range devices {
		out[i] = d
		out[i].Metadata = maps.Clone(d.Metadata)
	}
	return out
}
