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

package spi

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsilna-nav/tsilna-go"
	"github.com/tsilna-nav/tsilna-go/detection"
	"github.com/tsilna-nav/tsilna-go/pkg/idtp"
)

func TestDetect_FullModeOnSPI(t *testing.T) {
	det := &detector{
		listPorts: func() ([]string, error) { return []string{"SPI0.0", "SPI0.1"}, nil },
		open: func(path string) (tsilna.Transport, error) {
			mock := tsilna.NewMockTransport()
			if path == "SPI0.1" {
				enc := idtp.NewEncoder(3, idtp.ModeNormal)
				for i := range 3 {
					data, err := enc.Encode(uint32(i), idtp.Attitude{Q: [4]float32{1, 0, 0, 0}})
					require.NoError(t, err)
					mock.QueueReceive(data)
				}
			}
			return mock, nil
		},
	}
	t.Setenv(EnvDevices, "")

	opts := &detection.Options{Mode: detection.Full, ProbeTimeout: 30 * time.Millisecond, IgnorePaths: []string{"spi0.0"}}
	devices, err := det.Detect(context.Background(), opts)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "SPI0.1", devices[0].Path)
	assert.Equal(t, detection.High, devices[0].Confidence)
	assert.Equal(t, idtp.PayloadAttitude.String(), devices[0].Metadata["payload"])
}

func TestDetect_ListError(t *testing.T) {
	t.Parallel()

	det := &detector{listPorts: func() ([]string, error) {
		return nil, detection.ErrUnsupportedPlatform
	}}
	_, err := det.Detect(context.Background(), &detection.Options{Mode: detection.Safe})
	require.ErrorIs(t, err, detection.ErrUnsupportedPlatform)
	assert.False(t, errors.Is(err, detection.ErrNoDevicesFound))
	assert.Equal(t, "spi", New().Transport())
}
