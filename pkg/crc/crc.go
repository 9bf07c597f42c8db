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

// Package crc provides the cyclic redundancy checks layered around the
// Internet checksum in IDTP frames.
package crc

import (
	"github.com/howeyc/crc16"
	"github.com/sigurn/crc8"
)

var crc8Table = crc8.MakeTable(crc8.CRC8)

// CRC16 returns the CRC-16/CCITT-FALSE of data (poly 0x1021, init 0xFFFF).
func CRC16(data []byte) uint16 {
	return crc16.ChecksumCCITTFalse(data)
}

// CRC8 returns the CRC-8 (poly 0x07, init 0x00) of data.
func CRC8(data []byte) uint8 {
	return crc8.Checksum(data, crc8Table)
}
