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

// Package i2c implements the IMU byte transport over an I2C bus.
//
// The device exposes its outgoing byte stream through a FIFO: register
// RegFIFOCount holds the number of bytes waiting (16-bit big-endian) and
// reads from RegFIFOData drain them. Host frames are written to RegFIFOData.
package i2c

import (
	"context"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/mmr"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/tsilna-nav/tsilna-go"
	"github.com/tsilna-nav/tsilna-go/internal/frame"
	"github.com/tsilna-nav/tsilna-go/internal/syncutil"
	"github.com/tsilna-nav/tsilna-go/pkg/idtp"
)

// Register map
const (
	RegFIFOCount = 0x00
	RegFIFOData  = 0x01
)

const (
	// DefaultAddress is the 7-bit device address.
	DefaultAddress = 0x68

	// Fast-mode clock.
	maxClockFreq = 400 * physic.KiloHertz

	// maxReadChunk bounds one FIFO data transaction.
	maxReadChunk = 255

	// FIFO count polling backoff.
	pollMinDelay = 500 * time.Microsecond
	pollMaxDelay = 8 * time.Millisecond
)

// Transport implements tsilna.Transport over I2C.
type Transport struct {
	dev          *i2c.Dev
	regs         mmr.Dev8
	bus          i2c.BusCloser        // held so Close() can release the OS file descriptor
	currentTrace *tsilna.TraceBuffer // trace for the current transfer (error-only)
	busName      string
	timeout      time.Duration
	mu           syncutil.Mutex
}

// traceTX records a TX operation if trace buffer is active
func (t *Transport) traceTX(data []byte, note string) {
	if t.currentTrace != nil {
		t.currentTrace.RecordTX(data, note)
	}
}

// traceRX records an RX operation if trace buffer is active
func (t *Transport) traceRX(data []byte, note string) {
	if t.currentTrace != nil {
		t.currentTrace.RecordRX(data, note)
	}
}

// traceTimeout records a timeout if trace buffer is active
func (t *Transport) traceTimeout(note string) {
	if t.currentTrace != nil {
		t.currentTrace.RecordTimeout(note)
	}
}

// ParsePath splits "/dev/i2c-1:0x68" into bus and address. A bare bus name
// uses DefaultAddress.
func ParsePath(path string) (bus string, addr uint16, err error) {
	bus, suffix, found := strings.Cut(path, ":")
	if !found {
		return bus, DefaultAddress, nil
	}
	v, err := strconv.ParseUint(suffix, 0, 7)
	if err != nil {
		return "", 0, fmt.Errorf("%w: I2C address %q: %w", tsilna.ErrInvalidParameter, suffix, err)
	}
	return bus, uint16(v), nil
}

// New opens the bus named in path ("/dev/i2c-1" or "/dev/i2c-1:0x68").
func New(path string) (*Transport, error) {
	busName, addr, err := ParsePath(path)
	if err != nil {
		return nil, err
	}

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus %s: %w", busName, err)
	}

	if err := bus.SetSpeed(maxClockFreq); err != nil {
		tsilna.Debugf("I2C %s: keeping default clock: %v", busName, err)
	}

	return NewWithBus(bus, busName, addr), nil
}

// NewWithBus wraps an already open bus.
func NewWithBus(bus i2c.BusCloser, busName string, addr uint16) *Transport {
	dev := &i2c.Dev{Addr: addr, Bus: bus}
	return &Transport{
		dev:     dev,
		regs:    mmr.Dev8{Conn: dev, Order: binary.BigEndian},
		bus:     bus,
		busName: busName,
		timeout: tsilna.DefaultReadTimeout,
	}
}

// sleepCtx performs a context-aware sleep. Returns ctx.Err() if context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send writes data to the FIFO data register in one transaction.
//
//nolint:wrapcheck // WrapError intentionally wraps errors with trace data
func (t *Transport) Send(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(data) > idtp.MaxFrameSize {
		return tsilna.NewDataTooLargeError("send", t.busName)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.dev == nil {
		return tsilna.NewTransportClosedError("send", t.busName)
	}

	t.currentTrace = tsilna.NewTraceBuffer("I2C", t.busName, 16)
	defer func() { t.currentTrace = nil }()

	w := frame.GetBuffer(1 + len(data))
	defer frame.PutBuffer(w)
	w[0] = RegFIFOData
	copy(w[1:], data)

	t.traceTX(w, "FIFO data")
	if err := t.dev.Tx(w, nil); err != nil {
		return t.currentTrace.WrapError(t.busError("send", err, tsilna.ErrTransportWrite))
	}
	return nil
}

// Receive polls the FIFO count until data is waiting or the read timeout
// passes, then reads up to len(buf) bytes.
//
//nolint:wrapcheck // WrapError intentionally wraps errors with trace data
func (t *Transport) Receive(ctx context.Context, buf []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.dev == nil {
		return 0, tsilna.NewTransportClosedError("receive", t.busName)
	}

	t.currentTrace = tsilna.NewTraceBuffer("I2C", t.busName, 16)
	defer func() { t.currentTrace = nil }()

	count, err := t.waitForData(ctx)
	if err != nil {
		return 0, t.currentTrace.WrapError(err)
	}

	n := min(int(count), len(buf), maxReadChunk)
	if n == 0 {
		return 0, nil
	}
	t.traceTX([]byte{RegFIFOData}, "FIFO data")
	if err := t.dev.Tx([]byte{RegFIFOData}, buf[:n]); err != nil {
		return 0, t.currentTrace.WrapError(t.busError("receive", err, tsilna.ErrTransportRead))
	}
	t.traceRX(buf[:n], "")
	return n, nil
}

// waitForData polls RegFIFOCount with exponential backoff. Must hold t.mu.
func (t *Transport) waitForData(ctx context.Context) (uint16, error) {
	deadline := time.Now().Add(t.timeout)
	delay := pollMinDelay

	for {
		t.traceTX([]byte{RegFIFOCount}, "FIFO count")
		count, err := t.regs.ReadUint16(RegFIFOCount)
		if err != nil {
			return 0, t.busError("receive", err, tsilna.ErrTransportRead)
		}
		if count > 0 {
			t.traceRX(binary.BigEndian.AppendUint16(nil, count), "FIFO count")
			return count, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.traceTimeout("FIFO empty")
			return 0, tsilna.NewTimeoutError("receive", t.busName)
		}
		if err := sleepCtx(ctx, min(delay, remaining)); err != nil {
			return 0, err
		}
		delay = min(delay*2, pollMaxDelay)
	}
}

func (t *Transport) busError(op string, err, fallback error) error {
	if tsilna.IsFatal(err) {
		return tsilna.NewTransportError(op, t.busName, err, tsilna.ErrorTypePermanent)
	}
	return tsilna.NewTransportError(op, t.busName, fmt.Errorf("%w: %w", fallback, err), tsilna.ErrorTypeTransient)
}

// SetTimeout sets the read timeout for the transport
func (t *Transport) SetTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		return fmt.Errorf("%w: timeout %v", tsilna.ErrInvalidParameter, timeout)
	}
	t.mu.Lock()
	t.timeout = timeout
	t.mu.Unlock()
	return nil
}

// Close closes the transport connection and releases the I2C bus file
// descriptor.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.bus != nil {
		if err := t.bus.Close(); err != nil {
			return fmt.Errorf("failed to close I2C bus: %w", err)
		}
		t.bus = nil
		t.dev = nil // IsConnected() returns false after Close
	}
	return nil
}

// IsConnected returns true if the transport is connected
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dev != nil
}

// Type returns the transport type
func (*Transport) Type() tsilna.TransportType {
	return tsilna.TransportI2C
}

var _ tsilna.Transport = (*Transport)(nil)
