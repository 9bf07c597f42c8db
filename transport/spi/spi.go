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

// Package spi implements the IMU byte transport over SPI.
//
// Every transaction starts with a command byte. cmdStatus clocks out the
// number of bytes waiting in the device FIFO (16-bit big-endian), cmdRead
// clocks out FIFO bytes and cmdWrite clocks host bytes in.
package spi

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/tsilna-nav/tsilna-go"
	"github.com/tsilna-nav/tsilna-go/internal/frame"
	"github.com/tsilna-nav/tsilna-go/internal/syncutil"
	"github.com/tsilna-nav/tsilna-go/pkg/idtp"
)

const (
	// SPI command bytes
	cmdWrite  = 0x01
	cmdStatus = 0x02
	cmdRead   = 0x03

	// Default SPI settings
	defaultFreq = 8 * physic.MegaHertz
	mode        = spi.Mode0
	bitsPerWord = 8

	// maxReadChunk bounds one FIFO read burst.
	maxReadChunk = 512

	pollMinDelay = 250 * time.Microsecond
	pollMaxDelay = 4 * time.Millisecond
)

// Transport implements tsilna.Transport for SPI communication
type Transport struct {
	port         spi.PortCloser
	conn         spi.Conn
	currentTrace *tsilna.TraceBuffer // Trace buffer for current transfer (error-only)
	portName     string
	timeout      time.Duration
	mu           syncutil.Mutex
}

func (t *Transport) traceTX(data []byte, note string) {
	if t.currentTrace != nil {
		t.currentTrace.RecordTX(data, note)
	}
}

func (t *Transport) traceRX(data []byte, note string) {
	if t.currentTrace != nil {
		t.currentTrace.RecordRX(data, note)
	}
}

func (t *Transport) traceTimeout(note string) {
	if t.currentTrace != nil {
		t.currentTrace.RecordTimeout(note)
	}
}

// New creates a new SPI transport
func New(portName string) (*Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	port, err := spireg.Open(portName)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %s: %w", portName, err)
	}

	transport, err := NewWithPort(port, portName)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	return transport, nil
}

// NewWithPort connects to an already open port.
func NewWithPort(port spi.PortCloser, portName string) (*Transport, error) {
	conn, err := port.Connect(defaultFreq, mode, bitsPerWord)
	if err != nil {
		return nil, fmt.Errorf("failed to connect SPI: %w", err)
	}
	return &Transport{
		port:     port,
		conn:     conn,
		portName: portName,
		timeout:  tsilna.DefaultReadTimeout,
	}, nil
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

// Send clocks data into the device.
//
//nolint:wrapcheck // WrapError intentionally wraps errors with trace data
func (t *Transport) Send(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(data) > idtp.MaxFrameSize {
		return tsilna.NewDataTooLargeError("send", t.portName)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return tsilna.NewTransportClosedError("send", t.portName)
	}

	t.currentTrace = tsilna.NewTraceBuffer("SPI", t.portName, 16)
	defer func() { t.currentTrace = nil }()

	w := frame.GetBuffer(1 + len(data))
	defer frame.PutBuffer(w)
	w[0] = cmdWrite
	copy(w[1:], data)

	t.traceTX(data, "Write")
	if err := t.conn.Tx(w, nil); err != nil {
		return t.currentTrace.WrapError(t.busError("send", err, tsilna.ErrTransportWrite))
	}
	return nil
}

// Receive waits for the device to report queued bytes and reads up to
// len(buf) of them.
//
//nolint:wrapcheck // WrapError intentionally wraps errors with trace data
func (t *Transport) Receive(ctx context.Context, buf []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return 0, tsilna.NewTransportClosedError("receive", t.portName)
	}

	t.currentTrace = tsilna.NewTraceBuffer("SPI", t.portName, 16)
	defer func() { t.currentTrace = nil }()

	count, err := t.waitReady(ctx)
	if err != nil {
		return 0, t.currentTrace.WrapError(err)
	}

	n := min(int(count), len(buf), maxReadChunk)
	if n == 0 {
		return 0, nil
	}

	// Full duplex: the first clocked-out byte mirrors the command slot.
	w := frame.GetBuffer(n + 1)
	defer frame.PutBuffer(w)
	r := frame.GetBuffer(n + 1)
	defer frame.PutBuffer(r)
	w[0] = cmdRead

	if err := t.conn.Tx(w, r); err != nil {
		return 0, t.currentTrace.WrapError(t.busError("receive", err, tsilna.ErrTransportRead))
	}
	copy(buf, r[1:])
	t.traceRX(buf[:n], "Read")
	return n, nil
}

// waitReady polls the status command with backoff. Must hold t.mu.
func (t *Transport) waitReady(ctx context.Context) (uint16, error) {
	deadline := time.Now().Add(t.timeout)
	delay := pollMinDelay
	w := []byte{cmdStatus, 0, 0}
	r := make([]byte, len(w))

	for {
		if err := t.conn.Tx(w, r); err != nil {
			return 0, t.busError("receive", err, tsilna.ErrTransportRead)
		}
		if count := binary.BigEndian.Uint16(r[1:]); count > 0 {
			t.traceRX(r, "Status")
			return count, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.traceTX(w, "Status")
			t.traceTimeout("Device not ready")
			return 0, tsilna.NewTransportNotReadyError("waitReady", t.portName)
		}
		if err := sleepCtx(ctx, min(delay, remaining)); err != nil {
			return 0, err
		}
		delay = min(delay*2, pollMaxDelay)
	}
}

func (t *Transport) busError(op string, err, fallback error) error {
	if tsilna.IsFatal(err) {
		return tsilna.NewTransportError(op, t.portName, err, tsilna.ErrorTypePermanent)
	}
	return tsilna.NewTransportError(op, t.portName, fmt.Errorf("%w: %w", fallback, err), tsilna.ErrorTypeTransient)
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

// Close closes the transport connection
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.port != nil {
		if err := t.port.Close(); err != nil {
			return fmt.Errorf("SPI close failed: %w", err)
		}
		t.port = nil
		t.conn = nil
	}
	return nil
}

// IsConnected returns true if the transport is connected
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port != nil
}

// Type returns the transport type
func (*Transport) Type() tsilna.TransportType {
	return tsilna.TransportSPI
}

var _ tsilna.Transport = (*Transport)(nil)
