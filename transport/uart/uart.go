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

// Package uart implements the IMU byte transport over a serial port.
package uart

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"syscall"
	"time"

	"go.bug.st/serial"

	"github.com/tsilna-nav/tsilna-go"
	"github.com/tsilna-nav/tsilna-go/internal/syncutil"
)

// DefaultBaudRate suits a 1 kHz IMU6 stream (46 bytes per frame) with room
// for IMU10 frames.
const DefaultBaudRate = 921600

// Config holds the serial line settings. The line is always 8N1.
type Config struct {
	BaudRate    int
	ReadTimeout time.Duration
}

// DefaultConfig returns 921600 baud with the link's default read timeout.
func DefaultConfig() Config {
	return Config{
		BaudRate:    DefaultBaudRate,
		ReadTimeout: tsilna.DefaultReadTimeout,
	}
}

// Transport implements tsilna.Transport over a serial port.
type Transport struct {
	port     serial.Port
	portName string
	mu       syncutil.Mutex
	closed   bool
}

// isWindows returns true if running on Windows
func isWindows() bool {
	return runtime.GOOS == "windows"
}

// minReadTimeout is the shortest read timeout the platform driver honours.
func minReadTimeout() time.Duration {
	if isWindows() {
		return 20 * time.Millisecond
	}
	return time.Millisecond
}

// New opens portName with the given settings and discards anything already
// sitting in the receive buffer.
func New(portName string, config Config) (*Transport, error) {
	if config.BaudRate <= 0 {
		config.BaudRate = DefaultBaudRate
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = tsilna.DefaultReadTimeout
	}

	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: config.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		var portErr *serial.PortError
		if errors.As(err, &portErr) && portErr.Code() == serial.PortNotFound {
			return nil, fmt.Errorf("failed to open UART port %s: %w", portName, tsilna.ErrDeviceNotFound)
		}
		return nil, fmt.Errorf("failed to open UART port %s: %w", portName, err)
	}

	t := NewWithPort(port, portName)
	if err := t.SetTimeout(config.ReadTimeout); err != nil {
		_ = port.Close()
		return nil, err
	}
	if err := port.ResetInputBuffer(); err != nil {
		tsilna.Debugf("UART %s: input reset failed: %v", portName, err)
	}
	tsilna.Debugf("UART %s: opened at %d baud", portName, config.BaudRate)
	return t, nil
}

// NewWithPort wraps an already open port.
func NewWithPort(port serial.Port, portName string) *Transport {
	return &Transport{port: port, portName: portName}
}

// ListPorts returns the names of the serial ports on this machine.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	return ports, nil
}

// Send writes data and waits until the driver has transmitted it.
func (t *Transport) Send(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed || t.port == nil {
		return tsilna.NewTransportClosedError("send", t.portName)
	}

	for written := 0; written < len(data); {
		n, err := t.port.Write(data[written:])
		if err != nil {
			return t.classify("send", err, tsilna.ErrTransportWrite)
		}
		if n == 0 {
			return tsilna.NewTransportWriteError("send", t.portName)
		}
		written += n
	}

	if err := t.drainWithRetry(); err != nil {
		return err
	}
	tsilna.Debugf("UART TX %d bytes", len(data))
	return nil
}

// Receive reads what the port has buffered, waiting at most the read timeout.
func (t *Transport) Receive(ctx context.Context, buf []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed || t.port == nil {
		return 0, tsilna.NewTransportClosedError("receive", t.portName)
	}

	n, err := t.port.Read(buf)
	if err != nil {
		return n, t.classify("receive", err, tsilna.ErrTransportRead)
	}
	if n == 0 {
		return 0, tsilna.NewTimeoutError("receive", t.portName)
	}
	return n, nil
}

// classify maps a driver error onto the transport taxonomy. A vanished
// device is permanent; anything else may clear on the next attempt.
func (t *Transport) classify(op string, err, fallback error) error {
	if tsilna.IsFatal(err) {
		return tsilna.NewTransportError(op, t.portName, err, tsilna.ErrorTypePermanent)
	}
	var portErr *serial.PortError
	if errors.As(err, &portErr) && portErr.Code() == serial.PortClosed {
		return tsilna.NewTransportError(op, t.portName, fmt.Errorf("%w: %w", tsilna.ErrTransportClosed, err),
			tsilna.ErrorTypePermanent)
	}
	return tsilna.NewTransportError(op, t.portName, fmt.Errorf("%w: %w", fallback, err), tsilna.ErrorTypeTransient)
}

// SetTimeout sets the read timeout for the transport
func (t *Transport) SetTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		return fmt.Errorf("%w: timeout %v", tsilna.ErrInvalidParameter, timeout)
	}
	timeout = max(timeout, minReadTimeout())

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.port.SetReadTimeout(timeout); err != nil {
		return fmt.Errorf("UART set timeout failed: %w", err)
	}
	return nil
}

// Close closes the transport connection
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed || t.port == nil {
		return nil
	}
	t.closed = true
	if err := t.port.Close(); err != nil {
		return fmt.Errorf("UART close failed: %w", err)
	}
	return nil
}

// IsConnected returns true if the transport is connected
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port != nil && !t.closed
}

// Type returns the transport type
func (*Transport) Type() tsilna.TransportType {
	return tsilna.TransportUART
}

// PortName returns the device path the transport was opened on.
func (t *Transport) PortName() string {
	return t.portName
}

// isInterruptedSystemCall checks if an error is caused by an interrupted system call
func isInterruptedSystemCall(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.EINTR) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "interrupted system call") ||
		strings.Contains(errStr, "eintr")
}

// drainWithRetry waits for the output buffer to empty, retrying when a
// signal interrupts the call. Must hold t.mu.
func (t *Transport) drainWithRetry() error {
	delay := 2 * time.Millisecond

	var err error
	for attempt := range tsilna.TransportDrainRetries {
		err = t.port.Drain()
		if err == nil {
			return nil
		}
		if !isInterruptedSystemCall(err) {
			break
		}
		if attempt < tsilna.TransportDrainRetries-1 {
			time.Sleep(delay << attempt) // 2ms, 4ms, 8ms
		}
	}
	return t.classify("drain", err, tsilna.ErrTransportWrite)
}

var _ tsilna.Transport = (*Transport)(nil)
