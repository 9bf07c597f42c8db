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

package tsilna

import (
	"context"
	"fmt"
	"time"

	"github.com/tsilna-nav/tsilna-go/internal/syncutil"
)

// Transport moves raw bytes between the host and an IMU. It knows nothing
// about frames; a Link layers IDTP framing on top. UART, I2C, SPI and UDP
// backends live under transport/.
type Transport interface {
	// Send writes data to the device in one transfer.
	Send(ctx context.Context, data []byte) error

	// Receive reads whatever the device has ready into buf, up to len(buf)
	// bytes. It returns a timeout TransportError when nothing arrives within
	// the read timeout. A read may end in the middle of a frame.
	Receive(ctx context.Context, buf []byte) (int, error)

	// Close closes the transport connection
	Close() error

	// SetTimeout sets the read timeout for the transport
	SetTimeout(timeout time.Duration) error

	// IsConnected returns true if the transport is connected
	IsConnected() bool

	// Type returns the transport type
	Type() TransportType
}

// TransportType represents the type of transport
type TransportType string

const (
	// TransportUART represents UART/serial transport.
	TransportUART TransportType = "uart"
	// TransportI2C represents I2C bus transport.
	TransportI2C TransportType = "i2c"
	// TransportSPI represents SPI bus transport.
	TransportSPI TransportType = "spi"
	// TransportUDP represents a UDP socket, used by networked IMU bridges.
	TransportUDP TransportType = "udp"
	// TransportMock represents a mock transport for testing
	TransportMock TransportType = "mock"
)

// TransportWithRetry wraps a Transport and retries sends that fail with a
// retryable error. Receives pass straight through: the link decides what a
// failed read means.
type TransportWithRetry struct {
	transport Transport
	config    *RetryConfig
	mu        syncutil.Mutex
}

// NewTransportWithRetry creates a new transport wrapper with retry logic
func NewTransportWithRetry(transport Transport, config *RetryConfig) *TransportWithRetry {
	if config == nil {
		config = DefaultRetryConfig()
	}
	return &TransportWithRetry{
		transport: transport,
		config:    config,
	}
}

// Send sends data, retrying per the retry configuration.
func (t *TransportWithRetry) Send(ctx context.Context, data []byte) error {
	t.mu.Lock()
	config := t.config
	t.mu.Unlock()

	return RetryWithConfig(ctx, config, func(ctx context.Context) error {
		err := t.transport.Send(ctx, data)
		if err == nil {
			return nil
		}
		if _, ok := err.(*TransportError); ok { //nolint:errorlint // only re-wrap foreign errors
			return err
		}
		return &TransportError{
			Op:        "send",
			Err:       err,
			Type:      ErrorTypeTransient,
			Retryable: IsRetryable(err),
		}
	})
}

// Receive implements Transport
func (t *TransportWithRetry) Receive(ctx context.Context, buf []byte) (int, error) {
	n, err := t.transport.Receive(ctx, buf)
	if err != nil {
		return n, fmt.Errorf("receive: %w", err)
	}
	return n, nil
}

// Close closes the transport connection
func (t *TransportWithRetry) Close() error {
	if err := t.transport.Close(); err != nil {
		return fmt.Errorf("failed to close underlying transport: %w", err)
	}
	return nil
}

// SetTimeout sets the read timeout for the transport
func (t *TransportWithRetry) SetTimeout(timeout time.Duration) error {
	if err := t.transport.SetTimeout(timeout); err != nil {
		return fmt.Errorf("failed to set timeout on underlying transport: %w", err)
	}
	return nil
}

// IsConnected returns true if the transport is connected
func (t *TransportWithRetry) IsConnected() bool {
	return t.transport.IsConnected()
}

// Type returns the transport type
func (t *TransportWithRetry) Type() TransportType {
	return t.transport.Type()
}

// SetRetryConfig updates the retry configuration
func (t *TransportWithRetry) SetRetryConfig(config *RetryConfig) {
	if config == nil {
		config = DefaultRetryConfig()
	}
	t.mu.Lock()
	t.config = config
	t.mu.Unlock()
}

// Unwrap returns the wrapped transport.
func (t *TransportWithRetry) Unwrap() Transport {
	return t.transport
}

// MockTransport is an in-memory Transport for tests and simulation. Queued
// chunks are handed out by Receive in order; sends are recorded.
type MockTransport struct {
	ready       chan struct{}
	rx          [][]byte
	tx          [][]byte
	sendErrs    []error
	recvErrs    []error
	timeout     time.Duration
	delay       time.Duration
	sendCalls   int
	recvCalls   int
	mu          syncutil.Mutex
	connected   bool
	maxReadSize int
}

// NewMockTransport creates a connected mock transport with a 100ms read
// timeout.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		ready:     make(chan struct{}, 1),
		timeout:   DefaultReadTimeout,
		connected: true,
	}
}

// Send implements Transport
func (m *MockTransport) Send(ctx context.Context, data []byte) error {
	if err := m.wait(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sendCalls++
	if !m.connected {
		return NewTransportClosedError("send", "mock")
	}
	if len(m.sendErrs) > 0 {
		err := m.sendErrs[0]
		m.sendErrs = m.sendErrs[1:]
		return err
	}
	m.tx = append(m.tx, append([]byte(nil), data...))
	return nil
}

// Receive implements Transport. It blocks until a chunk is queued, the read
// timeout passes, or ctx ends.
func (m *MockTransport) Receive(ctx context.Context, buf []byte) (int, error) {
	if err := m.wait(ctx); err != nil {
		return 0, err
	}

	m.mu.Lock()
	m.recvCalls++
	timeout := m.timeout
	m.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		n, ok, err := m.pop(buf)
		if ok || err != nil {
			return n, err
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-timer.C:
			return 0, NewTimeoutError("receive", "mock")
		case <-m.ready:
		}
	}
}

// pop hands out the next queued chunk or error. ok is false when nothing is
// queued.
func (m *MockTransport) pop(buf []byte) (n int, ok bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return 0, false, NewTransportClosedError("receive", "mock")
	}
	if len(m.recvErrs) > 0 {
		err := m.recvErrs[0]
		m.recvErrs = m.recvErrs[1:]
		return 0, false, err
	}
	if len(m.rx) == 0 {
		return 0, false, nil
	}

	limit := len(buf)
	if m.maxReadSize > 0 && m.maxReadSize < limit {
		limit = m.maxReadSize
	}
	n = copy(buf[:limit], m.rx[0])
	if n == len(m.rx[0]) {
		m.rx = m.rx[1:]
	} else {
		m.rx[0] = m.rx[0][n:]
	}
	return n, true, nil
}

func (m *MockTransport) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	delay := m.delay
	m.mu.Unlock()

	if delay <= 0 {
		return nil
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MockTransport) signal() {
	select {
	case m.ready <- struct{}{}:
	default:
	}
}

// Close implements Transport interface
func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()
	m.signal()
	return nil
}

// SetTimeout implements Transport interface
func (m *MockTransport) SetTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		return fmt.Errorf("%w: timeout %v", ErrInvalidParameter, timeout)
	}
	m.mu.Lock()
	m.timeout = timeout
	m.mu.Unlock()
	return nil
}

// IsConnected implements Transport interface
func (m *MockTransport) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Type implements Transport interface
func (*MockTransport) Type() TransportType {
	return TransportMock
}

// Test helper methods

// QueueReceive queues a chunk for a later Receive. The chunk is copied.
func (m *MockTransport) QueueReceive(data []byte) {
	m.mu.Lock()
	m.rx = append(m.rx, append([]byte(nil), data...))
	m.mu.Unlock()
	m.signal()
}

// QueueReceiveError makes a later Receive fail with err, in queue order
// ahead of data chunks.
func (m *MockTransport) QueueReceiveError(err error) {
	m.mu.Lock()
	m.recvErrs = append(m.recvErrs, err)
	m.mu.Unlock()
	m.signal()
}

// QueueSendError makes the next Send fail with err. Queued errors are used
// once each.
func (m *MockTransport) QueueSendError(err error) {
	m.mu.Lock()
	m.sendErrs = append(m.sendErrs, err)
	m.mu.Unlock()
}

// SetDelay configures a delay before every Send and Receive
func (m *MockTransport) SetDelay(delay time.Duration) {
	m.mu.Lock()
	m.delay = delay
	m.mu.Unlock()
}

// SetMaxReadSize caps how many bytes one Receive returns, so a frame can be
// split across reads. Zero removes the cap.
func (m *MockTransport) SetMaxReadSize(n int) {
	m.mu.Lock()
	m.maxReadSize = n
	m.mu.Unlock()
}

// Sent returns copies of every successful Send in order.
func (m *MockTransport) Sent() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([][]byte, len(m.tx))
	for i, b := range m.tx {
		out[i] = append([]byte(nil), b...)
	}
	return out
}

// Pending returns the number of queued receive chunks.
func (m *MockTransport) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rx)
}

// CallCounts returns how many times Send and Receive were called.
func (m *MockTransport) CallCounts() (sends, receives int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sendCalls, m.recvCalls
}

// Reconnect marks a closed mock as connected again.
func (m *MockTransport) Reconnect() {
	m.mu.Lock()
	m.connected = true
	m.mu.Unlock()
}
