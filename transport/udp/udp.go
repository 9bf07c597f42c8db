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

// Package udp implements the IMU byte transport over UDP, as used by
// networked IMU bridges that forward one IDTP frame per datagram.
package udp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/tsilna-nav/tsilna-go"
	"github.com/tsilna-nav/tsilna-go/internal/frame"
	"github.com/tsilna-nav/tsilna-go/internal/syncutil"
	"github.com/tsilna-nav/tsilna-go/pkg/idtp"
)

// DefaultPort is the port IMU bridges stream to.
const DefaultPort = 7447

// Config configures a UDP transport.
type Config struct {
	// ListenAddr is the local address, e.g. ":7447".
	ListenAddr string
	// RemoteAddr is where Send delivers datagrams. When empty, the source of
	// the most recent datagram is used.
	RemoteAddr string
	// ReuseAddr sets SO_REUSEADDR so several readers can share a port.
	ReuseAddr   bool
	ReadTimeout time.Duration
}

// DefaultConfig listens on DefaultPort on every interface.
func DefaultConfig() Config {
	return Config{
		ListenAddr:  fmt.Sprintf(":%d", DefaultPort),
		ReadTimeout: tsilna.DefaultReadTimeout,
	}
}

// Transport implements tsilna.Transport over a UDP socket. A datagram larger
// than the caller's buffer is delivered over several Receive calls.
type Transport struct {
	conn    *net.UDPConn
	remote  *net.UDPAddr
	name    string
	pending []byte
	rxBuf   []byte
	timeout time.Duration
	mu      syncutil.Mutex
	sendMu  syncutil.Mutex
	closed  atomic.Bool
}

// New opens a UDP socket per config.
func New(ctx context.Context, config Config) (*Transport, error) {
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = tsilna.DefaultReadTimeout
	}

	var remote *net.UDPAddr
	if config.RemoteAddr != "" {
		addr, err := net.ResolveUDPAddr("udp", config.RemoteAddr)
		if err != nil {
			return nil, fmt.Errorf("%w: remote address %q: %w", tsilna.ErrInvalidParameter, config.RemoteAddr, err)
		}
		remote = addr
	}

	lc := net.ListenConfig{}
	if config.ReuseAddr {
		lc.Control = reuseAddrControl
	}
	pc, err := lc.ListenPacket(ctx, "udp", config.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", config.ListenAddr, err)
	}
	conn, ok := pc.(*net.UDPConn)
	if !ok {
		_ = pc.Close()
		return nil, fmt.Errorf("unexpected packet conn %T", pc)
	}

	t := NewWithConn(conn, remote)
	t.timeout = config.ReadTimeout
	return t, nil
}

// NewWithConn wraps an existing socket. remote may be nil.
func NewWithConn(conn *net.UDPConn, remote *net.UDPAddr) *Transport {
	return &Transport{
		conn:    conn,
		remote:  remote,
		name:    "udp://" + conn.LocalAddr().String(),
		rxBuf:   make([]byte, frame.ReadBufferSize),
		timeout: tsilna.DefaultReadTimeout,
	}
}

// LocalAddr returns the bound socket address.
func (t *Transport) LocalAddr() *net.UDPAddr {
	addr, _ := t.conn.LocalAddr().(*net.UDPAddr)
	return addr
}

// Remote returns the current send destination, or nil.
func (t *Transport) Remote() *net.UDPAddr {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remote
}

// Send writes data as one datagram.
func (t *Transport) Send(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(data) > idtp.MaxFrameSize {
		return tsilna.NewDataTooLargeError("send", t.name)
	}

	remote := t.Remote()
	if remote == nil {
		return tsilna.NewTransportNotReadyError("send", t.name)
	}

	t.sendMu.Lock()
	defer t.sendMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetWriteDeadline(deadline)
	} else {
		_ = t.conn.SetWriteDeadline(time.Time{})
	}

	n, err := t.conn.WriteToUDP(data, remote)
	if err != nil {
		return t.classify("send", err, tsilna.ErrTransportWrite)
	}
	if n != len(data) {
		return tsilna.NewTransportWriteError("send", t.name)
	}
	return nil
}

// Receive copies datagram bytes into buf, waiting up to the read timeout for
// a datagram when none is pending.
func (t *Transport) Receive(ctx context.Context, buf []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.pending) > 0 {
		n := copy(buf, t.pending)
		t.pending = t.pending[n:]
		return n, nil
	}

	deadline := time.Now().Add(t.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return 0, t.classify("receive", err, tsilna.ErrTransportRead)
	}

	// Cancellation unblocks the read by moving the deadline.
	stop := context.AfterFunc(ctx, func() {
		_ = t.conn.SetReadDeadline(time.Now())
	})
	n, from, err := t.conn.ReadFromUDP(t.rxBuf)
	stop()

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, ctxErr
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return 0, tsilna.NewTimeoutError("receive", t.name)
		}
		return 0, t.classify("receive", err, tsilna.ErrTransportRead)
	}

	t.remote = from
	copied := copy(buf, t.rxBuf[:n])
	if copied < n {
		t.pending = append(t.pending[:0], t.rxBuf[copied:n]...)
	}
	return copied, nil
}

func (t *Transport) classify(op string, err, fallback error) error {
	if errors.Is(err, net.ErrClosed) {
		return tsilna.NewTransportError(op, t.name, fmt.Errorf("%w: %w", tsilna.ErrTransportClosed, err), tsilna.ErrorTypePermanent)
	}
	if tsilna.IsFatal(err) {
		return tsilna.NewTransportError(op, t.name, err, tsilna.ErrorTypePermanent)
	}
	return tsilna.NewTransportError(op, t.name, fmt.Errorf("%w: %w", fallback, err), tsilna.ErrorTypeTransient)
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

// Close closes the socket. Closing twice is not an error.
func (t *Transport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	err := t.conn.Close()
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("UDP close failed: %w", err)
	}
	return nil
}

// IsConnected reports whether the socket is still open.
func (t *Transport) IsConnected() bool {
	return !t.closed.Load()
}

// Type returns the transport type
func (*Transport) Type() tsilna.TransportType {
	return tsilna.TransportUDP
}

var _ tsilna.Transport = (*Transport)(nil)
