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

package udp

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsilna-nav/tsilna-go"
	virt "github.com/tsilna-nav/tsilna-go/internal/testing"
	"github.com/tsilna-nav/tsilna-go/pkg/idtp"
)

func loopbackConfig() Config {
	return Config{ListenAddr: "127.0.0.1:0", ReadTimeout: 200 * time.Millisecond}
}

// newBridge opens the device side of the socket pair.
func newBridge(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func newTransport(t *testing.T, config Config) *Transport {
	t.Helper()
	transport, err := New(context.Background(), config)
	require.NoError(t, err)
	t.Cleanup(func() { _ = transport.Close() })
	return transport
}

func TestTransport_LinkOverUDP(t *testing.T) {
	t.Parallel()

	transport := newTransport(t, loopbackConfig())
	bridge := newBridge(t)
	imu := virt.NewVirtualIMU(virt.DefaultIMUConfig())

	for range 5 {
		_, err := bridge.WriteToUDP(imu.NextFrame(), transport.LocalAddr())
		require.NoError(t, err)
	}

	link, err := tsilna.NewLink(transport)
	require.NoError(t, err)

	for i := range 5 {
		f, err := link.Receive(context.Background())
		require.NoError(t, err)
		assert.Equal(t, uint32(i), f.Header.Sequence)
	}
	assert.Equal(t, bridge.LocalAddr().String(), transport.Remote().String())
}

func TestTransport_ReplyToLastSender(t *testing.T) {
	t.Parallel()

	transport := newTransport(t, loopbackConfig())
	bridge := newBridge(t)

	err := transport.Send(context.Background(), []byte{0x01})
	require.ErrorIs(t, err, tsilna.ErrTransportNotReady)

	_, err = bridge.WriteToUDP([]byte("IDTP"), transport.LocalAddr())
	require.NoError(t, err)
	_, err = transport.Receive(context.Background(), make([]byte, 16))
	require.NoError(t, err)

	require.NoError(t, transport.Send(context.Background(), []byte("hello")))

	require.NoError(t, bridge.SetReadDeadline(time.Now().Add(time.Second)))
	buf := make([]byte, 16)
	n, _, err := bridge.ReadFromUDP(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
}

func TestTransport_ConfiguredRemote(t *testing.T) {
	t.Parallel()

	bridge := newBridge(t)
	config := loopbackConfig()
	config.RemoteAddr = bridge.LocalAddr().String()
	transport := newTransport(t, config)

	require.NoError(t, transport.Send(context.Background(), []byte{0xAA, 0xBB}))

	require.NoError(t, bridge.SetReadDeadline(time.Now().Add(time.Second)))
	buf := make([]byte, 4)
	n, _, err := bridge.ReadFromUDP(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0xBB}, buf[:n])
}

func TestTransport_SplitsLargeDatagram(t *testing.T) {
	t.Parallel()

	transport := newTransport(t, loopbackConfig())
	bridge := newBridge(t)

	payload := make([]byte, 100)
	for i := range payload {
		payload[i] = byte(i)
	}
	_, err := bridge.WriteToUDP(payload, transport.LocalAddr())
	require.NoError(t, err)

	var got []byte
	buf := make([]byte, 30)
	for len(got) < len(payload) {
		n, err := transport.Receive(context.Background(), buf)
		require.NoError(t, err)
		got = append(got, buf[:n]...)
	}
	assert.Equal(t, payload, got)
}

func TestTransport_Timeout(t *testing.T) {
	t.Parallel()

	transport := newTransport(t, loopbackConfig())
	require.NoError(t, transport.SetTimeout(10*time.Millisecond))

	_, err := transport.Receive(context.Background(), make([]byte, 8))
	require.ErrorIs(t, err, tsilna.ErrTransportTimeout)
	assert.True(t, tsilna.IsTimeout(err))
	assert.False(t, tsilna.IsFatal(err))
}

func TestTransport_CancelUnblocksReceive(t *testing.T) {
	t.Parallel()

	transport := newTransport(t, loopbackConfig())
	require.NoError(t, transport.SetTimeout(10*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := transport.Receive(ctx, make([]byte, 8))
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestTransport_Close(t *testing.T) {
	t.Parallel()

	transport, err := New(context.Background(), loopbackConfig())
	require.NoError(t, err)
	assert.True(t, transport.IsConnected())
	assert.Equal(t, tsilna.TransportUDP, transport.Type())

	require.NoError(t, transport.Close())
	require.NoError(t, transport.Close())
	assert.False(t, transport.IsConnected())

	_, err = transport.Receive(context.Background(), make([]byte, 8))
	require.ErrorIs(t, err, tsilna.ErrTransportClosed)
	assert.True(t, tsilna.IsFatal(err))
}

func TestNew_InvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{ListenAddr: "127.0.0.1:0", RemoteAddr: "not a host:xx"})
	require.ErrorIs(t, err, tsilna.ErrInvalidParameter)

	err = newTransport(t, loopbackConfig()).Send(context.Background(), make([]byte, idtp.MaxFrameSize+1))
	require.ErrorIs(t, err, tsilna.ErrDataTooLarge)
}

func TestNew_ReuseAddr(t *testing.T) {
	t.Parallel()

	config := loopbackConfig()
	config.ReuseAddr = true
	transport := newTransport(t, config)
	assert.NotZero(t, transport.LocalAddr().Port)
	assert.Equal(t, ":7447", DefaultConfig().ListenAddr)
}
