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

package stream

import (
	"context"
	"errors"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsilna-nav/tsilna-go"
	"github.com/tsilna-nav/tsilna-go/pkg/idtp"
)

// frameSink collects frames delivered to OnFrame.
type frameSink struct {
	frames []*idtp.Frame
	errs   []error
	mu     sync.Mutex
}

func (s *frameSink) onFrame(f *idtp.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f)
	return nil
}

func (s *frameSink) onError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

func (s *frameSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func (s *frameSink) errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errs...)
}

func newMockLink(t *testing.T) (*tsilna.Link, *tsilna.MockTransport) {
	t.Helper()
	mock := tsilna.NewMockTransport()
	link, err := tsilna.NewLink(mock, tsilna.WithReadTimeout(10*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { _ = link.Close() })
	return link, mock
}

func queueFrames(t *testing.T, mock *tsilna.MockTransport, n int) {
	t.Helper()
	enc := idtp.NewEncoder(7, idtp.ModeNormal)
	for i := range n {
		data, err := enc.Encode(uint32(i), idtp.IMU6{Accel: idtp.Vec3{0, 0, 9.81}})
		require.NoError(t, err)
		mock.QueueReceive(data)
	}
}

func testConfig() *Config {
	config := DefaultConfig()
	config.StallTimeout = 0
	config.Recovery.Backoff = time.Millisecond
	return config
}

func TestNewReader_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewReader(nil, nil, Callbacks{})
	require.ErrorIs(t, err, tsilna.ErrInvalidParameter)

	link, _ := newMockLink(t)
	_, err = NewReader(link, &Config{StallTimeout: -time.Second}, Callbacks{})
	require.ErrorIs(t, err, tsilna.ErrInvalidParameter)

	_, err = NewReader(link, &Config{Recovery: RecoveryConfig{Enabled: true}}, Callbacks{})
	require.ErrorIs(t, err, tsilna.ErrInvalidParameter)

	reader, err := NewReader(link, nil, Callbacks{})
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), reader.config)
}

func TestReader_DeliversFrames(t *testing.T) {
	t.Parallel()

	link, mock := newMockLink(t)
	queueFrames(t, mock, 25)

	sink := &frameSink{}
	reader, err := NewReader(link, testConfig(), Callbacks{OnFrame: sink.onFrame})
	require.NoError(t, err)
	require.NoError(t, reader.Start(context.Background()))
	require.NoError(t, reader.Start(context.Background()), "second start is a no-op")

	assert.Eventually(t, func() bool { return sink.count() == 25 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, reader.Stop(context.Background()))
	assert.False(t, reader.Running())
	assert.NoError(t, reader.Err())

	for i, f := range sink.frames {
		assert.Equal(t, uint32(i), f.Header.Sequence)
	}
	metrics := reader.Metrics()
	assert.Equal(t, int64(25), metrics.Frames)
	assert.Equal(t, uint64(25), metrics.Link.Received)
}

func TestReader_CountsRetryableErrors(t *testing.T) {
	t.Parallel()

	link, mock := newMockLink(t)
	glitch := tsilna.NewTransportError("receive", "mock", tsilna.ErrTransportRead, tsilna.ErrorTypeTransient)
	mock.QueueReceiveError(glitch)
	mock.QueueReceiveError(glitch)
	queueFrames(t, mock, 3)

	sink := &frameSink{}
	reader, err := NewReader(link, testConfig(), Callbacks{OnFrame: sink.onFrame, OnError: sink.onError})
	require.NoError(t, err)
	require.NoError(t, reader.Start(context.Background()))

	assert.Eventually(t, func() bool { return sink.count() == 3 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, reader.Stop(context.Background()))

	assert.Equal(t, int64(2), reader.Metrics().ReadErrors)
	assert.Len(t, sink.errors(), 2)
	assert.NoError(t, reader.Err())
}

func TestReader_TimeoutsAreQuiet(t *testing.T) {
	t.Parallel()

	link, _ := newMockLink(t)
	sink := &frameSink{}
	reader, err := NewReader(link, testConfig(), Callbacks{OnError: sink.onError})
	require.NoError(t, err)
	require.NoError(t, reader.Start(context.Background()))

	assert.Eventually(t, func() bool { return reader.Metrics().Timeouts >= 2 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, reader.Stop(context.Background()))
	assert.Empty(t, sink.errors())
}

func TestReader_FatalErrorStops(t *testing.T) {
	t.Parallel()

	link, mock := newMockLink(t)
	mock.QueueReceiveError(syscall.ENODEV)

	sink := &frameSink{}
	config := testConfig()
	config.Recovery.Enabled = false
	reader, err := NewReader(link, config, Callbacks{OnError: sink.onError})
	require.NoError(t, err)
	require.NoError(t, reader.Start(context.Background()))

	select {
	case <-reader.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("reader did not stop on a fatal error")
	}
	require.ErrorIs(t, reader.Err(), syscall.ENODEV)
	require.Len(t, sink.errors(), 1)
	assert.False(t, reader.Running())
}

func TestReader_TooManyErrors(t *testing.T) {
	t.Parallel()

	link, mock := newMockLink(t)
	for range 3 {
		mock.QueueReceiveError(tsilna.ErrTransportRead)
	}

	config := testConfig()
	config.MaxConsecutiveErrors = 3
	reader, err := NewReader(link, config, Callbacks{})
	require.NoError(t, err)
	require.NoError(t, reader.Start(context.Background()))

	select {
	case <-reader.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("reader did not stop")
	}
	require.ErrorIs(t, reader.Err(), ErrTooManyErrors)
	require.ErrorIs(t, reader.Err(), tsilna.ErrTransportRead)
}

func TestReader_RecoversLink(t *testing.T) {
	t.Parallel()

	link, mock := newMockLink(t)
	mock.QueueReceiveError(tsilna.NewTransportError("receive", "mock", tsilna.ErrDeviceNotFound, tsilna.ErrorTypePermanent))

	fresh, freshMock := newMockLink(t)
	queueFrames(t, freshMock, 3)

	attempts := 0
	sink := &frameSink{}
	reader, err := NewReader(link, testConfig(), Callbacks{OnFrame: sink.onFrame})
	require.NoError(t, err)
	reader.SetReopenFunc(func(context.Context) (*tsilna.Link, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("port busy")
		}
		return fresh, nil
	})
	require.NoError(t, reader.Start(context.Background()))

	assert.Eventually(t, func() bool { return sink.count() == 3 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, reader.Stop(context.Background()))

	assert.Equal(t, 2, attempts)
	assert.Equal(t, int64(1), reader.Metrics().Recoveries)
	assert.Same(t, fresh, reader.Link())
	assert.False(t, mock.IsConnected(), "old link is closed")
}

func TestReader_RecoveryGivesUp(t *testing.T) {
	t.Parallel()

	link, mock := newMockLink(t)
	mock.QueueReceiveError(syscall.EIO)

	config := testConfig()
	config.Recovery.MaxAttempts = 2
	reader, err := NewReader(link, config, Callbacks{})
	require.NoError(t, err)
	reader.SetReopenFunc(func(context.Context) (*tsilna.Link, error) {
		return nil, tsilna.ErrDeviceNotFound
	})
	require.NoError(t, reader.Start(context.Background()))

	select {
	case <-reader.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("reader did not give up")
	}
	require.ErrorIs(t, reader.Err(), syscall.EIO)
	require.ErrorIs(t, reader.Err(), tsilna.ErrDeviceNotFound)
}

func TestReader_Stall(t *testing.T) {
	t.Parallel()

	link, _ := newMockLink(t)
	config := testConfig()
	config.StallTimeout = 30 * time.Millisecond

	stalled := make(chan time.Duration, 4)
	reader, err := NewReader(link, config, Callbacks{OnStall: func(since time.Duration) { stalled <- since }})
	require.NoError(t, err)
	require.NoError(t, reader.Start(context.Background()))
	defer func() { _ = reader.Stop(context.Background()) }()

	select {
	case since := <-stalled:
		assert.GreaterOrEqual(t, since, 30*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("stall not reported")
	}

	// Reported once per quiet period.
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int64(1), reader.Metrics().Stalls)
}

func TestReader_StopWithParentContext(t *testing.T) {
	t.Parallel()

	link, _ := newMockLink(t)
	reader, err := NewReader(link, testConfig(), Callbacks{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, reader.Start(ctx))
	cancel()

	select {
	case <-reader.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("reader ignored parent cancellation")
	}
	assert.NoError(t, reader.Err())
}

func TestReader_CallbackErrorsCounted(t *testing.T) {
	t.Parallel()

	link, mock := newMockLink(t)
	queueFrames(t, mock, 4)

	reader, err := NewReader(link, testConfig(), Callbacks{
		OnFrame: func(*idtp.Frame) error { return errors.New("consumer full") },
	})
	require.NoError(t, err)
	require.NoError(t, reader.Start(context.Background()))

	assert.Eventually(t, func() bool { return reader.Metrics().CallbackErrors == 4 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, reader.Close(context.Background()))
	assert.False(t, mock.IsConnected())
}

func TestReader_StopBeforeStart(t *testing.T) {
	t.Parallel()

	link, _ := newMockLink(t)
	reader, err := NewReader(link, nil, Callbacks{})
	require.NoError(t, err)
	require.NoError(t, reader.Stop(context.Background()))
}
