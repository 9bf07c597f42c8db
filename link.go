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
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/tsilna-nav/tsilna-go/internal/frame"
	"github.com/tsilna-nav/tsilna-go/internal/syncutil"
	"github.com/tsilna-nav/tsilna-go/pkg/idtp"
)

// LinkStats counts traffic over a Link.
type LinkStats struct {
	Sent           uint64 // frames handed to the transport
	SendErrors     uint64 // sends that failed after retries
	Received       uint64 // valid frames returned by Receive
	Dropped        uint64 // frames rejected at any integrity level
	HeaderErrors   uint64
	ChecksumErrors uint64
	CRCErrors      uint64
	DroppedBytes   uint64 // noise skipped while resynchronizing
	LostFrames     uint64 // gaps in the sender's sequence numbers
}

// LinkOption represents a functional option for NewLink
type LinkOption func(*linkConfig) error

type linkConfig struct {
	retry       *RetryConfig
	readTimeout time.Duration
	readSize    int
	deviceID    uint16
	mode        idtp.Mode
}

// WithDeviceID sets the device id stamped on sent frames.
func WithDeviceID(id uint16) LinkOption {
	return func(c *linkConfig) error {
		c.deviceID = id
		return nil
	}
}

// WithMode sets the mode of sent frames. Safety mode adds the CRC-16 trailer.
func WithMode(mode idtp.Mode) LinkOption {
	return func(c *linkConfig) error {
		if !mode.Valid() {
			return fmt.Errorf("%w: mode %d", ErrInvalidParameter, mode)
		}
		c.mode = mode
		return nil
	}
}

// WithRetryConfig sets the retry policy for sends.
func WithRetryConfig(config *RetryConfig) LinkOption {
	return func(c *linkConfig) error {
		if config == nil {
			return fmt.Errorf("%w: nil retry config", ErrInvalidParameter)
		}
		if err := config.Validate(); err != nil {
			return err
		}
		c.retry = config
		return nil
	}
}

// WithReadBufferSize sets how many bytes one transport read may return.
func WithReadBufferSize(n int) LinkOption {
	return func(c *linkConfig) error {
		if n < idtp.HeaderSize || n > MaxReadBufferSize {
			return fmt.Errorf("%w: read buffer size %d outside [%d, %d]",
				ErrInvalidParameter, n, idtp.HeaderSize, MaxReadBufferSize)
		}
		c.readSize = n
		return nil
	}
}

// WithReadTimeout sets the transport read timeout applied by NewLink.
func WithReadTimeout(d time.Duration) LinkOption {
	return func(c *linkConfig) error {
		if d <= 0 {
			return fmt.Errorf("%w: read timeout %v", ErrInvalidParameter, d)
		}
		c.readTimeout = d
		return nil
	}
}

// Link carries IDTP frames over a Transport. Sends and receives may run
// concurrently with each other; each direction is serialized on its own.
type Link struct {
	transport Transport
	retry     *RetryConfig
	encoder   *idtp.Encoder
	decoder   *idtp.Decoder
	tracker   idtp.SequenceTracker
	stats     LinkStats
	readSize  int
	sendMu    syncutil.Mutex
	recvMu    syncutil.Mutex
	statsMu   syncutil.Mutex
	closed    atomic.Bool
}

// NewLink wraps t and applies the read timeout.
func NewLink(t Transport, opts ...LinkOption) (*Link, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil transport", ErrInvalidParameter)
	}

	config := &linkConfig{
		mode:        idtp.ModeNormal,
		retry:       DefaultRetryConfig(),
		readSize:    DefaultReadBufferSize,
		readTimeout: DefaultReadTimeout,
	}
	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, fmt.Errorf("invalid link option: %w", err)
		}
	}

	if err := t.SetTimeout(config.readTimeout); err != nil {
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}

	return &Link{
		transport: t,
		retry:     config.retry,
		encoder:   idtp.NewEncoder(config.deviceID, config.mode),
		decoder:   idtp.NewDecoder(),
		readSize:  config.readSize,
	}, nil
}

// Send frames payload with the next sequence number and sends it, retrying
// transient transport failures. A frame that cannot be sent still consumes
// its sequence number, so the receiver sees the loss as a gap.
func (l *Link) Send(ctx context.Context, timestamp uint32, payload idtp.Payload) error {
	if l.closed.Load() {
		return ErrLinkClosed
	}

	l.sendMu.Lock()
	defer l.sendMu.Unlock()

	data, err := l.encoder.Encode(timestamp, payload)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}

	err = RetryWithConfig(ctx, l.retry, func(ctx context.Context) error {
		return l.transport.Send(ctx, data)
	})

	l.statsMu.Lock()
	if err != nil {
		l.stats.SendErrors++
	} else {
		l.stats.Sent++
	}
	l.statsMu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to send frame %d: %w", l.encoder.NextSequence()-1, err)
	}
	return nil
}

// Receive returns the next valid frame. Corrupted frames are counted, logged
// and skipped. Transport errors, including read timeouts, are returned as is;
// bytes already read stay buffered for the next call.
func (l *Link) Receive(ctx context.Context) (*idtp.Frame, error) {
	l.recvMu.Lock()
	defer l.recvMu.Unlock()

	for {
		if l.closed.Load() {
			return nil, ErrLinkClosed
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		f, err := l.decoder.Next()
		switch {
		case err == nil:
			lost := l.tracker.Observe(f.Header.Sequence)
			if lost > 0 {
				Debugf("link: %d frame(s) lost before sequence %d", lost, f.Header.Sequence)
			}
			l.recordDecode(lost)
			return f, nil
		case errors.Is(err, idtp.ErrIncomplete):
			if err := l.fill(ctx); err != nil {
				l.recordDecode(0)
				return nil, err
			}
		default:
			Debugf("link: dropped frame: %v", err)
			l.recordDecode(0)
		}
	}
}

// fill reads one chunk from the transport into the decoder.
func (l *Link) fill(ctx context.Context) error {
	buf := frame.GetBuffer(l.readSize)
	defer frame.PutBuffer(buf)

	n, err := l.transport.Receive(ctx, buf)
	if n > 0 {
		_, _ = l.decoder.Write(buf[:n])
	}
	if err != nil {
		return err
	}
	return nil
}

// recordDecode folds the decoder counters into the link stats. Must hold
// recvMu.
func (l *Link) recordDecode(lost uint32) {
	ds := l.decoder.Stats()

	l.statsMu.Lock()
	l.stats.Received = ds.Frames
	l.stats.HeaderErrors = ds.HeaderErrors
	l.stats.ChecksumErrors = ds.ChecksumErrors
	l.stats.CRCErrors = ds.CRCErrors
	l.stats.Dropped = ds.HeaderErrors + ds.ChecksumErrors + ds.CRCErrors
	l.stats.DroppedBytes = ds.DroppedBytes
	l.stats.LostFrames += uint64(lost)
	l.statsMu.Unlock()
}

// Stats returns a snapshot of the link counters.
func (l *Link) Stats() LinkStats {
	l.statsMu.Lock()
	defer l.statsMu.Unlock()
	return l.stats
}

// Transport returns the underlying transport.
func (l *Link) Transport() Transport {
	return l.transport
}

// Mode returns the mode sent frames use.
func (l *Link) Mode() idtp.Mode {
	return l.encoder.Mode()
}

// Close closes the link and its transport. Blocked calls return once the
// transport gives up.
func (l *Link) Close() error {
	if l.closed.Swap(true) {
		return nil
	}
	if err := l.transport.Close(); err != nil {
		return fmt.Errorf("failed to close transport: %w", err)
	}
	return nil
}
