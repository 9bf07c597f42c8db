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

// Package stream runs a background reader that pulls frames from a link and
// hands them to callbacks.
package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tsilna-nav/tsilna-go"
	"github.com/tsilna-nav/tsilna-go/internal/syncutil"
	"github.com/tsilna-nav/tsilna-go/pkg/idtp"
)

// Callbacks defines callback functions for stream events. All of them run on
// the reader goroutine.
type Callbacks struct {
	// OnFrame receives every valid frame. An error is counted, not fatal.
	OnFrame func(f *idtp.Frame) error
	// OnError receives read errors other than timeouts, and the error that
	// stopped the reader.
	OnError func(err error)
	// OnStall fires once when no frame arrived for Config.StallTimeout.
	OnStall func(since time.Duration)
}

// Metrics tracks operational metrics for a Reader
type Metrics struct {
	Frames         int64 // valid frames delivered to OnFrame
	Timeouts       int64 // transport reads that returned nothing
	ReadErrors     int64 // retryable read errors other than timeouts
	CallbackErrors int64 // errors returned by OnFrame
	Stalls         int64
	Recoveries     int64 // successful link reopens
	LastFrame      time.Time
	Link           tsilna.LinkStats
}

// Reader pulls frames from a link on its own goroutine.
type Reader struct {
	link      *tsilna.Link
	config    *Config
	callbacks Callbacks
	recoverer *recoverer
	cancel    context.CancelFunc
	done      chan struct{}
	err       error
	wg        sync.WaitGroup
	mu        syncutil.Mutex
	running   atomic.Bool

	frames         atomic.Int64
	timeouts       atomic.Int64
	readErrors     atomic.Int64
	callbackErrors atomic.Int64
	stalls         atomic.Int64
	recoveries     atomic.Int64
	lastFrame      atomic.Int64 // unix nanoseconds
}

// NewReader creates a reader over link. A nil config uses DefaultConfig.
func NewReader(link *tsilna.Link, config *Config, callbacks Callbacks) (*Reader, error) {
	if link == nil {
		return nil, fmt.Errorf("%w: nil link", tsilna.ErrInvalidParameter)
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	done := make(chan struct{})
	close(done)
	return &Reader{
		link:      link,
		config:    config,
		callbacks: callbacks,
		done:      done,
	}, nil
}

// SetReopenFunc enables reconnection after fatal link errors when
// Config.Recovery is enabled. Call it before Start.
func (r *Reader) SetReopenFunc(reopen ReopenFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recoverer = newRecoverer(reopen, r.config.Recovery)
}

// Start launches the read loop. Starting a running reader does nothing.
func (r *Reader) Start(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.done = make(chan struct{})
	r.err = nil
	done := r.done
	r.mu.Unlock()

	r.lastFrame.Store(time.Now().UnixNano())
	r.wg.Add(1)
	go r.readLoop(loopCtx, done)
	return nil
}

// readLoop runs until the context ends or a fatal error.
func (r *Reader) readLoop(ctx context.Context, done chan struct{}) {
	defer func() {
		r.running.Store(false)
		close(done)
		r.wg.Done()
	}()

	consecutive := 0
	stalled := false

	for ctx.Err() == nil {
		link := r.Link()
		f, err := link.Receive(ctx)
		if err == nil {
			consecutive = 0
			stalled = false
			r.deliver(f)
			continue
		}
		if ctx.Err() != nil {
			return
		}

		if tsilna.IsFatal(err) {
			if next, ok := r.tryRecover(ctx, link, err); ok {
				r.setLink(next)
				consecutive = 0
				continue
			}
			return
		}

		if tsilna.IsTimeout(err) {
			r.timeouts.Add(1)
		} else {
			r.readErrors.Add(1)
			consecutive++
			tsilna.Debugf("stream: read error: %v", err)
			r.notifyError(err)
			if limit := r.config.MaxConsecutiveErrors; limit > 0 && consecutive >= limit {
				r.finish(fmt.Errorf("%w: %w", ErrTooManyErrors, err))
				return
			}
		}

		if !stalled {
			stalled = r.checkStall()
		}
	}
}

func (r *Reader) deliver(f *idtp.Frame) {
	r.frames.Add(1)
	r.lastFrame.Store(time.Now().UnixNano())

	if r.callbacks.OnFrame == nil {
		return
	}
	if err := r.callbacks.OnFrame(f); err != nil {
		r.callbackErrors.Add(1)
		tsilna.Debugf("stream: frame callback failed for sequence %d: %v", f.Header.Sequence, err)
	}
}

// checkStall reports whether the stall callback fired.
func (r *Reader) checkStall() bool {
	if r.config.StallTimeout <= 0 {
		return false
	}
	since := time.Since(time.Unix(0, r.lastFrame.Load()))
	if since < r.config.StallTimeout {
		return false
	}
	r.stalls.Add(1)
	tsilna.Debugf("stream: no frames for %v", since)
	if r.callbacks.OnStall != nil {
		r.callbacks.OnStall(since)
	}
	return true
}

// tryRecover reopens the link after a fatal error. On failure the reader is
// finished with the error.
func (r *Reader) tryRecover(ctx context.Context, link *tsilna.Link, cause error) (*tsilna.Link, bool) {
	r.mu.Lock()
	rec := r.recoverer
	r.mu.Unlock()

	if rec == nil {
		r.finish(cause)
		return nil, false
	}

	tsilna.Debugf("stream: link failed, recovering: %v", cause)
	next, err := rec.recover(ctx, link)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false
		}
		r.finish(errors.Join(cause, err))
		return nil, false
	}
	r.recoveries.Add(1)
	return next, true
}

func (r *Reader) notifyError(err error) {
	if r.callbacks.OnError != nil {
		r.callbacks.OnError(err)
	}
}

func (r *Reader) finish(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
	r.notifyError(err)
}

func (r *Reader) setLink(link *tsilna.Link) {
	r.mu.Lock()
	r.link = link
	r.mu.Unlock()
}

// Link returns the current link. It changes after a recovery.
func (r *Reader) Link() *tsilna.Link {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.link
}

// Stop stops the read loop and waits for it to exit or for ctx to end. The
// link stays open.
func (r *Reader) Stop(ctx context.Context) error {
	r.mu.Lock()
	cancel := r.cancel
	done := r.done
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	r.wg.Wait()
	return nil
}

// Close stops the reader and closes the current link.
func (r *Reader) Close(ctx context.Context) error {
	if err := r.Stop(ctx); err != nil {
		return err
	}
	if err := r.Link().Close(); err != nil {
		return fmt.Errorf("failed to close link: %w", err)
	}
	return nil
}

// Done is closed when the read loop exits.
func (r *Reader) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done
}

// Err returns the error that stopped the reader, or nil after a clean stop.
func (r *Reader) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Running reports whether the read loop is active.
func (r *Reader) Running() bool {
	return r.running.Load()
}

// Metrics returns current operational metrics
func (r *Reader) Metrics() Metrics {
	return Metrics{
		Frames:         r.frames.Load(),
		Timeouts:       r.timeouts.Load(),
		ReadErrors:     r.readErrors.Load(),
		CallbackErrors: r.callbackErrors.Load(),
		Stalls:         r.stalls.Load(),
		Recoveries:     r.recoveries.Load(),
		LastFrame:      time.Unix(0, r.lastFrame.Load()),
		Link:           r.Link().Stats(),
	}
}
