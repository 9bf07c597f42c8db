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

// Package frame manages the scratch buffers used by transports and the link
// when moving IDTP frames.
package frame

import (
	"sync"

	"github.com/tsilna-nav/tsilna-go/pkg/idtp"
)

// Size thresholds for buffer categories
const (
	SmallBufferSize = 64                // bus status and FIFO count reads
	FrameBufferSize = idtp.MaxFrameSize // one complete frame
	ReadBufferSize  = 4096              // bulk UART and UDP reads
)

// BufferPool manages reusable byte slices in three size classes.
type BufferPool struct {
	smallPool sync.Pool
	framePool sync.Pool
	readPool  sync.Pool
}

var defaultPool = NewBufferPool()

func newPool(size int) sync.Pool {
	return sync.Pool{
		New: func() any {
			buf := make([]byte, size)
			return &buf
		},
	}
}

// NewBufferPool creates an empty pool.
func NewBufferPool() *BufferPool {
	return &BufferPool{
		smallPool: newPool(SmallBufferSize),
		framePool: newPool(FrameBufferSize),
		readPool:  newPool(ReadBufferSize),
	}
}

// GetBuffer returns a buffer of exactly size bytes. Return it with PutBuffer.
// Sizes above ReadBufferSize are allocated directly.
func (p *BufferPool) GetBuffer(size int) []byte {
	var pool *sync.Pool
	switch {
	case size < 0:
		return nil
	case size <= SmallBufferSize:
		pool = &p.smallPool
	case size <= FrameBufferSize:
		pool = &p.framePool
	case size <= ReadBufferSize:
		pool = &p.readPool
	default:
		return make([]byte, size)
	}

	bufPtr, ok := pool.Get().(*[]byte)
	if !ok {
		return make([]byte, size)
	}
	return (*bufPtr)[:size]
}

// PutBuffer returns a buffer to the pool. The buffer is zeroed and must not
// be used afterwards.
func (p *BufferPool) PutBuffer(buf []byte) {
	if buf == nil {
		return
	}

	full := buf[:cap(buf)]
	clear(full)

	switch cap(buf) {
	case SmallBufferSize:
		p.smallPool.Put(&full)
	case FrameBufferSize:
		p.framePool.Put(&full)
	case ReadBufferSize:
		p.readPool.Put(&full)
	default:
		// Directly allocated, let GC handle it
	}
}

// GetBuffer acquires a buffer from the default pool
func GetBuffer(size int) []byte {
	return defaultPool.GetBuffer(size)
}

// PutBuffer returns a buffer to the default pool
func PutBuffer(buf []byte) {
	defaultPool.PutBuffer(buf)
}

// GetReadBuffer gets a bulk read buffer from the default pool
func GetReadBuffer() []byte {
	return defaultPool.GetBuffer(ReadBufferSize)
}
