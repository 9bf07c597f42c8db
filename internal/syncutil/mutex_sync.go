//go:build !deadlock

// Package syncutil provides the mutexes used by the link and transports.
// By default they are the standard sync types. Build with -tags=deadlock to
// route them through github.com/sasha-s/go-deadlock.
package syncutil

import (
	"sync"
	"time"
)

// DeadlockDetection reports whether lock tracking is compiled in.
const DeadlockDetection = false

// SetLockTimeout is a no-op without the deadlock tag.
func SetLockTimeout(time.Duration) {}

// Mutex is a sync.Mutex.
//
//nolint:gocritic // embedding exposes Lock/Unlock
type Mutex struct {
	sync.Mutex
}

// RWMutex is a sync.RWMutex.
//
//nolint:gocritic // embedding exposes the RWMutex methods
type RWMutex struct {
	sync.RWMutex
}
