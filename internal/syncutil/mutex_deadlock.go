//go:build deadlock

// Package syncutil provides the mutexes used by the link and transports.
// This file is compiled with -tags=deadlock and routes every lock through
// github.com/sasha-s/go-deadlock.
package syncutil

import (
	"time"

	deadlock "github.com/sasha-s/go-deadlock"
)

// DeadlockDetection reports whether lock tracking is compiled in.
const DeadlockDetection = true

// A sample stream runs at hundreds of hertz; a lock held this long is a bug.
const defaultLockTimeout = 2 * time.Second

func init() {
	deadlock.Opts.DeadlockTimeout = defaultLockTimeout
}

// SetLockTimeout changes how long a lock may be waited on before the
// detector reports it.
func SetLockTimeout(d time.Duration) {
	deadlock.Opts.DeadlockTimeout = d
}

// Mutex is a deadlock.Mutex.
type Mutex struct {
	deadlock.Mutex
}

// RWMutex is a deadlock.RWMutex.
type RWMutex struct {
	deadlock.RWMutex
}
