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
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/tsilna-nav/tsilna-go/internal/syncutil"
)

// debugEnabled gates console output. The session log, when open, receives
// every line regardless.
var debugEnabled atomic.Bool

// logMu guards the session log writer. Transports log from several goroutines.
var logMu syncutil.Mutex

func init() {
	if os.Getenv("TSILNA_DEBUG") != "" || os.Getenv("DEBUG") != "" {
		debugEnabled.Store(true)
	}
}

// Debugf prints debug information.
// Always writes to the session log (if initialized) with a timestamp.
// Only prints to the console when debug mode is enabled.
func Debugf(format string, args ...any) {
	emit(fmt.Sprintf(format, args...))
}

// Debugln is Debugf with fmt.Sprintln formatting.
func Debugln(args ...any) {
	msg := fmt.Sprintln(args...)
	emit(msg[:len(msg)-1])
}

func emit(message string) {
	logMu.Lock()
	if sessionLogWriter != nil {
		writeLogLine(sessionLogWriter, time.Now(), message)
	}
	logMu.Unlock()

	if debugEnabled.Load() {
		_, _ = fmt.Fprintf(os.Stdout, "DEBUG: %s\n", message)
	}
}

func writeLogLine(w io.Writer, at time.Time, message string) {
	_, _ = fmt.Fprintf(w, "%s DEBUG: %s\n", at.Format("15:04:05.000"), message)
}

// SetDebugEnabled turns console debug output on or off.
func SetDebugEnabled(enabled bool) {
	debugEnabled.Store(enabled)
}

// DebugEnabled reports whether console debug output is on.
func DebugEnabled() bool {
	return debugEnabled.Load()
}
