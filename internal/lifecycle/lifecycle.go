// Package lifecycle holds process-wide readiness and shutdown state.
package lifecycle

import (
	"sync/atomic"
	"time"
)

var (
	shuttingDown atomic.Bool
	ready        atomic.Bool
	startedAt    atomic.Int64
)

func init() {
	startedAt.Store(time.Now().UnixNano())
}

// SetShuttingDown sets the shutdown flag. Health reports shutting-down while true.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown returns true if the process is draining.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}

// SetReady marks startup complete. Health reports starting until then.
func SetReady(v bool) {
	ready.Store(v)
}

// IsReady reports whether startup has completed.
func IsReady() bool {
	return ready.Load()
}

// MarkStarted resets the uptime origin to t.
func MarkStarted(t time.Time) {
	startedAt.Store(t.UnixNano())
}

// Uptime returns the time since the process started.
func Uptime() time.Duration {
	return time.Since(time.Unix(0, startedAt.Load()))
}
