package traffic

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ProbeFunc checks whether the upstream has recovered. nil means recovered.
type ProbeFunc func(ctx context.Context) error

// Recovery probes the upstream on a Fibonacci schedule after the service turns
// degraded, and clears the tracker's errors once a probe succeeds.
type Recovery struct {
	tracker      *Tracker
	probe        ProbeFunc
	delays       []time.Duration
	probeTimeout time.Duration
	onExhausted  func()
	logger       *zap.Logger

	notify  chan struct{}
	running atomic.Bool
	after   func(time.Duration) <-chan time.Time
}

// NewRecovery builds a Recovery with delays initial, 2*initial, 3*initial,
// 5*initial... up to max. onExhausted may be nil.
func NewRecovery(tracker *Tracker, probe ProbeFunc, initial, max time.Duration, onExhausted func(), logger *zap.Logger) *Recovery {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recovery{
		tracker:      tracker,
		probe:        probe,
		delays:       FibonacciDelays(initial, max),
		probeTimeout: 10 * time.Second,
		onExhausted:  onExhausted,
		logger:       logger,
		notify:       make(chan struct{}, 1),
		after:        time.After,
	}
}

// Notify requests a recovery run. Non-blocking; runs do not overlap.
func (r *Recovery) Notify() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Running reports whether a recovery run is in progress.
func (r *Recovery) Running() bool { return r.running.Load() }

// Listen serves Notify calls until ctx is done.
func (r *Recovery) Listen(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.notify:
			if r.running.Swap(true) {
				continue
			}
			go func() {
				defer r.running.Store(false)
				r.Run(ctx)
			}()
		}
	}
}

// Run waits out each delay and probes. It returns true once a probe succeeds.
func (r *Recovery) Run(ctx context.Context) bool {
	for i, d := range r.delays {
		select {
		case <-ctx.Done():
			return false
		case <-r.after(d):
		}
		probeCtx, cancel := context.WithTimeout(ctx, r.probeTimeout)
		err := r.probe(probeCtx)
		cancel()
		if err == nil {
			r.tracker.ClearErrors()
			r.logger.Info("upstream recovered", zap.Int("attempt", i+1))
			return true
		}
		r.logger.Warn("recovery probe failed",
			zap.Int("attempt", i+1),
			zap.Duration("delay", d),
			zap.Error(err),
		)
	}
	if len(r.delays) > 0 && r.onExhausted != nil {
		r.onExhausted()
	}
	return false
}

// FibonacciDelays returns initial scaled by 1, 2, 3, 5, 8... while not above max.
func FibonacciDelays(initial, max time.Duration) []time.Duration {
	if initial <= 0 || max < initial {
		return nil
	}
	var out []time.Duration
	for a, b := int64(1), int64(2); ; a, b = b, a+b {
		d := time.Duration(a) * initial
		if d > max {
			return out
		}
		out = append(out, d)
	}
}
