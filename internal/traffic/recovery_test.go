package traffic

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func immediate(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}

func TestFibonacciDelays(t *testing.T) {
	got := FibonacciDelays(time.Minute, 13*time.Minute)
	want := []time.Duration{1 * time.Minute, 2 * time.Minute, 3 * time.Minute, 5 * time.Minute, 8 * time.Minute, 13 * time.Minute}
	if len(got) != len(want) {
		t.Fatalf("FibonacciDelays() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if d := FibonacciDelays(0, time.Minute); d != nil {
		t.Errorf("FibonacciDelays(0, 1m) = %v, want nil", d)
	}
	if d := FibonacciDelays(time.Minute, time.Second); d != nil {
		t.Errorf("FibonacciDelays(max < initial) = %v, want nil", d)
	}
}

func TestRecoveryRun_ClearsErrorsOnSuccess(t *testing.T) {
	tr, _ := newTestTracker()
	tr.RecordError()
	tr.RecordSuccess()
	calls := 0
	probe := func(ctx context.Context) error {
		calls++
		if calls < 2 {
			return errors.New("still down")
		}
		return nil
	}
	core, logs := observer.New(zap.InfoLevel)
	r := NewRecovery(tr, probe, time.Minute, 5*time.Minute, nil, zap.New(core))
	r.after = immediate

	if !r.Run(context.Background()) {
		t.Fatal("Run() = false, want true")
	}
	if calls != 2 {
		t.Errorf("probe calls = %d, want 2", calls)
	}
	if errs, _ := tr.ErrorRate(time.Minute); errs != 0 {
		t.Errorf("errors after recovery = %d, want 0", errs)
	}
	if logs.FilterMessage("recovery probe failed").Len() != 1 {
		t.Error("expected one probe failure log")
	}
	if logs.FilterMessage("upstream recovered").Len() != 1 {
		t.Error("expected recovery log")
	}
}

func TestRecoveryRun_Exhausted(t *testing.T) {
	tr, _ := newTestTracker()
	exhausted := false
	r := NewRecovery(tr, func(context.Context) error { return errors.New("down") },
		time.Minute, 3*time.Minute, func() { exhausted = true }, nil)
	r.after = immediate
	if r.Run(context.Background()) {
		t.Error("Run() = true, want false")
	}
	if !exhausted {
		t.Error("onExhausted not called")
	}
}

func TestRecoveryRun_ContextCancelled(t *testing.T) {
	tr, _ := newTestTracker()
	probed := false
	r := NewRecovery(tr, func(context.Context) error { probed = true; return nil },
		time.Hour, time.Hour, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if r.Run(ctx) {
		t.Error("Run() = true on cancelled context")
	}
	if probed {
		t.Error("probe called on cancelled context")
	}
}

func TestRecoveryListen_RunsOnNotify(t *testing.T) {
	tr, _ := newTestTracker()
	tr.RecordError()
	done := make(chan struct{})
	var once sync.Once
	r := NewRecovery(tr, func(context.Context) error { once.Do(func() { close(done) }); return nil },
		time.Minute, time.Minute, nil, nil)
	r.after = immediate

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Listen(ctx)
	r.Notify()
	r.Notify()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("probe not called after Notify")
	}
}
