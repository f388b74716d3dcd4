package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	var transitions []string
	cb := New(Config{
		FailureThreshold: 3,
		Timeout:          time.Hour,
		Component:        "test",
		OnStateChange: func(from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := cb.Call(ctx, func() error { return errBoom }); !errors.Is(err, errBoom) {
			t.Fatalf("Call() #%d error = %v, want errBoom", i, err)
		}
	}
	if cb.State() != StateOpen {
		t.Fatalf("State() = %v, want open", cb.State())
	}

	called := false
	err := cb.Call(ctx, func() error { called = true; return nil })
	if !errors.Is(err, ErrOpen) {
		t.Errorf("Call() while open error = %v, want ErrOpen", err)
	}
	if called {
		t.Error("fn should not run while circuit is open")
	}
	if len(transitions) != 1 || transitions[0] != "closed->open" {
		t.Errorf("transitions = %v, want [closed->open]", transitions)
	}
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	cb := New(Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: 10 * time.Millisecond})
	ctx := context.Background()

	_ = cb.Call(ctx, func() error { return errBoom })
	if cb.State() != StateOpen {
		t.Fatalf("State() = %v, want open", cb.State())
	}
	time.Sleep(20 * time.Millisecond)
	if cb.State() != StateHalfOpen {
		t.Fatalf("State() after timeout = %v, want half_open", cb.State())
	}
	if err := cb.Call(ctx, func() error { return nil }); err != nil {
		t.Fatalf("probe Call() error = %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("State() after probe = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_IgnoredErrorsDoNotTrip(t *testing.T) {
	errNotFound := errors.New("not found")
	cb := New(Config{
		FailureThreshold: 1,
		IsIgnored:        func(err error) bool { return errors.Is(err, errNotFound) },
	})
	for i := 0; i < 5; i++ {
		if err := cb.Call(context.Background(), func() error { return errNotFound }); !errors.Is(err, errNotFound) {
			t.Fatalf("Call() error = %v, want errNotFound", err)
		}
	}
	if cb.State() != StateClosed {
		t.Errorf("State() = %v, want closed", cb.State())
	}
}

func TestCircuitBreaker_CancelledContext(t *testing.T) {
	cb := New(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := cb.Call(ctx, func() error { t.Fatal("fn called"); return nil }); !errors.Is(err, context.Canceled) {
		t.Errorf("Call() error = %v, want context.Canceled", err)
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{StateClosed: "closed", StateOpen: "open", StateHalfOpen: "half_open", State(9): "unknown"}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
