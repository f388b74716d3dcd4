package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCoalescer_Do_ConcurrentCallsShareOneExecution(t *testing.T) {
	c := newCoalescer[string](5 * time.Second)
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})

	fn := func(ctx context.Context) (string, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return "seattle", nil
	}

	var wg sync.WaitGroup
	results := make([]string, 10)
	shared := make([]bool, 10)
	errs := make([]error, 10)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], shared[0], errs[0] = c.Do(context.Background(), "k", fn)
	}()
	<-started
	for i := 1; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			results[idx], shared[idx], errs[idx] = c.Do(context.Background(), "k", fn)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := range results {
		if errs[i] != nil {
			t.Errorf("call %d error = %v", i, errs[i])
		}
		if results[i] != "seattle" {
			t.Errorf("call %d result = %q, want seattle", i, results[i])
		}
	}
	if shared[0] {
		t.Error("first caller reported shared = true")
	}
	for i := 1; i < 10; i++ {
		if !shared[i] {
			t.Errorf("call %d shared = false, want true", i)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("fn calls = %d, want 1", got)
	}
	if c.InFlight() != 0 {
		t.Errorf("InFlight() = %d after completion, want 0", c.InFlight())
	}
}

func TestCoalescer_Do_ErrorPropagation(t *testing.T) {
	c := newCoalescer[int](time.Second)
	wantErr := errors.New("api failure")
	_, _, err := c.Do(context.Background(), "k", func(context.Context) (int, error) {
		return 0, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("Do() error = %v, want %v", err, wantErr)
	}
}

func TestCoalescer_Do_DifferentKeysRunIndependently(t *testing.T) {
	c := newCoalescer[string](time.Second)
	var calls atomic.Int32
	fn := func(context.Context) (string, error) {
		calls.Add(1)
		return "ok", nil
	}
	for _, k := range []string{"a", "b", "c"} {
		if _, _, err := c.Do(context.Background(), k, fn); err != nil {
			t.Fatalf("Do(%s) error = %v", k, err)
		}
	}
	if calls.Load() != 3 {
		t.Errorf("fn calls = %d, want 3", calls.Load())
	}
}

func TestCoalescer_Do_CallerCancelDoesNotCancelExecution(t *testing.T) {
	c := newCoalescer[string](time.Second)
	release := make(chan struct{})
	finished := make(chan error, 1)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_, _, err := c.Do(ctx, "k", func(runCtx context.Context) (string, error) {
			<-release
			finished <- runCtx.Err()
			return "done", nil
		})
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Do() error = %v, want context.Canceled", err)
		}
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)
	close(release)

	select {
	case err := <-finished:
		if err != nil {
			t.Errorf("execution context error = %v, want nil", err)
		}
	case <-time.After(time.Second):
		t.Fatal("execution did not finish")
	}
}

func TestCoalescer_Do_TimeoutBoundsExecution(t *testing.T) {
	c := newCoalescer[string](20 * time.Millisecond)
	_, _, err := c.Do(context.Background(), "k", func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Do() error = %v, want DeadlineExceeded", err)
	}
}
