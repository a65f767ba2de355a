package throttle

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"meraki-toolkit/internal/dashboard"
)

func TestCallRetriesRateLimitsUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	var observed []time.Duration
	r := New(nil, func(operation string, wait time.Duration) {
		if operation != "op" {
			t.Errorf("operation = %q", operation)
		}
		observed = append(observed, wait)
	})

	got, retries, err := Call(context.Background(), r, "op", func(context.Context) (string, error) {
		if calls.Add(1) <= 3 {
			return "", &dashboard.RateLimitedError{Operation: "op", RetryAfter: 5 * time.Millisecond}
		}
		return "done", nil
	})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != "done" || retries != 3 || calls.Load() != 4 {
		t.Errorf("got %q, retries %d, calls %d", got, retries, calls.Load())
	}
	if len(observed) != 3 || observed[0] != 5*time.Millisecond {
		t.Errorf("observed waits = %v", observed)
	}
}

func TestCallWaitsServerDelay(t *testing.T) {
	const delay = 40 * time.Millisecond
	first := true
	start := time.Now()

	_, retries, err := Call(context.Background(), New(nil, nil), "op", func(context.Context) (int, error) {
		if first {
			first = false
			return 0, &dashboard.RateLimitedError{RetryAfter: delay}
		}
		return 1, nil
	})
	if err != nil || retries != 1 {
		t.Fatalf("retries %d, err %v", retries, err)
	}
	if elapsed := time.Since(start); elapsed < delay {
		t.Errorf("returned after %v, expected at least %v", elapsed, delay)
	}
}

func TestCallReturnsOtherErrorsImmediately(t *testing.T) {
	apiErr := &dashboard.APIError{Operation: "op", StatusCode: 400}
	calls := 0

	_, retries, err := Call(context.Background(), New(nil, nil), "op", func(context.Context) (struct{}, error) {
		calls++
		return struct{}{}, apiErr
	})
	if !errors.Is(err, apiErr) {
		t.Fatalf("err = %v, want the API error", err)
	}
	if calls != 1 || retries != 0 {
		t.Errorf("calls %d retries %d", calls, retries)
	}
}

func TestCallStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	done := make(chan error, 1)
	go func() {
		_, _, err := Call(ctx, New(nil, nil), "op", func(context.Context) (int, error) {
			calls++
			return 0, &dashboard.RateLimitedError{RetryAfter: time.Hour}
		})
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Call did not return after cancel")
	}
}
