package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type assertErr string

func (e assertErr) Error() string { return string(e) }

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Class
	}{
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), ClassTimeout},
		{"canceled", context.Canceled, ClassCanceled},
		{"net timeout", timeoutErr{}, ClassTimeout},
		{"typed 429", WithStatus(429, assertErr("slow down")), ClassRateLimit},
		{"typed 503", WithStatus(503, assertErr("unavailable")), ClassServer},
		{"typed 400", WithStatus(400, assertErr("bad request")), ClassClient},
		{"message status", assertErr("POST /v1/messages: status code: 529"), ClassServer},
		{"message 401", assertErr("request failed status=401"), ClassClient},
		{"rate limit text", assertErr("Rate limit reached"), ClassRateLimit},
		{"bare number is not a status", assertErr("processed 404 records"), ClassUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.err); got != tc.want {
				t.Fatalf("Classify(%v) = %s, want %s", tc.err, got, tc.want)
			}
		})
	}
}

func TestClassRetryable(t *testing.T) {
	cases := map[Class]bool{
		ClassTimeout:   true,
		ClassRateLimit: true,
		ClassServer:    true,
		ClassUnknown:   true,
		ClassClient:    false,
		ClassCanceled:  false,
	}
	for c, want := range cases {
		if got := c.Retryable(); got != want {
			t.Errorf("%s.Retryable() = %v, want %v", c, got, want)
		}
	}
}

func TestPolicyDelay(t *testing.T) {
	p := DefaultPolicy
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second}
	for i, w := range want {
		if got := p.delay(i + 1); got != w {
			t.Fatalf("delay(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestDoRetriesTransportFailures(t *testing.T) {
	var slept []time.Duration
	r := New(DefaultPolicy, nil)
	r.Sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	calls := 0
	err := r.Do(context.Background(), "embed", func(context.Context) error {
		calls++
		if calls < 3 {
			return WithStatus(503, assertErr("overloaded"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
	if len(slept) != 2 || slept[0] != time.Second || slept[1] != 2*time.Second {
		t.Fatalf("slept = %v", slept)
	}
}

func TestDoStopsOnClientError(t *testing.T) {
	r := New(DefaultPolicy, nil)
	r.Sleep = func(context.Context, time.Duration) error { return nil }
	calls := 0
	want := WithStatus(401, assertErr("bad key"))
	err := r.Do(context.Background(), "classify", func(context.Context) error {
		calls++
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("err = %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestDoGivesUpAfterMaxAttempts(t *testing.T) {
	r := New(Policy{MaxAttempts: 2}, nil)
	calls := 0
	err := r.Do(context.Background(), "score", func(context.Context) error {
		calls++
		return context.DeadlineExceeded
	})
	if !errors.Is(err, context.DeadlineExceeded) || calls != 2 {
		t.Fatalf("err = %v calls = %d", err, calls)
	}
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}
