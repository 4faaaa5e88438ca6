package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"syscall"
	"testing"
	"time"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"net timeout", timeoutErr{}, true},
		{"conn refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), true},
		{"conn reset", syscall.ECONNRESET, true},
		{"unexpected eof", io.ErrUnexpectedEOF, true},
		{"429", &StatusError{Code: 429}, true},
		{"500", &StatusError{Code: 500}, true},
		{"503 wrapped", fmt.Errorf("wrap: %w", &StatusError{Code: 503}), true},
		{"400", &StatusError{Code: 400}, false},
		{"404", &StatusError{Code: 404}, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestBackoff(t *testing.T) {
	p := RetryPolicy{InitialBackoff: time.Second, MaxBackoff: 5 * time.Second, Multiplier: 2}
	want := []time.Duration{0, time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := p.Backoff(i + 1); got != w {
			t.Errorf("Backoff(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestDo_RetriesThenSucceeds(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3}
	calls := 0
	attempts, err := p.Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return &StatusError{Code: 503}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 || calls != 3 {
		t.Errorf("attempts = %d, calls = %d, want 3/3", attempts, calls)
	}
}

func TestDo_Exhausted(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 2}
	attempts, err := p.Do(context.Background(), func() error { return timeoutErr{} })
	var exhausted *exhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected exhaustedError, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5}
	calls := 0
	_, err := p.Do(context.Background(), func() error {
		calls++
		return &StatusError{Code: 400}
	})
	if err == nil || calls != 1 {
		t.Fatalf("calls = %d, err = %v", calls, err)
	}
}

func TestDo_CancelDuringBackoff(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := p.Do(ctx, func() error {
		calls++
		cancel()
		return timeoutErr{}
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
