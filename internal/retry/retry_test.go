package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func fastConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2,
	}
}

func TestWithRetry_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), fastConfig(), zerolog.Nop(), func() error {
		calls++
		if calls < 3 {
			return errors.New("disk busy")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestWithRetry_GivesUp(t *testing.T) {
	boom := errors.New("read-only file system")
	calls := 0
	err := WithRetry(context.Background(), fastConfig(), zerolog.Nop(), func() error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected wrapped error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestWithRetry_Permanent(t *testing.T) {
	boom := errors.New("bad input")
	calls := 0
	err := WithRetry(context.Background(), fastConfig(), zerolog.Nop(), func() error {
		calls++
		return Permanent(boom)
	})
	if err != boom {
		t.Fatalf("Expected unwrapped permanent error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestWithRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastConfig()
	cfg.InitialBackoff = time.Hour
	cfg.MaxBackoff = time.Hour

	err := WithRetry(ctx, cfg, zerolog.Nop(), func() error {
		cancel()
		return errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestCalculateBackoff(t *testing.T) {
	cfg := Config{InitialBackoff: 100 * time.Millisecond, MaxBackoff: 300 * time.Millisecond, Multiplier: 2}

	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond}
	for attempt, w := range want {
		if got := calculateBackoff(attempt, cfg); got != w {
			t.Errorf("attempt %d: expected %v, got %v", attempt, w, got)
		}
	}
}
