package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig(maxRetries int) Config {
	return Config{
		MaxRetries:  maxRetries,
		InitialWait: time.Millisecond,
		MaxWait:     2 * time.Millisecond,
		Multiplier:  2.0,
		Jitter:      0.25,
	}
}

func TestDo_SucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(3), func(int) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do = %v, want nil", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDo_ReturnsLastError(t *testing.T) {
	want := errors.New("still down")
	calls := 0
	err := Do(context.Background(), fastConfig(2), func(int) error {
		calls++
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("Do = %v, want %v", err, want)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDo_StopsOnPermanentError(t *testing.T) {
	permanent := errors.New("bad document")
	cfg := fastConfig(5)
	cfg.Retryable = func(err error) bool { return !errors.Is(err, permanent) }

	calls := 0
	err := Do(context.Background(), cfg, func(int) error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) || calls != 1 {
		t.Fatalf("Do = %v after %d calls, want %v after 1", err, calls, permanent)
	}
}

func TestDo_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastConfig(5)
	cfg.InitialWait = time.Hour
	cfg.MaxWait = time.Hour

	err := Do(ctx, cfg, func(int) error {
		cancel()
		return errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Do = %v, want context.Canceled", err)
	}
}

func TestDo_PermanentAndOnRetry(t *testing.T) {
	var retried []int
	cfg := fastConfig(5)
	cfg.OnRetry = func(attempt int, _ error, _ time.Duration) { retried = append(retried, attempt) }

	bad := errors.New("rejected")
	err := Do(context.Background(), cfg, func(attempt int) error {
		if attempt == 3 {
			return Permanent(bad)
		}
		return errors.New("transient")
	})
	if !errors.Is(err, bad) || !IsPermanent(err) {
		t.Fatalf("Do = %v, want permanent %v", err, bad)
	}
	if len(retried) != 2 || retried[0] != 1 || retried[1] != 2 {
		t.Fatalf("OnRetry attempts = %v, want [1 2]", retried)
	}
	if Permanent(nil) != nil {
		t.Fatal("Permanent(nil) != nil")
	}
}

func TestBackoff(t *testing.T) {
	cfg := Config{InitialWait: time.Second, MaxWait: 10 * time.Second, Multiplier: 2, Jitter: 0.25}
	for attempt := 1; attempt < 9; attempt++ {
		got := cfg.backoff(attempt)
		if got < cfg.InitialWait || got > cfg.MaxWait+cfg.MaxWait/4 {
			t.Errorf("backoff(%d) = %v, out of [%v, %v]", attempt, got, cfg.InitialWait, cfg.MaxWait+cfg.MaxWait/4)
		}
	}

	cfg.Jitter = 0
	if got := cfg.backoff(3); got != 4*time.Second {
		t.Errorf("backoff(3) without jitter = %v, want 4s", got)
	}
}
