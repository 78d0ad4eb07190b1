package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func transientErr() error { return NewTransientError(errors.New("boom"), 500) }

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = cb.Execute(ctx, func(context.Context) error { return transientErr() })
	}

	err := cb.Execute(ctx, func(context.Context) error { return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestCircuitBreaker_BusinessErrorsDoNotTrip(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Minute})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_ = cb.Execute(ctx, func(context.Context) error {
			return NewNotFoundError(errors.New("delisted"))
		})
	}

	if state := cb.State(); state != CircuitClosed {
		t.Errorf("expected closed circuit after not-found errors, got %s", state)
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Millisecond})
	ctx := context.Background()

	_ = cb.Execute(ctx, func(context.Context) error { return transientErr() })
	if cb.State() != CircuitOpen {
		t.Fatal("expected open circuit")
	}

	// Simulate elapsed reset timeout.
	cb.nowFunc = func() time.Time { return time.Now().Add(time.Second) }

	if err := cb.Execute(ctx, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("probe should be allowed: %v", err)
	}
	if cb.State() != CircuitClosed {
		t.Errorf("expected closed after successful probe, got %s", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Millisecond})
	ctx := context.Background()

	_ = cb.Execute(ctx, func(context.Context) error { return transientErr() })
	cb.nowFunc = func() time.Time { return time.Now().Add(time.Second) }

	_ = cb.Execute(ctx, func(context.Context) error { return transientErr() })

	cb.nowFunc = time.Now
	err := cb.Execute(ctx, func(context.Context) error { return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected reopened circuit, got %v", err)
	}
}

func TestExecuteVal_PassesValueThrough(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{})
	got, err := ExecuteVal(context.Background(), cb, func(context.Context) (int, error) {
		return 42, nil
	})
	if err != nil || got != 42 {
		t.Fatalf("expected 42, got %d err=%v", got, err)
	}
}
