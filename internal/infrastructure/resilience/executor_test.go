package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
)

var errFlaky = errors.New("flaky upstream")

func fastConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
	}
}

func retryFlaky(err error) ErrorClassification {
	return ErrorClassification{Retryable: errors.Is(err, errFlaky), RecordFailure: true}
}

func TestExecuteRetryBudget(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		failWith  error
		wantCalls int
		wantErr   error
	}{
		{name: "recovers on third attempt", failures: 2, failWith: errFlaky, wantCalls: 3},
		{name: "gives up after max attempts", failures: 5, failWith: errFlaky, wantCalls: 3, wantErr: errFlaky},
		{name: "permanent error is not retried", failures: 5, failWith: errors.New("bad request"), wantCalls: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := NewExecutor(fastConfig())
			calls := 0
			err := exec.Execute(context.Background(), "embed", func(context.Context) error {
				calls++
				if calls <= tt.failures {
					return tt.failWith
				}
				return nil
			}, retryFlaky)

			if calls != tt.wantCalls {
				t.Fatalf("calls = %d, want %d", calls, tt.wantCalls)
			}
			if tt.failures < tt.wantCalls && err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestExecuteStopsRetryingWhenContextEnds(t *testing.T) {
	cfg := fastConfig()
	cfg.RetryInitialBackoff = time.Hour
	cfg.RetryMaxBackoff = time.Hour
	exec := NewExecutor(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := exec.Execute(ctx, "generate", func(context.Context) error {
		calls++
		cancel()
		return errFlaky
	}, retryFlaky)
	if !errors.Is(err, errFlaky) || calls != 1 {
		t.Fatalf("expected one call returning the last error, got calls=%d err=%v", calls, err)
	}
}

func TestBreakerOpensAndReportsState(t *testing.T) {
	var mu sync.Mutex
	var states []string

	cfg := fastConfig()
	cfg.RetryMaxAttempts = 1
	cfg.BreakerEnabled = true
	cfg.BreakerMinRequests = 2
	cfg.BreakerFailureRatio = 0.5
	cfg.BreakerOpenTimeout = time.Minute
	cfg.OnStateChange = func(operation, state string) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, operation+":"+state)
	}
	exec := NewExecutor(cfg)

	for range 2 {
		_ = exec.Execute(context.Background(), "ollama.embed", func(context.Context) error {
			return errFlaky
		}, nil)
	}

	err := exec.Execute(context.Background(), "ollama.embed", func(context.Context) error {
		t.Fatalf("open breaker must not call through")
		return nil
	}, nil)
	if !errors.Is(err, gobreaker.ErrOpenState) || !IsCircuitOpen(err) {
		t.Fatalf("expected open breaker, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(states) != 1 || states[0] != "ollama.embed:open" {
		t.Fatalf("state changes = %v", states)
	}

	// Breakers are per operation.
	if err := exec.Execute(context.Background(), "ollama.generate", func(context.Context) error { return nil }, nil); err != nil {
		t.Fatalf("independent operation should pass, got %v", err)
	}
}

func TestUnrecordedFailuresKeepBreakerClosed(t *testing.T) {
	cfg := fastConfig()
	cfg.RetryMaxAttempts = 1
	cfg.BreakerEnabled = true
	cfg.BreakerMinRequests = 1
	exec := NewExecutor(cfg)

	ignore := func(error) ErrorClassification { return ErrorClassification{} }
	for range 5 {
		err := exec.Execute(context.Background(), "op", func(context.Context) error {
			return errFlaky
		}, ignore)
		if IsCircuitOpen(err) {
			t.Fatalf("breaker opened on unrecorded failures")
		}
	}
}

func TestAttemptTimeoutBoundsEachCall(t *testing.T) {
	exec := NewExecutor(Config{AttemptTimeout: 10 * time.Millisecond, RetryMaxAttempts: 1})

	err := exec.Execute(context.Background(), "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestCall(t *testing.T) {
	got, err := Call(context.Background(), NewExecutor(ProviderConfig(time.Second)), "value", func(context.Context) ([]float32, error) {
		return []float32{1, 2}, nil
	}, nil)
	if err != nil || len(got) != 2 {
		t.Fatalf("Call() = %v, %v", got, err)
	}

	_, err = Call(context.Background(), nil, "direct", func(context.Context) (string, error) {
		return "", errFlaky
	}, nil)
	if !errors.Is(err, errFlaky) {
		t.Fatalf("nil executor should return callback error, got %v", err)
	}
}

func TestNormalizeFillsZeroFields(t *testing.T) {
	cfg := Config{AttemptTimeout: -time.Second, RetryInitialBackoff: time.Second, RetryMaxBackoff: time.Millisecond, BreakerFailureRatio: 3}.normalize()

	if cfg.AttemptTimeout != 0 {
		t.Fatalf("negative timeout should disable deadlines, got %v", cfg.AttemptTimeout)
	}
	if cfg.RetryMaxAttempts != 3 || cfg.RetryMultiplier != 2 {
		t.Fatalf("retry defaults not applied: %+v", cfg)
	}
	if cfg.RetryMaxBackoff != time.Second {
		t.Fatalf("max backoff should be raised to initial, got %v", cfg.RetryMaxBackoff)
	}
	if cfg.BreakerFailureRatio != 0.6 || cfg.BreakerHalfOpenMaxCalls != 1 {
		t.Fatalf("breaker defaults not applied: %+v", cfg)
	}

	bus := BusConfig().normalize()
	if bus.AttemptTimeout != 5*time.Second || bus.BreakerMinRequests != 10 {
		t.Fatalf("bus preset changed by normalize: %+v", bus)
	}
}
