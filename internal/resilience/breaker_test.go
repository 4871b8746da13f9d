package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "github.com/GriffinCanCode/fake-detector/internal/errors"
)

func TestBreakerInitialState(t *testing.T) {
	b := New(DefaultConfig())
	if b.State() != Closed {
		t.Errorf("initial state = %v, want Closed", b.State())
	}
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := New(Config{Name: "test", Threshold: 3, ResetTimeout: time.Hour, HalfOpenSuccesses: 2})

	for i := 0; i < 3; i++ {
		b.Failure()
	}

	if b.State() != Open {
		t.Errorf("state = %v, want Open", b.State())
	}
	if err := b.Allow(); !apperrors.IsCode(err, apperrors.CodeUnavailable) {
		t.Errorf("Allow() = %v, want UNAVAILABLE", err)
	}
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	b := New(Config{Name: "test", Threshold: 1, ResetTimeout: time.Millisecond, HalfOpenSuccesses: 2})
	b.Failure()
	time.Sleep(5 * time.Millisecond)

	if err := b.Allow(); err != nil {
		t.Fatalf("Allow() = %v, want nil", err)
	}
	if b.State() != HalfOpen {
		t.Fatalf("state = %v, want HalfOpen", b.State())
	}
	b.Success()
	b.Success()
	if b.State() != Closed {
		t.Errorf("state = %v, want Closed", b.State())
	}
}

func TestBreakerReopensOnHalfOpenFailure(t *testing.T) {
	b := New(Config{Name: "test", Threshold: 1, ResetTimeout: time.Millisecond, HalfOpenSuccesses: 3})
	b.Failure()
	time.Sleep(5 * time.Millisecond)
	_ = b.Allow()

	b.Failure()

	if b.State() != Open {
		t.Errorf("state = %v, want Open", b.State())
	}
}

func TestBreakerReset(t *testing.T) {
	b := New(Config{Name: "test", Threshold: 1, ResetTimeout: time.Hour, HalfOpenSuccesses: 1})
	b.Failure()
	b.Reset()

	if b.State() != Closed {
		t.Errorf("state = %v, want Closed", b.State())
	}
}

func TestExecuteCountsOnlyTransientFailures(t *testing.T) {
	b := New(Config{Name: "test", Threshold: 2, ResetTimeout: time.Hour, HalfOpenSuccesses: 1})
	missing := apperrors.New(apperrors.CodeNotFound, "video not found")

	for i := 0; i < 5; i++ {
		if _, err := Execute(b, func() (int, error) { return 0, missing }); !errors.Is(err, missing) {
			t.Fatalf("Execute = %v, want %v", err, missing)
		}
	}
	if b.State() != Closed {
		t.Fatalf("non-retryable errors opened the breaker")
	}

	down := apperrors.New(apperrors.CodeUnavailable, "connection refused")
	for i := 0; i < 2; i++ {
		_, _ = Execute(b, func() (int, error) { return 0, down })
	}
	if b.State() != Open {
		t.Errorf("state = %v, want Open", b.State())
	}

	calls := 0
	_, err := Execute(b, func() (int, error) { calls++; return 1, nil })
	if !errors.Is(err, ErrOpen) || calls != 0 {
		t.Errorf("open breaker should reject without calling: err=%v calls=%d", err, calls)
	}
}

func TestExecuteResult(t *testing.T) {
	b := New(DefaultConfig())

	got, err := Execute(b, func() (string, error) { return "fake", nil })
	if err != nil || got != "fake" {
		t.Errorf("Execute = (%q, %v), want (fake, nil)", got, err)
	}
}

func TestBreakerHook(t *testing.T) {
	var transitions []struct{ from, to State }
	b := New(Config{Name: "test", Threshold: 1, ResetTimeout: time.Millisecond, HalfOpenSuccesses: 1})
	b.WithHook(func(from, to State) {
		transitions = append(transitions, struct{ from, to State }{from, to})
	})

	b.Failure()
	time.Sleep(5 * time.Millisecond)
	_ = b.Allow()
	b.Success()

	if len(transitions) != 3 {
		t.Errorf("got %d transitions, want 3", len(transitions))
	}
}

func TestBreakerConcurrentSafety(t *testing.T) {
	b := New(Config{Name: "test", Threshold: 100, ResetTimeout: time.Second, HalfOpenSuccesses: 10})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.Allow()
			if i%2 == 0 {
				b.Success()
			} else {
				b.Failure()
			}
		}()
	}
	wg.Wait()
	_ = b.State()
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{Closed, "closed"},
		{Open, "open"},
		{HalfOpen, "half-open"},
	}

	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()

	if cfg.Name != "default" || cfg.Threshold != DefaultThreshold ||
		cfg.ResetTimeout != DefaultResetTimeout || cfg.HalfOpenSuccesses != DefaultHalfOpenSuccesses {
		t.Errorf("withDefaults = %+v", cfg)
	}
	if r := RemoteConfig("remote"); r.Threshold != RemoteThreshold || r.Name != "remote" {
		t.Errorf("RemoteConfig = %+v", r)
	}
}
