package circuitbreaker

import (
	"errors"
	"testing"
	"time"
)

func newTestBreaker() (*Breaker, *time.Time) {
	b := New(Config{
		Name:             "test",
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Cooldown:         time.Minute,
	})
	now := time.Now()
	b.SetClock(func() time.Time { return now })
	return b, &now
}

func TestClosedPassesThrough(t *testing.T) {
	b, _ := newTestBreaker()

	calls := 0
	if err := b.Do(func() error { calls++; return nil }); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}
}

func TestOpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker()
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		if err := b.Do(func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("failure %d: err = %v, want boom", i, err)
		}
	}

	// The breaker is now open; the call must not run.
	calls := 0
	err := b.Do(func() error { calls++; return nil })
	if !errors.Is(err, ErrOpen) {
		t.Errorf("err = %v, want ErrOpen", err)
	}
	if calls != 0 {
		t.Error("open breaker must not invoke fn")
	}
}

func TestHalfOpenProbeCloses(t *testing.T) {
	b, now := newTestBreaker()
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		b.Do(func() error { return boom })
	}
	*now = now.Add(2 * time.Minute)

	// Two successful probes close the breaker again.
	for i := 0; i < 2; i++ {
		if err := b.Do(func() error { return nil }); err != nil {
			t.Fatalf("probe %d failed: %v", i, err)
		}
	}

	calls := 0
	if err := b.Do(func() error { calls++; return nil }); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if calls != 1 {
		t.Error("closed breaker should invoke fn")
	}
}

func TestHalfOpenProbeFailureReopens(t *testing.T) {
	b, now := newTestBreaker()
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		b.Do(func() error { return boom })
	}
	*now = now.Add(2 * time.Minute)

	// A failed probe reopens immediately, without needing a fresh run
	// of consecutive failures.
	if err := b.Do(func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("probe err = %v, want boom", err)
	}
	if err := b.Do(func() error { return nil }); !errors.Is(err, ErrOpen) {
		t.Errorf("err = %v, want ErrOpen after failed probe", err)
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker()
	boom := errors.New("boom")

	// Two failures, a success, two more failures: never reaches the
	// threshold of three consecutive.
	b.Do(func() error { return boom })
	b.Do(func() error { return boom })
	b.Do(func() error { return nil })
	b.Do(func() error { return boom })
	b.Do(func() error { return boom })

	if err := b.Do(func() error { return nil }); err != nil {
		t.Errorf("breaker should still be closed, got %v", err)
	}
}
