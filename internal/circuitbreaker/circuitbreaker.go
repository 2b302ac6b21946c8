// Package circuitbreaker guards calls into the relational source of
// truth. When the database is down there is no point hammering it from
// every cache miss or sweep; the breaker fails fast until a probe call
// succeeds again.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"github.com/wayfarer-social/backend/internal/metrics"
)

// ErrOpen is returned without invoking the wrapped call while the
// breaker is open.
var ErrOpen = errors.New("circuitbreaker: open")

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

// Breaker is a three-state circuit breaker. Closed passes calls
// through, open fails them fast, half-open lets probes through after
// the cooldown.
type Breaker struct {
	mu          sync.Mutex
	state       state
	failures    int
	successes   int
	lastFailure time.Time

	name             string
	failureThreshold int
	successThreshold int
	cooldown         time.Duration
	now              func() time.Time
}

// Config tunes a Breaker. Zero values take the defaults noted per
// field.
type Config struct {
	Name             string
	FailureThreshold int           // consecutive failures before opening, default 5
	SuccessThreshold int           // probe successes to close again, default 2
	Cooldown         time.Duration // open duration before probing, default 60s
}

// New creates a closed Breaker.
func New(cfg Config) *Breaker {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold == 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = 60 * time.Second
	}
	metrics.BreakerState.WithLabelValues(cfg.Name).Set(0)
	return &Breaker{
		name:             cfg.Name,
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		cooldown:         cfg.Cooldown,
		now:              time.Now,
	}
}

// SetClock overrides the breaker's clock, for tests.
func (b *Breaker) SetClock(now func() time.Time) { b.now = now }

// Do invokes fn unless the breaker is open, recording the outcome.
// While open it returns ErrOpen without calling fn.
func (b *Breaker) Do(fn func() error) error {
	if !b.allow() {
		return ErrOpen
	}
	if err := fn(); err != nil {
		b.onFailure()
		return err
	}
	b.onSuccess()
	return nil
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case stateClosed, stateHalfOpen:
		return true
	case stateOpen:
		if b.now().Sub(b.lastFailure) > b.cooldown {
			b.state = stateHalfOpen
			b.successes = 0
			metrics.BreakerState.WithLabelValues(b.name).Set(2)
			return true
		}
		return false
	}
	return false
}

func (b *Breaker) onFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastFailure = b.now()
	b.successes = 0
	switch b.state {
	case stateClosed:
		b.failures++
		if b.failures >= b.failureThreshold {
			b.trip()
		}
	case stateHalfOpen:
		// A failed probe reopens immediately.
		b.failures = 0
		b.trip()
	}
}

func (b *Breaker) trip() {
	b.state = stateOpen
	metrics.BreakerTrips.WithLabelValues(b.name).Inc()
	metrics.BreakerState.WithLabelValues(b.name).Set(1)
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case stateClosed:
		b.failures = 0
	case stateHalfOpen:
		b.successes++
		if b.successes >= b.successThreshold {
			b.state = stateClosed
			b.failures = 0
			b.successes = 0
			metrics.BreakerState.WithLabelValues(b.name).Set(0)
		}
	}
}
