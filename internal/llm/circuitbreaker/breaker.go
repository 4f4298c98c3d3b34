// Package circuitbreaker stops calling a model after repeated transient
// failures and probes it again once the open timeout has elapsed.
//
// Each model id gets its own breaker. Only retryable failures (timeouts,
// network errors, provider outages, throttling) count toward opening; a
// malformed request or bad credentials say nothing about the model's health.
package circuitbreaker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ring2236/ESA-DGR/internal/llm/configuration"
)

// State is the breaker position.
type State int

const (
	// StateClosed passes every call through.
	StateClosed State = iota
	// StateOpen rejects calls until the open timeout elapses.
	StateOpen
	// StateHalfOpen admits a limited number of probe calls.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	errFailureThresholdInvalid = errors.New("failure threshold must be at least 1")
	errSuccessThresholdInvalid = errors.New("success threshold must be at least 1")
	errHalfOpenProbesInvalid   = errors.New("half-open probes must be at least 1")
	errOpenTimeoutInvalid      = errors.New("open timeout must be positive")
)

// breaker is the state machine for one model.
type breaker struct {
	cfg configuration.CircuitBreakerConfig
	now func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	probes    int
	openedAt  time.Time
}

// allow reports whether a call may proceed, moving an expired open breaker
// to half-open.
func (b *breaker) allow() (bool, State) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.OpenTimeout {
			return false, StateOpen
		}
		b.state = StateHalfOpen
		b.successes = 0
		b.probes = 0
		fallthrough
	case StateHalfOpen:
		if b.probes >= b.cfg.HalfOpenProbes {
			return false, StateHalfOpen
		}
		b.probes++
		return true, StateHalfOpen
	default:
		return true, StateClosed
	}
}

func (b *breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.probes--
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.state = StateClosed
			b.failures = 0
		}
	case StateClosed:
		b.failures = 0
	}
}

func (b *breaker) onFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.trip()
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.trip()
		}
	}
}

// onNeutral releases a half-open probe slot for a call whose outcome says
// nothing about the model's health.
func (b *breaker) onNeutral() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen && b.probes > 0 {
		b.probes--
	}
}

func (b *breaker) trip() {
	b.state = StateOpen
	b.openedAt = b.now()
	b.failures = 0
	b.successes = 0
	b.probes = 0
}

func (b *breaker) current() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
