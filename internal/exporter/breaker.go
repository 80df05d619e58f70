package exporter

import (
	"sync/atomic"
	"time"

	"github.com/spire-labs/telemetry/internal/logging"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int32

const (
	// CircuitClosed means the circuit is operating normally.
	CircuitClosed CircuitState = iota
	// CircuitOpen means the circuit is open and exports are rejected.
	CircuitOpen
	// CircuitHalfOpen means the circuit is testing if the collector recovered.
	CircuitHalfOpen
)

// String returns the metric label for the state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreaker stops export attempts after consecutive fully-failed
// batches so a dead collector does not absorb every retry budget. One
// delivered or fully-failed batch is one unit toward the count; individual
// retry attempts inside a batch are not. All transitions are lock-free.
type CircuitBreaker struct {
	state            atomic.Int32
	consecutiveFails atomic.Int32
	lastFailure      atomic.Int64 // UnixNano
	halfOpenProbe    atomic.Int32 // 1 if a half-open probe is in flight, 0 otherwise

	failureThreshold int
	cooldown         time.Duration
}

// NewCircuitBreaker creates a circuit breaker that opens after
// failureThreshold consecutive fully-failed batches and probes again after
// cooldown.
func NewCircuitBreaker(failureThreshold int, cooldown time.Duration) *CircuitBreaker {
	cb := &CircuitBreaker{
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
	}
	cb.state.Store(int32(CircuitClosed))
	setCircuitState(CircuitClosed)
	return cb
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	return CircuitState(cb.state.Load())
}

// ConsecutiveFailures returns the current consecutive failure count.
func (cb *CircuitBreaker) ConsecutiveFailures() int {
	return int(cb.consecutiveFails.Load())
}

// AllowRequest reports whether an export attempt should be allowed through.
func (cb *CircuitBreaker) AllowRequest() bool {
	switch CircuitState(cb.state.Load()) {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if time.Now().UnixNano()-cb.lastFailure.Load() >= int64(cb.cooldown) {
			// CAS: only one goroutine wins the Open -> HalfOpen transition.
			// The winner also becomes the half-open probe.
			if cb.state.CompareAndSwap(int32(CircuitOpen), int32(CircuitHalfOpen)) {
				cb.halfOpenProbe.Store(1)
				setCircuitState(CircuitHalfOpen)
				logging.Info("circuit breaker transitioning to half-open", logging.F(
					"cooldown", cb.cooldown.String(),
				))
				return true
			}
			// Another goroutine already transitioned, reject this one.
			return false
		}
		return false
	case CircuitHalfOpen:
		// Only one probe request is allowed in half-open state.
		if cb.halfOpenProbe.CompareAndSwap(0, 1) {
			return true
		}
		return false
	default:
		return true
	}
}

// RecordSuccess records a delivered batch.
func (cb *CircuitBreaker) RecordSuccess() {
	state := CircuitState(cb.state.Load())

	cb.consecutiveFails.Store(0)

	if state == CircuitHalfOpen {
		cb.halfOpenProbe.Store(0)
		cb.state.Store(int32(CircuitClosed))
		setCircuitState(CircuitClosed)
		logging.Info("circuit breaker closed after successful export")
	}
}

// RecordFailure records a fully-failed batch.
func (cb *CircuitBreaker) RecordFailure() {
	fails := cb.consecutiveFails.Add(1)
	cb.lastFailure.Store(time.Now().UnixNano())

	state := CircuitState(cb.state.Load())

	if state == CircuitHalfOpen {
		cb.halfOpenProbe.Store(0)
		cb.state.Store(int32(CircuitOpen))
		setCircuitState(CircuitOpen)
		circuitOpenTotal.Inc()
		logging.Warn("circuit breaker reopened after half-open failure", logging.F(
			"consecutive_failures", fails,
		))
		return
	}

	if state == CircuitClosed && int(fails) >= cb.failureThreshold {
		cb.state.Store(int32(CircuitOpen))
		setCircuitState(CircuitOpen)
		circuitOpenTotal.Inc()
		logging.Warn("circuit breaker opened due to consecutive failures", logging.F(
			"consecutive_failures", fails,
			"threshold", cb.failureThreshold,
			"cooldown", cb.cooldown.String(),
		))
	}
}
