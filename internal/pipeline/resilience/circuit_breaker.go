// Package resilience holds the two reusable guards every external call in
// the pipeline core (LLM, asset-service, step runners) wraps itself in: a
// Circuit Breaker and an LRU Cache.
package resilience

import (
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// CircuitState names the three breaker states.
type CircuitState string

const (
	CircuitStateClosed   CircuitState = "closed"
	CircuitStateOpen     CircuitState = "open"
	CircuitStateHalfOpen CircuitState = "half-open"
)

func fromGobreakerState(s gobreaker.State) CircuitState {
	switch s {
	case gobreaker.StateOpen:
		return CircuitStateOpen
	case gobreaker.StateHalfOpen:
		return CircuitStateHalfOpen
	default:
		return CircuitStateClosed
	}
}

// CircuitBreaker wraps sony/gobreaker with the failure-rate-threshold
// configuration shape the rest of the pipeline expects: a fractional
// threshold in [0,1] evaluated only once a minimum request count has been
// observed, rather than gobreaker's raw consecutive-failure counter.
type CircuitBreaker struct {
	name             string
	failureThreshold float64
	resetTimeout     time.Duration
	minRequests      uint32

	mu       sync.Mutex
	tripRate float64
	cb       *gobreaker.CircuitBreaker
}

const defaultMinRequests = 5

// NewCircuitBreaker builds a named breaker. threshold is a failure-rate
// fraction in [0,1]; cooldown is how long the breaker stays open before
// admitting a single half-open probe.
func NewCircuitBreaker(name string, threshold float64, cooldown time.Duration) *CircuitBreaker {
	c := &CircuitBreaker{
		name:             name,
		failureThreshold: threshold,
		resetTimeout:     cooldown,
		minRequests:      defaultMinRequests,
	}
	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		Timeout:     cooldown,
		MaxRequests: 1,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < c.minRequests {
				return false
			}
			rate := float64(counts.TotalFailures) / float64(counts.Requests)
			if rate < c.failureThreshold {
				return false
			}
			c.mu.Lock()
			c.tripRate = rate
			c.mu.Unlock()
			return true
		},
	})
	return c
}

func (c *CircuitBreaker) GetName() string                    { return c.name }
func (c *CircuitBreaker) GetFailureThreshold() float64        { return c.failureThreshold }
func (c *CircuitBreaker) GetResetTimeout() time.Duration      { return c.resetTimeout }
func (c *CircuitBreaker) GetState() CircuitState              { return fromGobreakerState(c.cb.State()) }

// GetFailureRate reports the failure rate of the current counting window.
// gobreaker clears its counts on every state change, so while the breaker
// is open this reports the rate that tripped it.
func (c *CircuitBreaker) GetFailureRate() float64 {
	if c.GetState() == CircuitStateOpen {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.tripRate
	}
	counts := c.cb.Counts()
	if counts.Requests == 0 {
		return 0.0
	}
	return float64(counts.TotalFailures) / float64(counts.Requests)
}

func (c *CircuitBreaker) GetFailures() int64 {
	return int64(c.cb.Counts().TotalFailures)
}

// Call executes fn if the circuit admits it. When open, fn is never
// invoked and Call returns immediately with a CIRCUIT_OPEN-shaped error.
func (c *CircuitBreaker) Call(fn func() error) error {
	_, err := c.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return fmt.Errorf("circuit breaker is open: %s", c.name)
	}
	return err
}
