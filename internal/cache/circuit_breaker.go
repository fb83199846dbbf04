package cache

import (
	"errors"
	"sync"
	"time"
)

type BreakerState int

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

var ErrCircuitBreakerOpen = errors.New("circuit breaker is open")

type CircuitBreakerConfig struct {
	MaxFailures      int           `json:"max_failures"`
	Timeout          time.Duration `json:"timeout"`
	HalfOpenMaxCalls int           `json:"half_open_max_calls"`

	// OnStateChange, if set, is called outside the lock after a transition.
	OnStateChange func(from, to BreakerState) `json:"-"`
}

func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		MaxFailures:      5,
		Timeout:          30 * time.Second,
		HalfOpenMaxCalls: 3,
	}
}

// CircuitBreaker stops calling redis after repeated failures so requests fall
// straight through to storage. After Timeout it lets HalfOpenMaxCalls trial
// calls through; all of them must succeed to close again.
type CircuitBreaker struct {
	mu        sync.Mutex
	state     BreakerState
	failures  int
	trials    int
	successes int
	openedAt  time.Time
	cfg       CircuitBreakerConfig
	now       func() time.Time
}

func NewCircuitBreaker(config *CircuitBreakerConfig) *CircuitBreaker {
	if config == nil {
		config = DefaultCircuitBreakerConfig()
	}
	cfg := *config
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 1
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 1
	}
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.allow() {
		return ErrCircuitBreakerOpen
	}

	err := fn()
	cb.record(err == nil)
	return err
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	from := cb.state
	allowed := false

	switch cb.state {
	case StateClosed:
		allowed = true
	case StateOpen:
		if cb.now().Sub(cb.openedAt) >= cb.cfg.Timeout {
			cb.state = StateHalfOpen
			cb.trials, cb.successes = 1, 0
			allowed = true
		}
	case StateHalfOpen:
		if cb.trials < cb.cfg.HalfOpenMaxCalls {
			cb.trials++
			allowed = true
		}
	}
	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
	return allowed
}

func (cb *CircuitBreaker) record(success bool) {
	cb.mu.Lock()
	from := cb.state

	switch cb.state {
	case StateClosed:
		if success {
			cb.failures = 0
		} else {
			cb.failures++
			if cb.failures >= cb.cfg.MaxFailures {
				cb.trip()
			}
		}
	case StateHalfOpen:
		if !success {
			cb.trip()
			break
		}
		cb.successes++
		if cb.successes >= cb.cfg.HalfOpenMaxCalls {
			cb.state = StateClosed
			cb.failures, cb.trials, cb.successes = 0, 0, 0
		}
	}
	to := cb.state
	cb.mu.Unlock()

	cb.notify(from, to)
}

// trip must be called with mu held.
func (cb *CircuitBreaker) trip() {
	cb.state = StateOpen
	cb.openedAt = cb.now()
	cb.failures, cb.trials, cb.successes = 0, 0, 0
}

func (cb *CircuitBreaker) notify(from, to BreakerState) {
	if from != to && cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(from, to)
	}
}

func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Stats() map[string]interface{} {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return map[string]interface{}{
		"state":           cb.state.String(),
		"failure_count":   cb.failures,
		"max_failures":    cb.cfg.MaxFailures,
		"timeout_seconds": cb.cfg.Timeout.Seconds(),
	}
}
