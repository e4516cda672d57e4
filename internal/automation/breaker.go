package automation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// BreakerConfig holds circuit breaker tuning for upstream automation services
type BreakerConfig struct {
	// MaxRequests is the maximum number of requests allowed to pass through
	// when the circuit breaker is half-open
	MaxRequests uint32
	// Interval is the cyclic period of the closed state
	// for the circuit breaker to clear the internal counts
	Interval time.Duration
	// Timeout is the period of the open state,
	// after which the state of the circuit breaker becomes half-open
	Timeout time.Duration
	// FailureThreshold is the number of consecutive failures before opening
	FailureThreshold uint32
}

// DefaultBreakerConfig returns default circuit breaker configuration
func DefaultBreakerConfig() *BreakerConfig {
	return &BreakerConfig{
		MaxRequests:      5,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// ErrCircuitOpen is returned when the circuit for an upstream service is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ErrUpstreamError marks responses from an upstream automation service
// that should count against its circuit breaker.
var ErrUpstreamError = errors.New("upstream service error")

// breakerManager manages one circuit breaker per upstream automation service
type breakerManager struct {
	breakers map[string]*gobreaker.CircuitBreaker
	config   *BreakerConfig
	mu       sync.RWMutex
}

func newBreakerManager(config *BreakerConfig) *breakerManager {
	if config == nil {
		config = DefaultBreakerConfig()
	}
	return &breakerManager{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		config:   config,
	}
}

func (m *breakerManager) getBreaker(service string) *gobreaker.CircuitBreaker {
	m.mu.RLock()
	cb, exists := m.breakers[service]
	m.mu.RUnlock()

	if exists {
		return cb
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if cb, exists = m.breakers[service]; exists {
		return cb
	}

	cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        fmt.Sprintf("automation-%s", service),
		MaxRequests: m.config.MaxRequests,
		Interval:    m.config.Interval,
		Timeout:     m.config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= m.config.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Info().
				Str("circuit_breaker", name).
				Str("from", stateToString(from)).
				Str("to", stateToString(to)).
				Msg("Circuit breaker state changed")
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// Only upstream failures trip the breaker; bad requests do not.
			return !errors.Is(err, ErrUpstreamError) && !errors.Is(err, context.DeadlineExceeded)
		},
	})

	m.breakers[service] = cb
	return cb
}

// execute runs fn under the service's circuit breaker
func (m *breakerManager) execute(ctx context.Context, service string, fn func() (any, error)) (any, error) {
	cb := m.getBreaker(service)

	result, err := cb.Execute(func() (any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		return fn()
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			log.Warn().
				Str("service", service).
				Msg("Circuit breaker is open, rejecting request")
			return nil, ErrCircuitOpen
		}
		return nil, err
	}

	return result, nil
}

// BreakerStatus contains status information about one upstream's breaker
type BreakerStatus struct {
	Name         string `json:"name"`
	State        string `json:"state"`
	Requests     uint32 `json:"requests"`
	TotalSuccess uint32 `json:"total_success"`
	TotalFailure uint32 `json:"total_failure"`
}

func (m *breakerManager) allStatus() []*BreakerStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	statuses := make([]*BreakerStatus, 0, len(m.breakers))
	for service, cb := range m.breakers {
		counts := cb.Counts()
		statuses = append(statuses, &BreakerStatus{
			Name:         service,
			State:        stateToString(cb.State()),
			Requests:     counts.Requests,
			TotalSuccess: counts.TotalSuccesses,
			TotalFailure: counts.TotalFailures,
		})
	}
	return statuses
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}
