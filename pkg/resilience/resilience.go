package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"threadcast-backend/pkg/logger"
)

// ErrOpen is returned without calling the operation while the breaker is open
var ErrOpen = errors.New("circuit breaker open")

// State represents the state of the circuit breaker
type State string

const (
	StateClosed   State = "closed"
	StateHalfOpen State = "half_open"
	StateOpen     State = "open"
)

func (s State) gauge() float64 {
	switch s {
	case StateHalfOpen:
		return 1
	case StateOpen:
		return 2
	default:
		return 0
	}
}

var (
	breakerRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "circuit_breaker_requests_total",
		Help: "Calls through a circuit breaker by result",
	}, []string{"breaker", "result"})
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=half_open, 2=open)",
	}, []string{"breaker"})
)

// CircuitBreaker stops calling a dependency after threshold consecutive
// failures. After cooldown one trial call is let through; its result closes
// or reopens the circuit.
type CircuitBreaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	trial    bool
}

// NewCircuitBreaker creates a closed breaker
func NewCircuitBreaker(name string, threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold < 1 {
		threshold = 1
	}
	breakerState.WithLabelValues(name).Set(0)
	return &CircuitBreaker{
		name:      name,
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
		state:     StateClosed,
	}
}

// Execute runs fn unless the circuit is open
func (b *CircuitBreaker) Execute(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	if !b.allow() {
		breakerRequests.WithLabelValues(b.name, "rejected").Inc()
		return ErrOpen
	}

	err := fn(ctx)
	b.record(operation, err)
	return err
}

// State returns the current state
func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *CircuitBreaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false
		}
		b.setState(StateHalfOpen)
		b.trial = true
		return true
	case StateHalfOpen:
		// one trial at a time
		if b.trial {
			return false
		}
		b.trial = true
		return true
	default:
		return true
	}
}

func (b *CircuitBreaker) record(operation string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.trial = false
	// A cancelled caller says nothing about the dependency
	if errors.Is(err, context.Canceled) {
		breakerRequests.WithLabelValues(b.name, "cancelled").Inc()
		return
	}

	if err == nil {
		breakerRequests.WithLabelValues(b.name, "success").Inc()
		b.failures = 0
		if b.state != StateClosed {
			logger.Info("Circuit breaker closed",
				zap.String("breaker", b.name),
				zap.String("operation", operation))
			b.setState(StateClosed)
		}
		return
	}

	breakerRequests.WithLabelValues(b.name, "failure").Inc()
	b.failures++
	if b.state == StateHalfOpen || b.failures >= b.threshold {
		if b.state != StateOpen {
			logger.Warn("Circuit breaker opened",
				zap.String("breaker", b.name),
				zap.String("operation", operation),
				zap.Int("consecutive_failures", b.failures),
				zap.Error(err))
		}
		b.openedAt = b.now()
		b.setState(StateOpen)
	}
}

func (b *CircuitBreaker) setState(s State) {
	b.state = s
	breakerState.WithLabelValues(b.name).Set(s.gauge())
}
