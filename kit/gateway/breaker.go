package gateway

import (
	"context"
	"errors"
	"sync"
	"time"
)

type CircuitBreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	OpenTimeout      time.Duration
	IsFailure        func(error) bool
}

// CircuitBreakerGateway fails fast with ErrUnavailable and ErrCircuitOpen
// while the wrapped gateway keeps failing. Calls rejected by an open circuit
// never reach the provider.
type CircuitBreakerGateway struct {
	next Gateway
	cfg  CircuitBreakerConfig

	mu           sync.Mutex
	state        int
	failures     int
	successes    int
	openedAt     time.Time
	halfInFlight bool
}

const (
	cbClosed = iota
	cbOpen
	cbHalfOpen
)

func NewCircuitBreakerGateway(next Gateway, cfg CircuitBreakerConfig) *CircuitBreakerGateway {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 1
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool {
			return errors.Is(err, ErrUnavailable) || errors.Is(err, context.DeadlineExceeded)
		}
	}
	return &CircuitBreakerGateway{next: next, cfg: cfg, state: cbClosed}
}

func (g *CircuitBreakerGateway) CreateOrder(ctx context.Context, amount int64, currency string) (*Order, error) {
	return guard(g, func() (*Order, error) { return g.next.CreateOrder(ctx, amount, currency) })
}

func (g *CircuitBreakerGateway) CaptureOrder(ctx context.Context, orderID string) (*Capture, error) {
	return guard(g, func() (*Capture, error) { return g.next.CaptureOrder(ctx, orderID) })
}

func (g *CircuitBreakerGateway) SubmitPayout(ctx context.Context, req PayoutRequest) (*Payout, error) {
	return guard(g, func() (*Payout, error) { return g.next.SubmitPayout(ctx, req) })
}

func (g *CircuitBreakerGateway) GetPayoutStatus(ctx context.Context, payoutBatchID string) (PayoutStatus, error) {
	return guard(g, func() (PayoutStatus, error) { return g.next.GetPayoutStatus(ctx, payoutBatchID) })
}

// State reports "closed", "open" or "half_open".
func (g *CircuitBreakerGateway) State() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	switch g.state {
	case cbOpen:
		return "open"
	case cbHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

func guard[T any](g *CircuitBreakerGateway, call func() (T, error)) (T, error) {
	if err := g.beforeCall(); err != nil {
		var zero T
		return zero, err
	}
	out, err := call()
	g.afterCall(err)
	return out, err
}

func (g *CircuitBreakerGateway) beforeCall() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case cbClosed:
		return nil
	case cbOpen:
		if time.Since(g.openedAt) < g.cfg.OpenTimeout {
			return errors.Join(ErrUnavailable, ErrCircuitOpen)
		}
		g.state = cbHalfOpen
		g.successes = 0
		g.halfInFlight = false
		fallthrough
	case cbHalfOpen:
		if g.halfInFlight {
			return errors.Join(ErrUnavailable, ErrCircuitOpen)
		}
		g.halfInFlight = true
		return nil
	default:
		return errors.Join(ErrUnavailable, ErrCircuitOpen)
	}
}

func (g *CircuitBreakerGateway) afterCall(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == cbHalfOpen {
		g.halfInFlight = false
	}

	if err == nil || !g.cfg.IsFailure(err) {
		switch g.state {
		case cbClosed:
			g.failures = 0
		case cbHalfOpen:
			g.successes++
			if g.successes >= g.cfg.SuccessThreshold {
				g.state = cbClosed
				g.failures = 0
				g.successes = 0
			}
		}
		return
	}

	switch g.state {
	case cbClosed:
		g.failures++
		if g.failures >= g.cfg.FailureThreshold {
			g.trip()
		}
	case cbHalfOpen:
		g.trip()
	}
}

func (g *CircuitBreakerGateway) trip() {
	g.state = cbOpen
	g.openedAt = time.Now().UTC()
	g.failures = g.cfg.FailureThreshold
	g.successes = 0
	g.halfInFlight = false
}
