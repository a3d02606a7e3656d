package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"payrecon/internal/events"
	"payrecon/internal/ledger"
	"payrecon/internal/recovery"
	"payrecon/kit/broker"
	"payrecon/kit/gateway"
	"payrecon/kit/observability"
)

type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeStuck     Outcome = "stuck"
	OutcomeCanceled  Outcome = "canceled"
)

var ErrNoExternalRef = errors.New("payout has no external ref")

type Config struct {
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
	// MaxElapsed and MaxAttempts bound a single poll run; zero disables a bound
	// but at least one must be set.
	MaxElapsed  time.Duration
	MaxAttempts int
}

func (c Config) withDefaults() Config {
	if c.InitialInterval <= 0 {
		c.InitialInterval = 2 * time.Second
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = time.Minute
	}
	if c.Multiplier < 1 {
		c.Multiplier = 2
	}
	if c.RandomizationFactor < 0 || c.RandomizationFactor > 1 {
		c.RandomizationFactor = backoff.DefaultRandomizationFactor
	}
	if c.MaxElapsed <= 0 && c.MaxAttempts <= 0 {
		c.MaxElapsed = 30 * time.Minute
	}
	return c
}

// SleepFunc waits d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func DefaultSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type clockFunc func() time.Time

func (f clockFunc) Now() time.Time { return f() }

// Poller drives a single payout from pending to a terminal status, or gives
// up once the configured bound is reached.
type Poller struct {
	store    StoreContract
	gateway  GatewayContract
	bus      PublisherContract
	recovery RecoveryContract
	metrics  *observability.Metrics
	logger   *zap.Logger
	cfg      Config

	sleep SleepFunc
	now   func() time.Time
}

type Option func(*Poller)

func WithSleep(fn SleepFunc) Option {
	return func(p *Poller) { p.sleep = fn }
}

func WithClock(now func() time.Time) Option {
	return func(p *Poller) { p.now = now }
}

func New(store StoreContract, gw GatewayContract, bus PublisherContract, rec RecoveryContract, metrics *observability.Metrics, logger *zap.Logger, cfg Config, opts ...Option) *Poller {
	p := &Poller{
		store:    store,
		gateway:  gw,
		bus:      bus,
		recovery: rec,
		metrics:  metrics,
		logger:   observability.Component(logger, "service", "poller"),
		cfg:      cfg.withDefaults(),
		sleep:    DefaultSleep,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Poller) Config() Config { return p.cfg }

func (p *Poller) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.InitialInterval
	b.MaxInterval = p.cfg.MaxInterval
	b.Multiplier = p.cfg.Multiplier
	b.RandomizationFactor = p.cfg.RandomizationFactor
	b.MaxElapsedTime = p.cfg.MaxElapsed
	b.Clock = clockFunc(p.now)
	b.Reset()
	return b
}

// Run polls tx's external ref until the gateway reports a terminal status,
// the bound is hit, or ctx is canceled. A canceled run changes nothing; the
// payout stays pending for the next recovery sweep.
func (p *Poller) Run(ctx context.Context, tx *ledger.Transaction) (Outcome, error) {
	if tx.ExternalRef == "" {
		return "", fmt.Errorf("%w: %s", ErrNoExternalRef, tx.ID)
	}
	log := p.logger.With(zap.String("method", "Run"), zap.String("transaction_id", tx.ID), zap.String("payout_batch_id", tx.ExternalRef))

	start := p.now()
	done := func(outcome Outcome, err error) (Outcome, error) {
		if p.metrics != nil {
			p.metrics.PollDuration.Observe(p.now().Sub(start).Seconds())
		}
		return outcome, err
	}
	b := p.newBackOff()
	var lastErr error

	for attempt := 1; ; attempt++ {
		status, err := p.gateway.GetPayoutStatus(ctx, tx.ExternalRef)
		if p.metrics != nil {
			p.metrics.PollAttempts.Inc()
		}

		switch {
		case err == nil && status == gateway.PayoutSuccess:
			return done(p.complete(ctx, log, tx))
		case err == nil && status == gateway.PayoutFailed:
			return done(p.fail(ctx, log, tx))
		case ctx.Err() != nil:
			log.Info("poll canceled", zap.Int("attempt", attempt))
			return OutcomeCanceled, ctx.Err()
		case err != nil && !gateway.IsUnavailable(err):
			// the provider does not know the batch or refuses to report it
			log.Error("poll rejected", zap.Int("attempt", attempt), zap.Error(err))
			if p.metrics != nil {
				p.metrics.GatewayErrors.WithLabelValues(string(gateway.OpGetPayoutStatus), gateway.Code(err)).Inc()
			}
			return done(p.stuck(ctx, log, tx, attempt, fmt.Sprintf("gateway refused status query: %v", err)))
		case err != nil:
			lastErr = err
			if p.metrics != nil {
				p.metrics.GatewayErrors.WithLabelValues(string(gateway.OpGetPayoutStatus), gateway.Code(err)).Inc()
			}
			log.Debug("poll unavailable", zap.Int("attempt", attempt), zap.Error(err))
		default:
			log.Debug("payout pending", zap.Int("attempt", attempt))
		}

		if p.cfg.MaxAttempts > 0 && attempt >= p.cfg.MaxAttempts {
			return done(p.stuck(ctx, log, tx, attempt, exhausted(fmt.Sprintf("%d attempts", attempt), lastErr)))
		}
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			return done(p.stuck(ctx, log, tx, attempt, exhausted(p.cfg.MaxElapsed.String(), lastErr)))
		}
		if err := p.sleep(ctx, wait); err != nil {
			log.Info("poll canceled", zap.Int("attempt", attempt))
			return OutcomeCanceled, err
		}
	}
}

func exhausted(bound string, lastErr error) string {
	if lastErr != nil {
		return fmt.Sprintf("still pending after %s, last error: %v", bound, lastErr)
	}
	return fmt.Sprintf("still pending after %s", bound)
}

func (p *Poller) complete(ctx context.Context, log *zap.Logger, tx *ledger.Transaction) (Outcome, error) {
	updated, err := p.store.UpdateTransactionStatus(ctx, tx.ExternalRef, ledger.StatusCompleted)
	switch {
	case ledger.IsInvalidTransition(err):
		log.Error("gateway success on a closed payout", zap.Error(err))
		p.escalate(ctx, tx, recovery.ActionCompensation, "gateway reported SUCCESS for a payout the ledger already failed and refunded")
		return OutcomeStuck, err
	case err != nil:
		log.Error("mark completed failed", zap.Error(err))
		return OutcomeStuck, err
	}

	if tx.Status != ledger.StatusCompleted {
		p.publish(ctx, events.PayoutCompleted{
			TransactionID: updated.ID,
			AccountID:     updated.AccountID,
			PayoutBatchID: updated.ExternalRef,
			Amount:        updated.Magnitude(),
			At:            p.now().UTC(),
		})
		if p.metrics != nil {
			p.metrics.PayoutsCompleted.Inc()
		}
	}
	*tx = *updated
	log.Info("payout completed")
	return OutcomeCompleted, nil
}

func (p *Poller) fail(ctx context.Context, log *zap.Logger, tx *ledger.Transaction) (Outcome, error) {
	updated, released, err := p.store.ReleasePayout(ctx, tx.ID)
	switch {
	case ledger.IsInvalidTransition(err):
		log.Error("gateway failure on a completed payout", zap.Error(err))
		p.escalate(ctx, tx, recovery.ActionCompensation, "gateway reported FAILED for a payout the ledger already completed")
		return OutcomeStuck, err
	case err != nil:
		log.Error("release failed", zap.Error(err))
		return OutcomeStuck, err
	}

	if released {
		p.publish(ctx, events.PayoutFailed{
			TransactionID: updated.ID,
			AccountID:     updated.AccountID,
			PayoutBatchID: updated.ExternalRef,
			Amount:        updated.Magnitude(),
			Reason:        "gateway reported the payout failed",
			ErrorCode:     string(gateway.PayoutFailed),
			At:            p.now().UTC(),
		})
		if p.metrics != nil {
			p.metrics.PayoutsFailed.Inc()
			p.metrics.PayoutCompensations.Inc()
		}
	}
	*tx = *updated
	log.Info("payout failed and released", zap.Bool("released", released))
	return OutcomeFailed, nil
}

func (p *Poller) stuck(ctx context.Context, log *zap.Logger, tx *ledger.Transaction, attempts int, reason string) (Outcome, error) {
	log.Warn("payout stuck", zap.Int("attempts", attempts), zap.String("reason", reason))
	if marked, err := p.store.MarkStuck(ctx, tx.ID); err != nil {
		log.Error("mark stuck failed", zap.Error(err))
	} else {
		*tx = *marked
	}
	p.publish(ctx, events.PayoutStuck{
		TransactionID: tx.ID,
		AccountID:     tx.AccountID,
		PayoutBatchID: tx.ExternalRef,
		Reason:        reason,
		Attempts:      attempts,
		At:            p.now().UTC(),
	})
	if p.metrics != nil {
		p.metrics.PayoutsStuck.Inc()
	}
	p.escalate(ctx, tx, recovery.ActionPollExhausted, reason)
	return OutcomeStuck, nil
}

func (p *Poller) escalate(ctx context.Context, tx *ledger.Transaction, action, reason string) {
	if p.recovery == nil {
		return
	}
	p.recovery.Escalate(ctx, recovery.Case{
		TransactionID: tx.ID,
		AccountID:     tx.AccountID,
		ExternalRef:   tx.ExternalRef,
		Action:        action,
		Reason:        reason,
		At:            p.now().UTC(),
	})
}

func (p *Poller) publish(ctx context.Context, evt broker.Event) {
	if p.bus != nil {
		p.bus.Publish(ctx, evt)
	}
}
