package payout

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
	"payrecon/kit/db"
	"payrecon/kit/gateway"
	"payrecon/kit/observability"
)

type Service struct {
	store    StoreContract
	gateway  GatewayContract
	poller   PollerContract
	bus      PublisherContract
	recovery RecoveryContract
	metrics  *observability.Metrics
	logger   *zap.Logger
	cfg      Config
	now      func() time.Time
}

func NewService(store StoreContract, gw GatewayContract, poller PollerContract, bus PublisherContract, rec RecoveryContract, metrics *observability.Metrics, logger *zap.Logger, cfg Config) *Service {
	return &Service{
		store:    store,
		gateway:  gw,
		poller:   poller,
		bus:      bus,
		recovery: rec,
		metrics:  metrics,
		logger:   observability.Component(logger, "service", "payout"),
		cfg:      cfg.withDefaults(),
		now:      time.Now,
	}
}

// SendPayout reserves amount from accountID and submits it to the gateway.
// A rejected submission is compensated before returning. When the gateway
// cannot be reached the payout stays pending without an external ref and
// Recover resubmits it under the same token.
func (s *Service) SendPayout(ctx context.Context, accountID, recipient string, amount int64) (*Result, error) {
	log := s.logger.With(zap.String("method", "SendPayout"), zap.String("account_id", accountID), zap.Int64("amount", amount))

	if err := validateRequest(accountID, recipient, amount); err != nil {
		log.Info("invalid payout request", zap.Error(err))
		return nil, err
	}

	tx := &ledger.Transaction{
		ID:           ledger.NewID(),
		AccountID:    accountID,
		Type:         ledger.TypePayout,
		Amount:       -amount,
		Counterparty: recipient,
		Description:  description(recipient),
		Status:       ledger.StatusPending,
	}
	tx.IdempotencyKey = ledger.PayoutToken(tx.ID)
	if err := s.store.ReservePayout(ctx, tx); err != nil {
		log.Info("reserve failed", zap.Error(err))
		return nil, err
	}
	log = log.With(zap.String("transaction_id", tx.ID))
	s.publish(ctx, events.PayoutReserved{TransactionID: tx.ID, AccountID: accountID, Recipient: recipient, Amount: amount, At: s.now().UTC()})
	if s.metrics != nil {
		s.metrics.PayoutsReserved.Inc()
	}

	// funds are reserved: the rest must run even if the caller goes away
	ctx = context.WithoutCancel(ctx)

	final, submitted, err := s.submitAndSettle(ctx, log, tx, true)
	if err != nil {
		return nil, err
	}
	acc, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		log.Error("balance lookup failed", zap.Error(err))
		return nil, err
	}
	return &Result{Transaction: final, Balance: acc.Balance, Submitted: submitted}, nil
}

// Status returns the caller's payout by transaction id or external ref.
func (s *Service) Status(ctx context.Context, accountID, idOrRef string) (*ledger.Transaction, error) {
	if idOrRef == "" {
		return nil, errors.Join(db.ErrInvalid, errors.New("payout id is required"))
	}
	tx, err := s.store.GetTransaction(ctx, idOrRef)
	if db.IsNotFound(err) {
		tx, err = s.store.GetTransactionByExternalRef(ctx, idOrRef)
	}
	if err != nil {
		return nil, err
	}
	if tx.AccountID != accountID || tx.Type != ledger.TypePayout {
		return nil, fmt.Errorf("%w: payout %s", db.ErrNotFound, idOrRef)
	}
	return tx, nil
}

// Recover sweeps pending payouts. Submitted ones are handed to the poller;
// unsubmitted ones are resubmitted with their stored token, or escalated once
// past the resubmit deadline. Payouts already escalated as stuck are left to
// the operator.
func (s *Service) Recover(ctx context.Context) (*RecoverReport, error) {
	return s.sweep(ctx, false)
}

// RecoverAll is Recover including stuck payouts, which are polled or
// escalated again. It runs at process start and on operator request.
func (s *Service) RecoverAll(ctx context.Context) (*RecoverReport, error) {
	return s.sweep(ctx, true)
}

func (s *Service) sweep(ctx context.Context, includeStuck bool) (*RecoverReport, error) {
	log := s.logger.With(zap.String("method", "Recover"), zap.Bool("include_stuck", includeStuck))

	pending, err := s.store.ListPending(ctx, ledger.TypePayout, time.Time{})
	if err != nil {
		log.Error("list pending failed", zap.Error(err))
		return nil, err
	}

	report := &RecoverReport{}
	now := s.now()
	for _, tx := range pending {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		age := now.Sub(tx.CreatedAt)
		txLog := log.With(zap.String("transaction_id", tx.ID))

		switch {
		case tx.Stuck() && !includeStuck:
			report.Skipped++
		case tx.ExternalRef != "":
			if s.poller != nil && s.poller.Track(tx) {
				report.Tracked++
			}
		case age >= s.cfg.ResubmitDeadline:
			if s.escalateExpired(ctx, tx, age) {
				report.Escalated++
			}
		case age < s.cfg.ResubmitAfter:
			report.Waiting++
		default:
			final, submitted, err := s.submitAndSettle(ctx, txLog, tx, false)
			switch {
			case submitted:
				report.Resubmitted++
			case final != nil && final.Status == ledger.StatusFailed:
				report.Compensated++
			case err != nil:
				txLog.Error("resubmit failed", zap.Error(err))
			}
		}
	}

	log.Info("sweep finished",
		zap.Int("pending", len(pending)),
		zap.Int("tracked", report.Tracked),
		zap.Int("resubmitted", report.Resubmitted),
		zap.Int("compensated", report.Compensated),
		zap.Int("escalated", report.Escalated),
		zap.Int("skipped", report.Skipped),
	)
	return report, nil
}

// Resolve closes a pending payout by operator decision. completed needs the
// gateway's external ref; failed credits the reservation back.
func (s *Service) Resolve(ctx context.Context, txID string, status ledger.Status) (*ledger.Transaction, error) {
	log := s.logger.With(zap.String("method", "Resolve"), zap.String("transaction_id", txID), zap.String("status", string(status)))

	tx, err := s.store.GetTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}
	if tx.Type != ledger.TypePayout {
		return nil, errors.Join(db.ErrInvalid, fmt.Errorf("transaction %s is not a payout", txID))
	}

	var updated *ledger.Transaction
	switch status {
	case ledger.StatusCompleted:
		if tx.ExternalRef == "" {
			return nil, errors.Join(db.ErrInvalid, errors.New("payout has no external ref, resolve it as failed"))
		}
		updated, err = s.store.UpdateTransactionStatus(ctx, tx.ExternalRef, ledger.StatusCompleted)
		if err != nil {
			return nil, err
		}
		if tx.Status != ledger.StatusCompleted {
			s.publish(ctx, events.PayoutCompleted{TransactionID: tx.ID, AccountID: tx.AccountID, PayoutBatchID: tx.ExternalRef, Amount: tx.Magnitude(), At: s.now().UTC()})
			if s.metrics != nil {
				s.metrics.PayoutsCompleted.Inc()
			}
		}
	case ledger.StatusFailed:
		updated, err = s.compensate(ctx, log, tx, errors.New("resolved as failed by operator"))
		if err != nil {
			return nil, err
		}
	default:
		return nil, errors.Join(db.ErrInvalid, fmt.Errorf("cannot resolve to %q", status))
	}

	if s.recovery != nil {
		s.recovery.Resolve(tx.ID)
	}
	log.Info("payout resolved")
	return updated, nil
}

// submitAndSettle submits tx and applies the outcome. fresh marks a first
// submission, where an open circuit proves the request never left.
func (s *Service) submitAndSettle(ctx context.Context, log *zap.Logger, tx *ledger.Transaction, fresh bool) (*ledger.Transaction, bool, error) {
	p, attempts, reached, err := s.submit(ctx, tx)
	switch {
	case err == nil:
		updated, aerr := s.store.AttachExternalRef(ctx, tx.ID, p.PayoutBatchID)
		if aerr != nil {
			// resubmitting the same token returns this batch again
			log.Error("attach external ref failed", zap.String("payout_batch_id", p.PayoutBatchID), zap.Error(aerr))
			return tx, false, nil
		}
		s.publish(ctx, events.PayoutSubmitted{TransactionID: tx.ID, AccountID: tx.AccountID, PayoutBatchID: p.PayoutBatchID, Attempts: attempts, At: s.now().UTC()})
		if s.metrics != nil {
			s.metrics.PayoutsSubmitted.Inc()
		}
		if s.poller != nil {
			s.poller.Track(updated)
		}
		log.Info("payout submitted", zap.String("payout_batch_id", p.PayoutBatchID), zap.Int("attempts", attempts))
		return updated, true, nil

	case gateway.IsRejected(err), gateway.IsNotFound(err),
		errors.Is(err, gateway.ErrCircuitOpen) && fresh && !reached:
		log.Info("payout refused, compensating", zap.Int("attempts", attempts), zap.Error(err))
		released, cerr := s.compensate(ctx, log, tx, err)
		if cerr != nil {
			return tx, false, errors.Join(err, cerr)
		}
		return released, false, err

	default:
		log.Warn("payout outcome unknown, left pending for resubmission", zap.Int("attempts", attempts), zap.Error(err))
		return tx, false, nil
	}
}

// submit calls SubmitPayout, retrying ErrUnavailable with exponential
// backoff. reached reports whether any attempt may have reached the provider.
func (s *Service) submit(ctx context.Context, tx *ledger.Transaction) (p *gateway.Payout, attempts int, reached bool, err error) {
	token := tx.IdempotencyKey
	if token == "" {
		token = ledger.PayoutToken(tx.ID)
	}
	req := gateway.PayoutRequest{BatchID: token, Recipient: tx.Counterparty, Amount: tx.Magnitude(), Currency: s.cfg.Currency}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.RetryInitial
	b.MaxInterval = s.cfg.RetryMax
	b.MaxElapsedTime = 0

	err = backoff.Retry(func() error {
		attempts++
		out, err := s.gateway.SubmitPayout(ctx, req)
		if err != nil && s.metrics != nil {
			s.metrics.GatewayErrors.WithLabelValues(string(gateway.OpSubmitPayout), gateway.Code(err)).Inc()
		}
		switch {
		case err == nil:
			p = out
			return nil
		case errors.Is(err, gateway.ErrCircuitOpen):
			return backoff.Permanent(err)
		case gateway.IsUnavailable(err):
			reached = true
			return err
		default:
			reached = true
			return backoff.Permanent(err)
		}
	}, backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.cfg.SubmitRetries)), ctx))
	return p, attempts, reached, err
}

func (s *Service) compensate(ctx context.Context, log *zap.Logger, tx *ledger.Transaction, cause error) (*ledger.Transaction, error) {
	updated, released, err := s.store.ReleasePayout(ctx, tx.ID)
	if err != nil {
		log.Error("compensation failed", zap.Error(err))
		if s.recovery != nil {
			s.recovery.Escalate(ctx, recovery.Case{
				TransactionID: tx.ID,
				AccountID:     tx.AccountID,
				ExternalRef:   tx.ExternalRef,
				Action:        recovery.ActionCompensation,
				Reason:        fmt.Sprintf("release after %v: %v", cause, err),
			})
		}
		return nil, err
	}
	if released {
		s.publish(ctx, events.PayoutFailed{
			TransactionID: tx.ID,
			AccountID:     tx.AccountID,
			PayoutBatchID: tx.ExternalRef,
			Amount:        tx.Magnitude(),
			Reason:        cause.Error(),
			ErrorCode:     gateway.Code(cause),
			At:            s.now().UTC(),
		})
		if s.metrics != nil {
			s.metrics.PayoutsFailed.Inc()
			s.metrics.PayoutCompensations.Inc()
		}
	}
	return updated, nil
}

func (s *Service) escalateExpired(ctx context.Context, tx *ledger.Transaction, age time.Duration) bool {
	reason := fmt.Sprintf("not accepted by the gateway after %s", age.Round(time.Second))
	if _, err := s.store.MarkStuck(ctx, tx.ID); err != nil {
		s.logger.Error("mark stuck failed", zap.String("method", "escalateExpired"), zap.String("transaction_id", tx.ID), zap.Error(err))
	}
	if s.recovery == nil || !s.recovery.Escalate(ctx, recovery.Case{
		TransactionID: tx.ID,
		AccountID:     tx.AccountID,
		Action:        recovery.ActionResubmitExpired,
		Reason:        reason,
	}) {
		return false
	}
	s.publish(ctx, events.PayoutStuck{TransactionID: tx.ID, AccountID: tx.AccountID, Reason: reason, At: s.now().UTC()})
	if s.metrics != nil {
		s.metrics.PayoutsStuck.Inc()
	}
	return true
}

func (s *Service) publish(ctx context.Context, evt broker.Event) {
	if s.bus != nil {
		s.bus.Publish(ctx, evt)
	}
}
