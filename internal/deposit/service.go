package deposit

import (
	"context"
	"errors"
	"fmt"
	"strings"
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

var (
	ErrForeignOrder = errors.New("order belongs to another account")

	errNotSettled = errors.New("order not settled yet")
)

const (
	settleWaitStep    = 50 * time.Millisecond
	settleWaitRetries = 4
)

type Service struct {
	store    StoreContract
	gateway  GatewayContract
	bus      PublisherContract
	recovery RecoveryContract
	metrics  *observability.Metrics
	logger   *zap.Logger
	currency string
}

func NewService(store StoreContract, gw GatewayContract, bus PublisherContract, rec RecoveryContract, metrics *observability.Metrics, logger *zap.Logger, currency string) *Service {
	if currency == "" {
		currency = "USD"
	}
	return &Service{
		store:    store,
		gateway:  gw,
		bus:      bus,
		recovery: rec,
		metrics:  metrics,
		logger:   observability.Component(logger, "service", "deposit"),
		currency: currency,
	}
}

// InitiateDeposit creates a gateway order for amount. Nothing is credited
// until the order is captured.
func (s *Service) InitiateDeposit(ctx context.Context, accountID string, amount int64) (*Initiated, error) {
	log := s.logger.With(zap.String("method", "InitiateDeposit"), zap.String("account_id", accountID), zap.Int64("amount", amount))

	if amount <= 0 {
		return nil, errors.Join(db.ErrInvalid, errors.New("amount must be positive"))
	}
	if _, err := s.store.GetAccount(ctx, accountID); err != nil {
		log.Info("account lookup failed", zap.Error(err))
		return nil, err
	}

	order, err := s.gateway.CreateOrder(ctx, amount, s.currency)
	if err != nil {
		s.gatewayError(gateway.OpCreateOrder, err)
		log.Error("create order failed", zap.Error(err))
		return nil, err
	}

	s.publish(ctx, events.DepositInitiated{OrderID: order.ID, AccountID: accountID, Amount: amount, At: time.Now().UTC()})
	if s.metrics != nil {
		s.metrics.DepositsInitiated.Inc()
	}
	log.Info("order created", zap.String("order_id", order.ID))
	return &Initiated{OrderID: order.ID, ApprovalURL: order.ApprovalURL, Amount: amount}, nil
}

// CompleteDeposit captures orderID and credits accountID with the captured
// amount. Repeating the call for a settled order credits nothing and returns
// the original transaction with AlreadyCaptured set.
func (s *Service) CompleteDeposit(ctx context.Context, orderID, accountID string) (*Result, error) {
	log := s.logger.With(zap.String("method", "CompleteDeposit"), zap.String("order_id", orderID), zap.String("account_id", accountID))

	if orderID == "" {
		return nil, errors.Join(db.ErrInvalid, errors.New("order_id is required"))
	}
	if _, err := s.store.GetAccount(ctx, accountID); err != nil {
		log.Info("account lookup failed", zap.Error(err))
		return nil, err
	}

	if res, err := s.replay(ctx, orderID, accountID); err != nil || res != nil {
		return res, err
	}

	capture, err := s.gateway.CaptureOrder(ctx, orderID)
	// the provider has settled funds from here on, so finish regardless of
	// the caller going away
	ctx = context.WithoutCancel(ctx)
	switch {
	case gateway.IsAlreadyCaptured(err):
		return s.alreadyCaptured(ctx, log, orderID, accountID)
	case err != nil:
		s.gatewayError(gateway.OpCaptureOrder, err)
		log.Error("capture failed", zap.Error(err))
		return nil, err
	}

	if reason := s.uncreditable(capture); reason != "" {
		log.Error("capture cannot be credited", zap.String("reason", reason))
		s.escalate(ctx, recovery.Case{
			AccountID:   accountID,
			ExternalRef: orderID,
			Action:      recovery.ActionOrphanCapture,
			Reason:      reason,
		})
		return nil, errors.Join(db.ErrInternal, errors.New(reason))
	}

	tx := &ledger.Transaction{
		ID:          ledger.NewID(),
		AccountID:   accountID,
		Type:        ledger.TypeDeposit,
		Amount:      capture.Amount,
		Description: Description,
		Status:      ledger.StatusCompleted,
		ExternalRef: orderID,
	}
	err = s.store.SettleDeposit(ctx, tx)
	switch {
	case db.IsConflict(err):
		return s.alreadyCaptured(ctx, log, orderID, accountID)
	case err != nil:
		log.Error("settle failed after capture", zap.Int64("amount", capture.Amount), zap.Error(err))
		s.escalate(ctx, recovery.Case{
			AccountID:   accountID,
			ExternalRef: orderID,
			Action:      recovery.ActionOrphanCapture,
			Reason:      fmt.Sprintf("captured %d %s as %s but ledger settle failed: %v", capture.Amount, capture.Currency, capture.CaptureID, err),
		})
		return nil, err
	}

	acc, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		log.Error("balance lookup failed", zap.Error(err))
		return nil, err
	}

	s.publish(ctx, events.DepositCompleted{TransactionID: tx.ID, OrderID: orderID, AccountID: accountID, Amount: tx.Amount, At: time.Now().UTC()})
	if s.metrics != nil {
		s.metrics.DepositsCompleted.Inc()
	}
	log.Info("deposit settled", zap.String("transaction_id", tx.ID), zap.Int64("amount", tx.Amount))
	return &Result{Transaction: tx, Balance: acc.Balance}, nil
}

// uncreditable explains why c cannot be credited to the ledger as is.
func (s *Service) uncreditable(c *gateway.Capture) string {
	switch {
	case c.Amount <= 0:
		return fmt.Sprintf("capture %s reported amount %d", c.CaptureID, c.Amount)
	case !strings.EqualFold(c.Currency, s.currency):
		return fmt.Sprintf("capture %s settled in %q but the ledger keeps %s", c.CaptureID, c.Currency, s.currency)
	}
	return ""
}

// replay answers from the ledger when orderID was already settled.
func (s *Service) replay(ctx context.Context, orderID, accountID string) (*Result, error) {
	tx, err := s.store.GetTransactionByExternalRef(ctx, orderID)
	switch {
	case db.IsNotFound(err):
		return nil, nil
	case err != nil:
		return nil, err
	}
	if tx.AccountID != accountID || tx.Type != ledger.TypeDeposit {
		return nil, errors.Join(db.ErrNotFound, ErrForeignOrder)
	}
	acc, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.DepositsReplayed.Inc()
	}
	return &Result{Transaction: tx, Balance: acc.Balance, AlreadyCaptured: true}, nil
}

func (s *Service) alreadyCaptured(ctx context.Context, log *zap.Logger, orderID, accountID string) (*Result, error) {
	// a concurrent call for the same order may still be settling
	var res *Result
	err := backoff.Retry(func() error {
		var err error
		res, err = s.replay(ctx, orderID, accountID)
		switch {
		case err != nil:
			return backoff.Permanent(err)
		case res == nil:
			return errNotSettled
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(settleWaitStep), settleWaitRetries), ctx))
	if err != nil && !errors.Is(err, errNotSettled) {
		return nil, err
	}
	if res != nil {
		log.Info("order already captured", zap.String("transaction_id", res.Transaction.ID))
		return res, nil
	}

	log.Warn("order captured without a ledger record")
	s.escalate(ctx, recovery.Case{
		AccountID:   accountID,
		ExternalRef: orderID,
		Action:      recovery.ActionOrphanCapture,
		Reason:      "gateway reports the order captured but the ledger has no deposit for it",
	})
	acc, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return &Result{Balance: acc.Balance, AlreadyCaptured: true}, nil
}

func (s *Service) escalate(ctx context.Context, c recovery.Case) {
	if s.recovery != nil {
		s.recovery.Escalate(ctx, c)
	}
}

func (s *Service) publish(ctx context.Context, evt broker.Event) {
	if s.bus != nil {
		s.bus.Publish(ctx, evt)
	}
}

func (s *Service) gatewayError(op gateway.Operation, err error) {
	if s.metrics != nil {
		s.metrics.GatewayErrors.WithLabelValues(string(op), gateway.Code(err)).Inc()
	}
}
