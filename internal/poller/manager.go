package poller

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"payrecon/internal/ledger"
	"payrecon/kit/observability"
)

// Manager runs at most one poll per external ref in this process, each on its
// own goroutine.
type Manager struct {
	runner  Runner
	locker  Locker
	lockTTL time.Duration
	metrics *observability.Metrics
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	inflight map[string]struct{}
	closed   bool
}

func NewManager(runner Runner, locker Locker, lockTTL time.Duration, metrics *observability.Metrics, logger *zap.Logger) *Manager {
	if locker == nil {
		locker = LocalLocker{}
	}
	if lockTTL <= 0 {
		lockTTL = time.Hour
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		runner:   runner,
		locker:   locker,
		lockTTL:  lockTTL,
		metrics:  metrics,
		logger:   observability.Component(logger, "service", "poller_manager"),
		ctx:      ctx,
		cancel:   cancel,
		inflight: make(map[string]struct{}),
	}
}

// Track starts polling tx unless a poll for its external ref is already
// running here. It reports whether a new poll was started.
func (m *Manager) Track(tx *ledger.Transaction) bool {
	if tx == nil || tx.ExternalRef == "" {
		return false
	}
	ref := tx.ExternalRef

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	if _, ok := m.inflight[ref]; ok {
		m.mu.Unlock()
		return false
	}
	m.inflight[ref] = struct{}{}
	m.wg.Add(1)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.PollersActive.Inc()
	}
	snapshot := *tx
	go m.run(&snapshot)
	return true
}

func (m *Manager) run(tx *ledger.Transaction) {
	log := m.logger.With(zap.String("method", "run"), zap.String("transaction_id", tx.ID), zap.String("payout_batch_id", tx.ExternalRef))
	defer func() {
		if r := recover(); r != nil {
			log.Error("poll panic", zap.Any("panic", r))
		}
		m.mu.Lock()
		delete(m.inflight, tx.ExternalRef)
		m.mu.Unlock()
		if m.metrics != nil {
			m.metrics.PollersActive.Dec()
		}
		m.wg.Done()
	}()

	release, ok, err := m.locker.Acquire(m.ctx, "poll:"+tx.ExternalRef, m.lockTTL)
	switch {
	case err != nil:
		// the lock only avoids duplicate work; every transition is idempotent
		log.Warn("lock unavailable, polling anyway", zap.Error(err))
	case !ok:
		log.Info("payout polled by another process")
		return
	default:
		defer release()
	}

	outcome, err := m.runner.Run(m.ctx, tx)
	if err != nil && outcome != OutcomeCanceled {
		log.Error("poll ended with error", zap.String("outcome", string(outcome)), zap.Error(err))
		return
	}
	log.Info("poll finished", zap.String("outcome", string(outcome)))
}

func (m *Manager) InFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inflight)
}

// Wait blocks until every running poll has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Shutdown cancels running polls and waits for them, or for ctx. Canceled
// payouts stay pending and are picked up by the next recovery sweep.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
