package ledger

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"payrecon/kit/db"
)

// MemoryStore keeps the ledger in process memory. When created with
// NewFileStore every mutation is also written to a JSON snapshot before the
// call returns.
type MemoryStore struct {
	mu     sync.Mutex
	path   string
	logger *zap.Logger

	accounts map[string]*Account
	txs      map[string]*Transaction
	byRef    map[string]string
	byKey    map[string]string
}

type memorySnapshot struct {
	Accounts     map[string]*Account     `json:"accounts"`
	Transactions map[string]*Transaction `json:"transactions"`
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		logger:   zap.NewNop(),
		accounts: make(map[string]*Account),
		txs:      make(map[string]*Transaction),
		byRef:    make(map[string]string),
		byKey:    make(map[string]string),
	}
}

func NewFileStore(path string, logger *zap.Logger) (*MemoryStore, error) {
	s := NewMemoryStore()
	s.path = path
	if logger != nil {
		s.logger = logger.With(zap.String("layer", "repo"), zap.String("component", "ledger"), zap.String("repo", "FileStore"))
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		s.logger.Error("mkdir failed", zap.String("method", "NewFileStore"), zap.String("path", path), zap.Error(err))
		return nil, errors.Join(db.ErrInternal, err)
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MemoryStore) OpenAccount(ctx context.Context, accountID string) (*Account, error) {
	if accountID == "" {
		return nil, errors.Join(db.ErrInvalid, ErrInvalidRequest)
	}
	if acc, err := s.GetAccount(ctx, accountID); err == nil {
		return acc, nil
	}
	var out Account
	err := s.write(func() error {
		acc, ok := s.accounts[accountID]
		if !ok {
			ts := now()
			acc = &Account{ID: accountID, CreatedAt: ts, UpdatedAt: ts}
			s.accounts[accountID] = acc
		}
		out = *acc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *MemoryStore) GetAccount(ctx context.Context, accountID string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("%w: account %s", db.ErrNotFound, accountID)
	}
	out := *acc
	return &out, nil
}

func (s *MemoryStore) Credit(ctx context.Context, accountID string, amount int64) error {
	if err := validateAmount(accountID, amount); err != nil {
		return err
	}
	return s.write(func() error {
		acc, err := s.accountLocked(accountID)
		if err != nil {
			return err
		}
		acc.Balance += amount
		acc.UpdatedAt = now()
		return nil
	})
}

func (s *MemoryStore) Debit(ctx context.Context, accountID string, amount int64) error {
	if err := validateAmount(accountID, amount); err != nil {
		return err
	}
	return s.write(func() error {
		acc, err := s.accountLocked(accountID)
		if err != nil {
			return err
		}
		if acc.Balance < amount {
			return ErrInsufficientFunds
		}
		acc.Balance -= amount
		acc.UpdatedAt = now()
		return nil
	})
}

func (s *MemoryStore) RecordTransaction(ctx context.Context, tx *Transaction) error {
	if err := ValidateTransaction(tx); err != nil {
		return err
	}
	return s.write(func() error {
		if _, err := s.accountLocked(tx.AccountID); err != nil {
			return err
		}
		return s.insertLocked(tx)
	})
}

func (s *MemoryStore) GetTransaction(ctx context.Context, txID string) (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.txs[txID]
	if !ok {
		return nil, fmt.Errorf("%w: transaction %s", db.ErrNotFound, txID)
	}
	return tx.clone(), nil
}

func (s *MemoryStore) GetTransactionByExternalRef(ctx context.Context, externalRef string) (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.byRefLocked(externalRef)
	if err != nil {
		return nil, err
	}
	return tx.clone(), nil
}

func (s *MemoryStore) UpdateTransactionStatus(ctx context.Context, externalRef string, status Status) (*Transaction, error) {
	var out *Transaction
	err := s.write(func() error {
		tx, err := s.byRefLocked(externalRef)
		if err != nil {
			return err
		}
		changed, err := nextStatus(tx.Status, status)
		if err != nil {
			return err
		}
		if changed {
			tx.Status = status
			tx.UpdatedAt = now()
		}
		out = tx.clone()
		return nil
	})
	return out, err
}

func (s *MemoryStore) ListTransactions(ctx context.Context, accountID string, limit int) iter.Seq2[*Transaction, error] {
	return paginate(ctx, limit, func(ctx context.Context, before string, n int) ([]*Transaction, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		var page []*Transaction
		for _, tx := range s.txs {
			if tx.AccountID != accountID || (before != "" && tx.ID >= before) {
				continue
			}
			page = append(page, tx)
		}
		slices.SortFunc(page, func(a, b *Transaction) int { return cmp.Compare(b.ID, a.ID) })
		if len(page) > n {
			page = page[:n]
		}
		out := make([]*Transaction, len(page))
		for i, tx := range page {
			out[i] = tx.clone()
		}
		return out, nil
	})
}

func (s *MemoryStore) ListPending(ctx context.Context, typ Type, olderThan time.Time) ([]*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Transaction
	for _, tx := range s.txs {
		if tx.Status != StatusPending || tx.Type != typ {
			continue
		}
		if !olderThan.IsZero() && !tx.CreatedAt.Before(olderThan) {
			continue
		}
		out = append(out, tx.clone())
	}
	slices.SortFunc(out, func(a, b *Transaction) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (s *MemoryStore) ReservePayout(ctx context.Context, tx *Transaction) error {
	if err := ValidateTransaction(tx); err != nil {
		return err
	}
	if tx.Type != TypePayout || tx.Status != StatusPending {
		return errors.Join(db.ErrInvalid, errors.New("reserve requires a pending payout"))
	}
	return s.write(func() error {
		acc, err := s.accountLocked(tx.AccountID)
		if err != nil {
			return err
		}
		amount := tx.Magnitude()
		if acc.Balance < amount {
			return ErrInsufficientFunds
		}
		if err := s.insertLocked(tx); err != nil {
			return err
		}
		acc.Balance -= amount
		acc.UpdatedAt = now()
		return nil
	})
}

func (s *MemoryStore) AttachExternalRef(ctx context.Context, txID, externalRef string) (*Transaction, error) {
	if txID == "" || externalRef == "" {
		return nil, errors.Join(db.ErrInvalid, ErrInvalidRequest)
	}
	var out *Transaction
	err := s.write(func() error {
		tx, ok := s.txs[txID]
		if !ok {
			return fmt.Errorf("%w: transaction %s", db.ErrNotFound, txID)
		}
		if tx.ExternalRef == externalRef {
			out = tx.clone()
			return nil
		}
		if tx.ExternalRef != "" {
			return fmt.Errorf("%w: transaction %s already has external ref %s", db.ErrConflict, txID, tx.ExternalRef)
		}
		if _, taken := s.byRef[externalRef]; taken {
			return fmt.Errorf("%w: external ref %s", db.ErrConflict, externalRef)
		}
		tx.ExternalRef = externalRef
		tx.UpdatedAt = now()
		s.byRef[externalRef] = tx.ID
		out = tx.clone()
		return nil
	})
	return out, err
}

func (s *MemoryStore) ReleasePayout(ctx context.Context, txID string) (*Transaction, bool, error) {
	var (
		out      *Transaction
		released bool
	)
	err := s.write(func() error {
		tx, ok := s.txs[txID]
		if !ok {
			return fmt.Errorf("%w: transaction %s", db.ErrNotFound, txID)
		}
		if tx.Type != TypePayout {
			return errors.Join(db.ErrInvalid, fmt.Errorf("transaction %s is not a payout", txID))
		}
		changed, err := nextStatus(tx.Status, StatusFailed)
		if err != nil {
			return err
		}
		if changed {
			acc, err := s.accountLocked(tx.AccountID)
			if err != nil {
				return err
			}
			ts := now()
			acc.Balance += tx.Magnitude()
			acc.UpdatedAt = ts
			tx.Status = StatusFailed
			tx.UpdatedAt = ts
			released = true
		}
		out = tx.clone()
		return nil
	})
	return out, released, err
}

func (s *MemoryStore) MarkStuck(ctx context.Context, txID string) (*Transaction, error) {
	s.mu.Lock()
	tx, ok := s.txs[txID]
	if ok && (tx.Stuck() || tx.Status.Terminal()) {
		out := tx.clone()
		s.mu.Unlock()
		return out, nil
	}
	s.mu.Unlock()

	var out *Transaction
	err := s.write(func() error {
		tx, ok := s.txs[txID]
		if !ok {
			return fmt.Errorf("%w: transaction %s", db.ErrNotFound, txID)
		}
		if !tx.Stuck() && !tx.Status.Terminal() {
			ts := now()
			tx.StuckAt = &ts
			tx.UpdatedAt = ts
		}
		out = tx.clone()
		return nil
	})
	return out, err
}

func (s *MemoryStore) SettleDeposit(ctx context.Context, tx *Transaction) error {
	if err := ValidateTransaction(tx); err != nil {
		return err
	}
	if tx.Type != TypeDeposit || tx.Status != StatusCompleted || tx.ExternalRef == "" {
		return errors.Join(db.ErrInvalid, errors.New("settle requires a completed deposit with an external ref"))
	}
	return s.write(func() error {
		acc, err := s.accountLocked(tx.AccountID)
		if err != nil {
			return err
		}
		if err := s.insertLocked(tx); err != nil {
			return err
		}
		acc.Balance += tx.Amount
		acc.UpdatedAt = now()
		return nil
	})
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) accountLocked(accountID string) (*Account, error) {
	acc, ok := s.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("%w: account %s", db.ErrNotFound, accountID)
	}
	return acc, nil
}

func (s *MemoryStore) byRefLocked(externalRef string) (*Transaction, error) {
	id, ok := s.byRef[externalRef]
	if !ok || externalRef == "" {
		return nil, fmt.Errorf("%w: external ref %s", db.ErrNotFound, externalRef)
	}
	return s.txs[id], nil
}

func (s *MemoryStore) insertLocked(tx *Transaction) error {
	prepare(tx)
	if _, dup := s.txs[tx.ID]; dup {
		return fmt.Errorf("%w: transaction %s", db.ErrConflict, tx.ID)
	}
	if tx.ExternalRef != "" {
		if _, dup := s.byRef[tx.ExternalRef]; dup {
			return fmt.Errorf("%w: external ref %s", db.ErrConflict, tx.ExternalRef)
		}
	}
	if tx.IdempotencyKey != "" {
		if _, dup := s.byKey[tx.IdempotencyKey]; dup {
			return fmt.Errorf("%w: idempotency key %s", db.ErrConflict, tx.IdempotencyKey)
		}
	}
	s.txs[tx.ID] = tx.clone()
	if tx.ExternalRef != "" {
		s.byRef[tx.ExternalRef] = tx.ID
	}
	if tx.IdempotencyKey != "" {
		s.byKey[tx.IdempotencyKey] = tx.ID
	}
	return nil
}

// write runs fn under the store lock. With a backing file the new state is
// persisted before returning, and restored in memory if persisting fails.
func (s *MemoryStore) write(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var before []byte
	if s.path != "" {
		b, err := s.marshalLocked()
		if err != nil {
			return err
		}
		before = b
	}
	if err := fn(); err != nil {
		return err
	}
	if s.path == "" {
		return nil
	}
	if err := s.persistLocked(); err != nil {
		if rerr := s.restoreLocked(before); rerr != nil {
			s.logger.Error("restore failed", zap.String("method", "write"), zap.String("path", s.path), zap.Error(rerr))
		}
		return err
	}
	return nil
}

func (s *MemoryStore) marshalLocked() ([]byte, error) {
	b, err := json.MarshalIndent(memorySnapshot{Accounts: s.accounts, Transactions: s.txs}, "", "  ")
	if err != nil {
		s.logger.Error("marshal failed", zap.String("method", "marshalLocked"), zap.String("path", s.path), zap.Error(err))
		return nil, errors.Join(db.ErrInternal, err)
	}
	return b, nil
}

func (s *MemoryStore) restoreLocked(b []byte) error {
	var snap memorySnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return errors.Join(db.ErrInternal, err)
	}
	s.accounts = make(map[string]*Account, len(snap.Accounts))
	s.txs = make(map[string]*Transaction, len(snap.Transactions))
	s.byRef = make(map[string]string)
	s.byKey = make(map[string]string)
	for id, acc := range snap.Accounts {
		s.accounts[id] = acc
	}
	for id, tx := range snap.Transactions {
		s.txs[id] = tx
		if tx.ExternalRef != "" {
			s.byRef[tx.ExternalRef] = id
		}
		if tx.IdempotencyKey != "" {
			s.byKey[tx.IdempotencyKey] = id
		}
	}
	return nil
}

func (s *MemoryStore) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return s.persistLocked()
		}
		s.logger.Error("read failed", zap.String("method", "load"), zap.String("path", s.path), zap.Error(err))
		return errors.Join(db.ErrInternal, err)
	}
	if len(b) == 0 {
		return nil
	}
	if err := s.restoreLocked(b); err != nil {
		s.logger.Error("decode failed", zap.String("method", "load"), zap.String("path", s.path), zap.Error(err))
		return err
	}
	return nil
}

func (s *MemoryStore) persistLocked() error {
	b, err := s.marshalLocked()
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		s.logger.Error("write failed", zap.String("method", "persistLocked"), zap.String("path", s.path), zap.Error(err))
		return errors.Join(db.ErrInternal, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.logger.Error("rename failed", zap.String("method", "persistLocked"), zap.String("path", s.path), zap.Error(err))
		return errors.Join(db.ErrInternal, err)
	}
	return nil
}
