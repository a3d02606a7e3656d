package ledger

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"payrecon/kit/db"
)

const (
	qPgOpenAccount = `INSERT INTO accounts (id, balance, created_at, updated_at) VALUES ($1, 0, $2, $2)
		ON CONFLICT (id) DO NOTHING`
	qPgGetAccount     = "SELECT id, balance, created_at, updated_at FROM accounts WHERE id = $1"
	qPgLockBalance    = "SELECT balance FROM accounts WHERE id = $1 FOR UPDATE"
	qPgCredit         = "UPDATE accounts SET balance = balance + $1, updated_at = $2 WHERE id = $3"
	qPgDebit          = "UPDATE accounts SET balance = balance - $1, updated_at = $2 WHERE id = $3"
	qPgTxColumns      = "id, account_id, type, amount, counterparty, description, status, external_ref, idempotency_key, created_at, updated_at, stuck_at"
	qPgInsertTx       = `INSERT INTO transactions
		(id, account_id, type, amount, counterparty, description, status, external_ref, idempotency_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	qPgGetTx          = "SELECT " + qPgTxColumns + " FROM transactions WHERE id = $1"
	qPgGetTxForUpdate = "SELECT " + qPgTxColumns + " FROM transactions WHERE id = $1 FOR UPDATE"
	qPgGetTxByRef     = "SELECT " + qPgTxColumns + " FROM transactions WHERE external_ref = $1"
	qPgLockTxByRef    = "SELECT " + qPgTxColumns + " FROM transactions WHERE external_ref = $1 FOR UPDATE"
	qPgSetStatus      = "UPDATE transactions SET status = $1, updated_at = $2 WHERE id = $3"
	qPgSetRef         = "UPDATE transactions SET external_ref = $1, updated_at = $2 WHERE id = $3"
	qPgSetStuck       = "UPDATE transactions SET stuck_at = $1, updated_at = $1 WHERE id = $2"
	qPgListFirst      = "SELECT " + qPgTxColumns + " FROM transactions WHERE account_id = $1 ORDER BY id DESC LIMIT $2"
	qPgListBefore     = "SELECT " + qPgTxColumns + " FROM transactions WHERE account_id = $1 AND id < $2 ORDER BY id DESC LIMIT $3"
	qPgListPending    = "SELECT " + qPgTxColumns + " FROM transactions WHERE status = 'pending' AND type = $1 AND created_at < $2 ORDER BY id"
)

// PostgresStore is the networked SQL backend. Balance checks lock the account
// row with SELECT ... FOR UPDATE for the duration of the transaction.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore connects to dsn and applies pending migrations.
func NewPostgresStore(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pool, err := db.OpenPostgres(ctx, dsn)
	if err != nil {
		return nil, err
	}
	sqlDB := stdlib.OpenDBFromPool(pool)
	if err := db.MigratePostgres(sqlDB, postgresMigrations, postgresMigrationsDir); err != nil {
		_ = sqlDB.Close()
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &PostgresStore{
		pool:   pool,
		logger: logger.With(zap.String("layer", "repo"), zap.String("component", "ledger"), zap.String("repo", "PostgresStore")),
	}, nil
}

func (s *PostgresStore) OpenAccount(ctx context.Context, accountID string) (*Account, error) {
	if accountID == "" {
		return nil, errors.Join(db.ErrInvalid, ErrInvalidRequest)
	}
	if _, err := s.pool.Exec(ctx, qPgOpenAccount, accountID, now()); err != nil {
		s.logger.Error("open account failed", zap.String("method", "OpenAccount"), zap.String("account_id", accountID), zap.Error(err))
		return nil, db.PostgresError(err)
	}
	return s.GetAccount(ctx, accountID)
}

func (s *PostgresStore) GetAccount(ctx context.Context, accountID string) (*Account, error) {
	var acc Account
	err := s.pool.QueryRow(ctx, qPgGetAccount, accountID).Scan(&acc.ID, &acc.Balance, &acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: account %s", db.ErrNotFound, accountID)
		}
		s.logger.Error("get account failed", zap.String("method", "GetAccount"), zap.String("account_id", accountID), zap.Error(err))
		return nil, db.PostgresError(err)
	}
	return &acc, nil
}

func (s *PostgresStore) Credit(ctx context.Context, accountID string, amount int64) error {
	if err := validateAmount(accountID, amount); err != nil {
		return err
	}
	return s.credit(ctx, s.pool, accountID, amount)
}

func (s *PostgresStore) Debit(ctx context.Context, accountID string, amount int64) error {
	if err := validateAmount(accountID, amount); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx pgx.Tx) error {
		return s.debit(ctx, tx, accountID, amount)
	})
}

func (s *PostgresStore) RecordTransaction(ctx context.Context, t *Transaction) error {
	if err := ValidateTransaction(t); err != nil {
		return err
	}
	return s.insert(ctx, s.pool, t)
}

func (s *PostgresStore) GetTransaction(ctx context.Context, txID string) (*Transaction, error) {
	return s.getTx(ctx, s.pool, qPgGetTx, txID)
}

func (s *PostgresStore) GetTransactionByExternalRef(ctx context.Context, externalRef string) (*Transaction, error) {
	if externalRef == "" {
		return nil, fmt.Errorf("%w: empty external ref", db.ErrNotFound)
	}
	return s.getTx(ctx, s.pool, qPgGetTxByRef, externalRef)
}

func (s *PostgresStore) UpdateTransactionStatus(ctx context.Context, externalRef string, status Status) (*Transaction, error) {
	if externalRef == "" {
		return nil, fmt.Errorf("%w: empty external ref", db.ErrNotFound)
	}
	var out *Transaction
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		t, err := s.getTx(ctx, tx, qPgLockTxByRef, externalRef)
		if err != nil {
			return err
		}
		changed, err := nextStatus(t.Status, status)
		if err != nil {
			return err
		}
		if changed {
			t.Status = status
			t.UpdatedAt = now()
			if _, err := tx.Exec(ctx, qPgSetStatus, string(status), t.UpdatedAt, t.ID); err != nil {
				s.logger.Error("update status failed", zap.String("method", "UpdateTransactionStatus"), zap.String("external_ref", externalRef), zap.Error(err))
				return db.PostgresError(err)
			}
		}
		out = t
		return nil
	})
	return out, err
}

func (s *PostgresStore) ListTransactions(ctx context.Context, accountID string, limit int) iter.Seq2[*Transaction, error] {
	return paginate(ctx, limit, func(ctx context.Context, before string, n int) ([]*Transaction, error) {
		var (
			rows pgx.Rows
			err  error
		)
		if before == "" {
			rows, err = s.pool.Query(ctx, qPgListFirst, accountID, n)
		} else {
			rows, err = s.pool.Query(ctx, qPgListBefore, accountID, before, n)
		}
		if err != nil {
			s.logger.Error("list failed", zap.String("method", "ListTransactions"), zap.String("account_id", accountID), zap.Error(err))
			return nil, db.PostgresError(err)
		}
		return collectPgTx(rows)
	})
}

func (s *PostgresStore) ListPending(ctx context.Context, typ Type, olderThan time.Time) ([]*Transaction, error) {
	if olderThan.IsZero() {
		olderThan = now().Add(time.Hour)
	}
	rows, err := s.pool.Query(ctx, qPgListPending, string(typ), olderThan)
	if err != nil {
		s.logger.Error("list pending failed", zap.String("method", "ListPending"), zap.Error(err))
		return nil, db.PostgresError(err)
	}
	return collectPgTx(rows)
}

func (s *PostgresStore) ReservePayout(ctx context.Context, t *Transaction) error {
	if err := ValidateTransaction(t); err != nil {
		return err
	}
	if t.Type != TypePayout || t.Status != StatusPending {
		return errors.Join(db.ErrInvalid, errors.New("reserve requires a pending payout"))
	}
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if err := s.debit(ctx, tx, t.AccountID, t.Magnitude()); err != nil {
			return err
		}
		return s.insert(ctx, tx, t)
	})
}

func (s *PostgresStore) AttachExternalRef(ctx context.Context, txID, externalRef string) (*Transaction, error) {
	if txID == "" || externalRef == "" {
		return nil, errors.Join(db.ErrInvalid, ErrInvalidRequest)
	}
	var out *Transaction
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		t, err := s.getTx(ctx, tx, qPgGetTxForUpdate, txID)
		if err != nil {
			return err
		}
		if t.ExternalRef == externalRef {
			out = t
			return nil
		}
		if t.ExternalRef != "" {
			return fmt.Errorf("%w: transaction %s already has external ref %s", db.ErrConflict, txID, t.ExternalRef)
		}
		t.ExternalRef = externalRef
		t.UpdatedAt = now()
		if _, err := tx.Exec(ctx, qPgSetRef, externalRef, t.UpdatedAt, txID); err != nil {
			s.logger.Error("attach ref failed", zap.String("method", "AttachExternalRef"), zap.String("tx_id", txID), zap.Error(err))
			return db.PostgresError(err)
		}
		out = t
		return nil
	})
	return out, err
}

func (s *PostgresStore) ReleasePayout(ctx context.Context, txID string) (*Transaction, bool, error) {
	var (
		out      *Transaction
		released bool
	)
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		t, err := s.getTx(ctx, tx, qPgGetTxForUpdate, txID)
		if err != nil {
			return err
		}
		if t.Type != TypePayout {
			return errors.Join(db.ErrInvalid, fmt.Errorf("transaction %s is not a payout", txID))
		}
		changed, err := nextStatus(t.Status, StatusFailed)
		if err != nil {
			return err
		}
		if changed {
			t.Status = StatusFailed
			t.UpdatedAt = now()
			if _, err := tx.Exec(ctx, qPgSetStatus, string(t.Status), t.UpdatedAt, t.ID); err != nil {
				s.logger.Error("release failed", zap.String("method", "ReleasePayout"), zap.String("tx_id", txID), zap.Error(err))
				return db.PostgresError(err)
			}
			if err := s.credit(ctx, tx, t.AccountID, t.Magnitude()); err != nil {
				return err
			}
			released = true
		}
		out = t
		return nil
	})
	return out, released, err
}

func (s *PostgresStore) MarkStuck(ctx context.Context, txID string) (*Transaction, error) {
	var out *Transaction
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		t, err := s.getTx(ctx, tx, qPgGetTxForUpdate, txID)
		if err != nil {
			return err
		}
		if !t.Stuck() && !t.Status.Terminal() {
			ts := now()
			t.StuckAt = &ts
			t.UpdatedAt = ts
			if _, err := tx.Exec(ctx, qPgSetStuck, ts, txID); err != nil {
				s.logger.Error("mark stuck failed", zap.String("method", "MarkStuck"), zap.String("tx_id", txID), zap.Error(err))
				return db.PostgresError(err)
			}
		}
		out = t
		return nil
	})
	return out, err
}

func (s *PostgresStore) SettleDeposit(ctx context.Context, t *Transaction) error {
	if err := ValidateTransaction(t); err != nil {
		return err
	}
	if t.Type != TypeDeposit || t.Status != StatusCompleted || t.ExternalRef == "" {
		return errors.Join(db.ErrInvalid, errors.New("settle requires a completed deposit with an external ref"))
	}
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if err := s.insert(ctx, tx, t); err != nil {
			return err
		}
		return s.credit(ctx, tx, t.AccountID, t.Amount)
	})
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return db.PostgresError(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		s.logger.Error("commit failed", zap.String("method", "inTx"), zap.Error(err))
		return db.PostgresError(err)
	}
	return nil
}

func (s *PostgresStore) credit(ctx context.Context, q pgQuerier, accountID string, amount int64) error {
	tag, err := q.Exec(ctx, qPgCredit, amount, now(), accountID)
	if err != nil {
		s.logger.Error("credit failed", zap.String("method", "credit"), zap.String("account_id", accountID), zap.Int64("amount", amount), zap.Error(err))
		return db.PostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: account %s", db.ErrNotFound, accountID)
	}
	return nil
}

// debit must run inside a transaction: the balance row stays locked until
// commit so concurrent reservations on the same account serialize.
func (s *PostgresStore) debit(ctx context.Context, tx pgx.Tx, accountID string, amount int64) error {
	var balance int64
	if err := tx.QueryRow(ctx, qPgLockBalance, accountID).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: account %s", db.ErrNotFound, accountID)
		}
		s.logger.Error("lock balance failed", zap.String("method", "debit"), zap.String("account_id", accountID), zap.Error(err))
		return db.PostgresError(err)
	}
	if balance < amount {
		return ErrInsufficientFunds
	}
	if _, err := tx.Exec(ctx, qPgDebit, amount, now(), accountID); err != nil {
		s.logger.Error("debit failed", zap.String("method", "debit"), zap.String("account_id", accountID), zap.Int64("amount", amount), zap.Error(err))
		return db.PostgresError(err)
	}
	return nil
}

func (s *PostgresStore) insert(ctx context.Context, q pgQuerier, t *Transaction) error {
	prepare(t)
	_, err := q.Exec(ctx, qPgInsertTx,
		t.ID, t.AccountID, string(t.Type), t.Amount, t.Counterparty, t.Description, string(t.Status),
		nullable(t.ExternalRef), nullable(t.IdempotencyKey), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		mapped := db.PostgresError(err)
		if !db.IsConflict(mapped) && !db.IsNotFound(mapped) {
			s.logger.Error("insert failed", zap.String("method", "insert"), zap.String("tx_id", t.ID), zap.Error(err))
		}
		return mapped
	}
	return nil
}

func (s *PostgresStore) getTx(ctx context.Context, q pgQuerier, query string, arg string) (*Transaction, error) {
	t, err := scanPgTx(q.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: transaction %s", db.ErrNotFound, arg)
		}
		s.logger.Error("get transaction failed", zap.String("method", "getTx"), zap.String("key", arg), zap.Error(err))
		return nil, db.PostgresError(err)
	}
	return t, nil
}

func scanPgTx(row pgx.Row) (*Transaction, error) {
	var (
		t         Transaction
		typ, st   string
		ref, ikey *string
		stuck     *time.Time
	)
	if err := row.Scan(&t.ID, &t.AccountID, &typ, &t.Amount, &t.Counterparty, &t.Description, &st, &ref, &ikey, &t.CreatedAt, &t.UpdatedAt, &stuck); err != nil {
		return nil, err
	}
	t.Type = Type(typ)
	t.Status = Status(st)
	if ref != nil {
		t.ExternalRef = *ref
	}
	if ikey != nil {
		t.IdempotencyKey = *ikey
	}
	if stuck != nil {
		at := stuck.UTC()
		t.StuckAt = &at
	}
	return &t, nil
}

func collectPgTx(rows pgx.Rows) ([]*Transaction, error) {
	defer rows.Close()
	var out []*Transaction
	for rows.Next() {
		t, err := scanPgTx(rows)
		if err != nil {
			return nil, db.PostgresError(err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, db.PostgresError(err)
	}
	return out, nil
}
