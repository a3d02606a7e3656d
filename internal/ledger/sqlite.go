package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"time"

	"go.uber.org/zap"

	"payrecon/kit/db"
)

const (
	qSQLiteOpenAccount = `INSERT INTO accounts (id, balance, created_at, updated_at) VALUES (?, 0, ?, ?)
		ON CONFLICT (id) DO NOTHING`
	qSQLiteGetAccount = "SELECT id, balance, created_at, updated_at FROM accounts WHERE id = ?"
	qSQLiteCredit     = "UPDATE accounts SET balance = balance + ?, updated_at = ? WHERE id = ?"
	qSQLiteDebit      = "UPDATE accounts SET balance = balance - ?, updated_at = ? WHERE id = ? AND balance >= ?"
	qSQLiteInsertTx   = `INSERT INTO transactions
		(id, account_id, type, amount, counterparty, description, status, external_ref, idempotency_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	qSQLiteTxColumns   = "id, account_id, type, amount, counterparty, description, status, external_ref, idempotency_key, created_at, updated_at, stuck_at"
	qSQLiteGetTx       = "SELECT " + qSQLiteTxColumns + " FROM transactions WHERE id = ?"
	qSQLiteGetTxByRef  = "SELECT " + qSQLiteTxColumns + " FROM transactions WHERE external_ref = ?"
	qSQLiteSetStatus   = "UPDATE transactions SET status = ?, updated_at = ? WHERE id = ?"
	qSQLiteSetRef      = "UPDATE transactions SET external_ref = ?, updated_at = ? WHERE id = ? AND external_ref IS NULL"
	qSQLiteSetStuck    = "UPDATE transactions SET stuck_at = ?, updated_at = ? WHERE id = ?"
	qSQLiteListFirst   = "SELECT " + qSQLiteTxColumns + " FROM transactions WHERE account_id = ? ORDER BY id DESC LIMIT ?"
	qSQLiteListBefore  = "SELECT " + qSQLiteTxColumns + " FROM transactions WHERE account_id = ? AND id < ? ORDER BY id DESC LIMIT ?"
	qSQLiteListPending = "SELECT " + qSQLiteTxColumns + " FROM transactions WHERE status = 'pending' AND type = ? AND created_at < ? ORDER BY id"
)

type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// SQLiteStore is the embedded SQL backend. Write transactions take the
// database write lock up front, which serializes every check-and-debit.
type SQLiteStore struct {
	conn   *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore opens the database at path and applies pending migrations.
func NewSQLiteStore(ctx context.Context, path string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := db.OpenSQLite(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateSQLite(conn, sqliteMigrations, sqliteMigrationsDir); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &SQLiteStore{
		conn:   conn,
		logger: logger.With(zap.String("layer", "repo"), zap.String("component", "ledger"), zap.String("repo", "SQLiteStore")),
	}, nil
}

func (s *SQLiteStore) OpenAccount(ctx context.Context, accountID string) (*Account, error) {
	if accountID == "" {
		return nil, errors.Join(db.ErrInvalid, ErrInvalidRequest)
	}
	ts := now()
	if _, err := s.conn.ExecContext(ctx, qSQLiteOpenAccount, accountID, ts, ts); err != nil {
		s.logger.Error("open account failed", zap.String("method", "OpenAccount"), zap.String("account_id", accountID), zap.Error(err))
		return nil, db.SQLiteError(err)
	}
	return s.GetAccount(ctx, accountID)
}

func (s *SQLiteStore) GetAccount(ctx context.Context, accountID string) (*Account, error) {
	return s.getAccount(ctx, s.conn, accountID)
}

func (s *SQLiteStore) Credit(ctx context.Context, accountID string, amount int64) error {
	if err := validateAmount(accountID, amount); err != nil {
		return err
	}
	return s.credit(ctx, s.conn, accountID, amount)
}

func (s *SQLiteStore) Debit(ctx context.Context, accountID string, amount int64) error {
	if err := validateAmount(accountID, amount); err != nil {
		return err
	}
	return db.WithTx(ctx, s.conn, func(tx *sql.Tx) error {
		return s.debit(ctx, tx, accountID, amount)
	})
}

func (s *SQLiteStore) RecordTransaction(ctx context.Context, t *Transaction) error {
	if err := ValidateTransaction(t); err != nil {
		return err
	}
	return s.insert(ctx, s.conn, t)
}

func (s *SQLiteStore) GetTransaction(ctx context.Context, txID string) (*Transaction, error) {
	return s.getTx(ctx, s.conn, qSQLiteGetTx, txID)
}

func (s *SQLiteStore) GetTransactionByExternalRef(ctx context.Context, externalRef string) (*Transaction, error) {
	if externalRef == "" {
		return nil, fmt.Errorf("%w: empty external ref", db.ErrNotFound)
	}
	return s.getTx(ctx, s.conn, qSQLiteGetTxByRef, externalRef)
}

func (s *SQLiteStore) UpdateTransactionStatus(ctx context.Context, externalRef string, status Status) (*Transaction, error) {
	if externalRef == "" {
		return nil, fmt.Errorf("%w: empty external ref", db.ErrNotFound)
	}
	var out *Transaction
	err := db.WithTx(ctx, s.conn, func(q *sql.Tx) error {
		t, err := s.getTx(ctx, q, qSQLiteGetTxByRef, externalRef)
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
			if _, err := q.ExecContext(ctx, qSQLiteSetStatus, string(status), t.UpdatedAt, t.ID); err != nil {
				s.logger.Error("update status failed", zap.String("method", "UpdateTransactionStatus"), zap.String("external_ref", externalRef), zap.Error(err))
				return db.SQLiteError(err)
			}
		}
		out = t
		return nil
	})
	return out, err
}

func (s *SQLiteStore) ListTransactions(ctx context.Context, accountID string, limit int) iter.Seq2[*Transaction, error] {
	return paginate(ctx, limit, func(ctx context.Context, before string, n int) ([]*Transaction, error) {
		var (
			rows *sql.Rows
			err  error
		)
		if before == "" {
			rows, err = s.conn.QueryContext(ctx, qSQLiteListFirst, accountID, n)
		} else {
			rows, err = s.conn.QueryContext(ctx, qSQLiteListBefore, accountID, before, n)
		}
		if err != nil {
			s.logger.Error("list failed", zap.String("method", "ListTransactions"), zap.String("account_id", accountID), zap.Error(err))
			return nil, db.SQLiteError(err)
		}
		return scanTxRows(rows)
	})
}

func (s *SQLiteStore) ListPending(ctx context.Context, typ Type, olderThan time.Time) ([]*Transaction, error) {
	if olderThan.IsZero() {
		olderThan = now().Add(time.Hour)
	}
	rows, err := s.conn.QueryContext(ctx, qSQLiteListPending, string(typ), olderThan.UTC())
	if err != nil {
		s.logger.Error("list pending failed", zap.String("method", "ListPending"), zap.Error(err))
		return nil, db.SQLiteError(err)
	}
	return scanTxRows(rows)
}

func (s *SQLiteStore) ReservePayout(ctx context.Context, t *Transaction) error {
	if err := ValidateTransaction(t); err != nil {
		return err
	}
	if t.Type != TypePayout || t.Status != StatusPending {
		return errors.Join(db.ErrInvalid, errors.New("reserve requires a pending payout"))
	}
	return db.WithTx(ctx, s.conn, func(q *sql.Tx) error {
		if err := s.debit(ctx, q, t.AccountID, t.Magnitude()); err != nil {
			return err
		}
		return s.insert(ctx, q, t)
	})
}

func (s *SQLiteStore) AttachExternalRef(ctx context.Context, txID, externalRef string) (*Transaction, error) {
	if txID == "" || externalRef == "" {
		return nil, errors.Join(db.ErrInvalid, ErrInvalidRequest)
	}
	var out *Transaction
	err := db.WithTx(ctx, s.conn, func(q *sql.Tx) error {
		t, err := s.getTx(ctx, q, qSQLiteGetTx, txID)
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
		if _, err := q.ExecContext(ctx, qSQLiteSetRef, externalRef, t.UpdatedAt, txID); err != nil {
			s.logger.Error("attach ref failed", zap.String("method", "AttachExternalRef"), zap.String("tx_id", txID), zap.Error(err))
			return db.SQLiteError(err)
		}
		out = t
		return nil
	})
	return out, err
}

func (s *SQLiteStore) ReleasePayout(ctx context.Context, txID string) (*Transaction, bool, error) {
	var (
		out      *Transaction
		released bool
	)
	err := db.WithTx(ctx, s.conn, func(q *sql.Tx) error {
		t, err := s.getTx(ctx, q, qSQLiteGetTx, txID)
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
			if _, err := q.ExecContext(ctx, qSQLiteSetStatus, string(t.Status), t.UpdatedAt, t.ID); err != nil {
				s.logger.Error("release failed", zap.String("method", "ReleasePayout"), zap.String("tx_id", txID), zap.Error(err))
				return db.SQLiteError(err)
			}
			if err := s.credit(ctx, q, t.AccountID, t.Magnitude()); err != nil {
				return err
			}
			released = true
		}
		out = t
		return nil
	})
	return out, released, err
}

func (s *SQLiteStore) MarkStuck(ctx context.Context, txID string) (*Transaction, error) {
	var out *Transaction
	err := db.WithTx(ctx, s.conn, func(q *sql.Tx) error {
		t, err := s.getTx(ctx, q, qSQLiteGetTx, txID)
		if err != nil {
			return err
		}
		if !t.Stuck() && !t.Status.Terminal() {
			ts := now()
			t.StuckAt = &ts
			t.UpdatedAt = ts
			if _, err := q.ExecContext(ctx, qSQLiteSetStuck, ts, ts, txID); err != nil {
				s.logger.Error("mark stuck failed", zap.String("method", "MarkStuck"), zap.String("tx_id", txID), zap.Error(err))
				return db.SQLiteError(err)
			}
		}
		out = t
		return nil
	})
	return out, err
}

func (s *SQLiteStore) SettleDeposit(ctx context.Context, t *Transaction) error {
	if err := ValidateTransaction(t); err != nil {
		return err
	}
	if t.Type != TypeDeposit || t.Status != StatusCompleted || t.ExternalRef == "" {
		return errors.Join(db.ErrInvalid, errors.New("settle requires a completed deposit with an external ref"))
	}
	return db.WithTx(ctx, s.conn, func(q *sql.Tx) error {
		if err := s.insert(ctx, q, t); err != nil {
			return err
		}
		return s.credit(ctx, q, t.AccountID, t.Amount)
	})
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

func (s *SQLiteStore) getAccount(ctx context.Context, q sqlQuerier, accountID string) (*Account, error) {
	var acc Account
	err := q.QueryRowContext(ctx, qSQLiteGetAccount, accountID).Scan(&acc.ID, &acc.Balance, &acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: account %s", db.ErrNotFound, accountID)
		}
		s.logger.Error("get account failed", zap.String("method", "GetAccount"), zap.String("account_id", accountID), zap.Error(err))
		return nil, db.SQLiteError(err)
	}
	return &acc, nil
}

func (s *SQLiteStore) credit(ctx context.Context, q sqlQuerier, accountID string, amount int64) error {
	res, err := q.ExecContext(ctx, qSQLiteCredit, amount, now(), accountID)
	if err != nil {
		s.logger.Error("credit failed", zap.String("method", "credit"), zap.String("account_id", accountID), zap.Int64("amount", amount), zap.Error(err))
		return db.SQLiteError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: account %s", db.ErrNotFound, accountID)
	}
	return nil
}

func (s *SQLiteStore) debit(ctx context.Context, q sqlQuerier, accountID string, amount int64) error {
	res, err := q.ExecContext(ctx, qSQLiteDebit, amount, now(), accountID, amount)
	if err != nil {
		s.logger.Error("debit failed", zap.String("method", "debit"), zap.String("account_id", accountID), zap.Int64("amount", amount), zap.Error(err))
		return db.SQLiteError(err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}
	if _, err := s.getAccount(ctx, q, accountID); err != nil {
		return err
	}
	return ErrInsufficientFunds
}

func (s *SQLiteStore) insert(ctx context.Context, q sqlQuerier, t *Transaction) error {
	prepare(t)
	_, err := q.ExecContext(ctx, qSQLiteInsertTx,
		t.ID, t.AccountID, string(t.Type), t.Amount, t.Counterparty, t.Description, string(t.Status),
		nullable(t.ExternalRef), nullable(t.IdempotencyKey), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		mapped := db.SQLiteError(err)
		if !db.IsConflict(mapped) && !db.IsNotFound(mapped) {
			s.logger.Error("insert failed", zap.String("method", "insert"), zap.String("tx_id", t.ID), zap.Error(err))
		}
		return mapped
	}
	return nil
}

func (s *SQLiteStore) getTx(ctx context.Context, q sqlQuerier, query string, arg string) (*Transaction, error) {
	t, err := scanTx(q.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: transaction %s", db.ErrNotFound, arg)
		}
		s.logger.Error("get transaction failed", zap.String("method", "getTx"), zap.String("key", arg), zap.Error(err))
		return nil, db.SQLiteError(err)
	}
	return t, nil
}

func scanTx(row rowScanner) (*Transaction, error) {
	var (
		t         Transaction
		typ, st   string
		ref, ikey sql.NullString
		stuck     sql.NullTime
	)
	if err := row.Scan(&t.ID, &t.AccountID, &typ, &t.Amount, &t.Counterparty, &t.Description, &st, &ref, &ikey, &t.CreatedAt, &t.UpdatedAt, &stuck); err != nil {
		return nil, err
	}
	t.Type = Type(typ)
	t.Status = Status(st)
	t.ExternalRef = ref.String
	t.IdempotencyKey = ikey.String
	if stuck.Valid {
		at := stuck.Time.UTC()
		t.StuckAt = &at
	}
	return &t, nil
}

func scanTxRows(rows *sql.Rows) ([]*Transaction, error) {
	defer func() { _ = rows.Close() }()
	var out []*Transaction
	for rows.Next() {
		t, err := scanTx(rows)
		if err != nil {
			return nil, db.SQLiteError(err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, db.SQLiteError(err)
	}
	return out, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
