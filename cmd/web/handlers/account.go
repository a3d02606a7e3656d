package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"payrecon/cmd/web/middleware"
	"payrecon/cmd/web/response"
	"payrecon/internal/ledger"
	"payrecon/internal/money"
	"payrecon/kit/db"
	"payrecon/kit/observability"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 100
)

type Account struct {
	ledger LedgerContract
	logger *zap.Logger
}

func NewAccount(ledgerStore LedgerContract, logger *zap.Logger) *Account {
	return &Account{ledger: ledgerStore, logger: observability.Component(logger, "handler", "account")}
}

func (h *Account) Balance(w http.ResponseWriter, r *http.Request) {
	log := h.logger.With(zap.String("method", "Balance"))
	accountID, ok := middleware.AccountID(r.Context())
	if !ok {
		response.Error(w, log, errUnauthenticated)
		return
	}
	acc, err := h.ledger.GetAccount(r.Context(), accountID)
	if err != nil {
		response.Error(w, log.With(zap.String("account_id", accountID)), err)
		return
	}
	response.JSON(w, http.StatusOK, "balance retrieved", map[string]any{
		"account_id": acc.ID,
		"balance":    money.Format(acc.Balance),
	})
}

// Transactions lists the caller's history, newest first.
func (h *Account) Transactions(w http.ResponseWriter, r *http.Request) {
	log := h.logger.With(zap.String("method", "Transactions"))
	accountID, ok := middleware.AccountID(r.Context())
	if !ok {
		response.Error(w, log, errUnauthenticated)
		return
	}
	log = log.With(zap.String("account_id", accountID))

	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		response.Error(w, log, err)
		return
	}
	txs, err := ledger.Collect(h.ledger.ListTransactions(r.Context(), accountID, limit))
	if err != nil {
		response.Error(w, log, err)
		return
	}
	views := make([]*transactionView, 0, len(txs))
	for _, tx := range txs {
		views = append(views, toTransactionView(tx))
	}
	response.JSON(w, http.StatusOK, fmt.Sprintf("%d transactions", len(views)), map[string]any{
		"transactions": views,
	})
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultHistoryLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.Join(db.ErrInvalid, fmt.Errorf("limit must be a positive integer, got %q", raw))
	}
	return min(n, maxHistoryLimit), nil
}
