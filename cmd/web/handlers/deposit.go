package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"payrecon/cmd/web/middleware"
	"payrecon/cmd/web/response"
	"payrecon/cmd/web/validator"
	"payrecon/internal/money"
	"payrecon/kit/db"
	"payrecon/kit/observability"
)

var errUnauthenticated = errors.New("unauthenticated request reached a handler")

type Deposit struct {
	json    *validator.JSON
	deposit DepositServiceContract
	logger  *zap.Logger
}

func NewDeposit(jsonV *validator.JSON, depositSvc DepositServiceContract, logger *zap.Logger) *Deposit {
	return &Deposit{json: jsonV, deposit: depositSvc, logger: observability.Component(logger, "handler", "deposit")}
}

type initiateDepositReq struct {
	Amount validator.Amount `json:"amount"`
}

type captureDepositReq struct {
	OrderID string `json:"order_id"`
}

func (h *Deposit) Initiate(w http.ResponseWriter, r *http.Request) {
	log := h.logger.With(zap.String("method", "Initiate"))
	accountID, ok := middleware.AccountID(r.Context())
	if !ok {
		response.Error(w, log, errUnauthenticated)
		return
	}
	log = log.With(zap.String("account_id", accountID))

	var req initiateDepositReq
	if err := h.json.Decode(w, r, &req); err != nil {
		response.Error(w, log, err)
		return
	}
	order, err := h.deposit.InitiateDeposit(r.Context(), accountID, req.Amount.Minor())
	if err != nil {
		response.Error(w, log, err)
		return
	}
	response.JSON(w, http.StatusCreated, "approve the order to complete the deposit", map[string]any{
		"order_id":     order.OrderID,
		"approval_url": order.ApprovalURL,
		"amount":       money.Format(order.Amount),
	})
}

func (h *Deposit) Capture(w http.ResponseWriter, r *http.Request) {
	log := h.logger.With(zap.String("method", "Capture"))
	accountID, ok := middleware.AccountID(r.Context())
	if !ok {
		response.Error(w, log, errUnauthenticated)
		return
	}
	log = log.With(zap.String("account_id", accountID))

	var req captureDepositReq
	if err := h.json.Decode(w, r, &req); err != nil {
		response.Error(w, log, err)
		return
	}
	if req.OrderID == "" {
		response.Error(w, log, errors.Join(db.ErrInvalid, errors.New("order_id is required")))
		return
	}
	res, err := h.deposit.CompleteDeposit(r.Context(), req.OrderID, accountID)
	if err != nil {
		response.Error(w, log.With(zap.String("order_id", req.OrderID)), err)
		return
	}

	message := "deposit completed"
	if res.AlreadyCaptured {
		message = "deposit already captured"
	}
	response.JSON(w, http.StatusOK, message, map[string]any{
		"transaction":      toTransactionView(res.Transaction),
		"balance":          money.Format(res.Balance),
		"already_captured": res.AlreadyCaptured,
	})
}
